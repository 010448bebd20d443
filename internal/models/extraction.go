package models

// ExtractedClaim is one deduplicated matcher hit from a page scan. It
// is the extractor's output and the change detector's input; nothing
// is persisted until the detector reconciles it against stored claims.
type ExtractedClaim struct {
	ClaimType  ClaimType    `json:"claim_type"`
	Key        string       `json:"key"`
	Polarity   Polarity     `json:"polarity"`
	Snippet    string       `json:"snippet"`
	SourceURL  string       `json:"source_url"`
	Confidence float64      `json:"confidence"`
	Meta       *NumericMeta `json:"meta,omitempty"`
}
