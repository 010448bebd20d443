package models

import "time"

// ClaimType groups normalized claim keys into the four monitored areas.
type ClaimType string

const (
	ClaimTypeCompliance ClaimType = "compliance"
	ClaimTypePrivacy    ClaimType = "privacy"
	ClaimTypeSLA        ClaimType = "sla"
	ClaimTypeSecurity   ClaimType = "security"
)

// ClaimStatus is the lifecycle state of a claim summary row.
type ClaimStatus string

const (
	ClaimStatusActive   ClaimStatus = "ACTIVE"
	ClaimStatusRemoved  ClaimStatus = "REMOVED"
	ClaimStatusDisputed ClaimStatus = "DISPUTED"
)

// Polarity records whether a claim asserts (positive), denies
// (negative), or merely mentions (neutral) its subject.
type Polarity string

const (
	PolarityPositive Polarity = "positive"
	PolarityNegative Polarity = "negative"
	PolarityNeutral  Polarity = "neutral"
)

// NumericMeta carries a numeric value extracted alongside a claim,
// e.g. an uptime percentage. A nil pointer means no numeric content.
type NumericMeta struct {
	Value float64 `json:"value"`
	Unit  string  `json:"unit"`
}

// Claim is the summary row for one normalized trust assertion of a
// company. (CompanyID, ClaimType, Key) is unique; history lives in
// ClaimVersion rows.
type Claim struct {
	ID        string      `json:"id" badgerhold:"index"` // clm_{uuid}
	CompanyID string      `json:"company_id" badgerhold:"index"`
	ClaimType ClaimType   `json:"claim_type"`
	Key       string      `json:"key"` // normalized, e.g. SOC2_TYPE_II
	Status    ClaimStatus `json:"status"`

	// Current observation.
	Snippet    string  `json:"snippet"`
	SourceURL  string  `json:"source_url"`
	Confidence float64 `json:"confidence"`

	FirstSeenAt time.Time `json:"first_seen_at"`
	LastSeenAt  time.Time `json:"last_seen_at"`
}

// ClaimVersion is one append-only observation of a claim. Consecutive
// versions of the same claim never share a content digest.
type ClaimVersion struct {
	ID        string `json:"id"` // ver_{uuid}
	ClaimID   string `json:"claim_id" badgerhold:"index"`
	CompanyID string `json:"company_id" badgerhold:"index"`

	Snippet       string       `json:"snippet"`
	SourceURL     string       `json:"source_url"`
	ContentDigest string       `json:"content_digest"` // sha-256 of snippet
	Polarity      Polarity     `json:"polarity"`
	Meta          *NumericMeta `json:"meta,omitempty"`

	SeenAt time.Time `json:"seen_at"`
}
