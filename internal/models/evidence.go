package models

import "time"

// EvidenceStatus is the parse state of a discovered PDF artefact.
type EvidenceStatus string

const (
	EvidenceStatusPending EvidenceStatus = "PENDING"
	EvidenceStatusReady   EvidenceStatus = "READY"
	EvidenceStatusFailed  EvidenceStatus = "FAILED"
)

// EvidenceFields holds the structured fields extracted from a parsed
// PDF. All fields are best-effort; absent values stay zero.
type EvidenceFields struct {
	ReportType  string         `json:"report_type,omitempty"` // e.g. "SOC 2 Type II"
	Auditor     string         `json:"auditor,omitempty"`
	PeriodStart *time.Time     `json:"period_start,omitempty"`
	PeriodEnd   *time.Time     `json:"period_end,omitempty"`
	Scope       string         `json:"scope,omitempty"`
	PageNumbers []int          `json:"page_numbers,omitempty"` // sorted ascending
	PageContent map[int]string `json:"page_content,omitempty"` // page index -> text
}

// Evidence is a PDF artefact discovered on a crawled page, parsed
// out-of-band by the evidence worker. (CompanyID, PDFURL) is unique;
// the storage layer keys evidence by that pair.
type Evidence struct {
	ID        string    `json:"id" badgerhold:"index"` // evd_{uuid}
	CompanyID string    `json:"company_id" badgerhold:"index"`
	ClaimType ClaimType `json:"claim_type"`
	PDFURL    string    `json:"pdf_url"`

	// Where the link was found, with surrounding text for context.
	SourcePageURL  string `json:"source_page_url,omitempty"`
	ContextSnippet string `json:"context_snippet,omitempty"`

	Status EvidenceStatus  `json:"status"`
	Error  string          `json:"error,omitempty"`
	Fields *EvidenceFields `json:"fields,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	ProcessedAt *time.Time `json:"processed_at,omitempty"` // set on READY or FAILED
}
