package interfaces

import "context"

// PDFDocument is the parsed form of one PDF: the concatenated text and
// the per-page text keyed by 1-indexed page number.
type PDFDocument struct {
	FullText  string         `json:"full_text"`
	Pages     map[int]string `json:"pages"`
	PageCount int            `json:"page_count"`
}

// PDFParser fetches and parses a PDF by URL. Implementations own their
// transport; callers bound the whole operation with the context.
type PDFParser interface {
	Parse(ctx context.Context, pdfURL string) (*PDFDocument, error)
}
