package interfaces

import (
	"context"
	"time"
)

// FetchResult is the canonical plain-text view of one fetched page.
// Content is markdown-style text with markup stripped.
type FetchResult struct {
	URL        string    `json:"url"`
	Title      string    `json:"title,omitempty"`
	Content    string    `json:"content"`
	StatusCode int       `json:"status_code"`
	FetchedAt  time.Time `json:"fetched_at"`
}

// Fetcher retrieves a page and returns its canonical text form.
// Transport failures surface as errors; a page that fetched fine but
// yielded no usable text returns fetcher.ErrEmptyContent so callers
// can tell the two apart.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*FetchResult, error)
}
