package fetcher

import (
	"context"
	_ "embed"
	"fmt"
	"net/http"
	"time"

	"github.com/ternarybob/arbor"
	"gopkg.in/yaml.v3"

	"github.com/ternarybob/fides/internal/interfaces"
)

//go:embed fixtures.yaml
var fixturesYAML []byte

type demoPage struct {
	Title   string `yaml:"title"`
	Content string `yaml:"content"`
}

type demoFixtures struct {
	Pages map[string]demoPage `yaml:"pages"`
}

// DemoFetcher answers from an in-process page table instead of the
// network, so the full pipeline can run against stable content.
type DemoFetcher struct {
	pages  map[string]demoPage
	logger arbor.ILogger
}

// NewDemoFetcher loads the embedded fixture table.
func NewDemoFetcher(logger arbor.ILogger) (*DemoFetcher, error) {
	var fixtures demoFixtures
	if err := yaml.Unmarshal(fixturesYAML, &fixtures); err != nil {
		return nil, fmt.Errorf("failed to parse demo fixtures: %w", err)
	}

	return &DemoFetcher{
		pages:  fixtures.Pages,
		logger: logger,
	}, nil
}

// Has reports whether the URL is served by the fixture table.
func (f *DemoFetcher) Has(targetURL string) bool {
	_, ok := f.pages[targetURL]
	return ok
}

// Fetch returns the fixture page. Unknown URLs behave like a 404 so
// error paths stay testable in demo mode.
func (f *DemoFetcher) Fetch(ctx context.Context, targetURL string) (*interfaces.FetchResult, error) {
	page, ok := f.pages[targetURL]
	if !ok {
		return nil, &HTTPError{URL: targetURL, StatusCode: http.StatusNotFound}
	}

	f.logger.Debug().
		Str("url", targetURL).
		Msg("Serving demo fixture")

	return &interfaces.FetchResult{
		URL:        targetURL,
		Title:      page.Title,
		Content:    page.Content,
		StatusCode: http.StatusOK,
		FetchedAt:  time.Now().UTC(),
	}, nil
}
