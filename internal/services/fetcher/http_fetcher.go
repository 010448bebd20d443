package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"
	"github.com/ternarybob/arbor"
	"golang.org/x/time/rate"

	"github.com/ternarybob/fides/internal/common"
	"github.com/ternarybob/fides/internal/interfaces"
)

// ErrEmptyContent marks a page that fetched fine but yielded no text
// after stripping chrome. HTTP and transport failures use HTTPError
// instead; the two must stay distinguishable for retry decisions.
var ErrEmptyContent = errors.New("fetched page has no content")

// HTTPError is a non-2xx response from the target site.
type HTTPError struct {
	URL        string
	StatusCode int
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("fetch failed: %s returned status %d", e.URL, e.StatusCode)
}

// HTTPFetcher retrieves trust pages over the network and converts them
// to markdown-style text for the extractor.
type HTTPFetcher struct {
	httpClient  *http.Client
	limiter     *rate.Limiter
	logger      arbor.ILogger
	userAgent   string
	maxBodySize int64
}

// NewHTTPFetcher creates the real network adapter.
func NewHTTPFetcher(cfg common.FetcherConfig, logger arbor.ILogger) *HTTPFetcher {
	timeout := common.ParseDurationOr(cfg.RequestTimeout, 30*time.Second)
	delay := common.ParseDurationOr(cfg.RequestDelay, time.Second)

	maxBody := int64(cfg.MaxBodySize)
	if maxBody <= 0 {
		maxBody = 10 * 1024 * 1024
	}

	return &HTTPFetcher{
		httpClient:  &http.Client{Timeout: timeout},
		limiter:     rate.NewLimiter(rate.Every(delay), 1),
		logger:      logger,
		userAgent:   cfg.UserAgent,
		maxBodySize: maxBody,
	}
}

// Fetch downloads the URL and returns its canonicalised text.
func (f *HTTPFetcher) Fetch(ctx context.Context, targetURL string) (*interfaces.FetchResult, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait aborted: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, targetURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request for %s: %w", targetURL, err)
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	f.logger.Debug().
		Str("url", targetURL).
		Msg("Fetching page")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", targetURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, &HTTPError{URL: targetURL, StatusCode: resp.StatusCode}
	}

	doc, err := goquery.NewDocumentFromReader(io.LimitReader(resp.Body, f.maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML from %s: %w", targetURL, err)
	}

	title := extractTitle(doc)
	content, err := documentText(doc, targetURL)
	if err != nil {
		return nil, fmt.Errorf("failed to convert %s to text: %w", targetURL, err)
	}
	if strings.TrimSpace(content) == "" {
		return nil, fmt.Errorf("%s: %w", targetURL, ErrEmptyContent)
	}

	return &interfaces.FetchResult{
		URL:        targetURL,
		Title:      title,
		Content:    content,
		StatusCode: resp.StatusCode,
		FetchedAt:  time.Now().UTC(),
	}, nil
}

// extractTitle tries the usual sources in order of reliability.
func extractTitle(doc *goquery.Document) string {
	if title := strings.TrimSpace(doc.Find("title").First().Text()); title != "" {
		return title
	}
	if ogTitle, exists := doc.Find("meta[property='og:title']").Attr("content"); exists && strings.TrimSpace(ogTitle) != "" {
		return strings.TrimSpace(ogTitle)
	}
	if h1 := strings.TrimSpace(doc.Find("h1").First().Text()); h1 != "" {
		return h1
	}
	return "Untitled"
}

// documentText strips page chrome, keeps the main content container
// and converts it to markdown.
func documentText(doc *goquery.Document, baseURL string) (string, error) {
	doc.Find("script, style, nav, footer, aside").Remove()

	content := doc.Find("main, article, [role=main]").First()
	if content.Length() == 0 {
		content = doc.Find("body")
	}

	html, err := goquery.OuterHtml(content)
	if err != nil {
		return "", err
	}

	converter := md.NewConverter(baseURL, true, nil)
	markdown, err := converter.ConvertString(html)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(markdown), nil
}
