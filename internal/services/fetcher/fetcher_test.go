package fetcher

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/fides/internal/common"
)

func fastFetcherConfig() common.FetcherConfig {
	return common.FetcherConfig{
		UserAgent:      "fides-test/1.0",
		RequestTimeout: "5s",
		MaxBodySize:    1 << 20,
		RequestDelay:   "1ms",
	}
}

func TestHTTPFetcherConvertsPage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("User-Agent"); got != "fides-test/1.0" {
			t.Errorf("User-Agent = %q", got)
		}
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<html><head><title>Security | Example</title></head>
			<body>
			<nav>Home | About</nav>
			<main><h1>Security</h1><p>We are SOC 2 Type II compliant. We guarantee 99.99% uptime.</p></main>
			<footer>Copyright</footer>
			</body></html>`))
	}))
	defer srv.Close()

	f := NewHTTPFetcher(fastFetcherConfig(), arbor.NewLogger())
	result, err := f.Fetch(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}

	if result.Title != "Security | Example" {
		t.Errorf("Title = %q", result.Title)
	}
	if result.StatusCode != http.StatusOK {
		t.Errorf("StatusCode = %d", result.StatusCode)
	}
	if !strings.Contains(result.Content, "SOC 2 Type II") {
		t.Errorf("Content missing page text: %q", result.Content)
	}
	if strings.Contains(result.Content, "Copyright") {
		t.Errorf("Content still carries footer chrome: %q", result.Content)
	}
	if !strings.Contains(result.Content, "# Security") {
		t.Errorf("Content not converted to markdown: %q", result.Content)
	}
}

func TestHTTPFetcherStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down for maintenance", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	f := NewHTTPFetcher(fastFetcherConfig(), arbor.NewLogger())
	_, err := f.Fetch(context.Background(), srv.URL)

	var httpErr *HTTPError
	if !errors.As(err, &httpErr) {
		t.Fatalf("Fetch error = %v, want HTTPError", err)
	}
	if httpErr.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("StatusCode = %d, want 503", httpErr.StatusCode)
	}
	if errors.Is(err, ErrEmptyContent) {
		t.Error("Status error must not read as empty content")
	}
}

func TestHTTPFetcherEmptyContent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<html><head><title>Blank</title></head><body><main></main></body></html>`))
	}))
	defer srv.Close()

	f := NewHTTPFetcher(fastFetcherConfig(), arbor.NewLogger())
	_, err := f.Fetch(context.Background(), srv.URL)

	if !errors.Is(err, ErrEmptyContent) {
		t.Fatalf("Fetch error = %v, want ErrEmptyContent", err)
	}
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		t.Error("Empty content must not read as a status error")
	}
}

func TestDemoFetcherServesFixtures(t *testing.T) {
	demo, err := NewDemoFetcher(arbor.NewLogger())
	if err != nil {
		t.Fatalf("NewDemoFetcher failed: %v", err)
	}

	const page = "https://demo.fides.dev/security"
	if !demo.Has(page) {
		t.Fatalf("Demo table missing %s", page)
	}

	result, err := demo.Fetch(context.Background(), page)
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if !strings.Contains(result.Content, "SOC 2 Type II") {
		t.Errorf("Fixture content missing expected claim text")
	}
	if !strings.Contains(result.Content, ".pdf") {
		t.Errorf("Security fixture should link evidence PDFs")
	}

	_, err = demo.Fetch(context.Background(), "https://demo.fides.dev/missing")
	var httpErr *HTTPError
	if !errors.As(err, &httpErr) || httpErr.StatusCode != http.StatusNotFound {
		t.Errorf("Unknown fixture error = %v, want 404 HTTPError", err)
	}
}

func TestServiceRoutesDemoMode(t *testing.T) {
	var networkHits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		networkHits++
		w.Write([]byte(`<html><head><title>Live</title></head><body><p>Looking for a live page with content.</p></body></html>`))
	}))
	defer srv.Close()

	cfg := fastFetcherConfig()
	cfg.DemoMode = true
	svc, err := NewService(cfg, arbor.NewLogger())
	if err != nil {
		t.Fatalf("NewService failed: %v", err)
	}

	// Fixture URL stays in-process.
	result, err := svc.Fetch(context.Background(), "https://demo.fides.dev/privacy")
	if err != nil {
		t.Fatalf("Demo fetch failed: %v", err)
	}
	if !strings.Contains(result.Content, "do not sell") {
		t.Errorf("Demo privacy content unexpected: %q", result.Content)
	}
	if networkHits != 0 {
		t.Errorf("Demo fetch hit the network %d times", networkHits)
	}

	// Non-fixture URL still goes to the network even in demo mode.
	if _, err := svc.Fetch(context.Background(), srv.URL); err != nil {
		t.Fatalf("Network fetch failed: %v", err)
	}
	if networkHits != 1 {
		t.Errorf("Network hits = %d, want 1", networkHits)
	}
}
