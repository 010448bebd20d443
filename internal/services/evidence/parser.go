// -----------------------------------------------------------------------
// PDF parsing adapter for the evidence pipeline. Downloads the PDF,
// extracts per-page content with pdfcpu, and pulls the text out of the
// content streams.
// -----------------------------------------------------------------------

package evidence

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/fides/internal/interfaces"
)

const maxPDFSize = 50 * 1024 * 1024

// Parser implements the PDFParser interface using pdfcpu. In demo
// mode the configured demo set serves known report URLs in-process;
// everything else goes over HTTP.
type Parser struct {
	client    *http.Client
	demo      *DemoPDFs
	logger    arbor.ILogger
	tempDir   string
	userAgent string
}

// NewParser creates a PDF parser. Pass a nil demo set outside demo mode.
func NewParser(demo *DemoPDFs, userAgent string, logger arbor.ILogger) *Parser {
	tempDir := filepath.Join(os.TempDir(), "fides-pdf")
	os.MkdirAll(tempDir, 0755)

	return &Parser{
		// Per-call deadlines come from the worker's context.
		client:    &http.Client{},
		demo:      demo,
		logger:    logger,
		tempDir:   tempDir,
		userAgent: userAgent,
	}
}

// Parse fetches and parses one PDF by URL.
func (p *Parser) Parse(ctx context.Context, pdfURL string) (*interfaces.PDFDocument, error) {
	data, err := p.download(ctx, pdfURL)
	if err != nil {
		return nil, err
	}

	doc, err := p.parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", pdfURL, err)
	}

	p.logger.Debug().
		Str("pdf_url", pdfURL).
		Int("pages", doc.PageCount).
		Int("text_len", len(doc.FullText)).
		Msg("PDF parsed")
	return doc, nil
}

func (p *Parser) download(ctx context.Context, pdfURL string) ([]byte, error) {
	if p.demo != nil && p.demo.Has(pdfURL) {
		return p.demo.Render(pdfURL)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pdfURL, nil)
	if err != nil {
		return nil, fmt.Errorf("invalid PDF URL %s: %w", pdfURL, err)
	}
	req.Header.Set("User-Agent", p.userAgent)
	req.Header.Set("Accept", "application/pdf")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download %s: %w", pdfURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("download of %s returned status %d", pdfURL, resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxPDFSize))
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", pdfURL, err)
	}
	return data, nil
}

// parse writes the bytes to a temp file and runs pdfcpu content
// extraction over it. pdfcpu dumps decompressed content streams; the
// text lives in their parenthesised string literals.
func (p *Parser) parse(data []byte) (*interfaces.PDFDocument, error) {
	tempFile := filepath.Join(p.tempDir, fmt.Sprintf("evidence_%d_%d.pdf", os.Getpid(), time.Now().UnixNano()))
	if err := os.WriteFile(tempFile, data, 0644); err != nil {
		return nil, fmt.Errorf("failed to write temp PDF: %w", err)
	}
	defer os.Remove(tempFile)

	pdfCtx, err := api.ReadContextFile(tempFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read PDF: %w", err)
	}
	pageCount := pdfCtx.PageCount

	outDir := tempFile + "_pages"
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create extraction dir: %w", err)
	}
	defer os.RemoveAll(outDir)

	if err := api.ExtractContentFile(tempFile, outDir, nil, model.NewDefaultConfiguration()); err != nil {
		return nil, fmt.Errorf("failed to extract PDF content: %w", err)
	}

	pages := make(map[int]string)
	files, _ := os.ReadDir(outDir)
	for _, file := range files {
		if file.IsDir() {
			continue
		}
		var pageNum int
		if _, err := fmt.Sscanf(file.Name(), "page_%d", &pageNum); err != nil {
			if _, err := fmt.Sscanf(file.Name(), "Content_page_%d", &pageNum); err != nil {
				continue
			}
		}
		raw, err := os.ReadFile(filepath.Join(outDir, file.Name()))
		if err != nil {
			continue
		}
		if text := textFromContent(raw); text != "" {
			pages[pageNum] = text
		}
	}

	var full strings.Builder
	for pageNum := 1; pageNum <= pageCount; pageNum++ {
		text, ok := pages[pageNum]
		if !ok {
			continue
		}
		if full.Len() > 0 {
			full.WriteString("\n\n")
		}
		full.WriteString(text)
	}

	return &interfaces.PDFDocument{
		FullText:  full.String(),
		Pages:     pages,
		PageCount: pageCount,
	}, nil
}

// stringLiteral matches PDF string objects, honouring escaped parens.
var stringLiteral = regexp.MustCompile(`\(((?:\\.|[^\\()])*)\)`)

func textFromContent(content []byte) string {
	matches := stringLiteral.FindAllSubmatch(content, -1)
	parts := make([]string, 0, len(matches))
	for _, m := range matches {
		s := unescapePDFString(string(m[1]))
		if strings.TrimSpace(s) != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, " ")
}

func unescapePDFString(s string) string {
	if !strings.ContainsRune(s, '\\') {
		return s
	}

	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if s[i] != '\\' || i == len(s)-1 {
			b.WriteByte(s[i])
			continue
		}
		i++
		switch s[i] {
		case '(', ')', '\\':
			b.WriteByte(s[i])
		case 'n':
			b.WriteByte('\n')
		case 'r':
			b.WriteByte('\r')
		case 't':
			b.WriteByte('\t')
		default:
			// Octal and anything exotic pass through unconverted.
			b.WriteByte('\\')
			b.WriteByte(s[i])
		}
	}
	return b.String()
}
