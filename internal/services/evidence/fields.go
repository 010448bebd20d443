package evidence

import (
	"regexp"
	"sort"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/ternarybob/fides/internal/interfaces"
	"github.com/ternarybob/fides/internal/models"
)

// The field extractor is deterministic: the same document always
// yields the same fields, so replaying an evidence job is safe.

var reportTypePatterns = []struct {
	pattern *regexp.Regexp
	label   string
}{
	{regexp.MustCompile(`(?i)\bSOC\s*2\s*Type\s*(?:II|2)\b`), "SOC 2 Type II"},
	{regexp.MustCompile(`(?i)\bSOC\s*2\s*Type\s*(?:I|1)\b`), "SOC 2 Type I"},
	{regexp.MustCompile(`(?i)\bISO(?:/IEC)?[\s-]*27001\b`), "ISO 27001"},
	{regexp.MustCompile(`(?i)\bHIPAA\b`), "HIPAA"},
}

var (
	auditorMarker = regexp.MustCompile(`(?i)\b(?:auditor|audited\s+by|performed\s+by)\b`)
	periodMarker  = regexp.MustCompile(`(?i)\bperiod\b`)

	// Accepted date shapes: "January 1, 2025", "1 January 2025",
	// "2025-01-01", "01/01/2025".
	datePart  = `(?:[A-Za-z]{3,9}\s+\d{1,2},\s*\d{4}|\d{1,2}\s+[A-Za-z]{3,9}\s+\d{4}|\d{4}-\d{2}-\d{2}|\d{1,2}/\d{1,2}/\d{4})`
	dateRange = regexp.MustCompile(`(` + datePart + `)\s*(?:to|through|[-\x{2013}])\s*(` + datePart + `)`)

	scopePattern = regexp.MustCompile(`(?is)\b(?:scope|covered\s+services)\b[:\s]*(.{20,200}?)(?:[.!?\n]|$)`)
)

var dateLayouts = []string{
	"January 2, 2006",
	"Jan 2, 2006",
	"2 January 2006",
	"2 Jan 2006",
	"2006-01-02",
	"01/02/2006",
	"1/2/2006",
}

const (
	auditorWindow   = 90
	periodWindow    = 160
	maxAuditorWords = 6
)

// ExtractFields derives the structured evidence fields from a parsed
// document. Absent values stay zero; extraction itself cannot fail.
func ExtractFields(doc *interfaces.PDFDocument) *models.EvidenceFields {
	fields := &models.EvidenceFields{
		ReportType:  matchReportType(doc.FullText),
		Auditor:     matchAuditor(doc.FullText),
		Scope:       matchScope(doc.FullText),
		PageContent: doc.Pages,
	}

	fields.PeriodStart, fields.PeriodEnd = matchPeriod(doc.FullText)

	if len(doc.Pages) > 0 {
		numbers := make([]int, 0, len(doc.Pages))
		for pageNum := range doc.Pages {
			numbers = append(numbers, pageNum)
		}
		sort.Ints(numbers)
		fields.PageNumbers = numbers
	}

	return fields
}

// matchReportType returns the label of the earliest report-type match.
func matchReportType(text string) string {
	best := -1
	label := ""
	for _, rt := range reportTypePatterns {
		loc := rt.pattern.FindStringIndex(text)
		if loc == nil {
			continue
		}
		if best == -1 || loc[0] < best {
			best = loc[0]
			label = rt.label
		}
	}
	return label
}

// matchAuditor looks for a capitalised name phrase after an auditor
// marker. The phrase runs while words stay capitalised and stops at a
// firm suffix (LLP, LLC, Inc).
func matchAuditor(text string) string {
	for _, loc := range auditorMarker.FindAllStringIndex(text, -1) {
		window := text[loc[1]:]
		if len(window) > auditorWindow {
			window = window[:auditorWindow]
		}
		window = strings.TrimLeft(window, " \t:,")

		var words []string
		for _, token := range strings.Fields(window) {
			trimmed := strings.TrimRight(token, ".,;:)")
			if trimmed == "&" && len(words) > 0 {
				words = append(words, trimmed)
				continue
			}
			r, _ := utf8.DecodeRuneInString(trimmed)
			if trimmed == "" || !unicode.IsUpper(r) {
				break
			}
			words = append(words, trimmed)
			if isFirmSuffix(trimmed) {
				break
			}
			if len(words) >= maxAuditorWords {
				break
			}
		}

		// A trailing connector means the phrase never completed.
		for len(words) > 0 && words[len(words)-1] == "&" {
			words = words[:len(words)-1]
		}
		if len(words) > 0 {
			return strings.Join(words, " ")
		}
	}
	return ""
}

func isFirmSuffix(word string) bool {
	switch word {
	case "LLP", "LLC", "Inc":
		return true
	}
	return false
}

// matchPeriod finds the first "period" context followed by two
// parseable dates joined by to/through/-.
func matchPeriod(text string) (*time.Time, *time.Time) {
	for _, loc := range periodMarker.FindAllStringIndex(text, -1) {
		window := text[loc[1]:]
		if len(window) > periodWindow {
			window = window[:periodWindow]
		}

		m := dateRange.FindStringSubmatch(window)
		if m == nil {
			continue
		}
		start, okStart := parseDate(m[1])
		end, okEnd := parseDate(m[2])
		if okStart && okEnd {
			return &start, &end
		}
	}
	return nil, nil
}

func parseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// matchScope captures the 20-200 characters following a scope marker.
func matchScope(text string) string {
	for _, m := range scopePattern.FindAllStringSubmatch(text, -1) {
		scope := strings.TrimSpace(m[1])
		if len(scope) >= 20 {
			return scope
		}
	}
	return ""
}
