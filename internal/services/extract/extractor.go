package extract

import (
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/fides/internal/models"
)

const (
	snippetWindow  = 150 // characters kept either side of a match
	minSentenceLen = 20
	maxSentenceLen = 500
	boundarySearch = 50 // window prefix searched for a sentence boundary
)

var (
	whitespaceRun    = regexp.MustCompile(`\s+`)
	sentenceBoundary = regexp.MustCompile(`[.!?]\s+[A-Z]`)
)

// Extractor scans page text against the fixed claim catalogue. It
// holds no state beyond a logger; the same input always yields the
// same output.
type Extractor struct {
	logger arbor.ILogger
}

// NewExtractor creates a claim extractor.
func NewExtractor(logger arbor.ILogger) *Extractor {
	return &Extractor{logger: logger}
}

// Extract runs every catalogue matcher against the document and its
// sentences, deduplicates by normalized key keeping the highest
// confidence, and returns claims in first-match order.
func (e *Extractor) Extract(text, sourceURL string) []models.ExtractedClaim {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	sentences := splitSentences(text)

	var claims []models.ExtractedClaim
	index := make(map[string]int)

	for _, m := range catalogue {
		// Matchers that derive their key from the matched text can
		// yield several distinct claims from one page (the ISO family);
		// fixed-key matchers only need their first hit.
		var locs [][]int
		if m.keyFromMatch {
			locs = m.pattern.FindAllStringSubmatchIndex(text, -1)
		} else if loc := m.pattern.FindStringSubmatchIndex(text); loc != nil {
			locs = [][]int{loc}
		}

		for _, loc := range locs {
			groups := submatches(text, loc)
			key := m.key
			accept := m.pattern.MatchString
			if m.keyFromMatch {
				num := firstGroup(groups)
				key = "ISO_" + num
				accept = func(s string) bool {
					g := m.pattern.FindStringSubmatch(s)
					return g != nil && firstGroup(g) == num
				}
			}

			claim := models.ExtractedClaim{
				ClaimType:  m.claimType,
				Key:        key,
				Polarity:   m.polarity,
				Snippet:    e.snippet(text, sentences, accept, loc[0], loc[1]),
				SourceURL:  sourceURL,
				Confidence: m.confidence,
			}
			if m.numericFromMatch {
				if v, err := strconv.ParseFloat(firstGroup(groups), 64); err == nil {
					claim.Meta = &models.NumericMeta{Value: v, Unit: "%"}
				}
			}
			if m.polarityFromMatch {
				if negatedSellShare.MatchString(text) {
					claim.Polarity = models.PolarityNegative
				} else {
					claim.Polarity = models.PolarityPositive
				}
			}

			if at, ok := index[key]; ok {
				if claim.Confidence > claims[at].Confidence {
					claims[at] = claim
				}
				continue
			}
			index[key] = len(claims)
			claims = append(claims, claim)
		}
	}

	if e.logger != nil {
		e.logger.Debug().
			Str("source_url", sourceURL).
			Int("claims", len(claims)).
			Msg("Claim extraction completed")
	}
	return claims
}

// snippet prefers the first accepted sentence when it is shorter than
// the character window around the document-level match.
func (e *Extractor) snippet(text string, sentences []string, accept func(string) bool, start, end int) string {
	window := windowSnippet(text, start, end)
	for _, s := range sentences {
		if accept(s) {
			if collapsed := collapseWhitespace(s); len(collapsed) < len(window) {
				return collapsed
			}
			break
		}
	}
	return window
}

// windowSnippet cuts the surrounding characters out of the document,
// collapses whitespace, and drops a leading sentence fragment when a
// boundary sits within the first few characters.
func windowSnippet(text string, start, end int) string {
	lo := start - snippetWindow
	if lo < 0 {
		lo = 0
	}
	hi := end + snippetWindow
	if hi > len(text) {
		hi = len(text)
	}
	for lo > 0 && !utf8.RuneStart(text[lo]) {
		lo--
	}
	for hi < len(text) && !utf8.RuneStart(text[hi]) {
		hi++
	}

	s := collapseWhitespace(text[lo:hi])

	if lo > 0 {
		limit := boundarySearch
		if limit > len(s) {
			limit = len(s)
		}
		cut := -1
		for _, b := range []string{". ", "! ", "? "} {
			if i := strings.Index(s[:limit], b); i >= 0 && (cut == -1 || i < cut) {
				cut = i
			}
		}
		if cut >= 0 {
			s = strings.TrimSpace(s[cut+2:])
		}
	}
	return s
}

// splitSentences breaks text on terminal punctuation followed by
// whitespace and a capital letter, keeping fragments of plausible
// sentence length.
func splitSentences(text string) []string {
	var out []string
	start := 0
	for _, loc := range sentenceBoundary.FindAllStringIndex(text, -1) {
		end := loc[0] + 1 // keep the punctuation with its sentence
		keepSentence(&out, text[start:end])
		start = loc[1] - 1 // the capital letter opens the next one
	}
	keepSentence(&out, text[start:])
	return out
}

func keepSentence(out *[]string, raw string) {
	s := strings.TrimSpace(raw)
	if len(s) >= minSentenceLen && len(s) <= maxSentenceLen {
		*out = append(*out, s)
	}
}

func collapseWhitespace(s string) string {
	return strings.TrimSpace(whitespaceRun.ReplaceAllString(s, " "))
}

// submatches resolves FindStringSubmatchIndex offsets into strings.
func submatches(text string, loc []int) []string {
	groups := make([]string, 0, len(loc)/2)
	for i := 0; i < len(loc); i += 2 {
		if loc[i] < 0 {
			groups = append(groups, "")
			continue
		}
		groups = append(groups, text[loc[i]:loc[i+1]])
	}
	return groups
}

// firstGroup returns the first non-empty capture group.
func firstGroup(groups []string) string {
	for _, g := range groups[1:] {
		if g != "" {
			return g
		}
	}
	return ""
}
