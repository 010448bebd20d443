package extract

import (
	"regexp"

	"github.com/ternarybob/fides/internal/models"
)

// weakeningPair fires when the old snippet carries the strong form and
// the new snippet carries the hedged form.
type weakeningPair struct {
	strong *regexp.Regexp
	hedged *regexp.Regexp
}

var weakeningPairs = []weakeningPair{
	{
		strong: regexp.MustCompile(`(?i)\b(?:do\s+not|don'?t|never)\b`),
		hedged: regexp.MustCompile(`(?i)\b(?:may|might|could)\b`),
	},
	{
		strong: regexp.MustCompile(`(?i)\balways\b`),
		hedged: regexp.MustCompile(`(?i)\b(?:typically|usually|generally)\b`),
	},
	{
		strong: regexp.MustCompile(`(?i)\ball\b`),
		hedged: regexp.MustCompile(`(?i)\b(?:most|some)\b`),
	},
	{
		strong: regexp.MustCompile(`(?i)\bguarantee(?:s|d)?\b`),
		hedged: regexp.MustCompile(`(?i)\b(?:strive|aim|endeavor)(?:s|d|ed|ing)?\b`),
	},
}

// DetectWeakening reports whether the new snippet hedges a commitment
// the old snippet stated firmly.
func DetectWeakening(oldSnippet, newSnippet string) bool {
	for _, p := range weakeningPairs {
		if p.strong.MatchString(oldSnippet) && p.hedged.MatchString(newSnippet) {
			return true
		}
	}
	return false
}

// DetectNumericChange compares the numeric metadata of two claim
// versions. Both results are false when either side has no value.
func DetectNumericChange(oldMeta, newMeta *models.NumericMeta) (changed, decreased bool) {
	if oldMeta == nil || newMeta == nil {
		return false, false
	}
	if oldMeta.Value == newMeta.Value {
		return false, false
	}
	return true, newMeta.Value < oldMeta.Value
}
