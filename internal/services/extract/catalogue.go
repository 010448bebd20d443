package extract

import (
	"regexp"

	"github.com/ternarybob/fides/internal/models"
)

// matcher is one entry in the fixed claim catalogue. Most matchers map
// straight to a single key; the flags cover the three exceptions where
// the matched text contributes to the result.
type matcher struct {
	key        string
	claimType  models.ClaimType
	polarity   models.Polarity
	confidence float64
	pattern    *regexp.Regexp

	keyFromMatch      bool // key carries the matched standard number (ISO family)
	numericFromMatch  bool // first capture group parses into numeric metadata (unit %)
	polarityFromMatch bool // polarity depends on negated vs affirmative phrasing
}

// negatedSellShare distinguishes "we do not sell" phrasing from the
// affirmative "we sell/share your data" form of the same claim key.
var negatedSellShare = regexp.MustCompile(`(?i)\b(?:do\s+not|don'?t|never|will\s+not|won'?t)\s+(?:sell|share)\b`)

// catalogue is scanned in order; output order follows first match.
var catalogue = []matcher{
	{
		key:        "SOC2_TYPE_II",
		claimType:  models.ClaimTypeCompliance,
		polarity:   models.PolarityNeutral,
		confidence: 0.95,
		pattern:    regexp.MustCompile(`(?i)\bSOC\s*[12](?:\s*Type\s*(?:I{1,2}|[12]))?\b`),
	},
	{
		claimType:    models.ClaimTypeCompliance,
		polarity:     models.PolarityNeutral,
		confidence:   0.95,
		pattern:      regexp.MustCompile(`(?i)\bISO(?:/IEC)?[\s-]*(27001|27017|27018)\b`),
		keyFromMatch: true,
	},
	{
		key:        "HIPAA",
		claimType:  models.ClaimTypeCompliance,
		polarity:   models.PolarityNeutral,
		confidence: 0.9,
		pattern:    regexp.MustCompile(`(?i)\bHIPAA\b`),
	},
	{
		key:        "GDPR",
		claimType:  models.ClaimTypeCompliance,
		polarity:   models.PolarityNeutral,
		confidence: 0.9,
		pattern:    regexp.MustCompile(`(?i)\bGDPR\b`),
	},
	{
		key:        "PCI_DSS",
		claimType:  models.ClaimTypeCompliance,
		polarity:   models.PolarityNeutral,
		confidence: 0.9,
		pattern:    regexp.MustCompile(`(?i)\bPCI[\s-]?DSS\b`),
	},
	{
		key:        "CCPA",
		claimType:  models.ClaimTypeCompliance,
		polarity:   models.PolarityNeutral,
		confidence: 0.9,
		pattern:    regexp.MustCompile(`(?i)\bCCPA\b`),
	},
	{
		key:        "FEDRAMP",
		claimType:  models.ClaimTypeCompliance,
		polarity:   models.PolarityNeutral,
		confidence: 0.9,
		pattern:    regexp.MustCompile(`(?i)\bFedRAMP\b`),
	},
	{
		key:        "ENCRYPTION",
		claimType:  models.ClaimTypeSecurity,
		polarity:   models.PolarityNeutral,
		confidence: 0.85,
		pattern:    regexp.MustCompile(`(?i)\b(?:AES[-\s]?(?:128|192|256)|TLS\s*1\.\d|SSL|encrypt(?:s|ed|ion)?)\b`),
	},
	{
		key:        "DATA_PROTECTION",
		claimType:  models.ClaimTypePrivacy,
		polarity:   models.PolarityNeutral,
		confidence: 0.75,
		pattern:    regexp.MustCompile(`(?i)\b(?:protect|secure|safeguard)(?:s|ed|ing)?\b[^.!?]{0,60}?\b(?:data|information|privacy)\b`),
	},
	{
		key:        "DO_NOT_SELL",
		claimType:  models.ClaimTypePrivacy,
		polarity:   models.PolarityNegative,
		confidence: 0.85,
		// Matches both the negated promise and the affirmative or
		// hedged forms, so a weakened page still yields the key and
		// the detector can compare versions.
		pattern:           regexp.MustCompile(`(?i)(?:\b(?:do\s+not|don'?t|never|will\s+not|won'?t|may|might|could)\s+(?:sell|share)\b|\b(?:sell|share)\s+(?:\w+\s+){0,2}?(?:data|information)\b|\bshare\b[^.!?]{0,30}?\bwith\s+third\b)`),
		polarityFromMatch: true,
	},
	{
		key:              "UPTIME",
		claimType:        models.ClaimTypeSLA,
		polarity:         models.PolarityNeutral,
		confidence:       0.9,
		pattern:          regexp.MustCompile(`(?i)(?:(\d{2,3}(?:\.\d+)?)\s*%\s*(?:uptime|availability|sla)\b|\b(?:uptime|availability|sla)\b[^.!?]{0,30}?(\d{2,3}(?:\.\d+)?)\s*%)`),
		numericFromMatch: true,
	},
	{
		key:        "BACKUP",
		claimType:  models.ClaimTypeSecurity,
		polarity:   models.PolarityNeutral,
		confidence: 0.75,
		pattern:    regexp.MustCompile(`(?i)\b(?:backups?|redundant|redundancy|replicat(?:e|es|ed|ion))\b`),
	},
	{
		key:        "AUDIT",
		claimType:  models.ClaimTypeCompliance,
		polarity:   models.PolarityNeutral,
		confidence: 0.8,
		pattern:    regexp.MustCompile(`(?i)\baudit(?:ed|s|ing)?\b`),
	},
	{
		key:        "PENETRATION_TESTING",
		claimType:  models.ClaimTypeSecurity,
		polarity:   models.PolarityNeutral,
		confidence: 0.85,
		pattern:    regexp.MustCompile(`(?i)\b(?:pen(?:etration)?\s+test(?:s|ing)?|security\s+test(?:s|ing)?)\b`),
	},
	{
		key:        "MFA",
		claimType:  models.ClaimTypeSecurity,
		polarity:   models.PolarityNeutral,
		confidence: 0.9,
		pattern:    regexp.MustCompile(`(?i)\b(?:two[-\s]?factor|multi[-\s]?factor|2FA|MFA)\b`),
	},
}
