package extract

import (
	"strings"
	"testing"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/fides/internal/models"
)

const baselinePage = "We are SOC 2 Type II compliant. We guarantee 99.99% uptime. We do not sell customer data."

func testExtractor() *Extractor {
	return NewExtractor(arbor.NewLogger())
}

func claimByKey(t *testing.T, claims []models.ExtractedClaim, key string) models.ExtractedClaim {
	t.Helper()
	for _, c := range claims {
		if c.Key == key {
			return c
		}
	}
	t.Fatalf("Claim %s not extracted; got %d claims", key, len(claims))
	return models.ExtractedClaim{}
}

func TestExtractBaselinePage(t *testing.T) {
	claims := testExtractor().Extract(baselinePage, "https://example.com/security")

	if len(claims) != 3 {
		keys := make([]string, 0, len(claims))
		for _, c := range claims {
			keys = append(keys, c.Key)
		}
		t.Fatalf("Extracted %d claims (%v), want 3", len(claims), keys)
	}

	soc := claimByKey(t, claims, "SOC2_TYPE_II")
	if soc.ClaimType != models.ClaimTypeCompliance {
		t.Errorf("SOC2 claim type = %s, want compliance", soc.ClaimType)
	}
	if soc.Confidence != 0.95 {
		t.Errorf("SOC2 confidence = %v, want 0.95", soc.Confidence)
	}
	if soc.Polarity != models.PolarityNeutral {
		t.Errorf("SOC2 polarity = %s, want neutral", soc.Polarity)
	}
	if soc.Snippet != "We are SOC 2 Type II compliant." {
		t.Errorf("SOC2 snippet = %q, want the matching sentence", soc.Snippet)
	}

	uptime := claimByKey(t, claims, "UPTIME")
	if uptime.ClaimType != models.ClaimTypeSLA {
		t.Errorf("UPTIME claim type = %s, want sla", uptime.ClaimType)
	}
	if uptime.Meta == nil {
		t.Fatal("UPTIME claim missing numeric metadata")
	}
	if uptime.Meta.Value != 99.99 || uptime.Meta.Unit != "%" {
		t.Errorf("UPTIME meta = %+v, want value 99.99 unit %%", uptime.Meta)
	}

	sell := claimByKey(t, claims, "DO_NOT_SELL")
	if sell.ClaimType != models.ClaimTypePrivacy {
		t.Errorf("DO_NOT_SELL claim type = %s, want privacy", sell.ClaimType)
	}
	if sell.Polarity != models.PolarityNegative {
		t.Errorf("DO_NOT_SELL polarity = %s, want negative", sell.Polarity)
	}
	if sell.Confidence != 0.85 {
		t.Errorf("DO_NOT_SELL confidence = %v, want 0.85", sell.Confidence)
	}
}

func TestExtractISOFamily(t *testing.T) {
	text := "We maintain ISO 27001 certification for security management. Our cloud controls follow ISO 27017 guidance."
	claims := testExtractor().Extract(text, "https://example.com/compliance")

	iso1 := claimByKey(t, claims, "ISO_27001")
	iso2 := claimByKey(t, claims, "ISO_27017")

	if iso1.Confidence != 0.95 || iso2.Confidence != 0.95 {
		t.Errorf("ISO confidences = %v, %v, want 0.95", iso1.Confidence, iso2.Confidence)
	}
	if !strings.Contains(iso1.Snippet, "27001") {
		t.Errorf("ISO_27001 snippet %q does not mention its standard", iso1.Snippet)
	}
	if !strings.Contains(iso2.Snippet, "27017") {
		t.Errorf("ISO_27017 snippet %q does not mention its standard", iso2.Snippet)
	}
}

func TestExtractDeduplicatesByKey(t *testing.T) {
	text := "SOC 2 Type II certified since 2019. Our SOC 2 Type II report is available on request."
	claims := testExtractor().Extract(text, "https://example.com/trust")

	count := 0
	for _, c := range claims {
		if c.Key == "SOC2_TYPE_II" {
			count++
		}
	}
	if count != 1 {
		t.Errorf("SOC2_TYPE_II extracted %d times, want 1", count)
	}
}

func TestExtractWeakenedPhraseStillYieldsKey(t *testing.T) {
	claims := testExtractor().Extract("We may share data with trusted partners.", "https://example.com/privacy")

	sell := claimByKey(t, claims, "DO_NOT_SELL")
	if sell.Polarity != models.PolarityPositive {
		t.Errorf("Hedged phrasing polarity = %s, want positive", sell.Polarity)
	}
}

func TestExtractAffirmativeSellFlipsPolarity(t *testing.T) {
	claims := testExtractor().Extract("We sell aggregated data to advertising partners for revenue.", "https://example.com/privacy")

	sell := claimByKey(t, claims, "DO_NOT_SELL")
	if sell.Polarity != models.PolarityPositive {
		t.Errorf("Affirmative phrasing polarity = %s, want positive", sell.Polarity)
	}
}

func TestExtractUptimeVariants(t *testing.T) {
	cases := []struct {
		text string
		want float64
	}{
		{"We guarantee 99.99% uptime for all plans.", 99.99},
		{"Our SLA commits to 99.9% availability every month.", 99.9},
		{"Historical uptime has stayed above 99.95% since launch.", 99.95},
	}
	for _, tc := range cases {
		claims := testExtractor().Extract(tc.text, "https://example.com/sla")
		uptime := claimByKey(t, claims, "UPTIME")
		if uptime.Meta == nil {
			t.Errorf("%q: missing numeric metadata", tc.text)
			continue
		}
		if uptime.Meta.Value != tc.want {
			t.Errorf("%q: value = %v, want %v", tc.text, uptime.Meta.Value, tc.want)
		}
	}
}

func TestExtractCaseInsensitive(t *testing.T) {
	claims := testExtractor().Extract("our platform is gdpr ready and soc 2 type ii audited across all regions.", "https://example.com")

	claimByKey(t, claims, "GDPR")
	claimByKey(t, claims, "SOC2_TYPE_II")
	claimByKey(t, claims, "AUDIT")
}

func TestExtractSecurityCatalogue(t *testing.T) {
	text := "All traffic uses TLS 1.3 and data is encrypted at rest with AES-256. " +
		"We run annual penetration testing and enforce MFA for every employee. " +
		"Nightly backups replicate across three regions."
	claims := testExtractor().Extract(text, "https://example.com/security")

	for _, key := range []string{"ENCRYPTION", "PENETRATION_TESTING", "MFA", "BACKUP"} {
		c := claimByKey(t, claims, key)
		if c.ClaimType != models.ClaimTypeSecurity {
			t.Errorf("%s claim type = %s, want security", key, c.ClaimType)
		}
	}
}

func TestExtractRegulatoryAndPrivacyKeys(t *testing.T) {
	cases := []struct {
		text      string
		key       string
		claimType models.ClaimType
	}{
		{"Our platform is HIPAA compliant for healthcare customers.", "HIPAA", models.ClaimTypeCompliance},
		{"Payments are processed in our PCI-DSS certified environment.", "PCI_DSS", models.ClaimTypeCompliance},
		{"California residents have rights under the CCPA.", "CCPA", models.ClaimTypeCompliance},
		{"Our government cloud is FedRAMP authorized at the moderate level.", "FEDRAMP", models.ClaimTypeCompliance},
		{"Personal data in the cloud is handled per ISO 27018.", "ISO_27018", models.ClaimTypeCompliance},
		{"We safeguard your information with layered controls.", "DATA_PROTECTION", models.ClaimTypePrivacy},
	}
	for _, tc := range cases {
		claims := testExtractor().Extract(tc.text, "https://example.com/trust")
		c := claimByKey(t, claims, tc.key)
		if c.ClaimType != tc.claimType {
			t.Errorf("%s claim type = %s, want %s", tc.key, c.ClaimType, tc.claimType)
		}
		if c.Snippet == "" {
			t.Errorf("%s missing snippet", tc.key)
		}
	}
}

func TestExtractEmptyText(t *testing.T) {
	if claims := testExtractor().Extract("   \n\t  ", "https://example.com"); claims != nil {
		t.Errorf("Extract on blank text = %v, want nil", claims)
	}
}

func TestExtractWindowSnippetTrimsLeadingFragment(t *testing.T) {
	// A long unbroken run before the match forces the window path, and
	// the window must not open mid-sentence when a boundary is near.
	filler := strings.Repeat("word ", 60)
	text := "Short opening sentence here. " + filler + "we enforce MFA on every account " + filler
	claims := testExtractor().Extract(text, "https://example.com")

	mfa := claimByKey(t, claims, "MFA")
	if strings.HasPrefix(mfa.Snippet, " ") || mfa.Snippet == "" {
		t.Errorf("Snippet not trimmed: %q", mfa.Snippet)
	}
	if len(mfa.Snippet) > 2*150+len("MFA")+10 {
		t.Errorf("Snippet longer than the window allows: %d chars", len(mfa.Snippet))
	}
}

func TestSplitSentencesBounds(t *testing.T) {
	text := "Tiny. This sentence is comfortably inside the accepted length range. X" +
		strings.Repeat("x", 600) + ". Final sentence closes the document politely."
	sentences := splitSentences(text)

	if len(sentences) != 2 {
		t.Fatalf("Kept %d sentences, want 2 (short and overlong fragments dropped)", len(sentences))
	}
	for _, s := range sentences {
		if len(s) < 20 || len(s) > 500 {
			t.Errorf("Sentence outside 20-500 bounds (%d): %q", len(s), s[:min(len(s), 40)])
		}
	}
}
