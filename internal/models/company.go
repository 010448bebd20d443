package models

import "time"

// Category is a monitoring category a company can be enrolled in.
// Each category drives which seed paths are crawled.
type Category string

const (
	CategorySecurity Category = "security"
	CategoryPrivacy  Category = "privacy"
	CategorySLA      Category = "sla"
	CategoryPricing  Category = "pricing"
)

// AllCategories lists every valid category in derivation order.
var AllCategories = []Category{CategorySecurity, CategoryPrivacy, CategorySLA, CategoryPricing}

// ValidCategory reports whether c is a known category.
func ValidCategory(c Category) bool {
	switch c {
	case CategorySecurity, CategoryPrivacy, CategorySLA, CategoryPricing:
		return true
	}
	return false
}

// Company is a monitored vendor. The risk score is a cumulative
// triage heuristic in [0,100] raised by change events and never
// lowered by the detector.
type Company struct {
	ID         string     `json:"id"` // cmp_{uuid}
	Name       string     `json:"name"`
	Domain     string     `json:"domain"`
	Categories []Category `json:"categories"`
	RiskScore  int        `json:"risk_score"`
	UserID     string     `json:"user_id" badgerhold:"index"` // owning user

	LastCrawledAt *time.Time `json:"last_crawled_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// TargetKind distinguishes seed URLs derived at company creation from
// URLs discovered during crawling.
type TargetKind string

const (
	TargetKindSeed       TargetKind = "seed"
	TargetKindDiscovered TargetKind = "discovered"
)

// CrawlTarget is one URL watched for a company. (CompanyID, URL) is
// unique; the storage layer keys targets by that pair.
type CrawlTarget struct {
	ID        string     `json:"id" badgerhold:"index"` // tgt_{uuid}
	CompanyID string     `json:"company_id" badgerhold:"index"`
	URL       string     `json:"url"`
	Kind      TargetKind `json:"kind"`

	// LastDigest is the SHA-256 hex digest of the last fetched content.
	// Empty until the first successful crawl.
	LastDigest    string     `json:"last_digest,omitempty"`
	LastCrawledAt *time.Time `json:"last_crawled_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}
