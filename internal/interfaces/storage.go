package interfaces

import (
	"context"
	"time"

	"github.com/ternarybob/fides/internal/models"
)

// CompanyStorage - persistence for monitored companies
type CompanyStorage interface {
	SaveCompany(ctx context.Context, company *models.Company) error
	GetCompany(ctx context.Context, id string) (*models.Company, error)
	ListCompanies(ctx context.Context, userID string) ([]*models.Company, error)
	ListAllCompanies(ctx context.Context) ([]*models.Company, error)
	DeleteCompany(ctx context.Context, id string) error
	CountCompanies(ctx context.Context) (int, error)
}

// TargetStorage - persistence for crawl targets. (company, URL) is unique.
type TargetStorage interface {
	SaveTarget(ctx context.Context, target *models.CrawlTarget) error
	GetTarget(ctx context.Context, companyID, url string) (*models.CrawlTarget, error)
	GetTargetByID(ctx context.Context, id string) (*models.CrawlTarget, error)
	ListTargetsByCompany(ctx context.Context, companyID string) ([]*models.CrawlTarget, error)
	ListAllTargets(ctx context.Context) ([]*models.CrawlTarget, error)
	DeleteTargetsByCompany(ctx context.Context, companyID string) (int, error)
	CountTargets(ctx context.Context) (int, error)
}

// ClaimStorage - persistence for claim summary rows and their
// append-only version history. (company, claim type, key) is unique.
type ClaimStorage interface {
	// Claim operations
	SaveClaim(ctx context.Context, claim *models.Claim) error
	GetClaim(ctx context.Context, companyID string, claimType models.ClaimType, key string) (*models.Claim, error)
	GetClaimByID(ctx context.Context, id string) (*models.Claim, error)
	ListClaimsByCompany(ctx context.Context, companyID string) ([]*models.Claim, error)
	ListActiveClaimsBySource(ctx context.Context, companyID, sourceURL string) ([]*models.Claim, error)
	CountClaims(ctx context.Context) (int, error)

	// Version operations
	SaveVersion(ctx context.Context, version *models.ClaimVersion) error
	ListVersionsByClaim(ctx context.Context, claimID string) ([]*models.ClaimVersion, error)
	GetLatestVersion(ctx context.Context, claimID string) (*models.ClaimVersion, error)
}

// EventFilter narrows event listings.
type EventFilter struct {
	CompanyID    string
	Severity     models.Severity
	Acknowledged *bool
	Limit        int
}

// EventStorage - persistence for append-only change events.
// Acknowledged and emailed-at are the only mutations after insert.
type EventStorage interface {
	SaveEvent(ctx context.Context, event *models.ChangeEvent) error
	GetEvent(ctx context.Context, id string) (*models.ChangeEvent, error)
	ListEvents(ctx context.Context, filter *EventFilter) ([]*models.ChangeEvent, error)
	SetAcknowledged(ctx context.Context, id string, acknowledged bool) error
	SetEmailedAt(ctx context.Context, id string, emailedAt time.Time) error
	CountEmailedSince(ctx context.Context, companyID string, since time.Time) (int, error)
	CountEvents(ctx context.Context) (int, error)
}

// RunStorage - persistence for crawl run bookkeeping.
type RunStorage interface {
	SaveRun(ctx context.Context, run *models.CrawlRun) error
	GetRun(ctx context.Context, id string) (*models.CrawlRun, error)
	ListRuns(ctx context.Context, limit int) ([]*models.CrawlRun, error)

	// RecordProgress atomically folds one target's results into the
	// run and closes it when every target has reported. Returns the
	// updated run.
	RecordProgress(ctx context.Context, runID string, progress models.RunProgress) (*models.CrawlRun, error)
}

// EvidenceStorage - persistence for PDF evidence rows.
// (company, PDF URL) is unique.
type EvidenceStorage interface {
	// CreateEvidence inserts a new row, or returns the existing row and
	// false when the (company, PDF URL) pair is already present.
	CreateEvidence(ctx context.Context, evidence *models.Evidence) (*models.Evidence, bool, error)
	SaveEvidence(ctx context.Context, evidence *models.Evidence) error
	GetEvidenceByID(ctx context.Context, id string) (*models.Evidence, error)
	ListEvidenceByCompany(ctx context.Context, companyID string) ([]*models.Evidence, error)
	CountEvidence(ctx context.Context) (int, error)
}

// UserStorage - persistence for owning users.
type UserStorage interface {
	SaveUser(ctx context.Context, user *models.User) error
	GetUser(ctx context.Context, id string) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
}

// LockStorage - store-backed leases for leader election. Acquire is
// atomic set-if-absent; a held lock expires after its TTL so a crashed
// holder cannot wedge scheduling.
type LockStorage interface {
	Acquire(ctx context.Context, name string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, name string) error
}

// StorageManager - composite interface for all storage operations
type StorageManager interface {
	Companies() CompanyStorage
	Targets() TargetStorage
	Claims() ClaimStorage
	Events() EventStorage
	Runs() RunStorage
	Evidence() EvidenceStorage
	Users() UserStorage
	Locks() LockStorage
	Close() error
}
