package companies

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/fides/internal/common"
	"github.com/ternarybob/fides/internal/interfaces"
	"github.com/ternarybob/fides/internal/models"
)

// Service manages monitored companies: creation with derived seed
// targets, cascade delete, and crawl launches. It implements
// interfaces.CrawlLauncher for the scheduler and the API.
type Service struct {
	storage interfaces.StorageManager
	queue   interfaces.QueueManager
	logger  arbor.ILogger
}

// NewService creates a new company service
func NewService(storage interfaces.StorageManager, queue interfaces.QueueManager, logger arbor.ILogger) *Service {
	return &Service{
		storage: storage,
		queue:   queue,
		logger:  logger,
	}
}

// CreateCompanyInput is the validated request body for company
// creation. An empty category list enables every category.
type CreateCompanyInput struct {
	Name       string            `json:"name" validate:"required,max=200"`
	Domain     string            `json:"domain" validate:"required,max=300"`
	Categories []models.Category `json:"categories" validate:"omitempty,dive,oneof=security privacy sla pricing"`
}

// Validate validates the input using go-playground/validator.
func (in *CreateCompanyInput) Validate() error {
	validate := validator.New()
	return validate.Struct(in)
}

// CreateCompany validates the input, persists the company with its
// derived seed targets, and enqueues an initial crawl. The initial
// crawl is best effort; the next scheduled cycle covers a company
// whose launch failed.
func (s *Service) CreateCompany(ctx context.Context, userID string, input *CreateCompanyInput) (*models.Company, []*models.CrawlTarget, error) {
	if err := input.Validate(); err != nil {
		return nil, nil, fmt.Errorf("company validation failed: %w", err)
	}

	if _, err := s.storage.Users().GetUser(ctx, userID); err != nil {
		return nil, nil, fmt.Errorf("owner lookup failed: %w", err)
	}

	now := time.Now().UTC()
	company := &models.Company{
		ID:         common.NewCompanyID(),
		Name:       strings.TrimSpace(input.Name),
		Domain:     strings.TrimSpace(input.Domain),
		Categories: normalizeCategories(input.Categories),
		RiskScore:  0,
		UserID:     userID,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if err := s.storage.Companies().SaveCompany(ctx, company); err != nil {
		return nil, nil, fmt.Errorf("failed to save company: %w", err)
	}

	targets, err := s.createSeedTargets(ctx, company)
	if err != nil {
		return nil, nil, err
	}

	s.logger.Info().
		Str("company_id", company.ID).
		Str("name", company.Name).
		Str("domain", company.Domain).
		Int("seed_targets", len(targets)).
		Msg("Company created")

	if _, err := s.LaunchCrawl(ctx, company.ID); err != nil {
		s.logger.Warn().
			Err(err).
			Str("company_id", company.ID).
			Msg("Initial crawl launch failed")
	}

	return company, targets, nil
}

// createSeedTargets derives and persists the seed URLs for a company.
func (s *Service) createSeedTargets(ctx context.Context, company *models.Company) ([]*models.CrawlTarget, error) {
	now := time.Now().UTC()

	var targets []*models.CrawlTarget
	for _, seedURL := range common.DeriveSeedURLs(company.Domain, company.Categories) {
		target := &models.CrawlTarget{
			ID:        common.NewTargetID(),
			CompanyID: company.ID,
			URL:       seedURL,
			Kind:      models.TargetKindSeed,
			CreatedAt: now,
		}
		if err := s.storage.Targets().SaveTarget(ctx, target); err != nil {
			return nil, fmt.Errorf("failed to save seed target %s: %w", seedURL, err)
		}
		targets = append(targets, target)
	}
	return targets, nil
}

// GetCompany retrieves a company by ID
func (s *Service) GetCompany(ctx context.Context, id string) (*models.Company, error) {
	company, err := s.storage.Companies().GetCompany(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get company: %w", err)
	}
	return company, nil
}

// ListCompanies retrieves the companies owned by a user
func (s *Service) ListCompanies(ctx context.Context, userID string) ([]*models.Company, error) {
	companies, err := s.storage.Companies().ListCompanies(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list companies: %w", err)
	}
	return companies, nil
}

// DeleteCompany removes a company and cascades to its crawl targets.
// Claims, versions, events and evidence are retained for audit.
func (s *Service) DeleteCompany(ctx context.Context, id string) error {
	company, err := s.storage.Companies().GetCompany(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to get company: %w", err)
	}

	removed, err := s.storage.Targets().DeleteTargetsByCompany(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to delete crawl targets: %w", err)
	}

	if err := s.storage.Companies().DeleteCompany(ctx, id); err != nil {
		return fmt.Errorf("failed to delete company: %w", err)
	}

	s.logger.Info().
		Str("company_id", id).
		Str("name", company.Name).
		Int("targets_removed", removed).
		Msg("Company deleted")
	return nil
}

// ClaimWithVersions pairs a claim summary row with its version history.
type ClaimWithVersions struct {
	models.Claim
	Versions []*models.ClaimVersion `json:"versions,omitempty"`
}

// ListClaims returns a company's claim rows, optionally hydrated with
// their full version history.
func (s *Service) ListClaims(ctx context.Context, companyID string, includeVersions bool) ([]*ClaimWithVersions, error) {
	if _, err := s.storage.Companies().GetCompany(ctx, companyID); err != nil {
		return nil, fmt.Errorf("failed to get company: %w", err)
	}

	claims, err := s.storage.Claims().ListClaimsByCompany(ctx, companyID)
	if err != nil {
		return nil, fmt.Errorf("failed to list claims: %w", err)
	}

	result := make([]*ClaimWithVersions, 0, len(claims))
	for _, claim := range claims {
		row := &ClaimWithVersions{Claim: *claim}
		if includeVersions {
			versions, err := s.storage.Claims().ListVersionsByClaim(ctx, claim.ID)
			if err != nil {
				return nil, fmt.Errorf("failed to list claim versions: %w", err)
			}
			row.Versions = versions
		}
		result = append(result, row)
	}
	return result, nil
}

// ListEvidence returns a company's evidence rows.
func (s *Service) ListEvidence(ctx context.Context, companyID string) ([]*models.Evidence, error) {
	if _, err := s.storage.Companies().GetCompany(ctx, companyID); err != nil {
		return nil, fmt.Errorf("failed to get company: %w", err)
	}

	evidence, err := s.storage.Evidence().ListEvidenceByCompany(ctx, companyID)
	if err != nil {
		return nil, fmt.Errorf("failed to list evidence: %w", err)
	}
	return evidence, nil
}

// LaunchCrawl opens a crawl run and enqueues a crawl_target job per
// target, covering one company or every company when companyID is
// empty. A launch with zero targets completes immediately.
func (s *Service) LaunchCrawl(ctx context.Context, companyID string) (*models.CrawlRun, error) {
	var targets []*models.CrawlTarget
	var err error

	if companyID != "" {
		if _, err = s.storage.Companies().GetCompany(ctx, companyID); err != nil {
			return nil, fmt.Errorf("failed to get company: %w", err)
		}
		targets, err = s.storage.Targets().ListTargetsByCompany(ctx, companyID)
	} else {
		targets, err = s.storage.Targets().ListAllTargets(ctx)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list crawl targets: %w", err)
	}

	now := time.Now().UTC()
	run := &models.CrawlRun{
		ID:          common.NewRunID(),
		CompanyID:   companyID,
		Status:      models.RunStatusRunning,
		TargetCount: len(targets),
		StartedAt:   now,
	}
	if len(targets) == 0 {
		run.Status = models.RunStatusCompleted
		run.FinishedAt = &now
	}
	if err := s.storage.Runs().SaveRun(ctx, run); err != nil {
		return nil, fmt.Errorf("failed to open crawl run: %w", err)
	}

	enqueued := 0
	for _, target := range targets {
		payload := models.CrawlTargetPayload{
			CompanyID: target.CompanyID,
			TargetID:  target.ID,
			URL:       target.URL,
			RunID:     run.ID,
		}
		key := models.CrawlJobKey(target.CompanyID, target.ID)
		if _, err := s.queue.Enqueue(ctx, models.QueueCrawlTarget, payload, key, models.PriorityCrawl); err != nil {
			s.logger.Warn().
				Err(err).
				Str("target_id", target.ID).
				Str("url", target.URL).
				Msg("Failed to enqueue crawl target")

			// No worker will ever report this target, so fold the
			// failure in here or the run would never close.
			progress := models.RunProgress{Pages: 1, Error: fmt.Sprintf("enqueue %s: %v", target.URL, err)}
			if updated, perr := s.storage.Runs().RecordProgress(ctx, run.ID, progress); perr == nil {
				run = updated
			}
			continue
		}
		enqueued++
	}

	s.logger.Info().
		Str("run_id", run.ID).
		Str("company_id", companyID).
		Int("targets", run.TargetCount).
		Int("enqueued", enqueued).
		Msg("Crawl run opened")
	return run, nil
}

// normalizeCategories dedupes the requested categories preserving
// order. An empty request enables every category.
func normalizeCategories(in []models.Category) []models.Category {
	if len(in) == 0 {
		return append([]models.Category(nil), models.AllCategories...)
	}

	seen := make(map[models.Category]struct{}, len(in))
	var out []models.Category
	for _, c := range in {
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	return out
}
