package badger

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/ternarybob/fides/internal/interfaces"
	"github.com/ternarybob/fides/internal/models"
)

// TargetStorage implements the TargetStorage interface for Badger.
// Targets are keyed by companyID|url so (company, URL) uniqueness is
// a property of the key, not a post-hoc check.
type TargetStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewTargetStorage creates a new TargetStorage instance
func NewTargetStorage(db *BadgerDB, logger arbor.ILogger) interfaces.TargetStorage {
	return &TargetStorage{
		db:     db,
		logger: logger,
	}
}

func targetKey(companyID, url string) string {
	return companyID + "|" + url
}

func (s *TargetStorage) SaveTarget(ctx context.Context, target *models.CrawlTarget) error {
	if target.ID == "" {
		return fmt.Errorf("target ID is required")
	}
	if target.CompanyID == "" || target.URL == "" {
		return fmt.Errorf("target company ID and URL are required")
	}

	if target.CreatedAt.IsZero() {
		target.CreatedAt = time.Now()
	}

	if err := s.db.Store().Upsert(targetKey(target.CompanyID, target.URL), target); err != nil {
		return fmt.Errorf("failed to save target: %w", err)
	}
	return nil
}

func (s *TargetStorage) GetTarget(ctx context.Context, companyID, url string) (*models.CrawlTarget, error) {
	var target models.CrawlTarget
	if err := s.db.Store().Get(targetKey(companyID, url), &target); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, fmt.Errorf("target %s for company %s: %w", url, companyID, models.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get target: %w", err)
	}
	return &target, nil
}

func (s *TargetStorage) GetTargetByID(ctx context.Context, id string) (*models.CrawlTarget, error) {
	var targets []models.CrawlTarget
	err := s.db.Store().Find(&targets, badgerhold.Where("ID").Eq(id))
	if err != nil {
		return nil, fmt.Errorf("failed to find target: %w", err)
	}
	if len(targets) == 0 {
		return nil, fmt.Errorf("target %s: %w", id, models.ErrNotFound)
	}
	return &targets[0], nil
}

func (s *TargetStorage) ListTargetsByCompany(ctx context.Context, companyID string) ([]*models.CrawlTarget, error) {
	var targets []models.CrawlTarget
	err := s.db.Store().Find(&targets, badgerhold.Where("CompanyID").Eq(companyID).SortBy("CreatedAt"))
	if err != nil {
		return nil, fmt.Errorf("failed to list targets: %w", err)
	}

	result := make([]*models.CrawlTarget, len(targets))
	for i := range targets {
		result[i] = &targets[i]
	}
	return result, nil
}

func (s *TargetStorage) ListAllTargets(ctx context.Context) ([]*models.CrawlTarget, error) {
	var targets []models.CrawlTarget
	err := s.db.Store().Find(&targets, badgerhold.Where("ID").Ne(""))
	if err != nil {
		return nil, fmt.Errorf("failed to list targets: %w", err)
	}

	result := make([]*models.CrawlTarget, len(targets))
	for i := range targets {
		result[i] = &targets[i]
	}
	return result, nil
}

func (s *TargetStorage) DeleteTargetsByCompany(ctx context.Context, companyID string) (int, error) {
	targets, err := s.ListTargetsByCompany(ctx, companyID)
	if err != nil {
		return 0, err
	}

	deleted := 0
	for _, target := range targets {
		if err := s.db.Store().Delete(targetKey(target.CompanyID, target.URL), &models.CrawlTarget{}); err != nil {
			if err == badgerhold.ErrNotFound {
				continue
			}
			return deleted, fmt.Errorf("failed to delete target %s: %w", target.URL, err)
		}
		deleted++
	}
	return deleted, nil
}

func (s *TargetStorage) CountTargets(ctx context.Context) (int, error) {
	count, err := s.db.Store().Count(&models.CrawlTarget{}, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to count targets: %w", err)
	}
	return int(count), nil
}
