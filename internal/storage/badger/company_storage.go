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

// CompanyStorage implements the CompanyStorage interface for Badger
type CompanyStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewCompanyStorage creates a new CompanyStorage instance
func NewCompanyStorage(db *BadgerDB, logger arbor.ILogger) interfaces.CompanyStorage {
	return &CompanyStorage{
		db:     db,
		logger: logger,
	}
}

func (s *CompanyStorage) SaveCompany(ctx context.Context, company *models.Company) error {
	if company.ID == "" {
		return fmt.Errorf("company ID is required")
	}

	now := time.Now()
	if company.CreatedAt.IsZero() {
		company.CreatedAt = now
	}
	company.UpdatedAt = now

	if err := s.db.Store().Upsert(company.ID, company); err != nil {
		return fmt.Errorf("failed to save company: %w", err)
	}
	return nil
}

func (s *CompanyStorage) GetCompany(ctx context.Context, id string) (*models.Company, error) {
	var company models.Company
	if err := s.db.Store().Get(id, &company); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, fmt.Errorf("company %s: %w", id, models.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get company: %w", err)
	}
	return &company, nil
}

func (s *CompanyStorage) ListCompanies(ctx context.Context, userID string) ([]*models.Company, error) {
	var companies []models.Company
	err := s.db.Store().Find(&companies, badgerhold.Where("UserID").Eq(userID).SortBy("CreatedAt"))
	if err != nil {
		return nil, fmt.Errorf("failed to list companies: %w", err)
	}

	result := make([]*models.Company, len(companies))
	for i := range companies {
		result[i] = &companies[i]
	}
	return result, nil
}

func (s *CompanyStorage) ListAllCompanies(ctx context.Context) ([]*models.Company, error) {
	var companies []models.Company
	err := s.db.Store().Find(&companies, badgerhold.Where("ID").Ne("").SortBy("CreatedAt"))
	if err != nil {
		return nil, fmt.Errorf("failed to list companies: %w", err)
	}

	result := make([]*models.Company, len(companies))
	for i := range companies {
		result[i] = &companies[i]
	}
	return result, nil
}

func (s *CompanyStorage) DeleteCompany(ctx context.Context, id string) error {
	if err := s.db.Store().Delete(id, &models.Company{}); err != nil {
		if err == badgerhold.ErrNotFound {
			return fmt.Errorf("company %s: %w", id, models.ErrNotFound)
		}
		return fmt.Errorf("failed to delete company: %w", err)
	}
	return nil
}

func (s *CompanyStorage) CountCompanies(ctx context.Context) (int, error) {
	count, err := s.db.Store().Count(&models.Company{}, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to count companies: %w", err)
	}
	return int(count), nil
}
