package badger

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/ternarybob/fides/internal/interfaces"
	"github.com/ternarybob/fides/internal/models"
)

// ClaimStorage implements the ClaimStorage interface for Badger.
// Claims are keyed by companyID|claimType|key so the summary row for
// one normalized claim can never be duplicated. Versions are append
// only and keyed by their own ID.
type ClaimStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewClaimStorage creates a new ClaimStorage instance
func NewClaimStorage(db *BadgerDB, logger arbor.ILogger) interfaces.ClaimStorage {
	return &ClaimStorage{
		db:     db,
		logger: logger,
	}
}

func claimKey(companyID string, claimType models.ClaimType, key string) string {
	return companyID + "|" + string(claimType) + "|" + key
}

func (s *ClaimStorage) SaveClaim(ctx context.Context, claim *models.Claim) error {
	if claim.ID == "" {
		return fmt.Errorf("claim ID is required")
	}
	if claim.CompanyID == "" || claim.ClaimType == "" || claim.Key == "" {
		return fmt.Errorf("claim company ID, type, and key are required")
	}

	if err := s.db.Store().Upsert(claimKey(claim.CompanyID, claim.ClaimType, claim.Key), claim); err != nil {
		return fmt.Errorf("failed to save claim: %w", err)
	}
	return nil
}

func (s *ClaimStorage) GetClaim(ctx context.Context, companyID string, claimType models.ClaimType, key string) (*models.Claim, error) {
	var claim models.Claim
	if err := s.db.Store().Get(claimKey(companyID, claimType, key), &claim); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, fmt.Errorf("claim %s/%s: %w", claimType, key, models.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get claim: %w", err)
	}
	return &claim, nil
}

func (s *ClaimStorage) GetClaimByID(ctx context.Context, id string) (*models.Claim, error) {
	var claims []models.Claim
	err := s.db.Store().Find(&claims, badgerhold.Where("ID").Eq(id))
	if err != nil {
		return nil, fmt.Errorf("failed to find claim: %w", err)
	}
	if len(claims) == 0 {
		return nil, fmt.Errorf("claim %s: %w", id, models.ErrNotFound)
	}
	return &claims[0], nil
}

func (s *ClaimStorage) ListClaimsByCompany(ctx context.Context, companyID string) ([]*models.Claim, error) {
	var claims []models.Claim
	err := s.db.Store().Find(&claims, badgerhold.Where("CompanyID").Eq(companyID).SortBy("FirstSeenAt"))
	if err != nil {
		return nil, fmt.Errorf("failed to list claims: %w", err)
	}

	result := make([]*models.Claim, len(claims))
	for i := range claims {
		result[i] = &claims[i]
	}
	return result, nil
}

func (s *ClaimStorage) ListActiveClaimsBySource(ctx context.Context, companyID, sourceURL string) ([]*models.Claim, error) {
	var claims []models.Claim
	err := s.db.Store().Find(&claims, badgerhold.Where("CompanyID").Eq(companyID).
		And("Status").Eq(models.ClaimStatusActive).
		And("SourceURL").Eq(sourceURL))
	if err != nil {
		return nil, fmt.Errorf("failed to list active claims: %w", err)
	}

	result := make([]*models.Claim, len(claims))
	for i := range claims {
		result[i] = &claims[i]
	}
	return result, nil
}

func (s *ClaimStorage) CountClaims(ctx context.Context) (int, error) {
	count, err := s.db.Store().Count(&models.Claim{}, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to count claims: %w", err)
	}
	return int(count), nil
}

func (s *ClaimStorage) SaveVersion(ctx context.Context, version *models.ClaimVersion) error {
	if version.ID == "" {
		return fmt.Errorf("version ID is required")
	}
	if version.ClaimID == "" {
		return fmt.Errorf("version claim ID is required")
	}

	if err := s.db.Store().Insert(version.ID, version); err != nil {
		return fmt.Errorf("failed to save claim version: %w", err)
	}
	return nil
}

func (s *ClaimStorage) ListVersionsByClaim(ctx context.Context, claimID string) ([]*models.ClaimVersion, error) {
	var versions []models.ClaimVersion
	err := s.db.Store().Find(&versions, badgerhold.Where("ClaimID").Eq(claimID).SortBy("SeenAt"))
	if err != nil {
		return nil, fmt.Errorf("failed to list claim versions: %w", err)
	}

	result := make([]*models.ClaimVersion, len(versions))
	for i := range versions {
		result[i] = &versions[i]
	}
	return result, nil
}

func (s *ClaimStorage) GetLatestVersion(ctx context.Context, claimID string) (*models.ClaimVersion, error) {
	var versions []models.ClaimVersion
	err := s.db.Store().Find(&versions, badgerhold.Where("ClaimID").Eq(claimID).SortBy("SeenAt").Reverse().Limit(1))
	if err != nil {
		return nil, fmt.Errorf("failed to get latest claim version: %w", err)
	}
	if len(versions) == 0 {
		return nil, fmt.Errorf("versions for claim %s: %w", claimID, models.ErrNotFound)
	}
	return &versions[0], nil
}
