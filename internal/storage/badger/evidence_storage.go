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

// EvidenceStorage implements the EvidenceStorage interface for Badger.
// Evidence rows are keyed by companyID|pdfURL; CreateEvidence relies
// on Insert's key-exists failure for race-safe fan-out dedup.
type EvidenceStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewEvidenceStorage creates a new EvidenceStorage instance
func NewEvidenceStorage(db *BadgerDB, logger arbor.ILogger) interfaces.EvidenceStorage {
	return &EvidenceStorage{
		db:     db,
		logger: logger,
	}
}

func evidenceKey(companyID, pdfURL string) string {
	return companyID + "|" + pdfURL
}

func (s *EvidenceStorage) CreateEvidence(ctx context.Context, evidence *models.Evidence) (*models.Evidence, bool, error) {
	if evidence.ID == "" {
		return nil, false, fmt.Errorf("evidence ID is required")
	}
	if evidence.CompanyID == "" || evidence.PDFURL == "" {
		return nil, false, fmt.Errorf("evidence company ID and PDF URL are required")
	}

	now := time.Now()
	if evidence.CreatedAt.IsZero() {
		evidence.CreatedAt = now
	}
	evidence.UpdatedAt = now

	key := evidenceKey(evidence.CompanyID, evidence.PDFURL)
	err := s.db.Store().Insert(key, evidence)
	if err == nil {
		return evidence, true, nil
	}
	if err != badgerhold.ErrKeyExists {
		return nil, false, fmt.Errorf("failed to create evidence: %w", err)
	}

	var existing models.Evidence
	if err := s.db.Store().Get(key, &existing); err != nil {
		return nil, false, fmt.Errorf("failed to load existing evidence: %w", err)
	}
	return &existing, false, nil
}

func (s *EvidenceStorage) SaveEvidence(ctx context.Context, evidence *models.Evidence) error {
	if evidence.ID == "" {
		return fmt.Errorf("evidence ID is required")
	}
	evidence.UpdatedAt = time.Now()

	key := evidenceKey(evidence.CompanyID, evidence.PDFURL)
	if err := s.db.Store().Upsert(key, evidence); err != nil {
		return fmt.Errorf("failed to save evidence: %w", err)
	}
	return nil
}

func (s *EvidenceStorage) GetEvidenceByID(ctx context.Context, id string) (*models.Evidence, error) {
	var rows []models.Evidence
	err := s.db.Store().Find(&rows, badgerhold.Where("ID").Eq(id))
	if err != nil {
		return nil, fmt.Errorf("failed to find evidence: %w", err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("evidence %s: %w", id, models.ErrNotFound)
	}
	return &rows[0], nil
}

func (s *EvidenceStorage) ListEvidenceByCompany(ctx context.Context, companyID string) ([]*models.Evidence, error) {
	var rows []models.Evidence
	err := s.db.Store().Find(&rows, badgerhold.Where("CompanyID").Eq(companyID).SortBy("CreatedAt"))
	if err != nil {
		return nil, fmt.Errorf("failed to list evidence: %w", err)
	}

	result := make([]*models.Evidence, len(rows))
	for i := range rows {
		result[i] = &rows[i]
	}
	return result, nil
}

func (s *EvidenceStorage) CountEvidence(ctx context.Context) (int, error) {
	count, err := s.db.Store().Count(&models.Evidence{}, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to count evidence: %w", err)
	}
	return int(count), nil
}
