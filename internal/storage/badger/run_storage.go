package badger

import (
	"context"
	"fmt"
	"time"

	badgerdb "github.com/dgraph-io/badger/v4"
	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/ternarybob/fides/internal/interfaces"
	"github.com/ternarybob/fides/internal/models"
)

// RunStorage implements the RunStorage interface for Badger
type RunStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewRunStorage creates a new RunStorage instance
func NewRunStorage(db *BadgerDB, logger arbor.ILogger) interfaces.RunStorage {
	return &RunStorage{
		db:     db,
		logger: logger,
	}
}

func (s *RunStorage) SaveRun(ctx context.Context, run *models.CrawlRun) error {
	if run.ID == "" {
		return fmt.Errorf("run ID is required")
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now()
	}

	if err := s.db.Store().Upsert(run.ID, run); err != nil {
		return fmt.Errorf("failed to save crawl run: %w", err)
	}
	return nil
}

func (s *RunStorage) GetRun(ctx context.Context, id string) (*models.CrawlRun, error) {
	var run models.CrawlRun
	if err := s.db.Store().Get(id, &run); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, fmt.Errorf("crawl run %s: %w", id, models.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get crawl run: %w", err)
	}
	return &run, nil
}

// RecordProgress folds one target's results into the run inside a
// single transaction, so concurrent workers never lose increments.
// The run closes once PagesProcessed reaches TargetCount: failed when
// any errors accumulated, completed otherwise.
func (s *RunStorage) RecordProgress(ctx context.Context, runID string, progress models.RunProgress) (*models.CrawlRun, error) {
	var run models.CrawlRun

	err := s.db.Store().Badger().Update(func(tx *badgerdb.Txn) error {
		if err := s.db.Store().TxGet(tx, runID, &run); err != nil {
			if err == badgerhold.ErrNotFound {
				return fmt.Errorf("crawl run %s: %w", runID, models.ErrNotFound)
			}
			return err
		}

		run.PagesProcessed += progress.Pages
		run.ClaimsExtracted += progress.Claims
		run.EventsCreated += progress.Events
		if progress.Error != "" {
			run.Errors = append(run.Errors, progress.Error)
		}

		if run.TargetCount > 0 && run.PagesProcessed >= run.TargetCount && run.FinishedAt == nil {
			now := time.Now().UTC()
			run.FinishedAt = &now
			// Per-target errors accumulate without failing the run;
			// only a run where every target errored counts as failed.
			if len(run.Errors) >= run.TargetCount {
				run.Status = models.RunStatusFailed
			} else {
				run.Status = models.RunStatusCompleted
			}
		}

		return s.db.Store().TxUpsert(tx, runID, &run)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to record run progress: %w", err)
	}

	if run.FinishedAt != nil {
		s.logger.Info().
			Str("run_id", runID).
			Str("status", string(run.Status)).
			Int("pages", run.PagesProcessed).
			Int("events", run.EventsCreated).
			Msg("Crawl run finished")
	}
	return &run, nil
}

func (s *RunStorage) ListRuns(ctx context.Context, limit int) ([]*models.CrawlRun, error) {
	query := badgerhold.Where("ID").Ne("").SortBy("StartedAt").Reverse()
	if limit > 0 {
		query = query.Limit(limit)
	}

	var runs []models.CrawlRun
	if err := s.db.Store().Find(&runs, query); err != nil {
		return nil, fmt.Errorf("failed to list crawl runs: %w", err)
	}

	result := make([]*models.CrawlRun, len(runs))
	for i := range runs {
		result[i] = &runs[i]
	}
	return result, nil
}
