// -----------------------------------------------------------------------
// Crawl worker - drains the crawl_target queue. Fetches one watched
// page, hands the text to the change detector, and folds the outcome
// into the owning crawl run.
// -----------------------------------------------------------------------

package crawlworker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/fides/internal/interfaces"
	"github.com/ternarybob/fides/internal/models"
	"github.com/ternarybob/fides/internal/services/detector"
)

// Worker processes crawl_target jobs.
type Worker struct {
	storage  interfaces.StorageManager
	fetcher  interfaces.Fetcher
	detector *detector.Service
	events   interfaces.EventService
	logger   arbor.ILogger
}

// NewWorker creates the crawl worker.
func NewWorker(
	storage interfaces.StorageManager,
	fetcher interfaces.Fetcher,
	detectorService *detector.Service,
	events interfaces.EventService,
	logger arbor.ILogger,
) *Worker {
	return &Worker{
		storage:  storage,
		fetcher:  fetcher,
		detector: detectorService,
		events:   events,
		logger:   logger,
	}
}

// HandleCrawlTarget processes one crawl_target job.
//
// A company or target that vanished after enqueue is logged and
// swallowed; the job must not churn through retries for a row that
// will never come back. Fetch and detection errors return to the
// queue's retry policy. Either way the owning crawl run hears about
// the terminal outcome exactly once.
func (w *Worker) HandleCrawlTarget(ctx context.Context, job *models.Job) error {
	var payload models.CrawlTargetPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("invalid crawl payload: %w", err)
	}

	start := time.Now()

	company, err := w.storage.Companies().GetCompany(ctx, payload.CompanyID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			w.logger.Warn().
				Str("company_id", payload.CompanyID).
				Str("job_id", job.ID).
				Msg("Company deleted after enqueue, dropping crawl job")
			w.recordProgress(ctx, payload.RunID, models.RunProgress{Pages: 1, Error: fmt.Sprintf("company %s deleted", payload.CompanyID)})
			return nil
		}
		return fmt.Errorf("failed to load company %s: %w", payload.CompanyID, err)
	}

	target, err := w.storage.Targets().GetTargetByID(ctx, payload.TargetID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			w.logger.Warn().
				Str("target_id", payload.TargetID).
				Str("job_id", job.ID).
				Msg("Target deleted after enqueue, dropping crawl job")
			w.recordProgress(ctx, payload.RunID, models.RunProgress{Pages: 1, Error: fmt.Sprintf("target %s deleted", payload.TargetID)})
			return nil
		}
		return fmt.Errorf("failed to load target %s: %w", payload.TargetID, err)
	}

	result, err := w.fetcher.Fetch(ctx, target.URL)
	if err != nil {
		return w.fail(ctx, job, &payload, target, fmt.Errorf("fetch failed: %w", err))
	}

	outcome, err := w.detector.ProcessContent(ctx, company, target, result.Content)
	if err != nil {
		return w.fail(ctx, job, &payload, target, fmt.Errorf("detection failed: %w", err))
	}

	w.recordProgress(ctx, payload.RunID, models.RunProgress{
		Pages:  1,
		Claims: outcome.ClaimsExtracted,
		Events: outcome.EventsCreated,
	})

	if w.events != nil {
		w.events.Publish(ctx, interfaces.Event{
			Type:    interfaces.EventCrawlTargetCompleted,
			Payload: payload,
		})
	}

	w.logger.Info().
		Str("company_id", company.ID).
		Str("url", target.URL).
		Bool("changed", outcome.Changed).
		Int("events", outcome.EventsCreated).
		Dur("duration", time.Since(start)).
		Msg("Crawl target processed")
	return nil
}

// fail routes an attempt error back to the queue. Only the final
// attempt reaches the crawl run, so each target counts once.
func (w *Worker) fail(ctx context.Context, job *models.Job, payload *models.CrawlTargetPayload, target *models.CrawlTarget, jobErr error) error {
	w.logger.Warn().
		Err(jobErr).
		Str("url", target.URL).
		Int("attempt", job.Attempts).
		Int("max_attempts", job.MaxAttempts).
		Msg("Crawl attempt failed")

	if job.Attempts >= job.MaxAttempts {
		w.recordProgress(ctx, payload.RunID, models.RunProgress{
			Pages: 1,
			Error: fmt.Sprintf("%s: %v", target.URL, jobErr),
		})
		if w.events != nil {
			w.events.Publish(ctx, interfaces.Event{
				Type:    interfaces.EventCrawlTargetFailed,
				Payload: *payload,
			})
		}
	}

	return jobErr
}

// recordProgress is best-effort: run bookkeeping must never fail a
// crawl that already did its real work.
func (w *Worker) recordProgress(ctx context.Context, runID string, progress models.RunProgress) {
	if runID == "" {
		return
	}
	if _, err := w.storage.Runs().RecordProgress(ctx, runID, progress); err != nil {
		w.logger.Warn().
			Err(err).
			Str("run_id", runID).
			Msg("Failed to record crawl run progress")
	}
}
