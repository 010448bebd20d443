package evidence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/fides/internal/common"
	"github.com/ternarybob/fides/internal/interfaces"
	"github.com/ternarybob/fides/internal/models"
)

// Worker drains the process_evidence queue: parse the PDF, extract
// the structured fields, and move the row to READY or FAILED.
type Worker struct {
	storage      interfaces.StorageManager
	parser       interfaces.PDFParser
	events       interfaces.EventService
	logger       arbor.ILogger
	parseTimeout time.Duration
}

// NewWorker creates the evidence worker.
func NewWorker(
	storage interfaces.StorageManager,
	parser interfaces.PDFParser,
	events interfaces.EventService,
	cfg common.EvidenceConfig,
	logger arbor.ILogger,
) *Worker {
	return &Worker{
		storage:      storage,
		parser:       parser,
		events:       events,
		logger:       logger,
		parseTimeout: common.ParseDurationOr(cfg.ParseTimeout, 2*time.Minute),
	}
}

// HandleProcessEvidence processes one process_evidence job. Replaying
// a READY row exits untouched. Parse failures mark the row FAILED with
// the error and still surface the error, so the queue retries within
// its attempt budget and later attempts can recover the row.
func (w *Worker) HandleProcessEvidence(ctx context.Context, job *models.Job) error {
	var payload models.ProcessEvidencePayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("invalid evidence payload: %w", err)
	}

	evidence, err := w.storage.Evidence().GetEvidenceByID(ctx, payload.EvidenceID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			w.logger.Warn().
				Str("evidence_id", payload.EvidenceID).
				Msg("Evidence row no longer exists, dropping job")
			return nil
		}
		return fmt.Errorf("failed to load evidence %s: %w", payload.EvidenceID, err)
	}

	if evidence.Status == models.EvidenceStatusReady {
		w.logger.Debug().
			Str("evidence_id", evidence.ID).
			Msg("Evidence already processed, skipping replay")
		return nil
	}

	parseCtx, cancel := context.WithTimeout(ctx, w.parseTimeout)
	defer cancel()

	doc, err := w.parser.Parse(parseCtx, evidence.PDFURL)
	if err != nil {
		return w.fail(ctx, evidence, err)
	}

	now := time.Now().UTC()
	evidence.Fields = ExtractFields(doc)
	evidence.Status = models.EvidenceStatusReady
	evidence.Error = ""
	evidence.ProcessedAt = &now

	if err := w.storage.Evidence().SaveEvidence(ctx, evidence); err != nil {
		return fmt.Errorf("failed to persist evidence fields: %w", err)
	}

	if w.events != nil {
		w.events.Publish(ctx, interfaces.Event{
			Type:    interfaces.EventEvidenceReady,
			Payload: evidence,
		})
	}

	w.logger.Info().
		Str("evidence_id", evidence.ID).
		Str("pdf_url", evidence.PDFURL).
		Str("report_type", evidence.Fields.ReportType).
		Int("pages", doc.PageCount).
		Msg("Evidence processed")
	return nil
}

// fail records the parse failure on the row before handing the error
// back to the queue.
func (w *Worker) fail(ctx context.Context, evidence *models.Evidence, parseErr error) error {
	now := time.Now().UTC()
	evidence.Status = models.EvidenceStatusFailed
	evidence.Error = parseErr.Error()
	evidence.ProcessedAt = &now

	if err := w.storage.Evidence().SaveEvidence(ctx, evidence); err != nil {
		w.logger.Error().
			Err(err).
			Str("evidence_id", evidence.ID).
			Msg("Failed to record evidence failure")
	}

	if w.events != nil {
		w.events.Publish(ctx, interfaces.Event{
			Type:    interfaces.EventEvidenceFailed,
			Payload: evidence,
		})
	}

	w.logger.Warn().
		Err(parseErr).
		Str("evidence_id", evidence.ID).
		Str("pdf_url", evidence.PDFURL).
		Msg("Evidence parse failed")
	return parseErr
}
