package detector

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/fides/internal/common"
	"github.com/ternarybob/fides/internal/interfaces"
	"github.com/ternarybob/fides/internal/models"
	"github.com/ternarybob/fides/internal/services/extract"
)

// pdfLink finds absolute PDF URLs for the evidence fan-out.
var pdfLink = regexp.MustCompile(`(?i)\bhttps?://[^\s<>"')\]]+\.pdf\b`)

// Outcome summarises one pass over a fetched page for run bookkeeping.
type Outcome struct {
	Changed         bool
	ClaimsExtracted int
	EventsCreated   int
	EvidenceCreated int
}

// Service reconciles freshly extracted claims against the stored state
// of a company: it versions changed claims, emits change events, sweeps
// removed claims, bumps the risk score, dispatches Critical alerts and
// fans out evidence PDFs.
type Service struct {
	storage     interfaces.StorageManager
	extractor   *extract.Extractor
	alerts      interfaces.AlertDispatcher
	queueMgr    interfaces.QueueManager
	events      interfaces.EventService
	logger      arbor.ILogger
	maxEvidence int
}

// NewService creates the change detector.
func NewService(
	storage interfaces.StorageManager,
	extractor *extract.Extractor,
	alerts interfaces.AlertDispatcher,
	queueMgr interfaces.QueueManager,
	events interfaces.EventService,
	cfg common.EvidenceConfig,
	logger arbor.ILogger,
) *Service {
	maxEvidence := cfg.MaxPerCrawl
	if maxEvidence <= 0 {
		maxEvidence = 3
	}

	return &Service{
		storage:     storage,
		extractor:   extractor,
		alerts:      alerts,
		queueMgr:    queueMgr,
		events:      events,
		logger:      logger,
		maxEvidence: maxEvidence,
	}
}

// ProcessContent runs the full detection pass for one fetched page.
// The digest short-circuit keeps an unchanged page from producing any
// versions, events or risk movement.
func (s *Service) ProcessContent(ctx context.Context, company *models.Company, target *models.CrawlTarget, content string) (*Outcome, error) {
	now := time.Now().UTC()
	digest := contentDigest(content)

	if digest == target.LastDigest {
		s.logger.Debug().
			Str("company_id", company.ID).
			Str("url", target.URL).
			Msg("Content unchanged since last crawl")

		target.LastCrawledAt = &now
		if err := s.storage.Targets().SaveTarget(ctx, target); err != nil {
			return nil, fmt.Errorf("failed to stamp unchanged target: %w", err)
		}
		return &Outcome{Changed: false}, nil
	}

	extracted := s.extractor.Extract(content, target.URL)

	var recorded []*models.ChangeEvent

	// Upsert every extracted claim against stored state.
	for i := range extracted {
		event, err := s.upsertClaim(ctx, company, target, &extracted[i], now)
		if err != nil {
			return nil, err
		}
		if event != nil {
			recorded = append(recorded, event)
		}
	}

	// Sweep claims that vanished from this page.
	removalEvents, err := s.sweepRemoved(ctx, company, target, extracted, now)
	if err != nil {
		return nil, err
	}
	recorded = append(recorded, removalEvents...)

	// Fold event deltas into the company risk score. The score only
	// ever moves up and saturates at the cap.
	riskDelta := 0
	for _, event := range recorded {
		riskDelta += models.RiskDelta(event.EventType, event.Severity)
	}
	if riskDelta > 0 {
		company.RiskScore += riskDelta
		if company.RiskScore > models.MaxRiskScore {
			company.RiskScore = models.MaxRiskScore
		}
	}
	company.LastCrawledAt = &now
	if err := s.storage.Companies().SaveCompany(ctx, company); err != nil {
		return nil, fmt.Errorf("failed to update company after crawl: %w", err)
	}

	// Critical events go to the alert dispatcher, which owns the
	// rate limit. A dispatch failure is logged and skipped: the event
	// itself is already persisted and visible.
	for _, event := range recorded {
		if event.Severity != models.SeverityCritical {
			continue
		}
		if err := s.alerts.Dispatch(ctx, event, company); err != nil {
			s.logger.Warn().
				Err(err).
				Str("event_id", event.ID).
				Str("company_id", company.ID).
				Msg("Alert dispatch failed")
		}
	}

	// Persist the new digest last, so a crash mid-pass re-runs the
	// whole detection against the same content.
	target.LastDigest = digest
	target.LastCrawledAt = &now
	if err := s.storage.Targets().SaveTarget(ctx, target); err != nil {
		return nil, fmt.Errorf("failed to persist target digest: %w", err)
	}

	evidenceCreated, err := s.fanOutEvidence(ctx, company, target, content)
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("company_id", company.ID).
		Str("url", target.URL).
		Int("claims", len(extracted)).
		Int("events", len(recorded)).
		Int("evidence", evidenceCreated).
		Msg("Detection pass completed")

	return &Outcome{
		Changed:         true,
		ClaimsExtracted: len(extracted),
		EventsCreated:   len(recorded),
		EvidenceCreated: evidenceCreated,
	}, nil
}

// upsertClaim reconciles one extracted claim and returns the change
// event it produced, if any.
func (s *Service) upsertClaim(ctx context.Context, company *models.Company, target *models.CrawlTarget, c *models.ExtractedClaim, now time.Time) (*models.ChangeEvent, error) {
	claims := s.storage.Claims()

	existing, err := claims.GetClaim(ctx, company.ID, c.ClaimType, c.Key)
	if err != nil && !errors.Is(err, models.ErrNotFound) {
		return nil, fmt.Errorf("failed to look up claim %s: %w", c.Key, err)
	}

	if existing == nil {
		// First observation: claim, initial version, ADDED event.
		claim := &models.Claim{
			ID:          common.NewClaimID(),
			CompanyID:   company.ID,
			ClaimType:   c.ClaimType,
			Key:         c.Key,
			Status:      models.ClaimStatusActive,
			Snippet:     c.Snippet,
			SourceURL:   c.SourceURL,
			Confidence:  c.Confidence,
			FirstSeenAt: now,
			LastSeenAt:  now,
		}
		if err := claims.SaveClaim(ctx, claim); err != nil {
			return nil, fmt.Errorf("failed to create claim %s: %w", c.Key, err)
		}
		if err := s.appendVersion(ctx, claim, c, now); err != nil {
			return nil, err
		}
		return s.recordEvent(ctx, &models.ChangeEvent{
			CompanyID:  company.ID,
			ClaimType:  c.ClaimType,
			Key:        c.Key,
			EventType:  models.EventAdded,
			Severity:   models.ClassifySeverity(models.EventAdded, c.ClaimType, false),
			NewSnippet: c.Snippet,
			SourceURL:  target.URL,
			DetectedAt: now,
		})
	}

	latest, err := claims.GetLatestVersion(ctx, existing.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load latest version of %s: %w", c.Key, err)
	}

	if snippetDigest(c.Snippet) == latest.ContentDigest {
		// Same wording as last time: refresh lastSeen, nothing else.
		existing.LastSeenAt = now
		existing.Status = models.ClaimStatusActive
		if err := claims.SaveClaim(ctx, existing); err != nil {
			return nil, fmt.Errorf("failed to refresh claim %s: %w", c.Key, err)
		}
		return nil, nil
	}

	if err := s.appendVersion(ctx, existing, c, now); err != nil {
		return nil, err
	}

	eventType, severity := classifyChange(latest, c)

	existing.Snippet = c.Snippet
	existing.SourceURL = c.SourceURL
	existing.Confidence = c.Confidence
	existing.LastSeenAt = now
	existing.Status = models.ClaimStatusActive
	if err := claims.SaveClaim(ctx, existing); err != nil {
		return nil, fmt.Errorf("failed to update claim %s: %w", c.Key, err)
	}

	return s.recordEvent(ctx, &models.ChangeEvent{
		CompanyID:  company.ID,
		ClaimType:  c.ClaimType,
		Key:        c.Key,
		EventType:  eventType,
		Severity:   severity,
		OldSnippet: latest.Snippet,
		NewSnippet: c.Snippet,
		SourceURL:  target.URL,
		DetectedAt: now,
	})
}

// classifyChange picks the event type for a reworded claim. The checks
// run in a fixed priority; the first that fires wins.
func classifyChange(latest *models.ClaimVersion, c *models.ExtractedClaim) (models.EventType, models.Severity) {
	if extract.DetectWeakening(latest.Snippet, c.Snippet) {
		return models.EventWeakened, models.ClassifySeverity(models.EventWeakened, c.ClaimType, false)
	}

	if changed, decreased := extract.DetectNumericChange(latest.Meta, c.Meta); changed {
		return models.EventNumberChanged, models.ClassifySeverity(models.EventNumberChanged, c.ClaimType, decreased)
	}

	if polarityFlipped(latest.Polarity, c.Polarity) {
		return models.EventReversed, models.ClassifySeverity(models.EventReversed, c.ClaimType, false)
	}

	// Text changed with no stronger signal. Kept as ADDED for parity
	// with the event history consumers already expect.
	return models.EventAdded, models.ClassifySeverity(models.EventAdded, c.ClaimType, false)
}

// polarityFlipped is a strict positive/negative swap; drifting into or
// out of neutral is not a reversal.
func polarityFlipped(old, new models.Polarity) bool {
	return (old == models.PolarityPositive && new == models.PolarityNegative) ||
		(old == models.PolarityNegative && new == models.PolarityPositive)
}

// sweepRemoved flags ACTIVE claims sourced from this URL that the
// current extraction no longer contains.
func (s *Service) sweepRemoved(ctx context.Context, company *models.Company, target *models.CrawlTarget, extracted []models.ExtractedClaim, now time.Time) ([]*models.ChangeEvent, error) {
	present := make(map[string]bool, len(extracted))
	for _, c := range extracted {
		present[claimIdentity(c.ClaimType, c.Key)] = true
	}

	active, err := s.storage.Claims().ListActiveClaimsBySource(ctx, company.ID, target.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to list active claims for sweep: %w", err)
	}

	var events []*models.ChangeEvent
	for _, claim := range active {
		if present[claimIdentity(claim.ClaimType, claim.Key)] {
			continue
		}

		claim.Status = models.ClaimStatusRemoved
		if err := s.storage.Claims().SaveClaim(ctx, claim); err != nil {
			return nil, fmt.Errorf("failed to mark claim %s removed: %w", claim.Key, err)
		}

		event, err := s.recordEvent(ctx, &models.ChangeEvent{
			CompanyID:  company.ID,
			ClaimType:  claim.ClaimType,
			Key:        claim.Key,
			EventType:  models.EventRemoved,
			Severity:   models.ClassifySeverity(models.EventRemoved, claim.ClaimType, false),
			OldSnippet: claim.Snippet,
			SourceURL:  target.URL,
			DetectedAt: now,
		})
		if err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	return events, nil
}

// fanOutEvidence creates PENDING evidence rows for new PDF links on
// the page and enqueues their processing jobs.
func (s *Service) fanOutEvidence(ctx context.Context, company *models.Company, target *models.CrawlTarget, content string) (int, error) {
	urls := pdfLink.FindAllString(content, -1)
	if len(urls) == 0 {
		return 0, nil
	}

	seen := make(map[string]bool, len(urls))
	created := 0

	for _, pdfURL := range urls {
		if created >= s.maxEvidence {
			break
		}
		if seen[pdfURL] {
			continue
		}
		seen[pdfURL] = true

		evidence := &models.Evidence{
			ID:             common.NewEvidenceID(),
			CompanyID:      company.ID,
			ClaimType:      models.ClaimTypeCompliance,
			PDFURL:         pdfURL,
			SourcePageURL:  target.URL,
			ContextSnippet: linkContext(content, pdfURL),
			Status:         models.EvidenceStatusPending,
		}

		stored, fresh, err := s.storage.Evidence().CreateEvidence(ctx, evidence)
		if err != nil {
			return created, fmt.Errorf("failed to create evidence for %s: %w", pdfURL, err)
		}
		if !fresh {
			// Already tracked for this company; does not consume a slot.
			continue
		}

		payload := models.ProcessEvidencePayload{
			EvidenceID: stored.ID,
			PDFURL:     pdfURL,
			CompanyID:  company.ID,
		}
		if _, err := s.queueMgr.Enqueue(ctx, models.QueueProcessEvidence, payload, models.EvidenceJobKey(stored.ID), models.PriorityEvidence); err != nil {
			return created, fmt.Errorf("failed to enqueue evidence job for %s: %w", pdfURL, err)
		}
		created++

		s.logger.Info().
			Str("company_id", company.ID).
			Str("pdf_url", pdfURL).
			Str("evidence_id", stored.ID).
			Msg("Evidence PDF queued for processing")
	}
	return created, nil
}

// recordEvent persists the event and announces it on the bus.
func (s *Service) recordEvent(ctx context.Context, event *models.ChangeEvent) (*models.ChangeEvent, error) {
	event.ID = common.NewEventID()
	if err := s.storage.Events().SaveEvent(ctx, event); err != nil {
		return nil, fmt.Errorf("failed to record %s event for %s: %w", event.EventType, event.Key, err)
	}

	if s.events != nil {
		s.events.Publish(ctx, interfaces.Event{
			Type:    interfaces.EventClaimEventRecorded,
			Payload: event,
		})
	}

	s.logger.Info().
		Str("company_id", event.CompanyID).
		Str("key", event.Key).
		Str("event_type", string(event.EventType)).
		Str("severity", string(event.Severity)).
		Msg("Claim change recorded")
	return event, nil
}

func (s *Service) appendVersion(ctx context.Context, claim *models.Claim, c *models.ExtractedClaim, now time.Time) error {
	version := &models.ClaimVersion{
		ID:            common.NewVersionID(),
		ClaimID:       claim.ID,
		CompanyID:     claim.CompanyID,
		Snippet:       c.Snippet,
		SourceURL:     c.SourceURL,
		ContentDigest: snippetDigest(c.Snippet),
		Polarity:      c.Polarity,
		Meta:          c.Meta,
		SeenAt:        now,
	}
	if err := s.storage.Claims().SaveVersion(ctx, version); err != nil {
		return fmt.Errorf("failed to append version for %s: %w", claim.Key, err)
	}
	return nil
}

func claimIdentity(claimType models.ClaimType, key string) string {
	return string(claimType) + "|" + key
}

// linkContext grabs the text around a PDF link so the evidence row
// shows where the document was referenced.
func linkContext(content, link string) string {
	idx := strings.Index(content, link)
	if idx < 0 {
		return ""
	}
	lo := idx - 80
	if lo < 0 {
		lo = 0
	}
	hi := idx + len(link) + 80
	if hi > len(content) {
		hi = len(content)
	}
	return strings.Join(strings.Fields(content[lo:hi]), " ")
}

// contentDigest canonicalises page text before hashing so trailing
// whitespace shifts never register as change.
func contentDigest(content string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(content)))
	return hex.EncodeToString(sum[:])
}

func snippetDigest(snippet string) string {
	sum := sha256.Sum256([]byte(snippet))
	return hex.EncodeToString(sum[:])
}
