package detector

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/fides/internal/common"
	"github.com/ternarybob/fides/internal/interfaces"
	"github.com/ternarybob/fides/internal/models"
	"github.com/ternarybob/fides/internal/services/extract"
	badgerstore "github.com/ternarybob/fides/internal/storage/badger"
)

const baselinePage = "We are SOC 2 Type II compliant. We guarantee 99.99% uptime. We do not sell customer data."

type enqueueCall struct {
	queue    string
	key      string
	priority int
}

type fakeQueue struct {
	enqueues []enqueueCall
}

func (q *fakeQueue) Start() error { return nil }
func (q *fakeQueue) Stop() error  { return nil }

func (q *fakeQueue) Enqueue(ctx context.Context, queue string, payload interface{}, idempotencyKey string, priority int) (string, error) {
	q.enqueues = append(q.enqueues, enqueueCall{queue: queue, key: idempotencyKey, priority: priority})
	return common.NewJobID(), nil
}

func (q *fakeQueue) Receive(ctx context.Context, queue string) (*models.Job, error) {
	return nil, models.ErrNoJob
}

func (q *fakeQueue) Complete(ctx context.Context, job *models.Job) error { return nil }

func (q *fakeQueue) Fail(ctx context.Context, job *models.Job, jobErr error) error { return nil }

func (q *fakeQueue) Stats(ctx context.Context) (map[string]interfaces.QueueStats, error) {
	return map[string]interfaces.QueueStats{}, nil
}

type fakeDispatcher struct {
	dispatched []*models.ChangeEvent
	err        error
}

func (d *fakeDispatcher) Dispatch(ctx context.Context, event *models.ChangeEvent, company *models.Company) error {
	if d.err != nil {
		return d.err
	}
	d.dispatched = append(d.dispatched, event)
	return nil
}

type harness struct {
	service    *Service
	storage    interfaces.StorageManager
	queue      *fakeQueue
	dispatcher *fakeDispatcher
	company    *models.Company
	target     *models.CrawlTarget
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	logger := arbor.NewLogger()
	db, err := badgerstore.NewBadgerDB(logger, &common.BadgerConfig{Path: t.TempDir()})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() {
		db.Close()
	})

	manager := badgerstore.NewManagerWithDB(db, logger)
	queue := &fakeQueue{}
	dispatcher := &fakeDispatcher{}

	company := &models.Company{
		ID:     common.NewCompanyID(),
		Name:   "Acme Corp",
		Domain: "acme.example",
		UserID: common.NewUserID(),
	}
	if err := manager.Companies().SaveCompany(context.Background(), company); err != nil {
		t.Fatalf("failed to seed company: %v", err)
	}

	target := &models.CrawlTarget{
		ID:        common.NewTargetID(),
		CompanyID: company.ID,
		URL:       "https://acme.example/trust",
		Kind:      models.TargetKindSeed,
	}
	if err := manager.Targets().SaveTarget(context.Background(), target); err != nil {
		t.Fatalf("failed to seed target: %v", err)
	}

	service := NewService(manager, extract.NewExtractor(logger), dispatcher, queue, nil, common.EvidenceConfig{MaxPerCrawl: 3}, logger)

	return &harness{
		service:    service,
		storage:    manager,
		queue:      queue,
		dispatcher: dispatcher,
		company:    company,
		target:     target,
	}
}

// crawl runs one detection pass and reloads the company and target so
// assertions see stored state.
func (h *harness) crawl(t *testing.T, content string) *Outcome {
	t.Helper()

	outcome, err := h.service.ProcessContent(context.Background(), h.company, h.target, content)
	if err != nil {
		t.Fatalf("ProcessContent failed: %v", err)
	}

	company, err := h.storage.Companies().GetCompany(context.Background(), h.company.ID)
	if err != nil {
		t.Fatalf("failed to reload company: %v", err)
	}
	h.company = company

	target, err := h.storage.Targets().GetTargetByID(context.Background(), h.target.ID)
	if err != nil {
		t.Fatalf("failed to reload target: %v", err)
	}
	h.target = target

	return outcome
}

func (h *harness) events(t *testing.T) []*models.ChangeEvent {
	t.Helper()

	events, err := h.storage.Events().ListEvents(context.Background(), &interfaces.EventFilter{CompanyID: h.company.ID})
	if err != nil {
		t.Fatalf("failed to list events: %v", err)
	}
	return events
}

func (h *harness) eventsOfType(t *testing.T, eventType models.EventType) []*models.ChangeEvent {
	t.Helper()

	var matched []*models.ChangeEvent
	for _, event := range h.events(t) {
		if event.EventType == eventType {
			matched = append(matched, event)
		}
	}
	return matched
}

func (h *harness) claim(t *testing.T, claimType models.ClaimType, key string) *models.Claim {
	t.Helper()

	claim, err := h.storage.Claims().GetClaim(context.Background(), h.company.ID, claimType, key)
	if err != nil {
		t.Fatalf("failed to load claim %s: %v", key, err)
	}
	return claim
}

func (h *harness) versions(t *testing.T, claimID string) []*models.ClaimVersion {
	t.Helper()

	versions, err := h.storage.Claims().ListVersionsByClaim(context.Background(), claimID)
	if err != nil {
		t.Fatalf("failed to list versions: %v", err)
	}
	return versions
}

func TestBaselineCrawlAddsClaims(t *testing.T) {
	h := newHarness(t)

	outcome := h.crawl(t, baselinePage)

	if !outcome.Changed {
		t.Error("expected first crawl to register as changed")
	}
	if outcome.ClaimsExtracted != 3 {
		t.Errorf("expected 3 extracted claims, got %d", outcome.ClaimsExtracted)
	}
	if outcome.EventsCreated != 3 {
		t.Errorf("expected 3 events, got %d", outcome.EventsCreated)
	}

	events := h.events(t)
	if len(events) != 3 {
		t.Fatalf("expected 3 stored events, got %d", len(events))
	}
	for _, event := range events {
		if event.EventType != models.EventAdded {
			t.Errorf("event %s: expected ADDED, got %s", event.Key, event.EventType)
		}
		if event.Severity != models.SeverityInfo {
			t.Errorf("event %s: expected info severity, got %s", event.Key, event.Severity)
		}
		if event.NewSnippet == "" || event.OldSnippet != "" {
			t.Errorf("event %s: ADDED must carry only the new snippet", event.Key)
		}
	}

	soc2 := h.claim(t, models.ClaimTypeCompliance, "SOC2_TYPE_II")
	if soc2.Status != models.ClaimStatusActive {
		t.Errorf("expected ACTIVE claim, got %s", soc2.Status)
	}

	uptime := h.claim(t, models.ClaimTypeSLA, "UPTIME")
	uptimeVersions := h.versions(t, uptime.ID)
	if len(uptimeVersions) != 1 {
		t.Fatalf("expected 1 uptime version, got %d", len(uptimeVersions))
	}
	if uptimeVersions[0].Meta == nil || uptimeVersions[0].Meta.Value != 99.99 {
		t.Errorf("expected uptime meta 99.99, got %+v", uptimeVersions[0].Meta)
	}

	sell := h.claim(t, models.ClaimTypePrivacy, "DO_NOT_SELL")
	sellVersions := h.versions(t, sell.ID)
	if len(sellVersions) != 1 || sellVersions[0].Polarity != models.PolarityNegative {
		t.Errorf("expected single negative-polarity version, got %+v", sellVersions)
	}

	if h.company.RiskScore != 0 {
		t.Errorf("baseline crawl must not move risk, got %d", h.company.RiskScore)
	}
	if len(h.dispatcher.dispatched) != 0 {
		t.Errorf("no Criticals expected, dispatched %d", len(h.dispatcher.dispatched))
	}
	if h.target.LastDigest == "" {
		t.Error("expected target digest to be recorded")
	}
}

func TestUnchangedContentIsNoOp(t *testing.T) {
	h := newHarness(t)

	h.crawl(t, baselinePage)
	digest := h.target.LastDigest
	firstCrawl := h.target.LastCrawledAt

	outcome := h.crawl(t, baselinePage)

	if outcome.Changed {
		t.Error("identical content must short-circuit")
	}
	if got := len(h.events(t)); got != 3 {
		t.Errorf("expected no new events, got %d total", got)
	}

	soc2 := h.claim(t, models.ClaimTypeCompliance, "SOC2_TYPE_II")
	if got := len(h.versions(t, soc2.ID)); got != 1 {
		t.Errorf("expected no new versions, got %d", got)
	}

	if h.company.RiskScore != 0 {
		t.Errorf("risk must not move on unchanged content, got %d", h.company.RiskScore)
	}
	if h.target.LastDigest != digest {
		t.Error("digest must not change")
	}
	if h.target.LastCrawledAt == nil || firstCrawl == nil {
		t.Fatal("expected crawl timestamps on both passes")
	}
	if h.target.LastCrawledAt.Before(*firstCrawl) {
		t.Error("expected crawl timestamp to advance")
	}
}

func TestSameSnippetOnlyRefreshesLastSeen(t *testing.T) {
	h := newHarness(t)

	h.crawl(t, baselinePage)
	before := h.claim(t, models.ClaimTypeCompliance, "SOC2_TYPE_II")

	// The SOC 2 sentence is untouched; a new HIPAA sentence changes
	// the page digest so the pass runs in full.
	h.crawl(t, baselinePage+" We maintain HIPAA compliance.")

	after := h.claim(t, models.ClaimTypeCompliance, "SOC2_TYPE_II")
	if got := len(h.versions(t, after.ID)); got != 1 {
		t.Errorf("unchanged snippet must not version, got %d versions", got)
	}
	if !after.LastSeenAt.After(before.LastSeenAt) {
		t.Error("expected last-seen to advance")
	}

	added := h.eventsOfType(t, models.EventAdded)
	if len(added) != 4 {
		t.Errorf("expected 3 baseline + 1 HIPAA ADDED events, got %d", len(added))
	}
}

func TestRewordedClaimAppendsVersion(t *testing.T) {
	h := newHarness(t)

	h.crawl(t, baselinePage)
	h.crawl(t, "We are SOC 2 Type II compliant as of this year. We guarantee 99.99% uptime. We do not sell customer data.")

	claims, err := h.storage.Claims().ListClaimsByCompany(context.Background(), h.company.ID)
	if err != nil {
		t.Fatalf("failed to list claims: %v", err)
	}
	if len(claims) != 3 {
		t.Errorf("rewording must not add claim rows, got %d", len(claims))
	}

	soc2 := h.claim(t, models.ClaimTypeCompliance, "SOC2_TYPE_II")
	versions := h.versions(t, soc2.ID)
	if len(versions) != 2 {
		t.Fatalf("expected 2 versions after rewording, got %d", len(versions))
	}
	if versions[0].ContentDigest == versions[1].ContentDigest {
		t.Error("consecutive versions must not share a digest")
	}
	if !strings.Contains(soc2.Snippet, "as of this year") {
		t.Errorf("claim snippet not updated: %q", soc2.Snippet)
	}
}

func TestRemovedComplianceClaimIsCritical(t *testing.T) {
	h := newHarness(t)

	h.crawl(t, baselinePage)
	oldSnippet := h.claim(t, models.ClaimTypeCompliance, "SOC2_TYPE_II").Snippet

	h.crawl(t, "We guarantee 99.99% uptime. We do not sell customer data.")

	soc2 := h.claim(t, models.ClaimTypeCompliance, "SOC2_TYPE_II")
	if soc2.Status != models.ClaimStatusRemoved {
		t.Errorf("expected REMOVED status, got %s", soc2.Status)
	}

	removed := h.eventsOfType(t, models.EventRemoved)
	if len(removed) != 1 {
		t.Fatalf("expected 1 REMOVED event, got %d", len(removed))
	}
	event := removed[0]
	if event.Severity != models.SeverityCritical {
		t.Errorf("compliance removal must be critical, got %s", event.Severity)
	}
	if event.OldSnippet != oldSnippet {
		t.Errorf("expected old snippet %q, got %q", oldSnippet, event.OldSnippet)
	}
	if event.NewSnippet != "" {
		t.Error("REMOVED event must not carry a new snippet")
	}

	if h.company.RiskScore != 40 {
		t.Errorf("expected risk 40 after critical removal, got %d", h.company.RiskScore)
	}
	if len(h.dispatcher.dispatched) != 1 {
		t.Fatalf("expected 1 alert dispatch, got %d", len(h.dispatcher.dispatched))
	}
	if h.dispatcher.dispatched[0].EventType != models.EventRemoved {
		t.Errorf("dispatched wrong event: %s", h.dispatcher.dispatched[0].EventType)
	}
}

func TestWeakenedCommitmentIsCritical(t *testing.T) {
	h := newHarness(t)

	h.crawl(t, baselinePage)
	h.crawl(t, "We are SOC 2 Type II compliant. We guarantee 99.99% uptime. We may share data with trusted partners.")

	weakened := h.eventsOfType(t, models.EventWeakened)
	if len(weakened) != 1 {
		t.Fatalf("expected 1 WEAKENED event, got %d", len(weakened))
	}
	event := weakened[0]
	if event.Key != "DO_NOT_SELL" {
		t.Errorf("expected DO_NOT_SELL weakening, got %s", event.Key)
	}
	if event.Severity != models.SeverityCritical {
		t.Errorf("weakening must be critical, got %s", event.Severity)
	}
	if event.OldSnippet == "" || event.NewSnippet == "" {
		t.Error("WEAKENED event must carry both snippets")
	}

	sell := h.claim(t, models.ClaimTypePrivacy, "DO_NOT_SELL")
	if sell.Status != models.ClaimStatusActive {
		t.Errorf("weakened claim stays active, got %s", sell.Status)
	}
	if h.company.RiskScore != 40 {
		t.Errorf("expected risk 40, got %d", h.company.RiskScore)
	}
	if len(h.dispatcher.dispatched) != 1 {
		t.Errorf("expected 1 alert dispatch, got %d", len(h.dispatcher.dispatched))
	}
}

func TestNumericDowngradeAndRecovery(t *testing.T) {
	h := newHarness(t)

	h.crawl(t, "We guarantee 99.99% uptime.")
	h.crawl(t, "We guarantee 99.9% uptime.")

	changed := h.eventsOfType(t, models.EventNumberChanged)
	if len(changed) != 1 {
		t.Fatalf("expected 1 NUMBER_CHANGED event, got %d", len(changed))
	}
	if changed[0].Severity != models.SeverityMedium {
		t.Errorf("downgrade must be medium, got %s", changed[0].Severity)
	}
	if h.company.RiskScore != 10 {
		t.Errorf("expected risk 10 after downgrade, got %d", h.company.RiskScore)
	}

	uptime := h.claim(t, models.ClaimTypeSLA, "UPTIME")
	latest, err := h.storage.Claims().GetLatestVersion(context.Background(), uptime.ID)
	if err != nil {
		t.Fatalf("failed to load latest version: %v", err)
	}
	if latest.Meta == nil || latest.Meta.Value != 99.9 {
		t.Errorf("expected latest meta 99.9, got %+v", latest.Meta)
	}

	// Restoring the number is a change, but an increase stays info
	// and adds no risk.
	h.crawl(t, "We guarantee 99.99% uptime.")

	changed = h.eventsOfType(t, models.EventNumberChanged)
	if len(changed) != 2 {
		t.Fatalf("expected 2 NUMBER_CHANGED events, got %d", len(changed))
	}
	var recovery *models.ChangeEvent
	for _, event := range changed {
		if event.Severity == models.SeverityInfo {
			recovery = event
		}
	}
	if recovery == nil {
		t.Fatal("expected an info-severity increase event")
	}
	if h.company.RiskScore != 10 {
		t.Errorf("increase must not add risk, got %d", h.company.RiskScore)
	}
}

func TestWeakeningWinsOverNumericChange(t *testing.T) {
	h := newHarness(t)

	h.crawl(t, "We always guarantee 99.99% uptime.")
	h.crawl(t, "We typically guarantee 99.9% uptime.")

	if got := h.eventsOfType(t, models.EventNumberChanged); len(got) != 0 {
		t.Errorf("weakening must shadow the numeric change, got %d NUMBER_CHANGED", len(got))
	}
	weakened := h.eventsOfType(t, models.EventWeakened)
	if len(weakened) != 1 {
		t.Fatalf("expected 1 WEAKENED event, got %d", len(weakened))
	}
	if weakened[0].Severity != models.SeverityCritical {
		t.Errorf("expected critical severity, got %s", weakened[0].Severity)
	}
}

func TestPolarityReversalIsCritical(t *testing.T) {
	h := newHarness(t)

	h.crawl(t, "We never sell customer data.")
	h.crawl(t, "We sell customer data to selected partners.")

	reversed := h.eventsOfType(t, models.EventReversed)
	if len(reversed) != 1 {
		t.Fatalf("expected 1 REVERSED event, got %d", len(reversed))
	}
	if reversed[0].Key != "DO_NOT_SELL" {
		t.Errorf("expected DO_NOT_SELL reversal, got %s", reversed[0].Key)
	}
	if reversed[0].Severity != models.SeverityCritical {
		t.Errorf("reversal must be critical, got %s", reversed[0].Severity)
	}
	if h.company.RiskScore != 30 {
		t.Errorf("expected risk 30, got %d", h.company.RiskScore)
	}
	if len(h.dispatcher.dispatched) != 1 {
		t.Errorf("expected 1 alert dispatch, got %d", len(h.dispatcher.dispatched))
	}
}

func TestRiskScoreSaturates(t *testing.T) {
	h := newHarness(t)

	h.crawl(t, "We are SOC 2 Type II certified. We maintain HIPAA compliance. We follow GDPR requirements.")
	h.crawl(t, "This page has moved.")

	removed := h.eventsOfType(t, models.EventRemoved)
	if len(removed) != 3 {
		t.Fatalf("expected 3 REMOVED events, got %d", len(removed))
	}
	if h.company.RiskScore != models.MaxRiskScore {
		t.Errorf("expected risk capped at %d, got %d", models.MaxRiskScore, h.company.RiskScore)
	}
	if len(h.dispatcher.dispatched) != 3 {
		t.Errorf("expected 3 alert dispatches, got %d", len(h.dispatcher.dispatched))
	}
}

func TestRemovalScopedToSourceURL(t *testing.T) {
	h := newHarness(t)

	h.crawl(t, baselinePage)

	// A different page with disjoint claims must not sweep claims
	// sourced from the first page.
	other := &models.CrawlTarget{
		ID:        common.NewTargetID(),
		CompanyID: h.company.ID,
		URL:       "https://acme.example/compliance",
		Kind:      models.TargetKindSeed,
	}
	if err := h.storage.Targets().SaveTarget(context.Background(), other); err != nil {
		t.Fatalf("failed to seed second target: %v", err)
	}
	if _, err := h.service.ProcessContent(context.Background(), h.company, other, "We maintain HIPAA compliance."); err != nil {
		t.Fatalf("ProcessContent failed: %v", err)
	}

	if got := h.eventsOfType(t, models.EventRemoved); len(got) != 0 {
		t.Errorf("cross-target sweep must not remove claims, got %d REMOVED", len(got))
	}
	soc2 := h.claim(t, models.ClaimTypeCompliance, "SOC2_TYPE_II")
	if soc2.Status != models.ClaimStatusActive {
		t.Errorf("expected SOC 2 claim to stay active, got %s", soc2.Status)
	}
}

func TestEvidenceFanOut(t *testing.T) {
	h := newHarness(t)

	page := "We are SOC 2 Type II compliant. Report: https://acme.example/soc2.pdf and again https://acme.example/soc2.pdf plus https://acme.example/iso.pdf for ISO."
	outcome := h.crawl(t, page)

	if outcome.EvidenceCreated != 2 {
		t.Errorf("expected 2 evidence rows, got %d", outcome.EvidenceCreated)
	}

	rows, err := h.storage.Evidence().ListEvidenceByCompany(context.Background(), h.company.ID)
	if err != nil {
		t.Fatalf("failed to list evidence: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 stored evidence rows, got %d", len(rows))
	}
	for _, row := range rows {
		if row.Status != models.EvidenceStatusPending {
			t.Errorf("evidence %s: expected PENDING, got %s", row.PDFURL, row.Status)
		}
		if row.ClaimType != models.ClaimTypeCompliance {
			t.Errorf("evidence %s: expected compliance claim type, got %s", row.PDFURL, row.ClaimType)
		}
		if row.SourcePageURL != h.target.URL {
			t.Errorf("evidence %s: wrong source page %s", row.PDFURL, row.SourcePageURL)
		}
		if row.ContextSnippet == "" {
			t.Errorf("evidence %s: expected context snippet", row.PDFURL)
		}
	}

	var evidenceJobs []enqueueCall
	for _, call := range h.queue.enqueues {
		if call.queue == models.QueueProcessEvidence {
			evidenceJobs = append(evidenceJobs, call)
		}
	}
	if len(evidenceJobs) != 2 {
		t.Fatalf("expected 2 evidence jobs, got %d", len(evidenceJobs))
	}
	for _, call := range evidenceJobs {
		if call.priority != models.PriorityEvidence {
			t.Errorf("expected evidence priority %d, got %d", models.PriorityEvidence, call.priority)
		}
		if !strings.HasPrefix(call.key, "evidence-") {
			t.Errorf("unexpected idempotency key %s", call.key)
		}
	}

	// Same links on a changed page create nothing new.
	h.crawl(t, page+" Updated this quarter.")

	rows, err = h.storage.Evidence().ListEvidenceByCompany(context.Background(), h.company.ID)
	if err != nil {
		t.Fatalf("failed to list evidence: %v", err)
	}
	if len(rows) != 2 {
		t.Errorf("re-crawl must not duplicate evidence, got %d rows", len(rows))
	}
	if got := len(h.queue.enqueues); got != 2 {
		t.Errorf("re-crawl must not enqueue duplicates, got %d total jobs", got)
	}
}

func TestEvidenceFanOutCapsPerCrawl(t *testing.T) {
	h := newHarness(t)

	h.crawl(t, "Reports: https://a.example/1.pdf https://a.example/2.pdf https://a.example/3.pdf https://a.example/4.pdf")

	rows, err := h.storage.Evidence().ListEvidenceByCompany(context.Background(), h.company.ID)
	if err != nil {
		t.Fatalf("failed to list evidence: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected cap of 3 evidence rows, got %d", len(rows))
	}

	// Known links do not consume creation slots on later crawls.
	h.crawl(t, "Reports: https://a.example/1.pdf https://a.example/2.pdf https://a.example/3.pdf https://a.example/4.pdf https://a.example/5.pdf now updated.")

	rows, err = h.storage.Evidence().ListEvidenceByCompany(context.Background(), h.company.ID)
	if err != nil {
		t.Fatalf("failed to list evidence: %v", err)
	}
	if len(rows) != 5 {
		t.Errorf("expected the two new links to be created, got %d rows", len(rows))
	}
}

func TestDispatchFailureDoesNotFailCrawl(t *testing.T) {
	h := newHarness(t)
	h.dispatcher.err = errors.New("smtp unavailable")

	h.crawl(t, baselinePage)
	outcome := h.crawl(t, "We guarantee 99.99% uptime. We do not sell customer data.")

	if !outcome.Changed {
		t.Error("expected a detection pass")
	}
	removed := h.eventsOfType(t, models.EventRemoved)
	if len(removed) != 1 {
		t.Fatalf("event must persist despite dispatch failure, got %d", len(removed))
	}
	if h.company.RiskScore != 40 {
		t.Errorf("risk must still move, got %d", h.company.RiskScore)
	}
}
