package badger

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/fides/internal/common"
	"github.com/ternarybob/fides/internal/models"
)

func openTestManager(t *testing.T) *Manager {
	t.Helper()

	logger := arbor.NewLogger()
	db, err := NewBadgerDB(logger, &common.BadgerConfig{Path: t.TempDir()})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() {
		db.Close()
	})
	return NewManagerWithDB(db, logger)
}

func TestClaimUpsertKeepsOneRowPerKey(t *testing.T) {
	m := openTestManager(t)
	ctx := context.Background()
	companyID := common.NewCompanyID()

	// Repeated saves of the same (company, type, key) triple land on one
	// key, so the summary row count never grows on rewording.
	for i := 0; i < 5; i++ {
		claim := &models.Claim{
			ID:        common.NewClaimID(),
			CompanyID: companyID,
			ClaimType: models.ClaimTypeCompliance,
			Key:       "SOC2_TYPE_II",
			Status:    models.ClaimStatusActive,
			Snippet:   fmt.Sprintf("We are SOC 2 Type II compliant (revision %d).", i),
		}
		if err := m.Claims().SaveClaim(ctx, claim); err != nil {
			t.Fatalf("SaveClaim %d failed: %v", i, err)
		}
	}

	claims, err := m.Claims().ListClaimsByCompany(ctx, companyID)
	if err != nil {
		t.Fatalf("ListClaimsByCompany failed: %v", err)
	}
	if len(claims) != 1 {
		t.Fatalf("expected 1 claim row, got %d", len(claims))
	}
	if claims[0].Snippet != "We are SOC 2 Type II compliant (revision 4)." {
		t.Errorf("last write must win, got %q", claims[0].Snippet)
	}

	// A different key under the same company is its own row.
	other := &models.Claim{
		ID:        common.NewClaimID(),
		CompanyID: companyID,
		ClaimType: models.ClaimTypeCompliance,
		Key:       "ISO_27001",
		Status:    models.ClaimStatusActive,
		Snippet:   "We maintain ISO 27001 certification.",
	}
	if err := m.Claims().SaveClaim(ctx, other); err != nil {
		t.Fatalf("SaveClaim failed: %v", err)
	}
	claims, err = m.Claims().ListClaimsByCompany(ctx, companyID)
	if err != nil {
		t.Fatalf("ListClaimsByCompany failed: %v", err)
	}
	if len(claims) != 2 {
		t.Errorf("expected 2 claim rows, got %d", len(claims))
	}
}

func TestClaimVersionsAreAppendOnlyAndOrdered(t *testing.T) {
	m := openTestManager(t)
	ctx := context.Background()

	claimID := common.NewClaimID()
	companyID := common.NewCompanyID()
	base := time.Now().UTC().Add(-time.Hour)

	var firstID string
	for i := 0; i < 3; i++ {
		version := &models.ClaimVersion{
			ID:            common.NewVersionID(),
			ClaimID:       claimID,
			CompanyID:     companyID,
			Snippet:       fmt.Sprintf("Snippet revision %d.", i),
			ContentDigest: fmt.Sprintf("digest-%d", i),
			Polarity:      models.PolarityNeutral,
			SeenAt:        base.Add(time.Duration(i) * time.Minute),
		}
		if i == 0 {
			firstID = version.ID
		}
		if err := m.Claims().SaveVersion(ctx, version); err != nil {
			t.Fatalf("SaveVersion %d failed: %v", i, err)
		}
	}

	versions, err := m.Claims().ListVersionsByClaim(ctx, claimID)
	if err != nil {
		t.Fatalf("ListVersionsByClaim failed: %v", err)
	}
	if len(versions) != 3 {
		t.Fatalf("expected 3 versions, got %d", len(versions))
	}
	for i, version := range versions {
		if version.ContentDigest != fmt.Sprintf("digest-%d", i) {
			t.Errorf("version %d out of seen-at order: %s", i, version.ContentDigest)
		}
	}

	latest, err := m.Claims().GetLatestVersion(ctx, claimID)
	if err != nil {
		t.Fatalf("GetLatestVersion failed: %v", err)
	}
	if latest.ContentDigest != "digest-2" {
		t.Errorf("latest version = %s, want digest-2", latest.ContentDigest)
	}

	// Versions are insert-only; rewriting an existing ID must fail.
	replay := &models.ClaimVersion{
		ID:            firstID,
		ClaimID:       claimID,
		CompanyID:     companyID,
		Snippet:       "rewritten",
		ContentDigest: "digest-x",
		Polarity:      models.PolarityNeutral,
		SeenAt:        base,
	}
	if err := m.Claims().SaveVersion(ctx, replay); err == nil {
		t.Error("expected overwriting an existing version to fail")
	}

	if _, err := m.Claims().GetLatestVersion(ctx, "clm_missing"); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("GetLatestVersion on unknown claim = %v, want ErrNotFound", err)
	}
}

func TestCreateEvidenceDeduplicatesByCompanyAndURL(t *testing.T) {
	m := openTestManager(t)
	ctx := context.Background()
	companyID := common.NewCompanyID()

	first := &models.Evidence{
		ID:        common.NewEvidenceID(),
		CompanyID: companyID,
		ClaimType: models.ClaimTypeCompliance,
		PDFURL:    "https://acme.example/reports/soc2.pdf",
		Status:    models.EvidenceStatusPending,
	}
	stored, fresh, err := m.Evidence().CreateEvidence(ctx, first)
	if err != nil {
		t.Fatalf("CreateEvidence failed: %v", err)
	}
	if !fresh {
		t.Fatal("first create must be fresh")
	}

	// Same pair again, new candidate ID: the existing row comes back.
	dup := &models.Evidence{
		ID:        common.NewEvidenceID(),
		CompanyID: companyID,
		ClaimType: models.ClaimTypeCompliance,
		PDFURL:    first.PDFURL,
		Status:    models.EvidenceStatusPending,
	}
	existing, fresh, err := m.Evidence().CreateEvidence(ctx, dup)
	if err != nil {
		t.Fatalf("duplicate CreateEvidence failed: %v", err)
	}
	if fresh {
		t.Error("duplicate pair must not be fresh")
	}
	if existing.ID != stored.ID {
		t.Errorf("duplicate returned %s, want existing row %s", existing.ID, stored.ID)
	}

	// Same URL for another company is a distinct artefact.
	otherCompany := &models.Evidence{
		ID:        common.NewEvidenceID(),
		CompanyID: common.NewCompanyID(),
		ClaimType: models.ClaimTypeCompliance,
		PDFURL:    first.PDFURL,
		Status:    models.EvidenceStatusPending,
	}
	if _, fresh, err = m.Evidence().CreateEvidence(ctx, otherCompany); err != nil || !fresh {
		t.Errorf("cross-company create = (fresh=%v, err=%v), want fresh row", fresh, err)
	}

	count, err := m.Evidence().CountEvidence(ctx)
	if err != nil {
		t.Fatalf("CountEvidence failed: %v", err)
	}
	if count != 2 {
		t.Errorf("evidence count = %d, want 2", count)
	}
}

func TestLockAcquireConflictAndRelease(t *testing.T) {
	m := openTestManager(t)
	ctx := context.Background()

	acquired, err := m.Locks().Acquire(ctx, "scheduler:crawl:lock", time.Minute)
	if err != nil || !acquired {
		t.Fatalf("first acquire = (%v, %v), want success", acquired, err)
	}

	acquired, err = m.Locks().Acquire(ctx, "scheduler:crawl:lock", time.Minute)
	if err != nil {
		t.Fatalf("contending acquire errored: %v", err)
	}
	if acquired {
		t.Error("second acquire must lose while the lease is live")
	}

	// An unrelated lock name is free.
	acquired, err = m.Locks().Acquire(ctx, "other:lock", time.Minute)
	if err != nil || !acquired {
		t.Errorf("unrelated lock acquire = (%v, %v), want success", acquired, err)
	}

	if err := m.Locks().Release(ctx, "scheduler:crawl:lock"); err != nil {
		t.Fatalf("Release failed: %v", err)
	}
	acquired, err = m.Locks().Acquire(ctx, "scheduler:crawl:lock", time.Minute)
	if err != nil || !acquired {
		t.Errorf("acquire after release = (%v, %v), want success", acquired, err)
	}
}

func TestLockLeaseExpires(t *testing.T) {
	m := openTestManager(t)
	ctx := context.Background()

	acquired, err := m.Locks().Acquire(ctx, "lease:test", time.Second)
	if err != nil || !acquired {
		t.Fatalf("acquire = (%v, %v), want success", acquired, err)
	}
	if acquired, _ = m.Locks().Acquire(ctx, "lease:test", time.Second); acquired {
		t.Fatal("lease must be held immediately after acquire")
	}

	// Badger TTLs have one-second resolution; wait past the worst case
	// so a crashed holder's lease is provably gone.
	time.Sleep(2100 * time.Millisecond)

	acquired, err = m.Locks().Acquire(ctx, "lease:test", time.Minute)
	if err != nil || !acquired {
		t.Errorf("acquire after expiry = (%v, %v), want success", acquired, err)
	}
}

func TestRecordProgressClosesRunWhenAllTargetsReport(t *testing.T) {
	m := openTestManager(t)
	ctx := context.Background()

	run := &models.CrawlRun{
		ID:          common.NewRunID(),
		CompanyID:   common.NewCompanyID(),
		Status:      models.RunStatusRunning,
		TargetCount: 2,
		StartedAt:   time.Now().UTC(),
	}
	if err := m.Runs().SaveRun(ctx, run); err != nil {
		t.Fatalf("SaveRun failed: %v", err)
	}

	updated, err := m.Runs().RecordProgress(ctx, run.ID, models.RunProgress{Pages: 1, Claims: 2, Events: 1})
	if err != nil {
		t.Fatalf("RecordProgress failed: %v", err)
	}
	if updated.FinishedAt != nil {
		t.Error("run must stay open until every target reports")
	}
	if updated.PagesProcessed != 1 || updated.ClaimsExtracted != 2 || updated.EventsCreated != 1 {
		t.Errorf("counters = %d/%d/%d, want 1/2/1",
			updated.PagesProcessed, updated.ClaimsExtracted, updated.EventsCreated)
	}

	updated, err = m.Runs().RecordProgress(ctx, run.ID, models.RunProgress{Pages: 1, Error: "fetch failed: 503"})
	if err != nil {
		t.Fatalf("RecordProgress failed: %v", err)
	}
	if updated.FinishedAt == nil {
		t.Fatal("run must close when pages reach the target count")
	}
	if updated.Status != models.RunStatusCompleted {
		t.Errorf("one error out of two targets closes completed, got %s", updated.Status)
	}
	if len(updated.Errors) != 1 {
		t.Errorf("expected 1 recorded error, got %d", len(updated.Errors))
	}

	if _, err := m.Runs().RecordProgress(ctx, "run_missing", models.RunProgress{Pages: 1}); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("RecordProgress on unknown run = %v, want ErrNotFound", err)
	}
}

func TestRecordProgressFailsRunWhenEveryTargetErrored(t *testing.T) {
	m := openTestManager(t)
	ctx := context.Background()

	run := &models.CrawlRun{
		ID:          common.NewRunID(),
		CompanyID:   common.NewCompanyID(),
		Status:      models.RunStatusRunning,
		TargetCount: 1,
		StartedAt:   time.Now().UTC(),
	}
	if err := m.Runs().SaveRun(ctx, run); err != nil {
		t.Fatalf("SaveRun failed: %v", err)
	}

	updated, err := m.Runs().RecordProgress(ctx, run.ID, models.RunProgress{Pages: 1, Error: "connection refused"})
	if err != nil {
		t.Fatalf("RecordProgress failed: %v", err)
	}
	if updated.Status != models.RunStatusFailed {
		t.Errorf("all-errored run must fail, got %s", updated.Status)
	}
}

func TestCountEmailedSinceWindow(t *testing.T) {
	m := openTestManager(t)
	ctx := context.Background()
	companyID := common.NewCompanyID()
	now := time.Now().UTC()

	saveEvent := func(companyID string) *models.ChangeEvent {
		event := &models.ChangeEvent{
			ID:         common.NewEventID(),
			CompanyID:  companyID,
			ClaimType:  models.ClaimTypeCompliance,
			Key:        "SOC2_TYPE_II",
			EventType:  models.EventRemoved,
			Severity:   models.SeverityCritical,
			DetectedAt: now,
		}
		if err := m.Events().SaveEvent(ctx, event); err != nil {
			t.Fatalf("SaveEvent failed: %v", err)
		}
		return event
	}

	inside := saveEvent(companyID)
	outside := saveEvent(companyID)
	saveEvent(companyID) // never emailed

	if err := m.Events().SetEmailedAt(ctx, inside.ID, now.Add(-30*time.Minute)); err != nil {
		t.Fatalf("SetEmailedAt failed: %v", err)
	}
	if err := m.Events().SetEmailedAt(ctx, outside.ID, now.Add(-2*time.Hour)); err != nil {
		t.Fatalf("SetEmailedAt failed: %v", err)
	}

	// Another company's sends never count against this window.
	foreign := saveEvent(common.NewCompanyID())
	if err := m.Events().SetEmailedAt(ctx, foreign.ID, now); err != nil {
		t.Fatalf("SetEmailedAt failed: %v", err)
	}

	count, err := m.Events().CountEmailedSince(ctx, companyID, now.Add(-time.Hour))
	if err != nil {
		t.Fatalf("CountEmailedSince failed: %v", err)
	}
	if count != 1 {
		t.Errorf("emailed-in-window count = %d, want 1", count)
	}
}
