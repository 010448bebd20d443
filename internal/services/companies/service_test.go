package companies

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/fides/internal/common"
	"github.com/ternarybob/fides/internal/interfaces"
	"github.com/ternarybob/fides/internal/models"
	badgerstore "github.com/ternarybob/fides/internal/storage/badger"
)

type enqueueCall struct {
	queue    string
	key      string
	priority int
}

type fakeQueue struct {
	enqueues []enqueueCall
	err      error
}

func (q *fakeQueue) Start() error { return nil }
func (q *fakeQueue) Stop() error  { return nil }

func (q *fakeQueue) Enqueue(ctx context.Context, queue string, payload interface{}, idempotencyKey string, priority int) (string, error) {
	if q.err != nil {
		return "", q.err
	}
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

type harness struct {
	service *Service
	storage interfaces.StorageManager
	queue   *fakeQueue
	owner   *models.User
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	logger := arbor.NewLogger()
	db, err := badgerstore.NewBadgerDB(logger, &common.BadgerConfig{Path: t.TempDir()})
	require.NoError(t, err, "failed to open test database")
	t.Cleanup(func() {
		db.Close()
	})

	manager := badgerstore.NewManagerWithDB(db, logger)
	queue := &fakeQueue{}

	owner := &models.User{
		ID:    common.NewUserID(),
		Email: "owner@fides.dev",
		Name:  "Owner",
	}
	require.NoError(t, manager.Users().SaveUser(context.Background(), owner), "failed to seed owner")

	return &harness{
		service: NewService(manager, queue, logger),
		storage: manager,
		queue:   queue,
		owner:   owner,
	}
}

func TestCreateCompanyDerivesSeedTargets(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	company, targets, err := h.service.CreateCompany(ctx, h.owner.ID, &CreateCompanyInput{
		Name:   "Acme Corp",
		Domain: "acme.example",
	})
	require.NoError(t, err)
	require.NotNil(t, company)

	// Empty category list enables everything.
	assert.Equal(t, models.AllCategories, company.Categories)
	assert.Equal(t, 0, company.RiskScore)
	assert.Equal(t, h.owner.ID, company.UserID)

	want := []string{
		"https://acme.example/security",
		"https://acme.example/trust",
		"https://acme.example/compliance",
		"https://acme.example/privacy",
		"https://acme.example/terms",
		"https://acme.example/sla",
		"https://acme.example/status",
		"https://acme.example/pricing",
	}
	require.Len(t, targets, len(want))
	for i, target := range targets {
		assert.Equal(t, want[i], target.URL)
		assert.Equal(t, models.TargetKindSeed, target.Kind)
		assert.Equal(t, company.ID, target.CompanyID)
	}

	stored, err := h.storage.Targets().ListTargetsByCompany(ctx, company.ID)
	require.NoError(t, err)
	assert.Len(t, stored, len(want))

	// Creation launches an initial crawl covering every seed target.
	require.Len(t, h.queue.enqueues, len(want))
	for i, call := range h.queue.enqueues {
		assert.Equal(t, models.QueueCrawlTarget, call.queue)
		assert.Equal(t, models.PriorityCrawl, call.priority)
		assert.Equal(t, models.CrawlJobKey(company.ID, targets[i].ID), call.key)
	}

	runs, err := h.storage.Runs().ListRuns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, models.RunStatusRunning, runs[0].Status)
	assert.Equal(t, len(want), runs[0].TargetCount)
}

func TestCreateCompanySelectedCategories(t *testing.T) {
	h := newHarness(t)

	_, targets, err := h.service.CreateCompany(context.Background(), h.owner.ID, &CreateCompanyInput{
		Name:       "Acme Corp",
		Domain:     "acme.example",
		Categories: []models.Category{models.CategorySLA, models.CategorySLA, models.CategoryPricing},
	})
	require.NoError(t, err)

	var urls []string
	for _, target := range targets {
		urls = append(urls, target.URL)
	}
	assert.Equal(t, []string{
		"https://acme.example/sla",
		"https://acme.example/status",
		"https://acme.example/pricing",
	}, urls)
}

func TestCreateCompanyVerbatimDomainPath(t *testing.T) {
	h := newHarness(t)

	_, targets, err := h.service.CreateCompany(context.Background(), h.owner.ID, &CreateCompanyInput{
		Name:       "Acme Corp",
		Domain:     "https://trust.acme.example/portal",
		Categories: []models.Category{models.CategoryPricing},
	})
	require.NoError(t, err)

	require.Len(t, targets, 1)
	assert.Equal(t, "https://trust.acme.example/portal/pricing", targets[0].URL)
}

func TestCreateCompanyValidation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, _, err := h.service.CreateCompany(ctx, h.owner.ID, &CreateCompanyInput{Domain: "acme.example"})
	assert.Error(t, err, "missing name should fail validation")

	_, _, err = h.service.CreateCompany(ctx, h.owner.ID, &CreateCompanyInput{Name: "Acme Corp"})
	assert.Error(t, err, "missing domain should fail validation")

	_, _, err = h.service.CreateCompany(ctx, h.owner.ID, &CreateCompanyInput{
		Name:       "Acme Corp",
		Domain:     "acme.example",
		Categories: []models.Category{"billing"},
	})
	assert.Error(t, err, "unknown category should fail validation")
}

func TestCreateCompanyUnknownOwner(t *testing.T) {
	h := newHarness(t)

	_, _, err := h.service.CreateCompany(context.Background(), "usr_missing", &CreateCompanyInput{
		Name:   "Acme Corp",
		Domain: "acme.example",
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrNotFound))
}

func TestDeleteCompanyCascadesTargetsOnly(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	company, _, err := h.service.CreateCompany(ctx, h.owner.ID, &CreateCompanyInput{
		Name:   "Acme Corp",
		Domain: "acme.example",
	})
	require.NoError(t, err)

	// Claims survive deletion for audit.
	claim := &models.Claim{
		ID:        common.NewClaimID(),
		CompanyID: company.ID,
		ClaimType: models.ClaimTypeCompliance,
		Key:       "SOC2_TYPE_II",
		Status:    models.ClaimStatusActive,
		Snippet:   "We are SOC 2 Type II compliant.",
	}
	require.NoError(t, h.storage.Claims().SaveClaim(ctx, claim))

	require.NoError(t, h.service.DeleteCompany(ctx, company.ID))

	_, err = h.storage.Companies().GetCompany(ctx, company.ID)
	assert.True(t, errors.Is(err, models.ErrNotFound))

	targets, err := h.storage.Targets().ListTargetsByCompany(ctx, company.ID)
	require.NoError(t, err)
	assert.Empty(t, targets)

	claims, err := h.storage.Claims().ListClaimsByCompany(ctx, company.ID)
	require.NoError(t, err)
	assert.Len(t, claims, 1)
}

func TestDeleteCompanyNotFound(t *testing.T) {
	h := newHarness(t)

	err := h.service.DeleteCompany(context.Background(), "cmp_missing")
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrNotFound))
}

func TestLaunchCrawlAllCompanies(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, _, err := h.service.CreateCompany(ctx, h.owner.ID, &CreateCompanyInput{
		Name:       "Acme Corp",
		Domain:     "acme.example",
		Categories: []models.Category{models.CategoryPricing},
	})
	require.NoError(t, err)
	_, _, err = h.service.CreateCompany(ctx, h.owner.ID, &CreateCompanyInput{
		Name:       "Globex",
		Domain:     "globex.example",
		Categories: []models.Category{models.CategorySLA},
	})
	require.NoError(t, err)
	h.queue.enqueues = nil

	run, err := h.service.LaunchCrawl(ctx, "")
	require.NoError(t, err)

	assert.Empty(t, run.CompanyID)
	assert.Equal(t, 3, run.TargetCount)
	assert.Len(t, h.queue.enqueues, 3)
}

func TestLaunchCrawlZeroTargetsCompletesImmediately(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	run, err := h.service.LaunchCrawl(ctx, "")
	require.NoError(t, err)

	assert.Equal(t, models.RunStatusCompleted, run.Status)
	assert.Equal(t, 0, run.TargetCount)
	require.NotNil(t, run.FinishedAt)
	assert.Empty(t, h.queue.enqueues)
}

func TestLaunchCrawlUnknownCompany(t *testing.T) {
	h := newHarness(t)

	_, err := h.service.LaunchCrawl(context.Background(), "cmp_missing")
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrNotFound))
}

func TestLaunchCrawlEnqueueFailureFoldsIntoRun(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	company, _, err := h.service.CreateCompany(ctx, h.owner.ID, &CreateCompanyInput{
		Name:       "Acme Corp",
		Domain:     "acme.example",
		Categories: []models.Category{models.CategoryPricing},
	})
	require.NoError(t, err)

	h.queue.err = fmt.Errorf("queue unavailable")
	run, err := h.service.LaunchCrawl(ctx, company.ID)
	require.NoError(t, err)

	// The failed target is folded in so the run can close; a run where
	// every target errored closes as failed.
	assert.Equal(t, 1, run.TargetCount)
	assert.Equal(t, 1, run.PagesProcessed)
	assert.Equal(t, models.RunStatusFailed, run.Status)
	require.Len(t, run.Errors, 1)
	assert.Contains(t, run.Errors[0], "enqueue")
}
