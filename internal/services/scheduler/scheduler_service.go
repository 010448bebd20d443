package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/fides/internal/common"
	"github.com/ternarybob/fides/internal/interfaces"
)

const (
	// crawlLockName is shared by every replica running the scheduler
	// role; whoever inserts it first owns the cycle.
	crawlLockName = "scheduler:crawl:lock"

	defaultSchedule = "0 */6 * * *"
	defaultLockTTL  = 60 * time.Second
)

// Service fires the periodic crawl cycle. Replicas race for a store
// lock on every tick, so running the scheduler role everywhere still
// yields one cycle per cadence.
type Service struct {
	storage  interfaces.StorageManager
	launcher interfaces.CrawlLauncher
	events   interfaces.EventService
	logger   arbor.ILogger
	cron     *cron.Cron
	lockTTL  time.Duration

	mu        sync.Mutex // Protects the fields below
	running   bool
	ticking   bool
	schedule  string
	entryID   cron.EntryID
	lastTick  *time.Time
	lastRunID string
	lastError string
}

// NewService creates the crawl scheduler.
func NewService(
	storage interfaces.StorageManager,
	launcher interfaces.CrawlLauncher,
	events interfaces.EventService,
	cfg common.SchedulerConfig,
	logger arbor.ILogger,
) interfaces.SchedulerService {
	return &Service{
		storage:  storage,
		launcher: launcher,
		events:   events,
		logger:   logger,
		cron:     cron.New(),
		lockTTL:  common.ParseDurationOr(cfg.LockTTL, defaultLockTTL),
	}
}

// Start arms the cron schedule. An empty expression falls back to the
// default six-hour cadence.
func (s *Service) Start(cronExpr string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("scheduler already running")
	}
	if cronExpr == "" {
		cronExpr = defaultSchedule
	}

	entryID, err := s.cron.AddFunc(cronExpr, s.tick)
	if err != nil {
		return fmt.Errorf("invalid crawl schedule %q: %w", cronExpr, err)
	}

	s.entryID = entryID
	s.schedule = cronExpr
	s.cron.Start()
	s.running = true

	s.logger.Info().
		Str("schedule", cronExpr).
		Dur("lock_ttl", s.lockTTL).
		Msg("Crawl scheduler started")
	return nil
}

// Stop disarms the schedule. An in-flight tick finishes on its own;
// its results land in the run row as usual.
func (s *Service) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}

	s.cron.Stop()
	s.running = false

	s.logger.Info().Msg("Crawl scheduler stopped")
	return nil
}

// IsRunning reports whether the schedule is armed.
func (s *Service) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// tick is the cron entry point.
func (s *Service) tick() {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error().
				Str("panic", fmt.Sprintf("%v", r)).
				Msg("PANIC RECOVERED in scheduler tick")
		}
	}()

	if err := s.RunOnce(context.Background()); err != nil {
		s.logger.Error().Err(err).Msg("Scheduled crawl cycle failed")
	}
}

// RunOnce executes a single crawl cycle: take the leader lock, then
// open a run covering every company. Losing the lock race is normal
// and returns nil.
func (s *Service) RunOnce(ctx context.Context) error {
	s.mu.Lock()
	if s.ticking {
		s.mu.Unlock()
		s.logger.Debug().Msg("Previous tick still in flight, skipping this cycle")
		return nil
	}
	s.ticking = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.ticking = false
		s.mu.Unlock()
	}()

	acquired, err := s.storage.Locks().Acquire(ctx, crawlLockName, s.lockTTL)
	if err != nil {
		s.recordTick("", err)
		return fmt.Errorf("failed to acquire scheduler lock: %w", err)
	}
	if !acquired {
		s.logger.Debug().
			Str("lock", crawlLockName).
			Msg("Another replica owns this cycle")
		return nil
	}
	// The lock expires on its own TTL; an early release would hand the
	// same cycle to a lagging replica.

	run, err := s.launcher.LaunchCrawl(ctx, "")
	if err != nil {
		s.recordTick("", err)
		return fmt.Errorf("crawl cycle failed: %w", err)
	}
	s.recordTick(run.ID, nil)

	if s.events != nil {
		s.events.Publish(ctx, interfaces.Event{
			Type: interfaces.EventSchedulerTick,
			Payload: map[string]interface{}{
				"run_id":       run.ID,
				"target_count": run.TargetCount,
			},
		})
	}

	s.logger.Info().
		Str("run_id", run.ID).
		Int("targets", run.TargetCount).
		Msg("Crawl cycle enqueued")
	return nil
}

// Status returns the current scheduler snapshot.
func (s *Service) Status() *interfaces.SchedulerStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	status := &interfaces.SchedulerStatus{
		Running:   s.running,
		Schedule:  s.schedule,
		LastTick:  s.lastTick,
		Ticking:   s.ticking,
		LastRunID: s.lastRunID,
		LastError: s.lastError,
	}
	if s.running {
		if next := s.cron.Entry(s.entryID).Next; !next.IsZero() {
			status.NextTick = &next
		}
	}
	return status
}

func (s *Service) recordTick(runID string, tickErr error) {
	now := time.Now().UTC()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.lastTick = &now
	if tickErr != nil {
		s.lastError = tickErr.Error()
		return
	}
	s.lastError = ""
	s.lastRunID = runID
}
