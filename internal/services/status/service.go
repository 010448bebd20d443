package status

import (
	"context"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/fides/internal/interfaces"
)

// Activity summarises one pipeline event type on the bus.
type Activity struct {
	Count  int       `json:"count"`
	LastAt time.Time `json:"last_at"`
}

// Service aggregates pipeline telemetry for the status surface. Bus
// events accumulate into in-memory counters; queue depths, scheduler
// state and store counts are read live per request.
type Service struct {
	storage   interfaces.StorageManager
	queue     interfaces.QueueManager
	scheduler interfaces.SchedulerService
	events    interfaces.EventService
	logger    arbor.ILogger

	mu        sync.RWMutex
	activity  map[interfaces.EventType]*Activity
	startedAt time.Time
}

// NewService creates a new status aggregator. The scheduler may be nil
// when the scheduler role is disabled on this instance.
func NewService(
	storage interfaces.StorageManager,
	queue interfaces.QueueManager,
	scheduler interfaces.SchedulerService,
	events interfaces.EventService,
	logger arbor.ILogger,
) *Service {
	return &Service{
		storage:   storage,
		queue:     queue,
		scheduler: scheduler,
		events:    events,
		logger:    logger,
		activity:  make(map[interfaces.EventType]*Activity),
		startedAt: time.Now().UTC(),
	}
}

// SubscribeToPipelineEvents wires the aggregator to every pipeline
// event type on the bus.
func (s *Service) SubscribeToPipelineEvents() {
	eventTypes := []interfaces.EventType{
		interfaces.EventSchedulerTick,
		interfaces.EventCrawlTargetCompleted,
		interfaces.EventCrawlTargetFailed,
		interfaces.EventClaimEventRecorded,
		interfaces.EventEvidenceReady,
		interfaces.EventEvidenceFailed,
		interfaces.EventAlertSent,
		interfaces.EventAlertSuppressed,
	}
	for _, eventType := range eventTypes {
		s.events.Subscribe(eventType, s.record)
	}

	s.logger.Info().Msg("Status aggregator subscribed to pipeline events")
}

// record is the shared bus handler behind every subscription.
func (s *Service) record(ctx context.Context, event interfaces.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.activity[event.Type]
	if !ok {
		entry = &Activity{}
		s.activity[event.Type] = entry
	}
	entry.Count++
	entry.LastAt = time.Now().UTC()
	return nil
}

// GetStatus assembles the status snapshot returned by the API.
func (s *Service) GetStatus(ctx context.Context) map[string]interface{} {
	now := time.Now().UTC()

	status := map[string]interface{}{
		"started_at": s.startedAt,
		"uptime":     now.Sub(s.startedAt).Round(time.Second).String(),
		"activity":   s.snapshotActivity(),
		"store":      s.storeCounts(ctx),
		"timestamp":  now,
	}

	if s.queue != nil {
		if stats, err := s.queue.Stats(ctx); err != nil {
			s.logger.Warn().Err(err).Msg("Failed to read queue stats")
		} else {
			status["queues"] = stats
		}
	}

	if s.scheduler != nil {
		status["scheduler"] = s.scheduler.Status()
	}

	return status
}

func (s *Service) snapshotActivity() map[string]Activity {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]Activity, len(s.activity))
	for eventType, entry := range s.activity {
		out[string(eventType)] = *entry
	}
	return out
}

func (s *Service) storeCounts(ctx context.Context) map[string]int {
	counts := make(map[string]int)

	type counter struct {
		name  string
		count func(context.Context) (int, error)
	}
	counters := []counter{
		{"companies", s.storage.Companies().CountCompanies},
		{"targets", s.storage.Targets().CountTargets},
		{"claims", s.storage.Claims().CountClaims},
		{"events", s.storage.Events().CountEvents},
		{"evidence", s.storage.Evidence().CountEvidence},
	}
	for _, c := range counters {
		n, err := c.count(ctx)
		if err != nil {
			s.logger.Warn().Err(err).Str("collection", c.name).Msg("Failed to count collection")
			continue
		}
		counts[c.name] = n
	}
	return counts
}
