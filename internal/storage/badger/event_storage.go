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

// EventStorage implements the EventStorage interface for Badger.
// Events are append-only; SetAcknowledged and SetEmailedAt are the
// only mutations.
type EventStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewEventStorage creates a new EventStorage instance
func NewEventStorage(db *BadgerDB, logger arbor.ILogger) interfaces.EventStorage {
	return &EventStorage{
		db:     db,
		logger: logger,
	}
}

func (s *EventStorage) SaveEvent(ctx context.Context, event *models.ChangeEvent) error {
	if event.ID == "" {
		return fmt.Errorf("event ID is required")
	}
	if event.DetectedAt.IsZero() {
		event.DetectedAt = time.Now()
	}

	if err := s.db.Store().Upsert(event.ID, event); err != nil {
		return fmt.Errorf("failed to save event: %w", err)
	}
	return nil
}

func (s *EventStorage) GetEvent(ctx context.Context, id string) (*models.ChangeEvent, error) {
	var event models.ChangeEvent
	if err := s.db.Store().Get(id, &event); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, fmt.Errorf("event %s: %w", id, models.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get event: %w", err)
	}
	return &event, nil
}

func (s *EventStorage) ListEvents(ctx context.Context, filter *interfaces.EventFilter) ([]*models.ChangeEvent, error) {
	query := badgerhold.Where("ID").Ne("")
	if filter != nil {
		if filter.CompanyID != "" {
			query = badgerhold.Where("CompanyID").Eq(filter.CompanyID)
		}
		if filter.Severity != "" {
			query = query.And("Severity").Eq(filter.Severity)
		}
		if filter.Acknowledged != nil {
			query = query.And("Acknowledged").Eq(*filter.Acknowledged)
		}
	}
	query = query.SortBy("DetectedAt").Reverse()
	if filter != nil && filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}

	var events []models.ChangeEvent
	if err := s.db.Store().Find(&events, query); err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}

	result := make([]*models.ChangeEvent, len(events))
	for i := range events {
		result[i] = &events[i]
	}
	return result, nil
}

func (s *EventStorage) SetAcknowledged(ctx context.Context, id string, acknowledged bool) error {
	event, err := s.GetEvent(ctx, id)
	if err != nil {
		return err
	}
	event.Acknowledged = acknowledged
	return s.SaveEvent(ctx, event)
}

func (s *EventStorage) SetEmailedAt(ctx context.Context, id string, emailedAt time.Time) error {
	event, err := s.GetEvent(ctx, id)
	if err != nil {
		return err
	}
	event.EmailedAt = &emailedAt
	return s.SaveEvent(ctx, event)
}

// CountEmailedSince counts the company's events whose alert email went
// out at or after the given instant. The alert pipeline uses this for
// its rolling-window cap, so the emailed-at filter runs in memory
// rather than against an index on a nullable field.
func (s *EventStorage) CountEmailedSince(ctx context.Context, companyID string, since time.Time) (int, error) {
	var events []models.ChangeEvent
	err := s.db.Store().Find(&events, badgerhold.Where("CompanyID").Eq(companyID))
	if err != nil {
		return 0, fmt.Errorf("failed to count emailed events: %w", err)
	}

	count := 0
	for i := range events {
		if events[i].EmailedAt != nil && !events[i].EmailedAt.Before(since) {
			count++
		}
	}
	return count, nil
}

func (s *EventStorage) CountEvents(ctx context.Context) (int, error) {
	count, err := s.db.Store().Count(&models.ChangeEvent{}, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to count events: %w", err)
	}
	return int(count), nil
}
