package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/fides/internal/common"
	"github.com/ternarybob/fides/internal/interfaces"
	"github.com/ternarybob/fides/internal/models"
)

// BadgerQueue is a durable multi-queue job store backed by Badger.
//
// Key layout per queue:
//
//	queue:{name}:job:{id}                          -> job JSON
//	queue:{name}:index:{priority}:{visibleAt}:{id} -> empty (ready index)
//	queue:{name}:completed:{finishedAt}:{id}       -> job JSON (TTL)
//	queue:{name}:failed:{finishedAt}:{id}          -> job JSON (TTL)
//	queue:dedup:{idempotencyKey}                   -> job ID
//
// Priority and visibleAt are zero-padded so lexicographic key order is
// claim order: lowest priority value first, oldest visibility first.
// The dedup entry lives exactly as long as the job is waiting, active
// or delayed; terminal transitions delete it in the same transaction.
type BadgerQueue struct {
	db     *badger.DB
	logger arbor.ILogger

	visibilityTimeout  time.Duration
	maxAttempts        int
	backoffInitial     time.Duration
	completedRetention time.Duration
	completedMax       int
	failedRetention    time.Duration
	failedMax          int

	janitorStop chan struct{}
	janitorDone chan struct{}
	startOnce   sync.Once
	stopOnce    sync.Once
}

// NewBadgerQueue creates a queue manager on an open Badger instance.
// The instance is shared with the storage layer and is not closed here.
func NewBadgerQueue(db *badger.DB, cfg common.QueueConfig, logger arbor.ILogger) (*BadgerQueue, error) {
	if db == nil {
		return nil, fmt.Errorf("badger instance is required")
	}
	if logger == nil {
		logger = arbor.NewLogger()
	}

	maxAttempts := cfg.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	return &BadgerQueue{
		db:                 db,
		logger:             logger,
		visibilityTimeout:  common.ParseDurationOr(cfg.VisibilityTimeout, 5*time.Minute),
		maxAttempts:        maxAttempts,
		backoffInitial:     common.ParseDurationOr(cfg.BackoffInitial, 5*time.Second),
		completedRetention: common.ParseDurationOr(cfg.CompletedRetention, time.Hour),
		completedMax:       cfg.CompletedMax,
		failedRetention:    common.ParseDurationOr(cfg.FailedRetention, 24*time.Hour),
		failedMax:          cfg.FailedMax,
		janitorStop:        make(chan struct{}),
		janitorDone:        make(chan struct{}),
	}, nil
}

// Start launches the retention janitor. Badger's own TTL expires
// terminal records by age; the janitor enforces the count caps.
func (q *BadgerQueue) Start() error {
	q.startOnce.Do(func() {
		go q.janitor()
	})
	q.logger.Info().
		Int("max_attempts", q.maxAttempts).
		Dur("visibility_timeout", q.visibilityTimeout).
		Msg("Queue manager started")
	return nil
}

// Stop halts the janitor. In-flight jobs stay claimed and are
// redelivered after their visibility timeout on the next start.
func (q *BadgerQueue) Stop() error {
	q.stopOnce.Do(func() {
		close(q.janitorStop)
		<-q.janitorDone
	})
	q.logger.Info().Msg("Queue manager stopped")
	return nil
}

// Enqueue submits a job to a named queue. When another job with the
// same idempotency key is still waiting, active or delayed, no new job
// is created and the existing job's ID is returned.
func (q *BadgerQueue) Enqueue(ctx context.Context, queue string, payload interface{}, idempotencyKey string, priority int) (string, error) {
	body, err := marshalPayload(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal payload for queue %s: %w", queue, err)
	}

	now := time.Now()
	job := models.Job{
		ID:             common.NewJobID(),
		Queue:          queue,
		Payload:        body,
		IdempotencyKey: idempotencyKey,
		Priority:       priority,
		Status:         models.JobStatusWaiting,
		MaxAttempts:    q.maxAttempts,
		EnqueuedAt:     now,
		VisibleAt:      now,
	}

	data, err := json.Marshal(job)
	if err != nil {
		return "", fmt.Errorf("failed to marshal job: %w", err)
	}

	var existingID string
	err = q.db.Update(func(txn *badger.Txn) error {
		if idempotencyKey != "" {
			item, err := txn.Get(dedupKey(idempotencyKey))
			switch {
			case err == nil:
				var id string
				if err := item.Value(func(val []byte) error {
					id = string(val)
					return nil
				}); err != nil {
					return err
				}
				// The dedup entry is only live while the job record
				// exists; a missing record means a stale entry left by
				// an interrupted delete, so reclaim the key.
				if _, err := txn.Get(jobKey(queue, id)); err == nil {
					existingID = id
					return nil
				} else if err != badger.ErrKeyNotFound {
					return err
				}
			case err != badger.ErrKeyNotFound:
				return err
			}
		}

		if err := txn.Set(jobKey(queue, job.ID), data); err != nil {
			return err
		}
		if err := txn.Set(indexKey(queue, priority, now, job.ID), []byte{}); err != nil {
			return err
		}
		if idempotencyKey != "" {
			if err := txn.Set(dedupKey(idempotencyKey), []byte(job.ID)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("failed to enqueue job on %s: %w", queue, err)
	}

	if existingID != "" {
		q.logger.Debug().
			Str("queue", queue).
			Str("idempotency_key", idempotencyKey).
			Str("job_id", existingID).
			Msg("Duplicate enqueue coalesced onto existing job")
		return existingID, nil
	}

	q.logger.Debug().
		Str("queue", queue).
		Str("job_id", job.ID).
		Int("priority", priority).
		Msg("Job enqueued")
	return job.ID, nil
}

// Receive claims the next ready job on the queue, ordered by priority
// then visibility time. The claim increments the attempt counter and
// pushes the job's visibility out by the visibility timeout, so a
// worker crash redelivers it. Returns models.ErrNoJob when nothing is
// ready.
func (q *BadgerQueue) Receive(ctx context.Context, queue string) (*models.Job, error) {
	var claimed models.Job

	err := q.db.Update(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := indexPrefix(queue)
		now := time.Now()
		found := false

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			_, visibleAt, id, err := parseIndexKey(item.Key())
			if err != nil {
				continue
			}
			// Entries within one priority band sort by time, so a
			// future entry only means this band is drained; a lower
			// band may still hold ready jobs.
			if visibleAt.After(now) {
				continue
			}

			indexCopy := item.KeyCopy(nil)

			jobItem, err := txn.Get(jobKey(queue, id))
			if err != nil {
				if err == badger.ErrKeyNotFound {
					// Orphaned index entry, clean it up.
					if err := txn.Delete(indexCopy); err != nil {
						return err
					}
					continue
				}
				return err
			}

			var job models.Job
			if err := jobItem.Value(func(val []byte) error {
				return json.Unmarshal(val, &job)
			}); err != nil {
				return err
			}

			// A job redelivered after a crash may already have spent
			// its attempts. Retire it instead of running it again.
			if job.Attempts >= job.MaxAttempts {
				if job.LastError == "" {
					job.LastError = "visibility timeout expired after final attempt"
				}
				if err := q.retire(txn, &job, indexCopy, now); err != nil {
					return err
				}
				continue
			}

			job.Attempts++
			job.Status = models.JobStatusActive
			job.VisibleAt = now.Add(q.visibilityTimeout)

			data, err := json.Marshal(job)
			if err != nil {
				return err
			}
			if err := txn.Set(jobKey(queue, job.ID), data); err != nil {
				return err
			}
			if err := txn.Delete(indexCopy); err != nil {
				return err
			}
			if err := txn.Set(indexKey(queue, job.Priority, job.VisibleAt, job.ID), []byte{}); err != nil {
				return err
			}

			claimed = job
			found = true
			break
		}

		if !found {
			return models.ErrNoJob
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &claimed, nil
}

// Complete marks a claimed job as done, moves it to the completed
// retention set and releases its idempotency key.
func (q *BadgerQueue) Complete(ctx context.Context, job *models.Job) error {
	now := time.Now()

	err := q.db.Update(func(txn *badger.Txn) error {
		current, indexCopy, err := q.lookup(txn, job.Queue, job.ID)
		if err != nil {
			if err == badger.ErrKeyNotFound {
				return nil // already terminal
			}
			return err
		}

		current.Status = models.JobStatusCompleted
		current.CompletedAt = &now

		data, err := json.Marshal(current)
		if err != nil {
			return err
		}

		if err := txn.Delete(jobKey(job.Queue, job.ID)); err != nil {
			return err
		}
		if err := txn.Delete(indexCopy); err != nil {
			return err
		}
		if current.IdempotencyKey != "" {
			if err := txn.Delete(dedupKey(current.IdempotencyKey)); err != nil {
				return err
			}
		}

		entry := badger.NewEntry(terminalKey(job.Queue, "completed", now, job.ID), data).
			WithTTL(q.completedRetention)
		return txn.SetEntry(entry)
	})
	if err != nil {
		return fmt.Errorf("failed to complete job %s: %w", job.ID, err)
	}

	q.logger.Debug().
		Str("queue", job.Queue).
		Str("job_id", job.ID).
		Int("attempts", job.Attempts).
		Msg("Job completed")
	return nil
}

// Fail records a failed attempt. Jobs with attempts remaining are
// rescheduled with exponential backoff; exhausted jobs move to the
// failed retention set and release their idempotency key.
func (q *BadgerQueue) Fail(ctx context.Context, job *models.Job, jobErr error) error {
	now := time.Now()
	reason := "handler failed"
	if jobErr != nil {
		reason = jobErr.Error()
	}

	var terminal bool
	var backoff time.Duration

	err := q.db.Update(func(txn *badger.Txn) error {
		current, indexCopy, err := q.lookup(txn, job.Queue, job.ID)
		if err != nil {
			if err == badger.ErrKeyNotFound {
				return nil // already terminal
			}
			return err
		}

		current.LastError = reason

		if current.Attempts >= current.MaxAttempts {
			terminal = true
			return q.retire(txn, current, indexCopy, now)
		}

		backoff = q.backoffFor(current.Attempts)
		current.Status = models.JobStatusDelayed
		current.VisibleAt = now.Add(backoff)

		data, err := json.Marshal(current)
		if err != nil {
			return err
		}
		if err := txn.Set(jobKey(job.Queue, job.ID), data); err != nil {
			return err
		}
		if err := txn.Delete(indexCopy); err != nil {
			return err
		}
		return txn.Set(indexKey(job.Queue, current.Priority, current.VisibleAt, job.ID), []byte{})
	})
	if err != nil {
		return fmt.Errorf("failed to record failure for job %s: %w", job.ID, err)
	}

	if terminal {
		q.logger.Error().
			Str("queue", job.Queue).
			Str("job_id", job.ID).
			Int("attempts", job.Attempts).
			Str("error", reason).
			Msg("Job failed permanently")
	} else {
		q.logger.Warn().
			Str("queue", job.Queue).
			Str("job_id", job.ID).
			Int("attempt", job.Attempts).
			Dur("backoff", backoff).
			Str("error", reason).
			Msg("Job attempt failed, retry scheduled")
	}
	return nil
}

// Stats reports per-queue counts for status endpoints.
func (q *BadgerQueue) Stats(ctx context.Context) (map[string]interfaces.QueueStats, error) {
	stats := make(map[string]interfaces.QueueStats, len(models.QueueNames))

	err := q.db.View(func(txn *badger.Txn) error {
		for _, name := range models.QueueNames {
			var s interfaces.QueueStats

			opts := badger.DefaultIteratorOptions
			it := txn.NewIterator(opts)
			prefix := []byte(fmt.Sprintf("queue:%s:job:", name))
			for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
				var job models.Job
				if err := it.Item().Value(func(val []byte) error {
					return json.Unmarshal(val, &job)
				}); err != nil {
					continue
				}
				switch job.Status {
				case models.JobStatusWaiting:
					s.Waiting++
				case models.JobStatusDelayed:
					s.Delayed++
				case models.JobStatusActive:
					s.Active++
				}
			}
			it.Close()

			s.Completed = q.countPrefix(txn, terminalPrefix(name, "completed"))
			s.Failed = q.countPrefix(txn, terminalPrefix(name, "failed"))
			stats[name] = s
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to collect queue stats: %w", err)
	}
	return stats, nil
}

// retire moves an exhausted job to the failed retention set inside the
// caller's transaction.
func (q *BadgerQueue) retire(txn *badger.Txn, job *models.Job, indexCopy []byte, now time.Time) error {
	job.Status = models.JobStatusFailed
	job.CompletedAt = &now

	data, err := json.Marshal(job)
	if err != nil {
		return err
	}
	if err := txn.Delete(jobKey(job.Queue, job.ID)); err != nil {
		return err
	}
	if indexCopy != nil {
		if err := txn.Delete(indexCopy); err != nil {
			return err
		}
	}
	if job.IdempotencyKey != "" {
		if err := txn.Delete(dedupKey(job.IdempotencyKey)); err != nil {
			return err
		}
	}
	entry := badger.NewEntry(terminalKey(job.Queue, "failed", now, job.ID), data).
		WithTTL(q.failedRetention)
	return txn.SetEntry(entry)
}

// lookup reads a live job record and rebuilds its current index key.
func (q *BadgerQueue) lookup(txn *badger.Txn, queue, id string) (*models.Job, []byte, error) {
	item, err := txn.Get(jobKey(queue, id))
	if err != nil {
		return nil, nil, err
	}
	var job models.Job
	if err := item.Value(func(val []byte) error {
		return json.Unmarshal(val, &job)
	}); err != nil {
		return nil, nil, err
	}
	return &job, indexKey(queue, job.Priority, job.VisibleAt, job.ID), nil
}

// backoffFor doubles the initial delay per completed attempt.
func (q *BadgerQueue) backoffFor(attempts int) time.Duration {
	if attempts < 1 {
		attempts = 1
	}
	return q.backoffInitial * time.Duration(1<<(attempts-1))
}

func (q *BadgerQueue) countPrefix(txn *badger.Txn, prefix []byte) int {
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false
	it := txn.NewIterator(opts)
	defer it.Close()

	count := 0
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		count++
	}
	return count
}

// janitor enforces the retention count caps once a minute. Age-based
// expiry is handled by Badger TTLs on the terminal entries.
func (q *BadgerQueue) janitor() {
	defer close(q.janitorDone)

	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-q.janitorStop:
			return
		case <-ticker.C:
			for _, name := range models.QueueNames {
				q.pruneTerminal(name, "completed", q.completedMax)
				q.pruneTerminal(name, "failed", q.failedMax)
			}
		}
	}
}

// pruneTerminal drops the oldest terminal records beyond the cap.
// Terminal keys embed the finish time, so key order is age order.
func (q *BadgerQueue) pruneTerminal(queue, state string, max int) {
	if max <= 0 {
		return
	}

	prefix := terminalPrefix(queue, state)
	var stale [][]byte

	err := q.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		var keys [][]byte
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			keys = append(keys, it.Item().KeyCopy(nil))
		}
		if len(keys) > max {
			stale = keys[:len(keys)-max]
		}
		return nil
	})
	if err != nil {
		q.logger.Warn().Err(err).Str("queue", queue).Msg("Retention scan failed")
		return
	}
	if len(stale) == 0 {
		return
	}

	err = q.db.Update(func(txn *badger.Txn) error {
		for _, key := range stale {
			if err := txn.Delete(key); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		q.logger.Warn().Err(err).Str("queue", queue).Msg("Retention prune failed")
		return
	}

	q.logger.Debug().
		Str("queue", queue).
		Str("state", state).
		Int("pruned", len(stale)).
		Msg("Terminal jobs pruned beyond retention cap")
}

func marshalPayload(payload interface{}) (json.RawMessage, error) {
	switch p := payload.(type) {
	case json.RawMessage:
		return p, nil
	case []byte:
		return json.RawMessage(p), nil
	default:
		return json.Marshal(payload)
	}
}

func jobKey(queue, id string) []byte {
	return []byte(fmt.Sprintf("queue:%s:job:%s", queue, id))
}

// indexKey orders ready jobs by priority band, then visibility time.
func indexKey(queue string, priority int, visibleAt time.Time, id string) []byte {
	return []byte(fmt.Sprintf("queue:%s:index:%03d:%020d:%s", queue, priority, visibleAt.UnixNano(), id))
}

func indexPrefix(queue string) []byte {
	return []byte(fmt.Sprintf("queue:%s:index:", queue))
}

func dedupKey(idempotencyKey string) []byte {
	return []byte(fmt.Sprintf("queue:dedup:%s", idempotencyKey))
}

func terminalKey(queue, state string, finishedAt time.Time, id string) []byte {
	return []byte(fmt.Sprintf("queue:%s:%s:%020d:%s", queue, state, finishedAt.UnixNano(), id))
}

func terminalPrefix(queue, state string) []byte {
	return []byte(fmt.Sprintf("queue:%s:%s:", queue, state))
}

func parseIndexKey(key []byte) (priority int, visibleAt time.Time, id string, err error) {
	parts := strings.Split(string(key), ":")
	if len(parts) != 6 {
		return 0, time.Time{}, "", fmt.Errorf("malformed index key: %s", string(key))
	}
	priority, err = strconv.Atoi(parts[3])
	if err != nil {
		return 0, time.Time{}, "", fmt.Errorf("malformed priority in index key: %w", err)
	}
	nanos, err := strconv.ParseInt(parts[4], 10, 64)
	if err != nil {
		return 0, time.Time{}, "", fmt.Errorf("malformed timestamp in index key: %w", err)
	}
	return priority, time.Unix(0, nanos), parts[5], nil
}
