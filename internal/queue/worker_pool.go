package queue

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/fides/internal/common"
	"github.com/ternarybob/fides/internal/interfaces"
	"github.com/ternarybob/fides/internal/models"
)

// registration binds one queue to its handler and worker count.
type registration struct {
	queue       string
	concurrency int
	handler     interfaces.JobHandler
}

// Pool runs a fixed set of polling workers per registered queue.
// Stop cancels polling and waits for in-flight handlers to return, so
// a shutdown never abandons a claimed job mid-handler.
type Pool struct {
	queueMgr      interfaces.QueueManager
	logger        arbor.ILogger
	pollInterval  time.Duration
	registrations []registration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewPool creates a worker pool over the queue manager.
func NewPool(queueMgr interfaces.QueueManager, cfg common.QueueConfig, logger arbor.ILogger) *Pool {
	ctx, cancel := context.WithCancel(context.Background())

	return &Pool{
		queueMgr:     queueMgr,
		logger:       logger,
		pollInterval: common.ParseDurationOr(cfg.PollInterval, time.Second),
		ctx:          ctx,
		cancel:       cancel,
	}
}

// RegisterHandler binds a handler to a queue. Must be called before
// Start.
func (p *Pool) RegisterHandler(queue string, concurrency int, handler interfaces.JobHandler) {
	if concurrency < 1 {
		concurrency = 1
	}
	p.registrations = append(p.registrations, registration{
		queue:       queue,
		concurrency: concurrency,
		handler:     handler,
	})
	p.logger.Debug().
		Str("queue", queue).
		Int("concurrency", concurrency).
		Msg("Job handler registered")
}

// Start launches the worker goroutines.
func (p *Pool) Start() error {
	total := 0
	for _, reg := range p.registrations {
		for i := 0; i < reg.concurrency; i++ {
			p.wg.Add(1)
			go p.worker(reg, i)
			total++
		}
	}

	p.logger.Info().
		Int("workers", total).
		Int("queues", len(p.registrations)).
		Msg("Worker pool started")
	return nil
}

// Stop cancels polling and blocks until every in-flight job handler
// has returned.
func (p *Pool) Stop() error {
	p.logger.Info().Msg("Stopping worker pool")
	p.cancel()
	p.wg.Wait()
	p.logger.Info().Msg("Worker pool stopped")
	return nil
}

// worker is the poll loop for one goroutine on one queue.
func (p *Pool) worker(reg registration, workerID int) {
	defer p.wg.Done()

	// Stagger worker starts to reduce write-transaction contention on
	// the shared index prefix.
	stagger := (p.pollInterval / time.Duration(reg.concurrency)) * time.Duration(workerID)
	if stagger > 0 {
		select {
		case <-p.ctx.Done():
			return
		case <-time.After(stagger):
		}
	}

	p.logger.Debug().
		Str("queue", reg.queue).
		Int("worker_id", workerID).
		Msg("Worker started")

	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.ctx.Done():
			p.logger.Debug().
				Str("queue", reg.queue).
				Int("worker_id", workerID).
				Msg("Worker stopped")
			return

		case <-ticker.C:
			// Drain ready jobs before going back to sleep.
			for {
				if p.ctx.Err() != nil {
					return
				}
				if err := p.processOne(reg, workerID); err != nil {
					if !errors.Is(err, models.ErrNoJob) {
						p.logger.Warn().
							Err(err).
							Str("queue", reg.queue).
							Int("worker_id", workerID).
							Msg("Error processing job")
					}
					break
				}
			}
		}
	}
}

// processOne claims and runs a single job. Returns models.ErrNoJob
// when the queue has nothing ready.
func (p *Pool) processOne(reg registration, workerID int) error {
	job, err := p.queueMgr.Receive(p.ctx, reg.queue)
	if err != nil {
		return err
	}

	p.logger.Debug().
		Str("queue", reg.queue).
		Str("job_id", job.ID).
		Int("attempt", job.Attempts).
		Int("worker_id", workerID).
		Msg("Processing job")

	start := time.Now()
	handlerErr := p.invoke(reg.handler, job)
	duration := time.Since(start)

	if handlerErr != nil {
		if failErr := p.queueMgr.Fail(p.ctx, job, handlerErr); failErr != nil {
			p.logger.Warn().
				Err(failErr).
				Str("job_id", job.ID).
				Msg("Failed to record job failure")
			return failErr
		}
		return nil
	}

	if err := p.queueMgr.Complete(p.ctx, job); err != nil {
		p.logger.Warn().
			Err(err).
			Str("job_id", job.ID).
			Msg("Failed to mark job completed")
		return err
	}

	p.logger.Info().
		Str("queue", reg.queue).
		Str("job_id", job.ID).
		Dur("duration", duration).
		Int("worker_id", workerID).
		Msg("Job completed")
	return nil
}

// invoke runs the handler with panic recovery so a panicking job goes
// through the normal retry policy instead of killing the worker.
func (p *Pool) invoke(handler interfaces.JobHandler, job *models.Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error().
				Str("job_id", job.ID).
				Str("queue", job.Queue).
				Str("panic", fmt.Sprintf("%v", r)).
				Str("stack", string(debug.Stack())).
				Msg("PANIC in job handler")
			err = fmt.Errorf("job handler panicked: %v", r)
		}
	}()
	return handler(p.ctx, job)
}
