package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/patroncollective/patron/internal/metrics"
)

const (
	// defaultPollInterval is how often each queue goroutine checks for new jobs.
	defaultPollInterval = 2 * time.Second

	// staleCheckInterval is how often the recovery goroutine runs.
	staleCheckInterval = 1 * time.Minute

	// staleThreshold is the age at which a 'running' job is considered stuck.
	staleThreshold = 5 * time.Minute
)

// Pool manages a set of goroutine workers that claim and execute jobs from
// the job_queue table. One polling goroutine runs per registered queue; a
// shared stale-lock recovery goroutine resets stuck jobs.
type Pool struct {
	queue        Queue
	workerID     string
	pollInterval time.Duration
	logger       *slog.Logger
	mu           sync.RWMutex
	handlers     map[string]Handler
}

// Option configures a Pool.
type Option func(*Pool)

// WithPollInterval overrides how often each queue is polled.
func WithPollInterval(d time.Duration) Option {
	return func(p *Pool) { p.pollInterval = d }
}

// WithLogger sets the pool logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Pool) { p.logger = l }
}

// New creates a Pool backed by q. A random workerID is generated at construction
// time to distinguish this process in the locked_by column.
func New(q Queue, opts ...Option) *Pool {
	p := &Pool{
		queue:        q,
		workerID:     uuid.New().String(),
		pollInterval: defaultPollInterval,
		logger:       slog.Default(),
		handlers:     make(map[string]Handler),
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Register associates h with the named queue. Must be called before Start.
func (p *Pool) Register(queue string, h Handler) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.handlers[queue] = h
}

// Start launches one polling goroutine per registered queue plus the stale-lock
// recovery goroutine, then blocks until ctx is cancelled. When ctx is cancelled,
// all goroutines stop accepting new jobs, any in-flight job completes, and Start
// returns after all goroutines have exited.
func (p *Pool) Start(ctx context.Context) {
	p.mu.RLock()
	queues := make([]string, 0, len(p.handlers))
	for q := range p.handlers {
		queues = append(queues, q)
	}
	p.mu.RUnlock()

	var wg sync.WaitGroup

	for _, q := range queues {
		wg.Add(1)
		go func(queue string) {
			defer wg.Done()
			p.runQueue(ctx, queue)
		}(q)
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		p.runStaleRecovery(ctx)
	}()

	wg.Wait()
	p.logger.Info("worker pool stopped", "worker_id", p.workerID)
}

// runQueue polls queue for jobs until ctx is cancelled. Uses time.NewTicker
// (not time.After) to avoid timer leaks.
func (p *Pool) runQueue(ctx context.Context, queue string) {
	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	p.logger.Info("worker queue started", "queue", queue, "worker_id", p.workerID)

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("worker queue stopping", "queue", queue)
			return
		case <-ticker.C:
			p.processOne(ctx, queue)
		}
	}
}

// processOne claims one job from queue and executes it. Errors are logged but
// do not stop the polling loop; the goroutine continues to the next tick.
// Reports whether a job was claimed.
func (p *Pool) processOne(ctx context.Context, queue string) bool {
	job, err := p.queue.ClaimJob(ctx, queue, p.workerID)
	if err != nil {
		p.logger.Error("claim job error", "queue", queue, "error", err)
		return false
	}
	if job == nil {
		return false // no job available; normal case
	}

	p.mu.RLock()
	h := p.handlers[queue]
	p.mu.RUnlock()

	if h == nil {
		p.logger.Error("no handler registered for queue",
			"queue", queue, "job_id", job.ID)
		return true
	}

	p.logger.Info("executing job",
		"queue", queue, "job_id", job.ID, "attempts", job.Attempts)

	if err := h(ctx, job.Payload); err != nil {
		metrics.JobsProcessed.WithLabelValues(queue, "failed").Inc()
		p.logger.Error("job handler failed",
			"queue", queue, "job_id", job.ID, "error", err)
		if failErr := p.queue.FailJob(ctx, job.ID, err.Error()); failErr != nil {
			p.logger.Error("fail job error", "job_id", job.ID, "error", failErr)
		}
		return true
	}

	metrics.JobsProcessed.WithLabelValues(queue, "succeeded").Inc()
	if err := p.queue.CompleteJob(ctx, job.ID); err != nil {
		p.logger.Error("complete job error", "job_id", job.ID, "error", err)
		return true
	}
	p.logger.Info("job completed", "queue", queue, "job_id", job.ID)
	return true
}

// Drain processes jobs from queue until none is available or ctx is
// cancelled, and returns how many were claimed. Used by one-shot CLI runs.
func (p *Pool) Drain(ctx context.Context, queue string) int {
	n := 0
	for ctx.Err() == nil && p.processOne(ctx, queue) {
		n++
	}
	return n
}

// runStaleRecovery periodically resets jobs stuck in 'running' state. Uses
// time.NewTicker (not time.After) to avoid timer leaks.
func (p *Pool) runStaleRecovery(ctx context.Context) {
	ticker := time.NewTicker(staleCheckInterval)
	defer ticker.Stop()

	p.logger.Info("stale recovery started", "worker_id", p.workerID,
		"threshold", staleThreshold, "check_interval", staleCheckInterval)

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("stale recovery stopping")
			return
		case <-ticker.C:
			n, err := p.queue.RecoverStaleJobs(ctx, staleThreshold)
			if err != nil {
				p.logger.Error("stale job recovery error", "error", err)
				continue
			}
			if n > 0 {
				p.logger.Info("reclaimed stale jobs", "count", n)
			}
		}
	}
}
