package jobs

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// DefaultJobTimeout bounds one job, including every LLM attempt and the final send.
const DefaultJobTimeout = 3 * time.Minute

// Pool runs jobs on a fixed number of in-process workers fed by a bounded queue.
type Pool struct {
	handler Handler
	workers int
	timeout time.Duration
	log     *slog.Logger

	mu     sync.RWMutex
	closed bool
	queue  chan Job
}

// NewPool creates a pool; call Run to start the workers.
func NewPool(handler Handler, workers, queueSize int, log *slog.Logger) *Pool {
	if workers < 1 {
		workers = 1
	}
	if queueSize < 0 {
		queueSize = 0
	}
	return &Pool{
		handler: handler,
		workers: workers,
		timeout: DefaultJobTimeout,
		log:     log.With("component", "job_pool"),
		queue:   make(chan Job, queueSize),
	}
}

// Enqueue hands job to a worker without blocking. It returns ErrQueueFull
// when the queue is at capacity.
func (p *Pool) Enqueue(ctx context.Context, job Job) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrClosed
	}
	select {
	case p.queue <- job:
		p.log.DebugContext(ctx, "Job enqueued", "job_id", job.ID, "kind", job.Kind)
		return nil
	default:
		p.log.WarnContext(ctx, "Job queue full", "job_id", job.ID, "kind", job.Kind)
		return ErrQueueFull
	}
}

// Run processes jobs until ctx is cancelled, then drains what is already
// queued and returns.
func (p *Pool) Run(ctx context.Context) error {
	g, gCtx := errgroup.WithContext(context.WithoutCancel(ctx))

	for i := range p.workers {
		g.Go(func() error {
			for job := range p.queue {
				p.run(gCtx, i, job)
			}
			return nil
		})
	}

	<-ctx.Done()
	p.mu.Lock()
	p.closed = true
	close(p.queue)
	p.mu.Unlock()

	p.log.Info("Draining job queue", "pending", len(p.queue))
	return g.Wait()
}

func (p *Pool) run(ctx context.Context, worker int, job Job) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			p.log.ErrorContext(ctx, "Job panicked", "job_id", job.ID, "kind", job.Kind, "panic", r)
		}
	}()

	if err := p.handler.Handle(ctx, job); err != nil {
		p.log.ErrorContext(ctx, "Job failed", "job_id", job.ID, "kind", job.Kind, "worker", worker, "error", err)
		return
	}
	p.log.DebugContext(ctx, "Job done", "job_id", job.ID, "kind", job.Kind, "worker", worker, "duration_ms", time.Since(start).Milliseconds())
}
