package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
)

const redisPingTimeout = 5 * time.Second

// PingRedis checks that the redis server behind url is reachable.
func PingRedis(ctx context.Context, url string) error {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return fmt.Errorf("failed to parse redis url: %w", err)
	}
	client := redis.NewClient(opt)
	defer client.Close()

	ctx, cancel := context.WithTimeout(ctx, redisPingTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to reach redis at %s: %w", opt.Addr, err)
	}
	return nil
}

// AsynqDispatcher enqueues jobs as asynq tasks so any dogbot process
// sharing the redis server can run them.
type AsynqDispatcher struct {
	client  *asynq.Client
	queue   string
	timeout time.Duration
	log     *slog.Logger
}

// NewAsynqDispatcher connects to the redis server at url.
func NewAsynqDispatcher(ctx context.Context, url, queue string, log *slog.Logger) (*AsynqDispatcher, error) {
	if err := PingRedis(ctx, url); err != nil {
		return nil, err
	}
	opt, err := asynq.ParseRedisURI(url)
	if err != nil {
		return nil, fmt.Errorf("asynq: parse redis url: %w", err)
	}
	return &AsynqDispatcher{
		client:  asynq.NewClient(opt),
		queue:   queue,
		timeout: DefaultJobTimeout,
		log:     log.With("component", "asynq_dispatcher"),
	}, nil
}

// Enqueue publishes job. Jobs are not retried: the engine already retries
// what can be retried, and a repeated reply would be worse than none.
func (d *AsynqDispatcher) Enqueue(ctx context.Context, job Job) error {
	task := asynq.NewTask(string(job.Kind), job.Payload)
	info, err := d.client.EnqueueContext(ctx, task,
		asynq.TaskID(job.ID),
		asynq.Queue(d.queue),
		asynq.MaxRetry(0),
		asynq.Timeout(d.timeout),
		asynq.Retention(time.Hour),
	)
	if err != nil {
		return fmt.Errorf("failed to enqueue %s job: %w", job.Kind, err)
	}
	d.log.DebugContext(ctx, "Job enqueued", "job_id", info.ID, "kind", job.Kind, "queue", info.Queue)
	return nil
}

func (d *AsynqDispatcher) Close() error {
	return d.client.Close()
}

// AsynqWorker consumes the tasks published by AsynqDispatcher.
type AsynqWorker struct {
	server *asynq.Server
	mux    *asynq.ServeMux
	log    *slog.Logger
}

// NewAsynqWorker builds a worker with the given concurrency that hands every
// job kind to handler.
func NewAsynqWorker(url, queue string, concurrency int, handler Handler, log *slog.Logger) (*AsynqWorker, error) {
	opt, err := asynq.ParseRedisURI(url)
	if err != nil {
		return nil, fmt.Errorf("asynq: parse redis url: %w", err)
	}
	log = log.With("component", "asynq_worker")

	srv := asynq.NewServer(opt, asynq.Config{
		Concurrency: concurrency,
		Queues:      map[string]int{queue: 1},
		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
			log.ErrorContext(ctx, "Job failed", "kind", task.Type(), "error", err)
		}),
	})

	mux := asynq.NewServeMux()
	for _, kind := range []Kind{KindSummarize, KindReply, KindTranslate} {
		mux.HandleFunc(string(kind), func(ctx context.Context, t *asynq.Task) error {
			id, _ := asynq.GetTaskID(ctx)
			return handler.Handle(ctx, Job{ID: id, Kind: Kind(t.Type()), Payload: t.Payload()})
		})
	}
	return &AsynqWorker{server: srv, mux: mux, log: log}, nil
}

// Run starts the worker and blocks until ctx is cancelled.
func (w *AsynqWorker) Run(ctx context.Context) error {
	if err := w.server.Start(w.mux); err != nil {
		return fmt.Errorf("failed to start asynq worker: %w", err)
	}
	w.log.Info("Asynq worker started")
	<-ctx.Done()
	w.server.Shutdown()
	w.log.Info("Asynq worker stopped")
	return nil
}
