package queue

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"github.com/hybridsearch/engine/internal/model"
)

// Handler executes one job's work. A nil error commits the job; any error
// triggers Retry with backoff. Handlers must be idempotent: a job may be
// re-delivered after a crash between Dequeue and Complete.
type Handler func(ctx context.Context, job *model.Job) error

// Role distinguishes a process that may drain queues (Processor) from one
// that only submits work (Client). At most one Processor per (queue,
// instance) may run at a time; enforced via an exclusive file lock so a
// second process attempting to start as Processor fails fast instead of
// silently duplicating work.
type Role int

const (
	RoleClient Role = iota
	RoleProcessor
)

// Processor drains one or more named queues with bounded per-queue
// concurrency, retrying failed jobs forever with exponential backoff.
type Processor struct {
	queue *Queue
	lock  *flock.Flock

	mu      sync.Mutex
	workers map[string]*queueWorker
}

type queueWorker struct {
	name        string
	concurrency int
	handler     Handler
	cancel      context.CancelFunc
	wg          sync.WaitGroup
}

// NewProcessor creates a Processor over queue, acquiring an exclusive file
// lock at lockPath. It returns an error immediately if another process
// already holds the Processor role for this lock file.
func NewProcessor(q *Queue, lockPath string) (*Processor, error) {
	if err := os.MkdirAll(filepath.Dir(lockPath), 0755); err != nil {
		return nil, fmt.Errorf("create processor lock directory: %w", err)
	}

	lock := flock.New(lockPath)
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire processor lock: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("another process already holds the processor role (lock held: %s)", lockPath)
	}

	return &Processor{
		queue:   q,
		lock:    lock,
		workers: make(map[string]*queueWorker),
	}, nil
}

// Register starts draining queueName with the given concurrency and
// handler. Safe to call for multiple queues before Close. Before starting
// any worker, it reconciles jobs left in JobStatusActive by a prior crash
// back onto the pending FIFO so they are redelivered instead of stranded.
func (p *Processor) Register(ctx context.Context, queueName string, concurrency int, handler Handler) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if concurrency < 1 {
		concurrency = 1
	}

	if n, err := p.queue.ReconcileActive(queueName); err != nil {
		slog.Error("queue_reconcile_failed", slog.String("queue", queueName), slog.String("error", err.Error()))
	} else if n > 0 {
		slog.Warn("queue_reconciled_stranded_jobs", slog.String("queue", queueName), slog.Int("count", n))
	}

	workerCtx, cancel := context.WithCancel(ctx)
	w := &queueWorker{name: queueName, concurrency: concurrency, handler: handler, cancel: cancel}
	p.workers[queueName] = w

	for i := 0; i < concurrency; i++ {
		w.wg.Add(1)
		go p.runLoop(workerCtx, w)
	}
}

// runLoop polls queueName, executing jobs serially within this goroutine's
// slot. An empty queue backs off briefly before polling again; suspension
// here is the worker realm blocking on network/durable I/O inside handler.
func (p *Processor) runLoop(ctx context.Context, w *queueWorker) {
	defer w.wg.Done()

	idle := 50 * time.Millisecond
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		job, err := p.queue.Dequeue(w.name)
		if err != nil {
			slog.Error("queue_dequeue_failed", slog.String("queue", w.name), slog.String("error", err.Error()))
			time.Sleep(idle)
			continue
		}
		if job == nil {
			select {
			case <-ctx.Done():
				return
			case <-time.After(idle):
			}
			continue
		}

		if err := w.handler(ctx, job); err != nil {
			if retryErr := p.queue.Retry(w.name, job, err); retryErr != nil {
				slog.Error("queue_retry_persist_failed",
					slog.String("queue", w.name), slog.Uint64("job_id", job.ID),
					slog.String("error", retryErr.Error()))
			} else {
				slog.Warn("queue_job_retrying",
					slog.String("queue", w.name), slog.Uint64("job_id", job.ID),
					slog.Int("attempt", job.Attempt), slog.String("cause", err.Error()))
			}
			continue
		}

		if err := p.queue.Complete(w.name, job); err != nil {
			slog.Error("queue_complete_persist_failed",
				slog.String("queue", w.name), slog.Uint64("job_id", job.ID),
				slog.String("error", err.Error()))
		}
	}
}

// Close stops all worker loops, waits for in-flight handlers to return, and
// releases the processor file lock.
func (p *Processor) Close() error {
	p.mu.Lock()
	workers := make([]*queueWorker, 0, len(p.workers))
	for _, w := range p.workers {
		workers = append(workers, w)
	}
	p.mu.Unlock()

	for _, w := range workers {
		w.cancel()
	}
	for _, w := range workers {
		w.wg.Wait()
	}

	return p.lock.Unlock()
}
