// Package queue serializes write operations against the ledger store.
//
// A WriteQueue feeds jobs through a channel to a single worker goroutine,
// so at most one write is in flight and writes complete in submission
// order. A job that fails or panics is logged and the worker moves on to
// the next one.
package queue

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"misgastos/internal/log"
)

var (
	ErrNotRunning = errors.New("write queue is not running")
	ErrRunning    = errors.New("write queue is already running")
)

// DefaultSize is the channel capacity used when New receives size < 1.
const DefaultSize = 64

// Task is a unit of work run by the queue worker.
type Task func(ctx context.Context) (any, error)

// Result is what a Task produced.
type Result struct {
	Value any
	Err   error
}

// Future resolves once its job has run.
type Future struct {
	seq  uint64
	done chan Result
}

// Seq returns the submission sequence number of the job.
func (f *Future) Seq() uint64 { return f.seq }

// Wait blocks until the job has run or ctx ends. An abandoned wait does
// not cancel the job.
func (f *Future) Wait(ctx context.Context) (any, error) {
	select {
	case r := <-f.done:
		return r.Value, r.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

type job struct {
	seq  uint64
	ctx  context.Context
	task Task
	done chan Result
}

// WriteQueue runs submitted tasks one at a time in FIFO order.
type WriteQueue struct {
	logger *log.Logger
	jobs   chan *job
	seq    atomic.Uint64

	// Lifecycle management
	mu      sync.RWMutex
	running bool
	doneCh  chan struct{}
}

// New creates a stopped queue whose channel holds up to size pending jobs.
func New(size int, logger *log.Logger) *WriteQueue {
	if size < 1 {
		size = DefaultSize
	}
	if logger == nil {
		logger = log.Discard()
	}
	return &WriteQueue{
		logger: logger.WithComponent(log.ComponentQueue),
		jobs:   make(chan *job, size),
	}
}

// Start launches the worker. Returns an error if already running.
func (q *WriteQueue) Start(ctx context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.running {
		return ErrRunning
	}
	if q.doneCh != nil {
		// the jobs channel was closed by a previous Stop
		return fmt.Errorf("write queue cannot be restarted: %w", ErrNotRunning)
	}
	q.running = true
	q.doneCh = make(chan struct{})

	go q.drain()

	q.logger.InfoContext(ctx, "Write queue started", "capacity", cap(q.jobs))
	return nil
}

// Stop refuses new jobs, runs every job already queued and waits for the
// worker to exit or ctx to end.
func (q *WriteQueue) Stop(ctx context.Context) error {
	q.mu.Lock()
	if !q.running {
		q.mu.Unlock()
		return nil
	}
	q.running = false
	close(q.jobs)
	q.mu.Unlock()

	select {
	case <-q.doneCh:
		q.logger.InfoContext(ctx, "Write queue stopped gracefully")
		return nil
	case <-ctx.Done():
		q.logger.WarnContext(ctx, "Write queue stop timed out", log.FieldQueueDepth, len(q.jobs))
		return ctx.Err()
	}
}

// IsRunning returns whether the queue accepts jobs.
func (q *WriteQueue) IsRunning() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.running
}

// Len returns the number of jobs waiting to run.
func (q *WriteQueue) Len() int {
	return len(q.jobs)
}

// Enqueue appends task to the queue. It blocks while the queue is full,
// giving up when ctx ends. Once Enqueue returns a Future the task will run
// with a context that carries ctx's values but not its cancellation.
// A task must not enqueue onto the same queue and wait for it.
func (q *WriteQueue) Enqueue(ctx context.Context, task Task) (*Future, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if !q.running {
		return nil, ErrNotRunning
	}

	j := &job{
		seq:  q.seq.Add(1),
		ctx:  context.WithoutCancel(ctx),
		task: task,
		done: make(chan Result, 1),
	}
	select {
	case q.jobs <- j:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return &Future{seq: j.seq, done: j.done}, nil
}

// Submit enqueues fn and waits for its result.
func Submit[T any](ctx context.Context, q *WriteQueue, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	f, err := q.Enqueue(ctx, func(ctx context.Context) (any, error) {
		return fn(ctx)
	})
	if err != nil {
		return zero, err
	}
	v, err := f.Wait(ctx)
	if err != nil {
		return zero, err
	}
	out, _ := v.(T)
	return out, nil
}

// Exec is Submit for tasks without a result value.
func Exec(ctx context.Context, q *WriteQueue, fn func(ctx context.Context) error) error {
	_, err := Submit(ctx, q, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

func (q *WriteQueue) drain() {
	defer close(q.doneCh)
	for j := range q.jobs {
		q.run(j)
	}
}

// run executes one job; failures and panics are reported to the
// submitter and logged, never propagated to the loop.
func (q *WriteQueue) run(j *job) {
	start := time.Now()
	var res Result
	func() {
		defer func() {
			if r := recover(); r != nil {
				res = Result{Err: fmt.Errorf("queued write panicked: %v", r)}
				q.logger.ErrorContext(j.ctx, "Queued write panicked",
					log.FieldJobSeq, j.seq,
					"panic", r,
					"stack", string(debug.Stack()))
			}
		}()
		v, err := j.task(j.ctx)
		res = Result{Value: v, Err: err}
	}()

	if res.Err != nil {
		q.logger.ErrorContext(j.ctx, "Queued write failed",
			log.FieldJobSeq, j.seq,
			log.FieldError, res.Err,
			log.FieldDuration, time.Since(start).Milliseconds())
	} else {
		q.logger.DebugContext(j.ctx, "Queued write completed",
			log.FieldJobSeq, j.seq,
			log.FieldDuration, time.Since(start).Milliseconds())
	}
	j.done <- res
}
