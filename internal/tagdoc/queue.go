package tagdoc

import (
	"context"
	"log/slog"
	"sync"

	domainerrors "github.com/starwatchapp/starwatch/internal/errors"
)

// DefaultQueueCapacity bounds waiting plus running operations.
const DefaultQueueCapacity = 50

// ErrQueueClosed is returned for work submitted after Close.
var ErrQueueClosed = domainerrors.Unavailable("Tag operations are shutting down")

type job struct {
	ctx     context.Context
	fn      func(context.Context) error
	started chan struct{}
	done    chan error
}

// Queue runs submitted operations one at a time in FIFO order. At most
// capacity operations may be pending at once; the rest are rejected with a
// CAPACITY error instead of waiting.
type Queue struct {
	jobs     chan job
	capacity int
	logger   *slog.Logger

	mu      sync.Mutex
	pending int
	closed  bool

	wg sync.WaitGroup
}

// NewQueue starts the queue worker.
func NewQueue(capacity int, logger *slog.Logger) *Queue {
	if capacity <= 0 {
		capacity = DefaultQueueCapacity
	}
	q := &Queue{
		// Sized to capacity so an admitted job never blocks on send.
		jobs:     make(chan job, capacity),
		capacity: capacity,
		logger:   logger,
	}
	q.wg.Add(1)
	go q.worker()
	return q
}

// Run submits fn and waits for it to finish. If ctx ends while fn is still
// waiting its turn, fn is skipped and ctx.Err() returned. Once fn has started
// it runs to completion and Run reports its result.
func (q *Queue) Run(ctx context.Context, fn func(context.Context) error) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrQueueClosed
	}
	if q.pending >= q.capacity {
		pending := q.pending
		q.mu.Unlock()
		q.logger.Warn("tag operation rejected, queue full", slog.Int("pending", pending), slog.Int("capacity", q.capacity))
		return domainerrors.Capacityf("Too many pending tag operations (%d). Try again in a moment.", q.capacity)
	}
	q.pending++
	j := job{ctx: ctx, fn: fn, started: make(chan struct{}), done: make(chan error, 1)}
	q.jobs <- j
	q.mu.Unlock()

	select {
	case err := <-j.done:
		return err
	case <-ctx.Done():
	}
	select {
	case <-j.started:
		return <-j.done
	default:
		return ctx.Err()
	}
}

// Pending returns the number of admitted operations not yet finished.
func (q *Queue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.pending
}

func (q *Queue) worker() {
	defer q.wg.Done()

	for j := range q.jobs {
		// started is closed before the ctx check: a caller that sees it open
		// after ctx ended knows fn will be skipped.
		close(j.started)
		var err error
		if err = j.ctx.Err(); err == nil {
			err = q.execute(j)
		}
		j.done <- err

		q.mu.Lock()
		q.pending--
		q.mu.Unlock()
	}
}

func (q *Queue) execute(j job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			q.logger.Error("tag operation panicked", slog.Any("panic", r))
			err = domainerrors.Internalf("tag operation failed: %v", r)
		}
	}()
	return j.fn(j.ctx)
}

// Close stops accepting work and waits for admitted operations to finish.
func (q *Queue) Close() error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	close(q.jobs)
	q.mu.Unlock()

	q.wg.Wait()
	return nil
}
