package queue

import (
	"context"
	"errors"
	"sync"
)

var (
	ErrQueueClosed  = errors.New("queue closed")
	ErrTooManyDones = errors.New("Done called more times than items were pushed")
)

// Queue is an unbounded FIFO work queue. Every pushed item counts as
// outstanding until a matching Done call; Join waits for that count to reach
// zero, so an item re-pushed before the original Done keeps Join blocked.
type Queue[T any] struct {
	mu      sync.Mutex
	items   []T
	pending int
	closed  bool
	// closed and replaced on every state change to wake all waiters
	notify chan struct{}
}

func New[T any]() *Queue[T] {
	return &Queue[T]{notify: make(chan struct{})}
}

// Push appends item to the tail of the queue.
func (q *Queue[T]) Push(item T) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrQueueClosed
	}

	q.items = append(q.items, item)
	q.pending++
	q.broadcast()

	return nil
}

// Pop removes the head of the queue, blocking until an item is available,
// ctx is done, or the queue is closed and drained.
func (q *Queue[T]) Pop(ctx context.Context) (T, error) {
	var zero T

	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			item := q.items[0]
			q.items[0] = zero
			q.items = q.items[1:]
			q.mu.Unlock()

			return item, nil
		}

		if q.closed {
			q.mu.Unlock()
			return zero, ErrQueueClosed
		}

		wait := q.notify
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-wait:
		}
	}
}

// Done acknowledges one previously popped item.
func (q *Queue[T]) Done() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.pending == 0 {
		return ErrTooManyDones
	}

	q.pending--
	if q.pending == 0 {
		q.broadcast()
	}

	return nil
}

// Join blocks until every pushed item has been acknowledged or ctx is done.
func (q *Queue[T]) Join(ctx context.Context) error {
	for {
		q.mu.Lock()
		if q.pending == 0 {
			q.mu.Unlock()
			return nil
		}

		wait := q.notify
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-wait:
		}
	}
}

// Close rejects further pushes and releases workers blocked in Pop once the
// remaining items are consumed.
func (q *Queue[T]) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}

	q.closed = true
	q.broadcast()
}

// Len returns the number of items waiting to be popped.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	return len(q.items)
}

// Pending returns the number of pushed items not yet acknowledged.
func (q *Queue[T]) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	return q.pending
}

func (q *Queue[T]) broadcast() {
	close(q.notify)
	q.notify = make(chan struct{})
}
