package queue

import (
	"context"
	"errors"
	"sync"
	"time"
)

var (
	// ErrFull is returned by OfferLimited when the queue is at capacity.
	// It is retryable.
	ErrFull = errors.New("task queue full")

	// ErrClosed is returned once the queue has been shut down.
	ErrClosed = errors.New("task queue closed")

	// ErrBusy is returned by Destroy while consumers are blocked in Take.
	ErrBusy = errors.New("task queue has blocked consumers")
)

// TaskQueue is a named, capacity-limited FIFO handing items from producers
// to consumers. Items are owned by the queue between a successful offer and
// the Take that returns them.
type TaskQueue[T any] struct {
	name     string
	capacity int

	mu        sync.Mutex
	items     []T
	head      int
	waiters   int
	closed    bool
	destroyed bool
	// notEmpty is closed and replaced whenever items arrive or the queue
	// shuts down, waking every blocked Take.
	notEmpty chan struct{}

	offered  uint64
	rejected uint64
	taken    uint64
}

// TaskQueueStats is a snapshot of queue counters.
type TaskQueueStats struct {
	Name     string
	Capacity int
	Size     int
	Waiters  int
	Offered  uint64
	Rejected uint64
	Taken    uint64
}

// NewTaskQueue creates a queue. capacity must be positive.
func NewTaskQueue[T any](name string, capacity int) *TaskQueue[T] {
	if capacity <= 0 {
		panic("queue: capacity must be positive")
	}
	return &TaskQueue[T]{
		name:     name,
		capacity: capacity,
		items:    make([]T, 0, capacity),
		notEmpty: make(chan struct{}),
	}
}

// Name returns the queue's name.
func (q *TaskQueue[T]) Name() string { return q.name }

// Capacity returns the configured capacity.
func (q *TaskQueue[T]) Capacity() int { return q.capacity }

// Len returns the number of queued items.
func (q *TaskQueue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items) - q.head
}

// OfferLimited appends item unless the queue already holds capacity items,
// in which case it returns ErrFull without blocking.
func (q *TaskQueue[T]) OfferLimited(item T) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrClosed
	}
	if len(q.items)-q.head >= q.capacity {
		q.rejected++
		return ErrFull
	}
	q.pushLocked(item)
	return nil
}

// OfferUnlimited appends item regardless of capacity. It is meant for
// control items that must not be dropped under backpressure.
func (q *TaskQueue[T]) OfferUnlimited(item T) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrClosed
	}
	q.pushLocked(item)
	return nil
}

func (q *TaskQueue[T]) pushLocked(item T) {
	q.items = append(q.items, item)
	q.offered++
	q.wakeLocked()
}

func (q *TaskQueue[T]) wakeLocked() {
	if q.waiters > 0 {
		close(q.notEmpty)
		q.notEmpty = make(chan struct{})
	}
}

// Take blocks until the queue is non-empty, deadline passes, or ctx is
// done, then removes up to max items in FIFO order as one batch. An expired
// deadline yields an empty batch and a nil error. After Shutdown, Take keeps
// returning remaining items and reports ErrClosed once the queue is empty.
func (q *TaskQueue[T]) Take(ctx context.Context, max int, deadline time.Time) ([]T, error) {
	if max <= 0 {
		panic("queue: take count must be positive")
	}

	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	q.mu.Lock()
	for {
		if n := len(q.items) - q.head; n > 0 {
			batch := q.popLocked(max)
			q.mu.Unlock()
			return batch, nil
		}
		if q.closed {
			q.mu.Unlock()
			return nil, ErrClosed
		}

		wait := time.Until(deadline)
		if wait <= 0 {
			q.mu.Unlock()
			return nil, nil
		}
		if timer == nil {
			timer = time.NewTimer(wait)
		}

		ch := q.notEmpty
		q.waiters++
		q.mu.Unlock()

		var err error
		select {
		case <-ch:
		case <-timer.C:
			timer = nil
		case <-ctx.Done():
			err = ctx.Err()
		}

		q.mu.Lock()
		q.waiters--
		if err != nil {
			q.mu.Unlock()
			return nil, err
		}
	}
}

func (q *TaskQueue[T]) popLocked(max int) []T {
	n := len(q.items) - q.head
	if n > max {
		n = max
	}
	batch := make([]T, n)
	copy(batch, q.items[q.head:q.head+n])

	var zero T
	for i := q.head; i < q.head+n; i++ {
		q.items[i] = zero
	}
	q.head += n
	q.taken += uint64(n)

	if q.head == len(q.items) {
		q.items = q.items[:0]
		q.head = 0
	} else if q.head > q.capacity {
		remaining := copy(q.items, q.items[q.head:])
		q.items = q.items[:remaining]
		q.head = 0
	}
	return batch
}

// Shutdown stops accepting new items and wakes every blocked consumer.
// Items already queued remain available to Take.
func (q *TaskQueue[T]) Shutdown() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	close(q.notEmpty)
	q.notEmpty = make(chan struct{})
}

// Destroy releases the queue. It fails fast with ErrBusy while consumers
// are still blocked in Take; call Shutdown first and let them return.
// Any items still queued are returned to the caller.
func (q *TaskQueue[T]) Destroy() ([]T, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.waiters > 0 {
		return nil, ErrBusy
	}
	if q.destroyed {
		return nil, ErrClosed
	}
	q.closed = true
	q.destroyed = true

	left := make([]T, len(q.items)-q.head)
	copy(left, q.items[q.head:])
	q.items = nil
	q.head = 0
	return left, nil
}

// Stats returns a snapshot of the queue counters.
func (q *TaskQueue[T]) Stats() TaskQueueStats {
	q.mu.Lock()
	defer q.mu.Unlock()
	return TaskQueueStats{
		Name:     q.name,
		Capacity: q.capacity,
		Size:     len(q.items) - q.head,
		Waiters:  q.waiters,
		Offered:  q.offered,
		Rejected: q.rejected,
		Taken:    q.taken,
	}
}
