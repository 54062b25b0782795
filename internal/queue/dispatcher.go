package queue

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// Logger is the subset of logging used by dispatch workers.
type Logger interface {
	Debugf(format string, args ...any)
	Warnf(format string, args ...any)
}

// Handler processes one batch taken from the queue.
type Handler[T any] func(ctx context.Context, batch []T)

// DispatcherConfig configures a Dispatcher.
type DispatcherConfig struct {
	Name         string
	Workers      int           // consumer goroutines (default 1)
	BatchSize    int           // max items per Take (default 32)
	PollInterval time.Duration // Take deadline per iteration (default 100ms)
	Logger       Logger
}

// Dispatcher runs consumer goroutines that drain a TaskQueue in batches.
type Dispatcher[T any] struct {
	queue  *TaskQueue[T]
	config DispatcherConfig
	handle Handler[T]

	mu      sync.Mutex
	group   *errgroup.Group
	cancel  context.CancelFunc
	started bool
}

// NewDispatcher creates a dispatcher for q. Start must be called to begin
// consuming.
func NewDispatcher[T any](q *TaskQueue[T], config DispatcherConfig, handle Handler[T]) *Dispatcher[T] {
	if config.Workers <= 0 {
		config.Workers = 1
	}
	if config.BatchSize <= 0 {
		config.BatchSize = 32
	}
	if config.PollInterval <= 0 {
		config.PollInterval = 100 * time.Millisecond
	}
	return &Dispatcher[T]{
		queue:  q,
		config: config,
		handle: handle,
	}
}

// Start launches the workers. Calling Start twice is a no-op.
func (d *Dispatcher[T]) Start(ctx context.Context) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.started {
		return
	}
	d.started = true

	ctx, d.cancel = context.WithCancel(ctx)
	d.group, ctx = errgroup.WithContext(ctx)
	for i := 0; i < d.config.Workers; i++ {
		worker := i
		d.group.Go(func() error {
			return d.run(ctx, worker)
		})
	}
}

func (d *Dispatcher[T]) run(ctx context.Context, worker int) error {
	if d.config.Logger != nil {
		d.config.Logger.Debugf("%s worker %d: starting", d.config.Name, worker)
	}
	for {
		batch, err := d.queue.Take(ctx, d.config.BatchSize, time.Now().Add(d.config.PollInterval))
		if len(batch) > 0 {
			d.handle(ctx, batch)
		}
		switch {
		case err == nil:
		case errors.Is(err, ErrClosed):
			if d.config.Logger != nil {
				d.config.Logger.Debugf("%s worker %d: queue drained, exiting", d.config.Name, worker)
			}
			return nil
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			return nil
		default:
			if d.config.Logger != nil {
				d.config.Logger.Warnf("%s worker %d: take failed: %v", d.config.Name, worker, err)
			}
			return err
		}
	}
}

// Wait blocks until every worker has exited. Workers exit once the queue is
// shut down and drained, or the context passed to Start is cancelled.
func (d *Dispatcher[T]) Wait() error {
	d.mu.Lock()
	g := d.group
	d.mu.Unlock()
	if g == nil {
		return nil
	}
	return g.Wait()
}

// Stop cancels the workers without draining the queue and waits for them.
func (d *Dispatcher[T]) Stop() error {
	d.mu.Lock()
	cancel := d.cancel
	d.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	return d.Wait()
}
