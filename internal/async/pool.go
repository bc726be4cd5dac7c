package async

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// Pool bounds fan-out of independent oracle calls.
type Pool struct {
	workers int
	timeout time.Duration
	logger  *slog.Logger
}

type Option func(*Pool)

func WithWorkers(n int) Option {
	return func(p *Pool) {
		if n > 0 {
			p.workers = n
		}
	}
}

// WithTaskTimeout bounds each task; zero disables the per-task deadline.
func WithTaskTimeout(d time.Duration) Option {
	return func(p *Pool) {
		if d > 0 {
			p.timeout = d
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(p *Pool) {
		if l != nil {
			p.logger = l
		}
	}
}

func NewPool(opts ...Option) *Pool {
	p := &Pool{
		workers: 4,
		timeout: 3 * time.Minute,
		logger:  slog.Default(),
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Workers returns the concurrency limit.
func (p *Pool) Workers() int { return p.workers }

// TaskError ties a failure to the index of the item that produced it.
type TaskError struct {
	Index int
	Err   error
}

func (e *TaskError) Error() string { return fmt.Sprintf("task %d: %v", e.Index, e.Err) }

func (e *TaskError) Unwrap() error { return e.Err }

// Each runs fn for every item with at most p.Workers() in flight. A failing task
// does not stop its siblings; all task errors are joined into the result.
// Items not yet started when ctx is done are skipped and ctx.Err() is included.
func Each[T any](ctx context.Context, p *Pool, items []T, fn func(ctx context.Context, item T) error) error {
	if p == nil {
		p = NewPool()
	}
	var (
		g    errgroup.Group
		mu   sync.Mutex
		errs []error
	)
	g.SetLimit(p.workers)
	start := time.Now()

	for i, item := range items {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			taskCtx, cancel := ctx, context.CancelFunc(func() {})
			if p.timeout > 0 {
				taskCtx, cancel = context.WithTimeout(ctx, p.timeout)
			}
			defer cancel()

			if err := fn(taskCtx, item); err != nil {
				mu.Lock()
				errs = append(errs, &TaskError{Index: i, Err: err})
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	p.logger.Debug("async.each.done",
		"items", len(items),
		"failed", len(errs),
		"workers", p.workers,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	if err := ctx.Err(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
