// Package task runs cancellable repeating background tasks. Each task decides
// its own next delay, so polls can speed up or back off per iteration.
package task

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Done ends a repeating task when returned from a Func.
const Done time.Duration = -1

// Func is one iteration of a repeating task. It returns the delay before the
// next iteration, or Done.
type Func func(ctx context.Context) time.Duration

// Handle controls a single task.
type Handle struct {
	name   string
	cancel context.CancelFunc
	done   chan struct{}
}

// Name returns the task name.
func (h *Handle) Name() string {
	return h.name
}

// Cancel stops the task. The current iteration sees its context cancelled.
func (h *Handle) Cancel() {
	h.cancel()
}

// Done is closed once the task goroutine has exited.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Runner owns a group of tasks sharing one lifetime.
type Runner struct {
	mu      sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	logger  *slog.Logger
	stopped bool
}

// NewRunner creates a runner whose tasks end when parent is cancelled or Stop is called.
func NewRunner(parent context.Context) *Runner {
	ctx, cancel := context.WithCancel(parent)
	return &Runner{
		ctx:    ctx,
		cancel: cancel,
		logger: slog.Default(),
	}
}

// WithLogger sets a custom logger.
func (r *Runner) WithLogger(logger *slog.Logger) *Runner {
	r.logger = logger
	return r
}

// Repeat starts fn after initialDelay and keeps running it until it returns
// Done, the handle is cancelled, or the runner stops.
func (r *Runner) Repeat(name string, initialDelay time.Duration, fn Func) *Handle {
	r.mu.Lock()
	defer r.mu.Unlock()

	ctx, cancel := context.WithCancel(r.ctx)
	h := &Handle{name: name, cancel: cancel, done: make(chan struct{})}
	if r.stopped {
		cancel()
		close(h.done)
		return h
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer close(h.done)
		defer cancel()
		defer func() {
			if rec := recover(); rec != nil {
				r.logger.Error("task panicked",
					slog.String("task", name),
					slog.String("panic", fmt.Sprint(rec)),
				)
			}
		}()

		delay := initialDelay
		for {
			if delay > 0 {
				timer := time.NewTimer(delay)
				select {
				case <-ctx.Done():
					timer.Stop()
					return
				case <-timer.C:
				}
			} else if ctx.Err() != nil {
				return
			}

			delay = fn(ctx)
			if delay < 0 || ctx.Err() != nil {
				r.logger.Debug("task finished", slog.String("task", name))
				return
			}
		}
	}()

	return h
}

// After runs fn once after d unless cancelled first.
func (r *Runner) After(name string, d time.Duration, fn func(ctx context.Context)) *Handle {
	return r.Repeat(name, d, func(ctx context.Context) time.Duration {
		fn(ctx)
		return Done
	})
}

// Stop cancels every task and waits for them to exit. Tasks started after
// Stop are cancelled immediately.
func (r *Runner) Stop() {
	r.mu.Lock()
	r.stopped = true
	r.cancel()
	r.mu.Unlock()

	r.wg.Wait()
}
