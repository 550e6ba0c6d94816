package notes

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"
)

// Replicator runs remote pushes that the caller does not wait for. A task
// that fails is reported and dropped; nothing is retried.
type Replicator interface {
	Go(name string, task func(ctx context.Context) error)
}

// FailureHandler observes background tasks that returned an error.
type FailureHandler func(name string, err error)

// BackgroundReplicator runs each task in its own goroutine on a context that
// lives as long as the replicator, not as long as the request that queued it.
type BackgroundReplicator struct {
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	timeout   time.Duration
	onFailure FailureHandler
	logger    *slog.Logger

	mu     sync.Mutex
	closed bool
}

type ReplicatorOption func(*BackgroundReplicator)

// WithTaskTimeout bounds every task. Zero means no bound.
func WithTaskTimeout(d time.Duration) ReplicatorOption {
	return func(r *BackgroundReplicator) {
		r.timeout = d
	}
}

func WithFailureHandler(h FailureHandler) ReplicatorOption {
	return func(r *BackgroundReplicator) {
		r.onFailure = h
	}
}

func WithReplicatorLogger(logger *slog.Logger) ReplicatorOption {
	return func(r *BackgroundReplicator) {
		r.logger = logger
	}
}

func NewBackgroundReplicator(parent context.Context, opts ...ReplicatorOption) *BackgroundReplicator {
	ctx, cancel := context.WithCancel(parent)
	r := &BackgroundReplicator{
		ctx:    ctx,
		cancel: cancel,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.onFailure == nil {
		r.onFailure = func(name string, err error) {
			r.logger.Warn("background replication failed", "task", name, "error", err)
		}
	}
	return r
}

// Go starts task unless the replicator is closed, in which case the task is
// reported as failed with context.Canceled.
func (r *BackgroundReplicator) Go(name string, task func(ctx context.Context) error) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		r.onFailure(name, context.Canceled)
		return
	}
	r.wg.Add(1)
	r.mu.Unlock()

	go func() {
		defer r.wg.Done()

		ctx := r.ctx
		if r.timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, r.timeout)
			defer cancel()
		}

		if err := task(ctx); err != nil {
			r.onFailure(name, err)
			return
		}
		r.logger.Debug("background replication done", "task", name)
	}()
}

// Close stops accepting tasks and waits for the running ones until ctx is
// done, then cancels them. It reports whether every task finished in time.
func (r *BackgroundReplicator) Close(ctx context.Context) bool {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()

	finished := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(finished)
	}()

	defer r.cancel()

	select {
	case <-finished:
		return true
	case <-ctx.Done():
		r.cancel()
		<-finished
		return false
	}
}
