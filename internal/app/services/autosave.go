package services

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/flowly/flowly/internal/core/checkpoint"
	"github.com/flowly/flowly/internal/core/event"
	"github.com/flowly/flowly/internal/core/graph"
)

// Autosaver writes a checkpoint whenever the store changed since the last
// one. It learns about changes from the store's bus.
type Autosaver struct {
	store  *graph.Store
	svc    *CheckpointService
	locker sync.Locker
	logger *zap.Logger

	dirty atomic.Bool
	sub   event.Subscription
}

// AutosaveOption configures an Autosaver.
type AutosaveOption func(*Autosaver)

// WithLocker serializes document snapshots with other users of the store.
func WithLocker(l sync.Locker) AutosaveOption {
	return func(a *Autosaver) {
		if l != nil {
			a.locker = l
		}
	}
}

// WithAutosaveLogger sets the autosaver logger.
func WithAutosaveLogger(logger *zap.Logger) AutosaveOption {
	return func(a *Autosaver) {
		if logger != nil {
			a.logger = logger
		}
	}
}

type noopLocker struct{}

func (noopLocker) Lock()   {}
func (noopLocker) Unlock() {}

// NewAutosaver subscribes to every event of store. Call Close to detach.
func NewAutosaver(store *graph.Store, svc *CheckpointService, opts ...AutosaveOption) *Autosaver {
	a := &Autosaver{
		store:  store,
		svc:    svc,
		locker: noopLocker{},
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.sub = store.Events().SubscribeAll(func(name string, _ graph.Event) error {
		// a failed connection attempt changes nothing
		if name != graph.EventConnectionLimitReached {
			a.dirty.Store(true)
		}
		return nil
	})
	return a
}

// Dirty reports whether there are unsaved changes.
func (a *Autosaver) Dirty() bool { return a.dirty.Load() }

// Flush saves a checkpoint if the store is dirty. It returns nil when
// there was nothing to save.
func (a *Autosaver) Flush(ctx context.Context) (*checkpoint.Checkpoint, error) {
	a.locker.Lock()
	if !a.dirty.Swap(false) {
		a.locker.Unlock()
		return nil, nil
	}
	doc := a.store.ToDocument()
	a.locker.Unlock()

	cp, err := a.svc.Save(ctx, doc, checkpoint.Metadata{Source: checkpoint.SourceAutosave})
	if err != nil {
		a.dirty.Store(true)
		return nil, err
	}
	return cp, nil
}

// Run flushes every interval until ctx is done, then flushes once more
// with a fresh context so shutdown does not lose edits.
func (a *Autosaver) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := a.Flush(ctx); err != nil {
				a.logger.Error("autosave failed", zap.Error(err))
			}
		case <-ctx.Done():
			final, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			if _, err := a.Flush(final); err != nil {
				a.logger.Error("final autosave failed", zap.Error(err))
			}
			cancel()
			return
		}
	}
}

// Close stops listening to the store.
func (a *Autosaver) Close() {
	a.store.Events().Unsubscribe(event.Wildcard, a.sub)
}
