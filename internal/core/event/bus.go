// Package event provides the synchronous publish/subscribe channel used by
// the flow graph store to notify its observers.
package event

import (
	"fmt"
	"sync"

	"go.uber.org/zap"

	imetrics "github.com/flowly/flowly/internal/infrastructure/metrics"
)

// Wildcard subscribes a handler to every published event name.
const Wildcard = "*"

// Handler receives a published payload. A returned error is reported to the
// bus logger and never propagates back to the publisher.
type Handler[T any] func(name string, payload T) error

// Subscription identifies one registered handler. It is the only way to
// remove a handler since Go funcs are not comparable.
type Subscription uint64

type entry[T any] struct {
	id      Subscription
	handler Handler[T]
}

// Bus delivers payloads to handlers registered under an event name.
// Delivery is synchronous, in registration order, on the publisher's
// goroutine. Wildcard handlers run after the named ones.
//
// The registry is guarded so handlers may be added from other goroutines,
// but Publish itself does not serialize callers.
type Bus[T any] struct {
	mu       sync.RWMutex
	handlers map[string][]entry[T]
	nextID   Subscription
	logger   *zap.Logger
}

// Option configures a Bus.
type Option func(*options)

type options struct {
	logger *zap.Logger
}

// WithLogger sets the diagnostic sink for listener failures.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// NewBus creates an empty bus.
func NewBus[T any](opts ...Option) *Bus[T] {
	o := options{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}
	return &Bus[T]{
		handlers: make(map[string][]entry[T]),
		logger:   o.logger,
	}
}

// Subscribe registers handler under name. The same function may be
// registered several times; each registration gets its own Subscription.
func (b *Bus[T]) Subscribe(name string, handler Handler[T]) Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	b.handlers[name] = append(b.handlers[name], entry[T]{id: b.nextID, handler: handler})
	return b.nextID
}

// SubscribeAll registers handler for every event name.
func (b *Bus[T]) SubscribeAll(handler Handler[T]) Subscription {
	return b.Subscribe(Wildcard, handler)
}

// Unsubscribe removes one registration. Unknown subscriptions are ignored.
func (b *Bus[T]) Unsubscribe(name string, sub Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	list := b.handlers[name]
	for i, e := range list {
		if e.id != sub {
			continue
		}
		next := make([]entry[T], 0, len(list)-1)
		next = append(next, list[:i]...)
		next = append(next, list[i+1:]...)
		if len(next) == 0 {
			delete(b.handlers, name)
		} else {
			b.handlers[name] = next
		}
		return
	}
}

// HandlerCount reports how many handlers are registered under name.
func (b *Bus[T]) HandlerCount(name string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.handlers[name])
}

// Publish invokes the handlers currently registered for name. Handlers
// added or removed while a publish is running take effect on the next one.
func (b *Bus[T]) Publish(name string, payload T) {
	b.mu.RLock()
	named := b.handlers[name]
	wild := b.handlers[Wildcard]
	b.mu.RUnlock()

	imetrics.EventPublished(name)
	for _, e := range named {
		b.dispatch(name, e, payload)
	}
	if name == Wildcard {
		return
	}
	for _, e := range wild {
		b.dispatch(name, e, payload)
	}
}

// dispatch runs a single handler, containing both errors and panics.
func (b *Bus[T]) dispatch(name string, e entry[T], payload T) {
	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("%w: %v", ErrListenerPanic, r)
			}
		}()
		return e.handler(name, payload)
	}()
	if err == nil {
		return
	}
	imetrics.ListenerFailed(name)
	b.logger.Error("event listener failed",
		zap.String("event", name),
		zap.Uint64("subscription", uint64(e.id)),
		zap.Error(err),
	)
}
