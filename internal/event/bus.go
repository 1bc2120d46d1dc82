package event

import (
	"fmt"
	"maps"
	"runtime/debug"
	"slices"
	"sync"

	"github.com/Iron-Ham/conductor/internal/logging"
)

// Any subscribes a handler to every event type.
const Any = "*"

// Handler receives a published event. Handlers run on the publisher's
// goroutine and must not block.
type Handler func(Event)

type listener struct {
	id      string
	handler Handler
}

// Bus fans events out to in-process listeners. Components publish task,
// worker, message, workflow, trigger and scaling events here instead of
// calling each other.
type Bus struct {
	mu        sync.RWMutex
	listeners map[string][]listener
	seq       uint64
	published map[string]uint64
	logger    *logging.Logger
}

// Option configures a Bus.
type Option func(*Bus)

// WithLogger sets the logger used to report handler panics.
func WithLogger(logger *logging.Logger) Option {
	return func(b *Bus) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// NewBus returns an empty bus.
func NewBus(opts ...Option) *Bus {
	b := &Bus{
		listeners: make(map[string][]listener),
		published: make(map[string]uint64),
		logger:    logging.NopLogger(),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.logger = b.logger.WithComponent("events")
	return b
}

// Subscribe registers handler for eventType (or Any) and returns an id for
// Unsubscribe.
func (b *Bus) Subscribe(eventType string, handler Handler) string {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.seq++
	id := fmt.Sprintf("%s#%d", eventType, b.seq)
	b.listeners[eventType] = append(b.listeners[eventType], listener{id: id, handler: handler})
	return id
}

// SubscribeAll registers handler for every event type.
func (b *Bus) SubscribeAll(handler Handler) string {
	return b.Subscribe(Any, handler)
}

// Unsubscribe removes the listener with the given id. It reports whether
// one was removed.
func (b *Bus) Unsubscribe(id string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	for eventType, ls := range b.listeners {
		i := slices.IndexFunc(ls, func(l listener) bool { return l.id == id })
		if i < 0 {
			continue
		}
		// Publish may still be iterating the old slice.
		b.listeners[eventType] = slices.Delete(slices.Clone(ls), i, i+1)
		return true
	}
	return false
}

// Publish delivers e to the listeners of its type in subscription order,
// then to Any listeners. A panicking handler is logged and skipped.
func (b *Bus) Publish(e Event) {
	eventType := e.EventType()

	b.mu.Lock()
	b.published[eventType]++
	targets := slices.Concat(b.listeners[eventType], b.listeners[Any])
	b.mu.Unlock()

	for _, l := range targets {
		b.deliver(l, e)
	}
}

func (b *Bus) deliver(l listener, e Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("event handler panicked",
				"event_type", e.EventType(),
				"listener", l.id,
				"panic", fmt.Sprint(r),
				"stack", string(debug.Stack()))
		}
	}()
	l.handler(e)
}

// Listeners returns how many handlers would receive an event of eventType,
// counting Any listeners.
func (b *Bus) Listeners(eventType string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	n := len(b.listeners[eventType])
	if eventType != Any {
		n += len(b.listeners[Any])
	}
	return n
}

// Published returns the number of events published so far, by type.
func (b *Bus) Published() map[string]uint64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return maps.Clone(b.published)
}
