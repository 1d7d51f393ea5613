package events

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Handler is a function invoked for every event of a subscribed type.
type Handler func(event *Event)

// Bus is an in-process publish/subscribe bus. Dispatch is synchronous on the
// emitting goroutine; handlers must not block.
type Bus struct {
	mu       sync.RWMutex
	handlers map[EventType][]Handler
	log      zerolog.Logger
}

// NewBus creates a new event bus
func NewBus(log zerolog.Logger) *Bus {
	return &Bus{
		handlers: make(map[EventType][]Handler),
		log:      log.With().Str("component", "event_bus").Logger(),
	}
}

// Subscribe registers a handler for the given event type
func (b *Bus) Subscribe(eventType EventType, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[eventType] = append(b.handlers[eventType], handler)
}

// Emit publishes an event to all handlers subscribed to its type.
// The handler slice is copied under the read lock so handlers may subscribe
// from within a callback without deadlocking.
func (b *Bus) Emit(eventType EventType, module string, data map[string]interface{}) {
	event := &Event{
		Type:      eventType,
		Timestamp: time.Now(),
		Data:      data,
		Module:    module,
	}

	b.mu.RLock()
	handlers := make([]Handler, len(b.handlers[eventType]))
	copy(handlers, b.handlers[eventType])
	b.mu.RUnlock()

	for _, handler := range handlers {
		handler(event)
	}
}
