package events

import (
	"sync"
	"time"
)

// Handler processes a single event
type Handler func(Event)

// Bus distributes events to subscribed handlers. Delivery is synchronous:
// Emit calls every handler in subscription order before returning, which
// keeps the driver strictly sequential.
type Bus struct {
	mu       sync.Mutex
	handlers []Handler
	closed   bool
}

// NewBus creates a new event bus
func NewBus() *Bus {
	return &Bus{}
}

// Subscribe registers a handler for all subsequent events
func (b *Bus) Subscribe(h Handler) {
	if h == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = append(b.handlers, h)
}

// Emit stamps the event time and delivers it to all handlers
func (b *Bus) Emit(e Event) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	e.Time = time.Now()
	handlers := make([]Handler, len(b.handlers))
	copy(handlers, b.handlers)
	b.mu.Unlock()

	for _, h := range handlers {
		h(e)
	}
}

// Close shuts down the event bus; further emits are dropped
func (b *Bus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}
