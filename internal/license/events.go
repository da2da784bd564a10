package license

import (
	"sync"
	"time"
)

// Event types published on the bus
const (
	EventValidationCompleted = "validation.completed"
	EventOverrideRequested   = "override.requested"
	EventCredentialRevoked   = "credential.revoked"
	EventFleetAnomaly        = "fleet.anomaly"
)

// Event is a notification for upstream alerting and the live event stream
type Event struct {
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data,omitempty"`
}

// EventHandler receives published events. Handlers run on the publisher's goroutine.
type EventHandler func(Event)

// EventBus is an observer registry
type EventBus struct {
	mu       sync.RWMutex
	nextID   int
	handlers map[int]EventHandler
}

// NewEventBus creates an empty bus
func NewEventBus() *EventBus {
	return &EventBus{handlers: make(map[int]EventHandler)}
}

// Subscribe registers fn and returns a function that removes it
func (b *EventBus) Subscribe(fn EventHandler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	b.handlers[id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.handlers, id)
			b.mu.Unlock()
		})
	}
}

// Publish delivers e to every subscriber. A panicking handler does not stop the others.
func (b *EventBus) Publish(e Event) {
	b.mu.RLock()
	handlers := make([]EventHandler, 0, len(b.handlers))
	for _, h := range b.handlers {
		handlers = append(handlers, h)
	}
	b.mu.RUnlock()

	for _, h := range handlers {
		func() {
			defer func() { _ = recover() }()
			h(e)
		}()
	}
}

// Subscribers returns the number of registered handlers
func (b *EventBus) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.handlers)
}
