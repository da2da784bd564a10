package license

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEventBus(t *testing.T) {
	bus := NewEventBus()

	var received []string
	unsubscribe := bus.Subscribe(func(e Event) { received = append(received, e.Type) })
	bus.Subscribe(func(Event) { panic("handler failure") })
	assert.Equal(t, 2, bus.Subscribers())

	bus.Publish(Event{Type: EventValidationCompleted})
	assert.Equal(t, []string{EventValidationCompleted}, received)

	unsubscribe()
	unsubscribe()
	assert.Equal(t, 1, bus.Subscribers())

	bus.Publish(Event{Type: EventCredentialRevoked})
	assert.Len(t, received, 1)
}
