package websocket

import (
	"credguard/internal/license"
)

// Subscriber is the part of license.EventBus the bridge needs
type Subscriber interface {
	Subscribe(fn license.EventHandler) func()
}

// Bridge forwards every engine event to the hub's clients
func Bridge(bus Subscriber, hub *Hub) (detach func()) {
	return bus.Subscribe(func(e license.Event) {
		hub.Broadcast(e.Type, e.Data, traceIDOf(e))
	})
}

func traceIDOf(e license.Event) string {
	if data, ok := e.Data.(map[string]any); ok {
		if id, ok := data["trace_id"].(string); ok {
			return id
		}
	}
	return ""
}
