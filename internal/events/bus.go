package events

import (
	"github.com/kelindar/event"
)

// Bus wraps kelindar/event dispatcher for event broadcasting.
// Delivery is asynchronous; subscribers must not block for long.
type Bus struct {
	dispatcher *event.Dispatcher
}

// New creates a new event bus
func New() *Bus {
	return &Bus{
		dispatcher: event.NewDispatcher(),
	}
}

// Publish publishes an event to all subscribers.
// Unknown event types are dropped.
func (b *Bus) Publish(ev Event) {
	switch e := ev.(type) {
	case RouteStateChangedEvent:
		event.Publish(b.dispatcher, e)
	case DeviceStateChangedEvent:
		event.Publish(b.dispatcher, e)
	case BufferStatsEvent:
		event.Publish(b.dispatcher, e)
	}
}

// Subscribe subscribes to events with a handler function.
// The handler type selects which events it receives.
// Returns an unsubscribe function.
func (b *Bus) Subscribe(handler any) func() {
	switch h := handler.(type) {
	case func(RouteStateChangedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(DeviceStateChangedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(BufferStatsEvent):
		return event.Subscribe(b.dispatcher, h)
	default:
		return func() {}
	}
}
