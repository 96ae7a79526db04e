package mqtt

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/tphakala/audiorouter/internal/events"
	"github.com/tphakala/audiorouter/internal/logging"
)

// StatusPublisher mirrors router events to MQTT topics:
//
//	<topic>/route/<alias>          route state changes
//	<topic>/route/<alias>/buffers  overflow and underrun deltas
//	<topic>/device/<alias>         device state changes
type StatusPublisher struct {
	client Client
	topic  string
	ctx    context.Context
	logger *slog.Logger
}

// NewStatusPublisher creates a publisher rooted at topic. Publishes stop once
// ctx is cancelled.
func NewStatusPublisher(ctx context.Context, client Client, topic string, logger *slog.Logger) *StatusPublisher {
	if logger == nil {
		logger = logging.ForService("mqtt")
	}
	return &StatusPublisher{
		client: client,
		topic:  topic,
		ctx:    ctx,
		logger: logger.With("component", "status_publisher"),
	}
}

// Subscribe attaches the publisher to the bus and returns the detach func.
func (p *StatusPublisher) Subscribe(bus *events.Bus) func() {
	unsubs := []func(){
		bus.Subscribe(p.PublishRouteState),
		bus.Subscribe(p.PublishDeviceState),
		bus.Subscribe(p.PublishBufferStats),
	}
	return func() {
		for _, unsub := range unsubs {
			unsub()
		}
	}
}

// PublishRouteState publishes a route state change, retained when the client
// is configured to retain.
func (p *StatusPublisher) PublishRouteState(ev events.RouteStateChangedEvent) {
	p.publish(p.topic+"/route/"+ev.Route, ev, true)
}

// PublishDeviceState publishes a device state change.
func (p *StatusPublisher) PublishDeviceState(ev events.DeviceStateChangedEvent) {
	p.publish(p.topic+"/device/"+ev.Device, ev, true)
}

// PublishBufferStats publishes buffer counter deltas. They are not retained.
func (p *StatusPublisher) PublishBufferStats(ev events.BufferStatsEvent) {
	p.publish(p.topic+"/route/"+ev.Route+"/buffers", ev, false)
}

func (p *StatusPublisher) publish(topic string, v any, retain bool) {
	if p.ctx.Err() != nil || !p.client.IsConnected() {
		return
	}
	data, err := json.Marshal(v)
	if err != nil {
		p.logger.Error("failed to encode status message", "topic", topic, "error", err)
		return
	}
	if retain {
		err = p.client.Publish(p.ctx, topic, string(data))
	} else {
		err = p.client.PublishWithRetain(p.ctx, topic, string(data), false)
	}
	if err != nil {
		p.logger.Warn("failed to publish status message", "topic", topic, "error", err)
	}
}
