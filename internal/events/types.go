// Package events defines the router's lifecycle notifications and an
// asynchronous bus that fans them out to telemetry and MQTT consumers.
package events

import "time"

// Event type constants for kelindar/event.
const (
	TypeRouteStateChanged uint32 = iota + 1
	TypeDeviceStateChanged
	TypeBufferStats
)

// Event interface required by kelindar/event.
type Event interface {
	Type() uint32
}

// RouteStateChangedEvent is emitted whenever a route changes state.
type RouteStateChangedEvent struct {
	Route     string    `json:"route"`
	From      string    `json:"from"`
	To        string    `json:"to"`
	Previous  string    `json:"previous"`
	State     string    `json:"state"`
	Reason    string    `json:"reason,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Type returns the event type identifier for RouteStateChangedEvent.
func (e RouteStateChangedEvent) Type() uint32 { return TypeRouteStateChanged }

// DeviceStateChangedEvent is emitted whenever a device endpoint changes state.
type DeviceStateChangedEvent struct {
	Device     string    `json:"device"`
	SystemName string    `json:"system_name"`
	Kind       string    `json:"kind"`
	Previous   string    `json:"previous"`
	State      string    `json:"state"`
	Channels   int       `json:"channels,omitempty"`
	SampleRate int       `json:"sample_rate,omitempty"`
	Reason     string    `json:"reason,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// Type returns the event type identifier for DeviceStateChangedEvent.
func (e DeviceStateChangedEvent) Type() uint32 { return TypeDeviceStateChanged }

// BufferStatsEvent carries per-route counter deltas since the last report.
type BufferStatsEvent struct {
	Route           string    `json:"route"`
	OverflowSamples uint64    `json:"overflow_samples"`
	OverflowEvents  uint64    `json:"overflow_events"`
	UnderrunSamples uint64    `json:"underrun_samples"`
	UnderrunEvents  uint64    `json:"underrun_events"`
	BufferedSamples int       `json:"buffered_samples"`
	CapacitySamples int       `json:"capacity_samples"`
	Timestamp       time.Time `json:"timestamp"`
}

// Type returns the event type identifier for BufferStatsEvent.
func (e BufferStatsEvent) Type() uint32 { return TypeBufferStats }
