package audiocore

import (
	"fmt"
	"sync/atomic"
)

// RouteState is the runtime state of one route.
type RouteState int32

const (
	RouteWaitingForDevice RouteState = iota
	RouteActive
	RouteDegraded
	RouteFailed
)

func (s RouteState) String() string {
	switch s {
	case RouteWaitingForDevice:
		return "WaitingForDevice"
	case RouteActive:
		return "Active"
	case RouteDegraded:
		return "Degraded"
	case RouteFailed:
		return "Failed"
	default:
		return fmt.Sprintf("RouteState(%d)", int32(s))
	}
}

// routeBuffer pairs a ring with the frame layout of the data inside it, so the
// render side never interprets samples with a stale channel count.
type routeBuffer struct {
	ring     *RingBuffer
	channels int
}

// route is the runtime half of a RouteConfig. Audio callbacks read state and
// buf; only the engine, under its mutex, stores them.
type route struct {
	cfg  RouteConfig
	src  *DeviceEndpoint
	dst  *DeviceEndpoint
	gain float32

	state atomic.Int32
	buf   atomic.Pointer[routeBuffer]

	overflowSamples atomic.Uint64
	overflowEvents  atomic.Uint64
	underrunSamples atomic.Uint64
	underrunEvents  atomic.Uint64

	// last values handed out by CollectStats, guarded by Engine.statsMu
	reported BufferStats
}

func (r *route) loadState() RouteState {
	return RouteState(r.state.Load())
}

// RouteStatus is a point-in-time view of one route.
type RouteStatus struct {
	Alias    string     `json:"alias"`
	From     string     `json:"from"`
	To       string     `json:"to"`
	State    RouteState `json:"-"`
	StateStr string     `json:"state"`
	Buffered int        `json:"buffered_samples"`
	Capacity int        `json:"capacity_samples"`

	OverflowSamples uint64 `json:"overflow_samples"`
	OverflowEvents  uint64 `json:"overflow_events"`
	UnderrunSamples uint64 `json:"underrun_samples"`
	UnderrunEvents  uint64 `json:"underrun_events"`
}

// BufferStats holds counter deltas for one route between two CollectStats calls.
type BufferStats struct {
	Route           string
	OverflowSamples uint64
	OverflowEvents  uint64
	UnderrunSamples uint64
	UnderrunEvents  uint64
	Buffered        int
	Capacity        int
}

// HasActivity reports whether any counter moved.
func (s BufferStats) HasActivity() bool {
	return s.OverflowSamples != 0 || s.OverflowEvents != 0 ||
		s.UnderrunSamples != 0 || s.UnderrunEvents != 0
}
