// Package metrics provides Prometheus collectors for the audio router.
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/tphakala/audiorouter/internal/audiocore"
	"github.com/tphakala/audiorouter/internal/events"
)

var (
	routeStates = []string{
		audiocore.RouteWaitingForDevice.String(),
		audiocore.RouteActive.String(),
		audiocore.RouteDegraded.String(),
		audiocore.RouteFailed.String(),
	}
	deviceStates = []string{
		audiocore.DeviceUnresolved.String(),
		audiocore.DeviceWaiting.String(),
		audiocore.DeviceBound.String(),
		audiocore.DeviceLost.String(),
		audiocore.DeviceRebinding.String(),
		audiocore.DeviceFailed.String(),
	}
)

// RouterMetrics contains Prometheus metrics fed from router lifecycle events.
type RouterMetrics struct {
	registry *prometheus.Registry

	// Route metrics
	routeState       *prometheus.GaugeVec
	routeTransitions *prometheus.CounterVec

	// Device metrics
	deviceState       *prometheus.GaugeVec
	deviceTransitions *prometheus.CounterVec
	deviceSampleRate  *prometheus.GaugeVec
	deviceChannels    *prometheus.GaugeVec

	// Buffer metrics
	overflowSamples *prometheus.CounterVec
	overflowEvents  *prometheus.CounterVec
	underrunSamples *prometheus.CounterVec
	underrunEvents  *prometheus.CounterVec
	bufferFill      *prometheus.GaugeVec
	bufferCapacity  *prometheus.GaugeVec

	collectors []prometheus.Collector
}

// NewRouterMetrics creates and registers new router metrics
func NewRouterMetrics(registry *prometheus.Registry) (*RouterMetrics, error) {
	m := &RouterMetrics{registry: registry}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register router metrics: %w", err)
	}
	return m, nil
}

func (m *RouterMetrics) initMetrics() {
	m.routeState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "audiorouter_route_state",
			Help: "Current route state (1 for the active state label, 0 otherwise)",
		},
		[]string{"route", "state"},
	)

	m.routeTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "audiorouter_route_transitions_total",
			Help: "Total number of route state transitions by target state",
		},
		[]string{"route", "state"},
	)

	m.deviceState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "audiorouter_device_state",
			Help: "Current device state (1 for the active state label, 0 otherwise)",
		},
		[]string{"device", "state"},
	)

	m.deviceTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "audiorouter_device_transitions_total",
			Help: "Total number of device state transitions by target state",
		},
		[]string{"device", "state"},
	)

	m.deviceSampleRate = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "audiorouter_device_sample_rate_hertz",
			Help: "Native sample rate of the bound device stream",
		},
		[]string{"device"},
	)

	m.deviceChannels = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "audiorouter_device_channels",
			Help: "Native channel count of the bound device stream",
		},
		[]string{"device"},
	)

	m.overflowSamples = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "audiorouter_overflow_samples_total",
			Help: "Total number of captured samples dropped because a route buffer was full",
		},
		[]string{"route"},
	)

	m.overflowEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "audiorouter_overflow_events_total",
			Help: "Total number of capture callbacks that dropped samples",
		},
		[]string{"route"},
	)

	m.underrunSamples = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "audiorouter_underrun_samples_total",
			Help: "Total number of render samples filled with silence",
		},
		[]string{"route"},
	)

	m.underrunEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "audiorouter_underrun_events_total",
			Help: "Total number of render callbacks that ran short of data",
		},
		[]string{"route"},
	)

	m.bufferFill = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "audiorouter_buffer_fill_samples",
			Help: "Samples buffered in the route ring at the last report",
		},
		[]string{"route"},
	)

	m.bufferCapacity = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "audiorouter_buffer_capacity_samples",
			Help: "Capacity of the route ring in samples",
		},
		[]string{"route"},
	)

	m.collectors = []prometheus.Collector{
		m.routeState,
		m.routeTransitions,
		m.deviceState,
		m.deviceTransitions,
		m.deviceSampleRate,
		m.deviceChannels,
		m.overflowSamples,
		m.overflowEvents,
		m.underrunSamples,
		m.underrunEvents,
		m.bufferFill,
		m.bufferCapacity,
	}
}

// Describe implements the Collector interface
func (m *RouterMetrics) Describe(ch chan<- *prometheus.Desc) {
	for _, collector := range m.collectors {
		collector.Describe(ch)
	}
}

// Collect implements the Collector interface
func (m *RouterMetrics) Collect(ch chan<- prometheus.Metric) {
	for _, collector := range m.collectors {
		collector.Collect(ch)
	}
}

// Subscribe attaches the collector to the event bus. The returned func
// detaches it again.
func (m *RouterMetrics) Subscribe(bus *events.Bus) func() {
	unsubs := []func(){
		bus.Subscribe(m.RecordRouteState),
		bus.Subscribe(m.RecordDeviceState),
		bus.Subscribe(m.RecordBufferStats),
	}
	return func() {
		for _, unsub := range unsubs {
			unsub()
		}
	}
}

// RecordRouteState updates the route state gauges.
func (m *RouterMetrics) RecordRouteState(ev events.RouteStateChangedEvent) {
	setEnum(m.routeState, ev.Route, ev.State, routeStates)
	m.routeTransitions.WithLabelValues(ev.Route, ev.State).Inc()
}

// RecordDeviceState updates the device state gauges and the stream format of
// bound devices.
func (m *RouterMetrics) RecordDeviceState(ev events.DeviceStateChangedEvent) {
	setEnum(m.deviceState, ev.Device, ev.State, deviceStates)
	m.deviceTransitions.WithLabelValues(ev.Device, ev.State).Inc()
	if ev.SampleRate > 0 {
		m.deviceSampleRate.WithLabelValues(ev.Device).Set(float64(ev.SampleRate))
	}
	if ev.Channels > 0 {
		m.deviceChannels.WithLabelValues(ev.Device).Set(float64(ev.Channels))
	}
}

// RecordBufferStats adds the reported deltas to the buffer counters.
func (m *RouterMetrics) RecordBufferStats(ev events.BufferStatsEvent) {
	m.overflowSamples.WithLabelValues(ev.Route).Add(float64(ev.OverflowSamples))
	m.overflowEvents.WithLabelValues(ev.Route).Add(float64(ev.OverflowEvents))
	m.underrunSamples.WithLabelValues(ev.Route).Add(float64(ev.UnderrunSamples))
	m.underrunEvents.WithLabelValues(ev.Route).Add(float64(ev.UnderrunEvents))
	m.bufferFill.WithLabelValues(ev.Route).Set(float64(ev.BufferedSamples))
	m.bufferCapacity.WithLabelValues(ev.Route).Set(float64(ev.CapacitySamples))
}

// setEnum sets the gauge for current to 1 and every other known state to 0.
func setEnum(vec *prometheus.GaugeVec, name, current string, states []string) {
	for _, s := range states {
		v := 0.0
		if s == current {
			v = 1
		}
		vec.WithLabelValues(name, s).Set(v)
	}
}
