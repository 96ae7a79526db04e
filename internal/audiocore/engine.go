package audiocore

import (
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/tphakala/audiorouter/internal/errors"
	"github.com/tphakala/audiorouter/internal/events"
	"github.com/tphakala/audiorouter/internal/logging"
)

// Engine owns every device endpoint and route ring and drives the capture and
// render paths. Stream lifecycle changes are serialised by mu; the audio
// callbacks only ever read atomics and ring buffers.
type Engine struct {
	cfg     Config
	backend Backend
	table   *RouteTable

	endpoints map[string]*DeviceEndpoint
	order     []*DeviceEndpoint
	routes    []*route

	logger *slog.Logger
	sink   EventSink
	clock  Clock

	mu     sync.Mutex
	live   bool
	closed bool

	statsMu sync.Mutex
}

// Option configures an Engine or Watchdog.
type Option func(*options)

type options struct {
	logger *slog.Logger
	sink   EventSink
	clock  Clock
}

// WithLogger sets the logger. The component attribute is added by the receiver.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithEventSink sets the telemetry sink.
func WithEventSink(sink EventSink) Option {
	return func(o *options) { o.sink = sink }
}

// WithClock replaces the wall clock.
func WithClock(clock Clock) Option {
	return func(o *options) { o.clock = clock }
}

func buildOptions(component string, opts []Option) options {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = logging.ForService(componentName)
	}
	o.logger = o.logger.With("component", component)
	if o.sink == nil {
		o.sink = nopSink{}
	}
	if o.clock == nil {
		o.clock = SystemClock()
	}
	return o
}

// NewEngine validates cfg and builds the route table, the endpoint registry
// and one runtime route per configured route. No stream is opened yet.
func NewEngine(cfg Config, backend Backend, opts ...Option) (*Engine, error) {
	if backend == nil {
		return nil, configError("no audio backend provided")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	table, err := NewRouteTable(cfg.Devices, cfg.Routes)
	if err != nil {
		return nil, err
	}

	o := buildOptions("engine", opts)
	e := &Engine{
		cfg:       cfg,
		backend:   backend,
		table:     table,
		endpoints: make(map[string]*DeviceEndpoint, len(cfg.Devices)),
		logger:    o.logger,
		sink:      o.sink,
		clock:     o.clock,
	}

	for _, d := range cfg.Devices {
		if !table.Used(d.Alias) {
			e.logger.Warn("device is not referenced by any route, ignoring", "device", d.Alias)
			continue
		}
		ep := newEndpoint(d, cfg.Audio)
		e.endpoints[d.Alias] = ep
		e.order = append(e.order, ep)
		if d.Gain != 1 {
			e.logger.Info("device gain configured", "device", d.Alias, "gain", d.Gain)
		}
	}

	for _, rc := range cfg.Routes {
		src := e.endpoints[rc.From]
		r := &route{
			cfg:  rc,
			src:  src,
			dst:  e.endpoints[rc.To],
			gain: src.cfg.Gain,
		}
		e.routes = append(e.routes, r)
	}

	for _, ep := range e.order {
		var idx []int
		if ep.cfg.Kind == KindInput {
			idx = table.Outgoing(ep.cfg.Alias)
		} else {
			idx = table.Incoming(ep.cfg.Alias)
		}
		for _, i := range idx {
			ep.routes = append(ep.routes, e.routes[i])
		}
	}

	for _, alias := range table.Duplicates {
		e.logger.Warn("duplicate route, the same source and target are already routed", "route", alias)
	}

	return e, nil
}

// Config returns the configuration the engine was built with.
func (e *Engine) Config() Config { return e.cfg }

// Endpoints returns the endpoints in configuration order.
func (e *Engine) Endpoints() []*DeviceEndpoint {
	return slices.Clone(e.order)
}

// Endpoint returns the endpoint for an alias.
func (e *Engine) Endpoint(alias string) (*DeviceEndpoint, bool) {
	ep, ok := e.endpoints[alias]
	return ep, ok
}

// Live reports whether the engine has been activated and not closed.
func (e *Engine) Live() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.live && !e.closed
}

// Activate starts every stream opened so far. Streams bound later start as
// soon as they are opened. A stream that fails to start marks its device lost.
func (e *Engine) Activate() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return ErrEngineClosed
	}
	if e.live {
		return nil
	}
	e.live = true

	for _, ep := range e.order {
		if ep.stream == nil || ep.started {
			continue
		}
		if err := ep.stream.Start(); err != nil {
			e.logger.Warn("failed to start stream", "device", ep.cfg.Alias, "error", err)
			e.closeStream(ep)
			e.lose(ep, "stream start failed: "+err.Error())
			continue
		}
		ep.started = true
	}

	e.logger.Info("audio engine active", "devices", len(e.order), "routes", len(e.routes))
	return nil
}

// Close stops every stream, waiting for its callback to return, and then
// drops all ring buffers. It is idempotent.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil
	}
	e.closed = true
	e.live = false

	var errs []error
	for _, ep := range e.order {
		if ep.stream == nil {
			continue
		}
		if err := ep.stream.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", ep.cfg.Alias, err))
		}
		ep.stream = nil
		ep.started = false
	}
	for _, r := range e.routes {
		r.buf.Store(nil)
	}

	e.logger.Info("audio engine closed")
	return errors.Join(errs...)
}

// bind opens a stream for ep on the enumerated device and activates every
// route it completes. A sample-rate disagreement fails the affected routes
// and is returned as a configuration error.
func (e *Engine) bind(ep *DeviceEndpoint, info DeviceInfo) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return ErrEngineClosed
	}

	prev := ep.State()
	if prev == DeviceBound {
		return nil
	}
	if prev == DeviceLost {
		e.setDeviceState(ep, DeviceRebinding, "found "+info.SystemName)
	}
	e.closeStream(ep)

	var stream Stream
	var err error
	opened := e.clock.Now()
	if ep.cfg.Kind == KindInput {
		stream, err = e.backend.OpenCapture(info, ep.cfg.BufferSize, ep)
	} else {
		stream, err = e.backend.OpenRender(info, ep.cfg.BufferSize, ep)
	}
	if err == nil {
		if f := stream.Format(); f.Channels <= 0 || f.SampleRate <= 0 {
			_ = stream.Close()
			err = fmt.Errorf("invalid stream format: %d channels at %d Hz", f.Channels, f.SampleRate)
		}
	}
	if err != nil {
		if prev == DeviceLost {
			e.setDeviceState(ep, DeviceLost, "rebind failed")
		}
		return errors.New(err).
			Component(componentName).
			Category(errors.CategoryAudio).
			Context("device", ep.cfg.Alias).
			Context("system_name", info.SystemName).
			Timing("open_stream", e.clock.Since(opened)).
			Build()
	}

	f := stream.Format()
	ep.stream = stream
	ep.info = info
	ep.channels.Store(int32(f.Channels))
	ep.sampleRate.Store(int32(f.SampleRate))
	e.setDeviceState(ep, DeviceBound, "")

	if e.live {
		if err := stream.Start(); err != nil {
			e.closeStream(ep)
			e.lose(ep, "stream start failed: "+err.Error())
			return errors.New(err).
				Component(componentName).
				Category(errors.CategoryAudio).
				Context("device", ep.cfg.Alias).
				Context("operation", "start_stream").
				Build()
		}
		ep.started = true
	}

	return e.activateRoutes(ep)
}

// activateRoutes installs a fresh prefilled ring on every route of ep whose
// endpoints are both bound, then marks the route active.
func (e *Engine) activateRoutes(ep *DeviceEndpoint) error {
	var errs []error
	for _, r := range ep.routes {
		if r.src.State() != DeviceBound || r.dst.State() != DeviceBound {
			continue
		}
		srcRate, dstRate := r.src.Format().SampleRate, r.dst.Format().SampleRate
		if srcRate != dstRate {
			err := configError("route %q: sample rate mismatch, %s runs at %d Hz and %s at %d Hz",
				r.cfg.Alias, r.cfg.From, srcRate, r.cfg.To, dstRate)
			r.buf.Store(nil)
			e.setRouteState(r, RouteFailed, err.Error())
			errs = append(errs, err)
			continue
		}
		e.installBuffer(r)
		e.setRouteState(r, RouteActive, "")
	}
	return errors.Join(errs...)
}

// installBuffer publishes a new ring for r holding the prefill of silence,
// rounded down to whole frames of the source layout.
func (e *Engine) installBuffer(r *route) {
	channels := r.src.Format().Channels
	ring := NewRingBuffer(r.src.cfg.RingCapacity)
	prefill := min(e.cfg.Audio.PrefillSamples, ring.Capacity())
	prefill -= prefill % channels
	ring.Prefill(prefill)
	r.buf.Store(&routeBuffer{ring: ring, channels: channels})
}

// markLost moves a bound device to Lost and degrades its active routes.
func (e *Engine) markLost(ep *DeviceEndpoint, reason string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if ep.State() != DeviceBound {
		return
	}
	e.lose(ep, reason)
}

func (e *Engine) lose(ep *DeviceEndpoint, reason string) {
	e.setDeviceState(ep, DeviceLost, reason)
	for _, r := range ep.routes {
		if r.loadState() == RouteActive {
			e.setRouteState(r, RouteDegraded, "device "+ep.cfg.Alias+" lost")
		}
	}
}

// markWaiting moves an unresolved device to Waiting.
func (e *Engine) markWaiting(ep *DeviceEndpoint) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if ep.State() == DeviceUnresolved {
		e.setDeviceState(ep, DeviceWaiting, "")
	}
}

// markFailed gives up on a device and fails every route that needs it.
func (e *Engine) markFailed(ep *DeviceEndpoint, reason string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.setDeviceState(ep, DeviceFailed, reason)
	for _, r := range ep.routes {
		r.buf.Store(nil)
		e.setRouteState(r, RouteFailed, reason)
	}
}

// closeStream must be called with mu held.
func (e *Engine) closeStream(ep *DeviceEndpoint) {
	if ep.stream == nil {
		return
	}
	if err := ep.stream.Close(); err != nil {
		e.logger.Warn("failed to close stream", "device", ep.cfg.Alias, "error", err)
	}
	ep.stream = nil
	ep.started = false
}

func (e *Engine) setDeviceState(ep *DeviceEndpoint, s DeviceState, reason string) {
	prev := DeviceState(ep.state.Swap(int32(s)))
	if prev == s {
		return
	}

	f := ep.Format()
	attrs := []any{
		"device", ep.cfg.Alias,
		"kind", ep.cfg.Kind.String(),
		"from", prev.String(),
		"to", s.String(),
	}
	if reason != "" {
		attrs = append(attrs, "reason", reason)
	}
	switch s {
	case DeviceBound:
		attrs = append(attrs, "system_name", ep.info.SystemName, "channels", f.Channels, "sample_rate", f.SampleRate)
		e.logger.Info("device bound", attrs...)
	case DeviceLost, DeviceFailed:
		e.logger.Warn("device state changed", attrs...)
	default:
		e.logger.Debug("device state changed", attrs...)
	}

	e.sink.Publish(events.DeviceStateChangedEvent{
		Device:     ep.cfg.Alias,
		SystemName: ep.info.SystemName,
		Kind:       ep.cfg.Kind.String(),
		Previous:   prev.String(),
		State:      s.String(),
		Channels:   f.Channels,
		SampleRate: f.SampleRate,
		Reason:     reason,
		Timestamp:  e.clock.Now(),
	})
}

func (e *Engine) setRouteState(r *route, s RouteState, reason string) {
	prev := RouteState(r.state.Swap(int32(s)))
	if prev == s {
		return
	}

	attrs := []any{
		"route", r.cfg.Alias,
		"source", r.cfg.From,
		"target", r.cfg.To,
		"from", prev.String(),
		"to", s.String(),
	}
	if reason != "" {
		attrs = append(attrs, "reason", reason)
	}
	if s == RouteActive {
		e.logger.Info("route state changed", attrs...)
	} else {
		e.logger.Warn("route state changed", attrs...)
	}

	e.sink.Publish(events.RouteStateChangedEvent{
		Route:     r.cfg.Alias,
		From:      r.cfg.From,
		To:        r.cfg.To,
		Previous:  prev.String(),
		State:     s.String(),
		Reason:    reason,
		Timestamp: e.clock.Now(),
	})
}

// RouteStates returns the state of every route keyed by alias.
func (e *Engine) RouteStates() map[string]RouteState {
	out := make(map[string]RouteState, len(e.routes))
	for _, r := range e.routes {
		out[r.cfg.Alias] = r.loadState()
	}
	return out
}

// DeviceStates returns the state of every endpoint keyed by alias.
func (e *Engine) DeviceStates() map[string]DeviceState {
	out := make(map[string]DeviceState, len(e.order))
	for _, ep := range e.order {
		out[ep.cfg.Alias] = ep.State()
	}
	return out
}

// Snapshot returns the status of every route in configuration order.
func (e *Engine) Snapshot() []RouteStatus {
	out := make([]RouteStatus, 0, len(e.routes))
	for _, r := range e.routes {
		st := r.loadState()
		status := RouteStatus{
			Alias:           r.cfg.Alias,
			From:            r.cfg.From,
			To:              r.cfg.To,
			State:           st,
			StateStr:        st.String(),
			OverflowSamples: r.overflowSamples.Load(),
			OverflowEvents:  r.overflowEvents.Load(),
			UnderrunSamples: r.underrunSamples.Load(),
			UnderrunEvents:  r.underrunEvents.Load(),
		}
		if rb := r.buf.Load(); rb != nil {
			status.Buffered = rb.ring.Len()
			status.Capacity = rb.ring.Capacity()
		}
		out = append(out, status)
	}
	return out
}

// DeviceStatus is a point-in-time view of one endpoint.
type DeviceStatus struct {
	Alias      string `json:"alias"`
	Kind       string `json:"kind"`
	State      string `json:"state"`
	SystemName string `json:"system_name,omitempty"`
	Channels   int    `json:"channels,omitempty"`
	SampleRate int    `json:"sample_rate,omitempty"`
}

// DeviceSnapshot returns the status of every endpoint in configuration order.
func (e *Engine) DeviceSnapshot() []DeviceStatus {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]DeviceStatus, 0, len(e.order))
	for _, ep := range e.order {
		f := ep.Format()
		out = append(out, DeviceStatus{
			Alias:      ep.cfg.Alias,
			Kind:       ep.cfg.Kind.String(),
			State:      ep.State().String(),
			SystemName: ep.info.SystemName,
			Channels:   f.Channels,
			SampleRate: f.SampleRate,
		})
	}
	return out
}

// CollectStats returns per-route counter deltas since the previous call.
func (e *Engine) CollectStats() []BufferStats {
	e.statsMu.Lock()
	defer e.statsMu.Unlock()

	out := make([]BufferStats, 0, len(e.routes))
	for _, r := range e.routes {
		cur := BufferStats{
			Route:           r.cfg.Alias,
			OverflowSamples: r.overflowSamples.Load(),
			OverflowEvents:  r.overflowEvents.Load(),
			UnderrunSamples: r.underrunSamples.Load(),
			UnderrunEvents:  r.underrunEvents.Load(),
		}
		delta := BufferStats{
			Route:           cur.Route,
			OverflowSamples: cur.OverflowSamples - r.reported.OverflowSamples,
			OverflowEvents:  cur.OverflowEvents - r.reported.OverflowEvents,
			UnderrunSamples: cur.UnderrunSamples - r.reported.UnderrunSamples,
			UnderrunEvents:  cur.UnderrunEvents - r.reported.UnderrunEvents,
		}
		if rb := r.buf.Load(); rb != nil {
			delta.Buffered = rb.ring.Len()
			delta.Capacity = rb.ring.Capacity()
		}
		r.reported = cur
		out = append(out, delta)
	}
	return out
}
