package audiocore

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/audiorouter/internal/events"
)

// fakeClock advances its own time whenever After is called, so waits complete
// instantly while the timeline stays exact.
type fakeClock struct {
	*clockwork.FakeClock
}

func newFakeClock() *fakeClock {
	return &fakeClock{clockwork.NewFakeClockAt(time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC))}
}

func (c *fakeClock) After(d time.Duration) <-chan time.Time {
	ch := c.FakeClock.After(d)
	c.FakeClock.Advance(d)
	return ch
}

// advance moves the clock forward and returns the new time.
func (c *fakeClock) advance(d time.Duration) time.Time {
	c.FakeClock.Advance(d)
	return c.Now()
}

type fakeDevice struct {
	info     DeviceInfo
	format   StreamFormat
	present  bool
	appearAt time.Time // when non-zero the device is listed from this instant
}

type fakeStream struct {
	info    DeviceInfo
	format  StreamFormat
	sink    CaptureSink
	source  RenderSource
	started atomic.Bool
	closed  atomic.Bool
}

func (s *fakeStream) Format() StreamFormat { return s.format }

func (s *fakeStream) Start() error {
	s.started.Store(true)
	return nil
}

func (s *fakeStream) Close() error {
	s.closed.Store(true)
	return nil
}

func (s *fakeStream) capture(samples ...float32) {
	s.sink.OnCapture(samples, s.format.Channels, s.format.SampleRate)
}

func (s *fakeStream) render(frames int) []float32 {
	out := make([]float32, frames*s.format.Channels)
	s.source.OnRender(out, s.format.Channels)
	return out
}

type fakeBackend struct {
	mu        sync.Mutex
	clock     Clock
	devices   []*fakeDevice
	listErr   error
	listCalls int
	streams   map[string]*fakeStream
	opened    map[string]int
}

func newFakeBackend(clock Clock) *fakeBackend {
	return &fakeBackend{
		clock:   clock,
		streams: make(map[string]*fakeStream),
		opened:  make(map[string]int),
	}
}

func (b *fakeBackend) add(name string, kind Kind, channels, rate int) *fakeDevice {
	b.mu.Lock()
	defer b.mu.Unlock()
	d := &fakeDevice{
		info:    DeviceInfo{SystemName: name, Kind: kind, ID: name},
		format:  StreamFormat{Channels: channels, SampleRate: rate},
		present: true,
	}
	b.devices = append(b.devices, d)
	return d
}

func (b *fakeBackend) setPresent(name string, present bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, d := range b.devices {
		if d.info.SystemName == name {
			d.present = present
		}
	}
}

func (b *fakeBackend) setRate(name string, rate int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, d := range b.devices {
		if d.info.SystemName == name {
			d.format.SampleRate = rate
		}
	}
}

func (b *fakeBackend) ListDevices(context.Context) ([]DeviceInfo, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.listCalls++
	if b.listErr != nil {
		return nil, b.listErr
	}
	now := b.clock.Now()
	var out []DeviceInfo
	for _, d := range b.devices {
		if d.present || (!d.appearAt.IsZero() && !now.Before(d.appearAt)) {
			out = append(out, d.info)
		}
	}
	return out, nil
}

func (b *fakeBackend) open(info DeviceInfo) *fakeStream {
	b.mu.Lock()
	defer b.mu.Unlock()
	s := &fakeStream{info: info}
	for _, d := range b.devices {
		if d.info.SystemName == info.SystemName {
			s.format = d.format
		}
	}
	b.streams[info.SystemName] = s
	b.opened[info.SystemName]++
	return s
}

func (b *fakeBackend) OpenCapture(info DeviceInfo, _ int, sink CaptureSink) (Stream, error) {
	s := b.open(info)
	s.sink = sink
	return s, nil
}

func (b *fakeBackend) OpenRender(info DeviceInfo, _ int, source RenderSource) (Stream, error) {
	s := b.open(info)
	s.source = source
	return s, nil
}

func (b *fakeBackend) stream(t *testing.T, name string) *fakeStream {
	t.Helper()
	b.mu.Lock()
	defer b.mu.Unlock()
	s, ok := b.streams[name]
	require.True(t, ok, "no stream opened for %s", name)
	return s
}

func (b *fakeBackend) calls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.listCalls
}

// recordingSink keeps every published event in order.
type recordingSink struct {
	mu     sync.Mutex
	events []events.Event
}

func (s *recordingSink) Publish(ev events.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
}

func (s *recordingSink) deviceStates(alias string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for _, ev := range s.events {
		if e, ok := ev.(events.DeviceStateChangedEvent); ok && e.Device == alias {
			out = append(out, e.State)
		}
	}
	return out
}

func (s *recordingSink) routeStates(alias string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for _, ev := range s.events {
		if e, ok := ev.(events.RouteStateChangedEvent); ok && e.Route == alias {
			out = append(out, e.State)
		}
	}
	return out
}

func (s *recordingSink) bufferStats() []events.BufferStatsEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []events.BufferStatsEvent
	for _, ev := range s.events {
		if e, ok := ev.(events.BufferStatsEvent); ok {
			out = append(out, e)
		}
	}
	return out
}

func inputDevice(alias, name string) DeviceConfig {
	return DeviceConfig{Alias: alias, MatchName: name, Kind: KindInput, BufferSize: 512, RingCapacity: 4096, Gain: 1}
}

func outputDevice(alias, name string) DeviceConfig {
	return DeviceConfig{Alias: alias, MatchName: name, Kind: KindOutput, BufferSize: 512, RingCapacity: 4096, Gain: 1}
}

func testConfig(devices []DeviceConfig, routes ...RouteConfig) Config {
	return Config{
		Devices: devices,
		Routes:  routes,
		Audio: AudioSettings{
			KeepAlive:            10 * time.Millisecond,
			StereoToMonoMixRatio: 0.5,
			SampleMin:            -1,
			SampleMax:            1,
		},
		Wait: DeviceWaitPolicy{
			Enabled:       true,
			MaxWait:       4 * time.Second,
			RetryInterval: time.Second,
			StaleFactor:   20,
			MinStale:      500 * time.Millisecond,
		},
	}
}

type rig struct {
	clock    *fakeClock
	backend  *fakeBackend
	sink     *recordingSink
	engine   *Engine
	watchdog *Watchdog
}

func newRig(t *testing.T, cfg Config) *rig {
	t.Helper()
	clock := newFakeClock()
	backend := newFakeBackend(clock)
	sink := &recordingSink{}
	engine, err := NewEngine(cfg, backend, WithClock(clock), WithEventSink(sink))
	require.NoError(t, err)
	t.Cleanup(func() { _ = engine.Close() })
	return &rig{
		clock:    clock,
		backend:  backend,
		sink:     sink,
		engine:   engine,
		watchdog: NewWatchdog(engine, backend, cfg.Wait, WithClock(clock)),
	}
}

// start resolves all devices and activates the engine.
func (r *rig) start(t *testing.T) {
	t.Helper()
	require.NoError(t, r.watchdog.WaitForDevices(context.Background()))
	require.NoError(t, r.engine.Activate())
}

func filled(n int, v float32) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = v
	}
	return out
}
