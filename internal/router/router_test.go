package router

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/audiorouter/internal/audiocore"
	"github.com/tphakala/audiorouter/internal/conf"
	"github.com/tphakala/audiorouter/internal/errors"
	"github.com/tphakala/audiorouter/internal/mqtt"
	"github.com/tphakala/audiorouter/internal/testutil"
)

const baseConfig = `
devices:
  mic:
    name: "USB Mic"
    type: input
  spk:
    name: "Speakers"
    type: output
routing:
  desk:
    from: mic
    to: spk
audio:
  keep_alive_sleep_ms: 5
logging:
  file: ""
`

type stubStream struct {
	format  audiocore.StreamFormat
	started atomic.Bool
	closed  atomic.Bool
}

func (s *stubStream) Format() audiocore.StreamFormat { return s.format }

func (s *stubStream) Start() error {
	s.started.Store(true)
	return nil
}

func (s *stubStream) Close() error {
	s.closed.Store(true)
	return nil
}

// stubBackend reports a fixed device list and records opened streams.
type stubBackend struct {
	mu      sync.Mutex
	devices []audiocore.DeviceInfo
	streams []*stubStream
}

func (b *stubBackend) ListDevices(context.Context) ([]audiocore.DeviceInfo, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]audiocore.DeviceInfo(nil), b.devices...), nil
}

func (b *stubBackend) open() *stubStream {
	b.mu.Lock()
	defer b.mu.Unlock()
	s := &stubStream{format: audiocore.StreamFormat{Channels: 1, SampleRate: 48000}}
	b.streams = append(b.streams, s)
	return s
}

func (b *stubBackend) OpenCapture(audiocore.DeviceInfo, int, audiocore.CaptureSink) (audiocore.Stream, error) {
	return b.open(), nil
}

func (b *stubBackend) OpenRender(audiocore.DeviceInfo, int, audiocore.RenderSource) (audiocore.Stream, error) {
	return b.open(), nil
}

func (b *stubBackend) opened() []*stubStream {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]*stubStream(nil), b.streams...)
}

func fullBackend() *stubBackend {
	return &stubBackend{devices: []audiocore.DeviceInfo{
		{SystemName: "USB Mic (2- Generic)", Kind: audiocore.KindInput, ID: "1"},
		{SystemName: "Speakers (Realtek)", Kind: audiocore.KindOutput, ID: "2"},
	}}
}

func loadSettings(t *testing.T, extra string) *conf.Settings {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(baseConfig+extra), 0o600))
	settings, err := conf.Load(path)
	require.NoError(t, err)
	return settings
}

type recordingClient struct {
	mu        sync.Mutex
	connected bool
	connErr   error
	topics    []string
}

func (c *recordingClient) Connect(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.connErr != nil {
		return c.connErr
	}
	c.connected = true
	return nil
}

func (c *recordingClient) Publish(ctx context.Context, topic, payload string) error {
	return c.PublishWithRetain(ctx, topic, payload, true)
}

func (c *recordingClient) PublishWithRetain(_ context.Context, topic, _ string, _ bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.topics = append(c.topics, topic)
	return nil
}

func (c *recordingClient) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

func (c *recordingClient) Disconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected = false
}

func (c *recordingClient) published(prefix string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, topic := range c.topics {
		if strings.HasPrefix(topic, prefix) {
			return true
		}
	}
	return false
}

func TestRunStartsAndStopsCleanly(t *testing.T) {
	t.Parallel()

	backend := fullBackend()
	settings := loadSettings(t, "")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ready := make(chan struct{})
	var stopping, ticks atomic.Int32
	done := make(chan error, 1)
	go func() {
		done <- Run(ctx, settings, Options{
			Backend:    backend,
			OnReady:    func() { close(ready) },
			OnStopping: func() { stopping.Add(1) },
			OnTick:     func(context.Context) { ticks.Add(1) },
		})
	}()

	testutil.WaitForChannel(t, ready, testutil.DefaultTestTimeout, "router never became ready")

	streams := backend.opened()
	require.Len(t, streams, 2)
	for _, s := range streams {
		assert.True(t, s.started.Load())
	}
	require.Eventually(t, func() bool { return ticks.Load() > 0 }, testutil.DefaultTestTimeout, 5*time.Millisecond)

	cancel()
	require.NoError(t, testutil.WaitForResult(t, done, testutil.DefaultTestTimeout, "Run did not return after cancel"))

	assert.Equal(t, int32(1), stopping.Load())
	for _, s := range streams {
		assert.True(t, s.closed.Load(), "streams are closed on shutdown")
	}
}

func TestRunFailsWhenDeviceMissing(t *testing.T) {
	t.Parallel()

	backend := &stubBackend{devices: []audiocore.DeviceInfo{
		{SystemName: "USB Mic", Kind: audiocore.KindInput, ID: "1"},
	}}
	settings := loadSettings(t, "device_wait:\n  enabled: false\n")

	var ready atomic.Bool
	err := Run(context.Background(), settings, Options{
		Backend: backend,
		OnReady: func() { ready.Store(true) },
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, audiocore.ErrDeviceResolution)
	assert.False(t, ready.Load())

	for _, s := range backend.opened() {
		assert.True(t, s.closed.Load(), "bound streams are released after a failed start")
	}
}

func TestRunFailsWhenTelemetryCannotListen(t *testing.T) {
	t.Parallel()

	busy, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer busy.Close()

	settings := loadSettings(t, "telemetry:\n  enabled: true\n  listen: "+busy.Addr().String()+"\n")
	backend := fullBackend()

	done := make(chan error, 1)
	go func() {
		done <- Run(context.Background(), settings, Options{Backend: backend})
	}()

	err = testutil.WaitForResult(t, done, testutil.DefaultTestTimeout, "Run did not return")
	require.Error(t, err)
	assert.NotErrorIs(t, err, context.Canceled)
	for _, s := range backend.opened() {
		assert.True(t, s.closed.Load())
	}
}

func TestRunRequiresBackend(t *testing.T) {
	t.Parallel()

	err := Run(context.Background(), loadSettings(t, ""), Options{})
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryConfiguration))
}

func TestRunPublishesMQTTStatus(t *testing.T) {
	t.Parallel()

	settings := loadSettings(t, `
mqtt:
  enabled: true
  topic: studio
  client_id: desk
  homeassistant_discovery: true
`)
	client := &recordingClient{}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ready := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- Run(ctx, settings, Options{
			Backend:       fullBackend(),
			Version:       "test",
			OnReady:       func() { close(ready) },
			NewMQTTClient: func(mqtt.Config) (mqtt.Client, error) { return client, nil },
		})
	}()

	testutil.WaitForChannel(t, ready, testutil.DefaultTestTimeout, "router never became ready")

	require.Eventually(t, func() bool { return client.published("studio/route/desk") }, testutil.DefaultTestTimeout, 5*time.Millisecond)
	assert.True(t, client.published("homeassistant/sensor/desk/desk_route_desk/config"))

	cancel()
	require.NoError(t, testutil.WaitForResult(t, done, testutil.DefaultTestTimeout, "Run did not return after cancel"))
	assert.False(t, client.IsConnected(), "client is disconnected on shutdown")
}

func TestRunContinuesWithoutBroker(t *testing.T) {
	t.Parallel()

	settings := loadSettings(t, "mqtt:\n  enabled: true\n")
	client := &recordingClient{connErr: errors.NewStd("connection refused")}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- Run(ctx, settings, Options{
			Backend:       fullBackend(),
			OnReady:       cancel,
			NewMQTTClient: func(mqtt.Config) (mqtt.Client, error) { return client, nil },
		})
	}()

	require.NoError(t, testutil.WaitForResult(t, done, testutil.DefaultTestTimeout, "Run did not return"))
	assert.False(t, client.published(""))
}

func TestMQTTConfigFromSettings(t *testing.T) {
	t.Parallel()

	settings := loadSettings(t, `
mqtt:
  broker: tcp://broker:1883
  topic: studio
  client_id: ""
  retain: false
`)
	cfg, err := mqttConfig(settings, nil)
	require.NoError(t, err)
	assert.Equal(t, "tcp://broker:1883", cfg.Broker)
	assert.Equal(t, "studio", cfg.Topic)
	assert.Equal(t, mqtt.DefaultConfig().ClientID, cfg.ClientID)
	assert.False(t, cfg.Retain)
	assert.Positive(t, cfg.ConnectTimeout)
}

func TestMQTTConfigReadsPasswordFile(t *testing.T) {
	t.Parallel()

	secret := filepath.Join(t.TempDir(), "mqtt_password")
	require.NoError(t, os.WriteFile(secret, []byte("hunter2\n"), 0o600))

	settings := loadSettings(t, "mqtt:\n  password: ignored\n  password_file: "+secret+"\n")
	cfg, err := mqttConfig(settings, nil)
	require.NoError(t, err)
	assert.Equal(t, "hunter2", cfg.Password)

	settings.MQTT.PasswordFile = filepath.Join(t.TempDir(), "missing")
	_, err = mqttConfig(settings, nil)
	require.Error(t, err)
}
