package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/audiorouter/internal/events"
)

func newRouterMetrics(t *testing.T) *RouterMetrics {
	t.Helper()
	m, err := NewRouterMetrics(prometheus.NewRegistry())
	require.NoError(t, err)
	return m
}

func TestRecordRouteState(t *testing.T) {
	t.Parallel()
	m := newRouterMetrics(t)

	m.RecordRouteState(events.RouteStateChangedEvent{Route: "mic", Previous: "WaitingForDevice", State: "Active"})
	m.RecordRouteState(events.RouteStateChangedEvent{Route: "mic", Previous: "Active", State: "Degraded"})

	assert.InDelta(t, 0, testutil.ToFloat64(m.routeState.WithLabelValues("mic", "Active")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.routeState.WithLabelValues("mic", "Degraded")), 0)
	assert.InDelta(t, 0, testutil.ToFloat64(m.routeState.WithLabelValues("mic", "Failed")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.routeTransitions.WithLabelValues("mic", "Active")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.routeTransitions.WithLabelValues("mic", "Degraded")), 0)
}

func TestRecordDeviceState(t *testing.T) {
	t.Parallel()
	m := newRouterMetrics(t)

	m.RecordDeviceState(events.DeviceStateChangedEvent{Device: "headset", State: "Bound", Channels: 2, SampleRate: 48000})
	m.RecordDeviceState(events.DeviceStateChangedEvent{Device: "headset", State: "Lost"})

	assert.InDelta(t, 1, testutil.ToFloat64(m.deviceState.WithLabelValues("headset", "Lost")), 0)
	assert.InDelta(t, 0, testutil.ToFloat64(m.deviceState.WithLabelValues("headset", "Bound")), 0)
	assert.InDelta(t, 48000, testutil.ToFloat64(m.deviceSampleRate.WithLabelValues("headset")), 0)
	assert.InDelta(t, 2, testutil.ToFloat64(m.deviceChannels.WithLabelValues("headset")), 0)
}

func TestRecordBufferStatsAccumulates(t *testing.T) {
	t.Parallel()
	m := newRouterMetrics(t)

	m.RecordBufferStats(events.BufferStatsEvent{Route: "r", OverflowSamples: 10, OverflowEvents: 1, BufferedSamples: 100, CapacitySamples: 4096})
	m.RecordBufferStats(events.BufferStatsEvent{Route: "r", UnderrunSamples: 32, UnderrunEvents: 2, BufferedSamples: 0, CapacitySamples: 4096})

	assert.InDelta(t, 10, testutil.ToFloat64(m.overflowSamples.WithLabelValues("r")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.overflowEvents.WithLabelValues("r")), 0)
	assert.InDelta(t, 32, testutil.ToFloat64(m.underrunSamples.WithLabelValues("r")), 0)
	assert.InDelta(t, 2, testutil.ToFloat64(m.underrunEvents.WithLabelValues("r")), 0)
	assert.InDelta(t, 0, testutil.ToFloat64(m.bufferFill.WithLabelValues("r")), 0)
	assert.InDelta(t, 4096, testutil.ToFloat64(m.bufferCapacity.WithLabelValues("r")), 0)
}

func TestRouterMetricsSubscribe(t *testing.T) {
	t.Parallel()
	m := newRouterMetrics(t)
	bus := events.New()

	unsubscribe := m.Subscribe(bus)
	defer unsubscribe()

	bus.Publish(events.BufferStatsEvent{Route: "r", OverflowSamples: 5, OverflowEvents: 1, Timestamp: time.Now()})

	require.Eventually(t, func() bool {
		return testutil.ToFloat64(m.overflowSamples.WithLabelValues("r")) == 5
	}, time.Second, 5*time.Millisecond)
}

func TestRouterMetricsRegisterTwiceFails(t *testing.T) {
	t.Parallel()

	registry := prometheus.NewRegistry()
	_, err := NewRouterMetrics(registry)
	require.NoError(t, err)
	_, err = NewRouterMetrics(registry)
	assert.Error(t, err)
}

// gather returns the named family from registry.
func gather(t *testing.T, registry *prometheus.Registry, name string) *dto.MetricFamily {
	t.Helper()
	families, err := registry.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() == name {
			return mf
		}
	}
	require.Failf(t, "metric family not gathered", "%s", name)
	return nil
}

func labelValue(m *dto.Metric, name string) string {
	for _, lp := range m.GetLabel() {
		if lp.GetName() == name {
			return lp.GetValue()
		}
	}
	return ""
}

func TestMQTTMetricsConnection(t *testing.T) {
	t.Parallel()

	m, err := NewMQTTMetrics(prometheus.NewRegistry())
	require.NoError(t, err)

	m.SetConnected(true)
	assert.InDelta(t, 1, testutil.ToFloat64(m.connected), 0)
	assert.Positive(t, testutil.ToFloat64(m.lastConnect))

	m.RecordConnectionLost()
	m.RecordReconnectAttempt()
	m.RecordReconnectAttempt()
	assert.InDelta(t, 0, testutil.ToFloat64(m.connected), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.connectionLost), 0)
	assert.InDelta(t, 2, testutil.ToFloat64(m.reconnects), 0)
}

func TestMQTTMetricsPublishByTopicKind(t *testing.T) {
	t.Parallel()

	registry := prometheus.NewRegistry()
	m, err := NewMQTTMetrics(registry)
	require.NoError(t, err)

	m.RecordPublish(TopicRoute, 120, 3*time.Millisecond)
	m.RecordPublish(TopicRoute, 130, 2*time.Millisecond)
	m.RecordPublish(TopicBuffers, 200, time.Millisecond)
	m.RecordPublishFailure(TopicDevice, FailureDisconnected)

	published := gather(t, registry, "audiorouter_mqtt_published_total")
	assert.Equal(t, dto.MetricType_COUNTER, published.GetType())
	counts := map[string]float64{}
	for _, metric := range published.GetMetric() {
		counts[labelValue(metric, "kind")] = metric.GetCounter().GetValue()
	}
	assert.Equal(t, map[string]float64{TopicRoute: 2, TopicBuffers: 1}, counts)

	failures := gather(t, registry, "audiorouter_mqtt_publish_failures_total")
	require.Len(t, failures.GetMetric(), 1)
	assert.Equal(t, TopicDevice, labelValue(failures.GetMetric()[0], "kind"))
	assert.Equal(t, FailureDisconnected, labelValue(failures.GetMetric()[0], "reason"))

	sizes := gather(t, registry, "audiorouter_mqtt_payload_bytes")
	assert.Equal(t, dto.MetricType_HISTOGRAM, sizes.GetType())
	for _, metric := range sizes.GetMetric() {
		if labelValue(metric, "kind") == TopicRoute {
			assert.Equal(t, uint64(2), metric.GetHistogram().GetSampleCount())
			assert.InDelta(t, 250, metric.GetHistogram().GetSampleSum(), 0)
		}
	}

	latency := gather(t, registry, "audiorouter_mqtt_publish_latency_seconds")
	assert.Equal(t, uint64(3), latency.GetMetric()[0].GetHistogram().GetSampleCount())
}
