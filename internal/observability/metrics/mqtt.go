package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Topic kinds used as the "kind" label on publish metrics.
const (
	TopicStatus    = "status"
	TopicRoute     = "route"
	TopicBuffers   = "buffers"
	TopicDevice    = "device"
	TopicDiscovery = "discovery"
	TopicOther     = "other"
)

// Publish failure reasons.
const (
	FailureDisconnected = "disconnected"
	FailureTimeout      = "timeout"
	FailureBroker       = "broker"
)

// MQTTMetrics tracks the status publisher: broker connectivity and publishes
// broken down by the kind of topic they went to.
type MQTTMetrics struct {
	connected       prometheus.Gauge
	lastConnect     prometheus.Gauge
	connectionLost  prometheus.Counter
	reconnects      prometheus.Counter
	published       *prometheus.CounterVec
	publishFailures *prometheus.CounterVec
	payloadBytes    *prometheus.HistogramVec
	publishLatency  prometheus.Histogram

	collectors []prometheus.Collector
}

// NewMQTTMetrics creates and registers the status publisher metrics.
func NewMQTTMetrics(registry *prometheus.Registry) (*MQTTMetrics, error) {
	m := &MQTTMetrics{}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register MQTT metrics: %w", err)
	}
	return m, nil
}

func (m *MQTTMetrics) initMetrics() {
	m.connected = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "audiorouter_mqtt_connected",
		Help: "Broker connection state (1 connected, 0 disconnected)",
	})
	m.lastConnect = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "audiorouter_mqtt_last_connect_time_seconds",
		Help: "Unix time of the last successful broker connection",
	})
	m.connectionLost = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "audiorouter_mqtt_connection_lost_total",
		Help: "Total number of times the broker connection dropped",
	})
	m.reconnects = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "audiorouter_mqtt_reconnect_attempts_total",
		Help: "Total number of broker reconnection attempts",
	})
	m.published = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "audiorouter_mqtt_published_total",
			Help: "Total number of messages acknowledged by the broker by topic kind",
		},
		[]string{"kind"},
	)
	m.publishFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "audiorouter_mqtt_publish_failures_total",
			Help: "Total number of failed publishes by topic kind and reason",
		},
		[]string{"kind", "reason"},
	)
	m.payloadBytes = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "audiorouter_mqtt_payload_bytes",
			Help:    "Size of published payloads by topic kind",
			Buckets: prometheus.ExponentialBuckets(BucketStart64B, BucketFactor2, BucketCount10),
		},
		[]string{"kind"},
	)
	m.publishLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "audiorouter_mqtt_publish_latency_seconds",
		Help:    "Time from publish until broker acknowledgement",
		Buckets: prometheus.ExponentialBuckets(BucketStart1ms, BucketFactor2, BucketCount10),
	})

	m.collectors = []prometheus.Collector{
		m.connected, m.lastConnect, m.connectionLost, m.reconnects,
		m.published, m.publishFailures, m.payloadBytes, m.publishLatency,
	}
}

// SetConnected records the broker connection state.
func (m *MQTTMetrics) SetConnected(connected bool) {
	if !connected {
		m.connected.Set(0)
		return
	}
	m.connected.Set(1)
	m.lastConnect.SetToCurrentTime()
}

// RecordConnectionLost counts an unexpected disconnect.
func (m *MQTTMetrics) RecordConnectionLost() {
	m.connected.Set(0)
	m.connectionLost.Inc()
}

// RecordReconnectAttempt counts one reconnection attempt.
func (m *MQTTMetrics) RecordReconnectAttempt() {
	m.reconnects.Inc()
}

// RecordPublish records an acknowledged publish.
func (m *MQTTMetrics) RecordPublish(kind string, payloadBytes int, elapsed time.Duration) {
	m.published.WithLabelValues(kind).Inc()
	m.payloadBytes.WithLabelValues(kind).Observe(float64(payloadBytes))
	m.publishLatency.Observe(elapsed.Seconds())
}

// RecordPublishFailure counts a publish that never reached the broker.
func (m *MQTTMetrics) RecordPublishFailure(kind, reason string) {
	m.publishFailures.WithLabelValues(kind, reason).Inc()
}

// Describe implements the prometheus.Collector interface.
func (m *MQTTMetrics) Describe(ch chan<- *prometheus.Desc) {
	for _, c := range m.collectors {
		c.Describe(ch)
	}
}

// Collect implements the prometheus.Collector interface.
func (m *MQTTMetrics) Collect(ch chan<- prometheus.Metric) {
	for _, c := range m.collectors {
		c.Collect(ch)
	}
}
