// mqtt.go: Package mqtt publishes router status to an MQTT broker.
package mqtt

import (
	"context"
	"strings"
	"time"

	"github.com/tphakala/audiorouter/internal/observability/metrics"
)

// Client defines the interface for MQTT client operations.
type Client interface {
	// Connect attempts to connect to the MQTT broker.
	// It returns an error if the connection fails.
	Connect(ctx context.Context) error

	// Publish sends a message to the specified topic using the configured
	// retain flag.
	Publish(ctx context.Context, topic string, payload string) error

	// PublishWithRetain sends a message with an explicit retain flag.
	PublishWithRetain(ctx context.Context, topic string, payload string, retain bool) error

	// IsConnected returns true if the client is currently connected to the MQTT broker.
	IsConnected() bool

	// Disconnect closes the connection to the MQTT broker.
	Disconnect()
}

// Availability payloads published on <topic>/status.
const (
	PayloadOnline  = "online"
	PayloadOffline = "offline"
)

// Config holds the configuration for the MQTT client.
type Config struct {
	Broker   string
	ClientID string
	Username string
	Password string
	Topic    string // Base topic for status messages
	Retain   bool   // true to retain status messages at the broker

	// Home Assistant discovery
	Discovery       bool
	DiscoveryPrefix string

	// Connection timeouts
	ConnectTimeout    time.Duration
	PublishTimeout    time.Duration
	DisconnectTimeout time.Duration
}

// DefaultConfig returns a Config with reasonable default values
func DefaultConfig() Config {
	return Config{
		ClientID:          "audiorouter",
		Topic:             "audiorouter",
		Retain:            true,
		DiscoveryPrefix:   "homeassistant",
		ConnectTimeout:    30 * time.Second,
		PublishTimeout:    10 * time.Second,
		DisconnectTimeout: 250 * time.Millisecond,
	}
}

// StatusTopic is the availability topic under base.
func StatusTopic(base string) string {
	return base + "/status"
}

// TopicKind classifies a topic published under base or the discovery prefix
// into one of the metrics.Topic* kinds.
func TopicKind(base, discoveryPrefix, topic string) string {
	if discoveryPrefix != "" && strings.HasPrefix(topic, discoveryPrefix+"/") {
		return metrics.TopicDiscovery
	}
	rest, ok := strings.CutPrefix(topic, base+"/")
	if !ok {
		return metrics.TopicOther
	}
	switch {
	case rest == "status":
		return metrics.TopicStatus
	case strings.HasPrefix(rest, "route/") && strings.HasSuffix(rest, "/buffers"):
		return metrics.TopicBuffers
	case strings.HasPrefix(rest, "route/"):
		return metrics.TopicRoute
	case strings.HasPrefix(rest, "device/"):
		return metrics.TopicDevice
	default:
		return metrics.TopicOther
	}
}
