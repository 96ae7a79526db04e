// client.go: paho based implementation of Client.
package mqtt

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/tphakala/audiorouter/internal/errors"
	"github.com/tphakala/audiorouter/internal/logging"
	"github.com/tphakala/audiorouter/internal/observability/metrics"
	"github.com/tphakala/audiorouter/internal/privacy"
)

// client implements the Client interface.
type client struct {
	config         Config
	internalClient paho.Client
	metrics        *metrics.MQTTMetrics
	logger         *slog.Logger
	mu             sync.Mutex
}

// NewClient creates a new MQTT client with the provided configuration.
// metrics may be nil.
func NewClient(config Config, m *metrics.MQTTMetrics, logger *slog.Logger) (Client, error) {
	if _, err := url.Parse(config.Broker); err != nil {
		return nil, errors.New(privacy.WrapError(err)).
			Component("mqtt").
			Category(errors.CategoryConfiguration).
			Context("broker", privacy.RedactURL(config.Broker)).
			Build()
	}
	if logger == nil {
		logger = logging.ForService("mqtt")
	}
	defaults := DefaultConfig()
	if config.ConnectTimeout <= 0 {
		config.ConnectTimeout = defaults.ConnectTimeout
	}
	if config.PublishTimeout <= 0 {
		config.PublishTimeout = defaults.PublishTimeout
	}
	if config.DisconnectTimeout <= 0 {
		config.DisconnectTimeout = defaults.DisconnectTimeout
	}
	return &client{
		config:  config,
		metrics: m,
		logger:  logger,
	}, nil
}

// Connect attempts to establish a connection to the MQTT broker.
// It first resolves the broker's hostname and then attempts to connect.
func (c *client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	u, err := url.Parse(c.config.Broker)
	if err != nil {
		return fmt.Errorf("invalid broker URL: %w", privacy.WrapError(err))
	}

	host := u.Hostname()
	if net.ParseIP(host) == nil {
		if _, err := net.DefaultResolver.LookupHost(ctx, host); err != nil {
			return errors.New(err).
				Component("mqtt").
				Category(errors.CategoryNetwork).
				Context("operation", "resolve_broker").
				Context("host", host).
				Build()
		}
	}

	opts := paho.NewClientOptions()
	opts.AddBroker(c.config.Broker)
	opts.SetClientID(c.config.ClientID)
	opts.SetUsername(c.config.Username)
	opts.SetPassword(c.config.Password)
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(false)
	opts.SetWill(StatusTopic(c.config.Topic), PayloadOffline, 1, true)
	opts.SetOnConnectHandler(c.onConnect)
	opts.SetConnectionLostHandler(c.onConnectionLost)
	opts.SetReconnectingHandler(c.onReconnecting)

	c.internalClient = paho.NewClient(opts)

	token := c.internalClient.Connect()
	if !waitToken(ctx, token, c.config.ConnectTimeout) {
		return errors.Newf("connection timeout").
			Component("mqtt").
			Category(errors.CategoryTimeout).
			Context("broker", privacy.RedactURL(c.config.Broker)).
			Build()
	}
	if err := token.Error(); err != nil {
		return errors.New(privacy.WrapError(err)).
			Component("mqtt").
			Category(errors.CategoryNetwork).
			Context("operation", "connect").
			Context("broker", privacy.RedactURL(c.config.Broker)).
			Build()
	}
	return nil
}

// Publish sends a message with the configured retain flag.
func (c *client) Publish(ctx context.Context, topic, payload string) error {
	return c.PublishWithRetain(ctx, topic, payload, c.config.Retain)
}

// PublishWithRetain sends a message to the specified topic on the MQTT broker.
func (c *client) PublishWithRetain(ctx context.Context, topic, payload string, retain bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	kind := TopicKind(c.config.Topic, c.config.DiscoveryPrefix, topic)
	if !c.isConnected() {
		c.recordFailure(kind, metrics.FailureDisconnected)
		return errors.Newf("not connected to MQTT broker").
			Component("mqtt").
			Category(errors.CategoryNetwork).
			Context("topic", topic).
			Build()
	}

	start := time.Now()
	token := c.internalClient.Publish(topic, 1, retain, payload)
	if !waitToken(ctx, token, c.config.PublishTimeout) {
		c.recordFailure(kind, metrics.FailureTimeout)
		return errors.Newf("publish timeout").
			Component("mqtt").
			Category(errors.CategoryTimeout).
			Context("topic", topic).
			Timing("publish", time.Since(start)).
			Build()
	}
	if err := token.Error(); err != nil {
		c.recordFailure(kind, metrics.FailureBroker)
		return err
	}

	if c.metrics != nil {
		c.metrics.RecordPublish(kind, len(payload), time.Since(start))
	}
	return nil
}

// IsConnected returns true if the client is currently connected to the MQTT broker.
func (c *client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.isConnected()
}

func (c *client) isConnected() bool {
	return c.internalClient != nil && c.internalClient.IsConnected()
}

// Disconnect publishes the offline status and closes the connection.
func (c *client) Disconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.isConnected() {
		return
	}
	token := c.internalClient.Publish(StatusTopic(c.config.Topic), 1, true, PayloadOffline)
	token.WaitTimeout(c.config.DisconnectTimeout)
	c.internalClient.Disconnect(uint(c.config.DisconnectTimeout.Milliseconds()))
	if c.metrics != nil {
		c.metrics.SetConnected(false)
	}
}

func (c *client) onConnect(cl paho.Client) {
	c.logger.Info("connected to MQTT broker", "broker", privacy.RedactURL(c.config.Broker))
	if c.metrics != nil {
		c.metrics.SetConnected(true)
	}
	// runs on the paho goroutine; c.mu may be held by Connect
	cl.Publish(StatusTopic(c.config.Topic), 1, true, PayloadOnline)
}

func (c *client) onConnectionLost(_ paho.Client, err error) {
	c.logger.Warn("connection to MQTT broker lost", "broker", privacy.RedactURL(c.config.Broker), "error", privacy.WrapError(err))
	if c.metrics != nil {
		c.metrics.RecordConnectionLost()
	}
}

func (c *client) onReconnecting(paho.Client, *paho.ClientOptions) {
	if c.metrics != nil {
		c.metrics.RecordReconnectAttempt()
	}
}

func (c *client) recordFailure(kind, reason string) {
	if c.metrics != nil {
		c.metrics.RecordPublishFailure(kind, reason)
	}
}

// waitToken waits for token completion, the timeout or ctx, whichever is first.
func waitToken(ctx context.Context, token paho.Token, timeout time.Duration) bool {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-token.Done():
		return true
	case <-timer.C:
		return false
	case <-ctx.Done():
		return false
	}
}
