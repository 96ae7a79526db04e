// Package router wires configuration, telemetry and the audio engine into one
// process lifecycle shared by console and service mode.
package router

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/tphakala/audiorouter/internal/audiocore"
	"github.com/tphakala/audiorouter/internal/conf"
	"github.com/tphakala/audiorouter/internal/errors"
	"github.com/tphakala/audiorouter/internal/events"
	"github.com/tphakala/audiorouter/internal/logging"
	"github.com/tphakala/audiorouter/internal/mqtt"
	"github.com/tphakala/audiorouter/internal/observability"
	"github.com/tphakala/audiorouter/internal/privacy"
	"github.com/tphakala/audiorouter/internal/secrets"
)

// Options are the mode-specific parts of a run.
type Options struct {
	// Backend opens device streams. Required.
	Backend audiocore.Backend

	// Version is reported in MQTT discovery.
	Version string

	// OnReady runs once every configured stream is started.
	OnReady func()
	// OnStopping runs when shutdown begins.
	OnStopping func()
	// OnTick runs after every keep-alive pass.
	OnTick audiocore.TickHook

	// NewMQTTClient overrides the paho client, mainly for tests.
	NewMQTTClient func(mqtt.Config) (mqtt.Client, error)

	Logger *slog.Logger
}

// Run resolves devices, starts routing and blocks until ctx is cancelled or
// a startup step fails. Startup configuration and resolution errors are
// returned; device loss at runtime never is.
func Run(ctx context.Context, settings *conf.Settings, opts Options) error {
	logger := opts.Logger
	if logger == nil {
		logger = logging.ForService("router")
	}
	if opts.Backend == nil {
		return errors.Newf("no audio backend").
			Component("router").
			Category(errors.CategoryConfiguration).
			Build()
	}

	cfg, err := settings.RouterConfig()
	if err != nil {
		return err
	}
	logConfiguration(logger, cfg)

	bus := events.New()
	sinkOpt := audiocore.WithEventSink(bus)

	var m *observability.Metrics
	if settings.Telemetry.Enabled {
		m, err = observability.NewMetrics()
		if err != nil {
			return err
		}
		defer m.Router.Subscribe(bus)()
	}

	mqttClient := startMQTT(ctx, settings, opts, m, bus, logger)
	if mqttClient != nil {
		defer mqttClient.Disconnect()
	}

	engine, err := audiocore.NewEngine(cfg, opts.Backend, sinkOpt)
	if err != nil {
		return err
	}
	defer func() {
		if err := engine.Close(); err != nil {
			logger.Warn("error while closing audio streams", "error", err)
		}
	}()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)
	if settings.Telemetry.Enabled {
		endpoint := observability.NewEndpoint(settings.Telemetry.Listen, m, engine, logger.With("component", "telemetry"))
		g.Go(func() error { return endpoint.Run(gctx) })
	}

	watchdog := audiocore.NewWatchdog(engine, opts.Backend, cfg.Wait, sinkOpt)
	if err := watchdog.WaitForDevices(gctx); err != nil {
		return stopGroup(g, cancel, err)
	}
	if err := engine.Activate(); err != nil {
		return stopGroup(g, cancel, err)
	}

	if mqttClient != nil && settings.MQTT.HomeAssistantDiscovery {
		publishDiscovery(gctx, mqttClient, settings, cfg, opts.Version, logger)
	}

	if opts.OnReady != nil {
		opts.OnReady()
	}

	keepAlive := audiocore.NewKeepAlive(watchdog, engine, cfg.Audio.KeepAlive, sinkOpt)
	if opts.OnTick != nil {
		keepAlive.OnTick(opts.OnTick)
	}
	g.Go(func() error { return keepAlive.Run(gctx) })

	<-gctx.Done()
	logger.Info("shutting down audio router")
	if opts.OnStopping != nil {
		opts.OnStopping()
	}
	err = g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// stopGroup stops background tasks after a failed startup. A task that failed
// first, such as the telemetry listener, wins over the cancellation it caused.
func stopGroup(g *errgroup.Group, cancel context.CancelFunc, cause error) error {
	cancel()
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return cause
}

func logConfiguration(logger *slog.Logger, cfg audiocore.Config) {
	logger.Info("device configuration", "count", len(cfg.Devices))
	for _, d := range cfg.Devices {
		logger.Info("device",
			"alias", d.Alias,
			"name", d.MatchName,
			"type", d.Kind.String(),
			"buffer_size", d.BufferSize,
			"primary_buffer", d.RingCapacity,
			"gain", d.Gain)
	}
	logger.Info("routing configuration", "count", len(cfg.Routes))
	for _, r := range cfg.Routes {
		logger.Info("route", "alias", r.Alias, "from", r.From, "to", r.To)
	}
	logger.Info("device wait policy",
		"enabled", cfg.Wait.Enabled,
		"max_wait", cfg.Wait.MaxWait,
		"retry_interval", cfg.Wait.RetryInterval,
		"allow_partial", cfg.Wait.AllowPartial)
}

// startMQTT connects the status publisher. An unreachable broker is logged
// and MQTT stays off for this run.
func startMQTT(ctx context.Context, settings *conf.Settings, opts Options, m *observability.Metrics, bus *events.Bus, logger *slog.Logger) mqtt.Client {
	if !settings.MQTT.Enabled {
		return nil
	}

	cfg, err := mqttConfig(settings, logger)
	if err != nil {
		logger.Warn("MQTT disabled, password could not be resolved", "error", err)
		return nil
	}
	newClient := opts.NewMQTTClient
	if newClient == nil {
		newClient = func(c mqtt.Config) (mqtt.Client, error) {
			if m == nil {
				return mqtt.NewClient(c, nil, logger.With("component", "mqtt"))
			}
			return mqtt.NewClient(c, m.MQTT, logger.With("component", "mqtt"))
		}
	}

	client, err := newClient(cfg)
	if err != nil {
		logger.Warn("MQTT disabled", "error", err)
		return nil
	}
	if err := client.Connect(ctx); err != nil {
		logger.Warn("MQTT broker unreachable, status publishing disabled", "broker", privacy.RedactURL(cfg.Broker), "error", err)
		return nil
	}

	publisher := mqtt.NewStatusPublisher(ctx, client, cfg.Topic, logger.With("component", "mqtt"))
	publisher.Subscribe(bus)
	return client
}

func publishDiscovery(ctx context.Context, client mqtt.Client, settings *conf.Settings, cfg audiocore.Config, version string, logger *slog.Logger) {
	routes := make([]string, 0, len(cfg.Routes))
	for _, r := range cfg.Routes {
		routes = append(routes, r.Alias)
	}
	devices := make([]string, 0, len(cfg.Devices))
	for _, d := range cfg.Devices {
		devices = append(devices, d.Alias)
	}

	p := mqtt.NewDiscoveryPublisher(client, mqtt.DiscoveryConfig{
		DiscoveryPrefix: settings.MQTT.DiscoveryPrefix,
		BaseTopic:       settings.MQTT.Topic,
		NodeID:          settings.MQTT.ClientID,
		Version:         version,
	})
	if err := p.PublishDiscovery(ctx, routes, devices); err != nil {
		logger.Warn("failed to publish Home Assistant discovery", "error", err)
	}
}

// mqttConfig maps the settings onto the client configuration. The password
// may come from password_file or reference environment variables.
func mqttConfig(settings *conf.Settings, logger *slog.Logger) (mqtt.Config, error) {
	cfg := mqtt.DefaultConfig()
	cfg.Broker = settings.MQTT.Broker
	cfg.Topic = settings.MQTT.Topic
	cfg.Username = settings.MQTT.Username

	password, err := secrets.Resolve(settings.MQTT.PasswordFile, settings.MQTT.Password, logger)
	if err != nil {
		return mqtt.Config{}, err
	}
	cfg.Password = password
	cfg.Retain = settings.MQTT.Retain
	cfg.Discovery = settings.MQTT.HomeAssistantDiscovery
	if settings.MQTT.ClientID != "" {
		cfg.ClientID = settings.MQTT.ClientID
	}
	if settings.MQTT.DiscoveryPrefix != "" {
		cfg.DiscoveryPrefix = settings.MQTT.DiscoveryPrefix
	}
	return cfg, nil
}
