package audiocore

import (
	"context"
	"log/slog"
	"time"

	"github.com/tphakala/audiorouter/internal/errors"
	"github.com/tphakala/audiorouter/internal/events"
)

// TickHook runs at the end of every keep-alive iteration.
type TickHook func(ctx context.Context)

// KeepAlive periodically drives the watchdog and reports buffer counters.
// It never touches the audio callbacks.
type KeepAlive struct {
	watchdog *Watchdog
	engine   *Engine
	interval time.Duration
	clock    Clock
	sink     EventSink
	logger   *slog.Logger
	hooks    []TickHook
}

// NewKeepAlive creates the loop. A non-positive interval defaults to 100ms.
func NewKeepAlive(watchdog *Watchdog, engine *Engine, interval time.Duration, opts ...Option) *KeepAlive {
	o := buildOptions("keepalive", opts)
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}
	return &KeepAlive{
		watchdog: watchdog,
		engine:   engine,
		interval: interval,
		clock:    o.clock,
		sink:     o.sink,
		logger:   o.logger,
	}
}

// OnTick registers a hook. Hooks must be added before Run.
func (k *KeepAlive) OnTick(hook TickHook) {
	k.hooks = append(k.hooks, hook)
}

// Run loops until ctx is cancelled.
func (k *KeepAlive) Run(ctx context.Context) error {
	k.logger.Debug("keep-alive loop started", "interval", k.interval)
	defer k.logger.Debug("keep-alive loop stopped")

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-k.clock.After(k.interval):
			k.tick(ctx)
		}
	}
}

func (k *KeepAlive) tick(ctx context.Context) {
	k.watchdog.Tick(ctx, k.clock.Now())
	k.reportBuffers()
	for _, hook := range k.hooks {
		hook(ctx)
	}
}

func (k *KeepAlive) reportBuffers() {
	for _, s := range k.engine.CollectStats() {
		if !s.HasActivity() {
			continue
		}

		if s.OverflowSamples > 0 {
			err := errors.New(ErrBufferOverflow).
				Component(componentName).
				Context("route", s.Route).
				Context("dropped_samples", s.OverflowSamples).
				Context("events", s.OverflowEvents).
				Build()
			k.logger.Warn("buffer overflow, dropped newest samples", err.LogAttrs()...)
		}
		if s.UnderrunSamples > 0 {
			err := errors.New(ErrBufferUnderrun).
				Component(componentName).
				Context("route", s.Route).
				Context("silence_samples", s.UnderrunSamples).
				Context("events", s.UnderrunEvents).
				Build()
			k.logger.Warn("buffer underrun, rendered silence", err.LogAttrs()...)
		}

		k.sink.Publish(events.BufferStatsEvent{
			Route:           s.Route,
			OverflowSamples: s.OverflowSamples,
			OverflowEvents:  s.OverflowEvents,
			UnderrunSamples: s.UnderrunSamples,
			UnderrunEvents:  s.UnderrunEvents,
			BufferedSamples: s.Buffered,
			CapacitySamples: s.Capacity,
			Timestamp:       k.clock.Now(),
		})
	}
}
