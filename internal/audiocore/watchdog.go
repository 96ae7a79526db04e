package audiocore

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/tphakala/audiorouter/internal/errors"
)

const (
	defaultRetryInterval = 2 * time.Second
	defaultStaleFactor   = 20
	defaultMinStale      = 500 * time.Millisecond
)

// deviceWatch is the watchdog's private bookkeeping for one endpoint.
type deviceWatch struct {
	seen        uint64    // activity counter at lastSeen
	lastSeen    time.Time // zero until the first pass after binding
	lastAttempt time.Time
}

// Watchdog resolves devices at startup and afterwards detects lost devices
// and rebinds them. All methods must be called from a single goroutine.
type Watchdog struct {
	engine *Engine
	enum   Enumerator
	policy DeviceWaitPolicy
	clock  Clock
	logger *slog.Logger

	watch map[*DeviceEndpoint]*deviceWatch
}

// NewWatchdog creates a watchdog for every endpoint of engine.
func NewWatchdog(engine *Engine, enum Enumerator, policy DeviceWaitPolicy, opts ...Option) *Watchdog {
	o := buildOptions("watchdog", opts)
	w := &Watchdog{
		engine: engine,
		enum:   enum,
		policy: policy,
		clock:  o.clock,
		logger: o.logger,
		watch:  make(map[*DeviceEndpoint]*deviceWatch),
	}
	for _, ep := range engine.Endpoints() {
		w.watch[ep] = &deviceWatch{}
	}
	return w
}

// WaitForDevices performs startup resolution. Enumeration is attempted
// immediately and then every retry interval until all devices are bound or the
// maximum wait has elapsed, with a last attempt at the deadline. Missing
// devices are fatal unless partial operation is allowed and at least one
// device was found.
func (w *Watchdog) WaitForDevices(ctx context.Context) error {
	start := w.clock.Now()
	if w.policy.Enabled {
		for _, ep := range w.engine.Endpoints() {
			w.engine.markWaiting(ep)
		}
	}
	deadline := start.Add(w.policy.MaxWait)

	var pending []*DeviceEndpoint
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		var err error
		pending, err = w.resolve(ctx, w.clock.Now())
		if err != nil {
			return err
		}
		if len(pending) == 0 {
			w.logger.Info("all audio devices found", "waited", w.clock.Now().Sub(start))
			return nil
		}
		if !w.policy.Enabled {
			return w.fail(pending, "device wait disabled")
		}

		remaining := deadline.Sub(w.clock.Now())
		if remaining <= 0 {
			break
		}
		wait := min(w.policy.RetryInterval, remaining)
		w.logger.Info("waiting for audio devices",
			"missing", aliases(pending),
			"retry_in", wait,
			"remaining", remaining)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.clock.After(wait):
		}
	}

	if w.policy.AllowPartial && len(pending) < len(w.watch) {
		now := w.clock.Now()
		for _, ep := range pending {
			w.watch[ep].lastAttempt = now
		}
		w.logger.Warn("continuing with partial routing, missing devices are retried in the background",
			"missing", aliases(pending))
		return nil
	}
	return w.fail(pending, "device wait timed out")
}

// resolve enumerates once and binds every endpoint that is not yet bound.
// It returns the endpoints still missing. Only configuration errors are fatal.
func (w *Watchdog) resolve(ctx context.Context, now time.Time) ([]*DeviceEndpoint, error) {
	var missing []*DeviceEndpoint
	for _, ep := range w.engine.Endpoints() {
		if ep.State() != DeviceBound {
			missing = append(missing, ep)
		}
	}
	if len(missing) == 0 {
		return nil, nil
	}

	devices, err := w.enum.ListDevices(ctx)
	if err != nil {
		w.logger.Warn("device enumeration failed", "error", err)
		return missing, nil
	}

	var fatal []error
	var pending []*DeviceEndpoint
	for _, ep := range missing {
		w.watch[ep].lastAttempt = now
		info, ok := findDevice(ep.cfg, devices)
		if !ok {
			pending = append(pending, ep)
			continue
		}
		if err := w.engine.bind(ep, info); err != nil {
			if errors.Is(err, ErrConfiguration) {
				fatal = append(fatal, err)
			} else {
				w.logger.Warn("failed to bind device", "device", ep.cfg.Alias, "error", err)
			}
		}
		if ep.State() != DeviceBound {
			pending = append(pending, ep)
		}
	}
	return pending, errors.Join(fatal...)
}

func (w *Watchdog) fail(pending []*DeviceEndpoint, reason string) error {
	names := aliases(pending)
	for _, ep := range pending {
		w.engine.markFailed(ep, reason)
	}
	return errors.Newf("required audio devices not found: %s", strings.Join(names, ", ")).
		Component(componentName).
		Category(errors.CategoryDeviceResolution).
		Context("devices", names).
		Context("reason", reason).
		Context("max_wait", w.policy.MaxWait.String()).
		Build()
}

// Tick runs one detection and retry pass. It does nothing until the engine is live.
func (w *Watchdog) Tick(ctx context.Context, now time.Time) {
	if !w.engine.Live() {
		return
	}

	for _, ep := range w.engine.Endpoints() {
		dw := w.watch[ep]
		if ep.State() != DeviceBound {
			dw.lastSeen = time.Time{}
			continue
		}
		cur := ep.Activity()
		if dw.lastSeen.IsZero() || cur != dw.seen {
			dw.seen = cur
			dw.lastSeen = now
			continue
		}
		idle := now.Sub(dw.lastSeen)
		if idle <= w.staleThreshold(ep) {
			continue
		}

		lost := errors.New(ErrDeviceLoss).
			Component(componentName).
			Context("device", ep.cfg.Alias).
			Context("idle", idle.String()).
			Build()
		w.logger.Warn("no callbacks from device, marking lost", lost.LogAttrs()...)
		w.engine.markLost(ep, "no callbacks for "+idle.String())
		dw.lastSeen = time.Time{}
		dw.lastAttempt = now
	}

	w.retry(ctx, now)
}

// retry re-enumerates once if any waiting or lost device is due.
func (w *Watchdog) retry(ctx context.Context, now time.Time) {
	interval := w.policy.RetryInterval
	if interval <= 0 {
		interval = defaultRetryInterval
	}

	due := false
	for ep, dw := range w.watch {
		s := ep.State()
		if s != DeviceWaiting && s != DeviceLost {
			continue
		}
		if dw.lastAttempt.IsZero() || now.Sub(dw.lastAttempt) >= interval {
			due = true
			break
		}
	}
	if !due {
		return
	}

	devices, err := w.enum.ListDevices(ctx)
	if err != nil {
		w.logger.Warn("device enumeration failed", "error", err)
		for ep, dw := range w.watch {
			if s := ep.State(); s == DeviceWaiting || s == DeviceLost {
				dw.lastAttempt = now
			}
		}
		return
	}

	for _, ep := range w.engine.Endpoints() {
		dw := w.watch[ep]
		s := ep.State()
		if s != DeviceWaiting && s != DeviceLost {
			continue
		}
		if !dw.lastAttempt.IsZero() && now.Sub(dw.lastAttempt) < interval {
			continue
		}
		dw.lastAttempt = now

		info, ok := findDevice(ep.cfg, devices)
		if !ok {
			w.logger.Debug("device still missing", "device", ep.cfg.Alias, "state", s.String())
			continue
		}
		if err := w.engine.bind(ep, info); err != nil {
			w.logger.Warn("failed to rebind device", "device", ep.cfg.Alias, "error", err)
			continue
		}
		w.logger.Info("device reconnected", "device", ep.cfg.Alias, "system_name", info.SystemName)
	}
}

// staleThreshold is max(StaleFactor * callback period, MinStale).
func (w *Watchdog) staleThreshold(ep *DeviceEndpoint) time.Duration {
	factor := w.policy.StaleFactor
	if factor <= 0 {
		factor = defaultStaleFactor
	}
	floor := w.policy.MinStale
	if floor <= 0 {
		floor = defaultMinStale
	}

	rate := ep.Format().SampleRate
	if rate <= 0 {
		return floor
	}
	period := time.Duration(float64(ep.cfg.BufferSize) / float64(rate) * float64(time.Second))
	return max(time.Duration(factor*float64(period)), floor)
}

func aliases(eps []*DeviceEndpoint) []string {
	out := make([]string, 0, len(eps))
	for _, ep := range eps {
		out = append(out, ep.cfg.Alias)
	}
	return out
}
