package audiocore

import (
	"fmt"
	"time"
)

// AudioSettings are process-wide and read-only once the engine is built.
type AudioSettings struct {
	PrefillSamples       int
	KeepAlive            time.Duration
	StereoToMonoMixRatio float32
	SampleMin            float32
	SampleMax            float32
}

// DeviceWaitPolicy controls startup resolution and background reconnects.
type DeviceWaitPolicy struct {
	Enabled       bool
	MaxWait       time.Duration
	RetryInterval time.Duration
	AllowPartial  bool

	// A bound device is declared lost after
	// max(StaleFactor * callback period, MinStale) without callbacks.
	StaleFactor float64
	MinStale    time.Duration
}

// RouteConfig is one configured route between two device aliases.
type RouteConfig struct {
	Alias string
	From  string
	To    string
}

// Config is the validated in-memory topology handed to the engine.
type Config struct {
	Devices []DeviceConfig
	Routes  []RouteConfig
	Audio   AudioSettings
	Wait    DeviceWaitPolicy
}

// Validate checks the invariants the engine relies on and returns the first
// violation as a configuration error.
func (c *Config) Validate() error {
	if len(c.Devices) == 0 {
		return configError("no devices configured")
	}
	if len(c.Routes) == 0 {
		return configError("no routes configured")
	}

	seen := make(map[string]struct{}, len(c.Devices))
	for _, d := range c.Devices {
		if err := validateDevice(d); err != nil {
			return err
		}
		if _, dup := seen[d.Alias]; dup {
			return configError("device %q defined twice", d.Alias)
		}
		seen[d.Alias] = struct{}{}
	}

	a := c.Audio
	if a.PrefillSamples < 0 {
		return configError("prefill_samples must not be negative, got %d", a.PrefillSamples)
	}
	if a.StereoToMonoMixRatio < 0 || a.StereoToMonoMixRatio > 1 {
		return configError("stereo_to_mono_mix_ratio must be within [0, 1], got %g", a.StereoToMonoMixRatio)
	}
	if a.SampleMin >= a.SampleMax {
		return configError("audio_sample_min (%g) must be below audio_sample_max (%g)", a.SampleMin, a.SampleMax)
	}

	w := c.Wait
	if w.Enabled && w.RetryInterval <= 0 {
		return configError("device_wait.retry_interval must be positive")
	}
	if w.MaxWait < 0 {
		return configError("device_wait.max_wait_time must not be negative")
	}
	return nil
}

func validateDevice(d DeviceConfig) error {
	switch {
	case d.Alias == "":
		return configError("device with empty alias")
	case d.MatchName == "":
		return configError("device %q has an empty name", d.Alias)
	case d.Kind != KindInput && d.Kind != KindOutput:
		return configError("device %q has no valid type", d.Alias)
	case d.BufferSize <= 0:
		return configError("device %q: buffer_size must be positive, got %d", d.Alias, d.BufferSize)
	case d.RingCapacity <= 0:
		return configError("device %q: primary_buffer must be positive, got %d", d.Alias, d.RingCapacity)
	case d.Gain <= 0:
		return configError("device %q: gain must be positive, got %g", d.Alias, d.Gain)
	}
	return nil
}

// String renders a route for log lines.
func (r RouteConfig) String() string {
	return fmt.Sprintf("%s (%s -> %s)", r.Alias, r.From, r.To)
}
