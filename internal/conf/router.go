package conf

import (
	"strings"
	"time"

	"github.com/tphakala/audiorouter/internal/audiocore"
	"github.com/tphakala/audiorouter/internal/logging"
)

// RouterConfig converts the settings into the engine topology. Devices and
// routes are sorted by alias so startup logs and enumeration order are
// stable across runs.
func (s *Settings) RouterConfig() (audiocore.Config, error) {
	cfg := audiocore.Config{
		Audio: audiocore.AudioSettings{
			PrefillSamples:       s.Audio.PrefillSamples,
			KeepAlive:            time.Duration(s.Audio.KeepAliveSleepMs) * time.Millisecond,
			StereoToMonoMixRatio: s.Audio.StereoToMonoMixRatio,
			SampleMin:            s.Audio.SampleMin,
			SampleMax:            s.Audio.SampleMax,
		},
		Wait: audiocore.DeviceWaitPolicy{
			Enabled:       s.DeviceWait.Enabled,
			MaxWait:       time.Duration(s.DeviceWait.MaxWaitTime) * time.Second,
			RetryInterval: time.Duration(s.DeviceWait.RetryInterval) * time.Second,
			AllowPartial:  s.DeviceWait.AllowPartial,
			StaleFactor:   s.DeviceWait.StaleFactor,
			MinStale:      time.Duration(s.DeviceWait.MinStaleMs) * time.Millisecond,
		},
	}

	for _, alias := range sortedKeys(s.Devices) {
		d := s.Devices[alias]
		kind, err := audiocore.ParseKind(d.Type)
		if err != nil {
			return audiocore.Config{}, err
		}
		cfg.Devices = append(cfg.Devices, audiocore.DeviceConfig{
			Alias:        strings.ToLower(alias),
			MatchName:    d.Name,
			Kind:         kind,
			BufferSize:   d.BufferSize,
			RingCapacity: d.PrimaryBuffer,
			Gain:         d.Gain,
		})
	}

	for _, alias := range sortedKeys(s.Routing) {
		r := s.Routing[alias]
		cfg.Routes = append(cfg.Routes, audiocore.RouteConfig{
			Alias: strings.ToLower(alias),
			From:  strings.ToLower(r.From),
			To:    strings.ToLower(r.To),
		})
	}

	if err := cfg.Validate(); err != nil {
		return audiocore.Config{}, err
	}
	return cfg, nil
}

// LoggingConfig converts the logging section for logging.Setup. Relative log
// files are placed next to the executable.
func (s *Settings) LoggingConfig() (logging.Config, error) {
	level, err := logging.ParseLevel(s.Logging.Level)
	if err != nil {
		return logging.Config{}, err
	}
	return logging.Config{
		Level:      level,
		File:       ResolveLogPath(s.Logging.File),
		MaxSizeMB:  s.Logging.MaxSize,
		MaxBackups: s.Logging.MaxBackups,
		MaxAgeDays: s.Logging.MaxAge,
		Console:    s.Logging.Console,
	}, nil
}
