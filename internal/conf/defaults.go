// conf/defaults.go default values for settings
package conf

import "github.com/spf13/viper"

// Per-device values used when a device entry omits them.
const (
	DefaultBufferSize    = 512
	DefaultPrimaryBuffer = 16384
	DefaultGain          = 1.0
)

// Sets default values for the configuration.
func setDefaultConfig(v *viper.Viper) {
	v.SetDefault("audio.prefill_samples", 0)
	v.SetDefault("audio.keep_alive_sleep_ms", 100)
	v.SetDefault("audio.stereo_to_mono_mix_ratio", 0.5)
	v.SetDefault("audio.audio_sample_min", -1.0)
	v.SetDefault("audio.audio_sample_max", 1.0)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.file", "logs.txt")
	v.SetDefault("logging.max_size", 10)
	v.SetDefault("logging.max_backups", 3)
	v.SetDefault("logging.max_age", 28)
	v.SetDefault("logging.console", true)

	v.SetDefault("device_wait.enabled", true)
	v.SetDefault("device_wait.max_wait_time", 30)
	v.SetDefault("device_wait.retry_interval", 2)
	v.SetDefault("device_wait.allow_partial", false)
	v.SetDefault("device_wait.stale_factor", 20.0)
	v.SetDefault("device_wait.min_stale_ms", 500)

	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.listen", "127.0.0.1:9464")

	v.SetDefault("mqtt.enabled", false)
	v.SetDefault("mqtt.broker", "tcp://localhost:1883")
	v.SetDefault("mqtt.topic", "audiorouter")
	v.SetDefault("mqtt.client_id", "audiorouter")
	v.SetDefault("mqtt.username", "")
	v.SetDefault("mqtt.password", "")
	v.SetDefault("mqtt.password_file", "")
	v.SetDefault("mqtt.retain", true)
	v.SetDefault("mqtt.homeassistant_discovery", false)
	v.SetDefault("mqtt.discovery_prefix", "homeassistant")
}

// applyDeviceDefaults fills zero-valued per-device fields.
func applyDeviceDefaults(s *Settings) {
	for alias, d := range s.Devices {
		if d.BufferSize == 0 {
			d.BufferSize = DefaultBufferSize
		}
		if d.PrimaryBuffer == 0 {
			d.PrimaryBuffer = DefaultPrimaryBuffer
		}
		if d.Gain == 0 {
			d.Gain = DefaultGain
		}
		s.Devices[alias] = d
	}
}
