// config.go: settings structs for the audio router and functions to load them.
package conf

import (
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"github.com/tphakala/audiorouter/internal/errors"
)

//go:embed config.yaml
var configFiles embed.FS

// DeviceSettings describes one physical or virtual device under its alias.
type DeviceSettings struct {
	Name          string  `mapstructure:"name" yaml:"name"`                     // substring of the OS device name
	Type          string  `mapstructure:"type" yaml:"type"`                     // input or output
	BufferSize    int     `mapstructure:"buffer_size" yaml:"buffer_size"`       // callback period in frames
	PrimaryBuffer int     `mapstructure:"primary_buffer" yaml:"primary_buffer"` // ring capacity in samples
	Gain          float32 `mapstructure:"gain" yaml:"gain"`                     // linear gain applied on capture
}

// RouteSettings connects an input alias to an output alias.
type RouteSettings struct {
	From string `mapstructure:"from" yaml:"from"`
	To   string `mapstructure:"to" yaml:"to"`
}

// AudioSettings are the process-wide audio parameters.
type AudioSettings struct {
	PrefillSamples       int     `mapstructure:"prefill_samples" yaml:"prefill_samples"`
	KeepAliveSleepMs     int     `mapstructure:"keep_alive_sleep_ms" yaml:"keep_alive_sleep_ms"`
	StereoToMonoMixRatio float32 `mapstructure:"stereo_to_mono_mix_ratio" yaml:"stereo_to_mono_mix_ratio"`
	SampleMin            float32 `mapstructure:"audio_sample_min" yaml:"audio_sample_min"`
	SampleMax            float32 `mapstructure:"audio_sample_max" yaml:"audio_sample_max"`
}

// LoggingSettings control the console and rotating file log.
type LoggingSettings struct {
	Level      string `mapstructure:"level" yaml:"level"`             // trace, debug, info, warn, error or none
	File       string `mapstructure:"file" yaml:"file"`               // empty disables the file log
	MaxSize    int    `mapstructure:"max_size" yaml:"max_size"`       // megabytes before rotation
	MaxBackups int    `mapstructure:"max_backups" yaml:"max_backups"` // rotated files to keep
	MaxAge     int    `mapstructure:"max_age" yaml:"max_age"`         // days to keep rotated files
	Console    bool   `mapstructure:"console" yaml:"console"`
}

// DeviceWaitSettings control startup resolution and reconnects.
type DeviceWaitSettings struct {
	Enabled       bool    `mapstructure:"enabled" yaml:"enabled"`
	MaxWaitTime   int     `mapstructure:"max_wait_time" yaml:"max_wait_time"`   // seconds
	RetryInterval int     `mapstructure:"retry_interval" yaml:"retry_interval"` // seconds
	AllowPartial  bool    `mapstructure:"allow_partial" yaml:"allow_partial"`
	StaleFactor   float64 `mapstructure:"stale_factor" yaml:"stale_factor"`
	MinStaleMs    int     `mapstructure:"min_stale_ms" yaml:"min_stale_ms"`
}

// TelemetrySettings control the Prometheus and health endpoint.
type TelemetrySettings struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Listen  string `mapstructure:"listen" yaml:"listen"`
}

// MQTTSettings control the optional status publisher.
type MQTTSettings struct {
	Enabled  bool   `mapstructure:"enabled" yaml:"enabled"`
	Broker   string `mapstructure:"broker" yaml:"broker"`
	Topic    string `mapstructure:"topic" yaml:"topic"`
	ClientID string `mapstructure:"client_id" yaml:"client_id"`
	Username string `mapstructure:"username" yaml:"username"`
	Password string `mapstructure:"password" yaml:"password"` // literal or ${ENV} reference
	Retain   bool   `mapstructure:"retain" yaml:"retain"`

	PasswordFile string `mapstructure:"password_file" yaml:"password_file"` // takes precedence over password

	HomeAssistantDiscovery bool   `mapstructure:"homeassistant_discovery" yaml:"homeassistant_discovery"`
	DiscoveryPrefix        string `mapstructure:"discovery_prefix" yaml:"discovery_prefix"`
}

// Settings is the complete configuration file.
type Settings struct {
	Devices    map[string]DeviceSettings `mapstructure:"devices" yaml:"devices"`
	Routing    map[string]RouteSettings  `mapstructure:"routing" yaml:"routing"`
	Audio      AudioSettings             `mapstructure:"audio" yaml:"audio"`
	Logging    LoggingSettings           `mapstructure:"logging" yaml:"logging"`
	DeviceWait DeviceWaitSettings        `mapstructure:"device_wait" yaml:"device_wait"`
	Telemetry  TelemetrySettings         `mapstructure:"telemetry" yaml:"telemetry"`
	MQTT       MQTTSettings              `mapstructure:"mqtt" yaml:"mqtt"`

	v *viper.Viper
}

// ConfigFile returns the path the settings were read from.
func (s *Settings) ConfigFile() string {
	if s.v == nil {
		return ""
	}
	return s.v.ConfigFileUsed()
}

// Load reads the configuration file and environment overrides. An empty path
// searches the default config locations.
func Load(path string) (*Settings, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix("AUDIOROUTER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaultConfig(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		paths, err := GetDefaultConfigPaths()
		if err != nil {
			return nil, err
		}
		v.SetConfigName("config")
		for _, p := range paths {
			v.AddConfigPath(p)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) || os.IsNotExist(err) {
			return nil, errors.Newf("config.yaml not found, create one with 'audiorouter config init'").
				Component("conf").
				Category(errors.CategoryConfiguration).
				Context("path", path).
				Build()
		}
		return nil, errors.New(err).
			Component("conf").
			Category(errors.CategoryConfiguration).
			Context("operation", "read_config").
			Build()
	}

	settings := &Settings{v: v}
	if err := v.Unmarshal(settings); err != nil {
		return nil, errors.New(err).
			Component("conf").
			Category(errors.CategoryConfiguration).
			Context("operation", "unmarshal_config").
			Context("file", v.ConfigFileUsed()).
			Build()
	}
	applyDeviceDefaults(settings)

	if err := ValidateSettings(settings); err != nil {
		return nil, fmt.Errorf("error validating settings: %w", err)
	}
	return settings, nil
}

// Watch logs a warning whenever the loaded config file changes on disk.
// Topology changes take effect on the next start.
func (s *Settings) Watch(logger *slog.Logger) {
	if s.v == nil {
		return
	}
	s.v.OnConfigChange(func(e fsnotify.Event) {
		logger.Warn("configuration file changed, restart to apply",
			"file", e.Name,
			"op", e.Op.String())
	})
	s.v.WatchConfig()
}

// ExampleConfig returns the embedded example configuration.
func ExampleConfig() []byte {
	data, err := fs.ReadFile(configFiles, "config.yaml")
	if err != nil {
		panic(fmt.Sprintf("embedded config.yaml missing: %v", err))
	}
	return data
}

// WriteExampleConfig writes the example configuration to path unless a file
// already exists there.
func WriteExampleConfig(path string) error {
	if _, err := os.Stat(path); err == nil {
		return errors.Newf("%s already exists", path).
			Component("conf").
			Category(errors.CategoryFileIO).
			Build()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.New(err).
			Component("conf").
			Category(errors.CategoryFileIO).
			Context("operation", "create_config_dir").
			Build()
	}
	if err := os.WriteFile(path, ExampleConfig(), 0o644); err != nil {
		return errors.New(err).
			Component("conf").
			Category(errors.CategoryFileIO).
			Context("operation", "write_config").
			Build()
	}
	return nil
}
