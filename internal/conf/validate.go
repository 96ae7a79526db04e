// conf/validate.go

package conf

import (
	"fmt"
	"net"
	"net/url"
	"slices"
	"strings"

	"github.com/tphakala/audiorouter/internal/audiocore"
	"github.com/tphakala/audiorouter/internal/logging"
	"github.com/tphakala/audiorouter/internal/privacy"
)

// ValidationError represents a collection of validation errors
type ValidationError struct {
	Errors []string
}

// Error returns a string representation of the validation errors
func (ve ValidationError) Error() string {
	return fmt.Sprintf("Validation errors: %v", ve.Errors)
}

// ValidateSettings validates the entire Settings struct and reports every
// problem at once.
func ValidateSettings(settings *Settings) error {
	ve := ValidationError{}

	ve.Errors = append(ve.Errors, validateDevices(settings.Devices)...)
	ve.Errors = append(ve.Errors, validateRouting(settings.Routing, settings.Devices)...)

	if err := validateAudioSettings(&settings.Audio); err != nil {
		ve.Errors = append(ve.Errors, err.Error())
	}
	if err := validateDeviceWaitSettings(&settings.DeviceWait); err != nil {
		ve.Errors = append(ve.Errors, err.Error())
	}
	if _, err := logging.ParseLevel(settings.Logging.Level); err != nil {
		ve.Errors = append(ve.Errors, err.Error())
	}
	if err := validateTelemetrySettings(&settings.Telemetry); err != nil {
		ve.Errors = append(ve.Errors, err.Error())
	}
	if err := validateMQTTSettings(&settings.MQTT); err != nil {
		ve.Errors = append(ve.Errors, err.Error())
	}

	if len(ve.Errors) > 0 {
		return ve
	}
	return nil
}

func validateDevices(devices map[string]DeviceSettings) []string {
	if len(devices) == 0 {
		return []string{"at least one device must be configured"}
	}

	var problems []string
	for _, alias := range sortedKeys(devices) {
		d := devices[alias]
		if strings.TrimSpace(d.Name) == "" {
			problems = append(problems, fmt.Sprintf("device %s: name must not be empty", alias))
		}
		if _, err := audiocore.ParseKind(d.Type); err != nil {
			problems = append(problems, fmt.Sprintf("device %s: %v", alias, err))
		}
		if d.BufferSize <= 0 {
			problems = append(problems, fmt.Sprintf("device %s: buffer_size must be positive", alias))
		}
		if d.PrimaryBuffer <= 0 {
			problems = append(problems, fmt.Sprintf("device %s: primary_buffer must be positive", alias))
		}
		if d.Gain <= 0 {
			problems = append(problems, fmt.Sprintf("device %s: gain must be positive", alias))
		}
	}
	return problems
}

func validateRouting(routes map[string]RouteSettings, devices map[string]DeviceSettings) []string {
	if len(routes) == 0 {
		return []string{"at least one route must be configured"}
	}

	var problems []string
	for _, alias := range sortedKeys(routes) {
		r := routes[alias]
		for _, end := range []struct{ field, alias, want string }{
			{"from", r.From, "input"},
			{"to", r.To, "output"},
		} {
			d, ok := devices[strings.ToLower(end.alias)]
			switch {
			case end.alias == "":
				problems = append(problems, fmt.Sprintf("route %s: %s must not be empty", alias, end.field))
			case !ok:
				problems = append(problems, fmt.Sprintf("route %s: unknown device %q", alias, end.alias))
			case !strings.EqualFold(d.Type, end.want):
				problems = append(problems, fmt.Sprintf("route %s: %s device %q must be an %s device", alias, end.field, end.alias, end.want))
			}
		}
	}
	return problems
}

func validateAudioSettings(settings *AudioSettings) error {
	switch {
	case settings.PrefillSamples < 0:
		return fmt.Errorf("audio.prefill_samples must not be negative")
	case settings.KeepAliveSleepMs <= 0:
		return fmt.Errorf("audio.keep_alive_sleep_ms must be positive")
	case settings.StereoToMonoMixRatio < 0 || settings.StereoToMonoMixRatio > 1:
		return fmt.Errorf("audio.stereo_to_mono_mix_ratio must be between 0 and 1")
	case settings.SampleMin >= settings.SampleMax:
		return fmt.Errorf("audio.audio_sample_min must be less than audio.audio_sample_max")
	}
	return nil
}

func validateDeviceWaitSettings(settings *DeviceWaitSettings) error {
	switch {
	case settings.MaxWaitTime < 0:
		return fmt.Errorf("device_wait.max_wait_time must not be negative")
	case settings.Enabled && settings.RetryInterval <= 0:
		return fmt.Errorf("device_wait.retry_interval must be positive")
	case settings.StaleFactor <= 0:
		return fmt.Errorf("device_wait.stale_factor must be positive")
	case settings.MinStaleMs < 0:
		return fmt.Errorf("device_wait.min_stale_ms must not be negative")
	}
	return nil
}

func validateTelemetrySettings(settings *TelemetrySettings) error {
	if !settings.Enabled {
		return nil
	}
	if _, _, err := net.SplitHostPort(settings.Listen); err != nil {
		return fmt.Errorf("telemetry.listen %q is not a host:port address: %w", settings.Listen, err)
	}
	return nil
}

func validateMQTTSettings(settings *MQTTSettings) error {
	if !settings.Enabled {
		return nil
	}
	u, err := url.Parse(settings.Broker)
	if err != nil {
		return fmt.Errorf("mqtt.broker is not a valid URL: %w", privacy.WrapError(err))
	}
	if !slices.Contains([]string{"tcp", "ssl", "tls", "mqtt", "mqtts", "ws", "wss"}, u.Scheme) || u.Host == "" {
		return fmt.Errorf("mqtt.broker %q must look like tcp://host:port", privacy.RedactURL(settings.Broker))
	}
	if strings.TrimSpace(settings.Topic) == "" {
		return fmt.Errorf("mqtt.topic must not be empty")
	}
	return nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
