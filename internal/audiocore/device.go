package audiocore

import (
	"fmt"
	"strings"

	"golang.org/x/text/cases"
)

// Kind is the direction of an audio device.
type Kind int

const (
	KindInput Kind = iota + 1
	KindOutput
)

// ParseKind accepts "input" or "output" in any letter case.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "input":
		return KindInput, nil
	case "output":
		return KindOutput, nil
	default:
		return 0, fmt.Errorf("invalid device type %q, expected input or output", s)
	}
}

func (k Kind) String() string {
	switch k {
	case KindInput:
		return "input"
	case KindOutput:
		return "output"
	default:
		return "unknown"
	}
}

// DeviceConfig is one configured device. Alias is its identity.
type DeviceConfig struct {
	Alias        string
	MatchName    string  // case-insensitive substring of the OS device name
	Kind         Kind
	BufferSize   int     // callback period in frames
	RingCapacity int     // per-route ring size in samples
	Gain         float32 // applied on capture
}

// matches reports whether an enumerated device satisfies this configuration.
func (d DeviceConfig) matches(info DeviceInfo) bool {
	fold := cases.Fold()
	return info.Kind == d.Kind &&
		strings.Contains(fold.String(info.SystemName), fold.String(d.MatchName))
}

// findDevice returns the first enumerated device that matches cfg.
func findDevice(cfg DeviceConfig, devices []DeviceInfo) (DeviceInfo, bool) {
	for _, info := range devices {
		if cfg.matches(info) {
			return info, true
		}
	}
	return DeviceInfo{}, false
}

// DeviceState is the watchdog state of one device endpoint.
type DeviceState int32

const (
	DeviceUnresolved DeviceState = iota
	DeviceWaiting
	DeviceBound
	DeviceLost
	DeviceRebinding
	DeviceFailed
)

func (s DeviceState) String() string {
	switch s {
	case DeviceUnresolved:
		return "Unresolved"
	case DeviceWaiting:
		return "Waiting"
	case DeviceBound:
		return "Bound"
	case DeviceLost:
		return "Lost"
	case DeviceRebinding:
		return "Rebinding"
	case DeviceFailed:
		return "Failed"
	default:
		return fmt.Sprintf("DeviceState(%d)", int32(s))
	}
}
