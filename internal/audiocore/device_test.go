package audiocore

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFindDevice(t *testing.T) {
	t.Parallel()

	devices := []DeviceInfo{
		{SystemName: "Speakers (Realtek High Definition Audio)", Kind: KindOutput, ID: "1"},
		{SystemName: "Microphone (USB Audio Device)", Kind: KindInput, ID: "2"},
		{SystemName: "Lautsprecher Straße", Kind: KindOutput, ID: "3"},
	}

	tests := []struct {
		name   string
		cfg    DeviceConfig
		wantID string
		found  bool
	}{
		{"substring", DeviceConfig{MatchName: "USB Audio", Kind: KindInput}, "2", true},
		{"letter case ignored", DeviceConfig{MatchName: "speakers (REALTEK", Kind: KindOutput}, "1", true},
		{"unicode case folding", DeviceConfig{MatchName: "STRASSE", Kind: KindOutput}, "3", true},
		{"kind must match", DeviceConfig{MatchName: "USB Audio", Kind: KindOutput}, "", false},
		{"first match wins", DeviceConfig{MatchName: "", Kind: KindOutput}, "1", true},
		{"no match", DeviceConfig{MatchName: "HDMI", Kind: KindOutput}, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			info, ok := findDevice(tt.cfg, devices)
			assert.Equal(t, tt.found, ok)
			assert.Equal(t, tt.wantID, info.ID)
		})
	}
}
