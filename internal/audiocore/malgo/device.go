package malgo

import (
	"encoding/hex"
	"runtime"
	"strings"
	"unsafe"

	"github.com/gen2brain/malgo"

	"github.com/tphakala/audiorouter/internal/audiocore"
	"github.com/tphakala/audiorouter/internal/errors"
)

// getBackendForPlatform returns the appropriate malgo backend for the current platform
func getBackendForPlatform() (malgo.Backend, error) {
	switch runtime.GOOS {
	case "linux":
		return malgo.BackendAlsa, nil
	case "windows":
		return malgo.BackendWasapi, nil
	case "darwin":
		return malgo.BackendCoreaudio, nil
	default:
		return malgo.BackendNull, errors.New(nil).
			Component("audiocore").
			Category(errors.CategoryAudio).
			Context("error", "unsupported operating system").
			Context("os", runtime.GOOS).
			Build()
	}
}

// keepDevice filters out the null sink miniaudio reports on some platforms.
func keepDevice(name string) bool {
	return name != "" && !strings.Contains(name, "Discard all samples")
}

// convertInfos maps enumerated malgo devices to router device infos.
func convertInfos(infos []malgo.DeviceInfo, kind audiocore.Kind) []audiocore.DeviceInfo {
	out := make([]audiocore.DeviceInfo, 0, len(infos))
	for i := range infos {
		name := infos[i].Name()
		if !keepDevice(name) {
			continue
		}

		id, err := hexToASCII(infos[i].ID.String())
		if err != nil {
			id = infos[i].ID.String()
		}

		out = append(out, audiocore.DeviceInfo{
			SystemName: name,
			Kind:       kind,
			ID:         id,
			Handle:     infos[i],
		})
	}
	return out
}

// hexToASCII converts a hexadecimal string to an ASCII string
func hexToASCII(hexStr string) (string, error) {
	bytes, err := hex.DecodeString(hexStr)
	if err != nil {
		return "", err
	}
	return strings.TrimRight(string(bytes), "\x00"), nil
}

// samplesFromBytes reinterprets an f32 device buffer without copying.
func samplesFromBytes(b []byte) []float32 {
	if len(b) < 4 {
		return nil
	}
	return unsafe.Slice((*float32)(unsafe.Pointer(&b[0])), len(b)/4)
}
