package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{"info", slog.LevelInfo, false},
		{"", slog.LevelInfo, false},
		{"DEBUG", slog.LevelDebug, false},
		{"warn", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{"trace", LevelTrace, false},
		{"none", LevelNone, false},
		{"verbose", slog.LevelInfo, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSetupConsoleAndFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs.txt")

	closeFn, err := Setup(Config{Level: slog.LevelWarn, Console: true, File: path})
	require.NoError(t, err)

	assert.IsType(t, &slog.MultiHandler{}, slog.Default().Handler())
	assert.False(t, slog.Default().Handler().Enabled(context.Background(), slog.LevelInfo))

	ForService("audiocore").Info("filtered out")
	ForService("audiocore").Warn("device lost", "device", "mic")
	require.NoError(t, closeFn())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 1, bytes.Count(data, []byte("\n")))

	var rec map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(data), &rec))
	assert.Equal(t, "audiocore", rec["service"])
	assert.Equal(t, "mic", rec["device"])

	Init()
}

func TestSetupWritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "logs.txt")

	closeFn, err := Setup(Config{Level: slog.LevelInfo, File: path})
	require.NoError(t, err)

	ForService("audiocore").Info("route active", "route", "mic_to_mixer")
	ForService("audiocore").Debug("filtered out")
	require.NoError(t, closeFn())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"route":"mic_to_mixer"`)
	assert.NotContains(t, string(data), "filtered out")

	Init()
}
