package console

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/audiorouter/internal/buildinfo"
	"github.com/tphakala/audiorouter/internal/conf"
	"github.com/tphakala/audiorouter/internal/errors"
)

func TestCommandNameAndAlias(t *testing.T) {
	t.Parallel()

	cmd := Command(nil, buildinfo.NewContext("1.0.0", ""))
	assert.Equal(t, "console", cmd.Name())
	assert.True(t, cmd.HasAlias("run"))
	assert.NotNil(t, cmd.RunE)
	assert.False(t, cmd.HasAvailableSubCommands())
}

func TestCommandStopsOnLoadError(t *testing.T) {
	t.Parallel()

	loadErr := errors.Newf("config.yaml not found").
		Category(errors.CategoryConfiguration).
		Build()
	var calls int
	load := func() (*conf.Settings, error) {
		calls++
		return nil, loadErr
	}

	cmd := Command(load, buildinfo.NewContext("1.0.0", ""))
	cmd.SetArgs([]string{})
	err := cmd.Execute()
	require.Error(t, err)
	assert.ErrorIs(t, err, loadErr)
	assert.Equal(t, 1, calls, "settings are loaded once before any audio device is opened")
}
