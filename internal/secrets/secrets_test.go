package secrets

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/audiorouter/internal/errors"
)

func TestExpandString(t *testing.T) {
	t.Setenv("AR_TEST_TOKEN", "secret123")
	t.Setenv("AR_TEST_USER", "admin")

	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{"empty", "", "", false},
		{"literal", "plain-password", "plain-password", false},
		{"variable", "${AR_TEST_TOKEN}", "secret123", false},
		{"embedded", "${AR_TEST_USER}:${AR_TEST_TOKEN}", "admin:secret123", false},
		{"default unused", "${AR_TEST_TOKEN:-fallback}", "secret123", false},
		{"default used", "${AR_TEST_UNSET:-fallback}", "fallback", false},
		{"empty default", "${AR_TEST_UNSET:-}", "", false},
		{"missing", "${AR_TEST_UNSET}", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExpandString(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), "AR_TEST_UNSET")
				assert.True(t, errors.IsCategory(err, errors.CategoryConfiguration))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestReadFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "mqtt_password")
	require.NoError(t, os.WriteFile(path, []byte("hunter2\n"), 0o600))

	got, err := ReadFile(path, nil)
	require.NoError(t, err)
	assert.Equal(t, "hunter2", got)

	empty := filepath.Join(dir, "empty")
	require.NoError(t, os.WriteFile(empty, []byte("\n"), 0o600))
	_, err = ReadFile(empty, nil)
	require.Error(t, err)

	_, err = ReadFile(filepath.Join(dir, "missing"), nil)
	require.Error(t, err)

	_, err = ReadFile(dir, nil)
	require.Error(t, err, "directories are rejected")

	_, err = ReadFile("", nil)
	require.Error(t, err)
}

func TestResolvePrefersFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "secret")
	require.NoError(t, os.WriteFile(path, []byte("from-file"), 0o600))

	got, err := Resolve(path, "literal", nil)
	require.NoError(t, err)
	assert.Equal(t, "from-file", got)

	got, err = Resolve("", "literal", nil)
	require.NoError(t, err)
	assert.Equal(t, "literal", got)
}
