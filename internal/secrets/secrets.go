// Package secrets resolves credentials from environment references or
// mounted secret files so they can stay out of config.yaml.
package secrets

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/tphakala/audiorouter/internal/errors"
)

// secret files hold a token or password, never more
const maxSecretFileSize = 64 * 1024

// ExpandString expands ${VAR} and ${VAR:-default} references. A reference
// without a default to an unset or empty variable is an error.
func ExpandString(s string) (string, error) {
	if s == "" {
		return "", nil
	}

	var missing []string
	expanded := os.Expand(s, func(key string) string {
		name, fallback, hasFallback := strings.Cut(key, ":-")
		if value := os.Getenv(name); value != "" {
			return value
		}
		if hasFallback {
			return fallback
		}
		missing = append(missing, name)
		return ""
	})

	if len(missing) > 0 {
		return "", errors.Newf("missing required environment variable(s): %s", strings.Join(missing, ", ")).
			Component("secrets").
			Category(errors.CategoryConfiguration).
			Build()
	}
	return expanded, nil
}

// ReadFile reads a secret file with trailing newlines trimmed. Files readable
// by group or others are accepted with a warning.
func ReadFile(path string, logger *slog.Logger) (string, error) {
	if path == "" {
		return "", secretFileError(errors.NewStd("secret file path is empty"), path)
	}
	clean := filepath.Clean(path)

	info, err := os.Stat(clean)
	if err != nil {
		return "", secretFileError(err, clean)
	}
	if !info.Mode().IsRegular() {
		return "", secretFileError(errors.NewStd("not a regular file"), clean)
	}
	if info.Size() > maxSecretFileSize {
		return "", secretFileError(errors.NewStd("secret file too large"), clean)
	}
	if perm := info.Mode().Perm(); perm&0o077 != 0 && logger != nil {
		logger.Warn("secret file is readable by group or others",
			"path", clean,
			"perm", perm.String())
	}

	data, err := os.ReadFile(clean)
	if err != nil {
		return "", secretFileError(err, clean)
	}
	secret := strings.TrimRight(string(data), "\r\n")
	if secret == "" {
		return "", secretFileError(errors.NewStd("secret file is empty"), clean)
	}
	return secret, nil
}

// Resolve prefers filePath when set and otherwise expands value.
func Resolve(filePath, value string, logger *slog.Logger) (string, error) {
	if filePath != "" {
		return ReadFile(filePath, logger)
	}
	return ExpandString(value)
}

func secretFileError(err error, path string) error {
	return errors.New(err).
		Component("secrets").
		Category(errors.CategoryConfiguration).
		Context("path", path).
		Build()
}
