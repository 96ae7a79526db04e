// conf/utils.go
package conf

import (
	"os"
	"path/filepath"
	"runtime"

	"github.com/tphakala/audiorouter/internal/errors"
)

const appDirName = "audiorouter"

// GetDefaultConfigPaths returns the directories searched for config.yaml,
// starting with the directory of the executable.
func GetDefaultConfigPaths() ([]string, error) {
	exeDir, err := ExecutableDir()
	if err != nil {
		return nil, err
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, errors.New(err).
			Component("conf").
			Category(errors.CategorySystem).
			Context("operation", "get-home-directory").
			Build()
	}

	switch runtime.GOOS {
	case "windows":
		return []string{
			exeDir,
			filepath.Join(homeDir, "AppData", "Roaming", appDirName),
		}, nil
	default:
		return []string{
			exeDir,
			filepath.Join(homeDir, ".config", appDirName),
			filepath.Join("/etc", appDirName),
		}, nil
	}
}

// ExecutableDir returns the directory containing the running binary.
func ExecutableDir() (string, error) {
	exePath, err := os.Executable()
	if err != nil {
		return "", errors.New(err).
			Component("conf").
			Category(errors.CategorySystem).
			Context("operation", "get-executable-path").
			Build()
	}
	return filepath.Dir(exePath), nil
}

// ResolveLogPath places a relative log file next to the executable.
func ResolveLogPath(file string) string {
	if file == "" || filepath.IsAbs(file) {
		return file
	}
	dir, err := ExecutableDir()
	if err != nil {
		return file
	}
	return filepath.Join(dir, file)
}
