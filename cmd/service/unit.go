package service

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/coreos/go-systemd/v22/unit"
	"github.com/spf13/cobra"

	"github.com/tphakala/audiorouter/internal/errors"
)

const (
	unitName       = "audiorouter.service"
	defaultUnitDir = "/etc/systemd/system"
)

// unitOptions describes a notify-type unit that restarts the router when it
// exits or stops pinging the watchdog.
func unitOptions(exe, configPath, user string) []*unit.UnitOption {
	execStart := exe + " service"
	if configPath != "" {
		execStart += " --config " + configPath
	}

	opts := []*unit.UnitOption{
		unit.NewUnitOption("Unit", "Description", "Audio router"),
		unit.NewUnitOption("Unit", "After", "sound.target"),
		unit.NewUnitOption("Service", "Type", "notify"),
		unit.NewUnitOption("Service", "ExecStart", execStart),
		unit.NewUnitOption("Service", "Restart", "on-failure"),
		unit.NewUnitOption("Service", "RestartSec", "5"),
		unit.NewUnitOption("Service", "WatchdogSec", "30"),
	}
	if user != "" {
		opts = append(opts, unit.NewUnitOption("Service", "User", user))
	}
	return append(opts, unit.NewUnitOption("Install", "WantedBy", "multi-user.target"))
}

func writeUnit(path string, opts []*unit.UnitOption) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.New(err).
			Component("service").
			Category(errors.CategoryFileIO).
			Context("operation", "create_unit_dir").
			Build()
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return errors.New(err).
			Component("service").
			Category(errors.CategoryFileIO).
			Context("operation", "open_unit_file").
			Context("path", path).
			Build()
	}
	if _, err := io.Copy(f, unit.Serialize(opts)); err != nil {
		_ = f.Close()
		return errors.New(err).
			Component("service").
			Category(errors.CategoryFileIO).
			Context("operation", "write_unit_file").
			Build()
	}
	return f.Close()
}

func installCommand() *cobra.Command {
	var (
		unitDir string
		user    string
	)

	cmd := &cobra.Command{
		Use:   "install",
		Short: "Write a systemd unit for the audio router",
		RunE: func(cmd *cobra.Command, args []string) error {
			exe, err := os.Executable()
			if err != nil {
				return err
			}
			configPath, _ := cmd.Flags().GetString("config")
			if configPath != "" {
				if configPath, err = filepath.Abs(configPath); err != nil {
					return err
				}
			}

			path := filepath.Join(unitDir, unitName)
			if err := writeUnit(path, unitOptions(exe, configPath, user)); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Installed %s\nEnable it with: systemctl daemon-reload && systemctl enable --now %s\n", path, unitName)
			return nil
		},
	}

	cmd.Flags().StringVar(&unitDir, "unit-dir", defaultUnitDir, "Directory for the unit file")
	cmd.Flags().StringVar(&user, "user", "", "Run the service as this user")

	return cmd
}

func uninstallCommand() *cobra.Command {
	var unitDir string

	cmd := &cobra.Command{
		Use:   "uninstall",
		Short: "Remove the audio router systemd unit",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := filepath.Join(unitDir, unitName)
			if err := os.Remove(path); err != nil {
				if os.IsNotExist(err) {
					fmt.Fprintf(cmd.OutOrStdout(), "%s is not installed\n", path)
					return nil
				}
				return errors.New(err).
					Component("service").
					Category(errors.CategoryFileIO).
					Context("operation", "remove_unit_file").
					Build()
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %s\nStop it first with: systemctl disable --now %s\n", path, unitName)
			return nil
		},
	}

	cmd.Flags().StringVar(&unitDir, "unit-dir", defaultUnitDir, "Directory for the unit file")

	return cmd
}
