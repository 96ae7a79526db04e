package configcmd

import (
	"fmt"
	"io"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/tphakala/audiorouter/internal/conf"
)

const maskedValue = "********"

// Command creates the config command group.
func Command(load func() (*conf.Settings, error)) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect or create the configuration file",
	}

	cmd.AddCommand(showCommand(load), initCommand())

	return cmd
}

func showCommand(load func() (*conf.Settings, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration after defaults and environment overrides",
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := load()
			if err != nil {
				return err
			}
			return Show(settings, cmd.OutOrStdout())
		},
	}
}

// Show writes the settings as YAML with secrets masked.
func Show(settings *conf.Settings, w io.Writer) error {
	if file := settings.ConfigFile(); file != "" {
		fmt.Fprintf(w, "# loaded from %s\n", file)
	}

	redacted := *settings
	if redacted.MQTT.Password != "" {
		redacted.MQTT.Password = maskedValue
	}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(&redacted); err != nil {
		return fmt.Errorf("error encoding settings: %w", err)
	}
	return enc.Close()
}

func initCommand() *cobra.Command {
	var path string

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write an example config.yaml",
		RunE: func(cmd *cobra.Command, args []string) error {
			if path == "" {
				dir, err := conf.ExecutableDir()
				if err != nil {
					return err
				}
				path = filepath.Join(dir, "config.yaml")
			}
			if err := conf.WriteExampleConfig(path); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote example configuration to %s\n", path)
			return nil
		},
	}

	cmd.Flags().StringVarP(&path, "output", "o", "", "Where to write the file (default: next to the executable)")

	return cmd
}
