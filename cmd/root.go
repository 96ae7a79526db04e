package cmd

import (
	"github.com/spf13/cobra"

	"github.com/tphakala/audiorouter/cmd/configcmd"
	"github.com/tphakala/audiorouter/cmd/console"
	"github.com/tphakala/audiorouter/cmd/devices"
	"github.com/tphakala/audiorouter/cmd/service"
	"github.com/tphakala/audiorouter/cmd/version"
	"github.com/tphakala/audiorouter/internal/buildinfo"
	"github.com/tphakala/audiorouter/internal/conf"
	"github.com/tphakala/audiorouter/internal/logging"
)

// RootCommand creates and returns the root command. Without a subcommand it
// runs the router in the foreground.
func RootCommand(info buildinfo.BuildInfo) *cobra.Command {
	var (
		configPath string
		logLevel   string
		closeLog   func() error
	)

	// load reads the settings and switches logging to the configured sinks.
	load := func() (*conf.Settings, error) {
		settings, err := conf.Load(configPath)
		if err != nil {
			return nil, err
		}
		if logLevel != "" {
			settings.Logging.Level = logLevel
		}
		logCfg, err := settings.LoggingConfig()
		if err != nil {
			return nil, err
		}
		closer, err := logging.Setup(logCfg)
		if err != nil {
			return nil, err
		}
		closeLog = closer
		return settings, nil
	}

	rootCmd := &cobra.Command{
		Use:           "audiorouter",
		Short:         "Low-latency audio router",
		Long:          "Route audio between capture and playback devices, surviving devices that come and go.",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return console.Run(cmd.Context(), load, info)
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if closeLog == nil {
				return nil
			}
			return closeLog()
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config.yaml (default: search next to the executable, then user and system config dirs)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Override logging.level (trace, debug, info, warn, error, none)")

	rootCmd.AddCommand(
		console.Command(load, info),
		service.Command(load, info),
		devices.Command(),
		configcmd.Command(load),
		version.Command(info),
	)

	return rootCmd
}
