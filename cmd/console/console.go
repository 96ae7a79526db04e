package console

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tphakala/audiorouter/internal/audiocore/malgo"
	"github.com/tphakala/audiorouter/internal/buildinfo"
	"github.com/tphakala/audiorouter/internal/conf"
	"github.com/tphakala/audiorouter/internal/logging"
	"github.com/tphakala/audiorouter/internal/router"
)

// Command creates the foreground mode command.
func Command(load func() (*conf.Settings, error), info buildinfo.BuildInfo) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "console",
		Aliases: []string{"run"},
		Short:   "Run the audio router in the foreground",
		Long:    "Resolve the configured devices and route audio until interrupted with Ctrl+C.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return Run(cmd.Context(), load, info)
		},
	}

	return cmd
}

// Run loads the settings and routes audio until SIGINT or SIGTERM.
func Run(ctx context.Context, load func() (*conf.Settings, error), info buildinfo.BuildInfo) error {
	settings, err := load()
	if err != nil {
		return err
	}
	logger := logging.ForService("console")

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	backend, err := malgo.New(nil)
	if err != nil {
		return err
	}
	defer func() {
		if err := backend.Close(); err != nil {
			logger.Warn("failed to release audio context", "error", err)
		}
	}()

	logger.Info("starting audio router", "version", info.GetVersion(), "config", settings.ConfigFile())
	settings.Watch(logger)

	return router.Run(ctx, settings, router.Options{
		Backend: backend,
		Version: info.GetVersion(),
		OnReady: func() {
			logger.Info("audio routing active, press Ctrl+C to stop")
		},
		Logger: logging.ForService("router"),
	})
}
