package service

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

// Command creates the background service command and its unit file helpers.
func Command(load func() (*conf.Settings, error), info buildinfo.BuildInfo) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "service",
		Short: "Run the audio router as a systemd service",
		Long: "Run the audio router under a service manager. Readiness, shutdown and " +
			"watchdog keep-alives are reported through sd_notify when NOTIFY_SOCKET is set.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), load, info)
		},
	}

	cmd.AddCommand(installCommand(), uninstallCommand())

	return cmd
}

func run(ctx context.Context, load func() (*conf.Settings, error), info buildinfo.BuildInfo) error {
	settings, err := load()
	if err != nil {
		return err
	}
	logger := logging.ForService("service")

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

	n := newNotifier(logger)
	logger.Info("starting audio router service",
		"version", info.GetVersion(),
		"config", settings.ConfigFile(),
		"watchdog", n.interval)
	settings.Watch(logger)

	return router.Run(ctx, settings, router.Options{
		Backend:    backend,
		Version:    info.GetVersion(),
		OnReady:    n.ready,
		OnStopping: n.stopping,
		OnTick:     n.tick,
		Logger:     logging.ForService("router"),
	})
}
