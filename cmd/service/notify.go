package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
)

// notifier reports lifecycle changes to systemd. Every call is a no-op when
// the process was not started with NOTIFY_SOCKET.
type notifier struct {
	logger *slog.Logger
	notify func(state string) (bool, error)
	now    func() time.Time

	// interval is WatchdogSec from the unit, zero when the watchdog is off
	interval time.Duration

	mu       sync.Mutex
	lastPing time.Time
}

func newNotifier(logger *slog.Logger) *notifier {
	n := &notifier{
		logger: logger,
		notify: func(state string) (bool, error) { return daemon.SdNotify(false, state) },
		now:    time.Now,
	}
	interval, err := daemon.SdWatchdogEnabled(false)
	if err != nil {
		logger.Warn("invalid systemd watchdog settings", "error", err)
	}
	n.interval = interval
	return n
}

func (n *notifier) send(state string) {
	sent, err := n.notify(state)
	if err != nil {
		n.logger.Warn("sd_notify failed", "state", state, "error", err)
		return
	}
	if sent {
		n.logger.Debug("sd_notify", "state", state)
	}
}

func (n *notifier) ready() {
	n.send(daemon.SdNotifyReady)
}

func (n *notifier) stopping() {
	n.send(daemon.SdNotifyStopping)
}

// tick pings the watchdog at half its interval. It runs on every keep-alive
// pass, so a stalled loop lets systemd restart the service.
func (n *notifier) tick(context.Context) {
	if n.interval <= 0 {
		return
	}
	now := n.now()

	n.mu.Lock()
	due := now.Sub(n.lastPing) >= n.interval/2
	if due {
		n.lastPing = now
	}
	n.mu.Unlock()

	if due {
		n.send(daemon.SdNotifyWatchdog)
	}
}
