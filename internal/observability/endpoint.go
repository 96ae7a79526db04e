package observability

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/tphakala/audiorouter/internal/audiocore"
	"github.com/tphakala/audiorouter/internal/logging"
	metricspkg "github.com/tphakala/audiorouter/internal/observability/metrics"
)

// StatusProvider is the read side of the engine used by /healthz.
type StatusProvider interface {
	Live() bool
	Snapshot() []audiocore.RouteStatus
	DeviceSnapshot() []audiocore.DeviceStatus
}

// Health status values.
const (
	HealthOK       = "ok"
	HealthDegraded = "degraded"
	HealthDown     = "down"
)

// HealthReport is the /healthz response body.
type HealthReport struct {
	Status  string                   `json:"status"`
	Live    bool                     `json:"live"`
	Routes  []audiocore.RouteStatus  `json:"routes"`
	Devices []audiocore.DeviceStatus `json:"devices"`
}

// Endpoint serves /metrics and /healthz.
type Endpoint struct {
	listenAddress string
	metrics       *Metrics
	status        StatusProvider
	logger        *slog.Logger
	ready         chan net.Addr
}

// NewEndpoint creates a telemetry endpoint. status may be nil until the
// engine exists, in which case /healthz reports down.
func NewEndpoint(listen string, metrics *Metrics, status StatusProvider, logger *slog.Logger) *Endpoint {
	if logger == nil {
		logger = logging.ForService("telemetry")
	}
	return &Endpoint{
		listenAddress: listen,
		metrics:       metrics,
		status:        status,
		logger:        logger,
		ready:         make(chan net.Addr, 1),
	}
}

// Handler returns the endpoint's routes.
func (e *Endpoint) Handler() http.Handler {
	mux := http.NewServeMux()
	if e.metrics != nil {
		e.metrics.RegisterHandlers(mux)
	}
	mux.HandleFunc("/healthz", e.healthHandler)
	return mux
}

// Ready delivers the bound listen address once Run is serving.
func (e *Endpoint) Ready() <-chan net.Addr {
	return e.ready
}

// Run serves until ctx is cancelled and then shuts the server down.
func (e *Endpoint) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", e.listenAddress)
	if err != nil {
		return err
	}

	server := &http.Server{
		Handler:           e.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Serve(ln)
	}()
	e.logger.Info("telemetry endpoint started", "address", ln.Addr().String())
	e.ready <- ln.Addr()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), metricspkg.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		e.logger.Error("telemetry server shutdown error", "error", err)
		return err
	}
	<-errCh
	e.logger.Info("telemetry endpoint stopped")
	return nil
}

func (e *Endpoint) healthHandler(w http.ResponseWriter, _ *http.Request) {
	report := Health(e.status)

	code := http.StatusOK
	if report.Status == HealthDown {
		code = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(report); err != nil {
		e.logger.Debug("failed to write health report", "error", err)
	}
}

// Health builds a report: ok when every route is active, degraded when the
// engine runs with some routes inactive, down when it is not running.
func Health(status StatusProvider) HealthReport {
	if status == nil {
		return HealthReport{Status: HealthDown}
	}

	report := HealthReport{
		Live:    status.Live(),
		Routes:  status.Snapshot(),
		Devices: status.DeviceSnapshot(),
	}
	switch {
	case !report.Live:
		report.Status = HealthDown
	default:
		report.Status = HealthOK
		for _, r := range report.Routes {
			if r.State != audiocore.RouteActive {
				report.Status = HealthDegraded
				break
			}
		}
	}
	return report
}
