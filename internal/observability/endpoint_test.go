package observability

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/tphakala/audiorouter/internal/audiocore"
	"github.com/tphakala/audiorouter/internal/events"
)

type fakeStatus struct {
	live    bool
	routes  []audiocore.RouteStatus
	devices []audiocore.DeviceStatus
}

func (f *fakeStatus) Live() bool                              { return f.live }
func (f *fakeStatus) Snapshot() []audiocore.RouteStatus        { return f.routes }
func (f *fakeStatus) DeviceSnapshot() []audiocore.DeviceStatus { return f.devices }

func route(alias string, s audiocore.RouteState) audiocore.RouteStatus {
	return audiocore.RouteStatus{Alias: alias, State: s, StateStr: s.String()}
}

func TestHealth(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		status StatusProvider
		want   string
	}{
		{"no engine", nil, HealthDown},
		{"not live", &fakeStatus{routes: []audiocore.RouteStatus{route("a", audiocore.RouteActive)}}, HealthDown},
		{"all active", &fakeStatus{live: true, routes: []audiocore.RouteStatus{
			route("a", audiocore.RouteActive),
			route("b", audiocore.RouteActive),
		}}, HealthOK},
		{"one degraded", &fakeStatus{live: true, routes: []audiocore.RouteStatus{
			route("a", audiocore.RouteActive),
			route("b", audiocore.RouteDegraded),
		}}, HealthDegraded},
		{"waiting", &fakeStatus{live: true, routes: []audiocore.RouteStatus{
			route("a", audiocore.RouteWaitingForDevice),
		}}, HealthDegraded},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, Health(tt.status).Status)
		})
	}
}

func TestHealthHandler(t *testing.T) {
	t.Parallel()

	status := &fakeStatus{
		live:    true,
		routes:  []audiocore.RouteStatus{route("mic", audiocore.RouteDegraded)},
		devices: []audiocore.DeviceStatus{{Alias: "headset", Kind: "input", State: "Lost"}},
	}
	e := NewEndpoint("127.0.0.1:0", nil, status, nil)

	rec := httptest.NewRecorder()
	e.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", http.NoBody))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, HealthDegraded, body["status"])
	routes := body["routes"].([]any)
	require.Len(t, routes, 1)
	assert.Equal(t, "Degraded", routes[0].(map[string]any)["state"])
}

func TestHealthHandlerDown(t *testing.T) {
	t.Parallel()

	e := NewEndpoint("127.0.0.1:0", nil, nil, nil)
	rec := httptest.NewRecorder()
	e.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", http.NoBody))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestMetricsHandler(t *testing.T) {
	t.Parallel()

	m, err := NewMetrics()
	require.NoError(t, err)
	m.Router.RecordBufferStats(events.BufferStatsEvent{Route: "mic", UnderrunSamples: 64, UnderrunEvents: 1})

	e := NewEndpoint("127.0.0.1:0", m, nil, nil)
	rec := httptest.NewRecorder()
	e.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", http.NoBody))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `audiorouter_underrun_samples_total{route="mic"} 64`)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestEndpointRunShutsDown(t *testing.T) {
	defer goleak.VerifyNone(t)

	m, err := NewMetrics()
	require.NoError(t, err)
	e := NewEndpoint("127.0.0.1:0", m, &fakeStatus{live: true}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- e.Run(ctx) }()

	var addr string
	select {
	case a := <-e.Ready():
		addr = a.String()
	case <-time.After(2 * time.Second):
		t.Fatal("endpoint did not start")
	}

	client := &http.Client{Transport: &http.Transport{DisableKeepAlives: true}}
	resp, err := client.Get("http://" + addr + "/healthz")
	require.NoError(t, err)
	_, _ = io.Copy(io.Discard, resp.Body)
	require.NoError(t, resp.Body.Close())
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	client.CloseIdleConnections()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("endpoint did not stop")
	}
}

func TestEndpointRunListenError(t *testing.T) {
	t.Parallel()

	e := NewEndpoint("not-an-address", nil, nil, nil)
	assert.Error(t, e.Run(context.Background()))
}
