package httpapi

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nativenav/weather-display-system/internal/clock"
	"github.com/nativenav/weather-display-system/internal/health"
	"github.com/nativenav/weather-display-system/internal/orchestrator"
)

type fixedHeap uint64

func (h fixedHeap) HeapFree() uint64 { return uint64(h) }

type fixedState orchestrator.State

func (s fixedState) State() orchestrator.State { return orchestrator.State(s) }

var boot = time.Date(2025, 1, 1, 6, 0, 0, 0, time.UTC)

func newTestServer(t *testing.T, clk *clock.Fake, state orchestrator.State) *httptest.Server {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	monitor := health.NewMonitor(health.Thresholds{
		HeapWarning:          50000,
		ErrorRecoveryTimeout: 5 * time.Minute,
		WiFiRecoveryTimeout:  time.Minute,
	}, fixedHeap(120000), boot, logger)
	monitor.SampleHeap()

	mux := NewMux(Identity{DeviceID: "disp-1", BootID: "b-1", Firmware: "1.0.0", Region: "chamonix"}, monitor, fixedState(state), clk)
	srv := httptest.NewServer(requestLogger(mux, logger))
	t.Cleanup(srv.Close)
	return srv
}

func TestHealthz(t *testing.T) {
	tests := []struct {
		name       string
		elapsed    time.Duration
		wantCode   int
		wantStatus string
	}{
		{"fresh data", time.Minute, http.StatusOK, "ok"},
		{"stale past recovery timeout", 6 * time.Minute, http.StatusServiceUnavailable, "degraded"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clk := clock.NewFake(boot)
			srv := newTestServer(t, clk, orchestrator.Sleeping)
			clk.Advance(tt.elapsed)

			resp, err := http.Get(srv.URL + "/healthz")
			require.NoError(t, err)
			defer resp.Body.Close()

			if resp.StatusCode != tt.wantCode {
				t.Errorf("status code = %d; want %d", resp.StatusCode, tt.wantCode)
			}
			var body map[string]string
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
			if body["status"] != tt.wantStatus {
				t.Errorf("status = %q; want %q", body["status"], tt.wantStatus)
			}
			if body["state"] != "sleeping" {
				t.Errorf("state = %q; want sleeping", body["state"])
			}
		})
	}
}

func TestStatus(t *testing.T) {
	clk := clock.NewFake(boot)
	srv := newTestServer(t, clk, orchestrator.Fetching)
	clk.Advance(90 * time.Second)

	resp, err := http.Get(srv.URL + "/status")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "application/json; charset=utf-8", resp.Header.Get("Content-Type"))

	var got statusResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	require.Equal(t, "disp-1", got.DeviceID)
	require.Equal(t, "chamonix", got.Region)
	require.Equal(t, "fetching", got.State)
	require.Equal(t, uint64(120000), got.Health.HeapFree)
	require.False(t, got.Health.HeapWarning)
	require.True(t, got.Health.FirstFailure.IsZero())
	require.Equal(t, "1m30s", got.Uptime)
}

func TestStatus_RejectsOtherMethods(t *testing.T) {
	srv := newTestServer(t, clock.NewFake(boot), orchestrator.Boot)

	resp, err := http.Post(srv.URL+"/status", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("status code = %d; want %d", resp.StatusCode, http.StatusMethodNotAllowed)
	}
}
