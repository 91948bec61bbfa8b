package httpapi

import (
	"net/http"
	"time"

	"github.com/nativenav/weather-display-system/internal/clock"
	"github.com/nativenav/weather-display-system/internal/health"
	"github.com/nativenav/weather-display-system/internal/orchestrator"
)

type HealthSource interface {
	Snapshot() health.DeviceHealth
	ShouldShowError(now time.Time) bool
}

type StateSource interface {
	State() orchestrator.State
}

// Identity is the static part of the status document.
type Identity struct {
	DeviceID string `json:"device_id"`
	BootID   string `json:"boot_id"`
	Firmware string `json:"firmware"`
	Region   string `json:"region"`
}

type statusResponse struct {
	Identity
	State  string              `json:"state"`
	Health health.DeviceHealth `json:"health"`
	Uptime string              `json:"uptime"`
}

type statusHandler struct {
	identity Identity
	health   HealthSource
	machine  StateSource
	clock    clock.Clock
	started  time.Time
}

func NewMux(identity Identity, hs HealthSource, ss StateSource, clk clock.Clock) *http.ServeMux {
	h := &statusHandler{
		identity: identity,
		health:   hs,
		machine:  ss,
		clock:    clk,
		started:  clk.Now(),
	}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", h.handleHealthz)
	mux.HandleFunc("GET /status", h.handleStatus)
	return mux
}

// handleHealthz answers 503 while the device would be showing the error
// screen.
func (h *statusHandler) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if h.health.ShouldShowError(h.clock.Now()) {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "degraded",
			"state":  h.machine.State().String(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"state":  h.machine.State().String(),
	})
}

func (h *statusHandler) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, statusResponse{
		Identity: h.identity,
		State:    h.machine.State().String(),
		Health:   h.health.Snapshot(),
		Uptime:   h.clock.Now().Sub(h.started).Round(time.Second).String(),
	})
}
