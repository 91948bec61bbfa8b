// Package orchestrator runs the wake cycle of the display: ensure the
// network, fetch, render and sleep, escalating to an error screen when data
// has been unavailable for too long.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/nativenav/weather-display-system/internal/clock"
	"github.com/nativenav/weather-display-system/internal/display"
	"github.com/nativenav/weather-display-system/internal/fetch"
	"github.com/nativenav/weather-display-system/internal/health"
	"github.com/nativenav/weather-display-system/internal/network"
	"github.com/nativenav/weather-display-system/internal/power"
	"github.com/nativenav/weather-display-system/internal/region"
	"github.com/nativenav/weather-display-system/internal/station"
)

type Fetcher interface {
	Fetch(ctx context.Context, profile region.Profile, policy fetch.Policy) fetch.Result
}

type Renderer interface {
	Render(ctx context.Context, layout display.Layout) display.Outcome
	Reset()
}

type Identifier interface {
	Flash(ctx context.Context) (bool, error)
}

// Settings is the immutable part of the configuration the machine needs.
type Settings struct {
	Profile region.Profile

	UpdateInterval time.Duration
	MinSleep       time.Duration
	// FailureBackoff is the sleep after a failed cycle that has not yet
	// escalated.
	FailureBackoff time.Duration

	ConnectTimeout     time.Duration
	MaxConnectAttempts int
	FetchPolicy        fetch.Policy

	// WiFiRecoveryTimeout is how long the error screen stays up before the
	// network is tried again.
	WiFiRecoveryTimeout time.Duration

	IdentifyOnBoot bool
}

type Deps struct {
	Link      network.Link
	Fetcher   Fetcher
	Renderer  Renderer
	Health    *health.Monitor
	Suspender power.Suspender
	Identify  Identifier
	Clock     clock.Clock
}

// Machine is the single control task. Step and Run must be called from one
// goroutine; State may be read from any.
type Machine struct {
	settings Settings
	deps     Deps
	logger   *slog.Logger

	state atomic.Int32

	booted     bool
	cycleStart time.Time
	sleepFor   time.Duration
	stations   []station.Reading
	lastUpdate time.Time
	reason     string
	errorShown bool
}

func New(settings Settings, deps Deps, logger *slog.Logger) *Machine {
	m := &Machine{
		settings: settings,
		deps:     deps,
		logger:   logger.With("component", "orchestrator", "region", settings.Profile.Name),
	}
	m.state.Store(int32(Boot))
	return m
}

func (m *Machine) State() State {
	return State(m.state.Load())
}

// Run steps the machine until ctx is cancelled.
func (m *Machine) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := m.Step(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
	}
}

// Step runs the current state once and moves to the next. If data has been
// stale past the error-recovery timeout and the error screen is not up yet,
// the step only moves to ErrorDisplay.
func (m *Machine) Step(ctx context.Context) error {
	current := m.State()
	if current.escalates() && !m.errorShown && m.deps.Health.ShouldShowError(m.deps.Clock.Now()) {
		m.logger.Warn("error recovery timeout exceeded",
			"state", current.String(),
			"failing_for", m.deps.Health.FailingFor(m.deps.Clock.Now()),
		)
		m.transition(ErrorDisplay)
		return nil
	}

	var (
		next State
		err  error
	)
	switch current {
	case Boot:
		next = m.boot()
	case Identify:
		next = m.identify(ctx)
	case EnsureNetwork:
		next, err = m.ensureNetwork(ctx)
	case Fetching:
		next, err = m.fetching(ctx)
	case Rendering:
		next = m.rendering(ctx)
	case Sleeping:
		next, err = m.sleeping(ctx)
	case ErrorDisplay:
		next, err = m.errorDisplay(ctx)
	default:
		return fmt.Errorf("unknown state %d", current)
	}
	if err != nil {
		return err
	}
	m.transition(next)
	return nil
}

func (m *Machine) transition(next State) {
	prev := State(m.state.Swap(int32(next)))
	if prev != next {
		m.logger.Debug("state transition", "from", prev.String(), "to", next.String())
	}
}

// boot re-initialises everything a deep sleep would have lost.
func (m *Machine) boot() State {
	first := !m.booted
	m.booted = true

	m.deps.Renderer.Reset()
	m.cycleStart = m.deps.Clock.Now()
	m.sleepFor = 0
	m.stations = nil
	m.errorShown = false

	if first && m.settings.IdentifyOnBoot && m.deps.Identify != nil {
		return Identify
	}
	return EnsureNetwork
}

func (m *Machine) identify(ctx context.Context) State {
	if _, err := m.deps.Identify.Flash(ctx); err != nil {
		m.logger.Warn("identify failed", "error", err)
	}
	m.deps.Health.Reset(m.deps.Clock.Now())
	return EnsureNetwork
}

func (m *Machine) ensureNetwork(ctx context.Context) (State, error) {
	link := m.deps.Link
	if link.IsConnected() {
		m.deps.Health.RecordAssociation(m.deps.Clock.Now())
		return Fetching, nil
	}

	if m.deps.Health.ConnectivityLost(m.deps.Clock.Now()) {
		if r, ok := link.(network.Resetter); ok {
			m.logger.Warn("connectivity lost past recovery timeout, resetting link")
			if err := r.Reset(); err != nil {
				m.logger.Error("link reset failed", "error", err)
			}
		}
	}

	attempts := max(m.settings.MaxConnectAttempts, 1)
	for attempt := 1; attempt <= attempts; attempt++ {
		if link.Connect(ctx, m.settings.ConnectTimeout) {
			m.deps.Health.RecordAssociation(m.deps.Clock.Now())
			m.logger.Info("network associated", "attempt", attempt)
			return Fetching, nil
		}
		if err := ctx.Err(); err != nil {
			return 0, err
		}

		failures := m.deps.Health.RecordAssociationFailure(m.deps.Clock.Now())
		m.logger.Warn("network association failed",
			"attempt", attempt,
			"max_attempts", attempts,
			"consecutive_failures", failures,
			"error", network.ErrAssociation,
		)
		m.reason = "no network"
		if m.deps.Health.ShouldShowError(m.deps.Clock.Now()) {
			return ErrorDisplay, nil
		}
	}

	m.sleepFor = m.failureBackoff()
	return Sleeping, nil
}

func (m *Machine) fetching(ctx context.Context) (State, error) {
	res := m.deps.Fetcher.Fetch(ctx, m.settings.Profile, m.settings.FetchPolicy)
	now := m.deps.Clock.Now()

	if res.Usable() {
		m.deps.Health.RecordFetchSuccess(now)
		m.stations = res.Stations
		m.lastUpdate = now
		if res.Outcome == fetch.PartialFailure {
			m.logger.Info("partial fetch", "stations", len(res.Stations), "failures", res.Failures)
		}
		return Rendering, nil
	}

	if err := ctx.Err(); err != nil {
		return 0, err
	}

	failures := m.deps.Health.RecordFetchFailure(now)
	m.reason = failureReason(res)
	m.logger.Warn("fetch failed",
		"kind", res.Kind.String(),
		"attempts", res.Attempts,
		"consecutive_failures", failures,
		"error", res.Err,
	)
	if m.deps.Health.ShouldShowError(now) {
		return ErrorDisplay, nil
	}
	m.sleepFor = m.failureBackoff()
	return Sleeping, nil
}

func (m *Machine) rendering(ctx context.Context) State {
	layout := display.Compose(m.stations, m.settings.Profile, m.status())
	if out := m.deps.Renderer.Render(ctx, layout); out.Err != nil {
		m.logger.Warn("render failed, keeping previous screen", "attempts", out.Attempts, "error", out.Err)
	}
	m.errorShown = false

	elapsed := m.deps.Clock.Now().Sub(m.cycleStart)
	m.sleepFor = power.ComputeSleepDuration(elapsed, m.settings.UpdateInterval, m.settings.MinSleep)
	return Sleeping
}

func (m *Machine) sleeping(ctx context.Context) (State, error) {
	d := m.sleepFor
	if d <= 0 {
		d = power.ComputeSleepDuration(m.deps.Clock.Now().Sub(m.cycleStart), m.settings.UpdateInterval, m.settings.MinSleep)
	}
	m.logger.Debug("sleeping", "duration", d)

	if err := m.deps.Suspender.Suspend(ctx, d); err != nil {
		return 0, fmt.Errorf("suspend: %w", err)
	}
	m.sleepFor = 0

	if m.deps.Suspender.LosesState() {
		return Boot, nil
	}
	m.cycleStart = m.deps.Clock.Now()
	return EnsureNetwork, nil
}

// errorDisplay shows the error screen once per escalation, then waits out
// the Wi-Fi recovery timeout before trying the network again.
func (m *Machine) errorDisplay(ctx context.Context) (State, error) {
	if !m.errorShown {
		now := m.deps.Clock.Now()
		reason := m.reason
		if reason == "" {
			reason = "no data"
		}
		layout := display.ErrorLayout(m.settings.Profile, reason, m.deps.Health.FailingFor(now), m.status())
		if out := m.deps.Renderer.Render(ctx, layout); out.Err != nil {
			m.logger.Warn("error screen render failed", "error", out.Err)
		}
		m.errorShown = true
		m.logger.Error("showing error screen", "reason", reason)
	}

	if err := m.deps.Clock.Sleep(ctx, m.settings.WiFiRecoveryTimeout); err != nil {
		return 0, err
	}
	m.cycleStart = m.deps.Clock.Now()
	return EnsureNetwork, nil
}

// failureBackoff is the sleep after a failed cycle, never below MinSleep.
func (m *Machine) failureBackoff() time.Duration {
	return max(m.settings.MinSleep, m.settings.FailureBackoff)
}

func (m *Machine) status() display.Status {
	return display.Status{
		LastUpdate:  m.lastUpdate,
		Connected:   m.deps.Link.IsConnected(),
		HeapWarning: m.deps.Health.Snapshot().HeapWarning,
	}
}

func failureReason(res fetch.Result) string {
	switch {
	case errors.Is(res.Err, station.ErrBufferOverflow):
		return "payload too large"
	case errors.Is(res.Err, fetch.ErrFetchTimeout):
		return "backend timeout"
	case errors.Is(res.Err, fetch.ErrHTTPStatus):
		return "backend error"
	case errors.Is(res.Err, fetch.ErrCircuitOpen):
		return "backend unreachable"
	case res.Kind == fetch.KindParse:
		return "bad data"
	default:
		return "network error"
	}
}
