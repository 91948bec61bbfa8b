// Package health tracks heap headroom and the time since the last successful
// fetch and network association, and decides when the device escalates.
package health

import (
	"log/slog"
	"sync"
	"time"
)

type Thresholds struct {
	HeapWarning          uint64
	ErrorRecoveryTimeout time.Duration
	WiFiRecoveryTimeout  time.Duration
}

// DeviceHealth is a snapshot of the monitor's state.
type DeviceHealth struct {
	HeapFree            uint64    `json:"heap_free"`
	HeapWarning         bool      `json:"heap_warning"`
	LastSuccess         time.Time `json:"last_success"`
	LastAssociation     time.Time `json:"last_association"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
	// FirstFailure is when the current failure streak started; zero while
	// there is none.
	FirstFailure time.Time `json:"first_failure,omitzero"`
}

type EventKind string

const (
	LowHeapWarning EventKind = "low_heap_warning"
	HeapRecovered  EventKind = "heap_recovered"
)

// Event is an advisory signal; none of them are fatal.
type Event struct {
	Kind     EventKind
	HeapFree uint64
}

// Monitor is safe for concurrent use: the wake cycle records outcomes while
// housekeeping samples the heap.
type Monitor struct {
	mu         sync.Mutex
	thresholds Thresholds
	heap       HeapSampler
	logger     *slog.Logger
	state      DeviceHealth
}

// NewMonitor starts both recovery clocks at boot so a device that never
// succeeds still escalates.
func NewMonitor(th Thresholds, heap HeapSampler, boot time.Time, logger *slog.Logger) *Monitor {
	return &Monitor{
		thresholds: th,
		heap:       heap,
		logger:     logger.With("component", "health"),
		state: DeviceHealth{
			LastSuccess:     boot,
			LastAssociation: boot,
		},
	}
}

// SampleHeap reads heap headroom. A LowHeapWarning is returned once per
// breach; sampling again while still below threshold returns nothing until
// headroom recovers.
func (m *Monitor) SampleHeap() (Event, bool) {
	free := m.heap.HeapFree()

	m.mu.Lock()
	defer m.mu.Unlock()

	m.state.HeapFree = free
	below := free < m.thresholds.HeapWarning
	switch {
	case below && !m.state.HeapWarning:
		m.state.HeapWarning = true
		m.logger.Warn("low heap", "heap_free", free, "threshold", m.thresholds.HeapWarning)
		return Event{Kind: LowHeapWarning, HeapFree: free}, true
	case !below && m.state.HeapWarning:
		m.state.HeapWarning = false
		m.logger.Info("heap recovered", "heap_free", free)
		return Event{Kind: HeapRecovered, HeapFree: free}, true
	}
	return Event{}, false
}

func (m *Monitor) RecordFetchSuccess(now time.Time) {
	m.mu.Lock()
	m.state.LastSuccess = now
	m.state.ConsecutiveFailures = 0
	m.state.FirstFailure = time.Time{}
	m.mu.Unlock()
}

// RecordFetchFailure extends the failure streak and returns its length.
func (m *Monitor) RecordFetchFailure(now time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state.ConsecutiveFailures == 0 {
		m.state.FirstFailure = now
	}
	m.state.ConsecutiveFailures++
	return m.state.ConsecutiveFailures
}

func (m *Monitor) RecordAssociation(now time.Time) {
	m.mu.Lock()
	m.state.LastAssociation = now
	m.mu.Unlock()
}

// RecordAssociationFailure counts a failed association towards the same
// failure streak as fetch failures.
func (m *Monitor) RecordAssociationFailure(now time.Time) int {
	return m.RecordFetchFailure(now)
}

// FailingFor is the time since the last successful fetch.
func (m *Monitor) FailingFor(now time.Time) time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return now.Sub(m.state.LastSuccess)
}

// ShouldShowError reports whether data has been stale longer than the
// error-recovery timeout.
func (m *Monitor) ShouldShowError(now time.Time) bool {
	return m.FailingFor(now) > m.thresholds.ErrorRecoveryTimeout
}

// ConnectivityLost reports whether the link has been down longer than the
// Wi-Fi recovery timeout.
func (m *Monitor) ConnectivityLost(now time.Time) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return now.Sub(m.state.LastAssociation) > m.thresholds.WiFiRecoveryTimeout
}

func (m *Monitor) Snapshot() DeviceHealth {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Reset restarts tracking as if the device had just booted. Used by the
// manual identify/reset path only.
func (m *Monitor) Reset(now time.Time) {
	m.mu.Lock()
	m.state = DeviceHealth{
		HeapFree:        m.state.HeapFree,
		HeapWarning:     m.state.HeapWarning,
		LastSuccess:     now,
		LastAssociation: now,
	}
	m.mu.Unlock()
	m.logger.Info("health reset")
}
