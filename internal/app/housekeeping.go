package app

import (
	"log/slog"
	"time"

	"github.com/go-co-op/gocron"

	"github.com/nativenav/weather-display-system/internal/health"
	"github.com/nativenav/weather-display-system/internal/mqtt"
	"github.com/nativenav/weather-display-system/internal/orchestrator"
)

type heartbeatPublisher interface {
	IsConnected() bool
	PublishHeartbeat(mqtt.Heartbeat) error
}

type stateReader interface {
	State() orchestrator.State
}

// housekeeping runs the out-of-band periodic jobs: heap sampling and the
// telemetry heartbeat. Jobs only touch the health monitor, the machine's
// state and the MQTT client, all safe for concurrent use.
type housekeeping struct {
	scheduler *gocron.Scheduler
	monitor   *health.Monitor
	machine   stateReader
	publisher heartbeatPublisher
	template  mqtt.Heartbeat
	logger    *slog.Logger
}

type housekeepingOptions struct {
	HeapInterval      time.Duration // zero disables heap sampling
	HeartbeatInterval time.Duration
}

func newHousekeeping(monitor *health.Monitor, machine stateReader, publisher heartbeatPublisher, template mqtt.Heartbeat, logger *slog.Logger) *housekeeping {
	return &housekeeping{
		scheduler: gocron.NewScheduler(time.UTC),
		monitor:   monitor,
		machine:   machine,
		publisher: publisher,
		template:  template,
		logger:    logger.With("component", "housekeeping"),
	}
}

func (h *housekeeping) Start(opts housekeepingOptions) error {
	if opts.HeapInterval > 0 {
		if _, err := h.scheduler.Every(opts.HeapInterval).SingletonMode().Do(h.sampleHeap); err != nil {
			return err
		}
	}
	if h.publisher != nil && opts.HeartbeatInterval > 0 {
		if _, err := h.scheduler.Every(opts.HeartbeatInterval).SingletonMode().Do(h.heartbeat); err != nil {
			return err
		}
	}

	h.scheduler.StartAsync()
	return nil
}

func (h *housekeeping) Stop() {
	if h.scheduler != nil {
		h.scheduler.Stop()
	}
}

// sampleHeap feeds the monitor, which logs breaches and recoveries itself.
func (h *housekeeping) sampleHeap() {
	h.monitor.SampleHeap()
}

func (h *housekeeping) heartbeat() {
	if !h.publisher.IsConnected() {
		return
	}
	hb := h.template
	hb.State = h.machine.State().String()
	hb.Health = h.monitor.Snapshot()
	hb.Timestamp = time.Now()
	if err := h.publisher.PublishHeartbeat(hb); err != nil {
		h.logger.Warn("heartbeat failed", "error", err)
	}
}
