package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/nativenav/weather-display-system/internal/clock"
	"github.com/nativenav/weather-display-system/internal/config"
	"github.com/nativenav/weather-display-system/internal/display"
	"github.com/nativenav/weather-display-system/internal/fetch"
	"github.com/nativenav/weather-display-system/internal/health"
	"github.com/nativenav/weather-display-system/internal/httpapi"
	"github.com/nativenav/weather-display-system/internal/identify"
	"github.com/nativenav/weather-display-system/internal/mqtt"
	"github.com/nativenav/weather-display-system/internal/network"
	"github.com/nativenav/weather-display-system/internal/orchestrator"
	"github.com/nativenav/weather-display-system/internal/power"
	"github.com/nativenav/weather-display-system/internal/region"
	"github.com/nativenav/weather-display-system/internal/units"
)

func Run(ctx context.Context, cfg config.Config) error {
	logger := slog.Default()

	profile, err := region.Lookup(cfg.Region, cfg.StationID)
	if err != nil {
		return err
	}

	logger.Info("initializing display",
		"region", profile.Name,
		"station_id", profile.DefaultStation,
		"backend_url", cfg.BackendURL,
		"panel", cfg.Panel,
		"refresh_policy", cfg.RefreshPolicy,
		"deep_sleep", cfg.DeepSleep,
	)

	clk := clock.Real{}

	link := network.NewHostLink(network.HostLinkOptions{
		Interface:    cfg.WiFiInterface,
		UserAgent:    cfg.UserAgent,
		ResetCommand: cfg.WiFiResetCommand,
	}, logger)

	fetcher := fetch.New(link, clk, fetchOptions(cfg), logger)

	panel, closePanel, err := openPanel(cfg, os.Stdout, logger)
	if err != nil {
		return err
	}
	defer closePanel()

	strategy, err := display.NewStrategy(cfg.RefreshPolicy, display.StrategyOptions{
		FullRefreshCycles: cfg.FullRefreshCycles,
		Stages:            cfg.RefreshStages,
		StageDelay:        cfg.RefreshStageDelay,
	})
	if err != nil {
		return err
	}
	renderer := display.NewRenderer(panel, strategy, clk, display.RendererOptions{BusyTimeout: cfg.PanelBusyTimeout}, logger)

	monitor := health.NewMonitor(health.Thresholds{
		HeapWarning:          cfg.HeapWarningThreshold,
		ErrorRecoveryTimeout: cfg.ErrorRecoveryTimeout,
		WiFiRecoveryTimeout:  cfg.WiFiRecoveryTimeout,
	}, health.RuntimeHeap{Budget: cfg.HeapBudget}, clk.Now(), logger)

	signaler := identify.NewSignaler(openIndicator(cfg, logger), clk, identify.Options{
		Count: cfg.IdentifyFlashCount,
		Delay: cfg.IdentifyFlashDelay,
	}, logger)

	machine := orchestrator.New(machineSettings(cfg, profile), orchestrator.Deps{
		Link:      link,
		Fetcher:   fetcher,
		Renderer:  renderer,
		Health:    monitor,
		Suspender: suspender(cfg, clk, logger),
		Identify:  signaler,
		Clock:     clk,
	}, logger)

	onIdentify := func() {
		go func() {
			if ran, err := signaler.Flash(ctx); err != nil {
				logger.Warn("identify failed", "error", err)
			} else if ran {
				monitor.Reset(clk.Now())
			}
		}()
	}

	var publisher heartbeatPublisher
	if cfg.MQTTEnabled() {
		client := mqtt.NewClient(mqtt.Options{
			Broker:   cfg.MQTTBroker,
			Port:     cfg.MQTTPort,
			ClientID: cfg.MQTTClientID,
			DeviceID: cfg.DeviceID,
		}, logger)
		publisher = client

		go func() {
			if err := client.Connect(ctx); err != nil {
				logger.Error("mqtt connect failed; continuing without telemetry", "error", err)
				return
			}
			if err := client.SubscribeIdentify(onIdentify); err != nil {
				logger.Warn("identify subscription failed", "error", err)
			}
		}()
		defer client.Disconnect()
	}

	bootID := uuid.NewString()
	hk := newHousekeeping(monitor, machine, publisher, mqtt.Heartbeat{
		DeviceID: cfg.DeviceID,
		BootID:   bootID,
		Firmware: cfg.FirmwareVersion,
		Region:   profile.Name,
	}, logger)
	heapInterval := time.Duration(0)
	if cfg.HeapMonitoring {
		heapInterval = cfg.HeapCheckInterval
	}
	if err := hk.Start(housekeepingOptions{
		HeapInterval:      heapInterval,
		HeartbeatInterval: cfg.HeartbeatInterval,
	}); err != nil {
		return fmt.Errorf("start housekeeping: %w", err)
	}
	defer hk.Stop()

	if cfg.IdentifyButtonPin != "" {
		button, err := identify.OpenButton(cfg.IdentifyButtonPin)
		if err != nil {
			logger.Warn("identify button unavailable; continuing without it", "pin", cfg.IdentifyButtonPin, "error", err)
		} else {
			go func() {
				_ = button.Watch(ctx, onIdentify)
			}()
		}
	}

	if cfg.StatusEnabled() {
		mux := httpapi.NewMux(httpapi.Identity{
			DeviceID: cfg.DeviceID,
			BootID:   bootID,
			Firmware: cfg.FirmwareVersion,
			Region:   profile.Name,
		}, monitor, machine, clk)
		srv := httpapi.NewServer(cfg.StatusAddr, mux, logger)
		go func() {
			if err := httpapi.Serve(ctx, srv, logger); err != nil {
				logger.Warn("status endpoint stopped", "error", err)
			}
		}()
	}

	err = machine.Run(ctx)
	logger.Info("display shutting down", "state", machine.State().String())
	return err
}

func fetchOptions(cfg config.Config) fetch.Options {
	return fetch.Options{
		BaseURL:          cfg.BackendURL,
		BufferSize:       cfg.JSONBufferSize,
		Temps:            units.TempRange{Min: cfg.TempMin, Max: cfg.TempMax},
		BreakerThreshold: uint32(3 * cfg.HTTPMaxRetries),
		BreakerTimeout:   cfg.WiFiRecoveryTimeout,
	}
}

func machineSettings(cfg config.Config, profile region.Profile) orchestrator.Settings {
	return orchestrator.Settings{
		Profile:            profile,
		UpdateInterval:     cfg.UpdateInterval,
		MinSleep:           cfg.MinSleep,
		FailureBackoff:     cfg.WiFiCheckInterval,
		ConnectTimeout:     cfg.WiFiConnectTimeout,
		MaxConnectAttempts: cfg.WiFiMaxReconnectAttempts,
		FetchPolicy: fetch.Policy{
			MaxAttempts:    cfg.HTTPMaxRetries,
			Delay:          cfg.HTTPRetryDelay,
			AttemptTimeout: cfg.HTTPTimeout,
		},
		WiFiRecoveryTimeout: cfg.WiFiRecoveryTimeout,
		IdentifyOnBoot:      cfg.IdentifyOnBoot,
	}
}

func suspender(cfg config.Config, clk clock.Clock, logger *slog.Logger) power.Suspender {
	if cfg.DeepSleep {
		return power.NewDeepSleep(power.DeepSleepOptions{
			WakeAlarmPath:  cfg.RTCWakeAlarmPath,
			PowerStatePath: cfg.PowerStatePath,
		}, clk, logger)
	}
	return power.TimedWait{Clock: clk}
}

func openPanel(cfg config.Config, out io.Writer, logger *slog.Logger) (display.Panel, func(), error) {
	if cfg.Panel == "epaper" {
		p, err := display.OpenEPaper(cfg.SPIPort, logger)
		if err != nil {
			return nil, nil, err
		}
		return p, func() {
			if err := p.Close(); err != nil {
				logger.Warn("close epaper", "error", err)
			}
		}, nil
	}
	return display.NewTerminal(out), func() {}, nil
}

func openIndicator(cfg config.Config, logger *slog.Logger) identify.Indicator {
	if cfg.StatusLEDPin == "" {
		return identify.LogIndicator{Logger: logger}
	}
	led, err := identify.OpenLED(cfg.StatusLEDPin)
	if err != nil {
		logger.Warn("status led unavailable; identify will only log", "pin", cfg.StatusLEDPin, "error", err)
		return identify.LogIndicator{Logger: logger}
	}
	return led
}
