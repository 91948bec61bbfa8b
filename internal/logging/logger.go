package logging

import (
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/lmittmann/tint"

	"github.com/nativenav/weather-display-system/internal/config"
)

// New builds the process logger: colourised text for dev builds, JSON
// otherwise.
func New(cfg config.Config, version string, appName string) *slog.Logger {
	return newTo(output(cfg), cfg, version, appName)
}

// output keeps stdout for the terminal panel when it is the active display.
func output(cfg config.Config) io.Writer {
	if cfg.Panel == "terminal" {
		return os.Stderr
	}
	return os.Stdout
}

func newTo(w io.Writer, cfg config.Config, version string, appName string) *slog.Logger {
	if version == "dev" {
		h := tint.NewHandler(w, &tint.Options{
			Level:      cfg.LogLevel,
			AddSource:  true,
			TimeFormat: time.Kitchen,
		})
		return slog.New(h).With("app", appName, "device_id", cfg.DeviceID)
	}

	h := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	})
	return slog.New(h).With(
		"app", appName,
		"version", version,
		"env", cfg.AppEnv,
		"device_id", cfg.DeviceID,
	)
}
