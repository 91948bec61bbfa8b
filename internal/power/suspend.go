package power

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/nativenav/weather-display-system/internal/clock"
)

// Suspender parks the device between cycles.
type Suspender interface {
	Suspend(ctx context.Context, d time.Duration) error
	// LosesState reports whether volatile state must be treated as lost
	// after Suspend returns.
	LosesState() bool
}

// TimedWait blocks without any power-state transition.
type TimedWait struct {
	Clock clock.Clock
}

func (t TimedWait) Suspend(ctx context.Context, d time.Duration) error {
	return t.Clock.Sleep(ctx, d)
}

func (TimedWait) LosesState() bool { return false }

type DeepSleepOptions struct {
	// WakeAlarmPath is the RTC wakealarm sysfs file.
	WakeAlarmPath string
	// PowerStatePath is the kernel power state file; writing "mem" suspends
	// until the RTC fires.
	PowerStatePath string
}

// DeepSleep arms the RTC and suspends the board. Peripherals lose power, so
// the caller re-initialises the panel and link on wake.
type DeepSleep struct {
	opts   DeepSleepOptions
	clock  clock.Clock
	logger *slog.Logger
}

func NewDeepSleep(opts DeepSleepOptions, clk clock.Clock, logger *slog.Logger) *DeepSleep {
	return &DeepSleep{opts: opts, clock: clk, logger: logger.With("component", "power")}
}

func (s *DeepSleep) LosesState() bool { return true }

func (s *DeepSleep) Suspend(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	secs := int64(d.Round(time.Second) / time.Second)
	if secs < 1 {
		secs = 1
	}

	// The alarm must be cleared before a new one is accepted.
	if err := writeSysfs(s.opts.WakeAlarmPath, "0"); err != nil {
		return fmt.Errorf("clear wake alarm: %w", err)
	}
	if err := writeSysfs(s.opts.WakeAlarmPath, "+"+strconv.FormatInt(secs, 10)); err != nil {
		return fmt.Errorf("arm wake alarm: %w", err)
	}

	s.logger.Info("entering deep sleep", "duration", d, "wake_in_s", secs)
	start := s.clock.Now()
	if err := writeSysfs(s.opts.PowerStatePath, "mem"); err != nil {
		s.logger.Warn("deep sleep unavailable, waiting instead", "error", err)
		return s.clock.Sleep(ctx, d)
	}

	// Some boards return from suspend early on unrelated wake sources.
	if rest := d - s.clock.Now().Sub(start); rest > time.Second {
		return s.clock.Sleep(ctx, rest)
	}
	return nil
}

func writeSysfs(path, value string) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC, 0)
	if err != nil {
		return err
	}
	if _, err := f.WriteString(value); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
