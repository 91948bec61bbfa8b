// Package identify blinks a status indicator so an installer can pick out one
// display among several.
package identify

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nativenav/weather-display-system/internal/clock"
)

// Indicator is something that can be switched on and off, usually an LED.
type Indicator interface {
	Set(on bool) error
}

type Options struct {
	Count int
	Delay time.Duration
}

// Signaler runs identify sequences one at a time. A request arriving while a
// sequence is running is dropped.
type Signaler struct {
	ind    Indicator
	clock  clock.Clock
	opts   Options
	logger *slog.Logger

	mu sync.Mutex
}

func NewSignaler(ind Indicator, clk clock.Clock, opts Options, logger *slog.Logger) *Signaler {
	return &Signaler{
		ind:    ind,
		clock:  clk,
		opts:   opts,
		logger: logger.With("component", "identify"),
	}
}

// Flash blinks the indicator Count times. It reports false without doing
// anything if another Flash is in progress.
func (s *Signaler) Flash(ctx context.Context) (bool, error) {
	if !s.mu.TryLock() {
		s.logger.Debug("identify already running, request dropped")
		return false, nil
	}
	defer s.mu.Unlock()

	s.logger.Info("identify sequence", "count", s.opts.Count)
	defer func() {
		if err := s.ind.Set(false); err != nil {
			s.logger.Warn("indicator off failed", "error", err)
		}
	}()

	for i := 0; i < s.opts.Count; i++ {
		if err := s.ind.Set(true); err != nil {
			return true, fmt.Errorf("indicator on: %w", err)
		}
		if err := s.clock.Sleep(ctx, s.opts.Delay); err != nil {
			return true, err
		}
		if err := s.ind.Set(false); err != nil {
			return true, fmt.Errorf("indicator off: %w", err)
		}
		if i < s.opts.Count-1 {
			if err := s.clock.Sleep(ctx, s.opts.Delay); err != nil {
				return true, err
			}
		}
	}
	return true, nil
}

// LogIndicator stands in for an LED on hosts without one.
type LogIndicator struct {
	Logger *slog.Logger
}

func (l LogIndicator) Set(on bool) error {
	l.Logger.Info("status indicator", "on", on)
	return nil
}
