// Package fetch retrieves the region's station payload from the backend
// with a bounded, fixed-delay retry policy.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	"github.com/nativenav/weather-display-system/internal/clock"
	"github.com/nativenav/weather-display-system/internal/network"
	"github.com/nativenav/weather-display-system/internal/region"
	"github.com/nativenav/weather-display-system/internal/station"
	"github.com/nativenav/weather-display-system/internal/units"
)

// Policy is the retry policy shared by every firmware generation; only the
// numbers differ between them.
type Policy struct {
	MaxAttempts    int
	Delay          time.Duration
	AttemptTimeout time.Duration
}

type Options struct {
	BaseURL    string
	BufferSize int
	Temps      units.TempRange

	// BreakerThreshold is the number of consecutive transport failures that
	// opens the circuit. Zero disables the breaker.
	BreakerThreshold uint32
	// BreakerTimeout is how long an open circuit rejects fetches.
	BreakerTimeout time.Duration
}

type Fetcher struct {
	link   network.Link
	clock  clock.Clock
	opts   Options
	buf    *station.Buffer
	cb     *gobreaker.CircuitBreaker
	logger *slog.Logger
}

func New(link network.Link, clk clock.Clock, opts Options, logger *slog.Logger) *Fetcher {
	logger = logger.With("component", "fetch")
	threshold := opts.BreakerThreshold

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "backend",
		MaxRequests: 1,
		Timeout:     opts.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return threshold > 0 && counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change", "breaker", name, "from", from.String(), "to", to.String())
		},
	})

	return &Fetcher{
		link:   link,
		clock:  clk,
		opts:   opts,
		buf:    station.NewBuffer(opts.BufferSize),
		cb:     cb,
		logger: logger,
	}
}

// URL is the endpoint fetched for profile.
func (f *Fetcher) URL(profile region.Profile) string {
	return strings.TrimRight(f.opts.BaseURL, "/") + profile.Path()
}

// Fetch runs up to policy.MaxAttempts attempts separated by policy.Delay. An
// attempt in flight is never interrupted; ctx is only checked between
// attempts.
func (f *Fetcher) Fetch(ctx context.Context, profile region.Profile, policy Policy) Result {
	url := f.URL(profile)
	maxAttempts := max(policy.MaxAttempts, 1)

	var lastErr error
	attempts := 0
	for attempts < maxAttempts {
		if attempts > 0 {
			if err := f.clock.Sleep(ctx, policy.Delay); err != nil {
				break
			}
		}
		if ctx.Err() != nil {
			break
		}

		attempts++
		parsed, err := f.attempt(ctx, url, policy.AttemptTimeout)
		if err == nil {
			return f.success(profile, parsed, attempts)
		}

		lastErr = err
		f.logger.Warn("fetch attempt failed",
			"region", profile.Name,
			"attempt", attempts,
			"max_attempts", maxAttempts,
			"error_kind", errorKind(err),
			"error", err,
		)
		if errors.Is(err, ErrCircuitOpen) {
			break
		}
	}

	if lastErr == nil {
		lastErr = fmt.Errorf("%w: %v", ErrTransport, ctx.Err())
	}
	kind := KindNetwork
	if station.IsParseError(lastErr) {
		kind = KindParse
	}
	return Result{Outcome: Failure, Kind: kind, Err: lastErr, Attempts: attempts}
}

func (f *Fetcher) success(profile region.Profile, parsed station.Parsed, attempts int) Result {
	outcome := Success
	if parsed.Failures() > 0 {
		outcome = PartialFailure
	}
	if parsed.Dropped > 0 {
		f.logger.Debug("ignoring extra stations", "region", profile.Name, "dropped", parsed.Dropped)
	}
	f.logger.Info("fetch complete",
		"region", profile.Name,
		"outcome", outcome.String(),
		"stations", len(parsed.Stations),
		"failures", parsed.Failures(),
		"attempts", attempts,
	)
	return Result{
		Outcome:  outcome,
		Stations: parsed.Stations,
		Failures: parsed.Failures(),
		Attempts: attempts,
	}
}

// attempt performs one GET and parse. Parse failures do not count against
// the circuit breaker; only transport and status failures do.
func (f *Fetcher) attempt(ctx context.Context, url string, timeout time.Duration) (station.Parsed, error) {
	defer f.buf.Reset()

	var (
		parsed   station.Parsed
		parseErr error
	)
	_, err := f.cb.Execute(func() (interface{}, error) {
		resp, err := f.link.Get(ctx, url, timeout)
		if err != nil {
			return nil, classifyTransport(err)
		}
		defer resp.Body.Close()

		if resp.Status < 200 || resp.Status >= 300 {
			return nil, &StatusError{Status: resp.Status}
		}

		if err := f.buf.Fill(resp.Body, resp.ContentLength); err != nil {
			if errors.Is(err, station.ErrBufferOverflow) {
				parseErr = err
				return nil, nil
			}
			return nil, classifyTransport(err)
		}

		parsed, parseErr = station.Parse(f.buf.Bytes(), f.opts.Temps)
		return nil, nil
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return station.Parsed{}, fmt.Errorf("%w: %v", ErrCircuitOpen, err)
		}
		return station.Parsed{}, err
	}
	if parseErr != nil {
		return station.Parsed{}, parseErr
	}
	return parsed, nil
}
