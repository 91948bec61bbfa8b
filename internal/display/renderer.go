package display

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nativenav/weather-display-system/internal/clock"
)

var (
	// ErrRenderTimeout means the panel did not report ready within the busy
	// timeout on both tries of a cycle.
	ErrRenderTimeout = errors.New("render timeout")
	// ErrPanelBusy is returned by a panel asked to start an operation while a
	// previous one is still running.
	ErrPanelBusy = errors.New("panel busy")
)

// Panel is the e-paper driver collaborator. Clear and DrawRegion may return
// before the panel is done; WaitUntilReady blocks until it is, or fails once
// timeout passes.
type Panel interface {
	Clear() error
	DrawRegion(Layout) error
	WaitUntilReady(timeout time.Duration) error
}

type Outcome struct {
	FullClear bool
	Attempts  int
	Err       error
}

type RendererOptions struct {
	BusyTimeout time.Duration
}

// Renderer drives a Panel through the refresh plan of its strategy. It is
// used from the orchestrator only and is not safe for concurrent use.
type Renderer struct {
	panel    Panel
	strategy RefreshStrategy
	clock    clock.Clock
	opts     RendererOptions
	logger   *slog.Logger

	sinceFull int
	forceFull bool
}

func NewRenderer(panel Panel, strategy RefreshStrategy, clk clock.Clock, opts RendererOptions, logger *slog.Logger) *Renderer {
	return &Renderer{
		panel:     panel,
		strategy:  strategy,
		clock:     clk,
		opts:      opts,
		logger:    logger.With("component", "renderer", "refresh_policy", strategy.Name()),
		forceFull: true,
	}
}

// Reset forces the next render to clear fully, as after a boot when the
// panel contents are unknown.
func (r *Renderer) Reset() {
	r.forceFull = true
}

// SinceFull reports renders completed since the last full clear.
func (r *Renderer) SinceFull() int {
	return r.sinceFull
}

// Render draws layout, retrying once if the panel fails or stays busy.
// A failed cycle leaves the counter untouched and forces a full clear next
// time, so a due full clear is never skipped.
func (r *Renderer) Render(ctx context.Context, layout Layout) Outcome {
	plan := r.plan()

	var err error
	for attempt := 1; attempt <= 2; attempt++ {
		err = r.execute(ctx, plan, layout)
		if err == nil {
			r.commit(plan)
			r.logger.Debug("render complete",
				"full_clear", plan.FullClear,
				"stages", plan.Stages,
				"attempt", attempt,
				"since_full", r.sinceFull,
			)
			return Outcome{FullClear: plan.FullClear, Attempts: attempt}
		}
		if ctx.Err() != nil {
			r.forceFull = true
			return Outcome{FullClear: plan.FullClear, Attempts: attempt, Err: ctx.Err()}
		}
		r.logger.Warn("render attempt failed", "attempt", attempt, "error", err)
	}

	r.forceFull = true
	return Outcome{
		FullClear: plan.FullClear,
		Attempts:  2,
		Err:       fmt.Errorf("%w: %w", ErrRenderTimeout, err),
	}
}

func (r *Renderer) plan() RefreshPlan {
	plan := r.strategy.Plan(r.sinceFull)
	if r.forceFull && !plan.FullClear {
		plan = RefreshPlan{FullClear: true, Stages: 1}
	}
	if plan.FullClear && plan.Stages < 1 {
		plan.Stages = 1
	}
	return plan
}

func (r *Renderer) execute(ctx context.Context, plan RefreshPlan, layout Layout) error {
	if plan.FullClear {
		for stage := 1; stage <= plan.Stages; stage++ {
			if err := r.panel.Clear(); err != nil {
				return fmt.Errorf("clear stage %d: %w", stage, err)
			}
			if err := r.panel.WaitUntilReady(r.opts.BusyTimeout); err != nil {
				return fmt.Errorf("clear stage %d: %w", stage, err)
			}
			if stage < plan.Stages && plan.StageDelay > 0 {
				if err := r.clock.Sleep(ctx, plan.StageDelay); err != nil {
					return err
				}
			}
		}
	}

	if err := r.panel.DrawRegion(layout); err != nil {
		return fmt.Errorf("draw: %w", err)
	}
	if err := r.panel.WaitUntilReady(r.opts.BusyTimeout); err != nil {
		return fmt.Errorf("draw: %w", err)
	}
	return nil
}

func (r *Renderer) commit(plan RefreshPlan) {
	if plan.FullClear {
		r.sinceFull = 0
		r.forceFull = false
		return
	}
	r.sinceFull++
}
