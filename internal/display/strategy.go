package display

import (
	"fmt"
	"time"
)

// RefreshPlan is what one render does to the panel. A full clear runs
// Stages clear cycles separated by StageDelay before drawing; otherwise the
// panel gets a fast partial update.
type RefreshPlan struct {
	FullClear  bool
	Stages     int
	StageDelay time.Duration
}

// RefreshStrategy is the anti-ghosting policy, chosen once at startup.
// Plan must be deterministic in sinceFull, the number of renders since the
// last completed full clear.
type RefreshStrategy interface {
	Name() string
	Plan(sinceFull int) RefreshPlan
}

// Counter clears fully on every Every-th render and updates partially in
// between.
type Counter struct {
	Every int
}

func (Counter) Name() string { return "counter" }

func (c Counter) Plan(sinceFull int) RefreshPlan {
	if c.Every <= 1 || sinceFull+1 >= c.Every {
		return RefreshPlan{FullClear: true, Stages: 1}
	}
	return RefreshPlan{}
}

// AlwaysFull runs a multi-stage flash/clear sequence before every draw.
type AlwaysFull struct {
	Stages     int
	StageDelay time.Duration
}

func (AlwaysFull) Name() string { return "always-full" }

func (a AlwaysFull) Plan(int) RefreshPlan {
	return RefreshPlan{FullClear: true, Stages: max(a.Stages, 1), StageDelay: a.StageDelay}
}

// MinimalFlash clears fully every render with a single flash.
type MinimalFlash struct{}

func (MinimalFlash) Name() string { return "minimal-flash" }

func (MinimalFlash) Plan(int) RefreshPlan {
	return RefreshPlan{FullClear: true, Stages: 1}
}

// StrategyOptions carries the tunables of every policy; each one reads only
// what it needs.
type StrategyOptions struct {
	FullRefreshCycles int
	Stages            int
	StageDelay        time.Duration
}

func NewStrategy(name string, opts StrategyOptions) (RefreshStrategy, error) {
	switch name {
	case "counter":
		return Counter{Every: opts.FullRefreshCycles}, nil
	case "always-full":
		return AlwaysFull{Stages: opts.Stages, StageDelay: opts.StageDelay}, nil
	case "minimal-flash", "":
		return MinimalFlash{}, nil
	default:
		return nil, fmt.Errorf("unknown refresh policy %q (allowed: counter, always-full, minimal-flash)", name)
	}
}
