package fetch

import (
	"github.com/nativenav/weather-display-system/internal/station"
)

type Outcome int

const (
	Success Outcome = iota
	PartialFailure
	Failure
)

func (o Outcome) String() string {
	switch o {
	case Success:
		return "success"
	case PartialFailure:
		return "partial_failure"
	default:
		return "failure"
	}
}

// Kind distinguishes why a fetch chain failed.
type Kind int

const (
	KindNone Kind = iota
	KindNetwork
	KindParse
)

func (k Kind) String() string {
	switch k {
	case KindNetwork:
		return "network_error"
	case KindParse:
		return "parse_error"
	default:
		return "none"
	}
}

// Result is produced at the end of one attempt chain and consumed by the
// caller straight away.
type Result struct {
	Outcome  Outcome
	Stations []station.Reading
	Failures int
	Kind     Kind
	Err      error
	Attempts int
}

// Usable reports whether the result carries stations worth rendering.
func (r Result) Usable() bool {
	return r.Outcome == Success || r.Outcome == PartialFailure
}
