package orchestrator

type State int32

const (
	Boot State = iota
	EnsureNetwork
	Fetching
	Rendering
	Sleeping
	ErrorDisplay
	Identify
)

var stateNames = [...]string{
	Boot:          "boot",
	EnsureNetwork: "ensure_network",
	Fetching:      "fetching",
	Rendering:     "rendering",
	Sleeping:      "sleeping",
	ErrorDisplay:  "error_display",
	Identify:      "identify",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// escalates reports whether the error-recovery check runs before s.
// Boot and Identify are short and reset state; ErrorDisplay is the target.
func (s State) escalates() bool {
	switch s {
	case Boot, Identify, ErrorDisplay:
		return false
	default:
		return true
	}
}
