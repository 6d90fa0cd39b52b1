package scanner

// State is the loop state. Stopped is terminal.
type State int

const (
	StateRunning State = iota
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// StopReason records what moved the loop to StateStopped.
type StopReason int

const (
	ReasonNone        StopReason = iota
	ReasonQuitKey                // quit key pressed
	ReasonReadFailure            // camera read failed
	ReasonCanceled               // context canceled between read and detect
	ReasonShutdown               // Shutdown called while running
)

func (r StopReason) String() string {
	switch r {
	case ReasonNone:
		return "none"
	case ReasonQuitKey:
		return "quit_key"
	case ReasonReadFailure:
		return "read_failure"
	case ReasonCanceled:
		return "canceled"
	case ReasonShutdown:
		return "shutdown"
	default:
		return "unknown"
	}
}
