package connection

import "fmt"

// State is the channel readiness. Values match the WebSocket readyState
// numbering.
type State uint8

const (
	// StateConnecting indicates a dial is in progress.
	StateConnecting State = iota

	// StateOpen indicates the channel can carry messages.
	StateOpen

	// StateClosing indicates the manager is shutting the channel down.
	StateClosing

	// StateClosed indicates there is no channel.
	StateClosed
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateConnecting:
		return "CONNECTING"
	case StateOpen:
		return "OPEN"
	case StateClosing:
		return "CLOSING"
	case StateClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// ParseState parses a state name as returned by String.
func ParseState(s string) (State, error) {
	switch s {
	case "CONNECTING":
		return StateConnecting, nil
	case "OPEN":
		return StateOpen, nil
	case "CLOSING":
		return StateClosing, nil
	case "CLOSED":
		return StateClosed, nil
	default:
		return 0, fmt.Errorf("unknown readiness %q", s)
	}
}
