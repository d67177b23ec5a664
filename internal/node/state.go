package node

import "fmt"

// State is the lifecycle state of a node.
type State int

const (
	Idle State = iota
	Configured
	Executing
	Executed
	Error
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Configured:
		return "configured"
	case Executing:
		return "executing"
	case Executed:
		return "executed"
	case Error:
		return "error"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *State) UnmarshalText(text []byte) error {
	for st := Idle; st <= Error; st++ {
		if st.String() == string(text) {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("unknown node state %q", text)
}

// StateEvent is delivered to state listeners after every transition and
// when an execution leaves a warning.
type StateEvent struct {
	NodeID  string
	State   State
	Message string
	Warning string
}
