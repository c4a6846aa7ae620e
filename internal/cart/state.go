package cart

import "fmt"

// MutationState is the lifecycle position of the most recent cart mutation.
type MutationState int

const (
	StateIdle MutationState = iota
	StatePending
	StateAppliedRemote
	StateAppliedLocalFallback
)

func (s MutationState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePending:
		return "pending"
	case StateAppliedRemote:
		return "applied_remote"
	case StateAppliedLocalFallback:
		return "applied_local_fallback"
	default:
		return fmt.Sprintf("MutationState(%d)", int(s))
	}
}

// Settled reports whether s is a terminal state of a mutation.
func (s MutationState) Settled() bool {
	switch s {
	case StateAppliedRemote, StateAppliedLocalFallback:
		return true
	case StateIdle, StatePending:
		return false
	default:
		return false
	}
}

func (s MutationState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *MutationState) UnmarshalText(text []byte) error {
	for _, st := range []MutationState{StateIdle, StatePending, StateAppliedRemote, StateAppliedLocalFallback} {
		if st.String() == string(text) {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("unknown mutation state %q", text)
}
