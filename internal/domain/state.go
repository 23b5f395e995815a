package domain

// State is the lifecycle state of a payment Transaction.
type State string

const (
	StateCreated            State = "CREATED"
	StateValidated          State = "VALIDATED"
	StateResolved           State = "RESOLVED"
	StatePendingProviderAck State = "PENDING_PROVIDER_ACK"
	StateSucceeded          State = "SUCCEEDED"
	StateDeclined           State = "DECLINED"
	StateRejected           State = "REJECTED"
	StateFailed             State = "FAILED"
	StateTimedOut           State = "TIMED_OUT"
	StateError              State = "ERROR"
	StateCancelled          State = "CANCELLED"
)

var transitions = map[State][]State{
	StateCreated:            {StateValidated, StateRejected, StateCancelled, StateError},
	StateValidated:          {StateResolved, StateRejected, StateCancelled, StateError},
	StateResolved:           {StatePendingProviderAck, StateFailed, StateCancelled, StateError},
	StatePendingProviderAck: {StatePendingProviderAck, StateSucceeded, StateDeclined, StateTimedOut, StateError},
}

// IsTerminal reports whether no further transition is permitted from s.
func (s State) IsTerminal() bool {
	switch s {
	case StateSucceeded, StateDeclined, StateRejected, StateFailed, StateTimedOut, StateError, StateCancelled:
		return true
	}
	return false
}

// IsPreDispatch reports whether the provider has not been contacted yet.
func (s State) IsPreDispatch() bool {
	return s == StateCreated || s == StateValidated || s == StateResolved
}

// CanTransition reports whether from -> to is allowed by the state machine.
func CanTransition(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// ParseState returns the State named by s, or false if s is not a known state.
func ParseState(s string) (State, bool) {
	st := State(s)
	switch st {
	case StateCreated, StateValidated, StateResolved, StatePendingProviderAck:
		return st, true
	}
	return st, st.IsTerminal()
}
