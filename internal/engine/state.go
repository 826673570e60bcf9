package engine

// State is the match lifecycle position. The numeric values are part of
// the wire contract (PATCH bodies and match summaries carry them).
type State int

const (
	StateCancelled State = -99
	StateSuspended State = -1
	StateUpcoming  State = 0
	StateStandby   State = 1
	StateActive    State = 2
	StateCompleted State = 99
)

func (s State) String() string {
	switch s {
	case StateCancelled:
		return "Cancelled"
	case StateSuspended:
		return "Suspended"
	case StateUpcoming:
		return "Upcoming"
	case StateStandby:
		return "Standby"
	case StateActive:
		return "Active"
	case StateCompleted:
		return "Completed"
	}
	return "Invalid"
}

// Known reports whether s is one of the lifecycle states.
func (s State) Known() bool {
	switch s {
	case StateCancelled, StateSuspended, StateUpcoming, StateStandby, StateActive, StateCompleted:
		return true
	}
	return false
}
