package dentalink

// Status represents the current state of a Client's connection.
type Status int

const (
	// StatusClosed means no socket exists.
	StatusClosed Status = iota

	// StatusConnecting means a dial is in flight.
	StatusConnecting

	// StatusOpen means the socket is established and ready.
	StatusOpen

	// StatusError means the last transition was caused by a failure; the
	// close handling that follows moves the client back to StatusClosed.
	StatusError
)

// String returns the string representation of a Status.
func (s Status) String() string {
	switch s {
	case StatusClosed:
		return "closed"
	case StatusConnecting:
		return "connecting"
	case StatusOpen:
		return "open"
	case StatusError:
		return "error"
	default:
		return "unknown"
	}
}

// StateEvent describes one status transition.
type StateEvent struct {
	Old Status
	New Status
	Err error // cause of the transition, when there is one
}
