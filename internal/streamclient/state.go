package streamclient

// State is the lifecycle state of a Subscription.
//
//	IDLE -> CONNECTING -> OPEN -> (ERROR -> CONNECTING)* -> CLOSED
//
// CLOSED is terminal.
type State int32

const (
	StateIdle State = iota
	StateConnecting
	StateOpen
	StateError
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateError:
		return "error"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}
