package session

// State is the connection lifecycle state. Exactly one instance exists per
// process, owned exclusively by the Controller.
type State int

const (
	StateIdle State = iota
	StateStarting
	StateAwaitingAuth
	StateAuthenticated
	StateReady
	StateDisconnecting
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStarting:
		return "starting"
	case StateAwaitingAuth:
		return "awaiting_auth"
	case StateAuthenticated:
		return "authenticated"
	case StateReady:
		return "ready"
	case StateDisconnecting:
		return "disconnecting"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// running reports whether the session occupies the connection resource.
func (s State) running() bool {
	switch s {
	case StateStarting, StateAwaitingAuth, StateAuthenticated, StateReady, StateDisconnecting:
		return true
	default:
		return false
	}
}
