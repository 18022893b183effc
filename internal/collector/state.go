package collector

// State is the collector's lifecycle state. There is no terminal state:
// the collector runs until the process exits.
type State int32

const (
	StateDisconnected State = iota
	StateSubscribed
	StateRunning
)

// String returns the string representation of State
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateSubscribed:
		return "subscribed"
	case StateRunning:
		return "running"
	default:
		return "unknown"
	}
}
