package quoteclient

// ConnectionState is the lifecycle of the single transport a Client owns.
type ConnectionState int

const (
	Disconnected ConnectionState = iota
	Connecting
	Connected
	Errored
)

func (s ConnectionState) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Errored:
		return "errored"
	default:
		return "unknown"
	}
}
