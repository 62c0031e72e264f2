package ipc

// Status is the lifecycle state of one connection.
type Status int32

const (
	Disconnected Status = iota
	Connected
	Closing
)

func (s Status) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connected:
		return "connected"
	case Closing:
		return "closing"
	default:
		return "unknown"
	}
}
