package godali

// Status is the transmission or reception outcome of a frame. It is set by
// the driver or the client, never by the application, and is terminal once
// the frame has been handed out.
type Status uint8

const (
	OK Status = iota
	Timeout
	Collision
	FramingError
	NotSent
)

func (s Status) String() string {
	switch s {
	case OK:
		return "OK"
	case Timeout:
		return "TIMEOUT"
	case Collision:
		return "COLLISION"
	case FramingError:
		return "FRAMING ERROR"
	case NotSent:
		return "NOT SENT"
	default:
		return "UNKNOWN"
	}
}
