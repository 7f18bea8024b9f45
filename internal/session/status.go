package session

type Status = string

const (
	StatusUnknown = Status("Unknown")
	StatusIdle    = Status("Idle")
	StatusInUse   = Status("InUse")
	StatusClosing = Status("Closing")
	StatusClosed  = Status("Closed")
	// StatusNotFound marks a session the server does not know anymore
	StatusNotFound = Status("NotFound")
)

// Kind is the transaction kind a session is asked for.
type Kind uint8

const (
	KindReadOnly = Kind(iota)
	KindPartitioned
	KindReadWrite
)

func (k Kind) String() string {
	switch k {
	case KindReadOnly:
		return "read-only"
	case KindPartitioned:
		return "partitioned"
	case KindReadWrite:
		return "read-write"
	default:
		return "unknown"
	}
}
