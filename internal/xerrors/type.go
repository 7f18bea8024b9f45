package xerrors

import "fmt"

// Type reports how the retry layer treats an error
type Type uint8

const (
	TypeUndefined = Type(iota)
	TypeNoError
	TypeNonRetryable
	// TypeAborted is retried by re-running the whole transaction
	TypeAborted
	// TypeResumable is retried by resuming the stream from the last resume token
	TypeResumable
)

func (t Type) String() string {
	switch t {
	case TypeUndefined:
		return "undefined"
	case TypeNoError:
		return "no error"
	case TypeNonRetryable:
		return "non-retryable"
	case TypeAborted:
		return "aborted"
	case TypeResumable:
		return "resumable"
	default:
		return fmt.Sprintf("unknown error type %d", t)
	}
}
