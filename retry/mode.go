package retry

import (
	"fmt"

	"google.golang.org/grpc/codes"

	"github.com/spanner-go/spanner-go-sdk/internal/xerrors"
)

// Mode reports how an error is recovered from, if at all.
type Mode struct {
	code codes.Code
	typ  xerrors.Type
}

// Check classifies err.
func Check(err error) Mode {
	return Mode{
		code: xerrors.Code(err),
		typ:  xerrors.Classify(err),
	}
}

// MustRetryTransaction reports whether the whole transaction should run again.
func (m Mode) MustRetryTransaction() bool { return m.typ == xerrors.TypeAborted }

// MustResume reports whether a broken stream should resume from its last resume token.
func (m Mode) MustResume() bool { return m.typ == xerrors.TypeResumable }

// DisablesMultiplexed reports whether the error turns multiplexed sessions off
// when it is returned by the multiplexed session create call.
func (m Mode) DisablesMultiplexed() bool { return m.code == codes.Unimplemented }

func (m Mode) Code() codes.Code { return m.code }

func (m Mode) Type() xerrors.Type { return m.typ }

func (m Mode) String() string {
	return fmt.Sprintf("%s (%s)", m.typ, m.code)
}
