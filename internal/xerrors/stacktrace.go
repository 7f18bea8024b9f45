package xerrors

import (
	"google.golang.org/grpc/status"

	"github.com/spanner-go/spanner-go-sdk/internal/stack"
)

// WithStackTrace annotates err with the file:line of the caller. The gRPC status
// of a wrapped RPC error stays visible to status.FromError and status.Code.
func WithStackTrace(err error) error {
	if err == nil {
		return nil
	}

	return &stackError{
		err:    err,
		record: stack.Record(1),
	}
}

type stackError struct {
	err    error
	record string
}

func (e *stackError) Error() string {
	return e.err.Error() + " at `" + e.record + "`"
}

func (e *stackError) Unwrap() error {
	return e.err
}

func (e *stackError) GRPCStatus() *status.Status {
	if s, ok := status.FromError(e.err); ok {
		return s
	}

	return nil
}
