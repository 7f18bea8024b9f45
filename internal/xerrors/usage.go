package xerrors

import (
	"fmt"

	grpcCodes "google.golang.org/grpc/codes"
	grpcStatus "google.golang.org/grpc/status"
)

// UsageError is a local error about calling an operation in a wrong state.
type UsageError struct {
	msg string
}

func (e *UsageError) Error() string {
	return e.msg
}

func Usage(msg string) *UsageError {
	return &UsageError{msg: msg}
}

var (
	ErrTransactionAlreadyCommitted  = Usage("transaction already committed")
	ErrTransactionAlreadyRolledBack = Usage("transaction already rolled back")
	ErrSingleUseReused              = Usage("cannot reuse single-use snapshot")
	ErrTransactionNotBegun          = Usage("transaction has not begun")
	ErrTransactionClosed            = Usage("read-only transaction closed")
	ErrClosed                       = Usage("client is closed")
)

func IsUsageError(err error) bool {
	var e *UsageError

	return As(err, &e)
}

// InvalidArgument builds a local error with InvalidArgument code for malformed requests.
func InvalidArgument(format string, args ...interface{}) error {
	return Transport(grpcStatus.Error(grpcCodes.InvalidArgument, fmt.Sprintf(format, args...)))
}
