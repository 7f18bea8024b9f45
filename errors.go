package spanner

import (
	"time"

	"google.golang.org/grpc/codes"

	"github.com/spanner-go/spanner-go-sdk/internal/tx"
	"github.com/spanner-go/spanner-go-sdk/internal/value"
	"github.com/spanner-go/spanner-go-sdk/internal/xerrors"
)

var (
	ErrTransactionAlreadyCommitted  = xerrors.ErrTransactionAlreadyCommitted
	ErrTransactionAlreadyRolledBack = xerrors.ErrTransactionAlreadyRolledBack
	ErrSingleUseReused              = xerrors.ErrSingleUseReused
	ErrTransactionNotBegun          = xerrors.ErrTransactionNotBegun
	ErrTransactionClosed            = xerrors.ErrTransactionClosed
	ErrClosed                       = xerrors.ErrClosed
)

type (
	RowNotFoundError    = tx.RowNotFoundError
	UnknownTypeError    = value.UnknownTypeError
	InvalidValueError   = value.InvalidValueError
	DecodeMismatchError = value.DecodeMismatchError
)

// ErrCode returns the gRPC code of err. Errors not caused by an RPC give codes.Unknown.
func ErrCode(err error) codes.Code {
	return xerrors.Code(err)
}

// ErrMessage returns the server message of err.
func ErrMessage(err error) string {
	return xerrors.Message(err)
}

// IsAborted reports whether the transaction of err was aborted by the server
// and may succeed if retried.
func IsAborted(err error) bool {
	return xerrors.IsAborted(err)
}

// IsUsageError reports whether err is a local misuse of a transaction.
func IsUsageError(err error) bool {
	return xerrors.IsUsageError(err)
}

// RetryDelay returns the delay the server asks to wait before retrying.
func RetryDelay(err error) (time.Duration, bool) {
	return xerrors.RetryDelay(err)
}
