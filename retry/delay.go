package retry

import (
	"time"

	"github.com/spanner-go/spanner-go-sdk/internal/backoff"
	"github.com/spanner-go/spanner-go-sdk/internal/xerrors"
)

// Delay returns the pause before retry attempt of an aborted transaction.
// The server hint carried by cause wins, then defaultDelay when positive,
// then 2^attempt seconds plus up to one second of jitter.
func Delay(cause error, attempt int, defaultDelay time.Duration) time.Duration {
	if d, ok := xerrors.RetryDelay(cause); ok {
		return d
	}
	if defaultDelay > 0 {
		return defaultDelay
	}

	return backoff.Transaction.Delay(attempt)
}
