package xerrors

import (
	"context"
	"errors"

	grpcCodes "google.golang.org/grpc/codes"
)

// IsContextError reports whether err is a context cancellation or deadline error,
// either local or delivered by the transport.
func IsContextError(err error) bool {
	if err == nil {
		return false
	}
	if Is(err, context.Canceled, context.DeadlineExceeded) {
		return true
	}

	return IsTransportError(err, grpcCodes.Canceled, grpcCodes.DeadlineExceeded)
}

// As reports whether err matches any of targets. Every matching target is filled.
func As(err error, targets ...any) (ok bool) {
	if err == nil {
		return false
	}
	for _, t := range targets {
		if errors.As(err, t) {
			ok = true
		}
	}

	return ok
}

// Is reports whether err matches any of targets.
func Is(err error, targets ...error) bool {
	if len(targets) == 0 {
		panic("empty targets")
	}
	for _, target := range targets {
		if errors.Is(err, target) {
			return true
		}
	}

	return false
}
