package xerrors

import (
	"errors"
	"strings"

	grpcCodes "google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	grpcStatus "google.golang.org/grpc/status"
)

type transportError struct {
	status  *grpcStatus.Status
	trailer metadata.MD
	err     error
}

type teOpt func(te *transportError)

// WithTrailer keeps the trailing metadata of the failed call, so callers can read
// server hints like google.rpc.retryinfo-bin.
func WithTrailer(md metadata.MD) teOpt {
	return func(te *transportError) {
		if len(md) > 0 {
			te.trailer = md.Copy()
		}
	}
}

// Transport converts gRPC error into transport error with given options.
// Errors without gRPC status are returned as is.
func Transport(err error, opts ...teOpt) error {
	if err == nil {
		return nil
	}
	var te *transportError
	if errors.As(err, &te) {
		for _, opt := range opts {
			if opt != nil {
				opt(te)
			}
		}

		return err
	}
	s, ok := grpcStatus.FromError(err)
	if !ok {
		return err
	}
	te = &transportError{
		status: s,
		err:    err,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(te)
		}
	}

	return te
}

func (e *transportError) Error() string {
	var b strings.Builder
	b.WriteString("transport error: ")
	b.WriteString(e.status.Code().String())
	if msg := e.status.Message(); msg != "" {
		b.WriteString(", message: ")
		b.WriteString(msg)
	}

	return b.String()
}

func (e *transportError) Unwrap() error {
	return e.err
}

func (e *transportError) GRPCStatus() *grpcStatus.Status {
	return e.status
}

// IsTransportError reports whether err is transportError with given grpc codes
func IsTransportError(err error, codes ...grpcCodes.Code) bool {
	if err == nil {
		return false
	}
	var t *transportError
	if !errors.As(err, &t) {
		return false
	}
	if len(codes) == 0 {
		return true
	}
	for _, code := range codes {
		if t.status.Code() == code {
			return true
		}
	}

	return false
}

// Code returns the gRPC code carried by err. Local context errors map to
// Canceled and DeadlineExceeded, other non-gRPC errors to Unknown.
func Code(err error) grpcCodes.Code {
	if err == nil {
		return grpcCodes.OK
	}
	var t *transportError
	if errors.As(err, &t) {
		return t.status.Code()
	}
	if s, ok := grpcStatus.FromError(err); ok {
		return s.Code()
	}

	return grpcStatus.FromContextError(err).Code()
}

// Message returns the status message of err, or err.Error() for non-gRPC errors.
func Message(err error) string {
	if err == nil {
		return ""
	}
	var t *transportError
	if errors.As(err, &t) {
		return t.status.Message()
	}
	if s, ok := grpcStatus.FromError(err); ok {
		return s.Message()
	}

	return err.Error()
}

// Trailer returns trailing metadata captured with the transport error.
func Trailer(err error) metadata.MD {
	var t *transportError
	if errors.As(err, &t) {
		return t.trailer
	}

	return nil
}
