package xerrors

import (
	"strings"
	"time"

	"google.golang.org/genproto/googleapis/rpc/errdetails"
	grpcCodes "google.golang.org/grpc/codes"
	grpcStatus "google.golang.org/grpc/status"
	"google.golang.org/protobuf/proto"
)

// RetryInfoKey is the trailing metadata key which carries google.rpc.RetryInfo.
const RetryInfoKey = "google.rpc.retryinfo-bin"

var resumableInternalMessages = []string{
	"RST_STREAM",
	"Received unexpected EOS on DATA frame from server",
}

// Classify returns the retry class of err.
func Classify(err error) Type {
	switch {
	case err == nil:
		return TypeNoError
	case IsAborted(err):
		return TypeAborted
	case IsResumable(err):
		return TypeResumable
	default:
		return TypeNonRetryable
	}
}

func IsAborted(err error) bool {
	return err != nil && Code(err) == grpcCodes.Aborted
}

// IsResumable reports whether a broken stream may be resumed with its last resume token.
func IsResumable(err error) bool {
	if err == nil || IsContextError(err) {
		return false
	}
	switch Code(err) {
	case grpcCodes.Unavailable:
		return true
	case grpcCodes.Internal:
		return IsRSTStream(err)
	default:
		return false
	}
}

// IsRSTStream reports whether err is an Internal error caused by a reset or truncated HTTP/2 stream.
func IsRSTStream(err error) bool {
	if err == nil || Code(err) != grpcCodes.Internal {
		return false
	}
	msg := Message(err)
	for _, s := range resumableInternalMessages {
		if strings.Contains(msg, s) {
			return true
		}
	}

	return false
}

func IsUnimplemented(err error) bool {
	return err != nil && Code(err) == grpcCodes.Unimplemented
}

func IsNotFound(err error) bool {
	return err != nil && Code(err) == grpcCodes.NotFound
}

// IsSessionNotFound reports whether the server no longer knows the session.
func IsSessionNotFound(err error) bool {
	return IsNotFound(err) && strings.Contains(Message(err), "Session not found")
}

// RetryDelay extracts the server-supplied retry delay from status details
// or from the google.rpc.retryinfo-bin trailer.
func RetryDelay(err error) (time.Duration, bool) {
	if err == nil {
		return 0, false
	}
	if s, ok := grpcStatus.FromError(err); ok {
		for _, d := range s.Details() {
			if ri, ok := d.(*errdetails.RetryInfo); ok && ri.GetRetryDelay() != nil {
				return ri.GetRetryDelay().AsDuration(), true
			}
		}
	}
	for _, v := range Trailer(err).Get(RetryInfoKey) {
		var ri errdetails.RetryInfo
		if proto.Unmarshal([]byte(v), &ri) != nil || ri.GetRetryDelay() == nil {
			continue
		}

		return ri.GetRetryDelay().AsDuration(), true
	}

	return 0, false
}
