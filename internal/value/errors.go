package value

import (
	"fmt"

	"cloud.google.com/go/spanner/apiv1/spannerpb"
	"github.com/apstndb/spantype"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	ReasonPrecision = "precision"
	ReasonScale     = "scale"
	ReasonRange     = "range"
	ReasonUTF8      = "utf8"
)

// UnknownTypeError reports a host value or wire type the codec does not support.
type UnknownTypeError struct {
	Value any
	Type  *spannerpb.Type
}

func (e *UnknownTypeError) Error() string {
	if e.Type != nil {
		return "spanner: unsupported wire type " + spantype.FormatTypeMoreVerbose(e.Type)
	}

	return fmt.Sprintf("spanner: unsupported value type %T", e.Value)
}

// InvalidValueError reports a host value that cannot be represented on the wire.
type InvalidValueError struct {
	Reason string
	Value  any
}

func (e *InvalidValueError) Error() string {
	return fmt.Sprintf("spanner: invalid value %v: %s", e.Value, e.Reason)
}

// DecodeMismatchError reports a wire value that does not match its declared type.
type DecodeMismatchError struct {
	Type   *spannerpb.Type
	Value  *structpb.Value
	Reason string
}

func (e *DecodeMismatchError) Error() string {
	t := "<nil>"
	if e.Type != nil {
		t = spantype.FormatTypeMoreVerbose(e.Type)
	}

	return fmt.Sprintf("spanner: cannot decode %v as %s: %s", e.Value, t, e.Reason)
}

func mismatch(t *spannerpb.Type, v *structpb.Value, format string, args ...any) error {
	return &DecodeMismatchError{
		Type:   t,
		Value:  v,
		Reason: fmt.Sprintf(format, args...),
	}
}
