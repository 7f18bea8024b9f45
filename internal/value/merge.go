package value

import (
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/spanner-go/spanner-go-sdk/internal/xerrors"
)

// Merge joins a value split across two consecutive result chunks.
// Strings (and base64 bytes) concatenate. Lists (arrays and structs) join the
// last element of pending with the first element of next when both are
// mergeable, otherwise they are appended. An empty string continuing a list
// that ends in a number is dropped. Null, bool and number values are never
// chunked.
func Merge(pending, next *structpb.Value) (*structpb.Value, error) {
	merged, err := merge(pending, next)
	if err != nil {
		return nil, xerrors.WithStackTrace(err)
	}

	return merged, nil
}

func mergeable(v *structpb.Value) bool {
	switch v.GetKind().(type) {
	case *structpb.Value_StringValue, *structpb.Value_ListValue:
		return true
	default:
		return false
	}
}

func isNumber(v *structpb.Value) bool {
	_, ok := v.GetKind().(*structpb.Value_NumberValue)

	return ok
}

func isString(v *structpb.Value) bool {
	_, ok := v.GetKind().(*structpb.Value_StringValue)

	return ok
}

func merge(pending, next *structpb.Value) (*structpb.Value, error) {
	switch p := pending.GetKind().(type) {
	case *structpb.Value_StringValue:
		n, ok := next.GetKind().(*structpb.Value_StringValue)
		if !ok {
			return nil, &DecodeMismatchError{Value: next, Reason: "cannot merge string with non-string chunk"}
		}

		return structpb.NewStringValue(p.StringValue + n.StringValue), nil
	case *structpb.Value_ListValue:
		n, ok := next.GetKind().(*structpb.Value_ListValue)
		if !ok {
			return nil, &DecodeMismatchError{Value: next, Reason: "cannot merge list with non-list chunk"}
		}
		a, b := p.ListValue.GetValues(), n.ListValue.GetValues()
		values := make([]*structpb.Value, 0, len(a)+len(b))
		values = append(values, a...)
		if len(a) > 0 && len(b) > 0 {
			last, first := a[len(a)-1], b[0]
			switch {
			case isNumber(last) && first.GetStringValue() == "" && isString(first):
				// a float array split after a number continues with an empty string
				b = b[1:]
			case mergeable(last) && mergeable(first):
				joined, err := merge(last, first)
				if err != nil {
					return nil, err
				}
				values[len(values)-1] = joined
				b = b[1:]
			}
		}
		values = append(values, b...)

		return structpb.NewListValue(&structpb.ListValue{Values: values}), nil
	default:
		return nil, &DecodeMismatchError{Value: pending, Reason: "value kind cannot be chunked"}
	}
}
