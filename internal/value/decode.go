package value

import (
	"encoding/base64"
	"math"
	"math/big"
	"reflect"
	"strconv"
	"time"

	"cloud.google.com/go/civil"
	"cloud.google.com/go/spanner/apiv1/spannerpb"
	"github.com/google/uuid"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/spanner-go/spanner-go-sdk/internal/xerrors"
)

// Decode converts a wire value of type t into its default host representation:
// nil for NULL, bool, int64 (INT64 and ENUM), float64, float32, string, []byte
// (BYTES and PROTO), time.Time, civil.Date, *big.Rat, JSON, uuid.UUID, Interval,
// []any for ARRAY and Struct for STRUCT.
func Decode(v *structpb.Value, t *spannerpb.Type) (any, error) {
	res, err := decode(v, t)
	if err != nil {
		return nil, xerrors.WithStackTrace(err)
	}

	return res, nil
}

func isNull(v *structpb.Value) bool {
	_, ok := v.GetKind().(*structpb.Value_NullValue)

	return ok || v == nil
}

func stringOf(v *structpb.Value, t *spannerpb.Type) (string, error) {
	s, ok := v.GetKind().(*structpb.Value_StringValue)
	if !ok {
		return "", mismatch(t, v, "expected string kind")
	}

	return s.StringValue, nil
}

func decodeFloat(v *structpb.Value, t *spannerpb.Type) (float64, error) {
	switch x := v.GetKind().(type) {
	case *structpb.Value_NumberValue:
		return x.NumberValue, nil
	case *structpb.Value_StringValue:
		switch x.StringValue {
		case "NaN":
			return math.NaN(), nil
		case "Infinity":
			return math.Inf(1), nil
		case "-Infinity":
			return math.Inf(-1), nil
		}
	}

	return 0, mismatch(t, v, "expected number or non-finite marker")
}

//nolint:funlen,gocyclo
func decode(v *structpb.Value, t *spannerpb.Type) (any, error) {
	if t == nil {
		return nil, &UnknownTypeError{Value: v}
	}
	if isNull(v) {
		return nil, nil //nolint:nilnil
	}

	switch t.GetCode() { //nolint:exhaustive
	case spannerpb.TypeCode_BOOL:
		b, ok := v.GetKind().(*structpb.Value_BoolValue)
		if !ok {
			return nil, mismatch(t, v, "expected bool kind")
		}

		return b.BoolValue, nil
	case spannerpb.TypeCode_INT64, spannerpb.TypeCode_ENUM:
		s, err := stringOf(v, t)
		if err != nil {
			return nil, err
		}
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, mismatch(t, v, "%v", err)
		}

		return n, nil
	case spannerpb.TypeCode_FLOAT64:
		return decodeFloat(v, t)
	case spannerpb.TypeCode_FLOAT32:
		f, err := decodeFloat(v, t)
		if err != nil {
			return nil, err
		}

		return float32(f), nil
	case spannerpb.TypeCode_STRING:
		return stringOf(v, t)
	case spannerpb.TypeCode_BYTES, spannerpb.TypeCode_PROTO:
		s, err := stringOf(v, t)
		if err != nil {
			return nil, err
		}
		b, err := base64.StdEncoding.DecodeString(s)
		if err != nil {
			return nil, mismatch(t, v, "%v", err)
		}

		return b, nil
	case spannerpb.TypeCode_TIMESTAMP:
		s, err := stringOf(v, t)
		if err != nil {
			return nil, err
		}
		ts, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return nil, mismatch(t, v, "%v", err)
		}

		return ts.UTC(), nil
	case spannerpb.TypeCode_DATE:
		s, err := stringOf(v, t)
		if err != nil {
			return nil, err
		}
		d, err := civil.ParseDate(s)
		if err != nil {
			return nil, mismatch(t, v, "%v", err)
		}

		return d, nil
	case spannerpb.TypeCode_NUMERIC:
		s, err := stringOf(v, t)
		if err != nil {
			return nil, err
		}
		r, ok := ParseNumeric(s)
		if !ok {
			return nil, mismatch(t, v, "invalid numeric literal")
		}

		return r, nil
	case spannerpb.TypeCode_JSON:
		s, err := stringOf(v, t)
		if err != nil {
			return nil, err
		}
		doc, err := decodeJSON(s)
		if err != nil {
			return nil, mismatch(t, v, "%v", err)
		}

		return JSON{Value: doc}, nil
	case spannerpb.TypeCode_UUID:
		s, err := stringOf(v, t)
		if err != nil {
			return nil, err
		}
		u, err := uuid.Parse(s)
		if err != nil {
			return nil, mismatch(t, v, "%v", err)
		}

		return u, nil
	case spannerpb.TypeCode_INTERVAL:
		s, err := stringOf(v, t)
		if err != nil {
			return nil, err
		}
		iv, err := ParseInterval(s)
		if err != nil {
			return nil, mismatch(t, v, "%v", err)
		}

		return iv, nil
	case spannerpb.TypeCode_ARRAY:
		list, ok := v.GetKind().(*structpb.Value_ListValue)
		if !ok {
			return nil, mismatch(t, v, "expected list kind")
		}
		res := make([]any, len(list.ListValue.GetValues()))
		for i, e := range list.ListValue.GetValues() {
			d, err := decode(e, t.GetArrayElementType())
			if err != nil {
				return nil, err
			}
			res[i] = d
		}

		return res, nil
	case spannerpb.TypeCode_STRUCT:
		list, ok := v.GetKind().(*structpb.Value_ListValue)
		if !ok {
			return nil, mismatch(t, v, "expected list kind")
		}
		fields := t.GetStructType().GetFields()
		if len(fields) != len(list.ListValue.GetValues()) {
			return nil, mismatch(t, v, "struct has %d fields, value has %d",
				len(fields), len(list.ListValue.GetValues()),
			)
		}
		s := Struct{Fields: make([]StructField, len(fields))}
		for i, f := range fields {
			d, err := decode(list.ListValue.GetValues()[i], f.GetType())
			if err != nil {
				return nil, err
			}
			s.Fields[i] = StructField{Name: f.GetName(), Value: d}
		}

		return s, nil
	}

	return nil, &UnknownTypeError{Type: t}
}

// DecodeInto decodes v into the value pointed to by dst.
// NULL sets the pointee to its zero value.
func DecodeInto(v *structpb.Value, t *spannerpb.Type, dst any) error {
	if m, ok := dst.(proto.Message); ok && t.GetCode() == spannerpb.TypeCode_PROTO {
		if isNull(v) {
			proto.Reset(m)

			return nil
		}
		b, err := decode(v, t)
		if err != nil {
			return xerrors.WithStackTrace(err)
		}
		if err := proto.Unmarshal(b.([]byte), m); err != nil {
			return xerrors.WithStackTrace(mismatch(t, v, "%v", err))
		}

		return nil
	}

	rv := reflect.ValueOf(dst)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return xerrors.WithStackTrace(&UnknownTypeError{Value: dst})
	}
	if p, ok := dst.(*any); ok {
		d, err := decode(v, t)
		if err != nil {
			return xerrors.WithStackTrace(err)
		}
		*p = d

		return nil
	}

	src, err := decode(v, t)
	if err != nil {
		return xerrors.WithStackTrace(err)
	}
	if err := assign(rv.Elem(), src, t, v); err != nil {
		return xerrors.WithStackTrace(err)
	}

	return nil
}

// As decodes v into a value of type T.
func As[T any](v *structpb.Value, t *spannerpb.Type) (T, error) {
	var dst T
	if err := DecodeInto(v, t, &dst); err != nil {
		return dst, err
	}

	return dst, nil
}

var (
	protoMessageType = reflect.TypeOf((*proto.Message)(nil)).Elem()
	ratType          = reflect.TypeOf(big.Rat{})
)

func isNumericKind(k reflect.Kind) bool {
	switch k { //nolint:exhaustive
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	default:
		return false
	}
}

//nolint:gocyclo
func assign(dst reflect.Value, src any, t *spannerpb.Type, v *structpb.Value) error {
	if src == nil {
		dst.Set(reflect.Zero(dst.Type()))

		return nil
	}

	sv := reflect.ValueOf(src)
	switch {
	case sv.Type().AssignableTo(dst.Type()):
		dst.Set(sv)

		return nil
	case dst.Type().Implements(protoMessageType) && dst.Kind() == reflect.Pointer:
		b, ok := src.([]byte)
		if !ok {
			return mismatch(t, v, "cannot decode %T into %s", src, dst.Type())
		}
		m := reflect.New(dst.Type().Elem())
		if err := proto.Unmarshal(b, m.Interface().(proto.Message)); err != nil {
			return mismatch(t, v, "%v", err)
		}
		dst.Set(m)

		return nil
	case dst.Kind() == reflect.Pointer:
		p := reflect.New(dst.Type().Elem())
		if err := assign(p.Elem(), src, t, v); err != nil {
			return err
		}
		dst.Set(p)

		return nil
	case dst.Type() == ratType && sv.Type() == reflect.TypeOf((*big.Rat)(nil)):
		dst.Set(sv.Elem())

		return nil
	case dst.Kind() == reflect.Slice && sv.Kind() == reflect.Slice && sv.Type() != bytesType:
		out := reflect.MakeSlice(dst.Type(), sv.Len(), sv.Len())
		for i := 0; i < sv.Len(); i++ {
			if err := assign(out.Index(i), sv.Index(i).Interface(), t.GetArrayElementType(), v); err != nil {
				return err
			}
		}
		dst.Set(out)

		return nil
	case isNumericKind(dst.Kind()) && isNumericKind(sv.Kind()):
		converted := sv.Convert(dst.Type())
		if !reflect.DeepEqual(converted.Convert(sv.Type()).Interface(), src) {
			if f, ok := src.(float64); !ok || !math.IsNaN(f) {
				return mismatch(t, v, "value %v overflows %s", src, dst.Type())
			}
		}
		dst.Set(converted)

		return nil
	case dst.Kind() == reflect.String && sv.Kind() == reflect.String:
		dst.SetString(sv.String())

		return nil
	}

	return mismatch(t, v, "cannot decode %T into %s", src, dst.Type())
}
