package value

import (
	"encoding/base64"
	"math"
	"math/big"
	"reflect"
	"strconv"
	"time"
	"unicode/utf8"

	"cloud.google.com/go/civil"
	"cloud.google.com/go/spanner/apiv1/spannerpb"
	"github.com/go-json-experiment/json"
	"github.com/google/uuid"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/spanner-go/spanner-go-sdk/internal/xerrors"
)

const (
	timestampMicros = "2006-01-02T15:04:05.000000Z"
	timestampNanos  = "2006-01-02T15:04:05.000000000Z"
)

// Encoder is implemented by host types that encode themselves.
type Encoder interface {
	EncodeSpanner() (*structpb.Value, *spannerpb.Type, error)
}

var (
	bytesType   = reflect.TypeOf([]byte(nil))
	encoderType = reflect.TypeOf((*Encoder)(nil)).Elem()
)

// Encode converts a host value into its wire representation and type.
// A nil value encodes as an untyped NULL.
func Encode(v any) (*structpb.Value, *spannerpb.Type, error) {
	val, t, err := encode(v)
	if err != nil {
		return nil, nil, xerrors.WithStackTrace(err)
	}

	return val, t, nil
}

func nullValue() *structpb.Value {
	return structpb.NewNullValue()
}

func stringValue(s string) *structpb.Value {
	return structpb.NewStringValue(s)
}

func encodeFloat(f float64) *structpb.Value {
	switch {
	case math.IsNaN(f):
		return stringValue("NaN")
	case math.IsInf(f, 1):
		return stringValue("Infinity")
	case math.IsInf(f, -1):
		return stringValue("-Infinity")
	default:
		return structpb.NewNumberValue(f)
	}
}

// FormatTimestamp renders t in UTC with microsecond precision, or nanosecond
// precision when the sub-microsecond part is not zero.
func FormatTimestamp(t time.Time) string {
	t = t.UTC()
	if t.Nanosecond()%1000 != 0 {
		return t.Format(timestampNanos)
	}

	return t.Format(timestampMicros)
}

//nolint:funlen,gocyclo
func encode(v any) (*structpb.Value, *spannerpb.Type, error) {
	switch x := v.(type) {
	case nil:
		return nullValue(), nil, nil
	case Null:
		return nullValue(), x.Type, nil
	case Encoder:
		return x.EncodeSpanner()
	case *structpb.Value:
		return x, nil, nil
	case bool:
		return structpb.NewBoolValue(x), TypeBool, nil
	case int:
		return stringValue(strconv.FormatInt(int64(x), 10)), TypeInt64, nil
	case int8:
		return stringValue(strconv.FormatInt(int64(x), 10)), TypeInt64, nil
	case int16:
		return stringValue(strconv.FormatInt(int64(x), 10)), TypeInt64, nil
	case int32:
		return stringValue(strconv.FormatInt(int64(x), 10)), TypeInt64, nil
	case int64:
		return stringValue(strconv.FormatInt(x, 10)), TypeInt64, nil
	case uint:
		return encodeUint(uint64(x))
	case uint8:
		return encodeUint(uint64(x))
	case uint16:
		return encodeUint(uint64(x))
	case uint32:
		return encodeUint(uint64(x))
	case uint64:
		return encodeUint(x)
	case float64:
		return encodeFloat(x), TypeFloat64, nil
	case float32:
		return encodeFloat(float64(x)), TypeFloat32, nil
	case string:
		if !utf8.ValidString(x) {
			return nil, nil, &InvalidValueError{Reason: ReasonUTF8, Value: x}
		}

		return stringValue(x), TypeString, nil
	case []byte:
		if x == nil {
			return nullValue(), TypeBytes, nil
		}

		return stringValue(base64.StdEncoding.EncodeToString(x)), TypeBytes, nil
	case time.Time:
		return stringValue(FormatTimestamp(x)), TypeTimestamp, nil
	case commitTimestamp:
		return stringValue(commitTimestampPlaceholder), TypeTimestamp, nil
	case civil.Date:
		return stringValue(x.String()), TypeDate, nil
	case *big.Rat:
		if x == nil {
			return nullValue(), TypeNumeric, nil
		}
		s, err := NumericString(x)
		if err != nil {
			return nil, nil, err
		}

		return stringValue(s), TypeNumeric, nil
	case big.Rat:
		return encode(&x)
	case JSON:
		if x.Value == nil {
			return nullValue(), TypeJSON, nil
		}
		b, err := json.Marshal(x.Value, json.Deterministic(true))
		if err != nil {
			return nil, nil, &InvalidValueError{Reason: err.Error(), Value: x.Value}
		}

		return stringValue(string(b)), TypeJSON, nil
	case uuid.UUID:
		return stringValue(x.String()), TypeUUID, nil
	case Interval:
		return stringValue(x.String()), TypeInterval, nil
	case Struct:
		return encodeStruct(x)
	case protoreflect.Enum:
		t := Enum(string(x.Descriptor().FullName()))

		return stringValue(strconv.FormatInt(int64(x.Number()), 10)), t, nil
	case proto.Message:
		t := Proto(string(x.ProtoReflect().Descriptor().FullName()))
		if !x.ProtoReflect().IsValid() {
			return nullValue(), t, nil
		}
		b, err := proto.Marshal(x)
		if err != nil {
			return nil, nil, &InvalidValueError{Reason: err.Error(), Value: x}
		}

		return stringValue(base64.StdEncoding.EncodeToString(b)), t, nil
	}

	return encodeReflect(reflect.ValueOf(v))
}

func encodeUint(x uint64) (*structpb.Value, *spannerpb.Type, error) {
	if x > math.MaxInt64 {
		return nil, nil, &InvalidValueError{Reason: ReasonRange, Value: x}
	}

	return stringValue(strconv.FormatUint(x, 10)), TypeInt64, nil
}

func encodeStruct(s Struct) (*structpb.Value, *spannerpb.Type, error) {
	var (
		values = make([]*structpb.Value, len(s.Fields))
		names  = make([]string, len(s.Fields))
		types  = make([]*spannerpb.Type, len(s.Fields))
	)
	for i, f := range s.Fields {
		v, t, err := encode(f.Value)
		if err != nil {
			return nil, nil, err
		}
		if t == nil {
			return nil, nil, &UnknownTypeError{Value: f.Value}
		}
		values[i], names[i], types[i] = v, f.Name, t
	}

	return structpb.NewListValue(&structpb.ListValue{Values: values}), StructType(names, types), nil
}

func encodeReflect(rv reflect.Value) (*structpb.Value, *spannerpb.Type, error) {
	if !rv.IsValid() {
		return nullValue(), nil, nil
	}

	switch rv.Kind() { //nolint:exhaustive
	case reflect.Pointer:
		if rv.IsNil() {
			t, err := typeOf(rv.Type().Elem())
			if err != nil {
				return nil, nil, err
			}

			return nullValue(), t, nil
		}

		return encode(rv.Elem().Interface())
	case reflect.Slice, reflect.Array:
		if rv.Type() == bytesType {
			return encode(rv.Bytes())
		}
		elemType, typeErr := typeOf(rv.Type().Elem())
		if rv.Kind() == reflect.Slice && rv.IsNil() {
			if typeErr != nil {
				return nil, nil, typeErr
			}

			return nullValue(), Array(elemType), nil
		}
		values := make([]*structpb.Value, rv.Len())
		for i := range values {
			v, t, err := encode(rv.Index(i).Interface())
			if err != nil {
				return nil, nil, err
			}
			if elemType == nil {
				elemType = t
			}
			if t != nil && !typesEqual(t, elemType) {
				return nil, nil, &UnknownTypeError{Value: rv.Interface()}
			}
			values[i] = v
		}
		if elemType == nil {
			return nil, nil, typeErr
		}

		return structpb.NewListValue(&structpb.ListValue{Values: values}), Array(elemType), nil
	}

	// named types over supported kinds, e.g. type Name string
	switch rv.Kind() { //nolint:exhaustive
	case reflect.Bool:
		return encode(rv.Bool())
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return encode(rv.Int())
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return encode(rv.Uint())
	case reflect.Float32:
		return encode(float32(rv.Float()))
	case reflect.Float64:
		return encode(rv.Float())
	case reflect.String:
		return encode(rv.String())
	}

	return nil, nil, &UnknownTypeError{Value: rv.Interface()}
}

// typeOf derives the wire type of a Go type from its zero value.
func typeOf(t reflect.Type) (*spannerpb.Type, error) {
	if t.Kind() == reflect.Pointer && !t.Implements(reflect.TypeOf((*proto.Message)(nil)).Elem()) {
		return typeOf(t.Elem())
	}
	if t.Kind() == reflect.Interface || t.Implements(encoderType) {
		return nil, &UnknownTypeError{Value: reflect.Zero(t).Interface()}
	}

	var zero any
	if t.Kind() == reflect.Pointer {
		zero = reflect.New(t.Elem()).Interface()
	} else {
		zero = reflect.Zero(t).Interface()
	}
	switch zero.(type) {
	case JSON:
		return TypeJSON, nil
	case Struct:
		return nil, &UnknownTypeError{Value: zero}
	}
	if t.Kind() == reflect.Slice && t != bytesType {
		elem, err := typeOf(t.Elem())
		if err != nil {
			return nil, err
		}

		return Array(elem), nil
	}

	_, wt, err := encode(zero)
	if err != nil {
		return nil, err
	}
	if wt == nil {
		return nil, &UnknownTypeError{Value: zero}
	}

	return wt, nil
}
