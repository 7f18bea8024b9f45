package value

import (
	"cloud.google.com/go/spanner/apiv1/spannerpb"
	"github.com/apstndb/spantype/typector"
	"google.golang.org/protobuf/proto"
)

var (
	TypeBool      = typector.CodeToSimpleType(spannerpb.TypeCode_BOOL)
	TypeInt64     = typector.CodeToSimpleType(spannerpb.TypeCode_INT64)
	TypeFloat64   = typector.CodeToSimpleType(spannerpb.TypeCode_FLOAT64)
	TypeFloat32   = typector.CodeToSimpleType(spannerpb.TypeCode_FLOAT32)
	TypeString    = typector.CodeToSimpleType(spannerpb.TypeCode_STRING)
	TypeBytes     = typector.CodeToSimpleType(spannerpb.TypeCode_BYTES)
	TypeDate      = typector.CodeToSimpleType(spannerpb.TypeCode_DATE)
	TypeTimestamp = typector.CodeToSimpleType(spannerpb.TypeCode_TIMESTAMP)
	TypeNumeric   = typector.CodeToSimpleType(spannerpb.TypeCode_NUMERIC)
	TypeJSON      = typector.CodeToSimpleType(spannerpb.TypeCode_JSON)
	TypeUUID      = typector.CodeToSimpleType(spannerpb.TypeCode_UUID)
	TypeInterval  = typector.CodeToSimpleType(spannerpb.TypeCode_INTERVAL)
)

func Array(elem *spannerpb.Type) *spannerpb.Type {
	return typector.ElemTypeToArrayType(elem)
}

func Proto(fqn string) *spannerpb.Type {
	return typector.FQNToProtoType(fqn)
}

func Enum(fqn string) *spannerpb.Type {
	return typector.FQNToEnumType(fqn)
}

func StructType(names []string, types []*spannerpb.Type) *spannerpb.Type {
	fields := make([]*spannerpb.StructType_Field, len(names))
	for i := range names {
		fields[i] = typector.NameTypeToStructTypeField(names[i], types[i])
	}

	return &spannerpb.Type{
		Code:       spannerpb.TypeCode_STRUCT,
		StructType: &spannerpb.StructType{Fields: fields},
	}
}

func typesEqual(a, b *spannerpb.Type) bool {
	return proto.Equal(a, b)
}
