package value

import (
	"cloud.google.com/go/spanner/apiv1/spannerpb"
)

// JSON wraps any value serializable as a JSON document.
type JSON struct {
	Value any
}

// Null is a NULL of a known type.
type Null struct {
	Type *spannerpb.Type
}

type StructField struct {
	Name  string
	Value any
}

// Struct is an ordered heterogeneous tuple with optionally named fields.
type Struct struct {
	Fields []StructField
}

func (s Struct) Len() int {
	return len(s.Fields)
}

// Field returns the value of the first field with the name.
func (s Struct) Field(name string) (any, bool) {
	for _, f := range s.Fields {
		if f.Name == name {
			return f.Value, true
		}
	}

	return nil, false
}

type commitTimestamp struct{}

// CommitTimestamp is replaced by the server with the commit timestamp of the transaction.
var CommitTimestamp = commitTimestamp{}

const commitTimestampPlaceholder = "spanner.commit_timestamp()"
