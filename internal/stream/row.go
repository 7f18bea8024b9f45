package stream

import (
	"fmt"

	"cloud.google.com/go/spanner/apiv1/spannerpb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/spanner-go/spanner-go-sdk/internal/value"
	"github.com/spanner-go/spanner-go-sdk/internal/xerrors"
)

// Row is one row of a result set.
type Row struct {
	fields []*spannerpb.StructType_Field
	values []*structpb.Value
}

// NewRow builds a row of wire values described by fields.
func NewRow(fields []*spannerpb.StructType_Field, values []*structpb.Value) (*Row, error) {
	if len(fields) != len(values) {
		return nil, xerrors.WithStackTrace(fmt.Errorf(
			"row has %d columns but %d values", len(fields), len(values),
		))
	}

	return &Row{fields: fields, values: values}, nil
}

func (r *Row) Size() int {
	return len(r.values)
}

func (r *Row) ColumnName(i int) string {
	if i < 0 || i >= len(r.fields) {
		return ""
	}

	return r.fields[i].GetName()
}

func (r *Row) ColumnNames() []string {
	names := make([]string, len(r.fields))
	for i, f := range r.fields {
		names[i] = f.GetName()
	}

	return names
}

func (r *Row) ColumnType(i int) *spannerpb.Type {
	if i < 0 || i >= len(r.fields) {
		return nil
	}

	return r.fields[i].GetType()
}

// RawValue returns the wire value of column i.
func (r *Row) RawValue(i int) *structpb.Value {
	if i < 0 || i >= len(r.values) {
		return nil
	}

	return r.values[i]
}

func (r *Row) ColumnIndex(name string) (int, error) {
	found := -1
	for i, f := range r.fields {
		if f.GetName() != name {
			continue
		}
		if found >= 0 {
			return -1, xerrors.WithStackTrace(fmt.Errorf("ambiguous column name %q", name))
		}
		found = i
	}
	if found < 0 {
		return -1, xerrors.WithStackTrace(fmt.Errorf("column %q not found", name))
	}

	return found, nil
}

// Column decodes column i into dst, which must be a pointer.
func (r *Row) Column(i int, dst any) error {
	if i < 0 || i >= len(r.values) {
		return xerrors.WithStackTrace(fmt.Errorf("column index %d out of range [0,%d)", i, len(r.values)))
	}

	return value.DecodeInto(r.values[i], r.fields[i].GetType(), dst)
}

func (r *Row) ColumnByName(name string, dst any) error {
	i, err := r.ColumnIndex(name)
	if err != nil {
		return err
	}

	return r.Column(i, dst)
}

// Columns decodes all columns in order. A nil destination skips the column.
func (r *Row) Columns(dst ...any) error {
	if len(dst) != len(r.values) {
		return xerrors.WithStackTrace(fmt.Errorf("row has %d columns, got %d destinations", len(r.values), len(dst)))
	}
	for i, d := range dst {
		if d == nil {
			continue
		}
		if err := r.Column(i, d); err != nil {
			return err
		}
	}

	return nil
}

// Values decodes all columns into their default host representation.
func (r *Row) Values() ([]any, error) {
	res := make([]any, len(r.values))
	for i := range r.values {
		v, err := value.Decode(r.values[i], r.fields[i].GetType())
		if err != nil {
			return nil, err
		}
		res[i] = v
	}

	return res, nil
}
