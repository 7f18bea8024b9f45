package mutation

import (
	"fmt"
	"slices"

	"cloud.google.com/go/spanner/apiv1/spannerpb"
	"github.com/samber/lo"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/spanner-go/spanner-go-sdk/internal/value"
	"github.com/spanner-go/spanner-go-sdk/internal/xerrors"
)

type Op int

const (
	OpInsert Op = iota
	OpUpdate
	OpInsertOrUpdate
	OpReplace
	OpDelete
)

func (op Op) String() string {
	switch op {
	case OpInsert:
		return "insert"
	case OpUpdate:
		return "update"
	case OpInsertOrUpdate:
		return "insert_or_update"
	case OpReplace:
		return "replace"
	case OpDelete:
		return "delete"
	default:
		return fmt.Sprintf("Op(%d)", int(op))
	}
}

// Mutation is a buffered write. It has no effect until committed.
type Mutation struct {
	op      Op
	table   string
	columns []string
	rows    [][]any
	keySet  KeySet
}

func write(op Op, table string, columns []string, rows ...[]any) *Mutation {
	return &Mutation{
		op:      op,
		table:   table,
		columns: columns,
		rows:    rows,
	}
}

func Insert(table string, columns []string, rows ...[]any) *Mutation {
	return write(OpInsert, table, columns, rows...)
}

func Update(table string, columns []string, rows ...[]any) *Mutation {
	return write(OpUpdate, table, columns, rows...)
}

func InsertOrUpdate(table string, columns []string, rows ...[]any) *Mutation {
	return write(OpInsertOrUpdate, table, columns, rows...)
}

func Replace(table string, columns []string, rows ...[]any) *Mutation {
	return write(OpReplace, table, columns, rows...)
}

func Delete(table string, keys KeySet) *Mutation {
	return &Mutation{
		op:     OpDelete,
		table:  table,
		keySet: keys,
	}
}

// FromMap builds a single-row write mutation with columns in lexical order.
func FromMap(op Op, table string, row map[string]any) *Mutation {
	columns := lo.Keys(row)
	slices.Sort(columns)

	return write(op, table, columns, lo.Map(columns, func(c string, _ int) any { return row[c] }))
}

func (m *Mutation) Op() Op {
	return m.op
}

func (m *Mutation) Table() string {
	return m.table
}

func (m *Mutation) Proto() (*spannerpb.Mutation, error) {
	if m.op == OpDelete {
		ks, err := m.keySet.Proto()
		if err != nil {
			return nil, xerrors.WithStackTrace(err)
		}

		return &spannerpb.Mutation{
			Operation: &spannerpb.Mutation_Delete_{
				Delete: &spannerpb.Mutation_Delete{Table: m.table, KeySet: ks},
			},
		}, nil
	}

	w := &spannerpb.Mutation_Write{
		Table:   m.table,
		Columns: m.columns,
		Values:  make([]*structpb.ListValue, 0, len(m.rows)),
	}
	for _, row := range m.rows {
		if len(row) != len(m.columns) {
			return nil, xerrors.WithStackTrace(xerrors.InvalidArgument(
				"mutation on %q has %d columns but row has %d values", m.table, len(m.columns), len(row),
			))
		}
		values := make([]*structpb.Value, len(row))
		for i, v := range row {
			enc, _, err := value.Encode(v)
			if err != nil {
				return nil, xerrors.WithStackTrace(err)
			}
			values[i] = enc
		}
		w.Values = append(w.Values, &structpb.ListValue{Values: values})
	}

	pb := &spannerpb.Mutation{}
	switch m.op { //nolint:exhaustive
	case OpInsert:
		pb.Operation = &spannerpb.Mutation_Insert{Insert: w}
	case OpUpdate:
		pb.Operation = &spannerpb.Mutation_Update{Update: w}
	case OpInsertOrUpdate:
		pb.Operation = &spannerpb.Mutation_InsertOrUpdate{InsertOrUpdate: w}
	case OpReplace:
		pb.Operation = &spannerpb.Mutation_Replace{Replace: w}
	default:
		return nil, xerrors.WithStackTrace(fmt.Errorf("unknown mutation op %v", m.op))
	}

	return pb, nil
}

// ToProto converts mutations in order.
func ToProto(ms []*Mutation) ([]*spannerpb.Mutation, error) {
	pbs := make([]*spannerpb.Mutation, 0, len(ms))
	for _, m := range ms {
		pb, err := m.Proto()
		if err != nil {
			return nil, err
		}
		pbs = append(pbs, pb)
	}

	return pbs, nil
}
