package mutation

import (
	"cloud.google.com/go/spanner/apiv1/spannerpb"
	"github.com/samber/lo"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/spanner-go/spanner-go-sdk/internal/value"
	"github.com/spanner-go/spanner-go-sdk/internal/xerrors"
)

// Key is a primary or index key: one value per key column.
type Key []any

func (k Key) proto() (*structpb.ListValue, error) {
	values := make([]*structpb.Value, len(k))
	for i, part := range k {
		v, _, err := value.Encode(part)
		if err != nil {
			return nil, xerrors.WithStackTrace(err)
		}
		values[i] = v
	}

	return &structpb.ListValue{Values: values}, nil
}

type KeyRangeKind int

const (
	ClosedOpen KeyRangeKind = iota
	ClosedClosed
	OpenClosed
	OpenOpen
)

// KeyRange is a range of keys between Start and End. Kind selects whether each
// endpoint is included.
type KeyRange struct {
	Start, End Key
	Kind       KeyRangeKind
}

func (r KeyRange) startClosed() bool {
	return r.Kind == ClosedOpen || r.Kind == ClosedClosed
}

func (r KeyRange) endClosed() bool {
	return r.Kind == ClosedClosed || r.Kind == OpenClosed
}

func (r KeyRange) proto() (*spannerpb.KeyRange, error) {
	start, err := r.Start.proto()
	if err != nil {
		return nil, err
	}
	end, err := r.End.proto()
	if err != nil {
		return nil, err
	}

	kr := &spannerpb.KeyRange{}
	if r.startClosed() {
		kr.StartKeyType = &spannerpb.KeyRange_StartClosed{StartClosed: start}
	} else {
		kr.StartKeyType = &spannerpb.KeyRange_StartOpen{StartOpen: start}
	}
	if r.endClosed() {
		kr.EndKeyType = &spannerpb.KeyRange_EndClosed{EndClosed: end}
	} else {
		kr.EndKeyType = &spannerpb.KeyRange_EndOpen{EndOpen: end}
	}

	return kr, nil
}

// KeySet is a union of all keys, individual keys and key ranges.
type KeySet struct {
	All    bool
	Keys   []Key
	Ranges []KeyRange
}

func AllKeys() KeySet {
	return KeySet{All: true}
}

func Keys(keys ...Key) KeySet {
	return KeySet{Keys: keys}
}

func Ranges(ranges ...KeyRange) KeySet {
	return KeySet{Ranges: ranges}
}

// Union merges key sets.
func Union(sets ...KeySet) KeySet {
	return KeySet{
		All:    lo.SomeBy(sets, func(ks KeySet) bool { return ks.All }),
		Keys:   lo.FlatMap(sets, func(ks KeySet, _ int) []Key { return ks.Keys }),
		Ranges: lo.FlatMap(sets, func(ks KeySet, _ int) []KeyRange { return ks.Ranges }),
	}
}

func (ks KeySet) Proto() (*spannerpb.KeySet, error) {
	if ks.All {
		return &spannerpb.KeySet{All: true}, nil
	}

	pb := &spannerpb.KeySet{
		Keys:   make([]*structpb.ListValue, 0, len(ks.Keys)),
		Ranges: make([]*spannerpb.KeyRange, 0, len(ks.Ranges)),
	}
	for _, k := range ks.Keys {
		lv, err := k.proto()
		if err != nil {
			return nil, err
		}
		pb.Keys = append(pb.Keys, lv)
	}
	for _, r := range ks.Ranges {
		kr, err := r.proto()
		if err != nil {
			return nil, err
		}
		pb.Ranges = append(pb.Ranges, kr)
	}

	return pb, nil
}
