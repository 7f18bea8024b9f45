package tx

import (
	"fmt"
	"time"

	"cloud.google.com/go/spanner/apiv1/spannerpb"
	"google.golang.org/protobuf/types/known/durationpb"
	"google.golang.org/protobuf/types/known/timestamppb"
)

type boundMode uint8

const (
	boundStrong boundMode = iota
	boundReadTimestamp
	boundMinReadTimestamp
	boundMaxStaleness
	boundExactStaleness
)

// TimestampBound selects the timestamp a read-only transaction reads at.
type TimestampBound struct {
	mode boundMode
	d    time.Duration
	t    time.Time
}

// StrongRead reads the effects of all transactions committed before the read started.
func StrongRead() TimestampBound {
	return TimestampBound{mode: boundStrong}
}

func ReadTimestamp(t time.Time) TimestampBound {
	return TimestampBound{mode: boundReadTimestamp, t: t}
}

// MinReadTimestamp is allowed for single-use snapshots only.
func MinReadTimestamp(t time.Time) TimestampBound {
	return TimestampBound{mode: boundMinReadTimestamp, t: t}
}

// MaxStaleness is allowed for single-use snapshots only.
func MaxStaleness(d time.Duration) TimestampBound {
	return TimestampBound{mode: boundMaxStaleness, d: d}
}

func ExactStaleness(d time.Duration) TimestampBound {
	return TimestampBound{mode: boundExactStaleness, d: d}
}

// SingleUseOnly reports whether the bound is rejected by multi-use snapshots.
func (b TimestampBound) SingleUseOnly() bool {
	return b.mode == boundMinReadTimestamp || b.mode == boundMaxStaleness
}

func (b TimestampBound) String() string {
	switch b.mode {
	case boundReadTimestamp:
		return fmt.Sprintf("(read timestamp: %s)", b.t.Format(time.RFC3339Nano))
	case boundMinReadTimestamp:
		return fmt.Sprintf("(min read timestamp: %s)", b.t.Format(time.RFC3339Nano))
	case boundMaxStaleness:
		return fmt.Sprintf("(max staleness: %s)", b.d)
	case boundExactStaleness:
		return fmt.Sprintf("(exact staleness: %s)", b.d)
	default:
		return "(strong)"
	}
}

func (b TimestampBound) options() *spannerpb.TransactionOptions {
	ro := &spannerpb.TransactionOptions_ReadOnly{ReturnReadTimestamp: true}
	switch b.mode {
	case boundReadTimestamp:
		ro.TimestampBound = &spannerpb.TransactionOptions_ReadOnly_ReadTimestamp{
			ReadTimestamp: timestamppb.New(b.t),
		}
	case boundMinReadTimestamp:
		ro.TimestampBound = &spannerpb.TransactionOptions_ReadOnly_MinReadTimestamp{
			MinReadTimestamp: timestamppb.New(b.t),
		}
	case boundMaxStaleness:
		ro.TimestampBound = &spannerpb.TransactionOptions_ReadOnly_MaxStaleness{
			MaxStaleness: durationpb.New(b.d),
		}
	case boundExactStaleness:
		ro.TimestampBound = &spannerpb.TransactionOptions_ReadOnly_ExactStaleness{
			ExactStaleness: durationpb.New(b.d),
		}
	default:
		ro.TimestampBound = &spannerpb.TransactionOptions_ReadOnly_Strong{Strong: true}
	}

	return &spannerpb.TransactionOptions{
		Mode: &spannerpb.TransactionOptions_ReadOnly_{ReadOnly: ro},
	}
}
