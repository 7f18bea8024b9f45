package log

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type stringerTest string

func (s stringerTest) String() string {
	return string(s)
}

func TestField_String(t *testing.T) {
	for _, tt := range []struct {
		f     Field
		want  string
		panic bool
	}{
		{f: Int("int", 1), want: "1"},
		{f: Int64("int64", 9223372036854775807), want: "9223372036854775807"},
		{f: Uint64("uint64", 18446744073709551615), want: "18446744073709551615"},
		{f: String("string", "test"), want: "test"},
		{f: Bool("bool", true), want: "true"},
		{f: Duration("duration", time.Hour), want: time.Hour.String()},
		{f: Strings("strings", []string{"Abc", "Def"}), want: "[Abc Def]"},
		{f: NamedError("named_error", errors.New("named error")), want: "named error"},
		{f: Error(nil), want: "<nil>"},
		{f: Any("any_nil", nil), want: "<nil>"},
		{f: Any("any_int", 1), want: "1"},
		{f: Stringer("stringer", stringerTest("stringerTest")), want: "stringerTest"},
		{f: Field{ftype: InvalidType, key: "invalid"}, panic: true},
	} {
		t.Run(tt.f.key, func(t *testing.T) {
			if tt.panic {
				require.Panics(t, func() { _ = tt.f.String() })

				return
			}
			require.Equal(t, tt.want, tt.f.String())
		})
	}
}
