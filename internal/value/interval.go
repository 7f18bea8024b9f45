package value

import (
	"fmt"
	"math/big"
	"strconv"
	"strings"
)

const monthsPerYear = 12

var (
	nanosPerSecond = big.NewInt(1_000_000_000)
	nanosPerMinute = big.NewInt(60 * 1_000_000_000)
	nanosPerHour   = big.NewInt(60 * 60 * 1_000_000_000)
)

// Interval is a duration made of calendar months, days and nanoseconds.
// Components are independent and may have different signs.
type Interval struct {
	Months int32
	Days   int32
	Nanos  *big.Int
}

func (i Interval) nanos() *big.Int {
	if i.Nanos == nil {
		return new(big.Int)
	}

	return i.Nanos
}

func (i Interval) Equal(o Interval) bool {
	return i.Months == o.Months && i.Days == o.Days && i.nanos().Cmp(o.nanos()) == 0
}

// String formats the interval as ISO-8601 duration, e.g. P1Y2M3DT4H5M6.5S.
func (i Interval) String() string {
	var b strings.Builder
	b.WriteByte('P')

	years, months := i.Months/monthsPerYear, i.Months%monthsPerYear
	for _, c := range []struct {
		n    int32
		unit byte
	}{
		{years, 'Y'},
		{months, 'M'},
		{i.Days, 'D'},
	} {
		if c.n != 0 {
			b.WriteString(strconv.Itoa(int(c.n)))
			b.WriteByte(c.unit)
		}
	}

	n := i.nanos()
	if n.Sign() != 0 {
		b.WriteByte('T')
		hours, rem := new(big.Int).QuoRem(n, nanosPerHour, new(big.Int))
		minutes, rem := new(big.Int).QuoRem(rem, nanosPerMinute, new(big.Int))
		seconds, frac := new(big.Int).QuoRem(rem, nanosPerSecond, new(big.Int))

		if hours.Sign() != 0 {
			b.WriteString(hours.String())
			b.WriteByte('H')
		}
		if minutes.Sign() != 0 {
			b.WriteString(minutes.String())
			b.WriteByte('M')
		}
		if seconds.Sign() != 0 || frac.Sign() != 0 {
			if seconds.Sign() == 0 && frac.Sign() < 0 {
				b.WriteByte('-')
			}
			b.WriteString(seconds.String())
			if frac.Sign() != 0 {
				f := fmt.Sprintf("%09d", new(big.Int).Abs(frac).Int64())
				b.WriteByte('.')
				b.WriteString(strings.TrimRight(f, "0"))
			}
			b.WriteByte('S')
		}
	}

	if b.Len() == 1 {
		return "P0Y"
	}

	return b.String()
}

// ParseInterval parses an ISO-8601 duration as produced by Interval.String.
func ParseInterval(s string) (Interval, error) {
	var (
		iv      = Interval{Nanos: new(big.Int)}
		rest    = s
		inTime  bool
		invalid = func() (Interval, error) {
			return Interval{}, &InvalidValueError{Reason: "interval", Value: s}
		}
	)
	if !strings.HasPrefix(rest, "P") {
		return invalid()
	}
	rest = rest[1:]
	if rest == "" {
		return invalid()
	}

	for rest != "" {
		if rest[0] == 'T' {
			if inTime {
				return invalid()
			}
			inTime = true
			rest = rest[1:]

			continue
		}
		end := strings.IndexAny(rest, "YMDHS")
		if end <= 0 {
			return invalid()
		}
		num, unit := rest[:end], rest[end]
		rest = rest[end+1:]

		if unit == 'S' {
			if !inTime {
				return invalid()
			}
			nanos, err := parseSeconds(num)
			if err != nil {
				return invalid()
			}
			iv.Nanos.Add(iv.Nanos, nanos)

			continue
		}

		n, err := strconv.ParseInt(num, 10, 64)
		if err != nil {
			return invalid()
		}
		switch {
		case !inTime && unit == 'Y':
			iv.Months += int32(n * monthsPerYear)
		case !inTime && unit == 'M':
			iv.Months += int32(n)
		case !inTime && unit == 'D':
			iv.Days += int32(n)
		case inTime && unit == 'H':
			iv.Nanos.Add(iv.Nanos, new(big.Int).Mul(big.NewInt(n), nanosPerHour))
		case inTime && unit == 'M':
			iv.Nanos.Add(iv.Nanos, new(big.Int).Mul(big.NewInt(n), nanosPerMinute))
		default:
			return invalid()
		}
	}

	return iv, nil
}

func parseSeconds(s string) (*big.Int, error) {
	neg := strings.HasPrefix(s, "-")
	s = strings.TrimPrefix(s, "-")

	whole, frac, _ := strings.Cut(s, ".")
	if len(frac) > 9 { //nolint:gomnd
		return nil, fmt.Errorf("too many fractional digits in %q", s)
	}
	w, ok := new(big.Int).SetString(whole, 10)
	if !ok {
		return nil, fmt.Errorf("invalid seconds %q", s)
	}
	n := new(big.Int).Mul(w, nanosPerSecond)
	if frac != "" {
		f, err := strconv.ParseInt(frac+strings.Repeat("0", 9-len(frac)), 10, 64) //nolint:gomnd
		if err != nil {
			return nil, err
		}
		n.Add(n, big.NewInt(f))
	}
	if neg {
		n.Neg(n)
	}

	return n, nil
}
