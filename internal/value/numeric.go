package value

import (
	"math/big"
	"strings"
)

const (
	NumericPrecisionDigits = 29
	NumericScaleDigits     = 9
)

var numericScale = new(big.Int).Exp(big.NewInt(10), big.NewInt(NumericScaleDigits), nil) //nolint:gomnd

// NumericString formats r as a NUMERIC literal, rejecting values out of the
// 29 integer digits / 9 fractional digits range.
func NumericString(r *big.Rat) (string, error) {
	scaled := new(big.Rat).Mul(r, new(big.Rat).SetInt(numericScale))
	if !scaled.IsInt() {
		return "", &InvalidValueError{Reason: ReasonScale, Value: r.RatString()}
	}
	intPart := new(big.Int).Quo(r.Num(), r.Denom())
	if len(intPart.Abs(intPart).String()) > NumericPrecisionDigits {
		return "", &InvalidValueError{Reason: ReasonPrecision, Value: r.RatString()}
	}

	s := r.FloatString(NumericScaleDigits)
	if strings.Contains(s, ".") {
		s = strings.TrimRight(strings.TrimRight(s, "0"), ".")
	}
	if s == "-0" {
		s = "0"
	}

	return s, nil
}

func ParseNumeric(s string) (*big.Rat, bool) {
	return new(big.Rat).SetString(s)
}
