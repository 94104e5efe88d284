package calc

import (
	"math"
	"strconv"

	"github.com/cockroachdb/apd/v3"
)

// decimal rounding runs on the 15 significant digits a cell shows, so
// ROUND(2.675,2) is 2.68 even though the binary value is slightly below

const significantDigits = 15

func decimalContext(mode apd.Rounder) *apd.Context {
	c := apd.BaseContext.WithPrecision(40)
	c.Rounding = mode
	return c
}

func toDecimal(x float64) (*apd.Decimal, bool) {
	d, _, err := apd.NewFromString(strconv.FormatFloat(x, 'g', significantDigits, 64))
	if err != nil {
		return nil, false
	}
	return d, true
}

// roundDecimal rounds x to digits places after the decimal point; negative
// digits round to the left of it
func roundDecimal(x float64, digits int, mode apd.Rounder) float64 {
	if math.IsNaN(x) || math.IsInf(x, 0) || x == 0 {
		return x
	}
	if digits > 308 {
		return x
	}
	if digits < -308 {
		return 0
	}
	d, ok := toDecimal(x)
	if !ok {
		return x
	}
	var out apd.Decimal
	if _, err := decimalContext(mode).Quantize(&out, d, int32(-digits)); err != nil {
		return x
	}
	f, err := out.Float64()
	if err != nil {
		return x
	}
	if f == 0 {
		return 0
	}
	return f
}

// roundHalfUp is ROUND's rounding: halves go away from zero
func roundHalfUp(x float64, digits int) float64 {
	return roundDecimal(x, digits, apd.RoundHalfUp)
}

// roundSignificant keeps the 15 significant digits a cell displays
func roundSignificant(x float64) float64 {
	if math.IsNaN(x) || math.IsInf(x, 0) || x == 0 {
		return x
	}
	f, err := strconv.ParseFloat(strconv.FormatFloat(x, 'g', significantDigits, 64), 64)
	if err != nil {
		return x
	}
	return f
}

// snapQuotient removes binary noise from a quotient that should be whole,
// so FLOOR(4.35,0.05) sees 87 rather than 86.99999999999999
func snapQuotient(q float64) float64 {
	r := math.Round(q)
	if math.Abs(q-r) <= 1e-12*math.Max(1, math.Abs(q)) {
		return r
	}
	return q
}

// PrecisionHook replaces the built-in display rounding of one number
// under a format, for formats whose displayed scale needs host-specific
// treatment
type PrecisionHook func(x float64, format *NumberFormat) float64

// applyDisplayPrecision rounds a value under its cell's number format
func applyDisplayPrecision(v Value, format *NumberFormat, hook PrecisionHook) Value {
	if format == nil || format.General {
		return v
	}
	round := format.roundStored
	if hook != nil {
		round = func(x float64) float64 { return hook(x, format) }
	}
	switch x := v.(type) {
	case float64:
		return round(x)
	case *Array:
		out := NewArray(x.Rows, x.Cols)
		for i, e := range x.Data {
			if f, ok := e.(float64); ok {
				out.Data[i] = round(f)
			} else {
				out.Data[i] = e
			}
		}
		return out
	}
	return v
}
