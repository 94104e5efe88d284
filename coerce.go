package calc

import (
	"math"
	"strconv"
	"strings"
)

// coercion applies Excel's conversion rules under a locale and date system
type coercion struct {
	locale   *LocaleConfig
	date1904 bool
}

func defaultCoercion() coercion {
	return coercion{locale: DefaultLocale()}
}

// number converts a scalar to a number: blank is 0, booleans are 1/0 and
// text must parse as a number, percentage, currency or date
func (c coercion) number(v Value) (float64, *SpreadsheetError) {
	switch x := v.(type) {
	case nil:
		return 0, nil
	case float64:
		return x, nil
	case bool:
		if x {
			return 1, nil
		}
		return 0, nil
	case string:
		if f, ok := c.parseNumericText(x); ok {
			return f, nil
		}
		return 0, errorValue(ErrorCodeValue)
	case *SpreadsheetError:
		return 0, x
	case *Array:
		if x.Len() == 0 {
			return 0, errorValue(ErrorCodeValue)
		}
		return c.number(x.Data[0])
	case *Entity:
		return 0, errorValue(ErrorCodeValue)
	case *Record:
		return c.number(x.DisplayText())
	case *Lambda:
		return 0, errorValue(ErrorCodeCalc)
	}
	return 0, errorValue(ErrorCodeValue)
}

// parseNumericText parses text as a number or a date/time serial
func (c coercion) parseNumericText(s string) (float64, bool) {
	loc := c.locale
	if loc == nil {
		loc = DefaultLocale()
	}
	if f, ok := loc.ParseNumber(s); ok {
		return f, true
	}
	if serial, ok := parseDateTimeText(s, loc.DateOrder, c.date1904); ok {
		return serial, true
	}
	return 0, false
}

// text converts a scalar to text
func (c coercion) text(v Value) (string, *SpreadsheetError) {
	switch x := v.(type) {
	case *SpreadsheetError:
		return "", x
	case *Array:
		if x.Len() == 0 {
			return "", nil
		}
		return c.text(x.Data[0])
	case *Lambda:
		return "", errorValue(ErrorCodeCalc)
	}
	return coerceText(v), nil
}

// boolean converts a scalar to a logical value. text must read TRUE or
// FALSE.
func (c coercion) boolean(v Value) (bool, *SpreadsheetError) {
	switch x := v.(type) {
	case nil:
		return false, nil
	case bool:
		return x, nil
	case float64:
		return x != 0, nil
	case string:
		switch strings.ToUpper(strings.TrimSpace(x)) {
		case "TRUE":
			return true, nil
		case "FALSE":
			return false, nil
		}
		return false, errorValue(ErrorCodeValue)
	case *SpreadsheetError:
		return false, x
	case *Array:
		if x.Len() == 0 {
			return false, errorValue(ErrorCodeValue)
		}
		return c.boolean(x.Data[0])
	}
	return false, errorValue(ErrorCodeValue)
}

// coerceText renders a scalar as text using the general number format
func coerceText(v Value) string {
	switch x := v.(type) {
	case nil:
		return ""
	case float64:
		return FormatNumber(x)
	case string:
		return x
	case bool:
		if x {
			return "TRUE"
		}
		return "FALSE"
	case *SpreadsheetError:
		return x.ErrorCode.String()
	case *Entity:
		return x.Display
	case *Record:
		return x.DisplayText()
	case *Array:
		if x.Len() > 0 {
			return coerceText(x.Data[0])
		}
	}
	return ""
}

// FormatNumber renders a number with up to 15 significant digits. it never
// returns "-0".
func FormatNumber(f float64) string {
	if f == 0 || math.IsNaN(f) {
		return "0"
	}
	if math.IsInf(f, 0) {
		return errorValue(ErrorCodeNum).Error()
	}
	// round to 15 significant digits first so binary noise is not shown
	mantissa := strconv.FormatFloat(f, 'e', 14, 64)
	rounded, _ := strconv.ParseFloat(mantissa, 64)
	if rounded == 0 {
		return "0"
	}
	exp := int(math.Floor(math.Log10(math.Abs(rounded))))
	if exp >= 15 || exp < -9 {
		s := strconv.FormatFloat(rounded, 'E', -1, 64)
		mant, e, _ := strings.Cut(s, "E")
		if strings.Contains(mant, ".") {
			mant = strings.TrimRight(strings.TrimRight(mant, "0"), ".")
		}
		sign := "+"
		if strings.HasPrefix(e, "-") {
			sign = "-"
		}
		e = strings.TrimLeft(strings.TrimLeft(e, "+-"), "0")
		if e == "" {
			e = "0"
		}
		return mant + "E" + sign + e
	}
	decimals := 14 - exp
	if decimals < 0 {
		decimals = 0
	}
	s := strconv.FormatFloat(rounded, 'f', decimals, 64)
	if strings.Contains(s, ".") {
		s = strings.TrimRight(strings.TrimRight(s, "0"), ".")
	}
	if s == "-0" {
		return "0"
	}
	return s
}

// typeRank orders value types the way Excel sorts and compares them
func typeRank(v Value) int {
	switch v.(type) {
	case nil:
		return 0
	case float64:
		return 1
	case string, *Entity, *Record:
		return 2
	case bool:
		return 3
	case *SpreadsheetError:
		return 4
	}
	return 5
}

// compareValues orders two scalars: numbers < text < booleans, text is
// compared case-insensitively and blank takes the zero value of the other
// side. it returns -1, 0 or 1.
func compareValues(left, right Value) int {
	if left == nil {
		switch right.(type) {
		case float64:
			left = 0.0
		case string:
			left = ""
		case bool:
			left = false
		case nil:
			return 0
		}
	}
	if right == nil {
		switch left.(type) {
		case float64:
			right = 0.0
		case string:
			right = ""
		case bool:
			right = false
		}
	}
	if e, ok := left.(*Entity); ok {
		left = e.Display
	}
	if r, ok := left.(*Record); ok {
		left = r.DisplayText()
	}
	if e, ok := right.(*Entity); ok {
		right = e.Display
	}
	if r, ok := right.(*Record); ok {
		right = r.DisplayText()
	}

	lr, rr := typeRank(left), typeRank(right)
	if lr != rr {
		if lr < rr {
			return -1
		}
		return 1
	}
	switch l := left.(type) {
	case float64:
		return compareNumbers(l, right.(float64))
	case string:
		return compareText(l, right.(string))
	case bool:
		r := right.(bool)
		if l == r {
			return 0
		}
		if !l {
			return -1
		}
		return 1
	case *SpreadsheetError:
		r := right.(*SpreadsheetError)
		switch {
		case l.ErrorCode < r.ErrorCode:
			return -1
		case l.ErrorCode > r.ErrorCode:
			return 1
		}
	}
	return 0
}

// compareNumbers treats -0 and 0 as equal and NaN as equal to itself
func compareNumbers(a, b float64) int {
	aNaN, bNaN := math.IsNaN(a), math.IsNaN(b)
	switch {
	case aNaN && bNaN:
		return 0
	case aNaN:
		return 1
	case bNaN:
		return -1
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func compareText(a, b string) int {
	fa, fb := foldKey(a), foldKey(b)
	switch {
	case fa < fb:
		return -1
	case fa > fb:
		return 1
	}
	return 0
}

// valuesEqual is equality for lookups, MATCH and SWITCH: same type rank
// and compareValues == 0, without blank promotion across types
func valuesEqual(a, b Value) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if typeRank(a) != typeRank(b) {
		return false
	}
	return compareValues(a, b) == 0
}

// checkNumber converts NaN and infinities produced by arithmetic into #NUM!
func checkNumber(f float64) Value {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return errorValue(ErrorCodeNum)
	}
	if f == 0 {
		return 0.0
	}
	return f
}

// truthy reports whether a scalar counts as TRUE in a condition
func truthy(v Value) (bool, *SpreadsheetError) {
	return defaultCoercion().boolean(v)
}

// toInt truncates a number toward zero the way Excel integer arguments do
func toInt(f float64) int {
	if f >= math.MaxInt32 {
		return math.MaxInt32
	}
	if f <= math.MinInt32 {
		return math.MinInt32
	}
	return int(math.Trunc(f))
}
