package calc

import (
	"math"
	"sort"
	"strings"
)

func aggregate(name string, impl func(*FunctionContext, []Value) Value) *FunctionDef {
	return &FunctionDef{Name: name, MinArgs: 1, MaxArgs: variadic, Args: []ArgKind{ArgRange}, Returns: ReturnNumber, Arrays: SupportsArrays, Flags: pure, Impl: impl}
}

// statFn wraps a kernel over the collected numbers
func statFn(name string, opts collectOptions, kernel func([]float64) Value) *FunctionDef {
	return aggregate(name, func(fc *FunctionContext, args []Value) Value {
		nums, err := fc.collectNumbers(args, opts)
		if err != nil {
			return err
		}
		return kernel(nums)
	})
}

var withLogicals = collectOptions{logicalsInRanges: true}

func init() {
	register(
		statFn("AVERAGE", collectOptions{}, kernelAverage),
		statFn("AVERAGEA", withLogicals, kernelAverage),
		aggregate("COUNT", fnCOUNT),
		aggregate("COUNTA", fnCOUNTA),
		&FunctionDef{Name: "COUNTBLANK", MinArgs: 1, Args: []ArgKind{ArgRange}, Returns: ReturnNumber, Arrays: SupportsArrays, Flags: pure, Impl: fnCOUNTBLANK},
		statFn("MAX", collectOptions{}, kernelMax),
		statFn("MAXA", withLogicals, kernelMax),
		statFn("MIN", collectOptions{}, kernelMin),
		statFn("MINA", withLogicals, kernelMin),
		statFn("MEDIAN", collectOptions{}, kernelMedian),
		statFn("MODE", collectOptions{}, kernelMode),
		statFn("MODE.SNGL", collectOptions{}, kernelMode),
		statFn("MODE.MULT", collectOptions{}, kernelModeMulti),
		statFn("STDEV", collectOptions{}, kernelStdev(true)),
		statFn("STDEV.S", collectOptions{}, kernelStdev(true)),
		statFn("STDEVA", withLogicals, kernelStdev(true)),
		statFn("STDEVP", collectOptions{}, kernelStdev(false)),
		statFn("STDEV.P", collectOptions{}, kernelStdev(false)),
		statFn("STDEVPA", withLogicals, kernelStdev(false)),
		statFn("VAR", collectOptions{}, kernelVar(true)),
		statFn("VAR.S", collectOptions{}, kernelVar(true)),
		statFn("VARA", withLogicals, kernelVar(true)),
		statFn("VARP", collectOptions{}, kernelVar(false)),
		statFn("VAR.P", collectOptions{}, kernelVar(false)),
		statFn("VARPA", withLogicals, kernelVar(false)),
		statFn("GEOMEAN", collectOptions{}, kernelGeomean),
		statFn("HARMEAN", collectOptions{}, kernelHarmean),
		statFn("AVEDEV", collectOptions{}, kernelAvedev),
		statFn("DEVSQ", collectOptions{}, kernelDevsq),

		rankedFn("LARGE", func(sorted []float64, k int) Value { return sorted[len(sorted)-k] }),
		rankedFn("SMALL", func(sorted []float64, k int) Value { return sorted[k-1] }),
		percentileFn("PERCENTILE", percentileInc, 1),
		percentileFn("PERCENTILE.INC", percentileInc, 1),
		percentileFn("PERCENTILE.EXC", percentileExc, 1),
		percentileFn("QUARTILE", percentileInc, 4),
		percentileFn("QUARTILE.INC", percentileInc, 4),
		percentileFn("QUARTILE.EXC", percentileExc, 4),
		rankFn("RANK", false),
		rankFn("RANK.EQ", false),
		rankFn("RANK.AVG", true),

		pairFn("CORREL", func(x, y []float64) Value { return correl(x, y) }),
		pairFn("PEARSON", func(x, y []float64) Value { return correl(x, y) }),
		pairFn("RSQ", func(x, y []float64) Value {
			r := correl(x, y)
			if f, ok := r.(float64); ok {
				return f * f
			}
			return r
		}),
		pairFn("COVARIANCE.P", func(x, y []float64) Value { return covariance(x, y, false) }),
		pairFn("COVAR", func(x, y []float64) Value { return covariance(x, y, false) }),
		pairFn("COVARIANCE.S", func(x, y []float64) Value { return covariance(x, y, true) }),
		// known y's come first for the regression functions
		pairFn("SLOPE", func(y, x []float64) Value {
			slope, _, err := regression(x, y)
			if err != nil {
				return err
			}
			return slope
		}),
		pairFn("INTERCEPT", func(y, x []float64) Value {
			_, intercept, err := regression(x, y)
			if err != nil {
				return err
			}
			return intercept
		}),
		&FunctionDef{Name: "FORECAST", MinArgs: 3, Args: []ArgKind{ArgValue, ArgRange, ArgRange}, Returns: ReturnNumber, Flags: pure, Impl: fnFORECAST},
		&FunctionDef{Name: "FORECAST.LINEAR", MinArgs: 3, Args: []ArgKind{ArgValue, ArgRange, ArgRange}, Returns: ReturnNumber, Flags: pure, Impl: fnFORECAST},

		&FunctionDef{Name: "SUBTOTAL", MinArgs: 2, MaxArgs: variadic, Args: []ArgKind{ArgValue, ArgRef}, Returns: ReturnNumber, Arrays: SupportsArrays, Flags: pure, Impl: fnSUBTOTAL},
		&FunctionDef{Name: "AGGREGATE", MinArgs: 3, MaxArgs: variadic, Args: []ArgKind{ArgValue, ArgValue, ArgRange}, Returns: ReturnNumber, Arrays: SupportsArrays, Flags: pure | FlagAcceptsErrors, Impl: fnAGGREGATE},
	)
}

func mean(nums []float64) float64 {
	return sumFloats(nums) / float64(len(nums))
}

func kernelAverage(nums []float64) Value {
	if len(nums) == 0 {
		return errorValue(ErrorCodeDiv0)
	}
	return checkNumber(mean(nums))
}

func kernelMax(nums []float64) Value {
	if len(nums) == 0 {
		return 0.0
	}
	m := nums[0]
	for _, x := range nums[1:] {
		m = math.Max(m, x)
	}
	return m
}

func kernelMin(nums []float64) Value {
	if len(nums) == 0 {
		return 0.0
	}
	m := nums[0]
	for _, x := range nums[1:] {
		m = math.Min(m, x)
	}
	return m
}

func sortedCopy(nums []float64) []float64 {
	s := append([]float64(nil), nums...)
	sort.Float64s(s)
	return s
}

func kernelMedian(nums []float64) Value {
	if len(nums) == 0 {
		return errorValue(ErrorCodeNum)
	}
	s := sortedCopy(nums)
	n := len(s)
	if n%2 == 1 {
		return s[n/2]
	}
	return (s[n/2-1] + s[n/2]) / 2
}

// modes returns the most frequent values in order of first appearance
func modes(nums []float64) []float64 {
	counts := make(map[float64]int, len(nums))
	best := 1
	for _, x := range nums {
		counts[x]++
		best = max(best, counts[x])
	}
	if best < 2 {
		return nil
	}
	var out []float64
	seen := make(map[float64]bool)
	for _, x := range nums {
		if counts[x] == best && !seen[x] {
			seen[x] = true
			out = append(out, x)
		}
	}
	return out
}

func kernelMode(nums []float64) Value {
	m := modes(nums)
	if len(m) == 0 {
		return errorValue(ErrorCodeNA)
	}
	return m[0]
}

func kernelModeMulti(nums []float64) Value {
	m := modes(nums)
	if len(m) == 0 {
		return errorValue(ErrorCodeNA)
	}
	out := NewArray(len(m), 1)
	for i, x := range m {
		out.Data[i] = x
	}
	return out
}

func variance(nums []float64, sample bool) (float64, *SpreadsheetError) {
	n := len(nums)
	if n == 0 || (sample && n < 2) {
		return 0, errorValue(ErrorCodeDiv0)
	}
	m := mean(nums)
	ss := 0.0
	for _, x := range nums {
		ss += (x - m) * (x - m)
	}
	if sample {
		return ss / float64(n-1), nil
	}
	return ss / float64(n), nil
}

func kernelVar(sample bool) func([]float64) Value {
	return func(nums []float64) Value {
		v, err := variance(nums, sample)
		if err != nil {
			return err
		}
		return v
	}
}

func kernelStdev(sample bool) func([]float64) Value {
	return func(nums []float64) Value {
		v, err := variance(nums, sample)
		if err != nil {
			return err
		}
		return math.Sqrt(v)
	}
}

func kernelGeomean(nums []float64) Value {
	if len(nums) == 0 {
		return errorValue(ErrorCodeNum)
	}
	logs := 0.0
	for _, x := range nums {
		if x <= 0 {
			return errorValue(ErrorCodeNum)
		}
		logs += math.Log(x)
	}
	return math.Exp(logs / float64(len(nums)))
}

func kernelHarmean(nums []float64) Value {
	if len(nums) == 0 {
		return errorValue(ErrorCodeNum)
	}
	inv := 0.0
	for _, x := range nums {
		if x <= 0 {
			return errorValue(ErrorCodeNum)
		}
		inv += 1 / x
	}
	return float64(len(nums)) / inv
}

func kernelAvedev(nums []float64) Value {
	if len(nums) == 0 {
		return errorValue(ErrorCodeNum)
	}
	m := mean(nums)
	d := 0.0
	for _, x := range nums {
		d += math.Abs(x - m)
	}
	return d / float64(len(nums))
}

func kernelDevsq(nums []float64) Value {
	if len(nums) == 0 {
		return errorValue(ErrorCodeNum)
	}
	m := mean(nums)
	ss := 0.0
	for _, x := range nums {
		ss += (x - m) * (x - m)
	}
	return ss
}

func fnCOUNT(fc *FunctionContext, args []Value) Value {
	n := 0
	for _, arg := range args {
		if ref, ok := arg.(*Reference); ok {
			if fast, ok := fc.numericRange(ref); ok {
				n += len(fast)
				continue
			}
		}
		fc.forEachValue(arg, func(v Value, direct bool) bool {
			switch x := v.(type) {
			case float64:
				n++
			case bool:
				if direct {
					n++
				}
			case string:
				if direct {
					if _, err := fc.ev.ec.coerce.number(x); err == nil {
						n++
					}
				}
			}
			return true
		})
	}
	return float64(n)
}

func fnCOUNTA(fc *FunctionContext, args []Value) Value {
	n := 0
	for i, arg := range args {
		if fc.Omitted(i) {
			continue
		}
		fc.forEachValue(arg, func(v Value, direct bool) bool {
			if v != nil || direct {
				n++
			}
			return true
		})
	}
	return float64(n)
}

func fnCOUNTBLANK(fc *FunctionContext, args []Value) Value {
	switch x := args[0].(type) {
	case *Reference:
		filled := 0
		fc.ev.res.ForEachInRange(x, func(_ CellAddr, v Value) bool {
			if s, ok := v.(string); !ok || s != "" {
				filled++
			}
			return true
		})
		return float64(x.Rect().Area() - uint64(filled))
	case *Array:
		n := 0
		for _, v := range x.Data {
			if v == nil || v == "" {
				n++
			}
		}
		return float64(n)
	case *SpreadsheetError:
		return x
	}
	return errorValue(ErrorCodeValue)
}

// rankedFn implements LARGE and SMALL
func rankedFn(name string, pick func(sorted []float64, k int) Value) *FunctionDef {
	return &FunctionDef{Name: name, MinArgs: 2, Args: []ArgKind{ArgRange, ArgValue}, Returns: ReturnNumber, Arrays: ScalarOnly, Flags: pure, Impl: func(fc *FunctionContext, args []Value) Value {
		nums, err := fc.collectNumbers(args[:1], collectOptions{})
		if err != nil {
			return err
		}
		k, err := fc.Number(args[1])
		if err != nil {
			return err
		}
		ki := int(math.Ceil(k))
		if ki < 1 || ki > len(nums) {
			return errorValue(ErrorCodeNum)
		}
		return pick(sortedCopy(nums), ki)
	}}
}

func percentileInc(sorted []float64, p float64) Value {
	n := len(sorted)
	if n == 0 || p < 0 || p > 1 {
		return errorValue(ErrorCodeNum)
	}
	rank := p * float64(n-1)
	lo := int(math.Floor(rank))
	if lo >= n-1 {
		return sorted[n-1]
	}
	frac := rank - float64(lo)
	return sorted[lo] + frac*(sorted[lo+1]-sorted[lo])
}

func percentileExc(sorted []float64, p float64) Value {
	n := len(sorted)
	if n == 0 || p <= 0 || p >= 1 {
		return errorValue(ErrorCodeNum)
	}
	rank := p * float64(n+1)
	if rank < 1 || rank > float64(n) {
		return errorValue(ErrorCodeNum)
	}
	lo := int(math.Floor(rank))
	if lo >= n {
		return sorted[n-1]
	}
	frac := rank - float64(lo)
	return sorted[lo-1] + frac*(sorted[lo]-sorted[lo-1])
}

// percentileFn implements PERCENTILE and QUARTILE; divisor turns a quart
// number into a fraction
func percentileFn(name string, kernel func([]float64, float64) Value, divisor float64) *FunctionDef {
	return &FunctionDef{Name: name, MinArgs: 2, Args: []ArgKind{ArgRange, ArgValue}, Returns: ReturnNumber, Arrays: ScalarOnly, Flags: pure, Impl: func(fc *FunctionContext, args []Value) Value {
		nums, err := fc.collectNumbers(args[:1], collectOptions{})
		if err != nil {
			return err
		}
		p, err := fc.Number(args[1])
		if err != nil {
			return err
		}
		if divisor != 1 {
			q := math.Trunc(p)
			if q < 0 || q > divisor {
				return errorValue(ErrorCodeNum)
			}
			p = q / divisor
		}
		return kernel(sortedCopy(nums), p)
	}}
}

func rankFn(name string, average bool) *FunctionDef {
	return &FunctionDef{Name: name, MinArgs: 2, MaxArgs: 3, Args: []ArgKind{ArgValue, ArgRange, ArgValue}, Returns: ReturnNumber, Arrays: ScalarOnly, Flags: pure, Impl: func(fc *FunctionContext, args []Value) Value {
		x, err := fc.Number(args[0])
		if err != nil {
			return err
		}
		nums, err := fc.collectNumbers(args[1:2], collectOptions{})
		if err != nil {
			return err
		}
		ascending, err := optBool(fc, args, 2, false)
		if err != nil {
			return err
		}
		better, ties := 0, 0
		for _, v := range nums {
			switch {
			case v == x:
				ties++
			case ascending && v < x, !ascending && v > x:
				better++
			}
		}
		if ties == 0 {
			return errorValue(ErrorCodeNA)
		}
		if average {
			return float64(better) + float64(ties+1)/2
		}
		return float64(better + 1)
	}}
}

// pairFn collects two same-sized arguments, keeping positions where both
// hold numbers
func pairFn(name string, kernel func(x, y []float64) Value) *FunctionDef {
	return &FunctionDef{Name: name, MinArgs: 2, Args: []ArgKind{ArgRange}, Returns: ReturnNumber, Arrays: SupportsArrays, Flags: pure, Impl: func(fc *FunctionContext, args []Value) Value {
		x, y, err := numericPairs(fc, args[0], args[1])
		if err != nil {
			return err
		}
		return kernel(x, y)
	}}
}

func numericPairs(fc *FunctionContext, a, b Value) ([]float64, []float64, *SpreadsheetError) {
	xa, err := fc.Array(a)
	if err != nil {
		return nil, nil, err
	}
	ya, err := fc.Array(b)
	if err != nil {
		return nil, nil, err
	}
	if xa.Len() != ya.Len() {
		return nil, nil, errorValue(ErrorCodeNA)
	}
	var xs, ys []float64
	for i := range xa.Data {
		if e, ok := xa.Data[i].(*SpreadsheetError); ok {
			return nil, nil, e
		}
		if e, ok := ya.Data[i].(*SpreadsheetError); ok {
			return nil, nil, e
		}
		x, ok1 := xa.Data[i].(float64)
		y, ok2 := ya.Data[i].(float64)
		if ok1 && ok2 {
			xs = append(xs, x)
			ys = append(ys, y)
		}
	}
	return xs, ys, nil
}

func covariance(x, y []float64, sample bool) Value {
	n := len(x)
	if n == 0 || (sample && n < 2) {
		return errorValue(ErrorCodeDiv0)
	}
	mx, my := mean(x), mean(y)
	s := 0.0
	for i := range x {
		s += (x[i] - mx) * (y[i] - my)
	}
	if sample {
		return s / float64(n-1)
	}
	return s / float64(n)
}

func correl(x, y []float64) Value {
	if len(x) < 2 {
		return errorValue(ErrorCodeDiv0)
	}
	mx, my := mean(x), mean(y)
	var sxy, sxx, syy float64
	for i := range x {
		dx, dy := x[i]-mx, y[i]-my
		sxy += dx * dy
		sxx += dx * dx
		syy += dy * dy
	}
	if sxx == 0 || syy == 0 {
		return errorValue(ErrorCodeDiv0)
	}
	return sxy / math.Sqrt(sxx*syy)
}

// regression fits y = slope*x + intercept by least squares
func regression(x, y []float64) (float64, float64, *SpreadsheetError) {
	if len(x) == 0 {
		return 0, 0, errorValue(ErrorCodeDiv0)
	}
	mx, my := mean(x), mean(y)
	var sxy, sxx float64
	for i := range x {
		sxy += (x[i] - mx) * (y[i] - my)
		sxx += (x[i] - mx) * (x[i] - mx)
	}
	if sxx == 0 {
		return 0, 0, errorValue(ErrorCodeDiv0)
	}
	slope := sxy / sxx
	return slope, my - slope*mx, nil
}

func fnFORECAST(fc *FunctionContext, args []Value) Value {
	target, err := fc.Number(args[0])
	if err != nil {
		return err
	}
	ys, xs, err := numericPairs(fc, args[1], args[2])
	if err != nil {
		return err
	}
	slope, intercept, err := regression(xs, ys)
	if err != nil {
		return err
	}
	return intercept + slope*target
}

// subtotalKernels maps SUBTOTAL and AGGREGATE function numbers to
// builtins
var subtotalKernels = map[int]string{
	1: "AVERAGE", 2: "COUNT", 3: "COUNTA", 4: "MAX", 5: "MIN", 6: "PRODUCT",
	7: "STDEV.S", 8: "STDEV.P", 9: "SUM", 10: "VAR.S", 11: "VAR.P",
	12: "MEDIAN", 13: "MODE.SNGL", 14: "LARGE", 15: "SMALL",
	16: "PERCENTILE.INC", 17: "QUARTILE.INC", 18: "PERCENTILE.EXC", 19: "QUARTILE.EXC",
}

type subtotalFilter struct {
	skipHidden bool
	skipNested bool
	skipErrors bool
}

// isSubtotalFormula reports whether a cell's own formula is a SUBTOTAL or
// AGGREGATE, which enclosing subtotals ignore
func isSubtotalFormula(fc *FunctionContext, sheet SheetID, addr CellAddr) bool {
	text, ok := fc.ev.res.FormulaText(sheet, addr)
	if !ok {
		return false
	}
	upper := strings.ToUpper(text)
	return strings.Contains(upper, "SUBTOTAL(") || strings.Contains(upper, "AGGREGATE(")
}

// filteredValues gathers the cells SUBTOTAL and AGGREGATE look at into a
// column array
func (fc *FunctionContext) filteredValues(args []Value, f subtotalFilter) (*Array, *SpreadsheetError) {
	var values []Value
	keep := func(v Value) bool {
		if _, isErr := v.(*SpreadsheetError); isErr && f.skipErrors {
			return false
		}
		return true
	}
	visit := func(ref *Reference) {
		fc.ev.res.ForEachInRange(ref, func(addr CellAddr, v Value) bool {
			if f.skipHidden && fc.ev.res.RowHidden(ref.Sheet, addr.Row) {
				return true
			}
			if f.skipNested && isSubtotalFormula(fc, ref.Sheet, addr) {
				return true
			}
			if keep(v) {
				values = append(values, v)
			}
			return true
		})
	}
	for _, arg := range args {
		switch x := arg.(type) {
		case *Reference:
			visit(x)
		case *ReferenceUnion:
			for _, area := range x.Areas {
				visit(area)
			}
		case *Array:
			for _, v := range x.Data {
				if keep(v) {
					values = append(values, v)
				}
			}
		case *SpreadsheetError:
			if !f.skipErrors {
				return nil, x
			}
		default:
			if keep(x) {
				values = append(values, x)
			}
		}
	}
	arr := NewArray(max(len(values), 1), 1)
	copy(arr.Data, values)
	if len(values) == 0 {
		arr.Data[0] = nil
	}
	return arr, nil
}

func fnSUBTOTAL(fc *FunctionContext, args []Value) Value {
	code, err := fc.Int(args[0])
	if err != nil {
		return err
	}
	filter := subtotalFilter{skipNested: true}
	if code > 100 {
		filter.skipHidden = true
		code -= 100
	}
	name, ok := subtotalKernels[code]
	if !ok || code > 11 {
		return errorValue(ErrorCodeValue)
	}
	values, err := fc.filteredValues(args[1:], filter)
	if err != nil {
		return err
	}
	def, _ := LookupFunction(name)
	return def.Impl(fc, []Value{values})
}

func fnAGGREGATE(fc *FunctionContext, args []Value) Value {
	code, err := fc.Int(args[0])
	if err != nil {
		return err
	}
	option, err := fc.Int(args[1])
	if err != nil {
		return err
	}
	name, ok := subtotalKernels[code]
	if !ok || option < 0 || option > 7 {
		return errorValue(ErrorCodeValue)
	}
	filter := subtotalFilter{
		skipNested: option < 4,
		skipErrors: option == 2 || option == 3 || option == 6 || option == 7,
		skipHidden: option%2 == 1,
	}
	def, _ := LookupFunction(name)
	if code >= 14 {
		if len(args) != 4 {
			return errorValue(ErrorCodeValue)
		}
		values, err := fc.filteredValues(args[2:3], filter)
		if err != nil {
			return err
		}
		return def.Impl(fc, []Value{values, fc.Deref(args[3])})
	}
	values, err := fc.filteredValues(args[2:], filter)
	if err != nil {
		return err
	}
	return def.Impl(fc, []Value{values})
}
