package calc

import (
	"math"
	"sort"
)

func init() {
	register(
		&FunctionDef{Name: "LINEST", MinArgs: 1, MaxArgs: 4, Returns: ReturnArray, Arrays: SupportsArrays, Flags: pure, Impl: estimate(false)},
		&FunctionDef{Name: "LOGEST", MinArgs: 1, MaxArgs: 4, Returns: ReturnArray, Arrays: SupportsArrays, Flags: pure, Impl: estimate(true)},
		&FunctionDef{Name: "TREND", MinArgs: 1, MaxArgs: 4, Returns: ReturnArray, Arrays: SupportsArrays, Flags: pure, Impl: project(false)},
		&FunctionDef{Name: "GROWTH", MinArgs: 1, MaxArgs: 4, Returns: ReturnArray, Arrays: SupportsArrays, Flags: pure, Impl: project(true)},
		&FunctionDef{Name: "FREQUENCY", MinArgs: 2, Args: []ArgKind{ArgRange}, Returns: ReturnArray, Arrays: SupportsArrays, Flags: pure, Impl: fnFREQUENCY},
	)
}

// observations holds the known values of a regression: one y and one row
// of x's per observation
type observations struct {
	y []float64
	x [][]float64
	// byRow is true when each observation is a row of known_x's
	byRow bool
	shape *Array
}

func (o *observations) vars() int { return len(o.x[0]) }

func knownObservations(fc *FunctionContext, args []Value, logY bool) (*observations, *SpreadsheetError) {
	ya, err := fc.Array(args[0])
	if err != nil {
		return nil, err
	}
	o := &observations{shape: ya, byRow: ya.Cols == 1 || ya.Rows != 1}
	for _, v := range ya.Data {
		y, ok := v.(float64)
		if !ok {
			return nil, errorValue(ErrorCodeValue)
		}
		if logY {
			if y <= 0 {
				return nil, errorValue(ErrorCodeNum)
			}
			y = math.Log(y)
		}
		o.y = append(o.y, y)
	}
	n := len(o.y)
	if len(args) < 2 || fc.Omitted(1) {
		for i := range n {
			o.x = append(o.x, []float64{float64(i + 1)})
		}
		return o, nil
	}
	xa, err := fc.Array(args[1])
	if err != nil {
		return nil, err
	}
	if o.x, err = observationRows(xa, n, o.byRow); err != nil {
		return nil, err
	}
	return o, nil
}

// observationRows splits an x array into n observations
func observationRows(xa *Array, n int, byRow bool) ([][]float64, *SpreadsheetError) {
	m, err := numericRows(xa)
	if err != nil {
		return nil, err
	}
	switch {
	case xa.Len() == n:
		out := make([][]float64, n)
		for i, v := range xa.Data {
			out[i] = []float64{v.(float64)}
		}
		return out, nil
	case byRow && xa.Rows == n:
		return m, nil
	case !byRow && xa.Cols == n:
		out := make([][]float64, n)
		for j := range n {
			out[j] = make([]float64, xa.Rows)
			for i := range xa.Rows {
				out[j][i] = m[i][j]
			}
		}
		return out, nil
	}
	return nil, errorValue(ErrorCodeRef)
}

type linearFit struct {
	// coef holds the slope of each x in order, then the intercept
	coef    []float64
	se      []float64
	r2      float64
	sey     float64
	f       float64
	df      float64
	ssreg   float64
	ssresid float64
}

// fitLinear solves the least squares normal equations
func fitLinear(o *observations, constant bool) (*linearFit, *SpreadsheetError) {
	k := o.vars()
	p := k
	if constant {
		p++
	}
	n := len(o.y)
	if n < p {
		return nil, errorValue(ErrorCodeNum)
	}
	row := func(i int) []float64 {
		r := append([]float64(nil), o.x[i]...)
		if constant {
			r = append(r, 1)
		}
		return r
	}
	xtx := make([][]float64, p)
	for i := range xtx {
		xtx[i] = make([]float64, p)
	}
	xty := make([]float64, p)
	for i := range n {
		r := row(i)
		for a := range p {
			xty[a] += r[a] * o.y[i]
			for b := range p {
				xtx[a][b] += r[a] * r[b]
			}
		}
	}
	inv, _, ok := invertMatrix(xtx)
	if !ok {
		return nil, errorValue(ErrorCodeNum)
	}
	beta := make([]float64, p)
	for a := range p {
		for b := range p {
			beta[a] += inv[a][b] * xty[b]
		}
	}
	fit := &linearFit{coef: beta, df: float64(n - p)}
	if !constant {
		fit.coef = append(fit.coef, 0)
	}
	my := mean(o.y)
	var sstot float64
	for i := range n {
		r := row(i)
		est := 0.0
		for a := range p {
			est += beta[a] * r[a]
		}
		fit.ssresid += (o.y[i] - est) * (o.y[i] - est)
		if constant {
			sstot += (o.y[i] - my) * (o.y[i] - my)
		} else {
			sstot += o.y[i] * o.y[i]
		}
	}
	fit.ssreg = sstot - fit.ssresid
	if sstot > 0 {
		fit.r2 = fit.ssreg / sstot
	} else {
		fit.r2 = 1
	}
	if fit.df > 0 {
		fit.sey = math.Sqrt(fit.ssresid / fit.df)
		fit.f = (fit.ssreg / float64(k)) / (fit.ssresid / fit.df)
	}
	fit.se = make([]float64, p)
	for a := range p {
		fit.se[a] = math.Sqrt(fit.sey * fit.sey * inv[a][a])
	}
	return fit, nil
}

func estimate(exponential bool) func(*FunctionContext, []Value) Value {
	return func(fc *FunctionContext, args []Value) Value {
		o, err := knownObservations(fc, args, exponential)
		if err != nil {
			return err
		}
		constant, err := optBool(fc, args, 2, true)
		if err != nil {
			return err
		}
		stats, err := optBool(fc, args, 3, false)
		if err != nil {
			return err
		}
		fit, err := fitLinear(o, constant)
		if err != nil {
			return err
		}
		k := o.vars()
		rows := 1
		if stats {
			rows = 5
		}
		out := NewArray(rows, k+1)
		for i := range out.Data {
			out.Data[i] = errorValue(ErrorCodeNA)
		}
		// slopes are reported in reverse order of the x columns
		scale := func(x float64) Value {
			if exponential {
				return checkNumber(math.Exp(x))
			}
			return checkNumber(x)
		}
		for j := range k {
			out.set(0, j, scale(fit.coef[k-1-j]))
		}
		out.set(0, k, scale(fit.coef[k]))
		if !stats {
			return out
		}
		for j := range k {
			out.set(1, j, fit.se[k-1-j])
		}
		if constant {
			out.set(1, k, fit.se[k])
		}
		out.set(2, 0, fit.r2)
		out.set(2, 1, fit.sey)
		if fit.df > 0 {
			out.set(3, 0, checkNumber(fit.f))
		} else {
			out.set(3, 0, errorValue(ErrorCodeNum))
		}
		out.set(3, 1, fit.df)
		out.set(4, 0, fit.ssreg)
		out.set(4, 1, fit.ssresid)
		return out
	}
}

func project(exponential bool) func(*FunctionContext, []Value) Value {
	return func(fc *FunctionContext, args []Value) Value {
		o, err := knownObservations(fc, args, exponential)
		if err != nil {
			return err
		}
		constant, err := optBool(fc, args, 3, true)
		if err != nil {
			return err
		}
		fit, err := fitLinear(o, constant)
		if err != nil {
			return err
		}
		k := o.vars()
		points, shape := o.x, o.shape
		if len(args) > 2 && !fc.Omitted(2) {
			na, err := fc.Array(args[2])
			if err != nil {
				return err
			}
			if k == 1 {
				shape = na
				if points, err = observationRows(na, na.Len(), true); err != nil {
					return err
				}
			} else {
				count := na.Cols
				shape = NewArray(1, count)
				if o.byRow {
					count = na.Rows
					shape = NewArray(count, 1)
				}
				if points, err = observationRows(na, count, o.byRow); err != nil {
					return err
				}
				if len(points[0]) != k {
					return errorValue(ErrorCodeRef)
				}
			}
		}
		out := NewArray(shape.Rows, shape.Cols)
		for i, pt := range points {
			est := fit.coef[k]
			for a := range k {
				est += fit.coef[a] * pt[a]
			}
			if exponential {
				est = math.Exp(est)
			}
			out.Data[i] = checkNumber(est)
		}
		return out
	}
}

// fnFREQUENCY counts values into bins, reporting them in the order the bins
// were given plus a final count of values above the largest bin
func fnFREQUENCY(fc *FunctionContext, args []Value) Value {
	data, err := fc.collectNumbers(args[:1], collectOptions{})
	if err != nil {
		return err
	}
	bins, err := fc.collectNumbers(args[1:2], collectOptions{})
	if err != nil {
		return err
	}
	order := make([]int, len(bins))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return bins[order[a]] < bins[order[b]] })
	counts := make([]float64, len(bins)+1)
	for _, x := range data {
		slot := len(bins)
		for _, i := range order {
			if x <= bins[i] {
				slot = i
				break
			}
		}
		counts[slot]++
	}
	out := NewArray(len(counts), 1)
	for i, c := range counts {
		out.Data[i] = c
	}
	return out
}
