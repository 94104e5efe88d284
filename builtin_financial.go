package calc

import "math"

func init() {
	fin := func(name string, minArgs, maxArgs int, impl func(*FunctionContext, []Value) Value) *FunctionDef {
		return &FunctionDef{Name: name, MinArgs: minArgs, MaxArgs: maxArgs, Returns: ReturnNumber, Flags: pure, Impl: impl}
	}
	register(
		fin("PMT", 3, 5, fnPMT),
		fin("PV", 3, 5, fnPV),
		fin("FV", 3, 5, fnFV),
		fin("NPER", 3, 5, fnNPER),
		fin("RATE", 3, 6, fnRATE),
		fin("IPMT", 4, 6, interestSplit(true)),
		fin("PPMT", 4, 6, interestSplit(false)),
		fin("SLN", 3, 3, fnSLN),
		fin("SYD", 4, 4, fnSYD),
		fin("DB", 4, 5, fnDB),
		fin("DDB", 4, 5, fnDDB),
		fin("EFFECT", 2, 2, fnEFFECT),
		fin("NOMINAL", 2, 2, fnNOMINAL),
		fin("CUMIPMT", 6, 6, cumulative(true)),
		fin("CUMPRINC", 6, 6, cumulative(false)),
		fin("ISPMT", 4, 4, fnISPMT),
		fin("PDURATION", 3, 3, fnPDURATION),
		fin("RRI", 3, 3, fnRRI),
		fin("VDB", 5, 7, fnVDB),
		fin("DOLLARDE", 2, 2, dollarFraction(true)),
		fin("DOLLARFR", 2, 2, dollarFraction(false)),
		&FunctionDef{Name: "MIRR", MinArgs: 3, Args: []ArgKind{ArgRange, ArgValue}, Returns: ReturnNumber, Arrays: SupportsArrays, Flags: pure, Impl: fnMIRR},
		&FunctionDef{Name: "FVSCHEDULE", MinArgs: 2, Args: []ArgKind{ArgValue, ArgRange}, Returns: ReturnNumber, Arrays: SupportsArrays, Flags: pure, Impl: fnFVSCHEDULE},
		&FunctionDef{Name: "NPV", MinArgs: 2, MaxArgs: variadic, Args: []ArgKind{ArgValue, ArgRange}, Returns: ReturnNumber, Arrays: SupportsArrays, Flags: pure, Impl: fnNPV},
		&FunctionDef{Name: "IRR", MinArgs: 1, MaxArgs: 2, Args: []ArgKind{ArgRange, ArgValue}, Returns: ReturnNumber, Arrays: SupportsArrays, Flags: pure, Impl: fnIRR},
		&FunctionDef{Name: "XNPV", MinArgs: 3, Args: []ArgKind{ArgValue, ArgRange, ArgRange}, Returns: ReturnNumber, Arrays: SupportsArrays, Flags: pure, Impl: fnXNPV},
		&FunctionDef{Name: "XIRR", MinArgs: 2, MaxArgs: 3, Args: []ArgKind{ArgRange, ArgRange, ArgValue}, Returns: ReturnNumber, Arrays: SupportsArrays, Flags: pure, Impl: fnXIRR},
	)
}

// numbers reads the leading numeric arguments of a financial function,
// with defaults for omitted trailing ones
func numbers(fc *FunctionContext, args []Value, defaults ...float64) ([]float64, *SpreadsheetError) {
	out := make([]float64, len(defaults))
	for i, def := range defaults {
		v, err := optNumber(fc, args, i, def)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// annuity returns the future value of the payment stream per unit payment
// and the growth factor of the principal
func annuity(rate, nper, typ float64) (float64, float64) {
	if rate == 0 {
		return nper, 1
	}
	growth := math.Pow(1+rate, nper)
	return (growth - 1) / rate * (1 + rate*typ), growth
}

func fnPMT(fc *FunctionContext, args []Value) Value {
	n, err := numbers(fc, args, 0, 0, 0, 0, 0)
	if err != nil {
		return err
	}
	rate, nper, pv, fv, typ := n[0], n[1], n[2], n[3], n[4]
	if nper == 0 {
		return errorValue(ErrorCodeNum)
	}
	stream, growth := annuity(rate, nper, typ)
	return checkNumber(-(pv*growth + fv) / stream)
}

func fnPV(fc *FunctionContext, args []Value) Value {
	n, err := numbers(fc, args, 0, 0, 0, 0, 0)
	if err != nil {
		return err
	}
	rate, nper, pmt, fv, typ := n[0], n[1], n[2], n[3], n[4]
	stream, growth := annuity(rate, nper, typ)
	return checkNumber(-(fv + pmt*stream) / growth)
}

func fnFV(fc *FunctionContext, args []Value) Value {
	n, err := numbers(fc, args, 0, 0, 0, 0, 0)
	if err != nil {
		return err
	}
	rate, nper, pmt, pv, typ := n[0], n[1], n[2], n[3], n[4]
	stream, growth := annuity(rate, nper, typ)
	return checkNumber(-(pv*growth + pmt*stream))
}

func fnNPER(fc *FunctionContext, args []Value) Value {
	n, err := numbers(fc, args, 0, 0, 0, 0, 0)
	if err != nil {
		return err
	}
	rate, pmt, pv, fv, typ := n[0], n[1], n[2], n[3], n[4]
	if rate == 0 {
		if pmt == 0 {
			return errorValue(ErrorCodeNum)
		}
		return -(pv + fv) / pmt
	}
	adj := pmt * (1 + rate*typ) / rate
	num := adj - fv
	den := adj + pv
	if num/den <= 0 {
		return errorValue(ErrorCodeNum)
	}
	return checkNumber(math.Log(num/den) / math.Log(1+rate))
}

// fnRATE solves the annuity equation with Newton's method
func fnRATE(fc *FunctionContext, args []Value) Value {
	n, err := numbers(fc, args, 0, 0, 0, 0, 0, 0.1)
	if err != nil {
		return err
	}
	nper, pmt, pv, fv, typ, rate := n[0], n[1], n[2], n[3], n[4], n[5]
	if nper <= 0 {
		return errorValue(ErrorCodeNum)
	}
	f := func(r float64) float64 {
		stream, growth := annuity(r, nper, typ)
		return pv*growth + pmt*stream + fv
	}
	for range 100 {
		y := f(rate)
		const h = 1e-7
		d := (f(rate+h) - y) / h
		if d == 0 {
			break
		}
		next := rate - y/d
		if math.Abs(next-rate) < 1e-10 {
			return next
		}
		rate = next
		if rate <= -1 || math.IsNaN(rate) {
			break
		}
	}
	return errorValue(ErrorCodeNum)
}

func interestSplit(interest bool) func(*FunctionContext, []Value) Value {
	return func(fc *FunctionContext, args []Value) Value {
		n, err := numbers(fc, args, 0, 0, 0, 0, 0, 0)
		if err != nil {
			return err
		}
		rate, per, nper, pv, fv, typ := n[0], n[1], n[2], n[3], n[4], n[5]
		if per < 1 || per > nper || nper == 0 {
			return errorValue(ErrorCodeNum)
		}
		pmt, ipmt := periodInterest(rate, per, nper, pv, fv, typ)
		if interest {
			return checkNumber(ipmt)
		}
		return checkNumber(pmt - ipmt)
	}
}

// periodInterest returns the level payment and the interest part of it for
// period per
func periodInterest(rate, per, nper, pv, fv, typ float64) (float64, float64) {
	stream, growth := annuity(rate, nper, typ)
	pmt := -(pv*growth + fv) / stream
	if per == 1 && typ == 1 {
		return pmt, 0
	}
	// balance at the start of the period
	s, g := annuity(rate, per-1, typ)
	balance := -(pv*g + pmt*s)
	ipmt := balance * rate
	if typ == 1 {
		ipmt /= 1 + rate
	}
	return pmt, ipmt
}

func cumulative(interest bool) func(*FunctionContext, []Value) Value {
	return func(fc *FunctionContext, args []Value) Value {
		n, err := numbers(fc, args, 0, 0, 0, 0, 0, 0)
		if err != nil {
			return err
		}
		rate, nper, pv, typ := n[0], math.Trunc(n[1]), n[2], n[5]
		start, end := math.Trunc(n[3]), math.Trunc(n[4])
		if rate <= 0 || nper <= 0 || pv <= 0 || start < 1 || end < start || end > nper || (typ != 0 && typ != 1) {
			return errorValue(ErrorCodeNum)
		}
		total := 0.0
		for per := start; per <= end; per++ {
			pmt, ipmt := periodInterest(rate, per, nper, pv, 0, typ)
			if interest {
				total += ipmt
			} else {
				total += pmt - ipmt
			}
		}
		return checkNumber(total)
	}
}

func fnISPMT(fc *FunctionContext, args []Value) Value {
	n, err := numbers(fc, args, 0, 0, 0, 0)
	if err != nil {
		return err
	}
	rate, per, nper, pv := n[0], n[1], n[2], n[3]
	if nper == 0 {
		return errorValue(ErrorCodeDiv0)
	}
	return pv * rate * (per/nper - 1)
}

func fnPDURATION(fc *FunctionContext, args []Value) Value {
	n, err := numbers(fc, args, 0, 0, 0)
	if err != nil {
		return err
	}
	rate, pv, fv := n[0], n[1], n[2]
	if rate <= 0 || pv <= 0 || fv <= 0 {
		return errorValue(ErrorCodeNum)
	}
	return (math.Log(fv) - math.Log(pv)) / math.Log1p(rate)
}

func fnRRI(fc *FunctionContext, args []Value) Value {
	n, err := numbers(fc, args, 0, 0, 0)
	if err != nil {
		return err
	}
	nper, pv, fv := n[0], n[1], n[2]
	if nper <= 0 || pv == 0 {
		return errorValue(ErrorCodeNum)
	}
	return checkNumber(math.Pow(fv/pv, 1/nper) - 1)
}

func fnMIRR(fc *FunctionContext, args []Value) Value {
	flows, err := fc.collectNumbers(args[:1], collectOptions{})
	if err != nil {
		return err
	}
	financeRate, err := fc.Number(args[1])
	if err != nil {
		return err
	}
	reinvestRate, err := fc.Number(args[2])
	if err != nil {
		return err
	}
	n := float64(len(flows))
	var future, present float64
	for i, f := range flows {
		if f > 0 {
			future += f * math.Pow(1+reinvestRate, n-1-float64(i))
		} else {
			present += f / math.Pow(1+financeRate, float64(i))
		}
	}
	if future == 0 || present == 0 || n < 2 {
		return errorValue(ErrorCodeDiv0)
	}
	return checkNumber(math.Pow(-future/present, 1/(n-1)) - 1)
}

func fnFVSCHEDULE(fc *FunctionContext, args []Value) Value {
	principal, err := fc.Number(args[0])
	if err != nil {
		return err
	}
	rates, err := fc.collectNumbers(args[1:], collectOptions{})
	if err != nil {
		return err
	}
	for _, r := range rates {
		principal *= 1 + r
	}
	return checkNumber(principal)
}

// dollarFraction converts between decimal prices and prices whose
// fractional digits count units of 1/fraction
func dollarFraction(toDecimal bool) func(*FunctionContext, []Value) Value {
	return func(fc *FunctionContext, args []Value) Value {
		n, err := numbers(fc, args, 0, 0)
		if err != nil {
			return err
		}
		price, fraction := n[0], math.Trunc(n[1])
		switch {
		case fraction < 0:
			return errorValue(ErrorCodeNum)
		case fraction == 0:
			return errorValue(ErrorCodeDiv0)
		}
		whole, frac := math.Modf(price)
		scale := math.Pow(10, math.Ceil(math.Log10(fraction)))
		if toDecimal {
			return roundSignificant(whole + frac*scale/fraction)
		}
		return roundSignificant(whole + frac*fraction/scale)
	}
}

// fnVDB depreciates over a period range with declining balance, switching
// to straight line once that is larger unless no_switch is set. partial
// periods take the matching share of the period's depreciation.
func fnVDB(fc *FunctionContext, args []Value) Value {
	n, err := numbers(fc, args, 0, 0, 0, 0, 0, 2)
	if err != nil {
		return err
	}
	cost, salvage, life, start, end, factor := n[0], n[1], n[2], n[3], n[4], n[5]
	noSwitch, err := optBool(fc, args, 6, false)
	if err != nil {
		return err
	}
	if cost < 0 || salvage < 0 || life <= 0 || start < 0 || end < start || end > life || factor <= 0 {
		return errorValue(ErrorCodeNum)
	}
	value, total := cost, 0.0
	for p := 0.0; p < math.Ceil(end); p++ {
		dep := math.Min(value*factor/life, math.Max(value-salvage, 0))
		if !noSwitch {
			if sl := (value - salvage) / (life - p); sl > dep {
				dep = sl
			}
		}
		if lo, hi := math.Max(start, p), math.Min(end, p+1); hi > lo {
			total += dep * (hi - lo)
		}
		value -= dep
	}
	return checkNumber(total)
}

func fnSLN(fc *FunctionContext, args []Value) Value {
	n, err := numbers(fc, args, 0, 0, 0)
	if err != nil {
		return err
	}
	if n[2] == 0 {
		return errorValue(ErrorCodeDiv0)
	}
	return (n[0] - n[1]) / n[2]
}

func fnSYD(fc *FunctionContext, args []Value) Value {
	n, err := numbers(fc, args, 0, 0, 0, 0)
	if err != nil {
		return err
	}
	cost, salvage, life, per := n[0], n[1], n[2], n[3]
	if life <= 0 || per <= 0 || per > life {
		return errorValue(ErrorCodeNum)
	}
	return (cost - salvage) * (life - per + 1) * 2 / (life * (life + 1))
}

func fnDB(fc *FunctionContext, args []Value) Value {
	n, err := numbers(fc, args, 0, 0, 0, 0, 12)
	if err != nil {
		return err
	}
	cost, salvage, life, period, month := n[0], n[1], n[2], n[3], n[4]
	if cost < 0 || salvage < 0 || life <= 0 || period <= 0 || month < 1 || month > 12 || period > life+1 {
		return errorValue(ErrorCodeNum)
	}
	if cost == 0 {
		return 0.0
	}
	rate := roundHalfUp(1-math.Pow(salvage/cost, 1/life), 3)
	dep := cost * rate * month / 12
	total := dep
	for p := 2.0; p <= period; p++ {
		if p == life+1 {
			dep = (cost - total) * rate * (12 - month) / 12
		} else {
			dep = (cost - total) * rate
		}
		total += dep
	}
	return dep
}

func fnDDB(fc *FunctionContext, args []Value) Value {
	n, err := numbers(fc, args, 0, 0, 0, 0, 2)
	if err != nil {
		return err
	}
	cost, salvage, life, period, factor := n[0], n[1], n[2], n[3], n[4]
	if cost < 0 || salvage < 0 || life <= 0 || period <= 0 || factor <= 0 || period > life {
		return errorValue(ErrorCodeNum)
	}
	book := cost
	dep := 0.0
	for p := 1.0; p <= period; p++ {
		dep = math.Min(book*factor/life, math.Max(book-salvage, 0))
		book -= dep
	}
	return dep
}

func fnEFFECT(fc *FunctionContext, args []Value) Value {
	n, err := numbers(fc, args, 0, 0)
	if err != nil {
		return err
	}
	rate, periods := n[0], math.Trunc(n[1])
	if rate <= 0 || periods < 1 {
		return errorValue(ErrorCodeNum)
	}
	return math.Pow(1+rate/periods, periods) - 1
}

func fnNOMINAL(fc *FunctionContext, args []Value) Value {
	n, err := numbers(fc, args, 0, 0)
	if err != nil {
		return err
	}
	rate, periods := n[0], math.Trunc(n[1])
	if rate <= 0 || periods < 1 {
		return errorValue(ErrorCodeNum)
	}
	return (math.Pow(1+rate, 1/periods) - 1) * periods
}

func fnNPV(fc *FunctionContext, args []Value) Value {
	rate, err := fc.Number(args[0])
	if err != nil {
		return err
	}
	flows, err := fc.collectNumbers(args[1:], collectOptions{})
	if err != nil {
		return err
	}
	if rate == -1 {
		return errorValue(ErrorCodeDiv0)
	}
	terms := make([]float64, len(flows))
	for i, f := range flows {
		terms[i] = f / math.Pow(1+rate, float64(i+1))
	}
	return checkNumber(sumFloats(terms))
}

// solve runs Newton's method on f from guess
func solve(f func(r float64) (float64, float64), guess float64) (float64, bool) {
	r := guess
	for range 100 {
		y, d := f(r)
		if d == 0 || math.IsNaN(y) {
			return 0, false
		}
		next := r - y/d
		if math.Abs(next-r) < 1e-10 {
			return next, true
		}
		r = next
		if r <= -1 {
			return 0, false
		}
	}
	return 0, false
}

func fnIRR(fc *FunctionContext, args []Value) Value {
	flows, err := fc.collectNumbers(args[:1], collectOptions{})
	if err != nil {
		return err
	}
	guess, err := optNumber(fc, args, 1, 0.1)
	if err != nil {
		return err
	}
	pos, neg := false, false
	for _, f := range flows {
		pos = pos || f > 0
		neg = neg || f < 0
	}
	if !pos || !neg {
		return errorValue(ErrorCodeNum)
	}
	r, ok := solve(func(r float64) (float64, float64) {
		var y, d float64
		for i, f := range flows {
			t := float64(i)
			y += f / math.Pow(1+r, t)
			d -= t * f / math.Pow(1+r, t+1)
		}
		return y, d
	}, guess)
	if !ok {
		return errorValue(ErrorCodeNum)
	}
	return r
}

func datedFlows(fc *FunctionContext, values, dates Value) ([]float64, []float64, *SpreadsheetError) {
	flows, err := fc.collectNumbers([]Value{values}, collectOptions{})
	if err != nil {
		return nil, nil, err
	}
	days, err := fc.collectNumbers([]Value{dates}, collectOptions{})
	if err != nil {
		return nil, nil, err
	}
	if len(flows) != len(days) || len(flows) == 0 {
		return nil, nil, errorValue(ErrorCodeNum)
	}
	for _, d := range days {
		if math.Floor(d) < math.Floor(days[0]) {
			return nil, nil, errorValue(ErrorCodeNum)
		}
	}
	return flows, days, nil
}

func fnXNPV(fc *FunctionContext, args []Value) Value {
	rate, err := fc.Number(args[0])
	if err != nil {
		return err
	}
	flows, days, err := datedFlows(fc, args[1], args[2])
	if err != nil {
		return err
	}
	terms := make([]float64, len(flows))
	for i, f := range flows {
		terms[i] = f / math.Pow(1+rate, (math.Floor(days[i])-math.Floor(days[0]))/365)
	}
	return checkNumber(sumFloats(terms))
}

func fnXIRR(fc *FunctionContext, args []Value) Value {
	flows, days, err := datedFlows(fc, args[0], args[1])
	if err != nil {
		return err
	}
	guess, err := optNumber(fc, args, 2, 0.1)
	if err != nil {
		return err
	}
	r, ok := solve(func(r float64) (float64, float64) {
		var y, d float64
		for i, f := range flows {
			t := (math.Floor(days[i]) - math.Floor(days[0])) / 365
			y += f / math.Pow(1+r, t)
			d -= t * f / math.Pow(1+r, t+1)
		}
		return y, d
	}, guess)
	if !ok {
		return errorValue(ErrorCodeNum)
	}
	return r
}
