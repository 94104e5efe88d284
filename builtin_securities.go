package calc

import "math"

func init() {
	sec := func(name string, minArgs, maxArgs int, impl func(*FunctionContext, []Value) Value) *FunctionDef {
		return &FunctionDef{Name: name, MinArgs: minArgs, MaxArgs: maxArgs, Returns: ReturnNumber, Flags: pure, Impl: impl}
	}
	register(
		sec("DISC", 4, 5, discounted(func(pr, red, yf float64) Value { return (red - pr) / red / yf })),
		sec("INTRATE", 4, 5, discounted(func(inv, red, yf float64) Value { return (red - inv) / inv / yf })),
		sec("RECEIVED", 4, 5, discounted(func(inv, disc, yf float64) Value {
			d := 1 - disc*yf
			if d <= 0 {
				return errorValue(ErrorCodeNum)
			}
			return inv / d
		})),
		sec("PRICEDISC", 4, 5, discounted(func(disc, red, yf float64) Value { return red - disc*red*yf })),
		sec("YIELDDISC", 4, 5, discounted(func(pr, red, yf float64) Value { return (red/pr - 1) / yf })),
		sec("TBILLPRICE", 3, 3, treasuryBill(func(disc, dsm float64) Value {
			p := 100 * (1 - disc*dsm/360)
			if p <= 0 {
				return errorValue(ErrorCodeNum)
			}
			return p
		})),
		sec("TBILLYIELD", 3, 3, treasuryBill(func(pr, dsm float64) Value { return (100 - pr) / pr * 360 / dsm })),
		sec("TBILLEQ", 3, 3, treasuryBill(func(disc, dsm float64) Value {
			d := 360 - disc*dsm
			if d == 0 {
				return errorValue(ErrorCodeNum)
			}
			return 365 * disc / d
		})),
		sec("PRICEMAT", 5, 6, fnPRICEMAT),
		sec("YIELDMAT", 5, 6, fnYIELDMAT),
		sec("ACCRINTM", 3, 5, fnACCRINTM),
		sec("ACCRINT", 6, 8, fnACCRINT),

		sec("COUPPCD", 3, 4, couponFn(func(c couponPeriod, _ float64) Value { return c.prev })),
		sec("COUPNCD", 3, 4, couponFn(func(c couponPeriod, _ float64) Value { return c.next })),
		sec("COUPNUM", 3, 4, couponFn(func(c couponPeriod, _ float64) Value { return float64(c.n) })),
		sec("COUPDAYBS", 3, 4, couponFn(func(c couponPeriod, _ float64) Value { return c.accrued })),
		sec("COUPDAYS", 3, 4, couponFn(func(c couponPeriod, _ float64) Value { return c.days })),
		sec("COUPDAYSNC", 3, 4, couponFn(func(c couponPeriod, _ float64) Value { return c.remaining })),
		sec("PRICE", 6, 7, fnPRICE),
		sec("YIELD", 6, 7, fnYIELD),
		sec("DURATION", 5, 6, duration(false)),
		sec("MDURATION", 5, 6, duration(true)),
	)
}

// dateArgs reads the leading date arguments as whole serials
func dateArgs(fc *FunctionContext, args []Value, n int) ([]float64, *SpreadsheetError) {
	out := make([]float64, n)
	for i := range n {
		d, err := serialArg(fc, args[i])
		if err != nil {
			return nil, err
		}
		out[i] = math.Floor(d)
	}
	return out, nil
}

func basisArg(fc *FunctionContext, args []Value, i int) (int, *SpreadsheetError) {
	basis, err := optInt(fc, args, i, 0)
	if err != nil {
		return 0, err
	}
	if basis < 0 || basis > 4 {
		return 0, errorValue(ErrorCodeNum)
	}
	return basis, nil
}

func frequencyArg(fc *FunctionContext, v Value) (int, *SpreadsheetError) {
	f, err := fc.Int(v)
	if err != nil {
		return 0, err
	}
	if f != 1 && f != 2 && f != 4 {
		return 0, errorValue(ErrorCodeNum)
	}
	return f, nil
}

// fraction wraps yearFraction for callers that already hold validated
// arguments
func fraction(start, end float64, basis int, d1904 bool) float64 {
	f, _ := yearFraction(start, end, basis, d1904).(float64)
	return f
}

// discounted reads (settlement, maturity, a, b, [basis]) for the discount
// securities; a and b must be positive
func discounted(kernel func(a, b, yf float64) Value) func(*FunctionContext, []Value) Value {
	return func(fc *FunctionContext, args []Value) Value {
		d, err := dateArgs(fc, args, 2)
		if err != nil {
			return err
		}
		a, err := fc.Number(args[2])
		if err != nil {
			return err
		}
		b, err := fc.Number(args[3])
		if err != nil {
			return err
		}
		basis, err := basisArg(fc, args, 4)
		if err != nil {
			return err
		}
		if d[0] >= d[1] || a <= 0 || b <= 0 {
			return errorValue(ErrorCodeNum)
		}
		return checkValue(kernel(a, b, fraction(d[0], d[1], basis, fc.Date1904())))
	}
}

func checkValue(v Value) Value {
	if f, ok := v.(float64); ok {
		return checkNumber(f)
	}
	return v
}

// treasuryBill reads (settlement, maturity, x) with maturity at most a year
// after settlement
func treasuryBill(kernel func(x, dsm float64) Value) func(*FunctionContext, []Value) Value {
	return func(fc *FunctionContext, args []Value) Value {
		d, err := dateArgs(fc, args, 2)
		if err != nil {
			return err
		}
		x, err := fc.Number(args[2])
		if err != nil {
			return err
		}
		dsm := d[1] - d[0]
		if dsm <= 0 || dsm > 365 || x <= 0 {
			return errorValue(ErrorCodeNum)
		}
		return checkValue(kernel(x, dsm))
	}
}

// maturityTerms reads (settlement, maturity, issue, rate, x, [basis]) and
// returns the issue-to-maturity, settlement-to-maturity and
// issue-to-settlement year fractions
func maturityTerms(fc *FunctionContext, args []Value) (rate, x, im, sm, is float64, err *SpreadsheetError) {
	d, err := dateArgs(fc, args, 3)
	if err != nil {
		return
	}
	if rate, err = fc.Number(args[3]); err != nil {
		return
	}
	if x, err = fc.Number(args[4]); err != nil {
		return
	}
	basis, err := basisArg(fc, args, 5)
	if err != nil {
		return
	}
	settlement, maturity, issue := d[0], d[1], d[2]
	if settlement >= maturity || rate < 0 || x < 0 {
		err = errorValue(ErrorCodeNum)
		return
	}
	d1904 := fc.Date1904()
	return rate, x, fraction(issue, maturity, basis, d1904), fraction(settlement, maturity, basis, d1904), fraction(issue, settlement, basis, d1904), nil
}

func fnPRICEMAT(fc *FunctionContext, args []Value) Value {
	rate, yld, im, sm, is, err := maturityTerms(fc, args)
	if err != nil {
		return err
	}
	return checkNumber((100+im*rate*100)/(1+sm*yld) - is*rate*100)
}

func fnYIELDMAT(fc *FunctionContext, args []Value) Value {
	rate, pr, im, sm, is, err := maturityTerms(fc, args)
	if err != nil {
		return err
	}
	if pr == 0 || sm == 0 {
		return errorValue(ErrorCodeNum)
	}
	paid := pr/100 + is*rate
	return checkNumber(((1 + im*rate) - paid) / paid / sm)
}

func fnACCRINTM(fc *FunctionContext, args []Value) Value {
	d, err := dateArgs(fc, args, 2)
	if err != nil {
		return err
	}
	rate, err := fc.Number(args[2])
	if err != nil {
		return err
	}
	par, err := optNumber(fc, args, 3, 1000)
	if err != nil {
		return err
	}
	basis, err := basisArg(fc, args, 4)
	if err != nil {
		return err
	}
	if d[0] >= d[1] || rate <= 0 || par <= 0 {
		return errorValue(ErrorCodeNum)
	}
	return par * rate * fraction(d[0], d[1], basis, fc.Date1904())
}

// fnACCRINT accrues from issue, or from the first interest date when
// calc_method is FALSE and settlement falls after it
func fnACCRINT(fc *FunctionContext, args []Value) Value {
	d, err := dateArgs(fc, args, 3)
	if err != nil {
		return err
	}
	issue, first, settlement := d[0], d[1], d[2]
	rate, err := fc.Number(args[3])
	if err != nil {
		return err
	}
	par, err := optNumber(fc, args, 4, 1000)
	if err != nil {
		return err
	}
	if _, err := frequencyArg(fc, args[5]); err != nil {
		return err
	}
	basis, err := basisArg(fc, args, 6)
	if err != nil {
		return err
	}
	fromIssue, err := optBool(fc, args, 7, true)
	if err != nil {
		return err
	}
	if issue >= settlement || rate <= 0 || par <= 0 {
		return errorValue(ErrorCodeNum)
	}
	start := issue
	if !fromIssue && settlement > first {
		start = first
	}
	return par * rate * fraction(start, settlement, basis, fc.Date1904())
}

// couponPeriod describes the coupon period holding a settlement date
type couponPeriod struct {
	prev, next float64
	// n is the number of coupons left to maturity
	n int
	// accrued counts days from the previous coupon to settlement, remaining
	// from settlement to the next coupon and days the whole period
	accrued, remaining, days float64
}

// couponShift steps maturity back by months, keeping month ends at month
// ends
func couponShift(maturity float64, months int, d1904 bool) float64 {
	y, m, d := dateParts(maturity, d1904)
	eom := d == daysInMonth(y, m)
	total := y*12 + m - 1 - months
	yy, mm := total/12, total%12+1
	if eom || d > daysInMonth(yy, mm) {
		d = daysInMonth(yy, mm)
	}
	return dateSerial(yy, mm, d, d1904)
}

func couponPeriodOf(settlement, maturity float64, freq, basis int, d1904 bool) couponPeriod {
	step := 12 / freq
	c := couponPeriod{next: maturity, n: 1}
	for k := 1; ; k++ {
		prev := couponShift(maturity, k*step, d1904)
		if prev <= settlement {
			c.prev = prev
			break
		}
		c.next = prev
		c.n++
	}
	switch basis {
	case 1:
		c.days = c.next - c.prev
	case 3:
		c.days = 365 / float64(freq)
	default:
		c.days = 360 / float64(freq)
	}
	switch basis {
	case 0:
		c.accrued = days360(c.prev, settlement, false, d1904)
		c.remaining = c.days - c.accrued
	case 4:
		c.accrued = days360(c.prev, settlement, true, d1904)
		c.remaining = c.days - c.accrued
	default:
		c.accrued = settlement - c.prev
		c.remaining = c.next - settlement
	}
	return c
}

// couponArgs reads (settlement, maturity, ...) with the frequency at
// position freqAt and the basis after it
func couponArgs(fc *FunctionContext, args []Value, freqAt int) (couponPeriod, float64, *SpreadsheetError) {
	d, err := dateArgs(fc, args, 2)
	if err != nil {
		return couponPeriod{}, 0, err
	}
	freq, err := frequencyArg(fc, args[freqAt])
	if err != nil {
		return couponPeriod{}, 0, err
	}
	basis, err := basisArg(fc, args, freqAt+1)
	if err != nil {
		return couponPeriod{}, 0, err
	}
	if d[0] >= d[1] {
		return couponPeriod{}, 0, errorValue(ErrorCodeNum)
	}
	return couponPeriodOf(d[0], d[1], freq, basis, fc.Date1904()), float64(freq), nil
}

func couponFn(kernel func(c couponPeriod, freq float64) Value) func(*FunctionContext, []Value) Value {
	return func(fc *FunctionContext, args []Value) Value {
		c, freq, err := couponArgs(fc, args, 2)
		if err != nil {
			return err
		}
		return kernel(c, freq)
	}
}

// bondPrice is the clean price per 100 face of a coupon bond
func bondPrice(c couponPeriod, rate, yld, redemption, freq float64) float64 {
	coupon := 100 * rate / freq
	dsc := c.remaining / c.days
	accrued := coupon * c.accrued / c.days
	if c.n == 1 {
		return (redemption+coupon)/(1+dsc*yld/freq) - accrued
	}
	base := 1 + yld/freq
	price := redemption / math.Pow(base, float64(c.n-1)+dsc)
	for k := 1; k <= c.n; k++ {
		price += coupon / math.Pow(base, float64(k-1)+dsc)
	}
	return price - accrued
}

// bondTerms reads (settlement, maturity, rate, x, redemption, frequency,
// [basis]) as PRICE and YIELD take them
func bondTerms(fc *FunctionContext, args []Value) (c couponPeriod, rate, x, redemption, freq float64, err *SpreadsheetError) {
	if c, freq, err = couponArgs(fc, args, 5); err != nil {
		return
	}
	if rate, err = fc.Number(args[2]); err != nil {
		return
	}
	if x, err = fc.Number(args[3]); err != nil {
		return
	}
	if redemption, err = fc.Number(args[4]); err != nil {
		return
	}
	if rate < 0 || x < 0 || redemption <= 0 {
		err = errorValue(ErrorCodeNum)
	}
	return
}

func fnPRICE(fc *FunctionContext, args []Value) Value {
	c, rate, yld, redemption, freq, err := bondTerms(fc, args)
	if err != nil {
		return err
	}
	return checkNumber(bondPrice(c, rate, yld, redemption, freq))
}

func fnYIELD(fc *FunctionContext, args []Value) Value {
	c, rate, pr, redemption, freq, err := bondTerms(fc, args)
	if err != nil {
		return err
	}
	if pr == 0 {
		return errorValue(ErrorCodeNum)
	}
	const h = 1e-7
	y, ok := solve(func(y float64) (float64, float64) {
		p := bondPrice(c, rate, y, redemption, freq)
		d := (bondPrice(c, rate, y+h, redemption, freq) - bondPrice(c, rate, y-h, redemption, freq)) / (2 * h)
		return p - pr, d
	}, rate+0.01)
	if !ok {
		return errorValue(ErrorCodeNum)
	}
	return y
}

// duration computes the Macaulay duration in years, or the modified
// duration when modified is set
func duration(modified bool) func(*FunctionContext, []Value) Value {
	return func(fc *FunctionContext, args []Value) Value {
		c, freq, err := couponArgs(fc, args, 4)
		if err != nil {
			return err
		}
		rate, err := fc.Number(args[2])
		if err != nil {
			return err
		}
		yld, err := fc.Number(args[3])
		if err != nil {
			return err
		}
		if rate < 0 || yld < 0 {
			return errorValue(ErrorCodeNum)
		}
		coupon := 100 * rate / freq
		base := 1 + yld/freq
		dsc := c.remaining / c.days
		var weighted, total float64
		for k := 1; k <= c.n; k++ {
			t := float64(k-1) + dsc
			cash := coupon
			if k == c.n {
				cash += 100
			}
			pv := cash / math.Pow(base, t)
			weighted += t * pv
			total += pv
		}
		d := weighted / total / freq
		if modified {
			d /= base
		}
		return checkNumber(d)
	}
}
