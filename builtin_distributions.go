package calc

import "math"

// distFn reads a fixed list of numeric arguments, defaulting omitted
// trailing ones, and hands them to kernel. logical flags arrive as 0 or 1.
func distFn(name string, minArgs int, defaults []float64, kernel func(x []float64) Value) *FunctionDef {
	return &FunctionDef{Name: name, MinArgs: minArgs, MaxArgs: len(defaults), Returns: ReturnNumber, Flags: pure, Impl: func(fc *FunctionContext, args []Value) Value {
		x, err := numbers(fc, args, defaults...)
		if err != nil {
			return err
		}
		return kernel(x)
	}}
}

// sampleFn passes the numbers of the first argument and the remaining
// scalar arguments to kernel
func sampleFn(name string, minArgs int, defaults []float64, kernel func(nums, x []float64) Value) *FunctionDef {
	return &FunctionDef{Name: name, MinArgs: minArgs, MaxArgs: len(defaults) + 1, Args: []ArgKind{ArgRange, ArgValue}, Returns: ReturnNumber, Arrays: SupportsArrays, Flags: pure, Impl: func(fc *FunctionContext, args []Value) Value {
		nums, err := fc.collectNumbers(args[:1], collectOptions{})
		if err != nil {
			return err
		}
		x := make([]float64, len(defaults))
		for i, def := range defaults {
			v, err := optNumber(fc, args, i+1, def)
			if err != nil {
				return err
			}
			x[i] = v
		}
		return kernel(nums, x)
	}}
}

func init() {
	normDist := func(x []float64) Value {
		if x[2] <= 0 {
			return errorValue(ErrorCodeNum)
		}
		z := (x[0] - x[1]) / x[2]
		if x[3] != 0 {
			return normCDF(z)
		}
		return normPDF(z) / x[2]
	}
	normInvFn := func(x []float64) Value {
		if x[0] <= 0 || x[0] >= 1 || x[2] <= 0 {
			return errorValue(ErrorCodeNum)
		}
		return x[1] + x[2]*normInv(x[0])
	}
	lognormDist := func(x []float64) Value {
		if x[0] <= 0 || x[2] <= 0 {
			return errorValue(ErrorCodeNum)
		}
		z := (math.Log(x[0]) - x[1]) / x[2]
		if x[3] != 0 {
			return normCDF(z)
		}
		return normPDF(z) / (x[0] * x[2])
	}
	lognormInv := func(x []float64) Value {
		if x[0] <= 0 || x[0] >= 1 || x[2] <= 0 {
			return errorValue(ErrorCodeNum)
		}
		return math.Exp(x[1] + x[2]*normInv(x[0]))
	}
	gammaDist := func(x []float64) Value {
		if x[0] < 0 || x[1] <= 0 || x[2] <= 0 {
			return errorValue(ErrorCodeNum)
		}
		if x[3] != 0 {
			return gammaP(x[1], x[0]/x[2])
		}
		return gammaPDF(x[0], x[1], x[2])
	}
	gammaInv := func(x []float64) Value {
		p, a, b := x[0], x[1], x[2]
		if p < 0 || p >= 1 || a <= 0 || b <= 0 {
			return errorValue(ErrorCodeNum)
		}
		return invertCDF(func(v float64) float64 { return gammaP(a, v/b) }, p, 0, a*b+1)
	}
	betaInv := func(x []float64) Value {
		p, a, b, lo, hi := x[0], x[1], x[2], x[3], x[4]
		if p <= 0 || p >= 1 || a <= 0 || b <= 0 || lo >= hi {
			return errorValue(ErrorCodeNum)
		}
		r := invertCDF(func(v float64) float64 { return betaI(a, b, v) }, p, 0, 1)
		if f, ok := r.(float64); ok {
			return lo + f*(hi-lo)
		}
		return r
	}
	chisqDist := func(x []float64) Value {
		k := math.Trunc(x[1])
		if x[0] < 0 || k < 1 || k > 1e10 {
			return errorValue(ErrorCodeNum)
		}
		if x[2] != 0 {
			return gammaP(k/2, x[0]/2)
		}
		return gammaPDF(x[0], k/2, 2)
	}
	chisqRight := func(x []float64) Value {
		k := math.Trunc(x[1])
		if x[0] < 0 || k < 1 || k > 1e10 {
			return errorValue(ErrorCodeNum)
		}
		return gammaQ(k/2, x[0]/2)
	}
	chisqInv := func(right bool) func(x []float64) Value {
		return func(x []float64) Value {
			p, k := x[0], math.Trunc(x[1])
			if p < 0 || p > 1 || k < 1 || k > 1e10 {
				return errorValue(ErrorCodeNum)
			}
			if right {
				p = 1 - p
			}
			if p >= 1 {
				return errorValue(ErrorCodeNum)
			}
			return invertCDF(func(v float64) float64 { return gammaP(k/2, v/2) }, p, 0, k+1)
		}
	}
	fDist := func(x []float64) Value {
		d1, d2 := math.Trunc(x[1]), math.Trunc(x[2])
		if x[0] < 0 || d1 < 1 || d2 < 1 {
			return errorValue(ErrorCodeNum)
		}
		if x[3] != 0 {
			return fCDF(x[0], d1, d2)
		}
		return fPDF(x[0], d1, d2)
	}
	fRight := func(x []float64) Value {
		d1, d2 := math.Trunc(x[1]), math.Trunc(x[2])
		if x[0] < 0 || d1 < 1 || d2 < 1 {
			return errorValue(ErrorCodeNum)
		}
		return betaI(d2/2, d1/2, d2/(d2+d1*x[0]))
	}
	fInv := func(right bool) func(x []float64) Value {
		return func(x []float64) Value {
			p, d1, d2 := x[0], math.Trunc(x[1]), math.Trunc(x[2])
			if p < 0 || p > 1 || d1 < 1 || d2 < 1 {
				return errorValue(ErrorCodeNum)
			}
			if right {
				p = 1 - p
			}
			if p >= 1 {
				return errorValue(ErrorCodeNum)
			}
			return invertCDF(func(v float64) float64 { return fCDF(v, d1, d2) }, p, 0, 1)
		}
	}
	tDist := func(x []float64) Value {
		if x[1] < 1 {
			return errorValue(ErrorCodeNum)
		}
		if x[2] != 0 {
			return tCDF(x[0], x[1])
		}
		return tPDF(x[0], x[1])
	}
	tTwoTail := func(x []float64) Value {
		df := math.Trunc(x[1])
		if x[0] < 0 || df < 1 {
			return errorValue(ErrorCodeNum)
		}
		return 2 * (1 - tCDF(x[0], df))
	}
	tRight := func(x []float64) Value {
		df := math.Trunc(x[1])
		if df < 1 {
			return errorValue(ErrorCodeNum)
		}
		return 1 - tCDF(x[0], df)
	}
	tInv := func(x []float64) Value {
		df := math.Trunc(x[1])
		if x[0] <= 0 || x[0] >= 1 || df < 1 {
			return errorValue(ErrorCodeNum)
		}
		return tQuantile(x[0], df)
	}
	tInvTwoTail := func(x []float64) Value {
		df := math.Trunc(x[1])
		if x[0] <= 0 || x[0] > 1 || df < 1 {
			return errorValue(ErrorCodeNum)
		}
		return math.Abs(tQuantile(x[0]/2, df))
	}
	binomDist := func(x []float64) Value {
		k, n, p := math.Trunc(x[0]), math.Trunc(x[1]), x[2]
		if k < 0 || k > n || p < 0 || p > 1 {
			return errorValue(ErrorCodeNum)
		}
		if x[3] != 0 {
			return binomCDF(k, n, p)
		}
		return binomPMF(k, n, p)
	}
	binomInv := func(x []float64) Value {
		n, p, alpha := math.Trunc(x[0]), x[1], x[2]
		if n < 0 || p < 0 || p > 1 || alpha <= 0 || alpha >= 1 {
			return errorValue(ErrorCodeNum)
		}
		cum := 0.0
		for k := 0.0; k < n; k++ {
			cum += binomPMF(k, n, p)
			if cum >= alpha {
				return k
			}
		}
		return n
	}
	poissonDist := func(x []float64) Value {
		k, m := math.Trunc(x[0]), x[1]
		if k < 0 || m < 0 {
			return errorValue(ErrorCodeNum)
		}
		if x[2] != 0 {
			if m == 0 {
				return 1.0
			}
			return gammaQ(k+1, m)
		}
		if m == 0 {
			if k == 0 {
				return 1.0
			}
			return 0.0
		}
		return math.Exp(k*math.Log(m) - m - lgamma(k+1))
	}
	exponDist := func(x []float64) Value {
		if x[0] < 0 || x[1] <= 0 {
			return errorValue(ErrorCodeNum)
		}
		if x[2] != 0 {
			return -math.Expm1(-x[1] * x[0])
		}
		return x[1] * math.Exp(-x[1]*x[0])
	}
	weibullDist := func(x []float64) Value {
		v, a, b := x[0], x[1], x[2]
		if v < 0 || a <= 0 || b <= 0 {
			return errorValue(ErrorCodeNum)
		}
		e := math.Pow(v/b, a)
		if x[3] != 0 {
			return -math.Expm1(-e)
		}
		return a / math.Pow(b, a) * math.Pow(v, a-1) * math.Exp(-e)
	}
	negbinomDist := func(x []float64) Value {
		f, s, p := math.Trunc(x[0]), math.Trunc(x[1]), x[2]
		if f < 0 || s < 1 || p < 0 || p > 1 {
			return errorValue(ErrorCodeNum)
		}
		if x[3] != 0 {
			return betaI(s, f+1, p)
		}
		return checkNumber(math.Exp(lchoose(f+s-1, f)) * math.Pow(p, s) * math.Pow(1-p, f))
	}
	hypgeomDist := func(x []float64) Value {
		k, n, m, total := math.Trunc(x[0]), math.Trunc(x[1]), math.Trunc(x[2]), math.Trunc(x[3])
		if n < 0 || m < 0 || n > total || m > total || total <= 0 {
			return errorValue(ErrorCodeNum)
		}
		lo := math.Max(0, n-total+m)
		if k < lo || k > math.Min(n, m) {
			return errorValue(ErrorCodeNum)
		}
		pmf := func(i float64) float64 {
			return math.Exp(lchoose(m, i) + lchoose(total-m, n-i) - lchoose(total, n))
		}
		if x[4] == 0 {
			return pmf(k)
		}
		cum := 0.0
		for i := lo; i <= k; i++ {
			cum += pmf(i)
		}
		return math.Min(cum, 1)
	}
	betaDist := func(x []float64) Value {
		v, a, b, lo, hi := x[0], x[1], x[2], x[4], x[5]
		if a <= 0 || b <= 0 || v < lo || v > hi || lo == hi {
			return errorValue(ErrorCodeNum)
		}
		z := (v - lo) / (hi - lo)
		if x[3] != 0 {
			return betaI(a, b, z)
		}
		return checkNumber(math.Pow(z, a-1) * math.Pow(1-z, b-1) / math.Exp(lbeta(a, b)) / (hi - lo))
	}
	confidenceT := func(x []float64) Value {
		alpha, sd, n := x[0], x[1], math.Trunc(x[2])
		if alpha <= 0 || alpha >= 1 || sd <= 0 || n < 1 {
			return errorValue(ErrorCodeNum)
		}
		if n == 1 {
			return errorValue(ErrorCodeDiv0)
		}
		return math.Abs(tQuantile(alpha/2, n-1)) * sd / math.Sqrt(n)
	}
	confidenceNorm := func(x []float64) Value {
		alpha, sd, n := x[0], x[1], math.Trunc(x[2])
		if alpha <= 0 || alpha >= 1 || sd <= 0 || n < 1 {
			return errorValue(ErrorCodeNum)
		}
		return -normInv(alpha/2) * sd / math.Sqrt(n)
	}

	register(
		distFn("NORM.DIST", 4, []float64{0, 0, 0, 0}, normDist),
		distFn("NORMDIST", 4, []float64{0, 0, 0, 0}, normDist),
		distFn("NORM.S.DIST", 2, []float64{0, 0}, func(x []float64) Value { return normDist([]float64{x[0], 0, 1, x[1]}) }),
		distFn("NORMSDIST", 1, []float64{0}, func(x []float64) Value { return normCDF(x[0]) }),
		distFn("NORM.INV", 3, []float64{0, 0, 0}, normInvFn),
		distFn("NORMINV", 3, []float64{0, 0, 0}, normInvFn),
		distFn("NORM.S.INV", 1, []float64{0}, func(x []float64) Value { return normInvFn([]float64{x[0], 0, 1}) }),
		distFn("NORMSINV", 1, []float64{0}, func(x []float64) Value { return normInvFn([]float64{x[0], 0, 1}) }),
		distFn("LOGNORM.DIST", 4, []float64{0, 0, 0, 0}, lognormDist),
		distFn("LOGNORMDIST", 3, []float64{0, 0, 0}, func(x []float64) Value { return lognormDist(append(x, 1)) }),
		distFn("LOGNORM.INV", 3, []float64{0, 0, 0}, lognormInv),
		distFn("LOGINV", 3, []float64{0, 0, 0}, lognormInv),
		mathFn("PHI", func(x float64) Value { return normPDF(x) }),
		mathFn("GAUSS", func(x float64) Value { return normCDF(x) - 0.5 }),
		distFn("STANDARDIZE", 3, []float64{0, 0, 0}, func(x []float64) Value {
			if x[2] <= 0 {
				return errorValue(ErrorCodeNum)
			}
			return (x[0] - x[1]) / x[2]
		}),
		mathFn("FISHER", func(x float64) Value {
			if x <= -1 || x >= 1 {
				return errorValue(ErrorCodeNum)
			}
			return math.Atanh(x)
		}),
		mathFn("FISHERINV", func(y float64) Value { return math.Tanh(y) }),

		mathFn("GAMMA", func(x float64) Value {
			if x == 0 || (x < 0 && x == math.Trunc(x)) {
				return errorValue(ErrorCodeNum)
			}
			return checkNumber(math.Gamma(x))
		}),
		mathFn("GAMMALN", gammaLn),
		mathFn("GAMMALN.PRECISE", gammaLn),
		distFn("GAMMA.DIST", 4, []float64{0, 0, 0, 0}, gammaDist),
		distFn("GAMMADIST", 4, []float64{0, 0, 0, 0}, gammaDist),
		distFn("GAMMA.INV", 3, []float64{0, 0, 0}, gammaInv),
		distFn("GAMMAINV", 3, []float64{0, 0, 0}, gammaInv),
		distFn("BETA.DIST", 4, []float64{0, 0, 0, 0, 0, 1}, betaDist),
		distFn("BETADIST", 3, []float64{0, 0, 0, 0, 1}, func(x []float64) Value {
			return betaDist([]float64{x[0], x[1], x[2], 1, x[3], x[4]})
		}),
		distFn("BETA.INV", 3, []float64{0, 0, 0, 0, 1}, betaInv),
		distFn("BETAINV", 3, []float64{0, 0, 0, 0, 1}, betaInv),

		distFn("CHISQ.DIST", 3, []float64{0, 0, 0}, chisqDist),
		distFn("CHISQ.DIST.RT", 2, []float64{0, 0}, chisqRight),
		distFn("CHIDIST", 2, []float64{0, 0}, chisqRight),
		distFn("CHISQ.INV", 2, []float64{0, 0}, chisqInv(false)),
		distFn("CHISQ.INV.RT", 2, []float64{0, 0}, chisqInv(true)),
		distFn("CHIINV", 2, []float64{0, 0}, chisqInv(true)),
		&FunctionDef{Name: "CHISQ.TEST", MinArgs: 2, Returns: ReturnNumber, Arrays: SupportsArrays, Flags: pure, Impl: fnCHISQTEST},
		&FunctionDef{Name: "CHITEST", MinArgs: 2, Returns: ReturnNumber, Arrays: SupportsArrays, Flags: pure, Impl: fnCHISQTEST},

		distFn("F.DIST", 4, []float64{0, 0, 0, 0}, fDist),
		distFn("F.DIST.RT", 3, []float64{0, 0, 0}, fRight),
		distFn("FDIST", 3, []float64{0, 0, 0}, fRight),
		distFn("F.INV", 3, []float64{0, 0, 0}, fInv(false)),
		distFn("F.INV.RT", 3, []float64{0, 0, 0}, fInv(true)),
		distFn("FINV", 3, []float64{0, 0, 0}, fInv(true)),
		&FunctionDef{Name: "F.TEST", MinArgs: 2, Args: []ArgKind{ArgRange}, Returns: ReturnNumber, Arrays: SupportsArrays, Flags: pure, Impl: fnFTEST},
		&FunctionDef{Name: "FTEST", MinArgs: 2, Args: []ArgKind{ArgRange}, Returns: ReturnNumber, Arrays: SupportsArrays, Flags: pure, Impl: fnFTEST},

		distFn("T.DIST", 3, []float64{0, 0, 0}, tDist),
		distFn("T.DIST.2T", 2, []float64{0, 0}, tTwoTail),
		distFn("T.DIST.RT", 2, []float64{0, 0}, tRight),
		distFn("TDIST", 3, []float64{0, 0, 0}, func(x []float64) Value {
			if x[0] < 0 {
				return errorValue(ErrorCodeNum)
			}
			switch x[2] {
			case 1:
				return tRight(x[:2])
			case 2:
				return tTwoTail(x[:2])
			}
			return errorValue(ErrorCodeNum)
		}),
		distFn("T.INV", 2, []float64{0, 0}, tInv),
		distFn("T.INV.2T", 2, []float64{0, 0}, tInvTwoTail),
		distFn("TINV", 2, []float64{0, 0}, tInvTwoTail),
		&FunctionDef{Name: "T.TEST", MinArgs: 4, Args: []ArgKind{ArgRange, ArgRange, ArgValue}, Returns: ReturnNumber, Arrays: SupportsArrays, Flags: pure, Impl: fnTTEST},
		&FunctionDef{Name: "TTEST", MinArgs: 4, Args: []ArgKind{ArgRange, ArgRange, ArgValue}, Returns: ReturnNumber, Arrays: SupportsArrays, Flags: pure, Impl: fnTTEST},
		sampleFn("Z.TEST", 2, []float64{0, math.NaN()}, kernelZTest),
		sampleFn("ZTEST", 2, []float64{0, math.NaN()}, kernelZTest),
		distFn("CONFIDENCE.NORM", 3, []float64{0, 0, 0}, confidenceNorm),
		distFn("CONFIDENCE", 3, []float64{0, 0, 0}, confidenceNorm),
		distFn("CONFIDENCE.T", 3, []float64{0, 0, 0}, confidenceT),

		distFn("BINOM.DIST", 4, []float64{0, 0, 0, 0}, binomDist),
		distFn("BINOMDIST", 4, []float64{0, 0, 0, 0}, binomDist),
		distFn("BINOM.INV", 3, []float64{0, 0, 0}, binomInv),
		distFn("CRITBINOM", 3, []float64{0, 0, 0}, binomInv),
		distFn("BINOM.DIST.RANGE", 3, []float64{0, 0, 0, math.NaN()}, func(x []float64) Value {
			n, p, lo, hi := math.Trunc(x[0]), x[1], math.Trunc(x[2]), x[3]
			if math.IsNaN(hi) {
				hi = lo
			}
			hi = math.Trunc(hi)
			if n < 0 || p < 0 || p > 1 || lo < 0 || lo > n || hi < lo || hi > n {
				return errorValue(ErrorCodeNum)
			}
			sum := 0.0
			for k := lo; k <= hi; k++ {
				sum += binomPMF(k, n, p)
			}
			return sum
		}),
		distFn("NEGBINOM.DIST", 4, []float64{0, 0, 0, 0}, negbinomDist),
		distFn("NEGBINOMDIST", 3, []float64{0, 0, 0}, func(x []float64) Value { return negbinomDist(append(x, 0)) }),
		distFn("HYPGEOM.DIST", 5, []float64{0, 0, 0, 0, 0}, hypgeomDist),
		distFn("HYPGEOMDIST", 4, []float64{0, 0, 0, 0}, func(x []float64) Value { return hypgeomDist(append(x, 0)) }),
		distFn("POISSON.DIST", 3, []float64{0, 0, 0}, poissonDist),
		distFn("POISSON", 3, []float64{0, 0, 0}, poissonDist),
		distFn("EXPON.DIST", 3, []float64{0, 0, 0}, exponDist),
		distFn("EXPONDIST", 3, []float64{0, 0, 0}, exponDist),
		distFn("WEIBULL.DIST", 4, []float64{0, 0, 0, 0}, weibullDist),
		distFn("WEIBULL", 4, []float64{0, 0, 0, 0}, weibullDist),

		statFn("SKEW", collectOptions{}, kernelSkew(true)),
		statFn("SKEW.P", collectOptions{}, kernelSkew(false)),
		statFn("KURT", collectOptions{}, kernelKurt),
		sampleFn("PERCENTRANK", 2, []float64{0, 3}, percentRank(false)),
		sampleFn("PERCENTRANK.INC", 2, []float64{0, 3}, percentRank(false)),
		sampleFn("PERCENTRANK.EXC", 2, []float64{0, 3}, percentRank(true)),
		sampleFn("TRIMMEAN", 2, []float64{0}, kernelTrimmean),
		&FunctionDef{Name: "PROB", MinArgs: 3, MaxArgs: 4, Args: []ArgKind{ArgRange, ArgRange, ArgValue}, Returns: ReturnNumber, Arrays: SupportsArrays, Flags: pure, Impl: fnPROB},
		pairFn("STEYX", func(y, x []float64) Value {
			n := float64(len(x))
			if n < 3 {
				return errorValue(ErrorCodeDiv0)
			}
			slope, intercept, err := regression(x, y)
			if err != nil {
				return err
			}
			ss := 0.0
			for i := range x {
				r := y[i] - (slope*x[i] + intercept)
				ss += r * r
			}
			return math.Sqrt(ss / (n - 2))
		}),
		mathFn2("PERMUTATIONA", func(n, k float64) Value {
			n, k = math.Trunc(n), math.Trunc(k)
			if n < 0 || k < 0 {
				return errorValue(ErrorCodeNum)
			}
			return checkNumber(math.Pow(n, k))
		}),
	)
}

func lgamma(x float64) float64 {
	v, _ := math.Lgamma(x)
	return v
}

func lbeta(a, b float64) float64 {
	return lgamma(a) + lgamma(b) - lgamma(a+b)
}

func lchoose(n, k float64) float64 {
	return lgamma(n+1) - lgamma(k+1) - lgamma(n-k+1)
}

func gammaLn(x float64) Value {
	if x <= 0 {
		return errorValue(ErrorCodeNum)
	}
	return lgamma(x)
}

func normPDF(z float64) float64 {
	return math.Exp(-z*z/2) / math.Sqrt(2*math.Pi)
}

func normCDF(z float64) float64 {
	return 0.5 * math.Erfc(-z/math.Sqrt2)
}

// normInv is the standard normal quantile for p in (0, 1)
func normInv(p float64) float64 {
	return -math.Sqrt2 * math.Erfcinv(2*p)
}

const (
	tinyFloat   = 1e-300
	seriesEpsilon = 1e-15
	seriesSteps = 1000
)

// gammaP is the regularized lower incomplete gamma function
func gammaP(a, x float64) float64 {
	if x <= 0 {
		return 0
	}
	if x >= a+1 {
		return 1 - gammaFraction(a, x)
	}
	term := 1 / a
	sum := term
	for n := 1; n < seriesSteps; n++ {
		term *= x / (a + float64(n))
		sum += term
		if math.Abs(term) < math.Abs(sum)*seriesEpsilon {
			break
		}
	}
	return sum * math.Exp(-x+a*math.Log(x)-lgamma(a))
}

// gammaQ is the regularized upper incomplete gamma function
func gammaQ(a, x float64) float64 {
	if x <= 0 {
		return 1
	}
	if x < a+1 {
		return 1 - gammaP(a, x)
	}
	return gammaFraction(a, x)
}

// gammaFraction evaluates the upper tail with Lentz's continued fraction
func gammaFraction(a, x float64) float64 {
	b := x + 1 - a
	c := 1 / tinyFloat
	d := 1 / b
	h := d
	for i := 1; i < seriesSteps; i++ {
		an := -float64(i) * (float64(i) - a)
		b += 2
		d = an*d + b
		if math.Abs(d) < tinyFloat {
			d = tinyFloat
		}
		c = b + an/c
		if math.Abs(c) < tinyFloat {
			c = tinyFloat
		}
		d = 1 / d
		del := d * c
		h *= del
		if math.Abs(del-1) < seriesEpsilon {
			break
		}
	}
	return math.Exp(-x+a*math.Log(x)-lgamma(a)) * h
}

func gammaPDF(x, a, b float64) Value {
	if x == 0 {
		switch {
		case a < 1:
			return errorValue(ErrorCodeNum)
		case a == 1:
			return 1 / b
		}
		return 0.0
	}
	return checkNumber(math.Exp((a-1)*math.Log(x) - x/b - lgamma(a) - a*math.Log(b)))
}

// betaI is the regularized incomplete beta function
func betaI(a, b, x float64) float64 {
	if x <= 0 {
		return 0
	}
	if x >= 1 {
		return 1
	}
	front := math.Exp(a*math.Log(x) + b*math.Log1p(-x) - lbeta(a, b))
	if x < (a+1)/(a+b+2) {
		return front * betaFraction(a, b, x) / a
	}
	return 1 - front*betaFraction(b, a, 1-x)/b
}

func betaFraction(a, b, x float64) float64 {
	clamp := func(v float64) float64 {
		if math.Abs(v) < tinyFloat {
			return tinyFloat
		}
		return v
	}
	qab, qap, qam := a+b, a+1, a-1
	c := 1.0
	d := 1 / clamp(1-qab*x/qap)
	h := d
	for m := 1; m <= seriesSteps; m++ {
		fm := float64(m)
		m2 := 2 * fm
		aa := fm * (b - fm) * x / ((qam + m2) * (a + m2))
		d = 1 / clamp(1+aa*d)
		c = clamp(1 + aa/c)
		h *= d * c
		aa = -(a + fm) * (qab + fm) * x / ((a + m2) * (qap + m2))
		d = 1 / clamp(1+aa*d)
		c = clamp(1 + aa/c)
		del := d * c
		h *= del
		if math.Abs(del-1) < seriesEpsilon {
			break
		}
	}
	return h
}

// invertCDF finds x >= lo with cdf(x) = p by bisection, doubling the upper
// bound until it brackets p. it reports #N/A when no bracket is found.
func invertCDF(cdf func(float64) float64, p, lo, hi float64) Value {
	for i := 0; cdf(hi) < p; i++ {
		if i > 1100 || math.IsInf(hi, 0) {
			return errorValue(ErrorCodeNA)
		}
		lo, hi = hi, hi*2
	}
	for range 2000 {
		mid := lo + (hi-lo)/2
		if mid == lo || mid == hi {
			break
		}
		if cdf(mid) < p {
			lo = mid
		} else {
			hi = mid
		}
	}
	return lo + (hi-lo)/2
}

func fCDF(x, d1, d2 float64) float64 {
	return betaI(d1/2, d2/2, d1*x/(d1*x+d2))
}

func fPDF(x, d1, d2 float64) Value {
	if x == 0 {
		switch {
		case d1 < 2:
			return errorValue(ErrorCodeNum)
		case d1 == 2:
			return 1.0
		}
		return 0.0
	}
	ln := 0.5*(d1*math.Log(d1*x)+d2*math.Log(d2)-(d1+d2)*math.Log(d1*x+d2)) - lbeta(d1/2, d2/2)
	return checkNumber(math.Exp(ln) / x)
}

func tCDF(t, df float64) float64 {
	tail := 0.5 * betaI(df/2, 0.5, df/(df+t*t))
	if t >= 0 {
		return 1 - tail
	}
	return tail
}

func tPDF(t, df float64) float64 {
	ln := lgamma((df+1)/2) - lgamma(df/2) - 0.5*math.Log(df*math.Pi) - (df+1)/2*math.Log1p(t*t/df)
	return math.Exp(ln)
}

// tQuantile inverts the Student t distribution, using its symmetry
func tQuantile(p, df float64) float64 {
	switch {
	case p == 0.5:
		return 0
	case p < 0.5:
		return -tQuantile(1-p, df)
	}
	r := invertCDF(func(v float64) float64 { return tCDF(v, df) }, p, 0, 1)
	f, _ := r.(float64)
	return f
}

func binomPMF(k, n, p float64) float64 {
	return math.Exp(lchoose(n, k)) * math.Pow(p, k) * math.Pow(1-p, n-k)
}

func binomCDF(k, n, p float64) float64 {
	if k >= n {
		return 1
	}
	return betaI(n-k, k+1, 1-p)
}

func kernelSkew(sample bool) func([]float64) Value {
	return func(nums []float64) Value {
		n := float64(len(nums))
		if n < 3 && sample || n == 0 {
			return errorValue(ErrorCodeDiv0)
		}
		v, err := variance(nums, sample)
		if err != nil {
			return err
		}
		if v == 0 {
			return errorValue(ErrorCodeDiv0)
		}
		m, sd := mean(nums), math.Sqrt(v)
		sum := 0.0
		for _, x := range nums {
			z := (x - m) / sd
			sum += z * z * z
		}
		if sample {
			return n / ((n - 1) * (n - 2)) * sum
		}
		return sum / n
	}
}

func kernelKurt(nums []float64) Value {
	n := float64(len(nums))
	if n < 4 {
		return errorValue(ErrorCodeDiv0)
	}
	v, err := variance(nums, true)
	if err != nil {
		return err
	}
	if v == 0 {
		return errorValue(ErrorCodeDiv0)
	}
	m := mean(nums)
	sum := 0.0
	for _, x := range nums {
		d := (x - m) * (x - m) / v
		sum += d * d
	}
	return n*(n+1)/((n-1)*(n-2)*(n-3))*sum - 3*(n-1)*(n-1)/((n-2)*(n-3))
}

// kernelZTest takes sigma as NaN when it was omitted
func kernelZTest(nums, x []float64) Value {
	n := float64(len(nums))
	if n == 0 {
		return errorValue(ErrorCodeNA)
	}
	sigma := x[1]
	if math.IsNaN(sigma) {
		v, err := variance(nums, true)
		if err != nil {
			return err
		}
		sigma = math.Sqrt(v)
	}
	if sigma == 0 {
		return errorValue(ErrorCodeDiv0)
	}
	return 1 - normCDF((mean(nums)-x[0])/(sigma/math.Sqrt(n)))
}

// percentRank interpolates the rank of x and truncates it to the given
// number of significant digits
func percentRank(exclusive bool) func(nums, x []float64) Value {
	return func(nums, x []float64) Value {
		digits := math.Trunc(x[1])
		if len(nums) == 0 || digits < 1 {
			return errorValue(ErrorCodeNum)
		}
		sorted := sortedCopy(nums)
		n := float64(len(sorted))
		target := x[0]
		if target < sorted[0] || target > sorted[len(sorted)-1] {
			return errorValue(ErrorCodeNA)
		}
		rank := func(i int) float64 {
			if exclusive {
				return (float64(i) + 1) / (n + 1)
			}
			if n == 1 {
				return 1
			}
			return float64(i) / (n - 1)
		}
		var r float64
		for i, v := range sorted {
			if v == target {
				r = rank(i)
				break
			}
			if i+1 < len(sorted) && v < target && target < sorted[i+1] {
				frac := (target - v) / (sorted[i+1] - v)
				r = rank(i) + frac*(rank(i+1)-rank(i))
				break
			}
		}
		scale := math.Pow(10, digits)
		return math.Floor(r*scale+1e-9) / scale
	}
}

func kernelTrimmean(nums, x []float64) Value {
	pct := x[0]
	if len(nums) == 0 || pct < 0 || pct >= 1 {
		return errorValue(ErrorCodeNum)
	}
	trim := int(math.Floor(float64(len(nums))*pct/2))
	sorted := sortedCopy(nums)
	return kernelAverage(sorted[trim : len(sorted)-trim])
}

func fnCHISQTEST(fc *FunctionContext, args []Value) Value {
	actual, err := fc.Array(args[0])
	if err != nil {
		return err
	}
	expected, err := fc.Array(args[1])
	if err != nil {
		return err
	}
	if actual.Rows != expected.Rows || actual.Cols != expected.Cols {
		return errorValue(ErrorCodeNA)
	}
	stat := 0.0
	for i := range actual.Data {
		a, ok1 := actual.Data[i].(float64)
		e, ok2 := expected.Data[i].(float64)
		if !ok1 || !ok2 {
			continue
		}
		if e == 0 {
			return errorValue(ErrorCodeDiv0)
		}
		stat += (a - e) * (a - e) / e
	}
	df := float64((actual.Rows - 1) * (actual.Cols - 1))
	if actual.Rows == 1 || actual.Cols == 1 {
		df = float64(actual.Len() - 1)
	}
	if df < 1 {
		return errorValue(ErrorCodeNA)
	}
	return gammaQ(df/2, stat/2)
}

func fnFTEST(fc *FunctionContext, args []Value) Value {
	a, err := fc.collectNumbers(args[:1], collectOptions{})
	if err != nil {
		return err
	}
	b, err := fc.collectNumbers(args[1:2], collectOptions{})
	if err != nil {
		return err
	}
	if len(a) < 2 || len(b) < 2 {
		return errorValue(ErrorCodeDiv0)
	}
	va, _ := variance(a, true)
	vb, _ := variance(b, true)
	if va == 0 || vb == 0 {
		return errorValue(ErrorCodeDiv0)
	}
	p := fCDF(va/vb, float64(len(a)-1), float64(len(b)-1))
	return 2 * math.Min(p, 1-p)
}

func fnTTEST(fc *FunctionContext, args []Value) Value {
	tails, err := fc.Int(args[2])
	if err != nil {
		return err
	}
	kind, err := fc.Int(args[3])
	if err != nil {
		return err
	}
	if tails != 1 && tails != 2 || kind < 1 || kind > 3 {
		return errorValue(ErrorCodeNum)
	}
	var t, df float64
	if kind == 1 {
		x, y, err := numericPairs(fc, args[0], args[1])
		if err != nil {
			return err
		}
		diffs := make([]float64, len(x))
		for i := range x {
			diffs[i] = x[i] - y[i]
		}
		v, err := variance(diffs, true)
		if err != nil {
			return err
		}
		n := float64(len(diffs))
		if v == 0 {
			return errorValue(ErrorCodeDiv0)
		}
		t, df = mean(diffs)/math.Sqrt(v/n), n-1
	} else {
		a, err := fc.collectNumbers(args[:1], collectOptions{})
		if err != nil {
			return err
		}
		b, err := fc.collectNumbers(args[1:2], collectOptions{})
		if err != nil {
			return err
		}
		if len(a) < 2 || len(b) < 2 {
			return errorValue(ErrorCodeDiv0)
		}
		va, _ := variance(a, true)
		vb, _ := variance(b, true)
		na, nb := float64(len(a)), float64(len(b))
		if kind == 2 {
			pooled := ((na-1)*va + (nb-1)*vb) / (na + nb - 2)
			t, df = (mean(a)-mean(b))/math.Sqrt(pooled*(1/na+1/nb)), na+nb-2
		} else {
			sa, sb := va/na, vb/nb
			t = (mean(a) - mean(b)) / math.Sqrt(sa+sb)
			df = (sa + sb) * (sa + sb) / (sa*sa/(na-1) + sb*sb/(nb-1))
		}
		if math.IsNaN(t) || math.IsInf(t, 0) {
			return errorValue(ErrorCodeDiv0)
		}
	}
	return float64(tails) * (1 - tCDF(math.Abs(t), df))
}

func fnPROB(fc *FunctionContext, args []Value) Value {
	xs, ps, err := numericPairs(fc, args[0], args[1])
	if err != nil {
		return err
	}
	lo, err := fc.Number(args[2])
	if err != nil {
		return err
	}
	hi, err := optNumber(fc, args, 3, lo)
	if err != nil {
		return err
	}
	total, sum := 0.0, 0.0
	for i, p := range ps {
		if p < 0 || p > 1 {
			return errorValue(ErrorCodeNum)
		}
		total += p
		if xs[i] >= lo && xs[i] <= hi {
			sum += p
		}
	}
	if math.Abs(total-1) > 1e-9 {
		return errorValue(ErrorCodeNum)
	}
	return sum
}
