package calc

import (
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/nfp"
)

// NumberFormat is a parsed number format code such as "#,##0.00" or
// "yyyy-mm-dd". it supports up to four sections: positive, negative, zero
// and text.
type NumberFormat struct {
	Code     string
	General  bool
	sections []fmtSection
}

type fmtTokenKind uint8

const (
	tokLiteral fmtTokenKind = iota
	tokDigit                // 0 # ?
	tokDecimal
	tokPercent
	tokExponent
	tokText // @
	tokDate
	tokAmPm
	tokGeneral
	tokSlash
)

// digit roles inside a fraction section
const (
	roleNone uint8 = iota
	roleInteger
	roleNumerator
	roleDenominator
)

type fmtToken struct {
	kind fmtTokenKind
	text string
	role uint8
}

type fmtSection struct {
	tokens      []fmtToken
	isDate      bool
	hasText     bool
	numeric     bool // has digit placeholders or General
	decimals    int
	minDecimals int
	intZeros    int
	grouping    bool
	scale       int // trailing commas, each divides by 1000
	percent     int
	exponent    bool
	expDigits   int
	expSign     bool // E+ shows the sign of positive exponents
	fraction    bool
	denominator int // fixed denominator such as "# ?/8"
	condition   string
}

// ParseNumberFormat parses a format code. parsing never fails: a code the
// tokenizer rejects renders as General.
func ParseNumberFormat(code string) *NumberFormat {
	nf := &NumberFormat{Code: code}
	if strings.TrimSpace(code) == "" || strings.EqualFold(code, "General") {
		nf.General = true
		return nf
	}
	p := nfp.NumberFormatParser()
	sections := p.Parse(code)
	if len(sections) == 0 {
		nf.General = true
		return nf
	}
	for _, s := range sections {
		nf.sections = append(nf.sections, buildSection(s.Items))
	}
	return nf
}

func isAmPm(s string) bool {
	for _, ap := range nfp.AmPm {
		if strings.EqualFold(s, ap) {
			return true
		}
	}
	return false
}

// isExponentMark reports whether a date-times token is really the E of an
// E- exponent, which the tokenizer does not recognize
func isExponentMark(items []nfp.Token, i int) bool {
	return strings.EqualFold(items[i].TValue, "E") && i+1 < len(items) &&
		items[i+1].TType == nfp.TokenTypeLiteral && items[i+1].TValue == "-"
}

func hasDateCodes(items []nfp.Token) bool {
	for i, it := range items {
		switch it.TType {
		case nfp.TokenTypeElapsedDateTimes:
			return true
		case nfp.TokenTypeDateTimes:
			if !isExponentMark(items, i) {
				return true
			}
		}
	}
	return false
}

func isPlaceholderToken(typ string) bool {
	switch typ {
	case nfp.TokenTypeZeroPlaceHolder, nfp.TokenTypeHashPlaceHolder, nfp.TokenTypeDigitalPlaceHolder,
		nfp.TokenTypeDecimalPoint, nfp.TokenTypeThousandsSeparator:
		return true
	}
	return false
}

// buildSection turns one tokenized section into the form the renderers use
func buildSection(items []nfp.Token) fmtSection {
	sec := fmtSection{isDate: hasDateCodes(items)}
	afterDecimal := false
	digitsSeen := false
	commas := 0
	flush := func() {
		sec.scale += commas
		commas = 0
	}
	literal := func(text string) {
		flush()
		sec.tokens = append(sec.tokens, fmtToken{kind: tokLiteral, text: text})
	}
	for i := 0; i < len(items); i++ {
		it := items[i]
		switch {
		case it.TType == nfp.TokenTypeCondition:
			if len(it.Parts) == 2 {
				sec.condition = it.Parts[0].Token.TValue + it.Parts[1].Token.TValue
			}
		case it.TType == nfp.TokenTypeColor || it.TType == nfp.TokenTypeSwitchArgument || it.TType == nfp.TokenTypeRepeatsChar:
		case it.TType == nfp.TokenTypeCurrencyLanguage:
			for _, part := range it.Parts {
				if part.Token.TType == nfp.TokenSubTypeCurrencyString {
					literal(part.Token.TValue)
				}
			}
		case it.TType == nfp.TokenTypeAlignment:
			literal(" ")
		case it.TType == nfp.TokenTypeGeneral:
			flush()
			sec.numeric = true
			sec.tokens = append(sec.tokens, fmtToken{kind: tokGeneral})
		case it.TType == nfp.TokenTypeTextPlaceHolder:
			flush()
			sec.hasText = true
			sec.tokens = append(sec.tokens, fmtToken{kind: tokText})
		case it.TType == nfp.TokenTypePercent:
			flush()
			for range strings.Count(it.TValue, "%") {
				sec.percent++
				sec.tokens = append(sec.tokens, fmtToken{kind: tokPercent, text: "%"})
			}
		case it.TType == nfp.TokenTypeExponential:
			flush()
			sec.exponent = true
			sec.expSign = strings.HasSuffix(it.TValue, "+")
			sec.tokens = append(sec.tokens, fmtToken{kind: tokExponent})
		case it.TType == nfp.TokenTypeElapsedDateTimes:
			sec.tokens = append(sec.tokens, fmtToken{kind: tokDate, text: "[" + strings.ToLower(it.TValue) + "]"})
		case it.TType == nfp.TokenTypeDateTimes:
			switch {
			case isAmPm(it.TValue):
				sec.tokens = append(sec.tokens, fmtToken{kind: tokAmPm, text: strings.ToUpper(it.TValue)})
			case !sec.isDate && digitsSeen && isExponentMark(items, i):
				flush()
				sec.exponent = true
				sec.tokens = append(sec.tokens, fmtToken{kind: tokExponent})
				i++
			case sec.isDate:
				sec.tokens = append(sec.tokens, fmtToken{kind: tokDate, text: strings.ToLower(it.TValue)})
			default:
				literal(it.TValue)
			}
		case it.TType == nfp.TokenTypeFraction:
			flush()
			sec.fraction = true
			sec.tokens = append(sec.tokens, fmtToken{kind: tokSlash})
		case it.TType == nfp.TokenTypeDenominator:
			sec.denominator, _ = strconv.Atoi(it.TValue)
			sec.tokens = append(sec.tokens, fmtToken{kind: tokLiteral, text: it.TValue, role: roleDenominator})
		case sec.isDate && it.TType == nfp.TokenTypeDecimalPoint:
			// fractional seconds
			zeros := ""
			for i+1 < len(items) && items[i+1].TType == nfp.TokenTypeZeroPlaceHolder {
				i++
				zeros += items[i].TValue
			}
			sec.tokens = append(sec.tokens, fmtToken{kind: tokDate, text: "." + zeros})
		case sec.isDate:
			literal(it.TValue)
		case isPlaceholderToken(it.TType):
			for _, r := range it.TValue {
				switch r {
				case '0', '#', '?':
					digitsSeen = true
					sec.numeric = true
					sec.tokens = append(sec.tokens, fmtToken{kind: tokDigit, text: string(r)})
					switch {
					case sec.exponent:
						sec.expDigits++
						continue
					case sec.fraction:
						continue
					}
					if commas > 0 && !afterDecimal {
						sec.grouping = true
						commas = 0
					}
					if afterDecimal {
						sec.decimals++
						if r == '0' {
							sec.minDecimals++
						}
					} else if r == '0' {
						sec.intZeros++
					}
				case '.':
					if afterDecimal || sec.exponent {
						literal(".")
						continue
					}
					flush()
					afterDecimal = true
					sec.tokens = append(sec.tokens, fmtToken{kind: tokDecimal})
				case ',':
					if digitsSeen {
						commas++
					} else {
						literal(",")
					}
				default:
					literal(string(r))
				}
			}
		case it.TType == nfp.TokenTypeLiteral && digitsSeen && strings.Trim(it.TValue, ",") == "":
			// a comma run the tokenizer left as text still scales
			commas += len(it.TValue)
		default:
			literal(it.TValue)
		}
	}
	flush()
	if sec.isDate {
		resolveMinutes(sec.tokens)
	}
	if sec.fraction {
		assignFractionRoles(sec.tokens)
	}
	return sec
}

// assignFractionRoles splits the digit placeholders of a fraction section
// into integer, numerator and denominator groups
func assignFractionRoles(tokens []fmtToken) {
	slash := -1
	for i, t := range tokens {
		if t.kind == tokSlash {
			slash = i
			break
		}
	}
	if slash < 0 {
		return
	}
	i := slash - 1
	for ; i >= 0 && tokens[i].kind == tokDigit; i-- {
		tokens[i].role = roleNumerator
	}
	for ; i >= 0; i-- {
		if tokens[i].kind == tokDigit {
			tokens[i].role = roleInteger
		}
	}
	for j := slash + 1; j < len(tokens); j++ {
		if tokens[j].kind == tokDigit {
			tokens[j].role = roleDenominator
		}
	}
}

// resolveMinutes marks m codes next to hours or seconds as minutes
func resolveMinutes(tokens []fmtToken) {
	for i, t := range tokens {
		if t.kind != tokDate || (t.text != "m" && t.text != "mm") {
			continue
		}
		minute := false
		for j := i - 1; j >= 0; j-- {
			if tokens[j].kind == tokDate {
				minute = strings.HasPrefix(tokens[j].text, "h") || strings.HasPrefix(tokens[j].text, "[h")
				break
			}
		}
		for j := i + 1; j < len(tokens) && !minute; j++ {
			if tokens[j].kind == tokDate {
				minute = strings.HasPrefix(tokens[j].text, "s")
				break
			}
		}
		if minute {
			tokens[i].text = strings.Repeat("n", len(t.text))
		}
	}
}

// section picks the section for a value and reports whether the sign is
// already expressed by the section
func (nf *NumberFormat) section(x float64) (*fmtSection, bool) {
	n := len(nf.sections)
	if n > 0 && nf.sections[0].condition != "" {
		for i := range nf.sections {
			if nf.sections[i].condition == "" || conditionHolds(nf.sections[i].condition, x) {
				return &nf.sections[i], nf.sections[i].condition != ""
			}
		}
	}
	switch {
	case x < 0 && n >= 2:
		return &nf.sections[1], true
	case x == 0 && n >= 3:
		return &nf.sections[2], false
	}
	return &nf.sections[0], false
}

var conditionOps = []struct {
	text string
	op   BinaryOp
}{
	{"<=", BinOpLessEqual}, {">=", BinOpGreaterEqual}, {"<>", BinOpNotEqual},
	{"<", BinOpLess}, {">", BinOpGreater}, {"=", BinOpEqual},
}

func conditionHolds(cond string, x float64) bool {
	for _, c := range conditionOps {
		rest, ok := strings.CutPrefix(cond, c.text)
		if !ok {
			continue
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(rest), 64)
		if err != nil {
			return false
		}
		holds, _ := compareOp(c.op, compareNumbers(x, v)).(bool)
		return holds
	}
	return false
}

// Format renders a value under the format
func (nf *NumberFormat) Format(v Value, loc *LocaleConfig, date1904 bool) string {
	if loc == nil {
		loc = DefaultLocale()
	}
	switch x := v.(type) {
	case float64:
		if nf.General {
			return localizeNumber(FormatNumber(x), loc)
		}
		sec, signed := nf.section(x)
		if signed {
			x = math.Abs(x)
		}
		switch {
		case sec.isDate:
			return formatDate(sec, x, date1904)
		case sec.hasText && !sec.numeric:
			return localizeNumber(FormatNumber(x), loc)
		case sec.fraction:
			return formatFraction(sec, x)
		}
		return formatNumeric(sec, x, loc)
	case string:
		if len(nf.sections) >= 4 {
			return formatText(&nf.sections[3], x)
		}
		if len(nf.sections) == 1 && hasTextToken(nf.sections[0]) {
			return formatText(&nf.sections[0], x)
		}
		return x
	case bool, nil, *SpreadsheetError:
		return coerceText(x)
	}
	return DisplayString(v)
}

func hasTextToken(sec fmtSection) bool {
	return sec.hasText
}

func formatText(sec *fmtSection, s string) string {
	var b strings.Builder
	for _, t := range sec.tokens {
		switch t.kind {
		case tokText:
			b.WriteString(s)
		case tokLiteral:
			b.WriteString(t.text)
		}
	}
	return b.String()
}

func localizeNumber(s string, loc *LocaleConfig) string {
	if loc.DecimalSeparator == '.' {
		return s
	}
	return strings.Replace(s, ".", string(loc.DecimalSeparator), 1)
}

// scaled applies percent and thousands scaling
func (sec *fmtSection) scaled(x float64) float64 {
	for i := 0; i < sec.percent; i++ {
		x *= 100
	}
	for i := 0; i < sec.scale; i++ {
		x /= 1000
	}
	return x
}

func formatNumeric(sec *fmtSection, x float64, loc *LocaleConfig) string {
	negative := x < 0
	x = math.Abs(sec.scaled(x))
	general := x
	var number string
	switch {
	case sec.exponent:
		number = formatExponent(sec, x, loc)
	case !sectionHasDigits(sec):
		// General placeholders keep their own precision
	default:
		x = roundHalfUp(x, sec.decimals)
		number = trimOptionalDecimals(fixedDigits(x, sec.decimals, sec.intZeros, sec.grouping, loc), sec.decimals-sec.minDecimals, loc)
		if x == 0 {
			negative = false
		}
	}
	var b strings.Builder
	if negative {
		b.WriteByte('-')
	}
	// literals between placeholders are moved after the number
	placed := false
	for _, t := range sec.tokens {
		switch t.kind {
		case tokDigit, tokDecimal, tokExponent:
			if !placed {
				b.WriteString(number)
				placed = true
			}
		case tokLiteral:
			b.WriteString(t.text)
		case tokPercent:
			b.WriteString("%")
		case tokGeneral:
			b.WriteString(localizeNumber(FormatNumber(general), loc))
		}
	}
	return b.String()
}

func sectionHasDigits(sec *fmtSection) bool {
	for _, t := range sec.tokens {
		if t.kind == tokDigit {
			return true
		}
	}
	return false
}

// trimOptionalDecimals drops up to n trailing zeros written by # decimal
// placeholders
func trimOptionalDecimals(number string, n int, loc *LocaleConfig) string {
	if n <= 0 || !strings.ContainsRune(number, loc.DecimalSeparator) {
		return number
	}
	for ; n > 0 && strings.HasSuffix(number, "0"); n-- {
		number = number[:len(number)-1]
	}
	return number
}

// formatFraction renders "# ?/?" style codes. the fraction is the closest
// one whose denominator fits the placeholders, or the fixed denominator.
func formatFraction(sec *fmtSection, x float64) string {
	negative := x < 0
	x = math.Abs(x)
	var intDigits, numDigits, denDigits int
	for _, t := range sec.tokens {
		if t.kind != tokDigit {
			continue
		}
		switch t.role {
		case roleInteger:
			intDigits++
		case roleNumerator:
			numDigits++
		case roleDenominator:
			denDigits++
		}
	}
	whole, frac := 0.0, x
	if intDigits > 0 {
		whole = math.Floor(x)
		frac = x - whole
	}
	num, den := closestFraction(frac, max(denDigits, 1), sec.denominator)
	if intDigits > 0 && num == den {
		whole++
		num = 0
	}
	blankFraction := intDigits > 0 && num == 0
	if whole == 0 && num == 0 {
		negative = false
	}

	var b strings.Builder
	if negative {
		b.WriteByte('-')
	}
	placedInt, placedNum, placedDen := false, false, false
	for _, t := range sec.tokens {
		switch {
		case t.kind == tokDigit && t.role == roleInteger:
			if !placedInt {
				placedInt = true
				if whole != 0 || blankFraction {
					b.WriteString(strconv.FormatFloat(whole, 'f', 0, 64))
				}
			}
		case t.kind == tokDigit && t.role == roleNumerator:
			if !placedNum {
				placedNum = true
				s := strconv.Itoa(num)
				if blankFraction {
					s = ""
				}
				b.WriteString(strings.Repeat(" ", max(numDigits-len(s), 0)) + s)
			}
		case t.kind == tokSlash:
			if blankFraction {
				b.WriteByte(' ')
			} else {
				b.WriteByte('/')
			}
		case t.role == roleDenominator:
			if !placedDen {
				placedDen = true
				s := strconv.Itoa(den)
				if blankFraction {
					s = ""
				}
				b.WriteString(s + strings.Repeat(" ", max(max(denDigits, len(t.text))-len(s), 0)))
			}
		case t.kind == tokLiteral:
			b.WriteString(t.text)
		}
	}
	return b.String()
}

// closestFraction finds num/den nearest to x with at most digits
// denominator digits, or over a fixed denominator when one is given
func closestFraction(x float64, digits, fixed int) (int, int) {
	if fixed > 0 {
		return int(math.Round(x * float64(fixed))), fixed
	}
	maxDen := int(math.Pow10(min(digits, 4))) - 1
	bestNum, bestDen, bestErr := 0, 1, math.Abs(x)
	for d := 1; d <= maxDen && bestErr > 0; d++ {
		n := int(math.Round(x * float64(d)))
		if err := math.Abs(x - float64(n)/float64(d)); err < bestErr-1e-12 {
			bestNum, bestDen, bestErr = n, d, err
		}
	}
	return bestNum, bestDen
}

// fixedDigits renders a non-negative number with fixed decimals, a
// minimum count of integer digits and optional grouping
func fixedDigits(x float64, decimals, intZeros int, grouping bool, loc *LocaleConfig) string {
	s := strconv.FormatFloat(x, 'f', decimals, 64)
	intPart, frac, _ := strings.Cut(s, ".")
	intPart = strings.TrimLeft(intPart, "0")
	for len(intPart) < intZeros {
		intPart = "0" + intPart
	}
	if grouping && len(intPart) > 3 {
		var g strings.Builder
		lead := len(intPart) % 3
		if lead > 0 {
			g.WriteString(intPart[:lead])
		}
		for i := lead; i < len(intPart); i += 3 {
			if g.Len() > 0 {
				g.WriteRune(loc.GroupSeparator)
			}
			g.WriteString(intPart[i : i+3])
		}
		intPart = g.String()
	}
	if decimals == 0 {
		return intPart
	}
	return intPart + string(loc.DecimalSeparator) + frac
}

func formatExponent(sec *fmtSection, x float64, loc *LocaleConfig) string {
	exp := 0
	if x != 0 {
		exp = int(math.Floor(math.Log10(x)))
		intDigits := max(sec.intZeros, 1)
		exp -= intDigits - 1
	}
	mant := x / math.Pow(10, float64(exp))
	mant = roundHalfUp(mant, sec.decimals)
	if mant >= math.Pow(10, float64(max(sec.intZeros, 1))) {
		mant /= 10
		exp++
	}
	m := fixedDigits(mant, sec.decimals, max(sec.intZeros, 1), false, loc)
	sign := ""
	if exp < 0 {
		sign = "-"
	} else if sec.expSign {
		sign = "+"
	}
	digits := strconv.Itoa(absInt(exp))
	for len(digits) < max(sec.expDigits, 1) {
		digits = "0" + digits
	}
	return m + "E" + sign + digits
}

var monthNames = []string{"January", "February", "March", "April", "May", "June", "July", "August", "September", "October", "November", "December"}

func formatDate(sec *fmtSection, serial float64, date1904 bool) string {
	if serial < 0 {
		return strings.Repeat("#", 8)
	}
	t := serialToTime(serial, date1904)
	hasAmPm := false
	for _, tok := range sec.tokens {
		if tok.kind == tokAmPm {
			hasAmPm = true
		}
	}
	var b strings.Builder
	for _, tok := range sec.tokens {
		switch tok.kind {
		case tokLiteral:
			b.WriteString(tok.text)
		case tokAmPm:
			pm := t.Hour() >= 12
			switch {
			case tok.text == "A/P" && pm:
				b.WriteString("P")
			case tok.text == "A/P":
				b.WriteString("A")
			case pm:
				b.WriteString("PM")
			default:
				b.WriteString("AM")
			}
		case tokDate:
			b.WriteString(dateCode(tok.text, t, serial, hasAmPm, date1904))
		case tokDigit, tokDecimal:
		}
	}
	return b.String()
}

func pad2(n int) string {
	if n < 10 {
		return "0" + strconv.Itoa(n)
	}
	return strconv.Itoa(n)
}

func dateCode(code string, t time.Time, serial float64, ampm, date1904 bool) string {
	hour := t.Hour()
	if ampm {
		hour %= 12
		if hour == 0 {
			hour = 12
		}
	}
	switch {
	case code == "yy":
		return pad2(t.Year() % 100)
	case strings.HasPrefix(code, "y"):
		return strconv.Itoa(t.Year())
	case code == "m":
		return strconv.Itoa(int(t.Month()))
	case code == "mm":
		return pad2(int(t.Month()))
	case code == "mmm":
		return monthNames[t.Month()-1][:3]
	case code == "mmmmm":
		return monthNames[t.Month()-1][:1]
	case strings.HasPrefix(code, "mmmm"):
		return monthNames[t.Month()-1]
	case code == "d":
		return strconv.Itoa(t.Day())
	case code == "dd":
		return pad2(t.Day())
	case code == "ddd":
		return t.Weekday().String()[:3]
	case strings.HasPrefix(code, "dddd"):
		return t.Weekday().String()
	case code == "h":
		return strconv.Itoa(hour)
	case strings.HasPrefix(code, "hh"):
		return pad2(hour)
	case code == "n":
		return strconv.Itoa(t.Minute())
	case code == "nn":
		return pad2(t.Minute())
	case code == "s":
		return strconv.Itoa(t.Second())
	case strings.HasPrefix(code, "ss"):
		return pad2(t.Second())
	case code == "[h]" || code == "[hh]":
		return strconv.Itoa(int(math.Floor(serial * 24)))
	case code == "[m]" || code == "[mm]":
		return strconv.Itoa(int(math.Floor(serial * 24 * 60)))
	case code == "[s]" || code == "[ss]":
		return strconv.Itoa(int(math.Floor(serial * 24 * 3600)))
	case strings.HasPrefix(code, "."):
		digits := len(code) - 1
		frac := float64(t.Nanosecond()) / 1e9
		s := strconv.FormatFloat(frac, 'f', digits, 64)
		return s[1:]
	}
	return code
}

// roundStored rounds a value to what the format displays
func (nf *NumberFormat) roundStored(x float64) float64 {
	if nf.General || len(nf.sections) == 0 {
		return x
	}
	sec, _ := nf.section(x)
	if sec.isDate || sec.exponent || sec.fraction || !sec.numeric {
		return x
	}
	factor := sec.scaled(1)
	return roundHalfUp(x*factor, sec.decimals) / factor
}

// fixedText renders FIXED and DOLLAR output
func fixedText(loc *LocaleConfig, x float64, decimals int, grouping bool) string {
	s := fixedDigits(math.Abs(x), decimals, 1, grouping, loc)
	if x < 0 {
		return "-" + s
	}
	return s
}
