package calc

import (
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
)

// maxTextLength is the longest text a cell can hold
const maxTextLength = 32767

func textFn(name string, minArgs, maxArgs int, impl func(*FunctionContext, []Value) Value) *FunctionDef {
	return &FunctionDef{Name: name, MinArgs: minArgs, MaxArgs: maxArgs, Returns: ReturnText, Flags: pure, Impl: impl}
}

func init() {
	register(
		&FunctionDef{Name: "CONCATENATE", MinArgs: 1, MaxArgs: variadic, Returns: ReturnText, Flags: pure, Impl: fnCONCATENATE},
		&FunctionDef{Name: "CONCAT", MinArgs: 1, MaxArgs: variadic, Args: []ArgKind{ArgRange}, Returns: ReturnText, Arrays: SupportsArrays, Flags: pure, Impl: fnCONCAT},
		&FunctionDef{Name: "TEXTJOIN", MinArgs: 3, MaxArgs: variadic, Args: []ArgKind{ArgValue, ArgValue, ArgRange}, Returns: ReturnText, Arrays: SupportsArrays, Flags: pure, Impl: fnTEXTJOIN},
		textFn("LEN", 1, 1, func(fc *FunctionContext, args []Value) Value { return textLength(fc, args, false) }),
		textFn("LENB", 1, 1, func(fc *FunctionContext, args []Value) Value { return textLength(fc, args, true) }),
		textFn("LEFT", 1, 2, func(fc *FunctionContext, args []Value) Value { return textSlice(fc, args, sliceLeft, false) }),
		textFn("LEFTB", 1, 2, func(fc *FunctionContext, args []Value) Value { return textSlice(fc, args, sliceLeft, true) }),
		textFn("RIGHT", 1, 2, func(fc *FunctionContext, args []Value) Value { return textSlice(fc, args, sliceRight, false) }),
		textFn("RIGHTB", 1, 2, func(fc *FunctionContext, args []Value) Value { return textSlice(fc, args, sliceRight, true) }),
		textFn("MID", 3, 3, func(fc *FunctionContext, args []Value) Value { return textMid(fc, args, false) }),
		textFn("MIDB", 3, 3, func(fc *FunctionContext, args []Value) Value { return textMid(fc, args, true) }),
		textFn("UPPER", 1, 1, textMap(func(l *LocaleConfig, s string) string { return l.Upper(s) })),
		textFn("LOWER", 1, 1, textMap(func(l *LocaleConfig, s string) string { return l.Lower(s) })),
		textFn("PROPER", 1, 1, textMap(func(l *LocaleConfig, s string) string { return l.Proper(s) })),
		textFn("TRIM", 1, 1, textMap(func(_ *LocaleConfig, s string) string { return strings.Join(strings.FieldsFunc(s, isSpace), " ") })),
		textFn("CLEAN", 1, 1, textMap(func(_ *LocaleConfig, s string) string {
			return strings.Map(func(r rune) rune {
				if r < 32 {
					return -1
				}
				return r
			}, s)
		})),
		textFn("SUBSTITUTE", 3, 4, fnSUBSTITUTE),
		textFn("REPLACE", 4, 4, func(fc *FunctionContext, args []Value) Value { return textReplace(fc, args, false) }),
		textFn("REPLACEB", 4, 4, func(fc *FunctionContext, args []Value) Value { return textReplace(fc, args, true) }),
		textFn("REPT", 2, 2, fnREPT),
		&FunctionDef{Name: "FIND", MinArgs: 2, MaxArgs: 3, Returns: ReturnNumber, Flags: pure, Impl: finder(false, false)},
		&FunctionDef{Name: "FINDB", MinArgs: 2, MaxArgs: 3, Returns: ReturnNumber, Flags: pure, Impl: finder(false, true)},
		&FunctionDef{Name: "SEARCH", MinArgs: 2, MaxArgs: 3, Returns: ReturnNumber, Flags: pure, Impl: finder(true, false)},
		&FunctionDef{Name: "SEARCHB", MinArgs: 2, MaxArgs: 3, Returns: ReturnNumber, Flags: pure, Impl: finder(true, true)},
		&FunctionDef{Name: "EXACT", MinArgs: 2, Returns: ReturnBool, Flags: pure, Impl: fnEXACT},
		&FunctionDef{Name: "VALUE", MinArgs: 1, Returns: ReturnNumber, Flags: pure, Impl: fnVALUE},
		&FunctionDef{Name: "NUMBERVALUE", MinArgs: 1, MaxArgs: 3, Returns: ReturnNumber, Flags: pure, Impl: fnNUMBERVALUE},
		textFn("TEXT", 2, 2, fnTEXT),
		textFn("FIXED", 1, 3, fnFIXED),
		textFn("DOLLAR", 1, 2, fnDOLLAR),
		textFn("CHAR", 1, 1, fnCHAR),
		&FunctionDef{Name: "CODE", MinArgs: 1, Returns: ReturnNumber, Flags: pure, Impl: fnCODE},
		textFn("UNICHAR", 1, 1, fnUNICHAR),
		&FunctionDef{Name: "UNICODE", MinArgs: 1, Returns: ReturnNumber, Flags: pure, Impl: fnUNICODE},
		textFn("TEXTBEFORE", 2, 6, func(fc *FunctionContext, args []Value) Value { return textAround(fc, args, true) }),
		textFn("TEXTAFTER", 2, 6, func(fc *FunctionContext, args []Value) Value { return textAround(fc, args, false) }),
		&FunctionDef{Name: "VALUETOTEXT", MinArgs: 1, MaxArgs: 2, Returns: ReturnText, Flags: pure | FlagAcceptsErrors, Impl: fnVALUETOTEXT},
		&FunctionDef{Name: "ARRAYTOTEXT", MinArgs: 1, MaxArgs: 2, Returns: ReturnText, Arrays: SupportsArrays, Flags: pure | FlagAcceptsErrors, Impl: fnARRAYTOTEXT},
		&FunctionDef{Name: "TEXTSPLIT", MinArgs: 2, MaxArgs: 6, Returns: ReturnArray, Flags: pure, Arrays: SupportsArrays, Impl: fnTEXTSPLIT},
	)
}

func isSpace(r rune) bool { return r == ' ' }

// checkText rejects results longer than a cell can hold
func checkText(s string) Value {
	if utf8.RuneCountInString(s) > maxTextLength {
		return NewSpreadsheetError(ErrorCodeValue, "text result too long")
	}
	return s
}

func textMap(fn func(*LocaleConfig, string) string) func(*FunctionContext, []Value) Value {
	return func(fc *FunctionContext, args []Value) Value {
		s, err := fc.Text(args[0])
		if err != nil {
			return err
		}
		return fn(fc.Locale(), s)
	}
}

func fnCONCATENATE(fc *FunctionContext, args []Value) Value {
	var b strings.Builder
	for _, a := range args {
		s, err := fc.Text(a)
		if err != nil {
			return err
		}
		b.WriteString(s)
	}
	return checkText(b.String())
}

// joinValues flattens text arguments, skipping blanks from ranges when
// skipEmpty is set
func joinValues(fc *FunctionContext, args []Value, sep string, skipEmpty bool) Value {
	var b strings.Builder
	first := true
	var failed *SpreadsheetError
	for _, a := range args {
		visit := func(v Value) bool {
			if e, ok := v.(*SpreadsheetError); ok {
				failed = e
				return false
			}
			s := coerceText(v)
			if skipEmpty && s == "" {
				return true
			}
			if !first {
				b.WriteString(sep)
			}
			first = false
			b.WriteString(s)
			return true
		}
		if skipEmpty {
			fc.forEachValue(a, func(v Value, _ bool) bool { return visit(v) })
		} else {
			// blanks inside a rectangle take part in the join
			for _, part := range denseParts(fc, a) {
				fc.forEachValue(part, func(v Value, _ bool) bool { return visit(v) })
			}
		}
		if failed != nil {
			return failed
		}
	}
	return checkText(b.String())
}

// denseParts reads each area of a reference argument as an array
func denseParts(fc *FunctionContext, v Value) []Value {
	switch x := v.(type) {
	case *Reference:
		return []Value{fc.Deref(x)}
	case *ReferenceUnion:
		parts := make([]Value, len(x.Areas))
		for i, area := range x.Areas {
			parts[i] = fc.Deref(area)
		}
		return parts
	}
	return []Value{v}
}

func fnCONCAT(fc *FunctionContext, args []Value) Value {
	return joinValues(fc, args, "", true)
}

func fnTEXTJOIN(fc *FunctionContext, args []Value) Value {
	sep, err := fc.Text(args[0])
	if err != nil {
		return err
	}
	skip, err := fc.Bool(args[1])
	if err != nil {
		return err
	}
	return joinValues(fc, args[2:], sep, skip)
}

// textUnits splits text into characters with their width: 1 per
// character, or the DBCS byte count for the *B functions
func textUnits(fc *FunctionContext, s string, bytes bool) ([]rune, []int) {
	runes := []rune(s)
	widths := make([]int, len(runes))
	for i, r := range runes {
		widths[i] = 1
		if bytes {
			widths[i] = fc.Locale().runeBytes(r)
		}
	}
	return runes, widths
}

func textLength(fc *FunctionContext, args []Value, bytes bool) Value {
	s, err := fc.Text(args[0])
	if err != nil {
		return err
	}
	if bytes {
		return float64(fc.Locale().ByteLen(s))
	}
	return float64(utf8.RuneCountInString(s))
}

type sliceSide uint8

const (
	sliceLeft sliceSide = iota
	sliceRight
)

func textSlice(fc *FunctionContext, args []Value, side sliceSide, bytes bool) Value {
	s, err := fc.Text(args[0])
	if err != nil {
		return err
	}
	n, err := optNumber(fc, args, 1, 1)
	if err != nil {
		return err
	}
	if n < 0 {
		return errorValue(ErrorCodeValue)
	}
	runes, widths := textUnits(fc, s, bytes)
	limit := toInt(n)
	if side == sliceLeft {
		used, i := 0, 0
		for ; i < len(runes) && used+widths[i] <= limit; i++ {
			used += widths[i]
		}
		return string(runes[:i])
	}
	used, i := 0, len(runes)
	for ; i > 0 && used+widths[i-1] <= limit; i-- {
		used += widths[i-1]
	}
	return string(runes[i:])
}

// unitIndex maps a 1-based unit position to a rune index
func unitIndex(widths []int, pos int) int {
	used := 0
	for i, w := range widths {
		if used+1 >= pos {
			return i
		}
		used += w
	}
	return len(widths)
}

func textMid(fc *FunctionContext, args []Value, bytes bool) Value {
	s, err := fc.Text(args[0])
	if err != nil {
		return err
	}
	start, err := fc.Number(args[1])
	if err != nil {
		return err
	}
	count, err := fc.Number(args[2])
	if err != nil {
		return err
	}
	if start < 1 || count < 0 {
		return errorValue(ErrorCodeValue)
	}
	runes, widths := textUnits(fc, s, bytes)
	from := unitIndex(widths, toInt(start))
	used, to := 0, from
	for ; to < len(runes) && used+widths[to] <= toInt(count); to++ {
		used += widths[to]
	}
	return string(runes[from:to])
}

func fnSUBSTITUTE(fc *FunctionContext, args []Value) Value {
	s, err := fc.Text(args[0])
	if err != nil {
		return err
	}
	old, err := fc.Text(args[1])
	if err != nil {
		return err
	}
	repl, err := fc.Text(args[2])
	if err != nil {
		return err
	}
	if old == "" {
		return s
	}
	if len(args) < 4 || fc.Omitted(3) {
		return checkText(strings.ReplaceAll(s, old, repl))
	}
	n, err := fc.Number(args[3])
	if err != nil {
		return err
	}
	instance := toInt(n)
	if instance < 1 {
		return errorValue(ErrorCodeValue)
	}
	idx := 0
	for k := 1; ; k++ {
		i := strings.Index(s[idx:], old)
		if i < 0 {
			return s
		}
		if k == instance {
			at := idx + i
			return checkText(s[:at] + repl + s[at+len(old):])
		}
		idx += i + len(old)
	}
}

func textReplace(fc *FunctionContext, args []Value, bytes bool) Value {
	s, err := fc.Text(args[0])
	if err != nil {
		return err
	}
	start, err := fc.Number(args[1])
	if err != nil {
		return err
	}
	count, err := fc.Number(args[2])
	if err != nil {
		return err
	}
	repl, err := fc.Text(args[3])
	if err != nil {
		return err
	}
	if start < 1 || count < 0 {
		return errorValue(ErrorCodeValue)
	}
	runes, widths := textUnits(fc, s, bytes)
	from := unitIndex(widths, toInt(start))
	used, to := 0, from
	for ; to < len(runes) && used+widths[to] <= toInt(count); to++ {
		used += widths[to]
	}
	return checkText(string(runes[:from]) + repl + string(runes[to:]))
}

func fnREPT(fc *FunctionContext, args []Value) Value {
	s, err := fc.Text(args[0])
	if err != nil {
		return err
	}
	n, err := fc.Number(args[1])
	if err != nil {
		return err
	}
	if n < 0 {
		return errorValue(ErrorCodeValue)
	}
	times := toInt(n)
	if times > 0 && utf8.RuneCountInString(s)*times > maxTextLength {
		return NewSpreadsheetError(ErrorCodeValue, "text result too long")
	}
	return strings.Repeat(s, times)
}

// finder implements FIND and SEARCH. SEARCH ignores case and understands
// wildcards.
func finder(search, bytes bool) func(*FunctionContext, []Value) Value {
	return func(fc *FunctionContext, args []Value) Value {
		needle, err := fc.Text(args[0])
		if err != nil {
			return err
		}
		haystack, err := fc.Text(args[1])
		if err != nil {
			return err
		}
		start, err := optNumber(fc, args, 2, 1)
		if err != nil {
			return err
		}
		runes, widths := textUnits(fc, haystack, bytes)
		s := toInt(start)
		if s < 1 || s > len(runes)+1 {
			return errorValue(ErrorCodeValue)
		}
		from := unitIndex(widths, s)
		if needle == "" {
			return float64(s)
		}
		pattern := needle
		if search {
			pattern = foldKey(needle) + "*"
		}
		for i := from; i < len(runes); i++ {
			rest := string(runes[i:])
			var found bool
			if search {
				found = matchWildcard(pattern, foldKey(rest))
			} else {
				found = strings.HasPrefix(rest, needle)
			}
			if found {
				pos := 1
				for k := 0; k < i; k++ {
					pos += widths[k]
				}
				return float64(pos)
			}
		}
		return NewSpreadsheetError(ErrorCodeValue, "text not found")
	}
}

func fnEXACT(fc *FunctionContext, args []Value) Value {
	a, err := fc.Text(args[0])
	if err != nil {
		return err
	}
	b, err := fc.Text(args[1])
	if err != nil {
		return err
	}
	return a == b
}

func fnVALUE(fc *FunctionContext, args []Value) Value {
	switch x := args[0].(type) {
	case float64:
		return x
	case nil:
		return 0.0
	case string:
		if f, ok := fc.ev.ec.coerce.parseNumericText(x); ok {
			return f
		}
	}
	return errorValue(ErrorCodeValue)
}

func fnNUMBERVALUE(fc *FunctionContext, args []Value) Value {
	s, err := fc.Text(args[0])
	if err != nil {
		return err
	}
	loc := *fc.Locale()
	if len(args) > 1 && !fc.Omitted(1) {
		d, err := fc.Text(args[1])
		if err != nil {
			return err
		}
		if d == "" {
			return errorValue(ErrorCodeValue)
		}
		loc.DecimalSeparator, _ = utf8.DecodeRuneInString(d)
	}
	if len(args) > 2 && !fc.Omitted(2) {
		g, err := fc.Text(args[2])
		if err != nil {
			return err
		}
		if g != "" {
			loc.GroupSeparator, _ = utf8.DecodeRuneInString(g)
		}
	}
	if loc.DecimalSeparator == loc.GroupSeparator {
		return errorValue(ErrorCodeValue)
	}
	s = strings.Join(strings.Fields(s), "")
	if s == "" {
		return 0.0
	}
	// only the decimal separator matters here; groups may sit anywhere
	s = strings.ReplaceAll(s, string(loc.GroupSeparator), "")
	loc.GroupSeparator = 0
	f, ok := loc.ParseNumber(s)
	if !ok {
		return errorValue(ErrorCodeValue)
	}
	return f
}

func fnTEXT(fc *FunctionContext, args []Value) Value {
	code, err := fc.Text(args[1])
	if err != nil {
		return err
	}
	format := ParseNumberFormat(code)
	return checkText(format.Format(args[0], fc.Locale(), fc.Date1904()))
}

func fnFIXED(fc *FunctionContext, args []Value) Value {
	n, err := fc.Number(args[0])
	if err != nil {
		return err
	}
	decimals, err := optInt(fc, args, 1, 2)
	if err != nil {
		return err
	}
	noCommas, err := optBool(fc, args, 2, false)
	if err != nil {
		return err
	}
	if decimals > 127 {
		return errorValue(ErrorCodeValue)
	}
	return fixedText(fc.Locale(), roundHalfUp(n, decimals), max(decimals, 0), !noCommas)
}

func fnDOLLAR(fc *FunctionContext, args []Value) Value {
	n, err := fc.Number(args[0])
	if err != nil {
		return err
	}
	decimals, err := optInt(fc, args, 1, 2)
	if err != nil {
		return err
	}
	rounded := roundHalfUp(n, decimals)
	text := fixedText(fc.Locale(), rounded, max(decimals, 0), true)
	symbol := fc.Locale().CurrencySymbol
	if rounded < 0 {
		return "(" + symbol + strings.TrimPrefix(text, "-") + ")"
	}
	return symbol + text
}

// charsetWindows1252 backs CHAR and CODE, which use the ANSI code page
var charsetWindows1252 = charmap.Windows1252

func fnCHAR(fc *FunctionContext, args []Value) Value {
	n, err := fc.Int(args[0])
	if err != nil {
		return err
	}
	if n < 1 || n > 255 {
		return errorValue(ErrorCodeValue)
	}
	return string(charsetWindows1252.DecodeByte(byte(n)))
}

func fnCODE(fc *FunctionContext, args []Value) Value {
	s, err := fc.Text(args[0])
	if err != nil {
		return err
	}
	if s == "" {
		return errorValue(ErrorCodeValue)
	}
	r, _ := utf8.DecodeRuneInString(s)
	b, ok := charsetWindows1252.EncodeRune(r)
	if !ok {
		return 63.0
	}
	return float64(b)
}

func fnUNICHAR(fc *FunctionContext, args []Value) Value {
	n, err := fc.Int(args[0])
	if err != nil {
		return err
	}
	if n < 1 || n > utf8.MaxRune || (n >= 0xD800 && n <= 0xDFFF) {
		return errorValue(ErrorCodeValue)
	}
	return string(rune(n))
}

func fnUNICODE(fc *FunctionContext, args []Value) Value {
	s, err := fc.Text(args[0])
	if err != nil {
		return err
	}
	if s == "" {
		return errorValue(ErrorCodeValue)
	}
	r, _ := utf8.DecodeRuneInString(s)
	return float64(r)
}

// indexOf finds the instance'th delimiter; negative instances count from
// the end. it returns rune offsets of the match.
func indexOf(text, delim []rune, instance int, fold bool) (int, bool) {
	eq := func(a, b rune) bool {
		if fold {
			return foldKey(string(a)) == foldKey(string(b))
		}
		return a == b
	}
	matchAt := func(i int) bool {
		if i+len(delim) > len(text) {
			return false
		}
		for k := range delim {
			if !eq(text[i+k], delim[k]) {
				return false
			}
		}
		return true
	}
	var hits []int
	for i := 0; i+len(delim) <= len(text); i++ {
		if matchAt(i) {
			hits = append(hits, i)
			i += len(delim) - 1
		}
	}
	switch {
	case instance > 0 && instance <= len(hits):
		return hits[instance-1], true
	case instance < 0 && -instance <= len(hits):
		return hits[len(hits)+instance], true
	}
	return 0, false
}

func textAround(fc *FunctionContext, args []Value, before bool) Value {
	s, err := fc.Text(args[0])
	if err != nil {
		return err
	}
	d, err := fc.Text(args[1])
	if err != nil {
		return err
	}
	instance, err := optInt(fc, args, 2, 1)
	if err != nil {
		return err
	}
	mode, err := optInt(fc, args, 3, 0)
	if err != nil {
		return err
	}
	matchEnd, err := optBool(fc, args, 4, false)
	if err != nil {
		return err
	}
	text := []rune(s)
	if instance == 0 || absInt(instance) > len(text)+1 {
		return errorValue(ErrorCodeValue)
	}
	notFound := func() Value {
		if len(args) > 5 && !fc.Omitted(5) {
			return args[5]
		}
		return errorValue(ErrorCodeNA)
	}
	delim := []rune(d)
	var at int
	if len(delim) == 0 {
		if instance > 0 {
			at = 0
		} else {
			at = len(text)
		}
	} else {
		i, ok := indexOf(text, delim, instance, mode == 1)
		if !ok {
			if !matchEnd {
				return notFound()
			}
			if instance > 0 {
				i = len(text)
			} else {
				i = 0
			}
			delim = nil
		}
		at = i
	}
	if before {
		return string(text[:at])
	}
	return string(text[min(at+len(delim), len(text)):])
}

func absInt(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

// delimiters reads TEXTSPLIT's delimiter argument, a text or an array of
// texts
func delimiters(fc *FunctionContext, v Value) ([]string, *SpreadsheetError) {
	if arr, ok := v.(*Array); ok {
		out := make([]string, 0, arr.Len())
		for _, e := range arr.Data {
			s, err := fc.Text(e)
			if err != nil {
				return nil, err
			}
			if s != "" {
				out = append(out, s)
			}
		}
		return out, nil
	}
	s, err := fc.Text(v)
	if err != nil {
		return nil, err
	}
	if s == "" {
		return nil, nil
	}
	return []string{s}, nil
}

// splitAny splits on any of the delimiters
func splitAny(s string, delims []string, fold bool) []string {
	if len(delims) == 0 {
		return []string{s}
	}
	hay := s
	if fold {
		hay = strings.ToLower(s)
	}
	var parts []string
	last := 0
	for i := 0; i < len(s); {
		matched := 0
		for _, d := range delims {
			dd := d
			if fold {
				dd = strings.ToLower(d)
			}
			if strings.HasPrefix(hay[i:], dd) && len(dd) > matched {
				matched = len(dd)
			}
		}
		if matched > 0 {
			parts = append(parts, s[last:i])
			i += matched
			last = i
			continue
		}
		_, size := utf8.DecodeRuneInString(s[i:])
		i += size
	}
	return append(parts, s[last:])
}

func fnTEXTSPLIT(fc *FunctionContext, args []Value) Value {
	s, err := fc.Text(scalarOf(args[0]))
	if err != nil {
		return err
	}
	colDelims, err := delimiters(fc, args[1])
	if err != nil {
		return err
	}
	var rowDelims []string
	if len(args) > 2 && !fc.Omitted(2) {
		rowDelims, err = delimiters(fc, args[2])
		if err != nil {
			return err
		}
	}
	if len(colDelims) == 0 && len(rowDelims) == 0 {
		return errorValue(ErrorCodeValue)
	}
	ignoreEmpty, err := optBool(fc, args, 3, false)
	if err != nil {
		return err
	}
	mode, err := optInt(fc, args, 4, 0)
	if err != nil {
		return err
	}
	var pad Value = errorValue(ErrorCodeNA)
	if len(args) > 5 && !fc.Omitted(5) {
		pad = scalarOf(args[5])
	}
	var rows [][]Value
	for _, line := range splitAny(s, rowDelims, mode == 1) {
		if ignoreEmpty && line == "" {
			continue
		}
		var row []Value
		for _, cell := range splitAny(line, colDelims, mode == 1) {
			if ignoreEmpty && cell == "" {
				continue
			}
			row = append(row, cell)
		}
		rows = append(rows, row)
	}
	if len(rows) == 0 {
		return errorValue(ErrorCodeCalc)
	}
	arr := NewArrayFromRows(rows)
	for i, v := range arr.Data {
		if isErrorCode(v, ErrorCodeNA) {
			arr.Data[i] = pad
		}
	}
	return arr
}

// literalText renders a value as text. strict mode quotes strings the way
// they would be written in a formula.
func literalText(v Value, strict bool) string {
	if s, ok := v.(string); ok && strict {
		return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
	}
	return coerceText(v)
}

func textFormatArg(fc *FunctionContext, args []Value) (bool, *SpreadsheetError) {
	f, err := optInt(fc, args, 1, 0)
	if err != nil {
		return false, err
	}
	if f != 0 && f != 1 {
		return false, errorValue(ErrorCodeValue)
	}
	return f == 1, nil
}

func fnVALUETOTEXT(fc *FunctionContext, args []Value) Value {
	strict, err := textFormatArg(fc, args)
	if err != nil {
		return err
	}
	return literalText(fc.Deref(args[0]), strict)
}

// fnARRAYTOTEXT joins elements with ", " in concise mode and writes an
// array constant in strict mode
func fnARRAYTOTEXT(fc *FunctionContext, args []Value) Value {
	strict, err := textFormatArg(fc, args)
	if err != nil {
		return err
	}
	arr, err := fc.Array(args[0])
	if err != nil {
		arr = NewArray(1, 1)
		arr.Data[0] = err
	}
	var b strings.Builder
	if strict {
		b.WriteByte('{')
	}
	for i := 0; i < arr.Rows; i++ {
		for j := 0; j < arr.Cols; j++ {
			if i > 0 || j > 0 {
				switch {
				case !strict:
					b.WriteString(", ")
				case j == 0:
					b.WriteByte(';')
				default:
					b.WriteByte(',')
				}
			}
			b.WriteString(literalText(arr.At(i, j), strict))
		}
	}
	if strict {
		b.WriteByte('}')
	}
	return checkText(b.String())
}
