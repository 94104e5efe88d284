package calc

import (
	"strings"
)

func init() {
	register(
		&FunctionDef{Name: "COUNTIF", MinArgs: 2, Args: []ArgKind{ArgRef, ArgValue}, Returns: ReturnNumber, Flags: pure, Impl: fnCOUNTIF},
		&FunctionDef{Name: "SUMIF", MinArgs: 2, MaxArgs: 3, Args: []ArgKind{ArgRef, ArgValue, ArgRef}, Returns: ReturnNumber, Flags: pure, Impl: fnSUMIF},
		&FunctionDef{Name: "AVERAGEIF", MinArgs: 2, MaxArgs: 3, Args: []ArgKind{ArgRef, ArgValue, ArgRef}, Returns: ReturnNumber, Flags: pure, Impl: fnAVERAGEIF},
		&FunctionDef{Name: "COUNTIFS", MinArgs: 2, MaxArgs: variadic, Args: []ArgKind{ArgRef, ArgValue}, RepeatArgs: 2, Returns: ReturnNumber, Flags: pure, Impl: fnCOUNTIFS},
		ifsAggregate("SUMIFS", func(nums []float64) Value { return checkNumber(sumFloats(nums)) }),
		ifsAggregate("AVERAGEIFS", kernelAverage),
		ifsAggregate("MAXIFS", kernelMax),
		ifsAggregate("MINIFS", kernelMin),
	)
}

// criterion is a parsed COUNTIF-style condition such as ">=5" or "a*"
type criterion struct {
	op       string
	blank    bool // "=" alone, or an empty criterion
	isNumber bool
	number   float64
	isBool   bool
	boolean  bool
	isError  bool
	code     ErrorCode
	text     string // folded
	wildcard bool
}

var criterionOps = []string{"<=", ">=", "<>", "<", ">", "="}

func parseCriterion(c coercion, v Value) *criterion {
	switch x := v.(type) {
	case nil:
		return &criterion{op: "=", blank: true}
	case float64:
		return &criterion{op: "=", isNumber: true, number: x}
	case bool:
		return &criterion{op: "=", isBool: true, boolean: x}
	case *SpreadsheetError:
		return &criterion{op: "=", isError: true, code: x.ErrorCode}
	}
	s, _ := c.text(v)
	cr := &criterion{op: "="}
	for _, op := range criterionOps {
		if strings.HasPrefix(s, op) {
			cr.op = op
			s = s[len(op):]
			break
		}
	}
	if s == "" {
		cr.blank = true
		return cr
	}
	if f, ok := c.parseNumericText(s); ok {
		cr.isNumber = true
		cr.number = f
		return cr
	}
	switch strings.ToUpper(s) {
	case "TRUE":
		cr.isBool, cr.boolean = true, true
		return cr
	case "FALSE":
		cr.isBool = true
		return cr
	}
	if code, ok := errorLiterals[strings.ToUpper(s)]; ok {
		cr.isError, cr.code = true, code
		return cr
	}
	cr.text = foldKey(s)
	cr.wildcard = (cr.op == "=" || cr.op == "<>") && strings.ContainsAny(s, "*?~")
	return cr
}

// matchesBlank reports whether empty cells satisfy the criterion, which
// decides whether a range must be scanned densely
func (cr *criterion) matchesBlank() bool {
	return cr.matches(defaultCoercion(), nil)
}

func (cr *criterion) matches(c coercion, v Value) bool {
	if cr.blank {
		empty := v == nil || v == ""
		switch cr.op {
		case "=":
			return empty
		case "<>":
			return !empty
		}
		return false
	}
	if cr.op == "<>" {
		return !cr.equal(c, v)
	}
	if cr.op == "=" {
		return cr.equal(c, v)
	}
	cmp, ok := cr.compare(v)
	if !ok {
		return false
	}
	switch cr.op {
	case "<":
		return cmp < 0
	case "<=":
		return cmp <= 0
	case ">":
		return cmp > 0
	}
	return cmp >= 0
}

func (cr *criterion) equal(c coercion, v Value) bool {
	switch {
	case cr.isNumber:
		switch x := v.(type) {
		case float64:
			return x == cr.number
		case string:
			f, ok := c.parseNumericText(x)
			return ok && f == cr.number
		}
		return false
	case cr.isBool:
		b, ok := v.(bool)
		return ok && b == cr.boolean
	case cr.isError:
		e, ok := v.(*SpreadsheetError)
		return ok && e.ErrorCode == cr.code
	}
	s, ok := v.(string)
	if !ok {
		if r, isRich := v.(*Entity); isRich {
			s, ok = r.Display, true
		}
	}
	if !ok {
		return false
	}
	if cr.wildcard {
		return matchWildcard(cr.text, foldKey(s))
	}
	return foldKey(s) == cr.text
}

// compare orders a cell value against the criterion operand. values of a
// different kind never satisfy an ordering criterion.
func (cr *criterion) compare(v Value) (int, bool) {
	switch {
	case cr.isNumber:
		f, ok := v.(float64)
		if !ok {
			return 0, false
		}
		return compareNumbers(f, cr.number), true
	case cr.isBool:
		b, ok := v.(bool)
		if !ok {
			return 0, false
		}
		return compareValues(b, cr.boolean), true
	case cr.isError:
		return 0, false
	}
	s, ok := v.(string)
	if !ok {
		return 0, false
	}
	return compareText(s, cr.text), true
}

// matchWildcard matches text against a pattern where * is any run, ? any
// one character and ~ escapes the next character
func matchWildcard(pattern, s string) bool {
	p := []rune(pattern)
	t := []rune(s)
	var match func(pi, ti int) bool
	memo := map[[2]int]bool{}
	match = func(pi, ti int) bool {
		key := [2]int{pi, ti}
		if v, ok := memo[key]; ok {
			return v
		}
		var res bool
		switch {
		case pi == len(p):
			res = ti == len(t)
		case p[pi] == '*':
			res = match(pi+1, ti) || (ti < len(t) && match(pi, ti+1))
		case p[pi] == '~' && pi+1 < len(p):
			res = ti < len(t) && t[ti] == p[pi+1] && match(pi+2, ti+1)
		case p[pi] == '?':
			res = ti < len(t) && match(pi+1, ti+1)
		default:
			res = ti < len(t) && t[ti] == p[pi] && match(pi+1, ti+1)
		}
		memo[key] = res
		return res
	}
	return match(0, 0)
}

// grid is a rectangular input to the criteria functions
type grid interface {
	rows() int
	cols() int
	at(i, j int) Value
	// forEach visits non-blank cells; dense visits every cell
	forEach(dense bool, fn func(i, j int, v Value))
}

type refGrid struct {
	res ValueResolver
	ref *Reference
}

func (g refGrid) rows() int { return g.ref.Rows() }
func (g refGrid) cols() int { return g.ref.Cols() }

func (g refGrid) at(i, j int) Value {
	if i >= g.rows() || j >= g.cols() {
		return nil
	}
	return g.res.CellValue(g.ref.Sheet, CellAddr{Row: g.ref.Start.Row + uint32(i), Col: g.ref.Start.Col + uint32(j)})
}

func (g refGrid) forEach(dense bool, fn func(i, j int, v Value)) {
	if dense {
		rows := g.rows()
		values := make(map[CellAddr]Value)
		g.res.ForEachInRange(g.ref, func(addr CellAddr, v Value) bool {
			values[addr] = v
			return true
		})
		for i := 0; i < rows; i++ {
			for j := 0; j < g.cols(); j++ {
				addr := CellAddr{Row: g.ref.Start.Row + uint32(i), Col: g.ref.Start.Col + uint32(j)}
				fn(i, j, values[addr])
			}
		}
		return
	}
	g.res.ForEachInRange(g.ref, func(addr CellAddr, v Value) bool {
		fn(int(addr.Row-g.ref.Start.Row), int(addr.Col-g.ref.Start.Col), v)
		return true
	})
}

type arrayGrid struct{ arr *Array }

func (g arrayGrid) rows() int { return g.arr.Rows }
func (g arrayGrid) cols() int { return g.arr.Cols }

func (g arrayGrid) at(i, j int) Value {
	if i >= g.arr.Rows || j >= g.arr.Cols {
		return nil
	}
	return g.arr.At(i, j)
}

func (g arrayGrid) forEach(dense bool, fn func(i, j int, v Value)) {
	for i := 0; i < g.arr.Rows; i++ {
		for j := 0; j < g.arr.Cols; j++ {
			if v := g.arr.At(i, j); dense || v != nil {
				fn(i, j, v)
			}
		}
	}
}

func gridOf(fc *FunctionContext, v Value) (grid, *SpreadsheetError) {
	switch x := v.(type) {
	case *Reference:
		return refGrid{res: fc.ev.res, ref: x}, nil
	case *ReferenceUnion:
		if len(x.Areas) == 1 {
			return refGrid{res: fc.ev.res, ref: x.Areas[0]}, nil
		}
		return nil, errorValue(ErrorCodeValue)
	case *Array:
		return arrayGrid{arr: x}, nil
	case *SpreadsheetError:
		return nil, x
	case *Lambda:
		return nil, errorValue(ErrorCodeValue)
	}
	arr := NewArray(1, 1)
	arr.Data[0] = v
	return arrayGrid{arr: arr}, nil
}

// sizedLike resizes a sum range to the shape of the criteria range, anchored
// at its top-left cell
func sizedLike(fc *FunctionContext, v Value, shape grid) (grid, *SpreadsheetError) {
	if ref, ok := v.(*Reference); ok {
		rows, cols := fc.ev.dimensions(ref.Sheet)
		end := CellAddr{
			Row: min(ref.Start.Row+uint32(shape.rows())-1, rows-1),
			Col: min(ref.Start.Col+uint32(shape.cols())-1, cols-1),
		}
		return refGrid{res: fc.ev.res, ref: &Reference{Sheet: ref.Sheet, Start: ref.Start, End: end}}, nil
	}
	return gridOf(fc, v)
}

type cellOffset struct{ i, j int }

// matchingCells returns the offsets in g satisfying cr
func matchingCells(fc *FunctionContext, g grid, cr *criterion) []cellOffset {
	var out []cellOffset
	c := fc.ev.ec.coerce
	g.forEach(cr.matchesBlank(), func(i, j int, v Value) {
		if cr.matches(c, v) {
			out = append(out, cellOffset{i, j})
		}
	})
	return out
}

func fnCOUNTIF(fc *FunctionContext, args []Value) Value {
	g, err := gridOf(fc, args[0])
	if err != nil {
		return err
	}
	cr := parseCriterion(fc.ev.ec.coerce, args[1])
	if ref, ok := args[0].(*Reference); ok && cr.matchesBlank() {
		// count blanks arithmetically instead of visiting every empty cell
		c := fc.ev.ec.coerce
		filled, matched := 0, 0
		fc.ev.res.ForEachInRange(ref, func(_ CellAddr, v Value) bool {
			filled++
			if cr.matches(c, v) {
				matched++
			}
			return true
		})
		return float64(ref.Rect().Area()-uint64(filled)) + float64(matched)
	}
	return float64(len(matchingCells(fc, g, cr)))
}

// numbersAt picks the numeric cells of values at the matched offsets
func numbersAt(values grid, offsets []cellOffset) []float64 {
	var nums []float64
	for _, o := range offsets {
		if f, ok := values.at(o.i, o.j).(float64); ok {
			nums = append(nums, f)
		}
	}
	return nums
}

// conditionalNumbers runs the SUMIF/AVERAGEIF selection
func conditionalNumbers(fc *FunctionContext, args []Value) ([]float64, *SpreadsheetError) {
	g, err := gridOf(fc, args[0])
	if err != nil {
		return nil, err
	}
	cr := parseCriterion(fc.ev.ec.coerce, args[1])
	values := g
	if len(args) > 2 && !fc.Omitted(2) {
		values, err = sizedLike(fc, args[2], g)
		if err != nil {
			return nil, err
		}
	}
	return numbersAt(values, matchingCells(fc, g, cr)), nil
}

func fnSUMIF(fc *FunctionContext, args []Value) Value {
	nums, err := conditionalNumbers(fc, args)
	if err != nil {
		return err
	}
	return checkNumber(sumFloats(nums))
}

func fnAVERAGEIF(fc *FunctionContext, args []Value) Value {
	nums, err := conditionalNumbers(fc, args)
	if err != nil {
		return err
	}
	return kernelAverage(nums)
}

// matchAll intersects the offsets satisfying every (range, criterion) pair
func matchAll(fc *FunctionContext, pairs []Value) ([]cellOffset, grid, *SpreadsheetError) {
	if len(pairs) == 0 || len(pairs)%2 != 0 {
		return nil, nil, errorValue(ErrorCodeValue)
	}
	grids := make([]grid, 0, len(pairs)/2)
	crits := make([]*criterion, 0, len(pairs)/2)
	for i := 0; i < len(pairs); i += 2 {
		g, err := gridOf(fc, pairs[i])
		if err != nil {
			return nil, nil, err
		}
		if len(grids) > 0 && (g.rows() != grids[0].rows() || g.cols() != grids[0].cols()) {
			return nil, nil, NewSpreadsheetError(ErrorCodeValue, "criteria ranges differ in size")
		}
		grids = append(grids, g)
		crits = append(crits, parseCriterion(fc.ev.ec.coerce, pairs[i+1]))
	}
	// drive the scan from a criterion that excludes blanks when there is
	// one, so the iteration stays sparse
	lead := 0
	for k, cr := range crits {
		if !cr.matchesBlank() {
			lead = k
			break
		}
	}
	c := fc.ev.ec.coerce
	candidates := matchingCells(fc, grids[lead], crits[lead])
	out := candidates[:0]
	for _, o := range candidates {
		ok := true
		for k := range grids {
			if k != lead && !crits[k].matches(c, grids[k].at(o.i, o.j)) {
				ok = false
				break
			}
		}
		if ok {
			out = append(out, o)
		}
	}
	return out, grids[0], nil
}

func fnCOUNTIFS(fc *FunctionContext, args []Value) Value {
	offsets, _, err := matchAll(fc, args)
	if err != nil {
		return err
	}
	return float64(len(offsets))
}

// ifsAggregate builds SUMIFS-style functions: a value range followed by
// criteria pairs
func ifsAggregate(name string, kernel func([]float64) Value) *FunctionDef {
	return &FunctionDef{
		Name: name, MinArgs: 3, MaxArgs: variadic,
		Args: []ArgKind{ArgRef, ArgRef, ArgValue}, RepeatArgs: 2,
		Returns: ReturnNumber, Flags: pure,
		Impl: func(fc *FunctionContext, args []Value) Value {
			offsets, shape, err := matchAll(fc, args[1:])
			if err != nil {
				return err
			}
			values, err := gridOf(fc, args[0])
			if err != nil {
				return err
			}
			if values.rows() != shape.rows() || values.cols() != shape.cols() {
				return NewSpreadsheetError(ErrorCodeValue, "value range differs in size from the criteria ranges")
			}
			return kernel(numbersAt(values, offsets))
		},
	}
}
