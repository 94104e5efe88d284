package calc

import (
	"math"
	"strconv"
	"strings"
)

func init() {
	register(
		&FunctionDef{Name: "VLOOKUP", MinArgs: 3, MaxArgs: 4, Args: []ArgKind{ArgValue, ArgRef, ArgValue, ArgValue}, Flags: pure, Impl: tableLookup(false)},
		&FunctionDef{Name: "HLOOKUP", MinArgs: 3, MaxArgs: 4, Args: []ArgKind{ArgValue, ArgRef, ArgValue, ArgValue}, Flags: pure, Impl: tableLookup(true)},
		&FunctionDef{Name: "LOOKUP", MinArgs: 2, MaxArgs: 3, Args: []ArgKind{ArgValue, ArgRef, ArgRef}, Flags: pure, Impl: fnLOOKUP},
		&FunctionDef{Name: "MATCH", MinArgs: 2, MaxArgs: 3, Args: []ArgKind{ArgValue, ArgRef, ArgValue}, Returns: ReturnNumber, Flags: pure, Impl: fnMATCH},
		&FunctionDef{Name: "XMATCH", MinArgs: 2, MaxArgs: 4, Args: []ArgKind{ArgValue, ArgRef, ArgValue, ArgValue}, Returns: ReturnNumber, Flags: pure, Impl: fnXMATCH},
		&FunctionDef{Name: "XLOOKUP", MinArgs: 3, MaxArgs: 6, Args: []ArgKind{ArgValue, ArgRef, ArgRef, ArgValue, ArgValue, ArgValue}, Flags: pure | FlagAcceptsErrors, Impl: fnXLOOKUP},
		&FunctionDef{Name: "INDEX", MinArgs: 1, MaxArgs: 4, Args: []ArgKind{ArgRef, ArgValue, ArgValue, ArgValue}, Arrays: SupportsArrays, Flags: pure, Impl: fnINDEX},
		&FunctionDef{Name: "OFFSET", MinArgs: 3, MaxArgs: 5, Args: []ArgKind{ArgRef, ArgValue, ArgValue, ArgValue, ArgValue}, Returns: ReturnReference, Flags: FlagVolatile, Impl: fnOFFSET},
		&FunctionDef{Name: "INDIRECT", MinArgs: 1, MaxArgs: 2, Returns: ReturnReference, Flags: FlagVolatile, Impl: fnINDIRECT},
		&FunctionDef{Name: "ROW", MaxArgs: 1, Args: []ArgKind{ArgRef}, Returns: ReturnNumber, Arrays: SupportsArrays, Flags: pure, Impl: positionFn(false)},
		&FunctionDef{Name: "COLUMN", MaxArgs: 1, Args: []ArgKind{ArgRef}, Returns: ReturnNumber, Arrays: SupportsArrays, Flags: pure, Impl: positionFn(true)},
		&FunctionDef{Name: "ROWS", MinArgs: 1, Args: []ArgKind{ArgRef}, Returns: ReturnNumber, Arrays: SupportsArrays, Flags: pure, Impl: extentFn(false)},
		&FunctionDef{Name: "COLUMNS", MinArgs: 1, Args: []ArgKind{ArgRef}, Returns: ReturnNumber, Arrays: SupportsArrays, Flags: pure, Impl: extentFn(true)},
		&FunctionDef{Name: "AREAS", MinArgs: 1, Args: []ArgKind{ArgRef}, Returns: ReturnNumber, Arrays: SupportsArrays, Flags: pure, Impl: fnAREAS},
		&FunctionDef{Name: "ADDRESS", MinArgs: 2, MaxArgs: 5, Returns: ReturnText, Flags: pure, Impl: fnADDRESS},
	)
}

// line is one row or column of a grid, used as a lookup vector
type line struct {
	g          grid
	index      int
	horizontal bool
}

func (l line) len() int {
	if l.horizontal {
		return l.g.cols()
	}
	return l.g.rows()
}

func (l line) at(i int) Value {
	if l.horizontal {
		return l.g.at(l.index, i)
	}
	return l.g.at(i, l.index)
}

// vectorOf requires a single row or column
func vectorOf(g grid) (line, bool) {
	switch {
	case g.cols() == 1:
		return line{g: g}, true
	case g.rows() == 1:
		return line{g: g, horizontal: true}, true
	}
	return line{}, false
}

// lookupEqual is exact matching: text compares case-insensitively and
// optionally with wildcards
func lookupEqual(needle, v Value, wildcard bool) bool {
	switch x := needle.(type) {
	case string:
		s, ok := v.(string)
		if !ok {
			return false
		}
		if wildcard && strings.ContainsAny(x, "*?~") {
			return matchWildcard(foldKey(x), foldKey(s))
		}
		return foldKey(x) == foldKey(s)
	case nil:
		return v == nil
	case *SpreadsheetError:
		return false
	}
	return valuesEqual(needle, v)
}

// orderable reports whether v can be ordered against the needle in an
// approximate search
func orderable(needle, v Value) bool {
	return v != nil && !isError(v) && typeRank(v) == typeRank(needle)
}

// linearFind returns the first (or last) exact match
func linearFind(l line, needle Value, wildcard, reverse bool) int {
	n := l.len()
	for k := 0; k < n; k++ {
		i := k
		if reverse {
			i = n - 1 - k
		}
		if lookupEqual(needle, l.at(i), wildcard) {
			return i
		}
	}
	return -1
}

// binaryFind searches sorted data. ascending returns the last position
// whose value is <= needle; descending returns the last position whose
// value is >= needle. values of another type are stepped over.
func binaryFind(l line, needle Value, descending bool) int {
	lo, hi := 0, l.len()-1
	found := -1
	for lo <= hi {
		mid := lo + (hi-lo)/2
		probe := mid
		for probe >= lo && !orderable(needle, l.at(probe)) {
			probe--
		}
		if probe < lo {
			lo = mid + 1
			continue
		}
		cmp := compareValues(l.at(probe), needle)
		if descending {
			cmp = -cmp
		}
		// equal entries move right so duplicates resolve to the last one
		if cmp <= 0 {
			found = probe
			lo = mid + 1
		} else {
			hi = probe - 1
		}
	}
	return found
}

// nearestFind is XMATCH's linear next-smaller / next-larger search
func nearestFind(l line, needle Value, larger, wildcard, reverse bool) int {
	if i := linearFind(l, needle, wildcard, reverse); i >= 0 {
		return i
	}
	best := -1
	n := l.len()
	for k := 0; k < n; k++ {
		i := k
		if reverse {
			i = n - 1 - k
		}
		v := l.at(i)
		if !orderable(needle, v) {
			continue
		}
		cmp := compareValues(v, needle)
		if (larger && cmp < 0) || (!larger && cmp > 0) {
			continue
		}
		if best < 0 {
			best = i
			continue
		}
		against := compareValues(v, l.at(best))
		if (larger && against < 0) || (!larger && against > 0) {
			best = i
		}
	}
	return best
}

func tableLookup(horizontal bool) func(*FunctionContext, []Value) Value {
	return func(fc *FunctionContext, args []Value) Value {
		needle := args[0]
		table, err := gridOf(fc, args[1])
		if err != nil {
			return err
		}
		index, err := fc.Int(args[2])
		if err != nil {
			return err
		}
		approx, err := optBool(fc, args, 3, true)
		if err != nil {
			return err
		}
		width := table.cols()
		if horizontal {
			width = table.rows()
		}
		if index < 1 {
			return errorValue(ErrorCodeValue)
		}
		if index > width {
			return errorValue(ErrorCodeRef)
		}
		key := line{g: table, horizontal: horizontal}
		var pos int
		if approx {
			pos = binaryFind(key, needle, false)
		} else {
			pos = linearFind(key, needle, true, false)
		}
		if pos < 0 {
			return NewSpreadsheetError(ErrorCodeNA, "lookup value not found")
		}
		if horizontal {
			return table.at(index-1, pos)
		}
		return table.at(pos, index-1)
	}
}

func fnMATCH(fc *FunctionContext, args []Value) Value {
	g, err := gridOf(fc, args[1])
	if err != nil {
		return err
	}
	l, ok := vectorOf(g)
	if !ok {
		return errorValue(ErrorCodeNA)
	}
	kind, err := optInt(fc, args, 2, 1)
	if err != nil {
		return err
	}
	var pos int
	switch {
	case kind == 0:
		pos = linearFind(l, args[0], true, false)
	case kind > 0:
		pos = binaryFind(l, args[0], false)
	default:
		pos = binaryFind(l, args[0], true)
	}
	if pos < 0 {
		return errorValue(ErrorCodeNA)
	}
	return float64(pos + 1)
}

// xfind implements the match and search modes shared by XMATCH and
// XLOOKUP
func xfind(l line, needle Value, matchMode, searchMode int) (int, *SpreadsheetError) {
	wildcard := matchMode == 2
	switch searchMode {
	case 1, -1:
		reverse := searchMode == -1
		switch matchMode {
		case 0, 2:
			return linearFind(l, needle, wildcard, reverse), nil
		case -1:
			return nearestFind(l, needle, false, false, reverse), nil
		case 1:
			return nearestFind(l, needle, true, false, reverse), nil
		}
	case 2, -2:
		descending := searchMode == -2
		if matchMode == 2 {
			return 0, errorValue(ErrorCodeValue)
		}
		pos := binaryFind(l, needle, descending)
		exact := pos >= 0 && lookupEqual(needle, l.at(pos), false)
		switch {
		case exact:
			return pos, nil
		case matchMode == 0:
			return -1, nil
		case matchMode == -1 && !descending, matchMode == 1 && descending:
			return pos, nil
		}
		// the next larger (ascending) or smaller (descending) entry
		next := pos + 1
		for next < l.len() && !orderable(needle, l.at(next)) {
			next++
		}
		if next >= l.len() {
			return -1, nil
		}
		return next, nil
	}
	return 0, errorValue(ErrorCodeValue)
}

func fnXMATCH(fc *FunctionContext, args []Value) Value {
	g, err := gridOf(fc, args[1])
	if err != nil {
		return err
	}
	l, ok := vectorOf(g)
	if !ok {
		return errorValue(ErrorCodeValue)
	}
	matchMode, err := optInt(fc, args, 2, 0)
	if err != nil {
		return err
	}
	searchMode, err := optInt(fc, args, 3, 1)
	if err != nil {
		return err
	}
	pos, err := xfind(l, args[0], matchMode, searchMode)
	if err != nil {
		return err
	}
	if pos < 0 {
		return errorValue(ErrorCodeNA)
	}
	return float64(pos + 1)
}

func fnXLOOKUP(fc *FunctionContext, args []Value) Value {
	if e, ok := args[0].(*SpreadsheetError); ok {
		return e
	}
	keys, err := gridOf(fc, args[1])
	if err != nil {
		return err
	}
	l, ok := vectorOf(keys)
	if !ok {
		return errorValue(ErrorCodeValue)
	}
	results, err := gridOf(fc, args[2])
	if err != nil {
		return err
	}
	if (!l.horizontal && results.rows() != keys.rows()) || (l.horizontal && results.cols() != keys.cols()) {
		return errorValue(ErrorCodeValue)
	}
	for i := 4; i < len(args); i++ {
		if e, isErr := args[i].(*SpreadsheetError); isErr {
			return e
		}
	}
	matchMode, err := optInt(fc, args, 4, 0)
	if err != nil {
		return err
	}
	searchMode, err := optInt(fc, args, 5, 1)
	if err != nil {
		return err
	}
	pos, err := xfind(l, args[0], matchMode, searchMode)
	if err != nil {
		return err
	}
	if pos < 0 {
		if len(args) > 3 && !fc.Omitted(3) {
			return args[3]
		}
		return NewSpreadsheetError(ErrorCodeNA, "lookup value not found")
	}
	return sliceResult(fc, args[2], results, pos, !l.horizontal)
}

// sliceResult returns row (byRow) or column pos of a result grid, as a
// reference when the grid came from one
func sliceResult(fc *FunctionContext, src Value, g grid, pos int, byRow bool) Value {
	if ref, ok := src.(*Reference); ok {
		out := &Reference{Sheet: ref.Sheet, Start: ref.Start, End: ref.End}
		if byRow {
			out.Start.Row = ref.Start.Row + uint32(pos)
			out.End.Row = out.Start.Row
		} else {
			out.Start.Col = ref.Start.Col + uint32(pos)
			out.End.Col = out.Start.Col
		}
		return out
	}
	if byRow {
		arr := NewArray(1, g.cols())
		for j := range g.cols() {
			arr.Data[j] = g.at(pos, j)
		}
		return arr
	}
	arr := NewArray(g.rows(), 1)
	for i := range g.rows() {
		arr.Data[i] = g.at(i, pos)
	}
	return arr
}

func fnLOOKUP(fc *FunctionContext, args []Value) Value {
	g, err := gridOf(fc, args[1])
	if err != nil {
		return err
	}
	if len(args) == 2 {
		// array form: search the first row or column, return from the last
		horizontal := g.cols() > g.rows()
		pos := binaryFind(line{g: g, horizontal: horizontal}, args[0], false)
		if pos < 0 {
			return errorValue(ErrorCodeNA)
		}
		if horizontal {
			return g.at(g.rows()-1, pos)
		}
		return g.at(pos, g.cols()-1)
	}
	l, ok := vectorOf(g)
	if !ok {
		return errorValue(ErrorCodeNA)
	}
	pos := binaryFind(l, args[0], false)
	if pos < 0 {
		return errorValue(ErrorCodeNA)
	}
	res, err := gridOf(fc, args[2])
	if err != nil {
		return err
	}
	out, ok := vectorOf(res)
	if !ok {
		return errorValue(ErrorCodeNA)
	}
	if pos >= out.len() {
		// a short result vector extends down (or right) from its start
		if ref, isRef := args[2].(*Reference); isRef {
			addr := ref.Start
			if out.horizontal {
				addr.Col += uint32(pos)
			} else {
				addr.Row += uint32(pos)
			}
			return fc.ev.res.CellValue(ref.Sheet, addr)
		}
		return errorValue(ErrorCodeNA)
	}
	return out.at(pos)
}

func fnINDEX(fc *FunctionContext, args []Value) Value {
	src := args[0]
	if u, ok := src.(*ReferenceUnion); ok {
		area, err := optInt(fc, args, 3, 1)
		if err != nil {
			return err
		}
		if area < 1 || area > len(u.Areas) {
			return errorValue(ErrorCodeRef)
		}
		src = u.Areas[area-1]
	} else if len(args) > 3 && !fc.Omitted(3) {
		area, err := fc.Int(args[3])
		if err != nil {
			return err
		}
		if area != 1 {
			return errorValue(ErrorCodeRef)
		}
	}
	g, err := gridOf(fc, src)
	if err != nil {
		return err
	}
	row, err := optInt(fc, args, 1, 0)
	if err != nil {
		return err
	}
	col, err := optInt(fc, args, 2, 0)
	if err != nil {
		return err
	}
	if row < 0 || col < 0 {
		return errorValue(ErrorCodeValue)
	}
	// a single row or column takes one index along its length
	if len(args) < 3 || fc.Omitted(2) {
		if g.rows() == 1 && g.cols() > 1 {
			row, col = 1, row
		}
	}
	if row > g.rows() || col > g.cols() {
		return errorValue(ErrorCodeRef)
	}
	if ref, ok := src.(*Reference); ok {
		out := &Reference{Sheet: ref.Sheet, Start: ref.Start, End: ref.End}
		if row > 0 {
			out.Start.Row = ref.Start.Row + uint32(row-1)
			out.End.Row = out.Start.Row
		}
		if col > 0 {
			out.Start.Col = ref.Start.Col + uint32(col-1)
			out.End.Col = out.Start.Col
		}
		return out
	}
	switch {
	case row > 0 && col > 0:
		return g.at(row-1, col-1)
	case row > 0:
		return sliceResult(fc, nil, g, row-1, true)
	case col > 0:
		return sliceResult(fc, nil, g, col-1, false)
	}
	return src
}

func fnOFFSET(fc *FunctionContext, args []Value) Value {
	ref, err := firstArea(args[0])
	if err != nil {
		return err
	}
	var delta [2]int
	for i := range delta {
		if delta[i], err = fc.Int(args[i+1]); err != nil {
			return err
		}
	}
	height, err := optInt(fc, args, 3, ref.Rows())
	if err != nil {
		return err
	}
	width, err := optInt(fc, args, 4, ref.Cols())
	if err != nil {
		return err
	}
	if height == 0 || width == 0 {
		return errorValue(ErrorCodeRef)
	}
	rows, cols := fc.ev.dimensions(ref.Sheet)
	top := int64(ref.Start.Row) + int64(delta[0])
	left := int64(ref.Start.Col) + int64(delta[1])
	// negative extents grow up and to the left
	if height < 0 {
		top += int64(height) + 1
		height = -height
	}
	if width < 0 {
		left += int64(width) + 1
		width = -width
	}
	bottom := top + int64(height) - 1
	right := left + int64(width) - 1
	if top < 0 || left < 0 || bottom >= int64(rows) || right >= int64(cols) {
		return NewSpreadsheetError(ErrorCodeRef, "offset leaves the sheet")
	}
	return NewReference(ref.Sheet,
		CellAddr{Row: uint32(top), Col: uint32(left)},
		CellAddr{Row: uint32(bottom), Col: uint32(right)})
}

func firstArea(v Value) (*Reference, *SpreadsheetError) {
	switch x := v.(type) {
	case *Reference:
		return x, nil
	case *ReferenceUnion:
		if len(x.Areas) == 1 {
			return x.Areas[0], nil
		}
	case *SpreadsheetError:
		return nil, x
	}
	return nil, errorValue(ErrorCodeValue)
}

// fnINDIRECT parses reference text at evaluation time. names and
// structured references are accepted as well as cell addresses.
func fnINDIRECT(fc *FunctionContext, args []Value) Value {
	text, err := fc.Text(args[0])
	if err != nil {
		return err
	}
	a1, err := optBool(fc, args, 1, true)
	if err != nil {
		return err
	}
	style := StyleA1
	if !a1 {
		style = StyleR1C1
	}
	ast, perr := ParseFormula(strings.TrimSpace(text), ParseOptions{
		Style:        style,
		Origin:       fc.Cell(),
		Locale:       fc.Locale(),
		ResolveSheet: fc.ev.res.SheetByName,
	})
	if perr != nil {
		return NewSpreadsheetError(ErrorCodeRef, "invalid reference text")
	}
	switch ast.Root.(type) {
	case *CellRefNode, *RangeNode, *NameNode, *StructuredRefNode, *BinaryOpNode:
	default:
		return NewSpreadsheetError(ErrorCodeRef, "text is not a reference")
	}
	v := fc.Eval(ast.Root)
	switch v.(type) {
	case *Reference, *ReferenceUnion, *SpreadsheetError:
		return v
	}
	return NewSpreadsheetError(ErrorCodeRef, "text is not a reference")
}

// positionFn implements ROW and COLUMN. a multi-cell reference yields a
// vector of positions.
func positionFn(column bool) func(*FunctionContext, []Value) Value {
	return func(fc *FunctionContext, args []Value) Value {
		if len(args) == 0 || fc.Omitted(0) {
			if column {
				return float64(fc.Cell().Col + 1)
			}
			return float64(fc.Cell().Row + 1)
		}
		ref, err := firstArea(args[0])
		if err != nil {
			return err
		}
		if column {
			if ref.Cols() == 1 {
				return float64(ref.Start.Col + 1)
			}
			arr := NewArray(1, ref.Cols())
			for j := range arr.Data {
				arr.Data[j] = float64(ref.Start.Col) + float64(j) + 1
			}
			return arr
		}
		if ref.Rows() == 1 {
			return float64(ref.Start.Row + 1)
		}
		arr := NewArray(ref.Rows(), 1)
		for i := range arr.Data {
			arr.Data[i] = float64(ref.Start.Row) + float64(i) + 1
		}
		return arr
	}
}

func extentFn(column bool) func(*FunctionContext, []Value) Value {
	return func(fc *FunctionContext, args []Value) Value {
		switch x := args[0].(type) {
		case *Reference:
			if column {
				return float64(x.Cols())
			}
			return float64(x.Rows())
		case *ReferenceUnion:
			return errorValue(ErrorCodeRef)
		case *SpreadsheetError:
			return x
		case *Array:
			if column {
				return float64(x.Cols)
			}
			return float64(x.Rows)
		}
		return 1.0
	}
}

func fnAREAS(_ *FunctionContext, args []Value) Value {
	switch x := args[0].(type) {
	case *Reference:
		return 1.0
	case *ReferenceUnion:
		return float64(len(x.Areas))
	case *SpreadsheetError:
		return x
	}
	return errorValue(ErrorCodeValue)
}

func fnADDRESS(fc *FunctionContext, args []Value) Value {
	row, err := fc.Int(args[0])
	if err != nil {
		return err
	}
	col, err := fc.Int(args[1])
	if err != nil {
		return err
	}
	absNum, err := optInt(fc, args, 2, 1)
	if err != nil {
		return err
	}
	a1, err := optBool(fc, args, 3, true)
	if err != nil {
		return err
	}
	if row < 1 || col < 1 || row > math.MaxInt32 || col > math.MaxInt32 || absNum < 1 || absNum > 4 {
		return errorValue(ErrorCodeValue)
	}
	rowAbs := absNum == 1 || absNum == 2
	colAbs := absNum == 1 || absNum == 3
	var addr string
	if a1 {
		addr = FormatA1(CellRef{Row: int32(row - 1), Col: int32(col - 1), RowAbs: rowAbs, ColAbs: colAbs})
	} else {
		var b strings.Builder
		b.WriteByte('R')
		if rowAbs {
			b.WriteString(strconv.Itoa(row))
		} else {
			b.WriteString("[" + strconv.Itoa(row) + "]")
		}
		b.WriteByte('C')
		if colAbs {
			b.WriteString(strconv.Itoa(col))
		} else {
			b.WriteString("[" + strconv.Itoa(col) + "]")
		}
		addr = b.String()
	}
	if len(args) > 4 && !fc.Omitted(4) {
		sheet, err := fc.Text(args[4])
		if err != nil {
			return err
		}
		if sheet != "" {
			return quoteSheetName(sheet) + "!" + addr
		}
	}
	return addr
}
