package calc

import (
	"math"
	"slices"
)

// maxSpillCells bounds arrays built from numeric size arguments
const maxSpillCells = 1 << 24

func init() {
	arrayFn := func(name string, minArgs, maxArgs int, impl func(*FunctionContext, []Value) Value) *FunctionDef {
		return &FunctionDef{Name: name, MinArgs: minArgs, MaxArgs: maxArgs, Returns: ReturnArray, Arrays: SupportsArrays, Flags: pure, Impl: impl}
	}
	register(
		arrayFn("SEQUENCE", 1, 4, fnSEQUENCE),
		&FunctionDef{Name: "RANDARRAY", MaxArgs: 5, Returns: ReturnArray, Arrays: SupportsArrays, Flags: FlagVolatile, Impl: fnRANDARRAY},
		arrayFn("TRANSPOSE", 1, 1, fnTRANSPOSE),
		arrayFn("FILTER", 2, 3, fnFILTER),
		arrayFn("SORT", 1, 4, fnSORT),
		arrayFn("SORTBY", 2, variadic, fnSORTBY),
		arrayFn("UNIQUE", 1, 3, fnUNIQUE),
		arrayFn("TAKE", 2, 3, takeDrop(true)),
		arrayFn("DROP", 2, 3, takeDrop(false)),
		arrayFn("VSTACK", 1, variadic, stack(true)),
		arrayFn("HSTACK", 1, variadic, stack(false)),
		arrayFn("TOCOL", 1, 3, flatten(true)),
		arrayFn("TOROW", 1, 3, flatten(false)),
		arrayFn("WRAPROWS", 2, 3, wrap(true)),
		arrayFn("WRAPCOLS", 2, 3, wrap(false)),
		arrayFn("CHOOSEROWS", 2, variadic, choose(true)),
		arrayFn("CHOOSECOLS", 2, variadic, choose(false)),
		arrayFn("EXPAND", 2, 4, fnEXPAND),
		arrayFn("MMULT", 2, 2, fnMMULT),
		arrayFn("MUNIT", 1, 1, fnMUNIT),
		arrayFn("MINVERSE", 1, 1, fnMINVERSE),
		&FunctionDef{Name: "MDETERM", MinArgs: 1, Returns: ReturnNumber, Arrays: SupportsArrays, Flags: pure, Impl: fnMDETERM},

		&FunctionDef{Name: "MAP", MinArgs: 2, MaxArgs: variadic, Args: []ArgKind{ArgValue}, Arrays: SupportsArrays, Flags: pure, Impl: fnMAP},
		&FunctionDef{Name: "REDUCE", MinArgs: 3, Args: []ArgKind{ArgValue, ArgValue, ArgLambda}, Arrays: SupportsArrays, Flags: pure, Impl: scanFn(false)},
		&FunctionDef{Name: "SCAN", MinArgs: 3, Args: []ArgKind{ArgValue, ArgValue, ArgLambda}, Arrays: SupportsArrays, Flags: pure, Impl: scanFn(true)},
		&FunctionDef{Name: "BYROW", MinArgs: 2, Args: []ArgKind{ArgValue, ArgLambda}, Arrays: SupportsArrays, Flags: pure, Impl: byLine(true)},
		&FunctionDef{Name: "BYCOL", MinArgs: 2, Args: []ArgKind{ArgValue, ArgLambda}, Arrays: SupportsArrays, Flags: pure, Impl: byLine(false)},
		&FunctionDef{Name: "MAKEARRAY", MinArgs: 3, Args: []ArgKind{ArgValue, ArgValue, ArgLambda}, Arrays: SupportsArrays, Flags: pure, Impl: fnMAKEARRAY},
	)
}

// arraySize validates the dimensions of a generated array
func arraySize(rows, cols int) *SpreadsheetError {
	if rows < 1 || cols < 1 {
		return errorValue(ErrorCodeCalc)
	}
	if int64(rows)*int64(cols) > maxSpillCells {
		return NewSpreadsheetError(ErrorCodeNum, "array too large")
	}
	return nil
}

func fnSEQUENCE(fc *FunctionContext, args []Value) Value {
	rows, err := optInt(fc, args, 0, 1)
	if err != nil {
		return err
	}
	cols, err := optInt(fc, args, 1, 1)
	if err != nil {
		return err
	}
	start, err := optNumber(fc, args, 2, 1)
	if err != nil {
		return err
	}
	step, err := optNumber(fc, args, 3, 1)
	if err != nil {
		return err
	}
	if err := arraySize(rows, cols); err != nil {
		return err
	}
	arr := NewArray(rows, cols)
	for i := range arr.Data {
		arr.Data[i] = start + float64(i)*step
	}
	return arr
}

func fnRANDARRAY(fc *FunctionContext, args []Value) Value {
	rows, err := optInt(fc, args, 0, 1)
	if err != nil {
		return err
	}
	cols, err := optInt(fc, args, 1, 1)
	if err != nil {
		return err
	}
	lo, err := optNumber(fc, args, 2, 0)
	if err != nil {
		return err
	}
	hi, err := optNumber(fc, args, 3, 1)
	if err != nil {
		return err
	}
	whole, err := optBool(fc, args, 4, false)
	if err != nil {
		return err
	}
	if err := arraySize(rows, cols); err != nil {
		return err
	}
	if lo > hi {
		return errorValue(ErrorCodeValue)
	}
	arr := NewArray(rows, cols)
	for i := range arr.Data {
		if whole {
			arr.Data[i] = math.Floor(fc.Random()*(math.Floor(hi)-math.Ceil(lo)+1)) + math.Ceil(lo)
		} else {
			arr.Data[i] = lo + fc.Random()*(hi-lo)
		}
	}
	return arr
}

func transpose(a *Array) *Array {
	out := NewArray(a.Cols, a.Rows)
	for i := 0; i < a.Rows; i++ {
		for j := 0; j < a.Cols; j++ {
			out.set(j, i, a.At(i, j))
		}
	}
	return out
}

func fnTRANSPOSE(fc *FunctionContext, args []Value) Value {
	a, err := fc.Array(args[0])
	if err != nil {
		return err
	}
	return transpose(a)
}

func fnFILTER(fc *FunctionContext, args []Value) Value {
	a, err := fc.Array(args[0])
	if err != nil {
		return err
	}
	include, err := fc.Array(args[1])
	if err != nil {
		return err
	}
	var byRow bool
	switch {
	case include.Cols == 1 && include.Rows == a.Rows:
		byRow = true
	case include.Rows == 1 && include.Cols == a.Cols:
		byRow = false
	default:
		return errorValue(ErrorCodeValue)
	}
	keep := make([]int, 0, include.Len())
	for k, v := range include.Data {
		ok, err := fc.ev.ec.coerce.boolean(v)
		if err != nil {
			return err
		}
		if ok {
			keep = append(keep, k)
		}
	}
	if len(keep) == 0 {
		if len(args) > 2 && !fc.Omitted(2) {
			return args[2]
		}
		return NewSpreadsheetError(ErrorCodeCalc, "FILTER found no matching rows")
	}
	if byRow {
		return pickRows(a, keep)
	}
	return pickCols(a, keep)
}

func pickRows(a *Array, rows []int) *Array {
	out := NewArray(len(rows), a.Cols)
	for k, i := range rows {
		copy(out.Data[k*a.Cols:(k+1)*a.Cols], a.Data[i*a.Cols:(i+1)*a.Cols])
	}
	return out
}

func pickCols(a *Array, cols []int) *Array {
	out := NewArray(a.Rows, len(cols))
	for i := 0; i < a.Rows; i++ {
		for k, j := range cols {
			out.set(i, k, a.At(i, j))
		}
	}
	return out
}

// sortCompare orders values for SORT and SORTBY: blanks always sort last
// and errors after booleans
func sortCompare(a, b Value, descending bool) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return 1
	case b == nil:
		return -1
	}
	cmp := compareValues(a, b)
	if descending {
		return -cmp
	}
	return cmp
}

type sortKey struct {
	values     []Value
	descending bool
}

// sortedOrder returns a stable permutation of n lines under the keys
func sortedOrder(n int, keys []sortKey) []int {
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	slices.SortStableFunc(order, func(x, y int) int {
		for _, k := range keys {
			if c := sortCompare(k.values[x], k.values[y], k.descending); c != 0 {
				return c
			}
		}
		return 0
	})
	return order
}

func sortOrderArg(fc *FunctionContext, v Value) (bool, *SpreadsheetError) {
	o, err := fc.Int(v)
	if err != nil {
		return false, err
	}
	switch o {
	case 1:
		return false, nil
	case -1:
		return true, nil
	}
	return false, errorValue(ErrorCodeValue)
}

func fnSORT(fc *FunctionContext, args []Value) Value {
	a, err := fc.Array(args[0])
	if err != nil {
		return err
	}
	index, err := optInt(fc, args, 1, 1)
	if err != nil {
		return err
	}
	descending := false
	if len(args) > 2 && !fc.Omitted(2) {
		if descending, err = sortOrderArg(fc, args[2]); err != nil {
			return err
		}
	}
	byCol, err := optBool(fc, args, 3, false)
	if err != nil {
		return err
	}
	if byCol {
		a = transpose(a)
	}
	if index < 1 || index > a.Cols {
		return errorValue(ErrorCodeValue)
	}
	key := make([]Value, a.Rows)
	for i := range key {
		key[i] = a.At(i, index-1)
	}
	out := pickRows(a, sortedOrder(a.Rows, []sortKey{{values: key, descending: descending}}))
	if byCol {
		return transpose(out)
	}
	return out
}

func fnSORTBY(fc *FunctionContext, args []Value) Value {
	a, err := fc.Array(args[0])
	if err != nil {
		return err
	}
	var keys []sortKey
	byCol := false
	for i := 1; i < len(args); i += 2 {
		by, err := fc.Array(args[i])
		if err != nil {
			return err
		}
		k := sortKey{}
		switch {
		case by.Cols == 1 && by.Rows == a.Rows && (len(keys) == 0 || !byCol):
			k.values = by.Data
		case by.Rows == 1 && by.Cols == a.Cols && (len(keys) == 0 || byCol):
			byCol = true
			k.values = by.Data
		default:
			return errorValue(ErrorCodeValue)
		}
		if i+1 < len(args) && !fc.Omitted(i+1) {
			if k.descending, err = sortOrderArg(fc, args[i+1]); err != nil {
				return err
			}
		}
		keys = append(keys, k)
	}
	if byCol {
		return pickCols(a, sortedOrder(a.Cols, keys))
	}
	return pickRows(a, sortedOrder(a.Rows, keys))
}

// lineKey is the identity of a row for UNIQUE, comparing text
// case-insensitively
func lineKey(values []Value) string {
	key := make([]byte, 0, len(values)*8)
	for _, v := range values {
		key = append(key, byte(typeRank(v)))
		switch x := v.(type) {
		case string:
			key = append(key, foldKey(x)...)
		default:
			key = append(key, coerceText(x)...)
		}
		key = append(key, 0)
	}
	return string(key)
}

func fnUNIQUE(fc *FunctionContext, args []Value) Value {
	a, err := fc.Array(args[0])
	if err != nil {
		return err
	}
	byCol, err := optBool(fc, args, 1, false)
	if err != nil {
		return err
	}
	once, err := optBool(fc, args, 2, false)
	if err != nil {
		return err
	}
	if byCol {
		a = transpose(a)
	}
	counts := map[string]int{}
	first := map[string]int{}
	var order []string
	for i := 0; i < a.Rows; i++ {
		k := lineKey(a.Data[i*a.Cols : (i+1)*a.Cols])
		if _, seen := counts[k]; !seen {
			first[k] = i
			order = append(order, k)
		}
		counts[k]++
	}
	rows := make([]int, 0, len(order))
	for _, k := range order {
		if !once || counts[k] == 1 {
			rows = append(rows, first[k])
		}
	}
	if len(rows) == 0 {
		return NewSpreadsheetError(ErrorCodeCalc, "UNIQUE found no values")
	}
	out := pickRows(a, rows)
	if byCol {
		return transpose(out)
	}
	return out
}

// edgeRange picks the first (n > 0) or last (n < 0) |n| of total indexes
func edgeRange(total, n int, take bool) (int, int) {
	if !take {
		if n >= 0 {
			return min(n, total), total
		}
		return 0, max(total+n, 0)
	}
	if n >= 0 {
		return 0, min(n, total)
	}
	return max(total+n, 0), total
}

func takeDrop(take bool) func(*FunctionContext, []Value) Value {
	return func(fc *FunctionContext, args []Value) Value {
		a, err := fc.Array(args[0])
		if err != nil {
			return err
		}
		r0, r1 := 0, a.Rows
		c0, c1 := 0, a.Cols
		if !fc.Omitted(1) {
			n, err := fc.Int(args[1])
			if err != nil {
				return err
			}
			if take && n == 0 {
				return errorValue(ErrorCodeCalc)
			}
			r0, r1 = edgeRange(a.Rows, n, take)
		}
		if len(args) > 2 && !fc.Omitted(2) {
			n, err := fc.Int(args[2])
			if err != nil {
				return err
			}
			if take && n == 0 {
				return errorValue(ErrorCodeCalc)
			}
			c0, c1 = edgeRange(a.Cols, n, take)
		}
		if r1 <= r0 || c1 <= c0 {
			return errorValue(ErrorCodeCalc)
		}
		out := NewArray(r1-r0, c1-c0)
		for i := r0; i < r1; i++ {
			for j := c0; j < c1; j++ {
				out.set(i-r0, j-c0, a.At(i, j))
			}
		}
		return out
	}
}

func stack(vertical bool) func(*FunctionContext, []Value) Value {
	return func(fc *FunctionContext, args []Value) Value {
		parts := make([]*Array, 0, len(args))
		rows, cols := 0, 0
		for _, arg := range args {
			a, err := fc.Array(arg)
			if err != nil {
				return err
			}
			parts = append(parts, a)
			if vertical {
				rows += a.Rows
				cols = max(cols, a.Cols)
			} else {
				cols += a.Cols
				rows = max(rows, a.Rows)
			}
		}
		if err := arraySize(rows, cols); err != nil {
			return err
		}
		out := NewArray(rows, cols)
		na := errorValue(ErrorCodeNA)
		for i := range out.Data {
			out.Data[i] = na
		}
		offset := 0
		for _, a := range parts {
			for i := 0; i < a.Rows; i++ {
				for j := 0; j < a.Cols; j++ {
					if vertical {
						out.set(offset+i, j, a.At(i, j))
					} else {
						out.set(i, offset+j, a.At(i, j))
					}
				}
			}
			if vertical {
				offset += a.Rows
			} else {
				offset += a.Cols
			}
		}
		return out
	}
}

func flatten(column bool) func(*FunctionContext, []Value) Value {
	return func(fc *FunctionContext, args []Value) Value {
		a, err := fc.Array(args[0])
		if err != nil {
			return err
		}
		ignore, err := optInt(fc, args, 1, 0)
		if err != nil {
			return err
		}
		if ignore < 0 || ignore > 3 {
			return errorValue(ErrorCodeValue)
		}
		byCol, err := optBool(fc, args, 2, false)
		if err != nil {
			return err
		}
		src := a
		if byCol {
			src = transpose(a)
		}
		values := make([]Value, 0, src.Len())
		for _, v := range src.Data {
			if (ignore&1 != 0 && v == nil) || (ignore&2 != 0 && isError(v)) {
				continue
			}
			values = append(values, v)
		}
		if len(values) == 0 {
			return errorValue(ErrorCodeCalc)
		}
		if column {
			return &Array{Rows: len(values), Cols: 1, Data: values}
		}
		return &Array{Rows: 1, Cols: len(values), Data: values}
	}
}

func wrap(byRows bool) func(*FunctionContext, []Value) Value {
	return func(fc *FunctionContext, args []Value) Value {
		a, err := fc.Array(args[0])
		if err != nil {
			return err
		}
		if a.Rows != 1 && a.Cols != 1 {
			return errorValue(ErrorCodeValue)
		}
		count, err := fc.Int(args[1])
		if err != nil {
			return err
		}
		if count < 1 {
			return errorValue(ErrorCodeNum)
		}
		var pad Value = errorValue(ErrorCodeNA)
		if len(args) > 2 && !fc.Omitted(2) {
			pad = args[2]
		}
		n := a.Len()
		lines := (n + count - 1) / count
		var out *Array
		if byRows {
			out = NewArray(lines, count)
		} else {
			out = NewArray(count, lines)
		}
		for k := 0; k < lines*count; k++ {
			v := pad
			if k < n {
				v = a.Data[k]
			}
			if byRows {
				out.set(k/count, k%count, v)
			} else {
				out.set(k%count, k/count, v)
			}
		}
		return out
	}
}

func choose(rows bool) func(*FunctionContext, []Value) Value {
	return func(fc *FunctionContext, args []Value) Value {
		a, err := fc.Array(args[0])
		if err != nil {
			return err
		}
		limit := a.Cols
		if rows {
			limit = a.Rows
		}
		var picks []int
		for _, arg := range args[1:] {
			idx, err := fc.Array(arg)
			if err != nil {
				return err
			}
			for _, v := range idx.Data {
				f, err := fc.Number(v)
				if err != nil {
					return err
				}
				n := toInt(f)
				if n < 0 {
					n += limit + 1
				}
				if n < 1 || n > limit {
					return errorValue(ErrorCodeValue)
				}
				picks = append(picks, n-1)
			}
		}
		if rows {
			return pickRows(a, picks)
		}
		return pickCols(a, picks)
	}
}

func fnEXPAND(fc *FunctionContext, args []Value) Value {
	a, err := fc.Array(args[0])
	if err != nil {
		return err
	}
	rows, err := optInt(fc, args, 1, a.Rows)
	if err != nil {
		return err
	}
	cols, err := optInt(fc, args, 2, a.Cols)
	if err != nil {
		return err
	}
	if rows < a.Rows || cols < a.Cols {
		return errorValue(ErrorCodeValue)
	}
	if err := arraySize(rows, cols); err != nil {
		return err
	}
	var pad Value = errorValue(ErrorCodeNA)
	if len(args) > 3 && !fc.Omitted(3) {
		pad = args[3]
	}
	out := NewArray(rows, cols)
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			if i < a.Rows && j < a.Cols {
				out.set(i, j, a.At(i, j))
			} else {
				out.set(i, j, pad)
			}
		}
	}
	return out
}

func fnMMULT(fc *FunctionContext, args []Value) Value {
	a, err := fc.Array(args[0])
	if err != nil {
		return err
	}
	b, err := fc.Array(args[1])
	if err != nil {
		return err
	}
	if a.Cols != b.Rows {
		return errorValue(ErrorCodeValue)
	}
	out := NewArray(a.Rows, b.Cols)
	for i := 0; i < a.Rows; i++ {
		for j := 0; j < b.Cols; j++ {
			terms := make([]float64, a.Cols)
			for k := 0; k < a.Cols; k++ {
				x, okx := a.At(i, k).(float64)
				y, oky := b.At(k, j).(float64)
				if !okx || !oky {
					return errorValue(ErrorCodeValue)
				}
				terms[k] = x * y
			}
			out.set(i, j, sumFloats(terms))
		}
	}
	return out
}

// squareMatrix reads a square all-numeric array argument as rows
func squareMatrix(fc *FunctionContext, v Value) ([][]float64, *SpreadsheetError) {
	a, err := fc.Array(v)
	if err != nil {
		return nil, err
	}
	if a.Rows != a.Cols {
		return nil, errorValue(ErrorCodeValue)
	}
	return numericRows(a)
}

func numericRows(a *Array) ([][]float64, *SpreadsheetError) {
	m := make([][]float64, a.Rows)
	for i := range m {
		m[i] = make([]float64, a.Cols)
		for j := range m[i] {
			x, ok := a.At(i, j).(float64)
			if !ok {
				if e, isErr := a.At(i, j).(*SpreadsheetError); isErr {
					return nil, e
				}
				return nil, errorValue(ErrorCodeValue)
			}
			m[i][j] = x
		}
	}
	return m, nil
}

// invertMatrix runs Gauss-Jordan elimination with partial pivoting on a
// copy of m. it returns the inverse, the determinant and false when m is
// singular.
func invertMatrix(m [][]float64) ([][]float64, float64, bool) {
	n := len(m)
	work := make([][]float64, n)
	inv := make([][]float64, n)
	for i := range m {
		work[i] = append([]float64(nil), m[i]...)
		inv[i] = make([]float64, n)
		inv[i][i] = 1
	}
	det := 1.0
	for col := 0; col < n; col++ {
		pivot := col
		for r := col + 1; r < n; r++ {
			if math.Abs(work[r][col]) > math.Abs(work[pivot][col]) {
				pivot = r
			}
		}
		if math.Abs(work[pivot][col]) < 1e-14 {
			return nil, 0, false
		}
		if pivot != col {
			work[pivot], work[col] = work[col], work[pivot]
			inv[pivot], inv[col] = inv[col], inv[pivot]
			det = -det
		}
		p := work[col][col]
		det *= p
		for j := 0; j < n; j++ {
			work[col][j] /= p
			inv[col][j] /= p
		}
		for r := 0; r < n; r++ {
			if r == col || work[r][col] == 0 {
				continue
			}
			f := work[r][col]
			for j := 0; j < n; j++ {
				work[r][j] -= f * work[col][j]
				inv[r][j] -= f * inv[col][j]
			}
		}
	}
	return inv, det, true
}

func fnMDETERM(fc *FunctionContext, args []Value) Value {
	m, err := squareMatrix(fc, args[0])
	if err != nil {
		return err
	}
	_, det, ok := invertMatrix(m)
	if !ok {
		return 0.0
	}
	return checkNumber(roundSignificant(det))
}

func fnMINVERSE(fc *FunctionContext, args []Value) Value {
	m, err := squareMatrix(fc, args[0])
	if err != nil {
		return err
	}
	inv, _, ok := invertMatrix(m)
	if !ok {
		return errorValue(ErrorCodeNum)
	}
	out := NewArray(len(inv), len(inv))
	for i := range inv {
		for j := range inv[i] {
			out.set(i, j, checkNumber(inv[i][j]))
		}
	}
	return out
}

func fnMUNIT(fc *FunctionContext, args []Value) Value {
	n, err := fc.Int(args[0])
	if err != nil {
		return err
	}
	if err := arraySize(n, n); err != nil {
		return err
	}
	out := NewArray(n, n)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			out.set(i, j, 0.0)
		}
		out.set(i, i, 1.0)
	}
	return out
}

// lambdaElement applies a lambda and requires a scalar result
func lambdaElement(fc *FunctionContext, fn Value, args ...Value) Value {
	v := fc.ev.cellResult(fc.CallLambda(fn, args...))
	if _, ok := v.(*Array); ok {
		return NewSpreadsheetError(ErrorCodeCalc, "nested arrays are not supported")
	}
	return v
}

func fnMAP(fc *FunctionContext, args []Value) Value {
	fn := args[len(args)-1]
	arrays := make([]*Array, len(args)-1)
	rows, cols := 0, 0
	for i, arg := range args[:len(args)-1] {
		a, err := fc.Array(arg)
		if err != nil {
			return err
		}
		arrays[i] = a
		rows, cols = max(rows, a.Rows), max(cols, a.Cols)
	}
	out := NewArray(rows, cols)
	elems := make([]Value, len(arrays))
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			for k, a := range arrays {
				elems[k] = broadcastAt(a, i, j)
			}
			if fc.ev.checkCancelled() {
				return errorValue(ErrorCodeCalc)
			}
			out.set(i, j, lambdaElement(fc, fn, elems...))
		}
	}
	return out
}

// broadcastAt reads an element with single rows and columns repeated;
// positions outside a larger array are #N/A
func broadcastAt(a *Array, i, j int) Value {
	if a.Rows == 1 {
		i = 0
	}
	if a.Cols == 1 {
		j = 0
	}
	if i >= a.Rows || j >= a.Cols {
		return errorValue(ErrorCodeNA)
	}
	return a.At(i, j)
}

func scanFn(keepSteps bool) func(*FunctionContext, []Value) Value {
	return func(fc *FunctionContext, args []Value) Value {
		acc := args[0]
		a, err := fc.Array(args[1])
		if err != nil {
			return err
		}
		out := NewArray(a.Rows, a.Cols)
		for i, v := range a.Data {
			if fc.ev.checkCancelled() {
				return errorValue(ErrorCodeCalc)
			}
			acc = fc.ev.cellResult(fc.CallLambda(args[2], acc, v))
			if keepSteps {
				if _, nested := acc.(*Array); nested {
					return NewSpreadsheetError(ErrorCodeCalc, "nested arrays are not supported")
				}
				out.Data[i] = acc
			}
		}
		if keepSteps {
			return out
		}
		return acc
	}
}

func byLine(rows bool) func(*FunctionContext, []Value) Value {
	return func(fc *FunctionContext, args []Value) Value {
		a, err := fc.Array(args[0])
		if err != nil {
			return err
		}
		if !rows {
			a = transpose(a)
		}
		out := NewArray(a.Rows, 1)
		for i := 0; i < a.Rows; i++ {
			slice := &Array{Rows: 1, Cols: a.Cols, Data: a.Data[i*a.Cols : (i+1)*a.Cols]}
			if !rows {
				slice = &Array{Rows: a.Cols, Cols: 1, Data: slice.Data}
			}
			out.Data[i] = lambdaElement(fc, args[1], slice)
		}
		if !rows {
			return transpose(out)
		}
		return out
	}
}

func fnMAKEARRAY(fc *FunctionContext, args []Value) Value {
	rows, err := fc.Int(args[0])
	if err != nil {
		return err
	}
	cols, err := fc.Int(args[1])
	if err != nil {
		return err
	}
	if err := arraySize(rows, cols); err != nil {
		return NewSpreadsheetError(ErrorCodeValue, "MAKEARRAY dimensions must be positive")
	}
	out := NewArray(rows, cols)
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			if fc.ev.checkCancelled() {
				return errorValue(ErrorCodeCalc)
			}
			out.set(i, j, lambdaElement(fc, args[2], float64(i+1), float64(j+1)))
		}
	}
	return out
}
