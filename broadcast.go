package calc

// array lifting. a 1x1 array acts as a scalar. a row or column vector is
// stretched across the other dimension only when another operand has the
// same length along the vector and more than one cell across it; any
// result cell an operand cannot supply is #VALUE!.

type liftOperand struct {
	arr         *Array
	scalar      Value
	stretchRows bool // row vector repeated down the rows
	stretchCols bool // column vector repeated across the columns
}

func (o *liftOperand) at(i, j int) Value {
	if o.arr == nil {
		return o.scalar
	}
	a := o.arr
	if a.Rows == 1 && a.Cols == 1 {
		return a.Data[0]
	}
	if a.Cols == 1 && o.stretchCols {
		j = 0
	}
	if a.Rows == 1 && o.stretchRows {
		i = 0
	}
	if i < a.Rows && j < a.Cols {
		return a.At(i, j)
	}
	return errorValue(ErrorCodeValue)
}

// liftShape computes the result dimensions and per-operand stretch rules
func liftShape(values []Value) ([]liftOperand, int, int) {
	ops := make([]liftOperand, len(values))
	rows, cols := 1, 1
	for i, v := range values {
		if arr, ok := v.(*Array); ok {
			ops[i].arr = arr
			rows = max(rows, arr.Rows)
			cols = max(cols, arr.Cols)
		} else {
			ops[i].scalar = v
		}
	}
	for i := range ops {
		a := ops[i].arr
		if a == nil {
			continue
		}
		for k := range ops {
			b := ops[k].arr
			if k == i || b == nil {
				continue
			}
			if a.Cols == 1 && a.Rows > 1 && b.Rows == a.Rows && b.Cols > 1 {
				ops[i].stretchCols = true
			}
			if a.Rows == 1 && a.Cols > 1 && b.Cols == a.Cols && b.Rows > 1 {
				ops[i].stretchRows = true
			}
		}
	}
	return ops, rows, cols
}

// liftN applies fn element-wise over values, at least one of which is an
// array
func liftN(values []Value, fn func(elems []Value) Value) *Array {
	ops, rows, cols := liftShape(values)
	out := NewArray(rows, cols)
	elems := make([]Value, len(values))
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			for k := range ops {
				elems[k] = ops[k].at(i, j)
			}
			out.set(i, j, scalarOf(fn(elems)))
		}
	}
	return out
}

// broadcast2 lifts a binary scalar operator
func broadcast2(left, right Value, fn func(l, r Value) Value) Value {
	return liftN([]Value{left, right}, func(e []Value) Value {
		return fn(e[0], e[1])
	})
}

// liftUnary maps fn over an array, or applies it to a scalar
func liftUnary(v Value, fn func(Value) Value) Value {
	arr, ok := v.(*Array)
	if !ok {
		return fn(v)
	}
	out := NewArray(arr.Rows, arr.Cols)
	for i, e := range arr.Data {
		out.Data[i] = scalarOf(fn(e))
	}
	return out
}
