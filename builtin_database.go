package calc

import "math"

func init() {
	register(
		databaseFn("DSUM", func(nums []float64) Value { return checkNumber(sumFloats(nums)) }),
		databaseFn("DAVERAGE", kernelAverage),
		databaseFn("DMAX", kernelMax),
		databaseFn("DMIN", kernelMin),
		databaseFn("DPRODUCT", func(nums []float64) Value {
			p := 1.0
			for _, x := range nums {
				p *= x
			}
			return checkNumber(p)
		}),
		databaseFn("DCOUNT", func(nums []float64) Value { return float64(len(nums)) }),
		databaseFn("DSTDEV", kernelStdev(true)),
		databaseFn("DSTDEVP", kernelStdev(false)),
		databaseFn("DVAR", kernelVar(true)),
		databaseFn("DVARP", kernelVar(false)),
		&FunctionDef{Name: "DCOUNTA", MinArgs: 3, Args: []ArgKind{ArgRef, ArgValue, ArgRef}, Returns: ReturnNumber, Flags: pure, Impl: fnDCOUNTA},
		&FunctionDef{Name: "DGET", MinArgs: 3, Args: []ArgKind{ArgRef, ArgValue, ArgRef}, Flags: pure, Impl: fnDGET},
	)
}

// fieldColumn resolves a field argument, a header label or a 1-based
// column number, against the database headers
func fieldColumn(fc *FunctionContext, db grid, field Value) (int, *SpreadsheetError) {
	if f, ok := field.(float64); ok {
		col := int(math.Trunc(f))
		if col < 1 || col > db.cols() {
			return 0, errorValue(ErrorCodeValue)
		}
		return col - 1, nil
	}
	name, err := fc.Text(field)
	if err != nil {
		return 0, err
	}
	key := upperKey(name)
	for j := 0; j < db.cols(); j++ {
		if upperKey(coerceText(db.at(0, j))) == key {
			return j, nil
		}
	}
	return 0, errorValue(ErrorCodeValue)
}

// matchingRecords returns the database rows, below the header, that
// satisfy any criteria row. cells within a criteria row must all hold.
func matchingRecords(fc *FunctionContext, db, crit grid) ([]int, *SpreadsheetError) {
	if db.rows() < 1 || crit.rows() < 1 {
		return nil, errorValue(ErrorCodeValue)
	}
	c := fc.ev.ec.coerce
	columns := make([]int, crit.cols())
	for j := range columns {
		label := crit.at(0, j)
		if label == nil {
			columns[j] = -1
			continue
		}
		col, err := fieldColumn(fc, db, coerceText(label))
		if err != nil {
			return nil, err
		}
		columns[j] = col
	}
	type condition struct {
		col int
		cr  *criterion
	}
	var alternatives [][]condition
	for r := 1; r < crit.rows(); r++ {
		var conds []condition
		for j, col := range columns {
			v := crit.at(r, j)
			if v == nil || col < 0 {
				continue
			}
			conds = append(conds, condition{col, parseCriterion(c, v)})
		}
		alternatives = append(alternatives, conds)
	}
	var out []int
	for i := 1; i < db.rows(); i++ {
		for _, conds := range alternatives {
			ok := true
			for _, cd := range conds {
				if !cd.cr.matches(c, db.at(i, cd.col)) {
					ok = false
					break
				}
			}
			if ok {
				out = append(out, i)
				break
			}
		}
	}
	return out, nil
}

// databaseField reads (database, field, criteria) and returns the field
// values of the matching records
func databaseField(fc *FunctionContext, args []Value) ([]Value, *SpreadsheetError) {
	db, err := gridOf(fc, args[0])
	if err != nil {
		return nil, err
	}
	crit, err := gridOf(fc, args[2])
	if err != nil {
		return nil, err
	}
	col, err := fieldColumn(fc, db, args[1])
	if err != nil {
		return nil, err
	}
	rows, err := matchingRecords(fc, db, crit)
	if err != nil {
		return nil, err
	}
	values := make([]Value, len(rows))
	for k, i := range rows {
		values[k] = db.at(i, col)
	}
	return values, nil
}

func databaseFn(name string, kernel func([]float64) Value) *FunctionDef {
	return &FunctionDef{Name: name, MinArgs: 3, Args: []ArgKind{ArgRef, ArgValue, ArgRef}, Returns: ReturnNumber, Flags: pure, Impl: func(fc *FunctionContext, args []Value) Value {
		values, err := databaseField(fc, args)
		if err != nil {
			return err
		}
		var nums []float64
		for _, v := range values {
			if f, ok := v.(float64); ok {
				nums = append(nums, f)
			}
		}
		return kernel(nums)
	}}
}

func fnDCOUNTA(fc *FunctionContext, args []Value) Value {
	values, err := databaseField(fc, args)
	if err != nil {
		return err
	}
	n := 0
	for _, v := range values {
		if v != nil {
			n++
		}
	}
	return float64(n)
}

func fnDGET(fc *FunctionContext, args []Value) Value {
	values, err := databaseField(fc, args)
	if err != nil {
		return err
	}
	switch len(values) {
	case 0:
		return errorValue(ErrorCodeValue)
	case 1:
		if values[0] == nil {
			return 0.0
		}
		return values[0]
	}
	return errorValue(ErrorCodeNum)
}
