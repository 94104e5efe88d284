package calc

import (
	"math"
	"strconv"
	"strings"
)

func isFn(name string, test func(v Value) bool) *FunctionDef {
	return &FunctionDef{Name: name, MinArgs: 1, Returns: ReturnBool, Flags: pure | FlagAcceptsErrors, Impl: func(_ *FunctionContext, args []Value) Value {
		return test(args[0])
	}}
}

func init() {
	register(
		isFn("ISBLANK", func(v Value) bool { return v == nil }),
		isFn("ISERROR", isError),
		isFn("ISERR", func(v Value) bool { return isError(v) && !isErrorCode(v, ErrorCodeNA) }),
		isFn("ISNA", func(v Value) bool { return isErrorCode(v, ErrorCodeNA) }),
		isFn("ISNUMBER", func(v Value) bool { return TypeOf(v) == CellValueTypeNumber }),
		isFn("ISTEXT", func(v Value) bool { return TypeOf(v) == CellValueTypeString }),
		isFn("ISNONTEXT", func(v Value) bool { return TypeOf(v) != CellValueTypeString }),
		isFn("ISLOGICAL", func(v Value) bool { return TypeOf(v) == CellValueTypeBoolean }),
		&FunctionDef{Name: "ISEVEN", MinArgs: 1, Returns: ReturnBool, Flags: pure, Impl: parityFn(0)},
		&FunctionDef{Name: "ISODD", MinArgs: 1, Returns: ReturnBool, Flags: pure, Impl: parityFn(1)},
		&FunctionDef{Name: "ISREF", MinArgs: 1, Args: []ArgKind{ArgRef}, Returns: ReturnBool, Arrays: SupportsArrays, Flags: pure | FlagAcceptsErrors, Impl: fnISREF},
		&FunctionDef{Name: "ISFORMULA", MinArgs: 1, Args: []ArgKind{ArgRef}, Returns: ReturnBool, Arrays: SupportsArrays, Flags: pure, Impl: fnISFORMULA},
		&FunctionDef{Name: "FORMULATEXT", MinArgs: 1, Args: []ArgKind{ArgRef}, Returns: ReturnText, Arrays: SupportsArrays, Flags: pure, Impl: fnFORMULATEXT},
		&FunctionDef{Name: "ERROR.TYPE", MinArgs: 1, Returns: ReturnNumber, Flags: pure | FlagAcceptsErrors, Impl: fnERRORTYPE},
		&FunctionDef{Name: "NA", MaxArgs: 0, Flags: pure, Impl: func(*FunctionContext, []Value) Value { return errorValue(ErrorCodeNA) }},
		&FunctionDef{Name: "N", MinArgs: 1, Returns: ReturnNumber, Flags: pure, Impl: fnN},
		&FunctionDef{Name: "T", MinArgs: 1, Returns: ReturnText, Flags: pure, Impl: fnT},
		&FunctionDef{Name: "TYPE", MinArgs: 1, Returns: ReturnNumber, Arrays: SupportsArrays, Flags: pure | FlagAcceptsErrors, Impl: fnTYPE},
		&FunctionDef{Name: "SHEET", MaxArgs: 1, Args: []ArgKind{ArgRef}, Returns: ReturnNumber, Arrays: SupportsArrays, Flags: pure, Impl: fnSHEET},
		&FunctionDef{Name: "SHEETS", MaxArgs: 1, Args: []ArgKind{ArgRef}, Returns: ReturnNumber, Arrays: SupportsArrays, Flags: pure, Impl: fnSHEETS},
		&FunctionDef{Name: "CELL", MinArgs: 1, MaxArgs: 2, Args: []ArgKind{ArgValue, ArgRef}, Arrays: SupportsArrays, Flags: pure, Impl: fnCELL},
		&FunctionDef{Name: "FIELDVALUE", MinArgs: 2, Flags: pure, Impl: fnFIELDVALUE},
	)
}

func parityFn(want int) func(*FunctionContext, []Value) Value {
	return func(fc *FunctionContext, args []Value) Value {
		if _, ok := args[0].(bool); ok {
			return errorValue(ErrorCodeValue)
		}
		f, err := fc.Number(args[0])
		if err != nil {
			return err
		}
		return int64(math.Abs(math.Trunc(f)))%2 == int64(want)
	}
}

func fnISREF(_ *FunctionContext, args []Value) Value {
	switch args[0].(type) {
	case *Reference, *ReferenceUnion:
		return true
	}
	return false
}

// firstCell returns the top-left cell of a reference argument
func firstCell(v Value) (*Reference, *SpreadsheetError) {
	switch x := v.(type) {
	case *Reference:
		return x, nil
	case *ReferenceUnion:
		if len(x.Areas) > 0 {
			return x.Areas[0], nil
		}
	case *SpreadsheetError:
		return nil, x
	}
	return nil, errorValue(ErrorCodeValue)
}

func fnISFORMULA(fc *FunctionContext, args []Value) Value {
	ref, err := firstCell(args[0])
	if err != nil {
		return err
	}
	_, ok := fc.ev.res.FormulaText(ref.Sheet, ref.Start)
	return ok
}

func fnFORMULATEXT(fc *FunctionContext, args []Value) Value {
	ref, err := firstCell(args[0])
	if err != nil {
		return err
	}
	text, ok := fc.ev.res.FormulaText(ref.Sheet, ref.Start)
	if !ok {
		return errorValue(ErrorCodeNA)
	}
	return "=" + text
}

func fnERRORTYPE(_ *FunctionContext, args []Value) Value {
	e, ok := args[0].(*SpreadsheetError)
	if !ok {
		return errorValue(ErrorCodeNA)
	}
	return float64(e.ErrorCode)
}

func fnN(_ *FunctionContext, args []Value) Value {
	switch x := args[0].(type) {
	case float64:
		return x
	case bool:
		if x {
			return 1.0
		}
	}
	return 0.0
}

func fnT(_ *FunctionContext, args []Value) Value {
	if s, ok := args[0].(string); ok {
		return s
	}
	return ""
}

func fnTYPE(_ *FunctionContext, args []Value) Value {
	switch args[0].(type) {
	case nil, float64:
		return 1.0
	case string:
		return 2.0
	case bool:
		return 4.0
	case *SpreadsheetError:
		return 16.0
	case *Array:
		return 64.0
	case *Lambda, *Entity, *Record:
		return 128.0
	}
	return errorValue(ErrorCodeValue)
}

// sheetIndex returns the 1-based tab position of a sheet
func sheetIndex(res ValueResolver, sheet SheetID) (int, bool) {
	for i, id := range res.SheetOrder() {
		if id == sheet {
			return i + 1, true
		}
	}
	return 0, false
}

func fnSHEET(fc *FunctionContext, args []Value) Value {
	sheet := fc.Sheet()
	if len(args) == 1 && !fc.Omitted(0) {
		switch x := args[0].(type) {
		case *Reference:
			sheet = x.Sheet
		case *ReferenceUnion:
			if len(x.Areas) == 0 {
				return errorValue(ErrorCodeRef)
			}
			sheet = x.Areas[0].Sheet
		case string:
			id, ok := fc.ev.res.SheetByName(x)
			if !ok {
				return errorValue(ErrorCodeNA)
			}
			sheet = id
		case *SpreadsheetError:
			return x
		default:
			return errorValue(ErrorCodeNA)
		}
	}
	idx, ok := sheetIndex(fc.ev.res, sheet)
	if !ok {
		return errorValue(ErrorCodeRef)
	}
	return float64(idx)
}

func fnSHEETS(fc *FunctionContext, args []Value) Value {
	if len(args) == 0 || fc.Omitted(0) {
		return float64(len(fc.ev.res.SheetOrder()))
	}
	switch x := args[0].(type) {
	case *Reference:
		return 1.0
	case *ReferenceUnion:
		seen := map[SheetID]bool{}
		for _, a := range x.Areas {
			seen[a.Sheet] = true
		}
		return float64(len(seen))
	case *SpreadsheetError:
		return x
	}
	return errorValue(ErrorCodeValue)
}

func fnCELL(fc *FunctionContext, args []Value) Value {
	info, err := fc.Text(args[0])
	if err != nil {
		return err
	}
	ref := &Reference{Sheet: fc.Sheet(), Start: fc.Cell(), End: fc.Cell()}
	if len(args) > 1 && !fc.Omitted(1) {
		r, err := firstCell(args[1])
		if err != nil {
			return err
		}
		ref = &Reference{Sheet: r.Sheet, Start: r.Start, End: r.Start}
	}
	v := fc.ev.res.CellValue(ref.Sheet, ref.Start)
	switch strings.ToLower(info) {
	case "address":
		return "$" + ColumnName(ref.Start.Col) + "$" + strconv.FormatUint(uint64(ref.Start.Row)+1, 10)
	case "col":
		return float64(ref.Start.Col + 1)
	case "row":
		return float64(ref.Start.Row + 1)
	case "contents":
		return v
	case "type":
		switch v.(type) {
		case nil:
			return "b"
		case string:
			return "l"
		}
		return "v"
	case "sheetname":
		name, _ := fc.ev.res.SheetName(ref.Sheet)
		return name
	}
	return errorValue(ErrorCodeValue)
}

func fnFIELDVALUE(fc *FunctionContext, args []Value) Value {
	field, err := fc.Text(args[1])
	if err != nil {
		return err
	}
	var v Value
	var ok bool
	switch x := args[0].(type) {
	case *Entity:
		v, ok = x.Field(field)
	case *Record:
		v, ok = x.Field(field)
	default:
		return NewSpreadsheetError(ErrorCodeValue, "FIELDVALUE expects a rich value")
	}
	if !ok {
		return NewSpreadsheetError(ErrorCodeField, "no field "+field)
	}
	return v
}
