package calc

import (
	"context"
	"math"
	"strings"
)

// maxEvalDepth bounds nested lambda calls and defined-name evaluation.
// going deeper yields #CALC!.
const maxEvalDepth = 256

// maxArrayCells bounds how many cells a reference may materialize into an
// array value
const maxArrayCells = 1 << 24

// ValueResolver gives the evaluator read access to the workbook
type ValueResolver interface {
	// CellValue returns the value shown by a cell: a stored value, a
	// formula result, a spilled element, the columnar backing or the
	// external value provider, in that order
	CellValue(sheet SheetID, addr CellAddr) Value
	// ForEachInRange calls fn for the non-blank cells of ref in row-major
	// order until fn returns false
	ForEachInRange(ref *Reference, fn func(addr CellAddr, v Value) bool)
	// NumericColumn returns a borrowed slice of numbers for rows
	// [startRow, endRow] of a column when the data is a plain numeric
	// column with nothing layered over it
	NumericColumn(sheet SheetID, col, startRow, endRow uint32) ([]float64, bool)
	SheetDimensions(sheet SheetID) (rows, cols uint32, ok bool)
	SheetByName(name string) (SheetID, bool)
	SheetName(sheet SheetID) (string, bool)
	// SheetOrder lists every sheet in tab order
	SheetOrder() []SheetID
	// SheetsBetween lists the sheets from first to last in tab order
	SheetsBetween(first, last SheetID) ([]SheetID, bool)
	// SpillAt returns the spill rectangle that addr anchors or lies in
	SpillAt(sheet SheetID, addr CellAddr) (Rect, bool)
	// Name resolves a defined name, preferring the sheet scope
	Name(name string, scope SheetID) (*DefinedName, bool)
	Table(name string) (*Table, bool)
	TableAt(sheet SheetID, addr CellAddr) (*Table, bool)
	FormulaText(sheet SheetID, addr CellAddr) (string, bool)
	RowHidden(sheet SheetID, row uint32) bool
}

// evalContext is shared by every evaluator of one recalculation pass
type evalContext struct {
	ctx    context.Context
	locale *LocaleConfig
	coerce coercion
	clock  Clock
	random RandomGenerator
}

func newEvalContext(ctx context.Context, locale *LocaleConfig, date1904 bool, clock Clock, random RandomGenerator) *evalContext {
	if ctx == nil {
		ctx = context.Background()
	}
	if locale == nil {
		locale = DefaultLocale()
	}
	if clock == nil {
		clock = &WallClock{}
	}
	if random == nil {
		random = NewDefaultRandomGenerator()
	}
	return &evalContext{
		ctx:    ctx,
		locale: locale,
		coerce: coercion{locale: locale, date1904: date1904},
		clock:  clock,
		random: random,
	}
}

// Evaluator walks expression trees for one formula cell
type Evaluator struct {
	res       ValueResolver
	ec        *evalContext
	sheet     SheetID
	cell      CellAddr
	env       *Env
	calls     int
	tracer    *tracer
	cancelled bool
}

// NewEvaluator creates an evaluator for a formula at sheet!cell
func NewEvaluator(res ValueResolver, ec *evalContext, sheet SheetID, cell CellAddr) *Evaluator {
	return &Evaluator{res: res, ec: ec, sheet: sheet, cell: cell}
}

// Cancelled reports whether evaluation stopped because the context was
// cancelled. the result must then be discarded.
func (ev *Evaluator) Cancelled() bool {
	return ev.cancelled
}

// Evaluate evaluates a parsed formula and returns the value the cell holds:
// references are dereferenced and multi-cell results become arrays
func (ev *Evaluator) Evaluate(ast *Ast) Value {
	return ev.cellResult(ev.eval(ast.Root))
}

// cellResult turns an expression result into something a cell can hold
func (ev *Evaluator) cellResult(v Value) Value {
	v = ev.deref(v)
	switch x := v.(type) {
	case *Lambda:
		return errorValue(ErrorCodeCalc)
	case *Array:
		if x.Len() == 1 {
			return x.Data[0]
		}
	}
	return v
}

// eval evaluates a child node, recording it when tracing
func (ev *Evaluator) eval(n Node) Value {
	if ev.tracer == nil {
		return n.Eval(ev)
	}
	ev.tracer.enter(n)
	v := n.Eval(ev)
	ev.tracer.leave(v)
	return v
}

// value evaluates a node and dereferences the result
func (ev *Evaluator) value(n Node) Value {
	return ev.deref(ev.eval(n))
}

// deref reads the cells behind a reference. a single cell yields its value
// and a rectangle yields an array.
func (ev *Evaluator) deref(v Value) Value {
	switch x := v.(type) {
	case *Reference:
		if x.IsSingleCell() {
			return ev.res.CellValue(x.Sheet, x.Start)
		}
		return ev.rangeArray(x)
	case *ReferenceUnion:
		if len(x.Areas) == 1 {
			return ev.deref(x.Areas[0])
		}
		return errorValue(ErrorCodeValue)
	}
	return v
}

// rangeArray materializes a rectangle into an array value
func (ev *Evaluator) rangeArray(ref *Reference) Value {
	if ref.Rect().Area() > maxArrayCells {
		return NewSpreadsheetError(ErrorCodeNum, "range too large to use as an array")
	}
	arr := NewArray(ref.Rows(), ref.Cols())
	ev.res.ForEachInRange(ref, func(addr CellAddr, v Value) bool {
		arr.set(int(addr.Row-ref.Start.Row), int(addr.Col-ref.Start.Col), v)
		return true
	})
	return arr
}

func (ev *Evaluator) checkCancelled() bool {
	if ev.cancelled {
		return true
	}
	if ev.ec.ctx.Err() != nil {
		ev.cancelled = true
	}
	return ev.cancelled
}

// resolveSheets returns the sheets a prefix refers to. a nil prefix is the
// formula's own sheet; external workbooks are never resolved.
func (ev *Evaluator) resolveSheets(s *SheetRef) ([]SheetID, *SpreadsheetError) {
	if s == nil {
		return []SheetID{ev.sheet}, nil
	}
	if s.IsExternal() {
		return nil, NewSpreadsheetError(ErrorCodeRef, "external workbook references are not linked")
	}
	first := s.ID
	if _, ok := ev.res.SheetName(first); !ok {
		id, found := ev.res.SheetByName(s.Name)
		if !found {
			return nil, NewSpreadsheetError(ErrorCodeRef, "unknown sheet "+s.Name)
		}
		first = id
	}
	if !s.Is3D() {
		return []SheetID{first}, nil
	}
	last := s.LastID
	if _, ok := ev.res.SheetName(last); !ok {
		id, found := ev.res.SheetByName(s.LastName)
		if !found {
			return nil, NewSpreadsheetError(ErrorCodeRef, "unknown sheet "+s.LastName)
		}
		last = id
	}
	sheets, ok := ev.res.SheetsBetween(first, last)
	if !ok {
		return nil, errorValue(ErrorCodeRef)
	}
	return sheets, nil
}

func (ev *Evaluator) dimensions(sheet SheetID) (uint32, uint32) {
	rows, cols, ok := ev.res.SheetDimensions(sheet)
	if !ok {
		return DefaultMaxRows, DefaultMaxCols
	}
	return rows, cols
}

// rangeOn builds the reference a range node denotes on one sheet
func (ev *Evaluator) rangeOn(n *RangeNode, sheet SheetID) (*Reference, bool) {
	rows, cols := ev.dimensions(sheet)
	switch n.Kind {
	case RangeColumns:
		a, ok1 := CellRef{Row: 0, RowAbs: true, Col: n.Start.Col, ColAbs: n.Start.ColAbs}.resolve(ev.cell, rows, cols)
		b, ok2 := CellRef{Row: int32(rows - 1), RowAbs: true, Col: n.End.Col, ColAbs: n.End.ColAbs}.resolve(ev.cell, rows, cols)
		if !ok1 || !ok2 {
			return nil, false
		}
		return NewReference(sheet, a, b), true
	case RangeRows:
		a, ok1 := CellRef{Row: n.Start.Row, RowAbs: n.Start.RowAbs, Col: 0, ColAbs: true}.resolve(ev.cell, rows, cols)
		b, ok2 := CellRef{Row: n.End.Row, RowAbs: n.End.RowAbs, Col: int32(cols - 1), ColAbs: true}.resolve(ev.cell, rows, cols)
		if !ok1 || !ok2 {
			return nil, false
		}
		return NewReference(sheet, a, b), true
	}
	a, ok1 := n.Start.resolve(ev.cell, rows, cols)
	b, ok2 := n.End.resolve(ev.cell, rows, cols)
	if !ok1 || !ok2 {
		return nil, false
	}
	return NewReference(sheet, a, b), true
}

func referenceResult(refs []*Reference) Value {
	if len(refs) == 1 {
		return refs[0]
	}
	return &ReferenceUnion{Areas: refs}
}

// Eval returns the literal
func (n *NumberNode) Eval(ev *Evaluator) Value { return n.Value }

// Eval returns the literal
func (n *StringNode) Eval(ev *Evaluator) Value { return n.Value }

// Eval returns the literal
func (n *BooleanNode) Eval(ev *Evaluator) Value { return n.Value }

// Eval returns the error value
func (n *ErrorNode) Eval(ev *Evaluator) Value { return errorValue(n.Code) }

// Eval returns blank
func (n *MissingNode) Eval(ev *Evaluator) Value { return nil }

// Eval returns a single-cell reference; 3-D forms return a union in tab
// order
func (n *CellRefNode) Eval(ev *Evaluator) Value {
	sheets, err := ev.resolveSheets(n.Sheet)
	if err != nil {
		return err
	}
	refs := make([]*Reference, 0, len(sheets))
	for _, sheet := range sheets {
		rows, cols := ev.dimensions(sheet)
		addr, ok := n.Ref.resolve(ev.cell, rows, cols)
		if !ok {
			return NewSpreadsheetError(ErrorCodeRef, "reference is off the sheet")
		}
		refs = append(refs, &Reference{Sheet: sheet, Start: addr, End: addr})
	}
	return referenceResult(refs)
}

// Eval returns the rectangle as a reference
func (n *RangeNode) Eval(ev *Evaluator) Value {
	sheets, err := ev.resolveSheets(n.Sheet)
	if err != nil {
		return err
	}
	refs := make([]*Reference, 0, len(sheets))
	for _, sheet := range sheets {
		ref, ok := ev.rangeOn(n, sheet)
		if !ok {
			return NewSpreadsheetError(ErrorCodeRef, "range is off the sheet")
		}
		refs = append(refs, ref)
	}
	return referenceResult(refs)
}

// Eval resolves a LET or LAMBDA binding, then a defined name
func (n *NameNode) Eval(ev *Evaluator) Value {
	if n.Sheet == nil {
		if v, ok := ev.env.Lookup(n.Name); ok {
			return v
		}
	}
	scope := ev.sheet
	if n.Sheet != nil {
		sheets, err := ev.resolveSheets(n.Sheet)
		if err != nil {
			return err
		}
		scope = sheets[0]
	}
	dn, ok := ev.res.Name(n.Name, scope)
	if !ok {
		return NewSpreadsheetError(ErrorCodeName, "unknown name "+n.Name)
	}
	return ev.evalDefinedName(dn)
}

// evalDefinedName evaluates the expression a name refers to. the name's
// formula cannot see LET bindings of the caller.
func (ev *Evaluator) evalDefinedName(dn *DefinedName) Value {
	if dn.Ast == nil {
		return errorValue(ErrorCodeName)
	}
	if ev.calls >= maxEvalDepth {
		return NewSpreadsheetError(ErrorCodeCalc, "name evaluation nested too deeply")
	}
	ev.calls++
	savedEnv, savedCell, savedSheet := ev.env, ev.cell, ev.sheet
	ev.env = nil
	ev.cell = CellAddr{}
	if dn.Scope != 0 {
		ev.sheet = dn.Scope
	}
	v := ev.eval(dn.Ast.Root)
	ev.env, ev.cell, ev.sheet = savedEnv, savedCell, savedSheet
	ev.calls--
	return v
}

// Eval applies a binary operator
func (n *BinaryOpNode) Eval(ev *Evaluator) Value {
	if n.Op.isReferenceOp() {
		return ev.referenceOp(n.Op, ev.eval(n.Left), ev.eval(n.Right))
	}
	left := ev.value(n.Left)
	right := ev.value(n.Right)
	return ev.binary(n.Op, left, right)
}

// binary applies an arithmetic, text or comparison operator to two
// dereferenced operands, lifting over arrays
func (ev *Evaluator) binary(op BinaryOp, left, right Value) Value {
	_, lok := left.(*Array)
	_, rok := right.(*Array)
	if lok || rok {
		return broadcast2(left, right, func(l, r Value) Value {
			return ev.scalarBinary(op, l, r)
		})
	}
	return ev.scalarBinary(op, left, right)
}

func (ev *Evaluator) scalarBinary(op BinaryOp, left, right Value) Value {
	if e, ok := left.(*SpreadsheetError); ok {
		return e
	}
	if e, ok := right.(*SpreadsheetError); ok {
		return e
	}
	switch op {
	case BinOpConcat:
		l, err := ev.ec.coerce.text(left)
		if err != nil {
			return err
		}
		r, err := ev.ec.coerce.text(right)
		if err != nil {
			return err
		}
		return l + r
	case BinOpEqual, BinOpNotEqual, BinOpLess, BinOpLessEqual, BinOpGreater, BinOpGreaterEqual:
		if _, ok := left.(*Lambda); ok {
			return errorValue(ErrorCodeValue)
		}
		if _, ok := right.(*Lambda); ok {
			return errorValue(ErrorCodeValue)
		}
		return compareOp(op, compareValues(left, right))
	}

	l, err := ev.ec.coerce.number(left)
	if err != nil {
		return err
	}
	r, err := ev.ec.coerce.number(right)
	if err != nil {
		return err
	}
	return arithmetic(op, l, r)
}

func compareOp(op BinaryOp, cmp int) Value {
	switch op {
	case BinOpEqual:
		return cmp == 0
	case BinOpNotEqual:
		return cmp != 0
	case BinOpLess:
		return cmp < 0
	case BinOpLessEqual:
		return cmp <= 0
	case BinOpGreater:
		return cmp > 0
	}
	return cmp >= 0
}

// arithmetic applies a numeric operator following Excel's domain rules
func arithmetic(op BinaryOp, l, r float64) Value {
	switch op {
	case BinOpAdd:
		return checkNumber(l + r)
	case BinOpSubtract:
		return checkNumber(l - r)
	case BinOpMultiply:
		return checkNumber(l * r)
	case BinOpDivide:
		if r == 0 {
			return errorValue(ErrorCodeDiv0)
		}
		return checkNumber(l / r)
	case BinOpPower:
		if l == 0 && r == 0 {
			return errorValue(ErrorCodeNum)
		}
		if l == 0 && r < 0 {
			return errorValue(ErrorCodeDiv0)
		}
		return checkNumber(math.Pow(l, r))
	}
	return errorValue(ErrorCodeValue)
}

// referenceOp applies the range, intersection and union operators
func (ev *Evaluator) referenceOp(op BinaryOp, left, right Value) Value {
	if e, ok := left.(*SpreadsheetError); ok {
		return e
	}
	if e, ok := right.(*SpreadsheetError); ok {
		return e
	}
	la, lok := areasOf(left)
	ra, rok := areasOf(right)
	if !lok || !rok {
		return errorValue(ErrorCodeValue)
	}
	switch op {
	case BinOpUnion:
		areas := make([]*Reference, 0, len(la)+len(ra))
		areas = append(areas, la...)
		return &ReferenceUnion{Areas: append(areas, ra...)}
	case BinOpRange:
		if len(la) != 1 || len(ra) != 1 || la[0].Sheet != ra[0].Sheet {
			return errorValue(ErrorCodeValue)
		}
		r := la[0].Rect().Bounding(ra[0].Rect())
		return &Reference{Sheet: la[0].Sheet, Start: r.Start, End: r.End}
	}
	var out []*Reference
	for _, a := range la {
		for _, b := range ra {
			if a.Sheet != b.Sheet {
				continue
			}
			if r, ok := a.Rect().Intersect(b.Rect()); ok {
				out = append(out, &Reference{Sheet: a.Sheet, Start: r.Start, End: r.End})
			}
		}
	}
	if len(out) == 0 {
		return errorValue(ErrorCodeNull)
	}
	return referenceResult(out)
}

func areasOf(v Value) ([]*Reference, bool) {
	switch x := v.(type) {
	case *Reference:
		return []*Reference{x}, true
	case *ReferenceUnion:
		return x.Areas, true
	}
	return nil, false
}

// Eval applies a prefix operator
func (n *UnaryOpNode) Eval(ev *Evaluator) Value {
	if n.Op == UnaryOpImplicit {
		return ev.implicitIntersection(ev.eval(n.Operand))
	}
	return ev.unary(n.Op, ev.value(n.Operand))
}

// unary applies + or - to a dereferenced operand
func (ev *Evaluator) unary(op UnaryOp, v Value) Value {
	return liftUnary(v, func(x Value) Value {
		if e, ok := x.(*SpreadsheetError); ok {
			return e
		}
		if op == UnaryOpPlus {
			return x
		}
		f, err := ev.ec.coerce.number(x)
		if err != nil {
			return err
		}
		return checkNumber(-f)
	})
}

// implicitIntersection reduces a range to the cell on the formula's row or
// column, and an array to its first element
func (ev *Evaluator) implicitIntersection(v Value) Value {
	switch x := v.(type) {
	case *Reference:
		if x.IsSingleCell() {
			return x
		}
		switch {
		case x.Cols() == 1 && ev.cell.Row >= x.Start.Row && ev.cell.Row <= x.End.Row:
			addr := CellAddr{Row: ev.cell.Row, Col: x.Start.Col}
			return &Reference{Sheet: x.Sheet, Start: addr, End: addr}
		case x.Rows() == 1 && ev.cell.Col >= x.Start.Col && ev.cell.Col <= x.End.Col:
			addr := CellAddr{Row: x.Start.Row, Col: ev.cell.Col}
			return &Reference{Sheet: x.Sheet, Start: addr, End: addr}
		}
		return errorValue(ErrorCodeValue)
	case *ReferenceUnion:
		return errorValue(ErrorCodeValue)
	case *Array:
		return scalarOf(x)
	}
	return v
}

// Eval applies % or the spill operator
func (n *PostfixOpNode) Eval(ev *Evaluator) Value {
	if n.Op == PostfixSpill {
		return ev.spillReference(ev.eval(n.Operand))
	}
	return ev.percent(ev.value(n.Operand))
}

func (ev *Evaluator) percent(v Value) Value {
	return liftUnary(v, func(x Value) Value {
		if e, ok := x.(*SpreadsheetError); ok {
			return e
		}
		f, err := ev.ec.coerce.number(x)
		if err != nil {
			return err
		}
		return checkNumber(f / 100)
	})
}

// spillReference expands a reference to a spill origin, or to any cell of
// a spilled block, into the whole spilled rectangle
func (ev *Evaluator) spillReference(v Value) Value {
	if e, ok := v.(*SpreadsheetError); ok {
		return e
	}
	ref, ok := v.(*Reference)
	if !ok || !ref.IsSingleCell() {
		return errorValue(ErrorCodeRef)
	}
	rect, ok := ev.res.SpillAt(ref.Sheet, ref.Start)
	if !ok {
		if isErrorCode(ev.res.CellValue(ref.Sheet, ref.Start), ErrorCodeSpill) {
			return errorValue(ErrorCodeSpill)
		}
		return NewSpreadsheetError(ErrorCodeRef, "cell does not spill")
	}
	return &Reference{Sheet: ref.Sheet, Start: rect.Start, End: rect.End}
}

// Eval calls a builtin, a bound lambda or a lambda-valued defined name
func (n *FunctionCallNode) Eval(ev *Evaluator) Value {
	if n.Written != "" {
		if v, ok := ev.env.Lookup(n.Written); ok {
			return ev.callValue(v, n.Args)
		}
	}
	if def, ok := LookupFunction(n.Name); ok {
		return ev.callFunction(def, n.Args)
	}
	if dn, ok := ev.res.Name(n.Written, ev.sheet); ok {
		return ev.callValue(ev.evalDefinedName(dn), n.Args)
	}
	return NewSpreadsheetError(ErrorCodeName, "unknown function "+n.Written)
}

// callFunction evaluates arguments per the function's declared kinds and
// dispatches to the implementation
func (ev *Evaluator) callFunction(def *FunctionDef, argNodes []Node) Value {
	if ev.checkCancelled() {
		return errorValue(ErrorCodeCalc)
	}
	if !def.acceptsArgCount(len(argNodes)) {
		return NewSpreadsheetError(ErrorCodeValue, "wrong number of arguments to "+def.Name)
	}
	fc := newFunctionContext(ev, def, argNodes)
	if def.Special != nil {
		return def.Special(fc, argNodes)
	}
	args := make([]Value, len(argNodes))
	for i, node := range argNodes {
		v := ev.eval(node)
		if def.ArgKindAt(i) == ArgValue {
			v = ev.deref(v)
		}
		args[i] = v
	}
	return invoke(fc, def, args)
}

// Eval calls the lambda an expression evaluates to
func (n *CallNode) Eval(ev *Evaluator) Value {
	return ev.callValue(ev.eval(n.Callee), n.Args)
}

// callValue calls fn with unevaluated argument nodes
func (ev *Evaluator) callValue(fn Value, argNodes []Node) Value {
	if e, ok := fn.(*SpreadsheetError); ok {
		return e
	}
	l, ok := fn.(*Lambda)
	if !ok {
		return errorValue(ErrorCodeValue)
	}
	if len(argNodes) > len(l.Params) {
		return NewSpreadsheetError(ErrorCodeValue, "too many arguments to LAMBDA")
	}
	args := make([]Value, len(argNodes))
	for i, a := range argNodes {
		args[i] = ev.eval(a)
	}
	return ev.callLambda(l, args)
}

// callLambda binds args to the lambda's parameters and evaluates its body.
// parameters past the end of args are bound as omitted blanks.
func (ev *Evaluator) callLambda(l *Lambda, args []Value) Value {
	if len(args) > len(l.Params) {
		return NewSpreadsheetError(ErrorCodeValue, "too many arguments to LAMBDA")
	}
	if ev.calls >= maxEvalDepth {
		return NewSpreadsheetError(ErrorCodeCalc, "lambda recursion too deep")
	}
	if ev.checkCancelled() {
		return errorValue(ErrorCodeCalc)
	}
	env := l.Env
	for i, p := range l.Params {
		if i < len(args) {
			env = env.Bind(p, args[i])
		} else {
			env = env.bindOmitted(p)
		}
	}
	ev.calls++
	saved := ev.env
	ev.env = env
	v := ev.eval(l.Body)
	ev.env = saved
	ev.calls--
	return v
}

// Eval binds names left to right in a fresh frame chain
func (n *LetNode) Eval(ev *Evaluator) Value {
	saved := ev.env
	env := saved
	for i, name := range n.Names {
		ev.env = env
		v := ev.eval(n.Values[i])
		env = env.Bind(name, v)
	}
	ev.env = env
	v := ev.eval(n.Body)
	ev.env = saved
	return v
}

// Eval captures the current frame chain
func (n *LambdaNode) Eval(ev *Evaluator) Value {
	return &Lambda{Params: n.Params, Body: n.Body, Env: ev.env}
}

// Eval resolves the table reference against the table registry
func (n *StructuredRefNode) Eval(ev *Evaluator) Value {
	ref, err := resolveStructuredRef(ev.res, n, ev.sheet, ev.cell)
	if err != nil {
		return err
	}
	return ref
}

// Eval builds the array constant
func (n *ArrayNode) Eval(ev *Evaluator) Value {
	arr := NewArray(n.Rows, n.Cols)
	for i, e := range n.Elements {
		v := ev.eval(e)
		if !isScalar(v) {
			v = errorValue(ErrorCodeValue)
		}
		arr.Data[i] = v
	}
	return arr
}

// referenceText renders a reference as Sheet!A1:B2 for diagnostics
func referenceText(res ValueResolver, ref *Reference) string {
	var b strings.Builder
	if name, ok := res.SheetName(ref.Sheet); ok {
		b.WriteString(quoteSheetName(name))
		b.WriteByte('!')
	}
	b.WriteString(ref.Rect().String())
	return b.String()
}
