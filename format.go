package calc

import (
	"math"
	"strconv"
	"strings"
)

// SerializeOptions controls how an Ast is rendered back to formula text
type SerializeOptions struct {
	OmitEquals bool
	Style      RefStyle
	// Origin overrides the cell relative references are rendered against
	Origin *CellAddr
	// SheetName returns the current display name of a sheet so renamed
	// sheets render with their new name
	SheetName func(SheetID) (string, bool)
}

// ToString renders the formula
func (a *Ast) ToString(opts SerializeOptions) string {
	origin := a.Origin
	if opts.Origin != nil {
		origin = *opts.Origin
	}
	f := &formatter{opts: opts, origin: origin}
	f.node(a.Root)
	if opts.OmitEquals {
		return f.b.String()
	}
	return "=" + f.b.String()
}

// String renders the formula in its own notation with a leading '='
func (a *Ast) String() string {
	return a.ToString(SerializeOptions{Style: a.Style})
}

type formatter struct {
	b      strings.Builder
	opts   SerializeOptions
	origin CellAddr
}

// precedence levels used to decide where parentheses are needed
const (
	precComparison = iota + 1
	precConcat
	precAdditive
	precMultiplicative
	precPower
	precUnary
	precPercent
	precIntersect
	precRange
	precPrimary
)

func binaryPrecedence(op BinaryOp) int {
	switch op {
	case BinOpEqual, BinOpNotEqual, BinOpLess, BinOpLessEqual, BinOpGreater, BinOpGreaterEqual:
		return precComparison
	case BinOpConcat:
		return precConcat
	case BinOpAdd, BinOpSubtract:
		return precAdditive
	case BinOpMultiply, BinOpDivide:
		return precMultiplicative
	case BinOpPower:
		return precPower
	case BinOpIntersect:
		return precIntersect
	case BinOpRange:
		return precRange
	}
	// unions are always parenthesized
	return precPrimary
}

func nodePrecedence(n Node) int {
	switch x := n.(type) {
	case *BinaryOpNode:
		return binaryPrecedence(x.Op)
	case *UnaryOpNode:
		return precUnary
	case *PostfixOpNode:
		if x.Op == PostfixPercent {
			return precPercent
		}
	}
	return precPrimary
}

func (f *formatter) child(n Node, min int) {
	if nodePrecedence(n) < min {
		f.b.WriteByte('(')
		f.node(n)
		f.b.WriteByte(')')
		return
	}
	f.node(n)
}

func (f *formatter) node(n Node) {
	switch x := n.(type) {
	case nil, *MissingNode:
	case *NumberNode:
		f.b.WriteString(formatNumberLiteral(x.Value))
	case *StringNode:
		f.b.WriteString(quoteString(x.Value))
	case *BooleanNode:
		if x.Value {
			f.b.WriteString("TRUE")
		} else {
			f.b.WriteString("FALSE")
		}
	case *ErrorNode:
		f.b.WriteString(x.Code.String())
	case *CellRefNode:
		f.sheet(x.Sheet)
		f.b.WriteString(f.cellRef(x.Ref, true, true))
	case *RangeNode:
		f.sheet(x.Sheet)
		f.rangeRef(x)
	case *NameNode:
		f.sheet(x.Sheet)
		f.b.WriteString(x.Name)
	case *BinaryOpNode:
		if x.Op == BinOpUnion {
			f.b.WriteByte('(')
			f.unionPart(x)
			f.b.WriteByte(')')
			return
		}
		prec := binaryPrecedence(x.Op)
		f.child(x.Left, prec)
		f.b.WriteString(x.Op.String())
		f.child(x.Right, prec+1)
	case *UnaryOpNode:
		switch x.Op {
		case UnaryOpMinus:
			f.b.WriteByte('-')
		case UnaryOpPlus:
			f.b.WriteByte('+')
		case UnaryOpImplicit:
			f.b.WriteByte('@')
		}
		f.child(x.Operand, precUnary)
	case *PostfixOpNode:
		if x.Op == PostfixPercent {
			f.child(x.Operand, precPercent)
			f.b.WriteByte('%')
			return
		}
		f.child(x.Operand, precPrimary)
		f.b.WriteByte('#')
	case *FunctionCallNode:
		name := x.Name
		if _, ok := LookupFunction(name); !ok && x.Written != "" {
			name = x.Written
		}
		f.b.WriteString(name)
		f.args(x.Args)
	case *CallNode:
		switch x.Callee.(type) {
		case *LambdaNode, *FunctionCallNode, *CallNode:
			f.node(x.Callee)
		default:
			f.b.WriteByte('(')
			f.node(x.Callee)
			f.b.WriteByte(')')
		}
		f.args(x.Args)
	case *LetNode:
		f.b.WriteString("LET(")
		for i, name := range x.Names {
			f.b.WriteString(name)
			f.b.WriteByte(',')
			f.node(x.Values[i])
			f.b.WriteByte(',')
		}
		f.node(x.Body)
		f.b.WriteByte(')')
	case *LambdaNode:
		f.b.WriteString("LAMBDA(")
		for _, p := range x.Params {
			f.b.WriteString(p)
			f.b.WriteByte(',')
		}
		f.node(x.Body)
		f.b.WriteByte(')')
	case *StructuredRefNode:
		f.b.WriteString(x.Table)
		f.b.WriteString(x.Canonical)
	case *ArrayNode:
		f.b.WriteByte('{')
		for r := 0; r < x.Rows; r++ {
			if r > 0 {
				f.b.WriteByte(';')
			}
			for c := 0; c < x.Cols; c++ {
				if c > 0 {
					f.b.WriteByte(',')
				}
				f.node(x.Elements[r*x.Cols+c])
			}
		}
		f.b.WriteByte('}')
	}
}

func (f *formatter) unionPart(n Node) {
	if u, ok := n.(*BinaryOpNode); ok && u.Op == BinOpUnion {
		f.unionPart(u.Left)
		f.b.WriteByte(',')
		f.unionPart(u.Right)
		return
	}
	f.node(n)
}

func (f *formatter) args(args []Node) {
	f.b.WriteByte('(')
	for i, a := range args {
		if i > 0 {
			f.b.WriteByte(',')
		}
		f.node(a)
	}
	f.b.WriteByte(')')
}

func (f *formatter) sheet(s *SheetRef) {
	if s == nil {
		return
	}
	name := s.Name
	if s.ID != 0 && f.opts.SheetName != nil {
		if current, ok := f.opts.SheetName(s.ID); ok {
			name = current
		}
	}
	if s.LastName != "" {
		last := s.LastName
		if s.LastID != 0 && f.opts.SheetName != nil {
			if current, ok := f.opts.SheetName(s.LastID); ok {
				last = current
			}
		}
		name += ":" + last
	}
	if s.Book != "" {
		name = "[" + s.Book + "]" + name
	}
	f.b.WriteString(quoteSheetName(name))
	f.b.WriteByte('!')
}

// cellRef renders a reference against the formatter's origin. a reference
// that falls off the sheet renders as #REF!
func (f *formatter) cellRef(ref CellRef, withRow, withCol bool) string {
	if f.opts.Style == StyleR1C1 {
		return FormatR1C1(ref, withRow, withCol)
	}
	abs := CellRef{Row: -1, Col: -1, RowAbs: ref.RowAbs, ColAbs: ref.ColAbs}
	if withRow {
		row := int64(ref.Row)
		if !ref.RowAbs {
			row += int64(f.origin.Row)
		}
		if row < 0 || row >= int64(DefaultMaxRows) {
			return ErrorCodeRef.String()
		}
		abs.Row = int32(row)
	}
	if withCol {
		col := int64(ref.Col)
		if !ref.ColAbs {
			col += int64(f.origin.Col)
		}
		if col < 0 || col >= int64(DefaultMaxCols) {
			return ErrorCodeRef.String()
		}
		abs.Col = int32(col)
	}
	return FormatA1(abs)
}

func (f *formatter) rangeRef(r *RangeNode) {
	withRow, withCol := true, true
	switch r.Kind {
	case RangeColumns:
		withRow = false
	case RangeRows:
		withCol = false
	}
	start := f.cellRef(r.Start, withRow, withCol)
	end := f.cellRef(r.End, withRow, withCol)
	f.b.WriteString(start)
	if f.opts.Style == StyleR1C1 && start == end && r.Kind != RangeCells {
		return
	}
	f.b.WriteByte(':')
	f.b.WriteString(end)
}

// formatNumberLiteral renders a number so it parses back to the same float
func formatNumberLiteral(v float64) string {
	if v == 0 {
		return "0"
	}
	if v == math.Trunc(v) && math.Abs(v) < 1e15 {
		return strconv.FormatInt(int64(v), 10)
	}
	return strconv.FormatFloat(v, 'G', -1, 64)
}

func quoteString(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

// quoteSheetName adds quotes when a sheet name would not lex as a bare
// identifier
func quoteSheetName(name string) string {
	needs := name == "" || isASCIIDigit(name[0]) || looksLikeA1(name) || looksLikeR1C1(name)
	for _, r := range name {
		if !(isLetterRune(r) || (r >= '0' && r <= '9') || r == '_' || r == '.' || r == ':') {
			needs = true
			break
		}
	}
	if strings.HasPrefix(name, "[") {
		needs = true
	}
	if !needs {
		return name
	}
	return "'" + strings.ReplaceAll(name, "'", "''") + "'"
}

// arrayLiteralText renders one array element the way it appears in an
// array literal
func arrayLiteralText(v Value) string {
	switch x := v.(type) {
	case string:
		return quoteString(x)
	case float64:
		return FormatNumber(x)
	}
	return coerceText(v)
}

// nodeText renders a single node in R1C1 notation
func nodeText(n Node) string {
	f := &formatter{opts: SerializeOptions{Style: StyleR1C1}}
	f.node(n)
	return f.b.String()
}
