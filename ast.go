package calc

// NodePosition is a half-open span of Unicode scalar offsets into the
// formula text, not counting a leading '='
type NodePosition struct {
	Start int
	End   int
}

// Node is an expression tree node. evaluation lives on the node so the
// interpreter is a plain tree walk.
type Node interface {
	Eval(ev *Evaluator) Value
	GetPosition() NodePosition
}

// SheetRef names the sheet part of a reference. ID is resolved when the
// formula is parsed; Name is kept so sheets created later still resolve.
type SheetRef struct {
	ID       SheetID
	Name     string
	LastID   SheetID // set for 3-D references
	LastName string
	Book     string // external workbook, always evaluates to #REF!
}

// Is3D reports whether the prefix spans several sheets
func (s *SheetRef) Is3D() bool {
	return s != nil && s.LastName != ""
}

// IsExternal reports whether the prefix points to another workbook
func (s *SheetRef) IsExternal() bool {
	return s != nil && s.Book != ""
}

// NumberNode represents a numeric literal
type NumberNode struct {
	Value    float64
	Position NodePosition
}

// StringNode represents a string literal
type StringNode struct {
	Value    string
	Position NodePosition
}

// BooleanNode represents TRUE or FALSE
type BooleanNode struct {
	Value    bool
	Position NodePosition
}

// ErrorNode represents an error literal such as #N/A
type ErrorNode struct {
	Code     ErrorCode
	Position NodePosition
}

// MissingNode is an omitted argument, as in f(1,)
type MissingNode struct {
	Position NodePosition
}

// CellRefNode is a single cell reference
type CellRefNode struct {
	Sheet    *SheetRef
	Ref      CellRef
	Position NodePosition
}

// RangeKind distinguishes cell ranges from whole-row and whole-column forms
type RangeKind uint8

const (
	RangeCells RangeKind = iota
	RangeColumns
	RangeRows
)

// RangeNode is a rectangular reference. for whole columns the row parts are
// ignored and for whole rows the column parts are.
type RangeNode struct {
	Sheet    *SheetRef
	Start    CellRef
	End      CellRef
	Kind     RangeKind
	Position NodePosition
}

// NameNode is a defined name or a LET/LAMBDA binding
type NameNode struct {
	Name     string
	Sheet    *SheetRef // sheet-scoped name written as Sheet1!Name
	Position NodePosition
}

// BinaryOp represents binary operators
type BinaryOp uint8

const (
	BinOpAdd BinaryOp = iota
	BinOpSubtract
	BinOpMultiply
	BinOpDivide
	BinOpPower
	BinOpConcat
	BinOpEqual
	BinOpNotEqual
	BinOpLess
	BinOpLessEqual
	BinOpGreater
	BinOpGreaterEqual
	BinOpRange
	BinOpIntersect
	BinOpUnion
)

var binaryOpText = map[BinaryOp]string{
	BinOpAdd:          "+",
	BinOpSubtract:     "-",
	BinOpMultiply:     "*",
	BinOpDivide:       "/",
	BinOpPower:        "^",
	BinOpConcat:       "&",
	BinOpEqual:        "=",
	BinOpNotEqual:     "<>",
	BinOpLess:         "<",
	BinOpLessEqual:    "<=",
	BinOpGreater:      ">",
	BinOpGreaterEqual: ">=",
	BinOpRange:        ":",
	BinOpIntersect:    " ",
	BinOpUnion:        ",",
}

func (op BinaryOp) String() string {
	return binaryOpText[op]
}

// isReferenceOp reports whether the operator combines references
func (op BinaryOp) isReferenceOp() bool {
	return op == BinOpRange || op == BinOpIntersect || op == BinOpUnion
}

// BinaryOpNode represents a binary operation
type BinaryOpNode struct {
	Op       BinaryOp
	Left     Node
	Right    Node
	Position NodePosition
}

// UnaryOp represents prefix operators
type UnaryOp uint8

const (
	UnaryOpPlus UnaryOp = iota
	UnaryOpMinus
	UnaryOpImplicit // @
)

// UnaryOpNode represents a prefix operation
type UnaryOpNode struct {
	Op       UnaryOp
	Operand  Node
	Position NodePosition
}

// PostfixOp represents postfix operators
type PostfixOp uint8

const (
	PostfixPercent PostfixOp = iota
	PostfixSpill
)

// PostfixOpNode represents % and the spill operator #
type PostfixOpNode struct {
	Op       PostfixOp
	Operand  Node
	Position NodePosition
}

// FunctionCallNode represents a call by name. the name is upper-cased with
// any _xlfn. style prefix removed; Written keeps the original spelling of
// names that are not builtins, which may be LET or LAMBDA bindings.
type FunctionCallNode struct {
	Name     string
	Written  string
	Args     []Node
	Position NodePosition
}

// CallNode invokes the value of an expression, as in LAMBDA(x,x*2)(3)
type CallNode struct {
	Callee   Node
	Args     []Node
	Position NodePosition
}

// LetNode represents LET(name1, value1, ..., body)
type LetNode struct {
	Names    []string
	Values   []Node
	Body     Node
	Position NodePosition
}

// LambdaNode represents LAMBDA(params..., body)
type LambdaNode struct {
	Params   []string
	Body     Node
	Position NodePosition
}

// TableItem selects special regions of a table
type TableItem uint8

const (
	TableItemData TableItem = 1 << iota
	TableItemHeaders
	TableItemTotals
	TableItemThisRow
	TableItemAll = TableItemData | TableItemHeaders | TableItemTotals
)

// StructuredRefNode is a table reference such as Sales[[#Headers],[Amount]]
type StructuredRefNode struct {
	Table     string // empty for [@Col] inside a table
	Items     TableItem
	FirstCol  string
	LastCol   string
	Position  NodePosition
	Canonical string // bracket text used for rendering
}

// ArrayNode is an array literal. elements are literals or negated numbers.
type ArrayNode struct {
	Rows     int
	Cols     int
	Elements []Node
	Position NodePosition
}

func (n *NumberNode) GetPosition() NodePosition        { return n.Position }
func (n *StringNode) GetPosition() NodePosition        { return n.Position }
func (n *BooleanNode) GetPosition() NodePosition       { return n.Position }
func (n *ErrorNode) GetPosition() NodePosition         { return n.Position }
func (n *MissingNode) GetPosition() NodePosition       { return n.Position }
func (n *CellRefNode) GetPosition() NodePosition       { return n.Position }
func (n *RangeNode) GetPosition() NodePosition         { return n.Position }
func (n *NameNode) GetPosition() NodePosition          { return n.Position }
func (n *BinaryOpNode) GetPosition() NodePosition      { return n.Position }
func (n *UnaryOpNode) GetPosition() NodePosition       { return n.Position }
func (n *PostfixOpNode) GetPosition() NodePosition     { return n.Position }
func (n *FunctionCallNode) GetPosition() NodePosition  { return n.Position }
func (n *CallNode) GetPosition() NodePosition          { return n.Position }
func (n *LetNode) GetPosition() NodePosition           { return n.Position }
func (n *LambdaNode) GetPosition() NodePosition        { return n.Position }
func (n *StructuredRefNode) GetPosition() NodePosition { return n.Position }
func (n *ArrayNode) GetPosition() NodePosition         { return n.Position }

// Ast is a parsed formula
type Ast struct {
	Root     Node
	Text     string // formula text without the leading '='
	Style    RefStyle
	Origin   CellAddr
	Warnings []ParseWarning
}

// ParseWarning is a non-fatal finding, for instance an external workbook
// reference that will evaluate to #REF!
type ParseWarning struct {
	Span    NodePosition
	Message string
}

// PartialAst is the result of a best-effort parse. Ast is never nil; Error
// holds the first problem found.
type PartialAst struct {
	Ast   *Ast
	Error *ParseError
}

// walk visits n and all of its children depth first. returning false from
// fn skips the children of that node.
func walk(n Node, fn func(Node) bool) {
	if n == nil || !fn(n) {
		return
	}
	switch x := n.(type) {
	case *BinaryOpNode:
		walk(x.Left, fn)
		walk(x.Right, fn)
	case *UnaryOpNode:
		walk(x.Operand, fn)
	case *PostfixOpNode:
		walk(x.Operand, fn)
	case *FunctionCallNode:
		for _, a := range x.Args {
			walk(a, fn)
		}
	case *CallNode:
		walk(x.Callee, fn)
		for _, a := range x.Args {
			walk(a, fn)
		}
	case *LetNode:
		for _, v := range x.Values {
			walk(v, fn)
		}
		walk(x.Body, fn)
	case *LambdaNode:
		walk(x.Body, fn)
	case *ArrayNode:
		for _, e := range x.Elements {
			walk(e, fn)
		}
	}
}
