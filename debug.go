package calc

// TraceNode records one evaluated expression. ranges keep the reference
// they produced instead of the cells behind it.
type TraceNode struct {
	Span      NodePosition
	Kind      string
	Text      string
	Value     Value
	Reference string
	Children  []*TraceNode
}

// DebugTrace is the evaluation tree of one formula
type DebugTrace struct {
	Sheet   SheetID
	Cell    CellAddr
	Formula string
	Result  Value
	Root    *TraceNode
}

// Walk visits the trace depth-first, parents before children
func (t *DebugTrace) Walk(fn func(depth int, n *TraceNode)) {
	var visit func(int, *TraceNode)
	visit = func(depth int, n *TraceNode) {
		fn(depth, n)
		for _, c := range n.Children {
			visit(depth+1, c)
		}
	}
	if t.Root != nil {
		visit(0, t.Root)
	}
}

type tracer struct {
	text  []rune
	res   ValueResolver
	stack []*TraceNode
	root  *TraceNode
}

func newTracer(res ValueResolver, text string) *tracer {
	return &tracer{text: []rune(text), res: res}
}

func (t *tracer) enter(n Node) {
	pos := n.GetPosition()
	node := &TraceNode{Span: pos, Kind: nodeKind(n), Text: t.source(pos)}
	if len(t.stack) == 0 {
		if t.root == nil {
			t.root = node
		}
	} else {
		parent := t.stack[len(t.stack)-1]
		parent.Children = append(parent.Children, node)
	}
	t.stack = append(t.stack, node)
}

func (t *tracer) leave(v Value) {
	node := t.stack[len(t.stack)-1]
	t.stack = t.stack[:len(t.stack)-1]
	switch x := v.(type) {
	case *Reference:
		node.Reference = referenceText(t.res, x)
	case *ReferenceUnion:
		for i, area := range x.Areas {
			if i > 0 {
				node.Reference += ","
			}
			node.Reference += referenceText(t.res, area)
		}
	}
	node.Value = v
}

func (t *tracer) source(pos NodePosition) string {
	if pos.Start < 0 || pos.End > len(t.text) || pos.Start >= pos.End {
		return ""
	}
	return string(t.text[pos.Start:pos.End])
}

func nodeKind(n Node) string {
	switch x := n.(type) {
	case *NumberNode:
		return "number"
	case *StringNode:
		return "text"
	case *BooleanNode:
		return "bool"
	case *ErrorNode:
		return "error"
	case *MissingNode:
		return "missing"
	case *CellRefNode:
		return "cell"
	case *RangeNode:
		return "range"
	case *NameNode:
		return "name"
	case *BinaryOpNode:
		return "binary " + x.Op.String()
	case *UnaryOpNode:
		return "unary"
	case *PostfixOpNode:
		return "postfix"
	case *FunctionCallNode:
		return "call " + x.Name
	case *CallNode:
		return "lambda call"
	case *LetNode:
		return "let"
	case *LambdaNode:
		return "lambda"
	case *StructuredRefNode:
		return "table"
	case *ArrayNode:
		return "array"
	}
	return "node"
}

// traceFormula evaluates a parsed formula with tracing enabled. the trace
// is a side channel; the result equals a plain evaluation.
func traceFormula(res ValueResolver, ec *evalContext, sheet SheetID, cell CellAddr, ast *Ast) *DebugTrace {
	ev := NewEvaluator(res, ec, sheet, cell)
	ev.tracer = newTracer(res, ast.Text)
	result := ev.Evaluate(ast)
	return &DebugTrace{Sheet: sheet, Cell: cell, Formula: ast.Text, Result: result, Root: ev.tracer.root}
}
