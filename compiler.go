package calc

import (
	"math"
	"slices"

	"github.com/zeebo/xxh3"
)

// reasons a formula is left to the tree interpreter
const (
	FallbackLambda          = "lambda"
	FallbackLet             = "let"
	FallbackStructuredRef   = "structured reference"
	FallbackArrayLiteral    = "array literal"
	FallbackName            = "name"
	Fallback3DReference     = "3-D reference"
	FallbackExternal        = "external reference"
	FallbackDynamicCall     = "dynamic call"
	FallbackOperandOverflow = "operand overflow"
)

// CompileStats summarizes how the formula cells of a workbook run
type CompileStats struct {
	FormulaCells int
	Compiled     int
	Fallbacks    int
	// Causes counts fallback cells by reason
	Causes map[string]int
}

// CompileReport is the compile outcome of one formula cell
type CompileReport struct {
	Sheet    string
	Cell     CellAddr
	Compiled bool
	Cause    string
}

type compiler struct {
	p      *Program
	consts map[Value]uint32
	depth  int
	cause  string
}

// Compile translates a formula into a program keyed by the hash of
// source, its R1C1 text; an empty source is rendered from the tree. when
// some construct has no bytecode form the program is nil and cause names
// the construct.
func Compile(ast *Ast, source string) (*Program, string) {
	if source == "" {
		source = ast.ToString(SerializeOptions{Style: StyleR1C1, OmitEquals: true})
	}
	c := &compiler{
		p:      &Program{Key: xxh3.HashString(source), Source: source},
		consts: make(map[Value]uint32),
	}
	c.node(ast.Root)
	c.emit(OpReturn, 0, 0)
	c.pop(1)
	if c.cause != "" {
		return nil, c.cause
	}
	if err := c.p.bind(); err != nil {
		return nil, FallbackDynamicCall
	}
	return c.p, ""
}

func (c *compiler) fail(cause string) {
	if c.cause == "" {
		c.cause = cause
	}
}

func (c *compiler) emit(op Opcode, a, b int) int {
	if a > maxOperand || b > maxOperand || a < 0 || b < 0 {
		c.fail(FallbackOperandOverflow)
	}
	c.p.Code = append(c.p.Code, encode(op, uint32(a), uint32(b)))
	return len(c.p.Code) - 1
}

func (c *compiler) push(n int) {
	c.depth += n
	c.p.MaxStack = max(c.p.MaxStack, c.depth)
}

func (c *compiler) pop(n int) {
	c.depth -= n
}

func (c *compiler) constant(v Value) {
	idx, ok := c.consts[v]
	if _, isErr := v.(*SpreadsheetError); isErr || !ok {
		idx = uint32(len(c.p.Consts))
		c.p.Consts = append(c.p.Consts, v)
		if !isErr && !isNaN(v) {
			c.consts[v] = idx
		}
	}
	c.emit(OpPushConst, int(idx), 0)
	c.push(1)
}

func isNaN(v Value) bool {
	f, ok := v.(float64)
	return ok && math.IsNaN(f)
}

func (c *compiler) sheet(s *SheetRef) bool {
	switch {
	case s == nil:
		return true
	case s.IsExternal():
		c.fail(FallbackExternal)
	case s.Is3D():
		c.fail(Fallback3DReference)
	default:
		return true
	}
	return false
}

func (c *compiler) node(n Node) {
	if c.cause != "" {
		return
	}
	switch x := n.(type) {
	case *NumberNode:
		c.constant(x.Value)
	case *StringNode:
		c.constant(x.Value)
	case *BooleanNode:
		c.constant(x.Value)
	case *ErrorNode:
		c.constant(errorValue(x.Code))
	case *MissingNode:
		c.emit(OpMissing, 0, 0)
		c.push(1)
	case *CellRefNode:
		if c.sheet(x.Sheet) {
			c.emit(OpLoadCell, len(c.p.Cells), 0)
			c.p.Cells = append(c.p.Cells, x)
			c.push(1)
		}
	case *RangeNode:
		if c.sheet(x.Sheet) {
			c.emit(OpLoadRange, len(c.p.Ranges), 0)
			c.p.Ranges = append(c.p.Ranges, x)
			c.push(1)
		}
	case *BinaryOpNode:
		c.node(x.Left)
		c.node(x.Right)
		c.emit(binaryOpcodes[x.Op], 0, 0)
		c.pop(1)
	case *UnaryOpNode:
		c.node(x.Operand)
		switch x.Op {
		case UnaryOpMinus:
			c.emit(OpNeg, 0, 0)
		case UnaryOpPlus:
			c.emit(OpPlus, 0, 0)
		default:
			c.emit(OpImplicit, 0, 0)
		}
	case *PostfixOpNode:
		c.node(x.Operand)
		if x.Op == PostfixSpill {
			c.emit(OpSpill, 0, 0)
		} else {
			c.emit(OpPercent, 0, 0)
		}
	case *FunctionCallNode:
		c.call(x)
	case *NameNode:
		c.fail(FallbackName)
	case *CallNode:
		c.fail(FallbackDynamicCall)
	case *LetNode:
		c.fail(FallbackLet)
	case *LambdaNode:
		c.fail(FallbackLambda)
	case *StructuredRefNode:
		c.fail(FallbackStructuredRef)
	case *ArrayNode:
		c.fail(FallbackArrayLiteral)
	default:
		c.fail(FallbackDynamicCall)
	}
}

func (c *compiler) call(x *FunctionCallNode) {
	def, ok := LookupFunction(x.Name)
	if !ok {
		// may be a lambda held by a defined name
		c.fail(FallbackDynamicCall)
		return
	}
	if !def.acceptsArgCount(len(x.Args)) {
		c.constant(NewSpreadsheetError(ErrorCodeValue, "wrong number of arguments to "+def.Name))
		return
	}
	fn := FuncOperand{Name: def.Name, Argc: len(x.Args)}
	for i, a := range x.Args {
		if _, missing := a.(*MissingNode); missing {
			if fn.Omitted == nil {
				fn.Omitted = make([]bool, len(x.Args))
			}
			fn.Omitted[i] = true
		}
	}
	idx := len(c.p.Funcs)
	c.p.Funcs = append(c.p.Funcs, fn)

	if def.Special == nil {
		for _, a := range x.Args {
			c.node(a)
		}
		c.emit(OpCallFunc, idx, len(x.Args))
		c.pop(len(x.Args))
		c.push(1)
		return
	}

	// CALL_SPECIAL, JUMP past the blocks, then one block per argument
	set := len(c.p.Blocks)
	c.p.Blocks = append(c.p.Blocks, nil)
	c.emit(OpCallSpecial, idx, set)
	jump := c.emit(OpJump, 0, 0)
	starts := make([]int32, len(x.Args))
	for i, a := range x.Args {
		if fn.Omitted != nil && fn.Omitted[i] {
			starts[i] = -1
			continue
		}
		starts[i] = int32(len(c.p.Code))
		c.node(a)
		c.emit(OpReturn, 0, 0)
		c.pop(1)
	}
	c.p.Blocks[set] = slices.Clip(starts)
	c.p.Code[jump] = encode(OpJump, uint32(len(c.p.Code)), 0)
	if len(c.p.Code) > maxOperand {
		c.fail(FallbackOperandOverflow)
	}
	c.push(1)
}
