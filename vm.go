package calc

// machine runs a compiled program for one formula cell. lazy call sites
// re-enter run at the start of an argument block, sharing the stack.
type machine struct {
	p     *Program
	ev    *Evaluator
	stack []Value
}

// omittedArg stands in for an argument block that was never written
var omittedArg = &MissingNode{}

// Run evaluates a program for the cell the evaluator is placed at and
// returns the value the cell holds
func (ev *Evaluator) Run(p *Program) Value {
	m := &machine{p: p, ev: ev, stack: make([]Value, 0, max(p.MaxStack, 1))}
	return ev.cellResult(m.run(0))
}

func (m *machine) push(v Value) {
	m.stack = append(m.stack, v)
}

func (m *machine) pop() Value {
	n := len(m.stack) - 1
	v := m.stack[n]
	m.stack[n] = nil
	m.stack = m.stack[:n]
	return v
}

func (m *machine) run(pc int) Value {
	code := m.p.Code
	ev := m.ev
	for pc < len(code) {
		in := code[pc]
		pc++
		switch op := in.Op(); op {
		case OpNop:
		case OpPushConst:
			m.push(m.p.Consts[in.A()])
		case OpMissing:
			m.push(nil)
		case OpLoadCell:
			m.push(m.p.Cells[in.A()].Eval(ev))
		case OpLoadRange:
			m.push(m.p.Ranges[in.A()].Eval(ev))

		case OpNeg:
			m.push(ev.unary(UnaryOpMinus, ev.deref(m.pop())))
		case OpPlus:
			m.push(ev.unary(UnaryOpPlus, ev.deref(m.pop())))
		case OpPercent:
			m.push(ev.percent(ev.deref(m.pop())))
		case OpImplicit:
			m.push(ev.implicitIntersection(m.pop()))
		case OpSpill:
			m.push(ev.spillReference(m.pop()))

		case OpAdd, OpSub, OpMul, OpDiv, OpPow, OpConcat,
			OpEq, OpNe, OpLt, OpLe, OpGt, OpGe:
			right := ev.deref(m.pop())
			left := ev.deref(m.pop())
			m.push(ev.binary(opcodeBinaryOps[op], left, right))
		case OpRangeOp, OpIntersect, OpUnion:
			right := m.pop()
			left := m.pop()
			m.push(ev.referenceOp(opcodeBinaryOps[op], left, right))

		case OpCallFunc:
			m.callFunc(in)
		case OpCallSpecial:
			m.callSpecial(in)
		case OpJump:
			pc = int(in.A())
		case OpReturn:
			return m.pop()

		default:
			return NewSpreadsheetError(ErrorCodeCalc, "invalid instruction "+op.Name())
		}
	}
	if len(m.stack) == 0 {
		return nil
	}
	return m.pop()
}

func (m *machine) callFunc(in Instruction) {
	def := m.p.defs[in.A()]
	fn := &m.p.Funcs[in.A()]
	argc := int(in.B())
	base := len(m.stack) - argc
	args := make([]Value, argc)
	copy(args, m.stack[base:])
	clear(m.stack[base:])
	m.stack = m.stack[:base]

	if m.ev.checkCancelled() {
		m.push(errorValue(ErrorCodeCalc))
		return
	}
	for i := range args {
		if def.ArgKindAt(i) == ArgValue {
			args[i] = m.ev.deref(args[i])
		}
	}
	fc := &FunctionContext{ev: m.ev, def: def, argc: argc, omitted: fn.Omitted}
	m.push(invoke(fc, def, args))
}

func (m *machine) callSpecial(in Instruction) {
	def := m.p.defs[in.A()]
	starts := m.p.Blocks[in.B()]
	if m.ev.checkCancelled() {
		m.push(errorValue(ErrorCodeCalc))
		return
	}
	nodes := make([]Node, len(starts))
	for i, start := range starts {
		if start < 0 {
			nodes[i] = omittedArg
			continue
		}
		nodes[i] = &blockNode{m: m, start: int(start)}
	}
	fc := newFunctionContext(m.ev, def, nodes)
	m.push(def.Special(fc, nodes))
}

// blockNode is an argument of a lazy call. evaluating it runs the block.
type blockNode struct {
	m     *machine
	start int
}

func (b *blockNode) Eval(ev *Evaluator) Value {
	return b.m.run(b.start)
}

func (b *blockNode) GetPosition() NodePosition { return NodePosition{} }
