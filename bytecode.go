package calc

import (
	"fmt"
	"strings"

	"github.com/fxamacker/cbor/v2"
)

// ---------------------------------------------------------------------------
// Opcode definitions
// ---------------------------------------------------------------------------

// Opcode identifies a VM instruction. an instruction is one 64-bit word:
// the opcode in the top 8 bits, then two 28-bit operands a and b.
type Opcode uint8

// Stack operations
const (
	OpNop       Opcode = 0x00 // no operation
	OpPushConst Opcode = 0x01 // push constant a
	OpMissing   Opcode = 0x02 // push an omitted argument
	OpLoadCell  Opcode = 0x03 // push reference to cell operand a
	OpLoadRange Opcode = 0x04 // push reference to range operand a
)

// Unary operators
const (
	OpNeg      Opcode = 0x10 // negate
	OpPlus     Opcode = 0x11 // unary plus
	OpPercent  Opcode = 0x12 // divide by 100
	OpImplicit Opcode = 0x13 // implicit intersection (@)
	OpSpill    Opcode = 0x14 // spilled range of a reference (#)
)

// Binary operators
const (
	OpAdd       Opcode = 0x20
	OpSub       Opcode = 0x21
	OpMul       Opcode = 0x22
	OpDiv       Opcode = 0x23
	OpPow       Opcode = 0x24
	OpConcat    Opcode = 0x25
	OpEq        Opcode = 0x26
	OpNe        Opcode = 0x27
	OpLt        Opcode = 0x28
	OpLe        Opcode = 0x29
	OpGt        Opcode = 0x2A
	OpGe        Opcode = 0x2B
	OpRangeOp   Opcode = 0x2C // A1:B2 between two references
	OpIntersect Opcode = 0x2D
	OpUnion     Opcode = 0x2E
)

// Calls and control flow
const (
	OpCallFunc    Opcode = 0x30 // call function a with b arguments from the stack
	OpCallSpecial Opcode = 0x31 // call lazy function a with argument blocks b
	OpJump        Opcode = 0x40 // continue at a
	OpReturn      Opcode = 0x41 // end of program or block
)

const (
	operandBits = 28
	operandMask = 1<<operandBits - 1
	// maxOperand is the largest index an instruction can carry
	maxOperand = operandMask
)

// Instruction is an encoded VM instruction
type Instruction uint64

func encode(op Opcode, a, b uint32) Instruction {
	return Instruction(uint64(op)<<56 | uint64(a&operandMask)<<operandBits | uint64(b&operandMask))
}

func (in Instruction) Op() Opcode { return Opcode(in >> 56) }
func (in Instruction) A() uint32  { return uint32(in>>operandBits) & operandMask }
func (in Instruction) B() uint32  { return uint32(in) & operandMask }

// OpcodeInfo describes an opcode
type OpcodeInfo struct {
	Name string
	// Operands is how many of a and b the instruction uses
	Operands int
	// StackEffect is the net change in stack depth, ignoring call arity
	StackEffect int
}

var opcodeTable = map[Opcode]OpcodeInfo{
	OpNop:       {"NOP", 0, 0},
	OpPushConst: {"PUSH_CONST", 1, 1},
	OpMissing:   {"MISSING", 0, 1},
	OpLoadCell:  {"LOAD_CELL", 1, 1},
	OpLoadRange: {"LOAD_RANGE", 1, 1},

	OpNeg:      {"NEG", 0, 0},
	OpPlus:     {"PLUS", 0, 0},
	OpPercent:  {"PERCENT", 0, 0},
	OpImplicit: {"IMPLICIT", 0, 0},
	OpSpill:    {"SPILL", 0, 0},

	OpAdd:       {"ADD", 0, -1},
	OpSub:       {"SUB", 0, -1},
	OpMul:       {"MUL", 0, -1},
	OpDiv:       {"DIV", 0, -1},
	OpPow:       {"POW", 0, -1},
	OpConcat:    {"CONCAT", 0, -1},
	OpEq:        {"EQ", 0, -1},
	OpNe:        {"NE", 0, -1},
	OpLt:        {"LT", 0, -1},
	OpLe:        {"LE", 0, -1},
	OpGt:        {"GT", 0, -1},
	OpGe:        {"GE", 0, -1},
	OpRangeOp:   {"RANGE", 0, -1},
	OpIntersect: {"INTERSECT", 0, -1},
	OpUnion:     {"UNION", 0, -1},

	OpCallFunc:    {"CALL", 2, 1},
	OpCallSpecial: {"CALL_SPECIAL", 2, 1},
	OpJump:        {"JUMP", 1, 0},
	OpReturn:      {"RETURN", 0, -1},
}

// Info returns metadata about an opcode
func (op Opcode) Info() OpcodeInfo {
	if info, ok := opcodeTable[op]; ok {
		return info
	}
	return OpcodeInfo{Name: fmt.Sprintf("UNKNOWN_%02X", byte(op))}
}

func (op Opcode) Name() string { return op.Info().Name }

func (op Opcode) String() string { return op.Name() }

var binaryOpcodes = map[BinaryOp]Opcode{
	BinOpAdd:          OpAdd,
	BinOpSubtract:     OpSub,
	BinOpMultiply:     OpMul,
	BinOpDivide:       OpDiv,
	BinOpPower:        OpPow,
	BinOpConcat:       OpConcat,
	BinOpEqual:        OpEq,
	BinOpNotEqual:     OpNe,
	BinOpLess:         OpLt,
	BinOpLessEqual:    OpLe,
	BinOpGreater:      OpGt,
	BinOpGreaterEqual: OpGe,
	BinOpRange:        OpRangeOp,
	BinOpIntersect:    OpIntersect,
	BinOpUnion:        OpUnion,
}

var opcodeBinaryOps = func() map[Opcode]BinaryOp {
	out := make(map[Opcode]BinaryOp, len(binaryOpcodes))
	for op, code := range binaryOpcodes {
		out[code] = op
	}
	return out
}()

// ---------------------------------------------------------------------------
// Programs
// ---------------------------------------------------------------------------

// FuncOperand is a call site of a builtin
type FuncOperand struct {
	Name    string
	Argc    int
	Omitted []bool
}

// Program is a compiled formula. it is shared by every cell whose formula
// has the same R1C1 key.
type Program struct {
	Code   []Instruction
	Consts []Value
	Cells  []*CellRefNode
	Ranges []*RangeNode
	Funcs  []FuncOperand
	// Blocks holds, per lazy call site, the start of each argument block.
	// -1 marks an omitted argument.
	Blocks   [][]int32
	Key      uint64
	Source   string
	MaxStack int

	defs []*FunctionDef
}

// bind resolves the function operands against the registry
func (p *Program) bind() error {
	p.defs = make([]*FunctionDef, len(p.Funcs))
	for i, f := range p.Funcs {
		def, ok := LookupFunction(f.Name)
		if !ok {
			return fmt.Errorf("program calls unknown function %s", f.Name)
		}
		p.defs[i] = def
	}
	return nil
}

// Disassemble renders the program one instruction per line
func (p *Program) Disassemble() string {
	var sb strings.Builder
	for pc, in := range p.Code {
		if pc > 0 {
			sb.WriteByte('\n')
		}
		sb.WriteString(p.disassembleInstruction(pc, in))
	}
	return sb.String()
}

func (p *Program) disassembleInstruction(pc int, in Instruction) string {
	op := in.Op()
	info := op.Info()
	switch op {
	case OpPushConst:
		return fmt.Sprintf("%04d  %s %d ; %s", pc, info.Name, in.A(), constText(p.Consts[in.A()]))
	case OpLoadCell, OpLoadRange:
		var text string
		if op == OpLoadCell {
			text = nodeText(p.Cells[in.A()])
		} else {
			text = nodeText(p.Ranges[in.A()])
		}
		return fmt.Sprintf("%04d  %s %d ; %s", pc, info.Name, in.A(), text)
	case OpCallFunc:
		return fmt.Sprintf("%04d  %s %d %d ; %s", pc, info.Name, in.A(), in.B(), p.Funcs[in.A()].Name)
	case OpCallSpecial:
		return fmt.Sprintf("%04d  %s %d %d ; %s %v", pc, info.Name, in.A(), in.B(), p.Funcs[in.A()].Name, p.Blocks[in.B()])
	case OpJump:
		return fmt.Sprintf("%04d  %s %d", pc, info.Name, in.A())
	}
	return fmt.Sprintf("%04d  %s", pc, info.Name)
}

func constText(v Value) string {
	switch x := v.(type) {
	case nil:
		return "blank"
	case string:
		return fmt.Sprintf("%q", x)
	case *SpreadsheetError:
		return x.ErrorCode.String()
	}
	return fmt.Sprint(v)
}

// ---------------------------------------------------------------------------
// Wire format
// ---------------------------------------------------------------------------

var programEncMode cbor.EncMode

func init() {
	var err error
	programEncMode, err = cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("calc: failed to create CBOR encoding mode: %v", err))
	}
}

const (
	constBlank uint8 = iota
	constNumber
	constString
	constBool
	constError
)

type wireConst struct {
	Kind    uint8   `cbor:"1,keyasint"`
	Number  float64 `cbor:"2,keyasint,omitempty"`
	Text    string  `cbor:"3,keyasint,omitempty"`
	Bool    bool    `cbor:"4,keyasint,omitempty"`
	Code    uint8   `cbor:"5,keyasint,omitempty"`
	Message string  `cbor:"6,keyasint,omitempty"`
}

type wireSheet struct {
	ID   uint32 `cbor:"1,keyasint"`
	Name string `cbor:"2,keyasint"`
}

type wireRef struct {
	Row    int32 `cbor:"1,keyasint"`
	Col    int32 `cbor:"2,keyasint"`
	RowAbs bool  `cbor:"3,keyasint,omitempty"`
	ColAbs bool  `cbor:"4,keyasint,omitempty"`
}

type wireCell struct {
	Sheet *wireSheet `cbor:"1,keyasint,omitempty"`
	Ref   wireRef    `cbor:"2,keyasint"`
}

type wireRange struct {
	Sheet *wireSheet `cbor:"1,keyasint,omitempty"`
	Start wireRef    `cbor:"2,keyasint"`
	End   wireRef    `cbor:"3,keyasint"`
	Kind  uint8      `cbor:"4,keyasint,omitempty"`
}

type wireFunc struct {
	Name    string `cbor:"1,keyasint"`
	Argc    int    `cbor:"2,keyasint"`
	Omitted []bool `cbor:"3,keyasint,omitempty"`
}

type wireProgram struct {
	Code     []uint64    `cbor:"1,keyasint"`
	Consts   []wireConst `cbor:"2,keyasint,omitempty"`
	Cells    []wireCell  `cbor:"3,keyasint,omitempty"`
	Ranges   []wireRange `cbor:"4,keyasint,omitempty"`
	Funcs    []wireFunc  `cbor:"5,keyasint,omitempty"`
	Blocks   [][]int32   `cbor:"6,keyasint,omitempty"`
	Key      uint64      `cbor:"7,keyasint"`
	Source   string      `cbor:"8,keyasint"`
	MaxStack int         `cbor:"9,keyasint"`
}

// MarshalBinary encodes the program as canonical CBOR
func (p *Program) MarshalBinary() ([]byte, error) {
	w := wireProgram{Key: p.Key, Source: p.Source, MaxStack: p.MaxStack, Blocks: p.Blocks}
	w.Code = make([]uint64, len(p.Code))
	for i, in := range p.Code {
		w.Code[i] = uint64(in)
	}
	for _, c := range p.Consts {
		wc, err := toWireConst(c)
		if err != nil {
			return nil, err
		}
		w.Consts = append(w.Consts, wc)
	}
	for _, c := range p.Cells {
		w.Cells = append(w.Cells, wireCell{Sheet: toWireSheet(c.Sheet), Ref: toWireRef(c.Ref)})
	}
	for _, r := range p.Ranges {
		w.Ranges = append(w.Ranges, wireRange{
			Sheet: toWireSheet(r.Sheet),
			Start: toWireRef(r.Start),
			End:   toWireRef(r.End),
			Kind:  uint8(r.Kind),
		})
	}
	for _, f := range p.Funcs {
		w.Funcs = append(w.Funcs, wireFunc(f))
	}
	data, err := programEncMode.Marshal(&w)
	if err != nil {
		return nil, fmt.Errorf("marshal program: %w", err)
	}
	return data, nil
}

// UnmarshalProgram decodes a program written by MarshalBinary and binds
// its function calls
func UnmarshalProgram(data []byte) (*Program, error) {
	var w wireProgram
	if err := cbor.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("unmarshal program: %w", err)
	}
	p := &Program{Key: w.Key, Source: w.Source, MaxStack: w.MaxStack, Blocks: w.Blocks}
	p.Code = make([]Instruction, len(w.Code))
	for i, in := range w.Code {
		p.Code[i] = Instruction(in)
	}
	for _, c := range w.Consts {
		p.Consts = append(p.Consts, fromWireConst(c))
	}
	for _, c := range w.Cells {
		p.Cells = append(p.Cells, &CellRefNode{Sheet: fromWireSheet(c.Sheet), Ref: fromWireRef(c.Ref)})
	}
	for _, r := range w.Ranges {
		p.Ranges = append(p.Ranges, &RangeNode{
			Sheet: fromWireSheet(r.Sheet),
			Start: fromWireRef(r.Start),
			End:   fromWireRef(r.End),
			Kind:  RangeKind(r.Kind),
		})
	}
	for _, f := range w.Funcs {
		p.Funcs = append(p.Funcs, FuncOperand(f))
	}
	if err := p.validate(); err != nil {
		return nil, err
	}
	if err := p.bind(); err != nil {
		return nil, err
	}
	return p, nil
}

// validate checks that every operand indexes into the program's tables
func (p *Program) validate() error {
	for pc, in := range p.Code {
		a := int(in.A())
		bad := false
		switch in.Op() {
		case OpPushConst:
			bad = a >= len(p.Consts)
		case OpLoadCell:
			bad = a >= len(p.Cells)
		case OpLoadRange:
			bad = a >= len(p.Ranges)
		case OpCallFunc:
			bad = a >= len(p.Funcs)
		case OpCallSpecial:
			bad = a >= len(p.Funcs) || int(in.B()) >= len(p.Blocks)
		case OpJump:
			bad = a > len(p.Code)
		default:
			_, known := opcodeTable[in.Op()]
			bad = !known
		}
		if bad {
			return fmt.Errorf("invalid instruction at %04d: %s", pc, p.disassembleOp(in))
		}
	}
	for _, set := range p.Blocks {
		for _, start := range set {
			if int(start) >= len(p.Code) {
				return fmt.Errorf("block starts past end of program at %d", start)
			}
		}
	}
	return nil
}

func (p *Program) disassembleOp(in Instruction) string {
	return fmt.Sprintf("%s %d %d", in.Op().Name(), in.A(), in.B())
}

func toWireConst(v Value) (wireConst, error) {
	switch x := v.(type) {
	case nil:
		return wireConst{Kind: constBlank}, nil
	case float64:
		return wireConst{Kind: constNumber, Number: x}, nil
	case string:
		return wireConst{Kind: constString, Text: x}, nil
	case bool:
		return wireConst{Kind: constBool, Bool: x}, nil
	case *SpreadsheetError:
		return wireConst{Kind: constError, Code: uint8(x.ErrorCode), Message: x.Message}, nil
	}
	return wireConst{}, fmt.Errorf("constant of type %T cannot be encoded", v)
}

func fromWireConst(c wireConst) Value {
	switch c.Kind {
	case constNumber:
		return c.Number
	case constString:
		return c.Text
	case constBool:
		return c.Bool
	case constError:
		return &SpreadsheetError{ErrorCode: ErrorCode(c.Code), Message: c.Message}
	}
	return nil
}

func toWireSheet(s *SheetRef) *wireSheet {
	if s == nil {
		return nil
	}
	return &wireSheet{ID: uint32(s.ID), Name: s.Name}
}

func fromWireSheet(s *wireSheet) *SheetRef {
	if s == nil {
		return nil
	}
	return &SheetRef{ID: SheetID(s.ID), Name: s.Name}
}

func toWireRef(r CellRef) wireRef {
	return wireRef{Row: r.Row, Col: r.Col, RowAbs: r.RowAbs, ColAbs: r.ColAbs}
}

func fromWireRef(r wireRef) CellRef {
	return CellRef{Row: r.Row, Col: r.Col, RowAbs: r.RowAbs, ColAbs: r.ColAbs}
}
