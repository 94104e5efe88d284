package calc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func compileText(t *testing.T, formula string) (*Program, string) {
	t.Helper()
	ast, err := ParseFormula(formula, testParseOptions())
	require.NoError(t, err)
	return Compile(ast, "")
}

func TestCompile(t *testing.T) {
	p, cause := compileText(t, "=1+2*SUM(A1:A3)")
	require.NotNil(t, p, cause)
	assert.Equal(t, "1+2*SUM(RC:R[2]C)", p.Source)
	assert.Len(t, p.Ranges, 1)
	assert.Equal(t, []FuncOperand{{Name: "SUM", Argc: 1}}, p.Funcs[:1])
	assert.Equal(t, OpReturn, p.Code[len(p.Code)-1].Op())
	assert.GreaterOrEqual(t, p.MaxStack, 2)

	dis := p.Disassemble()
	assert.Contains(t, dis, "PUSH_CONST")
	assert.Contains(t, dis, "LOAD_RANGE 0")
	assert.Contains(t, dis, "; SUM")
	assert.Contains(t, dis, "RETURN")
}

func TestCompileSameShapeSameKey(t *testing.T) {
	opts := testParseOptions()
	first, err := ParseFormula("=A1*2", opts)
	require.NoError(t, err)
	opts.Origin = CellAddr{Row: 4}
	second, err := ParseFormula("=A5*2", opts)
	require.NoError(t, err)

	p1, _ := Compile(first, "")
	p2, _ := Compile(second, "")
	require.NotNil(t, p1)
	require.NotNil(t, p2)
	assert.Equal(t, p1.Key, p2.Key)
}

func TestCompileFallback(t *testing.T) {
	cases := map[string]string{
		"=LET(x, 1, x)":     FallbackLet,
		"=LAMBDA(x, x)":     FallbackLambda,
		"=LAMBDA(x, x)(1)":  FallbackDynamicCall,
		"={1,2}":            FallbackArrayLiteral,
		"=Sales[Amount]":    FallbackStructuredRef,
		"=Sheet1:Sheet3!A1": Fallback3DReference,
		"=SomeName+1":       FallbackName,
		"=[Book]Sheet1!A1":  FallbackExternal,
	}
	for formula, want := range cases {
		t.Run(formula, func(t *testing.T) {
			p, cause := compileText(t, formula)
			assert.Nil(t, p)
			assert.Equal(t, want, cause)
		})
	}
}

func TestProgramBinaryRoundTrip(t *testing.T) {
	p, cause := compileText(t, `=IF(Sheet2!B1>0, "yes", #N/A)&TEXT(A1:A3, "0")`)
	require.NotNil(t, p, cause)

	data, err := p.MarshalBinary()
	require.NoError(t, err)
	again, err := UnmarshalProgram(data)
	require.NoError(t, err)

	assert.Equal(t, p.Code, again.Code)
	assert.Equal(t, p.Funcs, again.Funcs)
	assert.Equal(t, p.Blocks, again.Blocks)
	assert.Equal(t, p.Key, again.Key)
	assert.Equal(t, p.Source, again.Source)
	assert.Equal(t, p.MaxStack, again.MaxStack)
	assert.Equal(t, p.Disassemble(), again.Disassemble())

	// canonical encoding is deterministic
	data2, err := again.MarshalBinary()
	require.NoError(t, err)
	assert.Equal(t, data, data2)
}

func TestUnmarshalProgramRejects(t *testing.T) {
	bad := &Program{Code: []Instruction{encode(OpPushConst, 3, 0), encode(OpReturn, 0, 0)}}
	data, err := bad.MarshalBinary()
	require.NoError(t, err)
	_, err = UnmarshalProgram(data)
	assert.ErrorContains(t, err, "invalid instruction at 0000")

	unknown := &Program{
		Code:  []Instruction{encode(OpCallFunc, 0, 0), encode(OpReturn, 0, 0)},
		Funcs: []FuncOperand{{Name: "NOSUCHFUNCTION"}},
	}
	data, err = unknown.MarshalBinary()
	require.NoError(t, err)
	_, err = UnmarshalProgram(data)
	assert.ErrorContains(t, err, "unknown function NOSUCHFUNCTION")

	_, err = UnmarshalProgram([]byte{0xff, 0x00})
	assert.Error(t, err)
}

func TestInstructionEncoding(t *testing.T) {
	in := encode(OpCallFunc, 12, 3)
	assert.Equal(t, OpCallFunc, in.Op())
	assert.Equal(t, uint32(12), in.A())
	assert.Equal(t, uint32(3), in.B())
	assert.Equal(t, "CALL", OpCallFunc.String())
	assert.Equal(t, "UNKNOWN_FE", Opcode(0xfe).Name())
}
