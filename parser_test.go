package calc

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testParseOptions() ParseOptions {
	return ParseOptions{
		ResolveSheet: func(name string) (SheetID, bool) {
			switch strings.ToLower(name) {
			case "sheet1":
				return 1, true
			case "sheet2":
				return 2, true
			case "sheet3":
				return 3, true
			}
			return 0, false
		},
	}
}

func TestParserBasicFormulas(t *testing.T) {
	validFormulas := []string{
		"=1+2",
		"=A1",
		"=SUM(A1:A10)",
		"=Sheet2!A1",
		"=Sheet2!A1:B2",
		"=SUM(Sheet2!A1:A10)",
		"=Sheet2!A1 + Sheet3!B1",
		"=SUM(B2:A1)",
		"=SUM(A1:A1)",
		"=SUM(A1:Z1000)",
		"=SUM(A:A)",
		"=SUM(1:3)",
		"=Sheet1:Sheet3!A1",
		"='My Sheet'!A1",
		"=$A$1+A$1+$A1",
		"={1,2;3,4}",
		"=-{1,-2}",
		"=A1:A3*10",
		"=C1#",
		"=@A1:A3",
		"=50%",
		`="Hello 世界"`,
		`="Test 😀 emoji"`,
		`=CONCATENATE("Hello ", "世界")`,
		"=LET(x, 1, y, 2, x+y)",
		"=LAMBDA(x, x*2)(3)",
		"=IF(A1>0,,1)",
		"=_xlfn.XLOOKUP(1, A1:A3, B1:B3)",
		"=Sales[Amount]",
		"=Sales[[#Headers],[Amount]]",
		"=#N/A",
		"=A1:B2 B1:C3",
	}

	for _, formula := range validFormulas {
		t.Run(formula, func(t *testing.T) {
			_, err := ParseFormula(formula, testParseOptions())
			assert.NoError(t, err)
		})
	}
}

func TestParserInvalidFormulas(t *testing.T) {
	invalidFormulas := []string{
		"=",
		"=SUM(",
		"=A1:",
		`="hello`,
		"=1+",
		"=(1",
		"={1,2;3}",
	}

	for _, formula := range invalidFormulas {
		t.Run(formula, func(t *testing.T) {
			_, err := ParseFormula(formula, testParseOptions())
			assert.Error(t, err)
		})
	}
}

func TestParserLimits(t *testing.T) {
	literal := func(n int) string {
		// a quoted string of n characters in total
		return `"` + strings.Repeat("a", n-2) + `"`
	}
	powers := func(n int) string {
		return "2" + strings.Repeat("^1", n)
	}

	t.Run("Length", func(t *testing.T) {
		_, err := ParseFormula("="+literal(MaxFormulaLength), testParseOptions())
		require.NoError(t, err)

		_, err = ParseFormula("="+literal(MaxFormulaLength+1), testParseOptions())
		var perr *ParseError
		require.ErrorAs(t, err, &perr)
		assert.Equal(t, ParseErrorTooLong, perr.Kind)
		assert.True(t, perr.IsLimit())
	})

	t.Run("LengthCountsCharacters", func(t *testing.T) {
		text := `="` + strings.Repeat("é", MaxFormulaLength-2) + `"`
		_, err := ParseFormula(text, testParseOptions())
		assert.NoError(t, err)
	})

	t.Run("PowerChain", func(t *testing.T) {
		_, err := ParseFormula("="+powers(MaxPowerChain), testParseOptions())
		require.NoError(t, err)

		_, err = ParseFormula("="+powers(MaxPowerChain+1), testParseOptions())
		var perr *ParseError
		require.ErrorAs(t, err, &perr)
		assert.Equal(t, ParseErrorPowerChain, perr.Kind)
	})

	t.Run("NestedCalls", func(t *testing.T) {
		nested := func(n int) string {
			return "=" + strings.Repeat("ABS(", n) + "1" + strings.Repeat(")", n)
		}
		_, err := ParseFormula(nested(MaxNestedCalls), testParseOptions())
		require.NoError(t, err)

		_, err = ParseFormula(nested(MaxNestedCalls+1), testParseOptions())
		var perr *ParseError
		require.ErrorAs(t, err, &perr)
		assert.Equal(t, ParseErrorNestedCalls, perr.Kind)
	})

	t.Run("TooManyArgs", func(t *testing.T) {
		args := strings.TrimSuffix(strings.Repeat("1,", MaxFunctionArgs+1), ",")
		_, err := ParseFormula("=SUM("+args+")", testParseOptions())
		var perr *ParseError
		require.ErrorAs(t, err, &perr)
		assert.Equal(t, ParseErrorTooManyArgs, perr.Kind)
	})
}

func TestParserPartial(t *testing.T) {
	partial := ParseFormulaPartial("=SUM(A1, ", testParseOptions())
	require.NotNil(t, partial.Ast)
	require.NotNil(t, partial.Ast.Root)
	assert.Error(t, partial.Error)

	partial = ParseFormulaPartial("=1+2", testParseOptions())
	assert.Nil(t, partial.Error)
	assert.IsType(t, &BinaryOpNode{}, partial.Ast.Root)
}

func TestParserRejectsReferenceLikeBindings(t *testing.T) {
	cases := map[string]string{
		"=LAMBDA(r, c, r*c)(1, 2)": "LAMBDA parameters must be identifiers",
		"=LAMBDA(A1, A1)(1)":       "LAMBDA parameters must be identifiers",
		"=LAMBDA(x, X, x)(1, 2)":   "duplicate LAMBDA parameter",
		"=LET(c, 1, c+1)":          "LET names must be identifiers",
	}
	for formula, msg := range cases {
		t.Run(formula, func(t *testing.T) {
			_, err := ParseFormula(formula, testParseOptions())
			var perr *ParseError
			require.ErrorAs(t, err, &perr)
			assert.Equal(t, ParseErrorInvalidName, perr.Kind)
			assert.ErrorContains(t, err, msg)
		})
	}

	for _, formula := range []string{"=LAMBDA(row, col, row*col)(2, 3)", "=LET(rate, 0.1, rate*2)"} {
		_, err := ParseFormula(formula, testParseOptions())
		assert.NoError(t, err, formula)
	}
}

func TestParserTree(t *testing.T) {
	ast, err := ParseFormula("=Sheet2!$B$3", testParseOptions())
	require.NoError(t, err)
	ref, ok := ast.Root.(*CellRefNode)
	require.True(t, ok, "root is %T", ast.Root)
	require.NotNil(t, ref.Sheet)
	assert.Equal(t, SheetID(2), ref.Sheet.ID)
	assert.Equal(t, CellRef{Row: 2, Col: 1, RowAbs: true, ColAbs: true}, ref.Ref)

	ast, err = ParseFormula("=1+2*3", testParseOptions())
	require.NoError(t, err)
	add, ok := ast.Root.(*BinaryOpNode)
	require.True(t, ok)
	assert.Equal(t, BinOpAdd, add.Op)
	assert.IsType(t, &BinaryOpNode{}, add.Right)

	ast, err = ParseFormula("=_xlfn.STDEV.S(A1:A3)", testParseOptions())
	require.NoError(t, err)
	call, ok := ast.Root.(*FunctionCallNode)
	require.True(t, ok)
	assert.Equal(t, "STDEV.S", call.Name)
}

func TestParserUnknownSheetKeepsName(t *testing.T) {
	ast, err := ParseFormula("=Later!A1", testParseOptions())
	require.NoError(t, err)
	ref := ast.Root.(*CellRefNode)
	assert.Equal(t, SheetID(0), ref.Sheet.ID)
	assert.Equal(t, "Later", ref.Sheet.Name)
}

func TestParserRoundTrip(t *testing.T) {
	formulas := []string{
		"=SUM(A1:B2)*2",
		"=IF(A1>0,\"yes\",\"no\")",
		"=Sheet2!A1+$C$3",
		"=LET(x,1,x+1)",
		"={1,2;3,4}",
		"=-A1^2",
	}
	for _, formula := range formulas {
		t.Run(formula, func(t *testing.T) {
			first, err := ParseFormula(formula, testParseOptions())
			require.NoError(t, err)
			text := first.ToString(SerializeOptions{})
			second, err := ParseFormula(text, testParseOptions())
			require.NoError(t, err)
			assert.Equal(t, text, second.ToString(SerializeOptions{}))
		})
	}
}

func TestParserR1C1(t *testing.T) {
	opts := testParseOptions()
	opts.Origin = CellAddr{Row: 1, Col: 1}
	a1, err := ParseFormula("=A1+$C$3", opts)
	require.NoError(t, err)
	assert.Equal(t, "=R[-1]C[-1]+R3C3", a1.ToString(SerializeOptions{Style: StyleR1C1}))

	opts.Style = StyleR1C1
	r1c1, err := ParseFormula("=R[-1]C[-1]+R3C3", opts)
	require.NoError(t, err)
	assert.Equal(t, "=A1+$C$3", r1c1.ToString(SerializeOptions{Style: StyleA1}))
}
