package calc

import (
	"context"
	"errors"
	"fmt"
	"math"
	"runtime"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type EngineTestCase struct {
	t       *testing.T
	name    string
	engine  *Engine
	err     error
	skipped bool
}

// NewEngineTestCase starts a workbook with one sheet, Sheet1, in manual
// mode so Run decides when formulas are evaluated
func NewEngineTestCase(t *testing.T, name string, opts ...Option) *EngineTestCase {
	settings := DefaultCalcSettings()
	settings.Mode = CalcManual
	opts = append([]Option{
		WithCalcSettings(settings),
		WithClock(&FixedClock{Time: time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)}),
		WithRandom(NewSeededRandomGenerator(7)),
	}, opts...)
	tc := &EngineTestCase{
		t:      t,
		name:   name,
		engine: NewEngine(opts...),
	}
	return tc.AddWorksheet("Sheet1")
}

func (tc *EngineTestCase) Skip(reason string) *EngineTestCase {
	if !tc.skipped {
		tc.t.Skipf("%s: %s", tc.name, reason)
		tc.skipped = true
	}
	return tc
}

func (tc *EngineTestCase) Set(address string, value Value) *EngineTestCase {
	if tc.skipped || tc.err != nil {
		return tc
	}
	tc.err = tc.engine.Set(address, value)
	if tc.err != nil {
		tc.t.Errorf("%s: Set(%s) failed: %v", tc.name, address, tc.err)
	}
	return tc
}

// SetExpectingError is Set for inputs the engine must reject
func (tc *EngineTestCase) SetExpectingError(address string, value Value) *EngineTestCase {
	if tc.skipped || tc.err != nil {
		return tc
	}
	tc.err = tc.engine.Set(address, value)
	return tc
}

func (tc *EngineTestCase) Remove(address string) *EngineTestCase {
	if tc.skipped || tc.err != nil {
		return tc
	}
	sheet, addr, err := tc.engine.splitAddress(address, false)
	if err == nil {
		err = tc.engine.ClearCell(sheet, addr)
	}
	tc.err = err
	if tc.err != nil {
		tc.t.Errorf("%s: Remove(%s) failed: %v", tc.name, address, tc.err)
	}
	return tc
}

func (tc *EngineTestCase) AddWorksheet(name string) *EngineTestCase {
	if tc.skipped || tc.err != nil {
		return tc
	}
	tc.err = tc.engine.EnsureSheetWithDisplayName(name, name)
	if IsAppError(tc.err, AlreadyExists) {
		return tc
	}
	if tc.err != nil {
		tc.t.Errorf("%s: AddWorksheet(%s) failed: %v", tc.name, name, tc.err)
	}
	return tc
}

func (tc *EngineTestCase) RemoveWorksheet(name string) *EngineTestCase {
	if tc.skipped || tc.err != nil {
		return tc
	}
	tc.err = tc.engine.RemoveSheet(name)
	return tc
}

func (tc *EngineTestCase) RenameWorksheet(oldName, newName string) *EngineTestCase {
	if tc.skipped || tc.err != nil {
		return tc
	}
	tc.err = tc.engine.RenameSheet(oldName, newName)
	return tc
}

func (tc *EngineTestCase) DefineName(name, formula string) *EngineTestCase {
	if tc.skipped || tc.err != nil {
		return tc
	}
	tc.err = tc.engine.DefineName(name, "", formula)
	return tc
}

func (tc *EngineTestCase) RemoveName(name string) *EngineTestCase {
	if tc.skipped || tc.err != nil {
		return tc
	}
	tc.err = tc.engine.RemoveName(name, "")
	return tc
}

func (tc *EngineTestCase) Run() *EngineTestCase {
	if tc.skipped || tc.err != nil {
		return tc
	}
	tc.err = tc.engine.Recalculate(context.Background())
	if tc.err != nil {
		tc.t.Errorf("%s: Recalculate() failed: %v", tc.name, tc.err)
	}
	return tc
}

func (tc *EngineTestCase) get(address string) (Value, bool) {
	actual, err := tc.engine.Get(address)
	if err != nil {
		tc.t.Errorf("%s: Get(%s) failed: %v", tc.name, address, err)
		return nil, false
	}
	return actual, true
}

func (tc *EngineTestCase) AssertCellEq(address string, expected Value) *EngineTestCase {
	if tc.skipped || tc.err != nil {
		return tc
	}
	actual, ok := tc.get(address)
	if !ok {
		return tc
	}

	switch exp := expected.(type) {
	case float64:
		if act, ok := actual.(float64); ok {
			if math.Abs(act-exp) > 1e-10 {
				tc.t.Errorf("%s: Cell %s = %v, want %v", tc.name, address, actual, expected)
			}
		} else {
			tc.t.Errorf("%s: Cell %s = %v (%T), want %v (float64)", tc.name, address, actual, actual, expected)
		}
	case int:
		if act, ok := actual.(float64); ok {
			if math.Abs(act-float64(exp)) > 1e-10 {
				tc.t.Errorf("%s: Cell %s = %v, want %v", tc.name, address, actual, expected)
			}
		} else {
			tc.t.Errorf("%s: Cell %s = %v (%T), want %v (int)", tc.name, address, actual, actual, expected)
		}
	case nil:
		if actual != nil {
			tc.t.Errorf("%s: Cell %s = %v, want nil", tc.name, address, actual)
		}
	case ErrorCode:
		if serr, ok := actual.(*SpreadsheetError); ok {
			if serr.ErrorCode != exp {
				tc.t.Errorf("%s: Cell %s has error %v, want %v", tc.name, address, serr.ErrorCode, exp)
			}
		} else {
			tc.t.Errorf("%s: Cell %s = %v, want error %v", tc.name, address, actual, exp)
		}
	default:
		if actual != expected {
			tc.t.Errorf("%s: Cell %s = %v, want %v", tc.name, address, actual, expected)
		}
	}
	return tc
}

// AssertCellNear compares numbers with an explicit tolerance
func (tc *EngineTestCase) AssertCellNear(address string, expected, delta float64) *EngineTestCase {
	if tc.skipped || tc.err != nil {
		return tc
	}
	actual, ok := tc.get(address)
	if !ok {
		return tc
	}
	assert.InDelta(tc.t, expected, actual, delta, "%s: cell %s", tc.name, address)
	return tc
}

func (tc *EngineTestCase) AssertCellEmpty(address string) *EngineTestCase {
	return tc.AssertCellEq(address, nil)
}

func (tc *EngineTestCase) AssertCellErr(address string, errorCode ErrorCode) *EngineTestCase {
	if tc.skipped || tc.err != nil {
		return tc
	}
	actual, ok := tc.get(address)
	if !ok {
		return tc
	}
	if serr, ok := actual.(*SpreadsheetError); ok {
		if serr.ErrorCode != errorCode {
			tc.t.Errorf("%s: Cell %s has error %v, want %v", tc.name, address, serr.ErrorCode, errorCode)
		}
	} else {
		tc.t.Errorf("%s: Cell %s = %v, want error %v", tc.name, address, actual, errorCode)
	}
	return tc
}

func (tc *EngineTestCase) AssertCellFn(address string, fn func(value Value, t *testing.T)) *EngineTestCase {
	if tc.skipped || tc.err != nil {
		return tc
	}
	actual, ok := tc.get(address)
	if !ok {
		return tc
	}
	fn(actual, tc.t)
	return tc
}

func (tc *EngineTestCase) AssertSpill(address, rect string) *EngineTestCase {
	if tc.skipped || tc.err != nil {
		return tc
	}
	sheet, addr, err := tc.engine.splitAddress(address, false)
	if err != nil {
		tc.t.Errorf("%s: %v", tc.name, err)
		return tc
	}
	got, ok := tc.engine.SpillRange(sheet, addr)
	if rect == "" {
		if ok {
			tc.t.Errorf("%s: %s spills to %s, want no spill", tc.name, address, got)
		}
		return tc
	}
	want, err := ParseRect(rect)
	if err != nil {
		tc.t.Fatalf("%s: bad rect %q: %v", tc.name, rect, err)
	}
	if !ok || got != want {
		tc.t.Errorf("%s: %s spills to %v (%v), want %s", tc.name, address, got, ok, rect)
	}
	return tc
}

func (tc *EngineTestCase) AssertWorksheetExists(name string, shouldExist bool) *EngineTestCase {
	if tc.skipped {
		return tc
	}
	_, err := tc.engine.worksheet(name)
	if exists := err == nil; exists != shouldExist {
		tc.t.Errorf("%s: Worksheet %s exists=%v, want %v", tc.name, name, exists, shouldExist)
	}
	return tc
}

func (tc *EngineTestCase) AssertCircularCount(n int) *EngineTestCase {
	if tc.skipped || tc.err != nil {
		return tc
	}
	if got := tc.engine.CircularReferenceCount(); got != n {
		tc.t.Errorf("%s: circular reference count = %d, want %d", tc.name, got, n)
	}
	return tc
}

func (tc *EngineTestCase) ExpectAppError(expectedCode AppErrorCode) *EngineTestCase {
	if tc.skipped {
		return tc
	}
	if tc.err == nil {
		tc.t.Errorf("%s: Expected error with code %v, but got no error", tc.name, expectedCode)
		return tc
	}
	var appErr *AppError
	if errors.As(tc.err, &appErr) {
		if appErr.Code != expectedCode {
			tc.t.Errorf("%s: Got error code %v, want %v", tc.name, appErr.Code, expectedCode)
		}
	} else {
		tc.t.Errorf("%s: Got error %v, want AppError with code %v", tc.name, tc.err, expectedCode)
	}
	tc.err = nil
	return tc
}

func (tc *EngineTestCase) End() {
}

func TestLexingAndParsing(t *testing.T) {
	NewEngineTestCase(t, "Basic arithmetic").
		Set("Sheet1!A1", "=1+2").
		Run().
		AssertCellEq("Sheet1!A1", 3.0).
		End()

	NewEngineTestCase(t, "Cell reference").
		Set("Sheet1!A1", 10.0).
		Set("Sheet1!A2", "=A1").
		Run().
		AssertCellEq("Sheet1!A2", 10.0).
		End()

	NewEngineTestCase(t, "Function call").
		Set("Sheet1!A1", 5.0).
		Set("Sheet1!A2", 10.0).
		Set("Sheet1!A3", "=SUM(A1:A2)").
		Run().
		AssertCellEq("Sheet1!A3", 15.0).
		End()

	NewEngineTestCase(t, "Malformed formula").
		SetExpectingError("Sheet1!A1", "=SUM(").
		ExpectAppError(InvalidArgument).
		End()

	NewEngineTestCase(t, "Lowercase function names").
		Set("Sheet1!A1", "=sum(1,2,3)").
		Run().
		AssertCellEq("Sheet1!A1", 6.0).
		End()
}

func TestBasicTypes(t *testing.T) {
	t.Run("Numbers", func(t *testing.T) {
		NewEngineTestCase(t, "Integer").
			Set("Sheet1!A1", 42).
			Run().
			AssertCellEq("Sheet1!A1", 42.0).
			End()

		NewEngineTestCase(t, "Negative").
			Set("Sheet1!A1", -123.45).
			Run().
			AssertCellEq("Sheet1!A1", -123.45).
			End()

		NewEngineTestCase(t, "Scientific notation").
			Set("Sheet1!A1", "=1.23E5").
			Run().
			AssertCellEq("Sheet1!A1", 123000.0).
			End()
	})

	t.Run("Booleans", func(t *testing.T) {
		NewEngineTestCase(t, "Boolean in formula").
			Set("Sheet1!A1", true).
			Set("Sheet1!A2", "=FALSE").
			Run().
			AssertCellEq("Sheet1!A1", true).
			AssertCellEq("Sheet1!A2", false).
			End()
	})

	t.Run("Strings", func(t *testing.T) {
		NewEngineTestCase(t, "Simple string").
			Set("Sheet1!A1", "Hello World").
			Set("Sheet1!A2", `="test"`).
			Run().
			AssertCellEq("Sheet1!A1", "Hello World").
			AssertCellEq("Sheet1!A2", "test").
			End()
	})

	t.Run("Nil", func(t *testing.T) {
		NewEngineTestCase(t, "Empty cell").
			Run().
			AssertCellEmpty("Sheet1!A1").
			End()

		NewEngineTestCase(t, "Removed cell").
			Set("Sheet1!A1", 10.0).
			Run().
			Remove("Sheet1!A1").
			Run().
			AssertCellEmpty("Sheet1!A1").
			End()

		NewEngineTestCase(t, "Reference to blank shows 0").
			Set("Sheet1!B1", "=A1").
			Run().
			AssertCellEq("Sheet1!B1", 0.0).
			End()
	})

	t.Run("Rejected", func(t *testing.T) {
		NewEngineTestCase(t, "Array input").
			SetExpectingError("Sheet1!A1", NewArray(1, 1)).
			ExpectAppError(InvalidArgument).
			End()

		NewEngineTestCase(t, "Out of range").
			SetExpectingError("Sheet1!XFE1", 1.0).
			ExpectAppError(OutOfRange).
			End()
	})
}

func TestBinaryOperators(t *testing.T) {
	cases := []struct {
		formula string
		want    Value
	}{
		{"=2+3", 5.0},
		{"=10-4", 6.0},
		{"=3*4", 12.0},
		{"=15/3", 5.0},
		{"=2^3", 8.0},
		{"=2^3^2", 64.0},
		{"=-2^2", 4.0},
		{"=1/0", ErrorCodeDiv0},
		{"=5=5", true},
		{"=5<>3", true},
		{"=3<5", true},
		{"=5<=5", true},
		{"=7>5", true},
		{"=5>=5", true},
		{`="a"="A"`, true},
		{`="b">"A"`, true},
		{`=1<"a"`, true},
		{`="Hello"&" "&"World"`, "Hello World"},
		{`="Value: "&123`, "Value: 123"},
		{`=TRUE&""`, "TRUE"},
		{`="3"+4`, 7.0},
		{`="x"+1`, ErrorCodeValue},
		{"=#N/A+1", ErrorCodeNA},
	}
	for _, c := range cases {
		NewEngineTestCase(t, c.formula).
			Set("Sheet1!A1", c.formula).
			Run().
			AssertCellEq("Sheet1!A1", c.want).
			End()
	}
}

func TestUnaryOperators(t *testing.T) {
	NewEngineTestCase(t, "Unary plus").
		Set("Sheet1!A1", "=+5").
		Set("Sheet1!A2", "=-5").
		Set("Sheet1!A3", "=50%").
		Set("Sheet1!A4", "=--TRUE").
		Run().
		AssertCellEq("Sheet1!A1", 5.0).
		AssertCellEq("Sheet1!A2", -5.0).
		AssertCellEq("Sheet1!A3", 0.5).
		AssertCellEq("Sheet1!A4", 1.0).
		End()
}

func TestCellReferences(t *testing.T) {
	t.Run("SimpleReferences", func(t *testing.T) {
		NewEngineTestCase(t, "Chain reference").
			Set("Sheet1!A1", 10.0).
			Set("Sheet1!B1", "=A1*2").
			Set("Sheet1!C1", "=B1*2").
			Run().
			AssertCellEq("Sheet1!C1", 40.0).
			End()
	})

	t.Run("CrossWorksheet", func(t *testing.T) {
		NewEngineTestCase(t, "Cross-sheet range").
			AddWorksheet("Data").
			Set("Data!A1", 10.0).
			Set("Data!A2", 20.0).
			Set("Data!A3", 30.0).
			Set("Sheet1!A1", "=SUM(Data!A1:A3)").
			Run().
			AssertCellEq("Sheet1!A1", 60.0).
			End()

		NewEngineTestCase(t, "Non-existent worksheet").
			Set("Sheet1!A1", "=NoSheet!A1").
			Run().
			AssertCellErr("Sheet1!A1", ErrorCodeRef).
			End()

		NewEngineTestCase(t, "Worksheet added later").
			Set("Sheet1!A1", "=Later!A1*2").
			Run().
			AssertCellErr("Sheet1!A1", ErrorCodeRef).
			AddWorksheet("Later").
			Set("Later!A1", 21.0).
			Run().
			AssertCellEq("Sheet1!A1", 42.0).
			End()

		NewEngineTestCase(t, "Quoted sheet name").
			AddWorksheet("My Data").
			Set("'My Data'!B2", 5.0).
			Set("Sheet1!A1", "='My Data'!B2+1").
			Run().
			AssertCellEq("Sheet1!A1", 6.0).
			End()
	})

	t.Run("ThreeDimensional", func(t *testing.T) {
		NewEngineTestCase(t, "3-D sum").
			AddWorksheet("Jan").
			AddWorksheet("Feb").
			AddWorksheet("Mar").
			Set("Jan!A1", 1.0).
			Set("Feb!A1", 2.0).
			Set("Mar!A1", 3.0).
			Set("Sheet1!A1", "=SUM(Jan:Mar!A1)").
			Run().
			AssertCellEq("Sheet1!A1", 6.0).
			Set("Feb!A1", 20.0).
			Run().
			AssertCellEq("Sheet1!A1", 24.0).
			End()
	})

	t.Run("BeyondGrid", func(t *testing.T) {
		NewEngineTestCase(t, "References past the last row or column").
			Set("Sheet1!A1", "=XFD1048576").
			Set("Sheet1!A2", "=XFD1048577").
			Set("Sheet1!A3", "=XFE1").
			Set("Sheet1!A4", "=Sheet1!A1048577+1").
			Run().
			AssertCellEq("Sheet1!A1", 0.0).
			AssertCellErr("Sheet1!A2", ErrorCodeRef).
			AssertCellErr("Sheet1!A3", ErrorCodeRef).
			AssertCellErr("Sheet1!A4", ErrorCodeRef).
			End()

		NewEngineTestCase(t, "Beyond-grid spellings are not names").
			DefineName("XFE1", "=1").
			ExpectAppError(InvalidArgument).
			End()
	})

	t.Run("ExternalWorkbook", func(t *testing.T) {
		NewEngineTestCase(t, "External reference").
			Set("Sheet1!A1", "=[Book2.xlsx]Sheet1!A1").
			Run().
			AssertCellErr("Sheet1!A1", ErrorCodeRef).
			End()
	})
}

func TestWorksheetOperations(t *testing.T) {
	t.Run("AddWorksheet", func(t *testing.T) {
		NewEngineTestCase(t, "Add worksheet").
			AddWorksheet("Sheet2").
			AssertWorksheetExists("Sheet2", true).
			End()

		tc := NewEngineTestCase(t, "Add duplicate display name")
		tc.err = tc.engine.EnsureSheetWithDisplayName("other-key", "Sheet1")
		tc.ExpectAppError(AlreadyExists).End()

		tc = NewEngineTestCase(t, "Invalid name")
		tc.err = tc.engine.EnsureSheetWithDisplayName("k", "bad[name]")
		tc.ExpectAppError(InvalidArgument).End()
	})

	t.Run("EnsureSheetDerivesName", func(t *testing.T) {
		e := NewEngine()
		name, err := e.EnsureSheet("q1/2024:sales")
		require.NoError(t, err)
		assert.Equal(t, "q1_2024_sales", name)

		again, err := e.EnsureSheet("q1/2024:sales")
		require.NoError(t, err)
		assert.Equal(t, name, again)
	})

	t.Run("RemoveWorksheet", func(t *testing.T) {
		NewEngineTestCase(t, "Remove worksheet").
			AddWorksheet("Sheet2").
			Set("Sheet2!A1", 5.0).
			Set("Sheet1!A1", "=Sheet2!A1").
			Run().
			AssertCellEq("Sheet1!A1", 5.0).
			RemoveWorksheet("Sheet2").
			Run().
			AssertWorksheetExists("Sheet2", false).
			AssertCellErr("Sheet1!A1", ErrorCodeRef).
			End()

		NewEngineTestCase(t, "Remove non-existent").
			RemoveWorksheet("NoSheet").
			ExpectAppError(NotFound).
			End()
	})

	t.Run("RenameWorksheet", func(t *testing.T) {
		tc := NewEngineTestCase(t, "Rename worksheet").
			AddWorksheet("OldName").
			Set("OldName!A1", 3.0).
			Set("Sheet1!A1", "=OldName!A1*2").
			Run().
			RenameWorksheet("OldName", "NewName").
			Run().
			AssertWorksheetExists("NewName", true).
			AssertCellEq("Sheet1!A1", 6.0)
		formula, ok, err := tc.engine.GetCellFormula("Sheet1", CellAddr{})
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, "=NewName!A1*2", formula)
		tc.End()

		NewEngineTestCase(t, "Rename to existing").
			AddWorksheet("Sheet2").
			AddWorksheet("Sheet3").
			RenameWorksheet("Sheet2", "Sheet3").
			ExpectAppError(AlreadyExists).
			End()

		NewEngineTestCase(t, "Rename onto a dangling name").
			AddWorksheet("Draft").
			Set("Draft!A1", 8.0).
			Set("Sheet1!A1", "=Final!A1").
			Run().
			AssertCellErr("Sheet1!A1", ErrorCodeRef).
			RenameWorksheet("Draft", "Final").
			Run().
			AssertCellEq("Sheet1!A1", 8.0).
			End()
	})

	t.Run("MoveWorksheet", func(t *testing.T) {
		tc := NewEngineTestCase(t, "Move changes 3-D span").
			AddWorksheet("A").
			AddWorksheet("B").
			AddWorksheet("C").
			Set("A!A1", 1.0).
			Set("B!A1", 10.0).
			Set("C!A1", 100.0).
			Set("Sheet1!A1", "=SUM(A:B!A1)").
			Run().
			AssertCellEq("Sheet1!A1", 11.0)
		require.NoError(t, tc.engine.MoveSheet("C", 2))
		assert.Equal(t, []string{"Sheet1", "A", "C", "B"}, tc.engine.SheetNames())
		tc.Run().
			AssertCellEq("Sheet1!A1", 111.0).
			End()

		e := NewEngine()
		_, err := e.EnsureSheet("only")
		require.NoError(t, err)
		assert.True(t, IsAppError(e.MoveSheet("only", 3), OutOfRange))
	})
}

func TestNamedRanges(t *testing.T) {
	NewEngineTestCase(t, "Name used in formula").
		Set("Sheet1!A1", 2.0).
		Set("Sheet1!A2", 3.0).
		DefineName("Values", "Sheet1!$A$1:$A$2").
		Set("Sheet1!B1", "=SUM(Values)").
		Run().
		AssertCellEq("Sheet1!B1", 5.0).
		End()

	NewEngineTestCase(t, "Name defined after use").
		Set("Sheet1!B1", "=TaxRate*100").
		Run().
		AssertCellErr("Sheet1!B1", ErrorCodeName).
		DefineName("TaxRate", "0.05").
		Run().
		AssertCellEq("Sheet1!B1", 5.0).
		RemoveName("TaxRate").
		Run().
		AssertCellErr("Sheet1!B1", ErrorCodeName).
		End()

	NewEngineTestCase(t, "Remove unknown name").
		RemoveName("Nope").
		ExpectAppError(NotFound).
		End()

	NewEngineTestCase(t, "Invalid name").
		DefineName("A1", "1").
		ExpectAppError(InvalidArgument).
		End()

	tc := NewEngineTestCase(t, "Sheet-scoped name shadows workbook name").
		AddWorksheet("Other").
		DefineName("Tax", "0.2")
	require.NoError(t, tc.engine.DefineName("Tax", "Other", "0.5"))
	tc.Set("Sheet1!A1", "=Tax").
		Set("Other!A1", "=Tax").
		Run().
		AssertCellEq("Sheet1!A1", 0.2).
		AssertCellEq("Other!A1", 0.5).
		End()

	e := tc.engine
	e.Set("Sheet1!B1", "=Missing+1")
	assert.Contains(t, e.UndefinedNames(), "missing")
}

func TestLetAndLambda(t *testing.T) {
	NewEngineTestCase(t, "LET").
		Set("Sheet1!A1", "=LET(x, 2, y, x*3, x+y)").
		Run().
		AssertCellEq("Sheet1!A1", 8.0).
		End()

	NewEngineTestCase(t, "Immediate lambda").
		Set("Sheet1!A1", "=LAMBDA(x, x*2)(21)").
		Run().
		AssertCellEq("Sheet1!A1", 42.0).
		End()

	NewEngineTestCase(t, "Lambda defined as name").
		DefineName("Double", "LAMBDA(x, x*2)").
		Set("Sheet1!A1", "=Double(4)").
		Run().
		AssertCellEq("Sheet1!A1", 8.0).
		End()

	NewEngineTestCase(t, "Recursive named lambda").
		DefineName("MyFact", "LAMBDA(n, IF(n<=1, 1, n*MyFact(n-1)))").
		Set("Sheet1!A1", "=MyFact(5)").
		Run().
		AssertCellEq("Sheet1!A1", 120.0).
		End()

	NewEngineTestCase(t, "Wrong arity").
		Set("Sheet1!A1", "=LAMBDA(x, x)(1, 2)").
		Run().
		AssertCellErr("Sheet1!A1", ErrorCodeValue).
		End()

	NewEngineTestCase(t, "Lambda as cell result").
		Set("Sheet1!A1", "=LAMBDA(x, x)").
		Run().
		AssertCellErr("Sheet1!A1", ErrorCodeCalc).
		End()

	NewEngineTestCase(t, "MAP over range").
		Set("Sheet1!A1", 1.0).
		Set("Sheet1!A2", 2.0).
		Set("Sheet1!B1", "=MAP(A1:A2, LAMBDA(v, v*10))").
		Run().
		AssertCellEq("Sheet1!B1", 10.0).
		AssertCellEq("Sheet1!B2", 20.0).
		End()
}

func TestTablesInFormulas(t *testing.T) {
	tc := NewEngineTestCase(t, "Structured references").
		Set("Sheet1!A1", "Item").
		Set("Sheet1!B1", "Amount").
		Set("Sheet1!A2", "a").
		Set("Sheet1!B2", 10.0).
		Set("Sheet1!A3", "b").
		Set("Sheet1!B3", 32.0)
	rect, err := ParseRect("A1:B3")
	require.NoError(t, err)
	require.NoError(t, tc.engine.SetSheetTables("Sheet1", []Table{{
		Name:      "Sales",
		Range:     rect,
		HeaderRow: true,
		Columns:   []string{"Item", "Amount"},
	}}))
	tc.Set("Sheet1!D1", "=SUM(Sales[Amount])").
		Set("Sheet1!D2", "=ROWS(Sales[Amount])").
		Set("Sheet1!D3", "=Sales[[#Headers],[Amount]]").
		Run().
		AssertCellEq("Sheet1!D1", 42.0).
		AssertCellEq("Sheet1!D2", 2.0).
		AssertCellEq("Sheet1!D3", "Amount").
		Set("Sheet1!B3", 2.0).
		Run().
		AssertCellEq("Sheet1!D1", 12.0).
		End()

	tables, err := tc.engine.SheetTables("Sheet1")
	require.NoError(t, err)
	require.Len(t, tables, 1)
	assert.Equal(t, "Sales", tables[0].Name)

	err = tc.engine.SetSheetTables("Sheet1", []Table{
		{Name: "First", Range: rect, HeaderRow: true, Columns: []string{"Item", "Amount"}},
		{Name: "Second", Range: rect, HeaderRow: true, Columns: []string{"Item", "Amount"}},
	})
	assert.Error(t, err, "overlapping tables")
}

func TestUpdateAndRecalculation(t *testing.T) {
	NewEngineTestCase(t, "Update propagates").
		Set("Sheet1!A1", 1.0).
		Set("Sheet1!B1", "=A1+1").
		Set("Sheet1!C1", "=B1*2").
		Run().
		AssertCellEq("Sheet1!C1", 4.0).
		Set("Sheet1!A1", 10.0).
		Run().
		AssertCellEq("Sheet1!C1", 22.0).
		End()

	NewEngineTestCase(t, "Formula replaced by constant").
		Set("Sheet1!A1", "=1+1").
		Set("Sheet1!B1", "=A1*3").
		Run().
		AssertCellEq("Sheet1!B1", 6.0).
		Set("Sheet1!A1", 5.0).
		Run().
		AssertCellEq("Sheet1!B1", 15.0).
		End()

	NewEngineTestCase(t, "Range dependency").
		Set("Sheet1!B1", "=SUM(A1:A100)").
		Run().
		AssertCellEq("Sheet1!B1", 0.0).
		Set("Sheet1!A50", 7.0).
		Run().
		AssertCellEq("Sheet1!B1", 7.0).
		End()
}

func TestManualAndAutomaticMode(t *testing.T) {
	e := NewEngine()
	_, err := e.EnsureSheet("Sheet1")
	require.NoError(t, err)
	require.NoError(t, e.Set("Sheet1!A1", 2.0))
	require.NoError(t, e.Set("Sheet1!B1", "=A1*2"))
	v, err := e.Get("Sheet1!B1")
	require.NoError(t, err)
	assert.Equal(t, 4.0, v, "automatic mode recalculates on write")
	assert.False(t, e.HasDirtyCells())

	cs := e.CalcSettings()
	cs.Mode = CalcManual
	require.NoError(t, e.SetCalcSettings(cs))
	require.NoError(t, e.Set("Sheet1!A1", 5.0))
	assert.True(t, e.HasDirtyCells())
	assert.True(t, e.IsDirty("Sheet1", CellAddr{Col: 1}))
	v, _ = e.Get("Sheet1!B1")
	assert.Equal(t, 4.0, v, "manual mode keeps the stale result")

	require.NoError(t, e.Recalculate(context.Background()))
	v, _ = e.Get("Sheet1!B1")
	assert.Equal(t, 10.0, v)
	assert.False(t, e.IsDirty("Sheet1", CellAddr{Col: 1}))
}

func TestVolatileFunctionBehavior(t *testing.T) {
	tc := NewEngineTestCase(t, "Volatile cells recompute every pass").
		Set("Sheet1!A1", "=RAND()").
		Set("Sheet1!B1", "=A1*0+1").
		Run()
	first, err := tc.engine.Get("Sheet1!A1")
	require.NoError(t, err)
	tc.Run()
	second, err := tc.engine.Get("Sheet1!A1")
	require.NoError(t, err)
	assert.NotEqual(t, first, second)
	tc.AssertCellEq("Sheet1!B1", 1.0).End()

	NewEngineTestCase(t, "NOW reads the clock").
		Set("Sheet1!A1", "=YEAR(NOW())").
		Set("Sheet1!A2", "=TODAY()").
		Run().
		AssertCellEq("Sheet1!A1", 2024.0).
		AssertCellEq("Sheet1!A2", 45366.0).
		End()
}

func TestErrorPropagation(t *testing.T) {
	NewEngineTestCase(t, "Error flows through arithmetic").
		Set("Sheet1!A1", "=1/0").
		Set("Sheet1!A2", "=A1+1").
		Set("Sheet1!A3", "=SUM(A1:A2)").
		Set("Sheet1!A4", "=IFERROR(A3, -1)").
		Set("Sheet1!A5", "=ISERROR(A1)").
		Set("Sheet1!A6", "=ERROR.TYPE(A1)").
		Run().
		AssertCellErr("Sheet1!A2", ErrorCodeDiv0).
		AssertCellErr("Sheet1!A3", ErrorCodeDiv0).
		AssertCellEq("Sheet1!A4", -1.0).
		AssertCellEq("Sheet1!A5", true).
		AssertCellEq("Sheet1!A6", 2.0).
		End()

	NewEngineTestCase(t, "Unknown function").
		Set("Sheet1!A1", "=NOSUCHFUNC(1)").
		Run().
		AssertCellErr("Sheet1!A1", ErrorCodeName).
		End()
}

func TestCircularReferences(t *testing.T) {
	NewEngineTestCase(t, "Self reference").
		Set("Sheet1!A1", "=A1+1").
		Run().
		AssertCellEq("Sheet1!A1", 0.0).
		AssertCircularCount(1).
		End()

	NewEngineTestCase(t, "Cycle broken later").
		Set("Sheet1!A1", "=B1").
		Set("Sheet1!B1", "=A1").
		Run().
		AssertCircularCount(2).
		Set("Sheet1!B1", 4.0).
		Run().
		AssertCellEq("Sheet1!A1", 4.0).
		AssertCircularCount(0).
		End()

	NewEngineTestCase(t, "Reader of a cycle").
		Set("Sheet1!A1", "=B1").
		Set("Sheet1!B1", "=A1").
		Set("Sheet1!C1", "=A1+5").
		Run().
		AssertCellEq("Sheet1!C1", 5.0).
		End()
}

func TestIterativeCalculation(t *testing.T) {
	iterative := func(maxIter int, maxChange float64) Option {
		cs := DefaultCalcSettings()
		cs.Mode = CalcManual
		cs.Iterative = IterativeSettings{Enabled: true, MaxIterations: maxIter, MaxChange: maxChange}
		return WithCalcSettings(cs)
	}

	NewEngineTestCase(t, "Counter stops at the iteration limit", iterative(10, 0.001)).
		Set("Sheet1!A1", "=A1+1").
		Run().
		AssertCellEq("Sheet1!A1", 10.0).
		AssertCircularCount(0).
		End()

	NewEngineTestCase(t, "Converging fixed point", iterative(100, 1e-12)).
		Set("Sheet1!A1", "=COS(A1)").
		Run().
		AssertCellNear("Sheet1!A1", 0.7390851332, 1e-9).
		End()
}

func TestDynamicArrays(t *testing.T) {
	NewEngineTestCase(t, "SEQUENCE spills").
		Set("Sheet1!A1", "=SEQUENCE(3)").
		Run().
		AssertCellEq("Sheet1!A1", 1.0).
		AssertCellEq("Sheet1!A3", 3.0).
		AssertSpill("Sheet1!A1", "A1:A3").
		End()

	NewEngineTestCase(t, "Blocked spill").
		Set("Sheet1!A2", "x").
		Set("Sheet1!A1", "=SEQUENCE(3)").
		Run().
		AssertCellErr("Sheet1!A1", ErrorCodeSpill).
		AssertSpill("Sheet1!A1", "").
		Remove("Sheet1!A2").
		Run().
		AssertCellEq("Sheet1!A2", 2.0).
		AssertSpill("Sheet1!A1", "A1:A3").
		End()

	NewEngineTestCase(t, "Shrinking spill clears old cells").
		Set("Sheet1!B1", 3.0).
		Set("Sheet1!A1", "=SEQUENCE(B1)").
		Run().
		AssertCellEq("Sheet1!A3", 3.0).
		Set("Sheet1!B1", 1.0).
		Run().
		AssertCellEmpty("Sheet1!A3").
		AssertSpill("Sheet1!A1", "").
		End()

	NewEngineTestCase(t, "Reader of a spilled cell").
		Set("Sheet1!A1", "=SEQUENCE(2,2)").
		Set("Sheet1!D1", "=B2*10").
		Run().
		AssertCellEq("Sheet1!D1", 40.0).
		End()

	NewEngineTestCase(t, "Implicit intersection").
		Set("Sheet1!A1", 1.0).
		Set("Sheet1!A2", 2.0).
		Set("Sheet1!B2", "=@A1:A3").
		Run().
		AssertCellEq("Sheet1!B2", 2.0).
		End()

	NewEngineTestCase(t, "Empty array").
		Set("Sheet1!A1", 1.0).
		Set("Sheet1!B1", "=FILTER(A1:A2, A1:A2>5)").
		Run().
		AssertCellErr("Sheet1!B1", ErrorCodeCalc).
		End()
}

func TestEndToEndScenarios(t *testing.T) {
	t.Run("RangeArithmeticBroadcastsAndSpills", func(t *testing.T) {
		NewEngineTestCase(t, "S1").
			Set("Sheet1!A1", 1.0).
			Set("Sheet1!A2", 2.0).
			Set("Sheet1!A3", 3.0).
			Set("Sheet1!C1", "=A1:A3*10").
			Run().
			AssertCellEq("Sheet1!C1", 10.0).
			AssertCellEq("Sheet1!C2", 20.0).
			AssertCellEq("Sheet1!C3", 30.0).
			AssertSpill("Sheet1!C1", "C1:C3").
			End()
	})

	t.Run("IterativeConvergence", func(t *testing.T) {
		cs := DefaultCalcSettings()
		cs.Mode = CalcManual
		cs.Iterative = IterativeSettings{Enabled: true, MaxIterations: 1000, MaxChange: 1e-9}
		NewEngineTestCase(t, "S2", WithCalcSettings(cs)).
			Set("Sheet1!A1", "=(B1+1)/2").
			Set("Sheet1!B1", "=(A1+1)/2").
			Run().
			AssertCellNear("Sheet1!A1", 1.0, 1e-6).
			AssertCellNear("Sheet1!B1", 1.0, 1e-6).
			End()
	})

	t.Run("NonIterativeCycle", func(t *testing.T) {
		NewEngineTestCase(t, "S3").
			Set("Sheet1!A1", "=B1").
			Set("Sheet1!B1", "=A1").
			Run().
			AssertCellEq("Sheet1!A1", 0.0).
			AssertCellEq("Sheet1!B1", 0.0).
			AssertCircularCount(2).
			End()
	})

	t.Run("LambdaWithOmittedParameter", func(t *testing.T) {
		f := "LET(f, LAMBDA(x, y, IF(ISOMITTED(y), x, x+y)), %s)"
		NewEngineTestCase(t, "S4").
			Set("Sheet1!A1", "="+fmt.Sprintf(f, "f(2)")).
			Set("Sheet1!A2", "="+fmt.Sprintf(f, "f(2,3)")).
			Set("Sheet1!A3", "="+fmt.Sprintf(f, "f(2,)")).
			Run().
			AssertCellEq("Sheet1!A1", 2.0).
			AssertCellEq("Sheet1!A2", 5.0).
			AssertCellEq("Sheet1!A3", 2.0).
			End()
	})

	t.Run("LazySpecialForm", func(t *testing.T) {
		var reads atomic.Int32
		tc := NewEngineTestCase(t, "S5")
		require.NoError(t, tc.engine.SetExternalValueProvider(ProviderFunc(func(sheet string, addr CellAddr) (Value, bool) {
			if addr == (CellAddr{Row: 1}) {
				reads.Add(1)
			}
			return nil, false
		})))
		tc.Set("Sheet1!A1", "=CHOOSE(2, A2, 7)").
			Run().
			AssertCellEq("Sheet1!A1", 7.0).
			End()
		assert.Zero(t, reads.Load(), "A2 was evaluated")
	})

	t.Run("SparseMemoryBound", func(t *testing.T) {
		runtime.GC()
		var before, after runtime.MemStats
		runtime.ReadMemStats(&before)

		e := NewEngine(WithCalcSettings(CalcSettings{Mode: CalcManual, FullPrecision: true}))
		_, err := e.EnsureSheet("Sheet1")
		require.NoError(t, err)
		require.NoError(t, e.SetCellValue("Sheet1", CellAddr{}, 1.0))
		require.NoError(t, e.SetCellValue("Sheet1", CellAddr{Row: 999_999, Col: 16_383}, 2.0))

		runtime.GC()
		runtime.ReadMemStats(&after)
		delta := int64(after.HeapAlloc) - int64(before.HeapAlloc)
		assert.Less(t, delta, int64(1<<20))
		runtime.KeepAlive(e)

		v, err := e.GetCellValue("Sheet1", CellAddr{Row: 999_999, Col: 16_383})
		require.NoError(t, err)
		assert.Equal(t, 2.0, v)
	})

	t.Run("SpillOperator", func(t *testing.T) {
		NewEngineTestCase(t, "S7").
			Set("Sheet1!A1", 1.0).
			Set("Sheet1!A2", 2.0).
			Set("Sheet1!A3", 3.0).
			Set("Sheet1!C1", "=A1:A3").
			Set("Sheet1!D1", "=SUM(C1#)").
			Set("Sheet1!D2", "=SUM(C2#)").
			Run().
			AssertSpill("Sheet1!C1", "C1:C3").
			AssertCellEq("Sheet1!D1", 6.0).
			AssertCellEq("Sheet1!D2", 6.0).
			End()

		NewEngineTestCase(t, "Spill operator on a plain cell").
			Set("Sheet1!A1", 1.0).
			Set("Sheet1!B1", "=A1#").
			Run().
			AssertCellErr("Sheet1!B1", ErrorCodeRef).
			End()
	})

	t.Run("ParserLimits", func(t *testing.T) {
		literal := func(n int) string { return `="` + strings.Repeat("a", n-2) + `"` }
		powers := func(n int) string { return "=2" + strings.Repeat("^1", n) }

		NewEngineTestCase(t, "S8 accepted").
			Set("Sheet1!A1", literal(8192)).
			Set("Sheet1!A2", powers(64)).
			Run().
			AssertCellEq("Sheet1!A2", 2.0).
			End()

		NewEngineTestCase(t, "S8 length").
			SetExpectingError("Sheet1!A1", literal(8193)).
			ExpectAppError(InvalidArgument).
			End()

		NewEngineTestCase(t, "S8 power chain").
			SetExpectingError("Sheet1!A1", powers(65)).
			ExpectAppError(InvalidArgument).
			End()
	})
}

func TestParallelRecalculationMatchesSingleThreaded(t *testing.T) {
	build := func(workers int) *Engine {
		settings := DefaultCalcSettings()
		settings.Mode = CalcManual
		e := NewEngine(WithCalcSettings(settings), WithWorkers(workers))
		_, err := e.EnsureSheet("Sheet1")
		require.NoError(t, err)
		for i := 1; i <= 200; i++ {
			require.NoError(t, e.Set(fmt.Sprintf("Sheet1!A%d", i), float64(i)))
			require.NoError(t, e.Set(fmt.Sprintf("Sheet1!B%d", i), fmt.Sprintf("=A%d*2+SUM($A$1:A%d)", i, i)))
			require.NoError(t, e.Set(fmt.Sprintf("Sheet1!C%d", i), fmt.Sprintf("=B%d-A%d", i, i)))
		}
		require.NoError(t, e.Set("Sheet1!D1", "=SEQUENCE(5)"))
		require.NoError(t, e.Set("Sheet1!E1", "=SUM(D1#)+SUM(C1:C200)"))
		return e
	}

	single := build(1)
	require.NoError(t, single.RecalculateSingleThreaded(context.Background()))
	parallel := build(8)
	require.NoError(t, parallel.Recalculate(context.Background()))

	for _, col := range []string{"B", "C", "D", "E"} {
		for i := 1; i <= 200; i++ {
			addr := fmt.Sprintf("Sheet1!%s%d", col, i)
			want, err := single.Get(addr)
			require.NoError(t, err)
			got, err := parallel.Get(addr)
			require.NoError(t, err)
			require.Equal(t, want, got, addr)
		}
	}
	v, _ := single.Get("Sheet1!E1")
	assert.NotNil(t, v)
}

func TestRecalculationCancellation(t *testing.T) {
	settings := DefaultCalcSettings()
	settings.Mode = CalcManual
	e := NewEngine(WithCalcSettings(settings))
	_, err := e.EnsureSheet("Sheet1")
	require.NoError(t, err)
	require.NoError(t, e.Set("Sheet1!A1", 1.0))
	for i := 2; i <= 50; i++ {
		require.NoError(t, e.Set(fmt.Sprintf("Sheet1!A%d", i), fmt.Sprintf("=A%d+1", i-1)))
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = e.Recalculate(ctx)
	require.ErrorIs(t, err, context.Canceled)
	assert.True(t, e.HasDirtyCells())

	require.NoError(t, e.Recalculate(context.Background()))
	v, err := e.Get("Sheet1!A50")
	require.NoError(t, err)
	assert.Equal(t, 50.0, v)
}

func TestBytecodeMatchesInterpreter(t *testing.T) {
	formulas := []string{
		"=1+2*3-4/2",
		"=2^10",
		`="a"&"b"&1`,
		"=IF(A1>1, A1*2, -A1)",
		"=SUM(A1:A3)+AVERAGE(A1:A3)",
		"=A1:A3*{1;2;3}",
		"=IFERROR(1/0, 9)",
		"=AND(A1>0, OR(A2<0, A3=3))",
		"=ROUND(PI()*A2, 3)",
		"=-A2%",
		"=A1=A2",
		"=CHOOSE(A1, 10, 20)",
		"=LET(v, A2, v*v)",
		"=INDEX(A1:A3, 2)",
		`=COUNTIF(A1:A3, ">1")`,
	}
	for _, formula := range formulas {
		t.Run(formula, func(t *testing.T) {
			results := make([]Value, 2)
			for i, bytecode := range []bool{false, true} {
				tc := NewEngineTestCase(t, formula, WithBytecode(bytecode)).
					Set("Sheet1!A1", 1.0).
					Set("Sheet1!A2", 2.0).
					Set("Sheet1!A3", 3.0).
					Set("Sheet1!B1", formula).
					Run()
				v, err := tc.engine.Get("Sheet1!B1")
				require.NoError(t, err)
				results[i] = v
			}
			assert.Equal(t, results[0], results[1])
		})
	}
}

func TestDependencyQueries(t *testing.T) {
	tc := NewEngineTestCase(t, "Precedents and dependents").
		Set("Sheet1!A1", 1.0).
		Set("Sheet1!B1", "=A1+SUM(C1:C1000)").
		Run()
	precedents, err := tc.engine.Precedents("Sheet1", CellAddr{Col: 1})
	require.NoError(t, err)
	assert.Len(t, precedents, 2)

	dependents, err := tc.engine.Dependents("Sheet1", CellAddr{})
	require.NoError(t, err)
	assert.Equal(t, []CellAddress{{WorksheetID: tc.engine.s.worksheets.Order()[0], Row: 0, Column: 1}}, dependents)

	dependents, err = tc.engine.Dependents("Sheet1", CellAddr{Row: 499, Col: 2})
	require.NoError(t, err)
	assert.Len(t, dependents, 1)
	tc.End()
}

func TestDebugEvaluate(t *testing.T) {
	tc := NewEngineTestCase(t, "Trace").
		Set("Sheet1!A1", 4.0).
		Set("Sheet1!B1", "=SQRT(A1)+1").
		Run()
	trace, err := tc.engine.DebugEvaluate("Sheet1", CellAddr{Col: 1})
	require.NoError(t, err)
	assert.Equal(t, 3.0, trace.Result)
	var kinds []string
	trace.Walk(func(depth int, n *TraceNode) {
		kinds = append(kinds, n.Kind)
	})
	assert.NotEmpty(t, kinds)
	tc.End()
}

func TestPrecisionAsDisplayed(t *testing.T) {
	settings := DefaultCalcSettings()
	settings.Mode = CalcManual
	settings.FullPrecision = false
	tc := NewEngineTestCase(t, "Rounded to format", WithCalcSettings(settings))
	style, err := tc.engine.InternStyle(CellStyle{NumberFormat: "0.00"})
	require.NoError(t, err)
	tc.Set("Sheet1!A1", "=1/3")
	require.NoError(t, tc.engine.SetCellStyleID("Sheet1", CellAddr{}, style))
	tc.Set("Sheet1!B1", "=A1*3").
		Run().
		AssertCellEq("Sheet1!A1", 0.33).
		AssertCellEq("Sheet1!B1", 0.99).
		End()
}

func TestDateSystem1904(t *testing.T) {
	settings := DefaultCalcSettings()
	settings.Mode = CalcManual
	settings.DateSystem = 1904
	NewEngineTestCase(t, "1904 serials", WithCalcSettings(settings)).
		Set("Sheet1!A1", "=DATE(1904,1,2)").
		Set("Sheet1!A2", "=YEAR(0)").
		Run().
		AssertCellEq("Sheet1!A1", 1.0).
		AssertCellEq("Sheet1!A2", 1904.0).
		End()

	assert.Error(t, (&CalcSettings{DateSystem: 1910}).validate())
}

func TestR1C1Formulas(t *testing.T) {
	tc := NewEngineTestCase(t, "R1C1 input").
		Set("Sheet1!A1", 5.0)
	require.NoError(t, tc.engine.SetCellFormulaR1C1("Sheet1", CellAddr{Row: 1, Col: 1}, "=R[-1]C[-1]*2"))
	tc.Run().AssertCellEq("Sheet1!B2", 10.0)

	a1, ok, err := tc.engine.GetCellFormula("Sheet1", CellAddr{Row: 1, Col: 1})
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "=A1*2", a1)

	r1c1, ok, err := tc.engine.GetCellFormulaR1C1("Sheet1", CellAddr{Row: 1, Col: 1})
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "=R[-1]C[-1]*2", r1c1)
	tc.End()
}

func TestExternalProvider(t *testing.T) {
	tc := NewEngineTestCase(t, "Provider fills empty cells")
	require.NoError(t, tc.engine.SetExternalValueProvider(NewMapProvider(map[string]map[CellAddr]Value{
		"Sheet1": {
			{Row: 0, Col: 0}: 10.0,
			{Row: 1, Col: 0}: 20.0,
		},
	})))
	tc.Set("Sheet1!B1", "=SUM(A1:A10)").
		Set("Sheet1!B2", "=A1").
		Run().
		AssertCellEq("Sheet1!B1", 30.0).
		AssertCellEq("Sheet1!B2", 10.0).
		Set("Sheet1!A1", 1.0).
		Run().
		AssertCellEq("Sheet1!B1", 21.0).
		End()
}

func TestConvenienceAddresses(t *testing.T) {
	e := NewEngine()
	require.NoError(t, e.Set("'Q1 Data'!A1", 3.0))
	require.NoError(t, e.Set("B1", "='Q1 Data'!A1*2"))
	v, err := e.Get("B1")
	require.NoError(t, err)
	assert.Equal(t, 6.0, v)

	_, err = e.Get("Missing!A1")
	assert.True(t, IsAppError(err, NotFound))

	_, err = e.Get("!A1")
	assert.True(t, IsAppError(err, InvalidArgument))

	_, err = NewEngine().Get("A1")
	assert.True(t, IsAppError(err, FailedPrecondition))
}
