package calc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleBacking(t *testing.T) *ArrowBacking {
	t.Helper()
	b, err := BuildArrowBacking([]ColumnData{
		{Name: "amount", Numbers: []float64{10, 20, 30}},
		{Name: "region", Text: []string{"north", "south", "north"}},
		{Name: "open", Bools: []bool{true, false, true}},
	})
	require.NoError(t, err)
	t.Cleanup(b.Release)
	return b
}

func TestArrowBacking(t *testing.T) {
	b := sampleBacking(t)

	rows, cols := b.Bounds()
	assert.Equal(t, uint32(3), rows)
	assert.Equal(t, uint32(3), cols)
	assert.Equal(t, 20.0, b.Value(1, 0))
	assert.Equal(t, "north", b.Value(2, 1))
	assert.Equal(t, false, b.Value(1, 2))
	assert.Nil(t, b.Value(3, 0))
	assert.Nil(t, b.Value(0, 3))

	nums, ok := b.Float64Column(0, 1, 2)
	require.True(t, ok)
	assert.Equal(t, []float64{20, 30}, nums)
	_, ok = b.Float64Column(1, 0, 2)
	assert.False(t, ok, "text column")
	_, ok = b.Float64Column(0, 0, 3)
	assert.False(t, ok, "past the end")
}

func TestBuildArrowBackingRejectsRaggedColumns(t *testing.T) {
	_, err := BuildArrowBacking([]ColumnData{
		{Name: "a", Numbers: []float64{1, 2}},
		{Name: "b", Numbers: []float64{1}},
	})
	require.Error(t, err)
	assert.Equal(t, InvalidArgument, AppErrorCodeOf(err))

	_, err = NewArrowBacking(nil)
	assert.Equal(t, InvalidArgument, AppErrorCodeOf(err))
}

func TestSheetBackingInFormulas(t *testing.T) {
	tc := NewEngineTestCase(t, "columnar backing")
	require.NoError(t, tc.engine.SetSheetBacking("Sheet1", CellAddr{Row: 1, Col: 1}, sampleBacking(t)))

	tc.Set("Sheet1!A1", "=SUM(B2:B4)").
		Set("Sheet1!A2", `=COUNTIF(C2:C4, "north")`).
		Set("Sheet1!A3", "=C3").
		Set("Sheet1!A4", "=AND(D2:D4)").
		Run().
		AssertCellEq("Sheet1!A1", 60.0).
		AssertCellEq("Sheet1!A2", 2.0).
		AssertCellEq("Sheet1!A3", "south").
		AssertCellEq("Sheet1!A4", false).
		// a stored cell shadows the block
		Set("Sheet1!B3", 100.0).
		Run().
		AssertCellEq("Sheet1!A1", 140.0).
		End()
}
