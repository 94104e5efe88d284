package xlsxsource

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/vogtb/go-spreadsheet/packages/calc"
)

func sampleWorkbook(t *testing.T) *Workbook {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()

	_, err := f.NewSheet("Data")
	require.NoError(t, err)
	require.NoError(t, f.SetCellValue("Data", "A1", 10))
	require.NoError(t, f.SetCellValue("Data", "A2", 2.5))
	require.NoError(t, f.SetCellValue("Data", "A3", 7))
	require.NoError(t, f.SetCellValue("Data", "B1", "label"))
	require.NoError(t, f.SetCellBool("Data", "B2", true))
	require.NoError(t, f.SetCellValue("Sheet1", "C4", 1))

	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	w, err := Read(buf)
	require.NoError(t, err)
	return w
}

func TestReadWorkbook(t *testing.T) {
	w := sampleWorkbook(t)

	assert.Equal(t, []string{"Sheet1", "Data"}, w.SheetNames())
	assert.False(t, w.Date1904())

	v, ok := w.Get("data", calc.CellAddr{Row: 1, Col: 0})
	require.True(t, ok)
	assert.Equal(t, 2.5, v)

	v, ok = w.Get("Data", calc.CellAddr{Row: 0, Col: 1})
	require.True(t, ok)
	assert.Equal(t, "label", v)

	v, ok = w.Get("Data", calc.CellAddr{Row: 1, Col: 1})
	require.True(t, ok)
	assert.Equal(t, true, v)

	_, ok = w.Get("Data", calc.CellAddr{Row: 9, Col: 9})
	assert.False(t, ok)
	_, ok = w.Get("Missing", calc.CellAddr{})
	assert.False(t, ok)

	rows, cols, ok := w.Extent("Data")
	require.True(t, ok)
	assert.Equal(t, uint32(3), rows)
	assert.Equal(t, uint32(2), cols)

	rows, cols, ok = w.Extent("Sheet1")
	require.True(t, ok)
	assert.Equal(t, uint32(4), rows)
	assert.Equal(t, uint32(3), cols)
}

func TestAttach(t *testing.T) {
	w := sampleWorkbook(t)
	e := calc.NewEngine()
	require.NoError(t, w.Attach(e))
	_, err := e.EnsureSheet("Calc")
	require.NoError(t, err)

	require.NoError(t, e.Set("Calc!A1", "=SUM(Data!A1:A3)"))
	require.NoError(t, e.Set("Calc!A2", "=IF(Data!B2, Data!B1, \"no\")"))
	require.NoError(t, e.Set("Calc!A3", "=Sheet1!C4*3"))
	require.NoError(t, e.Recalculate(context.Background()))

	v, err := e.Get("Calc!A1")
	require.NoError(t, err)
	assert.Equal(t, 19.5, v)

	v, err = e.Get("Calc!A2")
	require.NoError(t, err)
	assert.Equal(t, "label", v)

	v, err = e.Get("Calc!A3")
	require.NoError(t, err)
	assert.Equal(t, 3.0, v)

	// a value set in the engine wins over the workbook
	require.NoError(t, e.Set("Data!A1", 100.0))
	require.NoError(t, e.Recalculate(context.Background()))
	v, err = e.Get("Calc!A1")
	require.NoError(t, err)
	assert.Equal(t, 109.5, v)
}

func TestOpenMissingFile(t *testing.T) {
	_, err := Open(t.TempDir() + "/missing.xlsx")
	assert.Error(t, err)
}
