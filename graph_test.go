package calc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func cellAt(sheet SheetID, a1 string) CellAddress {
	addr, err := ParseCellAddr(a1)
	if err != nil {
		panic(err)
	}
	return globalAddress(sheet, addr)
}

func cellPrecedent(sheet SheetID, a1 string) Precedent {
	addr := cellAt(sheet, a1).Local()
	return Precedent{Kind: PrecedentCell, Sheet: sheet, Start: addr, End: addr}
}

func rangePrecedent(sheet SheetID, rect string) Precedent {
	r, err := ParseRect(rect)
	if err != nil {
		panic(err)
	}
	return Precedent{Kind: PrecedentRange, Sheet: sheet, Start: r.Start, End: r.End}
}

func TestGraphRangeIsOneEdge(t *testing.T) {
	tc := NewEngineTestCase(t, "SUM over a long range").
		Set("Sheet1!B1", "=SUM(A1:A1000)").
		Run()
	st := tc.engine.s.graph.Stats()
	assert.Equal(t, 0, st.DirectCellEdges)
	assert.Equal(t, 1, st.RangeEdges)
	assert.Equal(t, 1, st.FormulaCells)
	tc.End()
}

func TestGraphDependents(t *testing.T) {
	g := NewDependencyGraph()
	const s SheetID = 1
	g.UpdateCellDependencies(cellAt(s, "B1"), []Precedent{cellPrecedent(s, "A1")}, false)
	g.UpdateCellDependencies(cellAt(s, "C1"), []Precedent{rangePrecedent(s, "A1:A10")}, false)
	g.UpdateCellDependencies(cellAt(s, "D1"), []Precedent{cellPrecedent(s, "C1")}, false)

	assert.Equal(t, []CellAddress{cellAt(s, "B1"), cellAt(s, "C1")}, g.GetDirectDependents(cellAt(s, "A1")))
	assert.Equal(t, []CellAddress{cellAt(s, "C1")}, g.GetDirectDependents(cellAt(s, "A7")))
	assert.Empty(t, g.GetDirectDependents(cellAt(s, "A11")))
	assert.Equal(t, []CellAddress{cellAt(s, "C1"), cellAt(s, "D1")}, g.GetAllDependents(cellAt(s, "A5")))

	g.RemoveFormula(cellAt(s, "C1"))
	assert.Empty(t, g.GetDirectDependents(cellAt(s, "A7")))
	assert.Equal(t, 0, g.RangeObserverCount())
}

func TestGraphSingleCellRangeIsCellEdge(t *testing.T) {
	g := NewDependencyGraph()
	g.UpdateCellDependencies(cellAt(1, "B1"), []Precedent{rangePrecedent(1, "A1:A1")}, false)
	st := g.Stats()
	assert.Equal(t, 1, st.DirectCellEdges)
	assert.Equal(t, 0, st.RangeEdges)
}

func TestGraphMarkDirty(t *testing.T) {
	g := NewDependencyGraph()
	const s SheetID = 1
	g.UpdateCellDependencies(cellAt(s, "B1"), []Precedent{cellPrecedent(s, "A1")}, false)
	g.UpdateCellDependencies(cellAt(s, "C1"), []Precedent{cellPrecedent(s, "B1")}, false)
	g.UpdateCellDependencies(cellAt(s, "Z9"), nil, false)
	g.ClearAllDirty()

	g.MarkDirty(cellAt(s, "A1"))
	assert.False(t, g.IsCellDirty(cellAt(s, "A1")), "value cells are never dirty")
	assert.True(t, g.IsCellDirty(cellAt(s, "B1")))
	assert.True(t, g.IsCellDirty(cellAt(s, "C1")))
	assert.False(t, g.IsCellDirty(cellAt(s, "Z9")))
	assert.Equal(t, 2, g.DirtyCount())

	g.ClearAllDirty()
	g.MarkRectDirty(s, Rect{End: CellAddr{Row: 5, Col: 0}})
	assert.Equal(t, 2, g.DirtyCount())
}

func TestGraphVolatile(t *testing.T) {
	g := NewDependencyGraph()
	g.UpdateCellDependencies(cellAt(1, "A1"), nil, true)
	g.UpdateCellDependencies(cellAt(1, "B1"), []Precedent{cellPrecedent(1, "A1")}, false)
	g.ClearAllDirty()

	g.MarkAllVolatileDirty()
	assert.Equal(t, 2, g.DirtyCount())
	assert.True(t, g.IsVolatile(cellAt(1, "A1")))

	g.UpdateCellDependencies(cellAt(1, "A1"), nil, false)
	assert.False(t, g.IsVolatile(cellAt(1, "A1")))
}

func TestCalcOrderLevels(t *testing.T) {
	g := NewDependencyGraph()
	const s SheetID = 1
	g.UpdateCellDependencies(cellAt(s, "B1"), []Precedent{cellPrecedent(s, "A1")}, false)
	g.UpdateCellDependencies(cellAt(s, "B2"), []Precedent{cellPrecedent(s, "A2")}, false)
	g.UpdateCellDependencies(cellAt(s, "C1"), []Precedent{rangePrecedent(s, "B1:B2")}, false)
	g.MarkAllFormulasDirty()

	order := g.CalcOrderForDirty()
	require.Len(t, order.Steps, 3)
	assert.Empty(t, order.Cycles)
	assert.Equal(t, []CellAddress{cellAt(s, "B1")}, order.Steps[0].Cells)
	assert.Equal(t, []CellAddress{cellAt(s, "B2")}, order.Steps[1].Cells)
	assert.Equal(t, 0, order.Steps[0].Level)
	assert.Equal(t, 0, order.Steps[1].Level)
	assert.Equal(t, []CellAddress{cellAt(s, "C1")}, order.Steps[2].Cells)
	assert.Equal(t, 1, order.Steps[2].Level)
}

func TestCalcOrderCycles(t *testing.T) {
	g := NewDependencyGraph()
	const s SheetID = 1
	g.UpdateCellDependencies(cellAt(s, "A1"), []Precedent{cellPrecedent(s, "B1")}, false)
	g.UpdateCellDependencies(cellAt(s, "B1"), []Precedent{cellPrecedent(s, "A1")}, false)
	g.UpdateCellDependencies(cellAt(s, "C1"), []Precedent{cellPrecedent(s, "C1")}, false)
	g.UpdateCellDependencies(cellAt(s, "D1"), []Precedent{cellPrecedent(s, "A1")}, false)
	g.MarkAllFormulasDirty()

	order := g.CalcOrderForDirty()
	require.Len(t, order.Cycles, 2)
	assert.Contains(t, order.Cycles, []CellAddress{cellAt(s, "A1"), cellAt(s, "B1")})
	assert.Contains(t, order.Cycles, []CellAddress{cellAt(s, "C1")})

	var reader CalcStep
	for _, step := range order.Steps {
		if step.Cells[0] == cellAt(s, "D1") {
			reader = step
		}
	}
	assert.False(t, reader.Cyclic)
	assert.Equal(t, 1, reader.Level)
}

func TestGraphRemoveNode(t *testing.T) {
	g := NewDependencyGraph()
	g.UpdateCellDependencies(cellAt(1, "B1"), []Precedent{cellPrecedent(1, "A1"), rangePrecedent(1, "C1:C5")}, false)
	require.True(t, g.RemoveNode(cellAt(1, "B1")))
	assert.False(t, g.RemoveNode(cellAt(1, "B1")))
	assert.Equal(t, 0, g.NodeCount())
	assert.Equal(t, 0, g.RangeObserverCount())
}
