package calc

import "slices"

// Storage holds references to shared tables needed by storage operations.
// it is also the resolver formulas read the workbook through: a cell shows
// its stored value or formula result, else a spilled element, else the
// columnar backing, else the external value provider.
type Storage struct {
	worksheets *WorksheetTable
	names      *NameTable
	styles     *StyleTable
	formulas   *FormulaTable
	graph      *DependencyGraph
	spills     *spillIndex
	tables     map[string]*Table // folded name -> table, unique per workbook
	provider   ExternalValueProvider
}

func newStorage() *Storage {
	s := &Storage{
		worksheets: NewWorksheetTable(),
		names:      NewNameTable(),
		styles:     NewStyleTable(),
		formulas:   NewFormulaTable(),
		graph:      NewDependencyGraph(),
		spills:     newSpillIndex(),
		tables:     make(map[string]*Table),
	}
	s.graph.spillRect = s.spills.rectOf
	return s
}

var _ ValueResolver = (*Storage)(nil)

// CellValue returns the value shown at a position
func (s *Storage) CellValue(sheet SheetID, addr CellAddr) Value {
	ws, ok := s.worksheets.GetWorksheet(sheet)
	if !ok {
		return NewSpreadsheetError(ErrorCodeRef, "sheet does not exist")
	}
	return s.cellValue(ws, addr)
}

func (s *Storage) cellValue(ws *Worksheet, addr CellAddr) Value {
	if c := ws.GetCell(addr); hasContent(c) {
		return c.Value
	}
	if v, ok := s.spills.valueAt(ws.ID(), addr); ok {
		return v
	}
	if v := ws.backingValue(addr); v != nil {
		return v
	}
	if s.provider != nil {
		if v, ok := s.provider.Get(ws.Name(), addr); ok {
			return v
		}
	}
	return nil
}

// layered is one candidate value for a position; lower layers win
type layered struct {
	addr  CellAddr
	layer uint8
	v     Value
}

const (
	layerCell uint8 = iota
	layerSpill
	layerBacking
	layerProvider
)

// ForEachInRange visits the non-blank positions of ref in row-major order
func (s *Storage) ForEachInRange(ref *Reference, fn func(addr CellAddr, v Value) bool) {
	ws, ok := s.worksheets.GetWorksheet(ref.Sheet)
	if !ok {
		return
	}
	rect := ref.Rect()

	hasSpills := false
	s.spills.forEachOverlapping(ws.ID(), rect, func(r *SpillRegion) {
		hasSpills = hasSpills || !r.Blocked
	})
	backing, hasBacking := ws.backingRect()
	if hasBacking {
		backing, hasBacking = backing.Intersect(rect)
	}
	providerRect, hasProvider := s.providerArea(ws, rect)

	if !hasSpills && !hasBacking && !hasProvider {
		ws.forEachCell(rect, func(addr CellAddr, c *Cell) bool {
			if c.Value == nil {
				return true
			}
			return fn(addr, c.Value)
		})
		return
	}

	var found []layered
	ws.forEachCell(rect, func(addr CellAddr, c *Cell) bool {
		if hasContent(c) {
			found = append(found, layered{addr: addr, layer: layerCell, v: c.Value})
		}
		return true
	})
	if hasSpills {
		s.spills.forEachOverlapping(ws.ID(), rect, func(r *SpillRegion) {
			if r.Blocked {
				return
			}
			part, _ := r.Rect.Intersect(rect)
			eachAddr(part, func(addr CellAddr) {
				if addr != r.Origin {
					v := r.Array.At(int(addr.Row-r.Rect.Start.Row), int(addr.Col-r.Rect.Start.Col))
					found = append(found, layered{addr: addr, layer: layerSpill, v: v})
				}
			})
		})
	}
	if hasBacking {
		eachAddr(backing, func(addr CellAddr) {
			if v := ws.backingValue(addr); v != nil {
				found = append(found, layered{addr: addr, layer: layerBacking, v: v})
			}
		})
	}
	if hasProvider {
		name := ws.Name()
		eachAddr(providerRect, func(addr CellAddr) {
			if v, ok := s.provider.Get(name, addr); ok && v != nil {
				found = append(found, layered{addr: addr, layer: layerProvider, v: v})
			}
		})
	}

	slices.SortFunc(found, func(a, b layered) int {
		if c := compareAddr(a.addr, b.addr); c != 0 {
			return c
		}
		return int(a.layer) - int(b.layer)
	})
	for i, e := range found {
		if i > 0 && found[i-1].addr == e.addr {
			continue
		}
		if e.v == nil {
			continue
		}
		if !fn(e.addr, e.v) {
			return
		}
	}
}

// providerArea is the part of rect the provider is asked about
func (s *Storage) providerArea(ws *Worksheet, rect Rect) (Rect, bool) {
	if s.provider == nil {
		return Rect{}, false
	}
	if ext, ok := s.provider.(ExtentProvider); ok {
		rows, cols, known := ext.Extent(ws.Name())
		if !known || rows == 0 || cols == 0 {
			return Rect{}, false
		}
		return rect.Intersect(Rect{End: CellAddr{Row: rows - 1, Col: cols - 1}})
	}
	if rect.Area() > maxProviderScan {
		return Rect{}, false
	}
	return rect, true
}

func eachAddr(r Rect, fn func(addr CellAddr)) {
	for row := r.Start.Row; row <= r.End.Row; row++ {
		for col := r.Start.Col; col <= r.End.Col; col++ {
			fn(CellAddr{Row: row, Col: col})
		}
	}
}

// NumericColumn borrows a float64 slice from the backing when nothing is
// layered over the requested rows of the column
func (s *Storage) NumericColumn(sheet SheetID, col, startRow, endRow uint32) ([]float64, bool) {
	ws, ok := s.worksheets.GetWorksheet(sheet)
	if !ok || ws.backing == nil {
		return nil, false
	}
	covered, ok := ws.backingRect()
	span := Rect{Start: CellAddr{Row: startRow, Col: col}, End: CellAddr{Row: endRow, Col: col}}
	if !ok || !covered.Contains(span.Start) || !covered.Contains(span.End) {
		return nil, false
	}
	if ws.hasOverlay(col, startRow, endRow) {
		return nil, false
	}
	spilled := false
	s.spills.forEachOverlapping(sheet, span, func(r *SpillRegion) {
		spilled = spilled || !r.Blocked
	})
	if spilled {
		return nil, false
	}
	o := ws.backingOrigin
	return ws.backing.Float64Column(col-o.Col, startRow-o.Row, endRow-o.Row)
}

// SheetDimensions returns the addressable size of a sheet. a backing that
// reaches past the row or column count extends it.
func (s *Storage) SheetDimensions(sheet SheetID) (uint32, uint32, bool) {
	ws, ok := s.worksheets.GetWorksheet(sheet)
	if !ok {
		return 0, 0, false
	}
	rows, cols := ws.Dimensions()
	if r, ok := ws.backingRect(); ok {
		rows = max(rows, r.End.Row+1)
		cols = max(cols, r.End.Col+1)
	}
	return rows, cols, true
}

func (s *Storage) SheetByName(name string) (SheetID, bool) {
	ws, ok := s.worksheets.GetWorksheetByName(name)
	if !ok {
		return 0, false
	}
	return ws.ID(), true
}

// SheetName returns the display name of a defined sheet
func (s *Storage) SheetName(sheet SheetID) (string, bool) {
	ws, ok := s.worksheets.GetWorksheet(sheet)
	if !ok {
		return "", false
	}
	return ws.Name(), true
}

func (s *Storage) SheetOrder() []SheetID {
	return s.worksheets.Order()
}

// SheetsBetween lists the sheets spanned by a 3-D reference in tab order.
// the endpoints may be given in either order.
func (s *Storage) SheetsBetween(first, last SheetID) ([]SheetID, bool) {
	i, ok1 := s.worksheets.Position(first)
	j, ok2 := s.worksheets.Position(last)
	if !ok1 || !ok2 {
		return nil, false
	}
	if i > j {
		i, j = j, i
	}
	return s.worksheets.Order()[i : j+1], true
}

func (s *Storage) SpillAt(sheet SheetID, addr CellAddr) (Rect, bool) {
	r, ok := s.spills.activeAt(sheet, addr)
	if !ok {
		return Rect{}, false
	}
	return r.Rect, true
}

func (s *Storage) Name(name string, scope SheetID) (*DefinedName, bool) {
	return s.names.Lookup(name, scope)
}

func (s *Storage) Table(name string) (*Table, bool) {
	t, ok := s.tables[foldKey(name)]
	return t, ok
}

func (s *Storage) TableAt(sheet SheetID, addr CellAddr) (*Table, bool) {
	ws, ok := s.worksheets.GetWorksheet(sheet)
	if !ok {
		return nil, false
	}
	return ws.tableAt(addr)
}

// FormulaText returns the stored formula of a cell without the '='
func (s *Storage) FormulaText(sheet SheetID, addr CellAddr) (string, bool) {
	ws, ok := s.worksheets.GetWorksheet(sheet)
	if !ok {
		return "", false
	}
	c := ws.GetCell(addr)
	if !c.HasFormula() {
		return "", false
	}
	return c.Formula, true
}

func (s *Storage) RowHidden(sheet SheetID, row uint32) bool {
	ws, ok := s.worksheets.GetWorksheet(sheet)
	return ok && ws.RowHidden(row)
}
