package calc

import (
	"slices"
	"strings"
)

// WorksheetTable manages worksheet storage and ID mappings. names are
// matched case-insensitively. a name can be interned before the sheet
// exists, so formulas that mention a sheet created later keep a stable id.
type WorksheetTable struct {
	// core name/ID mapping (for all worksheets, defined or not)

	nameToID map[string]SheetID // folded name -> ID for all worksheets
	idToName map[SheetID]string // ID -> display name for all worksheets
	keyToID  map[string]SheetID // opaque host key -> ID for defined worksheets

	// worksheet definitions

	definedWorksheets map[SheetID]*Worksheet // ID -> worksheet for defined worksheets
	order             []SheetID              // defined worksheets in tab order

	// track undefined worksheets (referenced but not yet defined)

	undefinedIDs map[SheetID]struct{}

	// reference counting

	refCounts map[SheetID]int
	nextID    SheetID
}

// NewWorksheetTable creates a new worksheet table
func NewWorksheetTable() *WorksheetTable {
	return &WorksheetTable{
		nameToID:          make(map[string]SheetID),
		idToName:          make(map[SheetID]string),
		keyToID:           make(map[string]SheetID),
		definedWorksheets: make(map[SheetID]*Worksheet),
		undefinedIDs:      make(map[SheetID]struct{}),
		refCounts:         make(map[SheetID]int),
		nextID:            1, // start at 1, reserve 0 for no worksheet
	}
}

// InternWorksheet adds a reference to a worksheet (defined or not). returns
// the ID of the worksheet.
func (wt *WorksheetTable) InternWorksheet(name string) SheetID {
	key := foldKey(name)
	if id, exists := wt.nameToID[key]; exists {
		wt.refCounts[id]++
		return id
	}

	id := wt.nextID
	wt.nameToID[key] = id
	wt.idToName[id] = name
	wt.undefinedIDs[id] = struct{}{}
	wt.refCounts[id] = 1
	wt.nextID++
	return id
}

// DefineWorksheet creates a worksheet under a host key and display name and
// appends it to the tab order. a name that was interned earlier keeps its
// ID, so formulas already pointing at it start resolving.
func (wt *WorksheetTable) DefineWorksheet(key, name string) *Worksheet {
	folded := foldKey(name)
	id, exists := wt.nameToID[folded]
	if !exists {
		id = wt.nextID
		wt.nextID++
		wt.nameToID[folded] = id
	}
	delete(wt.undefinedIDs, id)
	wt.idToName[id] = name
	wt.keyToID[key] = id

	ws := NewWorksheet(id, key, name)
	wt.definedWorksheets[id] = ws
	wt.order = append(wt.order, id)
	return ws
}

// UndefineWorksheet removes the definition of a worksheet. if the name is
// still referenced by formulas it stays interned as undefined. returns
// true if the worksheet was removed completely.
func (wt *WorksheetTable) UndefineWorksheet(id SheetID) bool {
	ws, exists := wt.definedWorksheets[id]
	if !exists {
		return false
	}
	delete(wt.definedWorksheets, id)
	delete(wt.keyToID, ws.key)
	wt.order = slices.DeleteFunc(wt.order, func(s SheetID) bool { return s == id })

	if wt.refCounts[id] > 0 {
		wt.undefinedIDs[id] = struct{}{}
		return false
	}
	wt.removeWorksheet(id)
	return true
}

// RenameWorksheet changes the display name of a defined worksheet. if the
// new name was interned as an undefined sheet, that stale ID is returned so
// formulas bound to it can be rebound.
func (wt *WorksheetTable) RenameWorksheet(id SheetID, newName string) (stale SheetID) {
	ws, exists := wt.definedWorksheets[id]
	if !exists {
		return 0
	}
	oldKey := foldKey(wt.idToName[id])
	newKey := foldKey(newName)
	if other, taken := wt.nameToID[newKey]; taken && other != id {
		if _, undefined := wt.undefinedIDs[other]; undefined {
			stale = other
			delete(wt.undefinedIDs, other)
			delete(wt.idToName, other)
			delete(wt.refCounts, other)
		}
	}
	if oldKey != newKey {
		delete(wt.nameToID, oldKey)
	}
	wt.nameToID[newKey] = id
	wt.idToName[id] = newName
	ws.name = newName
	return stale
}

// MoveWorksheet places a worksheet at a new tab position
func (wt *WorksheetTable) MoveWorksheet(id SheetID, index int) bool {
	from := slices.Index(wt.order, id)
	if from < 0 || index < 0 || index >= len(wt.order) {
		return false
	}
	wt.order = slices.Delete(wt.order, from, from+1)
	wt.order = slices.Insert(wt.order, index, id)
	return true
}

// removeWorksheet removes a worksheet completely from all tracking maps
func (wt *WorksheetTable) removeWorksheet(id SheetID) {
	name := wt.idToName[id]
	if wt.nameToID[foldKey(name)] == id {
		delete(wt.nameToID, foldKey(name))
	}
	delete(wt.idToName, id)
	delete(wt.definedWorksheets, id)
	delete(wt.undefinedIDs, id)
	delete(wt.refCounts, id)
}

// AddReference increments the reference count for a worksheet ID
func (wt *WorksheetTable) AddReference(id SheetID) bool {
	if _, exists := wt.idToName[id]; !exists {
		return false
	}
	wt.refCounts[id]++
	return true
}

// RemoveReference decrements the reference count for a worksheet ID. an
// undefined worksheet with no references left is forgotten. returns true if
// the worksheet was removed.
func (wt *WorksheetTable) RemoveReference(id SheetID) bool {
	if _, exists := wt.idToName[id]; !exists {
		return false
	}
	wt.refCounts[id]--
	if wt.refCounts[id] <= 0 {
		if _, isUndefined := wt.undefinedIDs[id]; isUndefined {
			wt.removeWorksheet(id)
			return true
		}
		wt.refCounts[id] = 0
	}
	return false
}

// GetWorksheet returns the Worksheet for a given ID
func (wt *WorksheetTable) GetWorksheet(id SheetID) (*Worksheet, bool) {
	ws, exists := wt.definedWorksheets[id]
	return ws, exists
}

// GetWorksheetByName returns the defined Worksheet for a display name
func (wt *WorksheetTable) GetWorksheetByName(name string) (*Worksheet, bool) {
	id, exists := wt.nameToID[foldKey(name)]
	if !exists {
		return nil, false
	}
	return wt.GetWorksheet(id)
}

// GetWorksheetByKey returns the defined Worksheet for a host key
func (wt *WorksheetTable) GetWorksheetByKey(key string) (*Worksheet, bool) {
	id, exists := wt.keyToID[key]
	if !exists {
		return nil, false
	}
	return wt.GetWorksheet(id)
}

// IsWorksheetDefined checks if a worksheet has a definition
func (wt *WorksheetTable) IsWorksheetDefined(id SheetID) bool {
	_, exists := wt.definedWorksheets[id]
	return exists
}

// GetWorksheetID returns the ID for a worksheet name, defined or not
func (wt *WorksheetTable) GetWorksheetID(name string) (SheetID, bool) {
	id, exists := wt.nameToID[foldKey(name)]
	return id, exists
}

// GetWorksheetName returns the display name for a worksheet ID
func (wt *WorksheetTable) GetWorksheetName(id SheetID) (string, bool) {
	name, exists := wt.idToName[id]
	return name, exists
}

// Contains checks if a worksheet exists (defined or undefined)
func (wt *WorksheetTable) Contains(name string) bool {
	_, exists := wt.nameToID[foldKey(name)]
	return exists
}

// GetReferenceCount returns the reference count for a worksheet ID
func (wt *WorksheetTable) GetReferenceCount(id SheetID) int {
	return wt.refCounts[id]
}

// Order returns the defined worksheets in tab order
func (wt *WorksheetTable) Order() []SheetID {
	return slices.Clone(wt.order)
}

// Position returns the tab index of a worksheet
func (wt *WorksheetTable) Position(id SheetID) (int, bool) {
	i := slices.Index(wt.order, id)
	return i, i >= 0
}

// GetAllUndefinedWorksheets returns all undefined (referenced but not
// defined) worksheet names, sorted
func (wt *WorksheetTable) GetAllUndefinedWorksheets() []string {
	result := make([]string, 0, len(wt.undefinedIDs))
	for id := range wt.undefinedIDs {
		if name, exists := wt.idToName[id]; exists {
			result = append(result, name)
		}
	}
	slices.Sort(result)
	return result
}

// Count returns the total number of worksheets (defined and undefined)
func (wt *WorksheetTable) Count() int {
	return len(wt.idToName)
}

// CountDefined returns the number of defined worksheets
func (wt *WorksheetTable) CountDefined() int {
	return len(wt.definedWorksheets)
}

// CountUndefined returns the number of undefined worksheets
func (wt *WorksheetTable) CountUndefined() int {
	return len(wt.undefinedIDs)
}

// ChunkKey represents the key for indexing chunks in Worksheet
type ChunkKey struct {
	ChunkRow uint32
	ChunkCol uint32
}

const (
	ChunkRows uint32 = 256 // rows per chunk
	ChunkCols uint32 = 256 // columns per chunk
)

func chunkOf(addr CellAddr) ChunkKey {
	return ChunkKey{ChunkRow: addr.Row / ChunkRows, ChunkCol: addr.Col / ChunkCols}
}

// Outline is the grouping state of a row or column
type Outline struct {
	Level  uint8
	Hidden bool
}

// ViewState is the selection and scroll state a host keeps with a sheet.
// the engine stores it but never reads it.
type ViewState struct {
	Active    CellAddr
	Selection []Rect
	TopLeft   CellAddr
	Zoom      int
}

// Worksheet is sparse cell storage for one sheet.
//
// cells are partitioned into 256x256 chunks, each a small map holding only
// the cells that exist, so memory follows the number of stored cells and
// never the largest coordinate used. range scans visit only the chunks
// that overlap the range.
type Worksheet struct {
	chunks      map[ChunkKey]map[CellAddr]*Cell
	totalCells  int
	cellsByType [9]uint32 // stored values and formula results by CellType
	formulas    int
	// overlay counts cells with content per column, used to decide whether
	// a columnar read can skip the sparse layer
	overlay map[uint32]int

	worksheetID SheetID
	key         string
	name        string
	rows        uint32
	cols        uint32

	backing       ColumnarBacking
	backingOrigin CellAddr

	rowOutline map[uint32]Outline
	colOutline map[uint32]Outline
	view       ViewState
	tables     map[string]*Table // folded name -> table
}

// NewWorksheet creates a new worksheet with Excel's default dimensions
func NewWorksheet(id SheetID, key, name string) *Worksheet {
	return &Worksheet{
		chunks:      make(map[ChunkKey]map[CellAddr]*Cell),
		overlay:     make(map[uint32]int),
		worksheetID: id,
		key:         key,
		name:        name,
		rows:        DefaultMaxRows,
		cols:        DefaultMaxCols,
	}
}

// ID returns the stable id of the sheet
func (w *Worksheet) ID() SheetID { return w.worksheetID }

// Key returns the host key the sheet was created with
func (w *Worksheet) Key() string { return w.key }

// Name returns the display name
func (w *Worksheet) Name() string { return w.name }

// Dimensions returns the row and column counts
func (w *Worksheet) Dimensions() (rows, cols uint32) {
	return w.rows, w.cols
}

// GetCell retrieves the cell at addr, or nil
func (w *Worksheet) GetCell(addr CellAddr) *Cell {
	chunk, exists := w.chunks[chunkOf(addr)]
	if !exists {
		return nil
	}
	return chunk[addr]
}

// cellFor returns the cell at addr, creating it when absent
func (w *Worksheet) cellFor(addr CellAddr) *Cell {
	key := chunkOf(addr)
	chunk, exists := w.chunks[key]
	if !exists {
		chunk = make(map[CellAddr]*Cell)
		w.chunks[key] = chunk
	}
	cell, exists := chunk[addr]
	if !exists {
		cell = &Cell{}
		chunk[addr] = cell
		w.totalCells++
	}
	return cell
}

// hasContent reports whether a cell shadows lower layers
func hasContent(c *Cell) bool {
	return c != nil && (c.Value != nil || c.FormulaID != 0)
}

// update applies fn to the cell at addr, keeping the statistics and the
// overlay counts current and dropping the cell if nothing is left in it
func (w *Worksheet) update(addr CellAddr, fn func(c *Cell)) *Cell {
	cell := w.cellFor(addr)
	before := hasContent(cell)
	oldType, oldFormula := TypeOf(cell.Value), cell.FormulaID != 0
	if before {
		w.cellsByType[oldType]--
	}

	fn(cell)

	if after := hasContent(cell); after {
		w.cellsByType[TypeOf(cell.Value)]++
		if !before {
			w.overlay[addr.Col]++
		}
	} else if before {
		w.decOverlay(addr.Col)
	}
	switch newFormula := cell.FormulaID != 0; {
	case newFormula && !oldFormula:
		w.formulas++
	case !newFormula && oldFormula:
		w.formulas--
	}
	if cell.isEmpty() {
		w.drop(addr)
		return nil
	}
	return cell
}

func (w *Worksheet) decOverlay(col uint32) {
	if w.overlay[col] <= 1 {
		delete(w.overlay, col)
		return
	}
	w.overlay[col]--
}

func (w *Worksheet) drop(addr CellAddr) {
	key := chunkOf(addr)
	chunk, exists := w.chunks[key]
	if !exists {
		return
	}
	if _, exists := chunk[addr]; !exists {
		return
	}
	delete(chunk, addr)
	w.totalCells--
	if len(chunk) == 0 {
		delete(w.chunks, key)
	}
}

// SetValue stores a plain value, replacing any formula. the style is kept.
func (w *Worksheet) SetValue(addr CellAddr, v Value) *Cell {
	return w.update(addr, func(c *Cell) {
		c.Value = v
		c.Formula = ""
		c.FormulaID = 0
	})
}

// SetFormula attaches formula text to a cell. the cached result is reset
// until the cell is recalculated.
func (w *Worksheet) SetFormula(addr CellAddr, text string, formulaID uint32) *Cell {
	return w.update(addr, func(c *Cell) {
		c.Value = nil
		c.Formula = text
		c.FormulaID = formulaID
	})
}

// SetFormulaResult stores the computed result of a formula cell
func (w *Worksheet) SetFormulaResult(addr CellAddr, result Value) {
	cell := w.GetCell(addr)
	if cell == nil || cell.FormulaID == 0 {
		return
	}
	w.update(addr, func(c *Cell) { c.Value = result })
}

// SetStyle changes the style of a cell and returns the previous style id.
// setting the default style on an otherwise empty cell removes it.
func (w *Worksheet) SetStyle(addr CellAddr, styleID uint32) uint32 {
	var old uint32
	if cell := w.GetCell(addr); cell != nil {
		old = cell.StyleID
	} else if styleID == 0 {
		return 0
	}
	w.update(addr, func(c *Cell) { c.StyleID = styleID })
	return old
}

// ClearContents removes the value and formula of a cell but keeps a
// non-default style
func (w *Worksheet) ClearContents(addr CellAddr) {
	if w.GetCell(addr) == nil {
		return
	}
	w.update(addr, func(c *Cell) {
		c.Value = nil
		c.Formula = ""
		c.FormulaID = 0
	})
}

// RemoveCell removes a cell, style included
func (w *Worksheet) RemoveCell(addr CellAddr) {
	if w.GetCell(addr) == nil {
		return
	}
	w.update(addr, func(c *Cell) { *c = Cell{} })
}

// hasOverlay reports whether any cell with content lies in col between the
// two rows
func (w *Worksheet) hasOverlay(col, startRow, endRow uint32) bool {
	if w.overlay[col] == 0 {
		return false
	}
	found := false
	w.forEachCell(Rect{Start: CellAddr{Row: startRow, Col: col}, End: CellAddr{Row: endRow, Col: col}}, func(_ CellAddr, c *Cell) bool {
		if hasContent(c) {
			found = true
			return false
		}
		return true
	})
	return found
}

// forEachCell visits the stored cells inside rect in row-major order
func (w *Worksheet) forEachCell(rect Rect, fn func(addr CellAddr, c *Cell) bool) {
	if w.totalCells == 0 {
		return
	}
	first, last := chunkOf(rect.Start), chunkOf(rect.End)
	span := uint64(last.ChunkRow-first.ChunkRow+1) * uint64(last.ChunkCol-first.ChunkCol+1)

	var found []CellAddr
	collect := func(chunk map[CellAddr]*Cell) {
		for addr := range chunk {
			if rect.Contains(addr) {
				found = append(found, addr)
			}
		}
	}
	if span > uint64(len(w.chunks)) {
		for key, chunk := range w.chunks {
			if key.ChunkRow >= first.ChunkRow && key.ChunkRow <= last.ChunkRow &&
				key.ChunkCol >= first.ChunkCol && key.ChunkCol <= last.ChunkCol {
				collect(chunk)
			}
		}
	} else {
		for cr := first.ChunkRow; cr <= last.ChunkRow; cr++ {
			for cc := first.ChunkCol; cc <= last.ChunkCol; cc++ {
				if chunk, ok := w.chunks[ChunkKey{ChunkRow: cr, ChunkCol: cc}]; ok {
					collect(chunk)
				}
			}
		}
	}
	slices.SortFunc(found, compareAddr)
	for _, addr := range found {
		if !fn(addr, w.GetCell(addr)) {
			return
		}
	}
}

// compareAddr orders addresses row-major
func compareAddr(a, b CellAddr) int {
	switch {
	case a.Row < b.Row:
		return -1
	case a.Row > b.Row:
		return 1
	case a.Col < b.Col:
		return -1
	case a.Col > b.Col:
		return 1
	}
	return 0
}

// SetRowOutline sets the grouping state of a row
func (w *Worksheet) SetRowOutline(row uint32, o Outline) {
	if w.rowOutline == nil {
		w.rowOutline = make(map[uint32]Outline)
	}
	if o == (Outline{}) {
		delete(w.rowOutline, row)
		return
	}
	w.rowOutline[row] = o
}

// SetColumnOutline sets the grouping state of a column
func (w *Worksheet) SetColumnOutline(col uint32, o Outline) {
	if w.colOutline == nil {
		w.colOutline = make(map[uint32]Outline)
	}
	if o == (Outline{}) {
		delete(w.colOutline, col)
		return
	}
	w.colOutline[col] = o
}

// RowOutline returns the grouping state of a row
func (w *Worksheet) RowOutline(row uint32) Outline {
	return w.rowOutline[row]
}

// ColumnOutline returns the grouping state of a column
func (w *Worksheet) ColumnOutline(col uint32) Outline {
	return w.colOutline[col]
}

// RowHidden reports whether a row is hidden
func (w *Worksheet) RowHidden(row uint32) bool {
	return w.rowOutline[row].Hidden
}

// SetView replaces the view state
func (w *Worksheet) SetView(v ViewState) {
	v.Selection = slices.Clone(v.Selection)
	w.view = v
}

// View returns the view state
func (w *Worksheet) View() ViewState {
	v := w.view
	v.Selection = slices.Clone(v.Selection)
	return v
}

// GetCellsByType returns stored values and formula results by type
func (w *Worksheet) GetCellsByType() [9]uint32 {
	return w.cellsByType
}

// GetTotalCells returns the number of stored cells, style-only included
func (w *Worksheet) GetTotalCells() int {
	return w.totalCells
}

// FormulaCount returns the number of formula cells
func (w *Worksheet) FormulaCount() int {
	return w.formulas
}

// SetBacking attaches a columnar block whose first row and column sit at
// origin. a nil backing detaches it.
func (w *Worksheet) SetBacking(origin CellAddr, b ColumnarBacking) {
	w.backing = b
	w.backingOrigin = origin
	if b == nil {
		w.backingOrigin = CellAddr{}
	}
}

// Backing returns the columnar block and its origin
func (w *Worksheet) Backing() (ColumnarBacking, CellAddr) {
	return w.backing, w.backingOrigin
}

// backingRect returns the area the backing covers on the sheet
func (w *Worksheet) backingRect() (Rect, bool) {
	if w.backing == nil {
		return Rect{}, false
	}
	rows, cols := w.backing.Bounds()
	if rows == 0 || cols == 0 {
		return Rect{}, false
	}
	o := w.backingOrigin
	return Rect{Start: o, End: CellAddr{Row: o.Row + rows - 1, Col: o.Col + cols - 1}}, true
}

// backingValue reads the backing at a sheet position
func (w *Worksheet) backingValue(addr CellAddr) Value {
	if w.backing == nil || addr.Row < w.backingOrigin.Row || addr.Col < w.backingOrigin.Col {
		return nil
	}
	return w.backing.Value(addr.Row-w.backingOrigin.Row, addr.Col-w.backingOrigin.Col)
}

// SetDimensions overrides the row and column counts
func (w *Worksheet) SetDimensions(rows, cols uint32) {
	w.rows, w.cols = rows, cols
}

// Tables returns the sheet's tables ordered by name
func (w *Worksheet) Tables() []*Table {
	out := make([]*Table, 0, len(w.tables))
	for _, t := range w.tables {
		out = append(out, t)
	}
	slices.SortFunc(out, func(a, b *Table) int { return strings.Compare(foldKey(a.Name), foldKey(b.Name)) })
	return out
}

// tableAt finds the table whose range contains addr
func (w *Worksheet) tableAt(addr CellAddr) (*Table, bool) {
	for _, t := range w.tables {
		if t.Range.Contains(addr) {
			return t, true
		}
	}
	return nil, false
}

// setTables replaces the sheet's tables
func (w *Worksheet) setTables(tables []*Table) {
	w.tables = make(map[string]*Table, len(tables))
	for _, t := range tables {
		w.tables[foldKey(t.Name)] = t
	}
}
