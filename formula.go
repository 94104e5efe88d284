package calc

import (
	"slices"

	"github.com/zeebo/xxh3"
)

// FormulaKey is the R1C1 rendering of a formula. relative references
// render as offsets, so a formula filled down a column has one key, one
// shared tree and one compiled program.
type FormulaKey string

// formulaKeyOf renders the key of a parsed formula placed at origin
func formulaKeyOf(ast *Ast, origin CellAddr, sheetName func(SheetID) (string, bool)) FormulaKey {
	return FormulaKey(ast.ToString(SerializeOptions{
		OmitEquals: true,
		Style:      StyleR1C1,
		Origin:     &origin,
		SheetName:  sheetName,
	}))
}

// FormulaTable stores formulas centrally and tracks the sheets, names and
// tables they reference
type FormulaTable struct {
	// core formula storage

	keyIndex    map[FormulaKey]uint32 // R1C1 key -> formula ID
	keys        map[uint32]FormulaKey // formula ID -> key
	astCache    map[uint32]*Ast       // formula ID -> shared parsed tree
	programKeys map[uint32]uint64     // formula ID -> program cache key
	refCounts   map[uint32]int        // formula ID -> reference count

	// cell tracking

	cellsUsingFormula map[uint32]map[CellAddress]struct{} // formula ID -> cells using it
	formulaAtCell     map[CellAddress]uint32              // cell -> formula ID (reverse index)

	// worksheet tracking

	referencedWorksheets   map[uint32]map[SheetID]struct{} // formula ID -> worksheets it reads
	formulasUsingSheetName map[string]map[uint32]struct{}  // folded sheet name -> formula IDs mentioning it

	// defined name and table tracking

	namesUsed         map[uint32]map[string]struct{} // formula ID -> folded names it uses
	formulasUsingName map[string]map[uint32]struct{} // folded name -> formula IDs using it
	usesTables        map[uint32]struct{}

	serial map[uint32]struct{} // formulas calling functions that must not run concurrently

	// worksheet table entries each formula holds a reference to
	sheetRefs map[uint32][]SheetID

	// compile status, "" for programs that compiled
	fallbacks map[uint32]string
	compiled  map[uint32]bool

	nextID uint32
}

// NewFormulaTable creates a new formula table
func NewFormulaTable() *FormulaTable {
	return &FormulaTable{
		keyIndex:               make(map[FormulaKey]uint32),
		keys:                   make(map[uint32]FormulaKey),
		astCache:               make(map[uint32]*Ast),
		programKeys:            make(map[uint32]uint64),
		refCounts:              make(map[uint32]int),
		cellsUsingFormula:      make(map[uint32]map[CellAddress]struct{}),
		formulaAtCell:          make(map[CellAddress]uint32),
		referencedWorksheets:   make(map[uint32]map[SheetID]struct{}),
		formulasUsingSheetName: make(map[string]map[uint32]struct{}),
		namesUsed:              make(map[uint32]map[string]struct{}),
		formulasUsingName:      make(map[string]map[uint32]struct{}),
		usesTables:             make(map[uint32]struct{}),
		serial:                 make(map[uint32]struct{}),
		sheetRefs:              make(map[uint32][]SheetID),
		fallbacks:              make(map[uint32]string),
		compiled:               make(map[uint32]bool),
		nextID:                 1, // start at 1, reserve 0 for no formula
	}
}

// InternFormula adds a formula or increments its reference count if one
// with the same key exists. the cell is tracked as a user of the formula.
// returns the formula ID and whether it was newly added.
func (ft *FormulaTable) InternFormula(key FormulaKey, ast *Ast, cell CellAddress) (uint32, bool) {
	if id, exists := ft.keyIndex[key]; exists {
		ft.refCounts[id]++
		ft.trackCellUsage(id, cell)
		return id, false
	}

	id := ft.nextID
	ft.keyIndex[key] = id
	ft.keys[id] = key
	ft.astCache[id] = ast
	ft.programKeys[id] = xxh3.HashString(string(key))
	ft.refCounts[id] = 1
	ft.trackCellUsage(id, cell)
	ft.nextID++

	return id, true
}

// trackCellUsage adds a cell to the set of cells using a formula
func (ft *FormulaTable) trackCellUsage(formulaID uint32, cell CellAddress) {
	if ft.cellsUsingFormula[formulaID] == nil {
		ft.cellsUsingFormula[formulaID] = make(map[CellAddress]struct{})
	}
	ft.cellsUsingFormula[formulaID][cell] = struct{}{}
	ft.formulaAtCell[cell] = formulaID
}

// GetAST retrieves the shared tree for a formula ID
func (ft *FormulaTable) GetAST(id uint32) (*Ast, bool) {
	ast, exists := ft.astCache[id]
	return ast, exists
}

// GetKey returns the R1C1 key of a formula
func (ft *FormulaTable) GetKey(id uint32) (FormulaKey, bool) {
	key, exists := ft.keys[id]
	return key, exists
}

// ProgramKey returns the xxh3 hash of the formula key
func (ft *FormulaTable) ProgramKey(id uint32) uint64 {
	return ft.programKeys[id]
}

// RemoveCellReference removes a cell reference from a formula. returns
// true if the formula was removed due to zero references.
func (ft *FormulaTable) RemoveCellReference(formulaID uint32, cell CellAddress) bool {
	if cells, exists := ft.cellsUsingFormula[formulaID]; exists {
		delete(cells, cell)
		if len(cells) == 0 {
			delete(ft.cellsUsingFormula, formulaID)
		}
	}
	if ft.formulaAtCell[cell] == formulaID {
		delete(ft.formulaAtCell, cell)
	}

	ft.refCounts[formulaID]--
	if ft.refCounts[formulaID] <= 0 {
		ft.removeFormula(formulaID)
		return true
	}
	return false
}

// removeFormula removes a formula and all its tracking data
func (ft *FormulaTable) removeFormula(formulaID uint32) {
	if key, exists := ft.keys[formulaID]; exists && ft.keyIndex[key] == formulaID {
		delete(ft.keyIndex, key)
	}
	ft.untrack(formulaID)

	delete(ft.keys, formulaID)
	delete(ft.astCache, formulaID)
	delete(ft.programKeys, formulaID)
	delete(ft.refCounts, formulaID)
	delete(ft.cellsUsingFormula, formulaID)
	delete(ft.fallbacks, formulaID)
	delete(ft.compiled, formulaID)
}

// untrack drops the reference tracking of a formula
func (ft *FormulaTable) untrack(formulaID uint32) {
	for name := range ft.namesUsed[formulaID] {
		dropIndex(ft.formulasUsingName, name, formulaID)
	}
	delete(ft.namesUsed, formulaID)
	delete(ft.referencedWorksheets, formulaID)
	for name, ids := range ft.formulasUsingSheetName {
		if _, ok := ids[formulaID]; ok {
			dropIndex(ft.formulasUsingSheetName, name, formulaID)
		}
	}
	delete(ft.usesTables, formulaID)
	delete(ft.serial, formulaID)
	delete(ft.sheetRefs, formulaID)
}

func dropIndex(index map[string]map[uint32]struct{}, key string, id uint32) {
	ids, ok := index[key]
	if !ok {
		return
	}
	delete(ids, id)
	if len(ids) == 0 {
		delete(index, key)
	}
}

func addIndex(index map[string]map[uint32]struct{}, key string, id uint32) {
	if index[key] == nil {
		index[key] = make(map[uint32]struct{})
	}
	index[key][id] = struct{}{}
}

// TrackDependencies records what a formula references. later cells using
// the same formula add to the sets. returns the folded names the formula
// had not used before.
func (ft *FormulaTable) TrackDependencies(formulaID uint32, info dependencyInfo) []string {
	if len(info.sheets) > 0 && ft.referencedWorksheets[formulaID] == nil {
		ft.referencedWorksheets[formulaID] = make(map[SheetID]struct{})
	}
	for _, sheet := range info.sheets {
		ft.referencedWorksheets[formulaID][sheet] = struct{}{}
	}
	for _, name := range info.sheetNames {
		addIndex(ft.formulasUsingSheetName, name, formulaID)
	}
	if len(info.names) > 0 && ft.namesUsed[formulaID] == nil {
		ft.namesUsed[formulaID] = make(map[string]struct{})
	}
	var added []string
	for _, name := range info.names {
		if _, seen := ft.namesUsed[formulaID][name]; !seen {
			added = append(added, name)
		}
		ft.namesUsed[formulaID][name] = struct{}{}
		addIndex(ft.formulasUsingName, name, formulaID)
	}
	if info.tables {
		ft.usesTables[formulaID] = struct{}{}
	}
	if !info.threadSafe {
		ft.serial[formulaID] = struct{}{}
	}
	return added
}

// NamesUsed returns the folded defined names a formula uses, sorted
func (ft *FormulaTable) NamesUsed(formulaID uint32) []string {
	out := make([]string, 0, len(ft.namesUsed[formulaID]))
	for name := range ft.namesUsed[formulaID] {
		out = append(out, name)
	}
	slices.Sort(out)
	return out
}

// SetSheetRefs records the worksheet entries a formula holds references to
func (ft *FormulaTable) SetSheetRefs(formulaID uint32, sheets []SheetID) {
	ft.sheetRefs[formulaID] = sheets
}

// SheetRefs returns the worksheet entries a formula holds references to
func (ft *FormulaTable) SheetRefs(formulaID uint32) []SheetID {
	return ft.sheetRefs[formulaID]
}

// FormulaIDs returns the ids of every stored formula
func (ft *FormulaTable) FormulaIDs() []uint32 {
	return sortedIDs(ft.astCache)
}

// IsThreadSafe reports whether every function the formula calls may run
// concurrently with other evaluations
func (ft *FormulaTable) IsThreadSafe(formulaID uint32) bool {
	_, serial := ft.serial[formulaID]
	return !serial
}

// GetFormulasUsingName returns formula IDs that use a defined name
func (ft *FormulaTable) GetFormulasUsingName(name string) []uint32 {
	return sortedIDs(ft.formulasUsingName[foldKey(name)])
}

// GetFormulasUsingSheetName returns formula IDs whose text mentions a sheet
func (ft *FormulaTable) GetFormulasUsingSheetName(name string) []uint32 {
	return sortedIDs(ft.formulasUsingSheetName[foldKey(name)])
}

// GetFormulasReferencingWorksheet returns formula IDs reading a sheet
func (ft *FormulaTable) GetFormulasReferencingWorksheet(sheet SheetID) []uint32 {
	var out []uint32
	for id, sheets := range ft.referencedWorksheets {
		if _, ok := sheets[sheet]; ok {
			out = append(out, id)
		}
	}
	slices.Sort(out)
	return out
}

// GetFormulasUsingTables returns formula IDs with structured references
func (ft *FormulaTable) GetFormulasUsingTables() []uint32 {
	return sortedIDs(ft.usesTables)
}

// GetReferencedWorksheets returns the IDs of worksheets a formula reads
func (ft *FormulaTable) GetReferencedWorksheets(formulaID uint32) []SheetID {
	out := make([]SheetID, 0, len(ft.referencedWorksheets[formulaID]))
	for id := range ft.referencedWorksheets[formulaID] {
		out = append(out, id)
	}
	slices.Sort(out)
	return out
}

// GetCellsUsingFormula returns all cells using a formula, sorted
func (ft *FormulaTable) GetCellsUsingFormula(formulaID uint32) []CellAddress {
	return sortedAddresses(ft.cellsUsingFormula[formulaID])
}

// GetFormulaAtCell returns the formula ID at a specific cell
func (ft *FormulaTable) GetFormulaAtCell(cell CellAddress) (uint32, bool) {
	id, exists := ft.formulaAtCell[cell]
	return id, exists
}

// GetReferenceCount returns the reference count for a formula
func (ft *FormulaTable) GetReferenceCount(id uint32) int {
	return ft.refCounts[id]
}

// SetCompileResult records whether a formula compiled to bytecode and,
// if not, why
func (ft *FormulaTable) SetCompileResult(formulaID uint32, cause string) {
	ft.compiled[formulaID] = cause == ""
	ft.fallbacks[formulaID] = cause
}

// CompileResult returns the recorded compile outcome; known is false for a
// formula that was never compiled
func (ft *FormulaTable) CompileResult(formulaID uint32) (cause string, known bool) {
	if _, known = ft.compiled[formulaID]; !known {
		return "", false
	}
	return ft.fallbacks[formulaID], true
}

// Count returns the number of unique formulas
func (ft *FormulaTable) Count() int {
	return len(ft.astCache)
}

// TotalReferences returns the total number of references across all formulas
func (ft *FormulaTable) TotalReferences() int {
	total := 0
	for _, count := range ft.refCounts {
		total += count
	}
	return total
}

func sortedIDs[K comparable](set map[uint32]K) []uint32 {
	out := make([]uint32, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	slices.Sort(out)
	return out
}
