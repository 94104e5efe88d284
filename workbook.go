package calc

import (
	"fmt"
	"slices"
)

// EnsureSheet returns the display name of the sheet registered under key,
// creating it when absent. the name is derived from the key, made valid
// and unique.
func (e *Engine) EnsureSheet(key string) (string, error) {
	if ws, ok := e.s.worksheets.GetWorksheetByKey(key); ok {
		return ws.Name(), nil
	}
	if key == "" {
		return "", NewApplicationError(InvalidArgument, "sheet key is empty")
	}
	name := uniqueSheetName(SanitizeSheetName(key), func(n string) bool {
		_, taken := e.s.worksheets.GetWorksheetByName(n)
		return taken
	})
	e.defineSheet(key, name)
	return name, e.afterMutation()
}

// EnsureSheetWithDisplayName creates a sheet under key with an exact
// display name. an existing sheet under key is renamed.
func (e *Engine) EnsureSheetWithDisplayName(key, name string) error {
	if ws, ok := e.s.worksheets.GetWorksheetByKey(key); ok {
		if ws.Name() == name {
			return nil
		}
		return e.RenameSheet(key, name)
	}
	if key == "" {
		return NewApplicationError(InvalidArgument, "sheet key is empty")
	}
	if err := ValidateSheetName(name); err != nil {
		return err
	}
	if _, taken := e.s.worksheets.GetWorksheetByName(name); taken {
		return NewApplicationError(AlreadyExists, fmt.Sprintf("sheet %q already exists", name))
	}
	e.defineSheet(key, name)
	return e.afterMutation()
}

// defineSheet adds a sheet at the end of the tab order. formulas that
// named it before it existed start reading it.
func (e *Engine) defineSheet(key, name string) {
	e.s.worksheets.DefineWorksheet(key, name)
	e.programs.Purge()
	e.rederive(e.s.formulas.GetFormulasUsingSheetName(name))
	e.log.Debugf("sheet %q added", name)
}

// SetSheetDisplayName renames a sheet, ignoring names that are invalid or
// taken
func (e *Engine) SetSheetDisplayName(sheet, name string) {
	if err := e.RenameSheet(sheet, name); err != nil {
		e.log.Debugf("sheet display name %q ignored: %s", name, err)
	}
}

// RenameSheet changes the display name of a sheet. formulas naming the
// sheet, or naming the new name before it existed, are rewritten.
func (e *Engine) RenameSheet(sheet, newName string) error {
	ws, err := e.worksheet(sheet)
	if err != nil {
		return err
	}
	if err := ValidateSheetName(newName); err != nil {
		return err
	}
	if other, taken := e.s.worksheets.GetWorksheetByName(newName); taken && other != ws {
		return NewApplicationError(AlreadyExists, fmt.Sprintf("sheet %q already exists", newName))
	}
	oldName := ws.Name()
	if oldName == newName {
		return nil
	}

	ids := union(e.s.formulas.GetFormulasUsingSheetName(oldName), e.s.formulas.GetFormulasUsingSheetName(newName))
	var cells []CellAddress
	for _, id := range ids {
		cells = append(cells, e.s.formulas.GetCellsUsingFormula(id)...)
	}
	e.s.worksheets.RenameWorksheet(ws.ID(), newName)
	e.programs.Purge()

	for _, cell := range cells {
		e.rewriteFormula(cell)
	}
	mentions := func(ast *Ast) bool {
		for _, name := range sheetNamesIn(ast) {
			if foldKey(name) == foldKey(oldName) || foldKey(name) == foldKey(newName) {
				return true
			}
		}
		return false
	}
	for _, dn := range e.s.names.GetAllDefinedNames() {
		if dn.Ast == nil || !mentions(dn.Ast) {
			continue
		}
		text := dn.Ast.ToString(SerializeOptions{OmitEquals: true, Style: StyleA1, SheetName: e.s.SheetName})
		ast, err := ParseFormula(text, e.parseOptions(StyleA1, CellAddr{}))
		if err != nil {
			e.log.Errorf("name %s could not be rewritten after renaming %q: %s", dn.Name, oldName, err)
			continue
		}
		e.s.names.DefineName(&DefinedName{Name: dn.Name, Scope: dn.Scope, Formula: ast.Text, Ast: ast})
		e.rederive(e.s.formulas.GetFormulasUsingName(dn.Name))
	}
	e.log.Debugf("sheet %q renamed to %q", oldName, newName)
	return e.afterMutation()
}

// rewriteFormula renders a cell's formula with the current sheet names and
// installs the result
func (e *Engine) rewriteFormula(cell CellAddress) {
	ws, ok := e.s.worksheets.GetWorksheet(cell.WorksheetID)
	if !ok {
		return
	}
	addr := cell.Local()
	c := ws.GetCell(addr)
	if !c.HasFormula() {
		return
	}
	shared, ok := e.s.formulas.GetAST(c.FormulaID)
	if !ok {
		return
	}
	text := shared.ToString(SerializeOptions{OmitEquals: true, Style: StyleA1, Origin: &addr, SheetName: e.s.SheetName})
	ast, err := ParseFormula(text, e.parseOptions(StyleA1, addr))
	if err != nil {
		e.log.Errorf("formula at %s!%s could not be rewritten: %s", ws.Name(), addr, err)
		return
	}
	e.installFormula(ws, addr, ast, ast.Text)
}

// RemoveSheet deletes a sheet with its cells, scoped names and tables.
// formulas elsewhere that read it evaluate to #REF!.
func (e *Engine) RemoveSheet(sheet string) error {
	ws, err := e.worksheet(sheet)
	if err != nil {
		return err
	}
	id, name := ws.ID(), ws.Name()
	readers := union(e.s.formulas.GetFormulasReferencingWorksheet(id), e.s.formulas.GetFormulasUsingSheetName(name))

	for _, cell := range e.formulaCellsOn(id) {
		e.dropFormula(ws, cell.Local())
	}
	rows, cols := ws.Dimensions()
	ws.forEachCell(Rect{End: CellAddr{Row: rows - 1, Col: cols - 1}}, func(_ CellAddr, c *Cell) bool {
		if c.StyleID != 0 {
			e.s.styles.RemoveReference(c.StyleID)
		}
		return true
	})
	for _, n := range e.s.names.dropScope(id) {
		readers = union(readers, e.s.formulas.GetFormulasUsingName(n))
	}
	for key, t := range e.s.tables {
		if t.Sheet == id {
			delete(e.s.tables, key)
		}
	}

	var nodes []CellAddress
	for addr := range e.s.graph.nodes {
		if addr.WorksheetID == id {
			nodes = append(nodes, addr)
		}
	}
	for _, addr := range nodes {
		e.s.graph.MarkDirty(addr)
		e.s.graph.RemoveNode(addr)
	}
	e.s.worksheets.UndefineWorksheet(id)
	e.programs.Purge()
	e.rederive(readers)
	e.log.Debugf("sheet %q removed", name)
	return e.afterMutation()
}

// MoveSheet places a sheet at a tab position. 3-D references span sheets
// by tab order, so formulas using them are recomputed.
func (e *Engine) MoveSheet(sheet string, index int) error {
	ws, err := e.worksheet(sheet)
	if err != nil {
		return err
	}
	if !e.s.worksheets.MoveWorksheet(ws.ID(), index) {
		return NewApplicationError(OutOfRange,
			fmt.Sprintf("tab position %d is outside 0..%d", index, e.s.worksheets.CountDefined()-1))
	}
	e.rederive(e.formulasWith3D())
	return e.afterMutation()
}

func (e *Engine) formulasWith3D() []uint32 {
	var out []uint32
	for _, id := range e.s.formulas.FormulaIDs() {
		ast, _ := e.s.formulas.GetAST(id)
		found := false
		walk(ast.Root, func(n Node) bool {
			switch x := n.(type) {
			case *CellRefNode:
				found = found || x.Sheet.Is3D()
			case *RangeNode:
				found = found || x.Sheet.Is3D()
			}
			return !found
		})
		if found {
			out = append(out, id)
		}
	}
	return out
}

// SheetNames returns the display names in tab order
func (e *Engine) SheetNames() []string {
	order := e.s.worksheets.Order()
	out := make([]string, 0, len(order))
	for _, id := range order {
		name, _ := e.s.SheetName(id)
		out = append(out, name)
	}
	return out
}

// UndefinedSheetNames lists sheet names formulas use that no sheet has
func (e *Engine) UndefinedSheetNames() []string {
	return e.s.worksheets.GetAllUndefinedWorksheets()
}

// DefineName binds a name, workbook-wide when scope is empty, to a
// formula. formulas already using the name are recomputed.
func (e *Engine) DefineName(name, scope, formula string) error {
	if err := validateName(name); err != nil {
		return err
	}
	var scopeID SheetID
	if scope != "" {
		ws, err := e.worksheet(scope)
		if err != nil {
			return err
		}
		scopeID = ws.ID()
	}
	if _, clash := e.s.Table(name); clash {
		return NewApplicationError(AlreadyExists, fmt.Sprintf("%q is already a table name", name))
	}
	ast, err := ParseFormula(formula, e.parseOptions(StyleA1, CellAddr{}))
	if err != nil {
		return wrapApplicationError(InvalidArgument, err, "name %s", name)
	}
	e.s.names.DefineName(&DefinedName{Name: name, Scope: scopeID, Formula: ast.Text, Ast: ast})
	e.rederive(e.s.formulas.GetFormulasUsingName(name))
	return e.afterMutation()
}

// RemoveName deletes a defined name. formulas using it show #NAME?.
func (e *Engine) RemoveName(name, scope string) error {
	var scopeID SheetID
	if scope != "" {
		ws, err := e.worksheet(scope)
		if err != nil {
			return err
		}
		scopeID = ws.ID()
	}
	if !e.s.names.IsNameDefined(name, scopeID) {
		return NewApplicationError(NotFound, fmt.Sprintf("name %q is not defined", name))
	}
	e.s.names.UndefineName(name, scopeID)
	e.rederive(e.s.formulas.GetFormulasUsingName(name))
	return e.afterMutation()
}

// DefinedNames lists the defined names by scope, then name
func (e *Engine) DefinedNames() []DefinedName {
	var out []DefinedName
	for _, dn := range e.s.names.GetAllDefinedNames() {
		out = append(out, *dn)
	}
	return out
}

// UndefinedNames lists names formulas use that are not defined
func (e *Engine) UndefinedNames() []string {
	return e.s.names.GetAllUndefinedNames()
}

// SetSheetTables replaces the tables of a sheet. table names are unique
// in the workbook and tables of one sheet may not overlap.
func (e *Engine) SetSheetTables(sheet string, tables []Table) error {
	ws, err := e.worksheet(sheet)
	if err != nil {
		return err
	}
	rows, cols := ws.Dimensions()
	seen := make(map[string]struct{}, len(tables))
	placed := make([]*Table, 0, len(tables))
	for i := range tables {
		t := tables[i]
		t.Sheet = ws.ID()
		t.Columns = slices.Clone(t.Columns)
		if err := t.validate(); err != nil {
			return err
		}
		if t.Range.End.Row >= rows || t.Range.End.Col >= cols {
			return NewApplicationError(OutOfRange, fmt.Sprintf("table %s extends past the sheet", t.Name))
		}
		key := foldKey(t.Name)
		if _, dup := seen[key]; dup {
			return NewApplicationError(AlreadyExists, fmt.Sprintf("table %s is listed twice", t.Name))
		}
		if other, ok := e.s.tables[key]; ok && other.Sheet != ws.ID() {
			return NewApplicationError(AlreadyExists, fmt.Sprintf("table %s already exists on another sheet", t.Name))
		}
		if e.s.names.IsNameDefined(t.Name, 0) {
			return NewApplicationError(AlreadyExists, fmt.Sprintf("%q is already a defined name", t.Name))
		}
		for _, p := range placed {
			if _, overlap := p.Range.Intersect(t.Range); overlap {
				return NewApplicationError(InvalidArgument, fmt.Sprintf("tables %s and %s overlap", p.Name, t.Name))
			}
		}
		seen[key] = struct{}{}
		placed = append(placed, &t)
	}

	for key, t := range e.s.tables {
		if t.Sheet == ws.ID() {
			delete(e.s.tables, key)
		}
	}
	for _, t := range placed {
		e.s.tables[foldKey(t.Name)] = t
	}
	ws.setTables(placed)
	e.rederive(e.s.formulas.GetFormulasUsingTables())
	return e.afterMutation()
}

// SheetTables returns copies of a sheet's tables ordered by name
func (e *Engine) SheetTables(sheet string) ([]Table, error) {
	ws, err := e.worksheet(sheet)
	if err != nil {
		return nil, err
	}
	var out []Table
	for _, t := range ws.Tables() {
		c := *t
		c.Columns = slices.Clone(t.Columns)
		out = append(out, c)
	}
	return out, nil
}

// SetSheetDimensions overrides the row and column count of a sheet.
// whole-row and whole-column references follow the new size.
func (e *Engine) SetSheetDimensions(sheet string, rows, cols uint32) error {
	ws, err := e.worksheet(sheet)
	if err != nil {
		return err
	}
	if rows == 0 || cols == 0 || rows > DefaultMaxRows || cols > DefaultMaxCols {
		return NewApplicationError(InvalidArgument,
			fmt.Sprintf("sheet dimensions %dx%d are outside 1x1..%dx%d", rows, cols, DefaultMaxRows, DefaultMaxCols))
	}
	ws.SetDimensions(rows, cols)
	ids := e.s.formulas.GetFormulasReferencingWorksheet(ws.ID())
	for _, cell := range e.formulaCellsOn(ws.ID()) {
		if id, ok := e.s.formulas.GetFormulaAtCell(cell); ok {
			ids = union(ids, []uint32{id})
		}
	}
	e.rederive(ids)
	e.s.graph.MarkSheetDirty(ws.ID())
	return e.afterMutation()
}

// SetSheetBacking attaches a columnar block to a sheet with its first
// element at origin. stored cells shadow the block.
func (e *Engine) SetSheetBacking(sheet string, origin CellAddr, b ColumnarBacking) error {
	ws, err := e.worksheet(sheet)
	if err != nil {
		return err
	}
	ws.SetBacking(origin, b)
	e.s.graph.MarkSheetDirty(ws.ID())
	return e.afterMutation()
}

// SetRowOutline sets the grouping and visibility of a row. SUBTOTAL and
// AGGREGATE skip hidden rows, so readers of the sheet are recomputed.
func (e *Engine) SetRowOutline(sheet string, row uint32, o Outline) error {
	ws, err := e.worksheet(sheet)
	if err != nil {
		return err
	}
	if ws.RowOutline(row) == o {
		return nil
	}
	ws.SetRowOutline(row, o)
	e.s.graph.MarkSheetDirty(ws.ID())
	return e.afterMutation()
}

func (e *Engine) SetColumnOutline(sheet string, col uint32, o Outline) error {
	ws, err := e.worksheet(sheet)
	if err != nil {
		return err
	}
	ws.SetColumnOutline(col, o)
	return nil
}

// SetSheetView stores host view state with a sheet
func (e *Engine) SetSheetView(sheet string, v ViewState) error {
	ws, err := e.worksheet(sheet)
	if err != nil {
		return err
	}
	ws.SetView(v)
	return nil
}

func (e *Engine) SheetView(sheet string) (ViewState, error) {
	ws, err := e.worksheet(sheet)
	if err != nil {
		return ViewState{}, err
	}
	return ws.View(), nil
}

// union merges sorted id lists
func union(a, b []uint32) []uint32 {
	out := append(slices.Clone(a), b...)
	slices.Sort(out)
	return slices.Compact(out)
}
