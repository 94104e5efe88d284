package calc

import (
	"context"
	"fmt"
	"runtime"
	"slices"
	"strings"

	"github.com/tliron/commonlog"
)

// Engine is a workbook: sheets in tab order, defined names, tables, styles
// and the calculation state that ties them together. it has a single
// writer; recalculation may fan thread-safe work out to goroutines.
type Engine struct {
	s        *Storage
	settings CalcSettings
	locale   *LocaleConfig
	clock    Clock
	random   RandomGenerator
	log      commonlog.Logger
	workers  int
	programs *ProgramCache
	bytecode bool
	// circular holds the cells seeded with 0 as part of a cycle
	circular map[CellAddress]struct{}
}

type engineOptions struct {
	clock     Clock
	random    RandomGenerator
	locale    *LocaleConfig
	log       commonlog.Logger
	workers   int
	cacheSize int
	settings  CalcSettings
	bytecode  bool
}

// Option configures an Engine
type Option func(*engineOptions)

// WithClock sets the clock NOW and TODAY read
func WithClock(c Clock) Option {
	return func(o *engineOptions) { o.clock = c }
}

// WithRandom sets the source RAND, RANDBETWEEN and RANDARRAY draw from
func WithRandom(r RandomGenerator) Option {
	return func(o *engineOptions) { o.random = r }
}

func WithLocale(l *LocaleConfig) Option {
	return func(o *engineOptions) { o.locale = l }
}

func WithLogger(l commonlog.Logger) Option {
	return func(o *engineOptions) { o.log = l }
}

// WithWorkers bounds the goroutines one recalculation level uses. 1 runs
// everything on the calling goroutine.
func WithWorkers(n int) Option {
	return func(o *engineOptions) { o.workers = n }
}

func WithProgramCacheSize(n int) Option {
	return func(o *engineOptions) { o.cacheSize = n }
}

// WithCalcSettings replaces the default calculation settings. invalid
// settings are ignored; SetCalcSettings reports them.
func WithCalcSettings(cs CalcSettings) Option {
	return func(o *engineOptions) {
		if cs.validate() == nil {
			o.settings = cs
		}
	}
}

// WithBytecode turns the bytecode compiler on or off
func WithBytecode(enabled bool) Option {
	return func(o *engineOptions) { o.bytecode = enabled }
}

// NewEngine creates an empty workbook
func NewEngine(opts ...Option) *Engine {
	o := engineOptions{
		locale:   DefaultLocale(),
		clock:    &WallClock{},
		random:   NewDefaultRandomGenerator(),
		log:      defaultLogger(),
		workers:  runtime.GOMAXPROCS(0),
		settings: DefaultCalcSettings(),
		bytecode: true,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.workers < 1 {
		o.workers = 1
	}
	// the size is normalized, so construction cannot fail
	programs, _ := NewProgramCache(o.cacheSize)
	return &Engine{
		s:        newStorage(),
		settings: o.settings,
		locale:   o.locale,
		clock:    o.clock,
		random:   o.random,
		log:      o.log,
		workers:  o.workers,
		programs: programs,
		bytecode: o.bytecode,
		circular: make(map[CellAddress]struct{}),
	}
}

// worksheet finds a sheet by host key, then by display name
func (e *Engine) worksheet(sheet string) (*Worksheet, error) {
	if ws, ok := e.s.worksheets.GetWorksheetByKey(sheet); ok {
		return ws, nil
	}
	if ws, ok := e.s.worksheets.GetWorksheetByName(sheet); ok {
		return ws, nil
	}
	return nil, NewApplicationError(NotFound, fmt.Sprintf("sheet %q does not exist", sheet))
}

func checkBounds(ws *Worksheet, addr CellAddr) error {
	rows, cols := ws.Dimensions()
	if addr.Row >= rows || addr.Col >= cols {
		return NewApplicationError(OutOfRange,
			fmt.Sprintf("%s is outside sheet %q (%d rows, %d columns)", addr, ws.Name(), rows, cols))
	}
	return nil
}

func (e *Engine) parseOptions(style RefStyle, origin CellAddr) ParseOptions {
	return ParseOptions{
		Style:        style,
		Origin:       origin,
		Locale:       e.locale,
		ResolveSheet: e.s.worksheets.GetWorksheetID,
	}
}

// afterMutation runs the automatic recalculation
func (e *Engine) afterMutation() error {
	if e.settings.Mode == CalcManual {
		return nil
	}
	return e.recalculate(context.Background(), e.workers)
}

// SetCellValue stores a constant. ints and float32 are widened; arrays,
// references and lambdas cannot be stored.
func (e *Engine) SetCellValue(sheet string, addr CellAddr, v Value) error {
	ws, err := e.worksheet(sheet)
	if err != nil {
		return err
	}
	if err := checkBounds(ws, addr); err != nil {
		return err
	}
	v, err = normalizeInput(v)
	if err != nil {
		return err
	}
	v = e.displayPrecision(ws, addr, v)

	e.dropFormula(ws, addr)
	if v == nil {
		ws.ClearContents(addr)
	} else {
		ws.SetValue(addr, v)
	}
	e.markChanged(ws, addr)
	return e.afterMutation()
}

func normalizeInput(v Value) (Value, error) {
	switch x := v.(type) {
	case nil, float64, string, bool, *SpreadsheetError, *Entity, *Record:
		return v, nil
	case int:
		return float64(x), nil
	case int32:
		return float64(x), nil
	case int64:
		return float64(x), nil
	case uint32:
		return float64(x), nil
	case float32:
		return float64(x), nil
	}
	return nil, NewApplicationError(InvalidArgument, fmt.Sprintf("a %s cannot be stored in a cell", valueKind(v)))
}

// markChanged dirties what reads a cell, including spills whose block now
// holds or no longer holds content
func (e *Engine) markChanged(ws *Worksheet, addr CellAddr) {
	e.s.graph.MarkDirty(globalAddress(ws.ID(), addr))
	for _, origin := range e.s.spillOriginsCovering(ws.ID(), addr) {
		e.s.graph.MarkDirty(origin)
	}
}

// ClearCell removes the value and formula of a cell, keeping its style
func (e *Engine) ClearCell(sheet string, addr CellAddr) error {
	return e.SetCellValue(sheet, addr, nil)
}

// SetCellFormula parses an A1 formula, with or without the leading '='.
// on a parse error the cell is left unchanged.
func (e *Engine) SetCellFormula(sheet string, addr CellAddr, formula string) error {
	return e.setFormula(sheet, addr, formula, StyleA1)
}

// SetCellFormulaR1C1 parses an R1C1 formula. the stored text is its A1
// rendering.
func (e *Engine) SetCellFormulaR1C1(sheet string, addr CellAddr, formula string) error {
	return e.setFormula(sheet, addr, formula, StyleR1C1)
}

func (e *Engine) setFormula(sheet string, addr CellAddr, text string, style RefStyle) error {
	ws, err := e.worksheet(sheet)
	if err != nil {
		return err
	}
	if err := checkBounds(ws, addr); err != nil {
		return err
	}
	ast, err := ParseFormula(text, e.parseOptions(style, addr))
	if err != nil {
		return wrapApplicationError(InvalidArgument, err, "formula at %s!%s", ws.Name(), addr)
	}
	stored := ast.Text
	if style == StyleR1C1 {
		stored = ast.ToString(SerializeOptions{OmitEquals: true, Style: StyleA1, SheetName: e.s.SheetName})
	}
	e.installFormula(ws, addr, ast, stored)
	return e.afterMutation()
}

// installFormula attaches a parsed formula to a cell. formulas with the
// same R1C1 key share one tree and one program.
func (e *Engine) installFormula(ws *Worksheet, addr CellAddr, ast *Ast, text string) {
	cell := globalAddress(ws.ID(), addr)
	key := formulaKeyOf(ast, addr, e.s.SheetName)
	e.dropFormula(ws, addr)

	id, added := e.s.formulas.InternFormula(key, ast, cell)
	if added {
		var held []SheetID
		for _, name := range sheetNamesIn(ast) {
			held = append(held, e.s.worksheets.InternWorksheet(name))
		}
		e.s.formulas.SetSheetRefs(id, held)
	}
	ws.SetFormula(addr, text, id)
	shared, _ := e.s.formulas.GetAST(id)
	e.deriveDependencies(cell, id, shared)
	e.markChanged(ws, addr)
}

// sheetNamesIn lists the sheet names a formula spells out, first use first
func sheetNamesIn(ast *Ast) []string {
	seen := make(map[string]struct{})
	var out []string
	note := func(s *SheetRef) {
		if s == nil || s.IsExternal() {
			return
		}
		for _, name := range []string{s.Name, s.LastName} {
			if name == "" {
				continue
			}
			if _, dup := seen[foldKey(name)]; !dup {
				seen[foldKey(name)] = struct{}{}
				out = append(out, name)
			}
		}
	}
	walk(ast.Root, func(n Node) bool {
		switch x := n.(type) {
		case *CellRefNode:
			note(x.Sheet)
		case *RangeNode:
			note(x.Sheet)
		case *NameNode:
			note(x.Sheet)
		}
		return true
	})
	return out
}

// deriveDependencies recomputes the precedents of one formula cell
func (e *Engine) deriveDependencies(cell CellAddress, id uint32, ast *Ast) {
	info := collectDependencies(e.s, ast, cell.WorksheetID, cell.Local())
	e.s.graph.UpdateCellDependencies(cell, info.precedents, info.volatile)
	for _, name := range e.s.formulas.TrackDependencies(id, info) {
		e.s.names.InternName(name)
	}
}

// dropFormula detaches the formula of a cell, releasing what it held. the
// cell's value is left for the caller to replace.
func (e *Engine) dropFormula(ws *Worksheet, addr CellAddr) {
	c := ws.GetCell(addr)
	if !c.HasFormula() {
		return
	}
	cell := globalAddress(ws.ID(), addr)
	id := c.FormulaID
	names := e.s.formulas.NamesUsed(id)
	sheets := e.s.formulas.SheetRefs(id)
	if e.s.formulas.RemoveCellReference(id, cell) {
		for _, name := range names {
			e.s.names.ReleaseName(name)
		}
		for _, sheet := range sheets {
			e.s.worksheets.RemoveReference(sheet)
		}
	}
	e.s.graph.RemoveFormula(cell)
	delete(e.circular, cell)
	e.markOutcome(ws.ID(), e.s.clearSpill(ws.ID(), addr))
	ws.ClearContents(addr)
}

// rederive recomputes the precedents of every cell using the formulas and
// marks them dirty
func (e *Engine) rederive(ids []uint32) {
	for _, id := range ids {
		ast, ok := e.s.formulas.GetAST(id)
		if !ok {
			continue
		}
		for _, cell := range e.s.formulas.GetCellsUsingFormula(id) {
			e.deriveDependencies(cell, id, ast)
			e.s.graph.MarkDirty(cell)
		}
	}
}

// GetCellValue returns the value a cell shows: its constant or formula
// result, a spilled element, the columnar backing or the external
// provider
func (e *Engine) GetCellValue(sheet string, addr CellAddr) (Value, error) {
	ws, err := e.worksheet(sheet)
	if err != nil {
		return nil, err
	}
	return e.s.cellValue(ws, addr), nil
}

// GetCellFormula returns the formula of a cell with its leading '='
func (e *Engine) GetCellFormula(sheet string, addr CellAddr) (string, bool, error) {
	ws, err := e.worksheet(sheet)
	if err != nil {
		return "", false, err
	}
	c := ws.GetCell(addr)
	if !c.HasFormula() {
		return "", false, nil
	}
	return "=" + c.Formula, true, nil
}

// GetCellFormulaR1C1 renders the formula of a cell in R1C1 notation
func (e *Engine) GetCellFormulaR1C1(sheet string, addr CellAddr) (string, bool, error) {
	ws, err := e.worksheet(sheet)
	if err != nil {
		return "", false, err
	}
	c := ws.GetCell(addr)
	if !c.HasFormula() {
		return "", false, nil
	}
	ast, ok := e.s.formulas.GetAST(c.FormulaID)
	if !ok {
		return "", false, NewApplicationError(Internal, fmt.Sprintf("formula %d has no tree", c.FormulaID))
	}
	return ast.ToString(SerializeOptions{Style: StyleR1C1, Origin: &addr, SheetName: e.s.SheetName}), true, nil
}

// SpillRange returns the placed block of a dynamic array formula
func (e *Engine) SpillRange(sheet string, addr CellAddr) (Rect, bool) {
	ws, err := e.worksheet(sheet)
	if err != nil {
		return Rect{}, false
	}
	return e.s.spills.rectOf(globalAddress(ws.ID(), addr))
}

// Recalculate evaluates every dirty cell, fanning thread-safe cells of a
// level out to the configured workers. a cancelled context stops the pass
// between cells; finished cells keep their results and the rest stay dirty.
func (e *Engine) Recalculate(ctx context.Context) error {
	return e.recalculate(ctx, e.workers)
}

// RecalculateSingleThreaded evaluates every dirty cell on the calling
// goroutine
func (e *Engine) RecalculateSingleThreaded(ctx context.Context) error {
	return e.recalculate(ctx, 1)
}

func (e *Engine) HasDirtyCells() bool {
	return e.s.graph.DirtyCount() > 0
}

// IsDirty reports whether a formula cell waits for recalculation
func (e *Engine) IsDirty(sheet string, addr CellAddr) bool {
	ws, err := e.worksheet(sheet)
	if err != nil {
		return false
	}
	return e.s.graph.IsCellDirty(globalAddress(ws.ID(), addr))
}

// CircularReferenceCount is the number of cells the last recalculation
// found in a cycle and seeded with 0
func (e *Engine) CircularReferenceCount() int {
	return len(e.circular)
}

// SetCalcSettings replaces the calculation settings. a change to the
// precision mode or the date system dirties every formula; switching to
// automatic mode recalculates.
func (e *Engine) SetCalcSettings(cs CalcSettings) error {
	if err := cs.validate(); err != nil {
		return err
	}
	old := e.settings
	e.settings = cs
	if old.FullPrecision != cs.FullPrecision || old.DateSystem != cs.DateSystem ||
		old.Iterative != cs.Iterative {
		e.s.graph.MarkAllFormulasDirty()
	}
	if cs.Mode == CalcAuto && e.HasDirtyCells() {
		return e.afterMutation()
	}
	return nil
}

func (e *Engine) CalcSettings() CalcSettings {
	return e.settings
}

// SetExternalValueProvider installs the source of values for cells the
// engine does not store. nil removes it.
func (e *Engine) SetExternalValueProvider(p ExternalValueProvider) error {
	e.s.provider = p
	e.s.graph.MarkAllFormulasDirty()
	return e.afterMutation()
}

// InternStyle returns the id of a style, adding it on first use
func (e *Engine) InternStyle(style CellStyle) (uint32, error) {
	return e.s.styles.Intern(style)
}

// SetCellStyleID assigns an interned style to a cell. with precision as
// displayed, the cell's constant is rounded to the new format.
func (e *Engine) SetCellStyleID(sheet string, addr CellAddr, styleID uint32) error {
	ws, err := e.worksheet(sheet)
	if err != nil {
		return err
	}
	if err := checkBounds(ws, addr); err != nil {
		return err
	}
	if styleID != 0 && !e.s.styles.AddReference(styleID) {
		return NewApplicationError(NotFound, fmt.Sprintf("style %d is not interned", styleID))
	}
	if old := ws.SetStyle(addr, styleID); old != 0 {
		e.s.styles.RemoveReference(old)
	}
	c := ws.GetCell(addr)
	switch {
	case c == nil:
	case c.HasFormula():
		e.s.graph.MarkDirty(globalAddress(ws.ID(), addr))
	case !e.settings.FullPrecision && c.Value != nil:
		ws.SetValue(addr, e.displayPrecision(ws, addr, c.Value))
		e.markChanged(ws, addr)
	default:
		// CELL("format") and friends read the style
		e.markChanged(ws, addr)
	}
	return e.afterMutation()
}

// Precedents lists what a formula cell reads, in formula order
func (e *Engine) Precedents(sheet string, addr CellAddr) ([]Precedent, error) {
	ws, err := e.worksheet(sheet)
	if err != nil {
		return nil, err
	}
	return e.s.graph.Precedents(globalAddress(ws.ID(), addr)), nil
}

// Dependents lists the formula cells that read a cell directly
func (e *Engine) Dependents(sheet string, addr CellAddr) ([]CellAddress, error) {
	ws, err := e.worksheet(sheet)
	if err != nil {
		return nil, err
	}
	cell := globalAddress(ws.ID(), addr)
	set := make(map[CellAddress]struct{})
	e.s.graph.forEachDependent(cell, func(d CellAddress) { set[d] = struct{}{} })
	return sortedAddresses(set), nil
}

// DebugEvaluate evaluates a formula cell with tracing on. stored results
// are not changed.
func (e *Engine) DebugEvaluate(sheet string, addr CellAddr) (*DebugTrace, error) {
	ws, err := e.worksheet(sheet)
	if err != nil {
		return nil, err
	}
	c := ws.GetCell(addr)
	if !c.HasFormula() {
		return nil, NewApplicationError(FailedPrecondition, fmt.Sprintf("%s!%s has no formula", ws.Name(), addr))
	}
	ast, ok := e.s.formulas.GetAST(c.FormulaID)
	if !ok {
		return nil, NewApplicationError(Internal, fmt.Sprintf("formula %d has no tree", c.FormulaID))
	}
	ec := newEvalContext(context.Background(), e.locale, e.settings.DateSystem == 1904, e.clock, e.random)
	trace := traceFormula(e.s, ec, ws.ID(), addr, ast)
	trace.Formula = c.Formula
	return trace, nil
}

// BytecodeCompileStats compiles every formula not compiled yet and counts
// how the formula cells run
func (e *Engine) BytecodeCompileStats() CompileStats {
	stats := CompileStats{Causes: make(map[string]int)}
	for _, r := range e.CompileReports() {
		stats.FormulaCells++
		if r.Compiled {
			stats.Compiled++
			continue
		}
		stats.Fallbacks++
		stats.Causes[r.Cause]++
	}
	return stats
}

// CompileReports returns the compile outcome of each formula cell in
// sheet, row, column order. with bytecode disabled nothing compiles.
func (e *Engine) CompileReports() []CompileReport {
	var out []CompileReport
	for _, cell := range e.s.graph.FormulaCells() {
		id, ok := e.s.formulas.GetFormulaAtCell(cell)
		if !ok {
			continue
		}
		name, _ := e.s.SheetName(cell.WorksheetID)
		r := CompileReport{Sheet: name, Cell: cell.Local()}
		if e.bytecode {
			if ast, ok := e.s.formulas.GetAST(id); ok {
				e.program(id, ast)
			}
			cause, _ := e.s.formulas.CompileResult(id)
			r.Compiled, r.Cause = cause == "", cause
		} else {
			r.Cause = "bytecode disabled"
		}
		out = append(out, r)
	}
	return out
}

// BytecodeProgramCount is the number of programs in the cache
func (e *Engine) BytecodeProgramCount() int {
	return e.programs.Len()
}

// SetBytecodeEnabled switches between the compiler and the interpreter.
// results are identical either way.
func (e *Engine) SetBytecodeEnabled(enabled bool) {
	e.bytecode = enabled
	if !enabled {
		e.programs.Purge()
	}
}

// Set is a convenience writer for "Sheet!A1" addresses. text starting
// with '=' is a formula; a missing sheet is created.
func (e *Engine) Set(address string, v Value) error {
	sheet, addr, err := e.splitAddress(address, true)
	if err != nil {
		return err
	}
	if text, ok := v.(string); ok && strings.HasPrefix(text, "=") {
		return e.SetCellFormula(sheet, addr, text)
	}
	return e.SetCellValue(sheet, addr, v)
}

// Get is a convenience reader for "Sheet!A1" addresses
func (e *Engine) Get(address string) (Value, error) {
	sheet, addr, err := e.splitAddress(address, false)
	if err != nil {
		return nil, err
	}
	return e.GetCellValue(sheet, addr)
}

// splitAddress separates "Sheet!A1" or "'My Sheet'!A1". without a sheet
// the first sheet in tab order is used.
func (e *Engine) splitAddress(address string, create bool) (string, CellAddr, error) {
	sheet, cell := "", address
	if i := strings.LastIndexByte(address, '!'); i >= 0 {
		sheet, cell = address[:i], address[i+1:]
		if len(sheet) >= 2 && sheet[0] == '\'' && sheet[len(sheet)-1] == '\'' {
			sheet = strings.ReplaceAll(sheet[1:len(sheet)-1], "''", "'")
		}
		if sheet == "" {
			return "", CellAddr{}, NewApplicationError(InvalidArgument, fmt.Sprintf("invalid address %q", address))
		}
	}
	addr, err := ParseCellAddr(cell)
	if err != nil {
		return "", CellAddr{}, wrapApplicationError(InvalidArgument, err, "invalid address %q", address)
	}
	if sheet == "" {
		order := e.s.worksheets.Order()
		if len(order) == 0 {
			return "", CellAddr{}, NewApplicationError(FailedPrecondition, "workbook has no sheets")
		}
		sheet, _ = e.s.SheetName(order[0])
		return sheet, addr, nil
	}
	if _, err := e.worksheet(sheet); err != nil {
		if !create {
			return "", CellAddr{}, err
		}
		if err := e.EnsureSheetWithDisplayName(sheet, sheet); err != nil {
			return "", CellAddr{}, err
		}
	}
	return sheet, addr, nil
}

// formulaCellsOn lists the formula cells of one sheet
func (e *Engine) formulaCellsOn(sheet SheetID) []CellAddress {
	cells := e.s.graph.FormulaCells()
	return slices.DeleteFunc(cells, func(c CellAddress) bool { return c.WorksheetID != sheet })
}
