package calc

import (
	"context"
	"fmt"
	"math"
	"strings"

	"golang.org/x/sync/errgroup"
)

// CalcMode selects when recalculation runs
type CalcMode uint8

const (
	// CalcAuto recalculates after every mutation
	CalcAuto CalcMode = iota
	// CalcManual only marks cells dirty; Recalculate evaluates them
	CalcManual
)

func (m CalcMode) String() string {
	if m == CalcManual {
		return "manual"
	}
	return "auto"
}

// MarshalText renders the mode for configuration files
func (m CalcMode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalText reads "auto" or "manual"
func (m *CalcMode) UnmarshalText(text []byte) error {
	switch strings.ToLower(string(text)) {
	case "auto", "automatic":
		*m = CalcAuto
	case "manual":
		*m = CalcManual
	default:
		return fmt.Errorf("unknown calculation mode %q", text)
	}
	return nil
}

// IterativeSettings controls how circular references are resolved
type IterativeSettings struct {
	Enabled       bool    `toml:"enabled"`
	MaxIterations int     `toml:"max_iterations"`
	MaxChange     float64 `toml:"max_change"`
}

// CalcSettings are the workbook calculation options
type CalcSettings struct {
	Mode      CalcMode          `toml:"mode"`
	Iterative IterativeSettings `toml:"iterative"`
	// FullPrecision off rounds numbers to their displayed precision
	FullPrecision bool `toml:"full_precision"`
	// DateSystem is 1900 or 1904
	DateSystem int `toml:"date_system"`
	// PrecisionHook overrides display rounding when FullPrecision is off
	PrecisionHook PrecisionHook `toml:"-"`
}

// DefaultCalcSettings returns Excel's defaults
func DefaultCalcSettings() CalcSettings {
	return CalcSettings{
		Mode:          CalcAuto,
		Iterative:     IterativeSettings{MaxIterations: 100, MaxChange: 0.001},
		FullPrecision: true,
		DateSystem:    1900,
	}
}

func (cs *CalcSettings) validate() error {
	if cs.DateSystem == 0 {
		cs.DateSystem = 1900
	}
	if cs.DateSystem != 1900 && cs.DateSystem != 1904 {
		return NewApplicationError(InvalidArgument, fmt.Sprintf("date system must be 1900 or 1904, got %d", cs.DateSystem))
	}
	if cs.Iterative.MaxIterations < 0 || cs.Iterative.MaxIterations > 32767 {
		return NewApplicationError(InvalidArgument, fmt.Sprintf("max iterations %d is out of range", cs.Iterative.MaxIterations))
	}
	if cs.Iterative.MaxIterations == 0 {
		cs.Iterative.MaxIterations = 100
	}
	if cs.Iterative.MaxChange < 0 || math.IsNaN(cs.Iterative.MaxChange) {
		return NewApplicationError(InvalidArgument, "max change must not be negative")
	}
	return nil
}

// maxRecalcPasses bounds the passes one recalculation makes while spill
// placements keep changing
const maxRecalcPasses = 64

// cellJob is one formula cell prepared for evaluation. the program is
// looked up before the job is handed to a worker.
type cellJob struct {
	addr CellAddress
	ws   *Worksheet
	ast  *Ast
	prog *Program
}

// eval computes the cell's value. cancelled results must be discarded.
func (j *cellJob) eval(res ValueResolver, ec *evalContext) (Value, bool) {
	ev := NewEvaluator(res, ec, j.addr.WorksheetID, j.addr.Local())
	var v Value
	if j.prog != nil {
		v = ev.Run(j.prog)
	} else {
		v = ev.Evaluate(j.ast)
	}
	return v, ev.Cancelled()
}

// recalculate drains the dirty set. workers above one evaluate the
// thread-safe cells of each level concurrently.
func (e *Engine) recalculate(ctx context.Context, workers int) error {
	if ctx == nil {
		ctx = context.Background()
	}
	g := e.s.graph
	ec := newEvalContext(ctx, e.locale, e.settings.DateSystem == 1904, e.clock, e.random)
	g.MarkAllVolatileDirty()

	for pass := 0; g.DirtyCount() > 0; pass++ {
		if pass == maxRecalcPasses {
			e.log.Warningf("recalculation stopped after %d passes with %d cells dirty", pass, g.DirtyCount())
			return nil
		}
		order := g.CalcOrderForDirty()
		e.log.Debugf("recalc pass %d: %d steps, %d cycles", pass, len(order.Steps), len(order.Cycles))
		if err := e.runOrder(ec, order, workers); err != nil {
			if ctx.Err() != nil {
				e.log.Infof("recalculation cancelled with %d cells dirty", g.DirtyCount())
			}
			return err
		}
	}
	return nil
}

func (e *Engine) runOrder(ec *evalContext, order CalcOrder, workers int) error {
	steps := order.Steps
	for i := 0; i < len(steps); {
		j := i
		for j < len(steps) && steps[j].Level == steps[i].Level {
			j++
		}
		if err := e.runLevel(ec, steps[i:j], workers); err != nil {
			return err
		}
		i = j
	}
	return nil
}

// runLevel evaluates steps that do not read each other. parallel results
// are computed up front and applied in step order; a result computed
// before an earlier step of the level changed a spill is recomputed so
// the outcome matches a single-threaded run.
func (e *Engine) runLevel(ec *evalContext, steps []CalcStep, workers int) error {
	jobs := make([]*cellJob, len(steps))
	var parallel []int
	for i, step := range steps {
		if step.Cyclic {
			continue
		}
		job, ok := e.prepare(step.Cells[0])
		if !ok {
			e.s.graph.ClearDirty(step.Cells[0])
			continue
		}
		jobs[i] = job
		if workers > 1 && e.s.formulas.IsThreadSafe(e.formulaID(job)) {
			parallel = append(parallel, i)
		}
	}

	results := make([]Value, len(steps))
	cancelled := make([]bool, len(steps))
	ready := make([]bool, len(steps))
	if len(parallel) > 1 {
		var grp errgroup.Group
		grp.SetLimit(workers)
		for _, i := range parallel {
			grp.Go(func() error {
				results[i], cancelled[i] = jobs[i].eval(e.s, ec)
				return nil
			})
		}
		_ = grp.Wait()
		for _, i := range parallel {
			ready[i] = true
		}
	}

	spillChanged := false
	for i, step := range steps {
		if err := ec.ctx.Err(); err != nil {
			return err
		}
		if step.Cyclic {
			changed, err := e.runCycle(ec, step)
			if err != nil {
				return err
			}
			spillChanged = spillChanged || changed
			continue
		}
		job := jobs[i]
		if job == nil {
			continue
		}
		v, stop := results[i], cancelled[i]
		if !ready[i] || spillChanged {
			v, stop = job.eval(e.s, ec)
		}
		if stop {
			return ec.ctx.Err()
		}
		delete(e.circular, job.addr)
		if e.apply(job, v) {
			spillChanged = true
		}
	}
	return nil
}

func (e *Engine) formulaID(job *cellJob) uint32 {
	return job.ws.GetCell(job.addr.Local()).FormulaID
}

// prepare looks up the tree and program of a formula cell
func (e *Engine) prepare(addr CellAddress) (*cellJob, bool) {
	ws, ok := e.s.worksheets.GetWorksheet(addr.WorksheetID)
	if !ok {
		return nil, false
	}
	cell := ws.GetCell(addr.Local())
	if !cell.HasFormula() {
		return nil, false
	}
	ast, ok := e.s.formulas.GetAST(cell.FormulaID)
	if !ok {
		return nil, false
	}
	return &cellJob{addr: addr, ws: ws, ast: ast, prog: e.program(cell.FormulaID, ast)}, true
}

// program returns the compiled form of a formula, compiling it on first
// use. nil means the interpreter runs it.
func (e *Engine) program(id uint32, ast *Ast) *Program {
	if !e.bytecode {
		return nil
	}
	key, _ := e.s.formulas.GetKey(id)
	if p, ok := e.programs.Get(e.s.formulas.ProgramKey(id)); ok && p.Source == string(key) {
		return p
	}
	if cause, known := e.s.formulas.CompileResult(id); known && cause != "" {
		return nil
	}
	p, cause := Compile(ast, string(key))
	e.s.formulas.SetCompileResult(id, cause)
	if p == nil {
		e.log.Debugf("formula %s runs on the interpreter: %s", key, cause)
		return nil
	}
	e.programs.Add(p)
	return p
}

// apply stores a result and reports whether spill placement changed
func (e *Engine) apply(job *cellJob, v Value) bool {
	local := job.addr.Local()
	sheet := job.ws.ID()
	if v == nil {
		v = 0.0
	}
	if arr, ok := v.(*Array); ok && arr.Len() == 0 {
		v = NewSpreadsheetError(ErrorCodeCalc, "empty array")
	}
	v = e.displayPrecision(job.ws, local, v)

	var out spillOutcome
	if arr, ok := v.(*Array); ok {
		out = e.s.placeSpill(job.ws, local, arr)
		v = out.Value
		if isErrorCode(v, ErrorCodeSpill) {
			e.log.Debugf("spill from %s!%s is blocked", job.ws.Name(), local)
		}
	} else {
		out = e.s.clearSpill(sheet, local)
	}
	job.ws.SetFormulaResult(local, v)
	e.s.graph.ClearDirty(job.addr)
	return e.markOutcome(sheet, out)
}

// markOutcome dirties what a spill change affects
func (e *Engine) markOutcome(sheet SheetID, out spillOutcome) bool {
	for _, r := range out.Rects {
		e.s.graph.MarkRectDirty(sheet, r)
	}
	for _, origin := range out.Origins {
		e.s.graph.MarkDirty(origin)
	}
	return len(out.Rects) > 0 || len(out.Origins) > 0
}

func (e *Engine) displayPrecision(ws *Worksheet, addr CellAddr, v Value) Value {
	if e.settings.FullPrecision {
		return v
	}
	c := ws.GetCell(addr)
	if c == nil || c.StyleID == 0 {
		return v
	}
	return applyDisplayPrecision(v, e.s.styles.Format(c.StyleID), e.settings.PrecisionHook)
}

// runCycle resolves one strongly connected group. without iteration every
// member is seeded with 0; with it the members are evaluated in order,
// each from the previous values, until no value moves more than MaxChange.
func (e *Engine) runCycle(ec *evalContext, step CalcStep) (bool, error) {
	if !e.settings.Iterative.Enabled {
		changed := false
		for _, addr := range step.Cells {
			ws, ok := e.s.worksheets.GetWorksheet(addr.WorksheetID)
			if !ok {
				e.s.graph.ClearDirty(addr)
				continue
			}
			e.log.Warningf("circular reference at %s!%s", ws.Name(), addr.Local())
			e.circular[addr] = struct{}{}
			job := &cellJob{addr: addr, ws: ws}
			if e.apply(job, 0.0) {
				changed = true
			}
		}
		return changed, nil
	}

	jobs := make([]*cellJob, 0, len(step.Cells))
	for _, addr := range step.Cells {
		delete(e.circular, addr)
		if job, ok := e.prepare(addr); ok {
			jobs = append(jobs, job)
		} else {
			e.s.graph.ClearDirty(addr)
		}
	}
	changed := false
	limit := e.settings.Iterative.MaxIterations
	for iter := 1; iter <= limit; iter++ {
		delta := 0.0
		for _, job := range jobs {
			if err := ec.ctx.Err(); err != nil {
				return changed, err
			}
			before := job.ws.GetCell(job.addr.Local()).Value
			v, stop := job.eval(e.s, ec)
			if stop {
				return changed, ec.ctx.Err()
			}
			if e.apply(job, v) {
				changed = true
			}
			delta = math.Max(delta, valueDelta(before, job.ws.GetCell(job.addr.Local()).Value))
		}
		if delta <= e.settings.Iterative.MaxChange {
			return changed, nil
		}
	}
	e.log.Noticef("circular reference at %s did not converge in %d iterations", step.Cells[0].Local(), limit)
	return changed, nil
}

// valueDelta measures how far a cell moved between iterations. blanks
// count as 0 and a change of type counts as unbounded.
func valueDelta(before, after Value) float64 {
	if before == nil {
		before = 0.0
	}
	a, ok1 := before.(float64)
	b, ok2 := after.(float64)
	if ok1 && ok2 {
		return math.Abs(a - b)
	}
	if isSameScalar(before, after) {
		return 0
	}
	return math.Inf(1)
}

func isSameScalar(a, b Value) bool {
	switch x := a.(type) {
	case string, bool:
		return a == b
	case *SpreadsheetError:
		y, ok := b.(*SpreadsheetError)
		return ok && x.ErrorCode == y.ErrorCode
	}
	return false
}
