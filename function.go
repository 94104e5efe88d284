package calc

import (
	"math/rand/v2"
	"sort"
	"sync"
	"time"
)

// Clock interface provides time functionality for testing
type Clock interface {
	Now() time.Time
}

// WallClock is the default implementation using system time
type WallClock struct{}

func (w *WallClock) Now() time.Time {
	return time.Now()
}

// FixedClock always reports the same instant
type FixedClock struct {
	Time time.Time
}

func (f *FixedClock) Now() time.Time {
	return f.Time
}

// RandomGenerator interface provides random number generation for testing
type RandomGenerator interface {
	Float64() float64
}

// DefaultRandomGenerator uses the standard library's rand package
type DefaultRandomGenerator struct{}

// NewDefaultRandomGenerator returns the process-wide random source
func NewDefaultRandomGenerator() *DefaultRandomGenerator {
	return &DefaultRandomGenerator{}
}

func (d *DefaultRandomGenerator) Float64() float64 {
	return rand.Float64()
}

// SeededRandomGenerator produces a reproducible sequence
type SeededRandomGenerator struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewSeededRandomGenerator creates a reproducible random source
func NewSeededRandomGenerator(seed uint64) *SeededRandomGenerator {
	return &SeededRandomGenerator{rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

func (s *SeededRandomGenerator) Float64() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rng.Float64()
}

// ArgKind tells the evaluator how to prepare an argument
type ArgKind uint8

const (
	// ArgValue arguments are dereferenced; ranges become arrays
	ArgValue ArgKind = iota
	// ArgRef arguments keep their reference identity (ROW, OFFSET, CELL)
	ArgRef
	// ArgRange arguments keep references so aggregates can iterate them
	// sparsely; arrays are passed through
	ArgRange
	// ArgLambda arguments are passed as evaluated, usually a *Lambda
	ArgLambda
)

// ReturnKind documents what a function produces
type ReturnKind uint8

const (
	ReturnAny ReturnKind = iota
	ReturnNumber
	ReturnText
	ReturnBool
	ReturnArray
	ReturnReference
)

// ArrayMode says whether a function handles arrays itself
type ArrayMode uint8

const (
	// ScalarOnly functions are lifted by the engine over array arguments
	ScalarOnly ArrayMode = iota
	// SupportsArrays functions receive arrays and references unchanged
	SupportsArrays
)

// FunctionFlags carries scheduling and error handling traits
type FunctionFlags uint8

const (
	// FlagThreadSafe functions may be evaluated on worker goroutines
	FlagThreadSafe FunctionFlags = 1 << iota
	// FlagVolatile functions are recalculated on every pass
	FlagVolatile
	// FlagAcceptsErrors functions receive error arguments instead of
	// short-circuiting on them
	FlagAcceptsErrors
)

// variadic marks MaxArgs with no function-specific limit
const variadic = MaxFunctionArgs

// FunctionDef is one entry of the builtin function table
type FunctionDef struct {
	Name    string
	MinArgs int
	MaxArgs int
	// Args lists the kind of each argument. the last RepeatArgs entries
	// (default 1) repeat for further arguments.
	Args       []ArgKind
	RepeatArgs int
	Returns    ReturnKind
	Arrays     ArrayMode
	Flags      FunctionFlags
	Impl       func(fc *FunctionContext, args []Value) Value
	// Special functions receive unevaluated arguments so they can skip the
	// branches they do not need
	Special func(fc *FunctionContext, args []Node) Value
}

// ArgKindAt returns the kind of the i'th argument
func (d *FunctionDef) ArgKindAt(i int) ArgKind {
	if len(d.Args) == 0 {
		return ArgValue
	}
	if i < len(d.Args) {
		return d.Args[i]
	}
	n := max(d.RepeatArgs, 1)
	tail := d.Args[len(d.Args)-n:]
	return tail[(i-len(d.Args))%n]
}

func (d *FunctionDef) acceptsArgCount(n int) bool {
	return n >= d.MinArgs && n <= d.MaxArgs
}

// IsThreadSafe reports whether the function may run on a worker
func (d *FunctionDef) IsThreadSafe() bool {
	return d.Flags&FlagThreadSafe != 0 && d.Flags&FlagVolatile == 0
}

// IsVolatile reports whether the function recalculates every pass
func (d *FunctionDef) IsVolatile() bool {
	return d.Flags&FlagVolatile != 0
}

var functionRegistry = map[string]*FunctionDef{}

// register adds definitions to the function table. it is only called from
// init functions, so the table is immutable once the program runs.
func register(defs ...*FunctionDef) {
	for _, d := range defs {
		d.Name = upperKey(d.Name)
		if d.MaxArgs == 0 && d.MinArgs > 0 {
			d.MaxArgs = d.MinArgs
		}
		if _, dup := functionRegistry[d.Name]; dup {
			panic("duplicate function registration: " + d.Name)
		}
		functionRegistry[d.Name] = d
	}
}

// pure is the flag set of ordinary functions
const pure = FlagThreadSafe

// LookupFunction finds a builtin by name, case-insensitively
func LookupFunction(name string) (*FunctionDef, bool) {
	d, ok := functionRegistry[upperKey(name)]
	return d, ok
}

// FunctionNames lists every registered builtin in sorted order
func FunctionNames() []string {
	names := make([]string, 0, len(functionRegistry))
	for name := range functionRegistry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// invoke runs an implementation on prepared arguments: scalar-only
// functions are lifted over arrays and error arguments short-circuit
// unless the function accepts them. the bytecode VM and the tree walker
// both dispatch through here.
func invoke(fc *FunctionContext, def *FunctionDef, args []Value) Value {
	if def.Arrays == ScalarOnly {
		lift := false
		for i, a := range args {
			if _, ok := a.(*Array); ok && def.ArgKindAt(i) == ArgValue {
				lift = true
				break
			}
		}
		if lift {
			return liftCall(fc, def, args)
		}
	}
	if def.Flags&FlagAcceptsErrors == 0 {
		for i, a := range args {
			if e, ok := a.(*SpreadsheetError); ok && def.ArgKindAt(i) == ArgValue {
				return e
			}
		}
	}
	fc.args = args
	return def.Impl(fc, args)
}

// liftCall repeats a scalar kernel over the broadcast grid of its array
// arguments
func liftCall(fc *FunctionContext, def *FunctionDef, args []Value) Value {
	lifted := make([]Value, len(args))
	positions := make([]int, 0, len(args))
	for i, a := range args {
		if _, ok := a.(*Array); ok && def.ArgKindAt(i) == ArgValue {
			positions = append(positions, i)
		}
	}
	values := make([]Value, len(positions))
	for k, i := range positions {
		values[k] = args[i]
	}
	return liftN(values, func(elems []Value) Value {
		copy(lifted, args)
		for k, i := range positions {
			lifted[i] = elems[k]
		}
		if def.Flags&FlagAcceptsErrors == 0 {
			for i, a := range lifted {
				if e, ok := a.(*SpreadsheetError); ok && def.ArgKindAt(i) == ArgValue {
					return e
				}
			}
		}
		elemArgs := make([]Value, len(lifted))
		copy(elemArgs, lifted)
		fc.args = elemArgs
		return fc.ev.cellResult(def.Impl(fc, elemArgs))
	})
}

// FunctionContext is handed to every implementation. it carries the
// evaluator, locale, date system, clock and random source.
type FunctionContext struct {
	ev      *Evaluator
	def     *FunctionDef
	nodes   []Node
	args    []Value
	argc    int
	omitted []bool
}

// newFunctionContext prepares a context for a call written with argNodes
func newFunctionContext(ev *Evaluator, def *FunctionDef, argNodes []Node) *FunctionContext {
	fc := &FunctionContext{ev: ev, def: def, nodes: argNodes, argc: len(argNodes)}
	for i, n := range argNodes {
		if _, missing := n.(*MissingNode); missing {
			if fc.omitted == nil {
				fc.omitted = make([]bool, len(argNodes))
			}
			fc.omitted[i] = true
		}
	}
	return fc
}

// Locale returns the active locale
func (fc *FunctionContext) Locale() *LocaleConfig {
	return fc.ev.ec.locale
}

// Date1904 reports whether the workbook uses the 1904 date system
func (fc *FunctionContext) Date1904() bool {
	return fc.ev.ec.coerce.date1904
}

// Now returns the current time from the engine clock
func (fc *FunctionContext) Now() time.Time {
	return fc.ev.ec.clock.Now()
}

// Random returns a number in [0, 1)
func (fc *FunctionContext) Random() float64 {
	return fc.ev.ec.random.Float64()
}

// Sheet returns the sheet of the formula being evaluated
func (fc *FunctionContext) Sheet() SheetID {
	return fc.ev.sheet
}

// Cell returns the address of the formula being evaluated
func (fc *FunctionContext) Cell() CellAddr {
	return fc.ev.cell
}

// Resolver exposes workbook reads
func (fc *FunctionContext) Resolver() ValueResolver {
	return fc.ev.res
}

// Omitted reports whether argument i was left empty, as in ROUND(1.5,)
func (fc *FunctionContext) Omitted(i int) bool {
	if i >= fc.argc {
		return true
	}
	return i < len(fc.omitted) && fc.omitted[i]
}

// HasArg reports whether argument i was supplied and not left empty
func (fc *FunctionContext) HasArg(i int) bool {
	return !fc.Omitted(i)
}

// Eval evaluates an argument node for special forms, keeping references
func (fc *FunctionContext) Eval(n Node) Value {
	return fc.ev.eval(n)
}

// Value evaluates an argument node for special forms and dereferences it
func (fc *FunctionContext) Value(n Node) Value {
	return fc.ev.value(n)
}

// Deref reads the cells behind a reference value
func (fc *FunctionContext) Deref(v Value) Value {
	return fc.ev.deref(v)
}

// Number coerces a scalar to a number
func (fc *FunctionContext) Number(v Value) (float64, *SpreadsheetError) {
	return fc.ev.ec.coerce.number(fc.ev.deref(v))
}

// Int coerces a scalar to an integer, truncating toward zero
func (fc *FunctionContext) Int(v Value) (int, *SpreadsheetError) {
	f, err := fc.Number(v)
	if err != nil {
		return 0, err
	}
	return toInt(f), nil
}

// Text coerces a scalar to text
func (fc *FunctionContext) Text(v Value) (string, *SpreadsheetError) {
	return fc.ev.ec.coerce.text(fc.ev.deref(v))
}

// Bool coerces a scalar to a logical
func (fc *FunctionContext) Bool(v Value) (bool, *SpreadsheetError) {
	return fc.ev.ec.coerce.boolean(fc.ev.deref(v))
}

// Array turns any argument into an array: references are read, scalars
// become 1x1 arrays
func (fc *FunctionContext) Array(v Value) (*Array, *SpreadsheetError) {
	v = fc.ev.deref(v)
	switch x := v.(type) {
	case *Array:
		return x, nil
	case *SpreadsheetError:
		return nil, x
	case *Lambda:
		return nil, errorValue(ErrorCodeCalc)
	}
	arr := NewArray(1, 1)
	arr.Data[0] = v
	return arr, nil
}

// CallLambda applies a lambda argument to values
func (fc *FunctionContext) CallLambda(fn Value, args ...Value) Value {
	l, ok := fn.(*Lambda)
	if !ok {
		if e, isErr := fn.(*SpreadsheetError); isErr {
			return e
		}
		return errorValue(ErrorCodeValue)
	}
	if len(args) != len(l.Params) {
		return NewSpreadsheetError(ErrorCodeValue, "lambda expects a different number of arguments")
	}
	return fc.ev.callLambda(l, args)
}

// forEachValue visits the values an aggregate argument contributes.
// direct is true for scalars passed as the argument itself, which Excel
// coerces more eagerly than values read from ranges and arrays.
func (fc *FunctionContext) forEachValue(arg Value, fn func(v Value, direct bool) bool) {
	switch x := arg.(type) {
	case *Reference:
		fc.ev.res.ForEachInRange(x, func(_ CellAddr, v Value) bool {
			return fn(v, false)
		})
	case *ReferenceUnion:
		for _, area := range x.Areas {
			stop := false
			fc.ev.res.ForEachInRange(area, func(_ CellAddr, v Value) bool {
				if !fn(v, false) {
					stop = true
					return false
				}
				return true
			})
			if stop {
				return
			}
		}
	case *Array:
		for _, v := range x.Data {
			if !fn(v, false) {
				return
			}
		}
	default:
		fn(arg, true)
	}
}

// collectOptions tunes which values an aggregate counts
type collectOptions struct {
	// logicalsInRanges counts TRUE/FALSE and text (as 0) found in ranges,
	// as the *A functions do
	logicalsInRanges bool
	// skipErrors ignores error values instead of returning them
	skipErrors bool
}

// collectNumbers gathers the numeric inputs of an aggregate. numeric
// columns from a columnar backing are appended directly.
func (fc *FunctionContext) collectNumbers(args []Value, opts collectOptions) ([]float64, *SpreadsheetError) {
	var out []float64
	for _, arg := range args {
		if ref, ok := arg.(*Reference); ok && !opts.logicalsInRanges {
			if fast, ok := fc.numericRange(ref); ok {
				out = append(out, fast...)
				continue
			}
		}
		var failed *SpreadsheetError
		fc.forEachValue(arg, func(v Value, direct bool) bool {
			switch x := v.(type) {
			case float64:
				out = append(out, x)
			case *SpreadsheetError:
				if !opts.skipErrors {
					failed = x
					return false
				}
			case bool:
				if direct || opts.logicalsInRanges {
					if x {
						out = append(out, 1)
					} else {
						out = append(out, 0)
					}
				}
			case string:
				if direct {
					f, err := fc.ev.ec.coerce.number(x)
					if err != nil {
						failed = err
						return false
					}
					out = append(out, f)
				} else if opts.logicalsInRanges {
					out = append(out, 0)
				}
			case nil:
				if direct {
					out = append(out, 0)
				}
			case *Entity, *Record:
				if opts.logicalsInRanges {
					out = append(out, 0)
				}
			case *Lambda:
				failed = errorValue(ErrorCodeCalc)
				return false
			}
			return true
		})
		if failed != nil {
			return nil, failed
		}
	}
	return out, nil
}

// numericRange returns the numbers of a reference using the borrowed
// column fast path, when every column of it qualifies
func (fc *FunctionContext) numericRange(ref *Reference) ([]float64, bool) {
	if ref.Cols() == 1 {
		return fc.ev.res.NumericColumn(ref.Sheet, ref.Start.Col, ref.Start.Row, ref.End.Row)
	}
	var out []float64
	for col := ref.Start.Col; col <= ref.End.Col; col++ {
		if _, ok := fc.ev.res.NumericColumn(ref.Sheet, col, ref.Start.Row, ref.End.Row); !ok {
			return nil, false
		}
	}
	// row-major order to match sparse iteration
	cols := make([][]float64, 0, ref.Cols())
	for col := ref.Start.Col; col <= ref.End.Col; col++ {
		c, _ := fc.ev.res.NumericColumn(ref.Sheet, col, ref.Start.Row, ref.End.Row)
		cols = append(cols, c)
	}
	for r := 0; r < ref.Rows(); r++ {
		for _, c := range cols {
			out = append(out, c[r])
		}
	}
	return out, true
}

// scalarArg returns a dereferenced scalar for an argument declared as a
// range, collapsing arrays to their first element
func (fc *FunctionContext) scalarArg(v Value) Value {
	return scalarOf(fc.ev.deref(v))
}
