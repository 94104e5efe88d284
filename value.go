package calc

import (
	"sort"
	"strings"
)

// Value represents any spreadsheet value. types:
//   - nil: blank
//   - float64: numbers
//   - string: text
//   - bool: TRUE/FALSE
//   - *SpreadsheetError: error values (#DIV/0!, #VALUE!, etc.)
//   - *Array: dynamic array results, never nested
//   - *Reference, *ReferenceUnion: only exist during evaluation
//   - *Entity, *Record: rich values with case-insensitive fields
//   - *Lambda: function values produced by LAMBDA
type Value any

// Array is an immutable row-major grid of scalar values. it is shared by
// pointer and must not be modified once returned from a constructor.
type Array struct {
	Rows int
	Cols int
	Data []Value
}

// NewArray allocates a rows x cols array filled with blanks
func NewArray(rows, cols int) *Array {
	if rows < 1 {
		rows = 1
	}
	if cols < 1 {
		cols = 1
	}
	return &Array{Rows: rows, Cols: cols, Data: make([]Value, rows*cols)}
}

// NewArrayFromRows builds an array from row slices, padding short rows with
// #N/A the way array-shaping functions do
func NewArrayFromRows(rows [][]Value) *Array {
	width := 0
	for _, r := range rows {
		if len(r) > width {
			width = len(r)
		}
	}
	arr := NewArray(len(rows), width)
	for i, r := range rows {
		for j := 0; j < arr.Cols; j++ {
			if j < len(r) {
				arr.Data[i*arr.Cols+j] = r[j]
			} else {
				arr.Data[i*arr.Cols+j] = errorValue(ErrorCodeNA)
			}
		}
	}
	return arr
}

// At returns the element at row r, column c
func (a *Array) At(r, c int) Value {
	return a.Data[r*a.Cols+c]
}

func (a *Array) set(r, c int, v Value) {
	a.Data[r*a.Cols+c] = v
}

// Len returns the number of elements
func (a *Array) Len() int {
	return a.Rows * a.Cols
}

// Reference is a rectangular reference to a single sheet, normalized so
// Start is the top-left corner
type Reference struct {
	Sheet SheetID
	Start CellAddr
	End   CellAddr
}

// NewReference creates a normalized reference
func NewReference(sheet SheetID, a, b CellAddr) *Reference {
	r := Rect{Start: a, End: b}.Normalize()
	return &Reference{Sheet: sheet, Start: r.Start, End: r.End}
}

// Rect returns the rectangle covered by the reference
func (r *Reference) Rect() Rect {
	return Rect{Start: r.Start, End: r.End}
}

// IsSingleCell reports whether the reference covers one cell
func (r *Reference) IsSingleCell() bool {
	return r.Start == r.End
}

// Rows returns the number of rows covered
func (r *Reference) Rows() int {
	return int(r.End.Row-r.Start.Row) + 1
}

// Cols returns the number of columns covered
func (r *Reference) Cols() int {
	return int(r.End.Col-r.Start.Col) + 1
}

// Address returns the range address used by the dependency graph
func (r *Reference) Address() RangeAddress {
	return RangeAddress{
		WorksheetID: r.Sheet,
		StartRow:    r.Start.Row,
		StartColumn: r.Start.Col,
		EndRow:      r.End.Row,
		EndColumn:   r.End.Col,
	}
}

// ReferenceUnion is an ordered list of areas produced by the union
// operator, 3-D references or multi-area structured references
type ReferenceUnion struct {
	Areas []*Reference
}

// Entity is a rich value with a display string and named fields
type Entity struct {
	Display string
	Type    string
	ID      string
	Fields  map[string]Value
}

// NewEntity creates an entity, folding field names for lookup
func NewEntity(display, typ, id string, fields map[string]Value) *Entity {
	return &Entity{Display: display, Type: typ, ID: id, Fields: foldFields(fields)}
}

// Field looks up a field case-insensitively
func (e *Entity) Field(name string) (Value, bool) {
	v, ok := e.Fields[foldKey(name)]
	return v, ok
}

// Record is a rich value whose display can be drawn from one of its fields
type Record struct {
	Display      string
	Fields       map[string]Value
	DisplayField string
}

// NewRecord creates a record, folding field names for lookup
func NewRecord(display string, fields map[string]Value, displayField string) *Record {
	return &Record{Display: display, Fields: foldFields(fields), DisplayField: displayField}
}

// Field looks up a field case-insensitively
func (r *Record) Field(name string) (Value, bool) {
	v, ok := r.Fields[foldKey(name)]
	return v, ok
}

// DisplayText returns the text shown for the record
func (r *Record) DisplayText() string {
	if r.DisplayField != "" {
		if v, ok := r.Field(r.DisplayField); ok {
			return coerceText(v)
		}
	}
	return r.Display
}

func foldFields(fields map[string]Value) map[string]Value {
	out := make(map[string]Value, len(fields))
	for k, v := range fields {
		out[foldKey(k)] = v
	}
	return out
}

// fieldNames returns the original-cased keys in sorted order
func fieldNames(fields map[string]Value) []string {
	names := make([]string, 0, len(fields))
	for k := range fields {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Lambda is a function value. Env is the handle of the frame chain at the
// point the LAMBDA was evaluated; the body is shared, never copied.
type Lambda struct {
	Params []string
	Body   Node
	Env    *Env
}

// isScalar reports whether v can live in a cell or array element
func isScalar(v Value) bool {
	switch v.(type) {
	case nil, float64, string, bool, *SpreadsheetError, *Entity, *Record:
		return true
	}
	return false
}

// asError returns the error if value is a *SpreadsheetError
func asError(v Value) (*SpreadsheetError, bool) {
	e, ok := v.(*SpreadsheetError)
	return e, ok
}

func isError(v Value) bool {
	_, ok := v.(*SpreadsheetError)
	return ok
}

func isErrorCode(v Value, code ErrorCode) bool {
	e, ok := v.(*SpreadsheetError)
	return ok && e.ErrorCode == code
}

// scalarOf collapses an array to its top-left element
func scalarOf(v Value) Value {
	if arr, ok := v.(*Array); ok {
		if arr.Len() == 0 {
			return nil
		}
		return arr.Data[0]
	}
	return v
}

// valueKind names a value's type for diagnostics and traces
func valueKind(v Value) string {
	switch v.(type) {
	case nil:
		return "blank"
	case float64:
		return "number"
	case string:
		return "text"
	case bool:
		return "bool"
	case *SpreadsheetError:
		return "error"
	case *Array:
		return "array"
	case *Reference:
		return "reference"
	case *ReferenceUnion:
		return "union"
	case *Entity:
		return "entity"
	case *Record:
		return "record"
	case *Lambda:
		return "lambda"
	}
	return "unknown"
}

// DisplayString renders a value the way a cell shows it without number
// formatting
func DisplayString(v Value) string {
	switch x := v.(type) {
	case *Array:
		var b strings.Builder
		b.WriteByte('{')
		for r := 0; r < x.Rows; r++ {
			if r > 0 {
				b.WriteByte(';')
			}
			for c := 0; c < x.Cols; c++ {
				if c > 0 {
					b.WriteByte(',')
				}
				b.WriteString(arrayLiteralText(x.At(r, c)))
			}
		}
		b.WriteByte('}')
		return b.String()
	case *Lambda:
		return errorValue(ErrorCodeCalc).Error()
	}
	return coerceText(v)
}
