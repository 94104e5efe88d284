package calc

import (
	"fmt"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
)

// ColumnarBacking is a read-only block of data a sheet falls back to when
// no cell is stored at a position. coordinates are relative to the block.
type ColumnarBacking interface {
	// Bounds returns the number of rows and columns in the block
	Bounds() (rows, cols uint32)
	// Value returns the value at a position, nil for nulls
	Value(row, col uint32) Value
	// Float64Column returns a borrowed slice of rows [start, end] of a
	// column when it is a float64 column without nulls in that span
	Float64Column(col, start, end uint32) ([]float64, bool)
}

// ArrowBacking serves a sheet region from an Arrow record. float64, string
// and boolean columns are understood; other column types read as blank.
type ArrowBacking struct {
	rec  arrow.Record
	rows uint32
	cols uint32
}

// NewArrowBacking wraps a record. the backing retains the record until
// Release is called.
func NewArrowBacking(rec arrow.Record) (*ArrowBacking, error) {
	if rec == nil {
		return nil, NewApplicationError(InvalidArgument, "nil arrow record")
	}
	if rec.NumRows() > int64(^uint32(0)) || rec.NumCols() > int64(DefaultMaxCols) {
		return nil, NewApplicationError(OutOfRange, fmt.Sprintf("arrow record of %dx%d is too large", rec.NumRows(), rec.NumCols()))
	}
	for i, f := range rec.Schema().Fields() {
		switch f.Type.ID() {
		case arrow.FLOAT64, arrow.STRING, arrow.BOOL, arrow.INT64:
		default:
			return nil, NewApplicationError(InvalidArgument, fmt.Sprintf("column %d has unsupported type %s", i, f.Type))
		}
	}
	rec.Retain()
	return &ArrowBacking{rec: rec, rows: uint32(rec.NumRows()), cols: uint32(rec.NumCols())}, nil
}

// Release drops the reference to the record
func (b *ArrowBacking) Release() {
	if b.rec != nil {
		b.rec.Release()
		b.rec = nil
	}
}

// Bounds returns the record dimensions
func (b *ArrowBacking) Bounds() (uint32, uint32) {
	return b.rows, b.cols
}

// Value reads one position
func (b *ArrowBacking) Value(row, col uint32) Value {
	if b.rec == nil || row >= b.rows || col >= b.cols {
		return nil
	}
	column := b.rec.Column(int(col))
	i := int(row)
	if column.IsNull(i) {
		return nil
	}
	switch c := column.(type) {
	case *array.Float64:
		return c.Value(i)
	case *array.Int64:
		return float64(c.Value(i))
	case *array.String:
		return c.Value(i)
	case *array.Boolean:
		return c.Value(i)
	}
	return nil
}

// Float64Column borrows the column's value buffer
func (b *ArrowBacking) Float64Column(col, start, end uint32) ([]float64, bool) {
	if b.rec == nil || col >= b.cols || end >= b.rows || start > end {
		return nil, false
	}
	c, ok := b.rec.Column(int(col)).(*array.Float64)
	if !ok {
		return nil, false
	}
	if c.NullN() > 0 {
		for i := int(start); i <= int(end); i++ {
			if c.IsNull(i) {
				return nil, false
			}
		}
	}
	return c.Float64Values()[start : end+1], true
}

// ColumnData is one named column used to build an Arrow backing
type ColumnData struct {
	Name    string
	Numbers []float64
	Text    []string
	Bools   []bool
}

// BuildArrowBacking assembles columns of equal length into a record.
// exactly one of Numbers, Text or Bools should be set per column.
func BuildArrowBacking(columns []ColumnData) (*ArrowBacking, error) {
	fields := make([]arrow.Field, len(columns))
	rows := -1
	for i, c := range columns {
		var n int
		switch {
		case c.Numbers != nil:
			fields[i] = arrow.Field{Name: c.Name, Type: arrow.PrimitiveTypes.Float64}
			n = len(c.Numbers)
		case c.Text != nil:
			fields[i] = arrow.Field{Name: c.Name, Type: arrow.BinaryTypes.String}
			n = len(c.Text)
		default:
			fields[i] = arrow.Field{Name: c.Name, Type: arrow.FixedWidthTypes.Boolean}
			n = len(c.Bools)
		}
		if rows >= 0 && n != rows {
			return nil, NewApplicationError(InvalidArgument, fmt.Sprintf("column %q has %d rows, expected %d", c.Name, n, rows))
		}
		rows = n
	}

	builder := array.NewRecordBuilder(memory.NewGoAllocator(), arrow.NewSchema(fields, nil))
	defer builder.Release()
	for i, c := range columns {
		switch fb := builder.Field(i).(type) {
		case *array.Float64Builder:
			fb.AppendValues(c.Numbers, nil)
		case *array.StringBuilder:
			fb.AppendValues(c.Text, nil)
		case *array.BooleanBuilder:
			fb.AppendValues(c.Bools, nil)
		}
	}
	rec := builder.NewRecord()
	defer rec.Release()
	return NewArrowBacking(rec)
}
