package calc

import "iter"

// RangeAddress represents a range of cells within a single worksheet. it is
// the key of a range bucket in the dependency graph.
type RangeAddress struct {
	WorksheetID SheetID
	StartRow    uint32
	StartColumn uint32
	EndRow      uint32
	EndColumn   uint32
}

// rangeAddress builds a normalized range address
func rangeAddress(sheet SheetID, r Rect) RangeAddress {
	r = r.Normalize()
	return RangeAddress{
		WorksheetID: sheet,
		StartRow:    r.Start.Row,
		StartColumn: r.Start.Col,
		EndRow:      r.End.Row,
		EndColumn:   r.End.Col,
	}
}

// Rect returns the rectangle on the range's sheet
func (r RangeAddress) Rect() Rect {
	return Rect{
		Start: CellAddr{Row: r.StartRow, Col: r.StartColumn},
		End:   CellAddr{Row: r.EndRow, Col: r.EndColumn},
	}
}

// Contains checks if a cell is within the range
func (r RangeAddress) Contains(cell CellAddress) bool {
	return cell.WorksheetID == r.WorksheetID &&
		cell.Row >= r.StartRow && cell.Row <= r.EndRow &&
		cell.Column >= r.StartColumn && cell.Column <= r.EndColumn
}

// Overlaps reports whether two ranges on the same sheet share a cell
func (r RangeAddress) Overlaps(o RangeAddress) bool {
	if r.WorksheetID != o.WorksheetID {
		return false
	}
	_, ok := r.Rect().Intersect(o.Rect())
	return ok
}

// Reference converts the address into a reference value
func (r RangeAddress) Reference() *Reference {
	return &Reference{
		Sheet: r.WorksheetID,
		Start: CellAddr{Row: r.StartRow, Col: r.StartColumn},
		End:   CellAddr{Row: r.EndRow, Col: r.EndColumn},
	}
}

func (r RangeAddress) String() string {
	return r.Rect().String()
}

// Range is a lazy view of the cells behind a reference. nothing is
// materialized until the sequence is consumed.
type Range interface {
	GetBounds() RangeAddress
	// Iterate yields the non-blank cells in row-major order
	Iterate() iter.Seq2[CellAddr, Value]
	// IterateValues yields every cell of the rectangle, blanks included
	IterateValues() iter.Seq[Value]
}

// CellRange implements Range over a resolver
type CellRange struct {
	ref *Reference
	res ValueResolver
}

// NewCellRange creates a lazy range over ref
func NewCellRange(res ValueResolver, ref *Reference) *CellRange {
	return &CellRange{ref: ref, res: res}
}

// GetBounds returns the range boundaries
func (r *CellRange) GetBounds() RangeAddress {
	return r.ref.Address()
}

// Iterate returns an iterator over the stored cells of the range
func (r *CellRange) Iterate() iter.Seq2[CellAddr, Value] {
	return func(yield func(CellAddr, Value) bool) {
		r.res.ForEachInRange(r.ref, yield)
	}
}

// IterateValues returns an iterator over every position, filling blanks
// between stored cells
func (r *CellRange) IterateValues() iter.Seq[Value] {
	return func(yield func(Value) bool) {
		width := uint64(r.ref.Cols())
		next := uint64(0)
		offset := func(a CellAddr) uint64 {
			return uint64(a.Row-r.ref.Start.Row)*width + uint64(a.Col-r.ref.Start.Col)
		}
		stopped := false
		r.res.ForEachInRange(r.ref, func(addr CellAddr, v Value) bool {
			for at := offset(addr); next < at; next++ {
				if !yield(nil) {
					stopped = true
					return false
				}
			}
			next++
			if !yield(v) {
				stopped = true
				return false
			}
			return true
		})
		if stopped {
			return
		}
		for total := r.ref.Rect().Area(); next < total; next++ {
			if !yield(nil) {
				return
			}
		}
	}
}
