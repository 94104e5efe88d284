package calc

import (
	"fmt"
	"strconv"
	"strings"
)

// SheetID is the stable identity of a worksheet. it never changes when the
// sheet is renamed or moved.
type SheetID uint32

const (
	// DefaultMaxRows is the Excel row cap
	DefaultMaxRows uint32 = 1_048_576
	// DefaultMaxCols is the Excel column cap
	DefaultMaxCols uint32 = 16_384
	maxColumnLetters     = 3
)

// CellAddr is a 0-based cell position within a sheet
type CellAddr struct {
	Row uint32
	Col uint32
}

// String renders the address in A1 notation with relative components
func (a CellAddr) String() string {
	return ColumnName(a.Col) + strconv.FormatUint(uint64(a.Row)+1, 10)
}

// ParseCellAddr parses a plain A1 address such as "B7" or "$B$7"
func ParseCellAddr(s string) (CellAddr, error) {
	ref, err := ParseA1(s)
	if err != nil {
		return CellAddr{}, err
	}
	if ref.Row < 0 || ref.Col < 0 {
		return CellAddr{}, NewApplicationError(InvalidArgument, fmt.Sprintf("invalid cell address %q", s))
	}
	return CellAddr{Row: uint32(ref.Row), Col: uint32(ref.Col)}, nil
}

// RefStyle selects A1 or R1C1 notation
type RefStyle uint8

const (
	StyleA1 RefStyle = iota
	StyleR1C1
)

// CellRef is a reference component pair as written in a formula. absolute
// components hold 0-based indexes; relative components hold offsets from
// the formula's own cell.
type CellRef struct {
	Row    int32
	Col    int32
	RowAbs bool
	ColAbs bool
}

// resolve turns the reference into an absolute address for a formula at
// origin. ok is false when the result falls outside the sheet.
func (r CellRef) resolve(origin CellAddr, maxRows, maxCols uint32) (CellAddr, bool) {
	row, col := int64(r.Row), int64(r.Col)
	if !r.RowAbs {
		row += int64(origin.Row)
	}
	if !r.ColAbs {
		col += int64(origin.Col)
	}
	if row < 0 || col < 0 || row >= int64(maxRows) || col >= int64(maxCols) {
		return CellAddr{}, false
	}
	return CellAddr{Row: uint32(row), Col: uint32(col)}, true
}

// relativeTo converts an absolute address into a reference whose relative
// components are offsets from origin
func relativeTo(addr CellAddr, origin CellAddr, rowAbs, colAbs bool) CellRef {
	ref := CellRef{RowAbs: rowAbs, ColAbs: colAbs}
	if rowAbs {
		ref.Row = int32(addr.Row)
	} else {
		ref.Row = int32(int64(addr.Row) - int64(origin.Row))
	}
	if colAbs {
		ref.Col = int32(addr.Col)
	} else {
		ref.Col = int32(int64(addr.Col) - int64(origin.Col))
	}
	return ref
}

// ColumnName converts a 0-based column index to letters (0 -> A, 26 -> AA)
func ColumnName(col uint32) string {
	var buf [8]byte
	i := len(buf)
	n := uint64(col) + 1
	for n > 0 {
		n--
		i--
		buf[i] = byte('A' + n%26)
		n /= 26
	}
	return string(buf[i:])
}

// ColumnIndex converts column letters to a 0-based index
func ColumnIndex(letters string) (uint32, bool) {
	if letters == "" || len(letters) > maxColumnLetters {
		return 0, false
	}
	var n uint32
	for i := 0; i < len(letters); i++ {
		c := letters[i]
		if c >= 'a' && c <= 'z' {
			c -= 'a' - 'A'
		}
		if c < 'A' || c > 'Z' {
			return 0, false
		}
		n = n*26 + uint32(c-'A') + 1
	}
	return n - 1, true
}

// ParseA1 parses an A1 reference into absolute indexes. components not
// present (whole column or whole row forms) are reported as -1.
func ParseA1(s string) (CellRef, error) {
	ref := CellRef{Row: -1, Col: -1}
	i := 0
	if i < len(s) && s[i] == '$' {
		ref.ColAbs = true
		i++
	}
	start := i
	for i < len(s) && isASCIILetter(s[i]) {
		i++
	}
	if i > start {
		col, ok := ColumnIndex(s[start:i])
		if !ok {
			return ref, NewApplicationError(InvalidArgument, fmt.Sprintf("invalid column in %q", s))
		}
		ref.Col = int32(col)
	} else if ref.ColAbs {
		// "$5" is an absolute row
		ref.ColAbs = false
		ref.RowAbs = true
	}
	if i < len(s) && s[i] == '$' {
		if ref.Col < 0 {
			return ref, NewApplicationError(InvalidArgument, fmt.Sprintf("invalid A1 reference %q", s))
		}
		ref.RowAbs = true
		i++
	}
	start = i
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		i++
	}
	if i != len(s) {
		return ref, NewApplicationError(InvalidArgument, fmt.Sprintf("invalid A1 reference %q", s))
	}
	if i > start {
		row, err := strconv.ParseUint(s[start:i], 10, 32)
		if err != nil || row == 0 {
			return ref, NewApplicationError(InvalidArgument, fmt.Sprintf("invalid row in %q", s))
		}
		ref.Row = int32(row - 1)
	} else if ref.RowAbs && ref.Col >= 0 {
		return ref, NewApplicationError(InvalidArgument, fmt.Sprintf("invalid A1 reference %q", s))
	}
	if ref.Row < 0 && ref.Col < 0 {
		return ref, NewApplicationError(InvalidArgument, fmt.Sprintf("invalid A1 reference %q", s))
	}
	return ref, nil
}

// FormatA1 renders absolute indexes in A1 notation
func FormatA1(ref CellRef) string {
	var b strings.Builder
	if ref.Col >= 0 {
		if ref.ColAbs {
			b.WriteByte('$')
		}
		b.WriteString(ColumnName(uint32(ref.Col)))
	}
	if ref.Row >= 0 {
		if ref.RowAbs {
			b.WriteByte('$')
		}
		b.WriteString(strconv.FormatInt(int64(ref.Row)+1, 10))
	}
	return b.String()
}

// ParseR1C1 parses an R1C1 reference. relative components ("R[-1]", "C")
// are returned as offsets; absolute components as 0-based indexes. missing
// row or column parts (whole column or row forms) set the part to -1 with
// the absolute flag cleared and hasRow/hasCol false.
func ParseR1C1(s string) (ref CellRef, hasRow, hasCol bool, err error) {
	i := 0
	up := strings.ToUpper(s)
	parsePart := func(letter byte) (val int32, abs bool, present bool, perr error) {
		if i >= len(up) || up[i] != letter {
			return 0, false, false, nil
		}
		i++
		if i < len(up) && up[i] == '[' {
			end := strings.IndexByte(up[i:], ']')
			if end < 0 {
				return 0, false, true, NewApplicationError(InvalidArgument, fmt.Sprintf("invalid R1C1 reference %q", s))
			}
			n, convErr := strconv.ParseInt(up[i+1:i+end], 10, 32)
			if convErr != nil {
				return 0, false, true, NewApplicationError(InvalidArgument, fmt.Sprintf("invalid R1C1 offset in %q", s))
			}
			i += end + 1
			return int32(n), false, true, nil
		}
		start := i
		for i < len(up) && up[i] >= '0' && up[i] <= '9' {
			i++
		}
		if i == start {
			return 0, false, true, nil
		}
		n, convErr := strconv.ParseInt(up[start:i], 10, 32)
		if convErr != nil || n == 0 {
			return 0, false, true, NewApplicationError(InvalidArgument, fmt.Sprintf("invalid R1C1 index in %q", s))
		}
		return int32(n - 1), true, true, nil
	}

	var perr error
	ref.Row, ref.RowAbs, hasRow, perr = parsePart('R')
	if perr != nil {
		return ref, false, false, perr
	}
	ref.Col, ref.ColAbs, hasCol, perr = parsePart('C')
	if perr != nil {
		return ref, false, false, perr
	}
	if i != len(up) || (!hasRow && !hasCol) {
		return ref, false, false, NewApplicationError(InvalidArgument, fmt.Sprintf("invalid R1C1 reference %q", s))
	}
	return ref, hasRow, hasCol, nil
}

// FormatR1C1 renders a reference in R1C1 notation
func FormatR1C1(ref CellRef, withRow, withCol bool) string {
	var b strings.Builder
	if withRow {
		b.WriteByte('R')
		writeR1C1Part(&b, ref.Row, ref.RowAbs)
	}
	if withCol {
		b.WriteByte('C')
		writeR1C1Part(&b, ref.Col, ref.ColAbs)
	}
	return b.String()
}

func writeR1C1Part(b *strings.Builder, v int32, abs bool) {
	if abs {
		b.WriteString(strconv.FormatInt(int64(v)+1, 10))
		return
	}
	if v != 0 {
		b.WriteByte('[')
		b.WriteString(strconv.FormatInt(int64(v), 10))
		b.WriteByte(']')
	}
}

// Rect is an inclusive rectangle of cells
type Rect struct {
	Start CellAddr
	End   CellAddr
}

// Normalize orders the corners so Start is top-left
func (r Rect) Normalize() Rect {
	if r.Start.Row > r.End.Row {
		r.Start.Row, r.End.Row = r.End.Row, r.Start.Row
	}
	if r.Start.Col > r.End.Col {
		r.Start.Col, r.End.Col = r.End.Col, r.Start.Col
	}
	return r
}

// Contains reports whether the cell lies within the rectangle
func (r Rect) Contains(a CellAddr) bool {
	return a.Row >= r.Start.Row && a.Row <= r.End.Row &&
		a.Col >= r.Start.Col && a.Col <= r.End.Col
}

// Intersect returns the overlapping rectangle, if any
func (r Rect) Intersect(o Rect) (Rect, bool) {
	out := Rect{
		Start: CellAddr{Row: max(r.Start.Row, o.Start.Row), Col: max(r.Start.Col, o.Start.Col)},
		End:   CellAddr{Row: min(r.End.Row, o.End.Row), Col: min(r.End.Col, o.End.Col)},
	}
	if out.Start.Row > out.End.Row || out.Start.Col > out.End.Col {
		return Rect{}, false
	}
	return out, true
}

// Bounding returns the smallest rectangle covering both
func (r Rect) Bounding(o Rect) Rect {
	return Rect{
		Start: CellAddr{Row: min(r.Start.Row, o.Start.Row), Col: min(r.Start.Col, o.Start.Col)},
		End:   CellAddr{Row: max(r.End.Row, o.End.Row), Col: max(r.End.Col, o.End.Col)},
	}
}

// Rows returns the height of the rectangle
func (r Rect) Rows() int {
	return int(r.End.Row-r.Start.Row) + 1
}

// Cols returns the width of the rectangle
func (r Rect) Cols() int {
	return int(r.End.Col-r.Start.Col) + 1
}

// Area returns the number of cells covered
func (r Rect) Area() uint64 {
	return uint64(r.Rows()) * uint64(r.Cols())
}

// String renders the rectangle as "A1:B2", or "A1" for a single cell
func (r Rect) String() string {
	if r.Start == r.End {
		return r.Start.String()
	}
	return r.Start.String() + ":" + r.End.String()
}

// ParseRect parses "A1" or "A1:B2"
func ParseRect(s string) (Rect, error) {
	first, second, isRange := strings.Cut(s, ":")
	a, err := ParseCellAddr(first)
	if err != nil {
		return Rect{}, err
	}
	if !isRange {
		return Rect{Start: a, End: a}, nil
	}
	b, err := ParseCellAddr(second)
	if err != nil {
		return Rect{}, err
	}
	return Rect{Start: a, End: b}.Normalize(), nil
}

func isASCIILetter(c byte) bool {
	return (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z')
}

func isASCIIDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

// looksLikeA1 reports whether an identifier would be read as a cell
// reference, which rules it out as a LET or LAMBDA name
func looksLikeA1(s string) bool {
	i := 0
	for i < len(s) && isASCIILetter(s[i]) {
		i++
	}
	if i == 0 || i > maxColumnLetters || i == len(s) {
		return false
	}
	col, ok := ColumnIndex(s[:i])
	if !ok || col >= DefaultMaxCols {
		return false
	}
	j := i
	for j < len(s) && isASCIIDigit(s[j]) {
		j++
	}
	if j != len(s) {
		return false
	}
	row, err := strconv.ParseUint(s[i:], 10, 32)
	return err == nil && row >= 1 && row <= uint64(DefaultMaxRows)
}

// beyondGridA1 reports whether an identifier is spelled like an A1
// reference but names a cell past the last column or row, such as XFE1 or
// A1048577
func beyondGridA1(s string) bool {
	i := 0
	for i < len(s) && isASCIILetter(s[i]) {
		i++
	}
	if i == 0 || i > maxColumnLetters || i == len(s) || s[i] == '0' {
		return false
	}
	for j := i; j < len(s); j++ {
		if !isASCIIDigit(s[j]) {
			return false
		}
	}
	col, ok := ColumnIndex(s[:i])
	if !ok || col >= DefaultMaxCols {
		return true
	}
	row, err := strconv.ParseUint(s[i:], 10, 64)
	return err != nil || row > uint64(DefaultMaxRows)
}

// looksLikeR1C1 reports whether an identifier is an R1C1 reference
func looksLikeR1C1(s string) bool {
	up := strings.ToUpper(s)
	if up == "R" || up == "C" || up == "RC" {
		return true
	}
	if len(up) < 2 || (up[0] != 'R' && up[0] != 'C') {
		return false
	}
	_, _, _, err := ParseR1C1(up)
	return err == nil
}
