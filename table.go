package calc

import (
	"fmt"
	"slices"
)

// Table is a named structured region of a sheet. Range covers the whole
// table including the header and totals rows when present.
type Table struct {
	Name      string
	Sheet     SheetID
	Range     Rect
	HeaderRow bool
	TotalsRow bool
	Columns   []string
}

// validate checks the table shape
func (t *Table) validate() error {
	if err := validateName(t.Name); err != nil {
		return err
	}
	r := t.Range.Normalize()
	if r != t.Range {
		return NewApplicationError(InvalidArgument, fmt.Sprintf("table %s: range is not normalized", t.Name))
	}
	if len(t.Columns) != r.Cols() {
		return NewApplicationError(InvalidArgument,
			fmt.Sprintf("table %s has %d columns but %d column names", t.Name, r.Cols(), len(t.Columns)))
	}
	seen := make(map[string]struct{}, len(t.Columns))
	for _, c := range t.Columns {
		k := foldKey(c)
		if _, dup := seen[k]; dup || c == "" {
			return NewApplicationError(InvalidArgument, fmt.Sprintf("table %s: column name %q is empty or repeated", t.Name, c))
		}
		seen[k] = struct{}{}
	}
	need := 1
	if t.HeaderRow {
		need++
	}
	if t.TotalsRow {
		need++
	}
	if r.Rows() < need {
		return NewApplicationError(InvalidArgument, fmt.Sprintf("table %s is too short for its header and totals rows", t.Name))
	}
	return nil
}

// dataRows returns the first and last data row; ok is false for a table
// with no data rows
func (t *Table) dataRows() (first, last uint32, ok bool) {
	first, last = t.Range.Start.Row, t.Range.End.Row
	if t.HeaderRow {
		first++
	}
	if t.TotalsRow {
		if last == 0 {
			return 0, 0, false
		}
		last--
	}
	return first, last, first <= last
}

// ColumnIndex finds a column by name, case-insensitively
func (t *Table) ColumnIndex(name string) (int, bool) {
	key := foldKey(name)
	i := slices.IndexFunc(t.Columns, func(c string) bool { return foldKey(c) == key })
	return i, i >= 0
}

// rowSpan returns the rows selected by a combination of table items
func (t *Table) rowSpan(items TableItem, cell CellAddr) (uint32, uint32, *SpreadsheetError) {
	first, last, hasData := t.dataRows()
	if items&TableItemThisRow != 0 {
		if !hasData || cell.Row < first || cell.Row > last {
			return 0, 0, NewSpreadsheetError(ErrorCodeValue, "this-row reference outside the table body")
		}
		return cell.Row, cell.Row, nil
	}
	headers := items&TableItemHeaders != 0
	data := items&TableItemData != 0
	totals := items&TableItemTotals != 0
	if headers && !t.HeaderRow && !data {
		return 0, 0, NewSpreadsheetError(ErrorCodeRef, "table "+t.Name+" has no header row")
	}
	if totals && !t.TotalsRow && !data {
		return 0, 0, NewSpreadsheetError(ErrorCodeRef, "table "+t.Name+" has no totals row")
	}
	if headers && totals && !data {
		return 0, 0, NewSpreadsheetError(ErrorCodeRef, "headers and totals are not adjacent")
	}

	start, end := t.Range.Start.Row, t.Range.End.Row
	if !headers && t.HeaderRow {
		start++
	}
	if !totals && t.TotalsRow {
		end--
	}
	if !data {
		if headers {
			end = t.Range.Start.Row
		} else {
			start = t.Range.End.Row
		}
	}
	if start > end {
		return 0, 0, NewSpreadsheetError(ErrorCodeRef, "table "+t.Name+" has no rows in that part")
	}
	return start, end, nil
}

// columnSpan returns the sheet columns selected by a column specifier
func (t *Table) columnSpan(firstCol, lastCol string) (uint32, uint32, *SpreadsheetError) {
	if firstCol == "" {
		return t.Range.Start.Col, t.Range.End.Col, nil
	}
	a, ok := t.ColumnIndex(firstCol)
	if !ok {
		return 0, 0, NewSpreadsheetError(ErrorCodeRef, "table "+t.Name+" has no column "+firstCol)
	}
	b := a
	if lastCol != "" {
		if b, ok = t.ColumnIndex(lastCol); !ok {
			return 0, 0, NewSpreadsheetError(ErrorCodeRef, "table "+t.Name+" has no column "+lastCol)
		}
	}
	if a > b {
		a, b = b, a
	}
	return t.Range.Start.Col + uint32(a), t.Range.Start.Col + uint32(b), nil
}

// resolveStructuredRef turns a table reference into a sheet reference. an
// unnamed reference such as [@Col] uses the table containing the cell.
func resolveStructuredRef(res ValueResolver, n *StructuredRefNode, sheet SheetID, cell CellAddr) (Value, *SpreadsheetError) {
	var t *Table
	var ok bool
	if n.Table == "" {
		t, ok = res.TableAt(sheet, cell)
	} else {
		t, ok = res.Table(n.Table)
	}
	if !ok {
		name := n.Table
		if name == "" {
			name = "(this table)"
		}
		return nil, NewSpreadsheetError(ErrorCodeRef, "unknown table "+name)
	}
	if n.Items&TableItemThisRow != 0 && t.Sheet != sheet {
		return nil, NewSpreadsheetError(ErrorCodeValue, "this-row reference from another sheet")
	}
	items := n.Items
	if items == 0 {
		items = TableItemData
	}
	r0, r1, err := t.rowSpan(items, cell)
	if err != nil {
		return nil, err
	}
	c0, c1, err := t.columnSpan(n.FirstCol, n.LastCol)
	if err != nil {
		return nil, err
	}
	return &Reference{
		Sheet: t.Sheet,
		Start: CellAddr{Row: r0, Col: c0},
		End:   CellAddr{Row: r1, Col: c1},
	}, nil
}
