// Package xlsxsource serves the cell values of an .xlsx workbook to a calc
// engine as an external value provider. the workbook is read once; the
// provider is immutable and safe for concurrent use.
package xlsxsource

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/vogtb/go-spreadsheet/packages/calc"
)

// Workbook is a snapshot of the stored values of a workbook. formulas are
// not evaluated; their cached results are served.
type Workbook struct {
	sheets   map[string]*sheet // lower-cased name -> sheet
	order    []string
	date1904 bool
}

type sheet struct {
	cells      map[calc.CellAddr]calc.Value
	rows, cols uint32
}

var (
	_ calc.ExternalValueProvider = (*Workbook)(nil)
	_ calc.ExtentProvider        = (*Workbook)(nil)
)

// Open reads a workbook file
func Open(path string) (*Workbook, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	return FromFile(f)
}

// Read reads a workbook from r
func Read(r io.Reader) (*Workbook, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("read workbook: %w", err)
	}
	defer f.Close()
	return FromFile(f)
}

// FromFile snapshots an open workbook. the file can be closed afterwards.
func FromFile(f *excelize.File) (*Workbook, error) {
	w := &Workbook{sheets: make(map[string]*sheet)}
	if props, err := f.GetWorkbookProps(); err == nil && props.Date1904 != nil {
		w.date1904 = *props.Date1904
	}
	for _, name := range f.GetSheetList() {
		s, err := w.readSheet(f, name)
		if err != nil {
			return nil, err
		}
		w.sheets[strings.ToLower(name)] = s
		w.order = append(w.order, name)
	}
	return w, nil
}

func (w *Workbook) readSheet(f *excelize.File, name string) (*sheet, error) {
	rows, err := f.GetRows(name, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("sheet %s: %w", name, err)
	}
	s := &sheet{cells: make(map[calc.CellAddr]calc.Value)}
	for r, row := range rows {
		for c, raw := range row {
			if raw == "" {
				continue
			}
			ref, err := excelize.CoordinatesToCellName(c+1, r+1)
			if err != nil {
				return nil, fmt.Errorf("sheet %s: %w", name, err)
			}
			typ, err := f.GetCellType(name, ref)
			if err != nil {
				return nil, fmt.Errorf("sheet %s!%s: %w", name, ref, err)
			}
			s.cells[calc.CellAddr{Row: uint32(r), Col: uint32(c)}] = w.convert(typ, raw)
			s.rows = max(s.rows, uint32(r)+1)
			s.cols = max(s.cols, uint32(c)+1)
		}
	}
	return s, nil
}

// convert maps a raw stored value to a calc value. numbers are stored
// without a type attribute, so untyped text that parses as a number is one.
func (w *Workbook) convert(typ excelize.CellType, raw string) calc.Value {
	switch typ {
	case excelize.CellTypeBool:
		return raw == "1" || strings.EqualFold(raw, "TRUE")
	case excelize.CellTypeError:
		if code, ok := calc.ParseErrorCode(raw); ok {
			return calc.NewSpreadsheetError(code, "")
		}
		return calc.NewSpreadsheetError(calc.ErrorCodeValue, raw)
	case excelize.CellTypeDate:
		for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02"} {
			if t, err := time.Parse(layout, raw); err == nil {
				return calc.TimeToSerial(t, w.date1904)
			}
		}
		return raw
	case excelize.CellTypeSharedString, excelize.CellTypeInlineString, excelize.CellTypeFormula:
		return raw
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return f
	}
	return raw
}

// Get returns the stored value at a position
func (w *Workbook) Get(sheet string, addr calc.CellAddr) (calc.Value, bool) {
	s, ok := w.sheets[strings.ToLower(sheet)]
	if !ok {
		return nil, false
	}
	v, ok := s.cells[addr]
	return v, ok
}

// Extent returns the used area of a sheet
func (w *Workbook) Extent(sheet string) (rows, cols uint32, ok bool) {
	s, ok := w.sheets[strings.ToLower(sheet)]
	if !ok {
		return 0, 0, false
	}
	return s.rows, s.cols, true
}

// SheetNames lists the sheets in workbook order
func (w *Workbook) SheetNames() []string {
	return append([]string(nil), w.order...)
}

// Date1904 reports whether the workbook uses the 1904 date system
func (w *Workbook) Date1904() bool {
	return w.date1904
}

// Attach creates a sheet in the engine for every workbook sheet, under the
// workbook name as key, and installs the workbook as the engine's provider.
// a 1904 workbook switches the engine to the 1904 date system.
func (w *Workbook) Attach(e *calc.Engine) error {
	for _, name := range w.order {
		if err := e.EnsureSheetWithDisplayName(name, name); err != nil {
			return fmt.Errorf("attach sheet %s: %w", name, err)
		}
	}
	if w.date1904 {
		cs := e.CalcSettings()
		cs.DateSystem = 1904
		if err := e.SetCalcSettings(cs); err != nil {
			return fmt.Errorf("attach date system: %w", err)
		}
	}
	return e.SetExternalValueProvider(w)
}
