package calc

import "strings"

// ErrorCode represents standard spreadsheet error codes. the numeric values
// match what ERROR.TYPE reports.
type ErrorCode uint8

const (
	ErrorCodeNull  ErrorCode = 1  // #NULL! - no cells in common between ranges
	ErrorCodeDiv0  ErrorCode = 2  // #DIV/0! - division by zero
	ErrorCodeValue ErrorCode = 3  // #VALUE! - wrong type of argument or operand
	ErrorCodeRef   ErrorCode = 4  // #REF! - invalid cell reference
	ErrorCodeName  ErrorCode = 5  // #NAME? - unrecognized function or name
	ErrorCodeNum   ErrorCode = 6  // #NUM! - number too large, small or out of domain
	ErrorCodeNA    ErrorCode = 7  // #N/A - value not available
	ErrorCodeSpill ErrorCode = 9  // #SPILL! - array result blocked
	ErrorCodeField ErrorCode = 13 // #FIELD! - missing field on a rich value
	ErrorCodeCalc  ErrorCode = 14 // #CALC! - calculation engine limits
)

// ErrorMapper maps error code numbers to their string representations
var ErrorMapper = map[ErrorCode]string{
	ErrorCodeNull:  "#NULL!",
	ErrorCodeDiv0:  "#DIV/0!",
	ErrorCodeValue: "#VALUE!",
	ErrorCodeRef:   "#REF!",
	ErrorCodeName:  "#NAME?",
	ErrorCodeNum:   "#NUM!",
	ErrorCodeNA:    "#N/A",
	ErrorCodeSpill: "#SPILL!",
	ErrorCodeField: "#FIELD!",
	ErrorCodeCalc:  "#CALC!",
}

// errorLiterals maps upper-cased error literal text back to codes
var errorLiterals = map[string]ErrorCode{
	"#NULL!":  ErrorCodeNull,
	"#DIV/0!": ErrorCodeDiv0,
	"#VALUE!": ErrorCodeValue,
	"#REF!":   ErrorCodeRef,
	"#NAME?":  ErrorCodeName,
	"#NUM!":   ErrorCodeNum,
	"#N/A":    ErrorCodeNA,
	"#SPILL!": ErrorCodeSpill,
	"#FIELD!": ErrorCodeField,
	"#CALC!":  ErrorCodeCalc,
}

// ParseErrorCode maps error literal text such as "#N/A" to its code
func ParseErrorCode(text string) (ErrorCode, bool) {
	code, ok := errorLiterals[strings.ToUpper(text)]
	return code, ok
}

func (c ErrorCode) String() string {
	if s, ok := ErrorMapper[c]; ok {
		return s
	}
	return "#ERROR!"
}

// SpreadsheetError is the error value carried through evaluation. Message is
// diagnostic only; two errors are equal when their codes are.
type SpreadsheetError struct {
	ErrorCode ErrorCode
	Message   string
}

func (e *SpreadsheetError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return e.ErrorCode.String()
}

// sharedErrors holds one immutable instance per code so hot paths don't
// allocate
var sharedErrors = func() map[ErrorCode]*SpreadsheetError {
	m := make(map[ErrorCode]*SpreadsheetError, len(ErrorMapper))
	for code, text := range ErrorMapper {
		m[code] = &SpreadsheetError{ErrorCode: code, Message: text}
	}
	return m
}()

// NewSpreadsheetError creates an error value with a diagnostic message. an
// empty message returns the shared instance for the code.
func NewSpreadsheetError(code ErrorCode, message string) *SpreadsheetError {
	if message == "" {
		if shared, ok := sharedErrors[code]; ok {
			return shared
		}
		message = code.String()
	}
	return &SpreadsheetError{
		ErrorCode: code,
		Message:   message,
	}
}

// errorValue returns the shared error value for a code
func errorValue(code ErrorCode) *SpreadsheetError {
	return NewSpreadsheetError(code, "")
}

// CellType represents numeric constants for cell value types (external API)
type CellType uint8

const (
	CellValueTypeEmpty   CellType = 0
	CellValueTypeNumber  CellType = 1
	CellValueTypeString  CellType = 2
	CellValueTypeBoolean CellType = 4
	CellValueTypeError   CellType = 5
	CellValueTypeArray   CellType = 6
	CellValueTypeRich    CellType = 7
	CellValueTypeLambda  CellType = 8
)

// TypeOf classifies a value for external callers
func TypeOf(v Value) CellType {
	switch v.(type) {
	case nil:
		return CellValueTypeEmpty
	case float64:
		return CellValueTypeNumber
	case string:
		return CellValueTypeString
	case bool:
		return CellValueTypeBoolean
	case *SpreadsheetError:
		return CellValueTypeError
	case *Array:
		return CellValueTypeArray
	case *Entity, *Record:
		return CellValueTypeRich
	case *Lambda:
		return CellValueTypeLambda
	}
	return CellValueTypeEmpty
}

// CellAddress is the workbook-global address of a cell, used as the
// dependency graph key
type CellAddress struct {
	WorksheetID SheetID
	Row         uint32
	Column      uint32
}

// Local drops the sheet component
func (a CellAddress) Local() CellAddr {
	return CellAddr{Row: a.Row, Col: a.Column}
}

func globalAddress(sheet SheetID, addr CellAddr) CellAddress {
	return CellAddress{WorksheetID: sheet, Row: addr.Row, Column: addr.Col}
}

// less orders addresses by sheet, row, then column
func (a CellAddress) less(b CellAddress) bool {
	if a.WorksheetID != b.WorksheetID {
		return a.WorksheetID < b.WorksheetID
	}
	if a.Row != b.Row {
		return a.Row < b.Row
	}
	return a.Column < b.Column
}

// Cell represents a stored spreadsheet cell. a formula cell keeps its last
// computed result in Value.
type Cell struct {
	Value     Value
	Formula   string // formula text without the leading '='
	FormulaID uint32 // formula table id, 0 for plain values
	StyleID   uint32 // style table id, 0 for the default style
}

// HasFormula reports whether the cell holds a formula
func (c *Cell) HasFormula() bool {
	return c != nil && c.FormulaID != 0
}

// IsStyleOnly reports whether the cell carries formatting only
func (c *Cell) IsStyleOnly() bool {
	return c != nil && c.FormulaID == 0 && c.Value == nil && c.StyleID != 0
}

func (c *Cell) isEmpty() bool {
	return c == nil || (c.FormulaID == 0 && c.Value == nil && c.StyleID == 0)
}
