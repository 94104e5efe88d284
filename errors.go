package calc

import (
	"errors"
	"fmt"
)

// AppErrorCode is a gRPC-style code for failures that cannot be expressed
// as cell values: bad sheet names, malformed API addresses, unknown sheets,
// style interning problems and strict-mode parse failures.
type AppErrorCode int

const (
	// OK indicates success
	OK AppErrorCode = 0

	// Unknown is used when no better code applies
	Unknown AppErrorCode = 2

	// InvalidArgument means the caller passed a malformed value, such as an
	// invalid sheet name or A1 address
	InvalidArgument AppErrorCode = 3

	// NotFound means a sheet, name or table does not exist
	NotFound AppErrorCode = 5

	// AlreadyExists means a sheet or name collides with an existing one
	AlreadyExists AppErrorCode = 6

	// ResourceExhausted means a fixed-size table (styles, programs) is full
	ResourceExhausted AppErrorCode = 8

	// FailedPrecondition means the engine is not in a state that allows the
	// operation, for instance removing the last sheet
	FailedPrecondition AppErrorCode = 9

	// Aborted means the operation was cancelled by the caller
	Aborted AppErrorCode = 10

	// OutOfRange means an address lies beyond the sheet dimensions
	OutOfRange AppErrorCode = 11

	// Unimplemented marks features that are recognized but not supported
	Unimplemented AppErrorCode = 12

	// Internal means an engine invariant was broken
	Internal AppErrorCode = 13
)

var appErrorCodeNames = map[AppErrorCode]string{
	OK:                 "ok",
	Unknown:            "unknown",
	InvalidArgument:    "invalid argument",
	NotFound:           "not found",
	AlreadyExists:      "already exists",
	ResourceExhausted:  "resource exhausted",
	FailedPrecondition: "failed precondition",
	Aborted:            "aborted",
	OutOfRange:         "out of range",
	Unimplemented:      "unimplemented",
	Internal:           "internal",
}

func (c AppErrorCode) String() string {
	if s, ok := appErrorCodeNames[c]; ok {
		return s
	}
	return fmt.Sprintf("code(%d)", int(c))
}

// AppError represents errors at the application level (not spreadsheet
// formula errors)
type AppError struct {
	Code    AppErrorCode
	Message string
	cause   error
}

func (e *AppError) Error() string {
	return e.Message
}

// Unwrap exposes the underlying cause, such as a *ParseError
func (e *AppError) Unwrap() error {
	return e.cause
}

// NewApplicationError creates a new application error
func NewApplicationError(code AppErrorCode, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

func wrapApplicationError(code AppErrorCode, cause error, format string, args ...any) *AppError {
	return &AppError{
		Code:    code,
		Message: fmt.Sprintf(format, args...) + ": " + cause.Error(),
		cause:   cause,
	}
}

// AppErrorCodeOf extracts the code of an application error anywhere in
// err's chain, or Unknown
func AppErrorCodeOf(err error) AppErrorCode {
	if err == nil {
		return OK
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return Unknown
}

// IsAppError reports whether err carries the given application code
func IsAppError(err error, code AppErrorCode) bool {
	return AppErrorCodeOf(err) == code
}

// ParseErrorKind classifies parser failures
type ParseErrorKind uint8

const (
	ParseErrorSyntax ParseErrorKind = iota
	ParseErrorTooLong
	ParseErrorNestedCalls
	ParseErrorNestedParens
	ParseErrorPowerChain
	ParseErrorTooManyArgs
	ParseErrorTokenSize
	ParseErrorArrayShape
	ParseErrorInvalidName
)

var parseErrorKindNames = map[ParseErrorKind]string{
	ParseErrorSyntax:       "syntax",
	ParseErrorTooLong:      "formula too long",
	ParseErrorNestedCalls:  "too many nested functions",
	ParseErrorNestedParens: "too many nested parentheses",
	ParseErrorPowerChain:   "too many chained exponents",
	ParseErrorTooManyArgs:  "too many arguments",
	ParseErrorTokenSize:    "formula too complex",
	ParseErrorArrayShape:   "array rows differ in length",
	ParseErrorInvalidName:  "invalid name",
}

func (k ParseErrorKind) String() string {
	return parseErrorKindNames[k]
}

// ParseError describes why a formula was rejected and where
type ParseError struct {
	Kind    ParseErrorKind
	Span    NodePosition
	Message string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s at %d: %s", e.Kind, e.Span.Start, e.Message)
}

// IsLimit reports whether the error is one of the Excel parity limits
func (e *ParseError) IsLimit() bool {
	switch e.Kind {
	case ParseErrorTooLong, ParseErrorNestedCalls, ParseErrorNestedParens,
		ParseErrorPowerChain, ParseErrorTooManyArgs, ParseErrorTokenSize:
		return true
	}
	return false
}

func newParseError(kind ParseErrorKind, span NodePosition, format string, args ...any) *ParseError {
	return &ParseError{Kind: kind, Span: span, Message: fmt.Sprintf(format, args...)}
}
