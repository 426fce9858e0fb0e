package spreadsheet

import (
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"
)

// Kind identifies the active variant of a Value.
type Kind uint8

const (
	KindBlank Kind = iota
	KindNumber
	KindText
	KindBoolean
	KindError
	KindRange
)

func (k Kind) String() string {
	switch k {
	case KindBlank:
		return "blank"
	case KindNumber:
		return "number"
	case KindText:
		return "text"
	case KindBoolean:
		return "boolean"
	case KindError:
		return "error"
	case KindRange:
		return "range"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Value is the tagged union every evaluation flows through. exactly one
// variant is active. the zero Value is Blank.
//
// a Range value only exists while a formula is being evaluated; cached
// cell results are scalars unless the cell is an array formula leader.
type Value struct {
	kind Kind
	num  float64
	str  string
	b    bool
	err  *SpreadsheetError
	rng  Range
}

func Number(f float64) Value { return Value{kind: KindNumber, num: f} }

func Text(s string) Value { return Value{kind: KindText, str: s} }

func Boolean(b bool) Value { return Value{kind: KindBoolean, b: b} }

func Blank() Value { return Value{} }

// Error returns an error value carrying the default literal as message.
func Error(code ErrorCode) Value {
	return Value{kind: KindError, err: NewSpreadsheetError(code, "")}
}

// ErrorOf wraps an existing spreadsheet error as a value.
func ErrorOf(err *SpreadsheetError) Value {
	if err == nil {
		return Blank()
	}
	return Value{kind: KindError, err: err}
}

func RangeOf(r Range) Value {
	if r == nil {
		return Error(ErrorCodeRef)
	}
	return Value{kind: KindRange, rng: r}
}

func (v Value) Kind() Kind { return v.kind }

func (v Value) IsBlank() bool { return v.kind == KindBlank }

func (v Value) IsError() bool { return v.kind == KindError }

func (v Value) IsRange() bool { return v.kind == KindRange }

// Num returns the number of a Number value and 0 otherwise.
func (v Value) Num() float64 { return v.num }

// Str returns the string of a Text value and "" otherwise.
func (v Value) Str() string { return v.str }

// Bool returns the boolean of a Boolean value and false otherwise.
func (v Value) Bool() bool { return v.b }

// Err returns the error of an Error value and nil otherwise.
func (v Value) Err() *SpreadsheetError {
	if v.kind != KindError {
		return nil
	}
	return v.err
}

// ErrorCode returns the code of an Error value and 0 otherwise.
func (v Value) ErrorCode() ErrorCode {
	if v.kind != KindError {
		return 0
	}
	return v.err.ErrorCode
}

// Range returns the range of a Range value and nil otherwise.
func (v Value) Range() Range { return v.rng }

// String renders the value the way a cell displays it.
func (v Value) String() string {
	switch v.kind {
	case KindNumber:
		return formatNumber(v.num)
	case KindText:
		return v.str
	case KindBoolean:
		if v.b {
			return "TRUE"
		}
		return "FALSE"
	case KindError:
		return v.err.ErrorCode.String()
	case KindRange:
		if bounds, ok := v.rng.Bounds(); ok {
			return fmt.Sprintf("range(%s)", bounds)
		}
		return fmt.Sprintf("array(%dx%d)", v.rng.Height(), v.rng.Width())
	default:
		return ""
	}
}

// ErrorCode represents standard spreadsheet error codes following
// Excel conventions
type ErrorCode uint8

const (
	ErrorCodeNull     ErrorCode = 1 // #NULL! - no cells in common between ranges
	ErrorCodeDiv0     ErrorCode = 2 // #DIV/0! - division by zero
	ErrorCodeValue    ErrorCode = 3 // #VALUE! - wrong type of argument or operand
	ErrorCodeRef      ErrorCode = 4 // #REF! - invalid cell reference
	ErrorCodeName     ErrorCode = 5 // #NAME? - unrecognized function or name
	ErrorCodeNum      ErrorCode = 6 // #NUM! - invalid numeric argument or result
	ErrorCodeNA       ErrorCode = 7 // #N/A - value not available
	ErrorCodeCircular ErrorCode = 8 // circular reference without an iteration policy
)

// ErrorMapper maps error codes to their literals
var ErrorMapper = map[ErrorCode]string{
	ErrorCodeNull:     "#NULL!",
	ErrorCodeDiv0:     "#DIV/0!",
	ErrorCodeValue:    "#VALUE!",
	ErrorCodeRef:      "#REF!",
	ErrorCodeName:     "#NAME?",
	ErrorCodeNum:      "#NUM!",
	ErrorCodeNA:       "#N/A",
	ErrorCodeCircular: "~CIRCULAR~REF~",
}

func (c ErrorCode) String() string {
	if s, ok := ErrorMapper[c]; ok {
		return s
	}
	return fmt.Sprintf("#ERR%d!", uint8(c))
}

// biffCodes are the error bytes of the binary file format
var biffCodes = map[ErrorCode]byte{
	ErrorCodeNull:     0x00,
	ErrorCodeDiv0:     0x07,
	ErrorCodeValue:    0x0F,
	ErrorCodeRef:      0x17,
	ErrorCodeName:     0x1D,
	ErrorCodeNum:      0x24,
	ErrorCodeNA:       0x2A,
	ErrorCodeCircular: 0xC4, // low byte of -60
}

// BIFF returns the error byte used by the binary file format
func (c ErrorCode) BIFF() byte {
	return biffCodes[c]
}

// ErrorCodeFromBIFF maps a binary error byte back to its code
func ErrorCodeFromBIFF(b byte) (ErrorCode, bool) {
	for code, v := range biffCodes {
		if v == b {
			return code, true
		}
	}
	return 0, false
}

// ParseErrorCode maps an error literal such as "#DIV/0!" back to its code.
func ParseErrorCode(literal string) (ErrorCode, bool) {
	literal = strings.ToUpper(strings.TrimSpace(literal))
	for code, s := range ErrorMapper {
		if s == literal {
			return code, true
		}
	}
	return 0, false
}

// SpreadsheetError preserves error code for display in cells
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

func NewSpreadsheetError(code ErrorCode, message string) *SpreadsheetError {
	if message == "" {
		message = code.String()
	}
	return &SpreadsheetError{
		ErrorCode: code,
		Message:   message,
	}
}

// CellAddress identifies a cell. rows and columns are zero based.
type CellAddress struct {
	WorksheetID uint32
	Row         uint32
	Column      uint32
}

func (a CellAddress) String() string {
	return fmt.Sprintf("%d!%s", a.WorksheetID, CellName(a.Row, a.Column))
}

// compareAddresses orders addresses by worksheet, then row, then column
func compareAddresses(a, b CellAddress) int {
	switch {
	case a.WorksheetID != b.WorksheetID:
		if a.WorksheetID < b.WorksheetID {
			return -1
		}
		return 1
	case a.Row != b.Row:
		if a.Row < b.Row {
			return -1
		}
		return 1
	case a.Column != b.Column:
		if a.Column < b.Column {
			return -1
		}
		return 1
	}
	return 0
}

// CellName renders zero-based coordinates as an A1 style name.
func CellName(row, col uint32) string {
	name, err := excelize.CoordinatesToCellName(int(col)+1, int(row)+1)
	if err != nil {
		return fmt.Sprintf("R%dC%d", row+1, col+1)
	}
	return name
}

// ParseCellName parses an A1 style name (absolute markers allowed) into
// zero-based coordinates.
func ParseCellName(name string) (row, col uint32, err error) {
	c, r, err := excelize.CellNameToCoordinates(strings.ReplaceAll(name, "$", ""))
	if err != nil {
		return 0, 0, NewSpreadsheetError(ErrorCodeRef, fmt.Sprintf("invalid cell reference: %s", name))
	}
	return uint32(r - 1), uint32(c - 1), nil
}
