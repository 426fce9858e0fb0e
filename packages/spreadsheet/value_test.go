package spreadsheet

import (
	"errors"
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValueVariants(t *testing.T) {
	tests := []struct {
		value Value
		kind  Kind
		text  string
	}{
		{Blank(), KindBlank, ""},
		{Value{}, KindBlank, ""},
		{Number(1.5), KindNumber, "1.5"},
		{Text("abc"), KindText, "abc"},
		{Boolean(true), KindBoolean, "TRUE"},
		{Error(ErrorCodeDiv0), KindError, "#DIV/0!"},
		{Error(ErrorCodeCircular), KindError, "~CIRCULAR~REF~"},
		{ErrorOf(nil), KindBlank, ""},
		{RangeOf(nil), KindError, "#REF!"},
		{RangeOf(NewArrayRange([][]Value{{Number(1), Number(2)}})), KindRange, "array(1x2)"},
	}

	for _, tt := range tests {
		t.Run(tt.kind.String()+"/"+tt.text, func(t *testing.T) {
			assert.Equal(t, tt.kind, tt.value.Kind())
			assert.Equal(t, tt.text, tt.value.String())
		})
	}

	assert.Nil(t, Number(1).Err())
	assert.Zero(t, Text("x").ErrorCode())
	assert.Equal(t, "kind(9)", Kind(9).String())
}

func TestFormatNumber(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{0, "0"},
		{math.Copysign(0, -1), "0"},
		{1, "1"},
		{-2.5, "-2.5"},
		{0.1 + 0.2, "0.3"},
		{1.0 / 3, "0.333333333333333"},
		{2.0 / 3, "0.666666666666667"},
		{123456789012345, "123456789012345"},
		{1e15, "1E+15"},
		{999999999999999.9, "1E+15"},
		{-999999999999999.9, "-1E+15"},
		{999999999999999, "999999999999999"},
		{1.5e-10, "1.5E-10"},
		{-1e20, "-1E+20"},
		{math.NaN(), "#NUM!"},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.in), func(t *testing.T) {
			assert.Equal(t, tt.want, formatNumber(tt.in))
		})
	}
}

func TestCoercion(t *testing.T) {
	t.Run("ToNumber", func(t *testing.T) {
		tests := []struct {
			in   Value
			want float64
			code ErrorCode
		}{
			{Blank(), 0, 0},
			{Number(3), 3, 0},
			{Boolean(true), 1, 0},
			{Text(" 42 "), 42, 0},
			{Text("1e3"), 1000, 0},
			{Text("25%"), 0.25, 0},
			{Text("abc"), 0, ErrorCodeValue},
			{Text("0x1F"), 0, ErrorCodeValue},
			{Text("inf"), 0, ErrorCodeValue},
			{Text(""), 0, ErrorCodeValue},
			{Error(ErrorCodeNA), 0, ErrorCodeNA},
		}
		for _, tt := range tests {
			got, err := ToNumber(tt.in)
			if tt.code != 0 {
				var se *SpreadsheetError
				require.True(t, errors.As(err, &se), "%v", tt.in)
				assert.Equal(t, tt.code, se.ErrorCode)
				continue
			}
			require.NoError(t, err, "%v", tt.in)
			assert.Equal(t, tt.want, got)
		}
	})

	t.Run("ToText", func(t *testing.T) {
		for in, want := range map[Value]string{
			Blank():        "",
			Number(10):     "10",
			Boolean(false): "FALSE",
			Text("x"):      "x",
		} {
			got, err := ToText(in)
			require.NoError(t, err)
			assert.Equal(t, want, got)
		}
		_, err := ToText(Error(ErrorCodeRef))
		assert.Equal(t, ErrorCodeRef, errorValue(err).ErrorCode())
	})

	t.Run("ToBoolean", func(t *testing.T) {
		for in, want := range map[Value]bool{
			Blank():       false,
			Number(-1):    true,
			Number(0):     false,
			Text("true"):  true,
			Text("FALSE"): false,
		} {
			got, err := ToBoolean(in)
			require.NoError(t, err)
			assert.Equal(t, want, got, "%v", in)
		}
		_, err := ToBoolean(Text("yes"))
		assert.Error(t, err)
	})

	t.Run("ToInteger", func(t *testing.T) {
		n, err := ToInteger(Number(-2.9))
		require.NoError(t, err)
		assert.Equal(t, -2, n)
		n, err = ToInteger(Number(1e300))
		require.NoError(t, err)
		assert.Equal(t, math.MaxInt32, n)
	})
}

func TestCompareValues(t *testing.T) {
	tests := []struct {
		a, b Value
		want int
	}{
		{Number(1), Number(2), -1},
		{Number(0.1 + 0.2), Number(0.3), 0},
		{Text("abc"), Text("ABC"), 0},
		{Text("a"), Text("b"), -1},
		{Number(100), Text("1"), -1},
		{Text("z"), Boolean(false), -1},
		{Boolean(true), Boolean(false), 1},
		{Blank(), Number(0), 0},
		{Blank(), Text(""), 0},
		{Blank(), Boolean(false), 0},
		{Blank(), Blank(), 0},
		{Number(-1), Blank(), -1},
	}
	for _, tt := range tests {
		t.Run(tt.a.String()+" vs "+tt.b.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, CompareValues(tt.a, tt.b))
		})
	}
}

func TestResolveSingle(t *testing.T) {
	column := NewCellRange(RangeAddress{WorksheetID: 1, StartRow: 0, EndRow: 2}, func(a CellAddress) Value {
		return Number(float64(a.Row + 1))
	})
	row := NewCellRange(RangeAddress{WorksheetID: 1, StartColumn: 1, EndColumn: 3}, func(a CellAddress) Value {
		return Number(float64(a.Column * 10))
	})

	assert.Equal(t, 2.0, ResolveSingle(RangeOf(column), 1, 5).Num())
	assert.Equal(t, ErrorCodeValue, ResolveSingle(RangeOf(column), 7, 0).ErrorCode())
	assert.Equal(t, 20.0, ResolveSingle(RangeOf(row), 9, 2).Num())
	assert.Equal(t, ErrorCodeValue, ResolveSingle(RangeOf(row), 0, 0).ErrorCode())
	assert.Equal(t, 5.0, ResolveSingle(RangeOf(NewArrayRange([][]Value{{Number(5)}})), 3, 3).Num())
	assert.Equal(t, "x", ResolveSingle(Text("x"), 0, 0).Str())
}

func TestErrorCodes(t *testing.T) {
	for code := ErrorCodeNull; code <= ErrorCodeCircular; code++ {
		t.Run(code.String(), func(t *testing.T) {
			back, ok := ErrorCodeFromBIFF(code.BIFF())
			require.True(t, ok)
			assert.Equal(t, code, back)

			parsed, ok := ParseErrorCode(code.String())
			require.True(t, ok)
			assert.Equal(t, code, parsed)
		})
	}

	assert.Equal(t, byte(0x07), ErrorCodeDiv0.BIFF())
	assert.Equal(t, byte(0x2A), ErrorCodeNA.BIFF())
	_, ok := ParseErrorCode("#BOGUS!")
	assert.False(t, ok)
	assert.Equal(t, "#ERR42!", ErrorCode(42).String())
}

func TestSpreadsheetError(t *testing.T) {
	err := NewSpreadsheetError(ErrorCodeNum, "")
	assert.Equal(t, "#NUM!", err.Error())
	err = NewSpreadsheetError(ErrorCodeNum, "SQRT of a negative")
	assert.Equal(t, "SQRT of a negative", err.Error())
}

func TestApplicationErrors(t *testing.T) {
	cause := errors.New("boom")
	err := fmt.Errorf("loading: %w", wrapApplicationError(NotFound, "missing", cause))

	assert.Equal(t, NotFound, ErrorCodeOf(err))
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, OK, ErrorCodeOf(nil))
	assert.Equal(t, Unknown, ErrorCodeOf(cause))
	assert.Equal(t, "not found", NotFound.String())
}

func TestCellNames(t *testing.T) {
	tests := []struct {
		name     string
		row, col uint32
	}{
		{"A1", 0, 0},
		{"Z10", 9, 25},
		{"AA1", 0, 26},
		{"XFD1048576", 1048575, 16383},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.name, CellName(tt.row, tt.col))
			row, col, err := ParseCellName(tt.name)
			require.NoError(t, err)
			assert.Equal(t, tt.row, row)
			assert.Equal(t, tt.col, col)
		})
	}

	row, col, err := ParseCellName("$B$3")
	require.NoError(t, err)
	assert.Equal(t, [2]uint32{2, 1}, [2]uint32{row, col})

	_, _, err = ParseCellName("3B")
	assert.Error(t, err)
}
