package spreadsheet

import (
	"math"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/cases"
)

// significantDigits is the precision numbers keep when rendered as text or
// compared for equality
const significantDigits = 15

var valueError = NewSpreadsheetError(ErrorCodeValue, "")

// ResolveSingle applies implicit intersection. scalars are returned
// unchanged. a 1x1 range yields its cell. a single-column range yields the
// cell on the source row, a single-row range the cell on the source
// column. anything else is #VALUE!.
func ResolveSingle(v Value, sourceRow, sourceCol uint32) Value {
	if v.kind != KindRange {
		return v
	}
	r := v.rng
	if r.Width() == 1 && r.Height() == 1 {
		return r.ValueAt(0, 0)
	}
	bounds, onSheet := r.Bounds()
	if !onSheet {
		return Error(ErrorCodeValue)
	}
	switch {
	case r.Width() == 1:
		if sourceRow >= bounds.StartRow && sourceRow <= bounds.EndRow {
			return r.ValueAt(int(sourceRow-bounds.StartRow), 0)
		}
	case r.Height() == 1:
		if sourceCol >= bounds.StartColumn && sourceCol <= bounds.EndColumn {
			return r.ValueAt(0, int(sourceCol-bounds.StartColumn))
		}
	}
	return Error(ErrorCodeValue)
}

// ToNumber coerces a scalar to a number. errors pass through unchanged.
func ToNumber(v Value) (float64, error) {
	switch v.kind {
	case KindBlank:
		return 0, nil
	case KindNumber:
		return v.num, nil
	case KindBoolean:
		if v.b {
			return 1, nil
		}
		return 0, nil
	case KindText:
		if f, ok := parseNumberText(v.str); ok {
			return f, nil
		}
		return 0, valueError
	case KindError:
		return 0, v.err
	default:
		return 0, valueError
	}
}

// ToText coerces a scalar to text. errors pass through unchanged.
func ToText(v Value) (string, error) {
	switch v.kind {
	case KindBlank:
		return "", nil
	case KindText:
		return v.str, nil
	case KindNumber, KindBoolean:
		return v.String(), nil
	case KindError:
		return "", v.err
	default:
		return "", valueError
	}
}

// ToInteger coerces like ToNumber and truncates toward zero. range checks
// are left to the caller; values beyond the int32 range are clamped.
func ToInteger(v Value) (int, error) {
	f, err := ToNumber(v)
	if err != nil {
		return 0, err
	}
	f = math.Trunc(f)
	switch {
	case f > math.MaxInt32:
		return math.MaxInt32, nil
	case f < math.MinInt32:
		return math.MinInt32, nil
	}
	return int(f), nil
}

// ToBoolean coerces a scalar to a boolean
func ToBoolean(v Value) (bool, error) {
	switch v.kind {
	case KindBlank:
		return false, nil
	case KindBoolean:
		return v.b, nil
	case KindNumber:
		return v.num != 0, nil
	case KindText:
		switch strings.ToUpper(strings.TrimSpace(v.str)) {
		case "TRUE":
			return true, nil
		case "FALSE":
			return false, nil
		}
		return false, valueError
	case KindError:
		return false, v.err
	default:
		return false, valueError
	}
}

// errorValue turns a coercion failure back into a Value
func errorValue(err error) Value {
	if se, ok := err.(*SpreadsheetError); ok {
		return ErrorOf(se)
	}
	return Error(ErrorCodeValue)
}

// parseNumberText parses a locale-invariant numeric literal. surrounding
// spaces and a trailing percent sign are accepted; hex, inf and nan are
// not.
func parseNumberText(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	scale := 1.0
	if strings.HasSuffix(s, "%") {
		s = strings.TrimSpace(s[:len(s)-1])
		scale = 0.01
	}
	if s == "" {
		return 0, false
	}
	digits := false
	for i := 0; i < len(s); i++ {
		switch c := s[i]; {
		case c >= '0' && c <= '9':
			digits = true
		case c == '.' || c == '+' || c == '-' || c == 'e' || c == 'E':
		default:
			return 0, false
		}
	}
	if !digits {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsInf(f, 0) {
		return 0, false
	}
	return f * scale, true
}

// formatNumber renders a number canonically: at most 15 significant
// digits, no trailing zeros, scientific notation outside [1e-9, 1e15).
func formatNumber(f float64) string {
	switch {
	case math.IsNaN(f) || math.IsInf(f, 0):
		return ErrorCodeNum.String()
	case f == 0:
		return "0"
	}
	if math.Abs(f) < 1e-9 {
		return formatScientific(f, significantDigits-1, 2, true)
	}
	// rounding can carry into the next power of ten
	rounded := roundSignificant(f)
	if rounded.Abs().GreaterThanOrEqual(decimal.New(1, 15)) {
		return formatScientific(f, significantDigits-1, 2, true)
	}
	return rounded.String()
}

// roundSignificant rounds f half away from zero to 15 significant digits
func roundSignificant(f float64) decimal.Decimal {
	exp := int32(math.Floor(math.Log10(math.Abs(f))))
	return decimal.NewFromFloat(f).Round(significantDigits - 1 - exp)
}

// formatScientific renders f as mantissa "E" exponent with up to fracDigits
// mantissa decimals. trailing zeros are trimmed when trim is set.
func formatScientific(f float64, fracDigits, expDigits int, trim bool) string {
	if f == 0 {
		m := "0"
		if !trim && fracDigits > 0 {
			m += "." + strings.Repeat("0", fracDigits)
		}
		return m + "E+" + padExponent(0, expDigits)
	}
	exp := int(math.Floor(math.Log10(math.Abs(f))))
	mantissa := decimal.NewFromFloat(f).Shift(int32(-exp)).Round(int32(fracDigits))
	if mantissa.Abs().GreaterThanOrEqual(decimal.NewFromInt(10)) {
		exp++
		mantissa = mantissa.Shift(-1).Round(int32(fracDigits))
	}
	var m string
	if trim {
		m = mantissa.String()
	} else {
		m = mantissa.StringFixed(int32(fracDigits))
	}
	sign := "+"
	if exp < 0 {
		sign = "-"
		exp = -exp
	}
	return m + "E" + sign + padExponent(exp, expDigits)
}

func padExponent(exp, digits int) string {
	s := strconv.Itoa(exp)
	if len(s) < digits {
		s = strings.Repeat("0", digits-len(s)) + s
	}
	return s
}

// numbersEqual compares at 15 significant digits
func numbersEqual(a, b float64) bool {
	if a == b {
		return true
	}
	if a == 0 || b == 0 || math.Signbit(a) != math.Signbit(b) {
		return false
	}
	return roundSignificant(a).Equal(roundSignificant(b))
}

// foldCase case-folds s for caseless comparison. a Caser holds state, so
// one is made per call rather than shared between engines.
func foldCase(s string) string {
	return cases.Fold().String(s)
}

// CompareValues orders two scalars the way spreadsheet comparison
// operators do: numbers sort before text, text before booleans, text
// compares case-insensitively and blank takes the zero value of the other
// side's type. errors must be handled by the caller.
func CompareValues(a, b Value) int {
	if a.kind == KindBlank {
		a = zeroLike(b)
	}
	if b.kind == KindBlank {
		b = zeroLike(a)
	}
	if ra, rb := typeRank(a), typeRank(b); ra != rb {
		if ra < rb {
			return -1
		}
		return 1
	}
	switch a.kind {
	case KindNumber:
		switch {
		case numbersEqual(a.num, b.num):
			return 0
		case a.num < b.num:
			return -1
		default:
			return 1
		}
	case KindText:
		return strings.Compare(foldCase(a.str), foldCase(b.str))
	case KindBoolean:
		switch {
		case a.b == b.b:
			return 0
		case !a.b:
			return -1
		default:
			return 1
		}
	}
	return 0
}

func zeroLike(v Value) Value {
	switch v.kind {
	case KindText:
		return Text("")
	case KindBoolean:
		return Boolean(false)
	default:
		return Number(0)
	}
}

func typeRank(v Value) int {
	switch v.kind {
	case KindNumber, KindBlank:
		return 0
	case KindText:
		return 1
	case KindBoolean:
		return 2
	default:
		return 3
	}
}
