package spreadsheet

import (
	"math"
	"slices"
	"time"

	"github.com/shopspring/decimal"
)

// numbers collects the operands of an aggregate. direct arguments are
// coerced like any scalar; inside ranges only numbers take part and text,
// booleans and blanks are skipped. the first error wins.
func numbers(args []Value) ([]float64, error) {
	var out []float64
	err := eachValue(args, func(v Value, fromRange bool) error {
		if fromRange {
			if v.kind == KindNumber {
				out = append(out, v.num)
			}
			return nil
		}
		f, err := ToNumber(v)
		if err != nil {
			return err
		}
		out = append(out, f)
		return nil
	})
	return out, err
}

func (bf *BuiltInFunctions) SUM(_ *EvalContext, args []Value) (Value, error) {
	values, err := numbers(args)
	if err != nil {
		return Value{}, err
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return checkedNumber(sum), nil
}

func (bf *BuiltInFunctions) PRODUCT(_ *EvalContext, args []Value) (Value, error) {
	values, err := numbers(args)
	if err != nil {
		return Value{}, err
	}
	if len(values) == 0 {
		return Number(0), nil
	}
	product := 1.0
	for _, v := range values {
		product *= v
	}
	return checkedNumber(product), nil
}

func (bf *BuiltInFunctions) AVERAGE(_ *EvalContext, args []Value) (Value, error) {
	values, err := numbers(args)
	if err != nil {
		return Value{}, err
	}
	if len(values) == 0 {
		return ErrorOf(NewSpreadsheetError(ErrorCodeDiv0, "Division by zero")), nil
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return checkedNumber(sum / float64(len(values))), nil
}

// AVERAGEA counts every non-empty value. text inside ranges counts as 0
// and booleans as 1 or 0.
func (bf *BuiltInFunctions) AVERAGEA(_ *EvalContext, args []Value) (Value, error) {
	sum := 0.0
	count := 0
	err := eachValue(args, func(v Value, fromRange bool) error {
		switch {
		case fromRange && v.kind == KindBlank:
			return nil
		case fromRange && v.kind == KindText:
			count++
			return nil
		}
		f, err := ToNumber(v)
		if err != nil {
			return err
		}
		sum += f
		count++
		return nil
	})
	if err != nil {
		return Value{}, err
	}
	if count == 0 {
		return ErrorOf(NewSpreadsheetError(ErrorCodeDiv0, "AVERAGEA has no values")), nil
	}
	return checkedNumber(sum / float64(count)), nil
}

// COUNT counts numbers. direct arguments that coerce to a number count as
// well; errors are skipped rather than propagated.
func (bf *BuiltInFunctions) COUNT(_ *EvalContext, args []Value) (Value, error) {
	count := 0
	eachRaw(args, func(v Value, fromRange bool) {
		switch {
		case v.kind == KindNumber:
			count++
		case fromRange:
		case v.kind == KindBoolean:
			count++
		case v.kind == KindText:
			if _, ok := parseNumberText(v.str); ok {
				count++
			}
		}
	})
	return Number(float64(count)), nil
}

// COUNTA counts everything that is not an empty cell, errors included
func (bf *BuiltInFunctions) COUNTA(_ *EvalContext, args []Value) (Value, error) {
	count := 0
	eachRaw(args, func(v Value, fromRange bool) {
		if !fromRange || v.kind != KindBlank {
			count++
		}
	})
	return Number(float64(count)), nil
}

func (bf *BuiltInFunctions) MAX(_ *EvalContext, args []Value) (Value, error) {
	values, err := numbers(args)
	if err != nil {
		return Value{}, err
	}
	if len(values) == 0 {
		return Number(0), nil
	}
	return Number(slices.Max(values)), nil
}

func (bf *BuiltInFunctions) MIN(_ *EvalContext, args []Value) (Value, error) {
	values, err := numbers(args)
	if err != nil {
		return Value{}, err
	}
	if len(values) == 0 {
		return Number(0), nil
	}
	return Number(slices.Min(values)), nil
}

func (bf *BuiltInFunctions) MEDIAN(_ *EvalContext, args []Value) (Value, error) {
	values, err := numbers(args)
	if err != nil {
		return Value{}, err
	}
	if len(values) == 0 {
		return ErrorOf(NewSpreadsheetError(ErrorCodeNum, "MEDIAN has no numeric values")), nil
	}
	slices.Sort(values)
	mid := len(values) / 2
	if len(values)%2 == 0 {
		return Number((values[mid-1] + values[mid]) / 2), nil
	}
	return Number(values[mid]), nil
}

// MODE returns the most frequent value; ties go to the smallest
func (bf *BuiltInFunctions) MODE(_ *EvalContext, args []Value) (Value, error) {
	values, err := numbers(args)
	if err != nil {
		return Value{}, err
	}
	if len(values) == 0 {
		return ErrorOf(NewSpreadsheetError(ErrorCodeNA, "MODE has no numeric values")), nil
	}

	frequency := make(map[float64]int, len(values))
	maxFreq := 0
	for _, v := range values {
		frequency[v]++
		maxFreq = max(maxFreq, frequency[v])
	}
	if maxFreq == 1 {
		return ErrorOf(NewSpreadsheetError(ErrorCodeNA, "MODE: no value appears more than once")), nil
	}

	mode := math.Inf(1)
	for v, freq := range frequency {
		if freq == maxFreq && v < mode {
			mode = v
		}
	}
	return Number(mode), nil
}

func (bf *BuiltInFunctions) ABS(_ *EvalContext, args []Value) (Value, error) {
	num, err := ToNumber(args[0])
	if err != nil {
		return Value{}, err
	}
	return Number(math.Abs(num)), nil
}

// roundWith applies a decimal rounding mode at the given number of places.
// negative places round to the left of the decimal point.
func roundWith(args []Value, mode func(d decimal.Decimal, places int32) decimal.Decimal) (Value, error) {
	num, err := ToNumber(args[0])
	if err != nil {
		return Value{}, err
	}
	places := 0
	if len(args) > 1 {
		if places, err = ToInteger(args[1]); err != nil {
			return Value{}, err
		}
	}
	places = max(min(places, 308), -308)
	f, _ := mode(decimal.NewFromFloat(num), int32(places)).Float64()
	return checkedNumber(f), nil
}

// ROUND rounds half away from zero
func (bf *BuiltInFunctions) ROUND(_ *EvalContext, args []Value) (Value, error) {
	return roundWith(args, decimal.Decimal.Round)
}

func (bf *BuiltInFunctions) ROUNDUP(_ *EvalContext, args []Value) (Value, error) {
	return roundWith(args, decimal.Decimal.RoundUp)
}

func (bf *BuiltInFunctions) ROUNDDOWN(_ *EvalContext, args []Value) (Value, error) {
	return roundWith(args, decimal.Decimal.RoundDown)
}

func (bf *BuiltInFunctions) INT(_ *EvalContext, args []Value) (Value, error) {
	num, err := ToNumber(args[0])
	if err != nil {
		return Value{}, err
	}
	return Number(math.Floor(num)), nil
}

// toMultiple rounds num to a multiple of significance with fn. a positive
// number with a negative significance is #NUM!.
func toMultiple(args []Value, fn func(float64) float64) (Value, error) {
	num, err := ToNumber(args[0])
	if err != nil {
		return Value{}, err
	}
	significance := 1.0
	if len(args) > 1 {
		if significance, err = ToNumber(args[1]); err != nil {
			return Value{}, err
		}
	}
	switch {
	case num == 0:
		return Number(0), nil
	case significance == 0:
		return ErrorOf(NewSpreadsheetError(ErrorCodeDiv0, "Division by zero")), nil
	case num > 0 && significance < 0:
		return Error(ErrorCodeNum), nil
	}
	quotient, _ := decimal.NewFromFloat(num).Div(decimal.NewFromFloat(significance)).Float64()
	return checkedNumber(fn(quotient) * significance), nil
}

func (bf *BuiltInFunctions) FLOOR(_ *EvalContext, args []Value) (Value, error) {
	return toMultiple(args, math.Floor)
}

func (bf *BuiltInFunctions) CEILING(_ *EvalContext, args []Value) (Value, error) {
	return toMultiple(args, math.Ceil)
}

func (bf *BuiltInFunctions) SQRT(_ *EvalContext, args []Value) (Value, error) {
	num, err := ToNumber(args[0])
	if err != nil {
		return Value{}, err
	}
	if num < 0 {
		return ErrorOf(NewSpreadsheetError(ErrorCodeNum, "SQRT requires a non-negative argument")), nil
	}
	return Number(math.Sqrt(num)), nil
}

func (bf *BuiltInFunctions) POWER(_ *EvalContext, args []Value) (Value, error) {
	base, err := ToNumber(args[0])
	if err != nil {
		return Value{}, err
	}
	exp, err := ToNumber(args[1])
	if err != nil {
		return Value{}, err
	}
	return power(base, exp), nil
}

// MOD returns a remainder with the sign of the divisor
func (bf *BuiltInFunctions) MOD(_ *EvalContext, args []Value) (Value, error) {
	dividend, err := ToNumber(args[0])
	if err != nil {
		return Value{}, err
	}
	divisor, err := ToNumber(args[1])
	if err != nil {
		return Value{}, err
	}
	if divisor == 0 {
		return ErrorOf(NewSpreadsheetError(ErrorCodeDiv0, "Division by zero")), nil
	}
	return checkedNumber(dividend - divisor*math.Floor(dividend/divisor)), nil
}

func (bf *BuiltInFunctions) PI(*EvalContext, []Value) (Value, error) {
	return Number(math.Pi), nil
}

func (bf *BuiltInFunctions) RAND(*EvalContext, []Value) (Value, error) {
	return Number(bf.rng.Float64()), nil
}

// serial dates count days from 1899-12-30, ignoring the time zone
var serialEpoch = time.Date(1899, time.December, 30, 0, 0, 0, 0, time.UTC)

// serialDate converts wall clock time to a serial date
func serialDate(t time.Time) float64 {
	wall := time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), time.UTC)
	return wall.Sub(serialEpoch).Hours() / 24
}

func (bf *BuiltInFunctions) NOW(*EvalContext, []Value) (Value, error) {
	return Number(serialDate(bf.clock.Now())), nil
}

func (bf *BuiltInFunctions) TODAY(*EvalContext, []Value) (Value, error) {
	return Number(math.Floor(serialDate(bf.clock.Now()))), nil
}
