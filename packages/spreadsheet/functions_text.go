package spreadsheet

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/language"
)

// maxTextLength is the longest string a cell can hold
const maxTextLength = 32767

// text functions count Unicode code points, not bytes

func (bf *BuiltInFunctions) LEN(_ *EvalContext, args []Value) (Value, error) {
	s, err := ToText(args[0])
	if err != nil {
		return Value{}, err
	}
	return Number(float64(utf8.RuneCountInString(s))), nil
}

// optionalCount reads an optional character count argument (default 1)
func optionalCount(args []Value, i int) (int, error) {
	if i >= len(args) {
		return 1, nil
	}
	n, err := ToInteger(args[i])
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, valueError
	}
	return n, nil
}

func (bf *BuiltInFunctions) LEFT(_ *EvalContext, args []Value) (Value, error) {
	s, err := ToText(args[0])
	if err != nil {
		return Value{}, err
	}
	n, err := optionalCount(args, 1)
	if err != nil {
		return Value{}, err
	}
	runes := []rune(s)
	return Text(string(runes[:min(n, len(runes))])), nil
}

func (bf *BuiltInFunctions) RIGHT(_ *EvalContext, args []Value) (Value, error) {
	s, err := ToText(args[0])
	if err != nil {
		return Value{}, err
	}
	n, err := optionalCount(args, 1)
	if err != nil {
		return Value{}, err
	}
	runes := []rune(s)
	return Text(string(runes[len(runes)-min(n, len(runes)):])), nil
}

// MID returns count characters starting at the 1-based position start. a
// start past the end yields empty text.
func (bf *BuiltInFunctions) MID(_ *EvalContext, args []Value) (Value, error) {
	s, err := ToText(args[0])
	if err != nil {
		return Value{}, err
	}
	start, err := ToInteger(args[1])
	if err != nil {
		return Value{}, err
	}
	count, err := ToInteger(args[2])
	if err != nil {
		return Value{}, err
	}
	if start < 1 || count < 0 {
		return Error(ErrorCodeValue), nil
	}
	runes := []rune(s)
	if start > len(runes) {
		return Text(""), nil
	}
	end := min(start-1+count, len(runes))
	return Text(string(runes[start-1 : end])), nil
}

// REPLACE removes count characters at start and inserts replacement there.
// a start past the end appends.
func (bf *BuiltInFunctions) REPLACE(_ *EvalContext, args []Value) (Value, error) {
	old, err := ToText(args[0])
	if err != nil {
		return Value{}, err
	}
	start, err := ToInteger(args[1])
	if err != nil {
		return Value{}, err
	}
	count, err := ToInteger(args[2])
	if err != nil {
		return Value{}, err
	}
	replacement, err := ToText(args[3])
	if err != nil {
		return Value{}, err
	}
	if start < 1 || count < 0 {
		return Error(ErrorCodeValue), nil
	}
	runes := []rune(old)
	if start-1 >= len(runes) {
		return Text(old + replacement), nil
	}
	end := min(start-1+count, len(runes))
	return Text(string(runes[:start-1]) + replacement + string(runes[end:])), nil
}

// SUBSTITUTE replaces every occurrence of search, or only the n-th when an
// instance is given
func (bf *BuiltInFunctions) SUBSTITUTE(_ *EvalContext, args []Value) (Value, error) {
	s, err := ToText(args[0])
	if err != nil {
		return Value{}, err
	}
	search, err := ToText(args[1])
	if err != nil {
		return Value{}, err
	}
	replacement, err := ToText(args[2])
	if err != nil {
		return Value{}, err
	}

	if len(args) < 4 {
		if search == "" {
			return Text(s), nil
		}
		return Text(strings.ReplaceAll(s, search, replacement)), nil
	}

	instance, err := ToInteger(args[3])
	if err != nil {
		return Value{}, err
	}
	if instance < 1 {
		return Error(ErrorCodeValue), nil
	}
	if search == "" {
		return Text(s), nil
	}

	pos := 0
	for seen := 1; ; seen++ {
		idx := strings.Index(s[pos:], search)
		if idx == -1 {
			return Text(s), nil
		}
		idx += pos
		if seen == instance {
			return Text(s[:idx] + replacement + s[idx+len(search):]), nil
		}
		pos = idx + len(search)
	}
}

// findText returns the 1-based position of needle in haystack at or after
// start. match decides whether two equal-length rune windows are equal.
func findText(args []Value, match func(a, b string) bool) (Value, error) {
	needle, err := ToText(args[0])
	if err != nil {
		return Value{}, err
	}
	haystack, err := ToText(args[1])
	if err != nil {
		return Value{}, err
	}
	start := 1
	if len(args) > 2 {
		if start, err = ToInteger(args[2]); err != nil {
			return Value{}, err
		}
	}

	h := []rune(haystack)
	n := []rune(needle)
	if start < 1 || start > len(h)+1 {
		return Error(ErrorCodeValue), nil
	}
	if len(n) == 0 {
		return Number(float64(start)), nil
	}
	want := string(n)
	for i := start - 1; i+len(n) <= len(h); i++ {
		if match(string(h[i:i+len(n)]), want) {
			return Number(float64(i + 1)), nil
		}
	}
	return ErrorOf(NewSpreadsheetError(ErrorCodeValue, "text not found")), nil
}

// FIND is case-sensitive
func (bf *BuiltInFunctions) FIND(_ *EvalContext, args []Value) (Value, error) {
	return findText(args, func(a, b string) bool { return a == b })
}

// SEARCH is case-insensitive. wildcards are not interpreted.
func (bf *BuiltInFunctions) SEARCH(_ *EvalContext, args []Value) (Value, error) {
	return findText(args, strings.EqualFold)
}

// PROPER capitalizes the first letter of every run of letters and
// lower-cases the rest of the run. any other character ends a run.
func (bf *BuiltInFunctions) PROPER(_ *EvalContext, args []Value) (Value, error) {
	s, err := ToText(args[0])
	if err != nil {
		return Value{}, err
	}
	var b strings.Builder
	b.Grow(len(s))
	inWord := false
	for i, r := range []rune(s) {
		switch {
		case i == 0 || (unicode.IsLetter(r) && !inWord):
			b.WriteRune(unicode.ToUpper(r))
		case unicode.IsLetter(r):
			b.WriteRune(unicode.ToLower(r))
		default:
			b.WriteRune(r)
		}
		inWord = unicode.IsLetter(r)
	}
	return Text(b.String()), nil
}

// CONCATENATE joins scalar arguments
func (bf *BuiltInFunctions) CONCATENATE(_ *EvalContext, args []Value) (Value, error) {
	var b strings.Builder
	for _, arg := range args {
		s, err := ToText(arg)
		if err != nil {
			return Value{}, err
		}
		b.WriteString(s)
	}
	return checkedText(b.String()), nil
}

// CONCAT joins its arguments, flattening ranges row by row
func (bf *BuiltInFunctions) CONCAT(_ *EvalContext, args []Value) (Value, error) {
	var b strings.Builder
	err := eachValue(args, func(v Value, _ bool) error {
		s, err := ToText(v)
		if err != nil {
			return err
		}
		b.WriteString(s)
		return nil
	})
	if err != nil {
		return Value{}, err
	}
	return checkedText(b.String()), nil
}

func checkedText(s string) Value {
	if utf8.RuneCountInString(s) > maxTextLength {
		return Error(ErrorCodeValue)
	}
	return Text(s)
}

// TEXT formats a value with a number format pattern. text that does not
// look like a number is returned as is.
func (bf *BuiltInFunctions) TEXT(ctx *EvalContext, args []Value) (result Value, err error) {
	pattern, err := ToText(args[1])
	if err != nil {
		return Value{}, err
	}

	var num float64
	switch v := args[0]; v.Kind() {
	case KindBoolean:
		return Text(v.String()), nil
	case KindText:
		f, ok := parseNumberText(v.Str())
		if !ok {
			return v, nil
		}
		num = f
	default:
		if num, err = ToNumber(v); err != nil {
			return Value{}, err
		}
	}

	formatter := ctx.Formatter()
	if formatter == nil {
		formatter = PatternFormatter{}
	}

	defer func() {
		if r := recover(); r != nil {
			ctx.Logger().Debug("number formatter panicked", "pattern", pattern, "panic", r)
			result, err = Error(ErrorCodeValue), nil
		}
	}()
	out, ferr := formatter.Format(num, pattern)
	if ferr != nil {
		ctx.Logger().Debug("number format rejected", "pattern", pattern, "error", ferr)
		return Error(ErrorCodeValue), nil
	}
	return Text(out), nil
}

// EXACT compares two strings case-sensitively
func (bf *BuiltInFunctions) EXACT(_ *EvalContext, args []Value) (Value, error) {
	a, err := ToText(args[0])
	if err != nil {
		return Value{}, err
	}
	b, err := ToText(args[1])
	if err != nil {
		return Value{}, err
	}
	return Boolean(a == b), nil
}

func (bf *BuiltInFunctions) UPPER(_ *EvalContext, args []Value) (Value, error) {
	s, err := ToText(args[0])
	if err != nil {
		return Value{}, err
	}
	return Text(cases.Upper(language.Und).String(s)), nil
}

func (bf *BuiltInFunctions) LOWER(_ *EvalContext, args []Value) (Value, error) {
	s, err := ToText(args[0])
	if err != nil {
		return Value{}, err
	}
	return Text(cases.Lower(language.Und).String(s)), nil
}

// TRIM removes leading and trailing spaces and collapses inner runs of
// spaces to one. other whitespace is kept.
func (bf *BuiltInFunctions) TRIM(_ *EvalContext, args []Value) (Value, error) {
	s, err := ToText(args[0])
	if err != nil {
		return Value{}, err
	}
	fields := strings.FieldsFunc(s, func(r rune) bool { return r == ' ' })
	return Text(strings.Join(fields, " ")), nil
}

func (bf *BuiltInFunctions) REPT(_ *EvalContext, args []Value) (Value, error) {
	s, err := ToText(args[0])
	if err != nil {
		return Value{}, err
	}
	n, err := ToInteger(args[1])
	if err != nil {
		return Value{}, err
	}
	if n < 0 || utf8.RuneCountInString(s)*n > maxTextLength {
		return Error(ErrorCodeValue), nil
	}
	return Text(strings.Repeat(s, n)), nil
}

// VALUE converts numeric text to a number
func (bf *BuiltInFunctions) VALUE(_ *EvalContext, args []Value) (Value, error) {
	switch v := args[0]; v.Kind() {
	case KindNumber:
		return v, nil
	case KindBlank:
		return Number(0), nil
	case KindText:
		if f, ok := parseNumberText(v.Str()); ok {
			return Number(f), nil
		}
	}
	return Error(ErrorCodeValue), nil
}

// T returns text unchanged and empty text for anything else
func (bf *BuiltInFunctions) T(_ *EvalContext, args []Value) (Value, error) {
	if args[0].Kind() == KindText {
		return args[0], nil
	}
	return Text(""), nil
}

// N returns numbers unchanged, booleans as 1 or 0 and 0 for anything else
func (bf *BuiltInFunctions) N(_ *EvalContext, args []Value) (Value, error) {
	switch v := args[0]; v.Kind() {
	case KindNumber:
		return v, nil
	case KindBoolean:
		f, _ := ToNumber(v)
		return Number(f), nil
	}
	return Number(0), nil
}

// CHAR maps a code in 1..255 to its character in the Windows-1252 code page
func (bf *BuiltInFunctions) CHAR(_ *EvalContext, args []Value) (Value, error) {
	n, err := ToInteger(args[0])
	if err != nil {
		return Value{}, err
	}
	if n < 1 || n > 255 {
		return Error(ErrorCodeValue), nil
	}
	return Text(string(charmap.Windows1252.DecodeByte(byte(n)))), nil
}

// CODE returns the Windows-1252 code of the first character. characters
// outside the code page report 63, the code of '?'.
func (bf *BuiltInFunctions) CODE(_ *EvalContext, args []Value) (Value, error) {
	s, err := ToText(args[0])
	if err != nil {
		return Value{}, err
	}
	if s == "" {
		return Error(ErrorCodeValue), nil
	}
	r, _ := utf8.DecodeRuneInString(s)
	b, ok := charmap.Windows1252.EncodeRune(r)
	if !ok {
		return Number('?'), nil
	}
	return Number(float64(b)), nil
}
