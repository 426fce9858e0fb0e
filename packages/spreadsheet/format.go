package spreadsheet

import (
	"fmt"
	"math"
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// NumberFormatter renders a number with a format pattern such as "#,##0.00"
type NumberFormatter interface {
	Format(value float64, pattern string) (string, error)
}

// PatternFormatter implements the common subset of spreadsheet number
// formats: General, 0 # ? placeholders, thousands separators and scaling,
// percent, scientific notation, quoted and escaped literals, @ and up to
// four ; separated sections. date and time codes are rejected.
type PatternFormatter struct{}

var _ NumberFormatter = PatternFormatter{}

// formatPart is either literal text or the numeric core of a section
type formatPart struct {
	literal string
	core    string
	general bool
	text    bool
}

type formatSection struct {
	parts   []formatPart
	percent int
}

func (PatternFormatter) Format(value float64, pattern string) (string, error) {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return "", fmt.Errorf("cannot format %v", value)
	}
	raw, err := splitSections(pattern)
	if err != nil {
		return "", err
	}

	idx := 0
	switch {
	case value < 0 && len(raw) >= 2:
		idx = 1
	case value == 0 && len(raw) >= 3:
		idx = 2
	}
	section, err := parseSection(raw[idx])
	if err != nil {
		return "", err
	}

	// only the first section carries an implicit minus sign
	negative := value < 0 && idx == 0
	return section.render(math.Abs(value), negative)
}

// splitSections splits a pattern on ; outside quotes and escapes
func splitSections(pattern string) ([]string, error) {
	var sections []string
	var cur strings.Builder
	inQuote, escaped := false, false
	for _, r := range pattern {
		switch {
		case escaped:
			escaped = false
		case inQuote:
			inQuote = r != '"'
		case r == '\\':
			escaped = true
		case r == '"':
			inQuote = true
		case r == ';':
			sections = append(sections, cur.String())
			cur.Reset()
			continue
		}
		cur.WriteRune(r)
	}
	if inQuote {
		return nil, fmt.Errorf("unterminated quote in format %q", pattern)
	}
	sections = append(sections, cur.String())
	if len(sections) > 4 {
		return nil, fmt.Errorf("format %q has more than four sections", pattern)
	}
	return sections, nil
}

func isPlaceholder(r rune) bool {
	return r == '0' || r == '#' || r == '?'
}

// parseSection splits a section into literals around a single numeric core
func parseSection(s string) (formatSection, error) {
	var sec formatSection
	// an empty section hides the value
	if s == "" {
		return sec, nil
	}

	runes := []rune(s)
	var literal strings.Builder
	flush := func() {
		if literal.Len() > 0 {
			sec.parts = append(sec.parts, formatPart{literal: literal.String()})
			literal.Reset()
		}
	}
	haveCore := false

	for i := 0; i < len(runes); i++ {
		r := runes[i]
		switch {
		case r == '"':
			end := i + 1
			for end < len(runes) && runes[end] != '"' {
				end++
			}
			literal.WriteString(string(runes[i+1 : end]))
			i = end
		case r == '\\' && i+1 < len(runes):
			literal.WriteRune(runes[i+1])
			i++
		case r == '_' && i+1 < len(runes):
			literal.WriteRune(' ')
			i++
		case r == '*' && i+1 < len(runes):
			i++
		case r == '[':
			end := strings.IndexRune(string(runes[i:]), ']')
			if end == -1 {
				return sec, fmt.Errorf("unterminated bracket in format %q", s)
			}
			i += len([]rune(string(runes[i:])[:end]))
		case r == '%':
			sec.percent++
			literal.WriteRune(r)
		case r == '@':
			flush()
			sec.parts = append(sec.parts, formatPart{text: true})
		case strings.HasPrefix(strings.ToLower(string(runes[i:])), "general"):
			flush()
			sec.parts = append(sec.parts, formatPart{general: true})
			i += len("general") - 1
		case isPlaceholder(r) || r == '.' || (r == ',' && haveCoreAhead(runes, i)):
			if haveCore {
				return sec, fmt.Errorf("literal text between digit placeholders is not supported in %q", s)
			}
			flush()
			end := coreEnd(runes, i)
			sec.parts = append(sec.parts, formatPart{core: string(runes[i:end])})
			haveCore = true
			i = end - 1
		case unicode.IsLetter(r):
			return sec, fmt.Errorf("unsupported format code %q in %q", r, s)
		default:
			literal.WriteRune(r)
		}
	}
	flush()
	return sec, nil
}

// haveCoreAhead reports whether a comma at i is followed by a placeholder
func haveCoreAhead(runes []rune, i int) bool {
	return i+1 < len(runes) && isPlaceholder(runes[i+1])
}

// coreEnd finds the end of the numeric core that starts at i
func coreEnd(runes []rune, i int) int {
	for i < len(runes) {
		r := runes[i]
		switch {
		case isPlaceholder(r) || r == '.' || r == ',':
			i++
		case (r == 'E' || r == 'e') && i+1 < len(runes) && (runes[i+1] == '+' || runes[i+1] == '-'):
			i += 2
			for i < len(runes) && isPlaceholder(runes[i]) {
				i++
			}
			return i
		default:
			return i
		}
	}
	return i
}

func (sec formatSection) render(value float64, negative bool) (string, error) {
	for range sec.percent {
		value *= 100
	}

	var b strings.Builder
	zero := true
	for _, part := range sec.parts {
		switch {
		case part.general, part.text:
			s := formatNumber(value)
			zero = zero && value == 0
			b.WriteString(s)
		case part.core != "":
			s, isZero, err := formatCore(value, part.core)
			if err != nil {
				return "", err
			}
			zero = zero && isZero
			b.WriteString(s)
		default:
			b.WriteString(part.literal)
		}
	}
	if negative && !zero {
		return "-" + b.String(), nil
	}
	return b.String(), nil
}

// formatCore renders the placeholder block. it also reports whether the
// rounded output is zero, which suppresses the minus sign.
func formatCore(value float64, core string) (string, bool, error) {
	if idx := strings.IndexAny(core, "Ee"); idx != -1 {
		return formatExponent(value, core[:idx], core[idx+1:])
	}

	intPart, fracPart, _ := strings.Cut(core, ".")
	hasPoint := strings.Contains(core, ".")

	// trailing commas scale by a thousand each
	for strings.HasSuffix(intPart, ",") {
		intPart = intPart[:len(intPart)-1]
		value /= 1000
	}
	grouping := strings.Contains(intPart, ",")
	intPart = strings.ReplaceAll(intPart, ",", "")
	fracPart = strings.ReplaceAll(fracPart, ",", "")

	rounded := decimal.NewFromFloat(value).Round(int32(len(fracPart)))
	isZero := rounded.IsZero()

	digits := rounded.Truncate(0).String()
	minInt := strings.Count(intPart, "0")
	if digits == "0" && minInt == 0 {
		digits = ""
	}
	if len(digits) < minInt {
		digits = strings.Repeat("0", minInt-len(digits)) + digits
	}
	if pad := strings.Count(intPart, "?") - len(digits); pad > 0 && minInt == 0 {
		digits = strings.Repeat(" ", pad) + digits
	}
	if grouping {
		digits = groupThousands(digits)
	}
	if !hasPoint {
		return digits, isZero, nil
	}

	frac := ""
	if len(fracPart) > 0 {
		_, frac, _ = strings.Cut(rounded.StringFixed(int32(len(fracPart))), ".")
	}
	out := []rune(frac)
trim:
	for i := len(fracPart) - 1; i >= 0 && out[i] == '0'; i-- {
		switch fracPart[i] {
		case '#':
			out = out[:i]
		case '?':
			out[i] = ' '
		default:
			break trim
		}
	}
	return digits + "." + string(out), isZero, nil
}

// groupThousands inserts thousands separators into a digit string
func groupThousands(digits string) string {
	trimmed := strings.TrimLeft(digits, " ")
	if trimmed == "" {
		return digits
	}
	n, err := decimal.NewFromString(trimmed)
	if err == nil && n.LessThan(decimal.NewFromInt(math.MaxInt64)) && !strings.HasPrefix(trimmed, "0") {
		p := message.NewPrinter(language.English)
		return digits[:len(digits)-len(trimmed)] + p.Sprintf("%d", n.IntPart())
	}

	var b strings.Builder
	for i, r := range trimmed {
		if i > 0 && (len(trimmed)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	return digits[:len(digits)-len(trimmed)] + b.String()
}

// formatExponent renders mantissa placeholders with an E+ or E- exponent
func formatExponent(value float64, mantissa, exponent string) (string, bool, error) {
	if len(exponent) < 2 {
		return "", false, fmt.Errorf("malformed exponent %q", exponent)
	}
	sign, expDigits := exponent[0], len(exponent)-1
	_, frac, _ := strings.Cut(mantissa, ".")
	required := strings.Count(frac, "0")

	out := formatScientific(value, len(frac), expDigits, false)
	m, e, _ := strings.Cut(out, "E")
	if required < len(frac) {
		whole, fraction, _ := strings.Cut(m, ".")
		fraction = strings.TrimRight(fraction, "0")
		for len(fraction) < required {
			fraction += "0"
		}
		m = whole
		if strings.Contains(mantissa, ".") {
			m += "." + fraction
		}
	}
	if sign == '-' {
		e = strings.TrimPrefix(e, "+")
	}
	return m + "E" + e, value == 0, nil
}
