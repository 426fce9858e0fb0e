package spreadsheet

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPatternFormatter(t *testing.T) {
	tests := []struct {
		name    string
		value   float64
		pattern string
		want    string
	}{
		{"fixed decimals", 3.14159, "0.00", "3.14"},
		{"thousands", 1234.567, "#,##0.00", "1,234.57"},
		{"thousands rounding", 1234567.891, "#,##0", "1,234,568"},
		{"scale by thousand", 1500000, "#,##0,", "1,500"},
		{"percent", 0.5, "0%", "50%"},
		{"optional digits", 0.123, "#.##", ".12"},
		{"optional digits trimmed", 2, "#.##", "2."},
		{"required digit after optional", 1, "0.#0", "1.00"},
		{"optional digits after required", 1.5, "0.0#", "1.5"},
		{"padded digits", 1.5, "0.0?", "1.5 "},
		{"scientific", 12345.678, "0.00E+00", "1.23E+04"},
		{"negative", -3, "0.0", "-3.0"},
		{"negative rounds to zero", -0.001, "0.00", "0.00"},
		{"negative section", -3, "0;(0)", "(3)"},
		{"zero section", 0, `0;-0;"zero"`, "zero"},
		{"quoted literal", 5, `"$"0`, "$5"},
		{"escaped literal", 5, `0\x`, "5x"},
		{"general", 42, "General", "42"},
		{"general fraction", 1.0 / 3, "General", "0.333333333333333"},
		{"empty section hides", -1, "0;", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := PatternFormatter{}.Format(tt.value, tt.pattern)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPatternFormatterRejects(t *testing.T) {
	tests := []struct {
		name    string
		value   float64
		pattern string
	}{
		{"date codes", 1, "yyyy-mm-dd"},
		{"too many sections", 1, "0;0;0;@;0"},
		{"unterminated quote", 1, `"abc`},
		{"unterminated bracket", 1, "[Red0"},
		{"not a number", math.NaN(), "0"},
		{"infinite", math.Inf(1), "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := PatternFormatter{}.Format(tt.value, tt.pattern)
			assert.Error(t, err)
		})
	}
}
