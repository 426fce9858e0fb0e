package spreadsheet

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type emptyResolver struct{}

func (emptyResolver) CellValue(CellAddress) Value { return Blank() }

func (emptyResolver) Bounds(uint32) (RangeAddress, bool) { return RangeAddress{WorksheetID: 1}, true }

func (emptyResolver) ResolveName(string) (RangeAddress, bool) { return RangeAddress{}, false }

// countingNode records how often it was evaluated
type countingNode struct {
	value Value
	evals int
}

func (n *countingNode) Eval(*EvalContext) Value {
	n.evals++
	return n.value
}

func (n *countingNode) String() string { return n.value.String() }

func echoFirst(_ *EvalContext, args []Value) (Value, error) {
	if len(args) == 0 {
		return Blank(), nil
	}
	return args[0], nil
}

func newRegistryContext(t *testing.T, registry *Registry) *EvalContext {
	t.Helper()
	return NewEvalContext(CellAddress{WorksheetID: 1}, emptyResolver{}, registry, PatternFormatter{}, nil)
}

func TestNewRegistryValidation(t *testing.T) {
	tests := []struct {
		name string
		sigs []FunctionSignature
		code AppErrorCode
	}{
		{"empty name", []FunctionSignature{{MinArgs: 0, MaxArgs: 1, Impl: echoFirst}}, InvalidArgument},
		{"missing body", []FunctionSignature{{Name: "F", MaxArgs: 1}}, InvalidArgument},
		{"negative minimum", []FunctionSignature{{Name: "F", MinArgs: -1, MaxArgs: 1, Impl: echoFirst}}, InvalidArgument},
		{"inverted arity", []FunctionSignature{{Name: "F", MinArgs: 2, MaxArgs: 1, Impl: echoFirst}}, InvalidArgument},
		{"duplicate", []FunctionSignature{
			{Name: "F", MaxArgs: 1, Impl: echoFirst},
			{Name: "F", MaxArgs: 2, Impl: echoFirst},
		}, AlreadyExists},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			registry, err := NewRegistry(tt.sigs...)
			assert.Nil(t, registry)
			assert.Equal(t, tt.code, ErrorCodeOf(err))
		})
	}

	registry, err := NewRegistry(
		FunctionSignature{Name: "f", MaxArgs: Unbounded, Impl: echoFirst},
		FunctionSignature{Name: "F", MaxArgs: Unbounded, Impl: echoFirst},
	)
	require.NoError(t, err)
	assert.Equal(t, []string{"F", "f"}, registry.Names())
}

func TestDispatch(t *testing.T) {
	var bodyCalls int
	registry, err := NewRegistry(
		FunctionSignature{Name: "ONE", MinArgs: 1, MaxArgs: 1, Impl: func(ctx *EvalContext, args []Value) (Value, error) {
			bodyCalls++
			return args[0], nil
		}},
		FunctionSignature{Name: "SCALAR", MaxArgs: Unbounded, Impl: echoFirst},
		FunctionSignature{Name: "RANGE", MaxArgs: Unbounded, Args: ArgRange, Impl: echoFirst},
		FunctionSignature{Name: "RAW", MaxArgs: Unbounded, Args: ArgRaw, Impl: func(_ *EvalContext, args []Value) (Value, error) {
			return Number(float64(len(args))), nil
		}},
		FunctionSignature{Name: "FAIL", Impl: func(*EvalContext, []Value) (Value, error) {
			return Blank(), NewSpreadsheetError(ErrorCodeNum, "out of domain")
		}},
		FunctionSignature{Name: "PANIC", Impl: func(*EvalContext, []Value) (Value, error) {
			var rows [][]Value
			return rows[3][0], nil
		}},
		FunctionSignature{Name: "TICK", Volatile: true, Impl: echoFirst},
	)
	require.NoError(t, err)
	ctx := newRegistryContext(t, registry)

	t.Run("unknown name", func(t *testing.T) {
		assert.Equal(t, ErrorCodeName, registry.Dispatch(ctx, "NOPE", nil).ErrorCode())
	})

	t.Run("arity", func(t *testing.T) {
		arg := &countingNode{value: Number(1)}
		assert.Equal(t, ErrorCodeValue, registry.Dispatch(ctx, "ONE", nil).ErrorCode())
		assert.Equal(t, ErrorCodeValue, registry.Dispatch(ctx, "ONE", []Node{arg, arg}).ErrorCode())
		assert.Zero(t, bodyCalls)
		assert.Zero(t, arg.evals)

		assert.Equal(t, 1.0, registry.Dispatch(ctx, "ONE", []Node{arg}).Num())
		assert.Equal(t, 1, bodyCalls)
	})

	t.Run("scalar stops at first error", func(t *testing.T) {
		first := &countingNode{value: Error(ErrorCodeNA)}
		second := &countingNode{value: Error(ErrorCodeDiv0)}
		got := registry.Dispatch(ctx, "SCALAR", []Node{first, second})
		assert.Equal(t, ErrorCodeNA, got.ErrorCode())
		assert.Equal(t, 1, first.evals)
		assert.Zero(t, second.evals)
	})

	t.Run("scalar intersects ranges", func(t *testing.T) {
		block := &countingNode{value: RangeOf(NewArrayRange([][]Value{{Number(1), Number(2)}, {Number(3), Number(4)}}))}
		assert.Equal(t, ErrorCodeValue, registry.Dispatch(ctx, "SCALAR", []Node{block}).ErrorCode())
	})

	t.Run("range keeps ranges", func(t *testing.T) {
		block := &countingNode{value: RangeOf(NewArrayRange([][]Value{{Number(1), Number(2)}}))}
		got := registry.Dispatch(ctx, "RANGE", []Node{block})
		require.True(t, got.IsRange())
		assert.Equal(t, 2, got.Range().Width())

		bad := &countingNode{value: Error(ErrorCodeRef)}
		later := &countingNode{value: Number(1)}
		assert.Equal(t, ErrorCodeRef, registry.Dispatch(ctx, "RANGE", []Node{bad, later}).ErrorCode())
		assert.Zero(t, later.evals)
	})

	t.Run("raw passes errors", func(t *testing.T) {
		args := []Node{
			&countingNode{value: Error(ErrorCodeNA)},
			&countingNode{value: Error(ErrorCodeDiv0)},
			&countingNode{value: Text("x")},
		}
		assert.Equal(t, 3.0, registry.Dispatch(ctx, "RAW", args).Num())
	})

	t.Run("returned error", func(t *testing.T) {
		got := registry.Dispatch(ctx, "FAIL", nil)
		assert.Equal(t, ErrorCodeNum, got.ErrorCode())
		assert.Equal(t, "out of domain", got.Err().Message)
	})

	t.Run("panic", func(t *testing.T) {
		assert.NotPanics(t, func() {
			assert.Equal(t, ErrorCodeValue, registry.Dispatch(ctx, "PANIC", nil).ErrorCode())
		})
	})

	t.Run("volatility", func(t *testing.T) {
		assert.True(t, registry.IsVolatile("TICK"))
		assert.False(t, registry.IsVolatile("ONE"))
		assert.False(t, registry.IsVolatile("NOPE"))
	})
}

func TestBuiltinRegistry(t *testing.T) {
	registry := NewBuiltinRegistry()

	required := []string{
		"SUM", "PRODUCT", "AVERAGE", "AVERAGEA", "COUNT", "COUNTA", "MAX", "MIN", "MEDIAN", "MODE",
		"ABS", "ROUND", "ROUNDUP", "ROUNDDOWN", "INT", "FLOOR", "CEILING", "SQRT", "POWER", "MOD", "PI",
		"IF", "IFERROR", "AND", "OR", "NOT", "TRUE", "FALSE", "NA",
		"ISERROR", "ISNUMBER", "ISTEXT", "ISBLANK",
		"LEN", "LEFT", "RIGHT", "MID", "REPLACE", "SUBSTITUTE", "FIND", "SEARCH", "PROPER",
		"CONCATENATE", "CONCAT", "TEXT", "EXACT", "UPPER", "LOWER", "TRIM", "REPT", "VALUE",
		"T", "N", "CHAR", "CODE",
		"NOW", "TODAY", "RAND",
	}
	for _, name := range required {
		_, ok := registry.Lookup(name)
		assert.True(t, ok, name)
	}
	assert.Len(t, registry.Names(), len(required))

	var volatile []string
	for _, name := range registry.Names() {
		if registry.IsVolatile(name) {
			volatile = append(volatile, name)
		}
	}
	assert.Equal(t, []string{"NOW", "RAND", "TODAY"}, volatile)

	sig, _ := registry.Lookup("IF")
	assert.Equal(t, ArgRaw, sig.Args)
	sig, _ = registry.Lookup("SUM")
	assert.Equal(t, ArgRange, sig.Args)
	sig, _ = registry.Lookup("LEN")
	assert.Equal(t, ArgScalar, sig.Args)

	_, ok := registry.Lookup("sum")
	assert.False(t, ok)
}
