package spreadsheet

import (
	"math/rand/v2"
	"time"
)

// Clock interface provides time functionality for testing
type Clock interface {
	Now() time.Time
}

// WallClock is the default implementation using system time
type WallClock struct{}

func (w *WallClock) Now() time.Time {
	return time.Now()
}

// RandomGenerator interface provides random number generation for testing
type RandomGenerator interface {
	Float64() float64
}

// DefaultRandomGenerator uses the standard library's rand package
type DefaultRandomGenerator struct{}

func (d *DefaultRandomGenerator) Float64() float64 {
	return rand.Float64()
}

// BuiltInFunctions holds the collaborators of the built-in function
// library. its methods are the function bodies.
type BuiltInFunctions struct {
	clock Clock
	rng   RandomGenerator
}

// BuiltinOption configures the built-in function library
type BuiltinOption func(*BuiltInFunctions)

// WithClock replaces the clock used by NOW and TODAY
func WithClock(clock Clock) BuiltinOption {
	return func(bf *BuiltInFunctions) {
		if clock != nil {
			bf.clock = clock
		}
	}
}

// WithRandom replaces the source used by RAND
func WithRandom(rng RandomGenerator) BuiltinOption {
	return func(bf *BuiltInFunctions) {
		if rng != nil {
			bf.rng = rng
		}
	}
}

// BuiltinFunctions returns the signatures of the built-in library
func BuiltinFunctions(opts ...BuiltinOption) []FunctionSignature {
	bf := &BuiltInFunctions{
		clock: &WallClock{},
		rng:   &DefaultRandomGenerator{},
	}
	for _, opt := range opts {
		opt(bf)
	}

	return []FunctionSignature{
		// text
		{Name: "LEN", MinArgs: 1, MaxArgs: 1, Impl: bf.LEN},
		{Name: "LEFT", MinArgs: 1, MaxArgs: 2, Impl: bf.LEFT},
		{Name: "RIGHT", MinArgs: 1, MaxArgs: 2, Impl: bf.RIGHT},
		{Name: "MID", MinArgs: 3, MaxArgs: 3, Impl: bf.MID},
		{Name: "REPLACE", MinArgs: 4, MaxArgs: 4, Impl: bf.REPLACE},
		{Name: "SUBSTITUTE", MinArgs: 3, MaxArgs: 4, Impl: bf.SUBSTITUTE},
		{Name: "FIND", MinArgs: 2, MaxArgs: 3, Impl: bf.FIND},
		{Name: "SEARCH", MinArgs: 2, MaxArgs: 3, Impl: bf.SEARCH},
		{Name: "PROPER", MinArgs: 1, MaxArgs: 1, Impl: bf.PROPER},
		{Name: "CONCATENATE", MinArgs: 1, MaxArgs: 255, Impl: bf.CONCATENATE},
		{Name: "CONCAT", MinArgs: 1, MaxArgs: 254, Args: ArgRange, Impl: bf.CONCAT},
		{Name: "TEXT", MinArgs: 2, MaxArgs: 2, Impl: bf.TEXT},
		{Name: "EXACT", MinArgs: 2, MaxArgs: 2, Impl: bf.EXACT},
		{Name: "UPPER", MinArgs: 1, MaxArgs: 1, Impl: bf.UPPER},
		{Name: "LOWER", MinArgs: 1, MaxArgs: 1, Impl: bf.LOWER},
		{Name: "TRIM", MinArgs: 1, MaxArgs: 1, Impl: bf.TRIM},
		{Name: "REPT", MinArgs: 2, MaxArgs: 2, Impl: bf.REPT},
		{Name: "VALUE", MinArgs: 1, MaxArgs: 1, Impl: bf.VALUE},
		{Name: "T", MinArgs: 1, MaxArgs: 1, Impl: bf.T},
		{Name: "N", MinArgs: 1, MaxArgs: 1, Impl: bf.N},
		{Name: "CHAR", MinArgs: 1, MaxArgs: 1, Impl: bf.CHAR},
		{Name: "CODE", MinArgs: 1, MaxArgs: 1, Impl: bf.CODE},

		// math and statistics
		{Name: "SUM", MinArgs: 1, MaxArgs: Unbounded, Args: ArgRange, Impl: bf.SUM},
		{Name: "PRODUCT", MinArgs: 1, MaxArgs: Unbounded, Args: ArgRange, Impl: bf.PRODUCT},
		{Name: "AVERAGE", MinArgs: 1, MaxArgs: Unbounded, Args: ArgRange, Impl: bf.AVERAGE},
		{Name: "AVERAGEA", MinArgs: 1, MaxArgs: Unbounded, Args: ArgRange, Impl: bf.AVERAGEA},
		{Name: "COUNT", MinArgs: 1, MaxArgs: Unbounded, Args: ArgRaw, Impl: bf.COUNT},
		{Name: "COUNTA", MinArgs: 1, MaxArgs: Unbounded, Args: ArgRaw, Impl: bf.COUNTA},
		{Name: "MAX", MinArgs: 1, MaxArgs: Unbounded, Args: ArgRange, Impl: bf.MAX},
		{Name: "MIN", MinArgs: 1, MaxArgs: Unbounded, Args: ArgRange, Impl: bf.MIN},
		{Name: "MEDIAN", MinArgs: 1, MaxArgs: Unbounded, Args: ArgRange, Impl: bf.MEDIAN},
		{Name: "MODE", MinArgs: 1, MaxArgs: Unbounded, Args: ArgRange, Impl: bf.MODE},
		{Name: "ABS", MinArgs: 1, MaxArgs: 1, Impl: bf.ABS},
		{Name: "ROUND", MinArgs: 1, MaxArgs: 2, Impl: bf.ROUND},
		{Name: "ROUNDUP", MinArgs: 1, MaxArgs: 2, Impl: bf.ROUNDUP},
		{Name: "ROUNDDOWN", MinArgs: 1, MaxArgs: 2, Impl: bf.ROUNDDOWN},
		{Name: "INT", MinArgs: 1, MaxArgs: 1, Impl: bf.INT},
		{Name: "FLOOR", MinArgs: 1, MaxArgs: 2, Impl: bf.FLOOR},
		{Name: "CEILING", MinArgs: 1, MaxArgs: 2, Impl: bf.CEILING},
		{Name: "SQRT", MinArgs: 1, MaxArgs: 1, Impl: bf.SQRT},
		{Name: "POWER", MinArgs: 2, MaxArgs: 2, Impl: bf.POWER},
		{Name: "MOD", MinArgs: 2, MaxArgs: 2, Impl: bf.MOD},
		{Name: "PI", MinArgs: 0, MaxArgs: 0, Impl: bf.PI},

		// logical and information
		{Name: "IF", MinArgs: 2, MaxArgs: 3, Args: ArgRaw, Impl: bf.IF},
		{Name: "IFERROR", MinArgs: 2, MaxArgs: 2, Args: ArgRaw, Impl: bf.IFERROR},
		{Name: "AND", MinArgs: 1, MaxArgs: Unbounded, Args: ArgRange, Impl: bf.AND},
		{Name: "OR", MinArgs: 1, MaxArgs: Unbounded, Args: ArgRange, Impl: bf.OR},
		{Name: "NOT", MinArgs: 1, MaxArgs: 1, Impl: bf.NOT},
		{Name: "TRUE", MinArgs: 0, MaxArgs: 0, Impl: bf.TRUE},
		{Name: "FALSE", MinArgs: 0, MaxArgs: 0, Impl: bf.FALSE},
		{Name: "NA", MinArgs: 0, MaxArgs: 0, Impl: bf.NA},
		{Name: "ISERROR", MinArgs: 1, MaxArgs: 1, Args: ArgRaw, Impl: isKind(KindError)},
		{Name: "ISNUMBER", MinArgs: 1, MaxArgs: 1, Args: ArgRaw, Impl: isKind(KindNumber)},
		{Name: "ISTEXT", MinArgs: 1, MaxArgs: 1, Args: ArgRaw, Impl: isKind(KindText)},
		{Name: "ISBLANK", MinArgs: 1, MaxArgs: 1, Args: ArgRaw, Impl: isKind(KindBlank)},

		// volatile
		{Name: "NOW", MinArgs: 0, MaxArgs: 0, Volatile: true, Impl: bf.NOW},
		{Name: "TODAY", MinArgs: 0, MaxArgs: 0, Volatile: true, Impl: bf.TODAY},
		{Name: "RAND", MinArgs: 0, MaxArgs: 0, Volatile: true, Impl: bf.RAND},
	}
}

// NewBuiltinRegistry builds a registry holding the built-in library. the
// table is static, so a failure here is a programming error.
func NewBuiltinRegistry(opts ...BuiltinOption) *Registry {
	registry, err := NewRegistry(BuiltinFunctions(opts...)...)
	if err != nil {
		panic(err)
	}
	return registry
}
