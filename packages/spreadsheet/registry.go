package spreadsheet

import (
	"fmt"
	"maps"
	"runtime/debug"
	"slices"
)

// Unbounded marks a signature without an upper argument limit
const Unbounded = -1

// ArgPolicy controls how the dispatcher prepares arguments before calling
// a function body.
type ArgPolicy uint8

const (
	// ArgScalar resolves every argument to a single value through implicit
	// intersection. the first error argument is the result.
	ArgScalar ArgPolicy = iota
	// ArgRange keeps range arguments intact so the body can iterate them.
	// the first error argument is the result; errors inside ranges are the
	// body's job.
	ArgRange
	// ArgRaw passes evaluated arguments untouched, errors included.
	ArgRaw
)

// FunctionImpl is the uniform body signature. a returned error is turned
// into its error code, so bodies may return coercion errors directly.
type FunctionImpl func(ctx *EvalContext, args []Value) (Value, error)

// FunctionSignature describes one registered function. it is immutable
// once registered.
type FunctionSignature struct {
	Name     string
	MinArgs  int
	MaxArgs  int
	Args     ArgPolicy
	Volatile bool
	Impl     FunctionImpl
}

func (sig FunctionSignature) accepts(n int) bool {
	return n >= sig.MinArgs && (sig.MaxArgs == Unbounded || n <= sig.MaxArgs)
}

// Registry maps function names to signatures. it is built once and never
// modified, so one registry may be shared by any number of engines.
type Registry struct {
	functions map[string]FunctionSignature
}

// NewRegistry builds a registry. names are case-sensitive; duplicate names
// and malformed arity are rejected.
func NewRegistry(signatures ...FunctionSignature) (*Registry, error) {
	functions := make(map[string]FunctionSignature, len(signatures))
	for _, sig := range signatures {
		switch {
		case sig.Name == "":
			return nil, NewApplicationError(InvalidArgument, "function name cannot be empty")
		case sig.Impl == nil:
			return nil, NewApplicationError(InvalidArgument, fmt.Sprintf("function %s has no implementation", sig.Name))
		case sig.MinArgs < 0 || (sig.MaxArgs != Unbounded && sig.MaxArgs < sig.MinArgs):
			return nil, NewApplicationError(InvalidArgument, fmt.Sprintf("function %s has invalid arity [%d, %d]", sig.Name, sig.MinArgs, sig.MaxArgs))
		}
		if _, exists := functions[sig.Name]; exists {
			return nil, NewApplicationError(AlreadyExists, fmt.Sprintf("function %s is already registered", sig.Name))
		}
		functions[sig.Name] = sig
	}
	return &Registry{functions: functions}, nil
}

// Lookup returns the signature registered under name
func (r *Registry) Lookup(name string) (FunctionSignature, bool) {
	sig, ok := r.functions[name]
	return sig, ok
}

// IsVolatile reports whether name must be recalculated on every pass
func (r *Registry) IsVolatile(name string) bool {
	return r.functions[name].Volatile
}

// Names returns the registered names in sorted order
func (r *Registry) Names() []string {
	return slices.Sorted(maps.Keys(r.functions))
}

// Dispatch evaluates a call. it never panics and never returns a Range
// unless the function itself produced one.
//
//  1. unknown name is #NAME?, argument count outside [min, max] is #VALUE!
//     and the body is not run
//  2. arguments are evaluated left to right under the signature's policy
//  3. for scalar and range policies the first error argument is returned
//     and later arguments are not evaluated
//  4. the body runs; a returned error becomes its error code
//  5. a panic in the body is recovered and becomes #VALUE!
func (r *Registry) Dispatch(ctx *EvalContext, name string, args []Node) (result Value) {
	sig, ok := r.functions[name]
	if !ok {
		return ErrorOf(NewSpreadsheetError(ErrorCodeName, fmt.Sprintf("unknown function %s", name)))
	}
	if !sig.accepts(len(args)) {
		return ErrorOf(NewSpreadsheetError(ErrorCodeValue, fmt.Sprintf("%s called with %d arguments", name, len(args))))
	}

	values := make([]Value, len(args))
	for i, arg := range args {
		v := arg.Eval(ctx)
		switch sig.Args {
		case ArgScalar:
			v = ctx.ResolveSingle(v)
			if v.kind == KindError {
				return v
			}
		case ArgRange:
			if v.kind == KindError {
				return v
			}
		}
		values[i] = v
	}

	defer func() {
		if recovered := recover(); recovered != nil {
			ctx.Logger().Debug("recovered panic in function body",
				"function", name,
				"cell", ctx.Source.String(),
				"panic", recovered,
				"stack", string(debug.Stack()),
			)
			result = ErrorOf(NewSpreadsheetError(ErrorCodeValue, fmt.Sprintf("%s failed: %v", name, recovered)))
		}
	}()

	out, err := sig.Impl(ctx, values)
	if err != nil {
		return errorValue(err)
	}
	return out
}
