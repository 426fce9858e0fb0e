package spreadsheet

// IF picks a branch. the branches are returned as evaluated, so a range
// branch is left for the caller to resolve.
func (bf *BuiltInFunctions) IF(ctx *EvalContext, args []Value) (Value, error) {
	cond := ctx.ResolveSingle(args[0])
	if cond.IsError() {
		return cond, nil
	}
	ok, err := ToBoolean(cond)
	if err != nil {
		return Value{}, err
	}
	if ok {
		return args[1], nil
	}
	if len(args) == 3 {
		return args[2], nil
	}
	return Boolean(false), nil
}

func (bf *BuiltInFunctions) IFERROR(ctx *EvalContext, args []Value) (Value, error) {
	if v := ctx.ResolveSingle(args[0]); !v.IsError() {
		return v, nil
	}
	return args[1], nil
}

// logicalOperands collects booleans for AND and OR. ranges contribute
// their booleans and numbers and skip text; a call without any logical
// value is #VALUE!.
func logicalOperands(args []Value) ([]bool, error) {
	var out []bool
	err := eachValue(args, func(v Value, fromRange bool) error {
		if fromRange && (v.kind == KindText || v.kind == KindBlank) {
			return nil
		}
		b, err := ToBoolean(v)
		if err != nil {
			return err
		}
		out = append(out, b)
		return nil
	})
	if err == nil && len(out) == 0 {
		err = valueError
	}
	return out, err
}

func (bf *BuiltInFunctions) AND(_ *EvalContext, args []Value) (Value, error) {
	values, err := logicalOperands(args)
	if err != nil {
		return Value{}, err
	}
	for _, v := range values {
		if !v {
			return Boolean(false), nil
		}
	}
	return Boolean(true), nil
}

func (bf *BuiltInFunctions) OR(_ *EvalContext, args []Value) (Value, error) {
	values, err := logicalOperands(args)
	if err != nil {
		return Value{}, err
	}
	for _, v := range values {
		if v {
			return Boolean(true), nil
		}
	}
	return Boolean(false), nil
}

func (bf *BuiltInFunctions) NOT(_ *EvalContext, args []Value) (Value, error) {
	b, err := ToBoolean(args[0])
	if err != nil {
		return Value{}, err
	}
	return Boolean(!b), nil
}

func (bf *BuiltInFunctions) TRUE(*EvalContext, []Value) (Value, error) {
	return Boolean(true), nil
}

func (bf *BuiltInFunctions) FALSE(*EvalContext, []Value) (Value, error) {
	return Boolean(false), nil
}

func (bf *BuiltInFunctions) NA(*EvalContext, []Value) (Value, error) {
	return Error(ErrorCodeNA), nil
}

// isKind builds a raw-argument predicate such as ISNUMBER
func isKind(kind Kind) FunctionImpl {
	return func(ctx *EvalContext, args []Value) (Value, error) {
		return Boolean(ctx.ResolveSingle(args[0]).Kind() == kind), nil
	}
}
