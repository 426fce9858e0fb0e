package spreadsheet

import "log/slog"

// Resolver gives evaluation read access to the workbook
type Resolver interface {
	// CellValue returns the current value of a cell. formula cells report
	// their cached result.
	CellValue(addr CellAddress) Value
	// Bounds returns the used area of a worksheet. false means the
	// worksheet does not exist.
	Bounds(worksheetID uint32) (RangeAddress, bool)
	// ResolveName returns the range a defined name refers to
	ResolveName(name string) (RangeAddress, bool)
}

// EvalContext carries the cell being evaluated and the collaborators a
// formula needs. it is created per cell evaluation and never shared.
type EvalContext struct {
	Source    CellAddress
	resolver  Resolver
	registry  *Registry
	formatter NumberFormatter
	logger    *slog.Logger
}

// NewEvalContext creates a context for evaluating a formula owned by source
func NewEvalContext(source CellAddress, resolver Resolver, registry *Registry, formatter NumberFormatter, logger *slog.Logger) *EvalContext {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &EvalContext{
		Source:    source,
		resolver:  resolver,
		registry:  registry,
		formatter: formatter,
		logger:    logger,
	}
}

func (ctx *EvalContext) Registry() *Registry { return ctx.registry }

func (ctx *EvalContext) Formatter() NumberFormatter { return ctx.formatter }

func (ctx *EvalContext) Logger() *slog.Logger { return ctx.logger }

// ResolveSingle applies implicit intersection relative to the source cell
func (ctx *EvalContext) ResolveSingle(v Value) Value {
	return ResolveSingle(v, ctx.Source.Row, ctx.Source.Column)
}

// cellValue reads one cell, reporting #REF! for unknown worksheets
func (ctx *EvalContext) cellValue(addr CellAddress) Value {
	if _, ok := ctx.resolver.Bounds(addr.WorksheetID); !ok {
		return Error(ErrorCodeRef)
	}
	return ctx.resolver.CellValue(addr)
}

// rangeValue builds a lazy range. whole-row and whole-column references
// are clipped to the used area of the worksheet.
func (ctx *EvalContext) rangeValue(addr RangeAddress) Value {
	used, ok := ctx.resolver.Bounds(addr.WorksheetID)
	if !ok {
		return Error(ErrorCodeRef)
	}
	addr = addr.normalize()
	if addr.EndRow == MaxRows-1 && addr.StartRow == 0 {
		addr.EndRow = max(used.EndRow, addr.StartRow)
	}
	if addr.EndColumn == MaxColumns-1 && addr.StartColumn == 0 {
		addr.EndColumn = max(used.EndColumn, addr.StartColumn)
	}
	return RangeOf(NewCellRange(addr, ctx.resolver.CellValue))
}

// eachValue walks arguments in order, expanding ranges row-major. fn is
// told whether the value came out of a range. the first error value, from
// an argument or from a cell inside a range, stops the walk and is
// returned.
func eachValue(args []Value, fn func(v Value, fromRange bool) error) error {
	for _, arg := range args {
		if arg.kind != KindRange {
			if arg.kind == KindError {
				return arg.err
			}
			if err := fn(arg, false); err != nil {
				return err
			}
			continue
		}
		for v := range arg.rng.Values() {
			if v.kind == KindError {
				return v.err
			}
			if err := fn(v, true); err != nil {
				return err
			}
		}
	}
	return nil
}

// eachRaw walks like eachValue but hands error values to fn as well
func eachRaw(args []Value, fn func(v Value, fromRange bool)) {
	for _, arg := range args {
		if arg.kind != KindRange {
			fn(arg, false)
			continue
		}
		for v := range arg.rng.Values() {
			fn(v, true)
		}
	}
}
