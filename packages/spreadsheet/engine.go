package spreadsheet

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"math"
	"runtime/debug"
	"slices"

	"github.com/hashicorp/go-multierror"
	"golang.org/x/sync/errgroup"
)

// CellContent is what a provider stores in one cell: a literal value, or a
// parsed formula
type CellContent struct {
	Value   Value
	Formula Node
	// Array marks the leader of an array formula
	Array bool
}

// CellProvider gives the engine access to cell storage
type CellProvider interface {
	Cell(addr CellAddress) (CellContent, bool)
	// FormulaCells lists every cell holding a formula
	FormulaCells() iter.Seq[CellAddress]
	Bounds(worksheetID uint32) (RangeAddress, bool)
	ResolveName(name string) (RangeAddress, bool)
}

// Engine keeps formula results consistent with their inputs. it tracks
// dependencies between cells, marks affected cells dirty on edits and
// recalculates dirty cells in dependency order.
//
// an Engine is not safe for concurrent use.
type Engine struct {
	provider  CellProvider
	registry  *Registry
	formatter NumberFormatter
	logger    *slog.Logger
	iteration *IterationPolicy

	graph *DependencyGraph
	chain *CalcChain
}

var _ Resolver = (*Engine)(nil)

// NewEngine creates an engine and loads every formula cell of provider as
// a dirty entry
func NewEngine(provider CellProvider, opts ...Option) (*Engine, error) {
	if provider == nil {
		return nil, NewApplicationError(InvalidArgument, "cell provider cannot be nil")
	}
	cfg, err := applyOptions(opts)
	if err != nil {
		return nil, err
	}
	return newEngine(provider, cfg), nil
}

func newEngine(provider CellProvider, cfg *config) *Engine {
	e := &Engine{
		provider:  provider,
		registry:  cfg.registry,
		formatter: cfg.formatter,
		logger:    cfg.logger.WithGroup("engine"),
		iteration: cfg.iteration,
		graph:     NewDependencyGraph(),
		chain:     NewCalcChain(),
	}
	cells := slices.SortedFunc(provider.FormulaCells(), compareAddresses)
	for _, addr := range cells {
		e.load(addr)
	}
	return e
}

// load (re)reads one cell from the provider and rebuilds its entry and
// edges. it reports whether the cell holds a formula.
func (e *Engine) load(addr CellAddress) bool {
	e.graph.ClearDependencies(addr)
	content, ok := e.provider.Cell(addr)
	if !ok || content.Formula == nil {
		e.chain.Remove(addr)
		return false
	}

	refs := CollectReferences(content.Formula, addr, e.registry)
	for _, cell := range refs.Cells {
		e.graph.AddCellDependency(addr, cell)
	}
	for _, rng := range refs.Ranges {
		e.graph.AddRangeDependency(addr, rng)
	}
	for _, name := range refs.Names {
		e.graph.AddNameDependency(addr, name)
		// the range a name points at is read like a direct range
		if rng, ok := e.provider.ResolveName(name); ok {
			e.graph.AddRangeDependency(addr, rng)
		}
	}

	entry, exists := e.chain.Get(addr)
	if !exists {
		entry = &ChainEntry{Address: addr}
	}
	entry.Formula = content.Formula
	entry.ArrayLeader = content.Array
	entry.Volatile = refs.Volatile
	entry.Dirty = true
	e.chain.Put(entry)
	return true
}

// CellChanged tells the engine that a cell's literal or formula changed.
// the cell and everything that depends on it become dirty.
func (e *Engine) CellChanged(addr CellAddress) {
	e.load(addr)
	e.MarkDirty(addr)
}

// NameChanged tells the engine that a defined name was added, removed or
// pointed somewhere else. formulas reading it are reloaded against the new
// definition.
func (e *Engine) NameChanged(name string) {
	for _, addr := range e.graph.NameDependents(name) {
		e.load(addr)
		e.MarkDirty(addr)
	}
}

// WorksheetAdded dirties the formulas that referenced a worksheet before it
// existed
func (e *Engine) WorksheetAdded(worksheetID uint32) {
	e.dirtyReaders(worksheetID)
}

// WorksheetRemoved drops the entries of a removed worksheet and dirties the
// formulas on other sheets that read it
func (e *Engine) WorksheetRemoved(worksheetID uint32) {
	for _, entry := range e.chain.Entries() {
		if entry.Address.WorksheetID == worksheetID {
			e.chain.Remove(entry.Address)
		}
	}
	e.graph.RemoveWorksheet(worksheetID)
	e.dirtyReaders(worksheetID)
}

func (e *Engine) dirtyReaders(worksheetID uint32) {
	onSheet := func(c CellAddress) bool { return c.WorksheetID == worksheetID }
	for _, entry := range e.chain.Entries() {
		cells, ranges := e.graph.Precedents(entry.Address)
		if slices.ContainsFunc(cells, onSheet) ||
			slices.ContainsFunc(ranges, func(r RangeAddress) bool { return r.WorksheetID == worksheetID }) {
			e.MarkDirty(entry.Address)
		}
	}
}

// MarkDirty marks addr and every cell that transitively depends on it as
// dirty
func (e *Engine) MarkDirty(addr CellAddress) {
	if entry, ok := e.chain.Get(addr); ok {
		entry.Dirty = true
	}
	for _, dependent := range e.graph.AllDependents(addr) {
		if entry, ok := e.chain.Get(dependent); ok {
			entry.Dirty = true
		}
	}
}

// IsDirty reports whether a formula cell needs recalculation
func (e *Engine) IsDirty(addr CellAddress) bool {
	entry, ok := e.chain.Get(addr)
	return ok && entry.Dirty
}

// DirtyCount returns the number of dirty formula cells
func (e *Engine) DirtyCount() int {
	count := 0
	for _, entry := range e.chain.entries {
		if entry.Dirty {
			count++
		}
	}
	return count
}

// Value returns the cached result of a formula cell or the literal of any
// other cell. array leaders report their top-left value.
func (e *Engine) Value(addr CellAddress) Value {
	if entry, ok := e.chain.Get(addr); ok {
		if entry.Value.kind == KindRange {
			return entry.Value.rng.ValueAt(0, 0)
		}
		return entry.Value
	}
	if content, ok := e.provider.Cell(addr); ok {
		return content.Value
	}
	return Blank()
}

// ArrayValue returns the full result of an array formula leader
func (e *Engine) ArrayValue(addr CellAddress) (Value, bool) {
	entry, ok := e.chain.Get(addr)
	if !ok || !entry.ArrayLeader {
		return Value{}, false
	}
	return entry.Value, true
}

// CellValue implements Resolver
func (e *Engine) CellValue(addr CellAddress) Value {
	return e.Value(addr)
}

// Bounds implements Resolver
func (e *Engine) Bounds(worksheetID uint32) (RangeAddress, bool) {
	return e.provider.Bounds(worksheetID)
}

// ResolveName implements Resolver
func (e *Engine) ResolveName(name string) (RangeAddress, bool) {
	return e.provider.ResolveName(name)
}

// EvaluateFormula evaluates a formula against the current cached values
// without touching the chain. with arrayOutput a range result is returned
// as an array; otherwise it is reduced to one value.
func (e *Engine) EvaluateFormula(formula Node, source CellAddress, arrayOutput bool) Value {
	return e.evaluate(formula, source, arrayOutput)
}

// evaluate runs a formula and shapes its result for storage. panics that
// escape the dispatcher become #VALUE!.
func (e *Engine) evaluate(formula Node, source CellAddress, arrayOutput bool) (result Value) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Debug("recovered panic evaluating formula",
				"cell", source.String(),
				"panic", r,
				"stack", string(debug.Stack()),
			)
			result = Error(ErrorCodeValue)
		}
	}()

	ctx := NewEvalContext(source, e, e.registry, e.formatter, e.logger)
	v := formula.Eval(ctx)
	if v.kind == KindRange {
		if arrayOutput {
			return RangeOf(materialize(v.rng))
		}
		v = ctx.ResolveSingle(v)
	}
	if v.kind == KindBlank {
		return Number(0)
	}
	return v
}

// Calculate brings every formula cell to the clean state. volatile cells
// are always recalculated. ctx is checked between cells; on cancellation
// the remaining cells stay dirty and ctx.Err() is returned. formula
// failures never surface here, they are cached as error values.
func (e *Engine) Calculate(ctx context.Context) error {
	for _, entry := range e.chain.Entries() {
		if entry.Volatile {
			e.MarkDirty(entry.Address)
		}
	}

	pass := e.newPass()
	for _, addr := range e.chain.Order() {
		if err := pass.run(ctx, addr); err != nil {
			e.finishPass(pass)
			return err
		}
	}
	e.finishPass(pass)
	return nil
}

// EvaluateCell brings one cell and the cells it reads to the clean state
// and returns its value
func (e *Engine) EvaluateCell(ctx context.Context, addr CellAddress) (Value, error) {
	pass := e.newPass()
	err := pass.run(ctx, addr)
	e.finishPass(pass)
	if err != nil {
		return Value{}, err
	}
	return e.Value(addr), nil
}

func (e *Engine) finishPass(p *pass) {
	if len(p.computed) == 0 {
		return
	}
	e.chain.Reorder(p.computed)
	e.logger.Info("recalculated",
		"cells", len(p.computed),
		"cycles", p.cycles,
		"dirty", e.DirtyCount(),
	)
}

// CalculateAll recalculates independent engines concurrently. engines must
// not share a provider. the first error cancels the others.
func CalculateAll(ctx context.Context, engines ...*Engine) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, e := range engines {
		g.Go(func() error {
			return e.Calculate(ctx)
		})
	}
	return g.Wait()
}

// LoadChain adopts a persisted calculation order. hints for cells that do
// not hold a formula are dropped and formula cells missing from the hints
// keep their current position after the hinted ones. the returned error
// lists what did not match; the engine is usable either way.
func (e *Engine) LoadChain(hints []ChainHint) error {
	var result *multierror.Error
	order := make([]CellAddress, 0, len(hints))
	seen := make(map[CellAddress]struct{}, len(hints))

	for _, hint := range hints {
		entry, ok := e.chain.Get(hint.Address)
		if !ok {
			result = multierror.Append(result, fmt.Errorf("chain entry %s is not a formula cell", hint.Address))
			continue
		}
		if _, dup := seen[hint.Address]; dup {
			result = multierror.Append(result, fmt.Errorf("chain entry %s appears more than once", hint.Address))
			continue
		}
		seen[hint.Address] = struct{}{}
		if hint.ArrayLeader != entry.ArrayLeader {
			result = multierror.Append(result, fmt.Errorf("chain entry %s disagrees about the array flag", hint.Address))
		}
		entry.NewThread = hint.NewThread
		entry.Uncertain = hint.Uncertain
		order = append(order, hint.Address)
	}

	for _, addr := range e.chain.Order() {
		if _, ok := seen[addr]; !ok {
			result = multierror.Append(result, fmt.Errorf("formula cell %s is missing from the chain", addr))
		}
	}

	e.chain.Reorder(order)
	if err := result.ErrorOrNil(); err != nil {
		e.logger.Debug("calc chain did not match the workbook", "problems", len(result.Errors))
		return err
	}
	return nil
}

// Chain returns the calculation order with the flags of the last pass
func (e *Engine) Chain() []ChainHint {
	return e.chain.Hints()
}

// pass is one recalculation. it finds strongly connected components of
// dirty cells with Tarjan's algorithm, run on an explicit stack so deep
// dependency chains cannot exhaust the goroutine stack. components come
// out precedents first, which is the order they are computed in.
type pass struct {
	engine   *Engine
	index    map[CellAddress]int
	low      map[CellAddress]int
	onStack  map[CellAddress]bool
	stack    []CellAddress
	counter  int
	computed []CellAddress
	cycles   int
}

type passFrame struct {
	addr     CellAddress
	edges    []CellAddress
	next     int
	selfLoop bool
}

func (e *Engine) newPass() *pass {
	return &pass{
		engine:  e,
		index:   make(map[CellAddress]int),
		low:     make(map[CellAddress]int),
		onStack: make(map[CellAddress]bool),
	}
}

// run computes root and everything dirty it reads
func (p *pass) run(ctx context.Context, root CellAddress) error {
	if !p.engine.IsDirty(root) {
		return nil
	}
	if _, seen := p.index[root]; seen {
		return nil
	}

	first := true
	frames := []*passFrame{p.push(root)}
	for len(frames) > 0 {
		f := frames[len(frames)-1]
		if f.next < len(f.edges) {
			w := f.edges[f.next]
			f.next++
			if w == f.addr {
				f.selfLoop = true
				continue
			}
			if _, seen := p.index[w]; !seen {
				frames = append(frames, p.push(w))
				continue
			}
			if p.onStack[w] {
				p.low[f.addr] = min(p.low[f.addr], p.index[w])
			}
			continue
		}

		frames = frames[:len(frames)-1]
		if len(frames) > 0 {
			parent := frames[len(frames)-1]
			p.low[parent.addr] = min(p.low[parent.addr], p.low[f.addr])
		}
		if p.low[f.addr] != p.index[f.addr] {
			continue
		}

		var component []CellAddress
		for {
			top := p.stack[len(p.stack)-1]
			p.stack = p.stack[:len(p.stack)-1]
			p.onStack[top] = false
			component = append(component, top)
			if top == f.addr {
				break
			}
		}

		if err := ctx.Err(); err != nil {
			return err
		}
		p.compute(component, f.selfLoop, root, first)
		first = false
	}
	return nil
}

func (p *pass) push(addr CellAddress) *passFrame {
	p.index[addr] = p.counter
	p.low[addr] = p.counter
	p.counter++
	p.stack = append(p.stack, addr)
	p.onStack[addr] = true
	return &passFrame{addr: addr, edges: p.engine.dirtyPrecedents(addr)}
}

// compute evaluates one component. a single cell without a self reference
// is evaluated once; anything else is a cycle.
func (p *pass) compute(component []CellAddress, selfLoop bool, root CellAddress, first bool) {
	e := p.engine
	slices.SortFunc(component, compareAddresses)

	if len(component) == 1 && !selfLoop {
		entry, _ := e.chain.Get(component[0])
		entry.Value = e.evaluate(entry.Formula, entry.Address, entry.ArrayLeader)
		p.finish(entry, root, first)
		return
	}

	p.cycles++
	if e.iteration != nil {
		e.iterate(component)
	} else {
		e.logger.Debug("circular reference", "cells", len(component), "first", component[0].String())
		for _, addr := range component {
			entry, _ := e.chain.Get(addr)
			entry.Value = Error(ErrorCodeCircular)
		}
	}
	for i, addr := range component {
		entry, _ := e.chain.Get(addr)
		p.finish(entry, root, first && i == 0)
	}
}

func (p *pass) finish(entry *ChainEntry, root CellAddress, first bool) {
	entry.Dirty = false
	entry.NewThread = first
	entry.Uncertain = entry.Volatile || entry.Address != root
	p.computed = append(p.computed, entry.Address)
}

// iterate recalculates the cells of a cycle from their previous values
// until no number moves by more than the policy allows
func (e *Engine) iterate(component []CellAddress) {
	entries := make([]*ChainEntry, len(component))
	for i, addr := range component {
		entries[i], _ = e.chain.Get(addr)
		if entries[i].Value.kind == KindRange {
			entries[i].Value = Number(0)
		}
	}

	for n := 1; n <= e.iteration.MaxIterations; n++ {
		change := 0.0
		for _, entry := range entries {
			next := e.evaluate(entry.Formula, entry.Address, false)
			change = max(change, valueChange(entry.Value, next))
			entry.Value = next
		}
		if change <= e.iteration.MaxChange {
			e.logger.Debug("cycle converged", "cells", len(entries), "iterations", n)
			return
		}
	}
	e.logger.Debug("cycle stopped at the iteration limit", "cells", len(entries))
}

// valueChange measures how far a cell moved between two iterations
func valueChange(prev, next Value) float64 {
	switch {
	case prev.kind == KindBlank && next.kind == KindNumber:
		return math.Abs(next.num)
	case prev.kind == KindNumber && next.kind == KindNumber:
		return math.Abs(next.num - prev.num)
	case prev.kind != next.kind:
		return math.Inf(1)
	case prev.kind == KindError:
		if prev.ErrorCode() == next.ErrorCode() {
			return 0
		}
	case CompareValues(prev, next) == 0:
		return 0
	}
	return math.Inf(1)
}

// dirtyPrecedents lists the dirty formula cells addr reads, through direct
// references and ranges. defined names were turned into ranges on load.
func (e *Engine) dirtyPrecedents(addr CellAddress) []CellAddress {
	cells, ranges := e.graph.Precedents(addr)

	var out []CellAddress
	seen := make(map[CellAddress]struct{})
	add := func(c CellAddress) {
		if _, dup := seen[c]; dup || !e.IsDirty(c) {
			return
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	for _, c := range cells {
		add(c)
	}
	for _, rng := range ranges {
		if rng.Cells() <= e.chain.Len() {
			for row := rng.StartRow; row <= rng.EndRow; row++ {
				for col := rng.StartColumn; col <= rng.EndColumn; col++ {
					add(CellAddress{WorksheetID: rng.WorksheetID, Row: row, Column: col})
				}
			}
			continue
		}
		for _, c := range e.chain.Order() {
			if rng.Contains(c) {
				add(c)
			}
		}
	}
	return out
}
