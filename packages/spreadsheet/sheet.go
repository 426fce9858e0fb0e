package spreadsheet

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"slices"
	"strings"
)

// Spreadsheet is an in-memory workbook: worksheets, defined names and the
// formula table, with an Engine keeping formula results current. it is the
// CellProvider its engine reads from.
type Spreadsheet struct {
	worksheets  *WorksheetTable
	namedRanges *NamedRangeTable
	formulas    *FormulaTable
	engine      *Engine
	logger      *slog.Logger
}

var _ CellProvider = (*Spreadsheet)(nil)

// NewSpreadsheet creates an empty spreadsheet
func NewSpreadsheet(opts ...Option) (*Spreadsheet, error) {
	cfg, err := applyOptions(opts)
	if err != nil {
		return nil, err
	}
	s := &Spreadsheet{
		worksheets:  NewWorksheetTable(),
		namedRanges: NewNamedRangeTable(),
		formulas:    NewFormulaTable(),
		logger:      cfg.logger.WithGroup("sheet"),
	}
	s.engine = newEngine(s, cfg)
	return s, nil
}

// Engine returns the recalculation engine
func (s *Spreadsheet) Engine() *Engine {
	return s.engine
}

// resolveAddress parses "Sheet1!A1" into an absolute address. an address
// without a worksheet refers to the first worksheet.
func (s *Spreadsheet) resolveAddress(address string) (CellAddress, error) {
	parser := NewParser(&ParserContext{ResolveWorksheet: s.lookupWorksheet})
	addr, err := parser.ParseAddress(address)
	if err != nil {
		return CellAddress{}, err
	}
	if addr.WorksheetID == 0 {
		defined := s.worksheets.DefinedWorksheets()
		if len(defined) == 0 {
			return CellAddress{}, NewApplicationError(FailedPrecondition, "spreadsheet has no worksheets")
		}
		addr.WorksheetID = defined[0].ID()
	}
	return addr, nil
}

// lookupWorksheet resolves only defined worksheets
func (s *Spreadsheet) lookupWorksheet(name string) uint32 {
	if ws, ok := s.worksheets.GetWorksheetByName(name); ok {
		return ws.ID()
	}
	return 0
}

func (s *Spreadsheet) worksheetAt(addr CellAddress) (*Worksheet, error) {
	ws, ok := s.worksheets.GetWorksheet(addr.WorksheetID)
	if !ok {
		return nil, NewApplicationError(NotFound, fmt.Sprintf("Worksheet with ID %d not found", addr.WorksheetID))
	}
	return ws, nil
}

// Get returns the current value of a cell. formula cells report the result
// of the last calculation.
func (s *Spreadsheet) Get(address string) (Value, error) {
	addr, err := s.resolveAddress(address)
	if err != nil {
		return Value{}, err
	}
	if _, err := s.worksheetAt(addr); err != nil {
		return Value{}, err
	}
	return s.engine.Value(addr), nil
}

// GetArray returns the full result of an array formula
func (s *Spreadsheet) GetArray(address string) (Value, error) {
	addr, err := s.resolveAddress(address)
	if err != nil {
		return Value{}, err
	}
	v, ok := s.engine.ArrayValue(addr)
	if !ok {
		return Value{}, NewApplicationError(NotFound, fmt.Sprintf("%s is not an array formula", address))
	}
	return v, nil
}

// Formula returns the formula text of a cell, or "" for literal cells
func (s *Spreadsheet) Formula(address string) (string, error) {
	addr, err := s.resolveAddress(address)
	if err != nil {
		return "", err
	}
	ws, err := s.worksheetAt(addr)
	if err != nil {
		return "", err
	}
	if cell, ok := ws.GetCell(addr.Row, addr.Column); ok {
		return cell.Formula, nil
	}
	return "", nil
}

// Set stores a literal or a formula. strings starting with '=' are
// formulas; a formula that does not parse is stored as its error value.
// value may be a float64, int, int64, string, bool, *SpreadsheetError,
// Value or nil (which removes the cell).
func (s *Spreadsheet) Set(address string, value any) error {
	addr, err := s.resolveAddress(address)
	if err != nil {
		return err
	}
	ws, err := s.worksheetAt(addr)
	if err != nil {
		return err
	}

	if text, ok := value.(string); ok && strings.HasPrefix(text, "=") {
		s.setFormula(ws, addr, text, false)
		return nil
	}

	var v Value
	switch x := value.(type) {
	case nil:
		return s.remove(ws, addr)
	case float64:
		v = Number(x)
	case int:
		v = Number(float64(x))
	case int64:
		v = Number(float64(x))
	case string:
		v = Text(x)
	case bool:
		v = Boolean(x)
	case *SpreadsheetError:
		v = ErrorOf(x)
	case Value:
		if x.IsRange() {
			return NewApplicationError(InvalidArgument, "a cell cannot hold a range")
		}
		v = x
	default:
		return NewApplicationError(InvalidArgument, fmt.Sprintf("unsupported cell value of type %T", value))
	}

	s.release(addr)
	ws.SetCell(addr.Row, addr.Column, Cell{Value: v})
	s.engine.CellChanged(addr)
	return nil
}

// SetArrayFormula stores a formula whose full array result is kept
func (s *Spreadsheet) SetArrayFormula(address string, formula string) error {
	addr, err := s.resolveAddress(address)
	if err != nil {
		return err
	}
	ws, err := s.worksheetAt(addr)
	if err != nil {
		return err
	}
	if !strings.HasPrefix(formula, "=") {
		formula = "=" + formula
	}
	s.setFormula(ws, addr, formula, true)
	return nil
}

func (s *Spreadsheet) setFormula(ws *Worksheet, addr CellAddress, text string, array bool) {
	var referenced []uint32
	parser := NewParser(&ParserContext{
		CurrentWorksheetID: addr.WorksheetID,
		CurrentRow:         addr.Row,
		CurrentColumn:      addr.Column,
		ResolveWorksheet: func(name string) uint32 {
			// formulas may name worksheets that do not exist yet
			id := s.worksheets.InternWorksheet(name)
			if !slices.Contains(referenced, id) {
				referenced = append(referenced, id)
			}
			return id
		},
	})

	s.release(addr)
	node, err := parser.Parse(text)
	if err != nil {
		var sErr *SpreadsheetError
		if !errors.As(err, &sErr) {
			sErr = NewSpreadsheetError(ErrorCodeValue, err.Error())
		}
		s.logger.Debug("formula did not parse", "cell", addr.String(), "error", err)
		ws.SetCell(addr.Row, addr.Column, Cell{Value: ErrorOf(sErr), Formula: text})
		s.forgetUnreferenced(referenced)
		s.engine.CellChanged(addr)
		return
	}

	id, created := s.formulas.InternFormula(node, addr, referenced)
	if created {
		for _, wsID := range referenced {
			s.worksheets.AddReference(wsID)
		}
	} else {
		s.forgetUnreferenced(referenced)
	}
	for _, name := range CollectReferences(node, addr, nil).Names {
		s.namedRanges.Reference(name)
	}
	ws.SetCell(addr.Row, addr.Column, Cell{Formula: text, FormulaID: id, Array: array})
	s.engine.CellChanged(addr)
}

// forgetUnreferenced drops worksheet names that were interned while parsing
// but never took a reference
func (s *Spreadsheet) forgetUnreferenced(ids []uint32) {
	for _, id := range ids {
		s.worksheets.DropUnused(id)
	}
}

// release drops the formula held by a cell, if any
func (s *Spreadsheet) release(addr CellAddress) {
	worksheets, dropped := s.formulas.ReleaseCell(addr)
	if !dropped {
		return
	}
	for _, id := range worksheets {
		s.worksheets.RemoveReference(id)
	}
}

// Remove clears a cell
func (s *Spreadsheet) Remove(address string) error {
	addr, err := s.resolveAddress(address)
	if err != nil {
		return err
	}
	ws, err := s.worksheetAt(addr)
	if err != nil {
		return err
	}
	return s.remove(ws, addr)
}

func (s *Spreadsheet) remove(ws *Worksheet, addr CellAddress) error {
	if _, had := ws.RemoveCell(addr.Row, addr.Column); !had {
		return nil
	}
	s.release(addr)
	s.engine.CellChanged(addr)
	return nil
}

// AddWorksheet adds a new worksheet. formulas that already referenced the
// name start resolving against it.
func (s *Spreadsheet) AddWorksheet(name string) error {
	if strings.TrimSpace(name) == "" || strings.ContainsAny(name, "[]:*?/\\") {
		return NewApplicationError(InvalidArgument, fmt.Sprintf("invalid worksheet name %q", name))
	}
	if s.worksheets.IsDefined(name) {
		return NewApplicationError(AlreadyExists, "Worksheet already exists")
	}
	ws := s.worksheets.DefineWorksheet(name)
	s.engine.WorksheetAdded(ws.ID())
	return nil
}

// RemoveWorksheet removes a worksheet and its cells. formulas elsewhere
// that read it evaluate to #REF!.
func (s *Spreadsheet) RemoveWorksheet(name string) error {
	ws, ok := s.worksheets.GetWorksheetByName(name)
	if !ok {
		return NewApplicationError(NotFound, "Worksheet not found")
	}
	for addr, cell := range ws.Cells() {
		if cell.IsFormula() {
			s.release(addr)
		}
	}
	id, _ := s.worksheets.UndefineWorksheet(name)
	s.engine.WorksheetRemoved(id)
	return nil
}

// RenameWorksheet renames a worksheet. formulas keep referring to it.
func (s *Spreadsheet) RenameWorksheet(oldName string, newName string) error {
	if !s.worksheets.IsDefined(oldName) {
		return NewApplicationError(NotFound, "Worksheet not found")
	}
	if s.worksheets.Contains(newName) && !strings.EqualFold(oldName, newName) {
		return NewApplicationError(AlreadyExists, "Worksheet name already exists")
	}
	s.worksheets.RenameWorksheet(oldName, newName)
	return nil
}

// DoesWorksheetExist checks if a worksheet is defined
func (s *Spreadsheet) DoesWorksheetExist(name string) bool {
	return s.worksheets.IsDefined(name)
}

// ListWorksheets returns the defined worksheet names in creation order
func (s *Spreadsheet) ListWorksheets() []string {
	defined := s.worksheets.DefinedWorksheets()
	result := make([]string, len(defined))
	for i, ws := range defined {
		result[i], _ = s.worksheets.GetWorksheetName(ws.ID())
	}
	return result
}

// ListReferencedWorksheets returns worksheet names formulas use that are
// not defined
func (s *Spreadsheet) ListReferencedWorksheets() []string {
	return s.worksheets.UndefinedWorksheets()
}

// WorksheetID returns the ID of a defined worksheet
func (s *Spreadsheet) WorksheetID(name string) (uint32, bool) {
	ws, ok := s.worksheets.GetWorksheetByName(name)
	if !ok {
		return 0, false
	}
	return ws.ID(), true
}

// WorksheetName returns the name of a worksheet ID
func (s *Spreadsheet) WorksheetName(id uint32) (string, bool) {
	return s.worksheets.GetWorksheetName(id)
}

// DefineName defines or redefines a workbook-scoped name. address must
// name its worksheet, as in "Sheet1!A1:B4".
func (s *Spreadsheet) DefineName(name string, address string) error {
	if !validName(name) {
		return NewApplicationError(InvalidArgument, fmt.Sprintf("invalid name %q", name))
	}
	parser := NewParser(&ParserContext{ResolveWorksheet: s.lookupWorksheet})
	rng, err := parser.ParseRange(address)
	if err != nil {
		return err
	}
	if rng.WorksheetID == 0 {
		return NewApplicationError(InvalidArgument, fmt.Sprintf("name %q must refer to a worksheet", name))
	}
	s.namedRanges.Define(name, rng)
	s.engine.NameChanged(name)
	return nil
}

// RemoveName removes a defined name. formulas using it evaluate to #NAME?.
func (s *Spreadsheet) RemoveName(name string) error {
	if !s.namedRanges.Undefine(name) {
		return NewApplicationError(NotFound, "Named range not found")
	}
	s.engine.NameChanged(name)
	return nil
}

// RenameName moves a definition to a new name
func (s *Spreadsheet) RenameName(oldName string, newName string) error {
	rng, ok := s.namedRanges.Lookup(oldName)
	if !ok {
		return NewApplicationError(NotFound, "Named range not found")
	}
	if s.namedRanges.Contains(newName) && !s.namedRanges.Same(oldName, newName) {
		return NewApplicationError(AlreadyExists, "Named range already exists")
	}
	if !validName(newName) {
		return NewApplicationError(InvalidArgument, fmt.Sprintf("invalid name %q", newName))
	}
	s.namedRanges.Undefine(oldName)
	s.namedRanges.Define(newName, rng)
	s.engine.NameChanged(oldName)
	s.engine.NameChanged(newName)
	return nil
}

// DoesNameExist checks if a name is defined
func (s *Spreadsheet) DoesNameExist(name string) bool {
	return s.namedRanges.Contains(name)
}

// ListNames returns the defined names
func (s *Spreadsheet) ListNames() []string {
	return s.namedRanges.Defined()
}

// ListReferencedNames returns names formulas use that are not defined
func (s *Spreadsheet) ListReferencedNames() []string {
	return s.namedRanges.Undefined()
}

// Calculate recalculates every dirty formula cell
func (s *Spreadsheet) Calculate(ctx context.Context) error {
	return s.engine.Calculate(ctx)
}

// Cell implements CellProvider
func (s *Spreadsheet) Cell(addr CellAddress) (CellContent, bool) {
	ws, ok := s.worksheets.GetWorksheet(addr.WorksheetID)
	if !ok {
		return CellContent{}, false
	}
	cell, ok := ws.GetCell(addr.Row, addr.Column)
	if !ok {
		return CellContent{}, false
	}
	if !cell.IsFormula() {
		return CellContent{Value: cell.Value}, true
	}
	node, ok := s.formulas.GetNode(cell.FormulaID)
	if !ok {
		return CellContent{}, false
	}
	return CellContent{Formula: node, Array: cell.Array}, true
}

// FormulaCells implements CellProvider
func (s *Spreadsheet) FormulaCells() iter.Seq[CellAddress] {
	return func(yield func(CellAddress) bool) {
		for _, ws := range s.worksheets.DefinedWorksheets() {
			for addr, cell := range ws.Cells() {
				if cell.IsFormula() && !yield(addr) {
					return
				}
			}
		}
	}
}

// Bounds implements CellProvider
func (s *Spreadsheet) Bounds(worksheetID uint32) (RangeAddress, bool) {
	ws, ok := s.worksheets.GetWorksheet(worksheetID)
	if !ok {
		return RangeAddress{}, false
	}
	return ws.Bounds(), true
}

// ResolveName implements CellProvider
func (s *Spreadsheet) ResolveName(name string) (RangeAddress, bool) {
	return s.namedRanges.Lookup(name)
}

// Stats reports storage counters for diagnostics
type Stats struct {
	Worksheets     int
	Cells          int
	FormulaCells   int
	UniqueFormulas int
	GraphNodes     int
	ObservedRanges int
}

// Stats returns storage counters
func (s *Spreadsheet) Stats() Stats {
	stats := Stats{
		Worksheets:     s.worksheets.CountDefined(),
		UniqueFormulas: s.formulas.Count(),
		GraphNodes:     s.engine.graph.NodeCount(),
		ObservedRanges: s.engine.graph.RangeObserverCount(),
	}
	for _, ws := range s.worksheets.DefinedWorksheets() {
		stats.Cells += ws.GetTotalCells()
		stats.FormulaCells += ws.GetFormulaCells()
	}
	return stats
}
