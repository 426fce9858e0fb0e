package spreadsheet

import (
	"iter"
	"maps"
	"slices"
)

// WorksheetTable manages worksheet storage and ID mappings. names compare
// case-insensitively. a name can be known without being defined: formulas
// may reference a worksheet before it is added, and keep its ID afterwards.
type WorksheetTable struct {
	// core name/ID mapping (for all worksheets, defined or not)

	nameToID map[string]uint32 // folded name -> ID
	idToName map[uint32]string // ID -> display name

	// worksheet definitions

	definedWorksheets map[uint32]*Worksheet

	// track undefined worksheets (referenced but not yet defined)

	undefinedIDs map[uint32]struct{}

	// reference counting. counts formulas that reference the worksheet.

	refCounts map[uint32]int
	nextID    uint32
}

// NewWorksheetTable creates a new worksheet table
func NewWorksheetTable() *WorksheetTable {
	return &WorksheetTable{
		nameToID:          make(map[string]uint32),
		idToName:          make(map[uint32]string),
		definedWorksheets: make(map[uint32]*Worksheet),
		undefinedIDs:      make(map[uint32]struct{}),
		refCounts:         make(map[uint32]int),
		nextID:            1, // start at 1, reserve 0 for no worksheet
	}
}

// InternWorksheet returns the ID of a worksheet name, registering it as
// undefined when it is new
func (wt *WorksheetTable) InternWorksheet(name string) uint32 {
	if id, exists := wt.nameToID[foldCase(name)]; exists {
		return id
	}

	id := wt.nextID
	wt.nameToID[foldCase(name)] = id
	wt.idToName[id] = name
	wt.undefinedIDs[id] = struct{}{}
	wt.nextID++
	return id
}

// DefineWorksheet defines a worksheet, creating its storage. an undefined
// name keeps its ID so existing references resolve to the new worksheet.
func (wt *WorksheetTable) DefineWorksheet(name string) *Worksheet {
	id := wt.InternWorksheet(name)
	if ws, exists := wt.definedWorksheets[id]; exists {
		return ws
	}
	ws := NewWorksheet(id)
	wt.definedWorksheets[id] = ws
	wt.idToName[id] = name
	delete(wt.undefinedIDs, id)
	return ws
}

// UndefineWorksheet removes the definition of a worksheet. if formulas
// still reference it, it transitions to undefined state; otherwise it is
// forgotten. returns the ID and whether the worksheet was defined.
func (wt *WorksheetTable) UndefineWorksheet(name string) (uint32, bool) {
	id, exists := wt.nameToID[foldCase(name)]
	if !exists {
		return 0, false
	}
	if _, defined := wt.definedWorksheets[id]; !defined {
		return id, false
	}

	delete(wt.definedWorksheets, id)
	if wt.refCounts[id] > 0 {
		wt.undefinedIDs[id] = struct{}{}
		return id, true
	}
	wt.removeWorksheet(id)
	return id, true
}

// RenameWorksheet changes the display name of a defined worksheet. the ID
// is kept, so formulas that reference it keep working.
func (wt *WorksheetTable) RenameWorksheet(oldName, newName string) bool {
	id, exists := wt.nameToID[foldCase(oldName)]
	if !exists {
		return false
	}
	delete(wt.nameToID, foldCase(oldName))
	wt.nameToID[foldCase(newName)] = id
	wt.idToName[id] = newName
	return true
}

// removeWorksheet removes a worksheet completely from all tracking maps
func (wt *WorksheetTable) removeWorksheet(id uint32) {
	name := wt.idToName[id]
	delete(wt.nameToID, foldCase(name))
	delete(wt.idToName, id)
	delete(wt.definedWorksheets, id)
	delete(wt.undefinedIDs, id)
	delete(wt.refCounts, id)
}

// AddReference increments the reference count for a worksheet ID
func (wt *WorksheetTable) AddReference(id uint32) bool {
	if _, exists := wt.idToName[id]; !exists {
		return false
	}
	wt.refCounts[id]++
	return true
}

// RemoveReference decrements the reference count for a worksheet ID. an
// undefined worksheet that nothing references any more is forgotten.
// returns true if the worksheet was removed.
func (wt *WorksheetTable) RemoveReference(id uint32) bool {
	if _, exists := wt.idToName[id]; !exists {
		return false
	}

	wt.refCounts[id]--
	if wt.refCounts[id] <= 0 {
		delete(wt.refCounts, id)
		if _, isUndefined := wt.undefinedIDs[id]; isUndefined {
			wt.removeWorksheet(id)
			return true
		}
		// defined worksheets stay even with 0 references
	}
	return false
}

// DropUnused forgets an undefined worksheet that nothing references
func (wt *WorksheetTable) DropUnused(id uint32) bool {
	if _, isUndefined := wt.undefinedIDs[id]; !isUndefined || wt.refCounts[id] > 0 {
		return false
	}
	wt.removeWorksheet(id)
	return true
}

// GetWorksheet returns the Worksheet for a given ID
func (wt *WorksheetTable) GetWorksheet(id uint32) (*Worksheet, bool) {
	worksheet, exists := wt.definedWorksheets[id]
	return worksheet, exists
}

// GetWorksheetByName returns the Worksheet for a given name
func (wt *WorksheetTable) GetWorksheetByName(name string) (*Worksheet, bool) {
	id, exists := wt.nameToID[foldCase(name)]
	if !exists {
		return nil, false
	}
	return wt.GetWorksheet(id)
}

// GetWorksheetID returns the ID for a worksheet name
func (wt *WorksheetTable) GetWorksheetID(name string) (uint32, bool) {
	id, exists := wt.nameToID[foldCase(name)]
	return id, exists
}

// GetWorksheetName returns the name for a worksheet ID
func (wt *WorksheetTable) GetWorksheetName(id uint32) (string, bool) {
	name, exists := wt.idToName[id]
	return name, exists
}

// IsDefined reports whether name is a defined worksheet
func (wt *WorksheetTable) IsDefined(name string) bool {
	_, ok := wt.GetWorksheetByName(name)
	return ok
}

// Contains checks if a worksheet name is known (defined or undefined)
func (wt *WorksheetTable) Contains(name string) bool {
	_, exists := wt.nameToID[foldCase(name)]
	return exists
}

// GetReferenceCount returns the reference count for a worksheet ID
func (wt *WorksheetTable) GetReferenceCount(id uint32) int {
	return wt.refCounts[id]
}

// DefinedWorksheets returns the defined worksheets in creation order
func (wt *WorksheetTable) DefinedWorksheets() []*Worksheet {
	ids := slices.Sorted(maps.Keys(wt.definedWorksheets))
	out := make([]*Worksheet, len(ids))
	for i, id := range ids {
		out[i] = wt.definedWorksheets[id]
	}
	return out
}

// UndefinedWorksheets returns the names formulas reference that are not
// defined, in the order they were first seen
func (wt *WorksheetTable) UndefinedWorksheets() []string {
	ids := slices.Sorted(maps.Keys(wt.undefinedIDs))
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = wt.idToName[id]
	}
	return out
}

// CountDefined returns the number of defined worksheets
func (wt *WorksheetTable) CountDefined() int {
	return len(wt.definedWorksheets)
}

// ChunkKey represents the key for indexing chunks in Worksheet
type ChunkKey struct {
	ChunkRow uint32
	ChunkCol uint32
}

const (
	ChunkRows uint32 = 256 // rows per chunk - power of 2 for efficient modulo
	ChunkCols uint32 = 256 // columns per chunk - matches typical viewport size
)

// Cell is the stored content of one cell. formula cells keep their source
// text for display and the ID of their interned tree.
type Cell struct {
	Value     Value
	Formula   string
	FormulaID uint32
	Array     bool
}

// IsFormula reports whether the cell holds a formula
func (c *Cell) IsFormula() bool {
	return c.FormulaID != 0
}

// Chunk holds the occupied cells of a 256x256 region, keyed by their
// column-major position inside the chunk
type Chunk struct {
	cells map[uint32]*Cell
}

// Worksheet provides sparse cell storage partitioned into 256x256 chunks
// for spatial locality. chunks exist only while they hold a cell.
type Worksheet struct {
	chunks       map[ChunkKey]*Chunk
	totalCells   int
	formulaCells int
	cellsByKind  [KindRange + 1]uint32 // literal cells by kind for diagnostics
	worksheetID  uint32

	// used area, recomputed lazily after removals
	maxRow, maxCol uint32
	boundsStale    bool
}

// NewWorksheet creates a new worksheet
func NewWorksheet(worksheetID uint32) *Worksheet {
	return &Worksheet{
		chunks:      make(map[ChunkKey]*Chunk),
		worksheetID: worksheetID,
	}
}

// ID returns the worksheet ID
func (w *Worksheet) ID() uint32 {
	return w.worksheetID
}

func locate(row, col uint32) (ChunkKey, uint32) {
	key := ChunkKey{ChunkRow: row / ChunkRows, ChunkCol: col / ChunkCols}
	// column-first indexing for better cache locality
	return key, (col%ChunkCols)*ChunkRows + row%ChunkRows
}

// GetCell retrieves a cell at the given row and column
func (w *Worksheet) GetCell(row, col uint32) (*Cell, bool) {
	key, idx := locate(row, col)
	chunk, exists := w.chunks[key]
	if !exists {
		return nil, false
	}
	cell, ok := chunk.cells[idx]
	return cell, ok
}

// SetCell stores a cell, replacing whatever was there. it returns the
// previous content.
func (w *Worksheet) SetCell(row, col uint32, cell Cell) (*Cell, bool) {
	key, idx := locate(row, col)
	chunk, exists := w.chunks[key]
	if !exists {
		chunk = &Chunk{cells: make(map[uint32]*Cell)}
		w.chunks[key] = chunk
	}

	old, had := chunk.cells[idx]
	if had {
		w.forget(old)
	} else {
		w.totalCells++
	}
	stored := cell
	chunk.cells[idx] = &stored
	w.count(&stored)

	w.maxRow = max(w.maxRow, row)
	w.maxCol = max(w.maxCol, col)
	return old, had
}

// RemoveCell removes a cell at the given row and column and returns it
func (w *Worksheet) RemoveCell(row, col uint32) (*Cell, bool) {
	key, idx := locate(row, col)
	chunk, exists := w.chunks[key]
	if !exists {
		return nil, false
	}
	old, had := chunk.cells[idx]
	if !had {
		return nil, false
	}

	delete(chunk.cells, idx)
	w.forget(old)
	w.totalCells--
	if len(chunk.cells) == 0 {
		delete(w.chunks, key)
	}
	if row == w.maxRow || col == w.maxCol {
		w.boundsStale = true
	}
	return old, true
}

func (w *Worksheet) count(c *Cell) {
	if c.IsFormula() {
		w.formulaCells++
		return
	}
	w.cellsByKind[c.Value.Kind()]++
}

func (w *Worksheet) forget(c *Cell) {
	if c.IsFormula() {
		w.formulaCells--
		return
	}
	if w.cellsByKind[c.Value.Kind()] > 0 {
		w.cellsByKind[c.Value.Kind()]--
	}
}

// Bounds returns the smallest range from A1 that covers every stored cell.
// an empty worksheet reports A1.
func (w *Worksheet) Bounds() RangeAddress {
	if w.boundsStale {
		w.maxRow, w.maxCol = 0, 0
		for addr := range w.Cells() {
			w.maxRow = max(w.maxRow, addr.Row)
			w.maxCol = max(w.maxCol, addr.Column)
		}
		w.boundsStale = false
	}
	return RangeAddress{
		WorksheetID: w.worksheetID,
		EndRow:      w.maxRow,
		EndColumn:   w.maxCol,
	}
}

// Cells iterates over the stored cells in row-major order
func (w *Worksheet) Cells() iter.Seq2[CellAddress, *Cell] {
	return func(yield func(CellAddress, *Cell) bool) {
		addrs := make([]CellAddress, 0, w.totalCells)
		for key, chunk := range w.chunks {
			for idx := range chunk.cells {
				addrs = append(addrs, CellAddress{
					WorksheetID: w.worksheetID,
					Row:         key.ChunkRow*ChunkRows + idx%ChunkRows,
					Column:      key.ChunkCol*ChunkCols + idx/ChunkRows,
				})
			}
		}
		slices.SortFunc(addrs, compareAddresses)
		for _, addr := range addrs {
			cell, _ := w.GetCell(addr.Row, addr.Column)
			if !yield(addr, cell) {
				return
			}
		}
	}
}

// GetCellKindCount returns the number of literal cells of one kind
func (w *Worksheet) GetCellKindCount(kind Kind) uint32 {
	if int(kind) < len(w.cellsByKind) {
		return w.cellsByKind[kind]
	}
	return 0
}

// GetTotalCells returns the total number of non-empty cells
func (w *Worksheet) GetTotalCells() int {
	return w.totalCells
}

// GetFormulaCells returns the number of formula cells
func (w *Worksheet) GetFormulaCells() int {
	return w.formulaCells
}
