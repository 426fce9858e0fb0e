package spreadsheet

import (
	"maps"
	"slices"
)

// FormulaKey is the canonical form of a formula tree. references are
// stored as offsets from the owning cell, so a formula filled down a
// column has one key for every row.
type FormulaKey string

// FormulaTable stores parsed formulas centrally, deduplicated by their
// canonical form, and tracks which cells use them and which worksheets
// they reference.
type FormulaTable struct {
	// core formula storage

	keyIndex  map[FormulaKey]uint32 // canonical form -> formula ID
	nodes     map[uint32]Node       // formula ID -> parsed tree
	refCounts map[uint32]int        // formula ID -> number of cells using it

	// cell tracking

	cellsUsingFormula map[uint32]map[CellAddress]struct{} // formula ID -> cells using it
	formulaAtCell     map[CellAddress]uint32              // cell -> formula ID (reverse index)

	// worksheet tracking

	referencedWorksheets map[uint32][]uint32 // formula ID -> worksheets it names explicitly

	nextID uint32
}

// NewFormulaTable creates a new formula table
func NewFormulaTable() *FormulaTable {
	return &FormulaTable{
		keyIndex:             make(map[FormulaKey]uint32),
		nodes:                make(map[uint32]Node),
		refCounts:            make(map[uint32]int),
		cellsUsingFormula:    make(map[uint32]map[CellAddress]struct{}),
		formulaAtCell:        make(map[CellAddress]uint32),
		referencedWorksheets: make(map[uint32][]uint32),
		nextID:               1, // start at 1, reserve 0 for no formula
	}
}

func keyOf(node Node) FormulaKey {
	if node == nil {
		return ""
	}
	return FormulaKey(node.String())
}

// InternFormula records that cell uses node. a cell that already holds a
// formula must be released first. worksheets lists the worksheet IDs the
// formula names. it returns the formula ID and whether the formula is new to the table;
// only new formulas take references on their worksheets.
func (ft *FormulaTable) InternFormula(node Node, cell CellAddress, worksheets []uint32) (uint32, bool) {
	key := keyOf(node)
	if id, exists := ft.keyIndex[key]; exists {
		ft.trackCellUsage(id, cell)
		return id, false
	}

	id := ft.nextID
	ft.nextID++
	ft.keyIndex[key] = id
	ft.nodes[id] = node
	ft.referencedWorksheets[id] = slices.Clone(worksheets)
	ft.trackCellUsage(id, cell)
	return id, true
}

// trackCellUsage moves cell onto formulaID
func (ft *FormulaTable) trackCellUsage(formulaID uint32, cell CellAddress) {
	if ft.cellsUsingFormula[formulaID] == nil {
		ft.cellsUsingFormula[formulaID] = make(map[CellAddress]struct{})
	}
	ft.cellsUsingFormula[formulaID][cell] = struct{}{}
	ft.formulaAtCell[cell] = formulaID
	ft.refCounts[formulaID]++
}

// ReleaseCell removes the formula reference held by cell. when that was
// the last cell using the formula, the formula is dropped and the
// worksheets it referenced are returned so their counts can be released.
func (ft *FormulaTable) ReleaseCell(cell CellAddress) ([]uint32, bool) {
	formulaID, exists := ft.formulaAtCell[cell]
	if !exists {
		return nil, false
	}
	delete(ft.formulaAtCell, cell)
	if cells, ok := ft.cellsUsingFormula[formulaID]; ok {
		delete(cells, cell)
		if len(cells) == 0 {
			delete(ft.cellsUsingFormula, formulaID)
		}
	}

	ft.refCounts[formulaID]--
	if ft.refCounts[formulaID] > 0 {
		return nil, false
	}
	worksheets := ft.referencedWorksheets[formulaID]
	ft.removeFormula(formulaID)
	return worksheets, true
}

// removeFormula removes a formula and all its tracking data
func (ft *FormulaTable) removeFormula(formulaID uint32) {
	if node, exists := ft.nodes[formulaID]; exists {
		delete(ft.keyIndex, keyOf(node))
	}
	delete(ft.nodes, formulaID)
	delete(ft.refCounts, formulaID)
	delete(ft.cellsUsingFormula, formulaID)
	delete(ft.referencedWorksheets, formulaID)
}

// GetNode retrieves the parsed tree for a formula ID
func (ft *FormulaTable) GetNode(id uint32) (Node, bool) {
	node, exists := ft.nodes[id]
	return node, exists
}

// GetFormulaAtCell returns the formula ID at a specific cell
func (ft *FormulaTable) GetFormulaAtCell(cell CellAddress) (uint32, bool) {
	id, exists := ft.formulaAtCell[cell]
	return id, exists
}

// GetCellsUsingFormula returns the cells using a formula, sorted
func (ft *FormulaTable) GetCellsUsingFormula(formulaID uint32) []CellAddress {
	return slices.SortedFunc(maps.Keys(ft.cellsUsingFormula[formulaID]), compareAddresses)
}

// GetReferenceCount returns the number of cells using a formula
func (ft *FormulaTable) GetReferenceCount(id uint32) int {
	return ft.refCounts[id]
}

// Count returns the number of unique formulas
func (ft *FormulaTable) Count() int {
	return len(ft.keyIndex)
}

// TotalReferences returns the number of formula cells
func (ft *FormulaTable) TotalReferences() int {
	return len(ft.formulaAtCell)
}
