package spreadsheet

import (
	"maps"
	"slices"
)

// DependencyNode holds the edges of one cell. a node exists while the cell
// reads something or something reads it.
type DependencyNode struct {
	// cell-to-cell dependencies
	CellPrecedents map[CellAddress]struct{} // cells this cell reads
	CellDependents map[CellAddress]struct{} // cells that read this cell

	// range and name dependencies (only for formula cells)
	RangePrecedents map[RangeAddress]struct{}
	NamePrecedents  map[string]struct{} // folded names
}

func (n *DependencyNode) empty() bool {
	return len(n.CellPrecedents) == 0 && len(n.CellDependents) == 0 &&
		len(n.RangePrecedents) == 0 && len(n.NamePrecedents) == 0
}

// DependencyGraph records which cells read which cells, ranges and names.
// every edge is stored once; adding it again is a no-op.
type DependencyGraph struct {
	nodes          map[CellAddress]*DependencyNode
	rangeObservers map[RangeAddress]map[CellAddress]struct{} // range -> cells that read it
	nameObservers  map[string]map[CellAddress]struct{}       // folded name -> cells that read it
}

// NewDependencyGraph creates a new dependency graph
func NewDependencyGraph() *DependencyGraph {
	return &DependencyGraph{
		nodes:          make(map[CellAddress]*DependencyNode),
		rangeObservers: make(map[RangeAddress]map[CellAddress]struct{}),
		nameObservers:  make(map[string]map[CellAddress]struct{}),
	}
}

func (dg *DependencyGraph) getOrCreateNode(addr CellAddress) *DependencyNode {
	if node, exists := dg.nodes[addr]; exists {
		return node
	}
	node := &DependencyNode{
		CellPrecedents:  make(map[CellAddress]struct{}),
		CellDependents:  make(map[CellAddress]struct{}),
		RangePrecedents: make(map[RangeAddress]struct{}),
		NamePrecedents:  make(map[string]struct{}),
	}
	dg.nodes[addr] = node
	return node
}

// cleanupNodeIfEmpty removes a node that has no edges left
func (dg *DependencyGraph) cleanupNodeIfEmpty(addr CellAddress) {
	if node, exists := dg.nodes[addr]; exists && node.empty() {
		delete(dg.nodes, addr)
	}
}

// AddCellDependency adds a cell-to-cell dependency (from reads to)
func (dg *DependencyGraph) AddCellDependency(from, to CellAddress) {
	dg.getOrCreateNode(from).CellPrecedents[to] = struct{}{}
	dg.getOrCreateNode(to).CellDependents[from] = struct{}{}
}

// AddRangeDependency adds a cell-to-range dependency (from reads the range)
func (dg *DependencyGraph) AddRangeDependency(from CellAddress, rangeAddr RangeAddress) {
	dg.getOrCreateNode(from).RangePrecedents[rangeAddr] = struct{}{}
	if dg.rangeObservers[rangeAddr] == nil {
		dg.rangeObservers[rangeAddr] = make(map[CellAddress]struct{})
	}
	dg.rangeObservers[rangeAddr][from] = struct{}{}
}

// AddNameDependency records that from reads a defined name
func (dg *DependencyGraph) AddNameDependency(from CellAddress, name string) {
	key := foldCase(name)
	dg.getOrCreateNode(from).NamePrecedents[key] = struct{}{}
	if dg.nameObservers[key] == nil {
		dg.nameObservers[key] = make(map[CellAddress]struct{})
	}
	dg.nameObservers[key][from] = struct{}{}
}

// ClearDependencies removes everything addr reads. edges into addr stay,
// so dependents are still found when the cell changes again.
func (dg *DependencyGraph) ClearDependencies(addr CellAddress) {
	node, exists := dg.nodes[addr]
	if !exists {
		return
	}

	for precedentAddr := range node.CellPrecedents {
		if precedent, ok := dg.nodes[precedentAddr]; ok {
			delete(precedent.CellDependents, addr)
			dg.cleanupNodeIfEmpty(precedentAddr)
		}
	}
	for rangeAddr := range node.RangePrecedents {
		if observers, ok := dg.rangeObservers[rangeAddr]; ok {
			delete(observers, addr)
			if len(observers) == 0 {
				delete(dg.rangeObservers, rangeAddr)
			}
		}
	}
	for name := range node.NamePrecedents {
		if observers, ok := dg.nameObservers[name]; ok {
			delete(observers, addr)
			if len(observers) == 0 {
				delete(dg.nameObservers, name)
			}
		}
	}

	clear(node.CellPrecedents)
	clear(node.RangePrecedents)
	clear(node.NamePrecedents)
	dg.cleanupNodeIfEmpty(addr)
}

// DirectDependents returns the cells that read addr directly or through a
// range containing it, sorted by address
func (dg *DependencyGraph) DirectDependents(addr CellAddress) []CellAddress {
	seen := make(map[CellAddress]struct{})
	if node, exists := dg.nodes[addr]; exists {
		for dependent := range node.CellDependents {
			seen[dependent] = struct{}{}
		}
	}
	for rangeAddr, observers := range dg.rangeObservers {
		if rangeAddr.Contains(addr) {
			for observer := range observers {
				seen[observer] = struct{}{}
			}
		}
	}
	return slices.SortedFunc(maps.Keys(seen), compareAddresses)
}

// NameDependents returns the cells that read a defined name
func (dg *DependencyGraph) NameDependents(name string) []CellAddress {
	return slices.SortedFunc(maps.Keys(dg.nameObservers[foldCase(name)]), compareAddresses)
}

// AllDependents returns every cell affected by a change to addr, walking
// the graph with an explicit stack. addr itself is not included unless it
// sits on a cycle.
func (dg *DependencyGraph) AllDependents(addr CellAddress) []CellAddress {
	visited := make(map[CellAddress]struct{})
	var result []CellAddress

	stack := dg.DirectDependents(addr)
	slices.Reverse(stack)
	for len(stack) > 0 {
		current := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if _, done := visited[current]; done {
			continue
		}
		visited[current] = struct{}{}
		result = append(result, current)

		next := dg.DirectDependents(current)
		for i := len(next) - 1; i >= 0; i-- {
			if _, done := visited[next[i]]; !done {
				stack = append(stack, next[i])
			}
		}
	}
	return result
}

// Precedents returns the cells and ranges addr reads
func (dg *DependencyGraph) Precedents(addr CellAddress) ([]CellAddress, []RangeAddress) {
	node, exists := dg.nodes[addr]
	if !exists {
		return nil, nil
	}
	cells := slices.SortedFunc(maps.Keys(node.CellPrecedents), compareAddresses)
	ranges := slices.Collect(maps.Keys(node.RangePrecedents))
	slices.SortFunc(ranges, compareRanges)
	return cells, ranges
}

// RemoveWorksheet drops every node on a worksheet. edges from other sheets
// into it are kept so their formulas are invalidated and re-evaluated.
func (dg *DependencyGraph) RemoveWorksheet(worksheetID uint32) {
	for addr := range dg.nodes {
		if addr.WorksheetID == worksheetID {
			dg.ClearDependencies(addr)
		}
	}
}

// NodeCount returns the number of nodes in the graph
func (dg *DependencyGraph) NodeCount() int {
	return len(dg.nodes)
}

// RangeObserverCount returns the number of observed ranges
func (dg *DependencyGraph) RangeObserverCount() int {
	return len(dg.rangeObservers)
}

// compareRanges orders ranges by worksheet, then top-left, then bottom-right
func compareRanges(a, b RangeAddress) int {
	if c := compareAddresses(
		CellAddress{WorksheetID: a.WorksheetID, Row: a.StartRow, Column: a.StartColumn},
		CellAddress{WorksheetID: b.WorksheetID, Row: b.StartRow, Column: b.StartColumn},
	); c != 0 {
		return c
	}
	return compareAddresses(
		CellAddress{Row: a.EndRow, Column: a.EndColumn},
		CellAddress{Row: b.EndRow, Column: b.EndColumn},
	)
}
