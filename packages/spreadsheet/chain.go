package spreadsheet

import (
	"slices"
)

// ChainHint is one entry of a persisted calculation order. the order of a
// hint list is advisory: the engine follows it when it can and computes
// the dependency order itself when it cannot.
type ChainHint struct {
	Address     CellAddress
	ArrayLeader bool
	NewThread   bool
	// Uncertain marks a volatile cell or one that had to be computed ahead
	// of its position
	Uncertain bool
}

// ChainEntry is the recalculation state of one formula cell
type ChainEntry struct {
	Address     CellAddress
	Formula     Node
	ArrayLeader bool
	NewThread   bool
	Uncertain   bool
	Volatile    bool
	Dirty       bool
	Value       Value
}

// CalcChain owns the formula cell entries and their evaluation order
type CalcChain struct {
	entries map[CellAddress]*ChainEntry
	order   []CellAddress // may hold addresses whose entry was removed
}

// NewCalcChain creates an empty chain
func NewCalcChain() *CalcChain {
	return &CalcChain{entries: make(map[CellAddress]*ChainEntry)}
}

// Get returns the entry of a formula cell
func (c *CalcChain) Get(addr CellAddress) (*ChainEntry, bool) {
	entry, ok := c.entries[addr]
	return entry, ok
}

// Put adds an entry, appending it to the order when it is new
func (c *CalcChain) Put(entry *ChainEntry) {
	if _, exists := c.entries[entry.Address]; !exists {
		c.order = append(c.order, entry.Address)
	}
	c.entries[entry.Address] = entry
}

// Remove destroys the entry of a cell that no longer holds a formula
func (c *CalcChain) Remove(addr CellAddress) bool {
	if _, ok := c.entries[addr]; !ok {
		return false
	}
	delete(c.entries, addr)
	return true
}

// Len returns the number of formula cells
func (c *CalcChain) Len() int {
	return len(c.entries)
}

// Order returns the live addresses in evaluation order
func (c *CalcChain) Order() []CellAddress {
	seen := make(map[CellAddress]struct{}, len(c.entries))
	live := c.order[:0]
	for _, addr := range c.order {
		if _, ok := c.entries[addr]; !ok {
			continue
		}
		if _, dup := seen[addr]; dup {
			continue
		}
		seen[addr] = struct{}{}
		live = append(live, addr)
	}
	c.order = live
	return slices.Clone(live)
}

// Reorder puts first at the front of the order, keeping the relative
// order of everything else
func (c *CalcChain) Reorder(first []CellAddress) {
	placed := make(map[CellAddress]struct{}, len(first))
	order := make([]CellAddress, 0, len(c.entries))
	for _, addr := range first {
		if _, ok := c.entries[addr]; !ok {
			continue
		}
		if _, dup := placed[addr]; dup {
			continue
		}
		placed[addr] = struct{}{}
		order = append(order, addr)
	}
	for _, addr := range c.Order() {
		if _, ok := placed[addr]; !ok {
			order = append(order, addr)
		}
	}
	c.order = order
}

// Entries returns the live entries in order
func (c *CalcChain) Entries() []*ChainEntry {
	order := c.Order()
	out := make([]*ChainEntry, len(order))
	for i, addr := range order {
		out[i] = c.entries[addr]
	}
	return out
}

// Hints returns the chain in its persisted form
func (c *CalcChain) Hints() []ChainHint {
	entries := c.Entries()
	out := make([]ChainHint, len(entries))
	for i, entry := range entries {
		out[i] = ChainHint{
			Address:     entry.Address,
			ArrayLeader: entry.ArrayLeader,
			NewThread:   entry.NewThread,
			Uncertain:   entry.Uncertain || entry.Volatile,
		}
	}
	return out
}
