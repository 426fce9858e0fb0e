package spreadsheet

import (
	"fmt"
	"iter"
	"maps"
	"slices"
	"strings"

	"golang.org/x/text/cases"
)

const (
	// MaxRows and MaxColumns bound whole-row and whole-column references
	MaxRows    uint32 = 1 << 20
	MaxColumns uint32 = 1 << 14
)

// RangeAddress represents a range of cells within a single worksheet.
// bounds are inclusive.
type RangeAddress struct {
	WorksheetID uint32
	StartRow    uint32
	StartColumn uint32
	EndRow      uint32
	EndColumn   uint32
}

// normalize returns the range with start <= end on both axes
func (r RangeAddress) normalize() RangeAddress {
	if r.StartRow > r.EndRow {
		r.StartRow, r.EndRow = r.EndRow, r.StartRow
	}
	if r.StartColumn > r.EndColumn {
		r.StartColumn, r.EndColumn = r.EndColumn, r.StartColumn
	}
	return r
}

func (r RangeAddress) Contains(addr CellAddress) bool {
	return addr.WorksheetID == r.WorksheetID &&
		addr.Row >= r.StartRow && addr.Row <= r.EndRow &&
		addr.Column >= r.StartColumn && addr.Column <= r.EndColumn
}

func (r RangeAddress) Height() int { return int(r.EndRow-r.StartRow) + 1 }

func (r RangeAddress) Width() int { return int(r.EndColumn-r.StartColumn) + 1 }

// Cells returns the number of cells covered by the range
func (r RangeAddress) Cells() int { return r.Height() * r.Width() }

// Intersect returns the overlap of two ranges on the same worksheet.
func (r RangeAddress) Intersect(o RangeAddress) (RangeAddress, bool) {
	if r.WorksheetID != o.WorksheetID {
		return RangeAddress{}, false
	}
	out := RangeAddress{
		WorksheetID: r.WorksheetID,
		StartRow:    max(r.StartRow, o.StartRow),
		StartColumn: max(r.StartColumn, o.StartColumn),
		EndRow:      min(r.EndRow, o.EndRow),
		EndColumn:   min(r.EndColumn, o.EndColumn),
	}
	if out.StartRow > out.EndRow || out.StartColumn > out.EndColumn {
		return RangeAddress{}, false
	}
	return out, true
}

func (r RangeAddress) String() string {
	start := CellName(r.StartRow, r.StartColumn)
	if r.StartRow == r.EndRow && r.StartColumn == r.EndColumn {
		return fmt.Sprintf("%d!%s", r.WorksheetID, start)
	}
	return fmt.Sprintf("%d!%s:%s", r.WorksheetID, start, CellName(r.EndRow, r.EndColumn))
}

// Range is a rectangular operand. iteration is row-major: rows outer,
// columns inner.
type Range interface {
	// Bounds reports the sheet position of the range. arrays that do not
	// live on a sheet report false.
	Bounds() (RangeAddress, bool)
	Width() int
	Height() int
	// ValueAt returns the value at a zero-based offset inside the range.
	ValueAt(row, col int) Value
	Values() iter.Seq[Value]
}

// CellRange implements Range lazily over the cells of a worksheet
type CellRange struct {
	bounds RangeAddress
	cells  func(CellAddress) Value
}

// NewCellRange creates a range that reads its cells through lookup
func NewCellRange(bounds RangeAddress, lookup func(CellAddress) Value) *CellRange {
	return &CellRange{bounds: bounds.normalize(), cells: lookup}
}

func (r *CellRange) Bounds() (RangeAddress, bool) { return r.bounds, true }

func (r *CellRange) Width() int { return r.bounds.Width() }

func (r *CellRange) Height() int { return r.bounds.Height() }

func (r *CellRange) ValueAt(row, col int) Value {
	if row < 0 || col < 0 || row >= r.Height() || col >= r.Width() {
		return Error(ErrorCodeRef)
	}
	return r.cells(CellAddress{
		WorksheetID: r.bounds.WorksheetID,
		Row:         r.bounds.StartRow + uint32(row),
		Column:      r.bounds.StartColumn + uint32(col),
	})
}

func (r *CellRange) Values() iter.Seq[Value] {
	return func(yield func(Value) bool) {
		for row := r.bounds.StartRow; row <= r.bounds.EndRow; row++ {
			for col := r.bounds.StartColumn; col <= r.bounds.EndColumn; col++ {
				addr := CellAddress{WorksheetID: r.bounds.WorksheetID, Row: row, Column: col}
				if !yield(r.cells(addr)) {
					return
				}
			}
		}
	}
}

// ArrayRange is a materialized block of values, used for array constants
// and array formula results.
type ArrayRange struct {
	rows [][]Value
}

// NewArrayRange copies rows into a rectangular array. short rows are padded
// with #N/A.
func NewArrayRange(rows [][]Value) *ArrayRange {
	width := 0
	for _, row := range rows {
		width = max(width, len(row))
	}
	out := make([][]Value, len(rows))
	for i, row := range rows {
		out[i] = make([]Value, width)
		for j := range out[i] {
			if j < len(row) {
				out[i][j] = row[j]
			} else {
				out[i][j] = Error(ErrorCodeNA)
			}
		}
	}
	return &ArrayRange{rows: out}
}

// materialize snapshots any range into an ArrayRange
func materialize(r Range) *ArrayRange {
	rows := make([][]Value, r.Height())
	for i := range rows {
		rows[i] = make([]Value, r.Width())
		for j := range rows[i] {
			rows[i][j] = r.ValueAt(i, j)
		}
	}
	return &ArrayRange{rows: rows}
}

func (a *ArrayRange) Bounds() (RangeAddress, bool) { return RangeAddress{}, false }

func (a *ArrayRange) Width() int {
	if len(a.rows) == 0 {
		return 0
	}
	return len(a.rows[0])
}

func (a *ArrayRange) Height() int { return len(a.rows) }

func (a *ArrayRange) ValueAt(row, col int) Value {
	if row < 0 || col < 0 || row >= a.Height() || col >= a.Width() {
		return Error(ErrorCodeNA)
	}
	return a.rows[row][col]
}

func (a *ArrayRange) Values() iter.Seq[Value] {
	return func(yield func(Value) bool) {
		for _, row := range a.rows {
			for _, v := range row {
				if !yield(v) {
					return
				}
			}
		}
	}
}

// NamedRangeTable manages workbook-scoped named ranges. names compare
// case-insensitively and remember the spelling they were defined with.
// names that formulas reference before they are defined are tracked so
// hosts can list them.
type NamedRangeTable struct {
	fold       cases.Caser
	defined    map[string]RangeAddress // folded name -> address
	spelling   map[string]string       // folded name -> display name
	referenced map[string]struct{}     // folded names used by formulas
}

// NewNamedRangeTable creates a new named range table
func NewNamedRangeTable() *NamedRangeTable {
	return &NamedRangeTable{
		fold:       cases.Fold(),
		defined:    make(map[string]RangeAddress),
		spelling:   make(map[string]string),
		referenced: make(map[string]struct{}),
	}
}

func (nrt *NamedRangeTable) key(name string) string {
	return nrt.fold.String(name)
}

// Define defines or redefines a named range
func (nrt *NamedRangeTable) Define(name string, address RangeAddress) {
	k := nrt.key(name)
	nrt.defined[k] = address.normalize()
	nrt.spelling[k] = name
}

// Undefine removes a definition. it reports whether the name was defined.
func (nrt *NamedRangeTable) Undefine(name string) bool {
	k := nrt.key(name)
	if _, ok := nrt.defined[k]; !ok {
		return false
	}
	delete(nrt.defined, k)
	if _, used := nrt.referenced[k]; !used {
		delete(nrt.spelling, k)
	}
	return true
}

// Reference records that a formula uses name
func (nrt *NamedRangeTable) Reference(name string) {
	k := nrt.key(name)
	nrt.referenced[k] = struct{}{}
	if _, ok := nrt.spelling[k]; !ok {
		nrt.spelling[k] = name
	}
}

// Lookup returns the address of a defined name
func (nrt *NamedRangeTable) Lookup(name string) (RangeAddress, bool) {
	addr, ok := nrt.defined[nrt.key(name)]
	return addr, ok
}

func (nrt *NamedRangeTable) Contains(name string) bool {
	_, ok := nrt.defined[nrt.key(name)]
	return ok
}

// Same reports whether two spellings refer to the same name
func (nrt *NamedRangeTable) Same(a, b string) bool {
	return nrt.key(a) == nrt.key(b)
}

// Defined returns the defined names sorted by their folded form
func (nrt *NamedRangeTable) Defined() []string {
	keys := slices.Sorted(maps.Keys(nrt.defined))
	out := make([]string, len(keys))
	for i, k := range keys {
		out[i] = nrt.spelling[k]
	}
	return out
}

// Undefined returns names referenced by formulas that have no definition
func (nrt *NamedRangeTable) Undefined() []string {
	var out []string
	for _, k := range slices.Sorted(maps.Keys(nrt.referenced)) {
		if _, ok := nrt.defined[k]; !ok {
			out = append(out, nrt.spelling[k])
		}
	}
	return out
}

// validName reports whether s can be used as a defined name
func validName(s string) bool {
	if s == "" || strings.EqualFold(s, "TRUE") || strings.EqualFold(s, "FALSE") {
		return false
	}
	for i, r := range s {
		switch {
		case r == '_' || r == '\\':
		case r >= 'A' && r <= 'Z', r >= 'a' && r <= 'z':
		case i > 0 && (r == '.' || r >= '0' && r <= '9'):
		default:
			return false
		}
	}
	if _, _, err := ParseCellName(s); err == nil {
		return false
	}
	return true
}
