package spreadsheet

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorksheetTable(t *testing.T) {
	wt := NewWorksheetTable()

	t.Run("define", func(t *testing.T) {
		ws := wt.DefineWorksheet("Sheet1")
		assert.Equal(t, uint32(1), ws.ID())
		assert.Same(t, ws, wt.DefineWorksheet("SHEET1"))
		assert.True(t, wt.IsDefined("sheet1"))
		assert.Equal(t, 1, wt.CountDefined())
	})

	t.Run("forward reference keeps its id", func(t *testing.T) {
		id := wt.InternWorksheet("Later")
		require.True(t, wt.AddReference(id))
		assert.False(t, wt.IsDefined("Later"))
		assert.True(t, wt.Contains("later"))
		assert.Equal(t, []string{"Later"}, wt.UndefinedWorksheets())

		ws := wt.DefineWorksheet("later")
		assert.Equal(t, id, ws.ID())
		name, _ := wt.GetWorksheetName(id)
		assert.Equal(t, "later", name)
		assert.Empty(t, wt.UndefinedWorksheets())
	})

	t.Run("undefine while referenced", func(t *testing.T) {
		id, wasDefined := wt.UndefineWorksheet("Later")
		assert.True(t, wasDefined)
		assert.True(t, wt.Contains("Later"))
		assert.Equal(t, 1, wt.GetReferenceCount(id))

		assert.True(t, wt.RemoveReference(id))
		assert.False(t, wt.Contains("Later"))
	})

	t.Run("undefine unreferenced", func(t *testing.T) {
		wt.DefineWorksheet("Scratch")
		_, wasDefined := wt.UndefineWorksheet("Scratch")
		assert.True(t, wasDefined)
		assert.False(t, wt.Contains("Scratch"))

		_, wasDefined = wt.UndefineWorksheet("Scratch")
		assert.False(t, wasDefined)
	})

	t.Run("drop unused", func(t *testing.T) {
		id := wt.InternWorksheet("Ghost")
		assert.True(t, wt.DropUnused(id))
		assert.False(t, wt.Contains("Ghost"))

		sheet1, _ := wt.GetWorksheetID("Sheet1")
		assert.False(t, wt.DropUnused(sheet1))
	})

	t.Run("rename", func(t *testing.T) {
		id, _ := wt.GetWorksheetID("Sheet1")
		assert.True(t, wt.RenameWorksheet("sheet1", "Data"))
		renamed, ok := wt.GetWorksheetByName("DATA")
		require.True(t, ok)
		assert.Equal(t, id, renamed.ID())
		assert.False(t, wt.Contains("Sheet1"))
		assert.False(t, wt.RenameWorksheet("Missing", "Other"))
	})
}

func TestWorksheetStorage(t *testing.T) {
	ws := NewWorksheet(1)
	ws.SetCell(0, 0, Cell{Value: Number(1)})
	ws.SetCell(300, 2, Cell{Value: Text("far")})
	ws.SetCell(4, 1, Cell{Formula: "=A1", FormulaID: 7})

	assert.Equal(t, 3, ws.GetTotalCells())
	assert.Equal(t, 1, ws.GetFormulaCells())
	assert.Equal(t, uint32(1), ws.GetCellKindCount(KindText))
	assert.Equal(t, RangeAddress{WorksheetID: 1, EndRow: 300, EndColumn: 2}, ws.Bounds())

	var order []CellAddress
	for addr := range ws.Cells() {
		order = append(order, addr)
	}
	assert.Equal(t, []CellAddress{cell(1, 0, 0), cell(1, 4, 1), cell(1, 300, 2)}, order)

	old, had := ws.SetCell(0, 0, Cell{Value: Boolean(true)})
	require.True(t, had)
	assert.Equal(t, 1.0, old.Value.Num())
	assert.Equal(t, 3, ws.GetTotalCells())
	assert.Zero(t, ws.GetCellKindCount(KindNumber))

	_, removed := ws.RemoveCell(300, 2)
	assert.True(t, removed)
	_, removed = ws.RemoveCell(300, 2)
	assert.False(t, removed)
	assert.Equal(t, RangeAddress{WorksheetID: 1, EndRow: 4, EndColumn: 1}, ws.Bounds())

	got, ok := ws.GetCell(4, 1)
	require.True(t, ok)
	assert.True(t, got.IsFormula())
}

func TestNamedRangeTable(t *testing.T) {
	nrt := NewNamedRangeTable()
	rates := RangeAddress{WorksheetID: 1, StartRow: 3, EndRow: 0, EndColumn: 2}

	nrt.Define("Rates", rates)
	addr, ok := nrt.Lookup("RATES")
	require.True(t, ok)
	assert.Equal(t, uint32(0), addr.StartRow)
	assert.Equal(t, uint32(3), addr.EndRow)
	assert.True(t, nrt.Same("rates", "Rates"))

	nrt.Reference("missing")
	nrt.Reference("rates")
	nrt.Define("Alpha", rates)
	assert.Equal(t, []string{"Alpha", "Rates"}, nrt.Defined())
	assert.Equal(t, []string{"missing"}, nrt.Undefined())

	assert.True(t, nrt.Undefine("RATES"))
	assert.False(t, nrt.Undefine("RATES"))
	assert.False(t, nrt.Contains("Rates"))
	assert.Equal(t, []string{"missing", "Rates"}, nrt.Undefined())
}

func TestValidName(t *testing.T) {
	for name, want := range map[string]bool{
		"Rates":     true,
		"_total":    true,
		"tax.rate2": true,
		"ABC":       true,
		"A1":        false,
		"XFD1":      false,
		"$A$1":      false,
		"TRUE":      false,
		"1abc":      false,
		"has space": false,
		"":          false,
	} {
		assert.Equal(t, want, validName(name), name)
	}
}
