package spreadsheet

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormulaTable(t *testing.T) {
	pc := &ParserContext{CurrentWorksheetID: 1}
	parser := NewParser(pc)
	parse := func(formula string, at CellAddress) Node {
		pc.CurrentRow, pc.CurrentColumn = at.Row, at.Column
		node, err := parser.Parse(formula)
		require.NoError(t, err)
		return node
	}

	ft := NewFormulaTable()
	b1, b2, c1 := cell(1, 0, 1), cell(1, 1, 1), cell(1, 0, 2)

	// A1*2 in B1 and A2*2 in B2 are the same relative formula
	id, isNew := ft.InternFormula(parse("=A1*2", b1), b1, []uint32{3})
	assert.True(t, isNew)
	again, isNew := ft.InternFormula(parse("=A2*2", b2), b2, []uint32{3})
	assert.False(t, isNew)
	assert.Equal(t, id, again)
	other, _ := ft.InternFormula(parse("=A1*2", c1), c1, nil)
	assert.NotEqual(t, id, other)

	assert.Equal(t, 2, ft.Count())
	assert.Equal(t, 3, ft.TotalReferences())
	assert.Equal(t, 2, ft.GetReferenceCount(id))
	assert.Equal(t, []CellAddress{b1, b2}, ft.GetCellsUsingFormula(id))

	got, ok := ft.GetFormulaAtCell(b2)
	require.True(t, ok)
	assert.Equal(t, id, got)

	worksheets, dropped := ft.ReleaseCell(b1)
	assert.False(t, dropped)
	assert.Nil(t, worksheets)
	assert.Equal(t, []CellAddress{b2}, ft.GetCellsUsingFormula(id))

	worksheets, dropped = ft.ReleaseCell(b2)
	assert.True(t, dropped)
	assert.Equal(t, []uint32{3}, worksheets)
	_, ok = ft.GetNode(id)
	assert.False(t, ok)
	assert.Zero(t, ft.GetReferenceCount(id))

	_, dropped = ft.ReleaseCell(b2)
	assert.False(t, dropped)
	assert.Equal(t, 1, ft.Count())
}
