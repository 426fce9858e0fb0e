package spreadsheet

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
)

func TestCalcChain(t *testing.T) {
	a1, b1, c1, d1 := cell(1, 0, 0), cell(1, 0, 1), cell(1, 0, 2), cell(1, 0, 3)

	chain := NewCalcChain()
	for _, addr := range []CellAddress{a1, b1, c1, d1} {
		chain.Put(&ChainEntry{Address: addr})
	}
	chain.Put(&ChainEntry{Address: b1, Volatile: true})

	assert.Equal(t, 4, chain.Len())
	assert.Equal(t, []CellAddress{a1, b1, c1, d1}, chain.Order())
	entry, ok := chain.Get(b1)
	assert.True(t, ok)
	assert.True(t, entry.Volatile)

	t.Run("remove", func(t *testing.T) {
		assert.True(t, chain.Remove(c1))
		assert.False(t, chain.Remove(c1))
		assert.Equal(t, []CellAddress{a1, b1, d1}, chain.Order())
	})

	t.Run("reorder", func(t *testing.T) {
		chain.Reorder([]CellAddress{d1, c1, d1})
		assert.Equal(t, []CellAddress{d1, a1, b1}, chain.Order())

		chain.Put(&ChainEntry{Address: c1})
		assert.Equal(t, []CellAddress{d1, a1, b1, c1}, chain.Order())
	})

	t.Run("hints", func(t *testing.T) {
		entry, _ := chain.Get(d1)
		entry.NewThread = true
		entry, _ = chain.Get(a1)
		entry.ArrayLeader = true

		want := []ChainHint{
			{Address: d1, NewThread: true},
			{Address: a1, ArrayLeader: true},
			{Address: b1, Uncertain: true},
			{Address: c1},
		}
		if diff := cmp.Diff(want, chain.Hints()); diff != "" {
			t.Errorf("Hints() mismatch (-want +got):\n%s", diff)
		}
	})
}
