package calc

import (
	"math/rand"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type ivSpan struct {
	lo, hi uint32
	id     uint64
}

func collect(t *intervalTree[uint64], lo, hi uint32) []uint64 {
	var out []uint64
	t.overlap(lo, hi, func(id uint64) { out = append(out, id) })
	slices.Sort(out)
	return out
}

func TestIntervalTreeStab(t *testing.T) {
	var tree intervalTree[uint64]
	tree.insert(0, 9, 1, 1)
	tree.insert(5, 5, 2, 2)
	tree.insert(10, 20, 3, 3)
	tree.insert(0, 1048575, 4, 4)

	assert.Equal(t, 4, tree.len())
	assert.Equal(t, []uint64{1, 2, 4}, collect(&tree, 5, 5))
	assert.Equal(t, []uint64{1, 3, 4}, collect(&tree, 9, 10))
	assert.Equal(t, []uint64{4}, collect(&tree, 21, 21))

	var stabbed []uint64
	tree.stab(0, func(id uint64) { stabbed = append(stabbed, id) })
	slices.Sort(stabbed)
	assert.Equal(t, []uint64{1, 4}, stabbed)
}

func TestIntervalTreeRemove(t *testing.T) {
	var tree intervalTree[uint64]
	tree.insert(3, 7, 1, 1)
	tree.insert(3, 9, 2, 2)

	assert.False(t, tree.remove(4, 1), "lower bound must match")
	require.True(t, tree.remove(3, 1))
	assert.False(t, tree.remove(3, 1))
	assert.Equal(t, 1, tree.len())
	assert.Equal(t, []uint64{2}, collect(&tree, 5, 5))

	require.True(t, tree.remove(3, 2))
	assert.Empty(t, collect(&tree, 0, 100))
	assert.Equal(t, 0, tree.len())
}

func TestIntervalTreeMatchesScan(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	var tree intervalTree[uint64]
	var live []ivSpan
	for id := uint64(1); id <= 2000; id++ {
		lo := uint32(rng.Intn(5000))
		s := ivSpan{lo: lo, hi: lo + uint32(rng.Intn(300)), id: id}
		tree.insert(s.lo, s.hi, s.id, s.id)
		live = append(live, s)
		if id%3 == 0 {
			victim := rng.Intn(len(live))
			v := live[victim]
			require.True(t, tree.remove(v.lo, v.id))
			live = slices.Delete(live, victim, victim+1)
		}
	}
	require.Equal(t, len(live), tree.len())

	for range 200 {
		lo := uint32(rng.Intn(5400))
		hi := lo + uint32(rng.Intn(50))
		var want []uint64
		for _, s := range live {
			if s.lo <= hi && s.hi >= lo {
				want = append(want, s.id)
			}
		}
		slices.Sort(want)
		assert.Equal(t, want, collect(&tree, lo, hi), "query [%d, %d]", lo, hi)
	}
}
