package join

import (
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wbrown/janus-joinbench/joinbench/memory"
	"github.com/wbrown/janus-joinbench/joinbench/tuple"
	"golang.org/x/exp/rand"
)

func TestWorkerPoolExecute(t *testing.T) {
	for _, workers := range []int{1, 4} {
		pool := NewWorkerPool(workers)

		var ran atomic.Int64
		require.NoError(t, pool.Execute(100, func(i int) error {
			ran.Add(1)
			return nil
		}))
		assert.Equal(t, int64(100), ran.Load())

		err := pool.Execute(10, func(i int) error {
			if i == 3 || i == 7 {
				return errors.New("boom")
			}
			return nil
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "task 3")

		err = pool.Execute(5, func(i int) error {
			if i == 2 {
				panic("bad task")
			}
			return nil
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "panicked")
	}
}

func TestChunkBounds(t *testing.T) {
	assert.Equal(t, []int{0}, chunkBounds(0, 4))
	assert.Equal(t, []int{0, 1, 2, 3}, chunkBounds(3, 8))
	assert.Equal(t, []int{0, 2, 5, 7, 10}, chunkBounds(10, 4))
	assert.Equal(t, []int{0, 10}, chunkBounds(10, 0))
}

func keyColumn(t *testing.T, keys []uint64) *tuple.Column {
	t.Helper()
	st, err := tuple.New(memory.NewHostResource(0), tuple.NewSchema("r", 8, 4, 0), len(keys))
	require.NoError(t, err)
	for i, k := range keys {
		st.Key().Set(i, k)
	}
	return st.Key()
}

func randomKeys(n, universe int, seed int64) []uint64 {
	rng := rand.New(rand.NewSource(uint64(seed)))
	keys := make([]uint64, n)
	for i := range keys {
		keys[i] = uint64(rng.Intn(universe))
	}
	return keys
}

func TestRadixPartitionStable(t *testing.T) {
	keys := randomKeys(5000, 300, 1)
	hashes := make([]uint64, len(keys))
	for i, k := range keys {
		hashes[i] = hashKey(k)
	}

	pt, err := radixPartition(NewWorkerPool(3), hashes, 0, 4)
	require.NoError(t, err)
	require.Equal(t, 16, pt.fanout())
	assert.Equal(t, len(keys), pt.bounds[16])

	seen := make([]bool, len(keys))
	for p := 0; p < pt.fanout(); p++ {
		rows := pt.part(p)
		for i, row := range rows {
			assert.Equal(t, p, radixOf(hashes[row], 0, 4))
			if i > 0 {
				assert.Less(t, rows[i-1], row, "ascending within partition")
			}
			seen[row] = true
		}
	}
	for _, s := range seen {
		require.True(t, s)
	}

	sub := subPartition(pt.part(0), hashes, 4, 2)
	assert.Equal(t, len(pt.part(0)), sub.bounds[sub.fanout()])
}

func TestSortByKeyStable(t *testing.T) {
	for _, workers := range []int{1, 2, 3, 8} {
		keys := randomKeys(3001, 50, 2)
		sr, err := sortByKey(NewWorkerPool(workers), keyColumn(t, keys))
		require.NoError(t, err)
		require.Equal(t, len(keys), sr.len())

		for i := 1; i < sr.len(); i++ {
			require.LessOrEqual(t, sr.keys[i-1], sr.keys[i])
			if sr.keys[i-1] == sr.keys[i] {
				require.Less(t, sr.rows[i-1], sr.rows[i], "ties keep row order")
			}
			require.Equal(t, keys[sr.rows[i]], sr.keys[i])
		}
	}
}

func TestRunBoundariesKeepRuns(t *testing.T) {
	sr := sortedRun{
		rows: []int32{0, 1, 2, 3, 4, 5, 6, 7},
		keys: []uint64{1, 1, 1, 1, 2, 2, 3, 4},
	}
	b := runBoundaries(sr, 4)
	assert.Equal(t, []int{0, 4, 6, 8}, b)
	assert.Equal(t, []int{0}, runBoundaries(sortedRun{}, 4))
}

func TestSparseIndexLookup(t *testing.T) {
	keys := make([]uint64, 0, 1000)
	for k := uint64(0); k < 500; k++ {
		keys = append(keys, 2*k, 2*k) // even keys, runs of 2
	}
	j := &indexedSortMergeJoin{base: &base{pool: NewWorkerPool(4)}}
	sr, err := sortByKey(j.pool, keyColumn(t, keys))
	require.NoError(t, err)
	ix, err := j.buildIndex(sr)
	require.NoError(t, err)

	assert.Equal(t, 500, ix.runs())
	assert.Len(t, ix.fences, (500+indexStride-1)/indexStride)

	from, to := ix.lookup(600)
	assert.Equal(t, 2, to-from)
	assert.Equal(t, uint64(600), sr.keys[from])

	from, to = ix.lookup(601)
	assert.Equal(t, from, to)
	from, to = ix.lookup(5000)
	assert.Equal(t, from, to)
}

func TestChainedTableOrder(t *testing.T) {
	keys := []uint64{5, 7, 5, 9, 5}
	col := keyColumn(t, keys)
	hashes := make([]uint64, len(keys))
	for i, k := range keys {
		hashes[i] = hashKey(k)
	}
	table := newChainedTable(len(keys))
	table.build([]int32{0, 1, 2, 3, 4}, col, hashes)

	var got []int32
	table.probe(5, hashKey(5), func(row int32) { got = append(got, row) })
	assert.Equal(t, []int32{0, 2, 4}, got)

	got = nil
	table.probe(8, hashKey(8), func(row int32) { got = append(got, row) })
	assert.Empty(t, got)
}

func TestSharedTableConcurrentBuild(t *testing.T) {
	keys := randomKeys(20000, 1000, 3)
	col := keyColumn(t, keys)
	table := newSharedTable(col)
	require.NoError(t, NewWorkerPool(8).Chunks(len(keys), func(_, from, to int) error {
		table.insert(from, to)
		return nil
	}))
	assert.Equal(t, len(keys), table.entries())

	want := 0
	for _, k := range keys {
		if k == 42 {
			want++
		}
	}
	got := 0
	table.probe(42, func(row int32) {
		assert.Equal(t, uint64(42), keys[row])
		got++
	})
	assert.Equal(t, want, got)
}
