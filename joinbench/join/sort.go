package join

import (
	"cmp"
	"slices"
	"sort"

	"github.com/wbrown/janus-joinbench/joinbench/tuple"
)

// sortedRun is a relation's row ids ordered by key, with the keys laid out
// in the same order. Equal keys keep ascending row order.
type sortedRun struct {
	rows []int32
	keys []uint64
}

func (s sortedRun) len() int { return len(s.rows) }

// runEnd returns the end of the equal-key run starting at i
func (s sortedRun) runEnd(i int) int {
	k := s.keys[i]
	j := i + 1
	for j < len(s.keys) && s.keys[j] == k {
		j++
	}
	return j
}

// lowerBound is the first position whose key is >= k
func (s sortedRun) lowerBound(k uint64) int {
	return sort.Search(len(s.keys), func(i int) bool { return s.keys[i] >= k })
}

func sortedRunBytes(n int) int64 { return int64(n) * (4 + 8) }

// sortByKey stably sorts row ids by key. Every worker sorts a disjoint
// chunk, then chunks are merged pairwise in parallel rounds.
func sortByKey(pool *WorkerPool, key *tuple.Column) (sortedRun, error) {
	n := key.Len()
	chunks := chunkBounds(n, pool.WorkerCount())

	rows := make([]int32, n)
	keys := make([]uint64, n)
	err := pool.Execute(len(chunks)-1, func(c int) error {
		from, to := chunks[c], chunks[c+1]
		idx := rows[from:to]
		for i := range idx {
			idx[i] = int32(from + i)
		}
		slices.SortStableFunc(idx, func(a, b int32) int {
			return cmp.Compare(key.Get(int(a)), key.Get(int(b)))
		})
		for i, row := range idx {
			keys[from+i] = key.Get(int(row))
		}
		return nil
	})
	if err != nil {
		return sortedRun{}, err
	}

	run := sortedRun{rows: rows, keys: keys}
	scratch := sortedRun{rows: make([]int32, n), keys: make([]uint64, n)}
	for len(chunks) > 2 {
		runs := len(chunks) - 1
		tasks := (runs + 1) / 2
		err := pool.Execute(tasks, func(p int) error {
			lo := chunks[2*p]
			if 2*p+1 == runs {
				// odd run out
				hi := chunks[runs]
				copy(scratch.rows[lo:hi], run.rows[lo:hi])
				copy(scratch.keys[lo:hi], run.keys[lo:hi])
				return nil
			}
			mergeRuns(scratch, run, lo, chunks[2*p+1], chunks[2*p+2])
			return nil
		})
		if err != nil {
			return sortedRun{}, err
		}
		next := make([]int, 0, tasks+1)
		for p := 0; p < tasks; p++ {
			next = append(next, chunks[2*p])
		}
		chunks = append(next, n)
		run, scratch = scratch, run
	}
	return run, nil
}

// mergeRuns merges src[lo:mid] and src[mid:hi] into dst[lo:hi], taking the
// left run first on ties.
func mergeRuns(dst, src sortedRun, lo, mid, hi int) {
	i, j, o := lo, mid, lo
	for i < mid && j < hi {
		if src.keys[j] < src.keys[i] {
			dst.rows[o], dst.keys[o] = src.rows[j], src.keys[j]
			j++
		} else {
			dst.rows[o], dst.keys[o] = src.rows[i], src.keys[i]
			i++
		}
		o++
	}
	for ; i < mid; i, o = i+1, o+1 {
		dst.rows[o], dst.keys[o] = src.rows[i], src.keys[i]
	}
	for ; j < hi; j, o = j+1, o+1 {
		dst.rows[o], dst.keys[o] = src.rows[j], src.keys[j]
	}
}

// runBoundaries splits a sorted run into at most parts ranges whose edges
// never cut an equal-key run.
func runBoundaries(s sortedRun, parts int) []int {
	n := s.len()
	raw := chunkBounds(n, parts)
	bounds := []int{0}
	for _, b := range raw[1 : len(raw)-1] {
		for b < n && b > 0 && s.keys[b] == s.keys[b-1] {
			b++
		}
		if b > bounds[len(bounds)-1] && b < n {
			bounds = append(bounds, b)
		}
	}
	if n > 0 {
		bounds = append(bounds, n)
	}
	return bounds
}
