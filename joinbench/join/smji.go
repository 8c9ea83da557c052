package join

import (
	"sort"

	"github.com/wbrown/janus-joinbench/joinbench/tuple"
)

// indexStride is the number of distinct-key runs between fence keys
const indexStride = 64

const (
	smjiSort = iota
	smjiIndex
	smjiProbe
	smjiMaterialize
)

// indexedSortMergeJoin sorts both sides, builds a sparse index over the
// larger one and probes it with every run of the smaller one.
type indexedSortMergeJoin struct {
	*base
}

func newIndexedSortMergeJoin(b *base) *indexedSortMergeJoin {
	b.setPhases("sort", "index", "probe", "materialize")
	return &indexedSortMergeJoin{base: b}
}

// sparseIndex locates equal-key runs in a sorted relation. runStart[i] is
// the first position of run i (with a sentinel at the end); fences hold
// the key of every indexStride-th run.
type sparseIndex struct {
	sorted   sortedRun
	runStart []int
	runKeys  []uint64
	fences   []uint64
}

func (ix *sparseIndex) runs() int { return len(ix.runKeys) }

// lookup returns the positions [from, to) holding key k, or from == to
func (ix *sparseIndex) lookup(k uint64) (from, to int) {
	// last fence <= k
	f := sort.Search(len(ix.fences), func(i int) bool { return ix.fences[i] > k }) - 1
	if f < 0 {
		return 0, 0
	}
	lo := f * indexStride
	hi := lo + indexStride
	if hi > ix.runs() {
		hi = ix.runs()
	}
	keys := ix.runKeys[lo:hi]
	r := sort.Search(len(keys), func(i int) bool { return keys[i] >= k })
	if r == len(keys) || keys[r] != k {
		return 0, 0
	}
	return ix.runStart[lo+r], ix.runStart[lo+r+1]
}

func (j *indexedSortMergeJoin) Join() (*tuple.Store, error) {
	return j.execute(j.run)
}

func (j *indexedSortMergeJoin) run() (*tuple.Store, error) {
	var (
		rs, ss sortedRun
		index  *sparseIndex
		sinks  []*sink
		out    *tuple.Store
	)

	scratch, err := j.reserve("sort", 2*sortedRunBytes(j.r.Rows()+j.s.Rows()))
	if err != nil {
		return nil, err
	}
	defer scratch.Release()

	err = j.timePhase(smjiSort, func() error {
		var err error
		rs, ss, err = j.sortBoth()
		return err
	})
	if err != nil {
		return nil, err
	}

	indexR := j.r.Rows() > j.s.Rows()
	err = j.timePhase(smjiIndex, func() error {
		var err error
		if indexR {
			index, err = j.buildIndex(rs)
		} else {
			index, err = j.buildIndex(ss)
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	ibuf, err := j.reserve("index", int64(index.runs())*(8+8)+int64(len(index.fences))*8)
	if err != nil {
		return nil, err
	}
	defer ibuf.Release()

	err = j.timePhase(smjiProbe, func() error {
		var err error
		if indexR {
			sinks, err = j.probe(ss, index, true)
		} else {
			sinks, err = j.probe(rs, index, false)
		}
		return err
	})
	if err != nil {
		return nil, err
	}

	err = j.timePhase(smjiMaterialize, func() error {
		var err error
		out, err = j.materialize("materialize", sinks)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// buildIndex finds run starts in parallel chunks and samples fence keys
func (j *indexedSortMergeJoin) buildIndex(sr sortedRun) (*sparseIndex, error) {
	n := sr.len()
	chunks := chunkBounds(n, j.pool.WorkerCount())
	starts := make([][]int, len(chunks)-1)
	err := j.pool.Execute(len(chunks)-1, func(c int) error {
		var local []int
		for p := chunks[c]; p < chunks[c+1]; p++ {
			if p == 0 || sr.keys[p] != sr.keys[p-1] {
				local = append(local, p)
			}
		}
		starts[c] = local
		return nil
	})
	if err != nil {
		return nil, err
	}

	ix := &sparseIndex{sorted: sr}
	for _, local := range starts {
		ix.runStart = append(ix.runStart, local...)
	}
	ix.runKeys = make([]uint64, len(ix.runStart))
	for i, p := range ix.runStart {
		ix.runKeys[i] = sr.keys[p]
	}
	ix.runStart = append(ix.runStart, n)
	for i := 0; i < len(ix.runKeys); i += indexStride {
		ix.fences = append(ix.fences, ix.runKeys[i])
	}

	for i := 1; i < len(ix.runKeys); i++ {
		if ix.runKeys[i] <= ix.runKeys[i-1] {
			return nil, j.invariant("index", "run keys not strictly ascending at run %d", i)
		}
	}
	return ix, nil
}

// probe walks the runs of the probe side in key order. Output stays
// R-major within each key so it matches the sort-merge order exactly.
func (j *indexedSortMergeJoin) probe(probe sortedRun, ix *sparseIndex, probeIsS bool) ([]*sink, error) {
	bounds := runBoundaries(probe, j.pool.WorkerCount())
	sinks := j.newSinks(len(bounds) - 1)

	err := j.pool.Execute(len(bounds)-1, func(t int) error {
		k := sinks[t]
		for i := bounds[t]; i < bounds[t+1]; {
			end := probe.runEnd(i)
			from, to := ix.lookup(probe.keys[i])
			if from < to {
				if probeIsS {
					emitRuns(k, ix.sorted.rows[from:to], probe.rows[i:end])
				} else {
					emitRuns(k, probe.rows[i:end], ix.sorted.rows[from:to])
				}
			}
			i = end
		}
		return k.seal(j.res)
	})
	if err != nil {
		dropSinks(sinks)
		return nil, err
	}
	return sinks, nil
}
