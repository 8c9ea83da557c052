package join

import (
	"github.com/wbrown/janus-joinbench/joinbench/tuple"
)

const (
	smjSort = iota
	smjMerge
	smjMaterialize
)

// sortMergeJoin sorts both sides by key and merges them, emitting the
// cross product of every pair of equal-key runs.
type sortMergeJoin struct {
	*base
}

func newSortMergeJoin(b *base) *sortMergeJoin {
	b.setPhases("sort", "merge", "materialize")
	return &sortMergeJoin{base: b}
}

func (j *sortMergeJoin) Join() (*tuple.Store, error) {
	return j.execute(j.run)
}

func (j *sortMergeJoin) run() (*tuple.Store, error) {
	var (
		rs, ss sortedRun
		sinks  []*sink
		out    *tuple.Store
	)

	scratch, err := j.reserve("sort", 2*sortedRunBytes(j.r.Rows()+j.s.Rows()))
	if err != nil {
		return nil, err
	}
	defer scratch.Release()

	err = j.timePhase(smjSort, func() error {
		var err error
		rs, ss, err = j.sortBoth()
		return err
	})
	if err != nil {
		return nil, err
	}

	err = j.timePhase(smjMerge, func() error {
		var err error
		sinks, err = j.merge(rs, ss)
		return err
	})
	if err != nil {
		return nil, err
	}

	err = j.timePhase(smjMaterialize, func() error {
		var err error
		out, err = j.materialize("materialize", sinks)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (b *base) sortBoth() (rs, ss sortedRun, err error) {
	if rs, err = sortByKey(b.pool, b.r.Key()); err != nil {
		return
	}
	if ss, err = sortByKey(b.pool, b.s.Key()); err != nil {
		return
	}
	if rs.len() != b.r.Rows() || ss.len() != b.s.Rows() {
		err = b.invariant("sort", "sorted lengths %d/%d differ from inputs %d/%d",
			rs.len(), ss.len(), b.r.Rows(), b.s.Rows())
	}
	return
}

// merge splits sorted R at run boundaries so each worker owns whole runs,
// finds the matching S slice by binary search and merges the two.
func (j *sortMergeJoin) merge(rs, ss sortedRun) ([]*sink, error) {
	bounds := runBoundaries(rs, j.pool.WorkerCount())
	sinks := j.newSinks(len(bounds) - 1)

	err := j.pool.Execute(len(bounds)-1, func(t int) error {
		rFrom, rTo := bounds[t], bounds[t+1]
		sFrom := ss.lowerBound(rs.keys[rFrom])
		sTo := ss.len()
		if rTo < rs.len() {
			sTo = ss.lowerBound(rs.keys[rTo])
		}
		mergeRange(sinks[t], rs, ss, rFrom, rTo, sFrom, sTo)
		return sinks[t].seal(j.res)
	})
	if err != nil {
		dropSinks(sinks)
		return nil, err
	}
	return sinks, nil
}

func mergeRange(k *sink, rs, ss sortedRun, i, iEnd, jj, jEnd int) {
	for i < iEnd && jj < jEnd {
		rk, sk := rs.keys[i], ss.keys[jj]
		switch {
		case rk < sk:
			i++
		case rk > sk:
			jj++
		default:
			ri := rs.runEnd(i)
			sj := ss.runEnd(jj)
			emitRuns(k, rs.rows[i:ri], ss.rows[jj:sj])
			i, jj = ri, sj
		}
	}
}

// emitRuns emits the cross product of two equal-key runs, R-major
func emitRuns(k *sink, rRows, sRows []int32) {
	if k.mode == countSink {
		k.count += int64(len(rRows)) * int64(len(sRows))
		return
	}
	for _, r := range rRows {
		for _, s := range sRows {
			k.emit(r, s)
		}
	}
}
