package join

import (
	"github.com/RoaringBitmap/roaring"
	"github.com/wbrown/janus-joinbench/joinbench/memory"
	"github.com/wbrown/janus-joinbench/joinbench/tuple"
)

// pass2MinRows is the build-side size above which a partition is split again
const pass2MinRows = 4096

// PHJ phase indices
const (
	phjPartition = iota
	phjJoin
	phjMaterialize
)

// partitionedHashJoin radix-partitions both sides by key hash, then joins
// matching partitions independently with a per-partition hash table.
type partitionedHashJoin struct {
	*base
}

func newPartitionedHashJoin(b *base) *partitionedHashJoin {
	b.setPhases("partition", "join", "materialize")
	b.extraNames = []string{"active_partitions"}
	b.extras = []float64{0}
	return &partitionedHashJoin{base: b}
}

// leaf is one unit of join work: the R and S rows sharing a partition path
type leaf struct {
	rRows, sRows []int32
}

func (j *partitionedHashJoin) Join() (*tuple.Store, error) {
	j.extras[0] = 0
	return j.execute(j.run)
}

func (j *partitionedHashJoin) run() (*tuple.Store, error) {
	var (
		rHash, sHash []uint64
		leaves       []leaf
		sinks        []*sink
		out          *tuple.Store
	)

	n := int64(j.r.Rows() + j.s.Rows())
	scratch, err := j.reserve("partition", n*(8+4+4))
	if err != nil {
		return nil, err
	}
	defer scratch.Release()

	err = j.timePhase(phjPartition, func() error {
		var err error
		if rHash, err = j.hashColumn(j.r.Key()); err != nil {
			return err
		}
		if sHash, err = j.hashColumn(j.s.Key()); err != nil {
			return err
		}
		leaves, err = j.partition(rHash, sHash)
		return err
	})
	if err != nil {
		return nil, err
	}

	err = j.timePhase(phjJoin, func() error {
		var err error
		sinks, err = j.joinLeaves(leaves, rHash, sHash)
		return err
	})
	if err != nil {
		return nil, err
	}

	err = j.timePhase(phjMaterialize, func() error {
		var err error
		out, err = j.materialize("materialize", sinks)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (j *partitionedHashJoin) hashColumn(key *tuple.Column) ([]uint64, error) {
	hashes := make([]uint64, key.Len())
	err := j.pool.Chunks(key.Len(), func(_, from, to int) error {
		for i := from; i < to; i++ {
			hashes[i] = hashKey(key.Get(i))
		}
		return nil
	})
	return hashes, err
}

// partition runs pass 1 over both sides, intersects the occupied partitions
// and splits large ones with pass 2. Leaves come out in partition order.
func (j *partitionedHashJoin) partition(rHash, sHash []uint64) ([]leaf, error) {
	log1 := uint(j.cfg.PHJLogPart1)
	log2 := uint(j.cfg.PHJLogPart2)

	rPart, err := radixPartition(j.pool, rHash, 0, log1)
	if err != nil {
		return nil, err
	}
	sPart, err := radixPartition(j.pool, sHash, 0, log1)
	if err != nil {
		return nil, err
	}
	if rPart.bounds[rPart.fanout()] != j.r.Rows() || sPart.bounds[sPart.fanout()] != j.s.Rows() {
		return nil, j.invariant("partition", "pass 1 lost rows: R %d/%d S %d/%d",
			rPart.bounds[rPart.fanout()], j.r.Rows(), sPart.bounds[sPart.fanout()], j.s.Rows())
	}

	active := roaring.And(rPart.occupied(), sPart.occupied())
	j.extras[0] = float64(active.GetCardinality())
	parts := active.ToArray()

	buildIsR := j.buildIsR()
	perPart := make([][]leaf, len(parts))
	err = j.pool.Execute(len(parts), func(i int) error {
		p := int(parts[i])
		rRows, sRows := rPart.part(p), sPart.part(p)
		build := sRows
		if buildIsR {
			build = rRows
		}
		if log2 == 0 || len(build) <= pass2MinRows {
			perPart[i] = []leaf{{rRows: rRows, sRows: sRows}}
			return nil
		}

		rSub := subPartition(rRows, rHash, log1, log2)
		sSub := subPartition(sRows, sHash, log1, log2)
		for q := 0; q < rSub.fanout(); q++ {
			rq, sq := rSub.part(q), sSub.part(q)
			if len(rq) > 0 && len(sq) > 0 {
				perPart[i] = append(perPart[i], leaf{rRows: rq, sRows: sq})
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	var leaves []leaf
	for _, ls := range perPart {
		leaves = append(leaves, ls...)
	}
	return leaves, nil
}

// buildIsR picks the smaller side as the hash table side; ties build R
func (j *partitionedHashJoin) buildIsR() bool {
	return j.r.Rows() <= j.s.Rows()
}

func (j *partitionedHashJoin) joinLeaves(leaves []leaf, rHash, sHash []uint64) ([]*sink, error) {
	sinks := j.newSinks(len(leaves))
	buildIsR := j.buildIsR()
	rKey, sKey := j.r.Key(), j.s.Key()

	err := j.pool.Execute(len(leaves), func(i int) error {
		lf := leaves[i]
		k := sinks[i]

		build, probe := lf.sRows, lf.rRows
		buildKey, probeKey := sKey, rKey
		buildHash, probeHash := sHash, rHash
		if buildIsR {
			build, probe = lf.rRows, lf.sRows
			buildKey, probeKey = rKey, sKey
			buildHash, probeHash = rHash, sHash
		}

		tbuf, err := memory.Reserve(j.res, tableBytes(len(build)))
		if err != nil {
			return err
		}
		defer tbuf.Release()

		table := newChainedTable(len(build))
		table.build(build, buildKey, buildHash)
		for _, row := range probe {
			if buildIsR {
				table.probe(probeKey.Get(int(row)), probeHash[row], func(r int32) { k.emit(r, row) })
			} else {
				table.probe(probeKey.Get(int(row)), probeHash[row], func(s int32) { k.emit(row, s) })
			}
		}
		return k.seal(j.res)
	})
	if err != nil {
		dropSinks(sinks)
		return nil, err
	}
	return sinks, nil
}
