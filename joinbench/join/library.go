package join

import (
	"fmt"
	"time"

	"github.com/wbrown/janus-joinbench/joinbench/tuple"
)

// KeyView is a contiguous key column handed to an Oracle. Width is the
// logical key width in bytes; Data holds the keys widened to 64 bits.
type KeyView struct {
	Width int
	Data  []uint64
}

// Oracle computes the matching row pairs of an inner equi-join. It stands
// in for an external join library; the returned slices pair up by position.
type Oracle interface {
	InnerJoin(left, right KeyView) (leftIdx, rightIdx []int32, err error)
}

// HostOracle is a map-based vectorized inner join. Pairs come out in
// ascending left row order, then ascending right row order.
type HostOracle struct{}

func (HostOracle) InnerJoin(left, right KeyView) ([]int32, []int32, error) {
	if left.Width != right.Width {
		return nil, nil, fmt.Errorf("key width mismatch: %d vs %d", left.Width, right.Width)
	}

	index := make(map[uint64][]int32, len(right.Data))
	for i, k := range right.Data {
		index[k] = append(index[k], int32(i))
	}

	var leftIdx, rightIdx []int32
	for i, k := range left.Data {
		for _, r := range index[k] {
			leftIdx = append(leftIdx, int32(i))
			rightIdx = append(rightIdx, r)
		}
	}
	return leftIdx, rightIdx, nil
}

const (
	libConvert = iota
	libMatch
	libGather
)

// libraryJoin delegates matching to an Oracle. Keys are converted into
// views batch by batch, and payloads are gathered by the returned indices,
// so late materialization makes no difference here.
type libraryJoin struct {
	*base
	oracle Oracle
}

func newLibraryJoin(b *base, oracle Oracle) *libraryJoin {
	b.setPhases("convert", "match", "gather")
	b.extraNames = []string{"scan_ms"}
	b.extras = []float64{0}
	return &libraryJoin{base: b, oracle: oracle}
}

func (j *libraryJoin) Join() (*tuple.Store, error) {
	j.extras[0] = 0
	return j.execute(j.run)
}

func (j *libraryJoin) run() (*tuple.Store, error) {
	var (
		left, right KeyView
		li, ri      []int32
		out         *tuple.Store
	)

	vbuf, err := j.reserve("convert", int64(j.r.Rows()+j.s.Rows())*8)
	if err != nil {
		return nil, err
	}
	defer vbuf.Release()

	err = j.timePhase(libConvert, func() error {
		var rScan, sScan time.Duration
		var err error
		if left, rScan, err = keyView(j.r, j.cfg.VecSize); err != nil {
			return err
		}
		if right, sScan, err = keyView(j.s, j.cfg.VecSize); err != nil {
			return err
		}
		j.extras[0] = millis(rScan + sScan)
		return nil
	})
	if err != nil {
		return nil, err
	}

	err = j.timePhase(libMatch, func() error {
		var err error
		li, ri, err = j.oracle.InnerJoin(left, right)
		if err != nil {
			return fmt.Errorf("oracle join failed: %w", err)
		}
		return j.checkPairs(li, ri)
	})
	if err != nil {
		return nil, err
	}

	pbuf, err := j.reserve("match", int64(len(li)+len(ri))*4)
	if err != nil {
		return nil, err
	}
	defer pbuf.Release()

	err = j.timePhase(libGather, func() error {
		var err error
		out, err = j.gather(li, ri)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func keyView(st *tuple.Store, vecSize int) (KeyView, time.Duration, error) {
	batches, scanTime, err := scanBatches(st, vecSize)
	if err != nil {
		return KeyView{}, scanTime, err
	}
	key := st.Key()
	kv := KeyView{Width: key.Width(), Data: make([]uint64, 0, st.Rows())}
	for _, b := range batches {
		kv.Data = key.AppendTo(kv.Data, b.Offset, b.End())
	}
	return kv, scanTime, nil
}

// checkPairs rejects oracle output that cannot be gathered
func (j *libraryJoin) checkPairs(li, ri []int32) error {
	if len(li) != len(ri) {
		return j.invariant("match", "oracle returned %d left and %d right indices", len(li), len(ri))
	}
	nr, ns := int32(j.r.Rows()), int32(j.s.Rows())
	for i := range li {
		if li[i] < 0 || li[i] >= nr || ri[i] < 0 || ri[i] >= ns {
			return j.invariant("match", "pair %d (%d, %d) out of range", i, li[i], ri[i])
		}
		if j.r.Key().Get(int(li[i])) != j.s.Key().Get(int(ri[i])) {
			return j.invariant("match", "pair %d (%d, %d) keys differ", i, li[i], ri[i])
		}
	}
	return nil
}

func (j *libraryJoin) gather(li, ri []int32) (*tuple.Store, error) {
	if j.cfg.AggOnly {
		return tuple.NewCount(j.res, int64(len(li)))
	}
	out, err := tuple.New(j.res, j.outputSchema(), len(li))
	if err != nil {
		return nil, err
	}
	err = j.pool.Chunks(len(li), func(_, from, to int) error {
		gatherPairs(out, from, j.r, j.s, li[from:to], ri[from:to])
		return nil
	})
	if err != nil {
		out.Release()
		return nil, err
	}
	return out, nil
}
