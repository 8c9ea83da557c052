package join

import (
	"github.com/wbrown/janus-joinbench/joinbench/memory"
	"github.com/wbrown/janus-joinbench/joinbench/tuple"
)

type sinkMode int

const (
	eagerSink sinkMode = iota // copy full output rows at match time
	lateSink                  // record index pairs, gather after matching
	countSink                 // aggregate only
)

// sink collects the matches of one task. Tasks own their sink exclusively
// and sinks are assembled in task order.
type sink struct {
	mode  sinkMode
	count int64

	// eager: row-major output rows
	rCols []*tuple.Column
	sCols []*tuple.Column
	rows  []uint64

	// late: matching row indices
	rIdx []int32
	sIdx []int32

	buf *memory.Buffer
}

func (b *base) sinkMode() sinkMode {
	switch {
	case b.cfg.AggOnly:
		return countSink
	case b.cfg.LateMaterialization:
		return lateSink
	default:
		return eagerSink
	}
}

func (b *base) newSink() *sink {
	k := &sink{mode: b.sinkMode()}
	if k.mode == eagerSink {
		k.rCols = make([]*tuple.Column, b.r.NumCols())
		for c := range k.rCols {
			k.rCols[c] = b.r.Col(c)
		}
		k.sCols = make([]*tuple.Column, b.s.NumPayload())
		for p := range k.sCols {
			k.sCols[p] = b.s.Payload(p)
		}
	}
	return k
}

func (b *base) newSinks(n int) []*sink {
	sinks := make([]*sink, n)
	for i := range sinks {
		sinks[i] = b.newSink()
	}
	return sinks
}

// emit records the match of R row ri with S row si
func (k *sink) emit(ri, si int32) {
	k.count++
	switch k.mode {
	case eagerSink:
		for _, c := range k.rCols {
			k.rows = append(k.rows, c.Get(int(ri)))
		}
		for _, c := range k.sCols {
			k.rows = append(k.rows, c.Get(int(si)))
		}
	case lateSink:
		k.rIdx = append(k.rIdx, ri)
		k.sIdx = append(k.sIdx, si)
	}
}

func (k *sink) bytes() int64 {
	switch k.mode {
	case eagerSink:
		return int64(cap(k.rows)) * 8
	case lateSink:
		return int64(cap(k.rIdx)+cap(k.sIdx)) * 4
	default:
		return 0
	}
}

// seal charges the sink's buffers to res once its task is done
func (k *sink) seal(res memory.Resource) error {
	buf, err := memory.Reserve(res, k.bytes())
	if err != nil {
		k.drop()
		return err
	}
	k.buf = buf
	return nil
}

// drop frees the sink's buffers
func (k *sink) drop() {
	k.buf.Release()
	k.buf = nil
	k.rows, k.rIdx, k.sIdx = nil, nil, nil
}

func dropSinks(sinks []*sink) {
	for _, k := range sinks {
		if k != nil {
			k.drop()
		}
	}
}

// materialize assembles the sinks in order into the output store and drops
// them. On error nothing stays allocated.
func (b *base) materialize(phase string, sinks []*sink) (*tuple.Store, error) {
	defer dropSinks(sinks)

	var total int64
	offsets := make([]int, len(sinks))
	for i, k := range sinks {
		offsets[i] = int(total)
		total += k.count
	}

	if b.cfg.AggOnly {
		out, err := tuple.NewCount(b.res, total)
		if err != nil {
			return nil, err
		}
		return out, nil
	}

	width := b.r.NumCols() + b.s.NumPayload()
	for i, k := range sinks {
		switch k.mode {
		case eagerSink:
			if int64(len(k.rows)) != k.count*int64(width) {
				return nil, b.invariant(phase, "task %d holds %d values for %d rows of width %d", i, len(k.rows), k.count, width)
			}
		case lateSink:
			if int64(len(k.rIdx)) != k.count || int64(len(k.sIdx)) != k.count {
				return nil, b.invariant(phase, "task %d holds %d/%d index pairs for %d rows", i, len(k.rIdx), len(k.sIdx), k.count)
			}
		}
	}

	out, err := tuple.New(b.res, b.outputSchema(), int(total))
	if err != nil {
		return nil, err
	}

	err = b.pool.Execute(len(sinks), func(i int) error {
		k := sinks[i]
		switch k.mode {
		case eagerSink:
			k.copyRows(out, offsets[i], width)
		case lateSink:
			gatherPairs(out, offsets[i], b.r, b.s, k.rIdx, k.sIdx)
		}
		return nil
	})
	if err != nil {
		out.Release()
		return nil, err
	}
	return out, nil
}

func (k *sink) copyRows(out *tuple.Store, offset, width int) {
	for c := 0; c < width; c++ {
		col := out.Col(c)
		for i, v := 0, c; v < len(k.rows); i, v = i+1, v+width {
			col.Set(offset+i, k.rows[v])
		}
	}
}

// gatherPairs writes R[rIdx[i]] ++ S.payload[sIdx[i]] into out at offset+i
func gatherPairs(out *tuple.Store, offset int, r, s *tuple.Store, rIdx, sIdx []int32) {
	rc := r.NumCols()
	for c := 0; c < rc; c++ {
		out.Col(c).Gather(offset, r.Col(c), rIdx)
	}
	for p := 0; p < s.NumPayload(); p++ {
		out.Col(rc+p).Gather(offset, s.Payload(p), sIdx)
	}
}
