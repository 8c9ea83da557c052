package join

import (
	"time"

	"github.com/wbrown/janus-joinbench/joinbench/tuple"
	"github.com/wbrown/janus-joinbench/joinbench/volcano"
)

const (
	shjBuild = iota
	shjProbe
	shjMaterialize
)

// sharedHashJoin builds one hash table concurrently over the smaller side
// and probes it with vector-sized batches of the other side. Output order
// is deterministic only with a single worker.
type sharedHashJoin struct {
	*base
}

func newSharedHashJoin(b *base) *sharedHashJoin {
	b.setPhases("build", "probe", "materialize")
	b.extraNames = []string{"scan_ms"}
	b.extras = []float64{0}
	return &sharedHashJoin{base: b}
}

func (j *sharedHashJoin) Join() (*tuple.Store, error) {
	j.extras[0] = 0
	return j.execute(j.run)
}

func (j *sharedHashJoin) run() (*tuple.Store, error) {
	var (
		table *sharedTable
		sinks []*sink
		out   *tuple.Store
	)

	buildIsR := j.r.Rows() <= j.s.Rows()
	build, probe := j.s, j.r
	if buildIsR {
		build, probe = j.r, j.s
	}

	tbuf, err := j.reserve("build", sharedTableBytes(build.Rows()))
	if err != nil {
		return nil, err
	}
	defer tbuf.Release()

	err = j.timePhase(shjBuild, func() error {
		table = newSharedTable(build.Key())
		if err := j.pool.Chunks(build.Rows(), func(_, from, to int) error {
			table.insert(from, to)
			return nil
		}); err != nil {
			return err
		}
		if n := table.entries(); n != build.Rows() {
			return j.invariant("build", "table holds %d entries for %d build rows", n, build.Rows())
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	err = j.timePhase(shjProbe, func() error {
		batches, scanTime, err := scanBatches(probe, j.cfg.VecSize)
		if err != nil {
			return err
		}
		j.extras[0] = millis(scanTime)
		sinks = j.newSinks(len(batches))
		probeKey := probe.Key()
		err = j.pool.Execute(len(batches), func(i int) error {
			k := sinks[i]
			for row := batches[i].Offset; row < batches[i].End(); row++ {
				p := int32(row)
				if buildIsR {
					table.probe(probeKey.Get(row), func(r int32) { k.emit(r, p) })
				} else {
					table.probe(probeKey.Get(row), func(s int32) { k.emit(p, s) })
				}
			}
			return k.seal(j.res)
		})
		if err != nil {
			dropSinks(sinks)
		}
		return err
	})
	if err != nil {
		return nil, err
	}

	err = j.timePhase(shjMaterialize, func() error {
		var err error
		out, err = j.materialize("materialize", sinks)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// scanBatches drains a volcano scan over st into its batch windows and
// reports the time the scan spent producing them
func scanBatches(st *tuple.Store, vecSize int) ([]volcano.Batch, time.Duration, error) {
	scan := volcano.NewScan(st, vecSize)
	if err := scan.Open(); err != nil {
		return nil, 0, err
	}
	defer scan.Close()

	var batches []volcano.Batch
	for {
		b, ok, err := scan.Next()
		if err != nil {
			return nil, scan.OpTime(), err
		}
		if !ok {
			return batches, scan.OpTime(), nil
		}
		batches = append(batches, b)
	}
}
