package join

import (
	"fmt"
	"io"
	"time"

	"github.com/wbrown/janus-joinbench/joinbench"
	"github.com/wbrown/janus-joinbench/joinbench/annotations"
	"github.com/wbrown/janus-joinbench/joinbench/memory"
	"github.com/wbrown/janus-joinbench/joinbench/tuple"
	"go.uber.org/zap"
)

// base carries the state every variant shares: inputs, resources and the
// statistics of the last run.
type base struct {
	cfg  joinbench.Config
	algo joinbench.Algorithm
	r, s *tuple.Store

	res       memory.Resource
	pool      *WorkerPool
	collector *annotations.Collector
	log       *zap.Logger

	phases     []string
	phaseTimes []time.Duration
	extraNames []string
	extras     []float64
	total      time.Duration
	outputRows int64
	peakBytes  int64
}

func newBase(cfg joinbench.Config, r, s *tuple.Store, o options) (*base, error) {
	b := &base{
		cfg:       cfg,
		algo:      cfg.Algo,
		r:         r,
		s:         s,
		res:       o.res,
		pool:      NewWorkerPool(o.workers),
		collector: o.collector,
		log:       o.logger.With(zap.Stringer("algo", cfg.Algo)),
	}
	if err := b.checkInputs(); err != nil {
		return nil, err
	}
	return b, nil
}

func (b *base) invariant(phase, format string, args ...interface{}) error {
	return &joinbench.InvariantError{
		Algorithm: b.algo,
		Phase:     phase,
		Detail:    fmt.Sprintf(format, args...),
		Config:    b.cfg,
	}
}

func (b *base) checkInputs() error {
	switch {
	case b.r == nil || b.s == nil:
		return b.invariant("setup", "nil input relation")
	case b.r.Released() || b.s.Released():
		return b.invariant("setup", "input relation already released")
	case b.r.NumCols() != b.cfg.PR+1:
		return b.invariant("setup", "R has %d columns, configuration expects %d", b.r.NumCols(), b.cfg.PR+1)
	case b.s.NumCols() != b.cfg.PS+1:
		return b.invariant("setup", "S has %d columns, configuration expects %d", b.s.NumCols(), b.cfg.PS+1)
	case b.r.Key().Width() != b.s.Key().Width():
		return b.invariant("setup", "key widths differ: R=%d S=%d", b.r.Key().Width(), b.s.Key().Width())
	}
	return nil
}

// outputSchema is R's schema followed by S's payload columns
func (b *base) outputSchema() tuple.Schema {
	return b.r.Schema().JoinOutput(b.s.Schema())
}

// setPhases declares the phase names in stat order and clears timings
func (b *base) setPhases(names ...string) {
	b.phases = names
	b.phaseTimes = make([]time.Duration, len(names))
}

// timePhase runs fn as phase i and records its duration
func (b *base) timePhase(i int, fn func() error) error {
	start := time.Now()
	err := fn()
	b.phaseTimes[i] = time.Since(start)

	data := map[string]interface{}{
		"algorithm": b.algo.String(),
		"phase":     b.phases[i],
	}
	if err != nil {
		data["error"] = err.Error()
	}
	b.collector.AddTiming(annotations.PhaseComplete, start, data)
	b.log.Debug("phase complete",
		zap.String("phase", b.phases[i]),
		zap.Duration("elapsed", b.phaseTimes[i]),
		zap.Error(err))
	return err
}

// execute wraps a variant's body with total timing, peak tracking and the
// completion event. The body must release its intermediates on every path.
func (b *base) execute(body func() (*tuple.Store, error)) (*tuple.Store, error) {
	if err := b.checkInputs(); err != nil {
		return nil, err
	}
	for i := range b.phaseTimes {
		b.phaseTimes[i] = 0
	}
	b.outputRows, b.peakBytes = 0, 0

	b.res.ResetPeak()
	start := time.Now()
	out, err := body()
	b.total = time.Since(start)
	b.peakBytes = b.res.Peak()
	if err != nil {
		return nil, err
	}

	if n, ok := out.Count(); ok {
		b.outputRows = n
	} else {
		b.outputRows = int64(out.Rows())
	}

	b.collector.AddTiming(annotations.JoinComplete, start, map[string]interface{}{
		"algorithm":   b.algo.String(),
		"r.rows":      b.r.Rows(),
		"s.rows":      b.s.Rows(),
		"output.rows": b.outputRows,
	})
	b.log.Debug("join complete",
		zap.Int64("rows", b.outputRows),
		zap.Duration("elapsed", b.total),
		zap.Int64("peak", b.peakBytes))
	return out, nil
}

func (b *base) Algorithm() joinbench.Algorithm { return b.algo }

func (b *base) StatNames() []string {
	names := make([]string, 0, len(b.phases)+3+len(b.extraNames))
	for _, p := range b.phases {
		names = append(names, p+"_ms")
	}
	names = append(names, "total_ms", "output_rows", "peak_bytes")
	return append(names, b.extraNames...)
}

func (b *base) AllStats() []float64 {
	stats := make([]float64, 0, len(b.phases)+3+len(b.extras))
	for _, d := range b.phaseTimes {
		stats = append(stats, millis(d))
	}
	stats = append(stats, millis(b.total), float64(b.outputRows), float64(b.peakBytes))
	return append(stats, b.extras...)
}

func (b *base) PrintStats(w io.Writer) {
	printStats(w, b.algo, b.StatNames(), b.AllStats())
}

// reserve charges n bytes of intermediate state to the resource
func (b *base) reserve(phase string, n int64) (*memory.Buffer, error) {
	buf, err := memory.Reserve(b.res, n)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", b.algo, phase, err)
	}
	return buf, nil
}

func millis(d time.Duration) float64 {
	return float64(d.Nanoseconds()) / 1e6
}
