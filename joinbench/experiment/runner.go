// Package experiment drives join runs: workload preparation, the join
// itself, verification and result logging.
package experiment

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/wbrown/janus-joinbench/joinbench"
	"github.com/wbrown/janus-joinbench/joinbench/annotations"
	"github.com/wbrown/janus-joinbench/joinbench/join"
	"github.com/wbrown/janus-joinbench/joinbench/logutil"
	"github.com/wbrown/janus-joinbench/joinbench/memory"
	"github.com/wbrown/janus-joinbench/joinbench/tuple"
	"github.com/wbrown/janus-joinbench/joinbench/volcano"
	"github.com/wbrown/janus-joinbench/joinbench/workload"
	"go.uber.org/zap"
)

// Runner executes experiment configurations. The zero value is not usable;
// build one with NewRunner.
type Runner struct {
	// Resource is charged for inputs, intermediates and outputs. A run whose
	// configuration sets MemoryLimit is additionally capped at that limit.
	Resource memory.Resource
	// Archive caches generated workloads when set
	Archive *workload.Archive
	// Collector receives run and phase events when set
	Collector *annotations.Collector
	// Logger reports runs and skipped configurations
	Logger *zap.Logger
	// Stats receives each run's statistics table when set
	Stats io.Writer
	// Preview receives the first rows of each materialized output when set
	Preview io.Writer
	// Oracle replaces the default matcher of the library-delegated join
	Oracle join.Oracle
	// DumpDir receives each join output as CSV when set
	DumpDir string
	// RPath and SPath load the relations from CSV instead of generating them
	RPath, SPath string
}

// Result is the outcome of one run
type Result struct {
	Config     joinbench.Config
	StatNames  []string
	Stats      []float64
	OutputRows int64
	Elapsed    time.Duration
}

// NewRunner creates a runner charging res and logging to logger, or to the
// process logger when logger is nil
func NewRunner(res memory.Resource, logger *zap.Logger) *Runner {
	if res == nil {
		res = memory.NewHostResource(0)
	}
	if logger == nil {
		logger = logutil.GetLogger()
	}
	return &Runner{Resource: res, Logger: logger}
}

// Run executes one configuration and appends its result row. Every store
// allocated by the run is released before Run returns.
func (rn *Runner) Run(cfg joinbench.Config) (Result, error) {
	start := time.Now()
	rn.Collector.Add(annotations.Event{
		Name:  annotations.RunBegin,
		Start: start,
		Data:  map[string]interface{}{"config": cfg.Summary()},
	})

	res, err := rn.run(cfg)
	res.Elapsed = time.Since(start)

	data := map[string]interface{}{
		"algorithm":   cfg.Algo.String(),
		"output.rows": res.OutputRows,
	}
	if err != nil {
		data["error"] = err
		if name := errorEvent(err); name != "" {
			rn.Collector.AddTiming(name, start, map[string]interface{}{"error": err})
		}
	}
	rn.Collector.AddTiming(annotations.RunComplete, start, data)
	return res, err
}

func errorEvent(err error) string {
	switch {
	case joinbench.IsConfigError(err):
		return annotations.ErrorConfiguration
	case joinbench.IsAllocationError(err):
		return annotations.ErrorAllocation
	case joinbench.IsInvariantError(err):
		return annotations.ErrorInvariant
	default:
		return ""
	}
}

func (rn *Runner) run(cfg joinbench.Config) (Result, error) {
	result := Result{Config: cfg}
	if err := cfg.Validate(); err != nil {
		return result, err
	}

	res := rn.Resource
	if cfg.MemoryLimit > 0 {
		res = memory.NewLimited(rn.Resource, cfg.MemoryLimit)
	}

	r, s, err := rn.prepare(cfg, res)
	if err != nil {
		return result, err
	}
	defer r.Release()
	defer s.Release()

	j, err := join.New(cfg, r, s,
		join.WithResource(res),
		join.WithCollector(rn.Collector),
		join.WithLogger(rn.Logger),
		join.WithOracle(rn.Oracle),
	)
	if err != nil {
		return result, err
	}

	out, err := j.Join()
	if err != nil {
		return result, fmt.Errorf("%s join failed: %w", cfg.Algo, err)
	}
	defer out.Release()

	result.StatNames = j.StatNames()
	result.Stats = j.AllStats()
	if result.OutputRows, err = rn.verify(cfg, j, out); err != nil {
		return result, err
	}

	if rn.Stats != nil {
		j.PrintStats(rn.Stats)
	}
	if rn.Preview != nil && !out.IsCount() {
		fmt.Fprintln(rn.Preview, tuple.NewTableFormatter().FormatStore(out))
	}
	if rn.DumpDir != "" && !out.IsCount() {
		path := filepath.Join(rn.DumpDir, fmt.Sprintf("%s_%016x.csv", cfg.Algo, workload.Fingerprint(cfg)))
		if err := workload.DumpCSV(path, out); err != nil {
			return result, err
		}
	}
	results := NewResultLog(cfg.Output)
	if err := results.Append(cfg, result.Stats); err != nil {
		return result, err
	}

	rn.Logger.Info("run complete",
		zap.String("config", cfg.Summary()),
		zap.String("results", results.Path()),
		zap.Int64("rows", result.OutputRows),
		zap.Float64s("stats", result.Stats))
	return result, nil
}

// prepare loads, fetches or generates the input relations
func (rn *Runner) prepare(cfg joinbench.Config, res memory.Resource) (r, s *tuple.Store, err error) {
	if rn.RPath != "" || rn.SPath != "" {
		return workload.LoadCSV(cfg, rn.RPath, rn.SPath, res)
	}
	if rn.Archive == nil {
		return workload.Generate(cfg, res)
	}

	r, s, err = rn.Archive.Get(cfg, res)
	if err == nil {
		rn.Collector.Add(annotations.Event{Name: annotations.WorkloadLoaded,
			Data: map[string]interface{}{"r.rows": r.Rows(), "s.rows": s.Rows()}})
		return r, s, nil
	}
	if !errors.Is(err, workload.ErrNotArchived) {
		return nil, nil, err
	}

	start := time.Now()
	if r, s, err = workload.Generate(cfg, res); err != nil {
		return nil, nil, err
	}
	rn.Collector.AddTiming(annotations.WorkloadGenerated, start,
		map[string]interface{}{"r.rows": r.Rows(), "s.rows": s.Rows()})

	start = time.Now()
	if err := rn.Archive.Put(cfg, r, s); err != nil {
		r.Release()
		s.Release()
		return nil, nil, err
	}
	rn.Collector.AddTiming(annotations.WorkloadArchived, start,
		map[string]interface{}{"fingerprint": fmt.Sprintf("%016x", workload.Fingerprint(cfg))})
	return r, s, nil
}

// verify recounts the output through the volcano pipeline and checks it
// against the reported statistics and, for PK_FK, the generator's promise.
func (rn *Runner) verify(cfg joinbench.Config, j join.Joiner, out *tuple.Store) (int64, error) {
	n, err := volcano.CountRows(out, cfg.VecSize)
	if err != nil {
		return 0, err
	}

	invariant := func(format string, args ...interface{}) error {
		return &joinbench.InvariantError{Algorithm: cfg.Algo, Phase: "verify", Detail: fmt.Sprintf(format, args...), Config: cfg}
	}

	names, stats := j.StatNames(), j.AllStats()
	for i, name := range names {
		if name == "output_rows" && int64(stats[i]) != n {
			return n, invariant("output_rows stat %d but output holds %d rows", int64(stats[i]), n)
		}
	}
	if rn.RPath == "" && rn.SPath == "" {
		if want, ok := workload.ExpectedOutputRows(cfg); ok && want != n {
			return n, invariant("expected %d matches, got %d", want, n)
		}
	}
	return n, nil
}

// Sweep runs cfgs in order. Configuration and invariant errors abort the
// sweep; allocation failures skip the run and continue.
func (rn *Runner) Sweep(cfgs []joinbench.Config) ([]Result, error) {
	results := make([]Result, 0, len(cfgs))
	for i, cfg := range cfgs {
		res, err := rn.Run(cfg)
		if err == nil {
			results = append(results, res)
			continue
		}
		if joinbench.IsAllocationError(err) {
			rn.Logger.Warn("skipping run",
				zap.Int("index", i),
				zap.String("config", cfg.Summary()),
				zap.Error(err))
			continue
		}
		return results, fmt.Errorf("sweep aborted at run %d: %w", i, err)
	}
	return results, nil
}
