// Package join implements the equi-join variants compared by the harness.
//
// Every variant joins R and S on their key column and produces
// R.key ++ R.payload ++ S.payload, or a single count row when the
// configuration asks for aggregation only. Inputs are never mutated.
package join

import (
	"io"
	"runtime"

	"github.com/wbrown/janus-joinbench/joinbench"
	"github.com/wbrown/janus-joinbench/joinbench/annotations"
	"github.com/wbrown/janus-joinbench/joinbench/memory"
	"github.com/wbrown/janus-joinbench/joinbench/tuple"
	"go.uber.org/zap"
)

// Joiner is the contract shared by every join variant
type Joiner interface {
	// Join runs the join once. The returned store is owned by the caller.
	Join() (*tuple.Store, error)
	// PrintStats writes a human-readable statistics table
	PrintStats(w io.Writer)
	// AllStats returns the statistics of the last Join in StatNames order
	AllStats() []float64
	StatNames() []string
	Algorithm() joinbench.Algorithm
}

type options struct {
	res       memory.Resource
	workers   int
	collector *annotations.Collector
	logger    *zap.Logger
	oracle    Oracle
}

// Option configures a Joiner
type Option func(*options)

// WithResource charges intermediate and output memory to res
func WithResource(res memory.Resource) Option {
	return func(o *options) { o.res = res }
}

// WithCollector records phase events into c
func WithCollector(c *annotations.Collector) Option {
	return func(o *options) { o.collector = c }
}

// WithLogger sets the logger used for phase debugging
func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithOracle replaces the matcher used by the library-delegated variant
func WithOracle(oracle Oracle) Option {
	return func(o *options) { o.oracle = oracle }
}

// New builds the joiner selected by cfg.Algo over r and s
func New(cfg joinbench.Config, r, s *tuple.Store, opts ...Option) (Joiner, error) {
	o := options{workers: cfg.WorkerCount(runtime.NumCPU())}
	for _, opt := range opts {
		opt(&o)
	}
	if o.res == nil {
		o.res = memory.NewHostResource(0)
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}
	if o.oracle == nil {
		o.oracle = HostOracle{}
	}
	if o.workers <= 0 {
		o.workers = 1
	}

	b, err := newBase(cfg, r, s, o)
	if err != nil {
		return nil, err
	}

	switch cfg.Algo {
	case joinbench.LIB:
		return newLibraryJoin(b, o.oracle), nil
	case joinbench.PHJ:
		return newPartitionedHashJoin(b), nil
	case joinbench.SMJ:
		return newSortMergeJoin(b), nil
	case joinbench.SHJ:
		return newSharedHashJoin(b), nil
	case joinbench.SMJI:
		return newIndexedSortMergeJoin(b), nil
	default:
		return nil, &joinbench.ConfigError{Field: "algo", Value: int(cfg.Algo), Reason: "unsupported join algorithm"}
	}
}
