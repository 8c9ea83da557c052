package experiment

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wbrown/janus-joinbench/joinbench"
	"github.com/wbrown/janus-joinbench/joinbench/annotations"
	"github.com/wbrown/janus-joinbench/joinbench/logutil"
	"github.com/wbrown/janus-joinbench/joinbench/memory"
	"github.com/wbrown/janus-joinbench/joinbench/workload"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func testConfig(t *testing.T) joinbench.Config {
	t.Helper()
	cfg := joinbench.DefaultConfig()
	cfg.NR, cfg.NS = 1000, 1000
	cfg.Output = filepath.Join(t.TempDir(), "join_exp.csv")
	return cfg
}

func readRows(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	rows, err := r.ReadAll()
	require.NoError(t, err)
	return rows
}

func TestRunEveryAlgorithm(t *testing.T) {
	res := memory.NewHostResource(0)
	runner := NewRunner(res, nil)
	runner.Collector = annotations.NewCollector(nil)
	cfg := testConfig(t)

	for _, algo := range joinbench.Algorithms() {
		cfg.Algo = algo
		result, err := runner.Run(cfg)
		require.NoError(t, err, algo.String())
		assert.Equal(t, int64(cfg.NS), result.OutputRows)
		assert.Len(t, result.Stats, len(result.StatNames))
		assert.Equal(t, int64(0), res.InUse(), "%s released everything", algo)
	}

	rows := readRows(t, cfg.Output)
	require.Len(t, rows, len(joinbench.Algorithms()))
	for i, algo := range joinbench.Algorithms() {
		assert.Equal(t, algo.String(), rows[i][5])
		assert.Equal(t, "materialization", rows[i][11])
	}
	// PHJ carries one extra statistic
	assert.Len(t, rows[1], len(ResultColumns)+7)

	assert.Len(t, runner.Collector.Named(annotations.RunBegin), len(joinbench.Algorithms()))
	assert.Len(t, runner.Collector.Named(annotations.RunComplete), len(joinbench.Algorithms()))
}

func TestRunRejectsInvalidConfig(t *testing.T) {
	res := memory.NewHostResource(0)
	runner := NewRunner(res, nil)
	runner.Collector = annotations.NewCollector(nil)

	cfg := testConfig(t)
	cfg.Type = joinbench.FKFK
	cfg.UniqueKeys = cfg.NR + 1
	_, err := runner.Run(cfg)
	require.Error(t, err)
	assert.True(t, joinbench.IsConfigError(err))
	assert.Len(t, runner.Collector.Named(annotations.ErrorConfiguration), 1)

	_, statErr := os.Stat(cfg.Output)
	assert.True(t, os.IsNotExist(statErr), "no result row for rejected config")
}

func TestSweepSkipsAllocationFailures(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	res := memory.NewHostResource(1 << 20)
	runner := NewRunner(res, zap.New(core))

	small := testConfig(t)
	huge := small
	huge.NR, huge.NS = 200000, 200000

	results, err := runner.Sweep([]joinbench.Config{small, huge, small})
	require.NoError(t, err)
	assert.Len(t, results, 2)
	assert.Equal(t, int64(0), res.InUse())

	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "skipping run", logs.All()[0].Message)
	assert.Len(t, readRows(t, small.Output), 2)
}

func TestRunAppliesConfiguredMemoryLimit(t *testing.T) {
	res := memory.NewHostResource(0)
	runner := NewRunner(res, nil)

	cfg := testConfig(t)
	cfg.NR, cfg.NS = 200000, 200000
	cfg.MemoryLimit = 1 << 20
	_, err := runner.Run(cfg)
	require.Error(t, err)
	assert.True(t, joinbench.IsAllocationError(err))
	assert.Equal(t, int64(0), res.InUse())

	cfg.NR, cfg.NS = 1000, 1000
	result, err := runner.Run(cfg)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), result.OutputRows)
	assert.Equal(t, int64(0), res.InUse())
}

func TestRunnerDefaultsToProcessLogger(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	logutil.ReplaceLogger(zap.New(core))
	t.Cleanup(func() { logutil.ReplaceLogger(nil) })

	cfg := testConfig(t)
	_, err := NewRunner(memory.NewHostResource(0), nil).Run(cfg)
	require.NoError(t, err)

	entries := logs.FilterMessage("run complete").All()
	require.Len(t, entries, 1)
	assert.Equal(t, cfg.Output, entries[0].ContextMap()["results"])
}

func TestSweepAbortsOnConfigError(t *testing.T) {
	runner := NewRunner(memory.NewHostResource(0), nil)
	good := testConfig(t)
	bad := good
	bad.PR = -1

	results, err := runner.Sweep([]joinbench.Config{good, bad, good})
	require.Error(t, err)
	assert.True(t, joinbench.IsConfigError(err))
	assert.Len(t, results, 1)
}

func TestRunWithArchive(t *testing.T) {
	arc, err := workload.OpenArchive(t.TempDir())
	require.NoError(t, err)
	defer arc.Close()

	res := memory.NewHostResource(0)
	runner := NewRunner(res, nil)
	runner.Archive = arc
	runner.Collector = annotations.NewCollector(nil)

	cfg := testConfig(t)
	cfg.Algo = joinbench.PHJ
	first, err := runner.Run(cfg)
	require.NoError(t, err)
	cfg.Algo = joinbench.SHJ
	second, err := runner.Run(cfg)
	require.NoError(t, err)

	assert.Equal(t, first.OutputRows, second.OutputRows)
	assert.Len(t, runner.Collector.Named(annotations.WorkloadGenerated), 1)
	assert.Len(t, runner.Collector.Named(annotations.WorkloadArchived), 1)
	assert.Len(t, runner.Collector.Named(annotations.WorkloadLoaded), 1)
	assert.Equal(t, int64(0), res.InUse())
}

func TestRunFromCSVAndDump(t *testing.T) {
	dir := t.TempDir()
	res := memory.NewHostResource(0)
	cfg := testConfig(t)
	cfg.NR, cfg.NS = 20, 30

	r, s, err := workload.Generate(cfg, res)
	require.NoError(t, err)
	rPath, sPath := filepath.Join(dir, "r.csv"), filepath.Join(dir, "s.csv")
	require.NoError(t, workload.DumpCSV(rPath, r))
	require.NoError(t, workload.DumpCSV(sPath, s))
	r.Release()
	s.Release()

	runner := NewRunner(res, nil)
	runner.RPath, runner.SPath = rPath, sPath
	runner.DumpDir = filepath.Join(dir, "out")

	result, err := runner.Run(cfg)
	require.NoError(t, err)
	assert.Equal(t, int64(30), result.OutputRows)

	dumps, err := filepath.Glob(filepath.Join(runner.DumpDir, "SMJ_*.csv"))
	require.NoError(t, err)
	require.Len(t, dumps, 1)
	assert.Len(t, readRows(t, dumps[0]), 30)
}

func TestAggOnlyRun(t *testing.T) {
	runner := NewRunner(memory.NewHostResource(0), nil)
	cfg := testConfig(t)
	cfg.AggOnly = true
	cfg.Selectivity = 4

	result, err := runner.Run(cfg)
	require.NoError(t, err)
	assert.Equal(t, int64(cfg.NS*4), result.OutputRows)
	assert.Equal(t, "aggregation", readRows(t, cfg.Output)[0][11])
}

func TestRecord(t *testing.T) {
	cfg := joinbench.DefaultConfig()
	ts := time.Date(2024, 3, 1, 12, 0, 0, 0, time.FixedZone("X", 3600))
	rec := Record(ts, cfg, []float64{1.5, 4096})

	assert.Equal(t, []string{
		"2024-03-01T11:00:00Z", "4096", "4096", "1", "1", "SMJ", "PK_FK",
		"4096", "UNIFORM", "1.5", "1", "materialization", "9", "6", "4", "4",
		"1.5", "4096",
	}, rec)
	assert.Len(t, ResultColumns, len(rec)-2)
}

func TestPlanExpand(t *testing.T) {
	plan, err := ParsePlan(`
[log]
level = "debug"

[base]
nr = 2048
pr = 2
type = "FK_FK"
unique_keys = 128

[sweep]
ns = [1024, 4096]
distributions = ["UNIFORM", "ZIPF"]
algorithms = ["PHJ", "SMJ", "LIB"]
`)
	require.NoError(t, err)
	assert.Equal(t, "debug", plan.Log.Level)
	assert.Equal(t, 2048, plan.Base.NR)
	assert.Equal(t, 2, plan.Base.PR)
	assert.Equal(t, 1, plan.Base.PS, "unset fields keep defaults")
	assert.Equal(t, joinbench.FKFK, plan.Base.Type)

	cfgs := plan.Expand()
	require.Len(t, cfgs, 2*2*3)
	assert.Equal(t, 1024, cfgs[0].NS)
	assert.Equal(t, joinbench.Uniform, cfgs[0].Dist)
	assert.Equal(t, joinbench.PHJ, cfgs[0].Algo)
	assert.Equal(t, joinbench.SMJ, cfgs[1].Algo, "algorithms vary fastest")
	assert.Equal(t, joinbench.Zipf, cfgs[3].Dist)
	assert.Equal(t, 4096, cfgs[11].NS)
	for _, c := range cfgs {
		assert.NoError(t, c.Validate())
	}

	_, err = ParsePlan("[base]\nrows = 5\n")
	require.Error(t, err)
	assert.True(t, joinbench.IsConfigError(err))

	_, err = ParsePlan("[sweep]\nalgorithms = [\"HASH\"]\n")
	assert.Error(t, err)
}

func TestLoadPlanFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plan.toml")
	require.NoError(t, os.WriteFile(path, []byte("[sweep]\nselectivity = [1, 2, 8]\nagg_only = [true]\n"), 0644))

	plan, err := LoadPlan(path)
	require.NoError(t, err)
	cfgs := plan.Expand()
	require.Len(t, cfgs, 3)
	assert.True(t, cfgs[2].AggOnly)
	assert.Equal(t, 8, cfgs[2].Selectivity)
}
