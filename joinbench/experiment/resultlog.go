package experiment

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/wbrown/janus-joinbench/joinbench"
)

// ResultColumns are the leading columns of every result row. The
// algorithm's statistics follow in its StatNames order.
var ResultColumns = []string{
	"timestamp", "nr", "ns", "pr", "ps", "algorithm", "join_type",
	"unique_keys", "distribution", "zipf_factor", "selectivity", "mode",
	"phj_log_part1", "phj_log_part2", "key_bytes", "val_bytes",
}

// ResultLog appends one CSV row per run to a file
type ResultLog struct {
	mu   sync.Mutex
	path string
	now  func() time.Time
}

// NewResultLog appends to path, creating it on first write
func NewResultLog(path string) *ResultLog {
	return &ResultLog{path: path, now: time.Now}
}

// Path returns the file the log appends to
func (l *ResultLog) Path() string { return l.path }

// Record formats one result row
func Record(ts time.Time, cfg joinbench.Config, stats []float64) []string {
	rec := []string{
		ts.UTC().Format(time.RFC3339),
		strconv.Itoa(cfg.NR),
		strconv.Itoa(cfg.NS),
		strconv.Itoa(cfg.PR),
		strconv.Itoa(cfg.PS),
		cfg.Algo.String(),
		cfg.Type.String(),
		strconv.Itoa(cfg.UniqueKeys),
		cfg.Dist.String(),
		strconv.FormatFloat(cfg.ZipfFactor, 'g', -1, 64),
		strconv.Itoa(cfg.Selectivity),
		cfg.Mode(),
		strconv.Itoa(cfg.PHJLogPart1),
		strconv.Itoa(cfg.PHJLogPart2),
		strconv.Itoa(cfg.KeyBytes),
		strconv.Itoa(cfg.ValBytes),
	}
	for _, v := range stats {
		rec = append(rec, strconv.FormatFloat(v, 'f', -1, 64))
	}
	return rec
}

// Append writes the row for one run
func (l *ResultLog) Append(cfg joinbench.Config, stats []float64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open result log: %w", err)
	}

	w := csv.NewWriter(f)
	if err := w.Write(Record(l.now(), cfg, stats)); err != nil {
		f.Close()
		return fmt.Errorf("failed to write result row: %w", err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return fmt.Errorf("failed to flush result row: %w", err)
	}
	return f.Close()
}
