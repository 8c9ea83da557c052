package joinbench

import (
	"fmt"
	"io"
	"math"
)

// MaxLogPartitions bounds both PHJ partitioning passes
const MaxLogPartitions = 16

// MaxRows bounds each relation; join engines address rows with int32 ids
// and reserve one value for chain terminators.
const MaxRows = math.MaxInt32 - 1

// Config describes one experiment run. It is immutable once validated and
// is passed by value to every component.
type Config struct {
	NR          int           `toml:"nr"`          // rows in R
	NS          int           `toml:"ns"`          // rows in S
	PR          int           `toml:"pr"`          // payload columns in R
	PS          int           `toml:"ps"`          // payload columns in S
	VecSize     int           `toml:"vec_size"`    // batch size for pipelined scans
	UniqueKeys  int           `toml:"unique_keys"` // FK_FK key universe size
	Type        JoinType      `toml:"type"`        // PK_FK or FK_FK
	Dist        Distribution  `toml:"dist"`        // UNIFORM or ZIPF
	ZipfFactor  float64       `toml:"zipf_factor"` // skew when Dist is ZIPF
	Selectivity int           `toml:"selectivity"` // PK_FK matches per S row
	FKFK        FKFKSemantics `toml:"fkfk"`        // FK_FK coverage semantics

	AggOnly             bool   `toml:"agg_only"`             // count matches instead of materializing
	LateMaterialization bool   `toml:"late_materialization"` // gather payloads after matching
	Output              string `toml:"output"`               // result log path

	Algo        Algorithm `toml:"algo"`
	PHJLogPart1 int       `toml:"phj_log_part1"`
	PHJLogPart2 int       `toml:"phj_log_part2"`

	KeyBytes int `toml:"key_bytes"` // 4 or 8
	ValBytes int `toml:"val_bytes"` // 4 or 8

	Seed        int64 `toml:"seed"`
	Workers     int   `toml:"workers"`      // 0 means runtime.NumCPU
	MemoryLimit int64 `toml:"memory_limit"` // bytes, 0 means unlimited
}

// DefaultConfig returns the configuration used when no flag or plan overrides it
func DefaultConfig() Config {
	return Config{
		NR:          4096,
		NS:          4096,
		PR:          1,
		PS:          1,
		VecSize:     8192,
		UniqueKeys:  4096,
		Type:        PKFK,
		Dist:        Uniform,
		ZipfFactor:  1.5,
		Selectivity: 1,
		FKFK:        Covering,
		Output:      "join_exp.csv",
		Algo:        SMJ,
		PHJLogPart1: 9,
		PHJLogPart2: 6,
		KeyBytes:    4,
		ValBytes:    4,
		Seed:        42,
	}
}

// Validate checks every field before any workload generation happens
func (c Config) Validate() error {
	switch {
	case c.NR < 0:
		return &ConfigError{Field: "nr", Value: c.NR, Reason: "must be >= 0"}
	case c.NS < 0:
		return &ConfigError{Field: "ns", Value: c.NS, Reason: "must be >= 0"}
	case c.NR > MaxRows:
		return &ConfigError{Field: "nr", Value: c.NR, Reason: fmt.Sprintf("must be <= %d", MaxRows)}
	case c.NS > MaxRows:
		return &ConfigError{Field: "ns", Value: c.NS, Reason: fmt.Sprintf("must be <= %d", MaxRows)}
	case c.PR < 0:
		return &ConfigError{Field: "pr", Value: c.PR, Reason: "payload column count must be >= 0"}
	case c.PS < 0:
		return &ConfigError{Field: "ps", Value: c.PS, Reason: "payload column count must be >= 0"}
	case c.Output == "":
		return &ConfigError{Field: "output", Reason: "output path must not be empty"}
	case !c.Algo.Valid():
		return &ConfigError{Field: "algo", Value: int(c.Algo), Reason: "unsupported join algorithm"}
	case c.Type != PKFK && c.Type != FKFK:
		return &ConfigError{Field: "type", Value: int(c.Type), Reason: "unsupported join type"}
	case c.Dist != Uniform && c.Dist != Zipf:
		return &ConfigError{Field: "dist", Value: int(c.Dist), Reason: "unsupported distribution"}
	case c.FKFK != Covering && c.FKFK != Independent:
		return &ConfigError{Field: "fkfk", Value: int(c.FKFK), Reason: "unsupported FK_FK semantics"}
	case c.KeyBytes != 4 && c.KeyBytes != 8:
		return &ConfigError{Field: "key_bytes", Value: c.KeyBytes, Reason: "must be 4 or 8"}
	case c.ValBytes != 4 && c.ValBytes != 8:
		return &ConfigError{Field: "val_bytes", Value: c.ValBytes, Reason: "must be 4 or 8"}
	case c.VecSize <= 0:
		return &ConfigError{Field: "vec_size", Value: c.VecSize, Reason: "must be > 0"}
	case c.Selectivity < 1:
		return &ConfigError{Field: "selectivity", Value: c.Selectivity, Reason: "must be >= 1"}
	case c.Dist == Zipf && !(c.ZipfFactor > 0):
		return &ConfigError{Field: "zipf_factor", Value: c.ZipfFactor, Reason: "must be > 0 under ZIPF"}
	case c.PHJLogPart1 < 1 || c.PHJLogPart1 > MaxLogPartitions:
		return &ConfigError{Field: "phj_log_part1", Value: c.PHJLogPart1, Reason: fmt.Sprintf("must be in [1,%d]", MaxLogPartitions)}
	case c.PHJLogPart2 < 0 || c.PHJLogPart2 > MaxLogPartitions:
		return &ConfigError{Field: "phj_log_part2", Value: c.PHJLogPart2, Reason: fmt.Sprintf("must be in [0,%d]", MaxLogPartitions)}
	case c.Workers < 0:
		return &ConfigError{Field: "workers", Value: c.Workers, Reason: "must be >= 0"}
	case c.MemoryLimit < 0:
		return &ConfigError{Field: "memory_limit", Value: c.MemoryLimit, Reason: "must be >= 0"}
	}

	switch c.Type {
	case PKFK:
		if c.NR > 0 && c.NR < c.Selectivity {
			return &ConfigError{Field: "selectivity", Value: c.Selectivity,
				Reason: fmt.Sprintf("R has %d rows, fewer than one key group", c.NR)}
		}
	case FKFK:
		// A foreign-key table cannot reference more distinct keys than it holds.
		if c.UniqueKeys > c.NR || c.UniqueKeys > c.NS {
			return &ConfigError{Field: "unique_keys", Value: c.UniqueKeys,
				Reason: fmt.Sprintf("FK_FK requires unique_keys <= nr (%d) and <= ns (%d)", c.NR, c.NS)}
		}
		if c.UniqueKeys < 1 && (c.NR > 0 || c.NS > 0) {
			return &ConfigError{Field: "unique_keys", Value: c.UniqueKeys, Reason: "FK_FK needs at least one key"}
		}
	}

	if c.KeyBytes == 4 && uint64(c.NR)+uint64(c.NS)+uint64(c.UniqueKeys) > math.MaxUint32 {
		return &ConfigError{Field: "key_bytes", Value: c.KeyBytes, Reason: "key universe does not fit in 4 bytes"}
	}
	return nil
}

// Mode returns "aggregation" or "materialization"
func (c Config) Mode() string {
	if c.AggOnly {
		return "aggregation"
	}
	return "materialization"
}

// WorkerCount resolves Workers against the machine size
func (c Config) WorkerCount(numCPU int) int {
	if c.Workers > 0 {
		return c.Workers
	}
	if numCPU < 1 {
		return 1
	}
	return numCPU
}

// Summary is a one-line description used in logs and error reports
func (c Config) Summary() string {
	return fmt.Sprintf("algo=%s |R|=%d |S|=%d pr=%d ps=%d type=%s dist=%s zipf=%g sel=%d uk=%d mode=%s late=%t part=%d/%d kb=%d vb=%d seed=%d",
		c.Algo, c.NR, c.NS, c.PR, c.PS, c.Type, c.Dist, c.ZipfFactor, c.Selectivity,
		c.UniqueKeys, c.Mode(), c.LateMaterialization, c.PHJLogPart1, c.PHJLogPart2,
		c.KeyBytes, c.ValBytes, c.Seed)
}

// Print writes the human-readable run header
func (c Config) Print(w io.Writer) {
	joinType := "Primary-foreign"
	if c.Type == FKFK {
		joinType = "Foreign-foreign (" + c.FKFK.String() + ")"
	}
	dist := "Uniform"
	if c.Dist == Zipf {
		dist = "Zipf"
	}
	yesNo := func(b bool) string {
		if b {
			return "Yes"
		}
		return "No"
	}
	fmt.Fprintf(w, "||R|| = %d ||S|| = %d\n", c.NR, c.NS)
	fmt.Fprintf(w, "R payload columns = %d S payload columns = %d\n", c.PR, c.PS)
	fmt.Fprintf(w, "Join algorithm: %s\n", c.Algo)
	fmt.Fprintf(w, "Join type: %s\n", joinType)
	fmt.Fprintf(w, "Distribution type: %s\n", dist)
	fmt.Fprintf(w, "(if zipf) factor = %g\n", c.ZipfFactor)
	fmt.Fprintf(w, "(if PK-FK) Selectivity = %d\n", c.Selectivity)
	fmt.Fprintf(w, "(if FK-FK) Unique keys = %d\n", c.UniqueKeys)
	fmt.Fprintf(w, "(if PHJ) log_part1 = %d log_part2 = %d\n", c.PHJLogPart1, c.PHJLogPart2)
	fmt.Fprintf(w, "key_bytes = %d val_bytes = %d\n", c.KeyBytes, c.ValBytes)
	fmt.Fprintf(w, "Late Materialization? %s\n", yesNo(c.LateMaterialization))
	fmt.Fprintf(w, "Aggregation only? %s\n", yesNo(c.AggOnly))
	fmt.Fprintf(w, "Output file: %s\n\n", c.Output)
}
