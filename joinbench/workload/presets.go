package workload

import (
	"fmt"
	"io"
	"time"

	"github.com/wbrown/janus-joinbench/joinbench"
	"github.com/wbrown/janus-joinbench/joinbench/memory"
)

// SmallWorkload is a quick sanity-size PK_FK workload
// Size: 64K × 64K rows, one payload column each (~1 MB)
func SmallWorkload() joinbench.Config {
	cfg := joinbench.DefaultConfig()
	cfg.NR = 1 << 16
	cfg.NS = 1 << 16
	return cfg
}

// MediumWorkload is a skewed FK_FK workload for profiling
// Size: 4M × 4M rows, two payload columns each (~100 MB)
func MediumWorkload() joinbench.Config {
	cfg := joinbench.DefaultConfig()
	cfg.NR = 1 << 22
	cfg.NS = 1 << 22
	cfg.PR, cfg.PS = 2, 2
	cfg.Type = joinbench.FKFK
	cfg.UniqueKeys = 1 << 20
	cfg.Dist = joinbench.Zipf
	cfg.ZipfFactor = 0.9
	return cfg
}

// LargeWorkload is a wide 8-byte workload for stress testing
// Size: 64M × 64M rows, four payload columns each (~5 GB)
func LargeWorkload() joinbench.Config {
	cfg := joinbench.DefaultConfig()
	cfg.NR = 1 << 26
	cfg.NS = 1 << 26
	cfg.PR, cfg.PS = 4, 4
	cfg.KeyBytes, cfg.ValBytes = 8, 8
	return cfg
}

// Preset returns a named workload: small, medium or large
func Preset(name string) (joinbench.Config, error) {
	switch name {
	case "small":
		return SmallWorkload(), nil
	case "medium":
		return MediumWorkload(), nil
	case "large":
		return LargeWorkload(), nil
	default:
		return joinbench.Config{}, &joinbench.ConfigError{Field: "preset", Value: name, Reason: "use small, medium or large"}
	}
}

// BuildArchive generates each configuration's relations and stores them in
// the archive at path, skipping workloads that are already present. Progress
// lines go to w.
func BuildArchive(w io.Writer, path string, cfgs []joinbench.Config, res memory.Resource) error {
	arc, err := OpenArchive(path)
	if err != nil {
		return err
	}
	defer arc.Close()

	for i, cfg := range cfgs {
		ok, err := arc.Has(cfg)
		if err != nil {
			return err
		}
		if ok {
			fmt.Fprintf(w, "  [%d/%d] already archived: %016x\n", i+1, len(cfgs), Fingerprint(cfg))
			continue
		}

		start := time.Now()
		r, s, err := Generate(cfg, res)
		if err != nil {
			return fmt.Errorf("workload %d: %w", i, err)
		}
		err = arc.Put(cfg, r, s)
		r.Release()
		s.Release()
		if err != nil {
			return fmt.Errorf("workload %d: %w", i, err)
		}
		fmt.Fprintf(w, "  [%d/%d] archived %016x in %v: |R|=%d |S|=%d\n",
			i+1, len(cfgs), Fingerprint(cfg), time.Since(start).Round(time.Millisecond), cfg.NR, cfg.NS)
	}
	return nil
}
