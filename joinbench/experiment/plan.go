package experiment

import (
	"fmt"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/wbrown/janus-joinbench/joinbench"
	"github.com/wbrown/janus-joinbench/joinbench/logutil"
)

// Plan is a sweep described in TOML:
//
//	[log]
//	level = "info"
//
//	[base]
//	nr = 65536
//	pr = 2
//
//	[sweep]
//	algorithms = ["PHJ", "SMJ"]
//	selectivity = [1, 4]
type Plan struct {
	Log   logutil.LogConfig `toml:"log"`
	Base  joinbench.Config  `toml:"base"`
	Sweep Axes              `toml:"sweep"`
}

// Axes lists the values swept per field. An empty axis keeps the base value.
type Axes struct {
	NR                  []int                    `toml:"nr"`
	NS                  []int                    `toml:"ns"`
	JoinTypes           []joinbench.JoinType     `toml:"join_types"`
	Distributions       []joinbench.Distribution `toml:"distributions"`
	ZipfFactors         []float64                `toml:"zipf_factors"`
	Selectivity         []int                    `toml:"selectivity"`
	LateMaterialization []bool                   `toml:"late_materialization"`
	AggOnly             []bool                   `toml:"agg_only"`
	Algorithms          []joinbench.Algorithm    `toml:"algorithms"`
}

func newPlan() *Plan {
	return &Plan{
		Log:  logutil.DefaultLogConfig(),
		Base: joinbench.DefaultConfig(),
	}
}

// LoadPlan decodes a plan file. Unset base fields keep their defaults and
// unknown keys are rejected.
func LoadPlan(path string) (*Plan, error) {
	p := newPlan()
	md, err := toml.DecodeFile(path, p)
	if err != nil {
		return nil, fmt.Errorf("failed to decode plan %s: %w", path, err)
	}
	return p, checkUndecoded(md)
}

// ParsePlan decodes a plan from a string
func ParsePlan(data string) (*Plan, error) {
	p := newPlan()
	md, err := toml.Decode(data, p)
	if err != nil {
		return nil, fmt.Errorf("failed to decode plan: %w", err)
	}
	return p, checkUndecoded(md)
}

func checkUndecoded(md toml.MetaData) error {
	undecoded := md.Undecoded()
	if len(undecoded) == 0 {
		return nil
	}
	keys := make([]string, len(undecoded))
	for i, k := range undecoded {
		keys[i] = k.String()
	}
	sort.Strings(keys)
	return &joinbench.ConfigError{Field: "plan", Value: strings.Join(keys, ","), Reason: "unknown keys"}
}

// Expand returns the Cartesian product of the axes applied to the base
// configuration. Axes vary in declaration order with algorithms innermost,
// so consecutive runs share a workload.
func (p *Plan) Expand() []joinbench.Config {
	cfgs := []joinbench.Config{p.Base}
	cfgs = expandAxis(cfgs, p.Sweep.NR, func(c *joinbench.Config, v int) { c.NR = v })
	cfgs = expandAxis(cfgs, p.Sweep.NS, func(c *joinbench.Config, v int) { c.NS = v })
	cfgs = expandAxis(cfgs, p.Sweep.JoinTypes, func(c *joinbench.Config, v joinbench.JoinType) { c.Type = v })
	cfgs = expandAxis(cfgs, p.Sweep.Distributions, func(c *joinbench.Config, v joinbench.Distribution) { c.Dist = v })
	cfgs = expandAxis(cfgs, p.Sweep.ZipfFactors, func(c *joinbench.Config, v float64) { c.ZipfFactor = v })
	cfgs = expandAxis(cfgs, p.Sweep.Selectivity, func(c *joinbench.Config, v int) { c.Selectivity = v })
	cfgs = expandAxis(cfgs, p.Sweep.LateMaterialization, func(c *joinbench.Config, v bool) { c.LateMaterialization = v })
	cfgs = expandAxis(cfgs, p.Sweep.AggOnly, func(c *joinbench.Config, v bool) { c.AggOnly = v })
	cfgs = expandAxis(cfgs, p.Sweep.Algorithms, func(c *joinbench.Config, v joinbench.Algorithm) { c.Algo = v })
	return cfgs
}

func expandAxis[T any](cfgs []joinbench.Config, values []T, set func(*joinbench.Config, T)) []joinbench.Config {
	if len(values) == 0 {
		return cfgs
	}
	out := make([]joinbench.Config, 0, len(cfgs)*len(values))
	for _, c := range cfgs {
		for _, v := range values {
			next := c
			set(&next, v)
			out = append(out, next)
		}
	}
	return out
}
