// Package workload builds the R and S relations joined by every experiment.
package workload

import (
	"fmt"

	"github.com/wbrown/janus-joinbench/joinbench"
	"github.com/wbrown/janus-joinbench/joinbench/memory"
	"github.com/wbrown/janus-joinbench/joinbench/tuple"
	"golang.org/x/exp/rand"
)

// RSchema is the schema of the left (primary) relation for cfg
func RSchema(cfg joinbench.Config) tuple.Schema {
	return tuple.NewSchema("r", cfg.KeyBytes, cfg.ValBytes, cfg.PR)
}

// SSchema is the schema of the right relation for cfg
func SSchema(cfg joinbench.Config) tuple.Schema {
	return tuple.NewSchema("s", cfg.KeyBytes, cfg.ValBytes, cfg.PS)
}

// Generate builds R and S for cfg. Identical configurations produce
// byte-identical relations. Both stores are charged to res; on error
// nothing remains allocated.
func Generate(cfg joinbench.Config, res memory.Resource) (r, s *tuple.Store, err error) {
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}

	rKeys, sKeys := generateKeys(cfg)

	r, err = fill(res, RSchema(cfg), rKeys, newRand(cfg.Seed+2))
	if err != nil {
		return nil, nil, fmt.Errorf("generating R: %w", err)
	}
	s, err = fill(res, SSchema(cfg), sKeys, newRand(cfg.Seed+3))
	if err != nil {
		r.Release()
		return nil, nil, fmt.Errorf("generating S: %w", err)
	}
	return r, s, nil
}

// newRand returns a PCG-backed stream, stable across Go releases
func newRand(seed int64) *rand.Rand {
	return rand.New(rand.NewSource(uint64(seed)))
}

// generateKeys produces the shuffled key columns of both relations. R and
// S each consume their own stream so changing NS never perturbs R.
func generateKeys(cfg joinbench.Config) (rKeys, sKeys []uint64) {
	rRng := newRand(cfg.Seed)
	sRng := newRand(cfg.Seed + 1)
	zipf := cfg.Dist == joinbench.Zipf

	switch cfg.Type {
	case joinbench.PKFK:
		rKeys, sKeys = pkfkKeys(cfg, sRng, zipf)
	case joinbench.FKFK:
		draw := newKeySampler(maxInt(cfg.UniqueKeys, 1), zipf, cfg.ZipfFactor)
		covering := cfg.FKFK == joinbench.Covering
		rKeys = fkKeys(cfg.NR, cfg.UniqueKeys, covering, draw, rRng)
		sKeys = fkKeys(cfg.NS, cfg.UniqueKeys, covering, draw, sRng)
	default:
		panic(fmt.Sprintf("unknown join type: %v", cfg.Type))
	}

	shuffle(rKeys, rRng)
	shuffle(sKeys, sRng)
	return rKeys, sKeys
}

// pkfkKeys gives each of the NR/Selectivity keys exactly Selectivity rows
// in R. Leftover R rows get keys beyond the universe so they never match.
func pkfkKeys(cfg joinbench.Config, sRng *rand.Rand, zipf bool) (rKeys, sKeys []uint64) {
	u := 0
	if cfg.Selectivity > 0 {
		u = cfg.NR / cfg.Selectivity
	}

	rKeys = make([]uint64, cfg.NR)
	for i := range rKeys {
		if i < u*cfg.Selectivity {
			rKeys[i] = uint64(i / cfg.Selectivity)
		} else {
			rKeys[i] = uint64(u + i - u*cfg.Selectivity)
		}
	}

	sKeys = make([]uint64, cfg.NS)
	if u == 0 {
		// R is empty; any key dangles
		for j := range sKeys {
			sKeys[j] = uint64(j)
		}
		return rKeys, sKeys
	}
	draw := newKeySampler(u, zipf, cfg.ZipfFactor)
	for j := range sKeys {
		sKeys[j] = draw(sRng)
	}
	return rKeys, sKeys
}

func fkKeys(n, unique int, covering bool, draw keySampler, rng *rand.Rand) []uint64 {
	keys := make([]uint64, n)
	for i := range keys {
		if covering && i < unique {
			keys[i] = uint64(i)
			continue
		}
		keys[i] = draw(rng)
	}
	return keys
}

func shuffle(keys []uint64, rng *rand.Rand) {
	rng.Shuffle(len(keys), func(i, j int) {
		keys[i], keys[j] = keys[j], keys[i]
	})
}

// fill allocates a store for schema and writes keys plus random payloads
func fill(res memory.Resource, schema tuple.Schema, keys []uint64, rng *rand.Rand) (*tuple.Store, error) {
	st, err := tuple.New(res, schema, len(keys))
	if err != nil {
		return nil, err
	}
	key := st.Key()
	for i, k := range keys {
		key.Set(i, k)
	}
	for p := 0; p < st.NumPayload(); p++ {
		col := st.Payload(p)
		for i := 0; i < st.Rows(); i++ {
			col.Set(i, rng.Uint64())
		}
	}
	return st, nil
}

// ExpectedOutputRows returns the join cardinality implied by cfg when it is
// known without inspecting the data: PK_FK yields NS*Selectivity matches
// (zero when R is empty).
func ExpectedOutputRows(cfg joinbench.Config) (int64, bool) {
	if cfg.Type != joinbench.PKFK {
		return 0, false
	}
	if cfg.NR == 0 {
		return 0, true
	}
	return int64(cfg.NS) * int64(cfg.Selectivity), true
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
