package workload

import (
	"io"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wbrown/janus-joinbench/joinbench"
	"github.com/wbrown/janus-joinbench/joinbench/memory"
	"github.com/wbrown/janus-joinbench/joinbench/tuple"
	"golang.org/x/exp/rand"
)

func keyCounts(st *tuple.Store) map[uint64]int {
	counts := make(map[uint64]int)
	for i := 0; i < st.Rows(); i++ {
		counts[st.Key().Get(i)]++
	}
	return counts
}

func matchCount(r, s *tuple.Store) int64 {
	rc := keyCounts(r)
	var n int64
	for k, c := range keyCounts(s) {
		n += int64(c) * int64(rc[k])
	}
	return n
}

func TestGenerateDeterministic(t *testing.T) {
	res := memory.NewHostResource(0)
	cfg := joinbench.DefaultConfig()
	cfg.NR, cfg.NS, cfg.PR, cfg.PS = 500, 700, 2, 3

	r1, s1, err := Generate(cfg, res)
	require.NoError(t, err)
	r2, s2, err := Generate(cfg, res)
	require.NoError(t, err)

	assert.True(t, r1.Equal(r2))
	assert.True(t, s1.Equal(s2))
	assert.Equal(t, cfg.PR+1, r1.NumCols())
	assert.Equal(t, cfg.PS+1, s1.NumCols())

	cfg.Seed++
	r3, _, err := Generate(cfg, res)
	require.NoError(t, err)
	assert.False(t, r1.Equal(r3))
}

func TestPayloadStreamFollowsSeed(t *testing.T) {
	cfg := joinbench.DefaultConfig()
	cfg.NR, cfg.NS = 64, 32
	cfg.ValBytes = 8
	cfg.Seed = -5

	r, s, err := Generate(cfg, memory.NewHostResource(0))
	require.NoError(t, err)
	defer r.Release()
	defer s.Release()

	rRng := rand.New(rand.NewSource(uint64(cfg.Seed + 2)))
	for i := 0; i < r.Rows(); i++ {
		require.Equal(t, rRng.Uint64(), r.Payload(0).Get(i), "R row %d", i)
	}
	sRng := rand.New(rand.NewSource(uint64(cfg.Seed + 3)))
	for i := 0; i < s.Rows(); i++ {
		require.Equal(t, sRng.Uint64(), s.Payload(0).Get(i), "S row %d", i)
	}
}

func TestGeneratePKFKSelectivity(t *testing.T) {
	tests := []struct {
		name string
		nr   int
		ns   int
		sel  int
		dist joinbench.Distribution
	}{
		{"uniform sel 1", 1000, 1000, 1, joinbench.Uniform},
		{"uniform sel 4", 1000, 300, 4, joinbench.Uniform},
		{"leftover rows", 1003, 200, 4, joinbench.Uniform},
		{"zipf", 512, 2048, 2, joinbench.Zipf},
		{"empty R", 0, 100, 3, joinbench.Uniform},
		{"empty S", 100, 0, 1, joinbench.Uniform},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := memory.NewHostResource(0)
			cfg := joinbench.DefaultConfig()
			cfg.NR, cfg.NS, cfg.Selectivity, cfg.Dist = tt.nr, tt.ns, tt.sel, tt.dist

			r, s, err := Generate(cfg, res)
			require.NoError(t, err)
			assert.Equal(t, tt.nr, r.Rows())
			assert.Equal(t, tt.ns, s.Rows())

			want, ok := ExpectedOutputRows(cfg)
			require.True(t, ok)
			assert.Equal(t, want, matchCount(r, s))
		})
	}
}

func TestGenerateFKFK(t *testing.T) {
	for _, sem := range []joinbench.FKFKSemantics{joinbench.Covering, joinbench.Independent} {
		t.Run(sem.String(), func(t *testing.T) {
			res := memory.NewHostResource(0)
			cfg := joinbench.DefaultConfig()
			cfg.Type = joinbench.FKFK
			cfg.FKFK = sem
			cfg.NR, cfg.NS, cfg.UniqueKeys = 400, 600, 100

			r, s, err := Generate(cfg, res)
			require.NoError(t, err)

			rc, sc := keyCounts(r), keyCounts(s)
			for k := range rc {
				assert.Less(t, k, uint64(cfg.UniqueKeys))
			}
			if sem == joinbench.Covering {
				assert.Len(t, rc, cfg.UniqueKeys)
				assert.Len(t, sc, cfg.UniqueKeys)
			}
			_, known := ExpectedOutputRows(cfg)
			assert.False(t, known)
		})
	}
}

func TestGenerateRejectsBadFKFK(t *testing.T) {
	res := memory.NewHostResource(0)
	cfg := joinbench.DefaultConfig()
	cfg.Type = joinbench.FKFK
	cfg.NR, cfg.NS, cfg.UniqueKeys = 100, 1000, 500

	_, _, err := Generate(cfg, res)
	require.Error(t, err)
	assert.True(t, joinbench.IsConfigError(err))
	assert.Equal(t, int64(0), res.InUse(), "nothing allocated before validation")
}

func TestGenerateAllocationFailureReleases(t *testing.T) {
	cfg := joinbench.DefaultConfig()
	cfg.NR, cfg.NS = 1000, 1000
	// Room for R (8 bytes/row) but not S
	res := memory.NewHostResource(8*1000 + 100)

	_, _, err := Generate(cfg, res)
	require.Error(t, err)
	assert.True(t, joinbench.IsAllocationError(err))
	assert.Equal(t, int64(0), res.InUse())
}

func TestZipfSkew(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	for _, s := range []float64{0.5, 1.0, 1.5} {
		z := newZipfSampler(100, s)
		counts := make([]int, 100)
		for i := 0; i < 20000; i++ {
			counts[z.draw(rng)]++
		}
		assert.Greater(t, counts[0], counts[10], "s=%g", s)
		assert.Greater(t, counts[10], counts[90], "s=%g", s)
	}
}

func TestLoadAndDumpCSV(t *testing.T) {
	res := memory.NewHostResource(0)
	cfg := joinbench.DefaultConfig()
	cfg.NR, cfg.NS = 50, 60

	r, s, err := Generate(cfg, res)
	require.NoError(t, err)

	dir := t.TempDir()
	rPath, sPath := filepath.Join(dir, "in", "r.csv"), filepath.Join(dir, "in", "s.csv")
	require.NoError(t, DumpCSV(rPath, r))
	require.NoError(t, DumpCSV(sPath, s))

	r2, s2, err := LoadCSV(cfg, rPath, sPath, res)
	require.NoError(t, err)
	assert.True(t, r.Equal(r2))
	assert.True(t, s.Equal(s2))

	_, _, err = LoadCSV(cfg, rPath, filepath.Join(dir, "missing.csv"), res)
	assert.Error(t, err)
}

func TestArchiveRoundTrip(t *testing.T) {
	arc, err := OpenArchive(t.TempDir())
	require.NoError(t, err)
	defer arc.Close()

	res := memory.NewHostResource(0)
	cfg := joinbench.DefaultConfig()
	cfg.NR, cfg.NS, cfg.PR, cfg.PS = 300000, 2000, 1, 0
	cfg.KeyBytes, cfg.ValBytes = 4, 8

	_, err = arc.Has(cfg)
	require.NoError(t, err)
	_, _, err = arc.Get(cfg, res)
	assert.ErrorIs(t, err, ErrNotArchived)

	r, s, err := Generate(cfg, res)
	require.NoError(t, err)
	require.NoError(t, arc.Put(cfg, r, s))

	ok, err := arc.Has(cfg)
	require.NoError(t, err)
	assert.True(t, ok)

	r2, s2, err := arc.Get(cfg, res)
	require.NoError(t, err)
	assert.True(t, r.Equal(r2), "R spans multiple chunks")
	assert.True(t, s.Equal(s2))

	other := cfg
	other.Algo = joinbench.PHJ
	other.LateMaterialization = true
	assert.Equal(t, Fingerprint(cfg), Fingerprint(other))
	other.Seed++
	assert.NotEqual(t, Fingerprint(cfg), Fingerprint(other))

	entries, err := arc.Entries()
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func BenchmarkGenerate(b *testing.B) {
	cfg := joinbench.DefaultConfig()
	cfg.NR, cfg.NS = 1<<16, 1<<16
	cfg.Dist = joinbench.Zipf
	for i := 0; i < b.N; i++ {
		res := memory.NewHostResource(0)
		r, s, err := Generate(cfg, res)
		if err != nil {
			b.Fatal(err)
		}
		r.Release()
		s.Release()
	}
}

func TestPresets(t *testing.T) {
	for _, name := range []string{"small", "medium", "large"} {
		cfg, err := Preset(name)
		require.NoError(t, err, name)
		assert.NoError(t, cfg.Validate(), name)
	}

	_, err := Preset("huge")
	require.Error(t, err)
	assert.True(t, joinbench.IsConfigError(err))
}

func TestBuildArchiveSkipsExisting(t *testing.T) {
	dir := t.TempDir()
	res := memory.NewHostResource(0)
	cfg := joinbench.DefaultConfig()
	cfg.NR, cfg.NS = 500, 700
	other := cfg
	other.Seed = 7

	require.NoError(t, BuildArchive(io.Discard, dir, []joinbench.Config{cfg, other}, res))
	require.NoError(t, BuildArchive(io.Discard, dir, []joinbench.Config{cfg}, res))
	assert.Equal(t, int64(0), res.InUse())

	arc, err := OpenArchive(dir)
	require.NoError(t, err)
	defer arc.Close()
	entries, err := arc.Entries()
	require.NoError(t, err)
	assert.Len(t, entries, 2)

	r, s, err := arc.Get(other, res)
	require.NoError(t, err)
	defer r.Release()
	defer s.Release()
	assert.Equal(t, 700, s.Rows())
}
