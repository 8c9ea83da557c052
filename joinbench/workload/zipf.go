package workload

import (
	"math"
	"sort"

	"golang.org/x/exp/rand"
)

// zipfSampler draws ranks 0..n-1 where rank r (1-based) has probability
// proportional to 1/r^s. rand.Zipf requires s > 1; this accepts any
// s > 0 by inverting a precomputed CDF.
type zipfSampler struct {
	cdf []float64
}

func newZipfSampler(n int, s float64) *zipfSampler {
	cdf := make([]float64, n)
	var sum float64
	for r := 1; r <= n; r++ {
		sum += 1 / math.Pow(float64(r), s)
		cdf[r-1] = sum
	}
	for i := range cdf {
		cdf[i] /= sum
	}
	return &zipfSampler{cdf: cdf}
}

func (z *zipfSampler) draw(rng *rand.Rand) uint64 {
	u := rng.Float64()
	i := sort.SearchFloat64s(z.cdf, u)
	if i >= len(z.cdf) {
		i = len(z.cdf) - 1
	}
	return uint64(i)
}

// keySampler draws keys from 0..n-1
type keySampler func(rng *rand.Rand) uint64

func newKeySampler(n int, zipf bool, factor float64) keySampler {
	if zipf {
		return newZipfSampler(n, factor).draw
	}
	return func(rng *rand.Rand) uint64 {
		return rng.Uint64n(uint64(n))
	}
}
