package join

import (
	"github.com/RoaringBitmap/roaring"
)

// partitioning groups row ids by hash bits. Partition p occupies
// rows[bounds[p]:bounds[p+1]], and rows keep ascending order inside it.
type partitioning struct {
	rows   []int32
	bounds []int
}

func (pt partitioning) fanout() int { return len(pt.bounds) - 1 }

func (pt partitioning) part(p int) []int32 {
	return pt.rows[pt.bounds[p]:pt.bounds[p+1]]
}

// occupied returns the bitmap of non-empty partitions
func (pt partitioning) occupied() *roaring.Bitmap {
	bm := roaring.New()
	for p := 0; p < pt.fanout(); p++ {
		if pt.bounds[p+1] > pt.bounds[p] {
			bm.Add(uint32(p))
		}
	}
	return bm
}

func radixOf(h uint64, shift, bits uint) int {
	return int((h >> shift) & (1<<bits - 1))
}

// radixPartition splits rows 0..len(hashes)-1 into 2^bits partitions by
// hash bits [shift, shift+bits). Each worker histograms and scatters its own
// contiguous chunk; chunk-major prefix sums keep the scatter stable.
func radixPartition(pool *WorkerPool, hashes []uint64, shift, bits uint) (partitioning, error) {
	fanout := 1 << bits
	n := len(hashes)
	chunks := chunkBounds(n, pool.WorkerCount())
	nChunks := len(chunks) - 1

	hist := make([][]int, nChunks)
	err := pool.Execute(nChunks, func(c int) error {
		h := make([]int, fanout)
		for row := chunks[c]; row < chunks[c+1]; row++ {
			h[radixOf(hashes[row], shift, bits)]++
		}
		hist[c] = h
		return nil
	})
	if err != nil {
		return partitioning{}, err
	}

	bounds := make([]int, fanout+1)
	cursor := make([][]int, nChunks)
	for c := range cursor {
		cursor[c] = make([]int, fanout)
	}
	off := 0
	for p := 0; p < fanout; p++ {
		bounds[p] = off
		for c := 0; c < nChunks; c++ {
			cursor[c][p] = off
			off += hist[c][p]
		}
	}
	bounds[fanout] = off

	rows := make([]int32, n)
	err = pool.Execute(nChunks, func(c int) error {
		cur := cursor[c]
		for row := chunks[c]; row < chunks[c+1]; row++ {
			p := radixOf(hashes[row], shift, bits)
			rows[cur[p]] = int32(row)
			cur[p]++
		}
		return nil
	})
	if err != nil {
		return partitioning{}, err
	}
	return partitioning{rows: rows, bounds: bounds}, nil
}

// subPartition is the single-threaded second pass over one partition's rows
func subPartition(rows []int32, hashes []uint64, shift, bits uint) partitioning {
	fanout := 1 << bits
	bounds := make([]int, fanout+1)
	for _, row := range rows {
		bounds[radixOf(hashes[row], shift, bits)+1]++
	}
	for p := 1; p <= fanout; p++ {
		bounds[p] += bounds[p-1]
	}
	cur := make([]int, fanout)
	copy(cur, bounds[:fanout])
	out := make([]int32, len(rows))
	for _, row := range rows {
		p := radixOf(hashes[row], shift, bits)
		out[cur[p]] = row
		cur[p]++
	}
	return partitioning{rows: out, bounds: bounds}
}
