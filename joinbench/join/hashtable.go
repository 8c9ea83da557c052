package join

import (
	"encoding/binary"
	"math/bits"
	"sync/atomic"

	"github.com/cespare/xxhash/v2"
	"github.com/wbrown/janus-joinbench/joinbench/tuple"
)

// hashKey hashes a key's 8-byte little-endian encoding. Keys of both
// widths hash identically for equal values.
func hashKey(k uint64) uint64 {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], k)
	return xxhash.Sum64(b[:])
}

// tableBits returns log2 of the smallest power of two >= n (at least 1 bucket)
func tableBits(n int) uint {
	if n <= 1 {
		return 0
	}
	return uint(bits.Len(uint(n - 1)))
}

// bucketOf takes the top b bits of h; partitioning consumes the low bits.
func bucketOf(h uint64, b uint) int {
	if b == 0 {
		return 0
	}
	return int(h >> (64 - b))
}

// chainedTable is a single-threaded chained hash table over a set of build
// rows. Probing yields matches in ascending build-row order.
type chainedTable struct {
	bits  uint
	heads []int32 // bucket -> entry+1, 0 ends a chain
	next  []int32 // entry -> next entry+1
	rows  []int32 // entry -> build row
	keys  []uint64
}

func newChainedTable(n int) *chainedTable {
	b := tableBits(n)
	return &chainedTable{
		bits:  b,
		heads: make([]int32, 1<<b),
		next:  make([]int32, 0, n),
		rows:  make([]int32, 0, n),
		keys:  make([]uint64, 0, n),
	}
}

// tableBytes is the footprint of a chained table over n rows
func tableBytes(n int) int64 {
	return int64(1<<tableBits(n))*4 + int64(n)*(4+4+8)
}

// build inserts rows in reverse so chains read in ascending row order
func (t *chainedTable) build(rows []int32, key *tuple.Column, hashes []uint64) {
	for i := len(rows) - 1; i >= 0; i-- {
		row := rows[i]
		k := key.Get(int(row))
		b := bucketOf(hashes[row], t.bits)
		t.rows = append(t.rows, row)
		t.keys = append(t.keys, k)
		t.next = append(t.next, t.heads[b])
		t.heads[b] = int32(len(t.rows))
	}
}

// probe calls fn for every build row whose key equals k
func (t *chainedTable) probe(k, h uint64, fn func(row int32)) {
	for e := t.heads[bucketOf(h, t.bits)]; e != 0; e = t.next[e-1] {
		if t.keys[e-1] == k {
			fn(t.rows[e-1])
		}
	}
}

// sharedTable is a chained hash table built concurrently. Bucket heads are
// claimed with compare-and-swap; the entry slot of a row is the row itself,
// so concurrent inserts never collide on an entry.
type sharedTable struct {
	bits  uint
	heads []atomic.Int32 // bucket -> row+1
	next  []int32        // row -> next row+1
	key   *tuple.Column
}

func newSharedTable(key *tuple.Column) *sharedTable {
	n := key.Len()
	b := tableBits(n)
	return &sharedTable{
		bits:  b,
		heads: make([]atomic.Int32, 1<<b),
		next:  make([]int32, n),
		key:   key,
	}
}

func sharedTableBytes(n int) int64 {
	return int64(1<<tableBits(n))*4 + int64(n)*4
}

// insert adds build rows [from, to). Safe for concurrent use with disjoint
// ranges.
func (t *sharedTable) insert(from, to int) {
	for row := from; row < to; row++ {
		b := bucketOf(hashKey(t.key.Get(row)), t.bits)
		for {
			head := t.heads[b].Load()
			t.next[row] = head
			if t.heads[b].CompareAndSwap(head, int32(row+1)) {
				break
			}
		}
	}
}

// probe calls fn for every build row whose key equals k. Only valid once
// every insert has returned.
func (t *sharedTable) probe(k uint64, fn func(row int32)) {
	for e := t.heads[bucketOf(hashKey(k), t.bits)].Load(); e != 0; e = t.next[e-1] {
		if t.key.Get(int(e-1)) == k {
			fn(e - 1)
		}
	}
}

// entries counts the rows reachable from the bucket heads
func (t *sharedTable) entries() int {
	n := 0
	for b := range t.heads {
		for e := t.heads[b].Load(); e != 0; e = t.next[e-1] {
			n++
		}
	}
	return n
}
