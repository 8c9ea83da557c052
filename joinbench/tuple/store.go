package tuple

import (
	"fmt"
	"slices"

	"github.com/wbrown/janus-joinbench/joinbench/memory"
)

// Store is a columnar relation of fixed-width integer columns.
//
// OWNERSHIP: a store belongs to the component that created it until it is
// handed to the caller; exactly one owner calls Release. Stores are written
// once while being populated and are read-only afterwards, so concurrent
// readers need no locking.
type Store struct {
	schema Schema
	cols   []*Column
	rows   int
	buf    *memory.Buffer
}

// New allocates a zeroed store of rows rows, charging res for its columns
func New(res memory.Resource, schema Schema, rows int) (*Store, error) {
	if err := schema.Validate(); err != nil {
		return nil, err
	}
	if rows < 0 {
		return nil, fmt.Errorf("negative row count %d", rows)
	}
	buf, err := memory.Reserve(res, int64(schema.RowBytes())*int64(rows))
	if err != nil {
		return nil, fmt.Errorf("allocate store %v x %d: %w", schema, rows, err)
	}
	s := &Store{
		schema: slices.Clone(schema),
		cols:   make([]*Column, len(schema)),
		rows:   rows,
		buf:    buf,
	}
	for i, desc := range schema {
		s.cols[i] = newColumn(desc, rows)
	}
	return s, nil
}

// NewCount builds the one-row aggregate-only output holding n
func NewCount(res memory.Resource, n int64) (*Store, error) {
	s, err := New(res, CountSchema, 1)
	if err != nil {
		return nil, err
	}
	s.cols[0].Set(0, uint64(n))
	return s, nil
}

func (s *Store) Schema() Schema { return s.schema }
func (s *Store) Rows() int      { return s.rows }
func (s *Store) NumCols() int   { return len(s.cols) }

// Key returns column 0
func (s *Store) Key() *Column { return s.cols[0] }

// Col returns column i (0 is the key)
func (s *Store) Col(i int) *Column { return s.cols[i] }

// Payload returns payload column i (column i+1)
func (s *Store) Payload(i int) *Column { return s.cols[i+1] }

// NumPayload is the number of non-key columns
func (s *Store) NumPayload() int { return len(s.cols) - 1 }

// Bytes is the charged size
func (s *Store) Bytes() int64 {
	if s.buf == nil {
		return 0
	}
	return s.buf.Bytes()
}

// IsCount reports whether the store is an aggregate-only output
func (s *Store) IsCount() bool {
	return s.rows == 1 && s.schema.Equal(CountSchema)
}

// Count returns the aggregate of a count store
func (s *Store) Count() (int64, bool) {
	if !s.IsCount() {
		return 0, false
	}
	return int64(s.cols[0].Get(0)), true
}

// Release returns the store's memory to its resource. It is idempotent and
// the store must not be read afterwards.
func (s *Store) Release() {
	if s == nil {
		return
	}
	s.buf.Release()
	s.cols = nil
}

// Released reports whether Release has been called
func (s *Store) Released() bool {
	return s.cols == nil
}

// Row copies row i into dst (resized as needed)
func (s *Store) Row(i int, dst []uint64) []uint64 {
	dst = dst[:0]
	for _, c := range s.cols {
		dst = append(dst, c.Get(i))
	}
	return dst
}

// SetRow writes vals into row i
func (s *Store) SetRow(i int, vals []uint64) {
	for c, v := range vals {
		s.cols[c].Set(i, v)
	}
}

// AllRows returns every row in storage order
func (s *Store) AllRows() [][]uint64 {
	out := make([][]uint64, s.rows)
	for i := range out {
		out[i] = s.Row(i, make([]uint64, 0, len(s.cols)))
	}
	return out
}

// SortedRows returns every row ordered lexicographically, which turns the
// store into a comparable multiset
func (s *Store) SortedRows() [][]uint64 {
	rows := s.AllRows()
	slices.SortFunc(rows, func(a, b []uint64) int {
		return slices.Compare(a, b)
	})
	return rows
}

// Equal reports byte-identical layout and contents, including row order
func (s *Store) Equal(other *Store) bool {
	if s.rows != other.rows || !s.schema.Equal(other.schema) {
		return false
	}
	for i, c := range s.cols {
		o := other.cols[i]
		if c.u32 != nil {
			if !slices.Equal(c.u32, o.u32) {
				return false
			}
		} else if !slices.Equal(c.u64, o.u64) {
			return false
		}
	}
	return true
}

func (s *Store) String() string {
	return fmt.Sprintf("Store(%d cols, %d rows, %d bytes)", len(s.schema), s.rows, s.Bytes())
}
