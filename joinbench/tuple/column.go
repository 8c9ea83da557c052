// Package tuple implements the columnar, fixed-width tuple store that holds
// relations and join outputs.
package tuple

import (
	"fmt"
)

// ColumnDesc describes one fixed-width integer column
type ColumnDesc struct {
	Name  string
	Width int // bytes: 4 or 8
}

// Schema is the ordered column layout of a store. Column 0 is the key.
type Schema []ColumnDesc

// NewSchema builds "<prefix>.key" followed by payload columns "<prefix>.p<i>"
func NewSchema(prefix string, keyWidth, valWidth, payloadCols int) Schema {
	s := make(Schema, 0, payloadCols+1)
	s = append(s, ColumnDesc{Name: prefix + ".key", Width: keyWidth})
	for i := 0; i < payloadCols; i++ {
		s = append(s, ColumnDesc{Name: fmt.Sprintf("%s.p%d", prefix, i), Width: valWidth})
	}
	return s
}

// CountSchema is the layout of aggregate-only join outputs
var CountSchema = Schema{{Name: "count", Width: 8}}

// Validate checks widths and that there is a key column
func (s Schema) Validate() error {
	if len(s) == 0 {
		return fmt.Errorf("schema has no key column")
	}
	for i, c := range s {
		if c.Width != 4 && c.Width != 8 {
			return fmt.Errorf("column %d (%s) has width %d, want 4 or 8", i, c.Name, c.Width)
		}
	}
	return nil
}

// RowBytes is the byte width of one row
func (s Schema) RowBytes() int {
	n := 0
	for _, c := range s {
		n += c.Width
	}
	return n
}

// JoinOutput returns s ++ other minus the duplicated join key of other
func (s Schema) JoinOutput(other Schema) Schema {
	out := make(Schema, 0, len(s)+len(other)-1)
	out = append(out, s...)
	if len(other) > 1 {
		out = append(out, other[1:]...)
	}
	return out
}

// Equal compares layouts column by column
func (s Schema) Equal(other Schema) bool {
	if len(s) != len(other) {
		return false
	}
	for i := range s {
		if s[i] != other[i] {
			return false
		}
	}
	return true
}

// Column is a fixed-width integer vector. Exactly one of u32/u64 is set.
type Column struct {
	desc ColumnDesc
	u32  []uint32
	u64  []uint64
}

func newColumn(desc ColumnDesc, rows int) *Column {
	c := &Column{desc: desc}
	if desc.Width == 4 {
		c.u32 = make([]uint32, rows)
	} else {
		c.u64 = make([]uint64, rows)
	}
	return c
}

func (c *Column) Width() int { return c.desc.Width }

func (c *Column) Len() int {
	if c.u32 != nil {
		return len(c.u32)
	}
	return len(c.u64)
}

// Get returns row i widened to 64 bits
func (c *Column) Get(i int) uint64 {
	if c.u32 != nil {
		return uint64(c.u32[i])
	}
	return c.u64[i]
}

// Set stores v truncated to the column width
func (c *Column) Set(i int, v uint64) {
	if c.u32 != nil {
		c.u32[i] = uint32(v)
		return
	}
	c.u64[i] = v
}

// Uint32s exposes the backing slice of a 4-byte column, nil otherwise
func (c *Column) Uint32s() []uint32 { return c.u32 }

// Uint64s exposes the backing slice of an 8-byte column, nil otherwise
func (c *Column) Uint64s() []uint64 { return c.u64 }

// AppendTo widens rows [from, to) onto dst
func (c *Column) AppendTo(dst []uint64, from, to int) []uint64 {
	if c.u32 != nil {
		for _, v := range c.u32[from:to] {
			dst = append(dst, uint64(v))
		}
		return dst
	}
	return append(dst, c.u64[from:to]...)
}

// Gather writes src[idx[i]] into c[offset+i]
func (c *Column) Gather(offset int, src *Column, idx []int32) {
	switch {
	case c.u32 != nil && src.u32 != nil:
		dst := c.u32[offset : offset+len(idx)]
		for i, j := range idx {
			dst[i] = src.u32[j]
		}
	case c.u64 != nil && src.u64 != nil:
		dst := c.u64[offset : offset+len(idx)]
		for i, j := range idx {
			dst[i] = src.u64[j]
		}
	default:
		for i, j := range idx {
			c.Set(offset+i, src.Get(int(j)))
		}
	}
}
