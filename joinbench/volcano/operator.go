// Package volcano provides pull-based open/next/close operators over
// tuple stores.
package volcano

import (
	"errors"
	"fmt"
	"time"

	"github.com/wbrown/janus-joinbench/joinbench/tuple"
)

// Kind enumerates the operator variants
type Kind int

const (
	KindScan Kind = iota
	KindCount
)

func (k Kind) String() string {
	switch k {
	case KindScan:
		return "scan"
	case KindCount:
		return "count"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// ErrNotOpen is returned by Next before Open or after Close
var ErrNotOpen = errors.New("volcano: operator not open")

// Batch is a window of consecutive rows [Offset, Offset+Rows) of Source.
// Count batches have a nil Source and a single row.
type Batch struct {
	Source *tuple.Store
	Offset int
	Rows   int
}

// End is one past the last row of the batch
func (b Batch) End() int { return b.Offset + b.Rows }

// Operator is the closed set of pull operators. Next returns ok=false once
// the operator is exhausted.
type Operator interface {
	Open() error
	Next() (b Batch, ok bool, err error)
	Close() error
	Kind() Kind
	// OpTime is the time spent inside Next so far
	OpTime() time.Duration

	sealed()
}

// Scan emits a store in batches of at most vecSize rows
type Scan struct {
	store   *tuple.Store
	vecSize int
	pos     int
	open    bool
	elapsed time.Duration
}

// NewScan creates a scan over st. vecSize <= 0 emits the whole store at once.
func NewScan(st *tuple.Store, vecSize int) *Scan {
	return &Scan{store: st, vecSize: vecSize}
}

func (s *Scan) Open() error {
	if s.store == nil || s.store.Released() {
		return errors.New("volcano: scan over released store")
	}
	s.pos = 0
	s.open = true
	return nil
}

func (s *Scan) Next() (Batch, bool, error) {
	if !s.open {
		return Batch{}, false, ErrNotOpen
	}
	start := time.Now()
	defer func() { s.elapsed += time.Since(start) }()

	rows := s.store.Rows()
	if s.pos >= rows {
		return Batch{}, false, nil
	}
	n := rows - s.pos
	if s.vecSize > 0 && n > s.vecSize {
		n = s.vecSize
	}
	b := Batch{Source: s.store, Offset: s.pos, Rows: n}
	s.pos += n
	return b, true, nil
}

func (s *Scan) Close() error {
	s.open = false
	return nil
}

func (s *Scan) Kind() Kind            { return KindScan }
func (s *Scan) OpTime() time.Duration { return s.elapsed }
func (s *Scan) sealed()               {}

// Count reduces its child to a single row holding the number of rows seen.
// A child batch drawn from an aggregate-only store contributes its stored
// count instead of its row count.
type Count struct {
	child   Operator
	value   int64
	done    bool
	open    bool
	elapsed time.Duration
}

// NewCount wraps child
func NewCount(child Operator) *Count {
	return &Count{child: child}
}

func (c *Count) Open() error {
	if err := c.child.Open(); err != nil {
		return err
	}
	c.value = 0
	c.done = false
	c.open = true
	return nil
}

func (c *Count) Next() (Batch, bool, error) {
	if !c.open {
		return Batch{}, false, ErrNotOpen
	}
	if c.done {
		return Batch{}, false, nil
	}
	start := time.Now()
	defer func() { c.elapsed += time.Since(start) }()

	for {
		b, ok, err := c.child.Next()
		if err != nil {
			return Batch{}, false, err
		}
		if !ok {
			break
		}
		if b.Source != nil {
			if n, isCount := b.Source.Count(); isCount {
				c.value += n
				continue
			}
		}
		c.value += int64(b.Rows)
	}
	c.done = true
	return Batch{Rows: 1}, true, nil
}

func (c *Count) Close() error {
	c.open = false
	return c.child.Close()
}

// Value is the reduced count; valid once Next has returned a batch
func (c *Count) Value() int64 { return c.value }

func (c *Count) Kind() Kind            { return KindCount }
func (c *Count) OpTime() time.Duration { return c.elapsed }
func (c *Count) sealed()               {}

// Explain renders an operator tree on one line
func Explain(op Operator) string {
	switch o := op.(type) {
	case *Scan:
		return fmt.Sprintf("scan(rows=%d, vec=%d)", o.store.Rows(), o.vecSize)
	case *Count:
		return fmt.Sprintf("count(%s)", Explain(o.child))
	default:
		panic(fmt.Sprintf("unknown operator %T", op))
	}
}

// CountRows runs Count(Scan(st)) and returns the number of logical rows
func CountRows(st *tuple.Store, vecSize int) (int64, error) {
	op := NewCount(NewScan(st, vecSize))
	if err := op.Open(); err != nil {
		return 0, err
	}
	defer op.Close()

	if _, _, err := op.Next(); err != nil {
		return 0, fmt.Errorf("%s: %w", Explain(op), err)
	}
	return op.Value(), nil
}
