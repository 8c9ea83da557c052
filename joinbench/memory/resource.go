// Package memory provides the memory resources that tuple stores and join
// intermediates are charged against. Resources are always passed in
// explicitly; there is no process-wide default.
package memory

import (
	"sync/atomic"

	"github.com/wbrown/janus-joinbench/joinbench"
)

// Resource accounts for the bytes held by stores and hash tables.
// Implementations must be safe for concurrent use.
type Resource interface {
	// Allocate charges n bytes, or returns *joinbench.AllocationError
	Allocate(n int64) error
	// Free returns n bytes previously charged
	Free(n int64)
	// Name identifies the resource in errors and logs
	Name() string
	InUse() int64
	Peak() int64
	// ResetPeak sets the peak watermark to the current usage
	ResetPeak()
}

// HostResource is the host-memory fallback. Go allocations do not fail, so
// the limit is enforced by accounting: an allocation that would push usage
// above the limit is refused before the memory is requested.
type HostResource struct {
	name  string
	limit int64
	inuse atomic.Int64
	peak  atomic.Int64
}

// NewHostResource creates a host resource; limit 0 means unlimited
func NewHostResource(limit int64) *HostResource {
	return &HostResource{name: "host", limit: limit}
}

func (h *HostResource) Name() string { return h.name }
func (h *HostResource) InUse() int64 { return h.inuse.Load() }
func (h *HostResource) Peak() int64  { return h.peak.Load() }
func (h *HostResource) ResetPeak()   { h.peak.Store(h.inuse.Load()) }

func (h *HostResource) Allocate(n int64) error {
	if n <= 0 {
		return nil
	}
	for {
		cur := h.inuse.Load()
		next := cur + n
		if h.limit > 0 && next > h.limit {
			return &joinbench.AllocationError{
				Resource:  h.name,
				Requested: n,
				InUse:     cur,
				Limit:     h.limit,
			}
		}
		if h.inuse.CompareAndSwap(cur, next) {
			h.updatePeak(next)
			return nil
		}
	}
}

func (h *HostResource) Free(n int64) {
	if n <= 0 {
		return
	}
	h.inuse.Add(-n)
}

func (h *HostResource) updatePeak(n int64) {
	for {
		p := h.peak.Load()
		if n <= p {
			return
		}
		if h.peak.CompareAndSwap(p, n) {
			return
		}
	}
}

// Buffer is a charged allocation that is returned exactly once
type Buffer struct {
	res   Resource
	bytes int64
	freed atomic.Bool
}

// Reserve charges n bytes to res and returns a handle to release them
func Reserve(res Resource, n int64) (*Buffer, error) {
	if err := res.Allocate(n); err != nil {
		return nil, err
	}
	return &Buffer{res: res, bytes: n}, nil
}

// Bytes returns the reserved size
func (b *Buffer) Bytes() int64 { return b.bytes }

// Release returns the reservation; later calls are no-ops
func (b *Buffer) Release() {
	if b == nil {
		return
	}
	if b.freed.CompareAndSwap(false, true) {
		b.res.Free(b.bytes)
	}
}

// Limited applies its own limit on top of a parent resource. Every charge
// is counted locally first and then forwarded to the parent.
type Limited struct {
	local  *HostResource
	parent Resource
}

// NewLimited caps the bytes charged through it at limit; 0 means unlimited
func NewLimited(parent Resource, limit int64) *Limited {
	return &Limited{
		local:  &HostResource{name: parent.Name(), limit: limit},
		parent: parent,
	}
}

func (l *Limited) Name() string { return l.local.Name() }
func (l *Limited) InUse() int64 { return l.local.InUse() }
func (l *Limited) Peak() int64  { return l.local.Peak() }
func (l *Limited) ResetPeak()   { l.local.ResetPeak() }

func (l *Limited) Allocate(n int64) error {
	if err := l.local.Allocate(n); err != nil {
		return err
	}
	if err := l.parent.Allocate(n); err != nil {
		l.local.Free(n)
		return err
	}
	return nil
}

func (l *Limited) Free(n int64) {
	l.local.Free(n)
	l.parent.Free(n)
}
