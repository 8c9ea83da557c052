package memory

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wbrown/janus-joinbench/joinbench"
)

func TestHostResourceAccounting(t *testing.T) {
	res := NewHostResource(0)
	require.NoError(t, res.Allocate(100))
	require.NoError(t, res.Allocate(50))
	assert.Equal(t, int64(150), res.InUse())
	assert.Equal(t, int64(150), res.Peak())

	res.Free(100)
	assert.Equal(t, int64(50), res.InUse())
	assert.Equal(t, int64(150), res.Peak(), "peak survives frees")

	res.ResetPeak()
	assert.Equal(t, int64(50), res.Peak())
}

func TestHostResourceLimit(t *testing.T) {
	res := NewHostResource(1000)
	require.NoError(t, res.Allocate(800))

	err := res.Allocate(300)
	require.Error(t, err)
	assert.True(t, joinbench.IsAllocationError(err))
	ae := err.(*joinbench.AllocationError)
	assert.Equal(t, int64(300), ae.Requested)
	assert.Equal(t, int64(800), ae.InUse)
	assert.Equal(t, int64(1000), ae.Limit)
	assert.Equal(t, int64(800), res.InUse(), "refused allocation is not charged")
}

func TestHostResourceConcurrent(t *testing.T) {
	res := NewHostResource(0)
	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 1000; i++ {
				_ = res.Allocate(8)
				res.Free(8)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int64(0), res.InUse())
	assert.LessOrEqual(t, res.Peak(), int64(64))
}

func TestBufferReleaseOnce(t *testing.T) {
	res := NewHostResource(0)
	buf, err := Reserve(res, 64)
	require.NoError(t, err)
	assert.Equal(t, int64(64), buf.Bytes())

	buf.Release()
	buf.Release()
	assert.Equal(t, int64(0), res.InUse())

	var nilBuf *Buffer
	nilBuf.Release()
}

func TestLimitedResource(t *testing.T) {
	parent := NewHostResource(0)
	run := NewLimited(parent, 1000)

	require.NoError(t, run.Allocate(600))
	assert.Equal(t, int64(600), run.InUse())
	assert.Equal(t, int64(600), parent.InUse(), "charges reach the parent")

	err := run.Allocate(500)
	require.Error(t, err)
	assert.True(t, joinbench.IsAllocationError(err))
	assert.Equal(t, int64(600), parent.InUse(), "refused charge never reaches the parent")

	run.Free(600)
	assert.Equal(t, int64(0), run.InUse())
	assert.Equal(t, int64(0), parent.InUse())
	assert.Equal(t, int64(600), run.Peak())
}

func TestLimitedResourceParentRefusal(t *testing.T) {
	parent := NewHostResource(100)
	run := NewLimited(parent, 0)

	err := run.Allocate(200)
	require.Error(t, err)
	assert.True(t, joinbench.IsAllocationError(err))
	assert.Equal(t, int64(0), run.InUse(), "local charge rolled back")
	assert.Equal(t, int64(0), parent.InUse())
}
