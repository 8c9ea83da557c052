package tuple

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wbrown/janus-joinbench/joinbench"
	"github.com/wbrown/janus-joinbench/joinbench/memory"
)

func makeStore(t *testing.T, res memory.Resource, schema Schema, rows [][]uint64) *Store {
	t.Helper()
	s, err := New(res, schema, len(rows))
	require.NoError(t, err)
	for i, r := range rows {
		s.SetRow(i, r)
	}
	return s
}

func TestSchemaLayout(t *testing.T) {
	r := NewSchema("r", 4, 8, 2)
	s := NewSchema("s", 4, 8, 1)
	require.NoError(t, r.Validate())

	assert.Equal(t, "r.key", r[0].Name)
	assert.Equal(t, "r.p1", r[2].Name)
	assert.Equal(t, 4+8+8, r.RowBytes())

	out := r.JoinOutput(s)
	assert.Len(t, out, len(r)+len(s)-1)
	assert.Equal(t, "s.p0", out[3].Name)

	assert.Error(t, Schema{}.Validate())
	assert.Error(t, Schema{{Name: "k", Width: 2}}.Validate())
}

func TestStoreChargesResource(t *testing.T) {
	res := memory.NewHostResource(0)
	s, err := New(res, NewSchema("r", 4, 4, 3), 100)
	require.NoError(t, err)
	assert.Equal(t, int64(16*100), s.Bytes())
	assert.Equal(t, int64(1600), res.InUse())

	s.Release()
	s.Release()
	assert.True(t, s.Released())
	assert.Equal(t, int64(0), res.InUse())
}

func TestStoreAllocationLimit(t *testing.T) {
	res := memory.NewHostResource(100)
	_, err := New(res, NewSchema("r", 8, 8, 1), 10)
	require.Error(t, err)
	assert.True(t, joinbench.IsAllocationError(err))
	assert.Equal(t, int64(0), res.InUse())
}

func TestColumnWidths(t *testing.T) {
	res := memory.NewHostResource(0)
	s := makeStore(t, res, Schema{{"k", 4}, {"v", 8}}, [][]uint64{
		{1 << 33, 1 << 33},
		{7, 9},
	})
	assert.Equal(t, uint64(0), s.Key().Get(0), "4-byte column truncates")
	assert.Equal(t, uint64(1<<33), s.Payload(0).Get(0))
	assert.NotNil(t, s.Key().Uint32s())
	assert.Nil(t, s.Key().Uint64s())
	assert.Equal(t, []uint64{7, 9}, s.Row(1, nil))
}

func TestGatherAcrossWidths(t *testing.T) {
	res := memory.NewHostResource(0)
	src := makeStore(t, res, Schema{{"a", 4}, {"b", 8}}, [][]uint64{{10, 100}, {20, 200}, {30, 300}})
	dst, err := New(res, Schema{{"a", 4}, {"b", 4}}, 4)
	require.NoError(t, err)

	idx := []int32{2, 0}
	dst.Col(0).Gather(1, src.Col(0), idx)
	dst.Col(1).Gather(1, src.Col(1), idx)
	assert.Equal(t, [][]uint64{{0, 0}, {30, 300}, {10, 100}, {0, 0}}, dst.AllRows())
}

func TestSortedRowsAndEqual(t *testing.T) {
	res := memory.NewHostResource(0)
	schema := NewSchema("r", 4, 4, 1)
	a := makeStore(t, res, schema, [][]uint64{{3, 1}, {1, 2}, {2, 3}})
	b := makeStore(t, res, schema, [][]uint64{{1, 2}, {2, 3}, {3, 1}})

	assert.False(t, a.Equal(b), "row order differs")
	assert.Equal(t, a.SortedRows(), b.SortedRows())
	assert.True(t, a.Equal(a))
}

func TestCountStore(t *testing.T) {
	res := memory.NewHostResource(0)
	s, err := NewCount(res, 12345)
	require.NoError(t, err)
	n, ok := s.Count()
	require.True(t, ok)
	assert.Equal(t, int64(12345), n)

	plain := makeStore(t, res, NewSchema("r", 4, 4, 0), [][]uint64{{1}})
	_, ok = plain.Count()
	assert.False(t, ok)
}

func TestCSVRoundTrip(t *testing.T) {
	res := memory.NewHostResource(0)
	schema := NewSchema("r", 4, 8, 2)
	s := makeStore(t, res, schema, [][]uint64{{1, 10, 100}, {4294967295, 1 << 40, 0}})

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, s))
	assert.Equal(t, "1,10,100\n4294967295,1099511627776,0\n", buf.String())

	back, err := ReadCSV(&buf, schema, res)
	require.NoError(t, err)
	assert.True(t, s.Equal(back))
}

func TestReadCSVErrors(t *testing.T) {
	res := memory.NewHostResource(0)
	schema := NewSchema("r", 4, 4, 1)

	_, err := ReadCSV(strings.NewReader("1,2,3\n"), schema, res)
	assert.Error(t, err, "wrong field count")

	_, err = ReadCSV(strings.NewReader("4294967296,1\n"), schema, res)
	assert.Error(t, err, "key overflows 4 bytes")

	empty, err := ReadCSV(strings.NewReader(""), schema, res)
	require.NoError(t, err)
	assert.Equal(t, 0, empty.Rows())
}

func TestFormatStore(t *testing.T) {
	res := memory.NewHostResource(0)
	s := makeStore(t, res, NewSchema("r", 4, 4, 1), [][]uint64{{1, 2}, {3, 4}, {5, 6}})

	tf := &TableFormatter{MaxRows: 2}
	out := tf.FormatStore(s)
	assert.Contains(t, out, "r.key:4")
	assert.Contains(t, out, "_2 of 3 rows_")

	empty := makeStore(t, res, NewSchema("s", 4, 4, 0), nil)
	assert.Contains(t, NewTableFormatter().FormatStore(empty), "_No rows_")
}
