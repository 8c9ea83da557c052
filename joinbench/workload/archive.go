package workload

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/cespare/xxhash/v2"
	"github.com/dgraph-io/badger/v4"
	"github.com/wbrown/janus-joinbench/joinbench"
	"github.com/wbrown/janus-joinbench/joinbench/memory"
	"github.com/wbrown/janus-joinbench/joinbench/tuple"
)

// ErrNotArchived is returned by Get when no workload matches the config
var ErrNotArchived = errors.New("workload not archived")

// maxChunkBytes bounds a single badger value
const maxChunkBytes = 1 << 20

// Archive caches generated relations in BadgerDB keyed by a fingerprint of
// the generator inputs, so a sweep over algorithms joins identical data.
type Archive struct {
	db *badger.DB
}

// OpenArchive opens (or creates) the archive at path
func OpenArchive(path string) (*Archive, error) {
	opts := badger.DefaultOptions(path)
	opts.Logger = nil // badger's own logging is noise for a benchmark

	opts.ValueThreshold = 1 << 10 // small metadata stays in the LSM tree
	opts.DetectConflicts = false  // single writer

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger: %w", err)
	}
	return &Archive{db: db}, nil
}

// Close closes the underlying database
func (a *Archive) Close() error {
	return a.db.Close()
}

// Fingerprint hashes every configuration field that influences Generate.
// Algorithm, materialization mode and partition sizes are excluded.
func Fingerprint(cfg joinbench.Config) uint64 {
	return xxhash.Sum64String(fmt.Sprintf("nr=%d ns=%d pr=%d ps=%d uk=%d type=%s dist=%s zipf=%x sel=%d fkfk=%s kb=%d vb=%d seed=%d",
		cfg.NR, cfg.NS, cfg.PR, cfg.PS, cfg.UniqueKeys, cfg.Type, cfg.Dist,
		math.Float64bits(cfg.ZipfFactor), cfg.Selectivity, cfg.FKFK,
		cfg.KeyBytes, cfg.ValBytes, cfg.Seed))
}

func relPrefix(fp uint64, rel string) string {
	return fmt.Sprintf("wl/%016x/%s/", fp, rel)
}

func rowsKey(fp uint64, rel string) []byte {
	return []byte(relPrefix(fp, rel) + "rows")
}

func chunkKey(fp uint64, rel string, col, chunk int) []byte {
	return []byte(fmt.Sprintf("%sc/%04d/%08d", relPrefix(fp, rel), col, chunk))
}

func summaryKey(fp uint64) []byte {
	return []byte(fmt.Sprintf("wl/%016x/summary", fp))
}

// Put writes r and s under cfg's fingerprint
func (a *Archive) Put(cfg joinbench.Config, r, s *tuple.Store) error {
	fp := Fingerprint(cfg)

	// Column data can exceed a single transaction, so use a write batch
	wb := a.db.NewWriteBatch()
	defer wb.Cancel()

	if err := putRelation(wb, fp, "r", r); err != nil {
		return fmt.Errorf("failed to archive R: %w", err)
	}
	if err := putRelation(wb, fp, "s", s); err != nil {
		return fmt.Errorf("failed to archive S: %w", err)
	}
	if err := wb.Set(summaryKey(fp), []byte(cfg.Summary())); err != nil {
		return fmt.Errorf("failed to archive summary: %w", err)
	}
	if err := wb.Flush(); err != nil {
		return fmt.Errorf("failed to flush archive: %w", err)
	}
	return nil
}

func putRelation(wb *badger.WriteBatch, fp uint64, rel string, st *tuple.Store) error {
	var rows [8]byte
	binary.LittleEndian.PutUint64(rows[:], uint64(st.Rows()))
	if err := wb.Set(rowsKey(fp, rel), rows[:]); err != nil {
		return err
	}

	for c := 0; c < st.NumCols(); c++ {
		col := st.Col(c)
		perChunk := maxChunkBytes / col.Width()
		for chunk, from := 0, 0; from < st.Rows(); chunk, from = chunk+1, from+perChunk {
			to := from + perChunk
			if to > st.Rows() {
				to = st.Rows()
			}
			if err := wb.Set(chunkKey(fp, rel, c, chunk), encodeColumn(col, from, to)); err != nil {
				return fmt.Errorf("column %d chunk %d: %w", c, chunk, err)
			}
		}
	}
	return nil
}

func encodeColumn(col *tuple.Column, from, to int) []byte {
	w := col.Width()
	buf := make([]byte, (to-from)*w)
	for i := from; i < to; i++ {
		off := (i - from) * w
		if w == 4 {
			binary.LittleEndian.PutUint32(buf[off:], uint32(col.Get(i)))
		} else {
			binary.LittleEndian.PutUint64(buf[off:], col.Get(i))
		}
	}
	return buf
}

func decodeColumn(col *tuple.Column, from int, data []byte) {
	w := col.Width()
	for off, i := 0, from; off+w <= len(data); off, i = off+w, i+1 {
		if w == 4 {
			col.Set(i, uint64(binary.LittleEndian.Uint32(data[off:])))
		} else {
			col.Set(i, binary.LittleEndian.Uint64(data[off:]))
		}
	}
}

// Has reports whether a workload for cfg is archived
func (a *Archive) Has(cfg joinbench.Config) (bool, error) {
	fp := Fingerprint(cfg)
	err := a.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get(summaryKey(fp))
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to query archive: %w", err)
	}
	return true, nil
}

// Get loads the relations archived for cfg, charging them to res.
// Returns ErrNotArchived when the fingerprint is unknown.
func (a *Archive) Get(cfg joinbench.Config, res memory.Resource) (r, s *tuple.Store, err error) {
	fp := Fingerprint(cfg)
	err = a.db.View(func(txn *badger.Txn) error {
		if _, err := txn.Get(summaryKey(fp)); err != nil {
			return err
		}
		var err error
		if r, err = getRelation(txn, fp, "r", RSchema(cfg), res); err != nil {
			return fmt.Errorf("R: %w", err)
		}
		if s, err = getRelation(txn, fp, "s", SSchema(cfg), res); err != nil {
			return fmt.Errorf("S: %w", err)
		}
		return nil
	})
	if err != nil {
		r.Release()
		s.Release()
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, nil, fmt.Errorf("%w: %016x", ErrNotArchived, fp)
		}
		return nil, nil, fmt.Errorf("failed to read archive: %w", err)
	}
	return r, s, nil
}

func getRelation(txn *badger.Txn, fp uint64, rel string, schema tuple.Schema, res memory.Resource) (*tuple.Store, error) {
	item, err := txn.Get(rowsKey(fp, rel))
	if err != nil {
		return nil, err
	}
	raw, err := item.ValueCopy(nil)
	if err != nil {
		return nil, err
	}
	if len(raw) != 8 {
		return nil, fmt.Errorf("corrupt row count (%d bytes)", len(raw))
	}
	rows := int(binary.LittleEndian.Uint64(raw))

	st, err := tuple.New(res, schema, rows)
	if err != nil {
		return nil, err
	}

	for c := 0; c < st.NumCols(); c++ {
		col := st.Col(c)
		perChunk := maxChunkBytes / col.Width()
		for chunk, from := 0, 0; from < rows; chunk, from = chunk+1, from+perChunk {
			item, err := txn.Get(chunkKey(fp, rel, c, chunk))
			if err != nil {
				st.Release()
				return nil, fmt.Errorf("column %d chunk %d: %w", c, chunk, err)
			}
			data, err := item.ValueCopy(nil)
			if err != nil {
				st.Release()
				return nil, err
			}
			decodeColumn(col, from, data)
		}
	}
	return st, nil
}

// Entries lists the summaries of every archived workload
func (a *Archive) Entries() ([]string, error) {
	var out []string
	err := a.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte("wl/")
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			key := item.Key()
			if len(key) < 8 || string(key[len(key)-8:]) != "/summary" {
				continue
			}
			v, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			out = append(out, string(v))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list archive: %w", err)
	}
	return out, nil
}
