package workload

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/wbrown/janus-joinbench/joinbench"
	"github.com/wbrown/janus-joinbench/joinbench/memory"
	"github.com/wbrown/janus-joinbench/joinbench/tuple"
)

// LoadCSV reads R and S from headerless CSV files instead of generating
// them. Row counts come from the files; cfg supplies the schemas.
func LoadCSV(cfg joinbench.Config, rPath, sPath string, res memory.Resource) (r, s *tuple.Store, err error) {
	r, err = loadRelation(rPath, RSchema(cfg), res)
	if err != nil {
		return nil, nil, err
	}
	s, err = loadRelation(sPath, SSchema(cfg), res)
	if err != nil {
		r.Release()
		return nil, nil, err
	}
	return r, s, nil
}

func loadRelation(path string, schema tuple.Schema, res memory.Resource) (*tuple.Store, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	st, err := tuple.ReadCSV(f, schema, res)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", filepath.Base(path), err)
	}
	return st, nil
}

// DumpCSV writes st to path, creating parent directories as needed
func DumpCSV(path string, st *tuple.Store) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := tuple.WriteCSV(f, st); err != nil {
		f.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return f.Close()
}
