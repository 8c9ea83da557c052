package tuple

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/wbrown/janus-joinbench/joinbench/memory"
)

// ReadCSV loads a headerless CSV relation whose fields are the key followed
// by the payload columns of schema, in order
func ReadCSV(r io.Reader, schema Schema, res memory.Resource) (*Store, error) {
	if err := schema.Validate(); err != nil {
		return nil, err
	}
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = len(schema)
	reader.ReuseRecord = true

	// Parse into row-major scratch first; the row count is unknown until EOF.
	var values []uint64
	rows := 0
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv row %d: %w", rows+1, err)
		}
		for c, field := range record {
			v, err := strconv.ParseUint(field, 10, schema[c].Width*8)
			if err != nil {
				return nil, fmt.Errorf("csv row %d column %s: %w", rows+1, schema[c].Name, err)
			}
			values = append(values, v)
		}
		rows++
	}

	store, err := New(res, schema, rows)
	if err != nil {
		return nil, err
	}
	ncols := len(schema)
	for i := 0; i < rows; i++ {
		store.SetRow(i, values[i*ncols:(i+1)*ncols])
	}
	return store, nil
}

// WriteCSV writes the store as headerless CSV, one row per line
func WriteCSV(w io.Writer, s *Store) error {
	writer := csv.NewWriter(w)
	record := make([]string, s.NumCols())
	row := make([]uint64, 0, s.NumCols())
	for i := 0; i < s.Rows(); i++ {
		row = s.Row(i, row)
		for c, v := range row {
			record[c] = strconv.FormatUint(v, 10)
		}
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("write csv row %d: %w", i, err)
		}
	}
	writer.Flush()
	return writer.Error()
}
