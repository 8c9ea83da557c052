package tuple

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/renderer"
	"github.com/olekukonko/tablewriter/tw"
)

// TableFormatter renders stores as markdown tables for debugging
type TableFormatter struct {
	// MaxRows caps the rows rendered; 0 renders everything
	MaxRows int
}

// NewTableFormatter creates a formatter that previews 10 rows
func NewTableFormatter() *TableFormatter {
	return &TableFormatter{MaxRows: 10}
}

// FormatStore renders the first MaxRows rows of s
func (tf *TableFormatter) FormatStore(s *Store) string {
	if s == nil || s.Released() {
		return "_Released store_"
	}
	if s.Rows() == 0 {
		names := make([]string, len(s.Schema()))
		for i, c := range s.Schema() {
			names[i] = c.Name
		}
		return fmt.Sprintf("_Columns: %v_\n\n_No rows_", names)
	}

	tableString := &strings.Builder{}

	alignment := make([]tw.Align, s.NumCols())
	for i := range alignment {
		alignment[i] = tw.AlignNone
	}

	table := tablewriter.NewTable(tableString,
		tablewriter.WithRenderer(renderer.NewMarkdown()),
		tablewriter.WithAlignment(alignment),
		tablewriter.WithHeaderAutoFormat(tw.Off),
	)

	headers := make([]string, s.NumCols())
	for i, c := range s.Schema() {
		headers[i] = fmt.Sprintf("%s:%d", c.Name, c.Width)
	}
	table.Header(headers)

	limit := s.Rows()
	if tf.MaxRows > 0 && tf.MaxRows < limit {
		limit = tf.MaxRows
	}
	row := make([]uint64, 0, s.NumCols())
	for i := 0; i < limit; i++ {
		row = s.Row(i, row)
		cells := make([]string, len(row))
		for j, v := range row {
			cells[j] = strconv.FormatUint(v, 10)
		}
		table.Append(cells)
	}

	table.Render()

	if limit < s.Rows() {
		tableString.WriteString(fmt.Sprintf("\n_%d of %d rows_\n", limit, s.Rows()))
	} else {
		tableString.WriteString(fmt.Sprintf("\n_%d rows_\n", s.Rows()))
	}
	return tableString.String()
}
