package join

import (
	"fmt"
	"io"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/renderer"
	"github.com/olekukonko/tablewriter/tw"
	"github.com/wbrown/janus-joinbench/joinbench"
)

// printStats renders one statistics table per run
func printStats(w io.Writer, algo joinbench.Algorithm, names []string, values []float64) {
	title := color.New(color.FgCyan, color.Bold)
	title.Fprintf(w, "%s join statistics\n", algo)

	table := tablewriter.NewTable(w,
		tablewriter.WithRenderer(renderer.NewMarkdown()),
		tablewriter.WithAlignment([]tw.Align{tw.AlignLeft, tw.AlignRight}),
		tablewriter.WithHeaderAutoFormat(tw.Off),
	)
	table.Header([]string{"stat", "value"})
	for i, name := range names {
		table.Append([]string{name, formatStat(name, values[i])})
	}
	table.Render()
	fmt.Fprintln(w)
}

func formatStat(name string, v float64) string {
	switch {
	case strings.HasSuffix(name, "_ms"):
		return fmt.Sprintf("%.3f", v)
	case strings.HasSuffix(name, "_bytes"):
		return humanize.IBytes(uint64(v))
	default:
		return humanize.Comma(int64(v))
	}
}
