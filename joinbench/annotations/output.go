package annotations

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
)

// OutputFormatter formats events for human-readable display.
type OutputFormatter struct {
	useColor bool
	writer   io.Writer
}

// NewOutputFormatter creates a formatter; colour is used only when w is a
// terminal and color.NoColor is unset.
func NewOutputFormatter(w io.Writer) *OutputFormatter {
	if w == nil {
		w = os.Stdout
	}

	useColor := false
	if f, ok := w.(*os.File); ok {
		useColor = !color.NoColor && isTerminal(f.Fd())
	}

	return &OutputFormatter{
		useColor: useColor,
		writer:   w,
	}
}

// Handle prints events as they occur
func (f *OutputFormatter) Handle(event Event) {
	output := f.Format(event)
	if output != "" {
		fmt.Fprintln(f.writer, output)
	}
}

// Format converts an event to a human-readable string.
func (f *OutputFormatter) Format(event Event) string {
	latency := f.formatLatency(event.Latency)

	switch event.Name {
	case RunBegin:
		return fmt.Sprintf("%s %s Run: %v", latency, f.colorize("===", color.FgYellow), event.Data["config"])

	case RunComplete:
		if errVal, ok := event.Data["error"]; ok && errVal != nil {
			return fmt.Sprintf("%s %s Run failed: %v", latency, f.colorize("✗", color.FgRed), errVal)
		}
		return fmt.Sprintf("%s %s %s done with %s",
			latency,
			f.colorize("===", color.FgGreen),
			event.Data["algorithm"],
			f.colorizeCount("rows", toInt(event.Data["output.rows"])))

	case WorkloadGenerated, WorkloadLoaded:
		verb := "Generated"
		if event.Name == WorkloadLoaded {
			verb = "Loaded"
		}
		return fmt.Sprintf("%s %s R(%s) S(%s)",
			latency,
			verb,
			f.colorizeCount("rows", toInt(event.Data["r.rows"])),
			f.colorizeCount("rows", toInt(event.Data["s.rows"])))

	case WorkloadArchived:
		return fmt.Sprintf("%s Archived workload %v", latency, event.Data["fingerprint"])

	case PhaseComplete:
		phase := fmt.Sprintf("%v/%v", event.Data["algorithm"], event.Data["phase"])
		if f.useColor {
			phase = color.CyanString(phase)
		}
		if rows, ok := event.Data["rows"]; ok {
			return fmt.Sprintf("%s %s → %s", latency, phase, f.colorizeCount("rows", toInt(rows)))
		}
		return fmt.Sprintf("%s %s", latency, phase)

	case JoinComplete:
		left := toInt(event.Data["r.rows"])
		right := toInt(event.Data["s.rows"])
		result := toInt(event.Data["output.rows"])
		joinStr := fmt.Sprintf("%v: %d × %d → %d rows", event.Data["algorithm"], left, right, result)

		// Flag explosive joins
		if result > 0 && (result > left*right/2 || result > 10_000_000) {
			return fmt.Sprintf("%s %s %s", latency, f.colorize("⚠️", color.FgYellow), joinStr)
		}
		return fmt.Sprintf("%s %s", latency, joinStr)

	case ErrorConfiguration, ErrorAllocation, ErrorInvariant:
		return fmt.Sprintf("%s %s %s: %v", latency, f.colorize("✗", color.FgRed), event.Name, event.Data["error"])

	default:
		return fmt.Sprintf("%s %s %v", latency, event.Name, event.Data)
	}
}

// formatLatency formats a duration as [XXXms] or [XXXµs] with color coding.
func (f *OutputFormatter) formatLatency(d time.Duration) string {
	if d < time.Millisecond {
		s := fmt.Sprintf("[%dµs]", d.Microseconds())
		if !f.useColor {
			return s
		}
		return color.GreenString(s)
	}

	ms := float64(d.Microseconds()) / 1000.0
	s := fmt.Sprintf("[%.1fms]", ms)

	if !f.useColor {
		return s
	}

	switch {
	case ms < 50:
		return color.GreenString(s)
	case ms < 200:
		return color.YellowString(s)
	default:
		return color.RedString(s)
	}
}

// colorizeCount formats a count with a label
func (f *OutputFormatter) colorizeCount(label string, count int) string {
	text := fmt.Sprintf("%d %s", count, label)
	if !f.useColor {
		return text
	}
	if strings.ToLower(label) == "rows" {
		return color.MagentaString(text)
	}
	return text
}

// colorize applies color if enabled.
func (f *OutputFormatter) colorize(text string, attrs ...color.Attribute) string {
	if !f.useColor {
		return text
	}
	return color.New(attrs...).Sprint(text)
}

func toInt(v interface{}) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case uint64:
		return int(n)
	case float64:
		return int(n)
	default:
		return 0
	}
}

// ConsoleHandler creates a handler that prints formatted events to w.
func ConsoleHandler(w io.Writer) Handler {
	return NewOutputFormatter(w).Handle
}

func isTerminal(fd uintptr) bool {
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
