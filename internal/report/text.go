package report

import (
	"fmt"
	"os"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/dlogcover/dlogcover/internal/coverage"
	"github.com/dlogcover/dlogcover/internal/fsutil"
)

// barWidth is the fixed character width of the text report's coverage
// bars, independent of terminal width.
const barWidth = 20

// TextStrategy renders a human-readable report: bar-chart lines for the
// project's four metrics and its overall percentage, a table of per-file
// ratios, then each file's error note and suggestions.
type TextStrategy struct {
	// NoColor disables ANSI coloring (set for non-tty output or tests
	// that assert on raw byte content).
	NoColor bool
}

func (s *TextStrategy) Name() string      { return "text" }
func (s *TextStrategy) Extension() string { return ".txt" }
func (s *TextStrategy) Format() Format    { return FormatText }

func (s *TextStrategy) Generate(outputPath string, project coverage.Stats, files []FileReport, meta Metadata, progress ProgressFunc) error {
	var b strings.Builder

	fmt.Fprintf(&b, "dlogcover report\n")
	fmt.Fprintf(&b, "generated: %s\n", meta.GeneratedAt.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(&b, "project:   %s\n\n", meta.ProjectRoot)

	fmt.Fprintf(&b, "overall coverage\n")
	s.writeMetricLine(&b, "function ", project.Function)
	s.writeMetricLine(&b, "branch   ", project.Branch)
	s.writeMetricLine(&b, "exception", project.Exception)
	s.writeMetricLine(&b, "key path ", project.KeyPath)
	fmt.Fprintf(&b, "overall: %.1f%%\n\n", project.Overall(coverage.Weights{})*100)

	t := table.NewWriter()
	t.AppendHeader(table.Row{"file", "function", "branch", "exception", "key path"})
	for _, f := range files {
		t.AppendRow(table.Row{
			f.RelPath,
			pct(f.Stats.Function.Ratio()),
			pct(f.Stats.Branch.Ratio()),
			pct(f.Stats.Exception.Ratio()),
			pct(f.Stats.KeyPath.Ratio()),
		})
	}
	b.WriteString(t.Render())
	b.WriteString("\n\n")

	for i, f := range files {
		fmt.Fprintf(&b, "=== %s ===\n", f.RelPath)
		if f.ErrorNote != "" {
			fmt.Fprintf(&b, "  note: %s\n", f.ErrorNote)
		}
		for _, sug := range f.Suggestions {
			fmt.Fprintf(&b, "  [%s] %s suggested at %s:%d (level=%s)\n",
				sug.Kind, sug.Name, sug.Location.File, sug.Location.Line, sug.Level)
		}
		b.WriteString("\n")
		if progress != nil {
			progress(i+1, len(files))
		}
	}

	if err := fsutil.Write(outputPath, []byte(b.String()), 0o644); err != nil {
		return wrapGenerateErr(FormatText, outputPath, err)
	}
	return nil
}

func (s *TextStrategy) writeMetricLine(b *strings.Builder, label string, m coverage.Metric) {
	ratio := m.Ratio()
	filled := int(ratio * float64(barWidth))
	if filled > barWidth {
		filled = barWidth
	}
	bar := strings.Repeat("#", filled) + strings.Repeat("-", barWidth-filled)
	line := fmt.Sprintf("  %s [%s] %5.1f%% (%s/%s)", label, bar, ratio*100, humanize.Comma(int64(m.Covered)), humanize.Comma(int64(m.Total)))
	if m.Vacuous {
		line += " (vacuous)"
	}
	line += "\n"
	if s.NoColor || !isTTY() {
		fmt.Fprint(b, line)
		return
	}
	fmt.Fprint(b, colorForRatio(ratio).Sprint(line))
}

func colorForRatio(ratio float64) *color.Color {
	switch {
	case ratio >= 0.85:
		return color.New(color.FgGreen)
	case ratio >= 0.60:
		return color.New(color.FgYellow)
	default:
		return color.New(color.FgRed)
	}
}

func pct(ratio float64) string {
	return fmt.Sprintf("%.1f%%", ratio*100)
}

func isTTY() bool {
	fi, err := os.Stdout.Stat()
	if err != nil {
		return false
	}
	return (fi.Mode() & os.ModeCharDevice) != 0
}
