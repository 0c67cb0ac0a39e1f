package main

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"github.com/schollz/progressbar/v3"

	"github.com/dhruvdixit03/bank-statement-analyzer/internal/pipeline"
)

var (
	primaryColor = lipgloss.Color("#4ECDC4")
	warningColor = lipgloss.Color("#FFE66D")
	errorColor   = lipgloss.Color("#FF6B6B")
	subtleColor  = lipgloss.Color("#666666")

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(primaryColor).
			MarginBottom(1)

	warningStyle = lipgloss.NewStyle().Foreground(warningColor)
	errorStyle   = lipgloss.NewStyle().Foreground(errorColor)
	subtleStyle  = lipgloss.NewStyle().Foreground(subtleColor)
	promptStyle  = lipgloss.NewStyle().Bold(true).Foreground(primaryColor)

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#333")).
			Padding(1, 2)

	barStyle = lipgloss.NewStyle().Foreground(primaryColor)
)

const chartWidth = 40

// renderSummary boxes the loan-worthiness analysis.
func renderSummary(summary pipeline.FinalSummary) string {
	return boxStyle.Render(strings.TrimSpace(string(summary)))
}

// renderChart draws one horizontal bar per category, scaled so the largest
// bar is width cells wide.
func renderChart(series pipeline.ChartSeries, width int) string {
	if len(series.Labels) == 0 {
		return subtleStyle.Render("No expenses found.")
	}

	labelWidth, maxValue := 0, 0.0
	for i, label := range series.Labels {
		labelWidth = max(labelWidth, len(label))
		maxValue = max(maxValue, series.Values[i])
	}

	var b strings.Builder
	for i, label := range series.Labels {
		cells := 0
		if maxValue > 0 {
			cells = int(series.Values[i] / maxValue * float64(width))
		}
		if cells == 0 && series.Values[i] > 0 {
			cells = 1
		}
		fmt.Fprintf(&b, "%-*s %s %.2f\n", labelWidth, label, barStyle.Render(strings.Repeat("█", cells)), series.Values[i])
	}
	return strings.TrimRight(b.String(), "\n")
}

// newProgress returns a pipeline.ProgressFunc that draws a bar on w. The
// bar is created on the first report, once the total is known.
func newProgress(w io.Writer) pipeline.ProgressFunc {
	var (
		mu  sync.Mutex
		bar *progressbar.ProgressBar
	)
	return func(done, total int) {
		mu.Lock()
		defer mu.Unlock()
		if bar == nil {
			bar = progressbar.NewOptions(total,
				progressbar.OptionSetWriter(w),
				progressbar.OptionEnableColorCodes(true),
				progressbar.OptionShowCount(),
				progressbar.OptionShowElapsedTimeOnFinish(),
				progressbar.OptionSetWidth(chartWidth),
				progressbar.OptionSetDescription("[cyan][bold]Summarizing tables...[reset]"),
				progressbar.OptionSetTheme(progressbar.Theme{
					Saucer:        "[green]=[reset]",
					SaucerHead:    "[green]>[reset]",
					SaucerPadding: " ",
					BarStart:      "[",
					BarEnd:        "]",
				}),
				progressbar.OptionOnCompletion(func() {
					_, _ = fmt.Fprintln(w)
				}),
			)
		}
		_ = bar.Set(done)
	}
}
