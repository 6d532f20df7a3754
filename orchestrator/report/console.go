package report

import (
	"cmp"
	"context"
	"fmt"
	"io"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/PeladoCollado/rpcload/orchestrator/manager"
)

var (
	colorPrimary = lipgloss.Color("#7D56F4")
	colorError   = lipgloss.Color("#FF5F87")
	colorBorder  = lipgloss.Color("#3C3C3C")

	titleStyle  = lipgloss.NewStyle().Foreground(colorPrimary).Bold(true)
	labelStyle  = lipgloss.NewStyle().Padding(0, 1)
	valueStyle  = lipgloss.NewStyle().Padding(0, 1).Align(lipgloss.Right)
	headerStyle = lipgloss.NewStyle().Foreground(colorPrimary).Bold(true).Padding(0, 1)
	errorStyle  = lipgloss.NewStyle().Foreground(colorError).Padding(0, 1)
)

// Console prints a summary table for every finished step.
type Console struct {
	lock sync.Mutex
	out  io.Writer
}

func NewConsole(out io.Writer) *Console {
	return &Console{out: out}
}

func (c *Console) ReportStep(_ context.Context, report manager.StepReport) {
	c.lock.Lock()
	defer c.lock.Unlock()
	_, _ = fmt.Fprintln(c.out, RenderStep(report))
}

// RenderStep formats the step summary, the latency distribution and, when anything
// failed, the error tally ordered by count.
func RenderStep(report manager.StepReport) string {
	result := report.Result
	latency := report.Snapshot.Latency

	summary := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(colorBorder)).
		StyleFunc(func(row, col int) lipgloss.Style {
			if col == 0 {
				return labelStyle
			}
			return valueStyle
		}).
		Rows(
			[]string{"Total requests", strconv.FormatUint(result.TotalRequests, 10)},
			[]string{"Successful requests", strconv.FormatUint(result.SuccessfulRequests, 10)},
			[]string{"Failed requests", strconv.FormatUint(result.FailedRequests, 10)},
			[]string{"Timeout requests", strconv.FormatUint(result.TimeoutRequests, 10)},
			[]string{"Avg requests per second", fmt.Sprintf("%.2f", result.AverageRequestsPerSecond)},
			[]string{"Average response time", fmt.Sprintf("%d ms", result.AverageResponseTime)},
			[]string{"Elapsed time", fmt.Sprintf("%.2f s", result.ElapsedTime.Seconds())},
			[]string{"Latency p50 / p90", millis(latency.P50) + " / " + millis(latency.P90)},
			[]string{"Latency p99 / max", millis(latency.P99) + " / " + millis(latency.Max)},
		)

	title := titleStyle.Render(fmt.Sprintf("Results for %d Connections", result.Connections))
	blocks := []string{title, summary.String()}
	if len(report.Snapshot.Errors) > 0 {
		blocks = append(blocks, errorTable(report.Snapshot.Errors))
	}
	return lipgloss.JoinVertical(lipgloss.Left, blocks...)
}

type errorCount struct {
	description string
	count       uint64
}

func sortedErrors(errors map[string]uint64) []errorCount {
	counts := make([]errorCount, 0, len(errors))
	for description, count := range errors {
		counts = append(counts, errorCount{description: description, count: count})
	}
	slices.SortFunc(counts, func(a, b errorCount) int {
		if c := cmp.Compare(b.count, a.count); c != 0 {
			return c
		}
		return cmp.Compare(a.description, b.description)
	})
	return counts
}

func errorTable(errors map[string]uint64) string {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(colorBorder)).
		Headers("Error", "Count").
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return headerStyle
			case col == 0:
				return errorStyle
			default:
				return valueStyle
			}
		})
	for _, entry := range sortedErrors(errors) {
		t.Row(entry.description, strconv.FormatUint(entry.count, 10))
	}
	return t.String()
}

func millis(d time.Duration) string {
	return fmt.Sprintf("%.1f ms", float64(d.Microseconds())/1000)
}
