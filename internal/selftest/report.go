// ABOUTME: Text report of round trip results
// ABOUTME: Renders one row per rate with lock, clock and error figures
package selftest

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205"))
	headStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("86"))
	passStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	failStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("196"))
)

var columns = []string{"rate", "result", "divider", "ticks/UI", "measured", "retargets", "settle", "frames", "sync", "parity", "block"}

// Report renders results as a table. frames is the clean run each round
// needed to pass.
func Report(results []Result, frames int) string {
	rows := [][]string{columns}
	for _, r := range results {
		verdict := "PASS"
		if !r.OK(frames) {
			verdict = "FAIL"
		}
		rows = append(rows, []string{
			strconv.Itoa(r.Rate),
			verdict,
			strconv.Itoa(r.Divider),
			fmt.Sprintf("%.2f", r.Unit),
			fmt.Sprintf("%.0f", r.Measured),
			strconv.Itoa(r.Retargets),
			strconv.Itoa(r.Settle),
			strconv.Itoa(r.Matched),
			strconv.FormatUint(r.Counters.SyncLosses, 10),
			strconv.FormatUint(r.Counters.ParityErrors, 10),
			strconv.FormatUint(r.Counters.BlockErrors, 10),
		})
	}

	widths := make([]int, len(columns))
	for _, row := range rows {
		for i, cell := range row {
			widths[i] = max(widths[i], len(cell))
		}
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render("S/PDIF loopback"))
	b.WriteString("\n")
	for n, row := range rows {
		cells := make([]string, len(row))
		for i, cell := range row {
			cell = fmt.Sprintf("%*s", widths[i], cell)
			switch {
			case n == 0:
				cell = headStyle.Render(cell)
			case i == 1 && row[1] == "PASS":
				cell = passStyle.Render(cell)
			case i == 1:
				cell = failStyle.Render(cell)
			}
			cells[i] = cell
		}
		b.WriteString(strings.Join(cells, "  "))
		b.WriteString("\n")
	}
	for _, r := range results {
		if r.Err != nil {
			b.WriteString(failStyle.Render(r.Err.Error()))
			b.WriteString("\n")
		}
	}
	return b.String()
}
