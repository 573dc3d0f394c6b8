package trace

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Row is one task's line in the end-of-run summary.
type Row struct {
	Name        string
	Period      uint32
	Releases    uint64
	Dispatches  uint64
	Completions uint64
	Preemptions uint64
	Overruns    uint64
}

var (
	headStyle = lipgloss.NewStyle().Bold(true).Underline(true)
	cellStyle = lipgloss.NewStyle().Width(12).Align(lipgloss.Right)
	nameStyle = lipgloss.NewStyle().Width(10)
)

// WriteSummary prints per-task counters, one row per slot in priority
// order.
func WriteSummary(w io.Writer, ticks, cycles uint64, rows []Row) {
	fmt.Fprintln(w, headStyle.Render(fmt.Sprintf("%d ticks, %d cycles", ticks, cycles)))

	cols := []string{"period", "released", "dispatched", "completed", "preempted", "overruns"}
	var b strings.Builder
	b.WriteString(nameStyle.Render("task"))
	for _, c := range cols {
		b.WriteString(cellStyle.Render(c))
	}
	fmt.Fprintln(w, b.String())

	for _, r := range rows {
		b.Reset()
		b.WriteString(nameStyle.Render(r.Name))
		for _, v := range []uint64{uint64(r.Period), r.Releases, r.Dispatches, r.Completions, r.Preemptions, r.Overruns} {
			b.WriteString(cellStyle.Render(fmt.Sprint(v)))
		}
		fmt.Fprintln(w, b.String())
	}
}
