// Package trace renders the kernel's status event stream for humans and
// for spreadsheets.
package trace

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/charmbracelet/lipgloss"

	"rmkernel/internal/sched"
)

var (
	kindStyle = lipgloss.NewStyle().Width(10).Align(lipgloss.Center).Bold(true)
	taskStyle = lipgloss.NewStyle().Width(8)

	kindColors = map[sched.StatusKind]lipgloss.Color{
		sched.StatusRelease:  lipgloss.Color("12"),
		sched.StatusDispatch: lipgloss.Color("10"),
		sched.StatusResume:   lipgloss.Color("14"),
		sched.StatusPreempt:  lipgloss.Color("11"),
		sched.StatusDone:     lipgloss.Color("8"),
		sched.StatusOverrun:  lipgloss.Color("9"),
		sched.StatusFault:    lipgloss.Color("9"),
	}
)

// Printer writes one line per status event and optionally a CSV log.
type Printer struct {
	out   io.Writer
	names []string
	ticks bool

	csvFile   *os.File
	csvWriter *csv.Writer
}

// NewPrinter returns a printer that labels slots with names. Tick events
// are skipped unless ShowTicks is set.
func NewPrinter(out io.Writer, names []string) *Printer {
	return &Printer{out: out, names: names}
}

func (p *Printer) ShowTicks(on bool) { p.ticks = on }

// EnableCSVLogging opens the given file path for CSV logging of events.
// Must be called before Drain.
func (p *Printer) EnableCSVLogging(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	p.csvFile = f
	p.csvWriter = csv.NewWriter(f)
	return p.writeHeader()
}

// LogCSV writes the CSV log to w instead of a file.
func (p *Printer) LogCSV(w io.Writer) error {
	p.csvWriter = csv.NewWriter(w)
	return p.writeHeader()
}

func (p *Printer) writeHeader() error {
	p.csvWriter.Write([]string{"tick", "cycle", "event", "slot", "task", "period", "state", "skipped"})
	p.csvWriter.Flush()
	return p.csvWriter.Error()
}

// Drain handles events until ch is closed, then closes the CSV log.
func (p *Printer) Drain(ch <-chan sched.StatusEvent) error {
	for ev := range ch {
		p.Handle(ev)
	}
	return p.Close()
}

func (p *Printer) Close() error {
	if p.csvWriter == nil {
		return nil
	}
	p.csvWriter.Flush()
	err := p.csvWriter.Error()
	if p.csvFile != nil {
		if cerr := p.csvFile.Close(); err == nil {
			err = cerr
		}
		p.csvFile = nil
	}
	return err
}

func (p *Printer) name(slot int) string {
	if slot < 0 {
		return "-"
	}
	if slot < len(p.names) {
		return p.names[slot]
	}
	return "#" + strconv.Itoa(slot)
}

// Handle renders a single event.
func (p *Printer) Handle(ev sched.StatusEvent) {
	if p.csvWriter != nil {
		p.csvWriter.Write([]string{
			strconv.FormatUint(ev.Tick, 10),
			strconv.FormatUint(ev.Cycle, 10),
			ev.Kind.String(),
			strconv.Itoa(ev.Slot),
			p.name(ev.Slot),
			strconv.FormatUint(uint64(ev.Period), 10),
			ev.State.String(),
			strconv.FormatUint(ev.Skipped, 10),
		})
	}

	// ticks are periodic noise
	if ev.Kind == sched.StatusTick && !p.ticks {
		return
	}

	kind := kindStyle
	if c, ok := kindColors[ev.Kind]; ok {
		kind = kind.Copy().Foreground(c)
	}

	msg := fmt.Sprintf("Tick: %07d Cycle: %09d [%s] => Task: %s",
		ev.Tick, ev.Cycle, kind.Render(ev.Kind.String()), taskStyle.Render(p.name(ev.Slot)))
	switch {
	case ev.Kind == sched.StatusOverrun:
		msg += fmt.Sprintf(" skipped=%d", ev.Skipped)
	case ev.Slot >= 0:
		msg += fmt.Sprintf(" period=%d state=%s", ev.Period, ev.State)
	}
	fmt.Fprintln(p.out, msg)
}
