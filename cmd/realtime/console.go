package realtime

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/tphakala/fretlab/internal/tuner"
	"github.com/tphakala/fretlab/internal/tuning"
)

// console prints a line whenever the displayed reading changes.
type console struct {
	out  io.Writer
	last string
}

func newConsole(out io.Writer) *console {
	return &console{out: out}
}

// Run prints updates until ctx ends or updates is closed.
func (c *console) Run(ctx context.Context, updates <-chan tuner.Snapshot) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case snap, ok := <-updates:
			if !ok {
				return nil
			}
			c.print(snap)
		}
	}
}

func (c *console) print(snap tuner.Snapshot) {
	line := formatSnapshot(snap)
	if line == c.last {
		return
	}
	c.last = line
	fmt.Fprintln(c.out, line)
}

func formatSnapshot(snap tuner.Snapshot) string {
	switch snap.State {
	case tuner.StateError:
		return "error: " + snap.Error
	case tuner.StateIdle:
		if snap.Starting {
			return "opening audio device..."
		}
		return "idle"
	}

	reading := tuning.Read(snap.NoteDetails)
	if reading.Note == nil {
		return fmt.Sprintf("%-4s %s", "--", meter(reading.Bars))
	}

	line := fmt.Sprintf("%-4s %s %+5.1f cents %7.2f Hz  %s",
		reading.Note.Name(), meter(reading.Bars), reading.Note.Detune, reading.Note.Frequency, reading.Status)
	if reading.Target != nil {
		line += fmt.Sprintf("  [string %d]", reading.Target.String)
	}
	return line
}

// meter renders the bar row, marking the active bar.
func meter(bars []tuning.Bar) string {
	var b strings.Builder
	b.WriteByte('[')
	for _, bar := range bars {
		switch {
		case bar.Active:
			b.WriteByte('|')
		case bar.Cents == 0:
			b.WriteByte('+')
		default:
			b.WriteByte('-')
		}
	}
	b.WriteByte(']')
	return b.String()
}
