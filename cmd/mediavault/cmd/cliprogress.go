package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/mattn/go-isatty"

	"github.com/mediavault/mediavault/internal/ingest"
)

const progressInterval = 2 * time.Second

// CLIProgress prints index progress on a single, rewritten terminal line.
type CLIProgress struct {
	out       io.Writer
	startTime time.Time
	lastPrint time.Time
}

// NewCLIProgress writes to out.
func NewCLIProgress(out io.Writer) *CLIProgress {
	return &CLIProgress{out: out}
}

// progressSink picks the terminal line when stdout is a terminal and
// structured log lines otherwise.
func progressSink() ingest.ProgressSink {
	if isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd()) {
		return NewCLIProgress(os.Stdout)
	}
	return ingest.LogSink{Logger: logger}
}

// Notify implements ingest.ProgressSink.
func (p *CLIProgress) Notify(_ context.Context, snap ingest.Snapshot) error {
	now := time.Now()
	if p.startTime.IsZero() {
		p.startTime = now
		p.lastPrint = now
	}
	// Throttle output to every 2 seconds
	if !snap.Final && now.Sub(p.lastPrint) < progressInterval {
		return nil
	}
	p.lastPrint = now

	c := snap.Counters
	rate := 0.0
	if elapsed := now.Sub(p.startTime); elapsed.Seconds() >= 1 {
		rate = float64(snap.Processed) / elapsed.Seconds()
	}
	fmt.Fprintf(p.out, "\r  Message %d/%d | Saved: %d | Duplicates: %d | Skipped: %d | Errors: %d | Rate: %.1f/s | Elapsed: %s    ",
		snap.Cursor, snap.Last, c.Saved, c.Duplicate, c.Deleted+c.NonMedia+c.Unsupported, c.Error,
		rate, formatDuration(snap.Elapsed))
	if snap.Final {
		fmt.Fprintln(p.out)
	}
	return nil
}

// formatDuration formats a duration as "Xm Ys" or "Xh Ym" for readability.
func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second

	if h > 0 {
		return fmt.Sprintf("%dh %dm", h, m)
	}
	if m > 0 {
		return fmt.Sprintf("%dm %ds", m, s)
	}
	return fmt.Sprintf("%ds", s)
}
