package main

import (
	"io"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/progress"
)

// newCopyProgress builds a byte-count progress bar for interactive terminals.
// Non-terminal output gets no callback; callers print a summary afterwards
// either way. The returned stop function must run once the copy finishes.
func newCopyProgress(out io.Writer, message string, total int64) (func(copied, total int64), func()) {
	if total <= 0 || !shouldColorize(out) {
		return nil, func() {}
	}

	pw := progress.NewWriter()
	pw.SetOutputWriter(out)
	pw.SetUpdateFrequency(100 * time.Millisecond)
	pw.Style().Visibility.ETA = false

	tracker := &progress.Tracker{
		Message: message,
		Total:   total,
		Units:   progress.UnitsBytes,
	}
	pw.AppendTracker(tracker)
	go pw.Render()

	update := func(copied, _ int64) {
		tracker.SetValue(copied)
	}
	stop := func() {
		tracker.MarkAsDone()
		pw.Stop()
		for pw.IsRenderInProgress() {
			time.Sleep(10 * time.Millisecond)
		}
	}
	return update, stop
}

func formatBytes(n int64) string {
	if n < 0 {
		n = 0
	}
	return humanize.IBytes(uint64(n))
}
