// Package report carries the migrator's user-facing reporting: live
// step progress, the pre-flight analysis, and the post-run validation
// summary.
package report

import (
	"fmt"
	"io"
	"sync"
	"time"
)

// Step identifies a step for reporting purposes ("3 of 9").
type Step struct {
	Name  string
	Index int // 1-based
	Total int
}

func (s Step) tag() string {
	return fmt.Sprintf("[%d/%d] %-12s", s.Index, s.Total, s.Name)
}

// StepReporter receives progress updates from the engine.
type StepReporter interface {
	// StartStep is called once the step's source rows have been counted.
	StartStep(step Step, totalRows int)
	// Progress is called after each batch.
	Progress(step Step, processed, totalRows int)
	// CompleteStep is called when the step finishes.
	CompleteStep(step Step, processed int, elapsed time.Duration)
	// Warn reports a non-fatal condition.
	Warn(msg string)
}

// CLIReporter prints progress to a terminal writer, overwriting the
// current line as batches complete.
type CLIReporter struct {
	w  io.Writer
	mu sync.Mutex
}

// NewCLIReporter creates a reporter that writes to w.
func NewCLIReporter(w io.Writer) *CLIReporter {
	return &CLIReporter{w: w}
}

func (r *CLIReporter) StartStep(step Step, totalRows int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintf(r.w, "  %s", step.tag())
}

func (r *CLIReporter) Progress(step Step, processed, totalRows int) {
	if totalRows <= 0 {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintf(r.w, "\r  %s %d/%d (%d%%)",
		step.tag(), processed, totalRows, processed*100/totalRows)
}

func (r *CLIReporter) CompleteStep(step Step, processed int, elapsed time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	label := fmt.Sprintf("%d rows", processed)
	if processed == 0 {
		label = "nothing to do"
	}
	fmt.Fprintf(r.w, "\r  %s %-18s done  (%s)\n", step.tag(), label, FormatDuration(elapsed))
}

func (r *CLIReporter) Warn(msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintf(r.w, "  Warning: %s\n", msg)
}

// NopReporter discards all progress updates (tests and --json mode).
type NopReporter struct{}

func (NopReporter) StartStep(Step, int)                   {}
func (NopReporter) Progress(Step, int, int)               {}
func (NopReporter) CompleteStep(Step, int, time.Duration) {}
func (NopReporter) Warn(string)                           {}

// FormatDuration renders elapsed time the way the summaries print it.
func FormatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	return fmt.Sprintf("%dm%02ds", int(d.Minutes()), int(d.Seconds())%60)
}
