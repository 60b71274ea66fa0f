package ui

import (
	"fmt"
	"io"
	"time"

	"github.com/briandowns/spinner"
)

const spinnerInterval = 80 * time.Millisecond

// StepSpinner animates the sequential setup steps a command walks
// through before real work starts (connecting, preparing the journal).
// On a terminal it renders a braille spinner; elsewhere it prints plain
// lines so piped and CI output stays clean.
type StepSpinner struct {
	w     io.Writer
	plain bool
	msg   string
	s     *spinner.Spinner
}

// NewStepSpinner creates a spinner writing to w. plain disables the
// animation for non-interactive output.
func NewStepSpinner(w io.Writer, plain bool) *StepSpinner {
	ss := &StepSpinner{w: w, plain: plain}
	if !plain {
		// CharSets[14] is the braille dot cycle.
		ss.s = spinner.New(spinner.CharSets[14], spinnerInterval, spinner.WithWriter(w))
		ss.s.Prefix = "  "
	}
	return ss
}

// Start begins a named step.
func (ss *StepSpinner) Start(msg string) {
	ss.msg = msg
	if ss.plain {
		fmt.Fprintf(ss.w, "  %s", msg)
		return
	}
	ss.s.Suffix = " " + msg
	ss.s.Start()
}

// Done ends the current step with a green check.
func (ss *StepSpinner) Done() {
	ss.finish(StyleSuccess.Render(SymbolCheck))
}

// Fail ends the current step with a red cross.
func (ss *StepSpinner) Fail() {
	ss.finish(StyleError.Render(SymbolCross))
}

func (ss *StepSpinner) finish(symbol string) {
	if ss.plain {
		fmt.Fprintf(ss.w, " %s\n", symbol)
		return
	}
	ss.s.Stop()
	fmt.Fprintf(ss.w, "\r  %s %s\n", ss.msg, symbol)
}

// Stop halts the animation without a verdict, for teardown when a run
// is interrupted mid-step.
func (ss *StepSpinner) Stop() {
	if ss.s != nil {
		ss.s.Stop()
	}
}
