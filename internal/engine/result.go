package engine

import (
	"encoding/json"
	"time"
)

// StepState tracks where a step is in its lifecycle. A step restarts
// from the beginning; there is no partial-batch resume.
type StepState int

const (
	StatePending StepState = iota
	StateCounting
	StateStreaming
	StateResolving
	StateDone
	StateFailed
)

func (s StepState) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateCounting:
		return "counting"
	case StateStreaming:
		return "streaming"
	case StateResolving:
		return "resolving"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// MarshalJSON renders the state as its name, not its ordinal.
func (s StepState) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// BatchResult counts the outcomes of one batch. Counts only ever grow;
// they are folded into the step totals and never decremented.
type BatchResult struct {
	Inserted int
	Existing int
	Skipped  int
	Errored  int
}

// StepResult summarizes one entity step. Processed is the number of
// rows read from the cursor; every processed row lands in exactly one
// of the other four counts.
type StepResult struct {
	Step      string        `json:"step"`
	State     StepState     `json:"state"`
	Total     int           `json:"total"`
	Processed int           `json:"processed"`
	Inserted  int           `json:"inserted"`
	Existing  int           `json:"existing"`
	Skipped   int           `json:"skipped"`
	Errored   int           `json:"errored"`
	Errors    []string      `json:"errors,omitempty"`
	Elapsed   time.Duration `json:"elapsed"`
}

func (r *StepResult) add(b BatchResult) {
	r.Inserted += b.Inserted
	r.Existing += b.Existing
	r.Skipped += b.Skipped
	r.Errored += b.Errored
}

// Failed reports whether any row-level errors were recorded.
func (r *StepResult) Failed() bool {
	return r.State == StateFailed || r.Errored > 0
}
