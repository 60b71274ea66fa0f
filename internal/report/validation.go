package report

import (
	"fmt"
	"io"
	"strings"
)

// ValidationSummary compares source and destination counts after a run.
type ValidationSummary struct {
	SourceLabel string          `json:"sourceLabel"`
	TargetLabel string          `json:"targetLabel"`
	Rows        []ValidationRow `json:"rows"`
	Warnings    []string        `json:"warnings,omitempty"`
}

// ValidationRow is one entity's line in the summary.
type ValidationRow struct {
	Label       string `json:"label"`
	SourceCount int    `json:"sourceCount"`
	TargetCount int    `json:"targetCount"`
}

// Matches reports whether the row's two counts agree.
func (r ValidationRow) Matches() bool {
	return r.SourceCount == r.TargetCount
}

// AllMatch reports whether every entity's counts line up.
func (v *ValidationSummary) AllMatch() bool {
	for _, row := range v.Rows {
		if !row.Matches() {
			return false
		}
	}
	return true
}

// PrintSummary writes the post-run comparison table to w. The summary
// labels become the two count column headers.
func (v *ValidationSummary) PrintSummary(w io.Writer) {
	width := len("entity")
	for _, row := range v.Rows {
		if len(row.Label) > width {
			width = len(row.Label)
		}
	}

	fmt.Fprintf(w, "\n  Validation Summary\n\n")
	fmt.Fprintf(w, "  %-*s  %14s  %14s\n", width, "entity", v.SourceLabel, v.TargetLabel)
	fmt.Fprintf(w, "  %s\n", strings.Repeat("-", width+34))
	for _, row := range v.Rows {
		verdict := "ok"
		if !row.Matches() {
			verdict = "MISMATCH"
		}
		fmt.Fprintf(w, "  %-*s  %14d  %14d  %s\n",
			width, row.Label, row.SourceCount, row.TargetCount, verdict)
	}
	fmt.Fprintln(w)

	if v.AllMatch() {
		fmt.Fprintln(w, "  All counts match.")
		fmt.Fprintln(w)
	}
	printWarnings(w, v.Warnings)
}
