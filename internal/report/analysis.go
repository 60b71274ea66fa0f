package report

import (
	"fmt"
	"io"
)

// AnalysisReport summarizes what a run would migrate, shown before any
// write happens.
type AnalysisReport struct {
	SourceInfo string        `json:"sourceInfo"`
	TenantID   int64         `json:"tenantId,omitempty"`
	Entities   []EntityCount `json:"entities"`
	TotalRows  int           `json:"totalRows"`
	Warnings   []string      `json:"warnings,omitempty"`
}

// EntityCount is one entity's source row count.
type EntityCount struct {
	Name string `json:"name"`
	Rows int    `json:"rows"`
}

// PrintReport writes a formatted pre-flight report to w.
func (r *AnalysisReport) PrintReport(w io.Writer) {
	width := len("total")
	for _, e := range r.Entities {
		if len(e.Name) > width {
			width = len(e.Name)
		}
	}

	fmt.Fprintf(w, "\n  Migration Report\n\n")
	if r.SourceInfo != "" {
		fmt.Fprintf(w, "  Source: %s\n", r.SourceInfo)
	}
	if r.TenantID > 0 {
		fmt.Fprintf(w, "  Tenant: %d\n", r.TenantID)
	}
	fmt.Fprintln(w)

	for _, e := range r.Entities {
		fmt.Fprintf(w, "  %-*s %10d\n", width, e.Name, e.Rows)
	}
	fmt.Fprintf(w, "  %-*s %10d\n", width, "total", r.TotalRows)
	fmt.Fprintln(w)

	printWarnings(w, r.Warnings)
}

// printWarnings renders the trailing warnings block both reports share.
func printWarnings(w io.Writer, warnings []string) {
	if len(warnings) == 0 {
		return
	}
	fmt.Fprintln(w, "  Warnings:")
	for _, warn := range warnings {
		fmt.Fprintf(w, "    - %s\n", warn)
	}
	fmt.Fprintln(w)
}
