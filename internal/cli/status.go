package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/relaydesk/rdm/internal/cli/ui"
	"github.com/relaydesk/rdm/internal/journal"
	"github.com/relaydesk/rdm/internal/report"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the latest migration run",
	Long: `Show the latest run recorded in the journal: when it started, whether
it finished, and how far each step got. Reads only the local journal
file; neither database is contacted.`,
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().String("config", "", "Path to rdm.toml config file")
	statusCmd.Flags().Int64("tenant", 0, "Show the latest run for one tenant (0 = unscoped runs)")
}

func runStatus(cmd *cobra.Command, args []string) error {
	jsonOut, _ := cmd.Flags().GetBool("json")

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	jnl, err := journal.Open(cfg.Run.JournalPath)
	if err != nil {
		return fmt.Errorf("opening journal %s: %w", cfg.Run.JournalPath, err)
	}
	defer jnl.Close()

	ctx := context.Background()
	run, err := jnl.LastRun(ctx, cfg.Run.TenantID)
	if err != nil {
		return fmt.Errorf("reading journal: %w", err)
	}
	if run == nil {
		if jsonOut {
			return json.NewEncoder(os.Stdout).Encode(map[string]any{"status": "none"})
		}
		if cfg.Run.TenantID > 0 {
			fmt.Printf("No runs recorded for tenant %d.\n", cfg.Run.TenantID)
		} else {
			fmt.Println("No runs recorded.")
		}
		return nil
	}

	recs, err := jnl.StepStatuses(ctx, run.ID)
	if err != nil {
		return fmt.Errorf("reading journal: %w", err)
	}

	if jsonOut {
		return json.NewEncoder(os.Stdout).Encode(map[string]any{
			"run":   run,
			"steps": recs,
		})
	}

	useColor := colorEnabled()
	printRunStatus(run, recs, useColor)
	return nil
}

func printRunStatus(run *journal.Run, recs []journal.StepRecord, useColor bool) {
	tenantLabel := "all tenants"
	if run.Tenant > 0 {
		tenantLabel = fmt.Sprintf("tenant %d", run.Tenant)
	}
	fmt.Println()
	fmt.Printf("  %s  %s\n", bold("Run "+run.ID, useColor), dim(tenantLabel, useColor))
	fmt.Printf("  %s %s\n", bold("Source: ", useColor), run.Fingerprint)
	fmt.Printf("  %s %s\n", bold("Started:", useColor), run.StartedAt.Format("2006-01-02 15:04:05 MST"))
	if run.Finished() {
		fmt.Printf("  %s %s\n", bold("Status: ", useColor),
			green("finished at "+run.FinishedAt.Format("2006-01-02 15:04:05 MST"), useColor))
	} else {
		fmt.Printf("  %s %s\n", bold("Status: ", useColor), yellow("in progress", useColor))
	}
	fmt.Println()

	if len(recs) == 0 {
		fmt.Println("  No steps recorded yet.")
		fmt.Println()
		return
	}

	fmt.Printf("  %-14s %-10s %10s %10s %10s %9s %9s\n",
		"step", "status", "processed", "written", "existing", "skipped", "errored")
	for _, rec := range recs {
		fmt.Printf("  %-14s %s %10d %10d %10d %9d %9d  %s\n",
			rec.Step, statusCell(rec.Status, useColor),
			rec.Counts.Processed, rec.Counts.Inserted, rec.Counts.Existing,
			rec.Counts.Skipped, rec.Counts.Errored,
			dim(stepElapsed(rec), useColor))
		if rec.Status == journal.StatusFailed && rec.Error != "" {
			fmt.Printf("    %s %s\n", red(ui.SymbolCross, useColor), rec.Error)
		}
	}
	fmt.Println()
}

// statusCell renders the status word colored but still %-10s aligned:
// the pad is applied before the invisible escape codes go on.
func statusCell(status string, useColor bool) string {
	padded := fmt.Sprintf("%-10s", status)
	switch status {
	case journal.StatusDone:
		return green(padded, useColor)
	case journal.StatusFailed:
		return red(padded, useColor)
	default:
		return yellow(padded, useColor)
	}
}

func stepElapsed(rec journal.StepRecord) string {
	if rec.FinishedAt == nil {
		return ""
	}
	return report.FormatDuration(rec.FinishedAt.Sub(rec.StartedAt))
}
