package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/relaydesk/rdm/internal/engine"
	"github.com/relaydesk/rdm/internal/steps"
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Inspect the legacy database before migrating",
	Long: `Count what a migration would read and flag data that will not carry
over cleanly: rows without an owning tenant, contacts sharing a phone
number, messages whose ticket is gone, and similar. Read-only; the
target database is never touched.

Examples:
  rdm analyze
  rdm analyze --tenant 42 --json`,
	RunE: runAnalyze,
}

func init() {
	analyzeCmd.Flags().String("config", "", "Path to rdm.toml config file")
	analyzeCmd.Flags().String("source-url", "", "Legacy database URL (overrides [source])")
	analyzeCmd.Flags().Int64("tenant", 0, "Analyze a single tenant by id (0 = every tenant)")
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	jsonOut, _ := cmd.Flags().GetBool("json")

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	ctx := context.Background()
	source, err := connectDB(ctx, "source", cfg.Source)
	if err != nil {
		return err
	}
	defer source.Close(ctx)

	all := steps.All(steps.Config{AssignDefaultChannel: cfg.Run.AssignDefaultChannel})
	rep, err := engine.Analyze(ctx, source, all, cfg.Run.TenantID)
	if err != nil {
		return fmt.Errorf("analyzing source: %w", err)
	}
	rep.SourceInfo = cfg.Source.Addr()

	if jsonOut {
		return json.NewEncoder(os.Stdout).Encode(rep)
	}
	rep.PrintReport(os.Stdout)
	return nil
}
