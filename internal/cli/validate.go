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

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Compare source and target row counts",
	Long: `Count rows per entity on both sides and compare. Target counts cover
only migrated rows (those carrying a legacy id), so data created
directly in v2 does not skew the numbers. Exits non-zero when any
entity mismatches.

Examples:
  rdm validate
  rdm validate --tenant 42`,
	RunE: runValidate,
}

func init() {
	validateCmd.Flags().String("config", "", "Path to rdm.toml config file")
	validateCmd.Flags().String("source-url", "", "Legacy database URL (overrides [source])")
	validateCmd.Flags().String("target-url", "", "v2 database URL (overrides [target])")
	validateCmd.Flags().Int64("tenant", 0, "Validate a single tenant by id (0 = every tenant)")
}

func runValidate(cmd *cobra.Command, args []string) error {
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
	target, err := connectDB(ctx, "target", cfg.Target)
	if err != nil {
		return err
	}
	defer target.Close(ctx)

	all := steps.All(steps.Config{AssignDefaultChannel: cfg.Run.AssignDefaultChannel})
	sum, err := engine.Validate(ctx, source, target, all, cfg.Run.TenantID)
	if err != nil {
		return fmt.Errorf("validating: %w", err)
	}

	if jsonOut {
		if err := json.NewEncoder(os.Stdout).Encode(sum); err != nil {
			return err
		}
	} else {
		sum.PrintSummary(os.Stdout)
	}

	if !sum.AllMatch() {
		return fmt.Errorf("row counts do not match between source and target")
	}
	return nil
}
