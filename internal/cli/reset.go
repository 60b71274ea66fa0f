package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/relaydesk/rdm/internal/journal"
)

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Clear recorded migration progress",
	Long: `Clear the journal so the next migrate starts from the first step.
With --step, forget only that step's records so it re-runs on resume.

Only bookkeeping is removed. Rows already written to the target stay
where they are and are recognized again on the next run, so a reset
never duplicates data.`,
	RunE: runReset,
}

func init() {
	resetCmd.Flags().String("config", "", "Path to rdm.toml config file")
	resetCmd.Flags().String("step", "", "Forget a single step instead of the whole journal")
	resetCmd.Flags().BoolP("yes", "y", false, "Skip confirmation prompt")
}

func runReset(cmd *cobra.Command, args []string) error {
	jsonOut, _ := cmd.Flags().GetBool("json")
	stepName, _ := cmd.Flags().GetString("step")
	yes, _ := cmd.Flags().GetBool("yes")

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

	if stepName != "" {
		if err := jnl.ResetStep(ctx, stepName); err != nil {
			return err
		}
		if jsonOut {
			return json.NewEncoder(os.Stdout).Encode(map[string]any{"status": "reset", "step": stepName})
		}
		fmt.Printf("Cleared journal records for step %s. It will re-run on the next migrate.\n", stepName)
		return nil
	}

	if !yes && !jsonOut {
		fmt.Printf("This clears all recorded progress in %s. The next migrate starts from the first step.\n", cfg.Run.JournalPath)
		fmt.Print("Continue? [y/N] ")
		reader := bufio.NewReader(os.Stdin)
		answer, _ := reader.ReadString('\n')
		answer = strings.TrimSpace(strings.ToLower(answer))
		if answer != "y" && answer != "yes" {
			fmt.Println("Aborted.")
			return nil
		}
	}

	if err := jnl.Reset(ctx); err != nil {
		return fmt.Errorf("clearing journal: %w", err)
	}
	if jsonOut {
		return json.NewEncoder(os.Stdout).Encode(map[string]any{"status": "reset"})
	}
	fmt.Println("Journal cleared.")
	return nil
}
