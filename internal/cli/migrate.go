package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/relaydesk/rdm/internal/cli/ui"
	"github.com/relaydesk/rdm/internal/engine"
	"github.com/relaydesk/rdm/internal/journal"
	"github.com/relaydesk/rdm/internal/report"
	"github.com/relaydesk/rdm/internal/steps"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Migrate legacy data into the v2 schema",
	Long: `Run the migration: read the legacy database in batches, reshape each
row, and write it to the v2 database. Steps run in dependency order
(companies before users, tickets before messages, and so on).

Progress is recorded in a local journal. An interrupted run resumes
after the last completed step; use --force to start over from the
first step. Rows that already exist in the target are never duplicated,
so re-running a step is safe.

Examples:
  rdm migrate --tenant 42
  rdm migrate --tenant 42 --dry-run
  rdm migrate --step tickets --force`,
	RunE: runMigrate,
}

func init() {
	migrateCmd.Flags().String("config", "", "Path to rdm.toml config file")
	migrateCmd.Flags().String("source-url", "", "Legacy database URL (overrides [source])")
	migrateCmd.Flags().String("target-url", "", "v2 database URL (overrides [target])")
	migrateCmd.Flags().Int64("tenant", 0, "Migrate a single tenant by id (0 = every tenant)")
	migrateCmd.Flags().String("step", "", "Run a single step by name")
	migrateCmd.Flags().Int("fetch-size", 0, "Rows per cursor fetch")
	migrateCmd.Flags().Int("write-size", 0, "Rows per insert batch")
	migrateCmd.Flags().Bool("dry-run", false, "Read and transform without writing; the journal is untouched")
	migrateCmd.Flags().Bool("force", false, "Start a fresh run instead of resuming")
}

// migrateSummary is the machine-readable outcome for --json.
type migrateSummary struct {
	RunID     string               `json:"runId,omitempty"`
	TenantID  int64                `json:"tenantId,omitempty"`
	DryRun    bool                 `json:"dryRun,omitempty"`
	Steps     []*engine.StepResult `json:"steps"`
	Processed int                  `json:"processed"`
	Inserted  int                  `json:"inserted"`
	Existing  int                  `json:"existing"`
	Skipped   int                  `json:"skipped"`
	Errored   int                  `json:"errored"`
	Elapsed   string               `json:"elapsed"`
}

func runMigrate(cmd *cobra.Command, args []string) error {
	jsonOut, _ := cmd.Flags().GetBool("json")
	dryRun, _ := cmd.Flags().GetBool("dry-run")
	force, _ := cmd.Flags().GetBool("force")
	stepName, _ := cmd.Flags().GetString("step")

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger := newLogger(cfg.Logging.Level, cfg.Logging.Format)

	stepCfg := steps.Config{AssignDefaultChannel: cfg.Run.AssignDefaultChannel}
	toRun := steps.All(stepCfg)
	if stepName != "" {
		st, err := steps.ByName(stepCfg, stepName)
		if err != nil {
			return err
		}
		toRun = []engine.Step{st}
	}

	useColor := colorEnabled()
	if !jsonOut {
		tenantLabel := "all tenants"
		if cfg.Run.TenantID > 0 {
			tenantLabel = fmt.Sprintf("tenant %d", cfg.Run.TenantID)
		}
		mode := ""
		if dryRun {
			mode = dim("  (dry run: no writes)", useColor)
		}
		fmt.Fprintf(os.Stderr, "\n  %s\n", boldCyan("Relay Desk Migrator "+buildVersion, useColor))
		fmt.Fprintf(os.Stderr, "  %s %s %s  %s%s\n\n",
			cyan(cfg.Source.Addr(), useColor), ui.SymbolArrow, cyan(cfg.Target.Addr(), useColor),
			tenantLabel, mode)
	}

	setup := newSetupSteps(!jsonOut)

	jnl, err := journal.Open(cfg.Run.JournalPath)
	if err != nil {
		return fmt.Errorf("opening journal %s: %w", cfg.Run.JournalPath, err)
	}
	defer jnl.Close()

	ctx := context.Background()

	setup.start("Connecting to source " + cfg.Source.Addr())
	source, err := connectDB(ctx, "source", cfg.Source)
	if err != nil {
		setup.fail()
		return err
	}
	defer source.Close(ctx)
	setup.done()

	setup.start("Connecting to target " + cfg.Target.Addr())
	target, err := connectDB(ctx, "target", cfg.Target)
	if err != nil {
		setup.fail()
		return err
	}
	defer target.Close(ctx)
	setup.done()

	var progress report.StepReporter = report.NopReporter{}
	if !jsonOut {
		progress = report.NewCLIReporter(os.Stderr)
	}
	eng, err := engine.New(source, target, engine.Options{
		FetchSize: cfg.Run.FetchSize,
		WriteSize: cfg.Run.WriteSize,
		TenantID:  cfg.Run.TenantID,
		DryRun:    dryRun,
		Logger:    logger,
		Progress:  progress,
	})
	if err != nil {
		return err
	}

	// A dry run never touches the journal: it is a preview, and leaving
	// half-recorded runs behind would confuse the next real one.
	fingerprint := cfg.Fingerprint()
	var runID string
	doneSteps := make(map[string]bool)
	if !dryRun {
		last, err := jnl.LastRun(ctx, cfg.Run.TenantID)
		if err != nil {
			return fmt.Errorf("reading journal: %w", err)
		}
		resume := last != nil && !last.Finished() && last.Fingerprint == fingerprint && !force
		if resume {
			runID = last.ID
			doneSteps, err = jnl.DoneSteps(ctx, runID)
			if err != nil {
				return fmt.Errorf("reading journal: %w", err)
			}
			if !jsonOut && len(doneSteps) > 0 {
				fmt.Fprintf(os.Stderr, "  Resuming run %s: %d of %d steps already done.\n\n",
					runID, len(doneSteps), len(steps.Names()))
			}
		} else {
			if last != nil && !last.Finished() && last.Fingerprint != fingerprint && !force {
				logger.Warn("unfinished run in journal belongs to a different source, starting fresh",
					"recorded", last.Fingerprint, "current", fingerprint)
			}
			run, err := jnl.BeginRun(ctx, cfg.Run.TenantID, fingerprint)
			if err != nil {
				return fmt.Errorf("starting journal run: %w", err)
			}
			runID = run.ID
		}
	}

	// Identifier maps normally fill as steps run. When a producing step
	// was skipped (resume) or excluded (--step), seed its map from rows
	// already in the target before the consumer runs.
	loaded := make(map[string]bool)
	ensureMap := func(name string) error {
		if loaded[name] {
			return nil
		}
		st, err := steps.ByName(stepCfg, name)
		if err != nil {
			return err
		}
		n, err := eng.LoadMap(ctx, st)
		if err != nil {
			return err
		}
		logger.Debug("seeded id map", "step", name, "entries", n)
		loaded[name] = true
		return nil
	}

	start := time.Now()
	var results []*engine.StepResult
	for _, st := range toRun {
		for _, need := range st.Needs {
			if err := ensureMap(need); err != nil {
				return fmt.Errorf("loading maps for %s: %w", st.Name, err)
			}
		}
		if doneSteps[st.Name] {
			if !jsonOut {
				fmt.Fprintf(os.Stderr, "  [%d/%d] %-12s already done, skipped\n", st.Index, st.Total, st.Name)
			}
			continue
		}

		if !dryRun {
			if err := jnl.StartStep(ctx, runID, st.Name); err != nil {
				return fmt.Errorf("recording step start: %w", err)
			}
		}
		res, err := eng.RunStep(ctx, st)
		if res != nil {
			results = append(results, res)
		}
		if err != nil {
			if !dryRun {
				if jerr := jnl.FailStep(ctx, runID, st.Name, stepCounts(res), err.Error()); jerr != nil {
					logger.Warn("recording step failure", "step", st.Name, "error", jerr)
				}
			}
			return err
		}
		if !dryRun {
			if err := jnl.CompleteStep(ctx, runID, st.Name, stepCounts(res)); err != nil {
				return fmt.Errorf("recording step completion: %w", err)
			}
		}
		loaded[st.Name] = true
		if !jsonOut {
			printRowErrors(os.Stderr, res, useColor)
		}
	}

	// The run closes only when every step of the full sequence is done,
	// so --step invocations keep the run open until the sequence is
	// complete.
	if !dryRun {
		done, err := jnl.DoneSteps(ctx, runID)
		if err != nil {
			return fmt.Errorf("reading journal: %w", err)
		}
		allDone := true
		for _, name := range steps.Names() {
			if !done[name] {
				allDone = false
				break
			}
		}
		if allDone {
			if err := jnl.FinishRun(ctx, runID); err != nil {
				return fmt.Errorf("closing journal run: %w", err)
			}
		}
	}

	summary := migrateSummary{
		RunID:    runID,
		TenantID: cfg.Run.TenantID,
		DryRun:   dryRun,
		Steps:    results,
		Elapsed:  report.FormatDuration(time.Since(start)),
	}
	for _, res := range results {
		summary.Processed += res.Processed
		summary.Inserted += res.Inserted
		summary.Existing += res.Existing
		summary.Skipped += res.Skipped
		summary.Errored += res.Errored
	}

	if jsonOut {
		return json.NewEncoder(os.Stdout).Encode(summary)
	}

	fmt.Fprintln(os.Stderr)
	if dryRun {
		fmt.Fprintf(os.Stderr, "  Dry run complete in %s: %d rows read, %d would be written, %d already migrated, %d skipped, %d errored.\n\n",
			summary.Elapsed, summary.Processed, summary.Inserted, summary.Existing, summary.Skipped, summary.Errored)
		return nil
	}
	fmt.Fprintf(os.Stderr, "  %s %s\n", green(ui.SymbolCheck, useColor),
		boldGreen(fmt.Sprintf("Migration complete in %s", summary.Elapsed), useColor))
	fmt.Fprintf(os.Stderr, "  %d rows read, %d written, %d already migrated, %d skipped, %d errored.\n",
		summary.Processed, summary.Inserted, summary.Existing, summary.Skipped, summary.Errored)
	fmt.Fprintf(os.Stderr, "  %s\n\n", dim("Verify with: rdm validate", useColor))
	return nil
}

// stepCounts maps an engine result onto the journal's counters.
func stepCounts(res *engine.StepResult) journal.Counts {
	if res == nil {
		return journal.Counts{}
	}
	return journal.Counts{
		Processed: res.Processed,
		Inserted:  res.Inserted,
		Existing:  res.Existing,
		Skipped:   res.Skipped,
		Errored:   res.Errored,
	}
}

// maxShownErrors caps per-step row errors in terminal output; the full
// list is always available with --json.
const maxShownErrors = 10

func printRowErrors(w io.Writer, res *engine.StepResult, useColor bool) {
	if res == nil || len(res.Errors) == 0 {
		return
	}
	shown := res.Errors
	if len(shown) > maxShownErrors {
		shown = shown[:maxShownErrors]
	}
	for _, msg := range shown {
		fmt.Fprintf(w, "    %s %s\n", yellow(ui.SymbolWarning, useColor), msg)
	}
	if extra := len(res.Errors) - len(shown); extra > 0 {
		fmt.Fprintf(w, "    ... and %d more row errors\n", extra)
	}
}

// setupSteps animates the pre-flight phase the way the migration steps
// themselves are reported: one line per action, check or cross.
type setupSteps struct {
	sp     *ui.StepSpinner
	active bool
}

func newSetupSteps(active bool) *setupSteps {
	return &setupSteps{
		sp:     ui.NewStepSpinner(os.Stderr, !ui.ColorEnabled()),
		active: active,
	}
}

func (s *setupSteps) start(msg string) {
	if s.active {
		s.sp.Start(msg)
	}
}

func (s *setupSteps) done() {
	if s.active {
		s.sp.Done()
	}
}

func (s *setupSteps) fail() {
	if s.active {
		s.sp.Fail()
	}
}
