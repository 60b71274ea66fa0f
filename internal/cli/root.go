package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/jackc/pgx/v5"
	"github.com/spf13/cobra"

	"github.com/relaydesk/rdm/internal/config"
)

var (
	buildVersion = "dev"
	buildCommit  = "none"
	buildDate    = "unknown"
)

// SetVersion is called from main to inject build-time version info.
func SetVersion(version, commit, date string) {
	buildVersion = version
	buildCommit = commit
	buildDate = date
}

var rootCmd = &cobra.Command{
	Use:   "rdm",
	Short: "Migrate Relay Desk v1 data into the v2 schema",
	Long: `rdm copies one Relay Desk v1 installation into the v2 schema:
companies, users, departments, channels, contacts, tickets, messages,
campaigns, and tasks, migrated in dependency order, batch by batch.

Inspect first, then run:
  rdm analyze --tenant 42
  rdm migrate --tenant 42

Re-running is safe: migrated rows are recognized by their legacy id, and
an interrupted run resumes after the last completed step.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().Bool("json", false, "Output in JSON format")

	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(resetCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)

	initHelp()
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// overrideFlags are the command-line overrides config.Load understands.
// Only flags the user actually set are forwarded, so a flag's zero
// default never clobbers file or environment settings.
var overrideFlags = []string{"source-url", "target-url", "tenant", "fetch-size", "write-size", "journal"}

// loadConfig resolves the configuration for a command: defaults, then
// the TOML file, then RDM_* environment variables, then set flags.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	configPath, _ := cmd.Flags().GetString("config")

	flags := make(map[string]string)
	for _, name := range overrideFlags {
		if f := cmd.Flags().Lookup(name); f != nil && f.Changed {
			flags[name] = f.Value.String()
		}
	}

	cfg, err := config.Load(configPath, flags)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return cfg, nil
}

// newLogger builds the diagnostic logger on stderr, keeping stdout
// clean for --json output.
func newLogger(level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseSlogLevel(level)}
	if format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

func parseSlogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// connectDB opens one PostgreSQL connection, labeling errors with the
// side ("source" or "target") so a failure names the database at fault.
func connectDB(ctx context.Context, side string, db config.DBConfig) (*pgx.Conn, error) {
	conn, err := pgx.Connect(ctx, db.ConnURL())
	if err != nil {
		return nil, fmt.Errorf("connecting to %s %s: %w", side, db.Addr(), err)
	}
	return conn, nil
}
