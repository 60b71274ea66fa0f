package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"

	"github.com/relaydesk/rdm/internal/engine"
	"github.com/relaydesk/rdm/internal/testutil"
)

// resetJSONFlag clears the persistent --json flag between runs; cobra
// keeps flag values across Execute calls.
func resetJSONFlag() {
	rootCmd.PersistentFlags().Set("json", "false")
}

func captureStdout(t *testing.T, fn func()) string {
	t.Helper()
	r, w, err := os.Pipe()
	testutil.NoError(t, err)
	orig := os.Stdout
	os.Stdout = w
	defer func() { os.Stdout = orig }()

	fn()

	w.Close()
	data, err := io.ReadAll(r)
	r.Close()
	testutil.NoError(t, err)
	return string(data)
}

// execute runs the root command with the given args and returns its
// captured stdout along with the command error.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	resetJSONFlag()
	var runErr error
	out := captureStdout(t, func() {
		rootCmd.SetArgs(args)
		runErr = rootCmd.Execute()
	})
	return out, runErr
}

func decodeJSON(t *testing.T, out string) map[string]any {
	t.Helper()
	var m map[string]any
	if err := json.Unmarshal([]byte(out), &m); err != nil {
		t.Fatalf("output is not valid JSON: %v\n%s", err, out)
	}
	return m
}

func TestSetVersion(t *testing.T) {
	SetVersion("1.2.3", "abc123", "2026-01-01")
	defer SetVersion("dev", "none", "unknown")

	testutil.Equal(t, "1.2.3", buildVersion)
	testutil.Equal(t, "abc123", buildCommit)
	testutil.Equal(t, "2026-01-01", buildDate)
}

func TestVersionCommand(t *testing.T) {
	SetVersion("0.1.0", "deadbeef", "2026-02-07")
	defer SetVersion("dev", "none", "unknown")

	out, err := execute(t, "version")
	testutil.NoError(t, err)
	testutil.Contains(t, out, "0.1.0")
	testutil.Contains(t, out, "deadbeef")
}

func TestVersionCommandJSON(t *testing.T) {
	SetVersion("1.0.0", "abc123", "2026-02-09")
	defer SetVersion("dev", "none", "unknown")

	out, err := execute(t, "version", "--json")
	testutil.NoError(t, err)
	testutil.Equal(t, "1.0.0", decodeJSON(t, out)["version"].(string))
}

func TestRootRegistersAllCommands(t *testing.T) {
	names := make(map[string]bool)
	for _, cmd := range rootCmd.Commands() {
		names[cmd.Name()] = true
	}
	for _, want := range []string{"analyze", "migrate", "validate", "status", "reset", "config", "version"} {
		testutil.True(t, names[want], "command %s is not registered", want)
	}
}

func TestHelpDoesNotError(t *testing.T) {
	_, err := execute(t, "--help")
	testutil.NoError(t, err)
}

func TestConfigCommandProducesValidTOML(t *testing.T) {
	t.Chdir(t.TempDir())

	out, err := execute(t, "config")
	testutil.NoError(t, err)

	var parsed map[string]any
	if err := toml.Unmarshal([]byte(out), &parsed); err != nil {
		t.Fatalf("config output is not valid TOML: %v\n%s", err, out)
	}
	for _, section := range []string{"source", "target", "run"} {
		_, ok := parsed[section]
		testutil.True(t, ok, "TOML output is missing the [%s] section", section)
	}
}

func TestConfigCommandJSON(t *testing.T) {
	t.Chdir(t.TempDir())

	out, err := execute(t, "config", "--json")
	testutil.NoError(t, err)

	_, ok := decodeJSON(t, out)["Source"]
	testutil.True(t, ok, "JSON config output lacks the Source key")
}

func TestConfigSubcommands(t *testing.T) {
	var cfgCmd *cobra.Command
	for _, cmd := range rootCmd.Commands() {
		if cmd.Name() == "config" {
			cfgCmd = cmd
		}
	}
	testutil.NotNil(t, cfgCmd)

	subs := make(map[string]bool)
	for _, sub := range cfgCmd.Commands() {
		subs[sub.Name()] = true
	}
	for _, want := range []string{"init", "get", "set"} {
		testutil.True(t, subs[want], "config is missing the %s subcommand", want)
	}
}

func TestConfigGetRequiresArg(t *testing.T) {
	_, err := execute(t, "config", "get")
	testutil.NotNil(t, err)
}

func TestConfigGetDefaults(t *testing.T) {
	t.Chdir(t.TempDir()) // no rdm.toml, resolves pure defaults

	tests := []struct {
		key  string
		want string
	}{
		{"source.host", "localhost"},
		{"source.dbname", "helpdesk_legacy"},
		{"target.dbname", "helpdesk_v2"},
		{"run.fetch_size", "500"},
		{"run.write_size", "500"},
		{"run.journal_path", "rdm.db"},
		{"logging.level", "info"},
	}
	for _, tt := range tests {
		out, err := execute(t, "config", "get", tt.key)
		testutil.NoError(t, err)
		testutil.Contains(t, out, tt.want)
	}
}

func TestConfigSetRequiresArgs(t *testing.T) {
	_, err := execute(t, "config", "set")
	testutil.NotNil(t, err)

	_, err = execute(t, "config", "set", "run.fetch_size")
	testutil.NotNil(t, err)
}

func TestConfigSetUnknownKey(t *testing.T) {
	t.Chdir(t.TempDir())

	_, err := execute(t, "config", "set", "nonexistent.key", "value")
	testutil.ErrorContains(t, err, "unknown configuration key")
}

func TestConfigSetAndGet(t *testing.T) {
	t.Chdir(t.TempDir())

	out, err := execute(t, "config", "set", "run.fetch_size", "1000")
	testutil.NoError(t, err)
	testutil.Contains(t, out, "run.fetch_size = 1000")

	out, err = execute(t, "config", "get", "run.fetch_size")
	testutil.NoError(t, err)
	testutil.Contains(t, out, "1000")
}

func TestConfigSetCreatesFile(t *testing.T) {
	t.Chdir(t.TempDir())

	_, statErr := os.Stat("rdm.toml")
	testutil.True(t, os.IsNotExist(statErr), "rdm.toml must not exist before set")

	_, err := execute(t, "config", "set", "source.host", "legacy-db.internal")
	testutil.NoError(t, err)

	raw, err := os.ReadFile("rdm.toml")
	testutil.NoError(t, err)
	testutil.Contains(t, string(raw), "legacy-db.internal")
}

func TestConfigSetStoresIntUnquoted(t *testing.T) {
	t.Chdir(t.TempDir())

	_, err := execute(t, "config", "set", "run.tenant_id", "42")
	testutil.NoError(t, err)

	raw, err := os.ReadFile("rdm.toml")
	testutil.NoError(t, err)
	testutil.Contains(t, string(raw), "42")
	testutil.False(t, strings.Contains(string(raw), `"42"`),
		"tenant_id belongs in the file as a TOML integer")
}

func TestConfigInitCreatesFile(t *testing.T) {
	t.Chdir(t.TempDir())

	out, err := execute(t, "config", "init")
	testutil.NoError(t, err)
	testutil.Contains(t, out, "Wrote rdm.toml")

	raw, err := os.ReadFile("rdm.toml")
	testutil.NoError(t, err)
	var parsed map[string]any
	testutil.NoError(t, toml.Unmarshal(raw, &parsed))

	// A second init must refuse to clobber the file.
	_, err = execute(t, "config", "init")
	testutil.ErrorContains(t, err, "already exists")
}

func TestCommandFlagTypes(t *testing.T) {
	tests := []struct {
		cmd  *cobra.Command
		flag string
		typ  string
	}{
		{migrateCmd, "config", "string"},
		{migrateCmd, "source-url", "string"},
		{migrateCmd, "target-url", "string"},
		{migrateCmd, "step", "string"},
		{migrateCmd, "tenant", "int64"},
		{migrateCmd, "fetch-size", "int"},
		{migrateCmd, "write-size", "int"},
		{migrateCmd, "dry-run", "bool"},
		{migrateCmd, "force", "bool"},
		{validateCmd, "config", "string"},
		{validateCmd, "source-url", "string"},
		{validateCmd, "target-url", "string"},
		{validateCmd, "tenant", "int64"},
		{analyzeCmd, "config", "string"},
		{analyzeCmd, "source-url", "string"},
		{analyzeCmd, "tenant", "int64"},
	}
	for _, tt := range tests {
		t.Run(tt.cmd.Name()+"/"+tt.flag, func(t *testing.T) {
			f := tt.cmd.Flags().Lookup(tt.flag)
			testutil.NotNil(t, f)
			testutil.Equal(t, tt.typ, f.Value.Type())
		})
	}
}

func TestMigrateUnknownStep(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Cleanup(func() { migrateCmd.Flags().Set("step", "") })

	_, err := execute(t, "migrate", "--step", "bogus")
	testutil.ErrorContains(t, err, `unknown step "bogus"`)
}

func TestStatusNoRuns(t *testing.T) {
	t.Chdir(t.TempDir())

	out, err := execute(t, "status")
	testutil.NoError(t, err)
	testutil.Contains(t, out, "No runs recorded.")
}

func TestStatusNoRunsJSON(t *testing.T) {
	t.Chdir(t.TempDir())

	out, err := execute(t, "status", "--json")
	testutil.NoError(t, err)
	testutil.Equal(t, "none", decodeJSON(t, out)["status"].(string))
}

func TestStatusTenantScoped(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Cleanup(func() { statusCmd.Flags().Set("tenant", "0") })

	out, err := execute(t, "status", "--tenant", "7")
	testutil.NoError(t, err)
	testutil.Contains(t, out, "No runs recorded for tenant 7.")
}

func TestResetStepWithoutRecords(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Cleanup(func() { resetCmd.Flags().Set("step", "") })

	_, err := execute(t, "reset", "--step", "messages")
	testutil.ErrorContains(t, err, "no journal records")
}

func TestResetWithYes(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Cleanup(func() { resetCmd.Flags().Set("yes", "false") })

	out, err := execute(t, "reset", "--yes")
	testutil.NoError(t, err)
	testutil.Contains(t, out, "Journal cleared.")
}

func TestResetJSONSkipsPrompt(t *testing.T) {
	t.Chdir(t.TempDir())

	out, err := execute(t, "reset", "--json")
	testutil.NoError(t, err)
	testutil.Equal(t, "reset", decodeJSON(t, out)["status"].(string))
}

func TestPrintRowErrors(t *testing.T) {
	res := &engine.StepResult{
		Step:   "tickets",
		Errors: []string{"row 7: null contact_id", "row 19: status 9 unmapped"},
	}

	var buf bytes.Buffer
	printRowErrors(&buf, res, false)

	out := buf.String()
	testutil.Contains(t, out, "row 7: null contact_id")
	testutil.Contains(t, out, "row 19: status 9 unmapped")
	testutil.False(t, strings.Contains(out, "more row errors"),
		"short lists must not be truncated")
}

func TestPrintRowErrorsTruncates(t *testing.T) {
	res := &engine.StepResult{Step: "messages"}
	for i := 0; i < maxShownErrors+5; i++ {
		res.Errors = append(res.Errors, fmt.Sprintf("row %d: bad body", i))
	}

	var buf bytes.Buffer
	printRowErrors(&buf, res, false)

	out := buf.String()
	testutil.Contains(t, out, "... and 5 more row errors")
	testutil.Equal(t, maxShownErrors+1, strings.Count(out, "\n"))
}

func TestPrintRowErrorsNilResult(t *testing.T) {
	var buf bytes.Buffer
	printRowErrors(&buf, nil, false)
	testutil.Equal(t, 0, buf.Len())
}

func TestParseSlogLevel(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"debug", "DEBUG"},
		{"info", "INFO"},
		{"warn", "WARN"},
		{"error", "ERROR"},
		{"", "INFO"},
		{"bogus", "INFO"},
	}
	for _, tt := range tests {
		testutil.Equal(t, tt.want, parseSlogLevel(tt.in).String())
	}
}
