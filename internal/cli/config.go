package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/relaydesk/rdm/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print resolved configuration",
	Long: `Load and print the resolved rdm configuration as TOML.
Shows the result of merging defaults, rdm.toml, environment variables, and flags.`,
	RunE: runConfig,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a commented default rdm.toml",
	Long: `Write a commented rdm.toml template with every setting at its default.
Refuses to overwrite an existing file.`,
	RunE: runConfigInit,
}

var configGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Get a specific configuration value",
	Long: `Get a specific configuration value by dotted key path.
Examples: source.host, target.dbname, run.tenant_id, run.fetch_size`,
	Args: cobra.ExactArgs(1),
	RunE: runConfigGet,
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value in rdm.toml",
	Long: `Set a configuration value in the rdm.toml config file.
Creates the file if it doesn't exist.
Examples:
  rdm config set source.host legacy-db.internal
  rdm config set run.tenant_id 42
  rdm config set run.fetch_size 1000`,
	Args: cobra.ExactArgs(2),
	RunE: runConfigSet,
}

func init() {
	for _, c := range []*cobra.Command{configCmd, configInitCmd, configGetCmd, configSetCmd} {
		c.Flags().String("config", "", "Path to rdm.toml config file")
	}
	configCmd.AddCommand(configInitCmd, configGetCmd, configSetCmd)
}

// configTarget returns the file the command should write, defaulting to
// rdm.toml in the working directory.
func configTarget(cmd *cobra.Command) string {
	path, _ := cmd.Flags().GetString("config")
	if path == "" {
		return "rdm.toml"
	}
	return path
}

func runConfig(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")

	cfg, err := config.Load(configPath, nil)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	if jsonOut, _ := cmd.Flags().GetBool("json"); jsonOut {
		return json.NewEncoder(os.Stdout).Encode(cfg)
	}

	out, err := cfg.ToTOML()
	if err != nil {
		return fmt.Errorf("serializing config: %w", err)
	}
	fmt.Print(out)
	return nil
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	configPath := configTarget(cmd)
	if _, err := os.Stat(configPath); err == nil {
		return fmt.Errorf("%s already exists; edit it or use rdm config set", configPath)
	}
	if err := config.GenerateDefault(configPath); err != nil {
		return fmt.Errorf("writing config template: %w", err)
	}

	if jsonOut, _ := cmd.Flags().GetBool("json"); jsonOut {
		return json.NewEncoder(os.Stdout).Encode(map[string]any{"status": "created", "path": configPath})
	}
	fmt.Printf("Wrote %s\n", configPath)
	fmt.Println("Edit the [source] and [target] sections, then check with: rdm analyze")
	return nil
}

func runConfigGet(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")

	cfg, err := config.Load(configPath, nil)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	value, err := config.GetValue(cfg, args[0])
	if err != nil {
		return err
	}

	if jsonOut, _ := cmd.Flags().GetBool("json"); jsonOut {
		return json.NewEncoder(os.Stdout).Encode(map[string]any{"key": args[0], "value": value})
	}
	fmt.Println(value)
	return nil
}

func runConfigSet(cmd *cobra.Command, args []string) error {
	configPath := configTarget(cmd)
	key, value := args[0], args[1]

	if !config.IsValidKey(key) {
		return fmt.Errorf("unknown configuration key: %s", key)
	}
	if err := config.SetValue(configPath, key, value); err != nil {
		return fmt.Errorf("setting config value: %w", err)
	}

	fmt.Printf("%s = %s\n", key, value)
	fmt.Printf("Written to %s\n", configPath)

	// A half-edited file is fine, the user may still be filling it in.
	// Surface what Load would reject, but do not fail the command.
	if _, err := config.Load(configPath, nil); err != nil {
		note := err.Error()
		if parts := strings.SplitN(note, ": ", 2); len(parts) > 1 {
			note = parts[1]
		}
		fmt.Fprintf(os.Stderr, "Note: %s\n", note)
	}
	return nil
}
