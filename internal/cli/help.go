package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// Command group IDs.
const (
	groupWorkflow = "workflow"
	groupJournal  = "journal"
	groupConfig   = "config"
)

var commandGroups = map[string]string{
	"analyze":  groupWorkflow,
	"migrate":  groupWorkflow,
	"validate": groupWorkflow,

	"status": groupJournal,
	"reset":  groupJournal,

	"config":  groupConfig,
	"version": groupConfig,
}

// initHelp installs the styled help/usage renderers and sorts the
// subcommands into their display groups.
func initHelp() {
	rootCmd.AddGroup(
		&cobra.Group{ID: groupWorkflow, Title: "MIGRATION"},
		&cobra.Group{ID: groupJournal, Title: "JOURNAL"},
		&cobra.Group{ID: groupConfig, Title: "CONFIGURATION"},
	)
	for _, cmd := range rootCmd.Commands() {
		if gid, ok := commandGroups[cmd.Name()]; ok {
			cmd.GroupID = gid
		}
	}

	rootCmd.SetHelpFunc(func(cmd *cobra.Command, _ []string) {
		renderHelp(cmd)
	})
	rootCmd.SetUsageFunc(func(cmd *cobra.Command) error {
		// Usage (shown on errors) renders the same screen as help.
		renderHelp(cmd)
		return nil
	})
}

// helpPrinter renders the help screen for one command.
type helpPrinter struct {
	w     io.Writer
	color bool
}

func renderHelp(cmd *cobra.Command) {
	h := helpPrinter{w: cmd.ErrOrStderr(), color: colorEnabled()}

	h.description(cmd)
	h.usage(cmd)
	h.examples(cmd)
	h.commands(cmd)
	h.flags(cmd)

	if cmd.HasAvailableSubCommands() {
		hint := fmt.Sprintf("Use \"%s [command] --help\" for more information about a command.", cmd.CommandPath())
		h.linef("%s", dim(hint, h.color))
		h.blank()
	}
}

func (h helpPrinter) blank() { fmt.Fprintln(h.w) }

func (h helpPrinter) linef(format string, args ...any) {
	fmt.Fprintf(h.w, format+"\n", args...)
}

func (h helpPrinter) section(title string) {
	h.linef("%s", boldCyan(title, h.color))
}

func (h helpPrinter) description(cmd *cobra.Command) {
	switch {
	case cmd == rootCmd:
		h.blank()
		h.linef("  %s", boldCyan("Relay Desk Migrator", h.color))
		h.blank()
		for _, line := range strings.Split(cmd.Long, "\n") {
			switch {
			case strings.TrimSpace(line) == "":
				h.blank()
			case strings.HasPrefix(line, "  "):
				// Indented lines in the long description are examples.
				h.linef("    %s", green(strings.TrimSpace(line), h.color))
			default:
				h.linef("  %s", dim(line, h.color))
			}
		}
	case cmd.Long != "":
		h.blank()
		for _, line := range strings.Split(cmd.Long, "\n") {
			h.linef("  %s", line)
		}
	case cmd.Short != "":
		h.blank()
		h.linef("  %s", cmd.Short)
	}
	h.blank()
}

func (h helpPrinter) usage(cmd *cobra.Command) {
	h.section("USAGE")
	if cmd.HasAvailableSubCommands() {
		h.linef("  %s [command]", cmd.CommandPath())
	} else {
		h.linef("  %s", cmd.UseLine())
	}
	h.blank()
}

func (h helpPrinter) examples(cmd *cobra.Command) {
	if cmd.Example == "" {
		return
	}
	h.section("EXAMPLES")
	for _, line := range strings.Split(cmd.Example, "\n") {
		if text := strings.TrimSpace(line); text != "" {
			h.linef("  %s", green(text, h.color))
		} else {
			h.blank()
		}
	}
	h.blank()
}

// commands lists available subcommands, one section per declared group
// in declaration order, with any ungrouped commands at the end.
func (h helpPrinter) commands(cmd *cobra.Command) {
	if !cmd.HasAvailableSubCommands() {
		return
	}

	byGroup := make(map[string][]*cobra.Command)
	for _, sub := range cmd.Commands() {
		if sub.IsAvailableCommand() {
			byGroup[sub.GroupID] = append(byGroup[sub.GroupID], sub)
		}
	}

	for _, g := range cmd.Groups() {
		if subs := byGroup[g.ID]; len(subs) > 0 {
			h.section(g.Title)
			h.commandList(subs)
			h.blank()
		}
	}
	if rest := byGroup[""]; len(rest) > 0 {
		title := "COMMANDS"
		if len(cmd.Groups()) > 0 {
			title = "OTHER"
		}
		h.section(title)
		h.commandList(rest)
		h.blank()
	}
}

func (h helpPrinter) commandList(cmds []*cobra.Command) {
	width := 0
	for _, c := range cmds {
		if n := len(c.Name()); n > width {
			width = n
		}
	}
	for _, c := range cmds {
		name := fmt.Sprintf("%-*s", width+4, c.Name())
		h.linef("  %s%s", bold(name, h.color), dim(c.Short, h.color))
	}
}

func (h helpPrinter) flags(cmd *cobra.Command) {
	if cmd == rootCmd {
		// The root screen shows persistent and local flags as one set.
		h.flagSection("FLAGS", cmd.Flags())
		return
	}
	h.flagSection("FLAGS", cmd.LocalNonPersistentFlags())
	h.flagSection("GLOBAL FLAGS", cmd.InheritedFlags())
}

func (h helpPrinter) flagSection(title string, fs *pflag.FlagSet) {
	if !fs.HasAvailableFlags() {
		return
	}
	h.section(title)
	usage := strings.TrimRight(fs.FlagUsages(), "\n")
	for _, line := range strings.Split(usage, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		h.linef("%s", h.flagLine(line))
	}
	h.blank()
}

// flagLine colors one pflag usage line, flag names cyan and the
// description dim.
func (h helpPrinter) flagLine(line string) string {
	if !h.color {
		return line
	}
	trimmed := strings.TrimLeft(line, " ")
	indent := line[:len(line)-len(trimmed)]

	if flag, desc, ok := splitFlagUsage(trimmed); ok {
		return indent + cyan(flag, h.color) + "   " + dim(desc, h.color)
	}
	return indent + cyan(trimmed, h.color)
}

// splitFlagUsage divides "-t, --tenant int   description" at the
// alignment gap. pflag pads the description column with at least two
// spaces, and the flag part itself never contains consecutive spaces.
func splitFlagUsage(s string) (flag, desc string, ok bool) {
	gap := strings.Index(s, "  ")
	if gap < 0 {
		return "", "", false
	}
	desc = strings.TrimLeft(s[gap:], " ")
	if desc == "" {
		return "", "", false
	}
	return s[:gap], desc, true
}
