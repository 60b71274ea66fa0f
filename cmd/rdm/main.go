package main

import (
	"fmt"
	"os"

	"github.com/relaydesk/rdm/internal/cli"
	"github.com/relaydesk/rdm/internal/cli/ui"
)

// Injected by the release build via -ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	os.Exit(run())
}

func run() int {
	cli.SetVersion(version, commit, date)
	if err := cli.Execute(); err != nil {
		fmt.Fprint(os.Stderr, ui.FormatError(err.Error()))
		return 1
	}
	return 0
}
