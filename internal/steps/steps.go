// Package steps declares the nine entity migrations as configurations
// of the generic engine: where each one reads, how its rows reshape,
// which keys identify duplicates, and which columns hold deferred
// references. The order of All is the run order; later steps depend on
// the identifier maps earlier steps populate.
package steps

import (
	"fmt"

	"github.com/relaydesk/rdm/internal/engine"
)

// Config carries the behavior toggles entity transforms consume.
type Config struct {
	// AssignDefaultChannel routes tickets whose legacy row names no
	// channel to the owning company's default channel instead of
	// leaving the reference null.
	AssignDefaultChannel bool
}

// All returns the entity steps in dependency order.
func All(cfg Config) []engine.Step {
	list := []engine.Step{
		Companies(),
		Users(),
		Departments(),
		Channels(),
		Contacts(),
		Tickets(cfg),
		Messages(),
		Campaigns(),
		Tasks(),
	}
	for i := range list {
		list[i].Index = i + 1
		list[i].Total = len(list)
	}
	return list
}

// ByName returns the named step with Index/Total set as in All.
func ByName(cfg Config, name string) (engine.Step, error) {
	for _, s := range All(cfg) {
		if s.Name == name {
			return s, nil
		}
	}
	return engine.Step{}, fmt.Errorf("unknown step %q", name)
}

// Names lists the step names in run order.
func Names() []string {
	steps := All(Config{})
	names := make([]string, len(steps))
	for i, s := range steps {
		names[i] = s.Name
	}
	return names
}
