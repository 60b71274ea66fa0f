package steps

import (
	"testing"

	"github.com/relaydesk/rdm/internal/testutil"
)

// fakeLookup backs transforms in tests with a fixed kind → old → new
// mapping.
type fakeLookup map[string]map[string]int64

func (f fakeLookup) NewID(kind, oldID string) (int64, bool) {
	m, ok := f[kind]
	if !ok {
		return 0, false
	}
	id, ok := m[oldID]
	return id, ok
}

func TestAllOrderAndNumbering(t *testing.T) {
	t.Parallel()
	all := All(Config{})
	want := []string{
		"companies", "users", "departments", "channels", "contacts",
		"tickets", "messages", "campaigns", "tasks",
	}
	testutil.SliceLen(t, all, len(want))
	for i, s := range all {
		testutil.Equal(t, want[i], s.Name)
		testutil.Equal(t, i+1, s.Index)
		testutil.Equal(t, len(want), s.Total)
	}
}

func TestAllStepsValidate(t *testing.T) {
	t.Parallel()
	for _, s := range All(Config{AssignDefaultChannel: true}) {
		t.Run(s.Name, func(t *testing.T) {
			t.Parallel()
			testutil.NoError(t, s.Validate())
		})
	}
}

func TestNeedsPrecedeEachStep(t *testing.T) {
	t.Parallel()
	// A step may only need kinds produced by earlier steps, or itself.
	seen := map[string]bool{}
	for _, s := range All(Config{}) {
		for _, need := range s.Needs {
			if need == s.Name {
				continue
			}
			testutil.True(t, seen[need], "step %s needs %s before it has run", s.Name, need)
		}
		seen[s.Name] = true
	}
}

func TestRefKindsAreNeeded(t *testing.T) {
	t.Parallel()
	// Every staged reference kind must be listed in Needs so a resumed
	// run preloads the map the resolver joins against.
	for _, s := range All(Config{}) {
		needs := map[string]bool{s.Name: true}
		for _, n := range s.Needs {
			needs[n] = true
		}
		for _, rc := range s.Refs {
			testutil.True(t, needs[rc.Kind], "step %s references kind %s without needing it", s.Name, rc.Kind)
		}
	}
}

func TestByName(t *testing.T) {
	t.Parallel()
	s, err := ByName(Config{}, "messages")
	testutil.NoError(t, err)
	testutil.Equal(t, "messages", s.Name)
	testutil.Equal(t, 7, s.Index)

	_, err = ByName(Config{}, "nope")
	testutil.ErrorContains(t, err, `unknown step "nope"`)
}

func TestNames(t *testing.T) {
	t.Parallel()
	names := Names()
	testutil.SliceLen(t, names, 9)
	testutil.Equal(t, "companies", names[0])
	testutil.Equal(t, "tasks", names[8])
}

func TestChecksTakeTenantParameter(t *testing.T) {
	t.Parallel()
	// Every analysis check scopes by $1 so tenant runs stay tenant
	// runs.
	for _, s := range All(Config{}) {
		for _, c := range s.Checks {
			testutil.Contains(t, c.SQL, "$1")
			testutil.Contains(t, c.Message, "%d")
		}
	}
}
