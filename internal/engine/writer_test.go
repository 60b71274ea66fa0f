package engine

import (
	"strings"
	"testing"

	"github.com/relaydesk/rdm/internal/testutil"
)

func TestBuildInsertSQL(t *testing.T) {
	t.Parallel()
	step := Step{
		Name:    "contacts",
		Table:   "contacts",
		Columns: []string{"company_id", "name", "phone"},
	}

	t.Run("single row no update columns", func(t *testing.T) {
		t.Parallel()
		got := buildInsertSQL(step, 1)
		testutil.Equal(t,
			"INSERT INTO contacts AS t (legacy_id, company_id, name, phone) VALUES ($1, $2, $3, $4)"+
				" ON CONFLICT (legacy_id) DO UPDATE SET legacy_id = EXCLUDED.legacy_id"+
				" RETURNING id, legacy_id",
			got)
	})

	t.Run("multi row placeholders", func(t *testing.T) {
		t.Parallel()
		got := buildInsertSQL(step, 3)
		testutil.Contains(t, got, "($1, $2, $3, $4), ($5, $6, $7, $8), ($9, $10, $11, $12)")
		// Placeholders never repeat.
		testutil.Equal(t, 1, strings.Count(got, "$12"))
	})

	t.Run("overwrite policy", func(t *testing.T) {
		t.Parallel()
		s := step
		s.Update = OverwriteAlways
		s.UpdateColumns = []string{"name", "phone"}
		got := buildInsertSQL(s, 1)
		testutil.Contains(t, got, "DO UPDATE SET name = EXCLUDED.name, phone = EXCLUDED.phone")
	})

	t.Run("preserve policy", func(t *testing.T) {
		t.Parallel()
		s := step
		s.Update = PreserveNonEmpty
		s.UpdateColumns = []string{"name"}
		got := buildInsertSQL(s, 1)
		testutil.Contains(t, got,
			"name = CASE WHEN t.name IS NULL OR t.name::text IN ('', '{}', '[]') THEN EXCLUDED.name ELSE t.name END")
	})

	t.Run("always returns ids", func(t *testing.T) {
		t.Parallel()
		for _, n := range []int{1, 2, 500} {
			got := buildInsertSQL(step, n)
			testutil.True(t, strings.HasSuffix(got, "RETURNING id, legacy_id"), "n=%d", n)
		}
	})
}

func TestInsertArgs(t *testing.T) {
	t.Parallel()
	step := Step{
		Name:    "contacts",
		Table:   "contacts",
		Columns: []string{"company_id", "name"},
	}
	a := NewPayload("10")
	a.Set("company_id", int64(1))
	a.Set("name", "Ana")
	b := NewPayload("11")
	b.Set("company_id", int64(1))
	// name left unset: absent values bind as null.

	args := insertArgs(step, []*TargetPayload{a, b})
	testutil.SliceLen(t, args, 6)
	testutil.Equal(t, "10", args[0].(string))
	testutil.Equal(t, int64(1), args[1].(int64))
	testutil.Equal(t, "Ana", args[2].(string))
	testutil.Equal(t, "11", args[3].(string))
	testutil.Equal(t, int64(1), args[4].(int64))
	testutil.Nil(t, args[5])
}
