package steps

import (
	"testing"
	"time"

	"github.com/relaydesk/rdm/internal/engine"
	"github.com/relaydesk/rdm/internal/testutil"
)

func TestTaskRow(t *testing.T) {
	t.Parallel()
	look := fakeLookup{"companies": {"1": 10}}

	t.Run("full row", func(t *testing.T) {
		t.Parallel()
		due := time.Date(2023, 4, 10, 17, 0, 0, 0, time.UTC)
		row := engine.SourceRow{
			"id":         int64(60),
			"tenant_id":  int64(1),
			"title":      "Call back",
			"notes":      "Prefers mornings",
			"user_id":    int64(7),
			"contact_id": int64(3),
			"due_date":   due,
			"done":       false,
		}
		p, err := taskRow(row, look)
		testutil.NoError(t, err)
		testutil.Equal(t, int64(10), p.Values["company_id"].(int64))
		testutil.Equal(t, "Call back", p.Values["title"].(string))
		testutil.Equal(t, "Prefers mornings", p.Values["notes"].(string))
		testutil.True(t, p.Values["due_at"].(time.Time).Equal(due))
		testutil.False(t, p.Values["done"].(bool))
		assignee, ok := refFor(p, "assignee_id")
		testutil.True(t, ok)
		testutil.Equal(t, "7", assignee)
		contact, ok := refFor(p, "contact_id")
		testutil.True(t, ok)
		testutil.Equal(t, "3", contact)
	})

	t.Run("bare row", func(t *testing.T) {
		t.Parallel()
		row := engine.SourceRow{"id": int64(61), "tenant_id": int64(1), "title": "Ping", "notes": "  "}
		p, err := taskRow(row, look)
		testutil.NoError(t, err)
		testutil.Nil(t, p.Values["notes"])
		testutil.Nil(t, p.Values["due_at"])
		testutil.False(t, p.Values["done"].(bool))
		testutil.SliceLen(t, p.Refs, 0)
		// Optional reference columns stay explicit nulls until resolved.
		testutil.Nil(t, p.Values["assignee_id"])
		testutil.Nil(t, p.Values["contact_id"])
	})

	t.Run("done survives integer encoding", func(t *testing.T) {
		t.Parallel()
		row := engine.SourceRow{"id": int64(62), "tenant_id": int64(1), "title": "T", "done": int64(1)}
		p, err := taskRow(row, look)
		testutil.NoError(t, err)
		testutil.True(t, p.Values["done"].(bool))
	})

	t.Run("unknown company skips", func(t *testing.T) {
		t.Parallel()
		row := engine.SourceRow{"id": int64(63), "tenant_id": int64(9), "title": "T"}
		_, err := taskRow(row, look)
		testutil.ErrorIs(t, err, engine.ErrSkipRow)
	})
}

func TestTasksStepShape(t *testing.T) {
	t.Parallel()
	s := Tasks()
	testutil.Equal(t, "tasks", s.Source.Table)
	testutil.Equal(t, "users", s.Refs[0].Kind)
	testutil.Equal(t, "contacts", s.Refs[1].Kind)
	testutil.SliceLen(t, s.Keys.NaturalColumns, 0)
}
