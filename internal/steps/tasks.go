package steps

import (
	"github.com/relaydesk/rdm/internal/engine"
)

// Tasks migrates legacy follow-up tasks. Assignee and contact are
// optional references; a task survives the loss of either.
func Tasks() engine.Step {
	return engine.Step{
		Name: "tasks",
		Source: engine.SourceQuery{
			Table:        "tasks",
			Columns:      []string{"id", "tenant_id", "title", "notes", "user_id", "contact_id", "due_date", "done", "created_at", "updated_at"},
			OrderBy:      "id",
			TenantColumn: "tenant_id",
		},
		Table: "tasks",
		Columns: []string{
			"company_id", "title", "notes", "assignee_id", "contact_id",
			"due_at", "done", "created_at", "updated_at",
		},
		Refs: []engine.RefColumn{
			{Column: "assignee_id", Kind: "users"},
			{Column: "contact_id", Kind: "contacts"},
		},
		Needs:     []string{"companies", "users", "contacts"},
		Transform: taskRow,
	}
}

func taskRow(row engine.SourceRow, look engine.Lookup) (*engine.TargetPayload, error) {
	companyID, ok := look.NewID("companies", row.OldID("tenant_id"))
	if !ok {
		return nil, engine.ErrSkipRow
	}
	p := engine.NewPayload(row.OldID("id"))
	p.Set("company_id", companyID)
	p.Set("title", engine.CleanText(row.String("title")))
	p.Set("notes", textOrNil(row.String("notes")))

	p.Set("assignee_id", nil)
	p.Set("contact_id", nil)
	p.Ref("assignee_id", row.OldID("user_id"))
	p.Ref("contact_id", row.OldID("contact_id"))

	if due, ok := row.Time("due_date"); ok {
		p.Set("due_at", due)
	} else {
		p.Set("due_at", nil)
	}
	p.Set("done", row.Bool("done"))

	created, updated := rowTimes(row)
	p.Set("created_at", created)
	p.Set("updated_at", updated)
	return p, nil
}
