package steps

import (
	"github.com/relaydesk/rdm/internal/engine"
)

// Departments migrates legacy queues. Names are the working identity
// within a company: a legacy queue matching a department already
// present in the destination is mapped, not duplicated.
func Departments() engine.Step {
	return engine.Step{
		Name: "departments",
		Source: engine.SourceQuery{
			Table:        "queues",
			Columns:      []string{"id", "tenant_id", "name", "greeting_message", "color", "position", "created_at", "updated_at"},
			OrderBy:      "id",
			TenantColumn: "tenant_id",
		},
		Table: "departments",
		Columns: []string{
			"company_id", "name", "greeting", "color", "position",
			"created_at", "updated_at",
		},
		Keys: engine.KeySpec{
			NaturalColumns: []string{"company_id", "name"},
		},
		Needs:     []string{"companies"},
		Transform: departmentRow,
	}
}

func departmentRow(row engine.SourceRow, look engine.Lookup) (*engine.TargetPayload, error) {
	companyID, ok := look.NewID("companies", row.OldID("tenant_id"))
	if !ok {
		return nil, engine.ErrSkipRow
	}
	p := engine.NewPayload(row.OldID("id"))
	p.Set("company_id", companyID)
	p.Set("name", engine.CleanText(row.String("name")))
	p.Set("greeting", textOrNil(row.String("greeting_message")))
	p.Set("color", textOrNil(row.String("color")))

	pos, ok := row.Int64("position")
	if !ok {
		pos = 0
	}
	p.Set("position", pos)

	created, updated := rowTimes(row)
	p.Set("created_at", created)
	p.Set("updated_at", updated)
	return p, nil
}
