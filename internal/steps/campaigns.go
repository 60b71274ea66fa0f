package steps

import (
	"github.com/relaydesk/rdm/internal/engine"
)

// campaignStatus maps legacy campaign states; in-flight states from an
// interrupted install read as draft so nothing resumes sending by
// accident after migration.
var campaignStatus = map[string]string{
	"pending":    "draft",
	"scheduled":  "scheduled",
	"processing": "draft",
	"done":       "completed",
	"finished":   "completed",
	"canceled":   "canceled",
	"cancelled":  "canceled",
}

// Campaigns migrates legacy campaigns with their audience lists.
func Campaigns() engine.Step {
	return engine.Step{
		Name: "campaigns",
		Source: engine.SourceQuery{
			Table:        "campaigns",
			Columns:      []string{"id", "tenant_id", "name", "message", "status", "audience", "whatsapp_id", "queue_id", "scheduled_at", "created_at", "updated_at"},
			OrderBy:      "id",
			TenantColumn: "tenant_id",
		},
		Table: "campaigns",
		Columns: []string{
			"company_id", "name", "body", "status", "audience",
			"channel_id", "department_id", "scheduled_at",
			"created_at", "updated_at",
		},
		Refs: []engine.RefColumn{
			{Column: "channel_id", Kind: "channels"},
			{Column: "department_id", Kind: "departments"},
		},
		Needs:     []string{"companies", "channels", "departments"},
		Transform: campaignRow,
	}
}

func campaignRow(row engine.SourceRow, look engine.Lookup) (*engine.TargetPayload, error) {
	companyID, ok := look.NewID("companies", row.OldID("tenant_id"))
	if !ok {
		return nil, engine.ErrSkipRow
	}
	p := engine.NewPayload(row.OldID("id"))
	p.Set("company_id", companyID)
	p.Set("name", engine.CleanText(row.String("name")))
	p.Set("body", engine.CleanText(row.String("message")))
	p.Set("status", enumOr(campaignStatus, row.String("status"), "draft"))
	p.Set("audience", engine.CoerceJSON(row.Value("audience"), "[]"))

	p.Set("channel_id", nil)
	p.Set("department_id", nil)
	p.Ref("channel_id", row.OldID("whatsapp_id"))
	p.Ref("department_id", row.OldID("queue_id"))

	if scheduled, ok := row.Time("scheduled_at"); ok {
		p.Set("scheduled_at", scheduled)
	} else {
		p.Set("scheduled_at", nil)
	}

	created, updated := rowTimes(row)
	p.Set("created_at", created)
	p.Set("updated_at", updated)
	return p, nil
}
