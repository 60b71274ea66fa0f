package steps

import (
	"github.com/relaydesk/rdm/internal/engine"
)

// ticketStatus maps legacy ticket states; "closed" became "resolved"
// in the destination vocabulary.
var ticketStatus = map[string]string{
	"open":    "open",
	"pending": "pending",
	"closed":  "resolved",
}

// Tickets migrates legacy tickets. The contact is a required
// reference: a ticket whose contact was never migrated is skipped.
// Assignee, department, and channel are optional references resolved
// through staging after the last batch.
func Tickets(cfg Config) engine.Step {
	return engine.Step{
		Name: "tickets",
		Source: engine.SourceQuery{
			Table:        "tickets",
			Columns:      []string{"id", "tenant_id", "contact_id", "user_id", "queue_id", "whatsapp_id", "status", "last_message", "unread_messages", "created_at", "updated_at"},
			OrderBy:      "id",
			TenantColumn: "tenant_id",
		},
		Table: "tickets",
		Columns: []string{
			"company_id", "contact_id", "assignee_id", "department_id",
			"channel_id", "status", "last_message", "unread",
			"created_at", "updated_at",
		},
		Refs: []engine.RefColumn{
			{Column: "assignee_id", Kind: "users"},
			{Column: "department_id", Kind: "departments"},
			{Column: "channel_id", Kind: "channels"},
		},
		Needs: []string{"companies", "contacts", "users", "departments", "channels"},
		Checks: []engine.SourceCheck{
			{
				Message: "%d tickets reference a missing contact (will be skipped)",
				SQL: "SELECT count(*) FROM tickets t WHERE ($1 = 0 OR t.tenant_id = $1)" +
					" AND NOT EXISTS (SELECT 1 FROM contacts c WHERE c.id = t.contact_id)",
			},
		},
		Transform: ticketRow(cfg),
	}
}

func ticketRow(cfg Config) engine.TransformFunc {
	return func(row engine.SourceRow, look engine.Lookup) (*engine.TargetPayload, error) {
		companyID, ok := look.NewID("companies", row.OldID("tenant_id"))
		if !ok {
			return nil, engine.ErrSkipRow
		}
		contactID, ok := look.NewID("contacts", row.OldID("contact_id"))
		if !ok {
			return nil, engine.ErrSkipRow
		}

		p := engine.NewPayload(row.OldID("id"))
		p.Set("company_id", companyID)
		p.Set("contact_id", contactID)
		p.Set("assignee_id", nil)
		p.Set("department_id", nil)
		p.Set("channel_id", nil)

		p.Ref("assignee_id", row.OldID("user_id"))
		p.Ref("department_id", row.OldID("queue_id"))
		if chOld := row.OldID("whatsapp_id"); chOld != "" {
			p.Ref("channel_id", chOld)
		} else if cfg.AssignDefaultChannel {
			p.Ref("channel_id", "default:"+row.OldID("tenant_id"))
		}

		p.Set("status", enumOr(ticketStatus, row.String("status"), "pending"))
		p.Set("last_message", textOrNil(row.String("last_message")))

		unread, ok := row.Int64("unread_messages")
		if !ok || unread < 0 {
			unread = 0
		}
		p.Set("unread", unread)

		created, updated := rowTimes(row)
		p.Set("created_at", created)
		p.Set("updated_at", updated)
		return p, nil
	}
}
