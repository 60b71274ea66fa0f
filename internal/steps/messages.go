package steps

import (
	"strings"
	"time"

	"github.com/relaydesk/rdm/internal/engine"
)

// Messages migrates legacy messages, the largest table of a typical
// install. Identity is the provider id within a ticket; internal notes
// never had one and are matched on the (ticket, direction, timestamp,
// body) composite instead. Reply pointers are self-references staged
// and resolved after the last batch, because a reply can precede the
// quoted message in primary-key order.
func Messages() engine.Step {
	return engine.Step{
		Name: "messages",
		Source: engine.SourceQuery{
			Table:        "messages",
			Columns:      []string{"id", "ticket_id", "sid", "body", "ack", "from_me", "media_type", "media_url", "quoted_id", "sent_at", "created_at"},
			OrderBy:      "id",
			TenantColumn: "tenant_id",
		},
		Table: "messages",
		Columns: []string{
			"ticket_id", "provider_sid", "outbound", "status", "body",
			"media_type", "media_url", "reply_to_id", "attachments",
			"sent_at", "created_at",
		},
		Keys: engine.KeySpec{
			NaturalColumns:  []string{"ticket_id", "provider_sid"},
			NullOnConflict:  []string{"provider_sid"},
			FallbackColumns: []string{"ticket_id", "outbound", "sent_at", "body"},
			FallbackTypes:   []string{"bigint", "boolean", "timestamptz", "text"},
		},
		Refs: []engine.RefColumn{
			{Column: "reply_to_id", Kind: "messages"},
		},
		Needs: []string{"tickets"},
		Checks: []engine.SourceCheck{
			{
				Message: "%d messages reference a missing ticket (will be skipped)",
				SQL: "SELECT count(*) FROM messages m WHERE ($1 = 0 OR m.tenant_id = $1)" +
					" AND NOT EXISTS (SELECT 1 FROM tickets t WHERE t.id = m.ticket_id)",
			},
			{
				Message: "%d provider ids are duplicated within a ticket",
				SQL: "SELECT count(*) FROM (SELECT ticket_id, sid FROM messages" +
					" WHERE sid IS NOT NULL AND sid <> '' AND ($1 = 0 OR tenant_id = $1)" +
					" GROUP BY ticket_id, sid HAVING count(*) > 1) d",
			},
		},
		Transform: messageRow,
	}
}

// messageStatus derives the delivery state from the legacy ack level.
func messageStatus(row engine.SourceRow) string {
	ack, ok := row.Int64("ack")
	if !ok {
		return "queued"
	}
	switch {
	case ack <= 0:
		return "queued"
	case ack == 1:
		return "sent"
	case ack == 2:
		return "delivered"
	default:
		return "read"
	}
}

func messageRow(row engine.SourceRow, look engine.Lookup) (*engine.TargetPayload, error) {
	ticketID, ok := look.NewID("tickets", row.OldID("ticket_id"))
	if !ok {
		return nil, engine.ErrSkipRow
	}

	p := engine.NewPayload(row.OldID("id"))
	p.Set("ticket_id", ticketID)

	if sid := strings.TrimSpace(row.String("sid")); sid != "" {
		p.Set("provider_sid", sid)
	} else {
		p.Set("provider_sid", nil)
	}

	p.Set("outbound", row.Bool("from_me"))
	p.Set("status", messageStatus(row))
	p.Set("body", engine.CleanText(row.String("body")))

	mediaType := textOrNil(row.String("media_type"))
	mediaURL := textOrNil(row.String("media_url"))
	p.Set("media_type", mediaType)
	p.Set("media_url", mediaURL)

	// The legacy schema stored at most one attachment inline; the
	// destination models attachments as a list.
	if mediaURL != nil {
		att := map[string]any{"url": mediaURL}
		if mediaType != nil {
			att["type"] = mediaType
		}
		p.Set("attachments", engine.CoerceJSON([]any{att}, "[]"))
	} else {
		p.Set("attachments", engine.CoerceJSON(nil, "[]"))
	}

	p.Set("reply_to_id", nil)
	p.Ref("reply_to_id", row.OldID("quoted_id"))

	created, ok := row.Time("created_at")
	if !ok {
		created = time.Now().UTC()
	}
	sent, ok := row.Time("sent_at")
	if !ok {
		sent = created
	}
	p.Set("sent_at", sent)
	p.Set("created_at", created)
	return p, nil
}
