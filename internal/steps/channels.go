package steps

import (
	"github.com/relaydesk/rdm/internal/engine"
)

// channelStatus maps legacy session states into the destination
// vocabulary. The legacy column held the raw library state in varying
// case; anything unrecognized reads as disconnected, the state a
// channel lands in after migration anyway until it is re-paired.
var channelStatus = map[string]string{
	"connected":    "connected",
	"disconnected": "disconnected",
	"qrcode":       "qr_pending",
	"pairing":      "qr_pending",
	"opening":      "qr_pending",
	"timeout":      "error",
	"conflict":     "error",
}

// Channels migrates legacy whatsapps. A company's default channel also
// publishes a derived map entry ("default:<tenant old-id>") so later
// steps can reference it without knowing which channel it is.
func Channels() engine.Step {
	return engine.Step{
		Name: "channels",
		Source: engine.SourceQuery{
			Table:        "whatsapps",
			Columns:      []string{"id", "tenant_id", "name", "number", "status", "is_default", "flow", "created_at", "updated_at"},
			OrderBy:      "id",
			TenantColumn: "tenant_id",
		},
		Table: "channels",
		Columns: []string{
			"company_id", "name", "kind", "phone", "status",
			"is_default", "flow", "created_at", "updated_at",
		},
		// Operators edit channel flows in the destination between
		// runs; a re-run only fills flows still empty.
		Update:        engine.PreserveNonEmpty,
		UpdateColumns: []string{"flow"},
		Needs:         []string{"companies"},
		AliasSQL: "SELECT 'default:' || co.legacy_id, ch.id FROM channels ch" +
			" JOIN companies co ON co.id = ch.company_id" +
			" WHERE ch.is_default AND ch.legacy_id IS NOT NULL AND co.legacy_id IS NOT NULL",
		Transform: channelRow,
	}
}

func channelRow(row engine.SourceRow, look engine.Lookup) (*engine.TargetPayload, error) {
	companyID, ok := look.NewID("companies", row.OldID("tenant_id"))
	if !ok {
		return nil, engine.ErrSkipRow
	}
	p := engine.NewPayload(row.OldID("id"))
	p.Set("company_id", companyID)
	p.Set("name", engine.CleanText(row.String("name")))
	p.Set("kind", "whatsapp")

	if phone := normalizePhone(row.String("number")); phone != "" {
		p.Set("phone", phone)
	} else {
		p.Set("phone", nil)
	}

	p.Set("status", enumOr(channelStatus, row.String("status"), "disconnected"))

	isDefault := row.Bool("is_default")
	p.Set("is_default", isDefault)
	if isDefault {
		p.Alias("default:" + row.OldID("tenant_id"))
	}

	p.Set("flow", engine.CoerceJSON(row.Value("flow"), "{}"))

	created, updated := rowTimes(row)
	p.Set("created_at", created)
	p.Set("updated_at", updated)
	return p, nil
}
