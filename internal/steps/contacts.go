package steps

import (
	"strings"

	"github.com/relaydesk/rdm/internal/engine"
)

// Contacts migrates legacy contacts. The digit-normalized phone is the
// natural identity within a company; group chats have no phone and are
// matched by legacy id only. A duplicate phone inside one batch keeps
// its first claimant and the later row is stored without one.
func Contacts() engine.Step {
	return engine.Step{
		Name: "contacts",
		Source: engine.SourceQuery{
			Table:        "contacts",
			Columns:      []string{"id", "tenant_id", "name", "number", "email", "profile_pic_url", "extra_info", "is_group", "created_at", "updated_at"},
			OrderBy:      "id",
			TenantColumn: "tenant_id",
		},
		Table: "contacts",
		Columns: []string{
			"company_id", "name", "phone", "email", "avatar_url",
			"attrs", "is_group", "created_at", "updated_at",
		},
		Keys: engine.KeySpec{
			NaturalColumns: []string{"company_id", "phone"},
			NullOnConflict: []string{"phone"},
		},
		// A re-run refreshes descriptive fields from the legacy row.
		Update:        engine.OverwriteAlways,
		UpdateColumns: []string{"name", "avatar_url", "attrs"},
		Needs:         []string{"companies"},
		Checks: []engine.SourceCheck{
			{
				Message: "%d contacts have no phone number",
				SQL:     "SELECT count(*) FROM contacts WHERE ($1 = 0 OR tenant_id = $1) AND (number IS NULL OR number = '') AND NOT coalesce(is_group, false)",
			},
		},
		Transform: contactRow,
	}
}

func contactRow(row engine.SourceRow, look engine.Lookup) (*engine.TargetPayload, error) {
	companyID, ok := look.NewID("companies", row.OldID("tenant_id"))
	if !ok {
		return nil, engine.ErrSkipRow
	}
	p := engine.NewPayload(row.OldID("id"))
	p.Set("company_id", companyID)
	p.Set("name", engine.CleanText(row.String("name")))

	if phone := normalizePhone(row.String("number")); phone != "" {
		p.Set("phone", phone)
	} else {
		p.Set("phone", nil)
	}

	email := strings.ToLower(strings.TrimSpace(row.String("email")))
	if email == "" {
		p.Set("email", nil)
	} else {
		p.Set("email", email)
	}

	p.Set("avatar_url", textOrNil(row.String("profile_pic_url")))
	p.Set("attrs", engine.CoerceJSON(row.Value("extra_info"), "{}"))
	p.Set("is_group", row.Bool("is_group"))

	created, updated := rowTimes(row)
	p.Set("created_at", created)
	p.Set("updated_at", updated)
	return p, nil
}
