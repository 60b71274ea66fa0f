package steps

import (
	"github.com/relaydesk/rdm/internal/engine"
)

// companyStatus maps legacy tenant statuses; the legacy schema mixed
// "disabled" and "suspended" for the same operational state.
var companyStatus = map[string]string{
	"active":    "active",
	"trial":     "trial",
	"inactive":  "inactive",
	"disabled":  "inactive",
	"suspended": "inactive",
}

// Companies migrates legacy tenants. The destination requires a unique
// registration code the legacy schema never stored; the engine
// generates a deterministic check-digit code per company.
func Companies() engine.Step {
	return engine.Step{
		Name: "companies",
		Source: engine.SourceQuery{
			Table:        "tenants",
			Columns:      []string{"id", "name", "status", "plan", "settings", "max_users", "created_at", "updated_at"},
			OrderBy:      "id",
			TenantColumn: "id",
		},
		Table: "companies",
		Columns: []string{
			"name", "registration_code", "status", "plan",
			"seat_limit", "settings", "created_at", "updated_at",
		},
		Keys: engine.KeySpec{
			Synthetic: &engine.SyntheticKey{
				Column:   "registration_code",
				Generate: engine.SyntheticCode,
			},
		},
		Transform: companyRow,
	}
}

func companyRow(row engine.SourceRow, _ engine.Lookup) (*engine.TargetPayload, error) {
	p := engine.NewPayload(row.OldID("id"))
	p.Set("name", engine.CleanText(row.String("name")))
	p.Set("status", enumOr(companyStatus, row.String("status"), "active"))

	plan := enumOr(map[string]string{
		"free": "free", "basic": "basic", "standard": "standard",
		"pro": "pro", "enterprise": "enterprise",
	}, row.String("plan"), "standard")
	p.Set("plan", plan)

	if seats, ok := row.Int64("max_users"); ok && seats > 0 {
		p.Set("seat_limit", seats)
	} else {
		p.Set("seat_limit", nil)
	}
	p.Set("settings", engine.CoerceJSON(row.Value("settings"), "{}"))

	created, updated := rowTimes(row)
	p.Set("created_at", created)
	p.Set("updated_at", updated)
	return p, nil
}
