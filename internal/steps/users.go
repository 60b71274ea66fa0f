package steps

import (
	"strings"

	"github.com/relaydesk/rdm/internal/engine"
)

// userRoles maps the legacy profile column to destination roles.
var userRoles = map[string]string{
	"admin":      "admin",
	"supervisor": "manager",
	"user":       "agent",
}

// Users migrates legacy users. Emails identify users within a company;
// a duplicate email inside one batch keeps its first claimant and the
// later row is stored without one.
func Users() engine.Step {
	return engine.Step{
		Name: "users",
		Source: engine.SourceQuery{
			Table:        "users",
			Columns:      []string{"id", "tenant_id", "name", "email", "profile", "active", "preferences", "created_at", "updated_at"},
			OrderBy:      "id",
			TenantColumn: "tenant_id",
		},
		Table: "users",
		Columns: []string{
			"company_id", "name", "email", "role", "active",
			"preferences", "created_at", "updated_at",
		},
		Keys: engine.KeySpec{
			NaturalColumns: []string{"company_id", "email"},
			NullOnConflict: []string{"email"},
		},
		Needs: []string{"companies"},
		Checks: []engine.SourceCheck{
			{
				Message: "%d users have no email address",
				SQL:     "SELECT count(*) FROM users WHERE ($1 = 0 OR tenant_id = $1) AND (email IS NULL OR email = '')",
			},
			{
				Message: "%d duplicate emails within a tenant",
				SQL: "SELECT count(*) FROM (SELECT tenant_id, lower(email) FROM users" +
					" WHERE email IS NOT NULL AND email <> '' AND ($1 = 0 OR tenant_id = $1)" +
					" GROUP BY tenant_id, lower(email) HAVING count(*) > 1) d",
			},
		},
		Transform: userRow,
	}
}

func userRow(row engine.SourceRow, look engine.Lookup) (*engine.TargetPayload, error) {
	companyID, ok := look.NewID("companies", row.OldID("tenant_id"))
	if !ok {
		return nil, engine.ErrSkipRow
	}
	p := engine.NewPayload(row.OldID("id"))
	p.Set("company_id", companyID)
	p.Set("name", engine.CleanText(row.String("name")))

	email := strings.ToLower(strings.TrimSpace(row.String("email")))
	if email == "" {
		p.Set("email", nil)
	} else {
		p.Set("email", email)
	}

	p.Set("role", enumOr(userRoles, row.String("profile"), "agent"))
	p.Set("active", boolOr(row, "active", true))
	p.Set("preferences", engine.CoerceJSON(row.Value("preferences"), "{}"))

	created, updated := rowTimes(row)
	p.Set("created_at", created)
	p.Set("updated_at", updated)
	return p, nil
}
