package engine

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/relaydesk/rdm/internal/report"
)

// Analyze inspects the legacy database without touching the target:
// per-entity row counts plus every step's declared data-shape checks.
func Analyze(ctx context.Context, source *pgx.Conn, steps []Step, tenantID int64) (*report.AnalysisReport, error) {
	rep := &report.AnalysisReport{TenantID: tenantID}
	for _, step := range steps {
		var n int
		if err := source.QueryRow(ctx, buildSourceCount(step.Source, tenantID)).Scan(&n); err != nil {
			return nil, fmt.Errorf("counting %s: %w", step.Source.Table, err)
		}
		rep.Entities = append(rep.Entities, report.EntityCount{Name: step.Name, Rows: n})
		rep.TotalRows += n

		for _, check := range step.Checks {
			var hits int
			if err := source.QueryRow(ctx, check.SQL, tenantID).Scan(&hits); err != nil {
				return nil, fmt.Errorf("running %s check: %w", step.Name, err)
			}
			if hits > 0 {
				rep.Warnings = append(rep.Warnings, fmt.Sprintf(check.Message, hits))
			}
		}
	}
	return rep, nil
}

// Validate compares per-entity source counts against migrated
// destination rows (those carrying a legacy_id). With a tenant filter
// the destination side still counts all migrated rows, since the
// destination cannot be scoped without joining across databases.
func Validate(ctx context.Context, source, target *pgx.Conn, steps []Step, tenantID int64) (*report.ValidationSummary, error) {
	sum := &report.ValidationSummary{
		SourceLabel: "Legacy rows",
		TargetLabel: "Migrated rows",
	}
	if tenantID > 0 {
		sum.Warnings = append(sum.Warnings,
			fmt.Sprintf("tenant filter %d scopes source counts only; migrated counts cover all tenants", tenantID))
	}
	for _, step := range steps {
		var src int
		if err := source.QueryRow(ctx, buildSourceCount(step.Source, tenantID)).Scan(&src); err != nil {
			return nil, fmt.Errorf("counting %s: %w", step.Source.Table, err)
		}
		var dst int
		err := target.QueryRow(ctx,
			fmt.Sprintf("SELECT count(*) FROM %s WHERE legacy_id IS NOT NULL", step.Table)).Scan(&dst)
		if err != nil {
			if isUndefinedTable(err) {
				sum.Warnings = append(sum.Warnings, fmt.Sprintf("target table %s does not exist", step.Table))
				dst = 0
			} else {
				return nil, fmt.Errorf("counting %s: %w", step.Table, err)
			}
		}
		sum.Rows = append(sum.Rows, report.ValidationRow{
			Label:       step.Name,
			SourceCount: src,
			TargetCount: dst,
		})
	}
	return sum, nil
}
