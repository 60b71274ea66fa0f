package engine

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// validateStep checks the step's declared mapping against both live
// schemas once, before any row is read. Legacy naming drifted over the
// years; validating the declaration up front replaces probing columns
// per row.
func (e *Engine) validateStep(ctx context.Context, step Step) error {
	src, err := tableColumns(ctx, e.source, step.Source.Table)
	if err != nil {
		return fmt.Errorf("validating source mapping: %w", err)
	}
	for _, c := range step.Source.Columns {
		if !src[c] {
			return fmt.Errorf("source table %s has no column %q", step.Source.Table, c)
		}
	}
	if !src[step.Source.OrderBy] {
		return fmt.Errorf("source table %s has no order column %q", step.Source.Table, step.Source.OrderBy)
	}
	if step.Source.TenantColumn != "" && !src[step.Source.TenantColumn] {
		return fmt.Errorf("source table %s has no tenant column %q", step.Source.Table, step.Source.TenantColumn)
	}

	dst, err := tableColumns(ctx, e.target, step.Table)
	if err != nil {
		return fmt.Errorf("validating target mapping: %w", err)
	}
	for _, c := range append([]string{"id", "legacy_id"}, step.Columns...) {
		if !dst[c] {
			return fmt.Errorf("target table %s has no column %q", step.Table, c)
		}
	}
	for _, rc := range step.Refs {
		if !dst[rc.Column] {
			return fmt.Errorf("target table %s has no reference column %q", step.Table, rc.Column)
		}
	}
	return nil
}

func tableColumns(ctx context.Context, conn *pgx.Conn, table string) (map[string]bool, error) {
	rows, err := conn.Query(ctx, `
		SELECT column_name
		FROM information_schema.columns
		WHERE table_schema = current_schema() AND table_name = $1`, table)
	if err != nil {
		return nil, fmt.Errorf("reading columns of %s: %w", table, err)
	}
	defer rows.Close()

	cols := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("reading columns of %s: %w", table, err)
		}
		cols[name] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading columns of %s: %w", table, err)
	}
	if len(cols) == 0 {
		return nil, fmt.Errorf("table %s not found", table)
	}
	return cols, nil
}
