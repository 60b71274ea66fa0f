package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
)

// writeBatch writes insertion candidates in WriteSize chunks, one
// multi-row insert-or-update per chunk inside a relaxed-durability
// transaction. A chunk that fails as a whole is rolled back and retried
// row by row; rows that fail individually are errored and excluded from
// the map. Only infrastructure failures (beginning a transaction)
// return an error.
func (e *Engine) writeBatch(ctx context.Context, step Step, cands []*TargetPayload) (BatchResult, []string, error) {
	var br BatchResult
	var rowErrs []string
	for start := 0; start < len(cands); start += e.opts.WriteSize {
		end := start + e.opts.WriteSize
		if end > len(cands) {
			end = len(cands)
		}
		if err := e.writeChunk(ctx, step, cands[start:end], &br, &rowErrs); err != nil {
			return br, rowErrs, err
		}
	}
	return br, rowErrs, nil
}

func (e *Engine) writeChunk(ctx context.Context, step Step, chunk []*TargetPayload, br *BatchResult, rowErrs *[]string) error {
	if len(chunk) == 0 {
		return nil
	}
	tx, err := e.target.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning write transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	// Commit acknowledgment may lag; the legacy database stays the
	// source of truth until the run is verified, so a lost tail on
	// crash is re-copied by the next run.
	var byLegacy map[string]int64
	_, err = tx.Exec(ctx, "SET LOCAL synchronous_commit TO off")
	if err == nil {
		var rows pgx.Rows
		rows, err = tx.Query(ctx, buildInsertSQL(step, len(chunk)), insertArgs(step, chunk)...)
		if err == nil {
			byLegacy, err = scanReturned(rows, len(chunk))
		}
	}
	if err == nil {
		err = tx.Commit(ctx)
	}
	if err != nil {
		tx.Rollback(ctx) //nolint:errcheck
		e.log.Debug("batch insert failed, retrying row by row",
			"step", step.Name, "rows", len(chunk), "code", pgCode(err), "error", err)
		e.writeRows(ctx, step, chunk, br, rowErrs)
		return nil
	}

	m := e.maps.Kind(step.Name)
	for _, p := range chunk {
		id, ok := byLegacy[p.OldID]
		if !ok {
			br.Errored++
			*rowErrs = append(*rowErrs, fmt.Sprintf("%s: old_id %s: insert returned no row", step.Name, p.OldID))
			continue
		}
		p.newID = id
		p.resolved = true
		m.Set(p.OldID, id)
		br.Inserted++
	}
	return nil
}

func scanReturned(rows pgx.Rows, n int) (map[string]int64, error) {
	defer rows.Close()
	out := make(map[string]int64, n)
	for rows.Next() {
		var id int64
		var legacyID string
		if err := rows.Scan(&id, &legacyID); err != nil {
			return nil, err
		}
		out[legacyID] = id
	}
	return out, rows.Err()
}

// writeRows is the per-row fallback: each row in its own implicit
// transaction, so one malformed row no longer poisons its neighbors.
func (e *Engine) writeRows(ctx context.Context, step Step, chunk []*TargetPayload, br *BatchResult, rowErrs *[]string) {
	sql := buildInsertSQL(step, 1)
	m := e.maps.Kind(step.Name)
	for _, p := range chunk {
		var id int64
		var legacyID string
		err := e.target.QueryRow(ctx, sql, insertArgs(step, []*TargetPayload{p})...).Scan(&id, &legacyID)
		if err != nil {
			br.Errored++
			if isUniqueViolation(err) {
				// The destination already holds this key under another
				// legacy_id (or none); the row needs operator review.
				*rowErrs = append(*rowErrs, fmt.Sprintf("%s: old_id %s: duplicate key: %v", step.Name, p.OldID, err))
			} else {
				*rowErrs = append(*rowErrs, fmt.Sprintf("%s: old_id %s: insert: %v", step.Name, p.OldID, err))
			}
			continue
		}
		p.newID = id
		p.resolved = true
		m.Set(p.OldID, id)
		br.Inserted++
	}
}

// buildInsertSQL composes the multi-row insert-or-update for n rows.
// The conflict target is the legacy_id column every destination table
// carries; matched rows are updated per the step's policy. With no
// update columns the statement still updates legacy_id to itself so
// RETURNING reports conflicting rows and the map can rebuild without a
// second query.
func buildInsertSQL(step Step, n int) string {
	cols := make([]string, 0, len(step.Columns)+1)
	cols = append(cols, "legacy_id")
	cols = append(cols, step.Columns...)

	var b strings.Builder
	fmt.Fprintf(&b, "INSERT INTO %s AS t (%s) VALUES ", step.Table, strings.Join(cols, ", "))
	arg := 1
	for i := 0; i < n; i++ {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString("(")
		for j := range cols {
			if j > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "$%d", arg)
			arg++
		}
		b.WriteString(")")
	}
	b.WriteString(" ON CONFLICT (legacy_id) DO UPDATE SET ")
	if len(step.UpdateColumns) == 0 {
		b.WriteString("legacy_id = EXCLUDED.legacy_id")
	} else {
		for i, c := range step.UpdateColumns {
			if i > 0 {
				b.WriteString(", ")
			}
			switch step.Update {
			case PreserveNonEmpty:
				fmt.Fprintf(&b, "%s = CASE WHEN t.%s IS NULL OR t.%s::text IN ('', '{}', '[]') THEN EXCLUDED.%s ELSE t.%s END", c, c, c, c, c)
			default:
				fmt.Fprintf(&b, "%s = EXCLUDED.%s", c, c)
			}
		}
	}
	b.WriteString(" RETURNING id, legacy_id")
	return b.String()
}

// insertArgs flattens payload values in column order, legacy_id first.
func insertArgs(step Step, payloads []*TargetPayload) []any {
	args := make([]any, 0, len(payloads)*(len(step.Columns)+1))
	for _, p := range payloads {
		args = append(args, p.OldID)
		for _, c := range step.Columns {
			args = append(args, p.Values[c])
		}
	}
	return args
}
