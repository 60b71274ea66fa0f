package engine

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// Staging relations live in the destination session's temp schema and
// are dropped at step end, so a crashed run leaves nothing behind once
// the connection dies.
const (
	stagingTable = "rdm_pending_refs"
	mapTable     = "rdm_id_map"
)

func (e *Engine) ensureStaging(ctx context.Context) error {
	if _, err := e.target.Exec(ctx, "DROP TABLE IF EXISTS "+stagingTable); err != nil {
		return fmt.Errorf("resetting staging relation: %w", err)
	}
	_, err := e.target.Exec(ctx, `
		CREATE TEMP TABLE `+stagingTable+` (
			new_id   bigint NOT NULL,
			ref_col  text   NOT NULL,
			ref_kind text   NOT NULL,
			old_id   text   NOT NULL
		)`)
	if err != nil {
		return fmt.Errorf("creating staging relation: %w", err)
	}
	return nil
}

func (e *Engine) dropStaging(ctx context.Context) error {
	if _, err := e.target.Exec(ctx, "DROP TABLE IF EXISTS "+stagingTable); err != nil {
		return fmt.Errorf("dropping staging relation: %w", err)
	}
	return nil
}

// stageRefs persists the batch's pending references once their owning
// rows have destination ids. References of rows that stayed unresolved
// (skipped or errored) stage nothing, which is what later leaves their
// columns null.
func (e *Engine) stageRefs(ctx context.Context, step Step, payloads []*TargetPayload) error {
	var rows [][]any
	for _, p := range payloads {
		if !p.resolved || len(p.Refs) == 0 {
			continue
		}
		for _, ref := range p.Refs {
			kind := step.refKind(ref.Column)
			if kind == "" {
				return fmt.Errorf("reference column %q is not declared on step %s", ref.Column, step.Name)
			}
			rows = append(rows, []any{p.newID, ref.Column, kind, ref.OldID})
		}
	}
	if len(rows) == 0 {
		return nil
	}
	_, err := e.target.CopyFrom(ctx,
		pgx.Identifier{stagingTable},
		[]string{"new_id", "ref_col", "ref_kind", "old_id"},
		pgx.CopyFromRows(rows))
	if err != nil {
		return fmt.Errorf("staging %d references: %w", len(rows), err)
	}
	return nil
}

// resolveRefs patches every staged reference column with one bulk
// UPDATE per declared column, joining the staging relation against the
// now-complete identifier map. A staged old-id that never made it into
// the map (its target was filtered, skipped, or errored) simply does
// not join, leaving the column at its prior value.
func (e *Engine) resolveRefs(ctx context.Context, step Step) error {
	for _, rc := range step.Refs {
		pairs := e.maps.Kind(rc.Kind).Pairs()

		tx, err := e.target.Begin(ctx)
		if err != nil {
			return fmt.Errorf("beginning resolve transaction: %w", err)
		}
		patched, err := resolveRefColumn(ctx, tx, step, rc, pairs)
		if err == nil {
			err = tx.Commit(ctx)
		}
		if err != nil {
			tx.Rollback(ctx) //nolint:errcheck
			return fmt.Errorf("resolving %s.%s: %w", step.Table, rc.Column, err)
		}
		e.log.Debug("references resolved",
			"step", step.Name, "column", rc.Column, "kind", rc.Kind, "patched", patched)
	}
	return nil
}

func resolveRefColumn(ctx context.Context, tx pgx.Tx, step Step, rc RefColumn, pairs [][]any) (int64, error) {
	_, err := tx.Exec(ctx, `
		CREATE TEMP TABLE `+mapTable+` (
			old_id text   PRIMARY KEY,
			new_id bigint NOT NULL
		) ON COMMIT DROP`)
	if err != nil {
		return 0, fmt.Errorf("creating map relation: %w", err)
	}
	if len(pairs) > 0 {
		if _, err := tx.CopyFrom(ctx, pgx.Identifier{mapTable}, []string{"old_id", "new_id"}, pgx.CopyFromRows(pairs)); err != nil {
			return 0, fmt.Errorf("loading map relation: %w", err)
		}
	}
	tag, err := tx.Exec(ctx, fmt.Sprintf(`
		UPDATE %s AS t SET %s = m.new_id
		FROM %s s
		JOIN %s m ON m.old_id = s.old_id
		WHERE s.ref_col = $1 AND s.ref_kind = $2 AND t.id = s.new_id`,
		step.Table, rc.Column, stagingTable, mapTable),
		rc.Column, rc.Kind)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
