package engine

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// cursorName is fixed: one cursor per step, one step at a time.
const cursorName = "rdm_step_cursor"

// cursor streams a source table in primary-key order without buffering
// the result set. It lives inside a read-only transaction; closing the
// cursor ends the transaction.
type cursor struct {
	tx    pgx.Tx
	fetch int
}

// openCursor declares a server-side cursor over the step's source
// query. Any later fetch error is fatal to the step: a broken cursor
// cannot be resumed mid-stream.
func (e *Engine) openCursor(ctx context.Context, q SourceQuery) (*cursor, error) {
	tx, err := e.source.BeginTx(ctx, pgx.TxOptions{AccessMode: pgx.ReadOnly})
	if err != nil {
		return nil, fmt.Errorf("beginning source transaction: %w", err)
	}
	sel := buildSourceSelect(q, e.opts.TenantID)
	if _, err := tx.Exec(ctx, fmt.Sprintf("DECLARE %s NO SCROLL CURSOR FOR %s", cursorName, sel)); err != nil {
		tx.Rollback(ctx) //nolint:errcheck
		return nil, fmt.Errorf("declaring cursor over %s: %w", q.Table, err)
	}
	return &cursor{tx: tx, fetch: e.opts.FetchSize}, nil
}

// Next returns the next batch, at most fetch rows. An empty batch
// signals exhaustion.
func (c *cursor) Next(ctx context.Context) ([]SourceRow, error) {
	rows, err := c.tx.Query(ctx, fmt.Sprintf("FETCH FORWARD %d FROM %s", c.fetch, cursorName))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var batch []SourceRow
	var cols []string
	for rows.Next() {
		if cols == nil {
			descs := rows.FieldDescriptions()
			cols = make([]string, len(descs))
			for i, d := range descs {
				cols[i] = d.Name
			}
		}
		vals, err := rows.Values()
		if err != nil {
			return nil, err
		}
		row := make(SourceRow, len(cols))
		for i, col := range cols {
			row[col] = vals[i]
		}
		batch = append(batch, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return batch, nil
}

// Close releases the cursor and its transaction. The transaction is
// read-only, so rollback and commit are equivalent; Close is safe to
// call twice.
func (c *cursor) Close(ctx context.Context) {
	c.tx.Rollback(ctx) //nolint:errcheck
}
