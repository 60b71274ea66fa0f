package engine

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

// ErrSkipRow marks a row the transform excluded from the batch: a
// required reference (typically the owning company) could not be
// resolved. Skipped rows are counted separately from errored rows.
var ErrSkipRow = errors.New("row excluded from batch")

// ErrKeyExhausted is returned when the synthetic-key collision loop
// runs out of attempts for one row.
var ErrKeyExhausted = errors.New("synthetic key space exhausted")

// pgCode extracts the SQLSTATE from a PostgreSQL error, "" otherwise.
func pgCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

func isUniqueViolation(err error) bool {
	return pgCode(err) == "23505"
}

func isUndefinedTable(err error) bool {
	return pgCode(err) == "42P01"
}
