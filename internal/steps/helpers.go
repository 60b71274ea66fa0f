package steps

import (
	"strings"
	"time"

	"github.com/relaydesk/rdm/internal/engine"
)

// enumOr maps a legacy enum value into the target vocabulary. Unknown
// and absent values take the conservative default instead of failing
// the row.
func enumOr(table map[string]string, raw, def string) string {
	if v, ok := table[strings.ToLower(strings.TrimSpace(raw))]; ok {
		return v
	}
	return def
}

// normalizePhone reduces a legacy phone value to bare digits. Legacy
// writers stored numbers with country prefixes, punctuation, and
// whitespace interchangeably; the destination keys contacts on the
// digit string.
func normalizePhone(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// textOrNil cleans a legacy text value for a nullable destination
// column: trimmed and repaired, nil when nothing remains.
func textOrNil(s string) any {
	s = strings.TrimSpace(engine.CleanText(s))
	if s == "" {
		return nil
	}
	return s
}

// boolOr coerces a legacy boolean column, falling back when the column
// is null or absent.
func boolOr(row engine.SourceRow, col string, def bool) bool {
	if row.Value(col) == nil {
		return def
	}
	return row.Bool(col)
}

// rowTimes extracts created/updated timestamps with fallbacks: a
// missing created_at becomes the migration moment, a missing
// updated_at becomes created_at.
func rowTimes(row engine.SourceRow) (created, updated time.Time) {
	created, ok := row.Time("created_at")
	if !ok {
		created = time.Now().UTC()
	}
	updated, ok = row.Time("updated_at")
	if !ok {
		updated = created
	}
	return created, updated
}
