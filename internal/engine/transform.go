package engine

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// SourceRow is one row read from the legacy database: column name to
// value, as the driver decoded it. Rows are read once and discarded
// after transformation.
type SourceRow map[string]any

// Value returns the raw column value, nil when absent.
func (r SourceRow) Value(col string) any { return r[col] }

// String returns the column as a string, "" when null or absent.
func (r SourceRow) String(col string) string {
	switch v := r[col].(type) {
	case nil:
		return ""
	case string:
		return v
	case []byte:
		return string(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case int32:
		return strconv.FormatInt(int64(v), 10)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	case time.Time:
		return v.UTC().Format(time.RFC3339Nano)
	default:
		return ""
	}
}

// Int64 returns the column as an integer when it holds one.
func (r SourceRow) Int64(col string) (int64, bool) {
	switch v := r[col].(type) {
	case int64:
		return v, true
	case int32:
		return int64(v), true
	case int:
		return int64(v), true
	case float64:
		return int64(v), true
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		return n, err == nil
	case []byte:
		n, err := strconv.ParseInt(strings.TrimSpace(string(v)), 10, 64)
		return n, err == nil
	default:
		return 0, false
	}
}

// Bool coerces legacy truthiness: SQLite-era writers stored booleans as
// integers and strings interchangeably.
func (r SourceRow) Bool(col string) bool {
	switch v := r[col].(type) {
	case bool:
		return v
	case int64:
		return v != 0
	case int32:
		return v != 0
	case int:
		return v != 0
	case float64:
		return v != 0
	case string:
		s := strings.ToLower(strings.TrimSpace(v))
		return s == "true" || s == "t" || s == "1" || s == "yes"
	default:
		return false
	}
}

// Time returns the column as a UTC timestamp, tolerating the epoch and
// ISO forms ParseTime understands.
func (r SourceRow) Time(col string) (time.Time, bool) {
	return ParseTime(r[col])
}

// OldID renders the row's value in col as the canonical old-id string.
func (r SourceRow) OldID(col string) string {
	return FormatID(r[col])
}

// FormatID renders a legacy primary-key value as the old-id string used
// in maps and staging relations. Integer and string keys format
// identically across runs.
func FormatID(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(x)
	case []byte:
		return strings.TrimSpace(string(x))
	case int64:
		return strconv.FormatInt(x, 10)
	case int32:
		return strconv.FormatInt(int64(x), 10)
	case int:
		return strconv.FormatInt(int64(x), 10)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	default:
		return ""
	}
}

// TransformFunc maps one source row to one target payload. Transforms
// are pure: no access to other rows of the run, no side effects, and
// the same row always yields the same payload. Returning ErrSkipRow
// excludes the row from the batch (counted skipped, not errored).
type TransformFunc func(row SourceRow, look Lookup) (*TargetPayload, error)

// TargetPayload is one transformed row bound for the destination:
// column values plus the engine-private identity of the source row and
// any references that cannot be filled in yet.
type TargetPayload struct {
	// OldID is the stable source identifier; the engine persists it in
	// the destination's legacy_id column.
	OldID string
	// Values holds destination column → value. Columns the step does
	// not declare are rejected at write time.
	Values map[string]any
	// Refs are pointers to rows (of this or another entity) whose
	// destination ids may not exist yet; they are staged and resolved
	// after the last batch.
	Refs []PendingRef
	// Aliases are extra old-ids that resolve to this row, published to
	// the map alongside OldID (e.g. "default:<tenant>" for a tenant's
	// default channel).
	Aliases []string

	// Engine working state.
	newID    int64
	resolved bool
}

// PendingRef is a forward reference: column to patch and the legacy id
// of the referenced row. The kind is declared on the step per column.
type PendingRef struct {
	Column string
	OldID  string
}

// NewPayload starts a payload for the given source identity.
func NewPayload(oldID string) *TargetPayload {
	return &TargetPayload{OldID: oldID, Values: make(map[string]any)}
}

// Set assigns a destination column value.
func (p *TargetPayload) Set(col string, v any) { p.Values[col] = v }

// Ref records a pending reference for col.
func (p *TargetPayload) Ref(col, oldID string) {
	if oldID == "" {
		return
	}
	p.Refs = append(p.Refs, PendingRef{Column: col, OldID: oldID})
}

// Alias publishes an extra old-id for this row.
func (p *TargetPayload) Alias(oldID string) {
	if oldID == "" {
		return
	}
	p.Aliases = append(p.Aliases, oldID)
}

// NewID returns the destination id the engine assigned, zero until the
// row has been written or matched.
func (p *TargetPayload) NewID() int64 { return p.newID }

// CoerceJSON normalizes a legacy JSON-ish value to canonical JSON text.
// Legacy columns hold native structures, string-encoded JSON, or
// nothing, depending on which writer produced them; absent or
// unparseable input yields def (typically "{}" or "[]") so NOT NULL
// jsonb columns never receive null. String members are cleaned the
// same way CleanText cleans text columns.
func CoerceJSON(v any, def string) string {
	switch x := v.(type) {
	case nil:
		return def
	case string:
		return coerceJSONText(x, def)
	case []byte:
		return coerceJSONText(string(x), def)
	default:
		out, err := json.Marshal(cleanJSONValue(x))
		if err != nil {
			return def
		}
		return string(out)
	}
}

func coerceJSONText(s, def string) string {
	s = strings.TrimSpace(CleanText(s))
	if s == "" {
		return def
	}
	var v any
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return def
	}
	out, err := json.Marshal(cleanJSONValue(v))
	if err != nil {
		return def
	}
	return string(out)
}

// cleanJSONValue walks a decoded JSON structure repairing every string
// member. jsonb rejects NUL bytes even when the surrounding document is
// valid.
func cleanJSONValue(v any) any {
	switch x := v.(type) {
	case string:
		return CleanText(x)
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, val := range x {
			out[CleanText(k)] = cleanJSONValue(val)
		}
		return out
	case []any:
		out := make([]any, len(x))
		for i, val := range x {
			out[i] = cleanJSONValue(val)
		}
		return out
	default:
		return v
	}
}
