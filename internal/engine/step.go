package engine

import (
	"fmt"
	"strings"
)

// UpdatePolicy decides what an insert does when the destination already
// holds the row (matched on legacy_id).
type UpdatePolicy int

const (
	// OverwriteAlways replaces the declared update columns with the
	// freshly transformed values.
	OverwriteAlways UpdatePolicy = iota
	// PreserveNonEmpty keeps a destination value the operator may have
	// edited since the last run, taking the transformed value only when
	// the stored one is null or empty.
	PreserveNonEmpty
)

// SourceQuery declares how a step reads the legacy table. Ordering by
// the primary key is mandatory: cursor pagination is only stable over
// a deterministic order.
type SourceQuery struct {
	Table   string
	Columns []string
	// OrderBy is the primary-key column.
	OrderBy string
	// TenantColumn scopes the query when a tenant filter is set; for
	// the tenants table itself this is the primary key.
	TenantColumn string
}

// KeySpec declares how rows of a step are identified for duplicate
// detection beyond the legacy_id match.
type KeySpec struct {
	// NaturalColumns form the destination's unique key when every
	// value is present (e.g. company_id + phone).
	NaturalColumns []string
	// NullOnConflict are the columns nulled when a second row in the
	// same batch claims an already-claimed natural key; the demoted
	// row still gets a destination row of its own.
	NullOnConflict []string
	// FallbackColumns form the likely-duplicate composite used when a
	// natural key value is absent (e.g. ticket + direction + sent_at +
	// body). FallbackTypes carries the matching PostgreSQL type per
	// column for the inline VALUES construction.
	FallbackColumns []string
	FallbackTypes   []string
	// Synthetic generates a value for a uniqueness-constrained column
	// the source never stored.
	Synthetic *SyntheticKey
}

// SyntheticKey configures deterministic generation of a unique column.
type SyntheticKey struct {
	Column      string
	Generate    func(id int64, attempt int) string
	MaxAttempts int
}

// RefColumn declares a destination column holding a reference that is
// staged during streaming and patched after the last batch.
type RefColumn struct {
	Column string
	// Kind names the entity map the reference resolves against; a step
	// may reference its own kind (message reply-to).
	Kind string
}

// SourceCheck flags a data-shape gap during analysis: rows a run would
// skip, duplicate natural keys, and similar. SQL must return a single
// count and take the tenant id as $1, guarding it with
// ($1 = 0 OR <tenant column> = $1) so an unscoped run checks everything.
// Message is a fmt verb string receiving the count.
type SourceCheck struct {
	Message string
	SQL     string
}

// Step is one entity migration, expressed as configuration of the
// generic engine: where to read, how to reshape, how to identify, and
// where to write.
type Step struct {
	Name  string
	Index int
	Total int

	Source SourceQuery

	// Table is the destination table. Columns are the destination
	// columns the transform fills (legacy_id and id are engine-owned
	// and excluded).
	Table   string
	Columns []string

	Keys KeySpec

	// Update declares the on-conflict policy for UpdateColumns; with no
	// UpdateColumns a re-run leaves matched rows untouched.
	Update        UpdatePolicy
	UpdateColumns []string

	Refs []RefColumn

	// Needs lists entity kinds whose maps must be loaded before this
	// step runs (required lookups and staged reference kinds).
	Needs []string

	// AliasSQL reconstructs published alias map entries from
	// destination state, returning (old_id, id) rows. Needed so a
	// resumed run sees the same map a fresh run built.
	AliasSQL string

	// Checks run during analysis only; they never gate a run.
	Checks []SourceCheck

	Transform TransformFunc
}

// Validate checks the step declaration for internal consistency:
// every key, update, and synthetic column must be a declared target
// column. The engine runs it before touching either database.
func (s Step) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("step name is required")
	}
	if s.Source.Table == "" {
		return fmt.Errorf("source table is required")
	}
	if len(s.Source.Columns) == 0 {
		return fmt.Errorf("source columns are required")
	}
	if s.Source.OrderBy == "" {
		return fmt.Errorf("source order column is required")
	}
	if s.Table == "" {
		return fmt.Errorf("target table is required")
	}
	if len(s.Columns) == 0 {
		return fmt.Errorf("target columns are required")
	}
	if s.Transform == nil {
		return fmt.Errorf("transform is required")
	}
	cols := make(map[string]bool, len(s.Columns))
	for _, c := range s.Columns {
		cols[c] = true
	}
	for _, c := range s.Keys.NaturalColumns {
		if !cols[c] {
			return fmt.Errorf("natural key column %q is not a target column", c)
		}
	}
	for _, c := range s.Keys.NullOnConflict {
		if !cols[c] {
			return fmt.Errorf("demotion column %q is not a target column", c)
		}
	}
	if len(s.Keys.FallbackColumns) != len(s.Keys.FallbackTypes) {
		return fmt.Errorf("fallback key needs one type per column (%d columns, %d types)",
			len(s.Keys.FallbackColumns), len(s.Keys.FallbackTypes))
	}
	for _, c := range s.Keys.FallbackColumns {
		if !cols[c] {
			return fmt.Errorf("fallback key column %q is not a target column", c)
		}
	}
	if sk := s.Keys.Synthetic; sk != nil {
		if sk.Column == "" || sk.Generate == nil {
			return fmt.Errorf("synthetic key needs a column and a generator")
		}
		if !cols[sk.Column] {
			return fmt.Errorf("synthetic key column %q is not a target column", sk.Column)
		}
	}
	for _, c := range s.UpdateColumns {
		if !cols[c] {
			return fmt.Errorf("update column %q is not a target column", c)
		}
	}
	for _, rc := range s.Refs {
		if rc.Column == "" || rc.Kind == "" {
			return fmt.Errorf("reference columns need a column and a kind")
		}
	}
	return nil
}

// refKind returns the declared kind for a reference column, "" when the
// column is not declared.
func (s Step) refKind(col string) string {
	for _, rc := range s.Refs {
		if rc.Column == col {
			return rc.Kind
		}
	}
	return ""
}

// buildSourceSelect composes the cursor query. The tenant value is
// inlined because DECLARE cannot be parameterized; it is an integer, so
// inlining is safe.
func buildSourceSelect(q SourceQuery, tenantID int64) string {
	var b strings.Builder
	b.WriteString("SELECT ")
	b.WriteString(strings.Join(q.Columns, ", "))
	b.WriteString(" FROM ")
	b.WriteString(q.Table)
	if tenantID > 0 && q.TenantColumn != "" {
		fmt.Fprintf(&b, " WHERE %s = %d", q.TenantColumn, tenantID)
	}
	b.WriteString(" ORDER BY ")
	b.WriteString(q.OrderBy)
	return b.String()
}

func buildSourceCount(q SourceQuery, tenantID int64) string {
	var b strings.Builder
	b.WriteString("SELECT count(*) FROM ")
	b.WriteString(q.Table)
	if tenantID > 0 && q.TenantColumn != "" {
		fmt.Fprintf(&b, " WHERE %s = %d", q.TenantColumn, tenantID)
	}
	return b.String()
}
