package engine

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// resolveIdentities partitions a batch into rows that already exist in
// the destination and true insertion candidates, issuing at most one
// lookup round-trip per key class (natural, fallback) rather than one
// per row. Matched payloads get their destination id and a map entry;
// the returned candidates preserve batch order.
func (e *Engine) resolveIdentities(ctx context.Context, step Step, payloads []*TargetPayload) ([]*TargetPayload, int, error) {
	m := e.maps.Kind(step.Name)
	existing := 0

	byNatural := make(map[string]*TargetPayload)
	var fallback []*TargetPayload
	claimed := make(map[string]bool)

	for _, p := range payloads {
		if id, ok := m.Get(p.OldID); ok {
			p.newID = id
			p.resolved = true
			existing++
			continue
		}
		key := naturalKey(step, p)
		if key != "" && claimed[key] {
			// Second claim on the same natural key within this batch:
			// null the distinguishing columns and fall through to the
			// fallback class. Both rows still get destination rows.
			demote(step, p)
			key = ""
		}
		if key != "" {
			claimed[key] = true
			byNatural[key] = p
			continue
		}
		if len(step.Keys.FallbackColumns) > 0 {
			fallback = append(fallback, p)
		}
	}

	found, err := e.lookupNatural(ctx, step, byNatural)
	if err != nil {
		return nil, existing, err
	}
	existing += found

	found, err = e.lookupFallback(ctx, step, fallback)
	if err != nil {
		return nil, existing, err
	}
	existing += found

	candidates := make([]*TargetPayload, 0, len(payloads)-existing)
	for _, p := range payloads {
		if !p.resolved {
			candidates = append(candidates, p)
		}
	}
	return candidates, existing, nil
}

// naturalKey returns the payload's natural-key string, "" when the step
// has no natural key or any key value is absent (those rows fall back
// to the composite class).
func naturalKey(step Step, p *TargetPayload) string {
	cols := step.Keys.NaturalColumns
	if len(cols) == 0 {
		return ""
	}
	parts := make([]any, len(cols))
	for i, c := range cols {
		v, ok := p.Values[c]
		if !ok || v == nil || v == "" {
			return ""
		}
		parts[i] = v
	}
	return keyString(parts)
}

func demote(step Step, p *TargetPayload) {
	for _, c := range step.Keys.NullOnConflict {
		p.Values[c] = nil
	}
}

// keyString renders key values in a form that compares equal whether
// the values came from a transform or from a destination scan.
func keyString(vals []any) string {
	var b strings.Builder
	for _, v := range vals {
		switch x := v.(type) {
		case time.Time:
			b.WriteString(x.UTC().Format(time.RFC3339Nano))
		case []byte:
			b.Write(x)
		case int32:
			fmt.Fprintf(&b, "%d", x)
		case int:
			fmt.Fprintf(&b, "%d", x)
		default:
			fmt.Fprintf(&b, "%v", v)
		}
		b.WriteByte(0x1f)
	}
	return b.String()
}

// lookupNatural resolves a batch's natural-key rows with one
// set-membership query.
func (e *Engine) lookupNatural(ctx context.Context, step Step, byKey map[string]*TargetPayload) (int, error) {
	if len(byKey) == 0 {
		return 0, nil
	}
	cols := step.Keys.NaturalColumns

	var b strings.Builder
	fmt.Fprintf(&b, "SELECT id, %s FROM %s WHERE (%s) IN (",
		strings.Join(cols, ", "), step.Table, strings.Join(cols, ", "))
	args := make([]any, 0, len(byKey)*len(cols))
	first := true
	for _, p := range byKey {
		if !first {
			b.WriteString(", ")
		}
		first = false
		b.WriteString("(")
		for j, c := range cols {
			if j > 0 {
				b.WriteString(", ")
			}
			args = append(args, p.Values[c])
			fmt.Fprintf(&b, "$%d", len(args))
		}
		b.WriteString(")")
	}
	b.WriteString(")")

	rows, err := e.target.Query(ctx, b.String(), args...)
	if err != nil {
		return 0, fmt.Errorf("natural key lookup on %s: %w", step.Table, err)
	}
	defer rows.Close()

	m := e.maps.Kind(step.Name)
	found := 0
	for rows.Next() {
		vals, err := rows.Values()
		if err != nil {
			return found, fmt.Errorf("natural key lookup on %s: %w", step.Table, err)
		}
		id, ok := asInt64(vals[0])
		if !ok {
			continue
		}
		p, ok := byKey[keyString(vals[1:])]
		if !ok || p.resolved {
			continue
		}
		p.newID = id
		p.resolved = true
		m.Set(p.OldID, id)
		found++
	}
	if err := rows.Err(); err != nil {
		return found, fmt.Errorf("natural key lookup on %s: %w", step.Table, err)
	}
	return found, nil
}

// lookupFallback resolves likely-duplicate rows with one query joining
// an inline VALUES table against the destination on every fallback
// column at once. IS NOT DISTINCT FROM keeps null columns comparable.
func (e *Engine) lookupFallback(ctx context.Context, step Step, list []*TargetPayload) (int, error) {
	if len(list) == 0 {
		return 0, nil
	}
	cols := step.Keys.FallbackColumns
	types := step.Keys.FallbackTypes

	var b strings.Builder
	b.WriteString("SELECT DISTINCT ON (v.ord) v.ord, t.id FROM (VALUES ")
	args := make([]any, 0, len(list)*len(cols))
	for i, p := range list {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "(%d", i)
		for j, c := range cols {
			args = append(args, p.Values[c])
			fmt.Fprintf(&b, ", $%d::%s", len(args), types[j])
		}
		b.WriteString(")")
	}
	fmt.Fprintf(&b, ") AS v(ord, %s) JOIN %s t ON ", strings.Join(cols, ", "), step.Table)
	for j, c := range cols {
		if j > 0 {
			b.WriteString(" AND ")
		}
		fmt.Fprintf(&b, "t.%s IS NOT DISTINCT FROM v.%s", c, c)
	}
	b.WriteString(" ORDER BY v.ord, t.id")

	rows, err := e.target.Query(ctx, b.String(), args...)
	if err != nil {
		return 0, fmt.Errorf("fallback key lookup on %s: %w", step.Table, err)
	}
	defer rows.Close()

	m := e.maps.Kind(step.Name)
	found := 0
	for rows.Next() {
		var ord int
		var id int64
		if err := rows.Scan(&ord, &id); err != nil {
			return found, fmt.Errorf("fallback key lookup on %s: %w", step.Table, err)
		}
		if ord < 0 || ord >= len(list) || list[ord].resolved {
			continue
		}
		p := list[ord]
		p.newID = id
		p.resolved = true
		m.Set(p.OldID, id)
		found++
	}
	if err := rows.Err(); err != nil {
		return found, fmt.Errorf("fallback key lookup on %s: %w", step.Table, err)
	}
	return found, nil
}

func asInt64(v any) (int64, bool) {
	switch x := v.(type) {
	case int64:
		return x, true
	case int32:
		return int64(x), true
	case int:
		return int64(x), true
	default:
		return 0, false
	}
}
