package engine

import "strconv"

// IDMap records the destination id assigned to each legacy row of one
// entity kind. Entries are append-only and the first writer wins:
// a destination row found during lookup is authoritative over anything
// generated later in the same run.
type IDMap struct {
	ids map[string]int64
}

func NewIDMap() *IDMap {
	return &IDMap{ids: make(map[string]int64)}
}

// Set records old → new. It reports whether the entry was added; an
// already-present old-id is left untouched.
func (m *IDMap) Set(oldID string, newID int64) bool {
	if _, ok := m.ids[oldID]; ok {
		return false
	}
	m.ids[oldID] = newID
	return true
}

func (m *IDMap) Get(oldID string) (int64, bool) {
	id, ok := m.ids[oldID]
	return id, ok
}

func (m *IDMap) Len() int { return len(m.ids) }

// Pairs returns the entries as (old_id, new_id) rows for COPY into a
// staging map table.
func (m *IDMap) Pairs() [][]any {
	rows := make([][]any, 0, len(m.ids))
	for old, id := range m.ids {
		rows = append(rows, []any{old, id})
	}
	return rows
}

// Lookup resolves legacy identifiers to destination ids across entity
// kinds. Transforms receive it read-only.
type Lookup interface {
	NewID(kind, oldID string) (int64, bool)
}

// RunMaps holds one IDMap per entity kind for the duration of a run.
// Steps populate their own kind; later steps read earlier kinds.
type RunMaps struct {
	kinds map[string]*IDMap
}

func NewRunMaps() *RunMaps {
	return &RunMaps{kinds: make(map[string]*IDMap)}
}

// Kind returns the map for an entity kind, creating it if needed.
func (r *RunMaps) Kind(kind string) *IDMap {
	m, ok := r.kinds[kind]
	if !ok {
		m = NewIDMap()
		r.kinds[kind] = m
	}
	return m
}

// NewID implements Lookup.
func (r *RunMaps) NewID(kind, oldID string) (int64, bool) {
	m, ok := r.kinds[kind]
	if !ok {
		return 0, false
	}
	return m.Get(oldID)
}

// parseID extracts the numeric value of an old-id. Synthetic key
// generation derives from it; non-numeric old-ids fall back to a
// stable hash of the string.
func parseID(oldID string) (int64, bool) {
	if n, err := strconv.ParseInt(oldID, 10, 64); err == nil {
		return n, true
	}
	var h int64
	for _, c := range oldID {
		h = h*31 + int64(c)
	}
	if h < 0 {
		h = -h
	}
	return h, false
}
