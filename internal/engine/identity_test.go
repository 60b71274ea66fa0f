package engine

import (
	"testing"
	"time"

	"github.com/relaydesk/rdm/internal/testutil"
)

func TestKeyString(t *testing.T) {
	t.Parallel()
	t.Run("distinct values distinct keys", func(t *testing.T) {
		t.Parallel()
		a := keyString([]any{int64(1), "5511999"})
		b := keyString([]any{int64(1), "5511998"})
		c := keyString([]any{int64(2), "5511999"})
		testutil.NotEqual(t, a, b)
		testutil.NotEqual(t, a, c)
	})

	t.Run("separator prevents concatenation collisions", func(t *testing.T) {
		t.Parallel()
		a := keyString([]any{"ab", "c"})
		b := keyString([]any{"a", "bc"})
		testutil.NotEqual(t, a, b)
	})

	t.Run("driver int widths compare equal", func(t *testing.T) {
		t.Parallel()
		// The transform may set an int where the destination scan
		// yields an int64; both must form the same key.
		testutil.Equal(t, keyString([]any{int64(7)}), keyString([]any{int32(7)}))
		testutil.Equal(t, keyString([]any{int64(7)}), keyString([]any{int(7)}))
	})

	t.Run("times compare in UTC", func(t *testing.T) {
		t.Parallel()
		utc := time.Date(2022, 5, 1, 12, 0, 0, 0, time.UTC)
		brt := utc.In(time.FixedZone("BRT", -3*3600))
		testutil.Equal(t, keyString([]any{utc}), keyString([]any{brt}))
	})

	t.Run("bytes equal strings", func(t *testing.T) {
		t.Parallel()
		testutil.Equal(t, keyString([]any{"abc"}), keyString([]any{[]byte("abc")}))
	})
}

func TestNaturalKey(t *testing.T) {
	t.Parallel()
	step := Step{
		Columns: []string{"company_id", "phone", "name"},
		Keys:    KeySpec{NaturalColumns: []string{"company_id", "phone"}},
	}

	t.Run("complete key", func(t *testing.T) {
		t.Parallel()
		p := NewPayload("1")
		p.Set("company_id", int64(3))
		p.Set("phone", "5511999")
		testutil.NotEqual(t, "", naturalKey(step, p))
	})

	t.Run("nil value falls back", func(t *testing.T) {
		t.Parallel()
		p := NewPayload("1")
		p.Set("company_id", int64(3))
		p.Set("phone", nil)
		testutil.Equal(t, "", naturalKey(step, p))
	})

	t.Run("empty string falls back", func(t *testing.T) {
		t.Parallel()
		p := NewPayload("1")
		p.Set("company_id", int64(3))
		p.Set("phone", "")
		testutil.Equal(t, "", naturalKey(step, p))
	})

	t.Run("unset column falls back", func(t *testing.T) {
		t.Parallel()
		p := NewPayload("1")
		p.Set("company_id", int64(3))
		testutil.Equal(t, "", naturalKey(step, p))
	})

	t.Run("no natural key configured", func(t *testing.T) {
		t.Parallel()
		p := NewPayload("1")
		p.Set("company_id", int64(3))
		testutil.Equal(t, "", naturalKey(Step{}, p))
	})
}

func TestDemote(t *testing.T) {
	t.Parallel()
	step := Step{
		Columns: []string{"company_id", "phone", "name"},
		Keys: KeySpec{
			NaturalColumns: []string{"company_id", "phone"},
			NullOnConflict: []string{"phone"},
		},
	}
	p := NewPayload("2")
	p.Set("company_id", int64(3))
	p.Set("phone", "5511999")
	p.Set("name", "Dup")

	demote(step, p)
	testutil.Nil(t, p.Values["phone"])
	testutil.Equal(t, "Dup", p.Values["name"].(string))
	// A demoted row no longer forms a natural key.
	testutil.Equal(t, "", naturalKey(step, p))
}

func TestAsInt64(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		val  any
		want int64
		ok   bool
	}{
		{"int64", int64(5), 5, true},
		{"int32", int32(5), 5, true},
		{"int", int(5), 5, true},
		{"string", "5", 0, false},
		{"nil", nil, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, ok := asInt64(tt.val)
			testutil.Equal(t, tt.ok, ok)
			testutil.Equal(t, tt.want, got)
		})
	}
}
