package engine

import (
	"testing"
	"time"

	"github.com/relaydesk/rdm/internal/testutil"
)

func TestSourceRowString(t *testing.T) {
	t.Parallel()
	row := SourceRow{
		"name":   "Maria",
		"raw":    []byte("bytes"),
		"big":    int64(42),
		"small":  int32(7),
		"score":  float64(9.5),
		"flag":   true,
		"when":   time.Date(2022, 1, 2, 3, 4, 5, 0, time.UTC),
		"absent": nil,
	}
	tests := []struct {
		name string
		col  string
		want string
	}{
		{"string", "name", "Maria"},
		{"bytes", "raw", "bytes"},
		{"int64", "big", "42"},
		{"int32", "small", "7"},
		{"float", "score", "9.5"},
		{"bool", "flag", "true"},
		{"time", "when", "2022-01-02T03:04:05Z"},
		{"null", "absent", ""},
		{"missing column", "nope", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			testutil.Equal(t, tt.want, row.String(tt.col))
		})
	}
}

func TestSourceRowInt64(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		val  any
		want int64
		ok   bool
	}{
		{"int64", int64(99), 99, true},
		{"int32", int32(-3), -3, true},
		{"int", int(12), 12, true},
		{"float", float64(41.0), 41, true},
		{"numeric string", "1234", 1234, true},
		{"padded string", " 55 ", 55, true},
		{"numeric bytes", []byte("77"), 77, true},
		{"word string", "abc", 0, false},
		{"nil", nil, 0, false},
		{"bool", true, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			row := SourceRow{"v": tt.val}
			got, ok := row.Int64("v")
			testutil.Equal(t, tt.ok, ok)
			testutil.Equal(t, tt.want, got)
		})
	}
}

func TestSourceRowBool(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		val  any
		want bool
	}{
		{"bool true", true, true},
		{"bool false", false, false},
		{"int one", int64(1), true},
		{"int zero", int64(0), false},
		{"int negative", int64(-1), true},
		{"float one", float64(1), true},
		{"string true", "true", true},
		{"string TRUE", "TRUE", true},
		{"string t", "t", true},
		{"string 1", "1", true},
		{"string yes", "yes", true},
		{"string false", "false", false},
		{"string 0", "0", false},
		{"string empty", "", false},
		{"nil", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			row := SourceRow{"v": tt.val}
			testutil.Equal(t, tt.want, row.Bool("v"))
		})
	}
}

func TestFormatID(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		val  any
		want string
	}{
		{"nil", nil, ""},
		{"string", "abc-123", "abc-123"},
		{"padded string", "  42  ", "42"},
		{"bytes", []byte("xyz"), "xyz"},
		{"int64", int64(9), "9"},
		{"int32", int32(8), "8"},
		{"int", int(7), "7"},
		{"float whole", float64(15), "15"},
		{"unsupported", struct{}{}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			testutil.Equal(t, tt.want, FormatID(tt.val))
		})
	}
}

func TestFormatIDAgreesAcrossDrivers(t *testing.T) {
	t.Parallel()
	// The same key read as int64, string, or bytes must map to the
	// same old-id, or resumed runs would not find their own rows.
	testutil.Equal(t, FormatID(int64(1001)), FormatID("1001"))
	testutil.Equal(t, FormatID(int64(1001)), FormatID([]byte("1001")))
	testutil.Equal(t, FormatID(int64(1001)), FormatID(float64(1001)))
}

func TestTargetPayload(t *testing.T) {
	t.Parallel()
	t.Run("set and values", func(t *testing.T) {
		t.Parallel()
		p := NewPayload("7")
		p.Set("name", "Ana")
		p.Set("age", 30)
		testutil.Equal(t, "7", p.OldID)
		testutil.MapLen(t, p.Values, 2)
		testutil.Equal(t, "Ana", p.Values["name"].(string))
	})

	t.Run("ref ignores empty old id", func(t *testing.T) {
		t.Parallel()
		p := NewPayload("7")
		p.Ref("contact_id", "")
		testutil.SliceLen(t, p.Refs, 0)
		p.Ref("contact_id", "55")
		testutil.SliceLen(t, p.Refs, 1)
		testutil.Equal(t, "contact_id", p.Refs[0].Column)
		testutil.Equal(t, "55", p.Refs[0].OldID)
	})

	t.Run("alias ignores empty", func(t *testing.T) {
		t.Parallel()
		p := NewPayload("7")
		p.Alias("")
		testutil.SliceLen(t, p.Aliases, 0)
		p.Alias("default:3")
		testutil.SliceLen(t, p.Aliases, 1)
	})

	t.Run("new id zero until assigned", func(t *testing.T) {
		t.Parallel()
		p := NewPayload("7")
		testutil.Equal(t, int64(0), p.NewID())
	})
}

func TestCoerceJSON(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		val  any
		def  string
		want string
	}{
		{"nil object default", nil, "{}", "{}"},
		{"nil array default", nil, "[]", "[]"},
		{"empty string", "", "{}", "{}"},
		{"whitespace string", "   ", "{}", "{}"},
		{"valid object", `{"a":1}`, "{}", `{"a":1}`},
		{"valid array", `[1,2,3]`, "[]", `[1,2,3]`},
		{"bytes", []byte(`{"b":true}`), "{}", `{"b":true}`},
		{"invalid json", `{"a":`, "{}", "{}"},
		{"bare word", "hello", "{}", "{}"},
		{"quoted scalar", `"hello"`, "{}", `"hello"`},
		{"native map", map[string]any{"k": "v"}, "{}", `{"k":"v"}`},
		{"native slice", []any{"x"}, "[]", `["x"]`},
		{"nul inside member", "{\"msg\":\"a\\u0000b\"}", "{}", `{"msg":"ab"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			testutil.Equal(t, tt.want, CoerceJSON(tt.val, tt.def))
		})
	}
}

func TestCoerceJSONCleansNestedStrings(t *testing.T) {
	t.Parallel()
	in := map[string]any{
		"note": "bad\x00char",
		"tags": []any{"ok", "also\x00bad"},
	}
	got := CoerceJSON(in, "{}")
	testutil.Equal(t, `{"note":"badchar","tags":["ok","alsobad"]}`, got)
}
