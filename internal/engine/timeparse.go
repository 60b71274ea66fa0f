package engine

import (
	"strconv"
	"strings"
	"time"
)

// Thresholds for interpreting a bare number as a timestamp. Values
// below epochMillisMin are epoch seconds (good through year 5138);
// anything at or above is epoch milliseconds.
const epochMillisMin = 100_000_000_000

// isoLayouts are the string forms the legacy writers produced, most
// specific first.
var isoLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05.999999999-07",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseTime interprets a legacy timestamp value. Depending on which
// legacy writer produced the row, timestamps arrive as epoch seconds,
// epoch milliseconds, or ISO strings; numeric magnitude disambiguates
// the epochs. The result is always UTC. ok is false when the value is
// absent or unrecognizable.
func ParseTime(v any) (t time.Time, ok bool) {
	switch x := v.(type) {
	case nil:
		return time.Time{}, false
	case time.Time:
		if x.IsZero() {
			return time.Time{}, false
		}
		return x.UTC(), true
	case int64:
		return epochTime(x)
	case int32:
		return epochTime(int64(x))
	case int:
		return epochTime(int64(x))
	case float64:
		return epochTime(int64(x))
	case []byte:
		return parseTimeString(string(x))
	case string:
		return parseTimeString(x)
	default:
		return time.Time{}, false
	}
}

func parseTimeString(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return epochTime(n)
	}
	for _, layout := range isoLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

func epochTime(n int64) (time.Time, bool) {
	if n <= 0 {
		return time.Time{}, false
	}
	if n < epochMillisMin {
		return time.Unix(n, 0).UTC(), true
	}
	return time.UnixMilli(n).UTC(), true
}
