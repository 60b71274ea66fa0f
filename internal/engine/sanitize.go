package engine

import (
	"strings"
	"unicode/utf8"
)

// CleanText repairs legacy text so the destination accepts it:
// NUL bytes are dropped and invalid byte sequences are replaced with
// U+FFFD. PostgreSQL rejects both inside text and jsonb values, and
// the legacy database accumulated them from clients that truncated
// emoji mid-pair.
func CleanText(s string) string {
	if cleanString(s) {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); {
		r, size := utf8.DecodeRuneInString(s[i:])
		if r == 0 {
			i += size
			continue
		}
		if r == utf8.RuneError && size == 1 {
			// Invalid bytes. An unpaired surrogate half arrives as a
			// three-byte WTF-8 sequence; fold it into a single
			// replacement so one lost emoji half stays one rune.
			if n := surrogateLen(s[i:]); n > 0 {
				size = n
			}
			b.WriteRune(utf8.RuneError)
			i += size
			continue
		}
		b.WriteRune(r)
		i += size
	}
	return b.String()
}

// cleanString reports whether s needs no repair, keeping the common
// case allocation-free.
func cleanString(s string) bool {
	for i := 0; i < len(s); {
		r, size := utf8.DecodeRuneInString(s[i:])
		if r == 0 || (r == utf8.RuneError && size == 1) {
			return false
		}
		i += size
	}
	return true
}

// surrogateLen reports the length of a WTF-8 encoded surrogate half at
// the start of s, 0 when s does not start with one.
func surrogateLen(s string) int {
	if len(s) >= 3 && s[0] == 0xED && s[1] >= 0xA0 && s[1] <= 0xBF && s[2] >= 0x80 && s[2] <= 0xBF {
		return 3
	}
	return 0
}
