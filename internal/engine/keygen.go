package engine

import "fmt"

// DefaultKeyAttempts caps the synthetic-key collision loop. The legacy
// data never needed more than a handful of perturbations; a row that
// burns through the cap is reported as errored rather than looping.
const DefaultKeyAttempts = 100

// keyStride separates the code sequences of nearby source ids so a
// perturbed retry does not immediately land on a neighbor's code.
const keyStride = 1_000_003

// SyntheticCode derives an 11-digit check-digit code from a legacy
// numeric id. attempt perturbs the derivation when a code is already
// taken. Pure: the same (id, attempt) always yields the same code, so
// re-runs regenerate identical sequences given the same collision set.
func SyntheticCode(id int64, attempt int) string {
	n := id + int64(attempt)*keyStride
	if n < 0 {
		n = -n
	}
	body := fmt.Sprintf("%010d", n%10_000_000_000)
	return body + string(byte('0'+luhnCheckDigit(body)))
}

// luhnCheckDigit computes the Luhn check digit for a digit string.
func luhnCheckDigit(digits string) int {
	sum := 0
	double := true
	for i := len(digits) - 1; i >= 0; i-- {
		d := int(digits[i] - '0')
		if double {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		double = !double
	}
	return (10 - sum%10) % 10
}

// ValidCode reports whether a code passes its Luhn check digit.
func ValidCode(code string) bool {
	if len(code) < 2 {
		return false
	}
	for i := 0; i < len(code); i++ {
		if code[i] < '0' || code[i] > '9' {
			return false
		}
	}
	body, check := code[:len(code)-1], int(code[len(code)-1]-'0')
	return luhnCheckDigit(body) == check
}

// ReserveKey returns the first generated key not present in used,
// reserving it in the set before returning so later rows in the same
// batch cannot claim it. Attempts are bounded; exhaustion is a
// row-level error wrapping ErrKeyExhausted.
func ReserveKey(id int64, used map[string]struct{}, gen func(id int64, attempt int) string, maxAttempts int) (string, error) {
	if maxAttempts <= 0 {
		maxAttempts = DefaultKeyAttempts
	}
	for attempt := 0; attempt < maxAttempts; attempt++ {
		key := gen(id, attempt)
		if _, taken := used[key]; taken {
			continue
		}
		used[key] = struct{}{}
		return key, nil
	}
	return "", fmt.Errorf("no free key after %d attempts: %w", maxAttempts, ErrKeyExhausted)
}
