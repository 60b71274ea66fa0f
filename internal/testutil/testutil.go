package testutil

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"reflect"
	"strings"
	"testing"
)

// DiscardLogger returns a logger that swallows everything, for code
// paths that demand a *slog.Logger but whose output a test never reads.
func DiscardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// message renders an optional msgAndArgs tail, falling back to def.
func message(def string, msgAndArgs []any) string {
	if len(msgAndArgs) == 0 {
		return def
	}
	if format, ok := msgAndArgs[0].(string); ok {
		return fmt.Sprintf(format, msgAndArgs[1:]...)
	}
	return fmt.Sprint(msgAndArgs...)
}

// Equal fails the test when got differs from want.
func Equal[T comparable](t testing.TB, want, got T) {
	t.Helper()
	if got != want {
		t.Errorf("want %v, got %v", want, got)
	}
}

// NotEqual fails the test when got equals want.
func NotEqual[T comparable](t testing.TB, want, got T) {
	t.Helper()
	if got == want {
		t.Errorf("%v should differ from %v", got, want)
	}
}

// NoError stops the test on an unexpected error. Fatal rather than
// Error: assertions after a failed call would read garbage.
func NoError(t testing.TB, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// ErrorIs fails the test when err does not wrap target.
func ErrorIs(t testing.TB, err, target error) {
	t.Helper()
	if !errors.Is(err, target) {
		t.Errorf("want an error wrapping %v, got %v", target, err)
	}
}

// ErrorContains fails the test when err is nil or its text lacks substr.
func ErrorContains(t testing.TB, err error, substr string) {
	t.Helper()
	if err == nil {
		t.Fatalf("want an error containing %q, got nil", substr)
	}
	if !strings.Contains(err.Error(), substr) {
		t.Errorf("error %q should contain %q", err.Error(), substr)
	}
}

// True fails the test when the condition does not hold.
func True(t testing.TB, condition bool, msgAndArgs ...any) {
	t.Helper()
	if !condition {
		t.Error(message("condition should be true", msgAndArgs))
	}
}

// False fails the test when the condition holds.
func False(t testing.TB, condition bool, msgAndArgs ...any) {
	t.Helper()
	if condition {
		t.Error(message("condition should be false", msgAndArgs))
	}
}

// Nil fails the test when val is anything but nil, including a typed
// nil wrapped in a non-nil interface.
func Nil(t testing.TB, val any) {
	t.Helper()
	if !isNil(val) {
		t.Errorf("want nil, got %v", val)
	}
}

// NotNil stops the test when val is nil; callers dereference right
// after, so continuing would only panic.
func NotNil(t testing.TB, val any) {
	t.Helper()
	if isNil(val) {
		t.Fatal("want non-nil, got nil")
	}
}

func isNil(val any) bool {
	if val == nil {
		return true
	}
	switch v := reflect.ValueOf(val); v.Kind() {
	case reflect.Ptr, reflect.Map, reflect.Slice, reflect.Chan, reflect.Func, reflect.Interface:
		return v.IsNil()
	default:
		return false
	}
}

// SliceLen fails the test when the slice length is off.
func SliceLen[T any](t testing.TB, slice []T, wantLen int) {
	t.Helper()
	if len(slice) != wantLen {
		t.Errorf("want %d elements, got %d: %v", wantLen, len(slice), slice)
	}
}

// MapLen fails the test when the map size is off.
func MapLen[K comparable, V any](t testing.TB, m map[K]V, wantLen int) {
	t.Helper()
	if len(m) != wantLen {
		t.Errorf("want %d entries, got %d", wantLen, len(m))
	}
}

// Contains fails the test when s lacks substr.
func Contains(t testing.TB, s, substr string) {
	t.Helper()
	if !strings.Contains(s, substr) {
		t.Errorf("%q should contain %q", s, substr)
	}
}
