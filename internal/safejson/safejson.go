// Package safejson reads persisted JSON values without ever failing the
// caller: anything that is absent, corrupted or unparseable yields the
// caller's fallback instead.
package safejson

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrAbsent means there was no stored value, or it was a null literal.
	ErrAbsent = errors.New("safejson: value absent")
	// ErrNotJSON means the value failed the structural pre-check.
	ErrNotJSON = errors.New("safejson: value does not look like JSON")
	// ErrRefused is returned by Marshal for values that must not be persisted.
	ErrRefused = errors.New("safejson: refusing to persist value")
)

// CorruptError reports a value that matched a corruption signature.
type CorruptError struct {
	Signature string
	Preview   string
}

func (e *CorruptError) Error() string {
	return fmt.Sprintf("safejson: corrupted value (%s): %q", e.Signature, e.Preview)
}

// ParseError wraps a decoder failure.
type ParseError struct {
	Preview string
	Err     error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("safejson: parse %q: %v", e.Preview, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// SafeParse decodes *raw into a T, returning fallback when raw is nil or the
// value cannot be decoded.
func SafeParse[T any](raw *string, fallback T) T {
	if raw == nil {
		return fallback
	}
	return SafeParseString(*raw, true, fallback)
}

// SafeParseString is SafeParse for the (value, ok) shape returned by key-value reads.
func SafeParseString[T any](raw string, present bool, fallback T) T {
	if !present {
		return fallback
	}
	v, err := Decode[T](raw)
	if err != nil {
		return fallback
	}
	return v
}

// Decode runs the detection pipeline and reports why a value was rejected.
// It never panics.
func Decode[T any](raw string) (T, error) {
	return decode[T](raw, false)
}

// DecodeRepaired is Decode with a Repair pass between signature detection
// and the structural check. Salvage paths use it.
func DecodeRepaired[T any](raw string) (T, error) {
	return decode[T](raw, true)
}

func decode[T any](raw string, repair bool) (out T, err error) {
	defer func() {
		if r := recover(); r != nil {
			var zero T
			out, err = zero, &ParseError{Preview: Preview(raw), Err: fmt.Errorf("panic: %v", r)}
		}
	}()

	if raw == "undefined" || raw == "null" {
		return out, ErrAbsent
	}
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return out, ErrAbsent
	}
	if sig, ok := Detect(trimmed); ok {
		return out, &CorruptError{Signature: sig.Name, Preview: Preview(trimmed)}
	}
	if repair {
		trimmed = Repair(trimmed)
	}
	if !LooksLikeJSON(trimmed) {
		return out, fmt.Errorf("%w: %q", ErrNotJSON, Preview(trimmed))
	}
	if strings.EqualFold(trimmed, "null") {
		return out, ErrAbsent
	}
	if err := json.Unmarshal([]byte(trimmed), &out); err != nil {
		var zero T
		return zero, &ParseError{Preview: Preview(trimmed), Err: err}
	}
	return out, nil
}

// IsCorrupt reports whether a stored value should be swept: it matches a
// signature, fails the structural check, or fails to parse. The null
// literal is not corrupt.
func IsCorrupt(value string) bool {
	trimmed := strings.TrimSpace(value)
	if trimmed == "null" {
		return false
	}
	if _, ok := Detect(trimmed); ok {
		return true
	}
	if !LooksLikeJSON(trimmed) {
		return true
	}
	return !json.Valid([]byte(trimmed))
}

// Marshal is the inverse of SafeParse. It refuses values that encode to
// null or that would read back as corrupted.
func Marshal(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("safejson: marshal: %w", err)
	}
	s := string(b)
	if s == "null" {
		return "", fmt.Errorf("%w: encodes to null", ErrRefused)
	}
	if sig, ok := Detect(s); ok {
		return "", fmt.Errorf("%w: matches %s", ErrRefused, sig.Name)
	}
	return s, nil
}

// Repair rewrites embedded "[object Object]" artifacts to {} and extracts
// the outermost object or array from noisy text.
func Repair(value string) string {
	s := strings.ReplaceAll(value, "[object Object]", "{}")
	for i := 0; i < len(s); i++ {
		var closer byte
		switch s[i] {
		case '{':
			closer = '}'
		case '[':
			closer = ']'
		default:
			continue
		}
		if j := strings.LastIndexByte(s, closer); j > i {
			return s[i : j+1]
		}
	}
	return s
}

// Preview truncates a value for log output.
func Preview(s string) string {
	const max = 50
	n := 0
	for i := range s {
		if n == max {
			return s[:i]
		}
		n++
	}
	return s
}
