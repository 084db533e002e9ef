// Package normalization maps loosely written configuration values onto the
// closed string enums used across the module.
package normalization

import (
	"fmt"
	"strings"
)

// Enum accepts any case, surrounding blanks and '-' for '_'.
type Enum[T ~string] struct {
	name     string
	fallback T
	order    []T
	lookup   map[string]T
}

// NewEnum declares an enum. fallback is returned for empty input; values are
// listed in error messages in the order given.
func NewEnum[T ~string](name string, fallback T, values ...T) *Enum[T] {
	e := &Enum[T]{name: name, fallback: fallback, lookup: make(map[string]T, len(values))}
	for _, v := range values {
		e.order = append(e.order, v)
		e.lookup[Key(string(v))] = v
	}
	return e
}

// WithAlias makes alias parse as value.
func (e *Enum[T]) WithAlias(alias string, value T) *Enum[T] {
	e.lookup[Key(alias)] = value
	return e
}

// Parse returns the canonical value of raw.
func (e *Enum[T]) Parse(raw string) (T, error) {
	k := Key(raw)
	if k == "" {
		return e.fallback, nil
	}
	if v, ok := e.lookup[k]; ok {
		return v, nil
	}
	return e.fallback, fmt.Errorf("invalid %s %q (valid: %s)", e.name, raw, strings.Join(e.Values(), ", "))
}

// Normalize is Parse with the fallback in place of an error.
func (e *Enum[T]) Normalize(raw string) T {
	v, _ := e.Parse(raw)
	return v
}

// Values lists the canonical values.
func (e *Enum[T]) Values() []string {
	out := make([]string, len(e.order))
	for i, v := range e.order {
		out[i] = string(v)
	}
	return out
}

// Key is the lookup form of raw.
func Key(raw string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(raw)), "-", "_")
}
