// Package sets holds small generic set types.
package sets

// Set is a simple generic hash set for comparable keys.
type Set[T comparable] map[T]struct{}

// New creates a set pre-populated with the provided values.
func New[T comparable](vals ...T) Set[T] {
	s := make(Set[T], len(vals))
	for _, v := range vals {
		s[v] = struct{}{}
	}
	return s
}

// Add inserts v and reports whether it was absent.
func (s Set[T]) Add(v T) bool {
	if _, ok := s[v]; ok {
		return false
	}
	s[v] = struct{}{}
	return true
}

// Has returns true if v is present.
func (s Set[T]) Has(v T) bool {
	_, ok := s[v]
	return ok
}

// Ordered is a set that remembers insertion order.
type Ordered[T comparable] struct {
	seen  Set[T]
	items []T
}

// NewOrdered creates an empty ordered set. Values in exclude are never added.
func NewOrdered[T comparable](exclude ...T) *Ordered[T] {
	o := &Ordered[T]{seen: New[T]()}
	for _, v := range exclude {
		o.seen.Add(v)
	}
	return o
}

// Add appends v unless it is present or excluded.
func (o *Ordered[T]) Add(v T) bool {
	if !o.seen.Add(v) {
		return false
	}
	o.items = append(o.items, v)
	return true
}

// Items returns the values in insertion order. The slice is never nil.
func (o *Ordered[T]) Items() []T {
	out := make([]T, len(o.items))
	copy(out, o.items)
	return out
}

// Len returns the number of values added.
func (o *Ordered[T]) Len() int { return len(o.items) }
