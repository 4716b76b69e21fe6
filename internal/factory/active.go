package factory

import "fmt"

// Active is an insertion-ordered set of live components keyed by a unique
// identifier.
type Active[T any] struct {
	order []string
	items map[string]T
}

func NewActive[T any]() *Active[T] {
	return &Active[T]{items: make(map[string]T)}
}

// Check reports the first identifier that appears twice in ids or is
// already active. Callers run it before constructing anything.
func (a *Active[T]) Check(ids []string) error {
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if _, ok := a.items[id]; ok || seen[id] {
			return fmt.Errorf("%w: %q", ErrDuplicateIdentifier, id)
		}
		seen[id] = true
	}
	return nil
}

func (a *Active[T]) Add(id string, v T) error {
	if _, ok := a.items[id]; ok {
		return fmt.Errorf("%w: %q", ErrDuplicateIdentifier, id)
	}
	a.items[id] = v
	a.order = append(a.order, id)
	return nil
}

func (a *Active[T]) Get(id string) (T, bool) {
	v, ok := a.items[id]
	return v, ok
}

// IDs returns identifiers in insertion order.
func (a *Active[T]) IDs() []string {
	return append([]string(nil), a.order...)
}

func (a *Active[T]) Len() int { return len(a.order) }

// Each visits entries in insertion order and stops at the first error.
func (a *Active[T]) Each(fn func(id string, v T) error) error {
	for _, id := range a.order {
		if err := fn(id, a.items[id]); err != nil {
			return err
		}
	}
	return nil
}

// Teardown releases every entry in insertion order and empties the set.
// All entries are released even if some fail; the first error is returned.
func (a *Active[T]) Teardown(release func(id string, v T) error) error {
	var first error
	for _, id := range a.order {
		if err := release(id, a.items[id]); err != nil && first == nil {
			first = fmt.Errorf("release %q: %w", id, err)
		}
	}
	a.order = nil
	a.items = make(map[string]T)
	return first
}
