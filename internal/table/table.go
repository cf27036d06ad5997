// Package table is a local mirror of one server entity type.
package table

// Identified is implemented by records with a stable identity.
type Identified[K comparable] interface {
	Key() K
}

// Table is an ordered collection with at most one record per identity.
// Order is insertion order and only matters for stable iteration.
type Table[K comparable, T Identified[K]] struct {
	items []T
	index map[K]int
}

func New[K comparable, T Identified[K]]() *Table[K, T] {
	return &Table[K, T]{index: make(map[K]int)}
}

// Upsert replaces the record with the same identity in place, or appends.
// It reports whether the record was new.
func (t *Table[K, T]) Upsert(item T) bool {
	k := item.Key()
	if i, ok := t.index[k]; ok {
		t.items[i] = item
		return false
	}
	t.index[k] = len(t.items)
	t.items = append(t.items, item)
	return true
}

// Remove deletes the record with identity k and returns it.
func (t *Table[K, T]) Remove(k K) (T, bool) {
	i, ok := t.index[k]
	if !ok {
		var zero T
		return zero, false
	}
	removed := t.items[i]
	t.items = append(t.items[:i], t.items[i+1:]...)
	delete(t.index, k)
	for j := i; j < len(t.items); j++ {
		t.index[t.items[j].Key()] = j
	}
	return removed, true
}

// ReplaceAll swaps the whole content. Later duplicates of an identity
// replace earlier ones.
func (t *Table[K, T]) ReplaceAll(items []T) {
	t.items = make([]T, 0, len(items))
	t.index = make(map[K]int, len(items))
	for _, item := range items {
		t.Upsert(item)
	}
}

// All returns the records in table order. The slice must not be modified.
func (t *Table[K, T]) All() []T {
	return t.items
}

func (t *Table[K, T]) Get(k K) (T, bool) {
	i, ok := t.index[k]
	if !ok {
		var zero T
		return zero, false
	}
	return t.items[i], true
}

func (t *Table[K, T]) Len() int {
	return len(t.items)
}

func (t *Table[K, T]) Clear() {
	t.items = nil
	t.index = make(map[K]int)
}
