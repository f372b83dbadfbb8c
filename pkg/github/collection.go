package github

import "strings"

// Collection is an insertion-ordered mapping from a normalized key to a record.
// Putting a record under an existing key replaces it in place.
type Collection[T any] struct {
	keys  []string
	items map[string]T
}

// NewCollection builds a collection from records keyed by key(record)
func NewCollection[T any](records []T, key func(T) string) *Collection[T] {
	c := &Collection[T]{items: make(map[string]T, len(records))}
	for _, record := range records {
		c.Put(key(record), record)
	}
	return c
}

// Collect drains an iterator into a collection
func Collect[T any](it Iterator[T], key func(T) string) (*Collection[T], error) {
	c := &Collection[T]{items: make(map[string]T)}
	for it.Next() {
		record := it.Value()
		c.Put(key(record), record)
	}
	if err := it.Err(); err != nil {
		return nil, err
	}
	return c, nil
}

// NormalizeKey folds a name or title into its collection key
func NormalizeKey(name string) string {
	return strings.ToLower(name)
}

// LabelKey keys labels by name
func LabelKey(l Label) string {
	return NormalizeKey(l.Name)
}

// MilestoneKey keys milestones by title
func MilestoneKey(m Milestone) string {
	return NormalizeKey(m.Title)
}

// Put stores record under the normalized key, last write wins
func (c *Collection[T]) Put(key string, record T) {
	key = NormalizeKey(key)
	if _, exists := c.items[key]; !exists {
		c.keys = append(c.keys, key)
	}
	c.items[key] = record
}

// Get looks up a record by name, case-insensitively
func (c *Collection[T]) Get(name string) (T, bool) {
	record, ok := c.items[NormalizeKey(name)]
	return record, ok
}

// Has reports whether a record exists under name, case-insensitively
func (c *Collection[T]) Has(name string) bool {
	_, ok := c.items[NormalizeKey(name)]
	return ok
}

// Len returns the number of records
func (c *Collection[T]) Len() int {
	return len(c.keys)
}

// Keys returns the keys in insertion order
func (c *Collection[T]) Keys() []string {
	keys := make([]string, len(c.keys))
	copy(keys, c.keys)
	return keys
}

// Values returns the records in insertion order
func (c *Collection[T]) Values() []T {
	values := make([]T, 0, len(c.keys))
	for _, key := range c.keys {
		values = append(values, c.items[key])
	}
	return values
}

// Difference returns the elements of left that match no element of right
func Difference[T any](left, right []T, match func(l, r T) bool) []T {
	var result []T
	for _, l := range left {
		if !anyMatch(l, right, match) {
			result = append(result, l)
		}
	}
	return result
}

// Intersection returns the elements of left that match at least one element of right
func Intersection[T any](left, right []T, match func(l, r T) bool) []T {
	var result []T
	for _, l := range left {
		if anyMatch(l, right, match) {
			result = append(result, l)
		}
	}
	return result
}

func anyMatch[T any](l T, right []T, match func(l, r T) bool) bool {
	for _, r := range right {
		if match(l, r) {
			return true
		}
	}
	return false
}
