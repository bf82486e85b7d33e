package model

import (
	"slices"

	mapset "github.com/deckarep/golang-set/v2"
)

// URLSet is a goroutine-safe set of strings (URLs or content hashes).
// Insertion goes through Claim and Merge so that check-and-insert is a single
// atomic step for callers.
type URLSet struct {
	set mapset.Set[string]
}

// NewURLSet returns a set holding items.
func NewURLSet(items ...string) *URLSet {
	return &URLSet{set: mapset.NewSet(items...)}
}

// Claim inserts item and reports whether it was absent. Exactly one of any
// number of concurrent Claim calls for the same item returns true.
func (s *URLSet) Claim(item string) bool {
	return s.set.Add(item)
}

// Release removes item, undoing a Claim whose work was abandoned.
func (s *URLSet) Release(item string) {
	s.set.Remove(item)
}

// Contains reports whether item is in the set.
func (s *URLSet) Contains(item string) bool {
	return s.set.Contains(item)
}

// Merge inserts every item and returns how many were new.
func (s *URLSet) Merge(items ...string) int {
	return s.set.Append(items...)
}

// Len returns the number of items.
func (s *URLSet) Len() int {
	return s.set.Cardinality()
}

// Sorted returns the items in ascending order.
func (s *URLSet) Sorted() []string {
	items := s.set.ToSlice()
	slices.Sort(items)
	return items
}
