package domain

import (
	"maps"
	"slices"
)

// ItemSet is a set of work items keyed by item key.
type ItemSet map[string]*WorkItem

// Add inserts item.
func (s ItemSet) Add(item *WorkItem) {
	s[item.Key] = item
}

// Remove deletes item.
func (s ItemSet) Remove(item *WorkItem) {
	delete(s, item.Key)
}

// Has reports whether key is present.
func (s ItemSet) Has(key string) bool {
	_, ok := s[key]
	return ok
}

// Clone returns a shallow copy.
func (s ItemSet) Clone() ItemSet {
	out := make(ItemSet, len(s))
	maps.Copy(out, s)
	return out
}

// Union returns the items in s or other.
func (s ItemSet) Union(other ItemSet) ItemSet {
	out := s.Clone()
	maps.Copy(out, other)
	return out
}

// Minus returns the items in s that are not in other.
func (s ItemSet) Minus(other ItemSet) ItemSet {
	out := make(ItemSet, len(s))
	for key, item := range s {
		if !other.Has(key) {
			out[key] = item
		}
	}
	return out
}

// Keys returns the keys in natural key order.
func (s ItemSet) Keys() []string {
	keys := make([]string, 0, len(s))
	keys = slices.AppendSeq(keys, maps.Keys(s))
	slices.SortFunc(keys, CompareKeys)
	return keys
}
