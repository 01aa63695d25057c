package domain

import (
	"encoding/json"
	"sort"
)

// PermissionSet is an effective permission set: the resolved keys a user holds.
// The zero value is an empty set ready for reads; use NewPermissionSet to build one.
type PermissionSet struct {
	keys map[PermissionKey]struct{}
}

// NewPermissionSet builds a set from keys, dropping duplicates
func NewPermissionSet(keys ...PermissionKey) PermissionSet {
	s := PermissionSet{keys: make(map[PermissionKey]struct{}, len(keys))}
	for _, k := range keys {
		s.keys[k] = struct{}{}
	}
	return s
}

// Merge computes (grants ∪ extra) − denied as a new set
func Merge(grants []PermissionKey, extra []PermissionKey, denied []PermissionKey) PermissionSet {
	s := NewPermissionSet(grants...)
	for _, k := range extra {
		s.keys[k] = struct{}{}
	}
	for _, k := range denied {
		delete(s.keys, k)
	}
	return s
}

// Has reports whether key is in the set
func (s PermissionSet) Has(key PermissionKey) bool {
	_, ok := s.keys[key]
	return ok
}

// HasAny reports whether the set intersects keys; false when keys is empty
func (s PermissionSet) HasAny(keys ...PermissionKey) bool {
	for _, k := range keys {
		if s.Has(k) {
			return true
		}
	}
	return false
}

// HasAll reports whether the set is a superset of keys
func (s PermissionSet) HasAll(keys ...PermissionKey) bool {
	for _, k := range keys {
		if !s.Has(k) {
			return false
		}
	}
	return true
}

// Missing returns the keys not held, in input order
func (s PermissionSet) Missing(keys ...PermissionKey) []PermissionKey {
	var missing []PermissionKey
	for _, k := range keys {
		if !s.Has(k) {
			missing = append(missing, k)
		}
	}
	return missing
}

// Len returns the number of keys
func (s PermissionSet) Len() int {
	return len(s.keys)
}

// Keys returns the keys in sorted order
func (s PermissionSet) Keys() []PermissionKey {
	keys := make([]PermissionKey, 0, len(s.keys))
	for k := range s.keys {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

// MarshalJSON encodes the set as a sorted array of keys
func (s PermissionSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Keys())
}

// UnmarshalJSON decodes a JSON array of keys
func (s *PermissionSet) UnmarshalJSON(data []byte) error {
	var keys []PermissionKey
	if err := json.Unmarshal(data, &keys); err != nil {
		return err
	}
	*s = NewPermissionSet(keys...)
	return nil
}
