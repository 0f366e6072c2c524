package core

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"maps"
	"slices"
)

// PrincipalSet is a set of principal ids.
// It encodes to JSON as an ascending array.
type PrincipalSet map[int64]struct{}

func NewPrincipalSet(ids ...int64) PrincipalSet {
	s := make(PrincipalSet, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

func (s PrincipalSet) Has(id int64) bool {
	_, ok := s[id]
	return ok
}

// IDs returns the members in ascending order.
func (s PrincipalSet) IDs() []int64 {
	return slices.Sorted(maps.Keys(s))
}

func (s PrincipalSet) MarshalJSON() ([]byte, error) {
	ids := s.IDs()
	if ids == nil {
		ids = []int64{}
	}
	return json.Marshal(ids)
}

func (s *PrincipalSet) UnmarshalJSON(b []byte) error {
	var ids []int64
	if err := json.Unmarshal(b, &ids); err != nil {
		return err
	}
	*s = NewPrincipalSet(ids...)
	return nil
}

// Reactions maps an emoji to the principals who reacted with it.
// A key is never mapped to an empty set.
type Reactions map[string]PrincipalSet

// Toggle removes the principal from the emoji's set if present and adds it
// otherwise. It reports whether the principal was added.
func (r Reactions) Toggle(emoji string, principal int64) bool {
	set, ok := r[emoji]
	if ok && set.Has(principal) {
		delete(set, principal)
		if len(set) == 0 {
			delete(r, emoji)
		}
		return false
	}
	if !ok {
		set = make(PrincipalSet)
		r[emoji] = set
	}
	set[principal] = struct{}{}
	return true
}

func (r Reactions) Clone() Reactions {
	c := make(Reactions, len(r))
	for emoji, set := range r {
		c[emoji] = maps.Clone(set)
	}
	return c
}

// Scan implements sql.Scanner for the JSON column.
func (r *Reactions) Scan(src any) error {
	var b []byte
	switch v := src.(type) {
	case nil:
		*r = Reactions{}
		return nil
	case string:
		b = []byte(v)
	case []byte:
		b = v
	default:
		return fmt.Errorf("scan reactions: unsupported type %T", src)
	}
	decoded := Reactions{}
	if err := json.Unmarshal(b, &decoded); err != nil {
		return fmt.Errorf("scan reactions: %w", err)
	}
	for emoji, set := range decoded {
		if len(set) == 0 {
			delete(decoded, emoji)
		}
	}
	*r = decoded
	return nil
}

// Value implements driver.Valuer for the JSON column.
func (r Reactions) Value() (driver.Value, error) {
	if r == nil {
		return "{}", nil
	}
	b, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("encode reactions: %w", err)
	}
	return string(b), nil
}
