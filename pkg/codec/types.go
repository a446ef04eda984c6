// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package codec

import (
	"errors"
	"fmt"
	"sort"
)

// Tag keys recognized in serialized documents.
const (
	RefTag      = "__lazy_json__"
	SetTag      = "__set__"
	SetElements = "elements"
)

// ErrMalformedTag is returned when an object carries a tag key but does not
// have the shape the tag requires.
var ErrMalformedTag = errors.New("malformed tagged object")

// UnsupportedTypeError reports a value the canonical encoder cannot write.
type UnsupportedTypeError struct {
	Value any
}

func (e *UnsupportedTypeError) Error() string {
	return fmt.Sprintf("%#v (%T) is not JSON serializable", e.Value, e.Value)
}

// Referencer is implemented by values that serialize as a weak reference
// to another document instead of being inlined.
type Referencer interface {
	LazyJSONName() string
}

// Ref is a decoded weak reference. Name identifies the referenced document
// ("node_attrs/numpy.json", or "graph.json" for the catch-all hashmap).
type Ref struct {
	Name string
}

// LazyJSONName implements Referencer.
func (r Ref) LazyJSONName() string { return r.Name }

// Set is an unordered set of strings.
type Set map[string]struct{}

// NewSet returns a set holding elems.
func NewSet(elems ...string) Set {
	s := make(Set, len(elems))
	for _, e := range elems {
		s[e] = struct{}{}
	}
	return s
}

// Add inserts e.
func (s Set) Add(e string) { s[e] = struct{}{} }

// Remove deletes e if present.
func (s Set) Remove(e string) { delete(s, e) }

// Has reports whether e is in the set.
func (s Set) Has(e string) bool {
	_, ok := s[e]
	return ok
}

// Sorted returns the elements in ascending order.
func (s Set) Sorted() []string {
	out := make([]string, 0, len(s))
	for e := range s {
		out = append(out, e)
	}
	sort.Strings(out)
	return out
}
