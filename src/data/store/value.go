package store

import (
	"fmt"
	"sort"
	"strconv"
	"time"
)

// Set is an unordered collection of ids. It persists as {"__set__": [...]}.
type Set map[string]struct{}

// NewSet returns a set holding items.
func NewSet(items ...string) Set {
	s := make(Set, len(items))
	for _, it := range items {
		s[it] = struct{}{}
	}
	return s
}

func (s Set) Add(item string) { s[item] = struct{}{} }

func (s Set) Has(item string) bool {
	_, ok := s[item]
	return ok
}

// Remove deletes item and reports whether it was present.
func (s Set) Remove(item string) bool {
	if _, ok := s[item]; !ok {
		return false
	}
	delete(s, item)
	return true
}

func (s Set) Len() int { return len(s) }

// Items returns the members in a stable order: numeric ids by value, then
// everything else lexically.
func (s Set) Items() []string {
	out := make([]string, 0, len(s))
	for it := range s {
		out = append(out, it)
	}
	sort.Slice(out, func(i, j int) bool { return lessID(out[i], out[j]) })
	return out
}

func lessID(a, b string) bool {
	ai, aerr := strconv.ParseUint(a, 10, 64)
	bi, berr := strconv.ParseUint(b, 10, 64)
	switch {
	case aerr == nil && berr == nil:
		return ai < bi
	case aerr == nil:
		return true
	case berr == nil:
		return false
	}
	return a < b
}

// SortedKeys returns the keys of m in the same order Set.Items uses.
func SortedKeys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return lessID(out[i], out[j]) })
	return out
}

// Clone deep-copies a store value.
func Clone(v any) any {
	switch v := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, x := range v {
			out[k] = Clone(x)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, x := range v {
			out[i] = Clone(x)
		}
		return out
	case Set:
		out := make(Set, len(v))
		for k := range v {
			out[k] = struct{}{}
		}
		return out
	default:
		return v
	}
}

// Typed accessors for values read out of the tree. They return the zero value
// and false when the value is missing or has another type.

func AsMap(v any) (map[string]any, bool) {
	m, ok := v.(map[string]any)
	return m, ok
}

func AsList(v any) ([]any, bool) {
	l, ok := v.([]any)
	return l, ok
}

func AsSet(v any) (Set, bool) {
	s, ok := v.(Set)
	return s, ok
}

func AsString(v any) (string, bool) {
	s, ok := v.(string)
	return s, ok
}

func AsTime(v any) (time.Time, bool) {
	t, ok := v.(time.Time)
	return t, ok
}

func AsBool(v any) (bool, bool) {
	b, ok := v.(bool)
	return b, ok
}

// AsInt accepts any integral number representation found in the tree.
func AsInt(v any) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case float64:
		if n == float64(int64(n)) {
			return int64(n), true
		}
	}
	return 0, false
}

// AsFloat accepts integers as well.
func AsFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int64:
		return float64(n), true
	case int:
		return float64(n), true
	}
	return 0, false
}

// IDString renders an id that may have been persisted as a number.
func IDString(v any) (string, error) {
	switch id := v.(type) {
	case string:
		return id, nil
	case int64:
		return strconv.FormatInt(id, 10), nil
	case int:
		return strconv.Itoa(id), nil
	case float64:
		if id == float64(int64(id)) {
			return strconv.FormatInt(int64(id), 10), nil
		}
	}
	return "", fmt.Errorf("store: %T is not an id", v)
}
