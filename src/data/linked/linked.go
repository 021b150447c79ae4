// Package linked manages groups of accounts owned by one person. Groups are
// stored as a list of sets under the linked_users key and share warning and
// XP pools.
package linked

import (
	"github.com/oooz/oooz-bot/src/data/store"
)

const Key = "linked_users"

// Group returns the accounts linked with user, including user. Callers must
// be inside a store transaction.
func Group(tx *store.Tx, user string) []string {
	for _, raw := range tx.List(Key) {
		set, ok := store.AsSet(raw)
		if ok && set.Has(user) {
			return set.Items()
		}
	}
	return []string{user}
}

// Link merges the groups of a and b. It reports false when they already
// share a group.
func Link(tx *store.Tx, a, b string) ([]string, bool) {
	merged := store.NewSet(a, b)
	var kept []any
	for _, raw := range tx.List(Key) {
		set, ok := store.AsSet(raw)
		if !ok {
			continue
		}
		if set.Has(a) && set.Has(b) {
			return set.Items(), false
		}
		if set.Has(a) || set.Has(b) {
			for _, id := range set.Items() {
				merged.Add(id)
			}
			continue
		}
		kept = append(kept, set)
	}
	tx.Set(Key, append(kept, merged))
	return merged.Items(), true
}

// Unlink takes user out of its group and returns the remaining members.
// Groups left with one member are dropped. It reports false when user was
// not linked.
func Unlink(tx *store.Tx, user string) ([]string, bool) {
	list := tx.List(Key)
	for i, raw := range list {
		set, ok := store.AsSet(raw)
		if !ok || !set.Has(user) {
			continue
		}
		set.Remove(user)
		rest := set.Items()
		if set.Len() < 2 {
			tx.Set(Key, append(list[:i:i], list[i+1:]...))
		}
		return rest, true
	}
	return nil, false
}
