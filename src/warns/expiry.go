package warns

import (
	"sort"
	"time"

	"github.com/oooz/oooz-bot/src/data/store"
)

// Warning is one disciplinary mark.
type Warning struct {
	User    string
	Time    time.Time
	Reason  string
	Expired *time.Time
}

// Active reports whether the warning still counts.
func (w *Warning) Active() bool { return w.Expired == nil }

// ComputeExpiry marks warnings that have aged out as of now and returns the
// ones it changed. warnings is the pooled list of one linked group.
//
// The walk keeps a cursor. For every active warning in issue order the cursor
// moves to the issue time, then swallows every not yet consumed barrier (an
// issue time or an earlier expiry) within one interval of it, and finally
// advances by one interval. A warning expires at the cursor if that is not in
// the future. Warnings issued close together thus share one grace period
// instead of stacking a full interval each.
//
// Existing expiries are never cleared or moved, so re-running is safe.
func ComputeExpiry(warnings []*Warning, now time.Time, interval time.Duration) []*Warning {
	if interval <= 0 || len(warnings) == 0 {
		return nil
	}
	sorted := append([]*Warning(nil), warnings...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Time.Before(sorted[j].Time) })

	barriers := make([]time.Time, 0, 2*len(sorted))
	for _, w := range sorted {
		barriers = append(barriers, w.Time)
		if w.Expired != nil {
			barriers = append(barriers, *w.Expired)
		}
	}
	sort.Slice(barriers, func(i, j int) bool { return barriers[i].Before(barriers[j]) })

	var (
		cursor   time.Time
		consumed int
		changed  []*Warning
	)
	for _, w := range sorted {
		if !w.Active() {
			continue
		}
		if w.Time.After(cursor) {
			cursor = w.Time
		}
		for consumed < len(barriers) && !barriers[consumed].After(cursor.Add(interval)) {
			if barriers[consumed].After(cursor) {
				cursor = barriers[consumed]
			}
			consumed++
		}
		cursor = cursor.Add(interval)
		if cursor.After(now) {
			break
		}
		expired := cursor
		w.Expired = &expired
		changed = append(changed, w)
	}
	return changed
}

// CountActive counts warnings without an expiry.
func CountActive(warnings []*Warning) int {
	n := 0
	for _, w := range warnings {
		if w.Active() {
			n++
		}
	}
	return n
}

// Tier returns the role for count active warnings. Counts beyond the last
// tier map to the last tier; zero maps to no role.
func Tier(count int, roles []string) (string, bool) {
	if count <= 0 || len(roles) == 0 {
		return "", false
	}
	return roles[min(count, len(roles))-1], true
}

// FromSnapshot decodes every warning of a store snapshot, in user order.
func FromSnapshot(tree map[string]any) []Warning {
	byUser, _ := store.AsMap(tree[keyWarns])
	var out []Warning
	for _, user := range store.SortedKeys(byUser) {
		list, _ := store.AsList(byUser[user])
		for _, raw := range list {
			if w, ok := decodeWarning(user, raw); ok {
				out = append(out, *w)
			}
		}
	}
	return out
}
