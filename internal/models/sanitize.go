package models

import "sort"

// Sanitize returns a copy of the valid, distinct events ordered by open time.
// Ties are broken by bridge ID and then storage ID so the order never depends on
// the input order.
func Sanitize(events []Event) []Event {
	seen := make(map[EventKey]struct{}, len(events))
	valid := make([]Event, 0, len(events))
	for i := range events {
		e := &events[i]
		if e.Validate() != nil {
			continue
		}
		if _, dup := seen[e.Key()]; dup {
			continue
		}
		seen[e.Key()] = struct{}{}
		valid = append(valid, *e)
	}

	sort.SliceStable(valid, func(i, j int) bool {
		a, b := valid[i], valid[j]
		if !a.OpenTime.Equal(b.OpenTime) {
			return a.OpenTime.Before(b.OpenTime)
		}
		if a.BridgeID != b.BridgeID {
			return a.BridgeID < b.BridgeID
		}
		return a.ID < b.ID
	})
	return valid
}
