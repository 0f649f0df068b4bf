package inat

import (
	"sort"

	"github.com/mycosphaera/fungarium/pkg/observation"
)

// Aggregate collapses duplicates by id (first occurrence wins) and orders the
// merged list by normalized observed date, newest first. Records without a
// usable date carry an all-zero sort key and sink to the bottom.
func Aggregate(recs []observation.Raw) []observation.Raw {
	out := DedupeByID(recs)
	SortByObservedDesc(out)
	return out
}

// DedupeByID keeps the first occurrence of each observation id. Overlapping
// date-window fetches double-deliver boundary records; nothing about the
// cause is worth preserving.
func DedupeByID(recs []observation.Raw) []observation.Raw {
	seen := make(map[int64]bool, len(recs))
	out := make([]observation.Raw, 0, len(recs))
	for _, r := range recs {
		if seen[r.ID] {
			continue
		}
		seen[r.ID] = true
		out = append(out, r)
	}
	return out
}

// SortByObservedDesc sorts in place by the same date extraction the importer
// uses, so listing order and import behavior can never disagree about a
// record's date.
func SortByObservedDesc(recs []observation.Raw) {
	keys := make(map[int64]string, len(recs))
	for _, r := range recs {
		keys[r.ID] = observation.Normalize(r).SortDate()
	}
	sort.SliceStable(recs, func(i, j int) bool {
		return keys[recs[i].ID] > keys[recs[j].ID]
	})
}
