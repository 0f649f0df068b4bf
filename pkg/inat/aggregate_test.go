package inat

import (
	"reflect"
	"testing"

	"github.com/mycosphaera/fungarium/pkg/observation"
)

func obs(id int64, date string) observation.Raw {
	return observation.Raw{ID: id, ObservedOn: date}
}

func ids(recs []observation.Raw) []int64 {
	out := make([]int64, 0, len(recs))
	for _, r := range recs {
		out = append(out, r.ID)
	}
	return out
}

func TestDedupeByIDKeepsFirstOccurrence(t *testing.T) {
	merged := []observation.Raw{
		obs(1, "2024-09-14"),
		obs(2, "2024-09-13"),
		obs(1, "2024-09-14"),
		obs(3, "2024-09-12"),
		obs(2, "2024-09-13"),
	}

	got := ids(DedupeByID(merged))
	want := []int64{1, 2, 3}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("DedupeByID ids = %v, want %v", got, want)
	}
}

func TestAggregateOverlappingWindows(t *testing.T) {
	// Two date-window fetches sharing a boundary record: the merged output
	// must contain it exactly once.
	windowA := []observation.Raw{obs(10, "2024-09-14"), obs(11, "2024-09-13")}
	windowB := []observation.Raw{obs(11, "2024-09-13"), obs(12, "2024-09-12")}

	got := Aggregate(append(windowA, windowB...))

	count := 0
	for _, r := range got {
		if r.ID == 11 {
			count++
		}
	}
	if count != 1 {
		t.Errorf("boundary record appears %d times, want exactly 1", count)
	}
	if len(got) != 3 {
		t.Errorf("len = %d, want 3", len(got))
	}
}

func TestSortByObservedDesc(t *testing.T) {
	recs := []observation.Raw{
		obs(1, "2023-05-02"),
		{ID: 2}, // no usable date, must sink to the bottom
		obs(3, "2024-09-14"),
		{ID: 4, TimeObservedAt: "2024-01-01T08:00:00-05:00"},
	}

	SortByObservedDesc(recs)

	want := []int64{3, 4, 1, 2}
	if got := ids(recs); !reflect.DeepEqual(got, want) {
		t.Errorf("sorted ids = %v, want %v", got, want)
	}
}
