package labels

import (
	"strings"
	"testing"

	"github.com/mycosphaera/fungarium/pkg/observation"
)

func TestBuildFallbacks(t *testing.T) {
	lat, lon := 45.5, -73.6
	records := []observation.Record{
		{
			ID:              1,
			SciName:         "Amanita muscaria",
			ObserverName:    "alice",
			ObservedDateISO: "2026-08-30T10:00:00-04:00",
			PlaceText:       "Mont-Royal, Montréal",
			SourceURL:       "https://www.inaturalist.org/observations/1",
			Latitude:        &lat,
			Longitude:       &lon,
		},
		{ID: 2, SciName: "Inconnu"},
	}

	got := Build(records, Config{IncludeCoordinates: true})
	if len(got) != 2 {
		t.Fatalf("len = %d", len(got))
	}

	first := got[0]
	if first.Title != DefaultTitle {
		t.Errorf("title = %q", first.Title)
	}
	if first.Date != "2026-08-30" {
		t.Errorf("date = %q", first.Date)
	}
	if first.GPS != "45.5, -73.6" {
		t.Errorf("gps = %q", first.GPS)
	}

	second := got[1]
	if second.Date != unknownDate {
		t.Errorf("missing date = %q", second.Date)
	}
	if second.Place != unknownPlace {
		t.Errorf("missing place = %q", second.Place)
	}
	if second.GPS != "" {
		t.Errorf("gps should be empty without coordinates, got %q", second.GPS)
	}
}

func TestBuildCoordinatesOffByDefault(t *testing.T) {
	lat, lon := 45.5, -73.6
	got := Build([]observation.Record{{ID: 1, Latitude: &lat, Longitude: &lon}}, Config{Title: "Fongarium UQAM"})
	if got[0].GPS != "" {
		t.Errorf("gps = %q, want empty when not requested", got[0].GPS)
	}
	if got[0].Title != "Fongarium UQAM" {
		t.Errorf("title = %q", got[0].Title)
	}
}

func TestTextRenderer(t *testing.T) {
	labels := []Label{
		{Title: "Herbarium Label", Taxon: "Boletus edulis", Date: "2026-07-01", Place: "Gatineau", Collector: "bob", ObservationID: 42, QRData: "https://www.inaturalist.org/observations/42"},
		{Title: "Herbarium Label", Taxon: "Inconnu", Date: unknownDate, Place: unknownPlace, ObservationID: 43},
	}

	var sb strings.Builder
	if err := (TextRenderer{}).Render(&sb, labels); err != nil {
		t.Fatalf("Render: %v", err)
	}
	out := sb.String()

	for _, want := range []string{
		"Boletus edulis",
		"Date:  2026-07-01",
		"Loc:   Gatineau",
		"ID:    42",
		"URL:   https://www.inaturalist.org/observations/42",
		unknownDate,
		unknownPlace,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Count(out, "Herbarium Label") != 2 {
		t.Errorf("expected two labels:\n%s", out)
	}
}
