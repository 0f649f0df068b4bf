package observation

import (
	"reflect"
	"strings"
	"testing"

	"github.com/tidwall/gjson"
)

func TestNormalizeCoordinates(t *testing.T) {
	f := func(v float64) *float64 { return &v }

	tests := []struct {
		name     string
		location any
		lat, lon *float64
	}{
		{
			name:     "lat lon string",
			location: "45.5,-73.6",
			lat:      f(45.5),
			lon:      f(-73.6),
		},
		{
			name:     "string with spaces",
			location: " 45.5 , -73.6 ",
			lat:      f(45.5),
			lon:      f(-73.6),
		},
		{
			name:     "unparseable halves give no partial coordinate",
			location: "bad,data",
		},
		{
			name:     "one bad half drops both",
			location: "45.5,data",
		},
		{
			name:     "numeric pair",
			location: []float64{46.8, -71.2},
			lat:      f(46.8),
			lon:      f(-71.2),
		},
		{
			name:     "wrong pair length",
			location: []float64{46.8},
		},
		{
			name:     "no comma",
			location: "45.5",
		},
		{
			name: "absent location",
		},
		{
			name:     "unexpected shape",
			location: 42,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := Normalize(Raw{ID: 1, Location: tt.location})
			if !floatPtrEqual(rec.Latitude, tt.lat) || !floatPtrEqual(rec.Longitude, tt.lon) {
				t.Errorf("got lat=%v lon=%v, want lat=%v lon=%v", deref(rec.Latitude), deref(rec.Longitude), deref(tt.lat), deref(tt.lon))
			}
		})
	}
}

func TestNormalizeTags(t *testing.T) {
	tests := []struct {
		name string
		tags []any
		want string
	}{
		{
			name: "mixed shapes with empty entry dropped",
			tags: []any{map[string]any{"tag": "a"}, "b", map[string]any{"tag": ""}},
			want: "a, b",
		},
		{
			name: "all objects",
			tags: []any{map[string]any{"tag": "F-1024"}, map[string]any{"tag": "dried"}},
			want: "F-1024, dried",
		},
		{
			name: "no tags",
			want: "",
		},
		{
			name: "only empty entries",
			tags: []any{"", map[string]any{"tag": ""}},
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := Normalize(Raw{ID: 1, Tags: tt.tags})
			if rec.TagString != tt.want {
				t.Errorf("TagString = %q, want %q", rec.TagString, tt.want)
			}
		})
	}
}

func TestNormalizeDateFallbackChain(t *testing.T) {
	tests := []struct {
		name string
		raw  Raw
		want string
	}{
		{
			name: "structured timestamp wins",
			raw: Raw{
				TimeObservedAt:   "2024-09-14T10:30:00-04:00",
				ObservedOn:       "2024-09-13",
				ObservedOnString: "last thursday",
			},
			want: "2024-09-14T10:30:00-04:00",
		},
		{
			name: "malformed timestamp falls back to observed on",
			raw: Raw{
				TimeObservedAt: "not-a-time",
				ObservedOn:     "2024-09-13",
			},
			want: "2024-09-13",
		},
		{
			name: "long observed on truncated to date part",
			raw:  Raw{ObservedOn: "2024-09-13T00:00:00"},
			want: "2024-09-13",
		},
		{
			name: "invalid observed on falls back to free text",
			raw: Raw{
				ObservedOn:       "13 sept",
				ObservedOnString: "2024/09/13 around noon",
			},
			want: "2024/09/13",
		},
		{
			name: "free text truncated to 10 characters",
			raw:  Raw{ObservedOnString: "september the fourteenth"},
			want: "september ",
		},
		{
			name: "nothing usable",
			raw:  Raw{},
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := Normalize(tt.raw)
			if rec.ObservedDateISO != tt.want {
				t.Errorf("ObservedDateISO = %q, want %q", rec.ObservedDateISO, tt.want)
			}
		})
	}
}

func TestDisplayAndSortDate(t *testing.T) {
	dated := Normalize(Raw{TimeObservedAt: "2024-09-14T10:30:00-04:00"})
	if got := dated.DisplayDate(); got != "2024-09-14" {
		t.Errorf("DisplayDate = %q, want %q", got, "2024-09-14")
	}
	if got := dated.SortDate(); got != "2024-09-14" {
		t.Errorf("SortDate = %q, want %q", got, "2024-09-14")
	}

	undated := Normalize(Raw{})
	if got := undated.DisplayDate(); got != UnknownDate {
		t.Errorf("DisplayDate = %q, want %q", got, UnknownDate)
	}
	if got := undated.SortDate(); got != sortSentinelDate {
		t.Errorf("SortDate = %q, want %q", got, sortSentinelDate)
	}
}

func TestNormalizePhotos(t *testing.T) {
	rec := Normalize(Raw{
		ID:     7,
		Photos: []RawPhoto{{URL: "https://static.example.org/photos/7/square.jpg"}},
	})

	if want := "https://static.example.org/photos/7/medium.jpg"; rec.CoverPhotoURL != want {
		t.Errorf("CoverPhotoURL = %q, want %q", rec.CoverPhotoURL, want)
	}
	if want := "https://static.example.org/photos/7/original.jpg"; rec.FirstPhotoURL != want {
		t.Errorf("FirstPhotoURL = %q, want %q", rec.FirstPhotoURL, want)
	}
	if rec.GalleryPhotoURLs != nil {
		t.Errorf("single photo must not build a gallery, got %v", rec.GalleryPhotoURLs)
	}

	multi := Normalize(Raw{
		ID: 8,
		Photos: []RawPhoto{
			{URL: "https://static.example.org/photos/8/square.jpg"},
			{URL: "https://static.example.org/photos/9/square.jpg"},
		},
	})
	wantGallery := []string{
		"https://static.example.org/photos/8/large.jpg",
		"https://static.example.org/photos/9/large.jpg",
	}
	if !reflect.DeepEqual(multi.GalleryPhotoURLs, wantGallery) {
		t.Errorf("GalleryPhotoURLs = %v, want %v", multi.GalleryPhotoURLs, wantGallery)
	}
}

func TestPhotoURLWithSize(t *testing.T) {
	if got := PhotoURLWithSize("https://x.org/p/1/medium.jpeg", "original"); got != "https://x.org/p/1/original.jpeg" {
		t.Errorf("got %q", got)
	}
	// No known token: pass through untouched.
	if got := PhotoURLWithSize("https://x.org/p/1/photo.jpeg", "original"); got != "https://x.org/p/1/photo.jpeg" {
		t.Errorf("got %q", got)
	}
}

func TestNormalizeEmptyRawIsTotal(t *testing.T) {
	rec := Normalize(Raw{ID: 42})

	if rec.ID != 42 {
		t.Errorf("ID = %d", rec.ID)
	}
	if rec.SciName != unknownTaxon {
		t.Errorf("SciName = %q, want %q", rec.SciName, unknownTaxon)
	}
	if rec.ObserverName != "" || rec.ObservedDateISO != "" || rec.TagString != "" ||
		rec.PlaceText != "" || rec.Description != "" || rec.CoverPhotoURL != "" ||
		rec.FirstPhotoURL != "" || rec.GalleryPhotoURLs != nil {
		t.Errorf("expected empty derived fields, got %+v", rec)
	}
	if rec.Latitude != nil || rec.Longitude != nil {
		t.Error("expected nil coordinates")
	}
	if want := CanonicalURL(42); rec.SourceURL != want {
		t.Errorf("SourceURL = %q, want canonical %q", rec.SourceURL, want)
	}
}

func TestNormalizeDescription(t *testing.T) {
	rec := Normalize(Raw{Description: "<p>Under <b>spruce</b>,&nbsp;on wood.</p>"})
	if want := "Under spruce, on wood."; rec.Description != want {
		t.Errorf("Description = %q, want %q", rec.Description, want)
	}

	long := Normalize(Raw{Description: strings.Repeat("x", DescriptionMaxLen+500)})
	if len(long.Description) != DescriptionMaxLen {
		t.Errorf("Description length = %d, want %d", len(long.Description), DescriptionMaxLen)
	}
}

func TestParseRaw(t *testing.T) {
	body := `{
		"id": 987654,
		"taxon": {"name": "Amanita muscaria"},
		"species_guess": "fly agaric",
		"user": {"login": "mycologist42", "name": "A. Mycologist"},
		"time_observed_at": "2024-09-14T10:30:00-04:00",
		"observed_on": "2024-09-14",
		"observed_on_string": "Sat Sep 14 2024",
		"location": "45.5,-73.6",
		"tags": [{"tag": "F-1024"}, "dried"],
		"photos": [{"url": "https://static.example.org/photos/1/square.jpg"}],
		"description": "On a lawn",
		"place_guess": "Parc du Mont-Royal",
		"uri": "https://www.inaturalist.org/observations/987654"
	}`

	raw := ParseRaw(gjson.Parse(body))

	want := Raw{
		ID:               987654,
		TaxonName:        "Amanita muscaria",
		SpeciesGuess:     "fly agaric",
		UserLogin:        "mycologist42",
		UserName:         "A. Mycologist",
		TimeObservedAt:   "2024-09-14T10:30:00-04:00",
		ObservedOn:       "2024-09-14",
		ObservedOnString: "Sat Sep 14 2024",
		Location:         "45.5,-73.6",
		Tags:             []any{map[string]any{"tag": "F-1024"}, "dried"},
		Photos:           []RawPhoto{{URL: "https://static.example.org/photos/1/square.jpg"}},
		Description:      "On a lawn",
		PlaceGuess:       "Parc du Mont-Royal",
		URI:              "https://www.inaturalist.org/observations/987654",
	}

	if !reflect.DeepEqual(raw, want) {
		t.Errorf("ParseRaw mismatch:\n got %+v\nwant %+v", raw, want)
	}
}

func floatPtrEqual(a, b *float64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func deref(f *float64) any {
	if f == nil {
		return nil
	}
	return *f
}
