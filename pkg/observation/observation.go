package observation

import (
	"strconv"

	"github.com/tidwall/gjson"
)

// Raw is an observation as it arrives from the search source: loosely typed,
// every field except ID optional. Field extraction happens in Normalize, which
// never fails; Raw just carries whatever the source gave us.
type Raw struct {
	ID           int64
	TaxonName    string
	SpeciesGuess string
	UserLogin    string
	UserName     string

	// Date candidates, in fallback priority order.
	TimeObservedAt   string // structured timestamp (RFC3339)
	ObservedOn       string // plain "observed on" date string
	ObservedOnString string // free-text fallback

	// Location is either a "lat,lon" string or a two-element []float64.
	// Any other shape yields absent coordinates.
	Location any

	// Tags entries are either bare strings or map[string]any carrying a
	// "tag" key. Mixed lists happen in the wild.
	Tags []any

	Photos      []RawPhoto
	Description string
	PlaceGuess  string
	URI         string
}

type RawPhoto struct {
	URL string
}

// CanonicalURL builds the canonical source URL for an observation id. It is
// the identity used both when importing and when probing the destination for
// duplicates, so both sides must build it the same way.
func CanonicalURL(id int64) string {
	return "https://www.inaturalist.org/observations/" + strconv.FormatInt(id, 10)
}

// ParseRaw maps one source API result object into a Raw observation.
func ParseRaw(res gjson.Result) Raw {
	raw := Raw{
		ID:               res.Get("id").Int(),
		TaxonName:        res.Get("taxon.name").Str,
		SpeciesGuess:     res.Get("species_guess").Str,
		UserLogin:        res.Get("user.login").Str,
		UserName:         res.Get("user.name").Str,
		TimeObservedAt:   res.Get("time_observed_at").Str,
		ObservedOn:       res.Get("observed_on").Str,
		ObservedOnString: res.Get("observed_on_string").Str,
		Description:      res.Get("description").Str,
		PlaceGuess:       res.Get("place_guess").Str,
		URI:              res.Get("uri").Str,
	}

	loc := res.Get("location")
	switch {
	case loc.Type == gjson.String:
		raw.Location = loc.Str
	case loc.IsArray():
		var pair []float64
		for _, el := range loc.Array() {
			pair = append(pair, el.Float())
		}
		raw.Location = pair
	}

	for _, t := range res.Get("tags").Array() {
		if t.Type == gjson.String {
			raw.Tags = append(raw.Tags, t.Str)
		} else {
			raw.Tags = append(raw.Tags, map[string]any{"tag": t.Get("tag").Str})
		}
	}

	for _, p := range res.Get("photos").Array() {
		raw.Photos = append(raw.Photos, RawPhoto{URL: p.Get("url").Str})
	}

	return raw
}
