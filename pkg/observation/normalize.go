package observation

import (
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

const (
	// UnknownDate is the display token used when no date candidate survived
	// the fallback chain.
	UnknownDate = "unknown-date"

	// sortSentinelDate sinks undated records to the bottom of a
	// descending-by-date sort.
	sortSentinelDate = "0000-00-00"

	// DescriptionMaxLen matches the destination rich-text field constraint.
	DescriptionMaxLen = 2000

	unknownTaxon = "Inconnu"
)

// Record is the normalized, fixed-shape view of a Raw observation. Every
// field is best-effort: absent source data maps to the zero value (or nil
// coordinates), never to an error.
type Record struct {
	ID              int64
	SciName         string
	ObserverName    string
	ObservedDateISO string // empty when no date candidate matched
	SourceURL       string
	TagString       string
	PlaceText       string
	Description     string
	Latitude        *float64
	Longitude       *float64
	CoverPhotoURL   string
	FirstPhotoURL   string

	// GalleryPhotoURLs holds every photo at gallery size, first one
	// included, and is only populated when there are at least two photos.
	GalleryPhotoURLs []string
}

// DisplayDate returns the 10-character date for listings and labels.
func (r Record) DisplayDate() string {
	if r.ObservedDateISO == "" {
		return UnknownDate
	}
	return truncate(r.ObservedDateISO, 10)
}

// SortDate returns the key used for descending date sorts. Records without a
// usable date get an all-zero sentinel so they sort as the oldest.
func (r Record) SortDate() string {
	if r.ObservedDateISO == "" {
		return sortSentinelDate
	}
	return truncate(r.ObservedDateISO, 10)
}

// HasCoordinates reports whether both GPS halves parsed.
func (r Record) HasCoordinates() bool {
	return r.Latitude != nil && r.Longitude != nil
}

// dateExtractors are tried in order; the first non-empty result wins. Keeping
// the chain as data makes the fallback order testable on its own.
var dateExtractors = []func(Raw) string{
	extractTimestampDate,
	extractObservedOnDate,
	extractFreeTextDate,
}

// Normalize maps a Raw observation into a Record. Pure, no I/O, and it never
// fails: malformed fields resolve to their defined fallback instead.
func Normalize(raw Raw) Record {
	rec := Record{
		ID:          raw.ID,
		SciName:     extractSciName(raw),
		PlaceText:   raw.PlaceGuess,
		Description: truncate(stripHTML(raw.Description), DescriptionMaxLen),
		SourceURL:   raw.URI,
		TagString:   extractTagString(raw.Tags),
	}

	if rec.SourceURL == "" {
		rec.SourceURL = CanonicalURL(raw.ID)
	}

	if raw.UserLogin != "" {
		rec.ObserverName = raw.UserLogin
	} else {
		rec.ObserverName = raw.UserName
	}

	for _, extract := range dateExtractors {
		if d := extract(raw); d != "" {
			rec.ObservedDateISO = d
			break
		}
	}

	rec.Latitude, rec.Longitude = extractCoordinates(raw.Location)

	if len(raw.Photos) > 0 {
		first := raw.Photos[0].URL
		rec.CoverPhotoURL = PhotoURLWithSize(first, "medium")
		rec.FirstPhotoURL = PhotoURLWithSize(first, "original")
	}
	if len(raw.Photos) > 1 {
		for _, p := range raw.Photos {
			rec.GalleryPhotoURLs = append(rec.GalleryPhotoURLs, PhotoURLWithSize(p.URL, "large"))
		}
	}

	return rec
}

func extractSciName(raw Raw) string {
	if raw.TaxonName != "" {
		return raw.TaxonName
	}
	if raw.SpeciesGuess != "" {
		return raw.SpeciesGuess
	}
	return unknownTaxon
}

// extractTimestampDate keeps the full ISO timestamp when the source provides
// a structured observed-at time.
func extractTimestampDate(raw Raw) string {
	if raw.TimeObservedAt == "" {
		return ""
	}
	if _, err := time.Parse(time.RFC3339, raw.TimeObservedAt); err != nil {
		return ""
	}
	return raw.TimeObservedAt
}

// extractObservedOnDate validates the plain date string, truncated to its
// 10-character date part.
func extractObservedOnDate(raw Raw) string {
	s := truncate(raw.ObservedOn, 10)
	if s == "" {
		return ""
	}
	if _, err := time.Parse("2006-01-02", s); err != nil {
		return ""
	}
	return s
}

// extractFreeTextDate takes whatever the observer typed, truncated to 10
// characters. No validation: it is the last resort before the sentinel.
func extractFreeTextDate(raw Raw) string {
	return truncate(strings.TrimSpace(raw.ObservedOnString), 10)
}

// extractCoordinates parses the loose location shape. Either both halves
// parse or both are absent; a partial coordinate is worse than none.
func extractCoordinates(location any) (lat, lon *float64) {
	switch v := location.(type) {
	case string:
		if !strings.Contains(v, ",") {
			return nil, nil
		}
		parts := strings.SplitN(v, ",", 2)
		la, err1 := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
		lo, err2 := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
		if err1 != nil || err2 != nil {
			return nil, nil
		}
		return &la, &lo
	case []float64:
		if len(v) != 2 {
			return nil, nil
		}
		la, lo := v[0], v[1]
		return &la, &lo
	}
	return nil, nil
}

// extractTagString tolerates mixed-shape tag lists: bare strings and objects
// carrying a "tag" key in the same sequence. Empty entries are dropped.
func extractTagString(tags []any) string {
	var parts []string
	for _, t := range tags {
		var s string
		switch v := t.(type) {
		case string:
			s = v
		case map[string]any:
			s, _ = v["tag"].(string)
		}
		if s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, ", ")
}

var photoSizeTokens = []string{"square", "medium", "original", "large", "small"}

// PhotoURLWithSize swaps the size token inside a source photo URL. Source
// URLs carry the size as a path token (".../square.jpg"), so deriving another
// size is a textual substitution. URLs without a known token pass through
// unchanged.
func PhotoURLWithSize(url, size string) string {
	for _, token := range photoSizeTokens {
		if strings.Contains(url, token) {
			return strings.Replace(url, token, size, 1)
		}
	}
	return url
}

// stripHTML flattens an HTML description to plain text. Descriptions come
// from a rich-text editor and regularly contain markup.
func stripHTML(s string) string {
	if !strings.Contains(s, "<") {
		return strings.TrimSpace(s)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return strings.TrimSpace(s)
	}
	return strings.TrimSpace(doc.Text())
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
