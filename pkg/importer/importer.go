// Package importer writes selected, normalized observations into a
// destination store, one record at a time, isolating per-record failures so a
// single rejected write never aborts the batch.
package importer

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/mycosphaera/fungarium/internal/utils"
	"github.com/mycosphaera/fungarium/pkg/destination"
	"github.com/mycosphaera/fungarium/pkg/observation"
)

// FieldMap lists, per logical property, the destination field name variants
// to try in order. The defaults are the field names of the fungarium database
// this tool was built for; schema resolution drops whatever the actual
// destination lacks.
type FieldMap struct {
	Title       []string
	Date        []string
	Observer    []string
	SourceURL   []string
	PhotoURL    []string
	CatalogCode []string
	Description []string
	Place       []string
	Latitude    []string
	Longitude   []string
	QRCode      []string
}

func DefaultFieldMap() FieldMap {
	return FieldMap{
		Title:       []string{"Titre", "Title", "Nom"},
		Date:        []string{"Date"},
		Observer:    []string{"Mycologue", "Observateur", "Observer"},
		SourceURL:   []string{"URL iNat", "iNat URL", "Lien iNat", "URL"},
		PhotoURL:    []string{"Photo Inat", "Photo iNat", "Photo"},
		CatalogCode: []string{"No° Fongarium", "No Fongarium", "Accession"},
		Description: []string{"Description rapide", "Description"},
		Place:       []string{"Repère", "Lieu", "Place"},
		Latitude:    []string{"latitude (sexadécimal)", "Latitude"},
		Longitude:   []string{"longitude (sexadécimal)", "Longitude"},
		QRCode:      []string{"QR Code", "QR"},
	}
}

// Options tunes one import run.
type Options struct {
	// GPSAsText writes coordinates into rich-text fields instead of number
	// fields. Validated once against the schema, never per record.
	GPSAsText bool

	// SkipQRCode disables the best-effort secondary write.
	SkipQRCode bool

	GalleryHeading string

	// Progress, when set, runs after each record completes.
	Progress func(done, total int)
}

// Outcome is the per-record result of an import.
type Outcome struct {
	ObservationID int64
	SciName       string
	PageID        string
	PageURL       string
	FailReason    string
	Warnings      []string
}

func (o Outcome) Created() bool { return o.FailReason == "" }

// Report aggregates a whole batch.
type Report struct {
	Outcomes []Outcome
}

func (r Report) Succeeded() int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Created() {
			n++
		}
	}
	return n
}

func (r Report) Failed() int { return len(r.Outcomes) - r.Succeeded() }

func (r Report) FailedOutcomes() []Outcome {
	var out []Outcome
	for _, o := range r.Outcomes {
		if !o.Created() {
			out = append(out, o)
		}
	}
	return out
}

func (r Report) Summary() string {
	return fmt.Sprintf("%d imported, %d failed", r.Succeeded(), r.Failed())
}

// resolved maps logical properties to actual schema fields. An empty name
// means the destination has no such field and the property is omitted.
type resolved struct {
	title       string
	date        string
	observer    destination.Field
	sourceURL   string
	photoURL    string
	catalogCode string
	description string
	place       string
	latitude    destination.Field
	longitude   destination.Field
	qrCode      string
	gpsAsText   bool
}

// Executor imports batches against one resolved destination schema.
type Executor struct {
	store  destination.Store
	fields resolved
	opts   Options
}

// New resolves the field map against the schema and validates the GPS mode
// once. It fails when the destination has no title field or when the GPS
// fields' types contradict the configured mode.
func New(store destination.Store, schema destination.Schema, fm FieldMap, opts Options) (*Executor, error) {
	if opts.GalleryHeading == "" {
		opts.GalleryHeading = "Galerie Photo"
	}

	var r resolved
	r.gpsAsText = opts.GPSAsText

	if f, ok := schema.FirstPresent(fm.Title...); ok {
		if f.Type != destination.FieldTitle {
			return nil, fmt.Errorf("destination field %q is %s, expected a title field", f.Name, f.Type)
		}
		r.title = f.Name
	} else {
		// Fall back to whatever title field the schema carries; a record
		// store without one cannot be imported into.
		titles := schema.FieldsOfType(destination.FieldTitle)
		if len(titles) == 0 {
			return nil, fmt.Errorf("destination schema has no title field")
		}
		r.title = titles[0]
	}

	r.date = nameOfType(schema, fm.Date, destination.FieldDate)
	r.sourceURL = nameOfType(schema, fm.SourceURL, destination.FieldURL)
	r.photoURL = nameOfType(schema, fm.PhotoURL, destination.FieldURL)
	r.catalogCode = nameOfType(schema, fm.CatalogCode, destination.FieldRichText)
	r.description = nameOfType(schema, fm.Description, destination.FieldRichText)
	r.place = nameOfType(schema, fm.Place, destination.FieldRichText)
	r.qrCode = nameOfType(schema, fm.QRCode, destination.FieldURL)

	// The observer property is written as a constrained category when the
	// schema says so, and as rich text otherwise.
	if f, ok := schema.FirstPresent(fm.Observer...); ok {
		if f.Type != destination.FieldSelect && f.Type != destination.FieldRichText {
			return nil, fmt.Errorf("destination field %q is %s, expected select or rich_text", f.Name, f.Type)
		}
		r.observer = f
	}

	// GPS mode is a configuration choice, checked against the schema here
	// and never re-sniffed per record.
	wantGPS := destination.FieldNumber
	if opts.GPSAsText {
		wantGPS = destination.FieldRichText
	}
	if f, ok := schema.FirstPresent(fm.Latitude...); ok {
		if f.Type != wantGPS {
			return nil, fmt.Errorf("destination field %q is %s but GPS mode expects %s", f.Name, f.Type, wantGPS)
		}
		r.latitude = f
	}
	if f, ok := schema.FirstPresent(fm.Longitude...); ok {
		if f.Type != wantGPS {
			return nil, fmt.Errorf("destination field %q is %s but GPS mode expects %s", f.Name, f.Type, wantGPS)
		}
		r.longitude = f
	}

	return &Executor{store: store, fields: r, opts: opts}, nil
}

// nameOfType resolves the first present name variant to its field name when
// the field carries the expected type; an empty string means the destination
// has no such field and the property is omitted.
func nameOfType(schema destination.Schema, names []string, t destination.FieldType) string {
	if f, ok := schema.FirstPresent(names...); ok && f.Type == t {
		return f.Name
	}
	return ""
}

// Run imports the batch sequentially. Per-record failures are recorded and
// the loop continues; the progress hook fires after every record, success or
// not. Cancellation mid-batch is not supported.
func (e *Executor) Run(ctx context.Context, recs []observation.Record) Report {
	report := Report{Outcomes: make([]Outcome, 0, len(recs))}

	for i, rec := range recs {
		outcome := e.importOne(ctx, rec)
		report.Outcomes = append(report.Outcomes, outcome)

		if !outcome.Created() {
			utils.Log.Warn("import failed for ", rec.SciName, " (", rec.ID, "): ", outcome.FailReason)
		}
		if e.opts.Progress != nil {
			e.opts.Progress(i+1, len(recs))
		}
	}

	return report
}

func (e *Executor) importOne(ctx context.Context, rec observation.Record) Outcome {
	outcome := Outcome{ObservationID: rec.ID, SciName: rec.SciName}

	dest := destination.Record{
		Properties: e.buildProperties(rec),
		CoverURL:   rec.CoverPhotoURL,
	}
	if len(rec.GalleryPhotoURLs) > 0 {
		dest.GalleryHeading = e.opts.GalleryHeading
		dest.GalleryURLs = rec.GalleryPhotoURLs
	}

	created, err := e.store.CreateRecord(ctx, dest)
	if err != nil {
		outcome.FailReason = err.Error()
		return outcome
	}
	outcome.PageID = created.PageID
	outcome.PageURL = created.URL

	// Secondary write: a scannable code pointing back at the new record.
	// Best effort only; its failure downgrades to a warning.
	if !e.opts.SkipQRCode && e.fields.qrCode != "" && created.URL != "" {
		qrProps := destination.Properties{
			e.fields.qrCode: destination.URL(qrImageURL(created.URL)),
		}
		if err := e.store.UpdateRecord(ctx, created.PageID, qrProps); err != nil {
			outcome.Warnings = append(outcome.Warnings, fmt.Sprintf("QR code write failed: %v", err))
		}
	}

	return outcome
}

// buildProperties applies the fixed mapping table. Absent source values are
// left out of the payload entirely, never written as empty strings.
func (e *Executor) buildProperties(rec observation.Record) destination.Properties {
	f := e.fields
	props := destination.Properties{
		f.title: destination.Title(rec.SciName),
	}

	if f.date != "" && rec.ObservedDateISO != "" {
		props[f.date] = destination.Date(rec.ObservedDateISO)
	}
	if f.observer.Name != "" && rec.ObserverName != "" {
		if f.observer.Type == destination.FieldSelect {
			props[f.observer.Name] = destination.Select(rec.ObserverName)
		} else {
			props[f.observer.Name] = destination.RichText(rec.ObserverName)
		}
	}
	if f.sourceURL != "" && rec.SourceURL != "" {
		props[f.sourceURL] = destination.URL(rec.SourceURL)
	}
	if f.photoURL != "" && rec.FirstPhotoURL != "" {
		props[f.photoURL] = destination.URL(rec.FirstPhotoURL)
	}
	if f.catalogCode != "" && rec.TagString != "" {
		props[f.catalogCode] = destination.RichText(rec.TagString)
	}
	if f.description != "" && rec.Description != "" {
		props[f.description] = destination.RichText(rec.Description)
	}
	if f.place != "" && rec.PlaceText != "" {
		props[f.place] = destination.RichText(rec.PlaceText)
	}

	if rec.HasCoordinates() {
		if f.latitude.Name != "" {
			props[f.latitude.Name] = gpsProperty(*rec.Latitude, f.gpsAsText)
		}
		if f.longitude.Name != "" {
			props[f.longitude.Name] = gpsProperty(*rec.Longitude, f.gpsAsText)
		}
	}

	return props
}

func gpsProperty(v float64, asText bool) destination.Property {
	if asText {
		return destination.RichText(strconv.FormatFloat(v, 'f', -1, 64))
	}
	return destination.Number(v)
}

func qrImageURL(pageURL string) string {
	return "https://api.qrserver.com/v1/create-qr-code/?size=300x300&data=" + url.QueryEscape(pageURL)
}
