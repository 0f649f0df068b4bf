// Package labels turns normalized observations into printable specimen
// labels. Only the plain-text renderer lives here; PDF layout tools consume
// the same Label values externally.
package labels

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/mycosphaera/fungarium/pkg/observation"
)

const (
	DefaultTitle = "Herbarium Label"

	unknownDate  = "Date inconnue"
	unknownPlace = "Lieu inconnu"
)

type Config struct {
	// Title is printed at the top of every label.
	Title string

	// IncludeCoordinates adds a GPS line when the record has both halves.
	IncludeCoordinates bool
}

// Label is one specimen label, ready for any renderer.
type Label struct {
	Title         string
	Taxon         string
	Date          string
	Place         string
	Collector     string
	ObservationID int64
	GPS           string // empty unless requested and available
	QRData        string // the observation URL, encoded by print renderers
}

// Renderer writes a batch of labels to w in one output format.
type Renderer interface {
	Render(w io.Writer, labels []Label) error
}

// Build maps records to labels, applying the display fallbacks print sheets
// expect.
func Build(records []observation.Record, cfg Config) []Label {
	title := cfg.Title
	if title == "" {
		title = DefaultTitle
	}

	out := make([]Label, 0, len(records))
	for _, r := range records {
		l := Label{
			Title:         title,
			Taxon:         r.SciName,
			Date:          r.DisplayDate(),
			Place:         r.PlaceText,
			Collector:     r.ObserverName,
			ObservationID: r.ID,
			QRData:        r.SourceURL,
		}
		if l.Date == observation.UnknownDate {
			l.Date = unknownDate
		}
		if l.Place == "" {
			l.Place = unknownPlace
		}
		if cfg.IncludeCoordinates && r.HasCoordinates() {
			l.GPS = formatCoord(*r.Latitude) + ", " + formatCoord(*r.Longitude)
		}
		out = append(out, l)
	}
	return out
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// TextRenderer prints labels as bordered plain-text blocks, one per label.
type TextRenderer struct{}

func (TextRenderer) Render(w io.Writer, labels []Label) error {
	for i, l := range labels {
		if i > 0 {
			if _, err := fmt.Fprintln(w); err != nil {
				return err
			}
		}
		if err := renderOne(w, l); err != nil {
			return err
		}
	}
	return nil
}

func renderOne(w io.Writer, l Label) error {
	rule := strings.Repeat("-", 46)
	if _, err := fmt.Fprintf(w, "%s\n%s\n%s\n%s\n", rule, center(l.Title, 46), center(l.Taxon, 46), rule); err != nil {
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Date:\t%s\n", l.Date)
	fmt.Fprintf(tw, "Loc:\t%s\n", l.Place)
	fmt.Fprintf(tw, "Det:\t%s\n", l.Collector)
	fmt.Fprintf(tw, "ID:\t%d\n", l.ObservationID)
	if l.GPS != "" {
		fmt.Fprintf(tw, "GPS:\t%s\n", l.GPS)
	}
	if l.QRData != "" {
		fmt.Fprintf(tw, "URL:\t%s\n", l.QRData)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	_, err := fmt.Fprintln(w, rule)
	return err
}

func center(s string, width int) string {
	if len(s) >= width {
		return s
	}
	pad := (width - len(s)) / 2
	return strings.Repeat(" ", pad) + s
}
