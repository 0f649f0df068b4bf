package server

import (
	"encoding/json"
	"net/http"

	"github.com/mycosphaera/fungarium/pkg/dedupe"
	"github.com/mycosphaera/fungarium/pkg/importer"
	"github.com/mycosphaera/fungarium/pkg/inat"
	"github.com/mycosphaera/fungarium/pkg/observation"
	"github.com/mycosphaera/fungarium/pkg/session"
)

// resultRow is the list view of one observation: normalized display fields
// plus its current selection state.
type resultRow struct {
	ID        int64  `json:"id"`
	SciName   string `json:"sci_name"`
	Observer  string `json:"observer"`
	Date      string `json:"date"`
	Place     string `json:"place"`
	SourceURL string `json:"source_url"`
	PhotoURL  string `json:"photo_url"`
	Tags      string `json:"tags,omitempty"`
	Selected  bool   `json:"selected"`
}

type resultsResponse struct {
	Total    int         `json:"total"`
	Fetched  int         `json:"fetched"`
	Selected int         `json:"selected"`
	Results  []resultRow `json:"results"`
}

func (s *Server) sessionResponse(sess *session.Session) resultsResponse {
	resp := resultsResponse{
		Total:    sess.Total,
		Fetched:  len(sess.Results),
		Selected: sess.CountSelected(sess.ResultIDs()),
		Results:  []resultRow{},
	}
	for _, raw := range sess.Results {
		rec := observation.Normalize(raw)
		resp.Results = append(resp.Results, resultRow{
			ID:        rec.ID,
			SciName:   rec.SciName,
			Observer:  rec.ObserverName,
			Date:      rec.DisplayDate(),
			Place:     rec.PlaceText,
			SourceURL: rec.SourceURL,
			PhotoURL:  rec.CoverPhotoURL,
			Tags:      rec.TagString,
			Selected:  sess.Selection[rec.ID],
		})
	}
	return resp
}

func (s *Server) handleResults(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	json.NewEncoder(w).Encode(s.sessionResponse(sess))
}

type searchRequest struct {
	UserID   string   `json:"user_id"`
	TaxonID  string   `json:"taxon_id"`
	PlaceID  string   `json:"place_id"`
	DateFrom string   `json:"date_from"`
	DateTo   string   `json:"date_to"`
	Dates    []string `json:"dates"`
	IDs      []int64  `json:"ids"`
	MaxCount int      `json:"max_count"`
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	q := inat.Query{
		UserID:   req.UserID,
		TaxonID:  req.TaxonID,
		PlaceID:  req.PlaceID,
		DateFrom: req.DateFrom,
		DateTo:   req.DateTo,
		IDs:      req.IDs,
	}

	var (
		raws  []observation.Raw
		total int
		err   error
	)
	if len(req.Dates) > 0 {
		raws, total, err = s.Inat.FetchDates(r.Context(), q, req.Dates, req.MaxCount)
	} else {
		raws, total, err = s.Inat.FetchAll(r.Context(), q, req.MaxCount)
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}

	sess.SetResults(inat.Aggregate(raws), total)
	json.NewEncoder(w).Encode(s.sessionResponse(sess))
}

type selectionRequest struct {
	IDs      []int64 `json:"ids"`
	Selected bool    `json:"selected"`
}

func (s *Server) handleSelection(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	var req selectionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	ids := req.IDs
	if len(ids) == 0 {
		ids = sess.ResultIDs()
	}
	sess.SetMany(ids, req.Selected)
	json.NewEncoder(w).Encode(s.sessionResponse(sess))
}

type toggleRequest struct {
	ID       int64 `json:"id"`
	Selected bool  `json:"selected"`
}

func (s *Server) handleToggle(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	var req toggleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	sess.Toggle(req.ID, req.Selected)
	json.NewEncoder(w).Encode(s.sessionResponse(sess))
}

type checkResponse struct {
	Duplicates []int64 `json:"duplicates"`
	Deselected int     `json:"deselected"`
}

// handleCheck runs duplicate detection over the fetched results and
// deselects the records already present in the destination.
func (s *Server) handleCheck(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	schema, err := s.resolveSchema(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}

	dups, err := dedupe.Find(r.Context(), s.Store, dedupe.DiscoverURLFields(schema), sess.ResultIDs())
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}

	resp := checkResponse{Duplicates: []int64{}}
	for _, id := range sess.ResultIDs() {
		if dups[id] {
			resp.Duplicates = append(resp.Duplicates, id)
		}
	}
	resp.Deselected = dedupe.Deselect(sess, dups)
	json.NewEncoder(w).Encode(resp)
}

type importRequest struct {
	GPSAsText  bool `json:"gps_as_text"`
	SkipQRCode bool `json:"skip_qr_code"`
}

type importResponse struct {
	Succeeded int                `json:"succeeded"`
	Failed    int                `json:"failed"`
	Summary   string             `json:"summary"`
	Outcomes  []importer.Outcome `json:"outcomes"`
}

func (s *Server) handleImport(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	var req importRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	schema, err := s.resolveSchema(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}

	opts := s.Options
	opts.GPSAsText = req.GPSAsText
	opts.SkipQRCode = req.SkipQRCode

	exec, err := importer.New(s.Store, schema, s.FieldMap, opts)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var recs []observation.Record
	for _, raw := range sess.SelectedResults() {
		recs = append(recs, observation.Normalize(raw))
	}

	report := exec.Run(r.Context(), recs)
	json.NewEncoder(w).Encode(importResponse{
		Succeeded: report.Succeeded(),
		Failed:    report.Failed(),
		Summary:   report.Summary(),
		Outcomes:  report.Outcomes,
	})
}

func (s *Server) handleSchema(w http.ResponseWriter, r *http.Request) {
	schema, err := s.resolveSchema(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	json.NewEncoder(w).Encode(schema)
}
