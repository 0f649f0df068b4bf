package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/jarcoal/httpmock"

	"github.com/mycosphaera/fungarium/pkg/destination"
	"github.com/mycosphaera/fungarium/pkg/inat"
	"github.com/mycosphaera/fungarium/pkg/observation"
)

// fakeStore keeps created records in memory and answers duplicate-detection
// queries against them.
type fakeStore struct {
	schema  destination.Schema
	created []destination.Record
}

func newFakeStore() *fakeStore {
	return &fakeStore{schema: destination.Schema{
		Title: "Fongarium",
		Fields: map[string]destination.Field{
			"Titre":    {Name: "Titre", Type: destination.FieldTitle},
			"URL iNat": {Name: "URL iNat", Type: destination.FieldURL},
			"Date":     {Name: "Date", Type: destination.FieldDate},
		},
	}}
}

func (f *fakeStore) ResolveSchema(ctx context.Context) (destination.Schema, error) {
	return f.schema, nil
}

func (f *fakeStore) CreateRecord(ctx context.Context, rec destination.Record) (destination.Created, error) {
	f.created = append(f.created, rec)
	return destination.Created{PageID: fmt.Sprintf("page-%d", len(f.created))}, nil
}

func (f *fakeStore) UpdateRecord(ctx context.Context, pageID string, props destination.Properties) error {
	return nil
}

func (f *fakeStore) QueryRecords(ctx context.Context, filter destination.Filter) ([]destination.Stored, error) {
	var out []destination.Stored
	for i, rec := range f.created {
		url := rec.Properties["URL iNat"].Text
		for _, c := range filter.Any {
			if c.Field != "URL iNat" {
				continue
			}
			match := (c.Op == destination.OpEquals && url == c.Value) ||
				(c.Op == destination.OpContains && url != "" && strings.Contains(url, c.Value))
			if match {
				out = append(out, destination.Stored{
					PageID:     fmt.Sprintf("page-%d", i+1),
					Properties: map[string]string{"URL iNat": url},
				})
				break
			}
		}
	}
	return out, nil
}

func newTestServer(t *testing.T) (*httptest.Server, *fakeStore) {
	t.Helper()

	rc := retryablehttp.NewClient()
	rc.RetryMax = 0
	rc.Logger = nil
	httpmock.ActivateNonDefault(rc.HTTPClient)
	t.Cleanup(httpmock.DeactivateAndReset)

	httpmock.RegisterResponder("GET", `=~^https://api\.inaturalist\.org/v1/observations`,
		httpmock.NewStringResponder(200, `{
			"total_results": 2,
			"results": [
				{"id": 1, "taxon": {"name": "Amanita muscaria"}, "observed_on": "2026-08-30", "user": {"login": "alice"}},
				{"id": 2, "taxon": {"name": "Boletus edulis"}, "observed_on": "2026-08-29", "user": {"login": "alice"}}
			]
		}`))

	inatClient := inat.NewClient()
	inatClient.HTTP = rc

	store := newFakeStore()
	srv := New(inatClient, store, "", "")
	handler, err := srv.Handler()
	if err != nil {
		t.Fatalf("Handler: %v", err)
	}

	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)
	return ts, store
}

// client wraps a cookie-carrying http.Client so requests share one session.
func newSessionClient(t *testing.T, ts *httptest.Server) func(method, path string, body any) map[string]any {
	t.Helper()
	jar := map[string]string{}

	return func(method, path string, body any) map[string]any {
		var reqBody *strings.Reader
		if body != nil {
			b, err := json.Marshal(body)
			if err != nil {
				t.Fatalf("marshal: %v", err)
			}
			reqBody = strings.NewReader(string(b))
		} else {
			reqBody = strings.NewReader("")
		}

		req, err := http.NewRequest(method, ts.URL+path, reqBody)
		if err != nil {
			t.Fatalf("request: %v", err)
		}
		for name, val := range jar {
			req.AddCookie(&http.Cookie{Name: name, Value: val})
		}

		res, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatalf("%s %s: %v", method, path, err)
		}
		defer res.Body.Close()
		for _, c := range res.Cookies() {
			jar[c.Name] = c.Value
		}
		if res.StatusCode != http.StatusOK {
			t.Fatalf("%s %s: status %d", method, path, res.StatusCode)
		}

		var out map[string]any
		if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
			t.Fatalf("decode: %v", err)
		}
		return out
	}
}

func TestSearchSelectImportFlow(t *testing.T) {
	ts, store := newTestServer(t)
	call := newSessionClient(t, ts)

	// Search: everything starts selected.
	data := call("POST", "/api/search", map[string]any{"user_id": "alice", "max_count": 10})
	if got := data["fetched"].(float64); got != 2 {
		t.Fatalf("fetched = %v", got)
	}
	if got := data["selected"].(float64); got != 2 {
		t.Fatalf("selected = %v", got)
	}

	// Deselect one record.
	data = call("POST", "/api/selection/toggle", map[string]any{"id": 2, "selected": false})
	if got := data["selected"].(float64); got != 1 {
		t.Fatalf("selected after toggle = %v", got)
	}

	// Import only writes the remaining selection.
	data = call("POST", "/api/import", map[string]any{})
	if got := data["succeeded"].(float64); got != 1 {
		t.Fatalf("succeeded = %v (summary %v)", got, data["summary"])
	}
	if len(store.created) != 1 {
		t.Fatalf("created = %d", len(store.created))
	}
	wantURL := observation.CanonicalURL(1)
	if got := store.created[0].Properties["URL iNat"].Text; got != wantURL {
		t.Errorf("imported url = %q, want %q", got, wantURL)
	}
}

func TestCheckDeselectsExistingRecords(t *testing.T) {
	ts, _ := newTestServer(t)
	call := newSessionClient(t, ts)

	call("POST", "/api/search", map[string]any{"user_id": "alice", "max_count": 10})

	// First import writes both; a second search plus check must flag them.
	data := call("POST", "/api/import", map[string]any{})
	if got := data["succeeded"].(float64); got != 2 {
		t.Fatalf("first import succeeded = %v", got)
	}

	call("POST", "/api/search", map[string]any{"user_id": "alice", "max_count": 10})
	data = call("POST", "/api/check", map[string]any{})
	if got := data["deselected"].(float64); got != 2 {
		t.Fatalf("deselected = %v", got)
	}

	results := call("GET", "/api/results", nil)
	if got := results["selected"].(float64); got != 0 {
		t.Errorf("selected after check = %v", got)
	}

	// Import with nothing selected is a no-op.
	data = call("POST", "/api/import", map[string]any{})
	if got := data["succeeded"].(float64); got != 0 {
		t.Errorf("empty import succeeded = %v", got)
	}
}

func TestSessionsAreIsolated(t *testing.T) {
	ts, _ := newTestServer(t)
	first := newSessionClient(t, ts)
	second := newSessionClient(t, ts)

	first("POST", "/api/search", map[string]any{"user_id": "alice", "max_count": 10})
	data := second("GET", "/api/results", nil)
	if got := data["fetched"].(float64); got != 0 {
		t.Errorf("second session sees %v results", got)
	}
}

func TestBasicAuthRequired(t *testing.T) {
	srv := New(inat.NewClient(), newFakeStore(), "admin", "hunter2")
	handler, err := srv.Handler()
	if err != nil {
		t.Fatalf("Handler: %v", err)
	}
	ts := httptest.NewServer(handler)
	defer ts.Close()

	res, err := http.Get(ts.URL + "/api/results")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	res.Body.Close()
	if res.StatusCode != http.StatusUnauthorized {
		t.Errorf("status without credentials = %d", res.StatusCode)
	}

	req, _ := http.NewRequest("GET", ts.URL+"/api/results", nil)
	req.SetBasicAuth("admin", "hunter2")
	res, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("authed get: %v", err)
	}
	res.Body.Close()
	if res.StatusCode != http.StatusOK {
		t.Errorf("status with credentials = %d", res.StatusCode)
	}
}
