package inat

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"testing"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/jarcoal/httpmock"
)

func newMockedClient(t *testing.T) *Client {
	t.Helper()
	rc := retryablehttp.NewClient()
	rc.Logger = log.New(io.Discard, "", 0)
	rc.RetryMax = 0
	httpmock.ActivateNonDefault(rc.HTTPClient)
	t.Cleanup(httpmock.DeactivateAndReset)
	return &Client{BaseURL: DefaultBaseURL, HTTP: rc}
}

// fakeSupply answers search requests from a fixed pool of observation ids,
// honoring page/per_page like the real API.
func fakeSupply(total int, baseID int64) httpmock.Responder {
	return func(req *http.Request) (*http.Response, error) {
		q := req.URL.Query()
		page, _ := strconv.Atoi(q.Get("page"))
		perPage, _ := strconv.Atoi(q.Get("per_page"))
		if page < 1 {
			page = 1
		}

		start := (page - 1) * MaxPerPage
		end := start + perPage
		if end > total {
			end = total
		}

		var results []string
		for i := start; i < end; i++ {
			results = append(results, fmt.Sprintf(`{"id": %d, "observed_on": "2024-09-14"}`, baseID+int64(i)))
		}
		body := fmt.Sprintf(`{"total_results": %d, "results": [%s]}`, total, strings.Join(results, ","))
		return httpmock.NewStringResponse(200, body), nil
	}
}

func TestFetchAllPaginatesUntilSupplyExhausted(t *testing.T) {
	c := newMockedClient(t)
	httpmock.RegisterResponder("GET", `=~^https://api\.inaturalist\.org/v1/observations`, fakeSupply(350, 1000))

	recs, total, err := c.FetchAll(context.Background(), Query{UserID: "mycologist42"}, 1000)
	if err != nil {
		t.Fatal(err)
	}
	if total != 350 {
		t.Errorf("total = %d, want 350", total)
	}
	if len(recs) != 350 {
		t.Errorf("len = %d, want 350", len(recs))
	}
	if got := httpmock.GetTotalCallCount(); got != 2 {
		t.Errorf("request count = %d, want 2", got)
	}
}

func TestFetchAllStopsAtTargetCount(t *testing.T) {
	c := newMockedClient(t)
	httpmock.RegisterResponder("GET", `=~^https://api\.inaturalist\.org/v1/observations`, fakeSupply(600, 1000))

	recs, total, err := c.FetchAll(context.Background(), Query{UserID: "mycologist42"}, 250)
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 250 {
		t.Errorf("len = %d, want 250", len(recs))
	}
	if total != 600 {
		t.Errorf("total = %d, want 600", total)
	}
}

func TestFetchAllAbortsOnTransportError(t *testing.T) {
	c := newMockedClient(t)
	calls := 0
	httpmock.RegisterResponder("GET", `=~^https://api\.inaturalist\.org/v1/observations`,
		func(req *http.Request) (*http.Response, error) {
			calls++
			if calls == 1 {
				return httpmock.NewStringResponse(200, `{"total_results": 400, "results": [`+fullPage(400)+`]}`), nil
			}
			return httpmock.NewStringResponse(500, `{"error": "boom"}`), nil
		})

	recs, _, err := c.FetchAll(context.Background(), Query{UserID: "mycologist42"}, 1000)
	if err == nil {
		t.Fatal("expected error")
	}
	if recs != nil {
		t.Errorf("partial results must be discarded, got %d records", len(recs))
	}
}

func TestFetchDatesSumsTotals(t *testing.T) {
	c := newMockedClient(t)
	httpmock.RegisterResponder("GET", `=~^https://api\.inaturalist\.org/v1/observations`,
		func(req *http.Request) (*http.Response, error) {
			on := req.URL.Query().Get("on")
			var body string
			switch on {
			case "2024-09-13":
				body = `{"total_results": 2, "results": [{"id": 1}, {"id": 2}]}`
			case "2024-09-14":
				body = `{"total_results": 1, "results": [{"id": 2}]}`
			default:
				return httpmock.NewStringResponse(400, `{"error": "missing on"}`), nil
			}
			return httpmock.NewStringResponse(200, body), nil
		})

	recs, total, err := c.FetchDates(context.Background(), Query{UserID: "mycologist42"}, []string{"2024-09-13", "2024-09-14"}, 100)
	if err != nil {
		t.Fatal(err)
	}
	if total != 3 {
		t.Errorf("total = %d, want sum of per-date totals 3", total)
	}
	// Concatenation happens before deduplication: Aggregate collapses it.
	if len(recs) != 3 {
		t.Errorf("len = %d, want 3 before aggregation", len(recs))
	}
	if got := len(Aggregate(recs)); got != 2 {
		t.Errorf("aggregated len = %d, want 2", got)
	}
}

func fullPage(n int) string {
	var results []string
	for i := 0; i < n; i++ {
		results = append(results, fmt.Sprintf(`{"id": %d}`, i+1))
	}
	return strings.Join(results, ",")
}
