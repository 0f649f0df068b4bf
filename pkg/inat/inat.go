// Package inat is the client for the iNaturalist observation search API.
package inat

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/tidwall/gjson"

	"github.com/mycosphaera/fungarium/internal/utils"
	"github.com/mycosphaera/fungarium/pkg/observation"
	"github.com/mycosphaera/fungarium/pkg/whttp"
)

const (
	DefaultBaseURL = "https://api.inaturalist.org/v1"

	// MaxPerPage is the hard page-size cap of the search API.
	MaxPerPage = 200
)

type Client struct {
	BaseURL string

	// HTTP overrides the shared whttp client when set (tests, proxies).
	HTTP *retryablehttp.Client
}

func NewClient() *Client {
	return &Client{BaseURL: DefaultBaseURL}
}

// Query carries the search filters. Either IDs alone, or any combination of
// the other filters. On is a single exact date; multi-date mode issues one
// fetch per date through FetchDates.
type Query struct {
	UserID   string
	TaxonID  string
	PlaceID  string
	DateFrom string // d1, YYYY-MM-DD
	DateTo   string // d2, YYYY-MM-DD
	On       string // exact observation date
	IDs      []int64
}

func (q Query) params(page, perPage int) url.Values {
	v := url.Values{}
	if len(q.IDs) > 0 {
		ids := make([]string, 0, len(q.IDs))
		for _, id := range q.IDs {
			ids = append(ids, strconv.FormatInt(id, 10))
		}
		v.Set("id", strings.Join(ids, ","))
	} else {
		if q.UserID != "" {
			v.Set("user_id", q.UserID)
		}
		if q.TaxonID != "" {
			v.Set("taxon_id", q.TaxonID)
		}
		if q.PlaceID != "" {
			v.Set("place_id", q.PlaceID)
		}
		if q.On != "" {
			v.Set("on", q.On)
		} else {
			if q.DateFrom != "" {
				v.Set("d1", q.DateFrom)
			}
			if q.DateTo != "" {
				v.Set("d2", q.DateTo)
			}
		}
	}
	v.Set("order_by", "observed_on")
	v.Set("order", "desc")
	v.Set("page", strconv.Itoa(page))
	v.Set("per_page", strconv.Itoa(perPage))
	return v
}

// Page is one page of search results.
type Page struct {
	Results []observation.Raw
	Total   int
}

// SearchPage fetches a single result page.
func (c *Client) SearchPage(ctx context.Context, q Query, page, perPage int) (Page, error) {
	if perPage <= 0 || perPage > MaxPerPage {
		perPage = MaxPerPage
	}

	reqURL := c.BaseURL + "/observations?" + q.params(page, perPage).Encode()
	utils.Log.Debug("GET ", reqURL)

	res, err := whttp.SendHTTPRequest(&whttp.WHTTPReq{
		Method: "GET",
		URL:    reqURL,
		Headers: []whttp.WHTTPHeader{
			{Name: "Accept", Value: "application/json"},
		},
	}, c.HTTP)
	if err != nil {
		return Page{}, err
	}

	if res.StatusCode != 200 {
		if res.HTTPTitle != "" {
			return Page{}, fmt.Errorf("observation search failed with status %d (%s)", res.StatusCode, res.HTTPTitle)
		}
		return Page{}, fmt.Errorf("observation search failed with status %d", res.StatusCode)
	}

	p := Page{Total: int(gjson.Get(res.BodyString, "total_results").Int())}
	for _, r := range gjson.Get(res.BodyString, "results").Array() {
		p.Results = append(p.Results, observation.ParseRaw(r))
	}
	return p, nil
}

// FetchAll pages through results until either the API runs dry (a short page)
// or targetCount records have accumulated. Any transport error aborts the
// whole fetch and discards what was already gathered: there is no partial
// success at this layer.
func (c *Client) FetchAll(ctx context.Context, q Query, targetCount int) ([]observation.Raw, int, error) {
	if targetCount <= 0 {
		targetCount = MaxPerPage
	}

	var all []observation.Raw
	total := 0
	for page := 1; ; page++ {
		perPage := MaxPerPage
		if remaining := targetCount - len(all); remaining < perPage {
			perPage = remaining
		}

		p, err := c.SearchPage(ctx, q, page, perPage)
		if err != nil {
			return nil, 0, err
		}
		total = p.Total
		all = append(all, p.Results...)

		if len(p.Results) < perPage || len(all) >= targetCount {
			break
		}
	}
	return all, total, nil
}

// FetchDates issues one paginated fetch per selected date and merges the
// outcome. Totals are summed per date; overlapping or duplicated dates are
// expected to double-fetch boundary records, which Aggregate collapses later.
func (c *Client) FetchDates(ctx context.Context, q Query, dates []string, targetCount int) ([]observation.Raw, int, error) {
	var all []observation.Raw
	total := 0
	for _, d := range dates {
		dq := q
		dq.On = d
		recs, t, err := c.FetchAll(ctx, dq, targetCount)
		if err != nil {
			return nil, 0, err
		}
		total += t
		all = append(all, recs...)
	}
	return all, total, nil
}
