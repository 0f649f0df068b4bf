// Package notion implements destination.Store against the Notion API.
package notion

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/tidwall/gjson"

	"github.com/mycosphaera/fungarium/internal/utils"
	"github.com/mycosphaera/fungarium/pkg/destination"
	"github.com/mycosphaera/fungarium/pkg/whttp"
)

const (
	DefaultBaseURL = "https://api.notion.com/v1"

	// apiVersion is pinned: property payload shapes change between Notion
	// API versions.
	apiVersion = "2022-06-28"
)

type Client struct {
	Token      string
	DatabaseID string
	BaseURL    string

	// HTTP overrides the shared whttp client when set (tests, proxies).
	HTTP *retryablehttp.Client

	schema *destination.Schema
}

func NewClient(token, databaseID string) *Client {
	return &Client{
		Token:      token,
		DatabaseID: SanitizeDatabaseID(databaseID),
		BaseURL:    DefaultBaseURL,
	}
}

// SanitizeDatabaseID accepts either a bare database id or a pasted notion.so
// URL and returns the id.
func SanitizeDatabaseID(s string) string {
	s = strings.TrimSpace(s)
	if !strings.Contains(s, "notion.so") {
		return s
	}
	s = strings.SplitN(s, "?", 2)[0]
	parts := strings.Split(s, "/")
	return parts[len(parts)-1]
}

func (c *Client) send(method, path, body string) (*whttp.WHTTPRes, error) {
	res, err := whttp.SendHTTPRequest(&whttp.WHTTPReq{
		Method: method,
		URL:    c.BaseURL + path,
		Body:   body,
		Headers: []whttp.WHTTPHeader{
			{Name: "Authorization", Value: "Bearer " + c.Token},
			{Name: "Notion-Version", Value: apiVersion},
			{Name: "Content-Type", Value: "application/json"},
		},
	}, c.HTTP)
	if err != nil {
		return nil, err
	}
	if res.StatusCode >= 400 {
		msg := gjson.Get(res.BodyString, "message").Str
		if msg == "" {
			msg = res.HTTPTitle
		}
		return nil, fmt.Errorf("notion request failed with status %d: %s", res.StatusCode, msg)
	}
	return res, nil
}

// ResolveSchema fetches the database's property layout. The result is cached
// so query-filter construction can pick per-type predicates.
func (c *Client) ResolveSchema(ctx context.Context) (destination.Schema, error) {
	res, err := c.send("GET", "/databases/"+c.DatabaseID, "")
	if err != nil {
		return destination.Schema{}, err
	}

	schema := destination.Schema{Fields: map[string]destination.Field{}}
	schema.Title = gjson.Get(res.BodyString, "title.0.plain_text").Str

	gjson.Get(res.BodyString, "properties").ForEach(func(name, prop gjson.Result) bool {
		f := destination.Field{
			Name: name.Str,
			Type: fieldTypeFromNotion(prop.Get("type").Str),
		}
		for _, opt := range prop.Get("select.options").Array() {
			f.Options = append(f.Options, opt.Get("name").Str)
		}
		schema.Fields[f.Name] = f
		return true
	})

	c.schema = &schema
	return schema, nil
}

func (c *Client) CreateRecord(ctx context.Context, rec destination.Record) (destination.Created, error) {
	payload := map[string]any{
		// Explicit parent type keeps newer API versions happy.
		"parent":     map[string]any{"type": "database_id", "database_id": c.DatabaseID},
		"properties": propertiesJSON(rec.Properties),
	}
	if rec.CoverURL != "" {
		payload["cover"] = map[string]any{"external": map[string]any{"url": rec.CoverURL}}
	}
	if len(rec.GalleryURLs) > 0 {
		payload["children"] = galleryBlocks(rec.GalleryHeading, rec.GalleryURLs)
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return destination.Created{}, err
	}

	res, err := c.send("POST", "/pages", string(body))
	if err != nil {
		return destination.Created{}, err
	}

	return destination.Created{
		PageID: gjson.Get(res.BodyString, "id").Str,
		URL:    gjson.Get(res.BodyString, "url").Str,
	}, nil
}

// QueryRecords runs a disjunctive filter against the database, following
// cursor pagination to the end.
func (c *Client) QueryRecords(ctx context.Context, filter destination.Filter) ([]destination.Stored, error) {
	if len(filter.Any) == 0 {
		return nil, nil
	}

	var conditions []map[string]any
	for _, cond := range filter.Any {
		conditions = append(conditions, c.conditionJSON(cond))
	}

	var out []destination.Stored
	cursor := ""
	for {
		payload := map[string]any{"filter": map[string]any{"or": conditions}}
		if cursor != "" {
			payload["start_cursor"] = cursor
		}
		body, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}

		res, err := c.send("POST", "/databases/"+c.DatabaseID+"/query", string(body))
		if err != nil {
			return nil, err
		}

		for _, page := range gjson.Get(res.BodyString, "results").Array() {
			out = append(out, flattenPage(page))
		}

		if !gjson.Get(res.BodyString, "has_more").Bool() {
			break
		}
		cursor = gjson.Get(res.BodyString, "next_cursor").Str
	}
	return out, nil
}

func (c *Client) UpdateRecord(ctx context.Context, pageID string, props destination.Properties) error {
	body, err := json.Marshal(map[string]any{"properties": propertiesJSON(props)})
	if err != nil {
		return err
	}
	_, err = c.send("PATCH", "/pages/"+pageID, string(body))
	return err
}

// conditionJSON picks the filter predicate by the field's schema type,
// defaulting to a URL predicate: duplicate detection only ever probes
// URL-bearing fields.
func (c *Client) conditionJSON(cond destination.Condition) map[string]any {
	kind := "url"
	if c.schema != nil {
		if f, ok := c.schema.Field(cond.Field); ok {
			switch f.Type {
			case destination.FieldRichText, destination.FieldTitle:
				kind = "rich_text"
			case destination.FieldSelect:
				kind = "select"
			}
		}
	}

	pred := map[string]any{string(cond.Op): cond.Value}
	if kind == "select" {
		// Select fields only support equality.
		pred = map[string]any{"equals": cond.Value}
	}
	return map[string]any{"property": cond.Field, kind: pred}
}

func propertiesJSON(props destination.Properties) map[string]any {
	out := make(map[string]any, len(props))
	for name, p := range props {
		out[name] = propertyJSON(p)
	}
	return out
}

func propertyJSON(p destination.Property) map[string]any {
	switch p.Type {
	case destination.FieldTitle:
		return map[string]any{"title": []any{textContent(p.Text)}}
	case destination.FieldSelect:
		return map[string]any{"select": map[string]any{"name": p.Text}}
	case destination.FieldURL:
		return map[string]any{"url": p.Text}
	case destination.FieldNumber:
		return map[string]any{"number": p.Number}
	case destination.FieldDate:
		return map[string]any{"date": map[string]any{"start": p.Text}}
	default:
		return map[string]any{"rich_text": []any{textContent(p.Text)}}
	}
}

func textContent(s string) map[string]any {
	return map[string]any{"text": map[string]any{"content": s}}
}

// galleryBlocks builds the page body: a heading followed by every photo.
func galleryBlocks(heading string, urls []string) []any {
	blocks := []any{
		map[string]any{
			"object":    "block",
			"type":      "heading_3",
			"heading_3": map[string]any{"rich_text": []any{textContent(heading)}},
		},
	}
	for _, u := range urls {
		blocks = append(blocks, map[string]any{
			"object": "block",
			"type":   "image",
			"image":  map[string]any{"type": "external", "external": map[string]any{"url": u}},
		})
	}
	return blocks
}

// flattenPage reduces a page's properties to plain text per field.
func flattenPage(page gjson.Result) destination.Stored {
	stored := destination.Stored{
		PageID:     page.Get("id").Str,
		Properties: map[string]string{},
	}
	page.Get("properties").ForEach(func(name, prop gjson.Result) bool {
		if v := flattenProperty(prop); v != "" {
			stored.Properties[name.Str] = v
		}
		return true
	})
	return stored
}

func flattenProperty(prop gjson.Result) string {
	switch prop.Get("type").Str {
	case "url":
		return prop.Get("url").Str
	case "title":
		return joinPlainText(prop.Get("title"))
	case "rich_text":
		return joinPlainText(prop.Get("rich_text"))
	case "select":
		return prop.Get("select.name").Str
	case "number":
		if prop.Get("number").Exists() && prop.Get("number").Type != gjson.Null {
			return prop.Get("number").String()
		}
	case "date":
		return prop.Get("date.start").Str
	}
	return ""
}

func joinPlainText(arr gjson.Result) string {
	var b strings.Builder
	for _, el := range arr.Array() {
		b.WriteString(el.Get("plain_text").Str)
	}
	return b.String()
}

func fieldTypeFromNotion(t string) destination.FieldType {
	switch t {
	case "title":
		return destination.FieldTitle
	case "rich_text":
		return destination.FieldRichText
	case "select":
		return destination.FieldSelect
	case "url":
		return destination.FieldURL
	case "number":
		return destination.FieldNumber
	case "date":
		return destination.FieldDate
	case "files":
		return destination.FieldFiles
	case "relation":
		return destination.FieldRelation
	default:
		utils.Log.Debug("unhandled destination field type: ", t)
		return destination.FieldOther
	}
}
