// Package destination defines the schema-backed record store the import
// pipeline writes to. The Notion client and the local SQLite fungarium both
// implement Store; the duplicate detector and the import executor only ever
// talk to this interface.
package destination

import "context"

type FieldType string

const (
	FieldTitle    FieldType = "title"
	FieldRichText FieldType = "rich_text"
	FieldSelect   FieldType = "select"
	FieldURL      FieldType = "url"
	FieldNumber   FieldType = "number"
	FieldDate     FieldType = "date"
	FieldFiles    FieldType = "files"
	FieldRelation FieldType = "relation"
	FieldOther    FieldType = "other"
)

// Field describes one destination property, as discovered from the schema.
type Field struct {
	Name    string
	Type    FieldType
	Options []string // select options, when applicable
}

// Schema is resolved once per session via Store.ResolveSchema, never
// re-sniffed per record.
type Schema struct {
	Title  string
	Fields map[string]Field
}

// Field looks up a property by exact name.
func (s Schema) Field(name string) (Field, bool) {
	f, ok := s.Fields[name]
	return f, ok
}

// FirstPresent returns the first of the given name variants that exists in
// the schema. Older imports may have used differently-named fields, so
// callers resolve logical properties through ordered variant lists.
func (s Schema) FirstPresent(names ...string) (Field, bool) {
	for _, n := range names {
		if f, ok := s.Fields[n]; ok {
			return f, true
		}
	}
	return Field{}, false
}

// FieldsOfType lists the names of all fields with the given type.
func (s Schema) FieldsOfType(t FieldType) []string {
	var out []string
	for name, f := range s.Fields {
		if f.Type == t {
			out = append(out, name)
		}
	}
	return out
}

// Property is a tagged value for one destination field. Text carries title,
// rich text, select option names, URLs and ISO dates; Number carries numeric
// fields.
type Property struct {
	Type   FieldType
	Text   string
	Number float64
}

func Title(s string) Property    { return Property{Type: FieldTitle, Text: s} }
func RichText(s string) Property { return Property{Type: FieldRichText, Text: s} }
func Select(s string) Property   { return Property{Type: FieldSelect, Text: s} }
func URL(s string) Property      { return Property{Type: FieldURL, Text: s} }
func Date(iso string) Property   { return Property{Type: FieldDate, Text: iso} }
func Number(v float64) Property  { return Property{Type: FieldNumber, Number: v} }

type Properties map[string]Property

// Record is one write payload. Properties never contain empty values: absent
// source data is omitted entirely, not written as null.
type Record struct {
	Properties     Properties
	CoverURL       string
	GalleryHeading string
	GalleryURLs    []string
}

// Created identifies a freshly written record.
type Created struct {
	PageID string
	URL    string
}

// Stored is a queried record, with its properties flattened to plain text.
type Stored struct {
	PageID     string
	Properties map[string]string
}

type Op string

const (
	OpContains Op = "contains"
	OpEquals   Op = "equals"
)

type Condition struct {
	Field string
	Op    Op
	Value string
}

// Filter matches a record when any one of its conditions matches.
type Filter struct {
	Any []Condition
}

// Store is the destination record store.
type Store interface {
	// ResolveSchema fetches field names, types and select options. Called
	// once per session; detection cannot proceed if it fails.
	ResolveSchema(ctx context.Context) (Schema, error)
	CreateRecord(ctx context.Context, rec Record) (Created, error)
	QueryRecords(ctx context.Context, filter Filter) ([]Stored, error)
	UpdateRecord(ctx context.Context, pageID string, props Properties) error
}
