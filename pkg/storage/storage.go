// Package storage is the local SQLite fungarium: a destination.Store backed
// by a file instead of a remote API, used for offline imports and as the
// round-trip target in tests.
package storage

import (
	"context"
	"database/sql"
	"strings"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/mycosphaera/fungarium/pkg/destination"
)

type DB struct {
	sql    *sql.DB
	schema destination.Schema
}

// Open opens (and, when needed, initializes) the fungarium database at path.
func Open(path string) (*DB, error) {
	dsn := "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		return nil, err
	}
	if _, err := db.Exec(`
CREATE TABLE IF NOT EXISTS records (
  page_id    TEXT PRIMARY KEY,
  created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
  title      TEXT NOT NULL,
  cover_url  TEXT
);
CREATE TABLE IF NOT EXISTS record_props (
  page_id    TEXT NOT NULL REFERENCES records(page_id),
  field      TEXT NOT NULL,
  type       TEXT NOT NULL,
  value_text TEXT,
  value_num  REAL,
  PRIMARY KEY (page_id, field)
);
CREATE INDEX IF NOT EXISTS idx_props_field_text ON record_props(field, value_text);
CREATE TABLE IF NOT EXISTS record_gallery (
  page_id  TEXT NOT NULL REFERENCES records(page_id),
  position INTEGER NOT NULL,
  url      TEXT NOT NULL,
  PRIMARY KEY (page_id, position)
);
    `); err != nil {
		return nil, err
	}
	return &DB{sql: db, schema: DefaultSchema()}, nil
}

func (d *DB) Close() error {
	if d == nil || d.sql == nil {
		return nil
	}
	return d.sql.Close()
}

// DefaultSchema is the field layout of a local fungarium. It mirrors the
// destination database this tool usually writes to, so the same field map
// works against both.
func DefaultSchema() destination.Schema {
	fields := []destination.Field{
		{Name: "Titre", Type: destination.FieldTitle},
		{Name: "Date", Type: destination.FieldDate},
		{Name: "Mycologue", Type: destination.FieldSelect},
		{Name: "URL iNat", Type: destination.FieldURL},
		{Name: "Photo Inat", Type: destination.FieldURL},
		{Name: "No° Fongarium", Type: destination.FieldRichText},
		{Name: "Description rapide", Type: destination.FieldRichText},
		{Name: "Repère", Type: destination.FieldRichText},
		{Name: "latitude (sexadécimal)", Type: destination.FieldNumber},
		{Name: "longitude (sexadécimal)", Type: destination.FieldNumber},
		{Name: "QR Code", Type: destination.FieldURL},
	}
	m := make(map[string]destination.Field, len(fields))
	for _, f := range fields {
		m[f.Name] = f
	}
	return destination.Schema{Title: "Fongarium (local)", Fields: m}
}

func (d *DB) ResolveSchema(ctx context.Context) (destination.Schema, error) {
	return d.schema, nil
}

func (d *DB) CreateRecord(ctx context.Context, rec destination.Record) (destination.Created, error) {
	pageID := uuid.NewString()

	title := ""
	for _, p := range rec.Properties {
		if p.Type == destination.FieldTitle {
			title = p.Text
			break
		}
	}

	tx, err := d.sql.BeginTx(ctx, nil)
	if err != nil {
		return destination.Created{}, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx,
		`INSERT INTO records(page_id, title, cover_url) VALUES(?,?,?)`,
		pageID, title, nullIfEmpty(rec.CoverURL)); err != nil {
		return destination.Created{}, err
	}

	for field, p := range rec.Properties {
		if err = insertProp(ctx, tx, pageID, field, p); err != nil {
			return destination.Created{}, err
		}
	}

	for i, url := range rec.GalleryURLs {
		if _, err = tx.ExecContext(ctx,
			`INSERT INTO record_gallery(page_id, position, url) VALUES(?,?,?)`,
			pageID, i, url); err != nil {
			return destination.Created{}, err
		}
	}

	if err = tx.Commit(); err != nil {
		return destination.Created{}, err
	}
	// Local records have no public URL, so link-derived secondary writes
	// are naturally skipped.
	return destination.Created{PageID: pageID}, nil
}

func (d *DB) UpdateRecord(ctx context.Context, pageID string, props destination.Properties) error {
	tx, err := d.sql.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	for field, p := range props {
		if _, err = tx.ExecContext(ctx, `DELETE FROM record_props WHERE page_id = ? AND field = ?`, pageID, field); err != nil {
			return err
		}
		if err = insertProp(ctx, tx, pageID, field, p); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// QueryRecords returns the records matching any condition of the filter,
// with their text-bearing properties flattened.
func (d *DB) QueryRecords(ctx context.Context, filter destination.Filter) ([]destination.Stored, error) {
	if len(filter.Any) == 0 {
		return nil, nil
	}

	var clauses []string
	var args []interface{}
	for _, c := range filter.Any {
		switch c.Op {
		case destination.OpContains:
			clauses = append(clauses, "(field = ? AND value_text IS NOT NULL AND instr(value_text, ?) > 0)")
		default:
			clauses = append(clauses, "(field = ? AND value_text = ?)")
		}
		args = append(args, c.Field, c.Value)
	}

	q := "SELECT DISTINCT page_id FROM record_props WHERE " + strings.Join(clauses, " OR ")
	rows, err := d.sql.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}

	out := make([]destination.Stored, 0, len(ids))
	for _, id := range ids {
		stored, err := d.loadRecord(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, stored)
	}
	return out, nil
}

func (d *DB) loadRecord(ctx context.Context, pageID string) (destination.Stored, error) {
	rows, err := d.sql.QueryContext(ctx,
		`SELECT field, value_text FROM record_props WHERE page_id = ? AND value_text IS NOT NULL`, pageID)
	if err != nil {
		return destination.Stored{}, err
	}
	defer rows.Close()

	stored := destination.Stored{PageID: pageID, Properties: map[string]string{}}
	for rows.Next() {
		var field, value string
		if err := rows.Scan(&field, &value); err != nil {
			return destination.Stored{}, err
		}
		stored.Properties[field] = value
	}
	return stored, rows.Err()
}

// Stats summarizes the local fungarium for the CLI.
type Stats struct {
	Records   int
	Observers []ObserverStats
}

type ObserverStats struct {
	Observer string
	Records  int
}

func (d *DB) GetStats(ctx context.Context) (Stats, error) {
	var stats Stats
	if err := d.sql.QueryRowContext(ctx, `SELECT COUNT(*) FROM records`).Scan(&stats.Records); err != nil {
		return Stats{}, err
	}

	rows, err := d.sql.QueryContext(ctx, `
		SELECT COALESCE(value_text, ''), COUNT(*)
		FROM record_props
		WHERE field = 'Mycologue'
		GROUP BY value_text
		ORDER BY COUNT(*) DESC, value_text
	`)
	if err != nil {
		return Stats{}, err
	}
	defer rows.Close()

	for rows.Next() {
		var o ObserverStats
		if err := rows.Scan(&o.Observer, &o.Records); err != nil {
			return Stats{}, err
		}
		stats.Observers = append(stats.Observers, o)
	}
	return stats, rows.Err()
}

func insertProp(ctx context.Context, tx *sql.Tx, pageID, field string, p destination.Property) error {
	var text interface{}
	var num interface{}
	if p.Type == destination.FieldNumber {
		num = p.Number
	} else {
		text = nullIfEmpty(p.Text)
	}
	_, err := tx.ExecContext(ctx,
		`INSERT INTO record_props(page_id, field, type, value_text, value_num) VALUES(?,?,?,?,?)`,
		pageID, field, string(p.Type), text, num)
	return err
}

func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
