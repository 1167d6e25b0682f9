package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS documents (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL,
	created_at TEXT NOT NULL,
	versions   TEXT NOT NULL
);
`

// SQLiteDocs persists the document catalog in a SQLite database.
type SQLiteDocs struct {
	db *sql.DB
}

// OpenSQLite opens (and if needed initializes) the catalog database at
// path. Use ":memory:" for an ephemeral catalog.
func OpenSQLite(path string) (*SQLiteDocs, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: opening sqlite: %w", err)
	}
	// modernc.org/sqlite serializes writes; one connection avoids
	// SQLITE_BUSY under concurrent handlers.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: creating schema: %w", err)
	}
	return &SQLiteDocs{db: db}, nil
}

func (s *SQLiteDocs) Put(ctx context.Context, rec Record) error {
	versions, err := json.Marshal(rec.Versions)
	if err != nil {
		return fmt.Errorf("store: encoding versions: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO documents (id, name, created_at, versions)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET name = excluded.name, versions = excluded.versions`,
		rec.ID, rec.Name, rec.CreatedAt.UTC().Format(time.RFC3339Nano), string(versions))
	if err != nil {
		return fmt.Errorf("store: saving document %s: %w", rec.ID, err)
	}
	return nil
}

func (s *SQLiteDocs) Get(ctx context.Context, id string) (Record, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, created_at, versions FROM documents WHERE id = ?`, id)
	rec, err := scanRecord(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, fmt.Errorf("store: loading document %s: %w", id, err)
	}
	return rec, nil
}

func (s *SQLiteDocs) List(ctx context.Context) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, created_at, versions FROM documents ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("store: listing documents: %w", err)
	}
	defer rows.Close()
	var out []Record
	for rows.Next() {
		rec, err := scanRecord(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("store: listing documents: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *SQLiteDocs) Delete(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, id)
	return err
}

func (s *SQLiteDocs) Close() error { return s.db.Close() }

func scanRecord(scan func(...any) error) (Record, error) {
	var rec Record
	var created, versions string
	if err := scan(&rec.ID, &rec.Name, &created, &versions); err != nil {
		return Record{}, err
	}
	t, err := time.Parse(time.RFC3339Nano, created)
	if err != nil {
		return Record{}, fmt.Errorf("bad created_at %q: %w", created, err)
	}
	rec.CreatedAt = t
	if err := json.Unmarshal([]byte(versions), &rec.Versions); err != nil {
		return Record{}, fmt.Errorf("bad versions column: %w", err)
	}
	return rec, nil
}
