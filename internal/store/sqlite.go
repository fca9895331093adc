package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteStore is a Store backed by a single SQLite database. Documents live
// in one table keyed by (collection, id) with a monotonically increasing
// rev column; conditional writes compare the rev in the WHERE clause, so
// the database enforces the compare-and-swap.
type SQLiteStore struct {
	db *sql.DB
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS documents (
	collection TEXT NOT NULL,
	id         TEXT NOT NULL,
	rev        INTEGER NOT NULL,
	data       BLOB NOT NULL,
	updated_at TIMESTAMP NOT NULL,
	PRIMARY KEY (collection, id)
);
`

// OpenSQLite opens (creating if necessary) a SQLite-backed store at path.
// Use ":memory:" for an ephemeral database.
func OpenSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("open sqlite store: %w", err)
	}
	// SQLite handles one writer at a time; a larger pool just produces
	// SQLITE_BUSY churn.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply sqlite schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Get unmarshals the document into out and returns its revision.
func (s *SQLiteStore) Get(ctx context.Context, collection, id string, out any) (int64, error) {
	var rev int64
	var data []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT rev, data FROM documents WHERE collection = ? AND id = ?`,
		collection, id,
	).Scan(&rev, &data)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("%s/%s: %w", collection, id, ErrNotFound)
	}
	if err != nil {
		return 0, fmt.Errorf("get %s/%s: %w", collection, id, err)
	}
	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return 0, fmt.Errorf("unmarshal %s/%s: %w", collection, id, err)
		}
	}
	return rev, nil
}

// Put unconditionally creates or replaces a document.
func (s *SQLiteStore) Put(ctx context.Context, collection, id string, v any) (int64, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return 0, fmt.Errorf("marshal %s/%s: %w", collection, id, err)
	}

	var rev int64
	err = s.db.QueryRowContext(ctx, `
		INSERT INTO documents (collection, id, rev, data, updated_at)
		VALUES (?, ?, 1, ?, ?)
		ON CONFLICT (collection, id)
		DO UPDATE SET rev = rev + 1, data = excluded.data, updated_at = excluded.updated_at
		RETURNING rev`,
		collection, id, data, time.Now().UTC(),
	).Scan(&rev)
	if err != nil {
		return 0, fmt.Errorf("put %s/%s: %w", collection, id, err)
	}
	return rev, nil
}

// Replace writes the document only if the stored revision still equals rev.
func (s *SQLiteStore) Replace(ctx context.Context, collection, id string, rev int64, v any) (int64, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return 0, fmt.Errorf("marshal %s/%s: %w", collection, id, err)
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE documents SET rev = rev + 1, data = ?, updated_at = ?
		WHERE collection = ? AND id = ? AND rev = ?`,
		data, time.Now().UTC(), collection, id, rev,
	)
	if err != nil {
		return 0, fmt.Errorf("replace %s/%s: %w", collection, id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("replace %s/%s: %w", collection, id, err)
	}
	if n == 1 {
		return rev + 1, nil
	}

	// Zero rows: either the document is gone or someone else bumped the rev.
	var exists int
	if err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM documents WHERE collection = ? AND id = ?`,
		collection, id,
	).Scan(&exists); errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("%s/%s: %w", collection, id, ErrNotFound)
	} else if err != nil {
		return 0, fmt.Errorf("replace %s/%s: %w", collection, id, err)
	}
	return 0, fmt.Errorf("%s/%s stale rev %d: %w", collection, id, rev, ErrConflict)
}

// Delete removes a document.
func (s *SQLiteStore) Delete(ctx context.Context, collection, id string) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM documents WHERE collection = ? AND id = ?`, collection, id)
	if err != nil {
		return fmt.Errorf("delete %s/%s: %w", collection, id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete %s/%s: %w", collection, id, err)
	}
	if n == 0 {
		return fmt.Errorf("%s/%s: %w", collection, id, ErrNotFound)
	}
	return nil
}

// List returns the ids of every document in a collection.
func (s *SQLiteStore) List(ctx context.Context, collection string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id FROM documents WHERE collection = ? ORDER BY id`, collection)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", collection, err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("list %s: %w", collection, err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list %s: %w", collection, err)
	}
	return ids, nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error { return s.db.Close() }

// Ensure SQLiteStore implements Store.
var _ Store = (*SQLiteStore)(nil)
