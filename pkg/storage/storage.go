package storage

import (
	"context"
	"database/sql"
	"errors"
	"time"

	_ "modernc.org/sqlite"
)

// DB is the sqlite backend. Each key is one row holding the envelope text.
type DB struct {
	sql *sql.DB
}

func Open(path string) (*DB, error) {
	dsn := "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		return nil, err
	}
	// Ensure schema exists for convenience.
	if _, err := db.Exec(`
CREATE TABLE IF NOT EXISTS quote_blobs (
  key        TEXT PRIMARY KEY,
  value      TEXT NOT NULL,
  created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
  updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_quote_blobs_updated ON quote_blobs(updated_at);
    `); err != nil {
		return nil, err
	}
	return &DB{sql: db}, nil
}

func (d *DB) Close() error {
	if d == nil || d.sql == nil {
		return nil
	}
	return d.sql.Close()
}

func (d *DB) Get(ctx context.Context, key string) ([]byte, error) {
	var value string
	err := d.sql.QueryRowContext(ctx, "SELECT value FROM quote_blobs WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return []byte(value), nil
}

func (d *DB) Put(ctx context.Context, key string, blob []byte) error {
	_, err := d.sql.ExecContext(ctx, `INSERT INTO quote_blobs(key, value) VALUES(?, ?)
ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP`, key, string(blob))
	return err
}

func (d *DB) Delete(ctx context.Context, key string) error {
	_, err := d.sql.ExecContext(ctx, "DELETE FROM quote_blobs WHERE key = ?", key)
	return err
}

func (d *DB) Keys(ctx context.Context) ([]string, error) {
	rows, err := d.sql.QueryContext(ctx, "SELECT key FROM quote_blobs ORDER BY key")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// BlobStats summarizes the blob table.
type BlobStats struct {
	Count       int
	TotalBytes  int64
	LastUpdated time.Time
}

func (d *DB) Stats(ctx context.Context) (BlobStats, error) {
	var (
		st   BlobStats
		last sql.NullString
	)
	err := d.sql.QueryRowContext(ctx, "SELECT COUNT(*), COALESCE(SUM(LENGTH(value)), 0), MAX(updated_at) FROM quote_blobs").
		Scan(&st.Count, &st.TotalBytes, &last)
	if err != nil {
		return BlobStats{}, err
	}
	if last.Valid {
		for _, layout := range []string{"2006-01-02 15:04:05", time.RFC3339Nano} {
			if t, perr := time.Parse(layout, last.String); perr == nil {
				st.LastUpdated = t
				break
			}
		}
	}
	return st, nil
}
