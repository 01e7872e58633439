package storage

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// SQLiteBackend is a durable StorageBackend for a standalone Library
// process: a single file holding one row per record. It is used when the
// configured backend is "sqlite"; the default backend is memory.
type SQLiteBackend struct {
	db *sql.DB
}

func NewSQLiteBackend(path string) (*SQLiteBackend, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite backend: %w", err)
	}
	db.SetMaxOpenConns(1) // single-writer per the core's concurrency model
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS records (
		id   TEXT PRIMARY KEY,
		data BLOB NOT NULL
	)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create records table: %w", err)
	}
	return &SQLiteBackend{db: db}, nil
}

func (s *SQLiteBackend) Load(ctx context.Context) (map[string][]byte, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, data FROM records`)
	if err != nil {
		return nil, fmt.Errorf("load records: %w", err)
	}
	defer rows.Close()
	out := make(map[string][]byte)
	for rows.Next() {
		var id string
		var data []byte
		if err := rows.Scan(&id, &data); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		out[id] = data
	}
	return out, rows.Err()
}

// Save replaces the entire table atomically within a transaction.
func (s *SQLiteBackend) Save(ctx context.Context, records map[string][]byte) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin save tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM records`); err != nil {
		return fmt.Errorf("clear records: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO records(id, data) VALUES (?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()
	for id, data := range records {
		if _, err := stmt.ExecContext(ctx, id, data); err != nil {
			return fmt.Errorf("insert record %s: %w", id, err)
		}
	}
	return tx.Commit()
}

func (s *SQLiteBackend) Close() error { return s.db.Close() }
