package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresBackend stores records in a single table for shared/server
// deployments of the Library:
//
//	records(id TEXT PRIMARY KEY, data BYTEA)
type PostgresBackend struct {
	pool *pgxpool.Pool
}

func NewPostgresBackend(ctx context.Context, dsn string) (*PostgresBackend, error) {
	pool, err := openPool(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres backend: %w", err)
	}
	if _, err := pool.Exec(ctx, `CREATE TABLE IF NOT EXISTS records (
		id   TEXT PRIMARY KEY,
		data BYTEA NOT NULL
	)`); err != nil {
		pool.Close()
		return nil, fmt.Errorf("create records table: %w", err)
	}
	return &PostgresBackend{pool: pool}, nil
}

func openPool(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	cfg.MaxConns = 8
	cfg.MinConns = 0
	cfg.MaxConnLifetime = time.Hour
	cfg.MaxConnIdleTime = 5 * time.Minute
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	pctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := pool.Ping(pctx); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

func (p *PostgresBackend) Load(ctx context.Context) (map[string][]byte, error) {
	rows, err := p.pool.Query(ctx, `SELECT id, data FROM records`)
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

func (p *PostgresBackend) Save(ctx context.Context, records map[string][]byte) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin save tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM records`); err != nil {
		return fmt.Errorf("clear records: %w", err)
	}
	for id, data := range records {
		if _, err := tx.Exec(ctx, `INSERT INTO records(id, data) VALUES ($1, $2)`, id, data); err != nil {
			return fmt.Errorf("insert record %s: %w", id, err)
		}
	}
	return tx.Commit(ctx)
}

func (p *PostgresBackend) Close() error {
	p.pool.Close()
	return nil
}
