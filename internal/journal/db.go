package journal

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mohsale1/dino-sync/internal/config"
)

// Schema creates the journal table. It is idempotent.
const Schema = `
CREATE TABLE IF NOT EXISTS realtime_envelopes (
	id           UUID PRIMARY KEY,
	client_id    TEXT        NOT NULL,
	session_id   TEXT        NOT NULL,
	type         TEXT        NOT NULL,
	payload      JSONB,
	sent_at      TIMESTAMPTZ NOT NULL,
	received_at  TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS realtime_envelopes_type_sent_at
	ON realtime_envelopes (type, sent_at);
`

// Connect creates a connection pool for the journal database.
func Connect(ctx context.Context, cfg config.DBConfig) (*pgxpool.Pool, error) {
	connStr := BuildConnString(cfg)

	poolCfg, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, fmt.Errorf("parse connection string: %w", err)
	}

	poolCfg.MinConns = int32(cfg.MinConns)
	poolCfg.MaxConns = int32(cfg.MaxConns)

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return pool, nil
}

// EnsureSchema creates the journal table if it does not exist.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("create journal schema: %w", err)
	}
	return nil
}
