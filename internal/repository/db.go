package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/nexusduel/duel-server-go/internal/config"
)

// DB wraps the pgx connection pool.
type DB struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewDB connects to PostgreSQL and verifies the connection.
func NewDB(ctx context.Context, cfg config.DatabaseConfig, logger *zap.Logger) (*DB, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	if cfg.ConnectTimeout > 0 {
		poolCfg.ConnConfig.ConnectTimeout = cfg.ConnectTimeout
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &DB{pool: pool, logger: logger}, nil
}

// Close shuts down the connection pool.
func (db *DB) Close() {
	db.pool.Close()
}

// Stats returns pool statistics for startup logging.
func (db *DB) Stats() *pgxpool.Stat {
	return db.pool.Stat()
}

// Migrate creates the schema if it does not exist.
func (db *DB) Migrate(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS matches (
			id         TEXT PRIMARY KEY,
			lobby_id   TEXT NOT NULL,
			status     TEXT NOT NULL,
			wagered    BOOLEAN NOT NULL DEFAULT FALSE,
			version    BIGINT NOT NULL DEFAULT 1,
			doc        JSONB NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_matches_lobby ON matches (lobby_id)`,
		`CREATE INDEX IF NOT EXISTS idx_matches_active_wagered ON matches (status, wagered)`,
		`CREATE TABLE IF NOT EXISTS match_events (
			id          TEXT PRIMARY KEY,
			match_id    TEXT NOT NULL,
			turn_number INT NOT NULL,
			event_type  TEXT NOT NULL,
			player_id   TEXT,
			description TEXT NOT NULL,
			metadata    JSONB,
			created_at  TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_match_events_match ON match_events (match_id, created_at)`,
		`CREATE TABLE IF NOT EXISTS outbox (
			id         TEXT PRIMARY KEY,
			kind       TEXT NOT NULL,
			match_id   TEXT NOT NULL,
			lobby_id   TEXT NOT NULL,
			player_id  TEXT NOT NULL,
			attempts   INT NOT NULL DEFAULT 0,
			done       BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMPTZ NOT NULL,
			done_at    TIMESTAMPTZ
		)`,
		`CREATE INDEX IF NOT EXISTS idx_outbox_pending ON outbox (done, created_at)`,
	}

	for _, stmt := range statements {
		if _, err := db.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	db.logger.Info("database schema ready")
	return nil
}
