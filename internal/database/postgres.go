package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/hostreel/viewlens/internal/config"
)

// PostgresDB wraps a pgx connection pool with convenience methods.
type PostgresDB struct {
	Pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewPostgresDB creates a new PostgreSQL connection pool.
func NewPostgresDB(ctx context.Context, cfg config.DatabaseConfig, logger *zap.Logger) (*PostgresDB, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}

	poolConfig.MaxConns = int32(cfg.MaxConns)
	poolConfig.MinConns = int32(cfg.MinConns)
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute
	poolConfig.HealthCheckPeriod = time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Info("connected to PostgreSQL",
		zap.String("host", cfg.Host),
		zap.Int("port", cfg.Port),
		zap.String("database", cfg.DBName),
		zap.Int("max_conns", cfg.MaxConns),
	)

	return &PostgresDB{
		Pool:   pool,
		logger: logger,
	}, nil
}

// EnsureSchema creates the analytics tables and indexes if they do not
// exist. Statements are idempotent, so running at every startup is safe.
func (db *PostgresDB) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS playback_events (
			id              TEXT PRIMARY KEY,
			video_id        TEXT NOT NULL,
			organization_id TEXT,
			user_id         TEXT,
			session_id      TEXT,
			client_id       TEXT,
			event_type      TEXT NOT NULL,
			current_time_s  INTEGER NOT NULL DEFAULT 0,
			duration_s      INTEGER NOT NULL DEFAULT 0,
			ip              TEXT,
			user_agent      TEXT,
			timestamp       TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_playback_events_video_time
			ON playback_events (video_id, timestamp)`,
		`CREATE TABLE IF NOT EXISTS device_contexts (
			hash                 TEXT PRIMARY KEY,
			screen_width         INTEGER NOT NULL DEFAULT 0,
			screen_height        INTEGER NOT NULL DEFAULT 0,
			viewport_width       INTEGER NOT NULL DEFAULT 0,
			viewport_height      INTEGER NOT NULL DEFAULT 0,
			device_pixel_ratio   DOUBLE PRECISION NOT NULL DEFAULT 0,
			orientation          TEXT,
			language             TEXT,
			timezone             TEXT,
			hardware_concurrency INTEGER NOT NULL DEFAULT 0,
			device_memory        DOUBLE PRECISION NOT NULL DEFAULT 0,
			created_at           TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at           TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS viewer_sessions (
			video_id            TEXT NOT NULL,
			session_id          TEXT NOT NULL,
			device_context_hash TEXT,
			organization_id     TEXT,
			user_id             TEXT,
			client_id           TEXT,
			ip                  TEXT,
			user_agent          TEXT,
			created_at          TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at          TIMESTAMPTZ NOT NULL DEFAULT now(),
			PRIMARY KEY (video_id, session_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_viewer_sessions_updated
			ON viewer_sessions (video_id, updated_at)`,
		`CREATE TABLE IF NOT EXISTS videos (
			id              TEXT PRIMARY KEY,
			organization_id TEXT NOT NULL DEFAULT '',
			title           TEXT NOT NULL DEFAULT '',
			duration_s      INTEGER NOT NULL DEFAULT 0,
			created_at      TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_videos_organization
			ON videos (organization_id)`,
	}

	for _, stmt := range stmts {
		if _, err := db.Pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to ensure schema: %w", err)
		}
	}

	db.logger.Info("database schema ensured")
	return nil
}

// Close closes the database connection pool.
func (db *PostgresDB) Close() {
	if db.Pool != nil {
		db.Pool.Close()
		db.logger.Info("PostgreSQL connection pool closed")
	}
}

// Health checks if the database is reachable.
func (db *PostgresDB) Health(ctx context.Context) error {
	return db.Pool.Ping(ctx)
}
