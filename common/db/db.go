package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/junobuild/satellite/common/config"
	"github.com/junobuild/satellite/common/logger"
)

const (
	connectTimeout = 5 * time.Second
	healthTimeout  = 3 * time.Second
)

// DB is the pooled Postgres handle behind the stable stores: certified
// assets, staged proposal content and proposal records all persist
// through it
type DB struct {
	*pgxpool.Pool
	log *logger.Logger
}

// New connects the stable store pool and verifies the database answers
// before anything depends on it
func New(ctx context.Context, cfg *config.Config, log *logger.Logger) (*DB, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL())
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}

	poolConfig.MaxConns = int32(cfg.Database.MaxConns)
	poolConfig.MinConns = int32(cfg.Database.MinConns)
	poolConfig.MaxConnLifetime = cfg.Database.MaxLifetime
	poolConfig.MaxConnIdleTime = cfg.Database.MaxIdleTime

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	log.Info("stable store connected",
		"host", cfg.Database.Host,
		"db", cfg.Database.Database,
		"max_conns", cfg.Database.MaxConns)

	return &DB{
		Pool: pool,
		log:  log,
	}, nil
}

// Close drains and closes the stable store pool
func (db *DB) Close() {
	stat := db.Pool.Stat()
	db.log.Info("closing stable store pool",
		"total_conns", stat.TotalConns(),
		"acquired_conns", stat.AcquiredConns())
	db.Pool.Close()
}

// Health pings the stable store with a short deadline
func (db *DB) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, healthTimeout)
	defer cancel()

	return db.Pool.Ping(ctx)
}
