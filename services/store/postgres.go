package store

import (
	"context"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"sjsage522/stockwatcher/internal/crawler"
	"sjsage522/stockwatcher/logger"
	"sjsage522/stockwatcher/pkg/errors"
)

var postgresSchema = []string{`
CREATE TABLE IF NOT EXISTS ` + TableName + ` (
	id BIGSERIAL PRIMARY KEY,
	collected_at TIMESTAMPTZ NOT NULL,
	product_name TEXT,
	sku TEXT,
	category TEXT,
	url TEXT,
	image_url TEXT,
	tags TEXT,
	original_price DOUBLE PRECISION,
	current_price DOUBLE PRECISION,
	is_promotion BOOLEAN,
	available BOOLEAN,
	variant_id TEXT,
	verification_method TEXT
)`,
	`CREATE INDEX IF NOT EXISTS idx_` + TableName + `_sku_collected_at ON ` + TableName + ` (sku, collected_at)`,
}

const postgresInsert = `INSERT INTO ` + TableName + ` (` + insertColumns + `)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`

// PostgresStore queues appends in a pgx.Batch and sends it in one transaction on Flush
type PostgresStore struct {
	pool *pgxpool.Pool
	log  *logger.Logger

	mu      sync.Mutex
	batch   *pgx.Batch
	pending int
}

// OpenPostgres connects a small pool to dsn
func OpenPostgres(ctx context.Context, dsn string) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, errors.NewConfiguration("invalid PG_DSN", err)
	}
	cfg.MaxConns = 2

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, errors.NewStorage("failed to connect to postgres", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, errors.NewStorage("failed to connect to postgres", err)
	}

	return &PostgresStore{
		pool:  pool,
		log:   logger.ForStore().WithField("driver", DriverPostgres),
		batch: &pgx.Batch{},
	}, nil
}

// EnsureSchema implements SnapshotStore
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	for _, stmt := range postgresSchema {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return errors.NewStorage("failed to create schema", err)
		}
	}
	return nil
}

// Append implements SnapshotStore
func (s *PostgresStore) Append(ctx context.Context, snapshot crawler.ProductSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.batch.Queue(postgresInsert, rowArgs(snapshot.CollectedAt, snapshot)...)
	s.pending++
	return nil
}

// Flush implements SnapshotStore. On failure the queued rows are dropped.
func (s *PostgresStore) Flush(ctx context.Context) error {
	s.mu.Lock()
	batch, pending := s.batch, s.pending
	s.batch, s.pending = &pgx.Batch{}, 0
	s.mu.Unlock()

	if pending == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return errors.NewStorage("failed to begin transaction", err)
	}
	defer tx.Rollback(ctx)

	br := tx.SendBatch(ctx, batch)
	for i := 0; i < pending; i++ {
		if _, err := br.Exec(); err != nil {
			_ = br.Close()
			return errors.NewStorage("failed to insert snapshot", err)
		}
	}
	if err := br.Close(); err != nil {
		return errors.NewStorage("failed to insert snapshot", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return errors.NewStorage("commit failed", err)
	}
	return nil
}

// Close implements SnapshotStore
func (s *PostgresStore) Close() error {
	s.mu.Lock()
	if s.pending > 0 {
		s.log.Warn().Int("rows", s.pending).Msg("Discarded unflushed rows on close")
	}
	s.batch, s.pending = &pgx.Batch{}, 0
	s.mu.Unlock()

	s.pool.Close()
	return nil
}

// Count returns the number of committed rows
func (s *PostgresStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM `+TableName).Scan(&n); err != nil {
		return 0, errors.NewStorage("failed to count rows", err)
	}
	return n, nil
}
