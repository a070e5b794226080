package store

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"sjsage522/stockwatcher/internal/crawler"
	"sjsage522/stockwatcher/logger"
	"sjsage522/stockwatcher/pkg/errors"
)

var sqliteSchema = []string{`
CREATE TABLE IF NOT EXISTS ` + TableName + ` (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	collected_at DATETIME,
	product_name TEXT,
	sku TEXT,
	category TEXT,
	url TEXT,
	image_url TEXT,
	tags TEXT,
	original_price REAL,
	current_price REAL,
	is_promotion BOOLEAN,
	available BOOLEAN,
	variant_id TEXT,
	verification_method TEXT
)`,
	`CREATE INDEX IF NOT EXISTS idx_` + TableName + `_sku_collected_at ON ` + TableName + ` (sku, collected_at)`,
}

// SQLiteStore writes snapshots to a local SQLite file.
// Appends run inside an open transaction that Flush commits.
type SQLiteStore struct {
	db  *sql.DB
	log *logger.Logger

	mu sync.Mutex
	tx *sql.Tx
}

// OpenSQLite opens (creating if needed) the database file at path
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.NewStorage("failed to open sqlite database", err)
	}
	// A single writer connection keeps the pending transaction and reads consistent
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, errors.NewStorage(fmt.Sprintf("failed to open sqlite database %s", path), err)
	}

	return &SQLiteStore{db: db, log: logger.ForStore().WithField("driver", DriverSQLite)}, nil
}

// EnsureSchema implements SnapshotStore
func (s *SQLiteStore) EnsureSchema(ctx context.Context) error {
	for _, stmt := range sqliteSchema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return errors.NewStorage("failed to create schema", err)
		}
	}
	return nil
}

// Append implements SnapshotStore
func (s *SQLiteStore) Append(ctx context.Context, snapshot crawler.ProductSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.tx == nil {
		// database/sql rolls a tx back when its begin context ends; the batch outlives this call
		tx, err := s.db.BeginTx(context.WithoutCancel(ctx), nil)
		if err != nil {
			return errors.NewStorage("failed to begin transaction", err)
		}
		s.tx = tx
	}

	collectedAt := snapshot.CollectedAt.In(time.Local).Format(sqliteTimeLayout)
	_, err := s.tx.ExecContext(ctx,
		`INSERT INTO `+TableName+` (`+insertColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rowArgs(collectedAt, snapshot)...,
	)
	if err != nil {
		return errors.NewStorage("failed to insert snapshot", err)
	}
	return nil
}

// Flush implements SnapshotStore
func (s *SQLiteStore) Flush(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.tx == nil {
		return nil
	}
	tx := s.tx
	s.tx = nil
	if err := tx.Commit(); err != nil {
		return errors.NewStorage("commit failed", err)
	}
	return nil
}

// Close implements SnapshotStore. Rows appended since the last Flush are rolled back.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.tx != nil {
		if err := s.tx.Rollback(); err != nil {
			s.log.Warn().Err(err).Msg("Rollback of unflushed rows failed")
		} else {
			s.log.Warn().Msg("Discarded unflushed rows on close")
		}
		s.tx = nil
	}
	return s.db.Close()
}

// Count returns the number of committed rows
func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.tx != nil {
		return 0, errors.NewStorage("count during an unflushed batch", nil)
	}

	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM `+TableName).Scan(&n); err != nil {
		return 0, errors.NewStorage("failed to count rows", err)
	}
	return n, nil
}

// ReadAll returns every committed row in insertion order
func (s *SQLiteStore) ReadAll(ctx context.Context) ([]crawler.ProductSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.tx != nil {
		return nil, errors.NewStorage("read during an unflushed batch", nil)
	}

	rows, err := s.db.QueryContext(ctx, `SELECT `+insertColumns+` FROM `+TableName+` ORDER BY id`)
	if err != nil {
		return nil, errors.NewStorage("failed to read rows", err)
	}
	defer rows.Close()

	var snapshots []crawler.ProductSnapshot
	for rows.Next() {
		var (
			snapshot    crawler.ProductSnapshot
			collectedAt any
			method      string
		)
		err := rows.Scan(
			&collectedAt,
			&snapshot.ProductName,
			&snapshot.SKU,
			&snapshot.Category,
			&snapshot.URL,
			&snapshot.ImageURL,
			&snapshot.Tags,
			&snapshot.OriginalPrice,
			&snapshot.CurrentPrice,
			&snapshot.IsPromotion,
			&snapshot.Available,
			&snapshot.VariantID,
			&method,
		)
		if err != nil {
			return nil, errors.NewStorage("failed to scan row", err)
		}
		snapshot.CollectedAt, err = parseCollectedAt(collectedAt)
		if err != nil {
			return nil, errors.NewStorage("invalid collected_at", err)
		}
		snapshot.VerificationMethod = crawler.VerificationMethod(method)
		snapshots = append(snapshots, snapshot)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewStorage("failed to read rows", err)
	}
	return snapshots, nil
}

// parseCollectedAt accepts the driver's native time for DATETIME columns or the stored text
func parseCollectedAt(v any) (time.Time, error) {
	switch t := v.(type) {
	case time.Time:
		// the text carries no zone; re-read the wall clock as local time
		return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), 0, time.Local), nil
	case string:
		return time.ParseInLocation(sqliteTimeLayout, t, time.Local)
	case []byte:
		return time.ParseInLocation(sqliteTimeLayout, string(t), time.Local)
	default:
		return time.Time{}, fmt.Errorf("unexpected collected_at type %T", v)
	}
}
