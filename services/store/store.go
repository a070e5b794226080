package store

import (
	"context"
	"fmt"

	"sjsage522/stockwatcher/internal/crawler"
	"sjsage522/stockwatcher/pkg/errors"
)

// Drivers accepted by Open
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// TableName is read by the reporting dashboard; do not rename
const TableName = "price_history"

// sqliteTimeLayout is the text form of collected_at in SQLite, local wall clock
const sqliteTimeLayout = "2006-01-02 15:04:05"

// SnapshotStore is an append-only sink for product snapshots.
// Rows become durable only at Flush; Close discards anything not yet flushed.
type SnapshotStore interface {
	// EnsureSchema creates the history table if it does not exist
	EnsureSchema(ctx context.Context) error

	// Append queues one row
	Append(ctx context.Context, snapshot crawler.ProductSnapshot) error

	// Flush makes every queued row durable
	Flush(ctx context.Context) error

	// Close releases the connection
	Close() error
}

// Open connects to the store selected by driver
func Open(ctx context.Context, driver, dsn string) (SnapshotStore, error) {
	switch driver {
	case DriverSQLite:
		return OpenSQLite(ctx, dsn)
	case DriverPostgres:
		return OpenPostgres(ctx, dsn)
	default:
		return nil, errors.NewConfiguration(fmt.Sprintf("unknown store driver %q", driver), nil)
	}
}

const insertColumns = `collected_at, product_name, sku, category, url, image_url, tags,
	original_price, current_price, is_promotion, available, variant_id, verification_method`

func rowArgs(collectedAt any, s crawler.ProductSnapshot) []any {
	return []any{
		collectedAt,
		s.ProductName,
		s.SKU,
		s.Category,
		s.URL,
		s.ImageURL,
		s.Tags,
		s.OriginalPrice,
		s.CurrentPrice,
		s.IsPromotion,
		s.Available,
		s.VariantID,
		string(s.VerificationMethod),
	}
}
