package storage

import (
	"context"
	"strings"

	"omnistock/internal"
)

// IngestWriter persists one ingestion's upload, orders, and line items.
type IngestWriter interface {
	InsertUploadBatch(ctx context.Context, batch internal.UploadBatch) (string, error)
	// InsertOrders returns generated ids in input order.
	InsertOrders(ctx context.Context, orders []internal.OrderRecord) ([]string, error)
	InsertLineItems(ctx context.Context, items []internal.LineItemRecord) error
}

// StockMutator is handed to AdjustStock callbacks; it decides the movement for the locked variant.
type StockMutator func(current internal.CatalogVariant) (internal.StockMovement, error)

type Store interface {
	FetchCatalog(ctx context.Context, userID string) ([]internal.CatalogVariant, error)
	FetchExistingOrderIDs(ctx context.Context, userID string) (map[string]struct{}, error)
	InTx(ctx context.Context, fn func(w IngestWriter) error) error

	FetchStock(ctx context.Context, userID string, skus []string) (map[string]int, error)
	UpdateVariantStock(ctx context.Context, userID, sku string, newStock int) error
	InsertStockMovement(ctx context.Context, m internal.StockMovement) error
	ListStockMovements(ctx context.Context, userID string, limit int) ([]internal.StockMovement, error)
	AdjustStock(ctx context.Context, userID, sku string, mutate StockMutator) (internal.StockMovement, error)

	UpsertVariants(ctx context.Context, userID string, variants []internal.CatalogVariant) (created, updated int, err error)
	InsertRun(ctx context.Context, run internal.IngestionRun) error
	GetMetadata(ctx context.Context, key string) (*string, error)
	SetMetadata(ctx context.Context, key, value string) error

	Close() error
}

// Mailbox tracks fetched raw messages for the mail listener.
type Mailbox interface {
	UpsertEmail(ctx context.Context, msg internal.FetchedMailMessage, hash, rawRef, status string) (internal.EmailRow, error)
	ListEmailsByStatus(ctx context.Context, status string, limit int) ([]internal.EmailRow, error)
	UpdateEmailStatus(ctx context.Context, emailID int, status string) error
}

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

type Backend interface {
	Store
	Mailbox
	Ping(ctx context.Context) error
}

// Open returns the backend named by driver.
func Open(ctx context.Context, driver, sqlitePath, postgresURL string) (Backend, error) {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "", DriverSQLite:
		db, err := OpenSQLite(sqlitePath)
		if err != nil {
			return nil, err
		}
		return db, nil
	case DriverPostgres, "pgx":
		db, err := OpenPostgres(ctx, postgresURL)
		if err != nil {
			return nil, err
		}
		return db, nil
	default:
		return nil, &UnknownDriverError{Driver: driver}
	}
}

type UnknownDriverError struct {
	Driver string
}

func (e *UnknownDriverError) Error() string {
	return "unknown storage driver: " + e.Driver
}
