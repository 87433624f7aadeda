package storage

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"omnistock/internal"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Postgres is the shared-server backend. Schema changes live in migrations/.
type Postgres struct {
	pool       *pgxpool.Pool
	connString string
}

// OpenPostgres connects, pings and migrates. connString must use the postgres:// scheme.
func OpenPostgres(ctx context.Context, connString string) (*Postgres, error) {
	poolConfig, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}
	poolConfig.MaxConns = 25
	poolConfig.MinConns = 2
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

	p := &Postgres{pool: pool, connString: connString}
	if err := p.RunMigrations(); err != nil {
		pool.Close()
		return nil, err
	}
	return p, nil
}

func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}

func (p *Postgres) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

func (p *Postgres) newMigrate() (*migrate.Migrate, error) {
	d, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("failed to load migrations: %w", err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", d, p.connString)
	if err != nil {
		return nil, fmt.Errorf("failed to create migrate instance: %w", err)
	}
	return m, nil
}

// RunMigrations applies all pending migrations.
func (p *Postgres) RunMigrations() error {
	m, err := p.newMigrate()
	if err != nil {
		return err
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration failed: %w", err)
	}
	return nil
}

func (p *Postgres) MigrationVersion() (uint, bool, error) {
	m, err := p.newMigrate()
	if err != nil {
		return 0, false, err
	}
	defer m.Close()
	return m.Version()
}

type TableStats struct {
	TableName string
	RowCount  int64
	Size      string
}

func (p *Postgres) TableStats(ctx context.Context) ([]TableStats, error) {
	rows, err := p.pool.Query(ctx, `
SELECT relname, n_live_tup, pg_size_pretty(pg_total_relation_size(relid))
FROM pg_stat_user_tables
WHERE schemaname = 'public'
ORDER BY n_live_tup DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query table stats: %w", err)
	}
	defer rows.Close()

	var stats []TableStats
	for rows.Next() {
		var s TableStats
		if err := rows.Scan(&s.TableName, &s.RowCount, &s.Size); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		stats = append(stats, s)
	}
	return stats, rows.Err()
}

const variantColumns = `id::text, user_id, sku, sku_variant, name, color, size, cost_price::text, category, stock`

func (p *Postgres) FetchCatalog(ctx context.Context, userID string) ([]internal.CatalogVariant, error) {
	rows, err := p.pool.Query(ctx, `SELECT `+variantColumns+` FROM product_variants WHERE user_id = $1 ORDER BY seq`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []internal.CatalogVariant
	for rows.Next() {
		v, err := scanVariant(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func (p *Postgres) FetchExistingOrderIDs(ctx context.Context, userID string) (map[string]struct{}, error) {
	rows, err := p.pool.Query(ctx, `SELECT order_sn FROM orders WHERE user_id = $1`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[string]struct{}{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out[id] = struct{}{}
	}
	return out, rows.Err()
}

func (p *Postgres) InTx(ctx context.Context, fn func(w IngestWriter) error) error {
	return pgx.BeginFunc(ctx, p.pool, func(tx pgx.Tx) error {
		return fn(&pgWriter{tx: tx})
	})
}

type pgWriter struct {
	tx pgx.Tx
}

func (w *pgWriter) InsertUploadBatch(ctx context.Context, b internal.UploadBatch) (string, error) {
	id := uuid.NewString()
	_, err := w.tx.Exec(ctx, `
INSERT INTO upload_batches (id, user_id, file_name, platform, account_id, account_name, upload_date, total_orders, total_revenue)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		id, b.UserID, b.FileName, string(b.Platform), b.Account.ID, b.Account.Name,
		b.UploadDate, b.TotalOrders, numeric(b.TotalRevenue))
	if err != nil {
		return "", err
	}
	return id, nil
}

func (w *pgWriter) InsertOrders(ctx context.Context, orders []internal.OrderRecord) ([]string, error) {
	batch := &pgx.Batch{}
	ids := make([]string, len(orders))
	for i, o := range orders {
		ids[i] = uuid.NewString()
		batch.Queue(`
INSERT INTO orders (id, user_id, upload_id, order_sn, platform, account_id, account_name, tracking_number, order_created_at, total)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
			ids[i], o.UserID, o.UploadID, o.Order.OrderSN, string(o.Platform), o.Account.ID, o.Account.Name,
			o.Order.TrackingNumber, o.Order.CreatedAt, numeric(o.Order.Total))
	}
	results := w.tx.SendBatch(ctx, batch)
	for _, o := range orders {
		if _, err := results.Exec(); err != nil {
			_ = results.Close()
			return nil, fmt.Errorf("order %s: %w", o.Order.OrderSN, err)
		}
	}
	if err := results.Close(); err != nil {
		return nil, err
	}
	return ids, nil
}

func (w *pgWriter) InsertLineItems(ctx context.Context, items []internal.LineItemRecord) error {
	rows := make([][]any, len(items))
	for i, it := range items {
		orderID, err := uuid.Parse(it.OrderID)
		if err != nil {
			return fmt.Errorf("line item %s: order id: %w", it.OrderSN, err)
		}
		rows[i] = []any{orderID, it.UserID, it.OrderSN, it.SKUVariant, it.ProductName, int32(it.Quantity), numeric(it.UnitPrice)}
	}
	_, err := w.tx.CopyFrom(ctx,
		pgx.Identifier{"order_items"},
		[]string{"order_id", "user_id", "order_sn", "sku_variant", "product_name", "quantity", "unit_price"},
		pgx.CopyFromRows(rows),
	)
	return err
}

func (p *Postgres) FetchStock(ctx context.Context, userID string, skus []string) (map[string]int, error) {
	out := make(map[string]int, len(skus))
	if len(skus) == 0 {
		return out, nil
	}
	rows, err := p.pool.Query(ctx, `
SELECT sku_variant, stock FROM product_variants WHERE user_id = $1 AND sku_variant = ANY($2)`, userID, skus)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var sku string
		var stock int
		if err := rows.Scan(&sku, &stock); err != nil {
			return nil, err
		}
		out[sku] = stock
	}
	return out, rows.Err()
}

func (p *Postgres) UpdateVariantStock(ctx context.Context, userID, sku string, newStock int) error {
	tag, err := p.pool.Exec(ctx, `
UPDATE product_variants SET stock = $1, updated_at = NOW()
WHERE user_id = $2 AND sku_variant = $3`, newStock, userID, sku)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return internal.ErrVariantNotFound
	}
	return nil
}

func (p *Postgres) InsertStockMovement(ctx context.Context, m internal.StockMovement) error {
	_, err := p.pool.Exec(ctx, insertMovementPG, movementArgs(m)...)
	return err
}

const insertMovementPG = `
INSERT INTO stock_movements (id, user_id, sku_variant, product_name, type, quantity, previous_stock, new_stock, reason, notes, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

func movementArgs(m internal.StockMovement) []any {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	return []any{m.ID, m.UserID, m.SKUVariant, m.ProductName, string(m.Type), m.Quantity, m.PreviousStock, m.NewStock, m.Reason, m.Notes, m.CreatedAt}
}

func (p *Postgres) ListStockMovements(ctx context.Context, userID string, limit int) ([]internal.StockMovement, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := p.pool.Query(ctx, `
SELECT id::text, user_id, sku_variant, product_name, type, quantity, previous_stock, new_stock, reason, notes, created_at
FROM stock_movements WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []internal.StockMovement
	for rows.Next() {
		var m internal.StockMovement
		var typ string
		if err := rows.Scan(&m.ID, &m.UserID, &m.SKUVariant, &m.ProductName, &typ, &m.Quantity, &m.PreviousStock, &m.NewStock, &m.Reason, &m.Notes, &m.CreatedAt); err != nil {
			return nil, err
		}
		m.Type = internal.MovementType(typ)
		out = append(out, m)
	}
	return out, rows.Err()
}

func (p *Postgres) AdjustStock(ctx context.Context, userID, sku string, mutate StockMutator) (internal.StockMovement, error) {
	var movement internal.StockMovement
	err := pgx.BeginFunc(ctx, p.pool, func(tx pgx.Tx) error {
		current, err := scanVariant(tx.QueryRow(ctx, `SELECT `+variantColumns+`
FROM product_variants WHERE user_id = $1 AND sku_variant = $2 FOR UPDATE`, userID, sku))
		if errors.Is(err, pgx.ErrNoRows) {
			return internal.ErrVariantNotFound
		}
		if err != nil {
			return err
		}

		movement, err = mutate(current)
		if err != nil {
			return err
		}
		if movement.ID == "" {
			movement.ID = uuid.NewString()
		}
		if movement.CreatedAt.IsZero() {
			movement.CreatedAt = time.Now().UTC()
		}
		if _, err := tx.Exec(ctx, `
UPDATE product_variants SET stock = $1, updated_at = NOW()
WHERE user_id = $2 AND sku_variant = $3`, movement.NewStock, userID, sku); err != nil {
			return err
		}
		_, err = tx.Exec(ctx, insertMovementPG, movementArgs(movement)...)
		return err
	})
	if err != nil {
		return internal.StockMovement{}, err
	}
	return movement, nil
}

// UpsertVariants mirrors the SQLite behavior: stock is only written on insert.
func (p *Postgres) UpsertVariants(ctx context.Context, userID string, variants []internal.CatalogVariant) (int, int, error) {
	created, updated := 0, 0
	err := pgx.BeginFunc(ctx, p.pool, func(tx pgx.Tx) error {
		for _, v := range variants {
			id := v.ID
			if id == "" {
				id = uuid.NewString()
			}
			var inserted bool
			err := tx.QueryRow(ctx, `
INSERT INTO product_variants (id, user_id, sku, sku_variant, name, color, size, cost_price, category, stock)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
ON CONFLICT (user_id, sku_variant) DO UPDATE SET
  sku = EXCLUDED.sku,
  name = EXCLUDED.name,
  color = EXCLUDED.color,
  size = EXCLUDED.size,
  cost_price = EXCLUDED.cost_price,
  category = EXCLUDED.category,
  updated_at = NOW()
RETURNING (xmax = 0)`,
				id, userID, v.SKU, v.SKUVariant, v.Name, v.Color, v.Size, numeric(v.CostPrice), v.Category, v.Stock,
			).Scan(&inserted)
			if err != nil {
				return fmt.Errorf("variant %s: %w", v.SKUVariant, err)
			}
			if inserted {
				created++
			} else {
				updated++
			}
		}
		return nil
	})
	if err != nil {
		return 0, 0, err
	}
	return created, updated, nil
}

func (p *Postgres) InsertRun(ctx context.Context, run internal.IngestionRun) error {
	_, err := p.pool.Exec(ctx, `
INSERT INTO runs (trace_id, user_id, platform, file_name, upload_id, timings, counts)
VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		run.TraceID, run.UserID, run.Platform, run.FileName, run.UploadID, run.Timings, run.Counts)
	return err
}

func (p *Postgres) SetMetadata(ctx context.Context, key, value string) error {
	_, err := p.pool.Exec(ctx, `
INSERT INTO metadata (key, value) VALUES ($1, $2)
ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()`, key, value)
	return err
}

func (p *Postgres) GetMetadata(ctx context.Context, key string) (*string, error) {
	var value string
	err := p.pool.QueryRow(ctx, `SELECT value FROM metadata WHERE key = $1`, key).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &value, nil
}

func (p *Postgres) UpsertEmail(ctx context.Context, msg internal.FetchedMailMessage, hash, rawRef, status string) (internal.EmailRow, error) {
	var row internal.EmailRow
	err := p.pool.QueryRow(ctx, `
INSERT INTO emails (provider, message_id, subject, sender, received_at, hash, status, raw_ref)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT (provider, message_id) DO UPDATE SET
  subject = EXCLUDED.subject,
  sender = EXCLUDED.sender,
  received_at = EXCLUDED.received_at,
  hash = EXCLUDED.hash,
  raw_ref = EXCLUDED.raw_ref,
  updated_at = NOW()
RETURNING id, provider, message_id, subject, sender, received_at, hash, status, raw_ref`,
		msg.Provider, msg.MessageID, msg.Subject, msg.From, msg.ReceivedAt, hash, status, rawRef,
	).Scan(&row.ID, &row.Provider, &row.MessageID, &row.Subject, &row.Sender, &row.ReceivedAt, &row.Hash, &row.Status, &row.RawRef)
	if err != nil {
		return internal.EmailRow{}, err
	}
	return row, nil
}

func (p *Postgres) ListEmailsByStatus(ctx context.Context, status string, limit int) ([]internal.EmailRow, error) {
	rows, err := p.pool.Query(ctx, `
SELECT id, provider, message_id, subject, sender, received_at, hash, status, raw_ref
FROM emails WHERE status = $1 ORDER BY received_at ASC LIMIT $2`, status, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []internal.EmailRow
	for rows.Next() {
		var row internal.EmailRow
		if err := rows.Scan(&row.ID, &row.Provider, &row.MessageID, &row.Subject, &row.Sender, &row.ReceivedAt, &row.Hash, &row.Status, &row.RawRef); err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func (p *Postgres) UpdateEmailStatus(ctx context.Context, emailID int, status string) error {
	_, err := p.pool.Exec(ctx, `UPDATE emails SET status = $1, updated_at = NOW() WHERE id = $2`, status, emailID)
	return err
}

func numeric(d decimal.Decimal) pgtype.Numeric {
	return pgtype.Numeric{Int: d.Coefficient(), Exp: d.Exponent(), Valid: true}
}
