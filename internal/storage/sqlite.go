package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"

	"omnistock/internal"
)

type SQLite struct {
	conn *sql.DB
}

func OpenSQLite(path string) (*SQLite, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, err
		}
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// one writer; concurrent stock updates queue on the pool
	conn.SetMaxOpenConns(1)

	for _, pragma := range []string{
		`PRAGMA journal_mode = WAL;`,
		`PRAGMA busy_timeout = 5000;`,
		`PRAGMA foreign_keys = ON;`,
	} {
		if _, err := conn.Exec(pragma); err != nil {
			_ = conn.Close()
			return nil, err
		}
	}

	db := &SQLite{conn: conn}
	if err := db.init(); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return db, nil
}

func (d *SQLite) Close() error {
	return d.conn.Close()
}

func (d *SQLite) Ping(ctx context.Context) error {
	return d.conn.PingContext(ctx)
}

func (d *SQLite) init() error {
	schema := `
CREATE TABLE IF NOT EXISTS product_variants (
  id TEXT PRIMARY KEY,
  user_id TEXT NOT NULL,
  sku TEXT NOT NULL,
  sku_variant TEXT NOT NULL,
  name TEXT NOT NULL,
  color TEXT NOT NULL DEFAULT '',
  size TEXT NOT NULL DEFAULT '',
  cost_price TEXT NOT NULL DEFAULT '0',
  category TEXT NOT NULL DEFAULT '',
  stock INTEGER NOT NULL DEFAULT 0,
  created_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
  updated_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
  UNIQUE(user_id, sku_variant)
);
CREATE INDEX IF NOT EXISTS idx_variants_user_sku ON product_variants(user_id, sku);

CREATE TABLE IF NOT EXISTS upload_batches (
  id TEXT PRIMARY KEY,
  user_id TEXT NOT NULL,
  file_name TEXT NOT NULL,
  platform TEXT NOT NULL,
  account_id TEXT NOT NULL DEFAULT '',
  account_name TEXT NOT NULL DEFAULT '',
  upload_date TEXT NOT NULL,
  total_orders INTEGER NOT NULL,
  total_revenue TEXT NOT NULL,
  created_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS orders (
  id TEXT PRIMARY KEY,
  user_id TEXT NOT NULL,
  upload_id TEXT NOT NULL,
  order_sn TEXT NOT NULL,
  platform TEXT NOT NULL,
  account_id TEXT NOT NULL DEFAULT '',
  account_name TEXT NOT NULL DEFAULT '',
  tracking_number TEXT NOT NULL DEFAULT '',
  order_created_at TEXT,
  total TEXT NOT NULL,
  created_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
  UNIQUE(user_id, order_sn),
  FOREIGN KEY(upload_id) REFERENCES upload_batches(id)
);

CREATE TABLE IF NOT EXISTS order_items (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  order_id TEXT NOT NULL,
  user_id TEXT NOT NULL,
  order_sn TEXT NOT NULL,
  sku_variant TEXT NOT NULL,
  product_name TEXT NOT NULL,
  quantity INTEGER NOT NULL,
  unit_price TEXT NOT NULL,
  created_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
  FOREIGN KEY(order_id) REFERENCES orders(id)
);
CREATE INDEX IF NOT EXISTS idx_order_items_order ON order_items(order_id);

CREATE TABLE IF NOT EXISTS stock_movements (
  id TEXT PRIMARY KEY,
  user_id TEXT NOT NULL,
  sku_variant TEXT NOT NULL,
  product_name TEXT NOT NULL DEFAULT '',
  type TEXT NOT NULL,
  quantity INTEGER NOT NULL,
  previous_stock INTEGER NOT NULL,
  new_stock INTEGER NOT NULL,
  reason TEXT NOT NULL DEFAULT '',
  notes TEXT NOT NULL DEFAULT '',
  created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_movements_user_created ON stock_movements(user_id, created_at);

CREATE TABLE IF NOT EXISTS emails (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  provider TEXT NOT NULL,
  message_id TEXT NOT NULL,
  subject TEXT,
  sender TEXT,
  received_at TEXT,
  hash TEXT NOT NULL,
  status TEXT NOT NULL DEFAULT 'fetched',
  raw_ref TEXT NOT NULL,
  created_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
  updated_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
  UNIQUE(provider, message_id)
);

CREATE TABLE IF NOT EXISTS runs (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  trace_id TEXT NOT NULL,
  user_id TEXT NOT NULL,
  platform TEXT NOT NULL DEFAULT '',
  file_name TEXT NOT NULL DEFAULT '',
  upload_id TEXT NOT NULL DEFAULT '',
  timings_json TEXT NOT NULL,
  counts_json TEXT NOT NULL,
  created_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS metadata (
  key TEXT PRIMARY KEY,
  value TEXT NOT NULL,
  updated_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`
	_, err := d.conn.Exec(schema)
	return err
}

func (d *SQLite) FetchCatalog(ctx context.Context, userID string) ([]internal.CatalogVariant, error) {
	rows, err := d.conn.QueryContext(ctx, `
SELECT id, user_id, sku, sku_variant, name, color, size, cost_price, category, stock
FROM product_variants WHERE user_id = ? ORDER BY rowid`, userID)
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

type rowScanner interface {
	Scan(dest ...any) error
}

func scanVariant(r rowScanner) (internal.CatalogVariant, error) {
	var v internal.CatalogVariant
	var cost string
	if err := r.Scan(&v.ID, &v.UserID, &v.SKU, &v.SKUVariant, &v.Name, &v.Color, &v.Size, &cost, &v.Category, &v.Stock); err != nil {
		return v, err
	}
	price, err := decimal.NewFromString(cost)
	if err != nil {
		return v, fmt.Errorf("variant %s cost %q: %w", v.SKUVariant, cost, err)
	}
	v.CostPrice = price
	return v, nil
}

func (d *SQLite) FetchExistingOrderIDs(ctx context.Context, userID string) (map[string]struct{}, error) {
	rows, err := d.conn.QueryContext(ctx, `SELECT order_sn FROM orders WHERE user_id = ?`, userID)
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

func (d *SQLite) InTx(ctx context.Context, fn func(w IngestWriter) error) error {
	tx, err := d.conn.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(&sqliteWriter{tx: tx}); err != nil {
		return err
	}
	return tx.Commit()
}

type sqliteWriter struct {
	tx *sql.Tx
}

func (w *sqliteWriter) InsertUploadBatch(ctx context.Context, b internal.UploadBatch) (string, error) {
	id := uuid.NewString()
	_, err := w.tx.ExecContext(ctx, `
INSERT INTO upload_batches (id, user_id, file_name, platform, account_id, account_name, upload_date, total_orders, total_revenue)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, b.UserID, b.FileName, string(b.Platform), b.Account.ID, b.Account.Name,
		b.UploadDate.Format(time.DateOnly), b.TotalOrders, b.TotalRevenue.String())
	if err != nil {
		return "", err
	}
	return id, nil
}

func (w *sqliteWriter) InsertOrders(ctx context.Context, orders []internal.OrderRecord) ([]string, error) {
	stmt, err := w.tx.PrepareContext(ctx, `
INSERT INTO orders (id, user_id, upload_id, order_sn, platform, account_id, account_name, tracking_number, order_created_at, total)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return nil, err
	}
	defer stmt.Close()

	ids := make([]string, 0, len(orders))
	for _, o := range orders {
		id := uuid.NewString()
		if _, err := stmt.ExecContext(ctx,
			id, o.UserID, o.UploadID, o.Order.OrderSN, string(o.Platform), o.Account.ID, o.Account.Name,
			o.Order.TrackingNumber, formatTimePtr(o.Order.CreatedAt), o.Order.Total.String(),
		); err != nil {
			return nil, fmt.Errorf("order %s: %w", o.Order.OrderSN, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func (w *sqliteWriter) InsertLineItems(ctx context.Context, items []internal.LineItemRecord) error {
	stmt, err := w.tx.PrepareContext(ctx, `
INSERT INTO order_items (order_id, user_id, order_sn, sku_variant, product_name, quantity, unit_price)
VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, it := range items {
		if _, err := stmt.ExecContext(ctx, it.OrderID, it.UserID, it.OrderSN, it.SKUVariant, it.ProductName, it.Quantity, it.UnitPrice.String()); err != nil {
			return fmt.Errorf("line item %s/%s: %w", it.OrderSN, it.SKUVariant, err)
		}
	}
	return nil
}

func (d *SQLite) FetchStock(ctx context.Context, userID string, skus []string) (map[string]int, error) {
	out := make(map[string]int, len(skus))
	if len(skus) == 0 {
		return out, nil
	}
	args := make([]any, 0, len(skus)+1)
	args = append(args, userID)
	for _, s := range skus {
		args = append(args, s)
	}
	query := `SELECT sku_variant, stock FROM product_variants WHERE user_id = ? AND sku_variant IN (` +
		strings.TrimSuffix(strings.Repeat("?,", len(skus)), ",") + `)`
	rows, err := d.conn.QueryContext(ctx, query, args...)
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

func (d *SQLite) UpdateVariantStock(ctx context.Context, userID, sku string, newStock int) error {
	res, err := d.conn.ExecContext(ctx, `
UPDATE product_variants SET stock = ?, updated_at = CURRENT_TIMESTAMP
WHERE user_id = ? AND sku_variant = ?`, newStock, userID, sku)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return internal.ErrVariantNotFound
	}
	return nil
}

func (d *SQLite) InsertStockMovement(ctx context.Context, m internal.StockMovement) error {
	return insertMovementSQL(ctx, d.conn, m)
}

type sqlExecer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// sqliteTimeLayout is fixed width so stored timestamps sort as text.
const sqliteTimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func insertMovementSQL(ctx context.Context, db sqlExecer, m internal.StockMovement) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	_, err := db.ExecContext(ctx, `
INSERT INTO stock_movements (id, user_id, sku_variant, product_name, type, quantity, previous_stock, new_stock, reason, notes, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.UserID, m.SKUVariant, m.ProductName, string(m.Type), m.Quantity, m.PreviousStock, m.NewStock,
		m.Reason, m.Notes, m.CreatedAt.UTC().Format(sqliteTimeLayout))
	return err
}

func (d *SQLite) ListStockMovements(ctx context.Context, userID string, limit int) ([]internal.StockMovement, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := d.conn.QueryContext(ctx, `
SELECT id, user_id, sku_variant, product_name, type, quantity, previous_stock, new_stock, reason, notes, created_at
FROM stock_movements WHERE user_id = ? ORDER BY created_at DESC, rowid DESC LIMIT ?`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []internal.StockMovement
	for rows.Next() {
		var m internal.StockMovement
		var typ, created string
		if err := rows.Scan(&m.ID, &m.UserID, &m.SKUVariant, &m.ProductName, &typ, &m.Quantity, &m.PreviousStock, &m.NewStock, &m.Reason, &m.Notes, &created); err != nil {
			return nil, err
		}
		m.Type = internal.MovementType(typ)
		m.CreatedAt, _ = time.Parse(sqliteTimeLayout, created)
		out = append(out, m)
	}
	return out, rows.Err()
}

func (d *SQLite) AdjustStock(ctx context.Context, userID, sku string, mutate StockMutator) (internal.StockMovement, error) {
	tx, err := d.conn.BeginTx(ctx, nil)
	if err != nil {
		return internal.StockMovement{}, err
	}
	defer func() { _ = tx.Rollback() }()

	current, err := scanVariant(tx.QueryRowContext(ctx, `
SELECT id, user_id, sku, sku_variant, name, color, size, cost_price, category, stock
FROM product_variants WHERE user_id = ? AND sku_variant = ?`, userID, sku))
	if errors.Is(err, sql.ErrNoRows) {
		return internal.StockMovement{}, internal.ErrVariantNotFound
	}
	if err != nil {
		return internal.StockMovement{}, err
	}

	movement, err := mutate(current)
	if err != nil {
		return internal.StockMovement{}, err
	}
	if _, err := tx.ExecContext(ctx, `
UPDATE product_variants SET stock = ?, updated_at = CURRENT_TIMESTAMP
WHERE user_id = ? AND sku_variant = ?`, movement.NewStock, userID, sku); err != nil {
		return internal.StockMovement{}, err
	}
	if movement.ID == "" {
		movement.ID = uuid.NewString()
	}
	if movement.CreatedAt.IsZero() {
		movement.CreatedAt = time.Now().UTC()
	}
	if err := insertMovementSQL(ctx, tx, movement); err != nil {
		return internal.StockMovement{}, err
	}
	return movement, tx.Commit()
}

// UpsertVariants inserts unknown variants with their stock and refreshes descriptive
// fields of known ones. Stock of existing variants is left alone.
func (d *SQLite) UpsertVariants(ctx context.Context, userID string, variants []internal.CatalogVariant) (int, int, error) {
	tx, err := d.conn.BeginTx(ctx, nil)
	if err != nil {
		return 0, 0, err
	}
	defer func() { _ = tx.Rollback() }()

	update, err := tx.PrepareContext(ctx, `
UPDATE product_variants SET sku = ?, name = ?, color = ?, size = ?, cost_price = ?, category = ?, updated_at = CURRENT_TIMESTAMP
WHERE user_id = ? AND sku_variant = ?`)
	if err != nil {
		return 0, 0, err
	}
	defer update.Close()

	insert, err := tx.PrepareContext(ctx, `
INSERT INTO product_variants (id, user_id, sku, sku_variant, name, color, size, cost_price, category, stock)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, 0, err
	}
	defer insert.Close()

	created, updated := 0, 0
	for _, v := range variants {
		res, err := update.ExecContext(ctx, v.SKU, v.Name, v.Color, v.Size, v.CostPrice.String(), v.Category, userID, v.SKUVariant)
		if err != nil {
			return 0, 0, fmt.Errorf("variant %s: %w", v.SKUVariant, err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			updated++
			continue
		}
		id := v.ID
		if id == "" {
			id = uuid.NewString()
		}
		if _, err := insert.ExecContext(ctx, id, userID, v.SKU, v.SKUVariant, v.Name, v.Color, v.Size, v.CostPrice.String(), v.Category, v.Stock); err != nil {
			return 0, 0, fmt.Errorf("variant %s: %w", v.SKUVariant, err)
		}
		created++
	}
	return created, updated, tx.Commit()
}

func (d *SQLite) InsertRun(ctx context.Context, run internal.IngestionRun) error {
	timingsJSON, _ := json.Marshal(run.Timings)
	countsJSON, _ := json.Marshal(run.Counts)
	_, err := d.conn.ExecContext(ctx, `
INSERT INTO runs (trace_id, user_id, platform, file_name, upload_id, timings_json, counts_json)
VALUES (?, ?, ?, ?, ?, ?, ?)`,
		run.TraceID, run.UserID, run.Platform, run.FileName, run.UploadID, string(timingsJSON), string(countsJSON))
	return err
}

func (d *SQLite) SetMetadata(ctx context.Context, key, value string) error {
	_, err := d.conn.ExecContext(ctx, `
INSERT INTO metadata (key, value) VALUES (?, ?)
ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP
`, key, value)
	return err
}

func (d *SQLite) GetMetadata(ctx context.Context, key string) (*string, error) {
	var value string
	err := d.conn.QueryRowContext(ctx, `SELECT value FROM metadata WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &value, nil
}

func (d *SQLite) UpsertEmail(ctx context.Context, msg internal.FetchedMailMessage, hash, rawRef, status string) (internal.EmailRow, error) {
	_, err := d.conn.ExecContext(ctx, `
INSERT INTO emails (provider, message_id, subject, sender, received_at, hash, status, raw_ref)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(provider, message_id) DO UPDATE SET
  subject=excluded.subject,
  sender=excluded.sender,
  received_at=excluded.received_at,
  hash=excluded.hash,
  raw_ref=excluded.raw_ref,
  updated_at=CURRENT_TIMESTAMP
`, msg.Provider, msg.MessageID, msg.Subject, msg.From, msg.ReceivedAt, hash, status, rawRef)
	if err != nil {
		return internal.EmailRow{}, err
	}

	var row internal.EmailRow
	err = d.conn.QueryRowContext(ctx, `
SELECT id, provider, message_id, subject, sender, received_at, hash, status, raw_ref
FROM emails WHERE provider = ? AND message_id = ?
`, msg.Provider, msg.MessageID).Scan(
		&row.ID, &row.Provider, &row.MessageID, &row.Subject, &row.Sender, &row.ReceivedAt, &row.Hash, &row.Status, &row.RawRef,
	)
	if err != nil {
		return internal.EmailRow{}, fmt.Errorf("reload email %s: %w", msg.MessageID, err)
	}
	return row, nil
}

func (d *SQLite) ListEmailsByStatus(ctx context.Context, status string, limit int) ([]internal.EmailRow, error) {
	rows, err := d.conn.QueryContext(ctx, `
SELECT id, provider, message_id, subject, sender, received_at, hash, status, raw_ref
FROM emails WHERE status = ? ORDER BY received_at ASC LIMIT ?
`, status, limit)
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

func (d *SQLite) UpdateEmailStatus(ctx context.Context, emailID int, status string) error {
	_, err := d.conn.ExecContext(ctx, `UPDATE emails SET status = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`, status, emailID)
	return err
}

func formatTimePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}
