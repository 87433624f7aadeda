package pipeline

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"omnistock/internal"
	"omnistock/internal/catalog"
	"omnistock/internal/sheet"
	"omnistock/internal/storage"
)

func TestMatcherTierPrecedence(t *testing.T) {
	m := NewMatcher(catalog.NewSnapshot([]internal.CatalogVariant{
		{SKU: "A", SKUVariant: "A-1", Color: "RED", Size: "M"},
		{SKU: "A", SKUVariant: "A-2", Color: "BLUE", Size: "L"},
	}))

	cases := []struct {
		variation string
		want      string
		status    internal.MatchStatus
	}{
		{"RED, M", "A-1", internal.MatchOK},
		{"BLUE, L", "A-2", internal.MatchOK},
		{"GREEN, XS", "A-1", internal.MatchReview},
	}
	for _, tc := range cases {
		t.Run(tc.variation, func(t *testing.T) {
			got := m.Match("A", tc.variation)
			require.NotNil(t, got.Variant)
			assert.Equal(t, tc.want, got.Variant.SKUVariant)
			assert.Equal(t, tc.status, got.Status)
		})
	}
}

func sku1File(rows ...[]any) []byte {
	return mkXLSX(append([][]any{{"No. Pesanan", "Nomor Referensi SKU", "Nama Variasi", "Jumlah", "Harga Awal"}}, rows...))
}

func newSKU1Service(t *testing.T) (*Service, *storage.SQLite) {
	t.Helper()
	db, err := storage.OpenSQLite(filepath.Join(t.TempDir(), "scenario.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	_, _, err = db.UpsertVariants(context.Background(), "u1", []internal.CatalogVariant{
		{SKU: "SKU1", SKUVariant: "SKU1-RED-M", Name: "Shirt", Color: "RED", Size: "M", CostPrice: decimal.NewFromInt(1000), Stock: 10},
	})
	require.NoError(t, err)
	return NewService(Deps{Store: db, Logger: quietLogger()}), db
}

func TestEndToEndSKU1Scenario(t *testing.T) {
	ctx := context.Background()
	svc, db := newSKU1Service(t)
	file := sku1File(
		[]any{"ORD1", "SKU1", "RED, M", 2, 5000},
		[]any{"ORD1", "SKU1", "RED, M", 1, 5000},
	)

	snap := catalog.NewSnapshot([]internal.CatalogVariant{{SKU: "SKU1", SKUVariant: "SKU1-RED-M", Color: "RED", Size: "M"}})
	decoded := [][]any{
		{"No. Pesanan", "Nomor Referensi SKU", "Nama Variasi", "Jumlah", "Harga Awal"},
		{"ORD1", "SKU1", "RED, M", 2, 5000},
		{"ORD1", "SKU1", "RED, M", 1, 5000},
	}
	out := NewAdapter(mustPlatform(t, "shopee"), snap).Process(BuildRawRows(decoded), nil)
	require.Len(t, out.NewOrders, 1)
	require.Len(t, out.NewOrders[0].Items, 2)
	assert.Equal(t, 3, out.NewOrders[0].Items[0].Quantity+out.NewOrders[0].Items[1].Quantity)

	res, err := svc.Ingest(ctx, IngestRequest{UserID: "u1", FileName: "shopee.xlsx", Content: file})
	require.NoError(t, err)
	assert.Equal(t, 1, res.NewOrders)

	stock, err := db.FetchStock(ctx, "u1", []string{"SKU1-RED-M"})
	require.NoError(t, err)
	assert.Equal(t, 7, stock["SKU1-RED-M"])

	again, err := svc.Ingest(ctx, IngestRequest{UserID: "u1", FileName: "shopee.xlsx", Content: file})
	require.NoError(t, err)
	assert.Equal(t, IngestResult{TraceID: again.TraceID, Platform: internal.PlatformShopee, Skipped: 1}, again)
}

func TestUnknownSKUInvalidatesWholeOrder(t *testing.T) {
	ctx := context.Background()
	svc, db := newSKU1Service(t)
	res, err := svc.Ingest(ctx, IngestRequest{UserID: "u1", FileName: "shopee.xlsx", Content: sku1File(
		[]any{"ORD9", "SKU1", "RED, M", 1, 5000},
		[]any{"ORD9", "UNKNOWN", "", 1, 5000},
	)})
	require.NoError(t, err)
	assert.Equal(t, 0, res.NewOrders)
	assert.Equal(t, 1, res.Invalid)

	stock, err := db.FetchStock(ctx, "u1", []string{"SKU1-RED-M"})
	require.NoError(t, err)
	assert.Equal(t, 10, stock["SKU1-RED-M"])
}

func TestReconcileAllowsNegativeStock(t *testing.T) {
	ctx := context.Background()
	db, err := storage.OpenSQLite(filepath.Join(t.TempDir(), "neg.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	_, _, err = db.UpsertVariants(ctx, "u1", []internal.CatalogVariant{{SKU: "B", SKUVariant: "B-1", Name: "B", Stock: 3}})
	require.NoError(t, err)

	pub := &recordingPublisher{}
	r := NewReconciler(db, pub, nil, quietLogger(), 2)
	require.NoError(t, r.Reconcile(ctx, "u1", "upload-1", []internal.LineItemRecord{{SKUVariant: "B-1", Quantity: 5}}))

	stock, err := db.FetchStock(ctx, "u1", []string{"B-1"})
	require.NoError(t, err)
	assert.Equal(t, -2, stock["B-1"])
	assert.Equal(t, 1, pub.subjects()["omnistock.stock.negative"])
}

func decodeRows(t *testing.T, name string, rows [][]any) []internal.RawRow {
	t.Helper()
	decoded, err := sheet.Decode(name, mkXLSX(rows))
	require.NoError(t, err)
	return BuildRawRows(decoded)
}

func TestXLSXFractionalNumbersKeepTheirValue(t *testing.T) {
	snap := catalog.NewSnapshot([]internal.CatalogVariant{{SKU: "SKU1", SKUVariant: "SKU1-RED-M", Color: "RED", Size: "M"}})
	rows := decodeRows(t, "tiktok.xlsx", [][]any{
		{"Order ID", "Seller SKU", "Quantity", "SKU Price", "Order Amount"},
		{"T1", "SKU1-RED-M", 2, 12.345, 0.125},
	})

	out := NewAdapter(mustPlatform(t, "tiktok"), snap).Process(rows, nil)
	require.Len(t, out.NewOrders, 1)
	order := out.NewOrders[0]
	require.Len(t, order.Items, 1)
	assert.Equal(t, 2, order.Items[0].Quantity)
	assert.True(t, order.Items[0].UnitPrice.Equal(decimal.RequireFromString("12.345")), "unit price %s", order.Items[0].UnitPrice)
	assert.True(t, order.Total.Equal(decimal.RequireFromString("0.125")), "total %s", order.Total)
}

func TestUnparseableDateKeepsOrder(t *testing.T) {
	snap := catalog.NewSnapshot([]internal.CatalogVariant{{SKU: "SKU1", SKUVariant: "SKU1-RED-M", Color: "RED", Size: "M"}})
	rows := decodeRows(t, "shopee.xlsx", [][]any{
		{"No. Pesanan", "Waktu Pesanan Dibuat", "Nomor Referensi SKU", "Jumlah", "Harga Awal"},
		{"S1", "not a date", "SKU1-RED-M", 1, 5000},
	})

	out := NewAdapter(mustPlatform(t, "shopee"), snap).Process(rows, nil)
	require.Len(t, out.NewOrders, 1)
	assert.Equal(t, 0, out.Invalid)
	assert.Equal(t, "S1", out.NewOrders[0].OrderSN)
	assert.Nil(t, out.NewOrders[0].CreatedAt)
}
