package stock

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"omnistock/internal"
	"omnistock/internal/events"
	"omnistock/internal/metrics"
	"omnistock/internal/storage"
)

type capturePublisher struct{ got []events.Event }

func (p *capturePublisher) Publish(_ context.Context, e events.Event) error {
	p.got = append(p.got, e)
	return nil
}

func (p *capturePublisher) Close() {}

func newTestService(t *testing.T) (*Service, *storage.SQLite, *capturePublisher, *metrics.Registry) {
	t.Helper()
	db, err := storage.OpenSQLite(filepath.Join(t.TempDir(), "stock.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	_, _, err = db.UpsertVariants(context.Background(), "u1", []internal.CatalogVariant{{
		SKU: "KAOS", SKUVariant: "KAOS-HITAM-XL", Name: "Kaos Hitam", Color: "Hitam", Size: "XL",
		CostPrice: decimal.NewFromInt(45000), Stock: 5,
	}})
	require.NoError(t, err)

	logger := logrus.New()
	logger.SetOutput(io.Discard)
	pub := &capturePublisher{}
	m := metrics.NewRegistry()
	return NewService(db, pub, m, logger), db, pub, m
}

func TestAdjustInAndOut(t *testing.T) {
	svc, db, pub, m := newTestService(t)
	ctx := context.Background()

	mv, err := svc.Adjust(ctx, Adjustment{UserID: "u1", SKU: "KAOS-HITAM-XL", Type: internal.MovementIn, Quantity: 3, Reason: "restock"})
	require.NoError(t, err)
	assert.Equal(t, 5, mv.PreviousStock)
	assert.Equal(t, 8, mv.NewStock)

	mv, err = svc.Adjust(ctx, Adjustment{UserID: "u1", SKU: " KAOS-HITAM-XL ", Type: internal.MovementOut, Quantity: 8, Reason: "damaged", Notes: "water"})
	require.NoError(t, err)
	assert.Equal(t, 0, mv.NewStock)

	stock, err := db.FetchStock(ctx, "u1", []string{"KAOS-HITAM-XL"})
	require.NoError(t, err)
	assert.Equal(t, 0, stock["KAOS-HITAM-XL"])

	history, err := svc.History(ctx, "u1", 10)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, internal.MovementOut, history[0].Type)
	assert.Equal(t, "water", history[0].Notes)
	assert.Equal(t, internal.MovementIn, history[1].Type)

	require.Len(t, pub.got, 2)
	assert.Equal(t, events.SubjectStockAdjusted, pub.got[0].Subject)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ManualMovements.WithLabelValues("in")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ManualMovements.WithLabelValues("out")))
}

func TestAdjustMatchesSKUCaseInsensitively(t *testing.T) {
	svc, db, _, _ := newTestService(t)
	ctx := context.Background()

	mv, err := svc.Adjust(ctx, Adjustment{UserID: "u1", SKU: "kaos-hitam-xl", Type: internal.MovementOut, Quantity: 2})
	require.NoError(t, err)
	assert.Equal(t, "KAOS-HITAM-XL", mv.SKUVariant)

	stock, err := db.FetchStock(ctx, "u1", []string{"KAOS-HITAM-XL"})
	require.NoError(t, err)
	assert.Equal(t, 3, stock["KAOS-HITAM-XL"])
}

func TestAdjustRefusesNegative(t *testing.T) {
	svc, db, pub, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Adjust(ctx, Adjustment{UserID: "u1", SKU: "KAOS-HITAM-XL", Type: internal.MovementOut, Quantity: 6})
	require.ErrorIs(t, err, internal.ErrInsufficientStock)

	stock, err := db.FetchStock(ctx, "u1", []string{"KAOS-HITAM-XL"})
	require.NoError(t, err)
	assert.Equal(t, 5, stock["KAOS-HITAM-XL"])

	history, err := svc.History(ctx, "u1", 10)
	require.NoError(t, err)
	assert.Empty(t, history)
	assert.Empty(t, pub.got)
}

func TestAdjustValidation(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	cases := []struct {
		name string
		adj  Adjustment
		want error
	}{
		{"no user", Adjustment{SKU: "KAOS-HITAM-XL", Type: internal.MovementIn, Quantity: 1}, ErrInvalidAdjustment},
		{"no sku", Adjustment{UserID: "u1", Type: internal.MovementIn, Quantity: 1}, ErrInvalidAdjustment},
		{"sale type", Adjustment{UserID: "u1", SKU: "KAOS-HITAM-XL", Type: internal.MovementSale, Quantity: 1}, ErrInvalidAdjustment},
		{"zero qty", Adjustment{UserID: "u1", SKU: "KAOS-HITAM-XL", Type: internal.MovementIn}, ErrInvalidAdjustment},
		{"unknown sku", Adjustment{UserID: "u1", SKU: "NOPE", Type: internal.MovementIn, Quantity: 1}, internal.ErrVariantNotFound},
		{"other user", Adjustment{UserID: "u2", SKU: "KAOS-HITAM-XL", Type: internal.MovementIn, Quantity: 1}, internal.ErrVariantNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Adjust(context.Background(), tc.adj)
			if !errors.Is(err, tc.want) {
				t.Fatalf("want %v, got %v", tc.want, err)
			}
		})
	}
}
