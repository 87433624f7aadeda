package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"omnistock/internal"
	"omnistock/internal/storage"
)

type mockStore struct {
	mock.Mock
	writer *mockWriter
}

func (m *mockStore) FetchCatalog(ctx context.Context, userID string) ([]internal.CatalogVariant, error) {
	args := m.Called(ctx, userID)
	v, _ := args.Get(0).([]internal.CatalogVariant)
	return v, args.Error(1)
}

func (m *mockStore) FetchExistingOrderIDs(ctx context.Context, userID string) (map[string]struct{}, error) {
	args := m.Called(ctx, userID)
	v, _ := args.Get(0).(map[string]struct{})
	return v, args.Error(1)
}

func (m *mockStore) InTx(ctx context.Context, fn func(w storage.IngestWriter) error) error {
	if err := m.Called(ctx).Error(0); err != nil {
		return err
	}
	return fn(m.writer)
}

func (m *mockStore) InsertRun(ctx context.Context, run internal.IngestionRun) error {
	return m.Called(ctx, run).Error(0)
}

func (m *mockStore) FetchStock(ctx context.Context, userID string, skus []string) (map[string]int, error) {
	args := m.Called(ctx, userID, skus)
	v, _ := args.Get(0).(map[string]int)
	return v, args.Error(1)
}

func (m *mockStore) UpdateVariantStock(ctx context.Context, userID, sku string, newStock int) error {
	return m.Called(ctx, userID, sku, newStock).Error(0)
}

func (m *mockStore) InsertStockMovement(ctx context.Context, mv internal.StockMovement) error {
	return m.Called(ctx, mv).Error(0)
}

type mockWriter struct {
	ordersErr error
	orders    []internal.OrderRecord
	items     []internal.LineItemRecord
}

func (w *mockWriter) InsertUploadBatch(context.Context, internal.UploadBatch) (string, error) {
	return "upload-1", nil
}

func (w *mockWriter) InsertOrders(_ context.Context, orders []internal.OrderRecord) ([]string, error) {
	if w.ordersErr != nil {
		return nil, w.ordersErr
	}
	w.orders = append(w.orders, orders...)
	ids := make([]string, len(orders))
	for i := range orders {
		ids[i] = "order-" + orders[i].Order.OrderSN
	}
	return ids, nil
}

func (w *mockWriter) InsertLineItems(_ context.Context, items []internal.LineItemRecord) error {
	w.items = append(w.items, items...)
	return nil
}

func newMockService(store *mockStore) *Service {
	return NewService(Deps{Store: store, Logger: quietLogger(), StockConcurrency: 2})
}

func TestIngestWrapsCatalogFailure(t *testing.T) {
	store := &mockStore{writer: &mockWriter{}}
	boom := errors.New("connection reset")
	store.On("FetchCatalog", mock.Anything, "u1").Return(nil, boom)
	store.On("FetchExistingOrderIDs", mock.Anything, "u1").Return(map[string]struct{}{}, nil)

	_, err := newMockService(store).Ingest(context.Background(), IngestRequest{UserID: "u1", FileName: "x.xlsx", Content: shopeeFile(), Platform: "shopee"})

	var se *StorageError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, StageFetchCatalog, se.Stage)
	assert.ErrorIs(t, err, boom)
	store.AssertNotCalled(t, "InTx", mock.Anything)
}

func TestIngestWrapsOrderInsertFailure(t *testing.T) {
	boom := errors.New("disk full")
	store := &mockStore{writer: &mockWriter{ordersErr: boom}}
	store.On("FetchCatalog", mock.Anything, "u1").Return(testCatalog(), nil)
	store.On("FetchExistingOrderIDs", mock.Anything, "u1").Return(map[string]struct{}{}, nil)
	store.On("InTx", mock.Anything).Return(nil)

	res, err := newMockService(store).Ingest(context.Background(), IngestRequest{UserID: "u1", FileName: "x.xlsx", Content: shopeeFile(), Platform: "shopee"})

	var se *StorageError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, StageInsertOrders, se.Stage)
	assert.Equal(t, "upload-1", se.UploadID)
	assert.ElementsMatch(t, []string{"ORD1", "ORD2"}, se.OrderSNs)
	assert.Empty(t, res.UploadID)
	store.AssertNotCalled(t, "UpdateVariantStock", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestIngestReportsPartialStockFailure(t *testing.T) {
	writer := &mockWriter{}
	store := &mockStore{writer: writer}
	store.On("FetchCatalog", mock.Anything, "u1").Return(testCatalog(), nil)
	store.On("FetchExistingOrderIDs", mock.Anything, "u1").Return(map[string]struct{}{}, nil)
	store.On("InTx", mock.Anything).Return(nil)
	store.On("FetchStock", mock.Anything, "u1", mock.Anything).Return(map[string]int{
		"KAOS-HITAM-XL": 10, "TOPI-MERAH-ALL": 3, "KAOS-PUTIH-L": 4,
	}, nil)
	lockTimeout := errors.New("lock timeout")
	store.On("UpdateVariantStock", mock.Anything, "u1", "TOPI-MERAH-ALL", 2).Return(lockTimeout)
	store.On("UpdateVariantStock", mock.Anything, "u1", "KAOS-HITAM-XL", 8).Return(nil)
	store.On("UpdateVariantStock", mock.Anything, "u1", "KAOS-PUTIH-L", -1).Return(nil)
	store.On("InsertStockMovement", mock.Anything, mock.Anything).Return(errors.New("history table missing"))
	store.On("InsertRun", mock.Anything, mock.Anything).Return(nil)

	res, err := newMockService(store).Ingest(context.Background(), IngestRequest{UserID: "u1", FileName: "x.xlsx", Content: shopeeFile(), Platform: "shopee"})

	var se *StockReconciliationError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, []string{"TOPI-MERAH-ALL"}, se.SKUs())
	assert.ErrorIs(t, err, lockTimeout)
	assert.Equal(t, "upload-1", res.UploadID)
	assert.Equal(t, 2, res.NewOrders)
	assert.Len(t, writer.items, 3)
	store.AssertCalled(t, "UpdateVariantStock", mock.Anything, "u1", "KAOS-HITAM-XL", 8)
	store.AssertCalled(t, "UpdateVariantStock", mock.Anything, "u1", "KAOS-PUTIH-L", -1)
	store.AssertCalled(t, "InsertRun", mock.Anything, mock.Anything)
}

func TestReconcileMissingVariant(t *testing.T) {
	store := &mockStore{}
	store.On("FetchStock", mock.Anything, "u1", []string{"GONE", "KAOS-HITAM-XL"}).Return(map[string]int{"KAOS-HITAM-XL": 1}, nil)
	store.On("UpdateVariantStock", mock.Anything, "u1", "KAOS-HITAM-XL", -3).Return(nil)
	store.On("InsertStockMovement", mock.Anything, mock.Anything).Return(nil)

	r := NewReconciler(store, nil, nil, quietLogger(), 4)
	err := r.Reconcile(context.Background(), "u1", "upload-1", []internal.LineItemRecord{
		{SKUVariant: "GONE", Quantity: 1},
		{SKUVariant: "KAOS-HITAM-XL", Quantity: 1},
		{SKUVariant: "KAOS-HITAM-XL", Quantity: 3},
	})

	var se *StockReconciliationError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, []string{"GONE"}, se.SKUs())
	assert.ErrorIs(t, err, internal.ErrVariantNotFound)
	store.AssertNumberOfCalls(t, "UpdateVariantStock", 1)
}

func TestAggregateDeltas(t *testing.T) {
	deltas, skus := AggregateDeltas([]internal.LineItemRecord{
		{SKUVariant: "B", Quantity: 2},
		{SKUVariant: "A", Quantity: 1},
		{SKUVariant: "B", Quantity: 5},
	})
	assert.Equal(t, []string{"B", "A"}, skus)
	assert.Equal(t, map[string]int{"B": 7, "A": 1}, deltas)
}
