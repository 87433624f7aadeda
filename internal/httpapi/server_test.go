package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"omnistock/internal"
	"omnistock/internal/catalog"
	"omnistock/internal/lock"
	"omnistock/internal/metrics"
	"omnistock/internal/pipeline"
	"omnistock/internal/stock"
	"omnistock/internal/storage"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type testEnv struct {
	router *gin.Engine
	db     *storage.SQLite
	locker *lock.Memory
}

func newTestEnv(t *testing.T, opts ...func(*Deps)) *testEnv {
	t.Helper()
	db, err := storage.OpenSQLite(filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	_, _, err = db.UpsertVariants(context.Background(), "u1", []internal.CatalogVariant{
		{SKU: "KAOS", SKUVariant: "KAOS-HITAM-XL", Name: "Kaos Polos", Color: "HITAM", Size: "XL", CostPrice: decimal.NewFromInt(35000), Stock: 10},
		{SKU: "TOPI", SKUVariant: "TOPI-MERAH-ALL", Name: "Topi", Color: "MERAH", Size: "ALL", Stock: 3},
	})
	require.NoError(t, err)

	logger := logrus.New()
	logger.SetOutput(io.Discard)
	m := metrics.NewRegistry()
	locker := lock.NewMemory()
	deps := Deps{
		Ingest:  pipeline.NewService(pipeline.Deps{Store: db, Locker: locker, Metrics: m, Logger: logger}),
		Catalog: catalog.NewService(db, logger),
		Stock:   stock.NewService(db, nil, m, logger),
		Health:  db.Ping,
		Metrics: m,
		Logger:  logger,
	}
	for _, opt := range opts {
		opt(&deps)
	}
	srv := NewServer(deps)
	return &testEnv{router: srv.Router(), db: db, locker: locker}
}

func xlsxBytes(t *testing.T, rows [][]any) []byte {
	t.Helper()
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	for r, row := range rows {
		for c, v := range row {
			cell, err := excelize.CoordinatesToCellName(c+1, r+1)
			require.NoError(t, err)
			require.NoError(t, f.SetCellValue(sheet, cell, v))
		}
	}
	var buf bytes.Buffer
	_, err := f.WriteTo(&buf)
	require.NoError(t, err)
	return buf.Bytes()
}

func shopeeExport(t *testing.T) []byte {
	return xlsxBytes(t, [][]any{
		{"No. Pesanan", "No. Resi", "Waktu Pesanan Dibuat", "Nomor Referensi SKU", "Nama Variasi", "Jumlah", "Harga Awal", "Total Pembayaran"},
		{"ORD1", "RESI1", "26-01-2024 10:15", "KAOS", "Hitam,XL", "2", "Rp 50.000", "Rp 120.000"},
		{"ORD1", "RESI1", "", "TOPI", "", "1", "20.000", ""},
		{"ORD2", "RESI2", "", "SEPATU", "", "1", "90.000", "90.000"},
	})
}

func multipartBody(t *testing.T, fileName string, content []byte, fields map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	if fileName != "" {
		part, err := w.CreateFormFile("file", fileName)
		require.NoError(t, err)
		_, err = part.Write(content)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return &buf, w.FormDataContentType()
}

func (e *testEnv) do(t *testing.T, method, path, user string, body io.Reader, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if user != "" {
		req.Header.Set(userHeader, user)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, into any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), into))
}

func TestUploadIngestsAndReconciles(t *testing.T) {
	env := newTestEnv(t)
	body, ct := multipartBody(t, "shopee_jan.xlsx", shopeeExport(t), map[string]string{"account_id": "acc-1", "account_name": "Toko"})

	rec := env.do(t, http.MethodPost, "/api/v1/uploads", "u1", body, ct)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var resp struct {
		Success bool                   `json:"success"`
		Data    pipeline.IngestResult `json:"data"`
	}
	decode(t, rec, &resp)
	assert.True(t, resp.Success)
	assert.Equal(t, internal.PlatformShopee, resp.Data.Platform)
	assert.Equal(t, 1, resp.Data.NewOrders)
	assert.Equal(t, 1, resp.Data.Invalid)

	stockLevels, err := env.db.FetchStock(context.Background(), "u1", []string{"KAOS-HITAM-XL", "TOPI-MERAH-ALL"})
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"KAOS-HITAM-XL": 8, "TOPI-MERAH-ALL": 2}, stockLevels)

	body, ct = multipartBody(t, "shopee_jan.xlsx", shopeeExport(t), nil)
	rec = env.do(t, http.MethodPost, "/api/v1/uploads", "u1", body, ct)
	require.Equal(t, http.StatusCreated, rec.Code)
	decode(t, rec, &resp)
	assert.Equal(t, 0, resp.Data.NewOrders)
	assert.Equal(t, 1, resp.Data.Skipped)
	assert.Equal(t, 1, resp.Data.Invalid)
}

func TestUploadErrorMapping(t *testing.T) {
	env := newTestEnv(t)
	cases := []struct {
		name     string
		user     string
		file     string
		content  []byte
		platform string
		status   int
		code     string
	}{
		{"missing user", "", "shopee.xlsx", shopeeExport(t), "", http.StatusUnauthorized, "USER_REQUIRED"},
		{"missing file", "u1", "", nil, "", http.StatusBadRequest, "FILE_REQUIRED"},
		{"header only", "u1", "shopee.csv", []byte("No. Pesanan,Jumlah\n"), "", http.StatusBadRequest, "EMPTY_FILE"},
		{"unknown platform", "u1", "orders.xlsx", shopeeExport(t), "", http.StatusBadRequest, "UNSUPPORTED_PLATFORM"},
		{"bad platform tag", "u1", "orders.xlsx", shopeeExport(t), "etsy", http.StatusBadRequest, "UNSUPPORTED_PLATFORM"},
		{"empty catalog", "u2", "shopee.xlsx", shopeeExport(t), "", http.StatusUnprocessableEntity, "EMPTY_CATALOG"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			body, ct := multipartBody(t, tc.file, tc.content, map[string]string{"platform": tc.platform})
			rec := env.do(t, http.MethodPost, "/api/v1/uploads", tc.user, body, ct)
			require.Equal(t, tc.status, rec.Code, rec.Body.String())
			var resp ErrorResponse
			decode(t, rec, &resp)
			assert.Equal(t, tc.code, resp.Error.Code)
		})
	}
}

func TestUploadConflictWhileLocked(t *testing.T) {
	env := newTestEnv(t)
	release, err := env.locker.Acquire(context.Background(), "ingest:u1")
	require.NoError(t, err)
	defer release()

	body, ct := multipartBody(t, "shopee.xlsx", shopeeExport(t), nil)
	rec := env.do(t, http.MethodPost, "/api/v1/uploads", "u1", body, ct)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestPreviewEndpoint(t *testing.T) {
	env := newTestEnv(t)
	body, ct := multipartBody(t, "export.xlsx", shopeeExport(t), map[string]string{"platform": "a"})
	rec := env.do(t, http.MethodPost, "/api/v1/uploads/preview", "u1", body, ct)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp struct {
		Data pipeline.Preview `json:"data"`
	}
	decode(t, rec, &resp)
	require.Len(t, resp.Data.Rows, 3)
	assert.Equal(t, []string{"SEPATU"}, resp.Data.MissingSKUs)
	assert.Equal(t, pipeline.ProductNew, resp.Data.Rows[2].Product)

	stockLevels, err := env.db.FetchStock(context.Background(), "u1", []string{"KAOS-HITAM-XL"})
	require.NoError(t, err)
	assert.Equal(t, 10, stockLevels["KAOS-HITAM-XL"])
}

func TestCatalogImportAndList(t *testing.T) {
	env := newTestEnv(t)
	sheet := xlsxBytes(t, [][]any{
		{"sku", "name", "color", "size", "cost_price", "category", "stock"},
		{"jaket", "Jaket", "navy", "m", "120000", "outer", 4},
	})
	body, ct := multipartBody(t, "catalog.xlsx", sheet, nil)
	rec := env.do(t, http.MethodPost, "/api/v1/catalog/import", "u3", body, ct)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var imported struct {
		Data catalog.ImportResult `json:"data"`
	}
	decode(t, rec, &imported)
	assert.Equal(t, 1, imported.Data.Created)

	rec = env.do(t, http.MethodGet, "/api/v1/catalog", "u3", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var listed struct {
		Data []internal.CatalogVariant `json:"data"`
	}
	decode(t, rec, &listed)
	require.Len(t, listed.Data, 1)
	assert.Equal(t, "JAKET-NAVY-M", listed.Data[0].SKUVariant)
	assert.Equal(t, 4, listed.Data[0].Stock)

	rec = env.do(t, http.MethodGet, "/api/v1/catalog", "nobody", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"success":true,"data":[]}`, rec.Body.String())
}

func TestStockAdjustmentEndpoints(t *testing.T) {
	env := newTestEnv(t)
	post := func(body string) *httptest.ResponseRecorder {
		return env.do(t, http.MethodPost, "/api/v1/stock/adjustments", "u1", strings.NewReader(body), "application/json")
	}

	rec := post(`{"sku":"TOPI-MERAH-ALL","type":"in","quantity":2,"reason":"restock"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = post(`{"sku":"TOPI-MERAH-ALL","type":"out","quantity":9}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = post(`{"sku":"TOPI-MERAH-ALL","type":"sideways","quantity":1}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = post(`{"sku":"NOPE","type":"in","quantity":1}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = post(`not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/v1/stock/history?limit=5", "u1", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var history struct {
		Data []internal.StockMovement `json:"data"`
	}
	decode(t, rec, &history)
	require.Len(t, history.Data, 1)
	assert.Equal(t, 5, history.Data[0].NewStock)

	rec = env.do(t, http.MethodGet, "/api/v1/stock/history?limit=-1", "u1", nil, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealthAndMetrics(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodGet, "/healthz", "", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)

	env.do(t, http.MethodGet, "/api/v1/catalog", "u1", nil, "")
	rec = env.do(t, http.MethodGet, "/metrics", "", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `omnistock_http_requests_total{method="GET",route="/api/v1/catalog",status="200"} 1`)
}

func TestClassify(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{&pipeline.StorageError{Stage: pipeline.StageInsertOrders, Err: errors.New("x")}, http.StatusInternalServerError},
		{&pipeline.StockReconciliationError{Failed: map[string]error{"A": errors.New("x")}}, http.StatusInternalServerError},
		{&pipeline.StockReconciliationError{Failed: map[string]error{"SKU1-RED-M": internal.ErrVariantNotFound}}, http.StatusInternalServerError},
		{&pipeline.StorageError{Stage: pipeline.StageInsertOrders, Err: internal.ErrVariantNotFound}, http.StatusInternalServerError},
		{fmt.Errorf("adjust: %w", internal.ErrVariantNotFound), http.StatusNotFound},
		{errors.New("boom"), http.StatusInternalServerError},
		{internal.ErrIngestionInProgress, http.StatusConflict},
	}
	for _, tc := range cases {
		status, _ := classify(tc.err)
		assert.Equal(t, tc.status, status, tc.err.Error())
	}
}

func TestUploadOverLimitIsRejected(t *testing.T) {
	env := newTestEnv(t, func(d *Deps) { d.MaxUploadBytes = 64 })
	csv := []byte("Order ID,Seller SKU,Quantity,SKU Price\nT1,KAOS-HITAM-XL,1,50000\nT2,KAOS-HITAM-XL,1,50000\n")
	require.Greater(t, len(csv), 64)

	body, ct := multipartBody(t, "tiktok_orders.csv", csv, nil)
	rec := env.do(t, http.MethodPost, "/api/v1/uploads", "u1", body, ct)
	require.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "FILE_TOO_LARGE", resp.Error.Code)

	stock, err := env.db.FetchStock(context.Background(), "u1", []string{"KAOS-HITAM-XL"})
	require.NoError(t, err)
	assert.Equal(t, 10, stock["KAOS-HITAM-XL"])
}
