package catalog

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"omnistock/internal"
	"omnistock/internal/sheet"
	"omnistock/internal/util"
)

const importBatchSize = 200

type Store interface {
	FetchCatalog(ctx context.Context, userID string) ([]internal.CatalogVariant, error)
	UpsertVariants(ctx context.Context, userID string, variants []internal.CatalogVariant) (created, updated int, err error)
	SetMetadata(ctx context.Context, key, value string) error
}

type Service struct {
	store  Store
	logger *logrus.Entry
}

func NewService(store Store, logger *logrus.Logger) *Service {
	return &Service{store: store, logger: logger.WithField("component", "catalog")}
}

type ImportRequest struct {
	UserID     string
	FileName   string
	Content    []byte
	OnProgress func(done, total int)
}

type ImportRowError struct {
	Row     int    `json:"row"`
	SKU     string `json:"sku,omitempty"`
	Message string `json:"message"`
}

type ImportResult struct {
	TotalRows int              `json:"totalRows"`
	Created   int              `json:"created"`
	Updated   int              `json:"updated"`
	Failed    int              `json:"failed"`
	Errors    []ImportRowError `json:"errors"`
}

func (s *Service) List(ctx context.Context, userID string) ([]internal.CatalogVariant, error) {
	return s.store.FetchCatalog(ctx, userID)
}

// Import upserts catalog variants from a spreadsheet. Stock is only taken for new variants.
func (s *Service) Import(ctx context.Context, req ImportRequest) (ImportResult, error) {
	rows, err := sheet.Decode(req.FileName, req.Content)
	if err != nil {
		return ImportResult{}, fmt.Errorf("%w: %s: %w", internal.ErrUnreadableFile, req.FileName, err)
	}
	if len(rows) < 2 {
		return ImportResult{}, internal.ErrEmptyFile
	}

	variants, rowErrors := ParseVariants(req.UserID, rows)
	result := ImportResult{TotalRows: len(rows) - 1, Failed: len(rowErrors), Errors: rowErrors}

	for start := 0; start < len(variants); start += importBatchSize {
		end := min(start+importBatchSize, len(variants))
		created, updated, err := s.store.UpsertVariants(ctx, req.UserID, variants[start:end])
		if err != nil {
			return result, fmt.Errorf("upsert variants %d-%d: %w", start, end, err)
		}
		result.Created += created
		result.Updated += updated
		if req.OnProgress != nil {
			req.OnProgress(end, len(variants))
		}
	}

	_ = s.store.SetMetadata(ctx, "catalog.last_import."+req.UserID, time.Now().UTC().Format(time.RFC3339))
	s.logger.WithFields(logrus.Fields{
		"user_id": req.UserID,
		"file":    req.FileName,
		"created": result.Created,
		"updated": result.Updated,
		"failed":  result.Failed,
	}).Info("catalog import finished")
	return result, nil
}

var catalogHeaders = map[string][]string{
	"sku":        {"sku", "sku induk", "parent sku"},
	"name":       {"name", "nama", "nama produk", "product name"},
	"color":      {"color", "warna"},
	"size":       {"size", "ukuran"},
	"cost_price": {"cost_price", "cost price", "harga modal"},
	"category":   {"category", "kategori"},
	"stock":      {"stock", "stok"},
}

// ParseVariants maps catalog sheet rows to variants, collecting per-row problems.
func ParseVariants(userID string, rows [][]any) ([]internal.CatalogVariant, []ImportRowError) {
	if len(rows) == 0 {
		return nil, nil
	}
	columns := map[string]int{}
	for i, cell := range rows[0] {
		header := util.CellString(util.NormalizeHeaderCell(cell))
		for field, spellings := range catalogHeaders {
			if _, seen := columns[field]; seen {
				continue
			}
			for _, spelling := range spellings {
				if header == spelling {
					columns[field] = i
				}
			}
		}
	}

	get := func(row []any, field string) string {
		idx, ok := columns[field]
		if !ok || idx >= len(row) {
			return ""
		}
		return strings.TrimSpace(util.CellString(row[idx]))
	}

	seen := map[string]int{}
	var out []internal.CatalogVariant
	var errs []ImportRowError
	for i, row := range rows[1:] {
		rowNo := i + 2
		sku, name := get(row, "sku"), get(row, "name")
		if sku == "" && name == "" && get(row, "color") == "" {
			continue
		}
		if sku == "" || name == "" {
			errs = append(errs, ImportRowError{Row: rowNo, SKU: sku, Message: "sku and name are required"})
			continue
		}

		variant := internal.CatalogVariant{
			UserID:   userID,
			SKU:      strings.ToUpper(sku),
			Name:     name,
			Color:    strings.ToUpper(get(row, "color")),
			Size:     strings.ToUpper(get(row, "size")),
			Category: get(row, "category"),
		}
		variant.SKUVariant = GenerateVariantSKU(variant.SKU, variant.Color, variant.Size)

		if first, dup := seen[variant.SKUVariant]; dup {
			errs = append(errs, ImportRowError{Row: rowNo, SKU: variant.SKUVariant, Message: fmt.Sprintf("duplicate of row %d", first)})
			continue
		}

		cost := decimal.Zero
		if raw := get(row, "cost_price"); raw != "" {
			parsed, err := util.ParseLocaleCurrency(raw)
			if err != nil || parsed.IsNegative() {
				errs = append(errs, ImportRowError{Row: rowNo, SKU: variant.SKUVariant, Message: "invalid cost price"})
				continue
			}
			cost = parsed
		}
		variant.CostPrice = cost

		if raw := get(row, "stock"); raw != "" {
			stock, err := util.ParseQuantity(raw)
			if err != nil || stock < 0 {
				errs = append(errs, ImportRowError{Row: rowNo, SKU: variant.SKUVariant, Message: "invalid stock"})
				continue
			}
			variant.Stock = stock
		}

		seen[variant.SKUVariant] = rowNo
		out = append(out, variant)
	}
	return out, errs
}
