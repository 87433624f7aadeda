package pipeline

import (
	"context"

	"omnistock/internal"
)

type ProductStatus string

const (
	ProductOK         ProductStatus = "ok"
	ProductAmbiguous  ProductStatus = "ambiguous"
	ProductNew        ProductStatus = "new"
	ProductMissingSKU ProductStatus = "missing_sku"
)

type DuplicateStatus string

const (
	OrderUnique    DuplicateStatus = "unique"
	OrderDuplicate DuplicateStatus = "duplicate"
)

type RowPreview struct {
	Row        int                `json:"row"`
	OrderSN    string             `json:"orderSn"`
	SKU        string             `json:"sku"`
	Variation  string             `json:"variation,omitempty"`
	Quantity   int                `json:"quantity"`
	Price      string             `json:"price"`
	MatchedSKU string             `json:"matchedSku,omitempty"`
	Tier       internal.MatchTier `json:"tier"`
	Product    ProductStatus      `json:"product"`
	Duplicate  DuplicateStatus    `json:"duplicate"`
	Problem    RowProblem         `json:"problem,omitempty"`
}

type Preview struct {
	Platform    internal.Platform `json:"platform"`
	Rows        []RowPreview      `json:"rows"`
	MissingSKUs []string          `json:"missingSkus"`
	NewOrders   int               `json:"newOrders"`
	Skipped     int               `json:"skipped"`
	Invalid     int               `json:"invalid"`
}

// Preview reports per-row match and duplicate status without writing anything.
func (s *Service) Preview(ctx context.Context, req IngestRequest) (Preview, error) {
	p, err := s.prepare(ctx, req)
	if err != nil {
		return Preview{}, err
	}
	return BuildPreview(p.adapter, p.rows, p.existing), nil
}

func BuildPreview(adapter *Adapter, rows []internal.RawRow, existing OrderIDSet) Preview {
	out := Preview{Platform: adapter.Platform(), MissingSKUs: []string{}}
	missing := map[string]struct{}{}
	for _, row := range rows {
		o := adapter.EvaluateRow(row)
		if o.OrderSN == "" {
			continue
		}
		rp := RowPreview{
			Row:       row.Number,
			OrderSN:   o.OrderSN,
			SKU:       o.SKU,
			Variation: o.Variation,
			Quantity:  o.Quantity,
			Price:     o.PriceText,
			Tier:      o.Match.Tier,
			Problem:   o.Problem,
			Duplicate: OrderUnique,
		}
		if existing.Contains(o.OrderSN) {
			rp.Duplicate = OrderDuplicate
		}
		if o.Match.Variant != nil {
			rp.MatchedSKU = o.Match.Variant.SKUVariant
		}
		switch {
		case o.SKU == "":
			rp.Product = ProductMissingSKU
		case o.Match.Status == internal.MatchNotFound:
			rp.Product = ProductNew
			if _, seen := missing[o.SKU]; !seen {
				missing[o.SKU] = struct{}{}
				out.MissingSKUs = append(out.MissingSKUs, o.SKU)
			}
		case o.Match.Status == internal.MatchReview:
			rp.Product = ProductAmbiguous
		default:
			rp.Product = ProductOK
		}
		out.Rows = append(out.Rows, rp)
	}

	res := adapter.Process(rows, existing)
	out.NewOrders = len(res.NewOrders)
	out.Skipped = res.Skipped
	out.Invalid = res.Invalid
	return out
}
