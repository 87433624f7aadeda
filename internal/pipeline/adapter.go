package pipeline

import (
	"omnistock/internal"
	"omnistock/internal/catalog"
	"omnistock/internal/platform"
)

type RowProblem string

const (
	ProblemNone        RowProblem = ""
	ProblemMissingSKU  RowProblem = "missing_sku"
	ProblemNoMatch     RowProblem = "no_match"
	ProblemBadQuantity RowProblem = "bad_quantity"
	ProblemBadPrice    RowProblem = "bad_price"
)

// RowOutcome is the validation result of one order row.
type RowOutcome struct {
	Row       internal.RawRow
	OrderSN   string
	SKU       string
	Variation string
	PriceText string
	Match     internal.MatchResult
	Quantity  int
	Item      *internal.ValidatedLineItem
	Problem   RowProblem
}

type AdapterResult struct {
	NewOrders []internal.ValidatedOrder
	Skipped   int
	Invalid   int
}

// Adapter turns one platform's rows into validated orders.
type Adapter struct {
	def     platform.Definition
	matcher *Matcher
}

func NewAdapter(def platform.Definition, snapshot *catalog.Snapshot) *Adapter {
	return &Adapter{def: def, matcher: NewMatcher(snapshot)}
}

func (a *Adapter) Platform() internal.Platform { return a.def.Name }

// Process groups rows into orders, skips known order ids, and keeps only orders
// whose every line item validates.
func (a *Adapter) Process(rows []internal.RawRow, existing OrderIDSet) AdapterResult {
	var res AdapterResult
	for _, group := range GroupRows(rows, a.def) {
		if existing.Contains(group.OrderSN) {
			res.Skipped++
			continue
		}
		order, ok := a.validate(group)
		if !ok {
			res.Invalid++
			continue
		}
		res.NewOrders = append(res.NewOrders, order)
	}
	return res
}

func (a *Adapter) validate(group internal.GroupedOrder) (internal.ValidatedOrder, bool) {
	items := make([]internal.ValidatedLineItem, 0, len(group.Rows))
	for _, row := range group.Rows {
		out := a.EvaluateRow(row)
		if out.Item == nil {
			return internal.ValidatedOrder{}, false
		}
		items = append(items, *out.Item)
	}
	if len(items) == 0 {
		return internal.ValidatedOrder{}, false
	}
	return internal.ValidatedOrder{
		OrderSN:        group.OrderSN,
		TrackingNumber: group.TrackingNumber,
		CreatedAt:      group.CreatedAt,
		Items:          items,
		Total:          group.Total,
	}, true
}

// EvaluateRow matches and validates a single row without regard to its order.
func (a *Adapter) EvaluateRow(row internal.RawRow) RowOutcome {
	out := RowOutcome{
		Row:       row,
		OrderSN:   a.def.Text(row, platform.FieldOrderSN),
		SKU:       a.def.Text(row, platform.FieldSKU),
		PriceText: a.def.Text(row, platform.FieldPrice),
	}
	if _, ok := a.def.Fields[platform.FieldVariation]; ok {
		out.Variation = a.def.Text(row, platform.FieldVariation)
	}
	if out.SKU == "" {
		out.Match = notFound()
		out.Problem = ProblemMissingSKU
		return out
	}

	out.Match = a.matcher.Match(out.SKU, out.Variation)
	if out.Match.Variant == nil {
		out.Problem = ProblemNoMatch
		return out
	}

	qty, err := a.def.LineQuantity(row)
	if err != nil || qty <= 0 {
		out.Problem = ProblemBadQuantity
		return out
	}
	out.Quantity = qty

	price, err := a.def.Number(row, platform.FieldPrice)
	if err != nil || price.IsNegative() {
		out.Problem = ProblemBadPrice
		return out
	}

	out.Item = &internal.ValidatedLineItem{
		SKUVariant:  out.Match.Variant.SKUVariant,
		ProductName: out.Match.Variant.Name,
		Quantity:    qty,
		UnitPrice:   price,
	}
	return out
}
