package pipeline

import (
	"github.com/shopspring/decimal"

	"omnistock/internal"
	"omnistock/internal/platform"
)

// GroupRows collects rows per order id in encounter order. The first row of an
// order seeds its tracking number, creation date and declared total. Rows
// without an order id are dropped.
func GroupRows(rows []internal.RawRow, def platform.Definition) []internal.GroupedOrder {
	index := map[string]int{}
	var out []internal.GroupedOrder
	for _, row := range rows {
		orderSN := def.Text(row, platform.FieldOrderSN)
		if orderSN == "" {
			continue
		}
		idx, ok := index[orderSN]
		if !ok {
			total, err := def.Number(row, platform.FieldTotal)
			if err != nil {
				total = decimal.Zero
			}
			out = append(out, internal.GroupedOrder{
				OrderSN:        orderSN,
				TrackingNumber: def.Text(row, platform.FieldTracking),
				CreatedAt:      ParseDate(def.Value(row, platform.FieldCreatedAt)),
				Total:          total,
			})
			idx = len(out) - 1
			index[orderSN] = idx
		}
		out[idx].Rows = append(out[idx].Rows, row)
	}
	return out
}

// OrderIDSet holds the order ids already persisted for one user.
type OrderIDSet map[string]struct{}

func NewOrderIDSet(ids ...string) OrderIDSet {
	s := make(OrderIDSet, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

func (s OrderIDSet) Contains(orderSN string) bool {
	_, ok := s[orderSN]
	return ok
}
