package pipeline

import (
	"fmt"
	"sort"
	"strings"
)

const (
	StageFetchCatalog  = "fetch_catalog"
	StageFetchOrderIDs = "fetch_order_ids"
	StageInsertUpload  = "insert_upload"
	StageInsertOrders  = "insert_orders"
	StageInsertItems   = "insert_line_items"
	StageCommit        = "commit"
)

// StorageError reports a failed read or write together with what was being persisted.
type StorageError struct {
	Stage    string
	UserID   string
	UploadID string
	OrderSNs []string
	Err      error
}

func (e *StorageError) Error() string {
	msg := fmt.Sprintf("storage %s failed for user %s", e.Stage, e.UserID)
	if e.UploadID != "" {
		msg += " upload " + e.UploadID
	}
	if n := len(e.OrderSNs); n > 0 {
		msg += fmt.Sprintf(" (%d orders)", n)
	}
	return msg + ": " + e.Err.Error()
}

func (e *StorageError) Unwrap() error { return e.Err }

// StockReconciliationError lists every variant whose stock could not be updated.
// Line items were already persisted when it is returned.
type StockReconciliationError struct {
	Failed map[string]error
}

func (e *StockReconciliationError) SKUs() []string {
	skus := make([]string, 0, len(e.Failed))
	for sku := range e.Failed {
		skus = append(skus, sku)
	}
	sort.Strings(skus)
	return skus
}

func (e *StockReconciliationError) Error() string {
	skus := e.SKUs()
	parts := make([]string, 0, len(skus))
	for _, sku := range skus {
		parts = append(parts, sku+": "+e.Failed[sku].Error())
	}
	return fmt.Sprintf("stock update failed for %d variants: %s", len(skus), strings.Join(parts, "; "))
}

func (e *StockReconciliationError) Unwrap() []error {
	out := make([]error, 0, len(e.Failed))
	for _, sku := range e.SKUs() {
		out = append(out, e.Failed[sku])
	}
	return out
}
