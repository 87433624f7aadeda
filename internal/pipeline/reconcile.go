package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"omnistock/internal"
	"omnistock/internal/events"
	"omnistock/internal/metrics"
)

const defaultStockConcurrency = 8

// StockStore is the slice of storage the reconciler needs.
type StockStore interface {
	FetchStock(ctx context.Context, userID string, skus []string) (map[string]int, error)
	UpdateVariantStock(ctx context.Context, userID, sku string, newStock int) error
	InsertStockMovement(ctx context.Context, m internal.StockMovement) error
}

// Reconciler subtracts sold quantities from variant stock.
type Reconciler struct {
	store       StockStore
	publisher   events.Publisher
	metrics     *metrics.Registry
	logger      *logrus.Entry
	concurrency int
	now         func() time.Time
}

func NewReconciler(store StockStore, publisher events.Publisher, m *metrics.Registry, logger *logrus.Logger, concurrency int) *Reconciler {
	if publisher == nil {
		publisher = events.Noop{}
	}
	if m == nil {
		m = metrics.NewRegistry()
	}
	if concurrency <= 0 {
		concurrency = defaultStockConcurrency
	}
	return &Reconciler{
		store:       store,
		publisher:   publisher,
		metrics:     m,
		logger:      logger.WithField("component", "stock.reconciler"),
		concurrency: concurrency,
		now:         time.Now,
	}
}

// AggregateDeltas sums quantities per variant SKU. SKUs come back in first-seen order.
func AggregateDeltas(items []internal.LineItemRecord) (map[string]int, []string) {
	deltas := map[string]int{}
	var skus []string
	for _, it := range items {
		if _, ok := deltas[it.SKUVariant]; !ok {
			skus = append(skus, it.SKUVariant)
		}
		deltas[it.SKUVariant] += it.Quantity
	}
	return deltas, skus
}

// Reconcile applies one aggregated decrement per variant. Stock may go negative.
// Every variant is attempted; failures are collected into a StockReconciliationError.
func (r *Reconciler) Reconcile(ctx context.Context, userID, uploadID string, items []internal.LineItemRecord) error {
	deltas, skus := AggregateDeltas(items)
	if len(skus) == 0 {
		return nil
	}
	names := make(map[string]string, len(skus))
	for _, it := range items {
		if _, ok := names[it.SKUVariant]; !ok {
			names[it.SKUVariant] = it.ProductName
		}
	}

	current, err := r.store.FetchStock(ctx, userID, skus)
	if err != nil {
		failed := make(map[string]error, len(skus))
		for _, sku := range skus {
			failed[sku] = fmt.Errorf("read stock: %w", err)
		}
		r.metrics.StockFailures.Add(float64(len(skus)))
		return &StockReconciliationError{Failed: failed}
	}

	var (
		mu     sync.Mutex
		failed = map[string]error{}
		g      errgroup.Group
	)
	fail := func(sku string, err error) {
		mu.Lock()
		failed[sku] = err
		mu.Unlock()
		r.metrics.StockFailures.Inc()
	}

	g.SetLimit(r.concurrency)
	for _, sku := range skus {
		g.Go(func() error {
			previous, ok := current[sku]
			if !ok {
				fail(sku, internal.ErrVariantNotFound)
				return nil
			}
			next := previous - deltas[sku]
			if err := r.store.UpdateVariantStock(ctx, userID, sku, next); err != nil {
				fail(sku, err)
				return nil
			}
			r.metrics.StockUpdates.Inc()

			movement := internal.StockMovement{
				ID:            uuid.NewString(),
				UserID:        userID,
				SKUVariant:    sku,
				ProductName:   names[sku],
				Type:          internal.MovementSale,
				Quantity:      deltas[sku],
				PreviousStock: previous,
				NewStock:      next,
				Reason:        "marketplace order",
				Notes:         "upload " + uploadID,
				CreatedAt:     r.now().UTC(),
			}
			if err := r.store.InsertStockMovement(ctx, movement); err != nil {
				r.logger.WithError(err).WithField("sku", sku).Warn("stock history not recorded")
			}

			if next < 0 {
				r.metrics.NegativeStock.Inc()
				r.logger.WithFields(logrus.Fields{"sku": sku, "stock": next, "user_id": userID}).Warn("stock below zero")
				event := events.NewEvent(events.SubjectStockNegative, userID, events.NegativeStock{SKUVariant: sku, Stock: next})
				if err := r.publisher.Publish(ctx, event); err != nil {
					r.logger.WithError(err).Warn("negative stock event not published")
				}
			}
			return nil
		})
	}
	_ = g.Wait()

	if len(failed) > 0 {
		return &StockReconciliationError{Failed: failed}
	}
	return nil
}
