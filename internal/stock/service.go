package stock

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"omnistock/internal"
	"omnistock/internal/events"
	"omnistock/internal/metrics"
	"omnistock/internal/storage"
	"omnistock/internal/util"
)

var ErrInvalidAdjustment = errors.New("invalid stock adjustment")

// Store is the part of storage manual adjustments touch.
type Store interface {
	AdjustStock(ctx context.Context, userID, sku string, mutate storage.StockMutator) (internal.StockMovement, error)
	ListStockMovements(ctx context.Context, userID string, limit int) ([]internal.StockMovement, error)
}

type Adjustment struct {
	UserID   string                `json:"-"`
	SKU      string                `json:"sku"`
	Type     internal.MovementType `json:"type"`
	Quantity int                   `json:"quantity"`
	Reason   string                `json:"reason"`
	Notes    string                `json:"notes"`
}

type Service struct {
	store     Store
	publisher events.Publisher
	metrics   *metrics.Registry
	logger    *logrus.Entry
}

func NewService(store Store, publisher events.Publisher, m *metrics.Registry, logger *logrus.Logger) *Service {
	if publisher == nil {
		publisher = events.Noop{}
	}
	if m == nil {
		m = metrics.NewRegistry()
	}
	return &Service{
		store:     store,
		publisher: publisher,
		metrics:   m,
		logger:    logger.WithField("component", "stock.adjust"),
	}
}

func (a Adjustment) validate() error {
	switch {
	case strings.TrimSpace(a.UserID) == "":
		return fmt.Errorf("%w: user is required", ErrInvalidAdjustment)
	case strings.TrimSpace(a.SKU) == "":
		return fmt.Errorf("%w: sku is required", ErrInvalidAdjustment)
	case a.Type != internal.MovementIn && a.Type != internal.MovementOut:
		return fmt.Errorf("%w: type must be in or out, got %q", ErrInvalidAdjustment, a.Type)
	case a.Quantity <= 0:
		return fmt.Errorf("%w: quantity must be positive", ErrInvalidAdjustment)
	}
	return nil
}

// Adjust applies a manual in/out movement. The stock write and its ledger row commit together.
func (s *Service) Adjust(ctx context.Context, adj Adjustment) (internal.StockMovement, error) {
	if err := adj.validate(); err != nil {
		return internal.StockMovement{}, err
	}
	sku := util.NormalizeSKU(adj.SKU)

	movement, err := s.store.AdjustStock(ctx, adj.UserID, sku, func(current internal.CatalogVariant) (internal.StockMovement, error) {
		next := current.Stock + adj.Quantity
		if adj.Type == internal.MovementOut {
			next = current.Stock - adj.Quantity
		}
		if next < 0 {
			return internal.StockMovement{}, fmt.Errorf("%w: %s has %d, requested %d", internal.ErrInsufficientStock, sku, current.Stock, adj.Quantity)
		}
		return internal.StockMovement{
			UserID:        adj.UserID,
			SKUVariant:    current.SKUVariant,
			ProductName:   current.Name,
			Type:          adj.Type,
			Quantity:      adj.Quantity,
			PreviousStock: current.Stock,
			NewStock:      next,
			Reason:        adj.Reason,
			Notes:         adj.Notes,
			CreatedAt:     time.Now().UTC(),
		}, nil
	})
	if err != nil {
		return internal.StockMovement{}, err
	}

	s.metrics.ManualMovements.WithLabelValues(string(adj.Type)).Inc()
	if err := s.publisher.Publish(ctx, events.NewEvent(events.SubjectStockAdjusted, adj.UserID, movement)); err != nil {
		s.logger.WithError(err).Warn("publish stock.adjusted failed")
	}
	s.logger.WithFields(logrus.Fields{
		"user_id": adj.UserID,
		"sku":     movement.SKUVariant,
		"type":    movement.Type,
		"from":    movement.PreviousStock,
		"to":      movement.NewStock,
	}).Info("stock adjusted")
	return movement, nil
}

// History returns the newest movements first.
func (s *Service) History(ctx context.Context, userID string, limit int) ([]internal.StockMovement, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, fmt.Errorf("%w: user is required", ErrInvalidAdjustment)
	}
	return s.store.ListStockMovements(ctx, userID, limit)
}
