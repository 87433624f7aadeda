package events

import (
	"context"
	"time"

	"github.com/google/uuid"
)

const (
	SubjectIngestionCompleted = "omnistock.ingestion.completed"
	SubjectStockAdjusted      = "omnistock.stock.adjusted"
	SubjectStockNegative      = "omnistock.stock.negative"
)

type Event struct {
	ID         string    `json:"id"`
	Subject    string    `json:"subject"`
	UserID     string    `json:"userId"`
	OccurredAt time.Time `json:"occurredAt"`
	Data       any       `json:"data"`
}

func NewEvent(subject, userID string, data any) Event {
	return Event{
		ID:         uuid.NewString(),
		Subject:    subject,
		UserID:     userID,
		OccurredAt: time.Now().UTC(),
		Data:       data,
	}
}

type IngestionCompleted struct {
	TraceID   string `json:"traceId"`
	UploadID  string `json:"uploadId,omitempty"`
	Platform  string `json:"platform"`
	FileName  string `json:"fileName"`
	NewOrders int    `json:"newOrders"`
	Skipped   int    `json:"skipped"`
	Invalid   int    `json:"invalid"`
}

type NegativeStock struct {
	SKUVariant string `json:"skuVariant"`
	Stock      int    `json:"stock"`
}

// Publisher fans domain events out to subscribers. Publishing is best effort.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
	Close()
}

type Noop struct{}

func (Noop) Publish(context.Context, Event) error { return nil }
func (Noop) Close()                               {}
