package internal

import (
	"time"

	"github.com/shopspring/decimal"
)

type Platform string

const (
	PlatformShopee Platform = "shopee"
	PlatformLazada Platform = "lazada"
	PlatformTikTok Platform = "tiktok"
)

type MatchStatus string

type MatchTier string

const (
	MatchOK       MatchStatus = "OK"
	MatchReview   MatchStatus = "REVIEW"
	MatchNotFound MatchStatus = "NOT_FOUND"

	TierNone            MatchTier = "none"
	TierDirect          MatchTier = "direct"
	TierSingleCandidate MatchTier = "single_candidate"
	TierPrefix          MatchTier = "prefix"
	TierVariation       MatchTier = "variation"
	TierParentFallback  MatchTier = "parent_fallback"
)

// CatalogVariant is one sellable color/size combination of a product.
type CatalogVariant struct {
	ID         string          `json:"id"`
	UserID     string          `json:"userId"`
	SKU        string          `json:"sku"`
	SKUVariant string          `json:"skuVariant"`
	Name       string          `json:"name"`
	Color      string          `json:"color"`
	Size       string          `json:"size"`
	CostPrice  decimal.Decimal `json:"costPrice"`
	Category   string          `json:"category"`
	Stock      int             `json:"stock"`
}

type MatchResult struct {
	Status     MatchStatus     `json:"status"`
	Tier       MatchTier       `json:"tier"`
	Variant    *CatalogVariant `json:"variant"`
	Candidates int             `json:"candidates"`
}

// RawRow is one decoded data row keyed by normalized header.
type RawRow struct {
	Number int
	Values map[string]any
}

type GroupedOrder struct {
	OrderSN        string
	TrackingNumber string
	CreatedAt      *time.Time
	Total          decimal.Decimal
	Rows           []RawRow
}

type ValidatedLineItem struct {
	SKUVariant  string          `json:"skuVariant"`
	ProductName string          `json:"productName"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unitPrice"`
}

type ValidatedOrder struct {
	OrderSN        string              `json:"orderSn"`
	TrackingNumber string              `json:"trackingNumber"`
	CreatedAt      *time.Time          `json:"createdAt"`
	Items          []ValidatedLineItem `json:"items"`
	Total          decimal.Decimal     `json:"total"`
}

type StoreAccount struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Platform Platform `json:"platform,omitempty"`
}

type UploadBatch struct {
	ID           string
	UserID       string
	FileName     string
	Platform     Platform
	Account      StoreAccount
	UploadDate   time.Time
	TotalOrders  int
	TotalRevenue decimal.Decimal
}

type OrderRecord struct {
	UserID   string
	UploadID string
	Platform Platform
	Account  StoreAccount
	Order    ValidatedOrder
}

type LineItemRecord struct {
	OrderID     string
	UserID      string
	OrderSN     string
	SKUVariant  string
	ProductName string
	Quantity    int
	UnitPrice   decimal.Decimal
}

type MovementType string

const (
	MovementIn   MovementType = "in"
	MovementOut  MovementType = "out"
	MovementSale MovementType = "sale"
)

type StockMovement struct {
	ID            string       `json:"id"`
	UserID        string       `json:"userId"`
	SKUVariant    string       `json:"skuVariant"`
	ProductName   string       `json:"productName"`
	Type          MovementType `json:"type"`
	Quantity      int          `json:"quantity"`
	PreviousStock int          `json:"previousStock"`
	NewStock      int          `json:"newStock"`
	Reason        string       `json:"reason"`
	Notes         string       `json:"notes"`
	CreatedAt     time.Time    `json:"createdAt"`
}

type IngestionRun struct {
	TraceID  string
	UserID   string
	Platform string
	FileName string
	UploadID string
	Timings  map[string]float64
	Counts   map[string]int
}

const (
	EmailFetched   = "fetched"
	EmailProcessed = "processed"
	EmailSkipped   = "skipped"
	EmailFailed    = "failed"
)

type EmailRow struct {
	ID         int
	Provider   string
	MessageID  string
	Subject    string
	Sender     string
	ReceivedAt string
	Hash       string
	Status     string
	RawRef     string
}

type FetchedMailMessage struct {
	Provider   string
	MessageID  string
	Subject    string
	From       string
	ReceivedAt string
	Raw        []byte
}
