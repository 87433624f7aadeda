package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry owns every omnistock collector. Each instance has its own prometheus registry.
type Registry struct {
	reg *prometheus.Registry

	IngestRuns      *prometheus.CounterVec
	IngestDuration  prometheus.Histogram
	OrdersIngested  prometheus.Counter
	OrdersSkipped   prometheus.Counter
	OrdersInvalid   prometheus.Counter
	StockUpdates    prometheus.Counter
	StockFailures   prometheus.Counter
	NegativeStock   prometheus.Counter
	ManualMovements *prometheus.CounterVec
	HTTPRequests    *prometheus.CounterVec
}

func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()
	r := &Registry{
		reg: reg,
		IngestRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "omnistock_ingest_runs_total",
			Help: "Order file ingestions by outcome.",
		}, []string{"platform", "outcome"}),
		IngestDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "omnistock_ingest_duration_seconds",
			Help:    "Wall time of one ingestion.",
			Buckets: prometheus.DefBuckets,
		}),
		OrdersIngested: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "omnistock_orders_ingested_total",
			Help: "Orders persisted from marketplace files.",
		}),
		OrdersSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "omnistock_orders_skipped_total",
			Help: "Orders skipped because they were already recorded.",
		}),
		OrdersInvalid: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "omnistock_orders_invalid_total",
			Help: "Orders rejected because a line item failed validation.",
		}),
		StockUpdates: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "omnistock_stock_updates_total",
			Help: "Variant stock levels updated by reconciliation.",
		}),
		StockFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "omnistock_stock_update_failures_total",
			Help: "Variant stock updates that failed during reconciliation.",
		}),
		NegativeStock: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "omnistock_stock_negative_total",
			Help: "Reconciliations that left a variant below zero.",
		}),
		ManualMovements: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "omnistock_stock_manual_movements_total",
			Help: "Manual stock adjustments by type.",
		}, []string{"type"}),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "omnistock_http_requests_total",
			Help: "HTTP requests by route and status.",
		}, []string{"method", "route", "status"}),
	}
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		r.IngestRuns, r.IngestDuration,
		r.OrdersIngested, r.OrdersSkipped, r.OrdersInvalid,
		r.StockUpdates, r.StockFailures, r.NegativeStock,
		r.ManualMovements, r.HTTPRequests,
	)
	return r
}

func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}
