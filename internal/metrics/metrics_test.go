package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRegistriesAreIndependent(t *testing.T) {
	a, b := NewRegistry(), NewRegistry()
	a.OrdersIngested.Add(3)
	if got := testutil.ToFloat64(a.OrdersIngested); got != 3 {
		t.Fatalf("a = %v", got)
	}
	if got := testutil.ToFloat64(b.OrdersIngested); got != 0 {
		t.Fatalf("b = %v", got)
	}
}

func TestHandlerExposesCollectors(t *testing.T) {
	r := NewRegistry()
	r.IngestRuns.WithLabelValues("shopee", "ok").Inc()
	r.ManualMovements.WithLabelValues("in").Inc()

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	for _, want := range []string{
		`omnistock_ingest_runs_total{outcome="ok",platform="shopee"} 1`,
		`omnistock_stock_manual_movements_total{type="in"} 1`,
		"go_goroutines",
	} {
		if !strings.Contains(string(body), want) {
			t.Fatalf("missing %q in metrics output", want)
		}
	}
}
