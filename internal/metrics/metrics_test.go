package metrics_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nft-rental-escrow/internal/metrics"
)

func TestMetrics(t *testing.T) {
	m := metrics.New()
	m.Operations.WithLabelValues("rent", "ok").Inc()
	m.Operations.WithLabelValues("rent", "ok").Inc()
	m.SchedulingFailures.Inc()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Operations.WithLabelValues("rent", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SchedulingFailures))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `rental_escrow_ledger_operations_total{instruction="rent",outcome="ok"} 2`)
}
