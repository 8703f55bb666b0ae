package observability

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mpesapool/internal/ledger"
)

func TestObservePool(t *testing.T) {
	m := NewMetrics("test")
	m.ObservePool(ledger.Pool{
		TotalBalance:    ledger.NewAmount(596),
		TotalShares:     ledger.NewAmount(1000),
		ReservedBalance: ledger.NewAmount(0),
	}, 2)

	assert.Equal(t, 596.0, testutil.ToFloat64(m.TotalBalance))
	assert.Equal(t, 1000.0, testutil.ToFloat64(m.TotalShares))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.ReservedBalance))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.OpenClaims))
}

func TestMetricsAreIsolatedPerInstance(t *testing.T) {
	a := NewMetrics("test")
	b := NewMetrics("test")

	a.SubmissionsApplied.WithLabelValues("contribute").Inc()
	assert.Equal(t, 1.0, testutil.ToFloat64(a.SubmissionsApplied.WithLabelValues("contribute")))
	assert.Equal(t, 0.0, testutil.ToFloat64(b.SubmissionsApplied.WithLabelValues("contribute")))
}

func TestHandlerServesRegistry(t *testing.T) {
	m := NewMetrics("test")
	m.BlocksApplied.Inc()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	require.Equal(t, 200, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "test_executor_blocks_applied_total 1"))
}
