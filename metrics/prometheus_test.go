package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"runtime"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsHandlerExposesValuationSeries(t *testing.T) {
	m := NewMetrics("valuation")
	m.RegisterBuildInfo("valuation", "")
	m.RegisterBuildInfo("valuation", "v2")

	m.RequestsTotal.WithLabelValues("binomial", "american", "ok").Inc()
	m.RequestDuration.WithLabelValues("binomial").Observe(0.01)
	m.CacheHits.WithLabelValues("binomial").Add(2)

	assert.InDelta(t, 1, testutil.ToFloat64(m.RequestsTotal.WithLabelValues("binomial", "american", "ok")), 0)
	assert.InDelta(t, 2, testutil.ToFloat64(m.CacheHits.WithLabelValues("binomial")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.BuildInfo.WithLabelValues("valuation", "unknown", revision(), runtime.Version())), 0)

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	text := string(body)
	assert.Contains(t, text, `valuation_requests_total{method="binomial",status="ok",style="american"} 1`)
	assert.Contains(t, text, "valuation_duration_seconds_bucket")
	assert.Contains(t, text, `valuation_build_info{go_version="`+runtime.Version()+`"`)
	assert.Contains(t, text, "go_goroutines")
}

func TestMetricsRejectsDuplicateRegistration(t *testing.T) {
	m := NewMetrics("valuation")
	g := m.NewGauge(prometheus.GaugeOpts{Name: "pool_size"})
	g.Set(3)
	assert.InDelta(t, 3, testutil.ToFloat64(g), 0)

	assert.Panics(t, func() {
		m.NewGauge(prometheus.GaugeOpts{Name: "pool_size"})
	})
	assert.NotNil(t, m.Registry())
}
