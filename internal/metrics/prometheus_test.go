package metrics

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, 200, rec.Code)
	return rec.Body.String()
}

func TestRecorders(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.RecordHTTPRequest("GET", "/{tenant}/information", 200, 10*time.Millisecond)
	m.RecordHTTPRequest("GET", "/{tenant}/information", 200, 10*time.Millisecond)
	m.RecordManifest(true)
	m.RecordManifest(false)
	m.RecordManifest(false)
	m.RecordHashed(1024)
	m.RecordHashed(-1)
	m.RecordIntegrityCheck(false)
	m.RecordSearch(4)

	body := scrape(t, m)
	assert.Contains(t, body, `wingetpro_http_requests_total{method="GET",route="/{tenant}/information",status="200"} 2`)
	assert.Contains(t, body, `wingetpro_manifest_lookups_total{outcome="found"} 1`)
	assert.Contains(t, body, `wingetpro_manifest_lookups_total{outcome="absent"} 2`)
	assert.Contains(t, body, "wingetpro_installer_hashed_bytes_total 1024")
	assert.Contains(t, body, `wingetpro_installer_integrity_checks_total{result="mismatch"} 1`)
	assert.Contains(t, body, "wingetpro_search_results_count 1")
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordHTTPRequest("GET", "/", 200, time.Second)
		m.IncRequestsInFlight()
		m.DecRequestsInFlight()
		m.RecordSearch(3)
		m.RecordManifest(true)
		m.RecordHashed(10)
		m.RecordIntegrityCheck(true)
	})
}
