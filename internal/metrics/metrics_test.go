package metrics

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func gather(t *testing.T, reg *prometheus.Registry, name string) []*dto.Metric {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() == name {
			return mf.GetMetric()
		}
	}
	t.Fatalf("metric %s not found", name)
	return nil
}

func labelValue(m *dto.Metric, name string) string {
	for _, lp := range m.GetLabel() {
		if lp.GetName() == name {
			return lp.GetValue()
		}
	}
	return ""
}

func TestRecordCacheHit_ByYearKind(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordCacheHit(2023, false)
	c.RecordCacheHit(2022, false)
	c.RecordCacheHit(2024, true)

	got := map[string]float64{}
	for _, m := range gather(t, reg, "yearbook_cache_hits_total") {
		got[labelValue(m, "year_kind")] = m.GetCounter().GetValue()
	}
	assert.Equal(t, map[string]float64{"past": 2, "current": 1}, got)
}

func TestRecordReconciled_IgnoresZero(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordReconciled("year_stats", 0)
	c.RecordReconciled("year_stats", 2)

	metrics := gather(t, reg, "yearbook_reconciled_rows_total")
	require.Len(t, metrics, 1)
	assert.Equal(t, float64(2), metrics[0].GetCounter().GetValue())
}

func TestRecordProviderFetch_Outcome(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordProviderFetch("public", 10*time.Millisecond, nil)
	c.RecordProviderFetch("public", 20*time.Millisecond, errors.New("boom"))

	got := map[string]float64{}
	for _, m := range gather(t, reg, "yearbook_provider_fetches_total") {
		got[labelValue(m, "outcome")] = m.GetCounter().GetValue()
	}
	assert.Equal(t, map[string]float64{"success": 1, "failure": 1}, got)

	latency := gather(t, reg, "yearbook_provider_fetch_seconds")
	require.Len(t, latency, 1)
	assert.Equal(t, uint64(2), latency[0].GetHistogram().GetSampleCount())
}

func TestHandler_ServesMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)
	c.RecordRangeRequest(2, nil)

	srv := httptest.NewServer(Handler(reg))
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "yearbook_range_requests_total")
	assert.Contains(t, string(body), "yearbook_range_years")
}

func TestNop_SatisfiesRecorder(t *testing.T) {
	var r Recorder = Nop{}
	r.RecordCacheMiss(MissAbsent)
	r.RecordRangeRequest(3, errors.New("x"))
}
