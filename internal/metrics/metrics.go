// Package metrics exposes Prometheus metrics for the stats engine.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder is what the aggregator reports to
type Recorder interface {
	RecordCacheHit(year int, current bool)
	RecordCacheMiss(reason string)
	RecordReconciled(kind string, removed int)
	RecordProviderFetch(mode string, duration time.Duration, err error)
	RecordRangeRequest(years int, err error)
}

// Cache miss reasons
const (
	MissAbsent  = "absent"
	MissExpired = "expired"
	MissForced  = "forced"
)

// Collector records to Prometheus
type Collector struct {
	cacheHits       *prometheus.CounterVec
	cacheMisses     *prometheus.CounterVec
	reconciled      *prometheus.CounterVec
	providerFetches *prometheus.CounterVec
	providerLatency *prometheus.HistogramVec
	rangeRequests   *prometheus.CounterVec
	rangeYears      prometheus.Histogram
}

// NewCollector creates a Collector and registers its metrics with reg
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		cacheHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "yearbook_cache_hits_total",
			Help: "Year stats served from cache.",
		}, []string{"year_kind"}),
		cacheMisses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "yearbook_cache_misses_total",
			Help: "Year stats lookups that went to the provider.",
		}, []string{"reason"}),
		reconciled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "yearbook_reconciled_rows_total",
			Help: "Duplicate rows deleted during reconciliation.",
		}, []string{"kind"}),
		providerFetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "yearbook_provider_fetches_total",
			Help: "Provider fetches by mode and outcome.",
		}, []string{"mode", "outcome"}),
		providerLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "yearbook_provider_fetch_seconds",
			Help:    "Provider fetch latency in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"mode"}),
		rangeRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "yearbook_range_requests_total",
			Help: "Custom range requests by outcome.",
		}, []string{"outcome"}),
		rangeYears: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "yearbook_range_years",
			Help:    "Number of calendar years a range request spans.",
			Buckets: []float64{1, 2, 3, 5, 10},
		}),
	}

	reg.MustRegister(
		c.cacheHits,
		c.cacheMisses,
		c.reconciled,
		c.providerFetches,
		c.providerLatency,
		c.rangeRequests,
		c.rangeYears,
	)

	return c
}

// RecordCacheHit records a cache hit
func (c *Collector) RecordCacheHit(year int, current bool) {
	kind := "past"
	if current {
		kind = "current"
	}
	c.cacheHits.WithLabelValues(kind).Inc()
}

// RecordCacheMiss records a cache miss
func (c *Collector) RecordCacheMiss(reason string) {
	c.cacheMisses.WithLabelValues(reason).Inc()
}

// RecordReconciled records rows deleted while collapsing duplicates
func (c *Collector) RecordReconciled(kind string, removed int) {
	if removed <= 0 {
		return
	}
	c.reconciled.WithLabelValues(kind).Add(float64(removed))
}

// RecordProviderFetch records a provider call
func (c *Collector) RecordProviderFetch(mode string, duration time.Duration, err error) {
	c.providerFetches.WithLabelValues(mode, outcome(err)).Inc()
	c.providerLatency.WithLabelValues(mode).Observe(duration.Seconds())
}

// RecordRangeRequest records a decomposed range request
func (c *Collector) RecordRangeRequest(years int, err error) {
	c.rangeRequests.WithLabelValues(outcome(err)).Inc()
	c.rangeYears.Observe(float64(years))
}

func outcome(err error) string {
	if err != nil {
		return "failure"
	}
	return "success"
}

// Nop discards everything
type Nop struct{}

func (Nop) RecordCacheHit(int, bool)                         {}
func (Nop) RecordCacheMiss(string)                           {}
func (Nop) RecordReconciled(string, int)                     {}
func (Nop) RecordProviderFetch(string, time.Duration, error) {}
func (Nop) RecordRangeRequest(int, error)                    {}

// Handler returns the scrape handler for gatherer
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
