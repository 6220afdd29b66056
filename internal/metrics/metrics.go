package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Provider traffic
	ProviderRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vnmeta_provider_requests_total",
		Help: "Outbound provider requests by outcome.",
	}, []string{"provider", "outcome"}) // outcome: ok, rate_limited, html, upstream_error, network_error, malformed

	ProviderRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "vnmeta_provider_request_duration_seconds",
		Help:    "Duration of single provider HTTP round trips.",
		Buckets: prometheus.DefBuckets,
	}, []string{"provider"})

	ProviderRetries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vnmeta_provider_retries_total",
		Help: "Provider requests retried after a throttling signal.",
	}, []string{"provider", "reason"}) // reason: status_429, html_body

	RateLimitWait = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "vnmeta_rate_limit_wait_seconds",
		Help:    "Time spent waiting for rate limiter admission.",
		Buckets: []float64{0, 0.1, 0.5, 1, 1.5, 5, 15, 60, 300},
	}, []string{"provider"})

	// Cover images
	ImageFetches = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vnmeta_image_fetches_total",
		Help: "Cover image fetches by outcome.",
	}, []string{"outcome"}) // outcome: downloaded, cached, failed

	// Store gauges
	RecordsTotal = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "vnmeta_records_total",
		Help: "Total number of stored metadata records.",
	})
	DevelopersTotal = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "vnmeta_developers_total",
		Help: "Total number of stored developers.",
	})
	TagsTotal = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "vnmeta_tags_total",
		Help: "Total number of stored tags.",
	})
)

// StoreCounts is a snapshot of stored entity counts.
type StoreCounts struct {
	Records    int
	Developers int
	Tags       int
}

// UpdateStoreMetrics refreshes gauges that reflect the current state of the store.
func UpdateStoreMetrics(c StoreCounts) {
	RecordsTotal.Set(float64(c.Records))
	DevelopersTotal.Set(float64(c.Developers))
	TagsTotal.Set(float64(c.Tags))
}

// RecordRequest records the outcome and duration of one provider round trip.
func RecordRequest(provider, outcome string, start time.Time) {
	ProviderRequests.WithLabelValues(provider, outcome).Inc()
	ProviderRequestDuration.WithLabelValues(provider).Observe(time.Since(start).Seconds())
}

// RecordRateLimitWait records time spent waiting for admission.
func RecordRateLimitWait(provider string, d time.Duration) {
	RateLimitWait.WithLabelValues(provider).Observe(d.Seconds())
}
