// Package metrics exposes Prometheus collectors for the monitor service.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	jobsTotal             *prometheus.CounterVec
	jobsDroppedTotal      prometheus.Counter
	fetchDurationSeconds  *prometheus.HistogramVec
	extractionCacheTotal  *prometheus.CounterVec
	extractionFallbackTotal prometheus.Counter
	alertsTotal           *prometheus.CounterVec
	rateLimitDeniedTotal  *prometheus.CounterVec
	notifyFailuresTotal   *prometheus.CounterVec

	once sync.Once
)

// Init initializes the Prometheus collectors. Safe to call multiple times.
func Init() {
	once.Do(func() {
		jobsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "monitor_jobs_total",
				Help: "Crawl jobs processed, labeled by outcome code.",
			},
			[]string{"outcome"},
		)
		jobsDroppedTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "monitor_jobs_dropped_total",
				Help: "Jobs permanently dropped after exhausting attempts.",
			},
		)
		fetchDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "monitor_fetch_duration_seconds",
				Help:    "Wall-clock duration of browser fetches.",
				Buckets: prometheus.ExponentialBuckets(0.25, 2, 10),
			},
			[]string{"domain"},
		)
		extractionCacheTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "monitor_extraction_cache_total",
				Help: "Extraction cache lookups, labeled hit or miss.",
			},
			[]string{"result"},
		)
		extractionFallbackTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "monitor_extraction_fallback_total",
				Help: "Extractions served by the regex fallback after an LLM failure.",
			},
		)
		alertsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "monitor_alerts_total",
				Help: "Alert outcomes: created, deduped, or suppressed by cooldown.",
			},
			[]string{"outcome"},
		)
		rateLimitDeniedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "monitor_rate_limit_denied_total",
				Help: "Requests denied by the per-domain hourly budget.",
			},
			[]string{"domain"},
		)
		notifyFailuresTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "monitor_notify_failures_total",
				Help: "Notification fan-out failures, labeled by channel.",
			},
			[]string{"channel"},
		)
	})
}

// JobOutcome counts a processed job by taxonomy code or "ok".
func JobOutcome(outcome string) {
	if jobsTotal != nil {
		jobsTotal.WithLabelValues(outcome).Inc()
	}
}

// JobDropped counts a permanently dropped job.
func JobDropped() {
	if jobsDroppedTotal != nil {
		jobsDroppedTotal.Inc()
	}
}

// ObserveFetchDuration records how long one fetch took.
func ObserveFetchDuration(domain string, d time.Duration) {
	if fetchDurationSeconds != nil {
		fetchDurationSeconds.WithLabelValues(domain).Observe(d.Seconds())
	}
}

// CacheLookup counts a cache hit or miss.
func CacheLookup(hit bool) {
	if extractionCacheTotal == nil {
		return
	}
	if hit {
		extractionCacheTotal.WithLabelValues("hit").Inc()
	} else {
		extractionCacheTotal.WithLabelValues("miss").Inc()
	}
}

// ExtractionFallback counts a regex-fallback extraction.
func ExtractionFallback() {
	if extractionFallbackTotal != nil {
		extractionFallbackTotal.Inc()
	}
}

// AlertOutcome counts created, deduped, or suppressed alerts.
func AlertOutcome(outcome string) {
	if alertsTotal != nil {
		alertsTotal.WithLabelValues(outcome).Inc()
	}
}

// RateLimitDenied counts a budget denial for a domain.
func RateLimitDenied(domain string) {
	if rateLimitDeniedTotal != nil {
		rateLimitDeniedTotal.WithLabelValues(domain).Inc()
	}
}

// NotifyFailure counts a fan-out failure for a channel.
func NotifyFailure(channel string) {
	if notifyFailuresTotal != nil {
		notifyFailuresTotal.WithLabelValues(channel).Inc()
	}
}
