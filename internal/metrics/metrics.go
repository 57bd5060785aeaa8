package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	rendersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "flipbook",
			Name:      "renders_total",
			Help:      "Total page renders by priority and result (ok, error, discarded, skipped)",
		},
		[]string{"priority", "result"},
	)

	renderDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "flipbook",
			Name:      "render_duration_seconds",
			Help:      "Duration of page renders by priority",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"priority"},
	)

	cacheEntries = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "flipbook",
			Name:      "cache_entries",
			Help:      "Number of completed page images held in the cache",
		},
	)

	navigationsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "flipbook",
			Name:      "navigations_total",
			Help:      "Total navigation events handled",
		},
	)

	pageRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "flipbook",
			Name:      "page_requests_total",
			Help:      "Page image requests from the viewport by result (hit, pending)",
		},
		[]string{"result"},
	)
)

// Init registers collectors.
func Init() {
	prometheus.MustRegister(rendersTotal, renderDuration, cacheEntries, navigationsTotal, pageRequests)
}

// Handler returns the http.Handler for /metrics
func Handler() http.Handler { return promhttp.Handler() }

func ObserveRender(priority, result string, dur time.Duration) {
	rendersTotal.WithLabelValues(priority, result).Inc()
	renderDuration.WithLabelValues(priority).Observe(dur.Seconds())
}

func IncRenderSkipped(priority string) { rendersTotal.WithLabelValues(priority, "skipped").Inc() }

func SetCacheEntries(n int) { cacheEntries.Set(float64(n)) }

func IncNavigation() { navigationsTotal.Inc() }

func IncPageRequest(result string) { pageRequests.WithLabelValues(result).Inc() }
