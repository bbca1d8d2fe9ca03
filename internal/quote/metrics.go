package quote

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// cacheResults counts quote cache lookups by result
	cacheResults = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tokenduel_quote_cache_total",
			Help: "Quote cache lookups by result",
		}, []string{"result"}) // result: hit, miss_marker, absent, expired

	// retriesTotal counts upstream retries by the class of the failure that caused them
	retriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tokenduel_upstream_retries_total",
			Help: "Upstream retries by failure class",
		}, []string{"reason"})

	// upstreamFetches counts upstream fetch outcomes per call path
	upstreamFetches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tokenduel_upstream_fetches_total",
			Help: "Upstream fetches by path and outcome",
		}, []string{"path", "outcome"}) // path: batch, strict, token_fallback, secondary, search

	flushSize = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "tokenduel_coalescer_flush_pairs",
			Help:    "Distinct pairs serviced per coalescer flush",
			Buckets: []float64{1, 2, 5, 10, 30, 60, 120},
		})
)

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
