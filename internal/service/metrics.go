package service

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	searchRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catalog_search_requests_total",
			Help: "Total number of search requests by outcome",
		},
		[]string{"doc_type", "outcome"},
	)

	searchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "catalog_search_duration_seconds",
			Help:    "Search duration in seconds, including cache lookups",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"doc_type"},
	)

	indexedDocuments = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catalog_search_indexed_documents_total",
			Help: "Total number of documents written to the index",
		},
		[]string{"doc_type"},
	)
)

func outcome(cached bool, err error) string {
	switch {
	case err != nil:
		return "error"
	case cached:
		return "cached"
	default:
		return "ok"
	}
}

func observeSearch(docType, result string, elapsed time.Duration) {
	searchRequestsTotal.WithLabelValues(docType, result).Inc()
	searchDuration.WithLabelValues(docType).Observe(elapsed.Seconds())
}
