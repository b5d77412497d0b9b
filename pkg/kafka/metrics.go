package kafka

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "catalog_search"

// Message outcomes recorded by the consumer.
const (
	OutcomeProcessed  = "processed"
	OutcomeFailed     = "failed"
	OutcomeDuplicate  = "duplicate"
	OutcomeDeadLetter = "dead_lettered"
	OutcomeUndecoded  = "undecoded"
)

var (
	consumerFetched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "consumer",
			Name:      "fetched_total",
			Help:      "Kafka messages fetched from the broker before handling",
		},
		[]string{"topic", "group"},
	)

	consumerMessages = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "consumer",
			Name:      "messages_total",
			Help:      "Kafka messages settled by the consumer, by outcome",
		},
		[]string{"topic", "group", "outcome"},
	)

	consumerHandleSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: "consumer",
			Name:      "handle_seconds",
			Help:      "Time spent handling one Kafka message, retries included",
			Buckets:   []float64{.001, .005, .01, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"topic", "group"},
	)
)

func countFetched(topic, group string) {
	consumerFetched.WithLabelValues(topic, group).Inc()
}

func countOutcome(topic, group, outcome string) {
	consumerMessages.WithLabelValues(topic, group, outcome).Inc()
}

func observeHandle(topic, group string, start time.Time) {
	consumerHandleSeconds.WithLabelValues(topic, group).Observe(time.Since(start).Seconds())
}
