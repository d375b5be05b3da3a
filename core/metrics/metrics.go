// Package metrics exposes session health as Prometheus metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const namespace = "duet"

var (
	turnsCommittedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turns_committed_total",
			Help:      "Total number of turns presented and committed",
		},
		[]string{"speaker", "kind"}, // kind: regular, bridging, closing
	)

	generationFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "generation_failures_total",
			Help:      "Total number of failed turn productions",
		},
		[]string{"speaker", "final"},
	)

	presentationFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "presentation_failures_total",
			Help:      "Total number of turns the stage could not play",
		},
	)

	idleTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "idle_total",
			Help:      "Number of times the stage fell back to the idle scene",
		},
	)

	topicChangesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "topic_changes_total",
			Help:      "Total number of effective topic changes",
		},
		[]string{"source"},
	)

	summaryRefreshesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "summary_refreshes_total",
			Help:      "Total number of running summary refreshes",
		},
	)

	retriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retries_total",
			Help:      "Total number of backend call retries",
		},
		[]string{"operation"},
	)

	queueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_depth",
			Help:      "Number of slots queued ahead of playback",
		},
	)

	sessionState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "session_state",
			Help:      "1 for the current orchestrator state, 0 otherwise",
		},
		[]string{"state"},
	)

	llmLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "llm_latency_seconds",
			Help:      "Latency of turn text generation in seconds",
			Buckets:   []float64{.25, .5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"model"},
	)

	ttsLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tts_latency_seconds",
			Help:      "Latency of speech synthesis in seconds",
			Buckets:   []float64{.1, .25, .5, 1, 2.5, 5, 10, 30},
		},
	)

	allMetrics = []prometheus.Collector{
		turnsCommittedTotal,
		generationFailuresTotal,
		presentationFailuresTotal,
		idleTotal,
		topicChangesTotal,
		summaryRefreshesTotal,
		retriesTotal,
		queueDepth,
		sessionState,
		llmLatency,
		ttsLatency,
	}
)

// NewRegistry returns a registry holding the session metrics plus the Go
// runtime and process collectors.
func NewRegistry() *prometheus.Registry {
	registry := prometheus.NewRegistry()
	registry.MustRegister(allMetrics...)
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return registry
}

// RecordRetry has the signature of retry.Policy.OnRetry.
func RecordRetry(operation string, _ int, _ error) {
	retriesTotal.WithLabelValues(operation).Inc()
}

func SetQueueDepth(depth int) {
	queueDepth.Set(float64(depth))
}
