// Package metrics holds the process-wide prometheus collectors.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "gamesage"

var Registry = prometheus.NewRegistry()

var (
	PluginCalls = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "plugin_calls_total",
		Help:      "Plugin invocations by platform, provider and result status.",
	}, []string{"platform", "provider", "status"})

	PluginLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "plugin_call_seconds",
		Help:      "Plugin call latency.",
		Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 40},
	}, []string{"platform", "provider"})

	Fallbacks = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "plugin_fallbacks_total",
		Help:      "Fallback plugin invocations by platform.",
	}, []string{"platform"})

	LLMCalls = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "llm_calls_total",
		Help:      "Structured language model calls by graph and outcome.",
	}, []string{"graph", "outcome"})

	Sessions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "sessions_total",
		Help:      "Finished sessions by stop reason.",
	}, []string{"stop_reason"})

	SessionTurns = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "session_turns",
		Help:      "Controller turns used per session.",
		Buckets:   []float64{1, 2, 3, 4, 5, 8},
	})

	SessionDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "session_seconds",
		Help:      "End-to-end session latency.",
		Buckets:   prometheus.ExponentialBuckets(0.5, 2, 9),
	})

	CacheLookups = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "retrieval_cache_lookups_total",
		Help:      "Retrieval cache lookups by result.",
	}, []string{"result"})
)

func init() {
	Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		PluginCalls,
		PluginLatency,
		Fallbacks,
		LLMCalls,
		Sessions,
		SessionTurns,
		SessionDuration,
		CacheLookups,
	)
}

func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}
