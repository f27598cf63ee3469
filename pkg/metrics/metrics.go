package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds every recomate collector. It is private so tests and
// embedded use do not clash with the global default registry.
var Registry = prometheus.NewRegistry()

func init() {
	Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		TurnsTotal, TurnDuration,
		AgentCalls, AgentDuration,
		VersionConflicts, PersistRetries,
		DegradedIntents, ActiveManagers,
	)
}

var TurnsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "recomate_turns_total",
		Help: "Turns handled, by final status.",
	},
	[]string{"status"}, // responded | failed
)

var TurnDuration = prometheus.NewHistogram(
	prometheus.HistogramOpts{
		Name:    "recomate_turn_duration_seconds",
		Help:    "Wall time of a turn from Understanding to a terminal state.",
		Buckets: prometheus.DefBuckets,
	},
)

var AgentCalls = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "recomate_agent_calls_total",
		Help: "Retrieval agent calls, by agent and outcome.",
	},
	[]string{"agent", "status"}, // ok | unavailable | timeout
)

var AgentDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "recomate_agent_duration_seconds",
		Help:    "Retrieval agent latency.",
		Buckets: []float64{.01, .025, .05, .1, .25, .5, 1, 2.5},
	},
	[]string{"agent"},
)

var VersionConflicts = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "recomate_version_conflicts_total",
		Help: "Session appends rejected by compare-and-set.",
	},
)

var PersistRetries = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "recomate_persist_retries_total",
		Help: "Retried session appends.",
	},
)

var DegradedIntents = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "recomate_degraded_intents_total",
		Help: "Turns that continued with a degraded intent.",
	},
	[]string{"reason"},
)

var ActiveManagers = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Name: "recomate_active_managers",
		Help: "Conversation managers resident in this process.",
	},
)

func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}
