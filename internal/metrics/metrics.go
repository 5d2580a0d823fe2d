// Package metrics registers the Prometheus collectors exported on /metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome labels.
const (
	OutcomeOK       = "ok"
	OutcomeFallback = "fallback"
	OutcomeError    = "error"
)

var (
	toolCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "toolbelt",
		Name:      "tool_calls_total",
		Help:      "Tool invocations by tool name and outcome.",
	}, []string{"tool", "outcome"})

	toolDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "toolbelt",
		Name:      "tool_call_duration_seconds",
		Help:      "Tool invocation latency.",
		Buckets:   []float64{.005, .025, .1, .25, .5, 1, 2.5, 5, 10},
	}, []string{"tool"})

	upstreamRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "toolbelt",
		Name:      "upstream_requests_total",
		Help:      "Outbound HTTP requests by host and outcome.",
	}, []string{"host", "outcome"})
)

// ObserveTool records one tool invocation.
func ObserveTool(tool, outcome string, elapsed time.Duration) {
	toolCalls.WithLabelValues(tool, outcome).Inc()
	toolDuration.WithLabelValues(tool).Observe(elapsed.Seconds())
}

// ObserveUpstream records one outbound request.
func ObserveUpstream(host, outcome string) {
	upstreamRequests.WithLabelValues(host, outcome).Inc()
}
