// Package telemetry exposes dispatch metrics for Prometheus scraping.
package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricWorkOrders = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "controlplane",
		Name:      "work_orders_total",
		Help:      "Work orders reaching a terminal state, by type and outcome.",
	}, []string{"type", "outcome"})

	metricGatewayCalls = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "controlplane",
		Name:      "gateway_calls_total",
		Help:      "LLM gateway round trips issued by the executor.",
	})

	metricTokens = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "controlplane",
		Name:      "tokens_total",
		Help:      "Tokens consumed, by direction.",
	}, []string{"direction"})

	metricGateDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "controlplane",
		Name:      "quality_gate_decisions_total",
		Help:      "Quality gate verdicts, by outcome.",
	}, []string{"verdict"})

	metricEscalations = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "controlplane",
		Name:      "escalations_total",
		Help:      "Turns escalated after exhausting quality gate retries.",
	})

	metricDegradations = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "controlplane",
		Name:      "degradations_total",
		Help:      "Turns that fell open to a degradation response.",
	})

	metricTurnDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "controlplane",
		Name:      "turn_duration_seconds",
		Help:      "Wall time per handled turn.",
		Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
	})
)

// RecordWorkOrder counts one terminal work order.
func RecordWorkOrder(woType, outcome string) {
	metricWorkOrders.WithLabelValues(woType, outcome).Inc()
}

// RecordGatewayCall counts one gateway round trip and its token spend.
func RecordGatewayCall(inputTokens, outputTokens int) {
	metricGatewayCalls.Inc()
	metricTokens.WithLabelValues("input").Add(float64(inputTokens))
	metricTokens.WithLabelValues("output").Add(float64(outputTokens))
}

// RecordGateDecision counts one quality gate verdict.
func RecordGateDecision(verdict string) {
	metricGateDecisions.WithLabelValues(verdict).Inc()
}

// RecordEscalation counts one retry-exhausted turn.
func RecordEscalation() {
	metricEscalations.Inc()
}

// RecordDegradation counts one fail-open turn.
func RecordDegradation() {
	metricDegradations.Inc()
}

// ObserveTurn records a turn's wall time.
func ObserveTurn(d time.Duration) {
	metricTurnDuration.Observe(d.Seconds())
}
