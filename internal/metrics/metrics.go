package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// #region metrics

// Namespace/subsystem tags every reasoning-cycle metric so it can share a
// Prometheus registry with unrelated processes.
const namespace = "sitosync"

var (
	// CycleDuration measures wall-clock time spent inside one reason() call.
	CycleDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "reasoner",
		Name:      "cycle_duration_seconds",
		Help:      "Time spent executing one reasoning cycle (P1-P8).",
		Buckets:   []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5},
	})

	// TriggeredTotal counts transitions into Triggered, labelled by pass.
	// The host driver increments it under "p1" once per bottom-layer
	// instance a cycle reports as fired; upper-layer transitions are not
	// counted.
	TriggeredTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "reasoner",
		Name:      "triggered_total",
		Help:      "Instances that transitioned to Triggered, by pass.",
	}, []string{"pass"})

	// InferenceWarnings is a counter for recoverable Bayesian-engine
	// failures (§4.3's failure-handling contract). The engine logs those
	// failures as warnings and does not increment this counter.
	InferenceWarnings = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "bayes",
		Name:      "inference_warnings_total",
		Help:      "Recoverable Bayesian inference failures degraded to a 0.5 marginal.",
	})

	// OperationsEmitted counts operation vectors handed off by the
	// operation generator, labelled by kind (the host driver uses "cycle").
	OperationsEmitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "operation",
		Name:      "emitted_total",
		Help:      "Operation vectors emitted by GenerateOperations.",
	}, []string{"kind"})

	// GraphNodes reports the static node count of the currently loaded
	// situation graph.
	GraphNodes = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "graph",
		Name:      "nodes",
		Help:      "Number of nodes in the currently loaded situation graph.",
	})
)

// #endregion metrics
