// Package metrics exposes the Prometheus instrumentation shared across
// the stagehand packages. Everything registers against the default
// registry so a single promhttp handler serves it all.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome labels.
const (
	OutcomeOK     = "ok"
	OutcomeFailed = "failed"
)

var (
	gateEvaluations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "stagehand",
		Subsystem: "workflow",
		Name:      "gate_evaluations_total",
		Help:      "Gate evaluations by gate type and outcome.",
	}, []string{"gate", "outcome"})

	hookExecutions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "stagehand",
		Subsystem: "workflow",
		Name:      "hook_executions_total",
		Help:      "Hook action executions by action kind and outcome.",
	}, []string{"action", "outcome"})

	stageAdvances = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "stagehand",
		Subsystem: "workflow",
		Name:      "stage_advances_total",
		Help:      "Successful stage advancements across all workflows.",
	})

	lockConflicts = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "stagehand",
		Subsystem: "lock",
		Name:      "conflicts_total",
		Help:      "Lock acquisitions rejected because of scope overlap.",
	})
)

// ObserveGate records one gate evaluation.
func ObserveGate(gate, outcome string) {
	gateEvaluations.WithLabelValues(gate, outcome).Inc()
}

// ObserveHook records one hook action execution.
func ObserveHook(action, outcome string) {
	hookExecutions.WithLabelValues(action, outcome).Inc()
}

// StageAdvanced records one successful stage advancement.
func StageAdvanced() {
	stageAdvances.Inc()
}

// LockConflict records one rejected lock acquisition.
func LockConflict() {
	lockConflicts.Inc()
}
