package domain

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// debugMessagesTotal counts debug messages delivered to trackers by outcome.
	debugMessagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "storyteller_debug_messages_total",
		Help: "Debug adapter messages delivered to trackers by tracker and outcome",
	}, []string{"tracker", "outcome"})

	// sideEffectsTotal counts recorded side effects by kind.
	sideEffectsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "storyteller_side_effects_total",
		Help: "Side effects recorded by kind",
	}, []string{"kind"})

	// scenarioRunsTotal counts what-if runs by outcome.
	scenarioRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "storyteller_scenario_runs_total",
		Help: "What-if scenario runs by outcome",
	}, []string{"outcome"})

	scenarioDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "storyteller_scenario_duration_seconds",
		Help:    "Wall-clock duration of sandboxed what-if runs",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 15),
	})
)
