package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HoldsCreated counts seat holds written (one per seat)
	HoldsCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "booking",
			Name:      "holds_created_total",
			Help:      "The total number of seat holds created",
		},
	)

	// HoldRejections counts hold requests refused, by error code
	HoldRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "booking",
			Name:      "hold_rejections_total",
			Help:      "The total number of hold requests rejected",
		},
		[]string{"code"},
	)

	// BookingTransitions counts booking status changes, by target status
	BookingTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "booking",
			Name:      "status_transitions_total",
			Help:      "The total number of booking status transitions",
		},
		[]string{"status"},
	)

	// PaymentResults counts gateway outcomes, by operation and result status
	PaymentResults = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "payment",
			Name:      "gateway_results_total",
			Help:      "The total number of payment gateway calls by outcome",
		},
		[]string{"operation", "status"},
	)

	// SweepItems counts items handled by sweeper jobs, by job and result (ok, skipped, failed)
	SweepItems = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sweeper",
			Name:      "items_total",
			Help:      "The total number of items processed by sweeper jobs",
		},
		[]string{"job", "result"},
	)

	// SweepDuration The time spent in one sweeper job run (summary with quantiles 0.5, 0.9, and 0.99)
	SweepDuration = promauto.NewSummaryVec(
		prometheus.SummaryOpts{
			Namespace:  "sweeper",
			Name:       "run_duration_seconds",
			Help:       "The time spent in one sweeper job run",
			Objectives: map[float64]float64{0.5: 0.05, 0.9: 0.01, 0.99: 0.001},
		},
		[]string{"job"},
	)
)
