// Package metrics exposes Prometheus collectors for the marketplace core.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	jobsCreated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "market_layer",
			Subsystem: "jobs",
			Name:      "created_total",
			Help:      "Total number of jobs posted.",
		},
	)

	transitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "market_layer",
			Subsystem: "jobs",
			Name:      "transitions_total",
			Help:      "Job state transitions by event and outcome.",
		},
		[]string{"event", "outcome"},
	)

	rewardPaid = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "market_layer",
			Subsystem: "jobs",
			Name:      "reward_paid_tokens_total",
			Help:      "Total reward released to collectors, in token units.",
		},
	)

	ledgerCalls = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "market_layer",
			Subsystem: "ledger",
			Name:      "call_duration_seconds",
			Help:      "Duration of ledger client calls.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 10),
		},
		[]string{"method"},
	)

	balancePolls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "market_layer",
			Subsystem: "wallet",
			Name:      "balance_polls_total",
			Help:      "Balance refresh attempts by result.",
		},
		[]string{"result"},
	)
)

func init() {
	Registry.MustRegister(jobsCreated, transitions, rewardPaid, ledgerCalls, balancePolls)
}

// Handler serves the registry over HTTP.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// JobCreated records a successful job posting.
func JobCreated() { jobsCreated.Inc() }

// Transition records a state-machine event attempt.
func Transition(event, outcome string) { transitions.WithLabelValues(event, outcome).Inc() }

// RewardPaid accumulates released rewards.
func RewardPaid(amount float64) { rewardPaid.Add(amount) }

// ObserveLedgerCall records the latency of one ledger client call.
func ObserveLedgerCall(method string, start time.Time) {
	ledgerCalls.WithLabelValues(method).Observe(time.Since(start).Seconds())
}

// BalancePoll records one balance refresh attempt.
func BalancePoll(result string) { balancePolls.WithLabelValues(result).Inc() }
