package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Healing metrics
	HealingActionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "remedy_healing_actions_total",
			Help: "Total healing actions taken by rule, action and namespace",
		},
		[]string{"rule", "action", "namespace"},
	)

	RuleEvaluationsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "remedy_rule_evaluations_total",
			Help: "Total healing rule evaluations",
		},
	)

	ErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "remedy_errors_total",
			Help: "Total evaluation and dispatch errors",
		},
	)

	CooldownSkipsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "remedy_cooldown_skips_total",
			Help: "Total actions skipped because a cooldown window was active",
		},
	)

	// Leadership metrics
	IsLeader = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "remedy_is_leader",
			Help: "Whether this replica holds the leader lease (1 = leader, 0 = follower)",
		},
	)

	LastEvaluationTimestamp = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "remedy_last_evaluation_timestamp_seconds",
			Help: "Unix timestamp of the last completed rule evaluation pass",
		},
	)
)

func init() {
	prometheus.MustRegister(
		HealingActionsTotal,
		RuleEvaluationsTotal,
		ErrorsTotal,
		CooldownSkipsTotal,
		IsLeader,
		LastEvaluationTimestamp,
	)
}

// Handler returns the HTTP handler serving the Prometheus exposition format.
func Handler() http.Handler {
	return promhttp.Handler()
}
