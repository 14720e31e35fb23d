package engine

import (
	"context"

	"github.com/prometheus/common/model"
	"github.com/rs/zerolog"

	"github.com/aonescu/remedy/internal/logging"
	"github.com/aonescu/remedy/internal/types"
)

// StateProvider is the cluster-facing capability the engine consumes.
// Implemented by cluster.Client; tests substitute fakes.
type StateProvider interface {
	PodsByStatus(ctx context.Context, namespace string) (map[string][]string, error)
	RestartPod(ctx context.Context, name, namespace string) error
	ScaleDeployment(ctx context.Context, name string, replicas int32, namespace string) error
	PodLogs(ctx context.Context, name, namespace string, tailLines int64) (string, error)
	PodDescription(ctx context.Context, name, namespace string) (string, error)
	NamespaceEvents(ctx context.Context, namespace string, limit int64) (string, error)
}

// MetricsProvider answers time-series queries. Implemented by
// promquery.Client.
type MetricsProvider interface {
	Query(ctx context.Context, expr string) (model.Value, error)
	RestartCounts(ctx context.Context, namespace string) (map[string]int, error)
}

// RuleEngine evaluates healing rule conditions against live state. It has
// no side effects; acting on a positive evaluation is the Executor's job.
type RuleEngine struct {
	state   StateProvider
	metrics MetricsProvider
	log     zerolog.Logger
}

func NewRuleEngine(state StateProvider, metrics MetricsProvider) *RuleEngine {
	return &RuleEngine{
		state:   state,
		metrics: metrics,
		log:     logging.WithComponent("rule-engine"),
	}
}

// ShouldHeal reports whether the rule's condition currently holds. An
// unknown condition kind evaluates to false rather than erroring so a
// misconfigured rule cannot disturb the rest of the playbook.
func (e *RuleEngine) ShouldHeal(ctx context.Context, rule types.HealingRule) (bool, error) {
	switch rule.Condition {
	case types.ConditionCrashLoopBackOff:
		statuses, err := e.state.PodsByStatus(ctx, rule.Namespace)
		if err != nil {
			return false, err
		}
		return len(statuses[string(types.ConditionCrashLoopBackOff)]) > rule.Threshold, nil

	case types.ConditionRestartCount:
		counts, err := e.metrics.RestartCounts(ctx, rule.Namespace)
		if err != nil {
			return false, err
		}
		for _, count := range counts {
			if count > rule.Threshold {
				return true, nil
			}
		}
		return false, nil

	case types.ConditionPodPending:
		statuses, err := e.state.PodsByStatus(ctx, rule.Namespace)
		if err != nil {
			return false, err
		}
		return len(statuses["Pending"]) > rule.Threshold, nil

	default:
		e.log.Debug().Str("rule", rule.Name).Str("condition", string(rule.Condition)).
			Msg("unknown condition, treating as no trigger")
		return false, nil
	}
}
