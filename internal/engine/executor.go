package engine

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/aonescu/remedy/internal/cooldown"
	"github.com/aonescu/remedy/internal/history"
	"github.com/aonescu/remedy/internal/logging"
	"github.com/aonescu/remedy/internal/metrics"
	"github.com/aonescu/remedy/internal/rca"
	"github.com/aonescu/remedy/internal/types"
)

// Outcome classifies what Execute did with a triggered rule.
type Outcome string

const (
	OutcomeExecuted        Outcome = "executed"
	OutcomeSkippedDisabled Outcome = "skipped_healing_disabled"
	OutcomeSkippedDryRun   Outcome = "skipped_dry_run"
	OutcomeSkippedCooldown Outcome = "skipped_cooldown"
	OutcomeNoTarget        Outcome = "no_target"
	OutcomeFailed          Outcome = "failed"
)

// restartBatchSize bounds how many pods a single trigger may restart.
// Deliberately one: a rule matching a whole fleet of crash-looping pods
// heals them one tick at a time instead of mass-restarting.
const restartBatchSize = 1

const rcaLogTailLines = 100

// ExecutorConfig carries the global safety gates and windows.
type ExecutorConfig struct {
	HealingEnabled bool
	DryRun         bool
	CooldownWindow time.Duration
	RCATimeout     time.Duration
}

// Executor gates and dispatches remediation actions. All mutation of the
// cooldown tracker happens here, from the single currently-leading loop.
type Executor struct {
	state     StateProvider
	metrics   MetricsProvider
	cooldowns *cooldown.Tracker
	store     history.Store
	analyzer  rca.Analyzer // nil disables RCA enrichment
	cfg       ExecutorConfig
	log       zerolog.Logger

	rcaWG sync.WaitGroup
}

func NewExecutor(state StateProvider, metricsProvider MetricsProvider, cooldowns *cooldown.Tracker,
	store history.Store, analyzer rca.Analyzer, cfg ExecutorConfig) *Executor {
	return &Executor{
		state:     state,
		metrics:   metricsProvider,
		cooldowns: cooldowns,
		store:     store,
		analyzer:  analyzer,
		cfg:       cfg,
		log:       logging.WithComponent("executor"),
	}
}

// Execute dispatches the action of a triggered rule. Gate order is fixed:
// global healing flag, dry-run flag, then the per-target cooldown. Provider
// failures come back as OutcomeFailed with the error; they never panic the
// tick.
func (e *Executor) Execute(ctx context.Context, rule types.HealingRule) (Outcome, error) {
	if !e.cfg.HealingEnabled {
		e.log.Info().Str("rule", rule.Name).Str("action", string(rule.Action.Kind)).
			Msg("healing globally disabled, would have performed action")
		return OutcomeSkippedDisabled, nil
	}
	if e.cfg.DryRun {
		e.log.Info().Str("rule", rule.Name).Str("action", string(rule.Action.Kind)).
			Msg("dry-run mode, would have performed action")
		return OutcomeSkippedDryRun, nil
	}

	switch rule.Action.Kind {
	case types.ActionRestartPod:
		return e.restartPod(ctx, rule)
	case types.ActionScaleDeployment:
		return e.scaleDeployment(ctx, rule)
	default:
		// Unreachable for playbook rules: specs are validated at load.
		return OutcomeFailed, fmt.Errorf("unknown action kind %q", rule.Action.Kind)
	}
}

func (e *Executor) restartPod(ctx context.Context, rule types.HealingRule) (Outcome, error) {
	targets, err := e.affectedPods(ctx, rule)
	if err != nil {
		return OutcomeFailed, err
	}
	if len(targets) == 0 {
		e.log.Debug().Str("rule", rule.Name).Msg("condition triggered but no target pod found")
		return OutcomeNoTarget, nil
	}
	if len(targets) > restartBatchSize {
		targets = targets[:restartBatchSize]
	}

	target := targets[0]
	key := cooldown.Key(types.ActionRestartPod, rule.Namespace, target)
	if e.cooldowns.Active(key) {
		metrics.CooldownSkipsTotal.Inc()
		e.log.Warn().Str("rule", rule.Name).Str("cooldown_key", key).
			Dur("remaining", e.cooldowns.Remaining(key)).
			Msg("cooldown active, skipping action")
		return OutcomeSkippedCooldown, nil
	}

	if err := e.state.RestartPod(ctx, target, rule.Namespace); err != nil {
		e.record(rule.Name, rule.Action, rule.Namespace, target, OutcomeFailed, err.Error())
		return OutcomeFailed, err
	}

	e.cooldowns.Set(key, e.cfg.CooldownWindow)
	metrics.HealingActionsTotal.WithLabelValues(rule.Name, string(rule.Action.Kind), rule.Namespace).Inc()
	e.record(rule.Name, rule.Action, rule.Namespace, target, OutcomeExecuted, "")
	e.log.Info().Str("rule", rule.Name).Str("pod", target).Str("namespace", rule.Namespace).
		Msg("restarted pod")

	e.spawnRCA(rule.Namespace, target)
	return OutcomeExecuted, nil
}

func (e *Executor) scaleDeployment(ctx context.Context, rule types.HealingRule) (Outcome, error) {
	spec := rule.Action

	// No cooldown window guards scaling: a flapping condition can rescale
	// the same deployment on every tick.
	if err := e.state.ScaleDeployment(ctx, spec.Deployment, spec.Replicas, rule.Namespace); err != nil {
		e.record(rule.Name, spec, rule.Namespace, spec.Deployment, OutcomeFailed, err.Error())
		return OutcomeFailed, err
	}

	metrics.HealingActionsTotal.WithLabelValues(rule.Name, string(spec.Kind), rule.Namespace).Inc()
	e.record(rule.Name, spec, rule.Namespace, spec.Deployment, OutcomeExecuted, "")
	e.log.Info().Str("rule", rule.Name).Str("deployment", spec.Deployment).
		Int32("replicas", spec.Replicas).Str("namespace", rule.Namespace).
		Msg("scaled deployment")
	return OutcomeExecuted, nil
}

// ManualRestart serves the manual healing endpoint. It bypasses rule
// evaluation but still honors the global gates and the cooldown window, so
// an operator cannot accidentally hammer a pod the loop just restarted.
func (e *Executor) ManualRestart(ctx context.Context, namespace, pod string) (Outcome, error) {
	rule := types.HealingRule{
		Name:      "manual",
		Action:    types.ActionSpec{Kind: types.ActionRestartPod},
		Namespace: namespace,
	}

	if !e.cfg.HealingEnabled {
		return OutcomeSkippedDisabled, nil
	}
	if e.cfg.DryRun {
		return OutcomeSkippedDryRun, nil
	}

	key := cooldown.Key(types.ActionRestartPod, namespace, pod)
	if e.cooldowns.Active(key) {
		metrics.CooldownSkipsTotal.Inc()
		return OutcomeSkippedCooldown, nil
	}

	if err := e.state.RestartPod(ctx, pod, namespace); err != nil {
		e.record(rule.Name, rule.Action, namespace, pod, OutcomeFailed, err.Error())
		return OutcomeFailed, err
	}

	e.cooldowns.Set(key, e.cfg.CooldownWindow)
	metrics.HealingActionsTotal.WithLabelValues(rule.Name, string(rule.Action.Kind), namespace).Inc()
	e.record(rule.Name, rule.Action, namespace, pod, OutcomeExecuted, "")
	e.spawnRCA(namespace, pod)
	return OutcomeExecuted, nil
}

// affectedPods lists the pods a restart rule currently applies to, in a
// stable order.
func (e *Executor) affectedPods(ctx context.Context, rule types.HealingRule) ([]string, error) {
	switch rule.Condition {
	case types.ConditionCrashLoopBackOff:
		statuses, err := e.state.PodsByStatus(ctx, rule.Namespace)
		if err != nil {
			return nil, err
		}
		return statuses[string(types.ConditionCrashLoopBackOff)], nil

	case types.ConditionPodPending:
		statuses, err := e.state.PodsByStatus(ctx, rule.Namespace)
		if err != nil {
			return nil, err
		}
		return statuses["Pending"], nil

	case types.ConditionRestartCount:
		counts, err := e.metrics.RestartCounts(ctx, rule.Namespace)
		if err != nil {
			return nil, err
		}
		var pods []string
		for pod, count := range counts {
			if count > rule.Threshold {
				pods = append(pods, pod)
			}
		}
		sort.Strings(pods)
		return pods, nil

	default:
		return nil, nil
	}
}

// spawnRCA launches the best-effort enrichment for an already-restarted
// pod. It runs detached from the tick context with its own timeout: the
// action is done, losing leadership must not abandon the record of it.
func (e *Executor) spawnRCA(namespace, pod string) {
	if e.analyzer == nil {
		return
	}

	e.rcaWG.Add(1)
	go func() {
		defer e.rcaWG.Done()

		ctx, cancel := context.WithTimeout(context.Background(), e.cfg.RCATimeout)
		defer cancel()

		analysis := e.gatherAndAnalyze(ctx, namespace, pod)
		report := types.RCAReport{
			Target:    pod,
			Namespace: namespace,
			Analysis:  analysis,
			CreatedAt: time.Now(),
		}
		if err := e.store.SetRCA(report); err != nil {
			e.log.Error().Err(err).Str("pod", pod).Msg("failed to store rca report")
		}
		e.log.Info().Str("pod", pod).Str("namespace", namespace).Msg("rca report recorded")
	}()
}

func (e *Executor) gatherAndAnalyze(ctx context.Context, namespace, pod string) string {
	bundle := rca.Bundle{PodName: pod, Namespace: namespace}

	// Each input degrades to an error string on failure; the analyzer can
	// still work with a partial bundle.
	if logs, err := e.state.PodLogs(ctx, pod, namespace, rcaLogTailLines); err != nil {
		bundle.Logs = fmt.Sprintf("error fetching logs: %v", err)
	} else {
		bundle.Logs = logs
	}
	if desc, err := e.state.PodDescription(ctx, pod, namespace); err != nil {
		bundle.Description = fmt.Sprintf("error fetching pod description: %v", err)
	} else {
		bundle.Description = desc
	}
	if events, err := e.state.NamespaceEvents(ctx, namespace, 20); err != nil {
		bundle.Events = fmt.Sprintf("error fetching events: %v", err)
	} else {
		bundle.Events = events
	}
	if alerts, err := e.metrics.Query(ctx, "up == 0"); err != nil {
		bundle.Alerts = fmt.Sprintf("error fetching alerts: %v", err)
	} else {
		bundle.Alerts = alerts.String()
	}

	analysis, err := e.analyzer.Analyze(ctx, bundle)
	if err != nil {
		return fmt.Sprintf("RCA analysis failed: %v", err)
	}
	return analysis
}

// WaitRCA blocks until in-flight RCA goroutines finish. Called on shutdown
// and by tests.
func (e *Executor) WaitRCA() {
	e.rcaWG.Wait()
}

func (e *Executor) record(ruleName string, action types.ActionSpec, namespace, target string, outcome Outcome, reason string) {
	rec := types.ActionRecord{
		Rule:       ruleName,
		Action:     string(action.Kind),
		Namespace:  namespace,
		Target:     target,
		Outcome:    string(outcome),
		Reason:     reason,
		ExecutedAt: time.Now(),
	}
	if err := e.store.RecordAction(rec); err != nil {
		e.log.Error().Err(err).Str("rule", ruleName).Msg("failed to record action")
	}
}
