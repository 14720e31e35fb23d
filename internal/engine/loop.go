package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/aonescu/remedy/internal/logging"
	"github.com/aonescu/remedy/internal/metrics"
	"github.com/aonescu/remedy/internal/types"
)

// ControlLoop drives periodic rule evaluation while this replica leads.
// It runs single-threaded: rules are evaluated strictly in declaration
// order because the executor mutates cooldown and counter state under a
// single-writer assumption.
type ControlLoop struct {
	rules    []types.HealingRule
	engine   *RuleEngine
	executor *Executor
	interval time.Duration
	backoff  time.Duration
	log      zerolog.Logger

	mu    sync.RWMutex
	stats types.MetricsSnapshot
}

func NewControlLoop(rules []types.HealingRule, eng *RuleEngine, exec *Executor,
	interval, backoff time.Duration) *ControlLoop {
	return &ControlLoop{
		rules:    rules,
		engine:   eng,
		executor: exec,
		interval: interval,
		backoff:  backoff,
		log:      logging.WithComponent("control-loop"),
	}
}

// Run evaluates all rules immediately, then on every interval until ctx is
// cancelled. A pass that fails wholesale waits the longer backoff instead
// of busy-looping against a broken provider.
func (l *ControlLoop) Run(ctx context.Context) {
	l.log.Info().Int("rules", len(l.rules)).Dur("interval", l.interval).Msg("control loop started")

	for {
		delay := l.interval
		if err := l.tick(ctx); err != nil {
			l.log.Error().Err(err).Dur("backoff", l.backoff).
				Msg("evaluation pass failed, backing off")
			delay = l.backoff
		}

		select {
		case <-ctx.Done():
			l.log.Info().Msg("control loop stopped")
			return
		case <-time.After(delay):
		}
	}
}

// tick runs one evaluation pass. Per-rule errors are logged and counted
// without aborting the pass; cancellation is observed between rule steps
// so losing leadership never waits for a full tick boundary.
func (l *ControlLoop) tick(ctx context.Context) error {
	now := time.Now()
	l.mu.Lock()
	l.stats.LastCheck = now
	l.mu.Unlock()
	metrics.LastEvaluationTimestamp.Set(float64(now.Unix()))

	evaluated, failed := 0, 0
	for _, rule := range l.rules {
		if ctx.Err() != nil {
			return nil
		}
		if !rule.Enabled {
			continue
		}

		evaluated++
		l.bumpEvaluated()

		should, err := l.engine.ShouldHeal(ctx, rule)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			failed++
			l.countError(rule.Name, err, "rule evaluation failed")
			continue
		}
		if !should {
			continue
		}

		l.log.Info().Str("rule", rule.Name).Str("action", string(rule.Action.Kind)).
			Msg("rule triggered, executing action")

		outcome, err := l.executor.Execute(ctx, rule)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			failed++
			l.countError(rule.Name, err, "action dispatch failed")
			continue
		}
		if outcome == OutcomeExecuted {
			l.bumpActions()
		} else {
			l.log.Debug().Str("rule", rule.Name).Str("outcome", string(outcome)).
				Msg("action not executed")
		}
	}

	// Every enabled rule failing in one pass looks like a provider outage
	// rather than rule-level noise.
	if evaluated > 0 && failed == evaluated {
		return fmt.Errorf("all %d enabled rules failed", evaluated)
	}
	return nil
}

// Snapshot returns a copy of the agent counters for the stats endpoint.
func (l *ControlLoop) Snapshot() types.MetricsSnapshot {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.stats
}

// Rules returns the loaded rule set in declaration order.
func (l *ControlLoop) Rules() []types.HealingRule {
	return l.rules
}

func (l *ControlLoop) bumpEvaluated() {
	l.mu.Lock()
	l.stats.RulesEvaluated++
	l.mu.Unlock()
	metrics.RuleEvaluationsTotal.Inc()
}

func (l *ControlLoop) bumpActions() {
	l.mu.Lock()
	l.stats.ActionsTaken++
	l.mu.Unlock()
}

func (l *ControlLoop) countError(rule string, err error, msg string) {
	l.mu.Lock()
	l.stats.Errors++
	l.mu.Unlock()
	metrics.ErrorsTotal.Inc()
	l.log.Error().Err(err).Str("rule", rule).Msg(msg)
}
