package engine

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aonescu/remedy/internal/cooldown"
	"github.com/aonescu/remedy/internal/history"
	"github.com/aonescu/remedy/internal/types"
)

func newTestLoop(rules []types.HealingRule, state *fakeState, metrics *fakeMetrics) *ControlLoop {
	eng := NewRuleEngine(state, metrics)
	exec := NewExecutor(state, metrics, cooldown.NewTracker(), history.NewMemoryStore(), nil, liveConfig())
	return NewControlLoop(rules, eng, exec, 30*time.Second, 60*time.Second)
}

func TestTick_SkipsDisabledRules(t *testing.T) {
	rule := crashLoopRule(0)
	rule.Enabled = false
	state := &fakeState{statuses: map[string][]string{"CrashLoopBackOff": {"api-7f9c"}}}

	loop := newTestLoop([]types.HealingRule{rule}, state, &fakeMetrics{})
	require.NoError(t, loop.tick(context.Background()))

	assert.Equal(t, 0, state.reads(), "disabled rules are never evaluated")
	assert.Equal(t, uint64(0), loop.Snapshot().RulesEvaluated)
}

func TestTick_CountsEvaluationsAndActions(t *testing.T) {
	state := &fakeState{statuses: map[string][]string{"CrashLoopBackOff": {"api-7f9c"}}}
	loop := newTestLoop([]types.HealingRule{crashLoopRule(0)}, state, &fakeMetrics{})

	require.NoError(t, loop.tick(context.Background()))

	snap := loop.Snapshot()
	assert.Equal(t, uint64(1), snap.RulesEvaluated)
	assert.Equal(t, uint64(1), snap.ActionsTaken)
	assert.Equal(t, uint64(0), snap.Errors)
	assert.False(t, snap.LastCheck.IsZero())
	assert.Equal(t, []string{"default/api-7f9c"}, state.restarted)
}

func TestTick_CooldownSkipDoesNotCountAsAction(t *testing.T) {
	state := &fakeState{statuses: map[string][]string{"CrashLoopBackOff": {"api-7f9c"}}}
	loop := newTestLoop([]types.HealingRule{crashLoopRule(0)}, state, &fakeMetrics{})

	require.NoError(t, loop.tick(context.Background()))
	require.NoError(t, loop.tick(context.Background()))

	snap := loop.Snapshot()
	assert.Equal(t, uint64(2), snap.RulesEvaluated)
	assert.Equal(t, uint64(1), snap.ActionsTaken, "the second pass hits the cooldown window")
	assert.Len(t, state.restarted, 1)
}

func TestTick_RuleErrorDoesNotAbortPass(t *testing.T) {
	flaky := types.HealingRule{
		Name:      "flaky",
		Condition: types.ConditionRestartCount,
		Threshold: 5,
		Action:    types.ActionSpec{Kind: types.ActionRestartPod},
		Namespace: "default",
		Enabled:   true,
	}
	state := &fakeState{statuses: map[string][]string{"CrashLoopBackOff": {"api-7f9c"}}}
	metrics := &fakeMetrics{countsErr: fmt.Errorf("prometheus unreachable")}

	loop := newTestLoop([]types.HealingRule{flaky, crashLoopRule(0)}, state, metrics)
	require.NoError(t, loop.tick(context.Background()), "one healthy rule keeps the pass alive")

	snap := loop.Snapshot()
	assert.Equal(t, uint64(2), snap.RulesEvaluated)
	assert.Equal(t, uint64(1), snap.Errors)
	assert.Equal(t, []string{"default/api-7f9c"}, state.restarted,
		"rules after the failing one still run")
}

func TestTick_AllRulesFailing(t *testing.T) {
	state := &fakeState{statusErr: fmt.Errorf("apiserver unavailable")}
	loop := newTestLoop([]types.HealingRule{crashLoopRule(0)}, state, &fakeMetrics{})

	err := loop.tick(context.Background())
	assert.EqualError(t, err, "all 1 enabled rules failed")
	assert.Equal(t, uint64(1), loop.Snapshot().Errors)
}

func TestRun_StopsOnCancel(t *testing.T) {
	state := &fakeState{}
	loop := newTestLoop([]types.HealingRule{crashLoopRule(0)}, state, &fakeMetrics{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan struct{})
	go func() {
		loop.Run(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("control loop did not stop after cancellation")
	}
}
