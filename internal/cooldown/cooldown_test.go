package cooldown

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/aonescu/remedy/internal/types"
)

func TestKey(t *testing.T) {
	key := Key(types.ActionRestartPod, "default", "api-7f9c")
	assert.Equal(t, "restart_pod:default/api-7f9c", key)
}

func TestTracker_WindowBoundary(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	tracker := NewTrackerWithClock(clock)

	key := Key(types.ActionRestartPod, "default", "api-7f9c")
	tracker.Set(key, 15*time.Minute)

	// 14 minutes in: still active.
	now = now.Add(14 * time.Minute)
	assert.True(t, tracker.Active(key))
	assert.Equal(t, time.Minute, tracker.Remaining(key))

	// 16 minutes in: window has passed.
	now = now.Add(2 * time.Minute)
	assert.False(t, tracker.Active(key))
	assert.Equal(t, time.Duration(0), tracker.Remaining(key))
}

func TestTracker_ExpiryInstantIsAllowed(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	tracker := NewTrackerWithClock(func() time.Time { return now })

	tracker.Set("k", 15*time.Minute)
	now = now.Add(15 * time.Minute)

	assert.False(t, tracker.Active("k"))
}

func TestTracker_UnknownKeyInactive(t *testing.T) {
	tracker := NewTracker()
	assert.False(t, tracker.Active("restart_pod:default/ghost"))
	assert.Equal(t, time.Duration(0), tracker.Remaining("restart_pod:default/ghost"))
}

func TestTracker_SetSupersedes(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	tracker := NewTrackerWithClock(func() time.Time { return now })

	tracker.Set("k", time.Minute)
	now = now.Add(2 * time.Minute)
	assert.False(t, tracker.Active("k"))

	// A fresh window replaces the expired one; nothing is deleted.
	tracker.Set("k", time.Minute)
	assert.True(t, tracker.Active("k"))
	assert.Equal(t, 1, tracker.Len())
}
