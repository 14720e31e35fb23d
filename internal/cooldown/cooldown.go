package cooldown

import (
	"fmt"
	"sync"
	"time"

	"github.com/aonescu/remedy/internal/types"
)

// Key builds the composite identity a cooldown window is scoped to.
//
// The target is the pod name at the time of remediation. A crash-looping pod
// recreated under a new name after a restart is a different key, so the
// window does not cover the replacement.
func Key(kind types.ActionKind, namespace, target string) string {
	return fmt.Sprintf("%s:%s/%s", kind, namespace, target)
}

// Tracker maps composite action keys to expiry instants. Entries are only
// ever superseded, never deleted. All writes happen from the single
// currently-leading control loop; the mutex is for memory visibility toward
// the HTTP read path, not for write contention.
type Tracker struct {
	mu      sync.RWMutex
	expiry  map[string]time.Time
	now     func() time.Time
}

// NewTracker creates an empty tracker using the wall clock.
func NewTracker() *Tracker {
	return NewTrackerWithClock(time.Now)
}

// NewTrackerWithClock creates a tracker with an injected clock.
func NewTrackerWithClock(now func() time.Time) *Tracker {
	return &Tracker{
		expiry: make(map[string]time.Time),
		now:    now,
	}
}

// Active reports whether an unexpired window exists for key. A window is
// active strictly before its expiry instant; at or after it the action may
// fire again.
func (t *Tracker) Active(key string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()

	exp, ok := t.expiry[key]
	if !ok {
		return false
	}
	return t.now().Before(exp)
}

// Set opens (or supersedes) a window for key lasting the given duration.
func (t *Tracker) Set(key string, window time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.expiry[key] = t.now().Add(window)
}

// Remaining returns how much of the window for key is left, or zero when no
// active window exists.
func (t *Tracker) Remaining(key string) time.Duration {
	t.mu.RLock()
	defer t.mu.RUnlock()

	exp, ok := t.expiry[key]
	if !ok {
		return 0
	}
	left := exp.Sub(t.now())
	if left < 0 {
		return 0
	}
	return left
}

// Len returns the number of tracked keys, expired ones included.
func (t *Tracker) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.expiry)
}
