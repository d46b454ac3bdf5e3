// Package clock provides a process-wide, overridable notion of "now".
//
// Now returns a frozen instant while an Enter scope is active and
// time.Now() otherwise; fixture.Replay uses Enter to freeze it. Horizon
// construction, the price-bias ramps and the historical-average
// forecast mapper do not read this package: they take "now" as an
// explicit argument (the solve pipeline's nowFn).
package clock

import (
	"sync"
	"time"
)

var (
	mu     sync.RWMutex
	frozen *time.Time
)

// Now returns the frozen instant if one is active, otherwise time.Now().
func Now() time.Time {
	mu.RLock()
	defer mu.RUnlock()
	if frozen != nil {
		return *frozen
	}
	return time.Now()
}

// Enter freezes Now() to t and returns a function that restores the
// previous freeze state (nil if there was none). Callers must defer the
// returned exit function so the freeze is released on every exit path,
// including panics.
//
//	restore := clock.Enter(fixtureTime)
//	defer restore()
func Enter(t time.Time) func() {
	mu.Lock()
	previous := frozen
	frozenCopy := t
	frozen = &frozenCopy
	mu.Unlock()

	return func() {
		mu.Lock()
		frozen = previous
		mu.Unlock()
	}
}

// Frozen reports whether a freeze is currently active.
func Frozen() bool {
	mu.RLock()
	defer mu.RUnlock()
	return frozen != nil
}
