package fixture

import "github.com/devskill-org/ems-core/clock"

// Replay freezes the process clock to s.CapturedAt for the duration of
// fn, guaranteeing restoration on every exit path including a panic
// (spec.md §9 "Wall-clock freezing for determinism").
func Replay(s *Snapshot, fn func() error) error {
	restore := clock.Enter(s.CapturedAt)
	defer restore()
	return fn()
}
