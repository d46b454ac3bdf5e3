// Package fixture implements the deterministic snapshot/replay/summary
// harness spec.md §4.9 describes: capture a point-in-time copy of every
// resolved provider entity, replay it through the planner with time
// frozen, and reduce the resulting plan to a hashable summary for
// regression comparison. Grounded on the teacher's
// scheduler.saveMPCDecisions capture-then-persist shape, generalized
// from a one-way write into a capture/replay round trip.
package fixture

import (
	"context"
	"time"

	"github.com/devskill-org/ems-core/resolver"
)

// Snapshot is a frozen copy of every entity the resolver touched during
// one pass: current states and bounded history. It is the unit the
// fixture bundle's ems_fixture.json persists.
type Snapshot struct {
	CapturedAt time.Time                          `json:"captured_at"`
	States     map[string]resolver.State          `json:"states"`
	Histories  map[string][]resolver.HistoryPoint `json:"histories"`
}

// Capture fetches states and history for entityIDs from dp and bundles
// them as a Snapshot timestamped at. historyDays is passed through to
// dp.GetHistory for every entity.
func Capture(ctx context.Context, dp resolver.DataProvider, entityIDs []string, historyDays int, at time.Time) (*Snapshot, error) {
	states, err := dp.GetStates(ctx, entityIDs)
	if err != nil {
		return nil, err
	}

	histories := make(map[string][]resolver.HistoryPoint, len(entityIDs))
	for _, id := range entityIDs {
		h, err := dp.GetHistory(ctx, id, historyDays)
		if err != nil {
			return nil, err
		}
		histories[id] = h
	}

	return &Snapshot{CapturedAt: at, States: states, Histories: histories}, nil
}

// Provider returns a resolver.DataProvider that serves s's captured
// data with no network access, for fixture replay.
func (s *Snapshot) Provider() resolver.DataProvider {
	return &replayProvider{snap: s}
}

type replayProvider struct {
	snap *Snapshot
}

func (r *replayProvider) GetStates(ctx context.Context, entityIDs []string) (map[string]resolver.State, error) {
	out := make(map[string]resolver.State, len(entityIDs))
	for _, id := range entityIDs {
		if st, ok := r.snap.States[id]; ok {
			out[id] = st
		}
	}
	return out, nil
}

func (r *replayProvider) GetHistory(ctx context.Context, entityID string, days int) ([]resolver.HistoryPoint, error) {
	return r.snap.Histories[entityID], nil
}
