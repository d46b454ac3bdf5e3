// Package resolver mediates between plant.Source configuration and an
// external data provider: marking required entities, hydrating them in
// bulk, and mapping each typed source to a concrete value (spec.md
// §4.3). It owns the marked-entity set and hydrated cache for exactly
// one planning pass (spec.md §3 Ownership).
package resolver

import (
	"context"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/devskill-org/ems-core/plant"
)

var truthyStates = map[string]bool{
	"on": true, "true": true, "1": true, "yes": true, "open": true, "home": true,
}

type mark struct {
	entityID       string
	needsHistory   bool
	maxHistoryDays int
}

// Resolver is not safe for concurrent use; the planner creates one per
// run.
type Resolver struct {
	logger *log.Logger

	marks     map[string]*mark
	states    map[string]State
	histories map[string][]HistoryPoint
}

// New returns a Resolver; a nil logger defaults to log.Default(), the
// same convention as the teacher's MinerScheduler.
func New(logger *log.Logger) *Resolver {
	if logger == nil {
		logger = log.Default()
	}
	return &Resolver{
		logger: logger,
		marks:  make(map[string]*mark),
	}
}

// Mark registers every entity a Source touches. Idempotent: marking
// the same entity_id twice (possibly with different history_days)
// merges to the maximum requested retention.
func (r *Resolver) Mark(src plant.Source) error {
	switch src.Kind {
	case "entity":
		r.markOne(src.EntityID, false, 0)
	case "multi_entity":
		for _, id := range src.EntityIDs {
			r.markOne(id, false, 0)
		}
	case "history_entity":
		r.markOne(src.EntityID, true, src.HistoryDays)
	default:
		return &ResolveError{EntityID: src.EntityID, Msg: "unknown source kind " + src.Kind}
	}
	return nil
}

func (r *Resolver) markOne(entityID string, needsHistory bool, historyDays int) {
	if entityID == "" {
		return
	}
	m, ok := r.marks[entityID]
	if !ok {
		r.marks[entityID] = &mark{entityID: entityID, needsHistory: needsHistory, maxHistoryDays: historyDays}
		return
	}
	m.needsHistory = m.needsHistory || needsHistory
	if historyDays > m.maxHistoryDays {
		m.maxHistoryDays = historyDays
	}
}

// Hydrate fetches every marked entity's state, and history for those
// that need it, retrying transient provider failures with bounded
// backoff before surfacing a ResolveError. Entities that were never
// marked are never fetched.
func (r *Resolver) Hydrate(ctx context.Context, provider DataProvider) error {
	ids := make([]string, 0, len(r.marks))
	for id := range r.marks {
		ids = append(ids, id)
	}

	if len(ids) == 0 {
		r.states = map[string]State{}
		r.histories = map[string][]HistoryPoint{}
		return nil
	}

	states, err := r.withRetryStates(ctx, func() (map[string]State, error) {
		return provider.GetStates(ctx, ids)
	})
	if err != nil {
		return err
	}
	r.states = states

	r.histories = make(map[string][]HistoryPoint)
	for _, m := range r.marks {
		if !m.needsHistory {
			continue
		}
		history, err := r.withRetryHistory(ctx, m.entityID, func() ([]HistoryPoint, error) {
			return provider.GetHistory(ctx, m.entityID, m.maxHistoryDays)
		})
		if err != nil {
			return err
		}
		r.histories[m.entityID] = history
	}
	return nil
}

const (
	maxHydrateAttempts = 3
	hydrateBackoff     = 200 * time.Millisecond
)

func (r *Resolver) withRetryStates(ctx context.Context, fn func() (map[string]State, error)) (map[string]State, error) {
	var lastErr error
	for attempt := 0; attempt < maxHydrateAttempts; attempt++ {
		states, err := fn()
		if err == nil {
			return states, nil
		}
		lastErr = err
		r.logger.Printf("resolver: hydrate attempt %d/%d failed: %v", attempt+1, maxHydrateAttempts, err)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(hydrateBackoff * time.Duration(attempt+1)):
		}
	}
	return nil, &ResolveError{Msg: "exhausted retries fetching states", Err: lastErr}
}

func (r *Resolver) withRetryHistory(ctx context.Context, entityID string, fn func() ([]HistoryPoint, error)) ([]HistoryPoint, error) {
	var lastErr error
	for attempt := 0; attempt < maxHydrateAttempts; attempt++ {
		history, err := fn()
		if err == nil {
			return history, nil
		}
		lastErr = err
		r.logger.Printf("resolver: history fetch for %s attempt %d/%d failed: %v", entityID, attempt+1, maxHydrateAttempts, err)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(hydrateBackoff * time.Duration(attempt+1)):
		}
	}
	return nil, &ResolveError{EntityID: entityID, Msg: "exhausted retries fetching history", Err: lastErr}
}

// State returns the hydrated state for entityID, or a ResolveError if
// it was never marked or never hydrated.
func (r *Resolver) State(entityID string) (State, error) {
	s, ok := r.states[entityID]
	if !ok {
		return State{}, &ResolveError{EntityID: entityID, Msg: "entity was not hydrated (was it marked?)"}
	}
	return s, nil
}

// History returns the hydrated history points for entityID.
func (r *Resolver) History(entityID string) ([]HistoryPoint, error) {
	h, ok := r.histories[entityID]
	if !ok {
		return nil, &ResolveError{EntityID: entityID, Msg: "history was not hydrated (was it marked as history_entity?)"}
	}
	return h, nil
}

// ResolveScalarKw parses a single entity's state as a power value.
func (r *Resolver) ResolveScalarKw(src plant.Source) (float64, error) {
	s, err := r.State(src.EntityID)
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(s.State), 64)
	if err != nil {
		return 0, &ResolveError{EntityID: src.EntityID, Msg: "state is not numeric", Err: err}
	}
	return v, nil
}

// ResolveBool applies textual-state recognition the way home-automation
// entities report booleans ("on"/"off", "true"/"false", "1"/"0").
func (r *Resolver) ResolveBool(src plant.Source) (bool, error) {
	s, err := r.State(src.EntityID)
	if err != nil {
		return false, err
	}
	return truthyStates[strings.ToLower(strings.TrimSpace(s.State))], nil
}
