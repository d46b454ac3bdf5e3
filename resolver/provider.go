package resolver

import (
	"context"
	"time"
)

// State is one entity's current reading: a textual state (mirroring
// home-automation entities, where even numeric sensors publish a
// string) plus arbitrary attributes such as a forecast array.
type State struct {
	EntityID   string
	State      string
	Attributes map[string]any
}

// HistoryPoint is one sample from an entity's state history.
type HistoryPoint struct {
	Time  time.Time
	State string
}

// DataProvider is the external collaborator that serves entity state
// and history; spec.md §1 places its concrete transport (WebSocket +
// REST) out of this core's scope. Implementations live outside this
// package (see provider/postgres.go for an optional backing store).
type DataProvider interface {
	GetStates(ctx context.Context, entityIDs []string) (map[string]State, error)
	GetHistory(ctx context.Context, entityID string, days int) ([]HistoryPoint, error)
}
