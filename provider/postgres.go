// Package provider implements optional resolver.DataProvider backends
// for local development and fixture capture. spec.md's "data provider"
// external interface is transport-agnostic; this package supplies one
// concrete, Postgres-backed option grounded on the teacher's
// mpc_persistence.go transaction/upsert shape, generalized from
// MPC-decision storage to generic entity state/history. Plan storage
// itself is out of scope (spec.md Non-goal) — the planner always
// recomputes.
package provider

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/lib/pq"

	"github.com/devskill-org/ems-core/resolver"
)

// Postgres is a resolver.DataProvider backed by a `lib/pq` connection.
// It also exposes PutState/AppendHistory so a data-ingestion task can
// populate the entity tables (mirroring the teacher's
// runDataIntegration feed into mpc_decisions).
type Postgres struct {
	db     *sql.DB
	logger *log.Logger
}

// NewPostgres wraps an already-opened *sql.DB. A nil logger defaults
// to log.Default().
func NewPostgres(db *sql.DB, logger *log.Logger) *Postgres {
	if logger == nil {
		logger = log.Default()
	}
	return &Postgres{db: db, logger: logger}
}

// EnsureSchema creates the entity_states and entity_history tables if
// they do not already exist.
func (p *Postgres) EnsureSchema(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS entity_states (
			entity_id text PRIMARY KEY,
			state text NOT NULL,
			attributes jsonb NOT NULL DEFAULT '{}',
			last_updated timestamptz NOT NULL
		);
		CREATE TABLE IF NOT EXISTS entity_history (
			entity_id text NOT NULL,
			ts timestamptz NOT NULL,
			state text NOT NULL,
			PRIMARY KEY (entity_id, ts)
		);
	`)
	if err != nil {
		return fmt.Errorf("provider: ensure schema: %w", err)
	}
	return nil
}

// GetStates implements resolver.DataProvider.
func (p *Postgres) GetStates(ctx context.Context, entityIDs []string) (map[string]resolver.State, error) {
	out := make(map[string]resolver.State, len(entityIDs))
	if len(entityIDs) == 0 {
		return out, nil
	}

	rows, err := p.db.QueryContext(ctx, `
		SELECT entity_id, state, attributes
		FROM entity_states
		WHERE entity_id = ANY($1)
	`, pq.Array(entityIDs))
	if err != nil {
		return nil, fmt.Errorf("provider: query states: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id, state string
		var rawAttrs []byte
		if err := rows.Scan(&id, &state, &rawAttrs); err != nil {
			return nil, fmt.Errorf("provider: scan state: %w", err)
		}
		attrs := map[string]any{}
		if len(rawAttrs) > 0 {
			if err := json.Unmarshal(rawAttrs, &attrs); err != nil {
				return nil, fmt.Errorf("provider: unmarshal attributes for %q: %w", id, err)
			}
		}
		out[id] = resolver.State{EntityID: id, State: state, Attributes: attrs}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("provider: iterate states: %w", err)
	}
	return out, nil
}

// GetHistory implements resolver.DataProvider.
func (p *Postgres) GetHistory(ctx context.Context, entityID string, days int) ([]resolver.HistoryPoint, error) {
	since := time.Now().AddDate(0, 0, -days)

	rows, err := p.db.QueryContext(ctx, `
		SELECT ts, state
		FROM entity_history
		WHERE entity_id = $1 AND ts >= $2
		ORDER BY ts ASC
	`, entityID, since)
	if err != nil {
		return nil, fmt.Errorf("provider: query history for %q: %w", entityID, err)
	}
	defer rows.Close()

	var points []resolver.HistoryPoint
	for rows.Next() {
		var ts time.Time
		var state string
		if err := rows.Scan(&ts, &state); err != nil {
			return nil, fmt.Errorf("provider: scan history row: %w", err)
		}
		points = append(points, resolver.HistoryPoint{Time: ts, State: state})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("provider: iterate history: %w", err)
	}
	return points, nil
}

// PutState upserts one entity's current reading.
func (p *Postgres) PutState(ctx context.Context, st resolver.State, at time.Time) error {
	attrs, err := json.Marshal(st.Attributes)
	if err != nil {
		return fmt.Errorf("provider: marshal attributes for %q: %w", st.EntityID, err)
	}

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("provider: begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO entity_states (entity_id, state, attributes, last_updated)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (entity_id) DO UPDATE SET
			state = EXCLUDED.state,
			attributes = EXCLUDED.attributes,
			last_updated = EXCLUDED.last_updated
	`, st.EntityID, st.State, attrs, at)
	if err != nil {
		return fmt.Errorf("provider: upsert state for %q: %w", st.EntityID, err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO entity_history (entity_id, ts, state)
		VALUES ($1, $2, $3)
		ON CONFLICT (entity_id, ts) DO NOTHING
	`, st.EntityID, at, st.State)
	if err != nil {
		return fmt.Errorf("provider: insert history for %q: %w", st.EntityID, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("provider: commit: %w", err)
	}
	p.logger.Printf("provider: stored state for %s", st.EntityID)
	return nil
}
