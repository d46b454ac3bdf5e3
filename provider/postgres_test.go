package provider

import (
	"context"
	"database/sql"
	"log"
	"os"
	"testing"
	"time"

	_ "github.com/lib/pq"
	"github.com/stretchr/testify/require"

	"github.com/devskill-org/ems-core/resolver"
)

func connectOrSkip(t *testing.T) *sql.DB {
	t.Helper()
	connString := os.Getenv("TEST_POSTGRES_CONN")
	if connString == "" {
		t.Skip("skipping: TEST_POSTGRES_CONN not set")
	}
	db, err := sql.Open("postgres", connString)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestPostgres_PutAndGetStateRoundTrips(t *testing.T) {
	db := connectOrSkip(t)
	p := NewPostgres(db, log.New(os.Stdout, "TEST: ", log.LstdFlags))
	ctx := context.Background()

	require.NoError(t, p.EnsureSchema(ctx))
	_, err := db.ExecContext(ctx, `DELETE FROM entity_states WHERE entity_id = $1`, "sensor.test_price")
	require.NoError(t, err)
	_, err = db.ExecContext(ctx, `DELETE FROM entity_history WHERE entity_id = $1`, "sensor.test_price")
	require.NoError(t, err)

	now := time.Now().Truncate(time.Second)
	st := resolver.State{EntityID: "sensor.test_price", State: "0.21", Attributes: map[string]any{"unit": "AUD/kWh"}}
	require.NoError(t, p.PutState(ctx, st, now))

	states, err := p.GetStates(ctx, []string{"sensor.test_price"})
	require.NoError(t, err)
	require.Contains(t, states, "sensor.test_price")
	require.Equal(t, "0.21", states["sensor.test_price"].State)
	require.Equal(t, "AUD/kWh", states["sensor.test_price"].Attributes["unit"])

	hist, err := p.GetHistory(ctx, "sensor.test_price", 1)
	require.NoError(t, err)
	require.Len(t, hist, 1)
	require.Equal(t, "0.21", hist[0].State)
}

func TestPostgres_GetStatesOmitsUnknownEntities(t *testing.T) {
	db := connectOrSkip(t)
	p := NewPostgres(db, nil)
	ctx := context.Background()
	require.NoError(t, p.EnsureSchema(ctx))

	states, err := p.GetStates(ctx, []string{"sensor.does_not_exist"})
	require.NoError(t, err)
	require.NotContains(t, states, "sensor.does_not_exist")
}
