package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devskill-org/ems-core/intent"
	"github.com/devskill-org/ems-core/plan"
	"github.com/devskill-org/ems-core/planner"
	"github.com/devskill-org/ems-core/plant"
)

func testServer(t *testing.T, solveFn planner.SolveFunc) (*Server, *planner.Planner) {
	t.Helper()
	p := planner.New(solveFn, time.Millisecond, nil)
	t.Cleanup(p.Stop)
	cfg := &plant.Config{Grid: plant.Grid{MaxImportKw: 10, MaxExportKw: 10}}
	return New(p, cfg, "127.0.0.1:0", nil), p
}

func TestRunHandler_AcceptsAndReturnsRunState(t *testing.T) {
	release := make(chan struct{})
	s, _ := testServer(t, func(ctx context.Context) (plan.Output, intent.Output, error) {
		<-release
		return plan.Output{Header: plan.Header{GeneratedAt: time.Now()}}, intent.Output{}, nil
	})
	defer close(release)

	req := httptest.NewRequest(http.MethodPost, "/plan/run", nil)
	rec := httptest.NewRecorder()
	s.runHandler(rec, req)

	require.Equal(t, http.StatusAccepted, rec.Code)
	var resp runResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.AlreadyRunning)
	assert.NotEmpty(t, resp.Run.ID)
}

func TestLatestHandler_404BeforeAnyPublication(t *testing.T) {
	s, _ := testServer(t, func(ctx context.Context) (plan.Output, intent.Output, error) {
		<-ctx.Done()
		return plan.Output{}, intent.Output{}, ctx.Err()
	})

	req := httptest.NewRequest(http.MethodGet, "/plan/latest", nil)
	rec := httptest.NewRecorder()
	s.latestHandler(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAwaitHandler_NoContentOnTimeout(t *testing.T) {
	s, _ := testServer(t, func(ctx context.Context) (plan.Output, intent.Output, error) {
		<-ctx.Done()
		return plan.Output{}, intent.Output{}, ctx.Err()
	})

	req := httptest.NewRequest(http.MethodGet, "/plan/await?timeout=0.05", nil)
	rec := httptest.NewRecorder()
	s.awaitHandler(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestSettingsHandler_PostIsReadOnly(t *testing.T) {
	s, _ := testServer(t, func(ctx context.Context) (plan.Output, intent.Output, error) {
		<-ctx.Done()
		return plan.Output{}, intent.Output{}, ctx.Err()
	})

	req := httptest.NewRequest(http.MethodPost, "/settings", nil)
	rec := httptest.NewRecorder()
	s.settingsHandler(rec, req)

	assert.Equal(t, http.StatusNotImplemented, rec.Code)
}

func TestSettingsHandler_GetRedactsSources(t *testing.T) {
	p := planner.New(func(ctx context.Context) (plan.Output, intent.Output, error) {
		<-ctx.Done()
		return plan.Output{}, intent.Output{}, ctx.Err()
	}, time.Millisecond, nil)
	t.Cleanup(p.Stop)
	cfg := &plant.Config{
		Grid: plant.Grid{
			MaxImportKw:       10,
			ImportPriceSource: plant.Source{Kind: "entity", EntityID: "sensor.price"},
		},
	}
	s := New(p, cfg, "127.0.0.1:0", nil)

	req := httptest.NewRequest(http.MethodGet, "/settings", nil)
	rec := httptest.NewRecorder()
	s.settingsHandler(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "sensor.price")
}
