package plan

import (
	"testing"
	"time"

	"github.com/devskill-org/ems-core/horizon"
	"github.com/devskill-org/ems-core/milp"
	"github.com/devskill-org/ems-core/plant"
	"github.com/devskill-org/ems-core/solve"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildTestHorizonAndModel(t *testing.T) (horizon.Horizon, *milp.ModelBuilder, milp.Inputs) {
	t.Helper()
	now := time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC)
	h, err := horizon.Build(horizon.Config{Now: now, TimestepMinutes: 5, TotalMinutes: 10})
	require.NoError(t, err)

	cfg := &plant.Config{
		Grid: plant.Grid{MaxImportKw: 10, MaxExportKw: 10},
		Inverters: []plant.Inverter{
			{ID: "inv1", PeakPowerKw: 5, Curtailment: plant.CurtailNone},
		},
	}

	in := milp.Inputs{
		Horizon:        h,
		Plant:          cfg,
		Now:            now,
		LoadKw:         []float64{1, 1},
		ImportPriceEff: []float64{0.2, 0.2},
		ExportPriceEff: []float64{0.05, 0.05},
		InverterPvAvailableKw: map[string][]float64{
			"inv1": {2, 2},
		},
	}

	b := milp.NewModelBuilder()
	return h, b, in
}

func TestExtract_PopulatesGridAndInverterFields(t *testing.T) {
	h, b, in := buildTestHorizonAndModel(t)
	handles, err := milp.Build(b, in)
	require.NoError(t, err)
	m := b.Compile()
	_ = m

	// Fake a solved valuation: PV fully used, 1kW import, 0 export.
	values := make([]float64, b.NumVars())
	values[handles.Import[0].Index()] = 1
	values[handles.Inverters["inv1"].PV[0].Index()] = 2
	values[handles.Inverters["inv1"].ACNet[0].Index()] = 2

	result := solve.Result{Status: solve.StatusOptimal, Objective: 0.2, Values: values}
	raw := RawPrices{Import: []float64{0.2, 0.2}, Export: []float64{0.05, 0.05}}

	out := Extract(h, handles, in, raw, result, Header{GeneratedAt: in.Now})

	require.Len(t, out.Slots, 2)
	assert.Equal(t, solve.StatusOptimal, out.Header.Status)
	assert.InDelta(t, 1.0, out.Slots[0].ImportKw, 1e-9)
	assert.InDelta(t, 0.0, out.Slots[0].ExportKw, 1e-9)
	assert.InDelta(t, 2.0, out.Slots[0].Inverters["inv1"].PvKw, 1e-9)
	assert.False(t, out.Slots[0].Inverters["inv1"].Curtailment)
}

func TestExtract_MissingValuationResolvesToZero(t *testing.T) {
	h, b, in := buildTestHorizonAndModel(t)
	handles, err := milp.Build(b, in)
	require.NoError(t, err)

	result := solve.Result{Status: solve.StatusNotSolved, Values: nil}
	raw := RawPrices{Import: []float64{0.2, 0.2}, Export: []float64{0.05, 0.05}}
	out := Extract(h, handles, in, raw, result, Header{})

	assert.Equal(t, 0.0, out.Slots[0].ImportKw)
	assert.Equal(t, 0.0, out.Slots[0].Inverters["inv1"].PvKw)
}
