package intent

import (
	"testing"

	"github.com/devskill-org/ems-core/plan"
	"github.com/devskill-org/ems-core/plant"
	"github.com/stretchr/testify/assert"
)

func testPlant() *plant.Config {
	return &plant.Config{
		Grid: plant.Grid{MaxImportKw: 10, MaxExportKw: 5},
		Inverters: []plant.Inverter{
			{
				ID:          "inv1",
				PeakPowerKw: 5,
				Battery: &plant.Battery{
					MaxChargeKw:    3,
					MaxDischargeKw: 3,
				},
			},
		},
		Loads: []plant.LoadConfig{
			{ID: "ev1", MinPowerKw: 1.4, MaxPowerKw: 7},
		},
	}
}

func TestProject_Backup(t *testing.T) {
	slot := plan.Slot{
		ImportKw: 2,
		ExportKw: 0,
		Inverters: map[string]plan.InverterStep{
			"inv1": {AcNetKw: 0, BatteryDischargeKw: 0},
		},
	}
	out := Project(slot, testPlant(), 0)
	assert.Equal(t, ModeBackup, out.Inverters["inv1"].Mode)
}

func TestProject_ForceChargeOnNegativeExportPrice(t *testing.T) {
	slot := plan.Slot{
		PriceExportEffective: -0.1,
		Inverters: map[string]plan.InverterStep{
			"inv1": {AcNetKw: -2},
		},
	}
	out := Project(slot, testPlant(), 0)
	assert.Equal(t, ModeForceCharge, out.Inverters["inv1"].Mode)
	assert.InDelta(t, 2.0, out.Inverters["inv1"].ChargeKw, 1e-9)
	assert.Equal(t, 0.0, out.Inverters["inv1"].ExportLimitKw)
}

func TestProject_ForceDischarge(t *testing.T) {
	slot := plan.Slot{
		ExportKw:             4,
		PriceExportEffective: 0.1,
		Inverters: map[string]plan.InverterStep{
			"inv1": {BatteryDischargeKw: 2, AcNetKw: 4},
		},
	}
	out := Project(slot, testPlant(), 0)
	assert.Equal(t, ModeForceDischarge, out.Inverters["inv1"].Mode)
	assert.InDelta(t, 2.0, out.Inverters["inv1"].DischargeKw, 1e-9)
}

func TestProject_EVChargeOn(t *testing.T) {
	slot := plan.Slot{
		EVs: map[string]plan.EVStep{
			"ev1": {ChargeKw: 2.0, Connected: true},
		},
	}
	out := Project(slot, testPlant(), 0)
	assert.True(t, out.EVs["ev1"].ChargeOn)

	slot.EVs["ev1"] = plan.EVStep{ChargeKw: 0.5, Connected: true}
	out = Project(slot, testPlant(), 0)
	assert.False(t, out.EVs["ev1"].ChargeOn)
}

func TestProject_Deterministic(t *testing.T) {
	slot := plan.Slot{
		ExportKw: 4,
		Inverters: map[string]plan.InverterStep{
			"inv1": {BatteryDischargeKw: 2, AcNetKw: 4},
		},
	}
	a := Project(slot, testPlant(), 0)
	b := Project(slot, testPlant(), 0)
	assert.Equal(t, a, b)
}
