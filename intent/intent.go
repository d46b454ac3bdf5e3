// Package intent derives the finite set of per-inverter and per-load
// operational modes from a plan's first step (spec.md §4.7). It is the
// boundary between the optimizer's continuous plan and a downstream
// controller's discrete command set.
package intent

import (
	"github.com/devskill-org/ems-core/plan"
	"github.com/devskill-org/ems-core/plant"
)

// DefaultEpsilon is the default tolerance (kW) the mode table
// evaluates thresholds against.
const DefaultEpsilon = 0.15

// InverterMode enumerates the operational modes an inverter can be
// commanded into.
type InverterMode string

const (
	ModeBackup          InverterMode = "backup"
	ModeForceCharge     InverterMode = "force_charge"
	ModeForceDischarge  InverterMode = "force_discharge"
	ModeExportPriority  InverterMode = "export_priority"
	ModeSelfConsumption InverterMode = "self_consumption"
)

// InverterIntent is the compact directive for one inverter.
type InverterIntent struct {
	Mode          InverterMode `json:"mode"`
	ChargeKw      float64      `json:"charge_kw,omitempty"`
	DischargeKw   float64      `json:"discharge_kw,omitempty"`
	ExportLimitKw float64      `json:"export_limit_kw"`
}

// EvIntent is the compact directive for one controlled load.
type EvIntent struct {
	ChargeKw float64 `json:"charge_kw"`
	ChargeOn bool    `json:"charge_on"`
}

// Output bundles every device's intent for one plan.
type Output struct {
	Inverters map[string]InverterIntent `json:"inverters"`
	EVs       map[string]EvIntent       `json:"evs"`
}

// Project computes Output from slot (the plan's first step) and cfg,
// using epsilon to tolerate near-zero floating point noise. A
// non-positive epsilon falls back to DefaultEpsilon.
func Project(slot plan.Slot, cfg *plant.Config, epsilon float64) Output {
	if epsilon <= 0 {
		epsilon = DefaultEpsilon
	}

	out := Output{
		Inverters: make(map[string]InverterIntent, len(cfg.Inverters)),
		EVs:       make(map[string]EvIntent, len(cfg.Loads)),
	}

	for _, inv := range cfg.Inverters {
		step := slot.Inverters[inv.ID]
		out.Inverters[inv.ID] = projectInverter(slot, cfg.Grid, inv, step, epsilon)
	}
	for _, l := range cfg.Loads {
		evStep := slot.EVs[l.ID]
		out.EVs[l.ID] = EvIntent{
			ChargeKw: evStep.ChargeKw,
			ChargeOn: evStep.Connected && evStep.ChargeKw >= l.MinPowerKw,
		}
	}
	return out
}

func projectInverter(slot plan.Slot, grid plant.Grid, inv plant.Inverter, step plan.InverterStep, eps float64) InverterIntent {
	discharge := step.BatteryDischargeKw
	charge := step.BatteryChargeKw
	acNet := step.AcNetKw
	importKw := slot.ImportKw
	exportKw := slot.ExportKw
	priceExport := slot.PriceExportEffective

	mode := classify(discharge, importKw, acNet, exportKw, priceExport, eps)

	intent := InverterIntent{Mode: mode}

	switch mode {
	case ModeForceCharge:
		intent.ChargeKw = clampToCap(-acNet, maxChargeKw(inv))
		intent.ExportLimitKw = exportLimitForCharge(priceExport, grid)
	case ModeForceDischarge:
		intent.DischargeKw = clampToCap(discharge, maxDischargeKw(inv))
		intent.ExportLimitKw = exportLimitForDischarge(priceExport, grid, exportKw, discharge, maxDischargeKw(inv), eps)
	default:
		intent.ExportLimitKw = exportLimitDefault(priceExport, grid)
	}

	return intent
}

// classify implements the mode table in spec.md §4.7, evaluated in
// order; the first matching row wins.
func classify(discharge, importKw, acNet, exportKw, priceExport, eps float64) InverterMode {
	switch {
	case discharge <= eps && importKw > eps && acNet >= -eps:
		return ModeBackup
	case priceExport < 0 && acNet < -eps:
		return ModeForceCharge
	case priceExport < 0:
		return ModeSelfConsumption
	case acNet < -eps:
		return ModeForceCharge
	case discharge > eps && exportKw > eps:
		return ModeForceDischarge
	case exportKw > eps && discharge <= eps:
		return ModeExportPriority
	default:
		return ModeSelfConsumption
	}
}

func exportLimitForCharge(priceExport float64, grid plant.Grid) float64 {
	if priceExport < 0 {
		return 0
	}
	return grid.MaxExportKw
}

func exportLimitDefault(priceExport float64, grid plant.Grid) float64 {
	if priceExport < 0 {
		return 0
	}
	return grid.MaxExportKw
}

// exportLimitForDischarge implements spec.md §4.7's Force Discharge
// export limit rule: min(normal_limit, max(0, grid_export)), unless
// the inverter is already at its max discharge capacity, in which
// case the full (normal) limit applies.
func exportLimitForDischarge(priceExport float64, grid plant.Grid, gridExport, discharge, maxDischargeKw, eps float64) float64 {
	if priceExport < 0 {
		return 0
	}
	normal := grid.MaxExportKw
	if maxDischargeKw > 0 && discharge >= maxDischargeKw-eps {
		return normal
	}
	limited := gridExport
	if limited < 0 {
		limited = 0
	}
	if limited < normal {
		return limited
	}
	return normal
}

func maxChargeKw(inv plant.Inverter) float64 {
	if inv.Battery == nil {
		return 0
	}
	return inv.Battery.MaxChargeKw
}

func maxDischargeKw(inv plant.Inverter) float64 {
	if inv.Battery == nil {
		return 0
	}
	return inv.Battery.MaxDischargeKw
}

func clampToCap(kw, cap float64) float64 {
	if kw < 0 {
		return 0
	}
	if cap > 0 && kw > cap {
		return cap
	}
	return kw
}
