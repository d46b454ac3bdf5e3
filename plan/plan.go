// Package plan extracts a solved MILP into a typed EmsPlanOutput
// (spec.md §3 Plan output, §4.6 Plan extractor).
package plan

import (
	"math"
	"time"

	"github.com/devskill-org/ems-core/horizon"
	"github.com/devskill-org/ems-core/milp"
	"github.com/devskill-org/ems-core/plant"
	"github.com/devskill-org/ems-core/solve"
)

// InverterStep is one inverter's state for one plan slot.
type InverterStep struct {
	PvKw               float64 `json:"pv_kw"`
	PvCurtailKw        float64 `json:"pv_curtail_kw"`
	AcNetKw            float64 `json:"ac_net_kw"`
	BatteryChargeKw    float64 `json:"battery_charge_kw,omitempty"`
	BatteryDischargeKw float64 `json:"battery_discharge_kw,omitempty"`
	BatterySocKwh      float64 `json:"battery_soc_kwh,omitempty"`
	BatterySocPct      float64 `json:"battery_soc_pct,omitempty"`
	Curtailment        bool    `json:"curtailment"`
}

// EVStep is one controlled load's state for one plan slot.
type EVStep struct {
	ChargeKw  float64 `json:"charge_kw"`
	SocKwh    float64 `json:"soc_kwh"`
	SocPct    float64 `json:"soc_pct"`
	Connected bool    `json:"connected"`
}

// Slot bundles one horizon slot's grid flows, economics, and per-device state.
type Slot struct {
	Index int       `json:"index"`
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`

	ImportKw          float64 `json:"import_kw"`
	ExportKw          float64 `json:"export_kw"`
	NetKw             float64 `json:"net_kw"`
	ImportViolationKw float64 `json:"import_violation_kw"`

	PriceImport          float64 `json:"price_import"`
	PriceExport          float64 `json:"price_export"`
	PriceImportEffective float64 `json:"price_import_effective"`
	PriceExportEffective float64 `json:"price_export_effective"`
	SegmentCost          float64 `json:"segment_cost"`
	CumulativeCost       float64 `json:"cumulative_cost"`

	Inverters map[string]InverterStep `json:"inverters"`
	EVs       map[string]EVStep       `json:"evs,omitempty"`
}

// Header carries plan-level metadata (spec.md §3 "Plan header").
type Header struct {
	GeneratedAt    time.Time     `json:"generated_at"`
	Status         solve.Status  `json:"status"`
	ObjectiveValue float64       `json:"objective_value"`
	BuildDuration  time.Duration `json:"build_duration"`
	SolveDuration  time.Duration `json:"solve_duration"`
	TotalDuration  time.Duration `json:"total_duration"`
	Message        string        `json:"message,omitempty"`
}

// Output is the complete, immutable plan (spec.md §3 "Plan output").
type Output struct {
	Header Header `json:"header"`
	Slots  []Slot `json:"slots"`
}

// RawPrices bundles the unbiased import/export price series so
// segment/cumulative cost reflects actual settlement prices rather
// than the MILP's risk/grid-biased steering prices: the objective
// optimizes against effective prices, while the plan's reported
// economics use the unbiased prices passed here.
type RawPrices struct {
	Import []float64
	Export []float64
}

// Extract walks h and handles, resolving every solver valuation (a
// missing value resolves to 0.0, per spec.md §4.5) into a fully
// populated Output. in is the same milp.Inputs used to Build the
// model; it supplies PV availability (for curtailment accounting),
// effective prices, and EV connection flags.
func Extract(h horizon.Horizon, handles *milp.Handles, in milp.Inputs, raw RawPrices, result solve.Result, header Header) Output {
	header.Status = result.Status
	header.ObjectiveValue = result.Objective
	out := Output{Header: header, Slots: make([]Slot, len(h.Slots))}

	cumulative := 0.0
	for t, s := range h.Slots {
		dtH := s.DurationHours()
		importKw := round3(valueOf(result.Values, handles.Import[t]))
		exportKw := round3(valueOf(result.Values, handles.Export[t]))
		violationKw := round3(valueOf(result.Values, handles.ImportViolation[t]))

		rawImport, rawExport := 0.0, 0.0
		if t < len(raw.Import) {
			rawImport = raw.Import[t]
		}
		if t < len(raw.Export) {
			rawExport = raw.Export[t]
		}
		segmentCost := (importKw*rawImport - exportKw*rawExport) * dtH
		cumulative += segmentCost

		slot := Slot{
			Index:                t,
			Start:                s.Start,
			End:                  s.End,
			ImportKw:             importKw,
			ExportKw:             exportKw,
			NetKw:                round3(importKw - exportKw),
			ImportViolationKw:    violationKw,
			PriceImport:          rawImport,
			PriceExport:          rawExport,
			PriceImportEffective: in.ImportPriceEff[t],
			PriceExportEffective: in.ExportPriceEff[t],
			SegmentCost:          segmentCost,
			CumulativeCost:       cumulative,
			Inverters:            make(map[string]InverterStep, len(handles.Inverters)),
		}
		if len(handles.EVs) > 0 {
			slot.EVs = make(map[string]EVStep, len(handles.EVs))
		}

		for id, ih := range handles.Inverters {
			slot.Inverters[id] = extractInverterStep(in, id, t, ih, result.Values)
		}
		for id, eh := range handles.EVs {
			slot.EVs[id] = extractEVStep(in, id, t, eh, result.Values)
		}

		out.Slots[t] = slot
	}

	return out
}

func extractInverterStep(in milp.Inputs, invID string, t int, ih milp.InverterHandles, values []float64) InverterStep {
	pv := valueOf(values, ih.PV[t])
	available := 0.0
	if series, ok := in.InverterPvAvailableKw[invID]; ok && t < len(series) {
		available = series[t]
	}
	curtailKw := available - pv

	step := InverterStep{
		PvKw:        round3(pv),
		PvCurtailKw: round3(curtailKw),
		AcNetKw:     round3(valueOf(values, ih.ACNet[t])),
		Curtailment: curtailKw > 0.01,
	}

	if ih.Chg != nil {
		step.BatteryChargeKw = round3(valueOf(values, ih.Chg[t]))
		step.BatteryDischargeKw = round3(valueOf(values, ih.Dis[t]))
	}
	if ih.E != nil && t+1 < len(ih.E) {
		// spec.md §4.6: SoC percent derives from E_batt[i,t+1], the
		// end-of-slot energy, not the starting knot.
		socKwh := valueOf(values, ih.E[t+1])
		step.BatterySocKwh = round3(socKwh)
	}
	return step
}

func extractEVStep(in milp.Inputs, loadID string, t int, eh milp.EVHandles, values []float64) EVStep {
	connected := false
	if series, ok := in.EVConnected[loadID]; ok && t < len(series) {
		connected = series[t]
	}
	socKwh := 0.0
	if t+1 < len(eh.E) {
		socKwh = valueOf(values, eh.E[t+1])
	}
	return EVStep{
		ChargeKw:  round3(valueOf(values, eh.P[t])),
		SocKwh:    round3(socKwh),
		Connected: connected,
	}
}

// FillSocPercent back-fills BatterySocPct/SocPct once capacities are
// known, since Extract itself does not carry plant.Config (it only
// needs milp.Inputs). Called by the planner immediately after Extract.
func FillSocPercent(out *Output, cfg *plant.Config) {
	capacities := make(map[string]float64, len(cfg.Inverters))
	for _, inv := range cfg.Inverters {
		if inv.Battery != nil {
			capacities[inv.ID] = inv.Battery.CapacityKwh
		}
	}
	evCapacities := make(map[string]float64, len(cfg.Loads))
	for _, l := range cfg.Loads {
		evCapacities[l.ID] = l.CapacityKwh
	}

	for i := range out.Slots {
		for id, step := range out.Slots[i].Inverters {
			if cap := capacities[id]; cap > 0 {
				step.BatterySocPct = round3(step.BatterySocKwh / cap * 100)
				out.Slots[i].Inverters[id] = step
			}
		}
		for id, step := range out.Slots[i].EVs {
			if cap := evCapacities[id]; cap > 0 {
				step.SocPct = round3(step.SocKwh / cap * 100)
				out.Slots[i].EVs[id] = step
			}
		}
	}
}

func valueOf(values []float64, v milp.Var) float64 {
	idx := v.Index()
	if idx < 0 || idx >= len(values) {
		return 0
	}
	return values[idx]
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
