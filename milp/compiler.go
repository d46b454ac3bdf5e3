package milp

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/devskill-org/ems-core/horizon"
	"github.com/devskill-org/ems-core/plant"
)

const (
	violationPenaltyPerKwh = 1e3
	earlyFlowBiasCoeff     = -1e-4
	curtailTieBreakCoeff   = 1e-6
	zeroExportTieBreak     = 1e-4
	evRampPenaltyCoeff     = 1e-4
	evAnchorPenaltyCoeff   = 5e-2
)

// Inputs bundles every per-slot resolved value the compiler needs.
// All per-slot slices must have len(horizon.Slots) entries.
type Inputs struct {
	Horizon horizon.Horizon
	Plant   *plant.Config
	Now     time.Time

	LoadKw         []float64
	ImportPriceEff []float64
	ExportPriceEff []float64

	// InverterPvAvailableKw[i] is inverter i's unconstrained PV
	// availability per slot.
	InverterPvAvailableKw map[string][]float64
	InverterInitialSocKwh map[string]float64
	// InverterAdaptiveTargetKwh, if set for inverter i, switches its
	// terminal SoC constraint to adaptive mode with a penalty term.
	InverterAdaptiveTargetKwh map[string]float64

	EVConnected        map[string][]bool
	EVCanConnect       map[string][]bool // nil means always true
	EVInitialSocKwh    map[string]float64
	EVRealtimePowerKw  map[string]float64
	EVGraceMinutes     map[string]int
}

// Handles exposes every declared variable's handle, keyed the way the
// plan extractor needs to walk them back out after solving.
type Handles struct {
	Import          []Var
	Export          []Var
	ImportViolation []Var
	GridImportOn    []Var

	Inverters map[string]InverterHandles
	EVs       map[string]EVHandles
}

// InverterHandles holds one inverter's per-slot and per-knot variables.
type InverterHandles struct {
	PV      []Var
	ACNet   []Var
	Curtail []Var // nil unless curtailment != none
	Chg     []Var // nil unless battery present
	Dis     []Var
	ChgMode []Var
	E       []Var // length N+1, nil unless battery present
}

// EVHandles holds one controlled load's per-slot and per-knot variables.
type EVHandles struct {
	P      []Var
	E      []Var // length N+1
	On     []Var // nil unless min_power > 0
	Ramp   []Var
	Anchor Var
	Inc    []Var
}

// Build compiles one horizon's worth of EMS variables, constraints,
// and objective onto b, per spec.md §4.5.
func Build(b *ModelBuilder, in Inputs) (*Handles, error) {
	n := len(in.Horizon.Slots)
	if n == 0 {
		return nil, fmt.Errorf("milp: horizon has no slots")
	}

	h := &Handles{
		Inverters: make(map[string]InverterHandles, len(in.Plant.Inverters)),
		EVs:       make(map[string]EVHandles, len(in.Plant.Loads)),
	}

	allowed, err := forbiddenWindowAllowance(in.Plant.Grid.ForbiddenImportWindows, in.Horizon)
	if err != nil {
		return nil, err
	}

	buildGridVars(b, in, h)
	for _, inv := range in.Plant.Inverters {
		ih, err := buildInverter(b, in, inv)
		if err != nil {
			return nil, fmt.Errorf("milp: inverter %q: %w", inv.ID, err)
		}
		h.Inverters[inv.ID] = ih
	}
	for _, l := range in.Plant.Loads {
		eh, err := buildEV(b, in, l)
		if err != nil {
			return nil, fmt.Errorf("milp: load %q: %w", l.ID, err)
		}
		h.EVs[l.ID] = eh
	}

	buildGridConstraints(b, in, h, allowed)
	buildACBalance(b, in, h)
	buildObjective(b, in, h)

	return h, nil
}

func buildGridVars(b *ModelBuilder, in Inputs, h *Handles) {
	n := len(in.Horizon.Slots)
	h.Import = make([]Var, n)
	h.Export = make([]Var, n)
	h.ImportViolation = make([]Var, n)
	h.GridImportOn = make([]Var, n)
	for t := 0; t < n; t++ {
		h.Import[t] = b.AddContinuous(fmt.Sprintf("P_import[%d]", t), 0, in.Plant.Grid.MaxImportKw)
		h.Export[t] = b.AddContinuous(fmt.Sprintf("P_export[%d]", t), 0, in.Plant.Grid.MaxExportKw)
		h.ImportViolation[t] = b.AddContinuous(fmt.Sprintf("P_import_violation[%d]", t), 0, in.Plant.Grid.MaxImportKw)
		h.GridImportOn[t] = b.AddBinary(fmt.Sprintf("grid_import_on[%d]", t))
	}
}

func buildGridConstraints(b *ModelBuilder, in Inputs, h *Handles, allowed []bool) {
	grid := in.Plant.Grid
	for t, slot := range in.Horizon.Slots {
		// Disjoint flow.
		b.AddConstraint(fmt.Sprintf("grid_import_disjoint[%d]", t),
			map[Var]float64{h.Import[t]: 1, h.GridImportOn[t]: -grid.MaxImportKw}, LE, 0)
		b.AddConstraint(fmt.Sprintf("grid_export_disjoint[%d]", t),
			map[Var]float64{h.Export[t]: 1, h.GridImportOn[t]: grid.MaxExportKw}, LE, grid.MaxExportKw)

		// Forbidden import with slack.
		allowedVal := 0.0
		if allowed[t] {
			allowedVal = 1.0
		}
		b.AddConstraint(fmt.Sprintf("grid_forbidden_import[%d]", t),
			map[Var]float64{h.Import[t]: 1, h.ImportViolation[t]: -1}, LE, grid.MaxImportKw*allowedVal)

		_ = slot
	}
}

func forbiddenWindowAllowance(windows []plant.TimeWindow, h horizon.Horizon) ([]bool, error) {
	allowed := make([]bool, len(h.Slots))
	for i, slot := range h.Slots {
		ok, err := plant.AnyContains(windows, slot.Start)
		if err != nil {
			return nil, err
		}
		// A forbidden-import window list names when import IS
		// forbidden; "allowed" is its complement when any window
		// matches, otherwise unrestricted.
		if len(windows) == 0 {
			allowed[i] = true
		} else {
			allowed[i] = !ok
		}
	}
	return allowed, nil
}

func buildInverter(b *ModelBuilder, in Inputs, inv plant.Inverter) (InverterHandles, error) {
	n := len(in.Horizon.Slots)
	ih := InverterHandles{PV: make([]Var, n), ACNet: make([]Var, n)}

	pvAvailable := in.InverterPvAvailableKw[inv.ID]
	if len(pvAvailable) != n {
		return ih, fmt.Errorf("pv availability series has %d entries, want %d", len(pvAvailable), n)
	}

	if inv.Curtailment != plant.CurtailNone {
		ih.Curtail = make([]Var, n)
	}
	if inv.Battery != nil {
		ih.Chg = make([]Var, n)
		ih.Dis = make([]Var, n)
		ih.ChgMode = make([]Var, n)
		ih.E = make([]Var, n+1)
	}

	for t := 0; t < n; t++ {
		ih.PV[t] = b.AddContinuous(fmt.Sprintf("P_pv[%s,%d]", inv.ID, t), 0, pvAvailable[t])
		ih.ACNet[t] = b.AddContinuous(fmt.Sprintf("P_inv_ac_net[%s,%d]", inv.ID, t), -inv.PeakPowerKw, inv.PeakPowerKw)

		switch inv.Curtailment {
		case plant.CurtailNone:
			b.AddConstraint(fmt.Sprintf("pv_fixed[%s,%d]", inv.ID, t),
				map[Var]float64{ih.PV[t]: 1}, EQ, pvAvailable[t])
		case plant.CurtailBinary:
			ih.Curtail[t] = b.AddBinary(fmt.Sprintf("curtail[%s,%d]", inv.ID, t))
			// P_pv == pv_available * (1 - curtail) linearized:
			// P_pv == pv_available - pv_available*curtail
			b.AddConstraint(fmt.Sprintf("pv_binary_curtail[%s,%d]", inv.ID, t),
				map[Var]float64{ih.PV[t]: 1, ih.Curtail[t]: pvAvailable[t]}, EQ, pvAvailable[t])
		case plant.CurtailLoadAware:
			ih.Curtail[t] = b.AddBinary(fmt.Sprintf("curtail[%s,%d]", inv.ID, t))
			b.AddConstraint(fmt.Sprintf("pv_loadaware_upper[%s,%d]", inv.ID, t),
				map[Var]float64{ih.PV[t]: 1}, LE, pvAvailable[t])
			b.AddConstraint(fmt.Sprintf("pv_loadaware_lower[%s,%d]", inv.ID, t),
				map[Var]float64{ih.PV[t]: 1, ih.Curtail[t]: pvAvailable[t]}, GE, pvAvailable[t])
			b.AddConstraint(fmt.Sprintf("export_loadaware_cap[%s,%d]", inv.ID, t),
				map[Var]float64{ih.Curtail[t]: in.Plant.Grid.MaxExportKw}, LE, in.Plant.Grid.MaxExportKw)
		}

		if inv.Battery == nil {
			b.AddConstraint(fmt.Sprintf("ac_net_no_battery[%s,%d]", inv.ID, t),
				map[Var]float64{ih.ACNet[t]: 1, ih.PV[t]: -1}, EQ, 0)
		}
	}

	if bat := inv.Battery; bat != nil {
		if err := buildBattery(b, in, inv, bat, &ih); err != nil {
			return ih, err
		}
	}

	return ih, nil
}

func buildBattery(b *ModelBuilder, in Inputs, inv plant.Inverter, bat *plant.Battery, ih *InverterHandles) error {
	n := len(in.Horizon.Slots)
	minKwh := bat.CapacityKwh * bat.MinSocPct / 100
	maxKwh := bat.CapacityKwh * bat.MaxSocPct / 100
	eta := math.Sqrt(clamp01(bat.StorageEfficiency))

	for k := 0; k <= n; k++ {
		ih.E[k] = b.AddContinuous(fmt.Sprintf("E_batt[%s,%d]", inv.ID, k), minKwh, maxKwh)
	}

	initial, ok := in.InverterInitialSocKwh[inv.ID]
	if !ok {
		return fmt.Errorf("missing initial SoC for inverter")
	}
	b.AddConstraint(fmt.Sprintf("batt_initial[%s]", inv.ID), map[Var]float64{ih.E[0]: 1}, EQ, initial)

	for t, slot := range in.Horizon.Slots {
		ih.ChgMode[t] = b.AddBinary(fmt.Sprintf("chg_mode[%s,%d]", inv.ID, t))
		ih.Chg[t] = b.AddContinuous(fmt.Sprintf("P_chg[%s,%d]", inv.ID, t), 0, bat.MaxChargeKw)
		ih.Dis[t] = b.AddContinuous(fmt.Sprintf("P_dis[%s,%d]", inv.ID, t), 0, bat.MaxDischargeKw)

		b.AddConstraint(fmt.Sprintf("batt_chg_cap[%s,%d]", inv.ID, t),
			map[Var]float64{ih.Chg[t]: 1, ih.ChgMode[t]: -bat.MaxChargeKw}, LE, 0)
		b.AddConstraint(fmt.Sprintf("batt_dis_cap[%s,%d]", inv.ID, t),
			map[Var]float64{ih.Dis[t]: 1, ih.ChgMode[t]: bat.MaxDischargeKw}, LE, bat.MaxDischargeKw)

		b.AddConstraint(fmt.Sprintf("ac_net_with_battery[%s,%d]", inv.ID, t),
			map[Var]float64{ih.ACNet[t]: 1, ih.PV[t]: -1, ih.Dis[t]: -1, ih.Chg[t]: 1}, EQ, 0)

		dtH := slot.DurationHours()
		b.AddConstraint(fmt.Sprintf("batt_soc_balance[%s,%d]", inv.ID, t),
			map[Var]float64{ih.E[t+1]: 1, ih.E[t]: -1, ih.Chg[t]: -eta * dtH, ih.Dis[t]: dtH / eta}, EQ, 0)
	}

	if bat.AdaptiveTarget {
		target, ok := in.InverterAdaptiveTargetKwh[inv.ID]
		if !ok {
			target = initial
		}
		penalty := b.AddContinuous(fmt.Sprintf("batt_terminal_penalty[%s]", inv.ID), 0, maxKwh)
		b.AddConstraint(fmt.Sprintf("batt_terminal_adaptive[%s]", inv.ID),
			map[Var]float64{ih.E[n]: 1, penalty: 1}, GE, target)
		b.AddObjectiveTerm(penalty, 1.0)
	} else {
		b.AddConstraint(fmt.Sprintf("batt_terminal_hard[%s]", inv.ID),
			map[Var]float64{ih.E[n]: 1}, GE, initial)
	}

	if bat.WearCostPerKwh > 0 {
		for t, slot := range in.Horizon.Slots {
			dtH := slot.DurationHours()
			b.AddObjectiveTerm(ih.Chg[t], bat.WearCostPerKwh*dtH)
			b.AddObjectiveTerm(ih.Dis[t], bat.WearCostPerKwh*dtH)
		}
	}

	return nil
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func buildEV(b *ModelBuilder, in Inputs, l plant.LoadConfig) (EVHandles, error) {
	n := len(in.Horizon.Slots)
	eh := EVHandles{P: make([]Var, n), E: make([]Var, n+1), Ramp: make([]Var, n)}
	if l.MinPowerKw > 0 {
		eh.On = make([]Var, n)
	}

	connected := in.EVConnected[l.ID]
	if len(connected) != n {
		return eh, fmt.Errorf("connected series has %d entries, want %d", len(connected), n)
	}
	canConnect := in.EVCanConnect[l.ID]

	graceMinutes := in.EVGraceMinutes[l.ID]
	graceEnd := in.Now.Add(time.Duration(graceMinutes) * time.Minute)

	for t, slot := range in.Horizon.Slots {
		eh.P[t] = b.AddContinuous(fmt.Sprintf("P_ev[%s,%d]", l.ID, t), 0, l.MaxPowerKw)
		eh.Ramp[t] = b.AddContinuous(fmt.Sprintf("ramp[%s,%d]", l.ID, t), 0, l.MaxPowerKw)

		allow := connected[t]
		if canConnect != nil && t < len(canConnect) {
			allow = allow || canConnect[t]
		}
		inGrace := !slot.Start.After(graceEnd)
		inWindow, err := plant.AnyContains(l.ConnectWindows, slot.Start)
		if err != nil {
			return eh, err
		}
		allowed := allow && (inGrace || inWindow)

		allowVal := 0.0
		if allowed {
			allowVal = 1.0
		}
		b.AddConstraint(fmt.Sprintf("ev_allow[%s,%d]", l.ID, t),
			map[Var]float64{eh.P[t]: 1}, LE, l.MaxPowerKw*allowVal)

		if l.MinPowerKw > 0 {
			eh.On[t] = b.AddBinary(fmt.Sprintf("ev_on[%s,%d]", l.ID, t))
			b.AddConstraint(fmt.Sprintf("ev_on_lower[%s,%d]", l.ID, t),
				map[Var]float64{eh.P[t]: 1, eh.On[t]: -l.MinPowerKw}, GE, 0)
			b.AddConstraint(fmt.Sprintf("ev_on_upper[%s,%d]", l.ID, t),
				map[Var]float64{eh.P[t]: 1, eh.On[t]: -l.MaxPowerKw}, LE, 0)
			b.AddConstraint(fmt.Sprintf("ev_on_allow[%s,%d]", l.ID, t),
				map[Var]float64{eh.On[t]: 1}, LE, allowVal)
		}

		if t > 0 {
			b.AddConstraint(fmt.Sprintf("ev_ramp_pos[%s,%d]", l.ID, t),
				map[Var]float64{eh.Ramp[t]: 1, eh.P[t]: -1, eh.P[t-1]: 1}, GE, 0)
			b.AddConstraint(fmt.Sprintf("ev_ramp_neg[%s,%d]", l.ID, t),
				map[Var]float64{eh.Ramp[t]: 1, eh.P[t]: 1, eh.P[t-1]: -1}, GE, 0)
		} else {
			b.AddConstraint(fmt.Sprintf("ev_ramp_zero[%s]", l.ID),
				map[Var]float64{eh.Ramp[t]: 1}, EQ, 0)
		}
	}

	for k := 0; k <= n; k++ {
		eh.E[k] = b.AddContinuous(fmt.Sprintf("E_ev[%s,%d]", l.ID, k), 0, l.CapacityKwh)
	}
	initial, ok := in.EVInitialSocKwh[l.ID]
	if !ok {
		return eh, fmt.Errorf("missing initial SoC")
	}
	b.AddConstraint(fmt.Sprintf("ev_initial[%s]", l.ID), map[Var]float64{eh.E[0]: 1}, EQ, initial)
	for t, slot := range in.Horizon.Slots {
		dtH := slot.DurationHours()
		b.AddConstraint(fmt.Sprintf("ev_soc_balance[%s,%d]", l.ID, t),
			map[Var]float64{eh.E[t+1]: 1, eh.E[t]: -1, eh.P[t]: -dtH}, EQ, 0)
	}

	eh.Anchor = b.AddContinuous(fmt.Sprintf("anchor[%s]", l.ID), 0, l.MaxPowerKw)
	realtimePower := in.EVRealtimePowerKw[l.ID]
	b.AddConstraint(fmt.Sprintf("ev_anchor_pos[%s]", l.ID),
		map[Var]float64{eh.Anchor: 1, eh.P[0]: -1}, GE, -realtimePower)
	b.AddConstraint(fmt.Sprintf("ev_anchor_neg[%s]", l.ID),
		map[Var]float64{eh.Anchor: 1, eh.P[0]: 1}, GE, realtimePower)

	if len(l.Incentives) > 0 {
		sorted := append([]plant.Incentive(nil), l.Incentives...)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i].TargetSocKwh < sorted[j].TargetSocKwh })
		eh.Inc = make([]Var, len(sorted))
		terms := map[Var]float64{eh.E[n]: 1}
		prev := 0.0
		for j, inc := range sorted {
			width := inc.TargetSocKwh - prev
			if width < 0 {
				width = 0
			}
			eh.Inc[j] = b.AddContinuous(fmt.Sprintf("E_inc[%s,%d]", l.ID, j), 0, width)
			terms[eh.Inc[j]] = -1
			b.AddObjectiveTerm(eh.Inc[j], -inc.RewardPerKwh)
			prev = inc.TargetSocKwh
		}
		b.AddConstraint(fmt.Sprintf("ev_incentive_terminal[%s]", l.ID), terms, EQ, 0)
	}

	return eh, nil
}

func buildACBalance(b *ModelBuilder, in Inputs, h *Handles) {
	for t, slot := range in.Horizon.Slots {
		terms := map[Var]float64{h.Import[t]: 1, h.Export[t]: -1}
		for _, ih := range h.Inverters {
			terms[ih.ACNet[t]] += 1
		}
		for _, eh := range h.EVs {
			terms[eh.P[t]] -= 1
		}
		b.AddConstraint(fmt.Sprintf("ac_balance[%d]", t), terms, EQ, in.LoadKw[t])
		_ = slot
	}
}

func buildObjective(b *ModelBuilder, in Inputs, h *Handles) {
	n := len(in.Horizon.Slots)
	numInverters := len(h.Inverters)

	invIDsSorted := make([]string, 0, numInverters)
	for id := range h.Inverters {
		invIDsSorted = append(invIDsSorted, id)
	}
	sort.Strings(invIDsSorted)

	for t, slot := range in.Horizon.Slots {
		dtH := slot.DurationHours()

		exportPrice := in.ExportPriceEff[t]
		exportCoeff := -exportPrice
		if math.Abs(exportPrice) <= 1e-9 {
			exportCoeff = -zeroExportTieBreak
		}

		b.AddObjectiveTerm(h.Import[t], in.ImportPriceEff[t]*dtH)
		b.AddObjectiveTerm(h.Export[t], exportCoeff*dtH)
		b.AddObjectiveTerm(h.ImportViolation[t], violationPenaltyPerKwh*dtH)

		earlyFlow := earlyFlowBiasCoeff * dtH / float64(t+1)
		b.AddObjectiveTerm(h.Import[t], earlyFlow)
		b.AddObjectiveTerm(h.Export[t], earlyFlow)

		for i, id := range invIDsSorted {
			ih := h.Inverters[id]
			if ih.Curtail != nil {
				b.AddObjectiveTerm(ih.Curtail[t], curtailTieBreakCoeff*float64(numInverters-i)*dtH)
			}
		}
	}

	for _, eh := range h.EVs {
		for t := 1; t < n; t++ {
			b.AddObjectiveTerm(eh.Ramp[t], evRampPenaltyCoeff)
		}
		dt0 := in.Horizon.Slots[0].DurationHours()
		b.AddObjectiveTerm(eh.Anchor, evAnchorPenaltyCoeff*dt0)
	}
}
