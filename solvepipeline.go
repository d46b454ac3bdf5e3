package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/devskill-org/ems-core/align"
	"github.com/devskill-org/ems-core/horizon"
	"github.com/devskill-org/ems-core/intent"
	"github.com/devskill-org/ems-core/milp"
	"github.com/devskill-org/ems-core/plan"
	"github.com/devskill-org/ems-core/planner"
	"github.com/devskill-org/ems-core/plant"
	"github.com/devskill-org/ems-core/pricebias"
	"github.com/devskill-org/ems-core/resolver"
	"github.com/devskill-org/ems-core/solve"
)

// buildSolveFunc closes over cfg and provider to produce a
// planner.SolveFunc: one full mark → hydrate → resolve → build → solve
// → extract → project pass, per spec.md §3's pipeline ordering. Each
// call gets a fresh resolver, matching its single-pass ownership
// contract.
func buildSolveFunc(cfg *AppConfig, provider resolver.DataProvider, nowFn func() time.Time, logger *log.Logger) planner.SolveFunc {
	return func(ctx context.Context) (plan.Output, intent.Output, error) {
		start := time.Now()
		now := nowFn()

		h, err := horizon.Build(horizon.Config{
			Now:                    now,
			TimestepMinutes:        cfg.Horizon.TimestepMinutes,
			HighResTimestepMinutes: cfg.Horizon.HighResTimestepMinutes,
			HighResHorizonMinutes:  cfg.Horizon.HighResHorizonMinutes,
			TotalMinutes:           cfg.Horizon.TotalMinutes,
		})
		if err != nil {
			return plan.Output{}, intent.Output{}, fmt.Errorf("solve: %w", err)
		}

		r := resolver.New(logger)
		markAll(r, &cfg.Plant)

		buildStart := time.Now()
		if err := r.Hydrate(ctx, provider); err != nil {
			return plan.Output{}, intent.Output{}, fmt.Errorf("solve: hydrate: %w", err)
		}

		in, rawPrices, err := resolveInputs(r, &cfg.Plant, h, now)
		if err != nil {
			return plan.Output{}, intent.Output{}, fmt.Errorf("solve: resolve: %w", err)
		}

		b := milp.NewModelBuilder()
		handles, err := milp.Build(b, in)
		if err != nil {
			return plan.Output{}, intent.Output{}, fmt.Errorf("solve: build: %w", err)
		}
		buildDuration := time.Since(buildStart)

		solveStart := time.Now()
		solver := solve.BranchAndBound{}
		result, err := solver.Solve(ctx, b.Compile())
		if err != nil {
			return plan.Output{}, intent.Output{}, fmt.Errorf("solve: solver: %w", err)
		}
		solveDuration := time.Since(solveStart)

		header := plan.Header{
			GeneratedAt:   now,
			BuildDuration: buildDuration,
			SolveDuration: solveDuration,
		}
		out := plan.Extract(h, handles, in, rawPrices, result, header)
		plan.FillSocPercent(&out, &cfg.Plant)
		out.Header.TotalDuration = time.Since(start)

		var intentOut intent.Output
		if len(out.Slots) > 0 {
			intentOut = intent.Project(out.Slots[0], &cfg.Plant, intent.DefaultEpsilon)
		}

		return out, intentOut, nil
	}
}

// markAll registers every entity the plant configuration touches, the
// mark half of spec.md §4.3's mark/hydrate split.
func markAll(r *resolver.Resolver, p *plant.Config) {
	markSource(r, p.Grid.ImportPriceSource)
	markSource(r, p.Grid.ExportPriceSource)
	markSource(r, p.Load.ForecastSource)
	if p.Load.RealtimeSource != nil {
		markSource(r, *p.Load.RealtimeSource)
	}
	for _, inv := range p.Inverters {
		markSource(r, inv.ForecastPvSource)
		if inv.RealtimePvSource != nil {
			markSource(r, *inv.RealtimePvSource)
		}
		if inv.Battery != nil {
			markSource(r, inv.Battery.InitialSocSource)
		}
	}
	for _, l := range p.Loads {
		markSource(r, l.ConnectedSource)
		if l.CanConnectSource != nil {
			markSource(r, *l.CanConnectSource)
		}
		markSource(r, l.ChargingPowerSource)
		markSource(r, l.SocSource)
	}
}

func markSource(r *resolver.Resolver, src plant.Source) {
	if src.Kind == "" {
		return
	}
	_ = r.Mark(src)
}

// collectEntityIDs walks every Source in p the same way markAll does,
// for the fixture harness's capture command (which needs a flat id
// list and a single historyDays figure up front, before any Resolver
// exists).
func collectEntityIDs(p *plant.Config) (ids []string, maxHistoryDays int) {
	seen := make(map[string]bool)
	add := func(src plant.Source) {
		switch src.Kind {
		case "entity", "history_entity":
			if src.EntityID != "" && !seen[src.EntityID] {
				seen[src.EntityID] = true
				ids = append(ids, src.EntityID)
			}
			if src.HistoryDays > maxHistoryDays {
				maxHistoryDays = src.HistoryDays
			}
		case "multi_entity":
			for _, id := range src.EntityIDs {
				if id != "" && !seen[id] {
					seen[id] = true
					ids = append(ids, id)
				}
			}
		}
	}

	add(p.Grid.ImportPriceSource)
	add(p.Grid.ExportPriceSource)
	add(p.Load.ForecastSource)
	if p.Load.RealtimeSource != nil {
		add(*p.Load.RealtimeSource)
	}
	for _, inv := range p.Inverters {
		add(inv.ForecastPvSource)
		if inv.RealtimePvSource != nil {
			add(*inv.RealtimePvSource)
		}
		if inv.Battery != nil {
			add(inv.Battery.InitialSocSource)
		}
	}
	for _, l := range p.Loads {
		add(l.ConnectedSource)
		if l.CanConnectSource != nil {
			add(*l.CanConnectSource)
		}
		add(l.ChargingPowerSource)
		add(l.SocSource)
	}
	if maxHistoryDays == 0 {
		maxHistoryDays = 7
	}
	return ids, maxHistoryDays
}

// resolveInputs maps every marked, hydrated source into milp.Inputs,
// per spec.md §4.3's mapper table and §4.4's bias pipeline.
func resolveInputs(r *resolver.Resolver, p *plant.Config, h horizon.Horizon, now time.Time) (milp.Inputs, plan.RawPrices, error) {
	rawImport, err := priceSeries(r, p.Grid.ImportPriceSource, h, now)
	if err != nil {
		return milp.Inputs{}, plan.RawPrices{}, err
	}
	rawExport, err := priceSeries(r, p.Grid.ExportPriceSource, h, now)
	if err != nil {
		return milp.Inputs{}, plan.RawPrices{}, err
	}

	biasSlots := make([]pricebias.Slot, len(h.Slots))
	for i, slot := range h.Slots {
		biasSlots[i] = pricebias.Slot{
			Midpoint:    slot.Midpoint(),
			RawImport:   rawImport[i],
			RawExport:   rawExport[i],
			IsFirstSlot: i == 0,
		}
	}
	pricebias.Apply(pricebias.Config{
		Now: now,
		RiskRamp: pricebias.Ramp{
			StartAfterMinutes: p.Grid.RiskRampStartAfterMin,
			DurationMinutes:   p.Grid.RiskRampDurationMin,
		},
		RiskBiasPct:  p.Grid.RiskBiasPct,
		GridBiasPct:  p.Grid.GridBiasPct,
		ImportClamps: clampsOf(p.Grid.ImportPriceFloor, p.Grid.ImportPriceCeiling),
		ExportClamps: clampsOf(p.Grid.ExportPriceFloor, p.Grid.ExportPriceCeiling),
	}, biasSlots)

	importEff := make([]float64, len(h.Slots))
	exportEff := make([]float64, len(h.Slots))
	for i, s := range biasSlots {
		importEff[i] = s.ImportResult
		exportEff[i] = s.ExportResult
	}

	loadKw, err := loadSeries(r, p.Load, h, now)
	if err != nil {
		return milp.Inputs{}, plan.RawPrices{}, err
	}

	in := milp.Inputs{
		Horizon:                   h,
		Plant:                     p,
		Now:                       now,
		LoadKw:                    loadKw,
		ImportPriceEff:            importEff,
		ExportPriceEff:            exportEff,
		InverterPvAvailableKw:     make(map[string][]float64, len(p.Inverters)),
		InverterInitialSocKwh:     make(map[string]float64, len(p.Inverters)),
		InverterAdaptiveTargetKwh: make(map[string]float64),
		EVConnected:               make(map[string][]bool, len(p.Loads)),
		EVCanConnect:              make(map[string][]bool, len(p.Loads)),
		EVInitialSocKwh:           make(map[string]float64, len(p.Loads)),
		EVRealtimePowerKw:         make(map[string]float64, len(p.Loads)),
		EVGraceMinutes:            make(map[string]int, len(p.Loads)),
	}

	for _, inv := range p.Inverters {
		pv, err := pvSeries(r, inv, h, now)
		if err != nil {
			return milp.Inputs{}, plan.RawPrices{}, err
		}
		in.InverterPvAvailableKw[inv.ID] = pv

		if inv.Battery == nil {
			continue
		}
		socPct, err := r.ResolveScalarKw(inv.Battery.InitialSocSource)
		if err != nil {
			return milp.Inputs{}, plan.RawPrices{}, err
		}
		in.InverterInitialSocKwh[inv.ID] = inv.Battery.CapacityKwh * socPct / 100
	}

	for _, l := range p.Loads {
		connected, err := r.ResolveBool(l.ConnectedSource)
		if err != nil {
			return milp.Inputs{}, plan.RawPrices{}, err
		}
		flags := make([]bool, len(h.Slots))
		for i := range flags {
			flags[i] = connected
		}
		in.EVConnected[l.ID] = flags

		if l.CanConnectSource != nil {
			canConnect, err := r.ResolveBool(*l.CanConnectSource)
			if err != nil {
				return milp.Inputs{}, plan.RawPrices{}, err
			}
			canFlags := make([]bool, len(h.Slots))
			for i := range canFlags {
				canFlags[i] = canConnect
			}
			in.EVCanConnect[l.ID] = canFlags
		}

		socPct, err := r.ResolveScalarKw(l.SocSource)
		if err != nil {
			return milp.Inputs{}, plan.RawPrices{}, err
		}
		in.EVInitialSocKwh[l.ID] = l.CapacityKwh * socPct / 100

		chargingKw, err := r.ResolveScalarKw(l.ChargingPowerSource)
		if err != nil {
			return milp.Inputs{}, plan.RawPrices{}, err
		}
		in.EVRealtimePowerKw[l.ID] = chargingKw
		in.EVGraceMinutes[l.ID] = l.GraceMinutes
	}

	return in, plan.RawPrices{Import: rawImport, Export: rawExport}, nil
}

func priceSeries(r *resolver.Resolver, src plant.Source, h horizon.Horizon, now time.Time) ([]float64, error) {
	series, err := r.AmberPriceForecast(src, now, resolver.AmberOptions{Mode: resolver.AmberSpot})
	if err != nil {
		return nil, err
	}
	return align.Align(series, h, align.Options{})
}

func pvSeries(r *resolver.Resolver, inv plant.Inverter, h horizon.Horizon, now time.Time) ([]float64, error) {
	series, err := r.SolcastPVForecast(inv.ForecastPvSource)
	if err != nil {
		return nil, err
	}
	opts := align.Options{}
	if inv.RealtimePvSource != nil {
		rt, err := r.ResolveScalarKw(*inv.RealtimePvSource)
		if err != nil {
			return nil, err
		}
		opts.FirstSlotOverride = &rt
	}
	return align.Align(series, h, opts)
}

func loadSeries(r *resolver.Resolver, l plant.Load, h horizon.Horizon, now time.Time) ([]float64, error) {
	horizonHours := int(h.TotalMinutes() / 60)
	if horizonHours <= 0 {
		horizonHours = 1
	}
	opts := resolver.HistoricalAverageOptions{
		HistoryDays:          l.ForecastSource.HistoryDays,
		IntervalDurationMin:  60,
		ForecastHorizonHours: horizonHours,
	}
	if l.RealtimeSource != nil {
		rt, err := r.ResolveScalarKw(*l.RealtimeSource)
		if err != nil {
			return nil, err
		}
		opts.RealtimeWindowMinutes = opts.IntervalDurationMin
		opts.RealtimeKw = &rt
	}
	series, err := r.HistoricalAverageLoad(l.ForecastSource, now, opts)
	if err != nil {
		return nil, err
	}
	return align.Align(series, h, align.Options{})
}

func clampsOf(floor, ceiling *float64) pricebias.Clamps {
	c := pricebias.Clamps{}
	if floor != nil {
		c.HasFloor = true
		c.Floor = *floor
	}
	if ceiling != nil {
		c.HasCeiling = true
		c.Ceiling = *ceiling
	}
	return c
}
