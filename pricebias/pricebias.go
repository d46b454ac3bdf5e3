// Package pricebias turns raw import/export price forecasts into the
// effective prices the MILP objective optimizes against, applying a
// time-ramped "risk" bias and a static "grid" bias, both sign-aware
// (spec.md §4.4).
package pricebias

import (
	"math"
	"time"
)

// Ramp describes the risk-factor ramp: 0 before StartAfter minutes
// from now, linearly increasing to 1 over DurationMinutes, 1
// thereafter. A zero DurationMinutes makes the ramp a step function.
type Ramp struct {
	StartAfterMinutes float64
	DurationMinutes   float64
}

// Factor returns risk_factor ∈ [0,1] for a slot midpoint minutesFromNow
// minutes after now.
func (r Ramp) Factor(minutesFromNow float64) float64 {
	if minutesFromNow < r.StartAfterMinutes {
		return 0
	}
	if r.DurationMinutes <= 0 {
		return 1
	}
	elapsed := minutesFromNow - r.StartAfterMinutes
	factor := elapsed / r.DurationMinutes
	if factor > 1 {
		return 1
	}
	return factor
}

// Clamps bounds a price; either bound may be left at its zero value to
// mean "no clamp" via the HasFloor/HasCeiling flags.
type Clamps struct {
	HasFloor   bool
	Floor      float64
	HasCeiling bool
	Ceiling    float64
}

func (c Clamps) apply(price float64) float64 {
	if c.HasFloor && price < c.Floor {
		price = c.Floor
	}
	if c.HasCeiling && price > c.Ceiling {
		price = c.Ceiling
	}
	return price
}

// Config bundles the pipeline's tunables.
type Config struct {
	Now           time.Time
	RiskRamp      Ramp
	RiskBiasPct   float64
	GridBiasPct   float64
	ImportClamps  Clamps
	ExportClamps  Clamps
}

// Slot is one slot's worth of inputs/outputs for the pipeline.
type Slot struct {
	Midpoint     time.Time
	RawImport    float64
	RawExport    float64
	IsFirstSlot  bool
	ImportResult float64
	ExportResult float64
}

// Apply runs the full pipeline over slots in place, per spec.md §4.4:
// clamp (skipped for slot 0), then risk bias, then grid bias, each
// sign-aware.
func Apply(cfg Config, slots []Slot) {
	for i := range slots {
		s := &slots[i]
		importPrice, exportPrice := s.RawImport, s.RawExport

		if !s.IsFirstSlot {
			importPrice = cfg.ImportClamps.apply(importPrice)
			exportPrice = cfg.ExportClamps.apply(exportPrice)
		}

		minutesFromNow := s.Midpoint.Sub(cfg.Now).Minutes()
		risk := cfg.RiskRamp.Factor(minutesFromNow)

		importPrice = biasImport(importPrice, cfg.RiskBiasPct*risk)
		exportPrice = biasExport(exportPrice, cfg.RiskBiasPct*risk)
		importPrice = biasImport(importPrice, cfg.GridBiasPct)
		exportPrice = biasExport(exportPrice, cfg.GridBiasPct)

		s.ImportResult = importPrice
		s.ExportResult = exportPrice
	}
}

// biasImport applies a sign-aware x% bias to an import price: a
// premium (x>0) pushes a non-negative price further from zero and a
// negative price toward zero, never crossing sign.
func biasImport(p, pct float64) float64 {
	if p >= 0 {
		return p * (1 + pct/100)
	}
	return p * (1 - pct/100)
}

// biasExport mirrors biasImport: a positive bias discounts a
// non-negative export price and penalizes (pushes further negative) a
// negative one, so exporters shy away from paid exports.
func biasExport(p, pct float64) float64 {
	if p >= 0 {
		return p * (1 - pct/100)
	}
	return p * (1 + pct/100)
}

// SignPreserved reports whether applying a bias kept the sign of raw,
// the invariant spec.md §8 tests against arbitrary bias percentages.
func SignPreserved(raw, effective float64) bool {
	if raw == 0 {
		return effective == 0
	}
	return math.Signbit(raw) == math.Signbit(effective)
}
