package pricebias

import (
	"math/rand"
	"testing"
	"time"
)

func TestRampFactorStepWhenZeroDuration(t *testing.T) {
	r := Ramp{StartAfterMinutes: 30, DurationMinutes: 0}
	if got := r.Factor(29); got != 0 {
		t.Errorf("Factor(29) = %v, want 0", got)
	}
	if got := r.Factor(30); got != 1 {
		t.Errorf("Factor(30) = %v, want 1", got)
	}
	if got := r.Factor(1000); got != 1 {
		t.Errorf("Factor(1000) = %v, want 1", got)
	}
}

func TestRampFactorLinear(t *testing.T) {
	r := Ramp{StartAfterMinutes: 0, DurationMinutes: 60}
	if got := r.Factor(30); got != 0.5 {
		t.Errorf("Factor(30) = %v, want 0.5", got)
	}
	if got := r.Factor(0); got != 0 {
		t.Errorf("Factor(0) = %v, want 0", got)
	}
	if got := r.Factor(120); got != 1 {
		t.Errorf("Factor(120) = %v, want 1", got)
	}
}

func TestApplySkipsClampOnFirstSlot(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	cfg := Config{
		Now:          now,
		RiskRamp:     Ramp{StartAfterMinutes: 1e9}, // effectively never ramps
		ImportClamps: Clamps{HasCeiling: true, Ceiling: 0.10},
	}
	slots := []Slot{
		{Midpoint: now, RawImport: 5.0, IsFirstSlot: true},
		{Midpoint: now.Add(30 * time.Minute), RawImport: 5.0, IsFirstSlot: false},
	}
	Apply(cfg, slots)

	if slots[0].ImportResult != 5.0 {
		t.Errorf("slot 0 import = %v, want unclamped 5.0", slots[0].ImportResult)
	}
	if slots[1].ImportResult != 0.10 {
		t.Errorf("slot 1 import = %v, want clamped 0.10", slots[1].ImportResult)
	}
}

func TestApplySignPreservingFuzz(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	rng := rand.New(rand.NewSource(1))

	for i := 0; i < 200; i++ {
		cfg := Config{
			Now:         now,
			RiskRamp:    Ramp{StartAfterMinutes: 0, DurationMinutes: 60},
			RiskBiasPct: rng.Float64()*200 - 100,
			GridBiasPct: rng.Float64()*200 - 100,
		}
		rawImport := rng.Float64()*40 - 20
		rawExport := rng.Float64()*40 - 20
		slots := []Slot{{
			Midpoint:  now.Add(time.Duration(rng.Intn(120)) * time.Minute),
			RawImport: rawImport,
			RawExport: rawExport,
		}}
		Apply(cfg, slots)

		if !SignPreserved(rawImport, slots[0].ImportResult) {
			t.Fatalf("import sign flipped: raw=%v eff=%v cfg=%+v", rawImport, slots[0].ImportResult, cfg)
		}
		if !SignPreserved(rawExport, slots[0].ExportResult) {
			t.Fatalf("export sign flipped: raw=%v eff=%v cfg=%+v", rawExport, slots[0].ExportResult, cfg)
		}
	}
}

func TestBiasExportMirrorsImport(t *testing.T) {
	if got, want := biasExport(10, 20), 8.0; got != want {
		t.Errorf("biasExport(10,20) = %v, want %v", got, want)
	}
	if got, want := biasExport(-10, 20), -12.0; got != want {
		t.Errorf("biasExport(-10,20) = %v, want %v", got, want)
	}
}
