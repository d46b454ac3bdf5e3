package horizon

import (
	"testing"
	"time"
)

func mustBuild(t *testing.T, cfg Config) Horizon {
	t.Helper()
	h, err := Build(cfg)
	if err != nil {
		t.Fatalf("Build() error: %v", err)
	}
	return h
}

func TestBuildUniformTimestep(t *testing.T) {
	now := time.Date(2024, 5, 1, 8, 3, 0, 0, time.UTC)
	h := mustBuild(t, Config{Now: now, TimestepMinutes: 30, TotalMinutes: 120})

	if len(h.Slots) != 4 {
		t.Fatalf("got %d slots, want 4", len(h.Slots))
	}
	for i, s := range h.Slots {
		if s.Index != i {
			t.Errorf("slot %d has index %d", i, s.Index)
		}
		if s.Duration() != 30*time.Minute {
			t.Errorf("slot %d duration = %v, want 30m", i, s.Duration())
		}
	}
	if !h.Slots[0].Start.Equal(now) {
		t.Errorf("first slot starts at %v, want %v", h.Slots[0].Start, now)
	}
	if got, want := h.TotalMinutes(), 120.0; got != want {
		t.Errorf("TotalMinutes() = %v, want %v", got, want)
	}
}

func TestBuildPartialFinalSlot(t *testing.T) {
	now := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	h := mustBuild(t, Config{Now: now, TimestepMinutes: 30, TotalMinutes: 100})

	if len(h.Slots) != 4 {
		t.Fatalf("got %d slots, want 4", len(h.Slots))
	}
	last := h.Slots[3]
	if last.Duration() != 10*time.Minute {
		t.Errorf("final slot duration = %v, want 10m", last.Duration())
	}
	if got, want := h.TotalMinutes(), 100.0; got != want {
		t.Errorf("TotalMinutes() = %v, want %v", got, want)
	}
}

func TestBuildHighResTransition(t *testing.T) {
	// now at 08:07 -> high-res 5m slots until next :30-aligned boundary
	// at or after 08:07+20=08:27, i.e. 08:30. Then coarse 30m slots.
	now := time.Date(2024, 5, 1, 8, 7, 0, 0, time.UTC)
	h := mustBuild(t, Config{
		Now:                    now,
		TimestepMinutes:        30,
		HighResTimestepMinutes: 5,
		HighResHorizonMinutes:  20,
		TotalMinutes:           90,
	})

	boundary := time.Date(2024, 5, 1, 8, 30, 0, 0, time.UTC)

	var sawBoundary bool
	for i, s := range h.Slots {
		if i > 0 && !s.Start.Equal(h.Slots[i-1].End) {
			t.Fatalf("slot %d does not start where slot %d ends", i, i-1)
		}
		if s.Start.Equal(boundary) {
			sawBoundary = true
		}
	}
	if !sawBoundary {
		t.Fatalf("no slot starts exactly at the coarse boundary %v", boundary)
	}
	if got, want := h.TotalMinutes(), 90.0; got != want {
		t.Errorf("TotalMinutes() = %v, want %v", got, want)
	}

	// Every slot at/after the boundary must itself start on a :00/:30 minute.
	for _, s := range h.Slots {
		if !s.Start.Before(boundary) {
			if s.Start.Minute()%30 != 0 {
				t.Errorf("coarse slot at %v not aligned to 30-minute boundary", s.Start)
			}
		}
	}
}

func TestBuildRejectsInconsistentHighRes(t *testing.T) {
	now := time.Now()
	_, err := Build(Config{Now: now, TimestepMinutes: 30, HighResTimestepMinutes: 5, TotalMinutes: 60})
	if err == nil {
		t.Fatal("expected ConfigError for missing HighResHorizonMinutes")
	}
	var cfgErr *ConfigError
	if !asConfigError(err, &cfgErr) {
		t.Fatalf("error is not *ConfigError: %v", err)
	}
}

func TestBuildRejectsNonMultipleHighResHorizon(t *testing.T) {
	now := time.Now()
	_, err := Build(Config{
		Now: now, TimestepMinutes: 30,
		HighResTimestepMinutes: 5, HighResHorizonMinutes: 22,
		TotalMinutes: 60,
	})
	if err == nil {
		t.Fatal("expected ConfigError for non-multiple high-res horizon")
	}
}

func TestNoOverlapOrGap(t *testing.T) {
	now := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	h := mustBuild(t, Config{
		Now: now, TimestepMinutes: 30,
		HighResTimestepMinutes: 5, HighResHorizonMinutes: 20,
		TotalMinutes: 240,
	})
	if err := h.Validate(30); err != nil {
		t.Fatalf("Validate() error: %v", err)
	}
}

func asConfigError(err error, target **ConfigError) bool {
	ce, ok := err.(*ConfigError)
	if ok {
		*target = ce
	}
	return ok
}
