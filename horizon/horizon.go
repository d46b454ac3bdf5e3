// Package horizon builds the ordered, non-overlapping sequence of time
// slots a plan is computed over. It implements spec.md §4.1.
package horizon

import (
	"fmt"
	"math"
	"time"
)

// Slot is one discrete planning interval. Index is monotonically
// increasing from 0; End of slot i equals Start of slot i+1.
type Slot struct {
	Index int
	Start time.Time
	End   time.Time
}

// Duration returns End-Start.
func (s Slot) Duration() time.Duration {
	return s.End.Sub(s.Start)
}

// DurationHours returns the slot duration in fractional hours, the
// dt_h(t) term the MILP compiler multiplies energy balances by.
func (s Slot) DurationHours() float64 {
	return s.Duration().Hours()
}

// Midpoint returns the instant halfway between Start and End, used by
// the price-bias ramp.
func (s Slot) Midpoint() time.Time {
	return s.Start.Add(s.Duration() / 2)
}

// Horizon is an ordered sequence of slots anchored to a reference "now".
type Horizon struct {
	Now   time.Time
	Slots []Slot
}

// TotalMinutes returns the configured total span (sum of slot durations).
func (h Horizon) TotalMinutes() float64 {
	if len(h.Slots) == 0 {
		return 0
	}
	return h.Slots[len(h.Slots)-1].End.Sub(h.Slots[0].Start).Minutes()
}

// Config parameterizes Build. HighResTimestepMinutes and
// HighResHorizonMinutes must either both be zero or both be set.
type Config struct {
	Now                    time.Time
	TimestepMinutes        int
	HighResTimestepMinutes int
	HighResHorizonMinutes  int
	TotalMinutes           int
}

// ConfigError signals invalid horizon configuration (spec.md §4.1,
// §7): inconsistent high-res fields or a horizon that doesn't divide
// evenly into the high-res timestep.
type ConfigError struct {
	Msg string
}

func (e *ConfigError) Error() string { return "horizon: " + e.Msg }

// Build emits slots per spec.md §4.1: optionally a high-resolution
// window at the head running from Now up to the next coarse-aligned
// wall-clock boundary at or after Now+HighResHorizonMinutes, followed
// by coarse TimestepMinutes slots; the final slot is shortened if
// TotalMinutes isn't a multiple of the coarse step.
func Build(cfg Config) (Horizon, error) {
	if cfg.TimestepMinutes <= 0 {
		return Horizon{}, &ConfigError{Msg: "timestep_minutes must be positive"}
	}
	if cfg.TotalMinutes <= 0 {
		return Horizon{}, &ConfigError{Msg: "total_minutes must be positive"}
	}

	highResSet := cfg.HighResTimestepMinutes != 0 || cfg.HighResHorizonMinutes != 0
	if highResSet && (cfg.HighResTimestepMinutes <= 0 || cfg.HighResHorizonMinutes <= 0) {
		return Horizon{}, &ConfigError{Msg: "high_res_timestep_minutes and high_res_horizon_minutes must both be set, or both be zero"}
	}
	if highResSet && cfg.HighResHorizonMinutes%cfg.HighResTimestepMinutes != 0 {
		return Horizon{}, &ConfigError{Msg: "high_res_horizon_minutes must be a multiple of high_res_timestep_minutes"}
	}

	var slots []Slot
	cursor := cfg.Now
	remaining := cfg.TotalMinutes
	idx := 0

	if highResSet {
		// Emit high-res slots until the next coarse-aligned boundary at
		// or after Now+HighResHorizonMinutes.
		boundary := coarseAlignedAtOrAfter(cfg.Now.Add(time.Duration(cfg.HighResHorizonMinutes)*time.Minute), cfg.TimestepMinutes)
		for cursor.Before(boundary) && remaining > 0 {
			step := cfg.HighResTimestepMinutes
			stepDur := time.Duration(step) * time.Minute
			end := cursor.Add(stepDur)
			actualMinutes := step
			if float64(step) > float64(remaining) {
				end = cursor.Add(time.Duration(remaining) * time.Minute)
				actualMinutes = remaining
			}
			if end.After(boundary) {
				end = boundary
				actualMinutes = int(end.Sub(cursor).Minutes())
			}
			slots = append(slots, Slot{Index: idx, Start: cursor, End: end})
			idx++
			cursor = end
			remaining -= actualMinutes
			if actualMinutes <= 0 {
				break
			}
		}
	}

	for remaining > 0 {
		step := cfg.TimestepMinutes
		stepDur := time.Duration(step) * time.Minute
		end := cursor.Add(stepDur)
		if step > remaining {
			end = cursor.Add(time.Duration(remaining) * time.Minute)
		}
		slots = append(slots, Slot{Index: idx, Start: cursor, End: end})
		idx++
		minutesUsed := end.Sub(cursor).Minutes()
		cursor = end
		remaining -= int(minutesUsed)
		if minutesUsed <= 0 {
			return Horizon{}, &ConfigError{Msg: "internal: non-positive slot duration while building coarse slots"}
		}
	}

	return Horizon{Now: cfg.Now, Slots: slots}, nil
}

// coarseAlignedAtOrAfter returns the earliest instant at or after t
// that falls on a wall-clock boundary divisible by stepMinutes,
// measured from the top of the hour.
func coarseAlignedAtOrAfter(t time.Time, stepMinutes int) time.Time {
	top := time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), 0, 0, 0, t.Location())
	elapsed := t.Sub(top).Minutes()
	step := float64(stepMinutes)
	aligned := math.Ceil(elapsed/step) * step
	return top.Add(time.Duration(aligned * float64(time.Minute)))
}

// Validate checks that indices run 0,1,2,..., every slot has a positive
// duration, and each slot starts where the previous one ends (no
// overlap or gap). It does not check the total span or the coarse
// alignment of slots; coarseStepMinutes is not consulted.
func (h Horizon) Validate(coarseStepMinutes int) error {
	for i, s := range h.Slots {
		if s.Index != i {
			return fmt.Errorf("horizon: slot %d has index %d", i, s.Index)
		}
		if !s.End.After(s.Start) {
			return fmt.Errorf("horizon: slot %d has non-positive duration", i)
		}
		if i > 0 && !s.Start.Equal(h.Slots[i-1].End) {
			return fmt.Errorf("horizon: slot %d does not start where slot %d ends", i, i-1)
		}
	}
	return nil
}
