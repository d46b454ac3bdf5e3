// Package align resamples irregularly-bucketed forecast intervals onto
// horizon slots by time-weighted averaging (spec.md §4.2).
package align

import (
	"fmt"
	"time"

	"github.com/devskill-org/ems-core/horizon"
	"github.com/devskill-org/ems-core/interval"
)

// Tolerance is the maximum per-slot coverage gap, in seconds, tolerated
// to accommodate boundary drift from third-party feeds.
const Tolerance = 2.0

// AlignmentError signals that a forecast does not cover the horizon it
// was asked to align onto, or is malformed. spec.md §7 treats it as a
// ResolveError at the resolver boundary.
type AlignmentError struct {
	Msg string
}

func (e *AlignmentError) Error() string { return "alignment: " + e.Msg }

// Options tune alignment behavior.
type Options struct {
	// FirstSlotOverride, if non-nil, tolerates a missing or
	// partially-missing slot 0 and replaces it with this value
	// (e.g. a realtime reading standing in before the forecast's
	// first bucket starts).
	FirstSlotOverride *float64
}

// Align computes one aligned value per horizon slot by time-weighted
// averaging of the overlapping forecast intervals.
func Align(series interval.Series, h horizon.Horizon, opts Options) ([]float64, error) {
	if err := validateSeries(series); err != nil {
		return nil, err
	}

	out := make([]float64, len(h.Slots))
	for i, slot := range h.Slots {
		value, covered, err := alignSlot(series, slot.Start, slot.End)
		if err != nil {
			return nil, err
		}
		if !covered {
			if i == 0 && opts.FirstSlotOverride != nil {
				out[i] = *opts.FirstSlotOverride
				continue
			}
			return nil, &AlignmentError{Msg: fmt.Sprintf("forecast does not cover the full horizon at slot %d (%s-%s)", i, slot.Start, slot.End)}
		}
		out[i] = value
	}
	return out, nil
}

// alignSlot returns the weighted-average value for [a,b) and whether
// the slot is adequately covered (gap <= Tolerance seconds).
func alignSlot(series interval.Series, a, b time.Time) (value float64, covered bool, err error) {
	slotSeconds := b.Sub(a).Seconds()
	var totalOverlap, weightedSum float64
	for _, iv := range series {
		o := iv.Overlap(a, b)
		if o <= 0 {
			continue
		}
		totalOverlap += o
		weightedSum += iv.Value * o
	}

	if totalOverlap == 0 {
		return 0, false, nil
	}
	gap := slotSeconds - totalOverlap
	if gap > Tolerance {
		return 0, false, nil
	}
	return weightedSum / totalOverlap, true, nil
}

// CoverageSlots reports how many contiguous horizon slots, of
// stepMinutes duration starting at from, the forecast series can
// support without a coverage gap, honoring allowFirstSlotMissing the
// same way Align's FirstSlotOverride does.
func CoverageSlots(series interval.Series, from time.Time, stepMinutes int, allowFirstSlotMissing bool) (int, error) {
	if err := validateSeries(series); err != nil {
		return 0, err
	}
	step := time.Duration(stepMinutes) * time.Minute
	count := 0
	cursor := from
	for {
		end := cursor.Add(step)
		_, covered, err := alignSlot(series, cursor, end)
		if err != nil {
			return 0, err
		}
		if !covered {
			if count == 0 && allowFirstSlotMissing {
				count++
				cursor = end
				continue
			}
			break
		}
		count++
		cursor = end
	}
	return count, nil
}

// validateSeries rejects malformed forecasts: an empty series, zero
// total duration, or an overall extent (earliest Start to latest End)
// that is not positive. Gaps between intervals are left to the
// coverage check.
func validateSeries(series interval.Series) error {
	if len(series) == 0 {
		return &AlignmentError{Msg: "forecast series is empty"}
	}
	if series.TotalDuration() == 0 {
		return &AlignmentError{Msg: "forecast series has zero total duration"}
	}
	earliestStart, latestEnd := series[0].Start, series[0].End
	for _, iv := range series[1:] {
		if iv.Start.Before(earliestStart) {
			earliestStart = iv.Start
		}
		if iv.End.After(latestEnd) {
			latestEnd = iv.End
		}
	}
	if !latestEnd.After(earliestStart) {
		return &AlignmentError{Msg: "forecast series is malformed: latest end does not exceed earliest start"}
	}
	return nil
}
