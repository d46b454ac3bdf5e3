package resolver

import (
	"fmt"
	"sort"
	"time"

	"github.com/devskill-org/ems-core/interval"
	"github.com/devskill-org/ems-core/plant"
)

// AmberMode selects which per-kWh figure an Amber-style forecast entry
// contributes, when the entry carries more than one price signal.
type AmberMode string

const (
	AmberSpot       AmberMode = "spot"
	AmberAdvanced   AmberMode = "advanced"
	AmberBlendMin   AmberMode = "blend_min"
	AmberBlendMax   AmberMode = "blend_max"
	AmberBlendMean  AmberMode = "blend_mean"
)

// AmberOptions tunes AmberPriceForecast.
type AmberOptions struct {
	Mode AmberMode

	// TailExtend, if true, synthesizes up to 168h of additional
	// intervals past the end of the real forecast using a fixed
	// 24-hour diurnal multiplier curve normalized by its own median,
	// scaled by TailMedianPrice.
	TailExtend      bool
	TailMedianPrice float64
}

// tailCurve is a fixed 24-entry (one per hour-of-day) diurnal price
// multiplier, peaking in the evening and troughing overnight, normalized so
// its own median is 1.0. Its exact values are not part of any tested
// contract; only shape properties (non-negative, median == 1.0) are.
var tailCurve = [24]float64{
	0.61, 0.57, 0.54, 0.52, 0.54, 0.61, // 00-05
	0.74, 0.87, 1.00, 1.09, 1.13, 1.15, // 06-11
	1.17, 1.15, 1.11, 1.04, 1.00, 1.09, // 12-17
	1.26, 1.35, 1.22, 0.96, 0.78, 0.68, // 18-23
}

// AmberPriceForecast reads the forecasts attribute of an Amber-style
// price entity and produces per-kWh priced intervals, per spec.md
// §4.3. Each forecast entry is a map carrying start_time/end_time (or
// start_time+duration) and a per-mode price figure.
func (r *Resolver) AmberPriceForecast(src plant.Source, now time.Time, opts AmberOptions) (interval.Series, error) {
	s, err := r.State(src.EntityID)
	if err != nil {
		return nil, err
	}

	raw, ok := s.Attributes["forecasts"]
	if !ok {
		return nil, &ResolveError{EntityID: src.EntityID, Msg: "missing forecasts attribute"}
	}
	entries, ok := raw.([]map[string]any)
	if !ok {
		return nil, &ResolveError{EntityID: src.EntityID, Msg: "forecasts attribute has unexpected shape"}
	}

	series := make(interval.Series, 0, len(entries))
	for i, entry := range entries {
		start, end, err := entryTimeSpan(entry)
		if err != nil {
			return nil, &ResolveError{EntityID: src.EntityID, Msg: fmt.Sprintf("forecast entry %d: %v", i, err)}
		}
		price, err := amberModePrice(entry, opts.Mode)
		if err != nil {
			return nil, &ResolveError{EntityID: src.EntityID, Msg: fmt.Sprintf("forecast entry %d: %v", i, err)}
		}
		iv, err := interval.New(start, end, price)
		if err != nil {
			return nil, &ResolveError{EntityID: src.EntityID, Msg: fmt.Sprintf("forecast entry %d: %v", i, err)}
		}
		series = append(series, iv)
	}

	if opts.TailExtend && len(series) > 0 {
		series = append(series, extendTail(series, now, opts.TailMedianPrice)...)
	}

	sort.Slice(series, func(i, j int) bool { return series[i].Start.Before(series[j].Start) })
	return series, nil
}

func entryTimeSpan(entry map[string]any) (time.Time, time.Time, error) {
	start, ok := entry["start_time"].(time.Time)
	if !ok {
		return time.Time{}, time.Time{}, fmt.Errorf("missing or invalid start_time")
	}
	if end, ok := entry["end_time"].(time.Time); ok {
		return start, end, nil
	}
	if dur, ok := entry["duration"].(time.Duration); ok {
		return start, start.Add(dur), nil
	}
	return time.Time{}, time.Time{}, fmt.Errorf("missing end_time or duration")
}

func amberModePrice(entry map[string]any, mode AmberMode) (float64, error) {
	key := string(mode)
	if key == "" {
		key = string(AmberSpot)
	}
	v, ok := entry[key].(float64)
	if !ok {
		return 0, fmt.Errorf("missing %s price figure", key)
	}
	return v, nil
}

// extendTail synthesizes hourly intervals from the end of series out
// to 168h past now, scaled by medianPrice and the fixed diurnal curve.
func extendTail(series interval.Series, now time.Time, medianPrice float64) interval.Series {
	last := series[0].End
	for _, iv := range series {
		if iv.End.After(last) {
			last = iv.End
		}
	}
	horizonEnd := now.Add(168 * time.Hour)

	var tail interval.Series
	cursor := last
	for cursor.Before(horizonEnd) {
		end := cursor.Add(time.Hour)
		multiplier := tailCurve[cursor.Hour()]
		iv, err := interval.New(cursor, end, medianPrice*multiplier)
		if err == nil {
			tail = append(tail, iv)
		}
		cursor = end
	}
	return tail
}

// SolcastPVForecast concatenates each entity's detailedForecast
// attribute, treating each 30-minute bucket's pv_estimate as kW.
func (r *Resolver) SolcastPVForecast(src plant.Source) (interval.Series, error) {
	var series interval.Series
	for _, entityID := range src.EntityIDs {
		s, err := r.State(entityID)
		if err != nil {
			return nil, err
		}
		raw, ok := s.Attributes["detailedForecast"]
		if !ok {
			return nil, &ResolveError{EntityID: entityID, Msg: "missing detailedForecast attribute"}
		}
		buckets, ok := raw.([]map[string]any)
		if !ok {
			return nil, &ResolveError{EntityID: entityID, Msg: "detailedForecast attribute has unexpected shape"}
		}
		for i, bucket := range buckets {
			start, ok := bucket["period_start"].(time.Time)
			if !ok {
				return nil, &ResolveError{EntityID: entityID, Msg: fmt.Sprintf("bucket %d: missing period_start", i)}
			}
			estimate, ok := bucket["pv_estimate"].(float64)
			if !ok {
				return nil, &ResolveError{EntityID: entityID, Msg: fmt.Sprintf("bucket %d: missing pv_estimate", i)}
			}
			iv, err := interval.New(start, start.Add(30*time.Minute), estimate)
			if err != nil {
				return nil, &ResolveError{EntityID: entityID, Msg: err.Error()}
			}
			series = append(series, iv)
		}
	}
	sort.Slice(series, func(i, j int) bool { return series[i].Start.Before(series[j].Start) })
	return series, nil
}

// HistoricalAverageOptions tunes HistoricalAverageLoad.
type HistoricalAverageOptions struct {
	HistoryDays           int
	IntervalDurationMin   int // must divide 60
	ForecastHorizonHours  int
	RealtimeWindowMinutes int
	RealtimeKw            *float64
}

// HistoricalAverageLoad bins history into time-of-day buckets of
// IntervalDurationMin and repeats the resulting daily profile over
// ForecastHorizonHours, per spec.md §4.3. A history_days < 1 is
// rejected with a ResolveError before any history is read (see
// DESIGN.md Open Question decisions).
func (r *Resolver) HistoricalAverageLoad(src plant.Source, now time.Time, opts HistoricalAverageOptions) (interval.Series, error) {
	if opts.HistoryDays < 1 {
		return nil, &ResolveError{EntityID: src.EntityID, Msg: "history_days must be >= 1"}
	}
	if opts.IntervalDurationMin <= 0 || 60%opts.IntervalDurationMin != 0 {
		return nil, &ResolveError{EntityID: src.EntityID, Msg: "interval_duration_minutes must divide 60"}
	}

	history, err := r.History(src.EntityID)
	if err != nil {
		return nil, err
	}

	bucketsPerHour := 60 / opts.IntervalDurationMin
	bucketCount := 24 * bucketsPerHour
	sums := make([]float64, bucketCount)
	counts := make([]int, bucketCount)

	for _, p := range history {
		v, err := parseFloatState(p.State)
		if err != nil {
			continue
		}
		minuteOfDay := p.Time.Hour()*60 + p.Time.Minute()
		bucket := minuteOfDay / opts.IntervalDurationMin
		sums[bucket] += v
		counts[bucket]++
	}

	profile := make([]float64, bucketCount)
	for i := range profile {
		if counts[i] > 0 {
			profile[i] = sums[i] / float64(counts[i])
		}
	}

	totalBuckets := opts.ForecastHorizonHours * bucketsPerHour
	series := make(interval.Series, 0, totalBuckets)
	cursor := now
	step := time.Duration(opts.IntervalDurationMin) * time.Minute
	for i := 0; i < totalBuckets; i++ {
		minuteOfDay := cursor.Hour()*60 + cursor.Minute()
		bucket := minuteOfDay / opts.IntervalDurationMin
		value := profile[bucket]

		end := cursor.Add(step)
		if i == 0 && opts.RealtimeWindowMinutes > 0 && opts.RealtimeKw != nil {
			value = *opts.RealtimeKw
		}
		iv, err := interval.New(cursor, end, value)
		if err != nil {
			return nil, &ResolveError{EntityID: src.EntityID, Msg: err.Error()}
		}
		series = append(series, iv)
		cursor = end
	}
	return series, nil
}

func parseFloatState(s string) (float64, error) {
	var v float64
	_, err := fmt.Sscanf(s, "%g", &v)
	return v, err
}
