package fixture

import (
	"math"
	"time"

	"github.com/devskill-org/ems-core/plan"
)

// DefaultBucketMinutes is the bucket width Summarize uses when none is
// given (spec.md §4.9 "per-bucket aggregation, default 60-minute").
const DefaultBucketMinutes = 60

// Meta carries the plan-level facts a summary is computed against.
type Meta struct {
	GeneratedAt                 time.Time `json:"generated_at"`
	Status                      string    `json:"status"`
	Objective                   float64   `json:"objective"`
	HorizonStart                time.Time `json:"horizon_start"`
	HorizonEnd                  time.Time `json:"horizon_end"`
	SlotCount                   int       `json:"slot_count"`
	TimestepMinutesDistribution map[int]int `json:"timestep_minutes_distribution"`
}

// Totals aggregates grid, PV, battery, EV and cost across the full horizon.
type Totals struct {
	GridImportKwh       float64 `json:"grid_import_kwh"`
	GridExportKwh       float64 `json:"grid_export_kwh"`
	PvKwh               float64 `json:"pv_kwh"`
	PvCurtailedKwh      float64 `json:"pv_curtailed_kwh"`
	BatteryChargeKwh    float64 `json:"battery_charge_kwh"`
	BatteryDischargeKwh float64 `json:"battery_discharge_kwh"`
	EvChargeKwh         float64 `json:"ev_charge_kwh"`
	CostTotal           float64 `json:"cost_total"`
}

// PriceStats summarizes the unbiased import/export price series.
type PriceStats struct {
	ImportMin float64 `json:"import_min"`
	ImportMax float64 `json:"import_max"`
	ImportAvg float64 `json:"import_avg"`
	ExportMin float64 `json:"export_min"`
	ExportMax float64 `json:"export_max"`
	ExportAvg float64 `json:"export_avg"`
}

// InverterStats summarizes one inverter's behavior across the horizon.
type InverterStats struct {
	PvKwh               float64 `json:"pv_kwh"`
	PvCurtailedKwh      float64 `json:"pv_curtailed_kwh"`
	ChargeKwh           float64 `json:"charge_kwh"`
	DischargeKwh        float64 `json:"discharge_kwh"`
	SocMinPct           float64 `json:"soc_min_pct"`
	SocMaxPct           float64 `json:"soc_max_pct"`
	SocEndPct           float64 `json:"soc_end_pct"`
	CurtailmentMinutes  float64 `json:"curtailment_minutes"`
}

// EVStats summarizes one controlled load's behavior across the horizon.
type EVStats struct {
	ChargeKwh        float64 `json:"charge_kwh"`
	SocMinPct        float64 `json:"soc_min_pct"`
	SocMaxPct        float64 `json:"soc_max_pct"`
	SocEndPct        float64 `json:"soc_end_pct"`
	ConnectedMinutes float64 `json:"connected_minutes"`
}

// Bucket is one fixed-width aggregation window (spec.md §4.9
// "per-bucket aggregation ... splitting each step proportionally by
// overlap").
type Bucket struct {
	Start         time.Time `json:"start"`
	End           time.Time `json:"end"`
	GridImportKwh float64   `json:"grid_import_kwh"`
	GridExportKwh float64   `json:"grid_export_kwh"`
	PvKwh         float64   `json:"pv_kwh"`
	CostTotal     float64   `json:"cost_total"`
}

// Summary is the reduced, hashable document spec.md §4.9 calls for.
type Summary struct {
	Meta      Meta                      `json:"meta"`
	Totals    Totals                    `json:"totals"`
	Prices    PriceStats                `json:"prices"`
	Inverters map[string]InverterStats  `json:"inverters"`
	EVs       map[string]EVStats        `json:"evs"`
	Buckets   []Bucket                  `json:"buckets"`
}

// Summarize reduces out to a Summary. bucketMinutes <= 0 falls back to
// DefaultBucketMinutes.
func Summarize(out plan.Output, bucketMinutes int) Summary {
	if bucketMinutes <= 0 {
		bucketMinutes = DefaultBucketMinutes
	}

	s := Summary{
		Inverters: map[string]InverterStats{},
		EVs:       map[string]EVStats{},
	}
	s.Meta.GeneratedAt = out.Header.GeneratedAt
	s.Meta.Status = string(out.Header.Status)
	s.Meta.Objective = round3(out.Header.ObjectiveValue)
	s.Meta.SlotCount = len(out.Slots)
	s.Meta.TimestepMinutesDistribution = map[int]int{}

	if len(out.Slots) == 0 {
		return s
	}
	s.Meta.HorizonStart = out.Slots[0].Start
	s.Meta.HorizonEnd = out.Slots[len(out.Slots)-1].End

	invSoc := map[string][2]float64{}     // id -> [min, max]
	evSoc := map[string][2]float64{}
	firstSeenInv := map[string]bool{}
	firstSeenEv := map[string]bool{}

	importWeighted, exportWeighted, totalHours := 0.0, 0.0, 0.0
	importMin, importMax := math.Inf(1), math.Inf(-1)
	exportMin, exportMax := math.Inf(1), math.Inf(-1)

	buckets := makeBuckets(s.Meta.HorizonStart, s.Meta.HorizonEnd, bucketMinutes)

	for _, slot := range out.Slots {
		dtH := slot.End.Sub(slot.Start).Hours()
		dtMin := slot.End.Sub(slot.Start).Minutes()
		s.Meta.TimestepMinutesDistribution[int(math.Round(dtMin))]++

		s.Totals.GridImportKwh += slot.ImportKw * dtH
		s.Totals.GridExportKwh += slot.ExportKw * dtH
		s.Totals.CostTotal += slot.SegmentCost

		importWeighted += slot.PriceImport * dtH
		exportWeighted += slot.PriceExport * dtH
		totalHours += dtH
		importMin = math.Min(importMin, slot.PriceImport)
		importMax = math.Max(importMax, slot.PriceImport)
		exportMin = math.Min(exportMin, slot.PriceExport)
		exportMax = math.Max(exportMax, slot.PriceExport)

		for id, step := range slot.Inverters {
			st := s.Inverters[id]
			st.PvKwh += step.PvKw * dtH
			st.PvCurtailedKwh += step.PvCurtailKw * dtH
			st.ChargeKwh += step.BatteryChargeKw * dtH
			st.DischargeKwh += step.BatteryDischargeKw * dtH
			if step.Curtailment {
				st.CurtailmentMinutes += dtMin
			}
			s.Totals.PvKwh += step.PvKw * dtH
			s.Totals.PvCurtailedKwh += step.PvCurtailKw * dtH
			s.Totals.BatteryChargeKwh += step.BatteryChargeKw * dtH
			s.Totals.BatteryDischargeKwh += step.BatteryDischargeKw * dtH

			bounds := invSoc[id]
			if !firstSeenInv[id] {
				bounds = [2]float64{step.BatterySocPct, step.BatterySocPct}
				firstSeenInv[id] = true
			} else {
				bounds[0] = math.Min(bounds[0], step.BatterySocPct)
				bounds[1] = math.Max(bounds[1], step.BatterySocPct)
			}
			invSoc[id] = bounds
			st.SocEndPct = step.BatterySocPct
			s.Inverters[id] = st
		}

		for id, step := range slot.EVs {
			st := s.EVs[id]
			st.ChargeKwh += step.ChargeKw * dtH
			if step.Connected {
				st.ConnectedMinutes += dtMin
			}
			s.Totals.EvChargeKwh += step.ChargeKw * dtH

			bounds := evSoc[id]
			if !firstSeenEv[id] {
				bounds = [2]float64{step.SocPct, step.SocPct}
				firstSeenEv[id] = true
			} else {
				bounds[0] = math.Min(bounds[0], step.SocPct)
				bounds[1] = math.Max(bounds[1], step.SocPct)
			}
			evSoc[id] = bounds
			st.SocEndPct = step.SocPct
			s.EVs[id] = st
		}

		accumulateBuckets(buckets, slot)
	}

	for id, bounds := range invSoc {
		st := s.Inverters[id]
		st.SocMinPct = round3(bounds[0])
		st.SocMaxPct = round3(bounds[1])
		st.SocEndPct = round3(st.SocEndPct)
		st.PvKwh = round3(st.PvKwh)
		st.PvCurtailedKwh = round3(st.PvCurtailedKwh)
		st.ChargeKwh = round3(st.ChargeKwh)
		st.DischargeKwh = round3(st.DischargeKwh)
		st.CurtailmentMinutes = round3(st.CurtailmentMinutes)
		s.Inverters[id] = st
	}
	for id, bounds := range evSoc {
		st := s.EVs[id]
		st.SocMinPct = round3(bounds[0])
		st.SocMaxPct = round3(bounds[1])
		st.SocEndPct = round3(st.SocEndPct)
		st.ChargeKwh = round3(st.ChargeKwh)
		st.ConnectedMinutes = round3(st.ConnectedMinutes)
		s.EVs[id] = st
	}

	if totalHours > 0 {
		s.Prices.ImportAvg = round3(importWeighted / totalHours)
		s.Prices.ExportAvg = round3(exportWeighted / totalHours)
	}
	if !math.IsInf(importMin, 1) {
		s.Prices.ImportMin = round3(importMin)
		s.Prices.ImportMax = round3(importMax)
		s.Prices.ExportMin = round3(exportMin)
		s.Prices.ExportMax = round3(exportMax)
	}

	s.Totals.GridImportKwh = round3(s.Totals.GridImportKwh)
	s.Totals.GridExportKwh = round3(s.Totals.GridExportKwh)
	s.Totals.PvKwh = round3(s.Totals.PvKwh)
	s.Totals.PvCurtailedKwh = round3(s.Totals.PvCurtailedKwh)
	s.Totals.BatteryChargeKwh = round3(s.Totals.BatteryChargeKwh)
	s.Totals.BatteryDischargeKwh = round3(s.Totals.BatteryDischargeKwh)
	s.Totals.EvChargeKwh = round3(s.Totals.EvChargeKwh)
	s.Totals.CostTotal = round3(s.Totals.CostTotal)

	for i := range buckets {
		buckets[i].GridImportKwh = round3(buckets[i].GridImportKwh)
		buckets[i].GridExportKwh = round3(buckets[i].GridExportKwh)
		buckets[i].PvKwh = round3(buckets[i].PvKwh)
		buckets[i].CostTotal = round3(buckets[i].CostTotal)
	}
	s.Buckets = buckets

	return s
}

func makeBuckets(start, end time.Time, bucketMinutes int) []Bucket {
	if !end.After(start) {
		return nil
	}
	step := time.Duration(bucketMinutes) * time.Minute
	var buckets []Bucket
	for cursor := start; cursor.Before(end); cursor = cursor.Add(step) {
		bEnd := cursor.Add(step)
		if bEnd.After(end) {
			bEnd = end
		}
		buckets = append(buckets, Bucket{Start: cursor, End: bEnd})
	}
	return buckets
}

// accumulateBuckets splits one slot's totals across buckets in
// proportion to wall-clock overlap, the same overlap-weighting
// technique align.Align uses to map forecast intervals onto horizon
// slots.
func accumulateBuckets(buckets []Bucket, slot plan.Slot) {
	dtH := slot.End.Sub(slot.Start).Hours()
	if dtH <= 0 {
		return
	}
	for i := range buckets {
		b := &buckets[i]
		overlapStart := maxTime(slot.Start, b.Start)
		overlapEnd := minTime(slot.End, b.End)
		if !overlapEnd.After(overlapStart) {
			continue
		}
		frac := overlapEnd.Sub(overlapStart).Hours() / dtH
		b.GridImportKwh += slot.ImportKw * dtH * frac
		b.GridExportKwh += slot.ExportKw * dtH * frac
		b.CostTotal += slot.SegmentCost * frac
		for _, step := range slot.Inverters {
			b.PvKwh += step.PvKw * dtH * frac
		}
	}
}

func maxTime(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}

func minTime(a, b time.Time) time.Time {
	if a.Before(b) {
		return a
	}
	return b
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
