// Package plant holds the typed configuration of a household electrical
// plant: the grid connection, PV inverters with optional batteries, and
// controlled loads such as EV chargers (spec.md §3 PlantConfig).
package plant

import (
	"fmt"
	"regexp"
)

var idPattern = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// CurtailMode enumerates how an inverter's PV output may be curtailed.
type CurtailMode string

const (
	CurtailNone      CurtailMode = "none"
	CurtailLoadAware CurtailMode = "load_aware"
	CurtailBinary    CurtailMode = "binary"
)

// Source identifies where a resolved value comes from: a single entity
// id, a list of entity ids to be summed/concatenated, or a history
// query against one entity with a retention requirement.
type Source struct {
	Kind        string   `yaml:"kind"` // "entity", "multi_entity", "history_entity"
	EntityID    string   `yaml:"entity_id,omitempty"`
	EntityIDs   []string `yaml:"entity_ids,omitempty"`
	HistoryDays int      `yaml:"history_days,omitempty"`
}

// TimeWindow is an HH:MM-HH:MM window that may wrap midnight.
type TimeWindow struct {
	Start string `yaml:"start"` // "HH:MM"
	End   string `yaml:"end"`   // "HH:MM"
}

// Incentive is one piecewise target-SoC reward segment. Incentives
// within a LoadConfig must have non-decreasing TargetSocKwh.
type Incentive struct {
	TargetSocKwh float64 `yaml:"target_soc_kwh"`
	RewardPerKwh float64 `yaml:"reward_per_kwh"`
}

// Grid describes the household's grid connection: import/export caps,
// the price forecasting sources, forbidden-import windows and bias
// configuration.
type Grid struct {
	MaxImportKw float64 `yaml:"max_import_kw"`
	MaxExportKw float64 `yaml:"max_export_kw"`

	ImportPriceSource Source `yaml:"import_price_source"`
	ExportPriceSource Source `yaml:"export_price_source"`

	ForbiddenImportWindows []TimeWindow `yaml:"forbidden_import_windows,omitempty"`

	RiskBiasPct           float64 `yaml:"risk_bias_pct"`
	RiskRampStartAfterMin float64 `yaml:"risk_ramp_start_after_minutes"`
	RiskRampDurationMin   float64 `yaml:"risk_ramp_duration_minutes"`
	GridBiasPct           float64 `yaml:"grid_bias_pct"`

	ImportPriceFloor   *float64 `yaml:"import_price_floor,omitempty"`
	ImportPriceCeiling *float64 `yaml:"import_price_ceiling,omitempty"`
	ExportPriceFloor   *float64 `yaml:"export_price_floor,omitempty"`
	ExportPriceCeiling *float64 `yaml:"export_price_ceiling,omitempty"`
}

// Battery describes an inverter's attached battery.
type Battery struct {
	CapacityKwh        float64 `yaml:"capacity_kwh"`
	MaxChargeKw         float64 `yaml:"max_charge_kw"`
	MaxDischargeKw      float64 `yaml:"max_discharge_kw"`
	MinSocPct           float64 `yaml:"min_soc_pct"`
	MaxSocPct           float64 `yaml:"max_soc_pct"`
	ReserveSocPct       float64 `yaml:"reserve_soc_pct"`
	StorageEfficiency   float64 `yaml:"storage_efficiency"` // round-trip, 0-1
	WearCostPerKwh      float64 `yaml:"wear_cost_per_kwh"`
	InitialSocSource    Source  `yaml:"initial_soc_source"`
	AdaptiveTarget      bool    `yaml:"adaptive_target"`
}

// Inverter is one PV inverter, optionally with a battery.
type Inverter struct {
	ID string `yaml:"id"`

	PeakPowerKw       float64 `yaml:"peak_power_kw"`
	RealtimePvSource  *Source `yaml:"realtime_pv_source,omitempty"`
	ForecastPvSource  Source  `yaml:"forecast_pv_source"`
	Curtailment       CurtailMode `yaml:"curtailment"`

	Battery *Battery `yaml:"battery,omitempty"`
}

// LoadConfig is a controlled load, in this system always an EV charger.
type LoadConfig struct {
	ID string `yaml:"id"`

	MinPowerKw   float64 `yaml:"min_power_kw"`
	MaxPowerKw   float64 `yaml:"max_power_kw"`
	CapacityKwh  float64 `yaml:"capacity_kwh"`

	ConnectedSource      Source  `yaml:"connected_source"`
	CanConnectSource     *Source `yaml:"can_connect_source,omitempty"`
	ChargingPowerSource  Source  `yaml:"charging_power_source"`
	SocSource            Source  `yaml:"soc_source"`

	ConnectWindows     []TimeWindow `yaml:"connect_windows,omitempty"`
	GraceMinutes       int          `yaml:"grace_minutes"`

	Incentives []Incentive `yaml:"incentives,omitempty"`
}

// Load is the household's base (uncontrolled) load.
type Load struct {
	RealtimeSource *Source `yaml:"realtime_source,omitempty"`
	ForecastSource Source  `yaml:"forecast_source"`
}

// Config is the root plant configuration.
type Config struct {
	Grid      Grid         `yaml:"grid"`
	Load      Load         `yaml:"load"`
	Inverters []Inverter   `yaml:"inverters"`
	Loads     []LoadConfig `yaml:"loads,omitempty"`
}

// Validate checks the structural invariants spec.md §6 names: id
// format, uniqueness, SoC ordering, and non-negativity of capacities.
func (c *Config) Validate() error {
	if c.Grid.MaxImportKw < 0 {
		return fmt.Errorf("grid.max_import_kw must be non-negative, got: %f", c.Grid.MaxImportKw)
	}
	if c.Grid.MaxExportKw < 0 {
		return fmt.Errorf("grid.max_export_kw must be non-negative, got: %f", c.Grid.MaxExportKw)
	}

	seenInverters := make(map[string]bool, len(c.Inverters))
	for _, inv := range c.Inverters {
		if !idPattern.MatchString(inv.ID) {
			return fmt.Errorf("inverter id %q does not match %s", inv.ID, idPattern.String())
		}
		if seenInverters[inv.ID] {
			return fmt.Errorf("duplicate inverter id %q", inv.ID)
		}
		seenInverters[inv.ID] = true

		if inv.PeakPowerKw < 0 {
			return fmt.Errorf("inverter %q: peak_power_kw must be non-negative, got: %f", inv.ID, inv.PeakPowerKw)
		}
		switch inv.Curtailment {
		case CurtailNone, CurtailLoadAware, CurtailBinary:
		default:
			return fmt.Errorf("inverter %q: invalid curtailment mode %q", inv.ID, inv.Curtailment)
		}

		if b := inv.Battery; b != nil {
			if err := b.validate(inv.ID); err != nil {
				return err
			}
		}
	}

	seenLoads := make(map[string]bool, len(c.Loads))
	for _, l := range c.Loads {
		if !idPattern.MatchString(l.ID) {
			return fmt.Errorf("load id %q does not match %s", l.ID, idPattern.String())
		}
		if seenLoads[l.ID] {
			return fmt.Errorf("duplicate load id %q", l.ID)
		}
		seenLoads[l.ID] = true

		if l.MinPowerKw < 0 {
			return fmt.Errorf("load %q: min_power_kw must be non-negative, got: %f", l.ID, l.MinPowerKw)
		}
		if l.MaxPowerKw < l.MinPowerKw {
			return fmt.Errorf("load %q: max_power_kw (%f) cannot be less than min_power_kw (%f)", l.ID, l.MaxPowerKw, l.MinPowerKw)
		}
		if l.CapacityKwh <= 0 {
			return fmt.Errorf("load %q: capacity_kwh must be positive, got: %f", l.ID, l.CapacityKwh)
		}
		if err := validateIncentives(l.ID, l.Incentives); err != nil {
			return err
		}
	}

	return nil
}

func (b *Battery) validate(inverterID string) error {
	if b.CapacityKwh <= 0 {
		return fmt.Errorf("inverter %q: battery.capacity_kwh must be positive, got: %f", inverterID, b.CapacityKwh)
	}
	if b.MinSocPct < 0 || b.MinSocPct > 100 {
		return fmt.Errorf("inverter %q: battery.min_soc_pct must be between 0 and 100, got: %f", inverterID, b.MinSocPct)
	}
	if b.MaxSocPct < 0 || b.MaxSocPct > 100 {
		return fmt.Errorf("inverter %q: battery.max_soc_pct must be between 0 and 100, got: %f", inverterID, b.MaxSocPct)
	}
	if b.MinSocPct > b.MaxSocPct {
		return fmt.Errorf("inverter %q: battery.min_soc_pct (%f) cannot be greater than max_soc_pct (%f)", inverterID, b.MinSocPct, b.MaxSocPct)
	}
	if b.StorageEfficiency <= 0 || b.StorageEfficiency > 1 {
		return fmt.Errorf("inverter %q: battery.storage_efficiency must be in (0,1], got: %f", inverterID, b.StorageEfficiency)
	}
	return nil
}

func validateIncentives(loadID string, incentives []Incentive) error {
	prev := -1.0
	for i, inc := range incentives {
		if inc.TargetSocKwh < prev {
			return fmt.Errorf("load %q: incentive %d target_soc_kwh (%f) is less than the previous segment's (%f); incentives must be non-decreasing", loadID, i, inc.TargetSocKwh, prev)
		}
		prev = inc.TargetSocKwh
	}
	return nil
}
