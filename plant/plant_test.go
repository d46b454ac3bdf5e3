package plant

import "testing"

func validConfig() Config {
	return Config{
		Grid: Grid{MaxImportKw: 15, MaxExportKw: 10},
		Load: Load{ForecastSource: Source{Kind: "history_entity", EntityID: "sensor.load", HistoryDays: 7}},
		Inverters: []Inverter{
			{
				ID:               "roof",
				PeakPowerKw:      8,
				ForecastPvSource: Source{Kind: "entity", EntityID: "sensor.pv_forecast"},
				Curtailment:      CurtailLoadAware,
				Battery: &Battery{
					CapacityKwh:       13.5,
					MaxChargeKw:       5,
					MaxDischargeKw:    5,
					MinSocPct:         10,
					MaxSocPct:         95,
					StorageEfficiency: 0.95,
				},
			},
		},
		Loads: []LoadConfig{
			{
				ID:          "ev",
				MinPowerKw:  1.4,
				MaxPowerKw:  7.4,
				CapacityKwh: 60,
				Incentives: []Incentive{
					{TargetSocKwh: 30, RewardPerKwh: 0.1},
					{TargetSocKwh: 50, RewardPerKwh: 0.05},
				},
			},
		},
	}
}

func TestValidateAcceptsWellFormedConfig(t *testing.T) {
	c := validConfig()
	if err := c.Validate(); err != nil {
		t.Fatalf("Validate() error: %v", err)
	}
}

func TestValidateRejectsBadInverterID(t *testing.T) {
	c := validConfig()
	c.Inverters[0].ID = "Roof-1"
	if err := c.Validate(); err == nil {
		t.Fatal("expected error for invalid inverter id")
	}
}

func TestValidateRejectsDuplicateLoadID(t *testing.T) {
	c := validConfig()
	c.Loads = append(c.Loads, c.Loads[0])
	if err := c.Validate(); err == nil {
		t.Fatal("expected error for duplicate load id")
	}
}

func TestValidateRejectsSocInversion(t *testing.T) {
	c := validConfig()
	c.Inverters[0].Battery.MinSocPct = 99
	c.Inverters[0].Battery.MaxSocPct = 10
	if err := c.Validate(); err == nil {
		t.Fatal("expected error for min_soc_pct > max_soc_pct")
	}
}

func TestValidateRejectsDecreasingIncentives(t *testing.T) {
	c := validConfig()
	c.Loads[0].Incentives = []Incentive{
		{TargetSocKwh: 50, RewardPerKwh: 0.1},
		{TargetSocKwh: 30, RewardPerKwh: 0.2},
	}
	if err := c.Validate(); err == nil {
		t.Fatal("expected error for non-monotonic incentive targets")
	}
}

func TestValidateRejectsMaxLessThanMinPower(t *testing.T) {
	c := validConfig()
	c.Loads[0].MaxPowerKw = 1.0
	c.Loads[0].MinPowerKw = 2.0
	if err := c.Validate(); err == nil {
		t.Fatal("expected error for max_power_kw < min_power_kw")
	}
}
