package main

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/devskill-org/ems-core/plant"
)

// AppConfig is the CLI harness's root YAML document: the plant
// configuration plus the ambient settings spec.md §1 places outside
// the core (horizon sizing, planner debounce, HTTP listen address, an
// optional Postgres DSN, an optional Modbus address). Unknown fields
// are rejected at load time, the same contract plant.Config's own
// fields carry.
type AppConfig struct {
	Plant plant.Config `yaml:"plant"`

	Horizon HorizonConfig `yaml:"horizon"`
	Grid    GridBias      `yaml:"grid_bias"`

	PlannerDebounceSeconds int    `yaml:"planner_debounce_seconds"`
	ListenAddress          string `yaml:"listen_address"`

	PostgresDSN   string `yaml:"postgres_dsn,omitempty"`
	ModbusAddress string `yaml:"modbus_address,omitempty"`
	ModbusSlaveID int     `yaml:"modbus_slave_id,omitempty"`
	DryRun        bool   `yaml:"dry_run"`

	FixtureDir string `yaml:"fixture_dir"`
}

// HorizonConfig mirrors horizon.Config with YAML tags; TotalMinutes is
// read from the document's total_minutes key and must be positive.
type HorizonConfig struct {
	TimestepMinutes        int `yaml:"timestep_minutes"`
	HighResTimestepMinutes int `yaml:"high_res_timestep_minutes,omitempty"`
	HighResHorizonMinutes  int `yaml:"high_res_horizon_minutes,omitempty"`
	TotalMinutes           int `yaml:"total_minutes"`
}

// GridBias mirrors pricebias.Config's tunables with YAML tags.
type GridBias struct {
	RiskBiasPct           float64 `yaml:"risk_bias_pct"`
	RiskRampStartAfterMin float64 `yaml:"risk_ramp_start_after_minutes"`
	RiskRampDurationMin   float64 `yaml:"risk_ramp_duration_minutes"`
	GridBiasPct           float64 `yaml:"grid_bias_pct"`
}

func defaultAppConfig() AppConfig {
	return AppConfig{
		Horizon: HorizonConfig{
			TimestepMinutes: 30,
			TotalMinutes:    24 * 60,
		},
		PlannerDebounceSeconds: 5,
		ListenAddress:          "0.0.0.0:8080",
		FixtureDir:             "fixtures",
	}
}

// LoadAppConfig reads and validates path, rejecting unknown fields the
// way spec.md §6 requires of plant.Config. Grounded on the teacher's
// scheduler.LoadConfig, adapted from encoding/json to yaml.v3's
// KnownFields decoder per SPEC_FULL.md's ambient-stack decision.
func LoadAppConfig(path string) (*AppConfig, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %s: %w", path, err)
	}
	defer f.Close()

	cfg := defaultAppConfig()
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	if err := cfg.Plant.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if cfg.Horizon.TimestepMinutes <= 0 {
		return nil, fmt.Errorf("config: horizon.timestep_minutes must be positive")
	}
	if cfg.Horizon.TotalMinutes <= 0 {
		return nil, fmt.Errorf("config: horizon.total_minutes must be positive")
	}
	if cfg.PlannerDebounceSeconds < 0 {
		return nil, fmt.Errorf("config: planner_debounce_seconds must be non-negative")
	}
	return &cfg, nil
}

func (c AppConfig) debounceWindow() time.Duration {
	return time.Duration(c.PlannerDebounceSeconds) * time.Second
}
