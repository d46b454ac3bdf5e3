package fixture

import (
	"encoding/json"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/devskill-org/ems-core/plan"
	"github.com/devskill-org/ems-core/plant"
)

// Bundle file names within a scenario directory (spec.md §6
// "Persisted state").
const (
	SnapshotFile = "ems_fixture.json"
	ConfigFile   = "ems_config.yaml"
	SummaryFile  = "ems_plan.json"
	PlotFile     = "ems_plan.jpeg"
	HashFile     = "ems_plan.hash"
)

// WriteBundle persists the full fixture bundle for one scenario under
// dir, creating it if needed. cfg is redacted before serialization.
func WriteBundle(dir string, snap *Snapshot, cfg *plant.Config, out plan.Output, summary Summary) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	snapBytes, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(dir, SnapshotFile), snapBytes, 0o644); err != nil {
		return err
	}

	cfgBytes, err := yaml.Marshal(Redact(cfg))
	if err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(dir, ConfigFile), cfgBytes, 0o644); err != nil {
		return err
	}

	summaryBytes, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(dir, SummaryFile), summaryBytes, 0o644); err != nil {
		return err
	}

	if err := os.WriteFile(filepath.Join(dir, HashFile), []byte(Hash(summary)), 0o644); err != nil {
		return err
	}

	return Plot(out, filepath.Join(dir, PlotFile))
}
