package fixture

import "github.com/devskill-org/ems-core/plant"

const redactedEntityID = "REDACTED"

// Redact returns a deep copy of cfg with every Source's entity
// identifiers replaced, so ems_config.yaml can be committed or shared
// without revealing the household's home-automation entity naming
// (spec.md §6 "Persisted state" / §4.9 "redacted configuration"). Every
// other field, including the shape of the configuration, is preserved
// verbatim.
func Redact(cfg *plant.Config) *plant.Config {
	out := *cfg
	out.Grid.ImportPriceSource = redactSource(cfg.Grid.ImportPriceSource)
	out.Grid.ExportPriceSource = redactSource(cfg.Grid.ExportPriceSource)

	out.Load = cfg.Load
	out.Load.ForecastSource = redactSource(cfg.Load.ForecastSource)
	if cfg.Load.RealtimeSource != nil {
		s := redactSource(*cfg.Load.RealtimeSource)
		out.Load.RealtimeSource = &s
	}

	out.Inverters = make([]plant.Inverter, len(cfg.Inverters))
	for i, inv := range cfg.Inverters {
		inv.ForecastPvSource = redactSource(inv.ForecastPvSource)
		if inv.RealtimePvSource != nil {
			s := redactSource(*inv.RealtimePvSource)
			inv.RealtimePvSource = &s
		}
		if inv.Battery != nil {
			b := *inv.Battery
			b.InitialSocSource = redactSource(b.InitialSocSource)
			inv.Battery = &b
		}
		out.Inverters[i] = inv
	}

	out.Loads = make([]plant.LoadConfig, len(cfg.Loads))
	for i, l := range cfg.Loads {
		l.ConnectedSource = redactSource(l.ConnectedSource)
		l.ChargingPowerSource = redactSource(l.ChargingPowerSource)
		l.SocSource = redactSource(l.SocSource)
		if l.CanConnectSource != nil {
			s := redactSource(*l.CanConnectSource)
			l.CanConnectSource = &s
		}
		out.Loads[i] = l
	}

	return &out
}

func redactSource(s plant.Source) plant.Source {
	if s.EntityID != "" {
		s.EntityID = redactedEntityID
	}
	if len(s.EntityIDs) > 0 {
		ids := make([]string, len(s.EntityIDs))
		for i := range ids {
			ids[i] = redactedEntityID
		}
		s.EntityIDs = ids
	}
	return s
}
