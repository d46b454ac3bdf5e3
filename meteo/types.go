// Package meteo decodes the slice of met.no's locationforecast JSON
// shape that WeatherDerivedPVForecast needs: cloud cover per time step
// and the next-hour weather symbol (for snow detection). It is not a
// client for the met.no API — whatever fetches the forecast document
// is responsible for the HTTP call and JSON decode; this package only
// supplies the decode target and the one accessor the PV estimator
// calls.
package meteo

import "time"

// WeatherSymbol is met.no's symbol_code string, e.g. "clearsky_day" or
// "heavysnow". The family carrying snow is identified by name fragment
// rather than an exhaustive symbol table (see resolver.isSnowSymbol).
type WeatherSymbol string

// ForecastTimeInstant holds the point-in-time details this package
// consumes from met.no's "instant" data block.
type ForecastTimeInstant struct {
	CloudAreaFraction *float64 `json:"cloud_area_fraction,omitempty"`
}

// ForecastInstantData wraps the instant details for one time step.
type ForecastInstantData struct {
	Details *ForecastTimeInstant `json:"details,omitempty"`
}

// ForecastSummary carries the summary symbol for a forecast period.
type ForecastSummary struct {
	SymbolCode WeatherSymbol `json:"symbol_code"`
}

// ForecastPeriodData wraps a period summary (next_1_hours, etc).
type ForecastPeriodData struct {
	Summary *ForecastSummary `json:"summary,omitempty"`
}

// ForecastTimeStepData is one time step's forecast data.
type ForecastTimeStepData struct {
	Instant     *ForecastInstantData `json:"instant,omitempty"`
	Next1Hours  *ForecastPeriodData  `json:"next_1_hours,omitempty"`
	Next6Hours  *ForecastPeriodData  `json:"next_6_hours,omitempty"`
	Next12Hours *ForecastPeriodData  `json:"next_12_hours,omitempty"`
}

// ForecastTimeStep is one timestamped entry in the forecast timeseries.
type ForecastTimeStep struct {
	Time time.Time             `json:"time"`
	Data *ForecastTimeStepData `json:"data,omitempty"`
}

// Forecast is the met.no "properties" object.
type Forecast struct {
	Timeseries []ForecastTimeStep `json:"timeseries"`
}

// METJSONForecast is the root met.no locationforecast response.
type METJSONForecast struct {
	Properties *Forecast `json:"properties,omitempty"`
}

// GetSymbolCode returns the weather symbol for the next hour, falling
// back to the 6- and 12-hour summaries if the 1-hour one is absent.
func (ts *ForecastTimeStep) GetSymbolCode() *WeatherSymbol {
	if ts == nil || ts.Data == nil {
		return nil
	}
	if ts.Data.Next1Hours != nil && ts.Data.Next1Hours.Summary != nil {
		return &ts.Data.Next1Hours.Summary.SymbolCode
	}
	if ts.Data.Next6Hours != nil && ts.Data.Next6Hours.Summary != nil {
		return &ts.Data.Next6Hours.Summary.SymbolCode
	}
	if ts.Data.Next12Hours != nil && ts.Data.Next12Hours.Summary != nil {
		return &ts.Data.Next12Hours.Summary.SymbolCode
	}
	return nil
}
