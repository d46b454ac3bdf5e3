package resolver

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/devskill-org/ems-core/interval"
	"github.com/devskill-org/ems-core/meteo"
	"github.com/sixdouglas/suncalc"
)

// WeatherPVOptions tunes WeatherDerivedPVForecast.
type WeatherPVOptions struct {
	Latitude, Longitude float64
	PeakPowerKw         float64
	StepMinutes         int
	HorizonHours         int
	// CurrentPvKw, when below 0.1 kW while the model expects
	// meaningful output within the hour, is treated as a signal the
	// panels may be snow-covered even absent a snow symbol.
	CurrentPvKw float64
}

// WeatherDerivedPVForecast estimates PV output from a fetched weather
// forecast: solar altitude factor times a cloud-coverage factor,
// zeroed outside daylight hours or when snow is detected. This is a
// secondary PV source alongside the Solcast-style mapper (SPEC_FULL.md
// §4), grounded on the teacher's estimateSolarPowerFromWeather.
func WeatherDerivedPVForecast(forecast *meteo.METJSONForecast, now time.Time, opts WeatherPVOptions) (interval.Series, error) {
	if forecast == nil || forecast.Properties == nil || len(forecast.Properties.Timeseries) == 0 {
		return nil, fmt.Errorf("weather forecast has no timeseries data")
	}

	stepCount := opts.HorizonHours * 60 / opts.StepMinutes
	step := time.Duration(opts.StepMinutes) * time.Minute

	series := make(interval.Series, 0, stepCount)
	cursor := now
	for i := 0; i < stepCount; i++ {
		end := cursor.Add(step)
		power := estimatePVPowerAt(forecast, cursor, opts)
		iv, err := interval.New(cursor, end, power)
		if err != nil {
			return nil, err
		}
		series = append(series, iv)
		cursor = end
	}
	return series, nil
}

func estimatePVPowerAt(forecast *meteo.METJSONForecast, t time.Time, opts WeatherPVOptions) float64 {
	step := closestTimeStep(forecast, t)
	if step == nil || step.Data == nil || step.Data.Instant == nil || step.Data.Instant.Details == nil {
		return 0
	}
	details := step.Data.Instant.Details

	times := suncalc.GetTimes(t, opts.Latitude, opts.Longitude)
	sunrise := times["sunrise"].Value
	sunset := times["sunset"].Value
	if t.Before(sunrise) || t.After(sunset) {
		return 0
	}

	pos := suncalc.GetPosition(t, opts.Latitude, opts.Longitude)
	altitudeFactor := math.Sin(pos.Altitude)
	if altitudeFactor < 0 {
		return 0
	}

	if symbol := step.GetSymbolCode(); symbol != nil && isSnowSymbol(*symbol) {
		return 0
	}

	cloudFactor := 1.0
	if details.CloudAreaFraction != nil {
		cloudFactor = 1.0 - (*details.CloudAreaFraction/100.0)*0.90
	}

	expected := opts.PeakPowerKw * altitudeFactor * cloudFactor
	if opts.CurrentPvKw < 0.1 && expected > 1.0 && time.Until(t).Hours() < 1 {
		return 0
	}
	return expected
}

// isSnowSymbol reports whether a meteo weather symbol denotes
// snowfall. meteo.WeatherSymbol carries no such classifier of its own,
// so this matches on the symbol's name fragment the way met.no's
// symbol table documents the "snow" family.
func isSnowSymbol(symbol meteo.WeatherSymbol) bool {
	return strings.Contains(string(symbol), "snow")
}

func closestTimeStep(forecast *meteo.METJSONForecast, target time.Time) *meteo.ForecastTimeStep {
	var closest *meteo.ForecastTimeStep
	minDiff := time.Duration(math.MaxInt64)
	for i := range forecast.Properties.Timeseries {
		step := &forecast.Properties.Timeseries[i]
		diff := step.Time.Sub(target)
		if diff < 0 {
			diff = -diff
		}
		if diff < minDiff {
			minDiff = diff
			closest = step
		}
	}
	return closest
}
