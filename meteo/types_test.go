package meteo

import "testing"

func TestForecastTimeStep_GetSymbolCode(t *testing.T) {
	tests := []struct {
		name     string
		timeStep *ForecastTimeStep
		expected *WeatherSymbol
	}{
		{
			name:     "nil time step",
			timeStep: nil,
			expected: nil,
		},
		{
			name: "symbol from next 1 hour",
			timeStep: &ForecastTimeStep{
				Data: &ForecastTimeStepData{
					Next1Hours: &ForecastPeriodData{
						Summary: &ForecastSummary{SymbolCode: "clearsky_day"},
					},
				},
			},
			expected: func() *WeatherSymbol { s := WeatherSymbol("clearsky_day"); return &s }(),
		},
		{
			name: "symbol from next 6 hours (fallback)",
			timeStep: &ForecastTimeStep{
				Data: &ForecastTimeStepData{
					Next6Hours: &ForecastPeriodData{
						Summary: &ForecastSummary{SymbolCode: "rain"},
					},
				},
			},
			expected: func() *WeatherSymbol { s := WeatherSymbol("rain"); return &s }(),
		},
		{
			name: "symbol from next 12 hours (fallback)",
			timeStep: &ForecastTimeStep{
				Data: &ForecastTimeStepData{
					Next12Hours: &ForecastPeriodData{
						Summary: &ForecastSummary{SymbolCode: "heavysnow"},
					},
				},
			},
			expected: func() *WeatherSymbol { s := WeatherSymbol("heavysnow"); return &s }(),
		},
		{
			name: "no symbol available",
			timeStep: &ForecastTimeStep{
				Data: &ForecastTimeStepData{
					Instant: &ForecastInstantData{},
				},
			},
			expected: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := tt.timeStep.GetSymbolCode()
			if (result == nil) != (tt.expected == nil) {
				t.Errorf("expected nil status %v, got %v", tt.expected == nil, result == nil)
			}
			if result != nil && tt.expected != nil && *result != *tt.expected {
				t.Errorf("expected symbol %s, got %s", *tt.expected, *result)
			}
		})
	}
}
