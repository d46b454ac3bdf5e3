package resolver

import (
	"context"
	"fmt"
	"time"

	"github.com/devskill-org/ems-core/entsoe"
	"github.com/devskill-org/ems-core/interval"
)

// EntsoeForecastSource is a second concrete price-forecast source
// alongside the Amber-style mapper, proving the resolver produces the
// same []interval.PriceInterval shape from a structurally different
// upstream (an XML day-ahead market document) (SPEC_FULL.md §4).
type EntsoeForecastSource struct {
	SecurityToken string
	URLFormat     string
	Location      *time.Location

	// OperatorFeePerKwh and DeliveryFeePerKwh are added to the raw
	// market price to form the import price; ExportOperatorFeePerKwh
	// is subtracted to form the export price, mirroring the teacher's
	// getPriceForecast fee application.
	ImportOperatorFeePerKwh float64
	ImportDeliveryFeePerKwh float64
	ExportOperatorFeePerKwh float64
}

// Forecast downloads the current day-ahead publication and produces
// hourly priced intervals for the next hoursAhead hours.
func (e EntsoeForecastSource) Forecast(ctx context.Context, now time.Time, hoursAhead int) (importSeries, exportSeries interval.Series, err error) {
	doc, err := entsoe.DownloadPublicationMarketData(ctx, e.SecurityToken, e.URLFormat, e.Location)
	if err != nil {
		return nil, nil, &TransientProviderError{EntityID: "entsoe", Err: err}
	}
	if doc == nil {
		return nil, nil, &ResolveError{EntityID: "entsoe", Msg: "no price document available"}
	}

	for i := 0; i < hoursAhead; i++ {
		start := now.Add(time.Duration(i) * time.Hour)
		end := start.Add(time.Hour)
		price, found := doc.LookupAveragePriceInHourByTime(start)
		if !found {
			continue
		}
		importIv, ierr := interval.New(start, end, price+e.ImportOperatorFeePerKwh+e.ImportDeliveryFeePerKwh)
		if ierr != nil {
			return nil, nil, fmt.Errorf("entsoe forecast: %w", ierr)
		}
		exportIv, eerr := interval.New(start, end, price-e.ExportOperatorFeePerKwh)
		if eerr != nil {
			return nil, nil, fmt.Errorf("entsoe forecast: %w", eerr)
		}
		importSeries = append(importSeries, importIv)
		exportSeries = append(exportSeries, exportIv)
	}
	return importSeries, exportSeries, nil
}
