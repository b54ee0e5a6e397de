package model

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"cropcast/internal/domain"
	"cropcast/internal/store"
)

// AggregateNational rolls state ensemble forecasts up to a national estimate
// weighted by each state's latest harvested area. States with no forecast, no
// area figure, or a weather-degraded forecast (no station coverage behind the
// snapshot) are excluded and named, never imputed; the coverage fraction
// tells the reader how much of the known area the estimate actually covers.
func AggregateNational(ctx context.Context, ys store.YieldStore, logger *slog.Logger, crop domain.Crop, year, week int, stateForecasts []domain.YieldForecast, allStates []string, now time.Time) (domain.NationalForecast, error) {
	byState := make(map[string]domain.YieldForecast, len(stateForecasts))
	for _, f := range stateForecasts {
		if f.ModelType == domain.ModelEnsemble {
			byState[f.State] = f
		}
	}

	var weightedYield, includedArea, knownArea float64
	var included, excluded []string

	for _, state := range allStates {
		area, ok, err := ys.LatestArea(ctx, crop, state)
		if err != nil {
			return domain.NationalForecast{}, err
		}
		if ok {
			knownArea += area
		}

		f, hasForecast := byState[state]
		if !hasForecast || f.WeatherDegraded || !ok || area <= 0 {
			excluded = append(excluded, state)
			continue
		}

		weightedYield += f.PointEstimate * area
		includedArea += area
		included = append(included, state)
	}

	nf := domain.NationalForecast{
		Commodity:      crop,
		Year:           year,
		ForecastWeek:   week,
		StatesIncluded: included,
		StatesExcluded: excluded,
		CreatedAt:      now,
	}
	sort.Strings(nf.StatesIncluded)
	sort.Strings(nf.StatesExcluded)

	if includedArea > 0 {
		nf.Yield = weightedYield / includedArea
		nf.AreaAcres = includedArea
		nf.Production = nf.Yield * includedArea
	}
	if knownArea > 0 {
		nf.Coverage = includedArea / knownArea
	}
	nf.ReducedCoverage = nf.Coverage < 0.999

	if nf.ReducedCoverage {
		logger.WarnContext(ctx, "national aggregate at reduced coverage",
			slog.String("crop", crop.String()),
			slog.Int("week", week),
			slog.Float64("coverage", nf.Coverage),
			slog.Any("excluded", nf.StatesExcluded))
	}

	return nf, nil
}
