package model

import (
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"

	"cropcast/internal/domain"
	apperrors "cropcast/internal/errors"
)

// FitTrend fits yield against year for one (commodity, state) history.
// excludeYear, when nonzero, drops that year's observation so an in-season
// refit can never leak the forecast year's own partial signal into its
// baseline. Histories shorter than minYears return an
// InsufficientHistoryError; callers fall back to a coarser aggregate.
func FitTrend(obs []domain.YieldObservation, minYears, windowYears, excludeYear int, now time.Time) (domain.TrendCoefficients, error) {
	filtered := make([]domain.YieldObservation, 0, len(obs))
	for _, o := range obs {
		if o.Year != excludeYear {
			filtered = append(filtered, o)
		}
	}
	sort.Slice(filtered, func(i, j int) bool { return filtered[i].Year < filtered[j].Year })

	if windowYears > 0 && len(filtered) > windowYears {
		filtered = filtered[len(filtered)-windowYears:]
	}

	if len(filtered) < minYears {
		commodity, state := "", ""
		if len(obs) > 0 {
			commodity, state = obs[0].Commodity.String(), obs[0].State
		}
		return domain.TrendCoefficients{}, &apperrors.InsufficientHistoryError{
			Commodity: commodity,
			State:     state,
			Years:     len(filtered),
			MinYears:  minYears,
		}
	}

	baseYear := filtered[0].Year
	xs := make([]float64, len(filtered))
	ys := make([]float64, len(filtered))
	for i, o := range filtered {
		xs[i] = float64(o.Year - baseYear)
		ys[i] = o.Yield
	}

	intercept, slope := stat.LinearRegression(xs, ys, nil, false)
	r2 := stat.RSquared(xs, ys, nil, intercept, slope)
	if r2 < 0 {
		r2 = 0
	}

	return domain.TrendCoefficients{
		Commodity: filtered[0].Commodity,
		State:     filtered[0].State,
		Intercept: intercept,
		Slope:     slope,
		BaseYear:  baseYear,
		FirstYear: filtered[0].Year,
		LastYear:  filtered[len(filtered)-1].Year,
		R2:        r2,
		Source:    domain.TrendSourceState,
		FittedAt:  now,
	}, nil
}

// FitTrendWithFallback fits the state trend, falling back to a pooled
// national fit (mean-adjusted to the state's level) when the state's history
// is too short. The fallback keeps the national slope but re-centers the
// intercept on whatever state observations exist, so a short history still
// anchors the level.
func FitTrendWithFallback(stateObs, allObs []domain.YieldObservation, state string, minYears, windowYears, excludeYear int, now time.Time) (domain.TrendCoefficients, error) {
	t, err := FitTrend(stateObs, minYears, windowYears, excludeYear, now)
	if err == nil {
		return t, nil
	}
	if !apperrors.IsInsufficientHistory(err) {
		return domain.TrendCoefficients{}, err
	}

	national, nerr := FitTrend(allObs, minYears, windowYears, excludeYear, now)
	if nerr != nil {
		// Not enough pooled history either; surface the original error.
		return domain.TrendCoefficients{}, err
	}

	national.State = state
	national.Source = domain.TrendSourceNational

	// Re-center on the state's observed mean where any observations exist.
	var sum float64
	var n int
	for _, o := range stateObs {
		if o.Year != excludeYear {
			sum += o.Yield - national.Slope*float64(o.Year-national.BaseYear)
			n++
		}
	}
	if n > 0 {
		national.Intercept = sum / float64(n)
	}

	return national, nil
}
