// Package store defines the persistence contracts for features, forecasts,
// yields, and run records, plus an in-memory implementation used by tests
// and the reference wiring. The production schema and its migrations are
// owned by an external repository; the engine only depends on these
// interfaces.
package store

import (
	"context"
	"errors"

	"cropcast/internal/domain"
)

// ErrForecastExists is returned by AppendForecast when the key is already
// present; the table is append-only and never overwrites.
var ErrForecastExists = errors.New("forecast already exists")

// FeatureStore persists weekly feature vectors. Upserts are idempotent and
// keyed by (state, crop, year, week); rows are never deleted.
type FeatureStore interface {
	UpsertFeature(ctx context.Context, fv domain.FeatureVector) error
	GetFeature(ctx context.Context, state string, crop domain.Crop, year, week int) (domain.FeatureVector, bool, error)
	// FeaturesForWeek returns all states' vectors for one (crop, year, week).
	FeaturesForWeek(ctx context.Context, crop domain.Crop, year, week int) ([]domain.FeatureVector, error)
	// HistoricalWeek returns every year's vector for one (state, crop, week),
	// the per-week historical slice that trains models and feeds the analog
	// search.
	HistoricalWeek(ctx context.Context, state string, crop domain.Crop, week int) ([]domain.FeatureVector, error)
}

// ForecastStore persists forecast rows. The table is append-only: writing a
// key that already exists is an error, so later weeks never overwrite
// earlier ones.
type ForecastStore interface {
	AppendForecast(ctx context.Context, f domain.YieldForecast) error
	ForecastsForWeek(ctx context.Context, commodity domain.Crop, year, week int) ([]domain.YieldForecast, error)
	// LatestEnsembleForecasts returns, per state, the most recent ensemble
	// row for the year.
	LatestEnsembleForecasts(ctx context.Context, commodity domain.Crop, year int) ([]domain.YieldForecast, error)
}

// YieldStore persists ground truth and trend fits.
type YieldStore interface {
	PutObservation(ctx context.Context, o domain.YieldObservation) error
	Observations(ctx context.Context, commodity domain.Crop) ([]domain.YieldObservation, error)
	ObservationsForState(ctx context.Context, commodity domain.Crop, state string) ([]domain.YieldObservation, error)
	// LatestArea returns the most recent harvested-area figure for the
	// state, used as the national aggregation weight.
	LatestArea(ctx context.Context, commodity domain.Crop, state string) (float64, bool, error)
	PutTrend(ctx context.Context, t domain.TrendCoefficients) error
	GetTrend(ctx context.Context, commodity domain.Crop, state string) (domain.TrendCoefficients, bool, error)
}

// RunStore persists run audit records.
type RunStore interface {
	SaveRun(ctx context.Context, run domain.ModelRun) error
	GetRun(ctx context.Context, id string) (domain.ModelRun, bool, error)
}

// Store bundles all persistence contracts.
type Store interface {
	FeatureStore
	ForecastStore
	YieldStore
	RunStore
}
