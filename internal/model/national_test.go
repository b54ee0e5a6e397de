package model

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cropcast/internal/domain"
	"cropcast/internal/store"
)

func TestAggregateNationalAreaWeights(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	now := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)

	// Area arrives with the latest harvest observation per state.
	require.NoError(t, st.PutObservation(ctx, domain.YieldObservation{
		Commodity: domain.CropCorn, State: "IA", Year: 2023, Yield: 200, AreaAcres: 3000,
	}))
	require.NoError(t, st.PutObservation(ctx, domain.YieldObservation{
		Commodity: domain.CropCorn, State: "IL", Year: 2023, Yield: 210, AreaAcres: 1000,
	}))

	forecasts := []domain.YieldForecast{
		{Commodity: domain.CropCorn, State: "IA", ModelType: domain.ModelEnsemble, PointEstimate: 180},
		{Commodity: domain.CropCorn, State: "IL", ModelType: domain.ModelEnsemble, PointEstimate: 220},
		// Sub-model rows are ignored by the aggregation.
		{Commodity: domain.CropCorn, State: "IA", ModelType: domain.ModelGradientBoost, PointEstimate: 500},
	}

	nf, err := AggregateNational(ctx, st, slog.Default(), domain.CropCorn, 2026, 30, forecasts, []string{"IA", "IL"}, now)
	require.NoError(t, err)

	assert.InDelta(t, (180*3000.0+220*1000.0)/4000.0, nf.Yield, 1e-9)
	assert.InDelta(t, 4000.0, nf.AreaAcres, 1e-9)
	assert.InDelta(t, nf.Yield*4000, nf.Production, 1e-6)
	assert.Equal(t, []string{"IA", "IL"}, nf.StatesIncluded)
	assert.Empty(t, nf.StatesExcluded)
	assert.InDelta(t, 1.0, nf.Coverage, 1e-9)
	assert.False(t, nf.ReducedCoverage)
}

func TestAggregateNationalExcludesMissingStates(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	now := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, st.PutObservation(ctx, domain.YieldObservation{
		Commodity: domain.CropCorn, State: "IA", Year: 2023, Yield: 200, AreaAcres: 3000,
	}))
	require.NoError(t, st.PutObservation(ctx, domain.YieldObservation{
		Commodity: domain.CropCorn, State: "NE", Year: 2023, Yield: 190, AreaAcres: 1000,
	}))

	// NE has a known area but no forecast this week; MT has neither.
	forecasts := []domain.YieldForecast{
		{Commodity: domain.CropCorn, State: "IA", ModelType: domain.ModelEnsemble, PointEstimate: 180},
	}

	nf, err := AggregateNational(ctx, st, slog.Default(), domain.CropCorn, 2026, 30, forecasts, []string{"IA", "MT", "NE"}, now)
	require.NoError(t, err)

	assert.InDelta(t, 180.0, nf.Yield, 1e-9)
	assert.Equal(t, []string{"IA"}, nf.StatesIncluded)
	assert.Equal(t, []string{"MT", "NE"}, nf.StatesExcluded)
	assert.InDelta(t, 0.75, nf.Coverage, 1e-9)
	assert.True(t, nf.ReducedCoverage)
}

func TestAggregateNationalExcludesWeatherDegradedState(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	now := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, st.PutObservation(ctx, domain.YieldObservation{
		Commodity: domain.CropCorn, State: "IA", Year: 2023, Yield: 200, AreaAcres: 3000,
	}))
	require.NoError(t, st.PutObservation(ctx, domain.YieldObservation{
		Commodity: domain.CropCorn, State: "IL", Year: 2023, Yield: 210, AreaAcres: 1000,
	}))

	// IL's snapshot had no station coverage; the models still emitted a
	// number, but it must not weight the national estimate.
	forecasts := []domain.YieldForecast{
		{Commodity: domain.CropCorn, State: "IA", ModelType: domain.ModelEnsemble, PointEstimate: 180},
		{Commodity: domain.CropCorn, State: "IL", ModelType: domain.ModelEnsemble, PointEstimate: 220, WeatherDegraded: true},
	}

	nf, err := AggregateNational(ctx, st, slog.Default(), domain.CropCorn, 2026, 30, forecasts, []string{"IA", "IL"}, now)
	require.NoError(t, err)

	assert.InDelta(t, 180.0, nf.Yield, 1e-9)
	assert.Equal(t, []string{"IA"}, nf.StatesIncluded)
	assert.Equal(t, []string{"IL"}, nf.StatesExcluded)
	assert.InDelta(t, 0.75, nf.Coverage, 1e-9)
	assert.True(t, nf.ReducedCoverage)
}

func TestAggregateNationalNoForecasts(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	now := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)

	nf, err := AggregateNational(ctx, st, slog.Default(), domain.CropCorn, 2026, 30, nil, []string{"IA"}, now)
	require.NoError(t, err)

	assert.Zero(t, nf.Yield)
	assert.Empty(t, nf.StatesIncluded)
	assert.Equal(t, []string{"IA"}, nf.StatesExcluded)
	assert.True(t, nf.ReducedCoverage)
}
