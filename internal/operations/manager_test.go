package operations

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cropcast/internal/config"
	"cropcast/internal/domain"
	"cropcast/internal/infrastructure"
	"cropcast/internal/sources"
	"cropcast/internal/store"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.Model.GBTTrees = 30
	cfg.States = []string{"IA", "IL"}
	return cfg
}

// seedHistory loads 25 corn seasons with week-30 feature rows for the
// configured states.
func seedHistory(t *testing.T, st store.Store, states []string, weeks []int) {
	t.Helper()
	ctx := context.Background()

	for year := 1999; year <= 2023; year++ {
		i := float64(year - 1999)
		shock := 1.5 * math.Sin(float64(year)*1.7)
		moist := math.Cos(float64(year) * 0.9)
		cond := math.Sin(float64(year)*0.35 + 1)
		dev := -4*shock + 0.6*moist + 0.4*cond

		for si, state := range states {
			require.NoError(t, st.PutObservation(ctx, domain.YieldObservation{
				Commodity: domain.CropCorn,
				State:     state,
				Year:      year,
				Yield:     150 + 10*float64(si) + 2*i + dev,
				AreaAcres: 1000,
			}))
			for _, week := range weeks {
				require.NoError(t, st.UpsertFeature(ctx, domain.FeatureVector{
					State:           state,
					Crop:            domain.CropCorn,
					Year:            year,
					Week:            week,
					GrowthStage:     domain.StageReproductive,
					SeasonWeek:      week - 16,
					GDDDeviationPct: domain.Float64(5 * shock),
					PrecipDevPct:    domain.Float64(-5*shock + 3*moist),
					ConditionPctGE:  domain.Float64(60 - 8*shock + 4*cond),
					HeatStressDays:  domain.Int(int(math.Max(0, 3*shock))),
				}))
			}
		}
	}
}

// stubWeather serves a flat synthetic season for the covered states and
// reports no coverage for the rest.
type stubWeather struct {
	covered map[string]bool
	asOf    time.Time
}

func (s *stubWeather) DailyObservations(_ context.Context, state string, from, to time.Time) ([]sources.WeatherDay, error) {
	if !s.covered[state] {
		return nil, nil
	}
	var days []sources.WeatherDay
	for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
		days = append(days, sources.WeatherDay{
			State:    state,
			Date:     d,
			MaxTempC: domain.Float64(28),
			MinTempC: domain.Float64(16),
			PrecipMM: domain.Float64(3),
		})
	}
	return days, nil
}

func (s *stubWeather) LatestObservation(_ context.Context, _ string) (time.Time, error) {
	return s.asOf, nil
}

func newManagerFixture(t *testing.T, st store.Store, bundle sources.Bundle) *Manager {
	t.Helper()
	cfg := testConfig(t)
	clock := clockwork.NewFakeClockAt(time.Date(2024, 7, 22, 0, 0, 0, 0, time.UTC))
	return NewManager(cfg, st, bundle, clock, slog.Default(), infrastructure.NewTestMetrics())
}

// weatherBundle covers the given states; other feeds stay absent so their
// feature groups degrade to null.
func weatherBundle(states ...string) sources.Bundle {
	covered := make(map[string]bool, len(states))
	for _, s := range states {
		covered[s] = true
	}
	return sources.Bundle{Weather: &stubWeather{
		covered: covered,
		asOf:    time.Date(2024, 7, 22, 0, 0, 0, 0, time.UTC),
	}}
}

func TestRunWeeklyCompletes(t *testing.T) {
	st := store.NewMemoryStore()
	seedHistory(t, st, []string{"IA", "IL"}, []int{30})
	mgr := newManagerFixture(t, st, weatherBundle("IA", "IL"))
	ctx := context.Background()

	state, err := mgr.RunWeekly(ctx, 2024, 30, []domain.Crop{domain.CropCorn})
	require.NoError(t, err)

	assert.Equal(t, domain.RunStatusCompleted, state.Run.Status)
	assert.Empty(t, state.Run.FailedUnits)
	assert.Positive(t, state.Run.FeatureRows)

	// Two states, four model rows each.
	assert.Len(t, state.Forecasts[domain.CropCorn], 8)
	assert.Equal(t, 8, state.Run.Forecasts)

	// All forecast rows were persisted append-only.
	persisted, err := st.ForecastsForWeek(ctx, domain.CropCorn, 2024, 30)
	require.NoError(t, err)
	assert.Len(t, persisted, 8)

	national, ok := state.National[domain.CropCorn]
	require.True(t, ok)
	assert.Equal(t, []string{"IA", "IL"}, national.StatesIncluded)
	assert.False(t, national.ReducedCoverage)
	assert.Positive(t, national.Yield)

	// Terminal audit record.
	run, ok, err := st.GetRun(ctx, state.Run.ID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, domain.RunStatusCompleted, run.Status)
	assert.False(t, run.FinishedAt.IsZero())
}

// flakyFeatureStore fails every feature upsert for one state, simulating a
// persistent per-unit fault.
type flakyFeatureStore struct {
	store.Store
	failState string
}

func (f *flakyFeatureStore) UpsertFeature(ctx context.Context, fv domain.FeatureVector) error {
	if fv.State == f.failState {
		return fmt.Errorf("simulated storage fault for %s", fv.State)
	}
	return f.Store.UpsertFeature(ctx, fv)
}

func TestRunWeeklyIsolatesFailingUnit(t *testing.T) {
	backing := store.NewMemoryStore()
	seedHistory(t, backing, []string{"IA", "IL"}, []int{30})
	st := &flakyFeatureStore{Store: backing, failState: "IL"}
	mgr := newManagerFixture(t, st, weatherBundle("IA", "IL"))
	ctx := context.Background()

	state, err := mgr.RunWeekly(ctx, 2024, 30, []domain.Crop{domain.CropCorn})
	require.NoError(t, err, "an isolated unit failure must not fail the run")

	assert.Equal(t, domain.RunStatusPartial, state.Run.Status)
	assert.Contains(t, state.Run.FailedUnits, "IL/corn")

	// The healthy unit still published all its rows.
	require.Len(t, state.Forecasts[domain.CropCorn], 4)
	assert.Equal(t, "IA", state.Forecasts[domain.CropCorn][0].State)

	run, ok, err := backing.GetRun(ctx, state.Run.ID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, domain.RunStatusPartial, run.Status)
}

func TestRunWeeklyExcludesStateWithoutWeatherCoverage(t *testing.T) {
	st := store.NewMemoryStore()
	seedHistory(t, st, []string{"IA", "IL"}, []int{30})
	// Only IA has station coverage; IL's weather feature group is null.
	mgr := newManagerFixture(t, st, weatherBundle("IA"))
	ctx := context.Background()

	state, err := mgr.RunWeekly(ctx, 2024, 30, []domain.Crop{domain.CropCorn})
	require.NoError(t, err)
	assert.Equal(t, domain.RunStatusCompleted, state.Run.Status)

	// IL still gets forecast rows, flagged as weather-degraded.
	require.Len(t, state.Forecasts[domain.CropCorn], 8)
	for _, f := range state.Forecasts[domain.CropCorn] {
		assert.Equal(t, f.State == "IL", f.WeatherDegraded, "%s/%s", f.State, f.ModelType)
	}

	// The national roll-up excludes the blind state and says so.
	national, ok := state.National[domain.CropCorn]
	require.True(t, ok)
	assert.Equal(t, []string{"IA"}, national.StatesIncluded)
	assert.Equal(t, []string{"IL"}, national.StatesExcluded)
	assert.True(t, national.ReducedCoverage)
	assert.InDelta(t, 0.5, national.Coverage, 1e-9, "states were seeded with equal area")
	assert.Positive(t, national.Yield)
}

func TestRunWeeklyWithoutHistoryIsPartial(t *testing.T) {
	st := store.NewMemoryStore()
	mgr := newManagerFixture(t, st, sources.Bundle{})

	state, err := mgr.RunWeekly(context.Background(), 2024, 30, []domain.Crop{domain.CropCorn})
	require.NoError(t, err)

	// No yield history: training cannot produce an artifact and there is no
	// previous one, so the crop is excluded and the run finishes partial.
	assert.Equal(t, domain.RunStatusPartial, state.Run.Status)
	assert.True(t, state.Untrained(domain.CropCorn))
	assert.Empty(t, state.Forecasts[domain.CropCorn])
}

func TestRunTrainPublishesArtifact(t *testing.T) {
	st := store.NewMemoryStore()
	seedHistory(t, st, []string{"IA", "IL"}, []int{30})
	mgr := newManagerFixture(t, st, sources.Bundle{})

	state, err := mgr.RunTrain(context.Background(), 2024, 30, []domain.Crop{domain.CropCorn})
	require.NoError(t, err)
	assert.Equal(t, domain.RunStatusCompleted, state.Run.Status)

	artifact, err := mgr.Registry().Latest(domain.CropCorn)
	require.NoError(t, err)
	assert.NotEmpty(t, artifact.Version)
	assert.Positive(t, artifact.CV.RMSE)
}

func TestRunBacktestProducesReports(t *testing.T) {
	st := store.NewMemoryStore()
	cfg := testConfig(t)
	seedHistory(t, st, []string{"IA", "IL"}, cfg.Validation.ForecastWeeks)
	mgr := newManagerFixture(t, st, sources.Bundle{})

	state, err := mgr.RunBacktest(context.Background(), 2024, []domain.Crop{domain.CropCorn})
	require.NoError(t, err)
	assert.Equal(t, domain.RunStatusCompleted, state.Run.Status)

	report, ok := state.Backtests[domain.CropCorn]
	require.True(t, ok)
	assert.NotEmpty(t, report.Records)
	assert.NotEmpty(t, report.Weeks)
}

func TestSeasonStartWeek(t *testing.T) {
	cfgs := config.DefaultCropConfigs()

	corn := cfgs[domain.CropCorn.String()]
	assert.Equal(t, corn.PlantingWeek, seasonStartWeek(corn, 30))
	assert.Equal(t, 12, seasonStartWeek(corn, 12), "pre-season run builds only up to the run week")

	wheat := cfgs[domain.CropWinterWheat.String()]
	assert.Equal(t, 1, seasonStartWeek(wheat, 20), "winter crop rebuild starts at week 1 of the harvest year")
}
