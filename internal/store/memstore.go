package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"cropcast/internal/domain"
)

// MemoryStore is a concurrency-safe in-memory Store. Tests and the reference
// wiring use it; production swaps in the external persistent store behind
// the same interfaces.
type MemoryStore struct {
	mu           sync.RWMutex
	features     map[string]domain.FeatureVector
	forecasts    map[string]domain.YieldForecast
	observations map[string]domain.YieldObservation
	trends       map[string]domain.TrendCoefficients
	runs         map[string]domain.ModelRun
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		features:     make(map[string]domain.FeatureVector),
		forecasts:    make(map[string]domain.YieldForecast),
		observations: make(map[string]domain.YieldObservation),
		trends:       make(map[string]domain.TrendCoefficients),
		runs:         make(map[string]domain.ModelRun),
	}
}

// UpsertFeature inserts or replaces the vector for its key.
func (s *MemoryStore) UpsertFeature(ctx context.Context, fv domain.FeatureVector) error {
	if !fv.IsValid() {
		return fmt.Errorf("invalid feature vector for key %s", fv.Key())
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.features[fv.Key()] = fv
	return nil
}

// GetFeature retrieves one vector by key.
func (s *MemoryStore) GetFeature(ctx context.Context, state string, crop domain.Crop, year, week int) (domain.FeatureVector, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	fv, ok := s.features[domain.FeatureVector{State: state, Crop: crop, Year: year, Week: week}.Key()]
	return fv, ok, nil
}

// FeaturesForWeek returns all states' vectors for one (crop, year, week),
// ordered by state.
func (s *MemoryStore) FeaturesForWeek(ctx context.Context, crop domain.Crop, year, week int) ([]domain.FeatureVector, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.FeatureVector
	for _, fv := range s.features {
		if fv.Crop == crop && fv.Year == year && fv.Week == week {
			out = append(out, fv)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].State < out[j].State })
	return out, nil
}

// HistoricalWeek returns every year's vector for one (state, crop, week),
// ordered by year.
func (s *MemoryStore) HistoricalWeek(ctx context.Context, state string, crop domain.Crop, week int) ([]domain.FeatureVector, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.FeatureVector
	for _, fv := range s.features {
		if fv.State == state && fv.Crop == crop && fv.Week == week {
			out = append(out, fv)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Year < out[j].Year })
	return out, nil
}

// AppendForecast inserts a forecast row; re-inserting an existing key fails.
func (s *MemoryStore) AppendForecast(ctx context.Context, f domain.YieldForecast) error {
	if !f.IsValid() {
		return fmt.Errorf("invalid forecast for key %s", f.Key())
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.forecasts[f.Key()]; exists {
		return fmt.Errorf("forecast %s: %w", f.Key(), ErrForecastExists)
	}
	s.forecasts[f.Key()] = f
	return nil
}

// ForecastsForWeek returns all rows for one (commodity, year, week).
func (s *MemoryStore) ForecastsForWeek(ctx context.Context, commodity domain.Crop, year, week int) ([]domain.YieldForecast, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.YieldForecast
	for _, f := range s.forecasts {
		if f.Commodity == commodity && f.Year == year && f.ForecastWeek == week {
			out = append(out, f)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].State != out[j].State {
			return out[i].State < out[j].State
		}
		return out[i].ModelType < out[j].ModelType
	})
	return out, nil
}

// LatestEnsembleForecasts returns the newest ensemble row per state.
func (s *MemoryStore) LatestEnsembleForecasts(ctx context.Context, commodity domain.Crop, year int) ([]domain.YieldForecast, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	latest := make(map[string]domain.YieldForecast)
	for _, f := range s.forecasts {
		if f.Commodity != commodity || f.Year != year || f.ModelType != domain.ModelEnsemble {
			continue
		}
		if cur, ok := latest[f.State]; !ok || f.ForecastWeek > cur.ForecastWeek {
			latest[f.State] = f
		}
	}

	out := make([]domain.YieldForecast, 0, len(latest))
	for _, f := range latest {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].State < out[j].State })
	return out, nil
}

// PutObservation inserts a ground-truth row; observations are immutable, so
// re-inserting an existing key fails.
func (s *MemoryStore) PutObservation(ctx context.Context, o domain.YieldObservation) error {
	if !o.IsValid() {
		return fmt.Errorf("invalid yield observation %s/%s/%d", o.Commodity, o.State, o.Year)
	}
	key := obsKey(o.Commodity, o.State, o.Year)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.observations[key]; exists {
		return fmt.Errorf("observation %s already published (immutable)", key)
	}
	s.observations[key] = o
	return nil
}

// Observations returns all ground truth for a commodity, ordered by state
// then year.
func (s *MemoryStore) Observations(ctx context.Context, commodity domain.Crop) ([]domain.YieldObservation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.YieldObservation
	for _, o := range s.observations {
		if o.Commodity == commodity {
			out = append(out, o)
		}
	}
	sortObservations(out)
	return out, nil
}

// ObservationsForState returns one state's history, ordered by year.
func (s *MemoryStore) ObservationsForState(ctx context.Context, commodity domain.Crop, state string) ([]domain.YieldObservation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.YieldObservation
	for _, o := range s.observations {
		if o.Commodity == commodity && o.State == state {
			out = append(out, o)
		}
	}
	sortObservations(out)
	return out, nil
}

// LatestArea returns the newest harvested-area figure for the state.
func (s *MemoryStore) LatestArea(ctx context.Context, commodity domain.Crop, state string) (float64, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var best domain.YieldObservation
	found := false
	for _, o := range s.observations {
		if o.Commodity == commodity && o.State == state && o.AreaAcres > 0 {
			if !found || o.Year > best.Year {
				best = o
				found = true
			}
		}
	}
	if !found {
		return 0, false, nil
	}
	return best.AreaAcres, true, nil
}

// PutTrend stores the current trend fit for a (commodity, state).
func (s *MemoryStore) PutTrend(ctx context.Context, t domain.TrendCoefficients) error {
	if !t.IsValid() {
		return fmt.Errorf("invalid trend coefficients for %s/%s", t.Commodity, t.State)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.trends[trendKey(t.Commodity, t.State)] = t
	return nil
}

// GetTrend retrieves the trend fit for a (commodity, state).
func (s *MemoryStore) GetTrend(ctx context.Context, commodity domain.Crop, state string) (domain.TrendCoefficients, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.trends[trendKey(commodity, state)]
	return t, ok, nil
}

// SaveRun inserts or updates a run audit record.
func (s *MemoryStore) SaveRun(ctx context.Context, run domain.ModelRun) error {
	if !run.IsValid() {
		return fmt.Errorf("invalid model run %q", run.ID)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs[run.ID] = run
	return nil
}

// GetRun retrieves one run record by ID.
func (s *MemoryStore) GetRun(ctx context.Context, id string) (domain.ModelRun, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	run, ok := s.runs[id]
	return run, ok, nil
}

func obsKey(commodity domain.Crop, state string, year int) string {
	return fmt.Sprintf("%s|%s|%d", commodity, state, year)
}

func trendKey(commodity domain.Crop, state string) string {
	return fmt.Sprintf("%s|%s", commodity, state)
}

func sortObservations(obs []domain.YieldObservation) {
	sort.Slice(obs, func(i, j int) bool {
		if obs[i].State != obs[j].State {
			return obs[i].State < obs[j].State
		}
		return obs[i].Year < obs[j].Year
	})
}
