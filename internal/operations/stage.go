package operations

import (
	"context"
	"sync"
	"time"

	"cropcast/internal/domain"
	"cropcast/internal/sources"
	"cropcast/internal/validation"
)

// Stage is one ordered step of a run. Stages mutate the shared RunState and
// return an error only for faults that should abort the whole run; unit-level
// problems are recorded on the state instead.
type Stage interface {
	ID() string
	Name() string
	Run(ctx context.Context, state *RunState) error
}

// RunState is the shared state threaded through a run's stages.
type RunState struct {
	mu sync.Mutex

	Run   domain.ModelRun
	Year  int
	Week  int
	Crops []domain.Crop

	Freshness []sources.FreshnessResult
	Forecasts map[domain.Crop][]domain.YieldForecast
	National  map[domain.Crop]domain.NationalForecast
	Backtests map[domain.Crop]*validation.Report

	// Crops whose artifact could not be produced this run and had no
	// previous version to fall back to.
	UntrainedCrops map[domain.Crop]bool
}

// NewRunState initializes the state for a run over the given crops.
func NewRunState(run domain.ModelRun, year, week int, crops []domain.Crop) *RunState {
	return &RunState{
		Run:            run,
		Year:           year,
		Week:           week,
		Crops:          crops,
		Forecasts:      make(map[domain.Crop][]domain.YieldForecast),
		National:       make(map[domain.Crop]domain.NationalForecast),
		Backtests:      make(map[domain.Crop]*validation.Report),
		UntrainedCrops: make(map[domain.Crop]bool),
	}
}

// AddFeatureRows accumulates the feature-row count on the run record.
func (s *RunState) AddFeatureRows(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Run.FeatureRows += n
}

// AddForecasts appends produced forecast rows for a crop.
func (s *RunState) AddForecasts(crop domain.Crop, rows []domain.YieldForecast) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Forecasts[crop] = append(s.Forecasts[crop], rows...)
	s.Run.Forecasts += len(rows)
}

// FailUnit records an isolated unit failure.
func (s *RunState) FailUnit(state string, crop domain.Crop) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Run.FailedUnits = append(s.Run.FailedUnits, state+"/"+crop.String())
}

// MarkUntrained flags a crop as unusable for this run's prediction stage.
func (s *RunState) MarkUntrained(crop domain.Crop) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.UntrainedCrops[crop] = true
}

// Untrained reports whether the crop was flagged.
func (s *RunState) Untrained(crop domain.Crop) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.UntrainedCrops[crop]
}

// FailedUnitCount returns the number of isolated unit failures so far.
func (s *RunState) FailedUnitCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.Run.FailedUnits)
}

// Finalize stamps the terminal status and duration on the run record.
func (s *RunState) Finalize(finished time.Time, runErr error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.Run.FinishedAt = finished
	s.Run.Duration = finished.Sub(s.Run.StartedAt)
	switch {
	case runErr != nil:
		s.Run.Status = domain.RunStatusFailed
		s.Run.ErrorSummary = runErr.Error()
	case len(s.Run.FailedUnits) > 0 || len(s.UntrainedCrops) > 0:
		s.Run.Status = domain.RunStatusPartial
	default:
		s.Run.Status = domain.RunStatusCompleted
	}
}
