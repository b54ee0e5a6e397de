// Package sources defines the interfaces to the external data collaborators:
// station weather, national gridded condition/progress indices, state-level
// tabular crop surveys, historical yields, and the optional vegetation and
// free-text seasonal-outlook feeds. The collectors behind these interfaces
// live outside this repository; the engine only consumes them, with query
// timeouts, fetch throttling, and staleness checks applied on this side.
package sources

import (
	"context"
	"time"

	"golang.org/x/time/rate"

	"cropcast/internal/config"
	"cropcast/internal/domain"
)

// WeatherDay is one station-day of observations, already aggregated to state
// level by the collector. Temperature fields may be nil when a station gap
// left the day uncovered.
type WeatherDay struct {
	State    string    `json:"state"`
	Date     time.Time `json:"date"`
	MaxTempC *float64  `json:"max_temp_c,omitempty"`
	MinTempC *float64  `json:"min_temp_c,omitempty"`
	PrecipMM *float64  `json:"precip_mm,omitempty"`
}

// WeatherSource serves daily station weather aggregated per state.
type WeatherSource interface {
	// DailyObservations returns state-level daily weather in [from, to].
	DailyObservations(ctx context.Context, state string, from, to time.Time) ([]WeatherDay, error)
	// LatestObservation returns the timestamp of the newest observation for
	// the state, for freshness checking.
	LatestObservation(ctx context.Context, state string) (time.Time, error)
}

// GriddedIndex is the national gridded condition/progress snapshot for one
// crop-week.
type GriddedIndex struct {
	Crop           domain.Crop `json:"crop"`
	Year           int         `json:"year"`
	Week           int         `json:"week"`
	ConditionIndex *float64    `json:"condition_index,omitempty"`
	ProgressIndex  *float64    `json:"progress_index,omitempty"`
	PublishedAt    time.Time   `json:"published_at"`
}

// GriddedSource serves the national gridded index series.
type GriddedSource interface {
	WeeklyIndex(ctx context.Context, crop domain.Crop, year, week int) (GriddedIndex, error)
	LatestIndex(ctx context.Context, crop domain.Crop) (time.Time, error)
}

// SurveyRecord is one state-level tabular progress/condition row. The same
// key can arrive from more than one upstream table; ReportedAt decides which
// value wins when they disagree.
type SurveyRecord struct {
	Commodity        domain.Crop `json:"commodity"`
	State            string      `json:"state"`
	Year             int         `json:"year"`
	Week             int         `json:"week"`
	PctGoodExcellent *float64    `json:"pct_good_excellent,omitempty"`
	ProgressPct      *float64    `json:"progress_pct,omitempty"`
	Source           string      `json:"source"`
	ReportedAt       time.Time   `json:"reported_at"`
}

// SurveySource serves the state tabular survey series.
type SurveySource interface {
	WeeklySurvey(ctx context.Context, commodity domain.Crop, state string, year, week int) ([]SurveyRecord, error)
	LatestSurvey(ctx context.Context, commodity domain.Crop) (time.Time, error)
}

// YieldSource serves historical yield/area/production records.
type YieldSource interface {
	Observations(ctx context.Context, commodity domain.Crop) ([]domain.YieldObservation, error)
}

// VegetationSample is one NDVI reading for a region.
type VegetationSample struct {
	Region string    `json:"region"`
	Date   time.Time `json:"date"`
	NDVI   float64   `json:"ndvi"`
}

// VegetationSource serves the optional vegetation-index feed.
type VegetationSource interface {
	Samples(ctx context.Context, region string, from, to time.Time) ([]VegetationSample, error)
	LatestSample(ctx context.Context, region string) (time.Time, error)
}

// OutlookDocument is one free-text seasonal-outlook capture.
type OutlookDocument struct {
	Region     string    `json:"region"`
	Text       string    `json:"text"`
	CapturedAt time.Time `json:"captured_at"`
}

// TextSource serves the optional seasonal commentary feed.
type TextSource interface {
	Documents(ctx context.Context, region string, since time.Time) ([]OutlookDocument, error)
}

// Bundle groups the external feeds handed to the feature builder. Optional
// feeds may be nil.
type Bundle struct {
	Weather    WeatherSource
	Gridded    GriddedSource
	Survey     SurveySource
	Yields     YieldSource
	Vegetation VegetationSource
	Text       TextSource
}

// NewLimiter builds the shared fetch throttle from config. All external
// queries in a run go through one limiter so a wide run cannot saturate the
// upstream collectors.
func NewLimiter(cfg config.SourcesConfig) *rate.Limiter {
	return rate.NewLimiter(rate.Limit(cfg.RateRPS), cfg.RateBurst)
}
