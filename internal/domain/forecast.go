package domain

import (
	"fmt"
	"time"
)

// ModelType identifies which sub-model (or the ensemble) produced a forecast.
type ModelType string

const (
	ModelTrendAdjusted ModelType = "trend_adjusted" // Model A
	ModelGradientBoost ModelType = "gradient_boost" // Model B
	ModelAnalogYear    ModelType = "analog_year"    // Model C
	ModelEnsemble      ModelType = "ensemble"
)

// IsValid reports whether the model type is known.
func (m ModelType) IsValid() bool {
	switch m {
	case ModelTrendAdjusted, ModelGradientBoost, ModelAnalogYear, ModelEnsemble:
		return true
	default:
		return false
	}
}

// YieldForecast is one published forecast row. The table is append-only:
// each forecast week is its own row so revisions across the season stay
// visible. Every row references exactly one artifact version and one feature
// snapshot key.
type YieldForecast struct {
	Commodity    Crop      `json:"commodity"`
	State        string    `json:"state"`
	Year         int       `json:"year"`
	ForecastWeek int       `json:"forecast_week"`
	ModelType    ModelType `json:"model_type"`

	PointEstimate float64 `json:"point_estimate"`
	IntervalLow   float64 `json:"interval_low"`
	IntervalHigh  float64 `json:"interval_high"`

	TrendYield     float64 `json:"trend_yield"`
	TrendDeviation float64 `json:"trend_deviation"` // point estimate minus trend

	// Explanatory fields.
	PrimaryDriver     string             `json:"primary_driver,omitempty"`
	AnalogYears       []int              `json:"analog_years,omitempty"`
	FeatureImportance map[string]float64 `json:"feature_importance,omitempty"`

	// WeatherDegraded marks a row predicted from a snapshot whose weather
	// group was null (no station coverage). The models still produce a
	// number through their missing-value handling, but national aggregation
	// excludes the state rather than weighting a blind estimate.
	WeatherDegraded bool `json:"weather_degraded,omitempty"`

	// Provenance.
	ArtifactVersion string    `json:"artifact_version"`
	FeatureKey      string    `json:"feature_key"`
	RunID           string    `json:"run_id"`
	CreatedAt       time.Time `json:"created_at"`
}

// Key returns the append-only row key.
func (y YieldForecast) Key() string {
	return fmt.Sprintf("%s|%s|%d|%d|%s", y.Commodity, y.State, y.Year, y.ForecastWeek, y.ModelType)
}

// IsValid checks the forecast row invariants.
func (y YieldForecast) IsValid() bool {
	return y.Commodity.IsValid() && y.State != "" && y.Year > 1900 &&
		y.ForecastWeek >= 1 && y.ForecastWeek <= 53 && y.ModelType.IsValid() &&
		y.IntervalLow <= y.PointEstimate && y.PointEstimate <= y.IntervalHigh &&
		y.ArtifactVersion != ""
}

// NationalForecast aggregates state forecasts weighted by harvested area.
// States without data are excluded and surfaced through Coverage rather than
// fabricated.
type NationalForecast struct {
	Commodity       Crop      `json:"commodity"`
	Year            int       `json:"year"`
	ForecastWeek    int       `json:"forecast_week"`
	Yield           float64   `json:"yield"`
	Production      float64   `json:"production"`
	AreaAcres       float64   `json:"area_acres"`
	StatesIncluded  []string  `json:"states_included"`
	StatesExcluded  []string  `json:"states_excluded,omitempty"`
	Coverage        float64   `json:"coverage"` // included area / known area, 0..1
	ReducedCoverage bool      `json:"reduced_coverage"`
	CreatedAt       time.Time `json:"created_at"`
}
