package domain

import (
	"fmt"
	"time"
)

// FeatureVector is the engineered weekly snapshot for one (state, crop, year,
// week). Rows are upserted idempotently and are unique per key; they are
// never deleted. Every column that can be absent for a key is a pointer:
// a nil column means the underlying source had no coverage, which downstream
// models must treat as missing rather than zero.
type FeatureVector struct {
	State string `json:"state"`
	Crop  Crop   `json:"crop"`
	Year  int    `json:"year"`
	Week  int    `json:"week"` // ISO calendar week of the report

	// Weather-derived (nil when the state has no station coverage).
	CumGDD           *float64 `json:"cum_gdd,omitempty"`
	GDDDeviationPct  *float64 `json:"gdd_deviation_pct,omitempty"`
	CumPrecipMM      *float64 `json:"cum_precip_mm,omitempty"`
	PrecipDevPct     *float64 `json:"precip_deviation_pct,omitempty"`
	AvgTempC         *float64 `json:"avg_temp_c,omitempty"`
	HeatStressDays   *int     `json:"heat_stress_days,omitempty"`
	MaxConsecDryDays *int     `json:"max_consec_dry_days,omitempty"`
	FrostEvents      *int     `json:"frost_events,omitempty"`

	// Season position.
	GrowthStage GrowthStage `json:"growth_stage"`
	SeasonWeek  int         `json:"season_week"` // weeks since planting, 0 pre-season

	// State-resolved survey signals (primary state signal).
	ConditionPctGE *float64 `json:"condition_pct_good_excellent,omitempty"`
	ProgressPct    *float64 `json:"progress_pct,omitempty"`
	ConditionDelta *float64 `json:"condition_wow_delta,omitempty"`

	// National gridded indices, kept separate from the state columns so the
	// models can weight the two resolutions independently.
	NationalConditionIndex *float64 `json:"national_condition_index,omitempty"`
	NationalProgressIndex  *float64 `json:"national_progress_index,omitempty"`

	// Optional vegetation signal.
	NDVI        *float64 `json:"ndvi,omitempty"`
	NDVIAnomaly *float64 `json:"ndvi_anomaly,omitempty"`

	// Optional free-text seasonal-outlook signal.
	TextRiskScore *float64 `json:"text_risk_score,omitempty"` // 0..10
	TextSentiment *float64 `json:"text_sentiment,omitempty"`  // -1..+1

	// BuiltAt is provenance, not part of row identity: a rebuild of an
	// unchanged key yields the same columns with a fresh build time.
	BuiltAt time.Time `json:"built_at"`
}

// Key returns the unique upsert key for the vector.
func (f FeatureVector) Key() string {
	return fmt.Sprintf("%s|%s|%d|%d", f.State, f.Crop, f.Year, f.Week)
}

// IsValid checks key fields and bounded columns.
func (f FeatureVector) IsValid() bool {
	if f.State == "" || !f.Crop.IsValid() || f.Year <= 1900 || f.Week < 1 || f.Week > 53 {
		return false
	}
	if !f.GrowthStage.IsValid() {
		return false
	}
	if f.TextRiskScore != nil && (*f.TextRiskScore < 0 || *f.TextRiskScore > 10) {
		return false
	}
	if f.TextSentiment != nil && (*f.TextSentiment < -1 || *f.TextSentiment > 1) {
		return false
	}
	return true
}

// HasWeather reports whether the weather-derived group is populated.
func (f FeatureVector) HasWeather() bool {
	return f.CumGDD != nil
}

// Float64 returns a pointer to v, for building nullable columns.
func Float64(v float64) *float64 { return &v }

// Int returns a pointer to v, for building nullable columns.
func Int(v int) *int { return &v }
