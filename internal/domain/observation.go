package domain

import "time"

// YieldObservation is the ground-truth yield record for one (commodity,
// state, year). Observations are immutable once published; the harvest report
// inserts each row exactly once.
type YieldObservation struct {
	Commodity  Crop      `json:"commodity"`
	State      string    `json:"state"`
	Year       int       `json:"year"`
	Yield      float64   `json:"yield"`      // bushels (or tons) per harvested acre
	AreaAcres  float64   `json:"area_acres"` // harvested area
	Production float64   `json:"production"` // yield * area
	ReportedAt time.Time `json:"reported_at"`
}

// IsValid checks the observation key and magnitudes.
func (o YieldObservation) IsValid() bool {
	return o.Commodity.IsValid() && o.State != "" && o.Year > 1900 &&
		o.Yield > 0 && o.AreaAcres >= 0 && o.Production >= 0
}

// TrendSource records which aggregate a trend fit fell back to when state
// history was too short.
type TrendSource string

const (
	TrendSourceState    TrendSource = "state"
	TrendSourceRegional TrendSource = "regional"
	TrendSourceNational TrendSource = "national"
)

// TrendCoefficients is a linear (optionally quadratic) fit of yield against
// year for one (commodity, state). Recomputed periodically as observations
// arrive; never back-dated.
type TrendCoefficients struct {
	Commodity Crop        `json:"commodity"`
	State     string      `json:"state"`
	Intercept float64     `json:"intercept"`
	Slope     float64     `json:"slope"`
	Quadratic float64     `json:"quadratic"` // zero for a pure linear fit
	BaseYear  int         `json:"base_year"` // year term is (year - BaseYear)
	FirstYear int         `json:"first_year"`
	LastYear  int         `json:"last_year"`
	R2        float64     `json:"r2"`
	Source    TrendSource `json:"source"`
	FittedAt  time.Time   `json:"fitted_at"`
}

// YieldAt evaluates the trend at the given year.
func (t TrendCoefficients) YieldAt(year int) float64 {
	x := float64(year - t.BaseYear)
	return t.Intercept + t.Slope*x + t.Quadratic*x*x
}

// IsValid checks the fit covers at least two seasons and keys are present.
func (t TrendCoefficients) IsValid() bool {
	return t.Commodity.IsValid() && t.State != "" &&
		t.LastYear > t.FirstYear && t.R2 >= 0 && t.R2 <= 1
}
