package report

import (
	"context"
	"fmt"
	"sort"

	"cropcast/internal/domain"
	"cropcast/internal/store"
)

// RiskLabel is the qualitative state-level risk classification.
type RiskLabel string

const (
	RiskLow      RiskLabel = "low"
	RiskElevated RiskLabel = "elevated"
	RiskHigh     RiskLabel = "high"
)

// Thresholds behind the risk label. Heuristic screening rules for the weekly
// review, not calibrated probabilities.
const (
	heatDaysElevated  = 3
	heatDaysHigh      = 6
	dryDaysElevated   = 10
	dryDaysHigh       = 18
	condDeltaElevated = -3.0
	condDeltaHigh     = -8.0
	trendDevElevated  = -5.0
	trendDevHigh      = -12.0
)

// MonitoringRow joins one state's latest ensemble forecast to the feature
// snapshot that produced it.
type MonitoringRow struct {
	State string      `json:"state"`
	Crop  domain.Crop `json:"crop"`
	Week  int         `json:"week"`

	Yield          float64 `json:"yield"`
	IntervalLow    float64 `json:"interval_low"`
	IntervalHigh   float64 `json:"interval_high"`
	TrendDeviation float64 `json:"trend_deviation"`

	HeatStressDays int      `json:"heat_stress_days"`
	MaxConsecDry   int      `json:"max_consec_dry_days"`
	ConditionDelta *float64 `json:"condition_wow_delta,omitempty"`

	Risk RiskLabel `json:"risk"`
}

// BuildMonitoringView assembles the per-state rows for a crop's latest
// ensemble forecasts in the given year, sorted by descending risk then state.
func BuildMonitoringView(ctx context.Context, st store.Store, crop domain.Crop, year int) ([]MonitoringRow, error) {
	forecasts, err := st.LatestEnsembleForecasts(ctx, crop, year)
	if err != nil {
		return nil, fmt.Errorf("load latest forecasts: %w", err)
	}

	rows := make([]MonitoringRow, 0, len(forecasts))
	for _, f := range forecasts {
		row := MonitoringRow{
			State:          f.State,
			Crop:           crop,
			Week:           f.ForecastWeek,
			Yield:          f.PointEstimate,
			IntervalLow:    f.IntervalLow,
			IntervalHigh:   f.IntervalHigh,
			TrendDeviation: f.TrendDeviation,
		}

		fv, ok, ferr := st.GetFeature(ctx, f.State, crop, f.Year, f.ForecastWeek)
		if ferr != nil {
			return nil, fmt.Errorf("load features for %s: %w", f.State, ferr)
		}
		if ok {
			if fv.HeatStressDays != nil {
				row.HeatStressDays = *fv.HeatStressDays
			}
			if fv.MaxConsecDryDays != nil {
				row.MaxConsecDry = *fv.MaxConsecDryDays
			}
			row.ConditionDelta = fv.ConditionDelta
		}

		row.Risk = classifyRisk(row)
		rows = append(rows, row)
	}

	sort.Slice(rows, func(i, j int) bool {
		ri, rj := riskRank(rows[i].Risk), riskRank(rows[j].Risk)
		if ri != rj {
			return ri > rj
		}
		return rows[i].State < rows[j].State
	})
	return rows, nil
}

// classifyRisk applies the threshold rules: any single high signal makes the
// state high risk; any elevated signal makes it elevated.
func classifyRisk(row MonitoringRow) RiskLabel {
	condDelta := 0.0
	if row.ConditionDelta != nil {
		condDelta = *row.ConditionDelta
	}

	switch {
	case row.HeatStressDays >= heatDaysHigh,
		row.MaxConsecDry >= dryDaysHigh,
		condDelta <= condDeltaHigh,
		row.TrendDeviation <= trendDevHigh:
		return RiskHigh
	case row.HeatStressDays >= heatDaysElevated,
		row.MaxConsecDry >= dryDaysElevated,
		condDelta <= condDeltaElevated,
		row.TrendDeviation <= trendDevElevated:
		return RiskElevated
	default:
		return RiskLow
	}
}

func riskRank(r RiskLabel) int {
	switch r {
	case RiskHigh:
		return 2
	case RiskElevated:
		return 1
	default:
		return 0
	}
}
