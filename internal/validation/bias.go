package validation

import (
	"math"
	"sort"

	"cropcast/internal/config"
	"cropcast/internal/features"
)

// Stratum summarizes the signed and absolute error within one slice of the
// backtest records. A nonzero MeanError with a tight RMSE is a systematic
// bias worth chasing; a wide RMSE is noise.
type Stratum struct {
	N         int     `json:"n"`
	MeanError float64 `json:"mean_error"`
	RMSE      float64 `json:"rmse"`
}

// BiasBreakdown decomposes backtest error by state, season phase, and the
// extreme-year stratum, surfacing where the ensemble systematically over- or
// under-shoots.
type BiasBreakdown struct {
	ByState map[string]Stratum `json:"by_state"`
	ByStage map[string]Stratum `json:"by_stage"`

	// Extreme holds years whose realized deviation from trend exceeded the
	// configured sigma threshold (droughts, record years); Normal holds the
	// rest. Models shrink toward trend, so the extreme stratum is where
	// under-reaction shows up.
	Extreme Stratum `json:"extreme"`
	Normal  Stratum `json:"normal"`

	// DeviationScale is the RMS realized deviation the extreme threshold was
	// measured against.
	DeviationScale float64 `json:"deviation_scale"`
}

// DecomposeBias builds the breakdown. The extreme threshold is
// sigma x RMS(actual - trend) over all records.
func DecomposeBias(records []Record, cc config.CropConfig, sigma float64) BiasBreakdown {
	bd := BiasBreakdown{
		ByState: make(map[string]Stratum),
		ByStage: make(map[string]Stratum),
	}
	if len(records) == 0 {
		return bd
	}

	var devSq float64
	for _, r := range records {
		d := r.Actual - r.Trend
		devSq += d * d
	}
	bd.DeviationScale = math.Sqrt(devSq / float64(len(records)))
	threshold := sigma * bd.DeviationScale

	byState := make(map[string][]Record)
	byStage := make(map[string][]Record)
	var extreme, normal []Record

	for _, r := range records {
		byState[r.State] = append(byState[r.State], r)
		stage := string(features.StageForWeek(cc, r.Week))
		byStage[stage] = append(byStage[stage], r)

		if math.Abs(r.Actual-r.Trend) > threshold {
			extreme = append(extreme, r)
		} else {
			normal = append(normal, r)
		}
	}

	for state, recs := range byState {
		bd.ByState[state] = newStratum(recs)
	}
	for stage, recs := range byStage {
		bd.ByStage[stage] = newStratum(recs)
	}
	bd.Extreme = newStratum(extreme)
	bd.Normal = newStratum(normal)

	return bd
}

func newStratum(records []Record) Stratum {
	return Stratum{
		N:         len(records),
		MeanError: meanError(records),
		RMSE:      rmse(records, func(r Record) float64 { return r.Predicted }),
	}
}

// StageNames returns the stage keys of a breakdown in a stable order for
// report rendering.
func (b BiasBreakdown) StageNames() []string {
	names := make([]string, 0, len(b.ByStage))
	for s := range b.ByStage {
		names = append(names, s)
	}
	sort.Strings(names)
	return names
}

// StateNames returns the state keys of a breakdown in a stable order.
func (b BiasBreakdown) StateNames() []string {
	names := make([]string, 0, len(b.ByState))
	for s := range b.ByState {
		names = append(names, s)
	}
	sort.Strings(names)
	return names
}
