package model

import (
	"context"
	"fmt"

	"cropcast/internal/config"
	"cropcast/internal/domain"
	"cropcast/internal/features"
)

// HoldoutExample is one held-out (state, year) row a backtest scores an
// artifact against.
type HoldoutExample struct {
	State string
	Year  int
	Row   []*float64 // unscaled full feature set
	Yield float64
	Trend float64 // leakage-free trend yield for the held-out year
}

// Holdout fits the sub-models at the given week with one year excluded and
// returns the unpublished artifact plus the held-out examples. The registry
// is never touched, so backtests can run alongside live prediction.
func (t *Trainer) Holdout(ctx context.Context, crop domain.Crop, week, holdoutYear int) (*Artifact, []HoldoutExample, error) {
	allObs, err := t.store.Observations(ctx, crop)
	if err != nil {
		return nil, nil, fmt.Errorf("load observations: %w", err)
	}

	rows, _, err := t.buildTrainingRows(ctx, crop, week, allObs)
	if err != nil {
		return nil, nil, err
	}

	var trainRows []trainingRow
	var held []HoldoutExample
	for _, r := range rows {
		if r.Year == holdoutYear {
			held = append(held, HoldoutExample{
				State: r.State, Year: r.Year, Row: r.Full, Yield: r.Yield, Trend: r.Trend,
			})
			continue
		}
		trainRows = append(trainRows, r)
	}
	if len(held) == 0 {
		return nil, nil, fmt.Errorf("no held-out rows for %s year %d week %d", crop, holdoutYear, week)
	}

	artifact, err := t.fit(crop, trainRows)
	if err != nil {
		return nil, nil, fmt.Errorf("fit holdout %s/%d: %w", crop, holdoutYear, err)
	}
	return artifact, held, nil
}

// PredictYields evaluates the three sub-models and the stage-weighted blend
// on one raw feature row, returning absolute yields keyed by model type.
func (a *Artifact) PredictYields(mc *config.ModelConfig, cc config.CropConfig, week int, full []*float64, trendYield float64) (map[domain.ModelType]float64, error) {
	scaled := a.Scaler.Transform(full)
	linRow := subsetRow(scaled, FullFeatureSet(), LinearFeatureSet())
	analogRow := subsetRow(scaled, FullFeatureSet(), AnalogFeatureSet())

	devA := a.Linear.Predict(linRow)
	devB := a.GBT.Predict(scaled)
	devC, _ := a.Analog.Predict(analogRow)

	stage := features.StageForWeek(cc, week)
	weights, err := mc.WeightsForStage(string(stage))
	if err != nil {
		return nil, err
	}

	yields := map[domain.ModelType]float64{
		domain.ModelTrendAdjusted: trendYield + devA,
		domain.ModelGradientBoost: trendYield + devB,
		domain.ModelAnalogYear:    trendYield + devC,
	}
	ensemble, err := Blend(weights, []SubPrediction{
		{Model: domain.ModelTrendAdjusted, Yield: yields[domain.ModelTrendAdjusted]},
		{Model: domain.ModelGradientBoost, Yield: yields[domain.ModelGradientBoost]},
		{Model: domain.ModelAnalogYear, Yield: yields[domain.ModelAnalogYear]},
	})
	if err != nil {
		return nil, err
	}
	yields[domain.ModelEnsemble] = ensemble
	return yields, nil
}
