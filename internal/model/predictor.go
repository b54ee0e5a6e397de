package model

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jonboulle/clockwork"

	"cropcast/internal/config"
	"cropcast/internal/domain"
	apperrors "cropcast/internal/errors"
	"cropcast/internal/features"
	"cropcast/internal/store"
)

// Predictor turns the current feature snapshot for one (state, crop) into
// forecast rows: one per sub-model plus the stage-weighted ensemble. Every
// row carries the artifact version and feature key that produced it.
type Predictor struct {
	store    store.Store
	cfg      *config.Config
	registry *Registry
	clock    clockwork.Clock
	logger   *slog.Logger
}

// NewPredictor wires a predictor against the store and artifact registry.
func NewPredictor(st store.Store, cfg *config.Config, reg *Registry, clock clockwork.Clock, logger *slog.Logger) *Predictor {
	return &Predictor{store: st, cfg: cfg, registry: reg, clock: clock, logger: logger}
}

// Forecast produces the four forecast rows for one unit at the given week.
// A missing feature snapshot or untrained crop is a hard error; the caller
// isolates the unit rather than fabricating output.
func (p *Predictor) Forecast(ctx context.Context, state string, crop domain.Crop, year, week int, runID string) ([]domain.YieldForecast, error) {
	artifact, err := p.registry.Latest(crop)
	if err != nil {
		return nil, err
	}

	fv, ok, err := p.store.GetFeature(ctx, state, crop, year, week)
	if err != nil {
		return nil, fmt.Errorf("load features %s/%s: %w", state, crop, err)
	}
	if !ok {
		return nil, &apperrors.MissingDataError{
			Source: "features", State: state, Crop: crop.String(), Year: year, Week: week,
		}
	}

	trend, ok := artifact.TrendFor(state)
	if !ok {
		return nil, &apperrors.InsufficientHistoryError{
			Commodity: crop.String(), State: state, MinYears: p.cfg.Model.TrendMinYears,
		}
	}
	trendYield := trend.YieldAt(year)

	scaled := artifact.Scaler.Transform(Extract(fv, FullFeatureSet()))
	linRow := subsetRow(scaled, FullFeatureSet(), LinearFeatureSet())
	analogRow := subsetRow(scaled, FullFeatureSet(), AnalogFeatureSet())

	devA := artifact.Linear.Predict(linRow)
	devB := artifact.GBT.Predict(scaled)
	devC, matches := artifact.Analog.Predict(analogRow)
	analogYears := AnalogYears(matches)

	cc, err := p.cfg.CropConfigFor(crop.String())
	if err != nil {
		return nil, err
	}
	stage := features.StageForWeek(cc, week)
	weights, err := p.cfg.Model.WeightsForStage(string(stage))
	if err != nil {
		return nil, err
	}

	yieldA := trendYield + devA
	yieldB := trendYield + devB
	yieldC := trendYield + devC
	ensemble, err := Blend(weights, []SubPrediction{
		{Model: domain.ModelTrendAdjusted, Yield: yieldA},
		{Model: domain.ModelGradientBoost, Yield: yieldB},
		{Model: domain.ModelAnalogYear, Yield: yieldC},
	})
	if err != nil {
		return nil, err
	}

	importance := importanceMap(artifact.GBT.Importance())
	now := p.clock.Now()

	base := domain.YieldForecast{
		Commodity:       crop,
		State:           state,
		Year:            year,
		ForecastWeek:    week,
		TrendYield:      trendYield,
		WeatherDegraded: !fv.HasWeather(),
		ArtifactVersion: artifact.Version,
		FeatureKey:      fv.Key(),
		RunID:           runID,
		CreatedAt:       now,
	}

	rows := []domain.YieldForecast{
		p.row(base, domain.ModelTrendAdjusted, yieldA, artifact.CV.PerModel[domain.ModelTrendAdjusted], week),
		p.row(base, domain.ModelGradientBoost, yieldB, artifact.CV.PerModel[domain.ModelGradientBoost], week),
		p.row(base, domain.ModelAnalogYear, yieldC, artifact.CV.PerModel[domain.ModelAnalogYear], week),
		p.row(base, domain.ModelEnsemble, ensemble, artifact.CV.RMSE, week),
	}

	rows[0].PrimaryDriver = artifact.Linear.PrimaryDriver(linRow)
	rows[1].FeatureImportance = importance
	if len(importance) > 0 {
		rows[1].PrimaryDriver = topImportance(artifact.GBT.Importance())
	}
	rows[2].AnalogYears = analogYears
	rows[3].AnalogYears = analogYears
	rows[3].FeatureImportance = importance
	rows[3].PrimaryDriver = rows[0].PrimaryDriver

	p.logger.DebugContext(ctx, "forecast produced",
		slog.String("state", state),
		slog.String("crop", crop.String()),
		slog.Int("week", week),
		slog.String("stage", string(stage)),
		slog.Float64("ensemble_yield", ensemble))

	return rows, nil
}

func (p *Predictor) row(base domain.YieldForecast, mt domain.ModelType, yield, rmse float64, week int) domain.YieldForecast {
	f := base
	f.ModelType = mt
	f.PointEstimate = yield
	f.TrendDeviation = yield - f.TrendYield
	f.IntervalLow, f.IntervalHigh = Interval(yield, rmse, week, &p.cfg.Model)
	return f
}

func importanceMap(imps []FeatureImportance) map[string]float64 {
	if len(imps) == 0 {
		return nil
	}
	out := make(map[string]float64, len(imps))
	for _, fi := range imps {
		out[fi.Feature] = fi.Weight
	}
	return out
}

func topImportance(imps []FeatureImportance) string {
	if len(imps) == 0 {
		return ""
	}
	return imps[0].Feature
}
