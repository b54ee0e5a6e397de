package model

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"

	"github.com/jonboulle/clockwork"

	"cropcast/internal/config"
	"cropcast/internal/domain"
	apperrors "cropcast/internal/errors"
	"cropcast/internal/features"
	"cropcast/internal/store"
)

// Trainer fits the three sub-models for a crop from the historical feature
// table and publishes the result as a new artifact version. Training is
// leave-one-year-out cross-validated; the fold errors become the interval
// RMSE and the skill baseline for the published artifact.
type Trainer struct {
	store    store.Store
	cfg      *config.Config
	registry *Registry
	clock    clockwork.Clock
	logger   *slog.Logger
}

// NewTrainer wires a trainer against the store and registry.
func NewTrainer(st store.Store, cfg *config.Config, reg *Registry, clock clockwork.Clock, logger *slog.Logger) *Trainer {
	return &Trainer{store: st, cfg: cfg, registry: reg, clock: clock, logger: logger}
}

// trainingRow is one (state, year) example at the training week.
type trainingRow struct {
	State     string
	Year      int
	Full      []*float64 // unscaled full feature set
	Yield     float64
	Trend     float64 // leakage-free trend yield for the year
	Deviation float64 // Yield - Trend
}

// Train fits, cross-validates, and publishes a new artifact for the crop at
// the given in-season week. It holds the crop's training lock for the full
// sequence so concurrent trainers cannot interleave publishes. On a
// degenerate fit the previous artifact stays live and the error is returned.
func (t *Trainer) Train(ctx context.Context, crop domain.Crop, week int) (*Artifact, error) {
	lock := t.registry.TrainLock(crop)
	lock.Lock()
	defer lock.Unlock()

	cc, err := t.cfg.CropConfigFor(crop.String())
	if err != nil {
		return nil, err
	}

	allObs, err := t.store.Observations(ctx, crop)
	if err != nil {
		return nil, fmt.Errorf("load observations: %w", err)
	}

	rows, obsByState, err := t.buildTrainingRows(ctx, crop, week, allObs)
	if err != nil {
		return nil, err
	}
	if len(rows) < t.cfg.Model.TrendMinYears {
		return nil, &apperrors.InsufficientHistoryError{
			Commodity: crop.String(),
			Years:     len(rows),
			MinYears:  t.cfg.Model.TrendMinYears,
		}
	}

	cv, err := t.crossValidate(rows, cc, week)
	if err != nil {
		return nil, fmt.Errorf("cross-validate %s: %w", crop, err)
	}

	artifact, err := t.fit(crop, rows)
	if err != nil {
		return nil, fmt.Errorf("fit %s: %w", crop, err)
	}
	artifact.CV = cv

	now := t.clock.Now()
	for state, obs := range obsByState {
		trend, terr := FitTrendWithFallback(obs, allObs, state,
			t.cfg.Model.TrendMinYears, t.cfg.Model.TrendWindowYears, 0, now)
		if terr != nil {
			t.logger.WarnContext(ctx, "trend fit skipped",
				slog.String("crop", crop.String()),
				slog.String("state", state),
				slog.String("error", terr.Error()))
			continue
		}
		artifact.Trends[state] = trend
		if err := t.store.PutTrend(ctx, trend); err != nil {
			return nil, fmt.Errorf("persist trend %s/%s: %w", crop, state, err)
		}
	}
	if national, nerr := FitTrend(allObs, t.cfg.Model.TrendMinYears, t.cfg.Model.TrendWindowYears, 0, now); nerr == nil {
		national.State = nationalTrendKey
		national.Source = domain.TrendSourceNational
		artifact.Trends[nationalTrendKey] = national
	}

	version := t.registry.Publish(artifact, now)
	t.logger.InfoContext(ctx, "artifact published",
		slog.String("crop", crop.String()),
		slog.String("version", version),
		slog.Int("training_rows", len(rows)),
		slog.Int("cv_folds", cv.Folds),
		slog.Float64("cv_rmse", cv.RMSE))

	return artifact, nil
}

// buildTrainingRows joins the per-week historical feature slices with yield
// observations, computing leakage-free deviation targets (the trend behind
// each target refits without that year).
func (t *Trainer) buildTrainingRows(ctx context.Context, crop domain.Crop, week int, allObs []domain.YieldObservation) ([]trainingRow, map[string][]domain.YieldObservation, error) {
	obsByState := make(map[string][]domain.YieldObservation)
	for _, o := range allObs {
		obsByState[o.State] = append(obsByState[o.State], o)
	}

	now := t.clock.Now()
	var rows []trainingRow
	for _, state := range t.cfg.States {
		stateObs := obsByState[state]
		if len(stateObs) == 0 {
			continue
		}

		history, err := t.store.HistoricalWeek(ctx, state, crop, week)
		if err != nil {
			return nil, nil, fmt.Errorf("historical features %s/%s: %w", state, crop, err)
		}
		byYear := make(map[int]domain.FeatureVector, len(history))
		for _, fv := range history {
			byYear[fv.Year] = fv
		}

		for _, o := range stateObs {
			fv, ok := byYear[o.Year]
			if !ok {
				continue
			}
			trend, terr := FitTrendWithFallback(stateObs, allObs, state,
				t.cfg.Model.TrendMinYears, t.cfg.Model.TrendWindowYears, o.Year, now)
			if terr != nil {
				continue
			}
			trendYield := trend.YieldAt(o.Year)
			rows = append(rows, trainingRow{
				State:     state,
				Year:      o.Year,
				Full:      Extract(fv, FullFeatureSet()),
				Yield:     o.Yield,
				Trend:     trendYield,
				Deviation: o.Yield - trendYield,
			})
		}
	}

	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Year != rows[j].Year {
			return rows[i].Year < rows[j].Year
		}
		return rows[i].State < rows[j].State
	})
	return rows, obsByState, nil
}

// fit trains all three sub-models on the full row set.
func (t *Trainer) fit(crop domain.Crop, rows []trainingRow) (*Artifact, error) {
	full := make([][]*float64, len(rows))
	devs := make([]float64, len(rows))
	years := make(map[int]bool)
	for i, r := range rows {
		full[i] = r.Full
		devs[i] = r.Deviation
		years[r.Year] = true
	}

	scaler, err := FitScaler(FullFeatureSet(), full)
	if err != nil {
		return nil, err
	}
	scaled := scaler.TransformAll(full)

	linRows := subsetRows(scaled, FullFeatureSet(), LinearFeatureSet())
	linear, err := FitTrendAdjusted(LinearFeatureSet(), linRows, devs)
	if err != nil {
		return nil, err
	}

	gbt, err := FitGradientBoost(GBTConfig{
		Trees:        t.cfg.Model.GBTTrees,
		MaxDepth:     t.cfg.Model.GBTMaxDepth,
		LearningRate: t.cfg.Model.GBTLearningRate,
		MinLeaf:      t.cfg.Model.GBTMinLeaf,
	}, FullFeatureSet(), scaled, devs)
	if err != nil {
		return nil, err
	}

	analogRows := subsetRows(scaled, FullFeatureSet(), AnalogFeatureSet())
	candidates := make([]AnalogCandidate, len(rows))
	for i, r := range rows {
		candidates[i] = AnalogCandidate{
			Year:      r.Year,
			State:     r.State,
			Row:       analogRows[i],
			Deviation: r.Deviation,
		}
	}
	analog, err := NewAnalogModel(AnalogFeatureSet(), t.cfg.Model.AnalogK, candidates)
	if err != nil {
		return nil, err
	}

	trainYears := make([]int, 0, len(years))
	for y := range years {
		trainYears = append(trainYears, y)
	}
	sort.Ints(trainYears)

	return &Artifact{
		Crop:       crop,
		Trends:     make(map[string]domain.TrendCoefficients),
		Scaler:     scaler,
		Linear:     linear,
		GBT:        gbt,
		Analog:     analog,
		TrainYears: trainYears,
	}, nil
}

// crossValidate runs leave-one-year-out folds: every distinct year is held
// out once, the sub-models refit on the remainder, and the held-out rows
// scored on the blended ensemble yield.
func (t *Trainer) crossValidate(rows []trainingRow, cc config.CropConfig, week int) (CVMetrics, error) {
	years := make(map[int]bool)
	for _, r := range rows {
		years[r.Year] = true
	}
	if len(years) < 3 {
		return CVMetrics{}, fmt.Errorf("only %d distinct years, need 3 for cross-validation", len(years))
	}

	stage := features.StageForWeek(cc, week)
	weights, err := t.cfg.Model.WeightsForStage(string(stage))
	if err != nil {
		return CVMetrics{}, err
	}

	var sqErr, absErr float64
	perModelSq := map[domain.ModelType]float64{}
	var actuals, preds []float64
	folds := 0

	sortedYears := make([]int, 0, len(years))
	for y := range years {
		sortedYears = append(sortedYears, y)
	}
	sort.Ints(sortedYears)

	for _, held := range sortedYears {
		var trainRows []trainingRow
		var testRows []trainingRow
		for _, r := range rows {
			if r.Year == held {
				testRows = append(testRows, r)
			} else {
				trainRows = append(trainRows, r)
			}
		}
		if len(testRows) == 0 || len(trainRows) < t.cfg.Model.GBTMinLeaf*2 {
			continue
		}

		fold, ferr := t.fit(domain.Crop(""), trainRows)
		if ferr != nil {
			// A fold too thin to fit is skipped rather than failing the
			// whole validation.
			continue
		}
		folds++

		for _, r := range testRows {
			scaled := fold.Scaler.Transform(r.Full)
			linRow := subsetRow(scaled, FullFeatureSet(), LinearFeatureSet())
			analogRow := subsetRow(scaled, FullFeatureSet(), AnalogFeatureSet())

			devA := fold.Linear.Predict(linRow)
			devB := fold.GBT.Predict(scaled)
			devC, _ := fold.Analog.Predict(analogRow)

			perModelSq[domain.ModelTrendAdjusted] += sq(r.Trend + devA - r.Yield)
			perModelSq[domain.ModelGradientBoost] += sq(r.Trend + devB - r.Yield)
			perModelSq[domain.ModelAnalogYear] += sq(r.Trend + devC - r.Yield)

			blend, berr := Blend(weights, []SubPrediction{
				{Model: domain.ModelTrendAdjusted, Yield: r.Trend + devA},
				{Model: domain.ModelGradientBoost, Yield: r.Trend + devB},
				{Model: domain.ModelAnalogYear, Yield: r.Trend + devC},
			})
			if berr != nil {
				return CVMetrics{}, berr
			}

			e := blend - r.Yield
			sqErr += e * e
			absErr += math.Abs(e)
			actuals = append(actuals, r.Yield)
			preds = append(preds, blend)
		}
	}

	n := len(actuals)
	if folds == 0 || n == 0 {
		return CVMetrics{}, fmt.Errorf("no usable cross-validation folds")
	}

	perModel := make(map[domain.ModelType]float64, len(perModelSq))
	for m, s := range perModelSq {
		perModel[m] = math.Sqrt(s / float64(n))
	}

	return CVMetrics{
		Folds:    folds,
		RMSE:     math.Sqrt(sqErr / float64(n)),
		MAE:      absErr / float64(n),
		R2:       rSquared(actuals, preds),
		PerModel: perModel,
	}, nil
}

func subsetRows(rows [][]*float64, from, to []string) [][]*float64 {
	out := make([][]*float64, len(rows))
	for i, row := range rows {
		out[i] = subsetRow(row, from, to)
	}
	return out
}

func subsetRow(row []*float64, from, to []string) []*float64 {
	idx := make(map[string]int, len(from))
	for i, f := range from {
		idx[f] = i
	}
	out := make([]*float64, len(to))
	for i, f := range to {
		if j, ok := idx[f]; ok && j < len(row) {
			out[i] = row[j]
		}
	}
	return out
}

func sq(x float64) float64 { return x * x }

func rSquared(actual, pred []float64) float64 {
	if len(actual) == 0 {
		return 0
	}
	m := mean(actual)
	var sst, sse float64
	for i := range actual {
		sst += sq(actual[i] - m)
		sse += sq(actual[i] - pred[i])
	}
	if sst == 0 {
		return 0
	}
	r2 := 1 - sse/sst
	if r2 < 0 {
		r2 = 0
	}
	return r2
}
