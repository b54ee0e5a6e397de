package operations

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jonboulle/clockwork"

	"cropcast/internal/config"
	"cropcast/internal/features"
	"cropcast/internal/infrastructure"
	"cropcast/internal/model"
	"cropcast/internal/sources"
	"cropcast/internal/store"
)

// FreshnessStage probes every feed's newest timestamp before any fetching
// happens. Stale feeds are recorded and logged; the run proceeds with the
// affected feature groups degraded rather than aborting.
type FreshnessStage struct {
	checker *sources.FreshnessChecker
	states  []string
	logger  *slog.Logger
}

// NewFreshnessStage builds the stage.
func NewFreshnessStage(checker *sources.FreshnessChecker, states []string, logger *slog.Logger) *FreshnessStage {
	return &FreshnessStage{checker: checker, states: states, logger: logger}
}

func (s *FreshnessStage) ID() string   { return "freshness" }
func (s *FreshnessStage) Name() string { return "Source freshness check" }

func (s *FreshnessStage) Run(ctx context.Context, state *RunState) error {
	for _, crop := range state.Crops {
		results := s.checker.CheckAll(ctx, s.states, crop)
		state.Freshness = append(state.Freshness, results...)
	}
	s.logger.InfoContext(ctx, "freshness checked",
		slog.String("summary", sources.Summary(state.Freshness)))
	return nil
}

// FeatureStage builds the season's feature rows for every unit up to the
// run's week.
type FeatureStage struct {
	builder *features.Builder
	cfg     *config.Config
	logger  *slog.Logger
	metrics *infrastructure.Metrics
}

// NewFeatureStage builds the stage.
func NewFeatureStage(builder *features.Builder, cfg *config.Config, logger *slog.Logger, metrics *infrastructure.Metrics) *FeatureStage {
	return &FeatureStage{builder: builder, cfg: cfg, logger: logger, metrics: metrics}
}

func (s *FeatureStage) ID() string   { return "features" }
func (s *FeatureStage) Name() string { return "Feature engineering" }

func (s *FeatureStage) Run(ctx context.Context, state *RunState) error {
	units := expandUnits(s.cfg.States, state.Crops, state)
	return runUnits(ctx, s.cfg.Pipeline, units, state, s.logger, s.metrics, func(ctx context.Context, u unit) error {
		cc, err := s.cfg.CropConfigFor(u.Crop.String())
		if err != nil {
			return err
		}
		weekFrom := seasonStartWeek(cc, state.Week)
		n, err := s.builder.BuildFeatures(ctx, u.State, u.Crop, state.Year, weekFrom, state.Week)
		if err != nil {
			return fmt.Errorf("build features: %w", err)
		}
		state.AddFeatureRows(n)
		return nil
	})
}

// seasonStartWeek picks the first calendar week worth building for the run's
// week. Winter crops wrap the year boundary, so their rebuild always starts
// at week 1 of the harvest year; spring crops start at planting.
func seasonStartWeek(cc config.CropConfig, runWeek int) int {
	if cc.WinterCrop {
		return 1
	}
	if runWeek < cc.PlantingWeek {
		return runWeek
	}
	return cc.PlantingWeek
}

// TrainStage refreshes every crop's artifact at the run's week. A training
// failure falls back to the previous artifact when one exists; a crop with no
// usable artifact at all is flagged so the prediction stage skips it.
type TrainStage struct {
	trainer  *model.Trainer
	registry *model.Registry
	logger   *slog.Logger
}

// NewTrainStage builds the stage.
func NewTrainStage(trainer *model.Trainer, registry *model.Registry, logger *slog.Logger) *TrainStage {
	return &TrainStage{trainer: trainer, registry: registry, logger: logger}
}

func (s *TrainStage) ID() string   { return "train" }
func (s *TrainStage) Name() string { return "Artifact training" }

func (s *TrainStage) Run(ctx context.Context, state *RunState) error {
	for _, crop := range state.Crops {
		if _, err := s.trainer.Train(ctx, crop, state.Week); err != nil {
			if _, lerr := s.registry.Latest(crop); lerr == nil {
				s.logger.WarnContext(ctx, "training failed, keeping previous artifact",
					slog.String("crop", crop.String()),
					slog.String("error", err.Error()))
				continue
			}
			s.logger.ErrorContext(ctx, "no usable artifact, excluding crop from run",
				slog.String("crop", crop.String()),
				slog.String("error", err.Error()))
			state.MarkUntrained(crop)
		}
	}
	return nil
}

// ForecastStage predicts every unit from its feature snapshot and appends the
// rows to the forecast store.
type ForecastStage struct {
	predictor *model.Predictor
	fstore    store.ForecastStore
	cfg       *config.Config
	logger    *slog.Logger
	metrics   *infrastructure.Metrics
}

// NewForecastStage builds the stage.
func NewForecastStage(predictor *model.Predictor, fs store.ForecastStore, cfg *config.Config, logger *slog.Logger, metrics *infrastructure.Metrics) *ForecastStage {
	return &ForecastStage{predictor: predictor, fstore: fs, cfg: cfg, logger: logger, metrics: metrics}
}

func (s *ForecastStage) ID() string   { return "forecast" }
func (s *ForecastStage) Name() string { return "Unit prediction" }

func (s *ForecastStage) Run(ctx context.Context, state *RunState) error {
	units := expandUnits(s.cfg.States, state.Crops, state)
	return runUnits(ctx, s.cfg.Pipeline, units, state, s.logger, s.metrics, func(ctx context.Context, u unit) error {
		rows, err := s.predictor.Forecast(ctx, u.State, u.Crop, state.Year, state.Week, state.Run.ID)
		if err != nil {
			return err
		}
		for _, row := range rows {
			if err := s.fstore.AppendForecast(ctx, row); err != nil {
				// An already-appended key means this unit was retried past a
				// partial write; the earlier rows stand.
				if errors.Is(err, store.ErrForecastExists) {
					continue
				}
				return fmt.Errorf("append forecast %s: %w", row.Key(), err)
			}
			if s.metrics != nil {
				s.metrics.ForecastsProduced.WithLabelValues(u.Crop.String(), string(row.ModelType)).Inc()
			}
		}
		state.AddForecasts(u.Crop, rows)
		return nil
	})
}

// NationalStage rolls the per-state ensemble rows up to area-weighted
// national estimates.
type NationalStage struct {
	ystore store.YieldStore
	cfg    *config.Config
	clock  clockwork.Clock
	logger *slog.Logger
}

// NewNationalStage builds the stage.
func NewNationalStage(ys store.YieldStore, cfg *config.Config, clock clockwork.Clock, logger *slog.Logger) *NationalStage {
	return &NationalStage{ystore: ys, cfg: cfg, clock: clock, logger: logger}
}

func (s *NationalStage) ID() string   { return "national" }
func (s *NationalStage) Name() string { return "National aggregation" }

func (s *NationalStage) Run(ctx context.Context, state *RunState) error {
	for _, crop := range state.Crops {
		if state.Untrained(crop) {
			continue
		}
		nf, err := model.AggregateNational(ctx, s.ystore, s.logger, crop, state.Year, state.Week,
			state.Forecasts[crop], s.cfg.States, s.clock.Now())
		if err != nil {
			return fmt.Errorf("aggregate national %s: %w", crop, err)
		}
		state.National[crop] = nf
	}
	return nil
}
