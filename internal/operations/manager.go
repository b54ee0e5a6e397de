package operations

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"cropcast/internal/config"
	"cropcast/internal/domain"
	"cropcast/internal/features"
	"cropcast/internal/infrastructure"
	"cropcast/internal/model"
	"cropcast/internal/sources"
	"cropcast/internal/store"
	"cropcast/internal/validation"
)

// Manager owns the run lifecycle: it assembles the stage sequence for each
// entry point, executes it under the configured timeouts, and persists the
// audit record regardless of outcome.
type Manager struct {
	cfg        *config.Config
	store      store.Store
	bundle     sources.Bundle
	builder    *features.Builder
	trainer    *model.Trainer
	predictor  *model.Predictor
	registry   *model.Registry
	backtester *validation.Backtester

	clock   clockwork.Clock
	logger  *slog.Logger
	metrics *infrastructure.Metrics
	tracer  *RunTracer
}

// NewManager wires the orchestrator. clock, logger, and tracer fall back to
// real implementations when nil.
func NewManager(cfg *config.Config, st store.Store, bundle sources.Bundle, clock clockwork.Clock, logger *slog.Logger, metrics *infrastructure.Metrics) *Manager {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = slog.Default()
	}

	registry := model.NewRegistry()
	limiter := sources.NewLimiter(cfg.Sources)
	builder := features.NewBuilder(bundle, st, cfg, limiter, clock, logger, metrics)
	trainer := model.NewTrainer(st, cfg, registry, clock, logger)

	return &Manager{
		cfg:        cfg,
		store:      st,
		bundle:     bundle,
		builder:    builder,
		trainer:    trainer,
		predictor:  model.NewPredictor(st, cfg, registry, clock, logger),
		registry:   registry,
		backtester: validation.NewBacktester(st, cfg, trainer, clock, logger),
		clock:      clock,
		logger:     logger,
		metrics:    metrics,
		tracer:     NewRunTracer(),
	}
}

// Registry exposes the artifact registry, mainly for seeding and inspection
// in tests and tooling.
func (m *Manager) Registry() *model.Registry { return m.registry }

// RunWeekly executes the full weekly pipeline for the given season week and
// returns the finished run state. The run record is persisted with a
// terminal status even when a stage fails.
func (m *Manager) RunWeekly(ctx context.Context, year, week int, crops []domain.Crop) (*RunState, error) {
	stages := []Stage{
		NewFreshnessStage(sources.NewFreshnessChecker(m.bundle, m.cfg.Sources, m.clock, m.logger), m.cfg.States, m.logger),
		NewFeatureStage(m.builder, m.cfg, m.logger, m.metrics),
		NewTrainStage(m.trainer, m.registry, m.logger),
		NewForecastStage(m.predictor, m.store, m.cfg, m.logger, m.metrics),
		NewNationalStage(m.store, m.cfg, m.clock, m.logger),
	}
	return m.execute(ctx, domain.RunKindWeekly, year, week, crops, stages)
}

// RunTrain refreshes artifacts without forecasting.
func (m *Manager) RunTrain(ctx context.Context, year, week int, crops []domain.Crop) (*RunState, error) {
	stages := []Stage{
		NewTrainStage(m.trainer, m.registry, m.logger),
	}
	return m.execute(ctx, domain.RunKindTrain, year, week, crops, stages)
}

// RunBacktest replays the history for each crop and stores the reports on
// the run state.
func (m *Manager) RunBacktest(ctx context.Context, year int, crops []domain.Crop) (*RunState, error) {
	stages := []Stage{
		&backtestStage{backtester: m.backtester},
	}
	return m.execute(ctx, domain.RunKindBacktest, year, 0, crops, stages)
}

func (m *Manager) execute(ctx context.Context, kind domain.RunKind, year, week int, crops []domain.Crop, stages []Stage) (*RunState, error) {
	run := domain.ModelRun{
		ID:        uuid.NewString(),
		Kind:      kind,
		Crops:     crops,
		Year:      year,
		Week:      week,
		Status:    domain.RunStatusRunning,
		StartedAt: m.clock.Now(),
	}
	state := NewRunState(run, year, week, crops)

	if err := m.store.SaveRun(ctx, state.Run); err != nil {
		return nil, fmt.Errorf("save run record: %w", err)
	}

	if m.metrics != nil {
		m.metrics.RunActive.Set(1)
		defer m.metrics.RunActive.Set(0)
	}

	ctx, span := m.tracer.StartRun(ctx, run.ID, string(kind), year, week)
	runCtx, cancel := context.WithTimeout(ctx, m.cfg.Pipeline.RunTimeout)
	defer cancel()

	m.logger.InfoContext(runCtx, "run started",
		slog.String("run_id", run.ID),
		slog.String("kind", string(kind)),
		slog.Int("year", year),
		slog.Int("week", week))

	runErr := m.runStages(runCtx, state, stages)

	finished := m.clock.Now()
	state.Finalize(finished, runErr)
	if m.metrics != nil {
		m.metrics.RunDuration.Observe(state.Run.Duration.Seconds())
	}
	m.tracer.EndRun(span, string(state.Run.Status), state.Run.FeatureRows, state.Run.Forecasts, len(state.Run.FailedUnits), runErr)

	// Persist the terminal record with the original context: the run
	// timeout must not block the audit write.
	if err := m.store.SaveRun(ctx, state.Run); err != nil {
		m.logger.ErrorContext(ctx, "failed to persist run record",
			slog.String("run_id", run.ID),
			slog.String("error", err.Error()))
	}

	m.logger.InfoContext(ctx, "run finished",
		slog.String("run_id", run.ID),
		slog.String("status", string(state.Run.Status)),
		slog.Duration("duration", state.Run.Duration),
		slog.Int("feature_rows", state.Run.FeatureRows),
		slog.Int("forecasts", state.Run.Forecasts),
		slog.Int("failed_units", len(state.Run.FailedUnits)))

	if runErr != nil {
		return state, fmt.Errorf("run %s: %w", run.ID, runErr)
	}
	return state, nil
}

func (m *Manager) runStages(ctx context.Context, state *RunState, stages []Stage) error {
	for _, stage := range stages {
		stageCtx, cancel := context.WithTimeout(ctx, m.cfg.Pipeline.StageTimeout)
		stageCtx, span := m.tracer.StartStage(stageCtx, state.Run.ID, stage.ID())

		start := m.clock.Now()
		err := stage.Run(stageCtx, state)
		elapsed := m.clock.Now().Sub(start)

		if m.metrics != nil {
			m.metrics.StageDuration.WithLabelValues(stage.ID()).Observe(elapsed.Seconds())
		}
		m.tracer.EndStage(span, err)
		cancel()

		if err != nil {
			return fmt.Errorf("stage %s: %w", stage.ID(), err)
		}

		m.logger.InfoContext(ctx, "stage completed",
			slog.String("run_id", state.Run.ID),
			slog.String("stage", stage.ID()),
			slog.Duration("elapsed", elapsed))
	}
	return nil
}

// backtestStage adapts the backtester to the stage sequence.
type backtestStage struct {
	backtester *validation.Backtester
}

func (s *backtestStage) ID() string   { return "backtest" }
func (s *backtestStage) Name() string { return "Historical replay" }

func (s *backtestStage) Run(ctx context.Context, state *RunState) error {
	for _, crop := range state.Crops {
		report, err := s.backtester.Run(ctx, crop)
		if err != nil {
			return fmt.Errorf("backtest %s: %w", crop, err)
		}
		state.Backtests[crop] = report
	}
	return nil
}
