package operations

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"cropcast/internal/config"
	"cropcast/internal/domain"
	"cropcast/internal/infrastructure"
)

// unit is one (state, crop) work item.
type unit struct {
	State string
	Crop  domain.Crop
}

// expandUnits crosses the configured states with the run's crops, skipping
// crops flagged untrained.
func expandUnits(states []string, crops []domain.Crop, state *RunState) []unit {
	units := make([]unit, 0, len(states)*len(crops))
	for _, crop := range crops {
		if state.Untrained(crop) {
			continue
		}
		for _, st := range states {
			units = append(units, unit{State: st, Crop: crop})
		}
	}
	return units
}

// runUnits executes fn for every unit on a bounded pool, retrying each unit
// per the pipeline config and isolating the ones that still fail. The pool
// itself only errors on context cancellation.
func runUnits(ctx context.Context, cfg config.PipelineConfig, units []unit, state *RunState, logger *slog.Logger, metrics *infrastructure.Metrics, fn func(context.Context, unit) error) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.Workers)

	for _, u := range units {
		g.Go(func() error {
			var err error
			for attempt := 0; attempt <= cfg.UnitRetries; attempt++ {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				if err = fn(gctx, u); err == nil {
					return nil
				}
				logger.WarnContext(gctx, "unit attempt failed",
					slog.String("state", u.State),
					slog.String("crop", u.Crop.String()),
					slog.Int("attempt", attempt+1),
					slog.String("error", err.Error()))
			}

			state.FailUnit(u.State, u.Crop)
			if metrics != nil {
				metrics.UnitFailures.WithLabelValues(u.Crop.String()).Inc()
			}
			return nil
		})
	}

	return g.Wait()
}
