package sources

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"cropcast/internal/config"
	"cropcast/internal/domain"
)

// Feed identifies one external data feed for freshness purposes.
type Feed string

const (
	FeedWeather    Feed = "weather"
	FeedGridded    Feed = "gridded_index"
	FeedSurvey     Feed = "survey"
	FeedVegetation Feed = "vegetation"
)

// FreshnessResult reports the staleness of one feed for one key.
type FreshnessResult struct {
	Feed   Feed          `json:"feed"`
	Key    string        `json:"key"` // state or crop the check ran against
	Latest time.Time     `json:"latest"`
	Age    time.Duration `json:"age"`
	Budget time.Duration `json:"budget"`
	Stale  bool          `json:"stale"`
}

// FreshnessChecker compares each feed's newest timestamp against its
// staleness budget. A stale feed degrades the affected feature group; it
// never aborts the run.
type FreshnessChecker struct {
	bundle  Bundle
	budgets map[Feed]time.Duration
	clock   clockwork.Clock
	logger  *slog.Logger
}

// NewFreshnessChecker builds a checker from the source bundle and config.
func NewFreshnessChecker(bundle Bundle, cfg config.SourcesConfig, clock clockwork.Clock, logger *slog.Logger) *FreshnessChecker {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &FreshnessChecker{
		bundle: bundle,
		budgets: map[Feed]time.Duration{
			FeedWeather:    cfg.WeatherMaxAge,
			FeedGridded:    cfg.GriddedMaxAge,
			FeedSurvey:     cfg.SurveyMaxAge,
			FeedVegetation: cfg.VegetationMaxAge,
		},
		clock:  clock,
		logger: logger,
	}
}

// CheckAll probes every configured feed for the given states and crop and
// returns one result per probe. Probe errors are reported as stale results
// with a zero Latest rather than failing the check.
func (f *FreshnessChecker) CheckAll(ctx context.Context, states []string, crop domain.Crop) []FreshnessResult {
	var results []FreshnessResult

	for _, state := range states {
		if f.bundle.Weather != nil {
			latest, err := f.bundle.Weather.LatestObservation(ctx, state)
			results = append(results, f.evaluate(ctx, FeedWeather, state, latest, err))
		}
		if f.bundle.Vegetation != nil {
			latest, err := f.bundle.Vegetation.LatestSample(ctx, state)
			results = append(results, f.evaluate(ctx, FeedVegetation, state, latest, err))
		}
	}

	if f.bundle.Gridded != nil {
		latest, err := f.bundle.Gridded.LatestIndex(ctx, crop)
		results = append(results, f.evaluate(ctx, FeedGridded, crop.String(), latest, err))
	}
	if f.bundle.Survey != nil {
		latest, err := f.bundle.Survey.LatestSurvey(ctx, crop)
		results = append(results, f.evaluate(ctx, FeedSurvey, crop.String(), latest, err))
	}

	return results
}

func (f *FreshnessChecker) evaluate(ctx context.Context, feed Feed, key string, latest time.Time, err error) FreshnessResult {
	budget := f.budgets[feed]

	if err != nil {
		f.logger.WarnContext(ctx, "freshness probe failed",
			"feed", string(feed),
			"key", key,
			"error", err,
		)
		return FreshnessResult{Feed: feed, Key: key, Budget: budget, Stale: true}
	}

	age := f.clock.Now().Sub(latest)
	res := FreshnessResult{
		Feed:   feed,
		Key:    key,
		Latest: latest,
		Age:    age,
		Budget: budget,
		Stale:  age > budget,
	}

	if res.Stale {
		f.logger.WarnContext(ctx, "feed is stale",
			"feed", string(feed),
			"key", key,
			"age", age.String(),
			"budget", budget.String(),
		)
	}

	return res
}

// Summary formats the stale subset of results for run reports.
func Summary(results []FreshnessResult) string {
	stale := 0
	for _, r := range results {
		if r.Stale {
			stale++
		}
	}
	return fmt.Sprintf("%d/%d feeds fresh", len(results)-stale, len(results))
}
