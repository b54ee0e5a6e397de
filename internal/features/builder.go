package features

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/time/rate"

	"cropcast/internal/config"
	"cropcast/internal/domain"
	apperrors "cropcast/internal/errors"
	"cropcast/internal/infrastructure"
	"cropcast/internal/sources"
	"cropcast/internal/store"
)

// Builder assembles weekly feature vectors from the external feeds and
// upserts them into the feature store.
type Builder struct {
	bundle  sources.Bundle
	store   store.FeatureStore
	cfg     *config.Config
	limiter *rate.Limiter
	clock   clockwork.Clock
	logger  *slog.Logger
	metrics *infrastructure.Metrics
}

// NewBuilder wires a feature builder. clock and logger fall back to real
// clock and the default logger when nil.
func NewBuilder(bundle sources.Bundle, fs store.FeatureStore, cfg *config.Config, limiter *rate.Limiter, clock clockwork.Clock, logger *slog.Logger, metrics *infrastructure.Metrics) *Builder {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = slog.Default()
	}
	if limiter == nil {
		limiter = sources.NewLimiter(cfg.Sources)
	}
	return &Builder{
		bundle:  bundle,
		store:   fs,
		cfg:     cfg,
		limiter: limiter,
		clock:   clock,
		logger:  logger,
		metrics: metrics,
	}
}

// BuildFeatures builds and upserts one row per week in [weekFrom, weekTo]
// and returns the count of rows upserted. Missing source coverage nulls the
// affected feature group; only store failures and context cancellation
// return an error.
func (b *Builder) BuildFeatures(ctx context.Context, state string, crop domain.Crop, year, weekFrom, weekTo int) (int, error) {
	if weekFrom < 1 || weekTo > 53 || weekFrom > weekTo {
		return 0, fmt.Errorf("invalid week range [%d, %d]", weekFrom, weekTo)
	}
	cc, err := b.cfg.CropConfigFor(crop.String())
	if err != nil {
		return 0, fmt.Errorf("crop config: %w", err)
	}

	planting := PlantingDate(cc, year)
	rangeEnd := WeekEnd(year, weekTo)

	// One weather fetch covers the whole range; per-week aggregates slice it.
	weather, weatherErr := b.fetchWeather(ctx, state, planting, rangeEnd)
	if weatherErr != nil {
		b.logger.WarnContext(ctx, "weather unavailable, nulling weather feature group",
			"state", state, "crop", crop.String(), "year", year, "error", weatherErr)
		b.countSourceFailure("weather")
	}

	upserted := 0
	for week := weekFrom; week <= weekTo; week++ {
		fv := domain.FeatureVector{
			State:       state,
			Crop:        crop,
			Year:        year,
			Week:        week,
			GrowthStage: StageForWeek(cc, week),
			SeasonWeek:  SeasonWeek(cc, week),
			BuiltAt:     b.clock.Now(),
		}

		if weatherErr == nil && len(weather) > 0 {
			b.applyWeather(&fv, weather, cc, planting, year, week)
		}
		b.applySurvey(ctx, &fv)
		b.applyGridded(ctx, &fv)
		b.applyVegetation(ctx, &fv, cc, year, week)
		b.applyTextSignal(ctx, &fv, year, week)

		if err := b.store.UpsertFeature(ctx, fv); err != nil {
			return upserted, fmt.Errorf("upsert feature %s: %w", fv.Key(), err)
		}
		upserted++
		if b.metrics != nil {
			b.metrics.FeatureRowsUpserted.WithLabelValues(crop.String()).Inc()
		}
	}

	b.logger.InfoContext(ctx, "feature build completed",
		"state", state, "crop", crop.String(), "year", year,
		"weeks", fmt.Sprintf("%d-%d", weekFrom, weekTo), "rows", upserted)

	return upserted, nil
}

func (b *Builder) fetchWeather(ctx context.Context, state string, from, to time.Time) ([]sources.WeatherDay, error) {
	if b.bundle.Weather == nil {
		return nil, &apperrors.MissingDataError{Source: "weather", State: state}
	}
	qctx, cancel, err := b.throttled(ctx)
	if err != nil {
		return nil, err
	}
	defer cancel()

	days, err := b.bundle.Weather.DailyObservations(qctx, state, from, to)
	if err != nil {
		return nil, fmt.Errorf("query weather for %s: %w", state, err)
	}
	if len(days) == 0 {
		return nil, &apperrors.MissingDataError{Source: "weather", State: state}
	}
	return days, nil
}

func (b *Builder) applyWeather(fv *domain.FeatureVector, days []sources.WeatherDay, cc config.CropConfig, planting time.Time, year, week int) {
	weekEnd := WeekEnd(year, week)
	if weekEnd.Before(planting) {
		// Pre-season rows carry no weather accumulation.
		return
	}

	agg := Aggregate(days, cc, planting, weekEnd, func(d time.Time) bool {
		_, isoWeek := d.ISOWeek()
		return InCriticalWindow(cc, isoWeek)
	})
	if agg.DaysCovered == 0 {
		return
	}

	sw := SeasonWeek(cc, week)
	normalGDD := cc.NormalGDDPerWeek * float64(sw)
	normalPrecip := cc.NormalPrecipMMPerWeek * float64(sw)

	fv.CumGDD = domain.Float64(agg.CumGDD)
	fv.CumPrecipMM = domain.Float64(agg.CumPrecipMM)
	fv.AvgTempC = domain.Float64(agg.AvgTempC)
	fv.HeatStressDays = domain.Int(agg.HeatDays)
	fv.MaxConsecDryDays = domain.Int(agg.MaxConsecDry)
	fv.FrostEvents = domain.Int(agg.FrostEvents)
	fv.GDDDeviationPct = domain.Float64(DeviationPct(agg.CumGDD, normalGDD))
	fv.PrecipDevPct = domain.Float64(DeviationPct(agg.CumPrecipMM, normalPrecip))
}

func (b *Builder) applySurvey(ctx context.Context, fv *domain.FeatureVector) {
	if b.bundle.Survey == nil {
		return
	}
	qctx, cancel, err := b.throttled(ctx)
	if err != nil {
		return
	}
	defer cancel()

	records, err := b.bundle.Survey.WeeklySurvey(qctx, fv.Crop, fv.State, fv.Year, fv.Week)
	if err != nil || len(records) == 0 {
		if err != nil {
			b.logger.WarnContext(ctx, "survey query failed", "state", fv.State, "week", fv.Week, "error", err)
			b.countSourceFailure("survey")
		}
		return
	}

	chosen := resolveSurveyConflicts(ctx, b.logger, records, fv)
	fv.ConditionPctGE = chosen.PctGoodExcellent
	fv.ProgressPct = chosen.ProgressPct

	// Week-over-week condition delta against the previously built row.
	if fv.ConditionPctGE != nil && fv.Week > 1 {
		prev, ok, err := b.store.GetFeature(ctx, fv.State, fv.Crop, fv.Year, fv.Week-1)
		if err == nil && ok && prev.ConditionPctGE != nil {
			fv.ConditionDelta = domain.Float64(*fv.ConditionPctGE - *prev.ConditionPctGE)
		}
	}
}

// resolveSurveyConflicts picks the most recently reported record and logs an
// InconsistentFeatureError when an older source disagrees materially.
func resolveSurveyConflicts(ctx context.Context, logger *slog.Logger, records []sources.SurveyRecord, fv *domain.FeatureVector) sources.SurveyRecord {
	chosen := records[0]
	for _, r := range records[1:] {
		if r.ReportedAt.After(chosen.ReportedAt) {
			chosen = r
		}
	}

	for _, r := range records {
		if r.Source == chosen.Source {
			continue
		}
		if r.PctGoodExcellent != nil && chosen.PctGoodExcellent != nil &&
			math.Abs(*r.PctGoodExcellent-*chosen.PctGoodExcellent) > 0.5 {
			incErr := &apperrors.InconsistentFeatureError{
				Field: "condition_pct_good_excellent",
				State: fv.State, Crop: fv.Crop.String(), Year: fv.Year, Week: fv.Week,
				Older: *r.PctGoodExcellent, Newer: *chosen.PctGoodExcellent,
				KeptFrom: chosen.Source,
			}
			logger.WarnContext(ctx, "inconsistent survey values", "error", incErr)
		}
	}
	return chosen
}

func (b *Builder) applyGridded(ctx context.Context, fv *domain.FeatureVector) {
	if b.bundle.Gridded == nil {
		return
	}
	qctx, cancel, err := b.throttled(ctx)
	if err != nil {
		return
	}
	defer cancel()

	idx, err := b.bundle.Gridded.WeeklyIndex(qctx, fv.Crop, fv.Year, fv.Week)
	if err != nil {
		b.logger.WarnContext(ctx, "gridded index query failed", "crop", fv.Crop.String(), "week", fv.Week, "error", err)
		b.countSourceFailure("gridded_index")
		return
	}
	fv.NationalConditionIndex = idx.ConditionIndex
	fv.NationalProgressIndex = idx.ProgressIndex
}

func (b *Builder) applyVegetation(ctx context.Context, fv *domain.FeatureVector, cc config.CropConfig, year, week int) {
	if b.bundle.Vegetation == nil {
		return
	}
	qctx, cancel, err := b.throttled(ctx)
	if err != nil {
		return
	}
	defer cancel()

	weekEnd := WeekEnd(year, week)
	samples, err := b.bundle.Vegetation.Samples(qctx, fv.State, weekEnd.AddDate(0, 0, -14), weekEnd)
	if err != nil || len(samples) == 0 {
		if err != nil {
			b.countSourceFailure("vegetation")
		}
		return
	}

	sum := 0.0
	for _, s := range samples {
		sum += s.NDVI
	}
	ndvi := sum / float64(len(samples))
	fv.NDVI = domain.Float64(ndvi)
	fv.NDVIAnomaly = domain.Float64(ndvi - cc.NDVIBaseline)
}

func (b *Builder) applyTextSignal(ctx context.Context, fv *domain.FeatureVector, year, week int) {
	if b.bundle.Text == nil {
		return
	}
	qctx, cancel, err := b.throttled(ctx)
	if err != nil {
		return
	}
	defer cancel()

	asOf := WeekEnd(year, week)
	decay := b.cfg.Model.TextRiskDecayWeeks
	since := asOf.AddDate(0, 0, -7*decay)
	docs, err := b.bundle.Text.Documents(qctx, fv.State, since)
	if err != nil || len(docs) == 0 {
		if err != nil {
			b.countSourceFailure("text")
		}
		return
	}

	var events []ChangeEvent
	var sentimentSum float64
	for _, doc := range docs {
		events = append(events, ExtractEvents(doc, asOf)...)
		sentimentSum += SentimentScore(doc.Text)
	}

	fv.TextRiskScore = domain.Float64(RiskScore(events, fv.State, decay))
	fv.TextSentiment = domain.Float64(clamp(sentimentSum/float64(len(docs)), -1, 1))
}

// throttled waits on the shared fetch limiter and derives the per-query
// timeout context.
func (b *Builder) throttled(ctx context.Context) (context.Context, context.CancelFunc, error) {
	if err := b.limiter.Wait(ctx); err != nil {
		return nil, nil, fmt.Errorf("rate limiter: %w", err)
	}
	qctx, cancel := context.WithTimeout(ctx, b.cfg.Sources.QueryTimeout)
	return qctx, cancel, nil
}

func (b *Builder) countSourceFailure(source string) {
	if b.metrics != nil {
		b.metrics.SourceFailures.WithLabelValues(source).Inc()
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
