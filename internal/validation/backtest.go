package validation

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"

	"github.com/jonboulle/clockwork"

	"cropcast/internal/config"
	"cropcast/internal/domain"
	"cropcast/internal/model"
	"cropcast/internal/store"
)

// Record is one backtested forecast: the ensemble prediction a replay would
// have published for a (state, year) at a given week, next to what actually
// happened and what the naive benchmarks would have said.
type Record struct {
	Crop  domain.Crop `json:"crop"`
	State string      `json:"state"`
	Year  int         `json:"year"`
	Week  int         `json:"week"`

	Actual    float64 `json:"actual"`
	Predicted float64 `json:"predicted"` // ensemble
	Trend     float64 `json:"trend"`

	PerModel map[domain.ModelType]float64 `json:"per_model"`

	PriorYear *float64 `json:"prior_year,omitempty"`
	Rolling5  *float64 `json:"rolling_5yr,omitempty"`
}

// Error returns the signed forecast error (predicted minus actual).
func (r Record) Error() float64 { return r.Predicted - r.Actual }

// WeekSummary aggregates all backtest records for one forecast week.
type WeekSummary struct {
	Week      int     `json:"week"`
	N         int     `json:"n"`
	RMSE      float64 `json:"rmse"`
	MAE       float64 `json:"mae"`
	MeanError float64 `json:"mean_error"`
	R2        float64 `json:"r2"` // variance explained, clamped at 0

	// DirectionalAccuracy is the fraction of records where the forecast
	// called the sign of the deviation from trend correctly.
	DirectionalAccuracy float64 `json:"directional_accuracy"`

	// Skill per benchmark: positive beats the benchmark, negative loses.
	Skill map[string]float64 `json:"skill"`

	GateCeiling float64 `json:"gate_ceiling"`
	GatePassed  bool    `json:"gate_passed"`
}

// Report is the full backtest output for one crop.
type Report struct {
	Crop        domain.Crop   `json:"crop"`
	GeneratedAt time.Time     `json:"generated_at"`
	Years       []int         `json:"years"`
	Records     []Record      `json:"records"`
	Weeks       []WeekSummary `json:"weeks"`
	Bias        BiasBreakdown `json:"bias"`
	WorstCases  []Record      `json:"worst_cases"`
	Passed      bool          `json:"passed"`
}

// worstCaseCount bounds the worst-case table in the report.
const worstCaseCount = 10

// Backtester replays the full train-and-forecast sequence with each year
// held out in turn.
type Backtester struct {
	store   store.Store
	cfg     *config.Config
	trainer *model.Trainer
	clock   clockwork.Clock
	logger  *slog.Logger
}

// NewBacktester wires a backtester over the store and a trainer.
func NewBacktester(st store.Store, cfg *config.Config, trainer *model.Trainer, clock clockwork.Clock, logger *slog.Logger) *Backtester {
	return &Backtester{store: st, cfg: cfg, trainer: trainer, clock: clock, logger: logger}
}

// Run backtests one crop across every observed year and each configured
// forecast week. Years whose holdout cannot fit (first years of the history)
// are skipped with a log line rather than failing the whole replay.
func (b *Backtester) Run(ctx context.Context, crop domain.Crop) (*Report, error) {
	cc, err := b.cfg.CropConfigFor(crop.String())
	if err != nil {
		return nil, err
	}

	obs, err := b.store.Observations(ctx, crop)
	if err != nil {
		return nil, fmt.Errorf("load observations: %w", err)
	}
	if len(obs) == 0 {
		return nil, fmt.Errorf("no observations for %s", crop)
	}

	actuals := make(map[string]map[int]float64) // state -> year -> yield
	yearSet := make(map[int]bool)
	for _, o := range obs {
		if actuals[o.State] == nil {
			actuals[o.State] = make(map[int]float64)
		}
		actuals[o.State][o.Year] = o.Yield
		yearSet[o.Year] = true
	}
	years := make([]int, 0, len(yearSet))
	for y := range yearSet {
		years = append(years, y)
	}
	sort.Ints(years)

	report := &Report{Crop: crop, GeneratedAt: b.clock.Now(), Years: years}

	for _, year := range years {
		for _, week := range b.cfg.Validation.ForecastWeeks {
			artifact, held, herr := b.trainer.Holdout(ctx, crop, week, year)
			if herr != nil {
				b.logger.DebugContext(ctx, "holdout skipped",
					slog.String("crop", crop.String()),
					slog.Int("year", year),
					slog.Int("week", week),
					slog.String("reason", herr.Error()))
				continue
			}

			for _, h := range held {
				yields, perr := artifact.PredictYields(&b.cfg.Model, cc, week, h.Row, h.Trend)
				if perr != nil {
					return nil, fmt.Errorf("predict holdout %s/%d: %w", h.State, h.Year, perr)
				}

				rec := Record{
					Crop:      crop,
					State:     h.State,
					Year:      h.Year,
					Week:      week,
					Actual:    h.Yield,
					Predicted: yields[domain.ModelEnsemble],
					Trend:     h.Trend,
					PerModel:  yields,
					PriorYear: priorYear(actuals[h.State], h.Year),
					Rolling5:  rollingMean(actuals[h.State], h.Year, 5),
				}
				report.Records = append(report.Records, rec)
			}
		}
	}

	if len(report.Records) == 0 {
		return nil, fmt.Errorf("backtest produced no records for %s", crop)
	}

	report.Weeks = b.summarize(report.Records)
	report.Bias = DecomposeBias(report.Records, cc, b.cfg.Validation.ExtremeYearSigma)
	report.WorstCases = worstCases(report.Records, worstCaseCount)

	report.Passed = true
	for _, w := range report.Weeks {
		if !w.GatePassed {
			report.Passed = false
		}
	}

	b.logger.InfoContext(ctx, "backtest finished",
		slog.String("crop", crop.String()),
		slog.Int("records", len(report.Records)),
		slog.Bool("passed", report.Passed))

	return report, nil
}

func (b *Backtester) summarize(records []Record) []WeekSummary {
	byWeek := make(map[int][]Record)
	for _, r := range records {
		byWeek[r.Week] = append(byWeek[r.Week], r)
	}

	weeks := make([]int, 0, len(byWeek))
	for w := range byWeek {
		weeks = append(weeks, w)
	}
	sort.Ints(weeks)

	out := make([]WeekSummary, 0, len(weeks))
	for _, w := range weeks {
		recs := byWeek[w]
		s := WeekSummary{
			Week:                w,
			N:                   len(recs),
			RMSE:                rmse(recs, func(r Record) float64 { return r.Predicted }),
			MAE:                 mae(recs),
			MeanError:           meanError(recs),
			R2:                  rSquared(recs),
			DirectionalAccuracy: directionalAccuracy(recs),
			Skill:               SkillScores(recs),
		}
		if ceiling, ok := b.cfg.Validation.CeilingForWeek(w); ok {
			s.GateCeiling = ceiling
			s.GatePassed = s.RMSE <= ceiling
		} else {
			s.GatePassed = true
		}
		out = append(out, s)
	}
	return out
}

func priorYear(byYear map[int]float64, year int) *float64 {
	if byYear == nil {
		return nil
	}
	if y, ok := byYear[year-1]; ok {
		return &y
	}
	return nil
}

func rollingMean(byYear map[int]float64, year, span int) *float64 {
	if byYear == nil {
		return nil
	}
	var sum float64
	n := 0
	for y := year - span; y < year; y++ {
		if v, ok := byYear[y]; ok {
			sum += v
			n++
		}
	}
	if n < span {
		return nil
	}
	m := sum / float64(n)
	return &m
}

func worstCases(records []Record, n int) []Record {
	sorted := append([]Record(nil), records...)
	sort.Slice(sorted, func(i, j int) bool {
		ai, aj := math.Abs(sorted[i].Error()), math.Abs(sorted[j].Error())
		if ai != aj {
			return ai > aj
		}
		if sorted[i].Year != sorted[j].Year {
			return sorted[i].Year < sorted[j].Year
		}
		return sorted[i].State < sorted[j].State
	})
	if len(sorted) > n {
		sorted = sorted[:n]
	}
	return sorted
}

func rmse(records []Record, pred func(Record) float64) float64 {
	if len(records) == 0 {
		return 0
	}
	var sum float64
	for _, r := range records {
		e := pred(r) - r.Actual
		sum += e * e
	}
	return math.Sqrt(sum / float64(len(records)))
}

func mae(records []Record) float64 {
	if len(records) == 0 {
		return 0
	}
	var sum float64
	for _, r := range records {
		sum += math.Abs(r.Error())
	}
	return sum / float64(len(records))
}

func meanError(records []Record) float64 {
	if len(records) == 0 {
		return 0
	}
	var sum float64
	for _, r := range records {
		sum += r.Error()
	}
	return sum / float64(len(records))
}

// rSquared is the variance in actual yields explained by the predictions,
// clamped at zero for fits worse than the mean.
func rSquared(records []Record) float64 {
	if len(records) == 0 {
		return 0
	}
	var mean float64
	for _, r := range records {
		mean += r.Actual
	}
	mean /= float64(len(records))

	var sse, sst float64
	for _, r := range records {
		e := r.Error()
		sse += e * e
		d := r.Actual - mean
		sst += d * d
	}
	if sst == 0 {
		return 0
	}
	r2 := 1 - sse/sst
	if r2 < 0 {
		return 0
	}
	return r2
}

// directionalAccuracy is the fraction of records where predicted and actual
// deviations from trend share a sign. Zero deviation counts as above trend.
func directionalAccuracy(records []Record) float64 {
	if len(records) == 0 {
		return 0
	}
	hits := 0
	for _, r := range records {
		predUp := r.Predicted-r.Trend >= 0
		actualUp := r.Actual-r.Trend >= 0
		if predUp == actualUp {
			hits++
		}
	}
	return float64(hits) / float64(len(records))
}
