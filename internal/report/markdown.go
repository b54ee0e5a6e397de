package report

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"cropcast/internal/config"
	"cropcast/internal/domain"
	"cropcast/internal/store"
)

// RunData is everything the writer needs from a finished weekly run.
type RunData struct {
	Run      domain.ModelRun
	National map[domain.Crop]domain.NationalForecast
}

// Writer renders run reports into the configured output directory.
type Writer struct {
	cfg   config.ReportConfig
	store store.Store
}

// NewWriter builds a report writer.
func NewWriter(cfg config.ReportConfig, st store.Store) *Writer {
	return &Writer{cfg: cfg, store: st}
}

// WriteRunReport renders the markdown report for a weekly run and returns the
// file path it was written to.
func (w *Writer) WriteRunReport(ctx context.Context, data RunData) (string, error) {
	body, err := w.render(ctx, data)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(w.cfg.OutputDir, 0o755); err != nil {
		return "", fmt.Errorf("create report directory: %w", err)
	}
	path := filepath.Join(w.cfg.OutputDir,
		fmt.Sprintf("run-%d-w%02d-%s.md", data.Run.Year, data.Run.Week, data.Run.ID[:8]))
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		return "", fmt.Errorf("write report: %w", err)
	}
	return path, nil
}

func (w *Writer) render(ctx context.Context, data RunData) (string, error) {
	var b strings.Builder

	fmt.Fprintf(&b, "# Yield forecast run %s\n\n", data.Run.ID)
	fmt.Fprintf(&b, "- Year %d, week %d\n", data.Run.Year, data.Run.Week)
	fmt.Fprintf(&b, "- Status: %s\n", data.Run.Status)
	fmt.Fprintf(&b, "- Feature rows: %d, forecasts: %d\n", data.Run.FeatureRows, data.Run.Forecasts)
	if len(data.Run.FailedUnits) > 0 {
		fmt.Fprintf(&b, "- Failed units: %s\n", strings.Join(data.Run.FailedUnits, ", "))
	}
	b.WriteString("\n")

	crops := make([]domain.Crop, 0, len(data.National))
	for crop := range data.National {
		crops = append(crops, crop)
	}
	sort.Slice(crops, func(i, j int) bool { return crops[i] < crops[j] })

	for _, crop := range crops {
		nf := data.National[crop]
		fmt.Fprintf(&b, "## %s\n\n", crop)
		fmt.Fprintf(&b, "National yield estimate: **%.1f** (production %.0f, area %.0f acres)\n\n",
			nf.Yield, nf.Production, nf.AreaAcres)
		if nf.ReducedCoverage {
			fmt.Fprintf(&b, "**Reduced coverage: %.0f%%** of known area; excluded: %s\n\n",
				nf.Coverage*100, strings.Join(nf.StatesExcluded, ", "))
		}

		if err := w.renderStateTable(ctx, &b, crop, data.Run.Year, data.Run.Week); err != nil {
			return "", err
		}
		if err := w.renderTopRisk(ctx, &b, crop, data.Run.Year); err != nil {
			return "", err
		}
	}

	fmt.Fprintf(&b, "---\nGenerated %s\n", data.Run.FinishedAt.UTC().Format(time.RFC3339))
	return b.String(), nil
}

// renderStateTable writes the per-state ensemble rows with week-over-week
// movement against the previous forecast week.
func (w *Writer) renderStateTable(ctx context.Context, b *strings.Builder, crop domain.Crop, year, week int) error {
	current, err := w.store.ForecastsForWeek(ctx, crop, year, week)
	if err != nil {
		return fmt.Errorf("load forecasts: %w", err)
	}
	previous := map[string]float64{}
	if prev, perr := w.store.ForecastsForWeek(ctx, crop, year, week-1); perr == nil {
		for _, f := range prev {
			if f.ModelType == domain.ModelEnsemble {
				previous[f.State] = f.PointEstimate
			}
		}
	}

	var rows []domain.YieldForecast
	for _, f := range current {
		if f.ModelType == domain.ModelEnsemble {
			rows = append(rows, f)
		}
	}
	if len(rows) == 0 {
		return nil
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].State < rows[j].State })

	b.WriteString("| State | Yield | Interval | vs trend | WoW |\n")
	b.WriteString("|-------|-------|----------|----------|-----|\n")
	for _, f := range rows {
		wow := "-"
		if prev, ok := previous[f.State]; ok {
			wow = fmt.Sprintf("%+.1f", f.PointEstimate-prev)
		}
		fmt.Fprintf(b, "| %s | %.1f | [%.1f, %.1f] | %+.1f | %s |\n",
			f.State, f.PointEstimate, f.IntervalLow, f.IntervalHigh, f.TrendDeviation, wow)
	}
	b.WriteString("\n")
	return nil
}

// renderTopRisk writes the highest-risk states from the monitoring view.
func (w *Writer) renderTopRisk(ctx context.Context, b *strings.Builder, crop domain.Crop, year int) error {
	view, err := BuildMonitoringView(ctx, w.store, crop, year)
	if err != nil {
		return err
	}

	var risky []MonitoringRow
	for _, row := range view {
		if row.Risk != RiskLow {
			risky = append(risky, row)
		}
	}
	if len(risky) == 0 {
		return nil
	}
	if len(risky) > w.cfg.TopRiskN {
		risky = risky[:w.cfg.TopRiskN]
	}

	b.WriteString("### Top risk states\n\n")
	for _, row := range risky {
		fmt.Fprintf(b, "- **%s** (%s): %+.1f vs trend, %d heat-stress days, %d-day dry run\n",
			row.State, row.Risk, row.TrendDeviation, row.HeatStressDays, row.MaxConsecDry)
	}
	b.WriteString("\n")
	return nil
}
