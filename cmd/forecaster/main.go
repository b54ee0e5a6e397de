// Command forecaster runs the weekly crop yield forecast pipeline.
//
// Usage:
//
//	forecaster run      -year 2026 -week 30 -data seed.json [-crops corn,soybeans]
//	forecaster train    -year 2026 -week 30 -data seed.json [-crops corn]
//	forecaster backtest -year 2026 -data seed.json [-crops corn]
//
// This is the reference wiring: an in-memory store seeded from the -data
// file (historical yields plus feature snapshots, JSON) and no live source
// feeds, so run-year feature groups degrade to null and the affected states
// are excluded from the national roll-up. Deployments that attach real
// collectors swap the store and the source bundle in buildManager.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"cropcast/internal/config"
	"cropcast/internal/domain"
	"cropcast/internal/infrastructure"
	"cropcast/internal/operations"
	"cropcast/internal/report"
	"cropcast/internal/sources"
	"cropcast/internal/store"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}
	command := os.Args[1]

	fs := flag.NewFlagSet(command, flag.ExitOnError)
	configPath := fs.String("config", "", "path to YAML config file (optional)")
	dataPath := fs.String("data", "", "path to JSON seed file with yields and feature snapshots")
	year := fs.Int("year", time.Now().UTC().Year(), "harvest year")
	week := fs.Int("week", isoWeek(time.Now().UTC()), "ISO calendar week of the run")
	cropsFlag := fs.String("crops", "corn,soybeans,winter_wheat", "comma-separated crop list")
	if err := fs.Parse(os.Args[2:]); err != nil {
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger, err := infrastructure.InitializeLogger(cfg.Logging)
	if err != nil {
		slog.Error("Failed to initialize logger", "error", err)
		os.Exit(1)
	}
	defer infrastructure.CloseLogFile()

	crops, err := parseCrops(*cropsFlag)
	if err != nil {
		logger.Error("Invalid crop list", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()

	mgr, st, err := buildManager(ctx, cfg, *dataPath, logger)
	if err != nil {
		logger.Error("Failed to build pipeline", "error", err)
		os.Exit(1)
	}
	writer := report.NewWriter(cfg.Report, st)

	switch command {
	case "run":
		runWeekly(ctx, mgr, writer, cfg, logger, *year, *week, crops)
	case "train":
		if _, err := mgr.RunTrain(ctx, *year, *week, crops); err != nil {
			logger.Error("Training run failed", "error", err)
			os.Exit(1)
		}
	case "backtest":
		runBacktest(ctx, mgr, logger, *year, crops)
	default:
		usage()
		os.Exit(2)
	}
}

// buildManager assembles the reference pipeline: an in-memory store seeded
// from the data file and an empty source bundle. This is the seam a real
// deployment replaces with its own store and feed collectors.
func buildManager(ctx context.Context, cfg *config.Config, dataPath string, logger *slog.Logger) (*operations.Manager, store.Store, error) {
	st := store.NewMemoryStore()
	if dataPath != "" {
		obs, feats, err := loadSeed(ctx, dataPath, st)
		if err != nil {
			return nil, nil, fmt.Errorf("load seed data: %w", err)
		}
		logger.Info("Seed data loaded", "path", dataPath, "observations", obs, "features", feats)
	}
	metrics := infrastructure.NewMetrics(prometheus.DefaultRegisterer)
	mgr := operations.NewManager(cfg, st, sources.Bundle{}, nil, logger, metrics)
	return mgr, st, nil
}

// seedFile is the on-disk shape of the -data file.
type seedFile struct {
	Observations []domain.YieldObservation `json:"observations"`
	Features     []domain.FeatureVector    `json:"features"`
}

// loadSeed reads the seed file into the store and returns the counts of
// observations and feature rows loaded.
func loadSeed(ctx context.Context, path string, st store.Store) (int, int, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return 0, 0, err
	}
	var seed seedFile
	if err := json.Unmarshal(raw, &seed); err != nil {
		return 0, 0, fmt.Errorf("parse %s: %w", path, err)
	}

	for _, o := range seed.Observations {
		if !o.IsValid() {
			return 0, 0, fmt.Errorf("invalid observation %s/%s/%d", o.Commodity, o.State, o.Year)
		}
		if err := st.PutObservation(ctx, o); err != nil {
			return 0, 0, fmt.Errorf("store observation: %w", err)
		}
	}
	for _, f := range seed.Features {
		if !f.IsValid() {
			return 0, 0, fmt.Errorf("invalid feature row %s", f.Key())
		}
		if err := st.UpsertFeature(ctx, f); err != nil {
			return 0, 0, fmt.Errorf("store feature row: %w", err)
		}
	}
	return len(seed.Observations), len(seed.Features), nil
}

func runWeekly(ctx context.Context, mgr *operations.Manager, writer *report.Writer, cfg *config.Config, logger *slog.Logger, year, week int, crops []domain.Crop) {
	state, err := mgr.RunWeekly(ctx, year, week, crops)
	if err != nil {
		logger.Error("Weekly run failed", "error", err)
		os.Exit(1)
	}

	data := report.RunData{Run: state.Run, National: state.National}
	path, err := writer.WriteRunReport(ctx, data)
	if err != nil {
		logger.Error("Failed to write run report", "error", err)
		os.Exit(1)
	}
	logger.Info("Run report written", "path", path)

	if cfg.Report.ExcelExport {
		xlsx, err := writer.WriteWorkbook(ctx, data)
		if err != nil {
			logger.Error("Failed to write workbook", "error", err)
			os.Exit(1)
		}
		logger.Info("Workbook written", "path", xlsx)
	}

	if state.Run.Status == domain.RunStatusPartial {
		logger.Warn("Run finished with isolated failures",
			"failed_units", strings.Join(state.Run.FailedUnits, ","))
	}
}

func runBacktest(ctx context.Context, mgr *operations.Manager, logger *slog.Logger, year int, crops []domain.Crop) {
	state, err := mgr.RunBacktest(ctx, year, crops)
	if err != nil {
		logger.Error("Backtest failed", "error", err)
		os.Exit(1)
	}

	for crop, rep := range state.Backtests {
		for _, w := range rep.Weeks {
			logger.Info("Backtest week summary",
				"crop", crop.String(),
				"week", w.Week,
				"n", w.N,
				"rmse", fmt.Sprintf("%.2f", w.RMSE),
				"mae", fmt.Sprintf("%.2f", w.MAE),
				"r2", fmt.Sprintf("%.3f", w.R2),
				"directional", fmt.Sprintf("%.2f", w.DirectionalAccuracy),
				"gate_ceiling", w.GateCeiling,
				"gate_passed", w.GatePassed)
		}
		if !rep.Passed {
			logger.Warn("Accuracy gates failed", "crop", crop.String())
		}
	}
}

func parseCrops(list string) ([]domain.Crop, error) {
	var crops []domain.Crop
	for _, raw := range strings.Split(list, ",") {
		c := domain.Crop(strings.TrimSpace(raw))
		if !c.IsValid() {
			return nil, fmt.Errorf("unknown crop %q", raw)
		}
		crops = append(crops, c)
	}
	if len(crops) == 0 {
		return nil, fmt.Errorf("no crops given")
	}
	return crops, nil
}

func isoWeek(t time.Time) int {
	_, week := t.ISOWeek()
	return week
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: forecaster <run|train|backtest> [flags]")
}
