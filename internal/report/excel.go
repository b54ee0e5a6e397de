package report

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/xuri/excelize/v2"

	"cropcast/internal/domain"
)

// WriteWorkbook exports the run's forecast rows to an Excel workbook with
// one sheet per crop, returning the written path.
func (w *Writer) WriteWorkbook(ctx context.Context, data RunData) (string, error) {
	f := excelize.NewFile()
	defer f.Close()

	crops := make([]domain.Crop, 0, len(data.National))
	for crop := range data.National {
		crops = append(crops, crop)
	}
	sort.Slice(crops, func(i, j int) bool { return crops[i] < crops[j] })

	header := []string{"State", "Model", "Yield", "Interval low", "Interval high",
		"Trend yield", "vs trend", "Primary driver", "Artifact"}

	for i, crop := range crops {
		sheet := string(crop)
		if i == 0 {
			if err := f.SetSheetName("Sheet1", sheet); err != nil {
				return "", fmt.Errorf("rename sheet: %w", err)
			}
		} else {
			if _, err := f.NewSheet(sheet); err != nil {
				return "", fmt.Errorf("create sheet %s: %w", sheet, err)
			}
		}

		for col, title := range header {
			cell, err := excelize.CoordinatesToCellName(col+1, 1)
			if err != nil {
				return "", err
			}
			if err := f.SetCellValue(sheet, cell, title); err != nil {
				return "", fmt.Errorf("write header: %w", err)
			}
		}

		rows, err := w.store.ForecastsForWeek(ctx, crop, data.Run.Year, data.Run.Week)
		if err != nil {
			return "", fmt.Errorf("load forecasts for %s: %w", crop, err)
		}
		sort.Slice(rows, func(a, b int) bool {
			if rows[a].State != rows[b].State {
				return rows[a].State < rows[b].State
			}
			return rows[a].ModelType < rows[b].ModelType
		})

		for r, fc := range rows {
			values := []interface{}{
				fc.State, string(fc.ModelType), fc.PointEstimate, fc.IntervalLow,
				fc.IntervalHigh, fc.TrendYield, fc.TrendDeviation, fc.PrimaryDriver,
				fc.ArtifactVersion,
			}
			for col, v := range values {
				cell, cerr := excelize.CoordinatesToCellName(col+1, r+2)
				if cerr != nil {
					return "", cerr
				}
				if err := f.SetCellValue(sheet, cell, v); err != nil {
					return "", fmt.Errorf("write row: %w", err)
				}
			}
		}
	}

	if err := os.MkdirAll(w.cfg.OutputDir, 0o755); err != nil {
		return "", fmt.Errorf("create report directory: %w", err)
	}
	path := filepath.Join(w.cfg.OutputDir,
		fmt.Sprintf("forecasts-%d-w%02d.xlsx", data.Run.Year, data.Run.Week))
	if err := f.SaveAs(path); err != nil {
		return "", fmt.Errorf("save workbook: %w", err)
	}
	return path, nil
}
