package model

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// TrendAdjustedModel is Model A: ordinary least squares over a small
// interpretable feature subset, predicting the deviation from the pre-fit
// trend yield. Final yield = trend + deviation.
type TrendAdjustedModel struct {
	Features  []string  `json:"features"`
	Weights   []float64 `json:"weights"`
	Intercept float64   `json:"intercept"`
}

// FitTrendAdjusted solves the least-squares fit of trend deviations against
// the standardized feature subset. Rows with any missing feature are dropped
// from the fit; the model needs complete interpretable rows, and the
// standardized representation makes predict-time gaps a mean substitution.
func FitTrendAdjusted(features []string, rows [][]*float64, deviations []float64) (*TrendAdjustedModel, error) {
	if len(rows) != len(deviations) {
		return nil, fmt.Errorf("fit trend-adjusted: %d rows vs %d targets", len(rows), len(deviations))
	}

	var xs []float64
	var ys []float64
	complete := 0
	for i, row := range rows {
		if !rowComplete(row, len(features)) {
			continue
		}
		xs = append(xs, 1) // intercept column
		for _, v := range row {
			xs = append(xs, *v)
		}
		ys = append(ys, deviations[i])
		complete++
	}

	cols := len(features) + 1
	if complete < cols {
		return nil, fmt.Errorf("fit trend-adjusted: %d complete rows for %d coefficients (degenerate feature matrix)", complete, cols)
	}

	X := mat.NewDense(complete, cols, xs)
	y := mat.NewVecDense(complete, ys)

	var qr mat.QR
	qr.Factorize(X)
	var beta mat.VecDense
	if err := qr.SolveVecTo(&beta, false, y); err != nil {
		return nil, fmt.Errorf("solve least squares: %w", err)
	}

	m := &TrendAdjustedModel{
		Features:  append([]string(nil), features...),
		Intercept: beta.AtVec(0),
		Weights:   make([]float64, len(features)),
	}
	for i := range features {
		m.Weights[i] = beta.AtVec(i + 1)
	}
	return m, nil
}

// Predict returns the deviation from trend for one standardized row. A
// missing feature contributes nothing, which on standardized columns equals
// substituting the training mean.
func (m *TrendAdjustedModel) Predict(row []*float64) float64 {
	dev := m.Intercept
	for i := range m.Features {
		if i < len(row) && row[i] != nil {
			dev += m.Weights[i] * *row[i]
		}
	}
	return dev
}

// PrimaryDriver names the feature with the largest absolute contribution to
// the prediction, for the forecast's explanatory field.
func (m *TrendAdjustedModel) PrimaryDriver(row []*float64) string {
	best := ""
	bestAbs := 0.0
	for i, f := range m.Features {
		if i >= len(row) || row[i] == nil {
			continue
		}
		contrib := math.Abs(m.Weights[i] * *row[i])
		if contrib > bestAbs {
			bestAbs = contrib
			best = f
		}
	}
	return best
}

// Coefficients returns the weights keyed by feature, sorted for stable
// report output.
func (m *TrendAdjustedModel) Coefficients() map[string]float64 {
	out := make(map[string]float64, len(m.Features))
	for i, f := range m.Features {
		out[f] = m.Weights[i]
	}
	return out
}

func rowComplete(row []*float64, n int) bool {
	if len(row) < n {
		return false
	}
	for i := 0; i < n; i++ {
		if row[i] == nil {
			return false
		}
	}
	return true
}
