package model

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"
)

// Scaler standardizes feature columns to zero mean and unit variance.
// Missing values are ignored during fitting and pass through Transform as
// nil; they are never imputed to zero.
type Scaler struct {
	Features []string  `json:"features"`
	Mean     []float64 `json:"mean"`
	Std      []float64 `json:"std"`
}

// FitScaler computes per-column statistics over the training rows. Columns
// with no observed values, or zero variance, get unit std so transforming
// them is a no-op shift.
func FitScaler(features []string, rows [][]*float64) (*Scaler, error) {
	if len(rows) == 0 {
		return nil, fmt.Errorf("fit scaler: no training rows")
	}

	s := &Scaler{
		Features: append([]string(nil), features...),
		Mean:     make([]float64, len(features)),
		Std:      make([]float64, len(features)),
	}

	for col := range features {
		var present []float64
		for _, row := range rows {
			if col < len(row) && row[col] != nil {
				present = append(present, *row[col])
			}
		}
		if len(present) == 0 {
			s.Mean[col] = 0
			s.Std[col] = 1
			continue
		}
		mean, std := stat.MeanStdDev(present, nil)
		if math.IsNaN(std) || std <= 0 {
			std = 1
		}
		s.Mean[col] = mean
		s.Std[col] = std
	}

	return s, nil
}

// Transform standardizes one row. nil stays nil.
func (s *Scaler) Transform(row []*float64) []*float64 {
	out := make([]*float64, len(s.Features))
	for col := range s.Features {
		if col >= len(row) || row[col] == nil {
			continue
		}
		v := (*row[col] - s.Mean[col]) / s.Std[col]
		out[col] = &v
	}
	return out
}

// TransformAll standardizes a batch of rows.
func (s *Scaler) TransformAll(rows [][]*float64) [][]*float64 {
	out := make([][]*float64, len(rows))
	for i, row := range rows {
		out[i] = s.Transform(row)
	}
	return out
}

// Subset returns a scaler restricted to the named columns, for sub-models
// that use a reduced feature set.
func (s *Scaler) Subset(features []string) (*Scaler, error) {
	idx := make(map[string]int, len(s.Features))
	for i, f := range s.Features {
		idx[f] = i
	}

	sub := &Scaler{
		Features: append([]string(nil), features...),
		Mean:     make([]float64, len(features)),
		Std:      make([]float64, len(features)),
	}
	for i, f := range features {
		j, ok := idx[f]
		if !ok {
			return nil, fmt.Errorf("scaler has no column %q", f)
		}
		sub.Mean[i] = s.Mean[j]
		sub.Std[i] = s.Std[j]
	}
	return sub, nil
}
