package model

import (
	"fmt"

	"cropcast/internal/config"
	"cropcast/internal/domain"
)

// SubPrediction is one sub-model's yield prediction for a unit.
type SubPrediction struct {
	Model domain.ModelType
	Yield float64
}

// Blend combines sub-model yields with the stage's configured weights.
// A sub-model that produced no prediction gives up its weight to the others
// by renormalizing; the blend never fails just because one leg is absent.
func Blend(weights config.StageWeights, preds []SubPrediction) (float64, error) {
	var sum, wsum float64
	for _, p := range preds {
		w := weightFor(weights, p.Model)
		sum += w * p.Yield
		wsum += w
	}
	if wsum <= 0 {
		return 0, fmt.Errorf("blend: no weighted predictions")
	}
	return sum / wsum, nil
}

func weightFor(w config.StageWeights, m domain.ModelType) float64 {
	switch m {
	case domain.ModelTrendAdjusted:
		return w.Trend
	case domain.ModelGradientBoost:
		return w.GBT
	case domain.ModelAnalogYear:
		return w.Analog
	default:
		return 0
	}
}
