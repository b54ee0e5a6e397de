package model

import (
	"cropcast/internal/config"
)

// Interval returns the symmetric forecast band around a point estimate:
// cross-validated RMSE scaled by the week's configured multiplier. The
// multiplier schedule is validated at load time to be non-increasing, so
// bands can only narrow as the season advances and uncertainty resolves.
func Interval(point, cvRMSE float64, week int, mc *config.ModelConfig) (lower, upper float64) {
	half := cvRMSE * mc.MultiplierForWeek(week)
	return point - half, point + half
}
