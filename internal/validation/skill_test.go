package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cropcast/internal/config"
	"cropcast/internal/domain"
)

func fp(v float64) *float64 { return &v }

func TestSkillScoresSignConvention(t *testing.T) {
	// Model error 1, trend error 2, prior-year error 0.5: the ensemble
	// beats trend (positive skill) and loses to prior-year (negative).
	records := []Record{
		{Actual: 100, Predicted: 101, Trend: 102, PriorYear: fp(100.5)},
		{Actual: 110, Predicted: 111, Trend: 112, PriorYear: fp(110.5)},
	}

	skill := SkillScores(records)

	require.Contains(t, skill, BenchNaiveTrend)
	require.Contains(t, skill, BenchPriorYear)
	assert.Positive(t, skill[BenchNaiveTrend])
	assert.Negative(t, skill[BenchPriorYear])
	assert.InDelta(t, 1-1.0/4.0, skill[BenchNaiveTrend], 1e-9)
	assert.InDelta(t, 1-1.0/0.25, skill[BenchPriorYear], 1e-9)
}

func TestSkillScoresSkipsUnavailableBenchmarks(t *testing.T) {
	records := []Record{
		{Actual: 100, Predicted: 99, Trend: 101}, // no prior year, no rolling mean
	}

	skill := SkillScores(records)

	assert.Contains(t, skill, BenchNaiveTrend)
	assert.NotContains(t, skill, BenchPriorYear)
	assert.NotContains(t, skill, BenchRolling5)
}

func TestSkillScoresPerfectBenchmarkSkipped(t *testing.T) {
	// Trend was exactly right everywhere; the ratio is undefined and the
	// benchmark is omitted rather than reported as infinite.
	records := []Record{
		{Actual: 100, Predicted: 99, Trend: 100},
	}

	skill := SkillScores(records)
	assert.NotContains(t, skill, BenchNaiveTrend)
}

func TestDecomposeBiasStrata(t *testing.T) {
	cc := config.DefaultCropConfigs()[domain.CropCorn.String()]

	// Two ordinary years and one deep drought miss. Deviations from trend
	// are +1, -1, -20 with an RMS scale near 11.6, so at sigma 1.0 only the
	// drought row lands in the extreme stratum.
	records := []Record{
		{State: "IA", Week: 22, Actual: 181, Predicted: 180, Trend: 180},
		{State: "IL", Week: 30, Actual: 179, Predicted: 181, Trend: 180},
		{State: "IA", Week: 30, Actual: 160, Predicted: 172, Trend: 180},
	}

	bd := DecomposeBias(records, cc, 1.0)

	assert.Equal(t, 2, bd.ByState["IA"].N)
	assert.Equal(t, 1, bd.ByState["IL"].N)
	assert.Equal(t, 1, bd.Extreme.N)
	assert.Equal(t, 2, bd.Normal.N)
	assert.Positive(t, bd.DeviationScale)

	// The drought row was over-forecast by 12.
	assert.InDelta(t, 12.0, bd.Extreme.MeanError, 1e-9)
	assert.InDelta(t, 12.0, bd.Extreme.RMSE, 1e-9)

	// Week 22 is vegetative for corn, week 30 reproductive.
	assert.Equal(t, 1, bd.ByStage["vegetative"].N)
	assert.Equal(t, 2, bd.ByStage["reproductive"].N)

	assert.Equal(t, []string{"IA", "IL"}, bd.StateNames())
	assert.Equal(t, []string{"reproductive", "vegetative"}, bd.StageNames())
}

func TestDecomposeBiasEmpty(t *testing.T) {
	cc := config.DefaultCropConfigs()[domain.CropCorn.String()]
	bd := DecomposeBias(nil, cc, 1.5)

	assert.Zero(t, bd.Extreme.N)
	assert.Zero(t, bd.Normal.N)
	assert.Empty(t, bd.ByState)
}
