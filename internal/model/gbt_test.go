package model

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func gbtTestConfig() GBTConfig {
	return GBTConfig{Trees: 100, MaxDepth: 3, LearningRate: 0.1, MinLeaf: 2}
}

func TestFitGradientBoostLearnsStepFunction(t *testing.T) {
	features := []string{"x"}
	var rows [][]*float64
	var targets []float64
	for i := 0; i < 40; i++ {
		x := float64(i) / 10
		rows = append(rows, []*float64{fp(x)})
		if x < 2 {
			targets = append(targets, -10)
		} else {
			targets = append(targets, 10)
		}
	}

	m, err := FitGradientBoost(gbtTestConfig(), features, rows, targets)
	require.NoError(t, err)

	assert.InDelta(t, -10, m.Predict([]*float64{fp(0.5)}), 0.5)
	assert.InDelta(t, 10, m.Predict([]*float64{fp(3.5)}), 0.5)
}

func TestGradientBoostMissingValueRouting(t *testing.T) {
	// Missing x correlates with the low-target group; the learned routing
	// must send nils there instead of imputing.
	features := []string{"x", "noise"}
	var rows [][]*float64
	var targets []float64
	for i := 0; i < 20; i++ {
		rows = append(rows, []*float64{nil, fp(float64(i))})
		targets = append(targets, -5)
	}
	for i := 0; i < 20; i++ {
		rows = append(rows, []*float64{fp(1 + float64(i)/10), fp(float64(i))})
		targets = append(targets, 5)
	}

	m, err := FitGradientBoost(gbtTestConfig(), features, rows, targets)
	require.NoError(t, err)

	assert.InDelta(t, -5, m.Predict([]*float64{nil, fp(3)}), 1.0)
	assert.InDelta(t, 5, m.Predict([]*float64{fp(1.5), fp(3)}), 1.0)
}

func TestGradientBoostConstantTarget(t *testing.T) {
	features := []string{"x"}
	var rows [][]*float64
	var targets []float64
	for i := 0; i < 10; i++ {
		rows = append(rows, []*float64{fp(float64(i))})
		targets = append(targets, 7)
	}

	m, err := FitGradientBoost(gbtTestConfig(), features, rows, targets)
	require.NoError(t, err)

	// No split ever improves a constant target; the base prediction stands.
	assert.InDelta(t, 7, m.Predict([]*float64{fp(4)}), 1e-9)
	assert.Empty(t, m.TreeList)
}

func TestGradientBoostTooFewRows(t *testing.T) {
	_, err := FitGradientBoost(gbtTestConfig(), []string{"x"}, [][]*float64{{fp(1)}}, []float64{1})
	require.Error(t, err)
}

func TestImportanceNormalizedAndSorted(t *testing.T) {
	features := []string{"signal", "noise"}
	var rows [][]*float64
	var targets []float64
	for i := 0; i < 30; i++ {
		s := float64(i % 3)
		rows = append(rows, []*float64{fp(s), fp(float64(i % 7))})
		targets = append(targets, s*10)
	}

	m, err := FitGradientBoost(gbtTestConfig(), features, rows, targets)
	require.NoError(t, err)

	imps := m.Importance()
	require.NotEmpty(t, imps)

	var total float64
	for _, fi := range imps {
		total += fi.Weight
	}
	assert.InDelta(t, 1.0, total, 1e-9)
	assert.Equal(t, "signal", imps[0].Feature)
	for i := 1; i < len(imps); i++ {
		assert.GreaterOrEqual(t, imps[i-1].Weight, imps[i].Weight)
	}
}

func TestGradientBoostDeterministic(t *testing.T) {
	features := []string{"x", "y"}
	var rows [][]*float64
	var targets []float64
	for i := 0; i < 25; i++ {
		rows = append(rows, []*float64{fp(math.Sin(float64(i))), fp(math.Cos(float64(i)))})
		targets = append(targets, math.Sin(float64(i))*4)
	}

	a, err := FitGradientBoost(gbtTestConfig(), features, rows, targets)
	require.NoError(t, err)
	b, err := FitGradientBoost(gbtTestConfig(), features, rows, targets)
	require.NoError(t, err)

	probe := []*float64{fp(0.3), fp(-0.2)}
	assert.Equal(t, a.Predict(probe), b.Predict(probe))
	assert.Equal(t, len(a.TreeList), len(b.TreeList))
}
