package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func analogFixture(t *testing.T, k int) *AnalogModel {
	t.Helper()
	// Standardized (gdd_dev, precip_dev) candidates. 2012 is the drought
	// year: hot and dry with a deep negative deviation.
	m, err := NewAnalogModel([]string{"gdd_dev", "precip_dev"}, k, []AnalogCandidate{
		{Year: 2010, State: "IA", Row: []*float64{fp(0.1), fp(0.2)}, Deviation: 2},
		{Year: 2011, State: "IA", Row: []*float64{fp(-0.3), fp(0.1)}, Deviation: 1},
		{Year: 2012, State: "IA", Row: []*float64{fp(2.1), fp(-2.4)}, Deviation: -38},
		{Year: 2013, State: "IA", Row: []*float64{fp(-0.2), fp(0.4)}, Deviation: 4},
		{Year: 2014, State: "IA", Row: []*float64{fp(0.0), fp(0.6)}, Deviation: 6},
	})
	require.NoError(t, err)
	return m
}

func TestAnalogDroughtQueryMatchesDroughtYear(t *testing.T) {
	m := analogFixture(t, 2)

	// A hot, dry query should rank 2012 first and pull the prediction
	// sharply negative.
	dev, matches := m.Predict([]*float64{fp(1.9), fp(-2.2)})

	require.NotEmpty(t, matches)
	assert.Equal(t, 2012, matches[0].Year)
	assert.Less(t, dev, -20.0)
	assert.Contains(t, AnalogYears(matches), 2012)
}

func TestAnalogPredictDeterministic(t *testing.T) {
	m := analogFixture(t, 3)
	query := []*float64{fp(0.0), fp(0.3)}

	dev1, m1 := m.Predict(query)
	dev2, m2 := m.Predict(query)

	assert.Equal(t, dev1, dev2)
	assert.Equal(t, m1, m2)
}

func TestAnalogTieBreaksByYear(t *testing.T) {
	m, err := NewAnalogModel([]string{"x"}, 1, []AnalogCandidate{
		{Year: 2019, State: "IA", Row: []*float64{fp(1)}, Deviation: 5},
		{Year: 2015, State: "IA", Row: []*float64{fp(1)}, Deviation: -5},
	})
	require.NoError(t, err)

	_, matches := m.Predict([]*float64{fp(1)})
	require.Len(t, matches, 1)
	assert.Equal(t, 2015, matches[0].Year)
}

func TestAnalogMissingDimensionsExcluded(t *testing.T) {
	m := analogFixture(t, 1)

	// Query missing precip_dev still matches on gdd_dev alone; the 2012
	// candidate is closest in that one dimension.
	_, matches := m.Predict([]*float64{fp(2.0), nil})
	require.NotEmpty(t, matches)
	assert.Equal(t, 2012, matches[0].Year)
}

func TestAnalogNoSharedDimensions(t *testing.T) {
	m := analogFixture(t, 3)

	dev, matches := m.Predict([]*float64{nil, nil})
	assert.Zero(t, dev)
	assert.Empty(t, matches)
}

func TestAnalogWeightsNormalized(t *testing.T) {
	m := analogFixture(t, 3)

	_, matches := m.Predict([]*float64{fp(0.0), fp(0.3)})
	require.Len(t, matches, 3)

	var total float64
	for _, match := range matches {
		total += match.Weight
	}
	assert.InDelta(t, 1.0, total, 1e-9)
}

func TestAnalogKLargerThanCandidates(t *testing.T) {
	m := analogFixture(t, 50)

	_, matches := m.Predict([]*float64{fp(0), fp(0)})
	assert.Len(t, matches, 5)
}
