package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cropcast/internal/domain"
	"cropcast/internal/store"
)

func writeSeed(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "seed.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadSeed(t *testing.T) {
	path := writeSeed(t, `{
		"observations": [
			{"commodity": "corn", "state": "IA", "year": 2023, "yield": 200, "area_acres": 3000}
		],
		"features": [
			{"state": "IA", "crop": "corn", "year": 2023, "week": 30,
			 "growth_stage": "reproductive", "season_week": 14, "cum_gdd": 1400}
		]
	}`)

	st := store.NewMemoryStore()
	obs, feats, err := loadSeed(context.Background(), path, st)
	require.NoError(t, err)
	assert.Equal(t, 1, obs)
	assert.Equal(t, 1, feats)

	loaded, err := st.Observations(context.Background(), domain.CropCorn)
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.Equal(t, 200.0, loaded[0].Yield)

	fv, ok, err := st.GetFeature(context.Background(), "IA", domain.CropCorn, 2023, 30)
	require.NoError(t, err)
	require.True(t, ok)
	require.NotNil(t, fv.CumGDD)
	assert.Equal(t, 1400.0, *fv.CumGDD)
	assert.True(t, fv.HasWeather())
}

func TestLoadSeedRejectsInvalidRows(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"unknown crop", `{"observations": [{"commodity": "kudzu", "state": "IA", "year": 2023, "yield": 200}]}`},
		{"zero yield", `{"observations": [{"commodity": "corn", "state": "IA", "year": 2023, "yield": 0}]}`},
		{"bad week", `{"features": [{"state": "IA", "crop": "corn", "year": 2023, "week": 99, "growth_stage": "reproductive"}]}`},
		{"malformed json", `{"observations": [`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeSeed(t, tt.body)
			_, _, err := loadSeed(context.Background(), path, store.NewMemoryStore())
			assert.Error(t, err)
		})
	}
}

func TestParseCrops(t *testing.T) {
	crops, err := parseCrops("corn, soybeans")
	require.NoError(t, err)
	assert.Equal(t, []domain.Crop{domain.CropCorn, domain.CropSoybeans}, crops)

	_, err = parseCrops("corn,kudzu")
	assert.Error(t, err)
}
