package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 8, cfg.Pipeline.Workers)
	assert.Equal(t, 10, cfg.Model.TrendMinYears)
	assert.Equal(t, 5, cfg.Model.AnalogK)
	assert.Contains(t, cfg.States, "IA")
	assert.Len(t, cfg.Crops, 3)
}

func TestLoadYAMLOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cropcast.yaml")
	yaml := `
pipeline:
  workers: 4
model:
  analog_k: 7
crops:
  corn:
    gdd_base_c: 10
    gdd_cap_c: 30
    heat_stress_c: 33
    drought_daily_mm: 1.2
    frost_c: 0
    planting_week: 18
    stages:
      planting_end: 4
      vegetative_end: 10
      reproductive_end: 16
      maturity_end: 24
    critical_window_start: 10
    critical_window_end: 16
    normal_gdd_per_week: 100
    normal_precip_mm_per_week: 22
    ndvi_baseline: 0.6
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 4, cfg.Pipeline.Workers)
	assert.Equal(t, 7, cfg.Model.AnalogK)
	assert.Equal(t, 33.0, cfg.Crops["corn"].HeatStressC)
	assert.Equal(t, 18, cfg.Crops["corn"].PlantingWeek)
}

func TestEnsembleWeightsSumToOne(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	for stage, w := range cfg.Model.EnsembleWeights {
		assert.InDelta(t, 1.0, w.Sum(), 1e-9, "stage %s", stage)
	}
}

func TestValidateRejectsBadWeights(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	cfg.Model.EnsembleWeights["vegetative"] = StageWeights{Trend: 0.5, GBT: 0.5, Analog: 0.5}
	err = cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "vegetative")
}

func TestValidateRejectsMissingStage(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	delete(cfg.Model.EnsembleWeights, "maturity")
	err = cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "maturity")
}

func TestIntervalMultipliersMonotone(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	prev := cfg.Model.MultiplierForWeek(16)
	for _, week := range []int{20, 26, 32, 38, 45} {
		cur := cfg.Model.MultiplierForWeek(week)
		assert.LessOrEqual(t, cur, prev, "week %d", week)
		prev = cur
	}

	cfg.Model.IntervalMultipliers = []IntervalMultiplier{
		{MaxWeek: 20, Multiplier: 1.0},
		{MaxWeek: 30, Multiplier: 1.5},
	}
	assert.Error(t, cfg.Validate())
}

func TestAccuracyGatesTighten(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	early, ok := cfg.Validation.CeilingForWeek(20)
	require.True(t, ok)
	late, ok := cfg.Validation.CeilingForWeek(38)
	require.True(t, ok)
	assert.Greater(t, early, late)

	cfg.Validation.Gates = []AccuracyGate{
		{MaxWeek: 22, RMSECeiling: 8},
		{MaxWeek: 38, RMSECeiling: 12},
	}
	assert.Error(t, cfg.Validate())
}

func TestCropConfigFor(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	corn, err := cfg.CropConfigFor("corn")
	require.NoError(t, err)
	assert.Equal(t, 10.0, corn.GDDBaseC)
	assert.False(t, corn.WinterCrop)

	wheat, err := cfg.CropConfigFor("winter_wheat")
	require.NoError(t, err)
	assert.True(t, wheat.WinterCrop)

	_, err = cfg.CropConfigFor("quinoa")
	assert.Error(t, err)
}
