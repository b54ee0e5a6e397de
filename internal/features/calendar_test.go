package features

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cropcast/internal/config"
	"cropcast/internal/domain"
)

func cornConfig(t *testing.T) config.CropConfig {
	t.Helper()
	cc, ok := config.DefaultCropConfigs()["corn"]
	require.True(t, ok)
	return cc
}

func wheatConfig(t *testing.T) config.CropConfig {
	t.Helper()
	cc, ok := config.DefaultCropConfigs()["winter_wheat"]
	require.True(t, ok)
	return cc
}

func TestSeasonWeek(t *testing.T) {
	corn := cornConfig(t)

	tests := []struct {
		name         string
		calendarWeek int
		want         int
	}{
		{"before planting is pre-season", 10, 0},
		{"week before planting is pre-season", 16, 0},
		{"planting week is season week 1", 17, 1},
		{"mid-season", 27, 11},
		{"past maturity clamps to season end", 50, corn.Stages.MaturityEnd},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SeasonWeek(corn, tt.calendarWeek))
		})
	}
}

func TestSeasonWeekWinterCropWrapsYearBoundary(t *testing.T) {
	wheat := wheatConfig(t)

	// Fall seeding: calendar week 39 is season week 1.
	assert.Equal(t, 1, SeasonWeek(wheat, 39))
	// December, still in the fall portion.
	assert.Equal(t, 12, SeasonWeek(wheat, 50))
	// Spring calendar weeks wrap: week 10 is 52-39+1+10 = 24 weeks in.
	assert.Equal(t, 24, SeasonWeek(wheat, 10))
	// Early summer heading.
	assert.Equal(t, 36, SeasonWeek(wheat, 22))
}

func TestStageForWeek(t *testing.T) {
	corn := cornConfig(t)

	tests := []struct {
		calendarWeek int
		want         domain.GrowthStage
	}{
		{12, domain.StagePreSeason},
		{18, domain.StagePlanting},
		{25, domain.StageVegetative},
		{29, domain.StageReproductive},
		{36, domain.StageMaturity},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, StageForWeek(corn, tt.calendarWeek), "calendar week %d", tt.calendarWeek)
	}
}

func TestStageForWeekWinterCrop(t *testing.T) {
	wheat := wheatConfig(t)

	// Fall seeding through early winter is planting/vegetative.
	assert.Equal(t, domain.StagePlanting, StageForWeek(wheat, 40))
	assert.Equal(t, domain.StageVegetative, StageForWeek(wheat, 5))
	// Heading in late spring is reproductive.
	assert.Equal(t, domain.StageReproductive, StageForWeek(wheat, 20))
	// Harvest window.
	assert.Equal(t, domain.StageMaturity, StageForWeek(wheat, 26))
}

func TestPlantingDate(t *testing.T) {
	corn := cornConfig(t)
	wheat := wheatConfig(t)

	cornDate := PlantingDate(corn, 2024)
	assert.Equal(t, time.Monday, cornDate.Weekday())
	_, isoWeek := cornDate.ISOWeek()
	assert.Equal(t, corn.PlantingWeek, isoWeek)
	assert.Equal(t, 2024, cornDate.Year())

	// Winter wheat for harvest year 2024 plants in fall 2023.
	wheatDate := PlantingDate(wheat, 2024)
	assert.Equal(t, 2023, wheatDate.Year())
	_, isoWeek = wheatDate.ISOWeek()
	assert.Equal(t, wheat.PlantingWeek, isoWeek)
}

func TestWeekEnd(t *testing.T) {
	end := WeekEnd(2024, 25)
	assert.Equal(t, time.Sunday, end.Weekday())
	assert.True(t, end.After(mondayOfISOWeek(2024, 25)))
}

func TestInCriticalWindow(t *testing.T) {
	corn := cornConfig(t)

	// Critical window is season weeks 10-16 = calendar weeks 26-32.
	assert.False(t, InCriticalWindow(corn, 22))
	assert.True(t, InCriticalWindow(corn, 27))
	assert.True(t, InCriticalWindow(corn, 32))
	assert.False(t, InCriticalWindow(corn, 34))
}
