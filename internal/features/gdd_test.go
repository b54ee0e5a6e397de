package features

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"cropcast/internal/sources"
)

func TestDailyGDD(t *testing.T) {
	corn := cornConfig(t)

	tests := []struct {
		name string
		max  float64
		min  float64
		want float64
	}{
		{"typical summer day", 28, 16, 12},     // avg 22, base 10
		{"max clipped to cap", 38, 20, 15},     // max->30, avg 25
		{"min raised to base", 24, 4, 7},       // min->10, avg 17
		{"cold day contributes zero", 8, 2, 0}, // clipped avg below base
		{"both bounds clipped", 40, 2, 10},     // 30 and 10, avg 20
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, DailyGDD(tt.max, tt.min, corn), 1e-9)
		})
	}
}

func makeDays(start time.Time, n int, maxC, minC, precip float64) []sources.WeatherDay {
	days := make([]sources.WeatherDay, n)
	for i := range days {
		mx, mn, pr := maxC, minC, precip
		days[i] = sources.WeatherDay{
			State:    "IA",
			Date:     start.AddDate(0, 0, i),
			MaxTempC: &mx,
			MinTempC: &mn,
			PrecipMM: &pr,
		}
	}
	return days
}

func TestAggregateCumulativeGDDMonotonic(t *testing.T) {
	corn := cornConfig(t)
	start := time.Date(2024, time.May, 1, 0, 0, 0, 0, time.UTC)
	days := makeDays(start, 100, 27, 15, 3)

	prev := 0.0
	for w := 1; w <= 14; w++ {
		end := start.AddDate(0, 0, w*7)
		agg := Aggregate(days, corn, start, end, nil)
		assert.GreaterOrEqual(t, agg.CumGDD, prev, "week %d", w)
		prev = agg.CumGDD
	}
}

func TestAggregateStressCounts(t *testing.T) {
	corn := cornConfig(t)
	start := time.Date(2024, time.June, 1, 0, 0, 0, 0, time.UTC)

	days := makeDays(start, 10, 28, 16, 5)
	// Three heat days above the 34C threshold.
	for _, i := range []int{2, 3, 7} {
		*days[i].MaxTempC = 36
	}
	// One post-planting frost.
	*days[5].MinTempC = -1

	agg := Aggregate(days, corn, start, start.AddDate(0, 0, 9), nil)
	assert.Equal(t, 3, agg.HeatDays)
	assert.Equal(t, 1, agg.FrostEvents)
}

func TestAggregateDrySpellRestrictedToCriticalWindow(t *testing.T) {
	corn := cornConfig(t)
	start := time.Date(2024, time.June, 1, 0, 0, 0, 0, time.UTC)
	days := makeDays(start, 28, 30, 18, 0.2) // every day below the drought threshold

	critical := func(d time.Time) bool {
		// Only the second fortnight counts as critical.
		return !d.Before(start.AddDate(0, 0, 14))
	}

	agg := Aggregate(days, corn, start, start.AddDate(0, 0, 27), critical)
	assert.Equal(t, 14, agg.MaxConsecDry, "dry days outside the critical window must not count")

	aggAll := Aggregate(days, corn, start, start.AddDate(0, 0, 27), func(time.Time) bool { return true })
	assert.Equal(t, 28, aggAll.MaxConsecDry)
}

func TestAggregateMissingValues(t *testing.T) {
	corn := cornConfig(t)
	start := time.Date(2024, time.June, 1, 0, 0, 0, 0, time.UTC)
	days := makeDays(start, 6, 28, 16, 0.1)
	// A day with no temperatures still counts precip but not GDD.
	days[2].MaxTempC = nil
	days[2].MinTempC = nil
	// A day with no precip reading breaks a dry run.
	days[4].PrecipMM = nil

	agg := Aggregate(days, corn, start, start.AddDate(0, 0, 5), func(time.Time) bool { return true })
	assert.InDelta(t, 5*12.0, agg.CumGDD, 1e-9)
	assert.Equal(t, 4, agg.MaxConsecDry, "a precip gap must break, not extend, the dry spell")
}

func TestDeviationPct(t *testing.T) {
	assert.InDelta(t, 10.0, DeviationPct(110, 100), 1e-9)
	assert.InDelta(t, -25.0, DeviationPct(75, 100), 1e-9)
	assert.Equal(t, 0.0, DeviationPct(50, 0))
}
