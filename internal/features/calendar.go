package features

import (
	"time"

	"cropcast/internal/config"
	"cropcast/internal/domain"
)

// SeasonWeek maps an ISO calendar week to the crop's season week: 1 is the
// planting week, 0 means pre-season. Winter crops anchor in the prior fall,
// so calendar weeks before the planting week wrap across the year boundary
// and land mid-season instead of pre-season.
func SeasonWeek(cc config.CropConfig, calendarWeek int) int {
	var sw int
	if cc.WinterCrop {
		if calendarWeek >= cc.PlantingWeek {
			sw = calendarWeek - cc.PlantingWeek + 1
		} else {
			sw = calendarWeek + 52 - cc.PlantingWeek + 1
		}
	} else {
		sw = calendarWeek - cc.PlantingWeek + 1
	}

	if sw < 1 {
		return 0
	}
	if sw > cc.Stages.MaturityEnd {
		return cc.Stages.MaturityEnd
	}
	return sw
}

// StageForWeek classifies an ISO calendar week into the crop's growth stage.
func StageForWeek(cc config.CropConfig, calendarWeek int) domain.GrowthStage {
	sw := SeasonWeek(cc, calendarWeek)
	switch {
	case sw == 0:
		return domain.StagePreSeason
	case sw <= cc.Stages.PlantingEnd:
		return domain.StagePlanting
	case sw <= cc.Stages.VegetativeEnd:
		return domain.StageVegetative
	case sw <= cc.Stages.ReproductiveEnd:
		return domain.StageReproductive
	default:
		return domain.StageMaturity
	}
}

// PlantingDate returns the Monday of the crop's planting week for the given
// harvest year. Winter crops plant in the preceding fall.
func PlantingDate(cc config.CropConfig, harvestYear int) time.Time {
	year := harvestYear
	if cc.WinterCrop {
		year = harvestYear - 1
	}
	return mondayOfISOWeek(year, cc.PlantingWeek)
}

// WeekEnd returns the Sunday that closes the given ISO calendar week of the
// harvest year.
func WeekEnd(harvestYear, calendarWeek int) time.Time {
	return mondayOfISOWeek(harvestYear, calendarWeek).AddDate(0, 0, 6)
}

// InCriticalWindow reports whether the calendar week falls inside the crop's
// drought-critical growth window.
func InCriticalWindow(cc config.CropConfig, calendarWeek int) bool {
	sw := SeasonWeek(cc, calendarWeek)
	return sw >= cc.CriticalWindowStart && sw <= cc.CriticalWindowEnd
}

// mondayOfISOWeek returns the Monday of the given ISO week. January 4 is
// always in ISO week 1, which anchors the computation.
func mondayOfISOWeek(year, week int) time.Time {
	jan4 := time.Date(year, time.January, 4, 0, 0, 0, 0, time.UTC)
	weekday := int(jan4.Weekday())
	if weekday == 0 {
		weekday = 7 // Sunday
	}
	week1Monday := jan4.AddDate(0, 0, -(weekday - 1))
	return week1Monday.AddDate(0, 0, (week-1)*7)
}
