package features

import (
	"time"

	"cropcast/internal/config"
	"cropcast/internal/sources"
)

// DailyGDD computes one day's growing degree units. Daily max is clipped to
// the crop cap and daily min raised to the crop base before averaging, the
// standard single-sine-free approximation; a day whose clipped average falls
// below base contributes zero, so accumulation never decreases.
func DailyGDD(maxC, minC float64, cc config.CropConfig) float64 {
	if maxC > cc.GDDCapC {
		maxC = cc.GDDCapC
	}
	if minC < cc.GDDBaseC {
		minC = cc.GDDBaseC
	}
	avg := (maxC + minC) / 2
	if avg <= cc.GDDBaseC {
		return 0
	}
	return avg - cc.GDDBaseC
}

// WeatherAggregates summarizes a state's daily weather between planting and
// the target week for the feature row.
type WeatherAggregates struct {
	CumGDD       float64
	CumPrecipMM  float64
	AvgTempC     float64
	DaysCovered  int
	HeatDays     int
	FrostEvents  int
	MaxConsecDry int
}

// Aggregate accumulates GDD, precipitation, and stress counts over daily
// observations in [from, to]. Days with missing temperatures contribute
// nothing to temperature-derived sums; days with missing precipitation break
// (rather than extend) a dry spell, so gaps cannot fabricate droughts.
// criticalWeek reports whether a date's calendar week sits inside the crop's
// drought-critical window.
func Aggregate(days []sources.WeatherDay, cc config.CropConfig, from, to time.Time, criticalWeek func(time.Time) bool) WeatherAggregates {
	var agg WeatherAggregates
	var tempSum float64
	var tempDays int
	var dryRun int

	for _, d := range days {
		if d.Date.Before(from) || d.Date.After(to) {
			continue
		}

		if d.MaxTempC != nil && d.MinTempC != nil {
			agg.CumGDD += DailyGDD(*d.MaxTempC, *d.MinTempC, cc)
			tempSum += (*d.MaxTempC + *d.MinTempC) / 2
			tempDays++

			if *d.MaxTempC >= cc.HeatStressC {
				agg.HeatDays++
			}
			if *d.MinTempC <= cc.FrostC {
				agg.FrostEvents++
			}
		}

		if d.PrecipMM != nil {
			agg.CumPrecipMM += *d.PrecipMM
			if *d.PrecipMM < cc.DroughtDailyMM && criticalWeek != nil && criticalWeek(d.Date) {
				dryRun++
				if dryRun > agg.MaxConsecDry {
					agg.MaxConsecDry = dryRun
				}
			} else {
				dryRun = 0
			}
		} else {
			dryRun = 0
		}

		agg.DaysCovered++
	}

	if tempDays > 0 {
		agg.AvgTempC = tempSum / float64(tempDays)
	}
	return agg
}

// DeviationPct returns (actual - normal) / normal * 100, or 0 when the
// normal is not positive.
func DeviationPct(actual, normal float64) float64 {
	if normal <= 0 {
		return 0
	}
	return (actual - normal) / normal * 100
}
