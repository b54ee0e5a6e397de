package config

// StageCalendar expresses growth-stage boundaries in season weeks, i.e.
// weeks elapsed since the crop's planting week. Using season weeks keeps one
// calendar shape working for both spring-sown and winter-sown crops; the
// fall-to-summer span of a winter crop is absorbed by the calendar-week to
// season-week mapping, not by the stage table.
type StageCalendar struct {
	PlantingEnd     int `yaml:"planting_end" validate:"gt=0"`                      // last season week of planting
	VegetativeEnd   int `yaml:"vegetative_end" validate:"gtfield=PlantingEnd"`     // last season week of vegetative growth
	ReproductiveEnd int `yaml:"reproductive_end" validate:"gtfield=VegetativeEnd"` // last season week of reproductive growth
	MaturityEnd     int `yaml:"maturity_end" validate:"gtfield=ReproductiveEnd"`   // season length in weeks
}

// CropConfig carries the per-crop agronomic parameters used by the feature
// engine. All temperatures are Celsius, precipitation is millimeters.
type CropConfig struct {
	// GDD accumulation bounds: daily degree units are clipped to [Base, Cap].
	GDDBaseC float64 `yaml:"gdd_base_c" validate:"gte=-5,lte=15"`
	GDDCapC  float64 `yaml:"gdd_cap_c" validate:"gtfield=GDDBaseC"`

	// Stress thresholds.
	HeatStressC    float64 `yaml:"heat_stress_c" validate:"gt=20"`   // daily max above this counts a heat-stress day
	DroughtDailyMM float64 `yaml:"drought_daily_mm" validate:"gt=0"` // daily precip below this counts toward a dry spell
	FrostC         float64 `yaml:"frost_c" validate:"lte=4"`         // daily min below this after planting counts a frost event

	// Season anchoring. PlantingWeek is the ISO calendar week planting
	// typically begins; winter crops anchor in the prior fall and the
	// season-week mapping wraps the year boundary.
	PlantingWeek int  `yaml:"planting_week" validate:"gte=1,lte=53"`
	WinterCrop   bool `yaml:"winter_crop"`

	Stages StageCalendar `yaml:"stages"`

	// CriticalWindow bounds (in season weeks) the growth window inside which
	// consecutive dry days are counted.
	CriticalWindowStart int `yaml:"critical_window_start" validate:"gte=0"`
	CriticalWindowEnd   int `yaml:"critical_window_end" validate:"gtfield=CriticalWindowStart"`

	// Climatological normals, expressed per season week so cumulative
	// normals scale linearly with season progress.
	NormalGDDPerWeek      float64 `yaml:"normal_gdd_per_week" validate:"gt=0"`
	NormalPrecipMMPerWeek float64 `yaml:"normal_precip_mm_per_week" validate:"gt=0"`

	// NDVI climatological baseline for the anomaly column.
	NDVIBaseline float64 `yaml:"ndvi_baseline" validate:"gte=0,lte=1"`
}

// DefaultCropConfigs returns the built-in calendars and thresholds for the
// supported commodities. A YAML file may override any field per crop.
func DefaultCropConfigs() map[string]CropConfig {
	return map[string]CropConfig{
		"corn": {
			GDDBaseC:              10,
			GDDCapC:               30,
			HeatStressC:           34,
			DroughtDailyMM:        1.0,
			FrostC:                0,
			PlantingWeek:          17, // late April
			Stages:                StageCalendar{PlantingEnd: 4, VegetativeEnd: 10, ReproductiveEnd: 16, MaturityEnd: 24},
			CriticalWindowStart:   10, // silking through grain fill
			CriticalWindowEnd:     16,
			NormalGDDPerWeek:      105,
			NormalPrecipMMPerWeek: 25,
			NDVIBaseline:          0.62,
		},
		"soybeans": {
			GDDBaseC:              10,
			GDDCapC:               30,
			HeatStressC:           35,
			DroughtDailyMM:        1.0,
			FrostC:                0,
			PlantingWeek:          19, // mid May
			Stages:                StageCalendar{PlantingEnd: 4, VegetativeEnd: 9, ReproductiveEnd: 15, MaturityEnd: 22},
			CriticalWindowStart:   9, // pod set and fill
			CriticalWindowEnd:     15,
			NormalGDDPerWeek:      98,
			NormalPrecipMMPerWeek: 24,
			NDVIBaseline:          0.58,
		},
		"winter_wheat": {
			GDDBaseC:              0,
			GDDCapC:               26,
			HeatStressC:           30,
			DroughtDailyMM:        0.8,
			FrostC:                -4, // winterkill threshold, post-dormancy
			PlantingWeek:          39, // fall seeding
			WinterCrop:            true,
			Stages:                StageCalendar{PlantingEnd: 6, VegetativeEnd: 28, ReproductiveEnd: 36, MaturityEnd: 40},
			CriticalWindowStart:   28, // heading through grain fill
			CriticalWindowEnd:     36,
			NormalGDDPerWeek:      55,
			NormalPrecipMMPerWeek: 14,
			NDVIBaseline:          0.48,
		},
	}
}
