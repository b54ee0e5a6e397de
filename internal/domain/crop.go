package domain

// Crop identifies a forecastable commodity. The same identifier keys yield
// observations, feature vectors, model artifacts, and forecasts.
type Crop string

const (
	CropCorn        Crop = "corn"
	CropSoybeans    Crop = "soybeans"
	CropWinterWheat Crop = "winter_wheat"
)

// String returns the crop identifier.
func (c Crop) String() string {
	return string(c)
}

// IsValid reports whether the crop is one of the supported commodities.
func (c Crop) IsValid() bool {
	switch c {
	case CropCorn, CropSoybeans, CropWinterWheat:
		return true
	default:
		return false
	}
}

// GrowthStage classifies where in the season a given week falls for a crop.
type GrowthStage string

const (
	StagePreSeason    GrowthStage = "pre_season"
	StagePlanting     GrowthStage = "planting"
	StageVegetative   GrowthStage = "vegetative"
	StageReproductive GrowthStage = "reproductive"
	StageMaturity     GrowthStage = "maturity"
)

// IsValid reports whether the stage is a known growth stage.
func (g GrowthStage) IsValid() bool {
	switch g {
	case StagePreSeason, StagePlanting, StageVegetative, StageReproductive, StageMaturity:
		return true
	default:
		return false
	}
}
