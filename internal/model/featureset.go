package model

import (
	"cropcast/internal/domain"
)

// Canonical feature column names shared by the scaler, the sub-models, and
// the importance/driver reporting.
const (
	FeatGDDDev    = "gdd_deviation_pct"
	FeatPrecipDev = "precip_deviation_pct"
	FeatCondition = "condition_pct_good_excellent"
	FeatHeatDays  = "heat_stress_days"
	FeatDryDays   = "max_consec_dry_days"
	FeatFrost     = "frost_events"
	FeatProgress  = "progress_pct"
	FeatCondDelta = "condition_wow_delta"
	FeatNatCond   = "national_condition_index"
	FeatNatProg   = "national_progress_index"
	FeatNDVIAnom  = "ndvi_anomaly"
	FeatTextRisk  = "text_risk_score"
	FeatTextSent  = "text_sentiment"
)

// FullFeatureSet is the complete ordered column list Model B trains on.
func FullFeatureSet() []string {
	return []string{
		FeatGDDDev, FeatPrecipDev, FeatCondition, FeatHeatDays, FeatDryDays,
		FeatFrost, FeatProgress, FeatCondDelta, FeatNatCond, FeatNatProg,
		FeatNDVIAnom, FeatTextRisk, FeatTextSent,
	}
}

// LinearFeatureSet is Model A's small interpretable subset.
func LinearFeatureSet() []string {
	return []string{FeatGDDDev, FeatPrecipDev, FeatCondition, FeatHeatDays}
}

// AnalogFeatureSet is Model C's reduced weather/condition subset.
func AnalogFeatureSet() []string {
	return []string{FeatGDDDev, FeatPrecipDev, FeatCondition, FeatHeatDays, FeatDryDays, FeatNatCond}
}

// FeatureValue reads one named column from a vector, nil when the column is
// missing. Integer columns are widened to float64.
func FeatureValue(fv domain.FeatureVector, name string) *float64 {
	switch name {
	case FeatGDDDev:
		return fv.GDDDeviationPct
	case FeatPrecipDev:
		return fv.PrecipDevPct
	case FeatCondition:
		return fv.ConditionPctGE
	case FeatHeatDays:
		return intPtr(fv.HeatStressDays)
	case FeatDryDays:
		return intPtr(fv.MaxConsecDryDays)
	case FeatFrost:
		return intPtr(fv.FrostEvents)
	case FeatProgress:
		return fv.ProgressPct
	case FeatCondDelta:
		return fv.ConditionDelta
	case FeatNatCond:
		return fv.NationalConditionIndex
	case FeatNatProg:
		return fv.NationalProgressIndex
	case FeatNDVIAnom:
		return fv.NDVIAnomaly
	case FeatTextRisk:
		return fv.TextRiskScore
	case FeatTextSent:
		return fv.TextSentiment
	default:
		return nil
	}
}

// Extract reads the named columns from a vector in order.
func Extract(fv domain.FeatureVector, names []string) []*float64 {
	out := make([]*float64, len(names))
	for i, name := range names {
		out[i] = FeatureValue(fv, name)
	}
	return out
}

func intPtr(v *int) *float64 {
	if v == nil {
		return nil
	}
	f := float64(*v)
	return &f
}
