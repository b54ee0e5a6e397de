// Package model implements the three-sub-model forecasting ensemble and its
// training, artifact, and aggregation machinery.
//
// The sub-models share one feature table but consume distinct subsets:
//
//   - Model A (trend_adjusted): ordinary least squares over a handful of
//     interpretable features, predicting a deviation from the pre-fit trend
//     yield.
//   - Model B (gradient_boost): gradient-boosted regression trees over the
//     full standardized feature vector with native missing-value routing and
//     split-gain feature importance.
//   - Model C (analog_year): inverse-distance-weighted k-nearest historical
//     years in standardized feature space at the same week, with the analog
//     identities kept for narrative explanation.
//
// Stage-dependent weights blend the three into the published ensemble
// forecast; interval widths scale the cross-validated RMSE by a
// week-dependent multiplier that shrinks toward harvest.
//
// Trained parameters live in immutable versioned Artifacts published through
// an atomic pointer swap, so concurrent readers never observe a partially
// written model.
package model
