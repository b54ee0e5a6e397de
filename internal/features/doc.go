// Package features builds the weekly per-state per-crop feature vectors the
// prediction models consume. It fuses station weather, national gridded
// condition/progress indices, state tabular surveys, and the optional
// vegetation and free-text outlook feeds into one fixed-schema row per
// (state, crop, year, week).
//
// The engine degrades instead of failing: a source that is missing, stale,
// or erroring nulls its feature group and the row is still upserted. Only
// store failures and context cancellation abort a build.
package features
