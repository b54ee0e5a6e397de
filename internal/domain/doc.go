// Package domain defines the core data model for the crop yield forecasting
// engine: ground-truth yield observations, fitted trend coefficients, weekly
// engineered feature vectors, published forecasts, and run audit records.
//
// The types here are pure data with validation methods and carry no behavior
// beyond key construction and invariant checks. All weekly feature columns
// that can be absent for a given (state, crop, year, week) are modeled as
// pointers so that missing data stays an explicit, testable state rather than
// an ambiguous zero.
package domain
