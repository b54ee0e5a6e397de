// Package errors defines the error taxonomy for the forecasting engine.
//
// Every error carries enough context (state, crop, year, week, source) to
// reproduce the failing lookup. Callers branch on the category with the
// As* helpers or errors.As; the categories map directly to recovery rules:
//
//   - MissingDataError: non-fatal, degrade the affected feature group.
//   - InsufficientHistoryError: skip trend fitting, fall back to a coarser
//     aggregate.
//   - ModelNotTrainedError: fatal for that crop only.
//   - InconsistentFeatureError: log and prefer the most recent source.
package errors

import (
	"errors"
	"fmt"
)

// MissingDataError reports that a required source series is absent for a key.
// Non-fatal: the affected feature group is nulled, not the whole row.
type MissingDataError struct {
	Source string // e.g. "weather", "gridded_index", "survey"
	State  string
	Crop   string
	Year   int
	Week   int
}

// Error implements the error interface.
func (e *MissingDataError) Error() string {
	return fmt.Sprintf("missing %s data for state=%s crop=%s year=%d week=%d",
		e.Source, e.State, e.Crop, e.Year, e.Week)
}

// InsufficientHistoryError reports fewer than the configured minimum years of
// yield history for a (commodity, state) trend fit.
type InsufficientHistoryError struct {
	Commodity string
	State     string
	Years     int
	MinYears  int
}

// Error implements the error interface.
func (e *InsufficientHistoryError) Error() string {
	return fmt.Sprintf("insufficient yield history for %s/%s: %d years, need %d",
		e.Commodity, e.State, e.Years, e.MinYears)
}

// ModelNotTrainedError reports a prediction request against a crop with no
// published artifact. Fatal for that crop only.
type ModelNotTrainedError struct {
	Crop string
}

// Error implements the error interface.
func (e *ModelNotTrainedError) Error() string {
	return fmt.Sprintf("no published model artifact for crop %s", e.Crop)
}

// InconsistentFeatureError reports contradictory source values for one key.
// The builder logs it and keeps the most recent source.
type InconsistentFeatureError struct {
	Field    string
	State    string
	Crop     string
	Year     int
	Week     int
	Older    float64
	Newer    float64
	KeptFrom string // source whose value was kept
}

// Error implements the error interface.
func (e *InconsistentFeatureError) Error() string {
	return fmt.Sprintf("inconsistent %s for state=%s crop=%s year=%d week=%d: %.3f vs %.3f (kept %s)",
		e.Field, e.State, e.Crop, e.Year, e.Week, e.Older, e.Newer, e.KeptFrom)
}

// IsMissingData reports whether err is (or wraps) a MissingDataError.
func IsMissingData(err error) bool {
	var target *MissingDataError
	return errors.As(err, &target)
}

// IsInsufficientHistory reports whether err is (or wraps) an
// InsufficientHistoryError.
func IsInsufficientHistory(err error) bool {
	var target *InsufficientHistoryError
	return errors.As(err, &target)
}

// IsModelNotTrained reports whether err is (or wraps) a ModelNotTrainedError.
func IsModelNotTrained(err error) bool {
	var target *ModelNotTrainedError
	return errors.As(err, &target)
}

// IsInconsistentFeature reports whether err is (or wraps) an
// InconsistentFeatureError.
func IsInconsistentFeature(err error) bool {
	var target *InconsistentFeatureError
	return errors.As(err, &target)
}
