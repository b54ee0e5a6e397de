// Package operations orchestrates the weekly forecast pipeline: source
// freshness checks, feature building, artifact training, per-unit
// prediction, and national aggregation, executed as ordered stages over a
// bounded worker pool.
//
// A unit is one (state, crop) pair. Unit failures are retried once and then
// isolated: the run finishes partial rather than failing outright, and every
// failed unit is named in the run record.
package operations
