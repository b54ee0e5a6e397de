// Package validation backtests the forecasting ensemble with
// leave-one-year-out replays at fixed in-season weeks, scores it against
// naive benchmarks, decomposes its bias by state, season phase, and extreme
// years, and applies the configured accuracy gates.
package validation
