// Package config loads and validates the forecasting engine configuration.
//
// Configuration merges three layers, later layers winning: built-in defaults,
// an optional YAML file, and CROPCAST_* environment variables. Per-crop
// agronomic parameters (GDD base/cap, stress thresholds, growth-stage
// calendars) are strongly typed and validated at load time with
// go-playground/validator, so a bad threshold fails startup instead of the
// first feature build that touches it.
package config
