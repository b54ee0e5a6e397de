package config

import (
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"
)

// Config is the complete engine configuration.
type Config struct {
	Logging    LoggingConfig    `yaml:"logging" envconfig:"LOGGING"`
	Pipeline   PipelineConfig   `yaml:"pipeline" envconfig:"PIPELINE"`
	Sources    SourcesConfig    `yaml:"sources" envconfig:"SOURCES"`
	Model      ModelConfig      `yaml:"model" envconfig:"MODEL"`
	Validation ValidationConfig `yaml:"validation" envconfig:"VALIDATION"`
	Report     ReportConfig     `yaml:"report" envconfig:"REPORT"`

	// States forecast by weekly runs.
	States []string `yaml:"states" envconfig:"STATES" default:"IA,IL,NE,MN,IN,OH,SD,ND,KS,MO"`

	// Per-crop agronomic parameters, keyed by crop identifier. Populated
	// from DefaultCropConfigs and overridable via the YAML file only.
	Crops map[string]CropConfig `yaml:"crops" validate:"required,dive"`
}

// LoggingConfig controls the slog setup.
type LoggingConfig struct {
	Level    string `yaml:"level" envconfig:"LEVEL" default:"info" validate:"oneof=debug info warn error"`
	Output   string `yaml:"output" envconfig:"OUTPUT" default:"stdout" validate:"oneof=stdout file both"`
	FilePath string `yaml:"file_path" envconfig:"FILE_PATH" default:"logs/cropcast.log"`
}

// PipelineConfig bounds the weekly run's parallelism and fault handling.
type PipelineConfig struct {
	Workers      int           `yaml:"workers" envconfig:"WORKERS" default:"8" validate:"gte=1,lte=64"`
	UnitRetries  int           `yaml:"unit_retries" envconfig:"UNIT_RETRIES" default:"1" validate:"gte=0,lte=5"`
	StageTimeout time.Duration `yaml:"stage_timeout" envconfig:"STAGE_TIMEOUT" default:"30m"`
	RunTimeout   time.Duration `yaml:"run_timeout" envconfig:"RUN_TIMEOUT" default:"2h"`
}

// SourcesConfig controls external data source access: query timeouts, fetch
// throttling, and the staleness budgets used by the freshness check.
type SourcesConfig struct {
	QueryTimeout time.Duration `yaml:"query_timeout" envconfig:"QUERY_TIMEOUT" default:"30s"`
	RateRPS      float64       `yaml:"rate_rps" envconfig:"RATE_RPS" default:"5" validate:"gt=0"`
	RateBurst    int           `yaml:"rate_burst" envconfig:"RATE_BURST" default:"10" validate:"gte=1"`

	WeatherMaxAge    time.Duration `yaml:"weather_max_age" envconfig:"WEATHER_MAX_AGE" default:"72h"`
	GriddedMaxAge    time.Duration `yaml:"gridded_max_age" envconfig:"GRIDDED_MAX_AGE" default:"240h"`
	SurveyMaxAge     time.Duration `yaml:"survey_max_age" envconfig:"SURVEY_MAX_AGE" default:"240h"`
	VegetationMaxAge time.Duration `yaml:"vegetation_max_age" envconfig:"VEGETATION_MAX_AGE" default:"336h"`
}

// StageWeights holds the ensemble blend for one growth stage. Weights must
// sum to 1 for every stage.
type StageWeights struct {
	Trend  float64 `yaml:"trend" validate:"gte=0,lte=1"`
	GBT    float64 `yaml:"gbt" validate:"gte=0,lte=1"`
	Analog float64 `yaml:"analog" validate:"gte=0,lte=1"`
}

// Sum returns the total of the three weights.
func (w StageWeights) Sum() float64 {
	return w.Trend + w.GBT + w.Analog
}

// IntervalMultiplier scales the CV RMSE into an interval half-width for
// forecast weeks up to and including MaxWeek.
type IntervalMultiplier struct {
	MaxWeek    int     `yaml:"max_week" validate:"gte=1,lte=53"`
	Multiplier float64 `yaml:"multiplier" validate:"gt=0"`
}

// ModelConfig carries the sub-model hyperparameters and the ensemble blend.
type ModelConfig struct {
	TrendMinYears    int `yaml:"trend_min_years" envconfig:"TREND_MIN_YEARS" default:"10" validate:"gte=3"`
	TrendWindowYears int `yaml:"trend_window_years" envconfig:"TREND_WINDOW_YEARS" default:"25" validate:"gte=5"`

	GBTTrees        int     `yaml:"gbt_trees" envconfig:"GBT_TREES" default:"200" validate:"gte=10"`
	GBTMaxDepth     int     `yaml:"gbt_max_depth" envconfig:"GBT_MAX_DEPTH" default:"3" validate:"gte=1,lte=8"`
	GBTLearningRate float64 `yaml:"gbt_learning_rate" envconfig:"GBT_LEARNING_RATE" default:"0.05" validate:"gt=0,lte=1"`
	GBTMinLeaf      int     `yaml:"gbt_min_leaf" envconfig:"GBT_MIN_LEAF" default:"2" validate:"gte=1"`

	AnalogK int `yaml:"analog_k" envconfig:"ANALOG_K" default:"5" validate:"gte=1"`

	// Weights keyed by growth stage; every entry must sum to 1.
	EnsembleWeights map[string]StageWeights `yaml:"ensemble_weights" validate:"required"`

	// Interval half-width = CV RMSE x multiplier; multipliers must be
	// non-increasing as MaxWeek increases (uncertainty shrinks in-season).
	IntervalMultipliers []IntervalMultiplier `yaml:"interval_multipliers" validate:"required,min=1"`

	// Text-signal risk decay: event weight falls linearly to zero over this
	// many weeks of age. A tunable heuristic, not a calibrated law.
	TextRiskDecayWeeks int `yaml:"text_risk_decay_weeks" envconfig:"TEXT_RISK_DECAY_WEEKS" default:"6" validate:"gte=1"`
}

// AccuracyGate is a pass/fail RMSE ceiling for backtest forecasts made at or
// before MaxWeek. Ceilings tighten as the season progresses.
type AccuracyGate struct {
	MaxWeek     int     `yaml:"max_week" validate:"gte=1,lte=53"`
	RMSECeiling float64 `yaml:"rmse_ceiling" validate:"gt=0"`
}

// ValidationConfig drives the backtester.
type ValidationConfig struct {
	ForecastWeeks []int          `yaml:"forecast_weeks" envconfig:"FORECAST_WEEKS" default:"18,22,26,30,34,38"`
	Gates         []AccuracyGate `yaml:"gates" validate:"required,min=1"`

	// Years whose absolute trend deviation exceeds this many CV RMSEs are
	// treated as the extreme stratum in the bias decomposition.
	ExtremeYearSigma float64 `yaml:"extreme_year_sigma" envconfig:"EXTREME_YEAR_SIGMA" default:"1.5" validate:"gt=0"`
}

// ReportConfig controls run report output.
type ReportConfig struct {
	OutputDir   string `yaml:"output_dir" envconfig:"OUTPUT_DIR" default:"reports"`
	ExcelExport bool   `yaml:"excel_export" envconfig:"EXCEL_EXPORT" default:"true"`
	TopRiskN    int    `yaml:"top_risk_n" envconfig:"TOP_RISK_N" default:"5" validate:"gte=1"`
}

// Load builds the configuration from defaults, the optional YAML file at
// path (empty path skips the file layer), and CROPCAST_* environment
// variables, then validates the result.
func Load(path string) (*Config, error) {
	cfg := defaults()

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			data, err := os.ReadFile(path)
			if err != nil {
				return nil, fmt.Errorf("read config file: %w", err)
			}
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config file: %w", err)
			}
		}
	}

	if err := envconfig.Process("CROPCAST", cfg); err != nil {
		return nil, fmt.Errorf("load config from env: %w", err)
	}

	if len(cfg.Crops) == 0 {
		cfg.Crops = DefaultCropConfigs()
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// defaults returns the built-in configuration before file and env layers.
func defaults() *Config {
	return &Config{
		Crops: DefaultCropConfigs(),
		Model: ModelConfig{
			EnsembleWeights:     DefaultEnsembleWeights(),
			IntervalMultipliers: DefaultIntervalMultipliers(),
		},
		Validation: ValidationConfig{
			Gates: DefaultAccuracyGates(),
		},
	}
}

// DefaultEnsembleWeights returns the stage-dependent blend: pre-season leans
// on the stable trend model, the reproductive stage shifts toward the
// nonlinear model, and maturity moderates back toward trend plus analog.
func DefaultEnsembleWeights() map[string]StageWeights {
	return map[string]StageWeights{
		"pre_season":   {Trend: 0.70, GBT: 0.15, Analog: 0.15},
		"planting":     {Trend: 0.55, GBT: 0.25, Analog: 0.20},
		"vegetative":   {Trend: 0.40, GBT: 0.35, Analog: 0.25},
		"reproductive": {Trend: 0.20, GBT: 0.55, Analog: 0.25},
		"maturity":     {Trend: 0.30, GBT: 0.40, Analog: 0.30},
	}
}

// DefaultIntervalMultipliers returns the week-dependent interval scaling,
// shrinking monotonically toward harvest.
func DefaultIntervalMultipliers() []IntervalMultiplier {
	return []IntervalMultiplier{
		{MaxWeek: 20, Multiplier: 2.00},
		{MaxWeek: 26, Multiplier: 1.70},
		{MaxWeek: 32, Multiplier: 1.40},
		{MaxWeek: 38, Multiplier: 1.15},
		{MaxWeek: 53, Multiplier: 1.00},
	}
}

// DefaultAccuracyGates returns RMSE ceilings that tighten by forecast week.
func DefaultAccuracyGates() []AccuracyGate {
	return []AccuracyGate{
		{MaxWeek: 22, RMSECeiling: 18},
		{MaxWeek: 30, RMSECeiling: 14},
		{MaxWeek: 38, RMSECeiling: 10},
		{MaxWeek: 53, RMSECeiling: 9},
	}
}

// Validate runs struct-tag validation plus the cross-field invariants the
// tags cannot express.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("struct validation: %w", err)
	}

	for crop, cc := range c.Crops {
		if cc.CriticalWindowEnd > cc.Stages.MaturityEnd {
			return fmt.Errorf("crop %s: critical window extends past season end (%d > %d)",
				crop, cc.CriticalWindowEnd, cc.Stages.MaturityEnd)
		}
	}

	requiredStages := []string{"pre_season", "planting", "vegetative", "reproductive", "maturity"}
	for _, stage := range requiredStages {
		w, ok := c.Model.EnsembleWeights[stage]
		if !ok {
			return fmt.Errorf("ensemble weights missing stage %q", stage)
		}
		if s := w.Sum(); s < 0.999 || s > 1.001 {
			return fmt.Errorf("ensemble weights for stage %q sum to %.4f, want 1", stage, s)
		}
	}

	mults := c.Model.IntervalMultipliers
	sort.Slice(mults, func(i, j int) bool { return mults[i].MaxWeek < mults[j].MaxWeek })
	for i := 1; i < len(mults); i++ {
		if mults[i].Multiplier > mults[i-1].Multiplier {
			return fmt.Errorf("interval multiplier for week<=%d (%.2f) exceeds earlier week<=%d (%.2f); multipliers must shrink in-season",
				mults[i].MaxWeek, mults[i].Multiplier, mults[i-1].MaxWeek, mults[i-1].Multiplier)
		}
	}

	gates := c.Validation.Gates
	sort.Slice(gates, func(i, j int) bool { return gates[i].MaxWeek < gates[j].MaxWeek })
	for i := 1; i < len(gates); i++ {
		if gates[i].RMSECeiling > gates[i-1].RMSECeiling {
			return fmt.Errorf("accuracy gate for week<=%d loosens the ceiling (%.2f > %.2f)",
				gates[i].MaxWeek, gates[i].RMSECeiling, gates[i-1].RMSECeiling)
		}
	}

	return nil
}

// CropConfigFor returns the configuration for the named crop.
func (c *Config) CropConfigFor(crop string) (CropConfig, error) {
	cc, ok := c.Crops[crop]
	if !ok {
		return CropConfig{}, fmt.Errorf("no configuration for crop %q", crop)
	}
	return cc, nil
}

// WeightsForStage returns the ensemble blend for a growth stage.
func (c *ModelConfig) WeightsForStage(stage string) (StageWeights, error) {
	w, ok := c.EnsembleWeights[stage]
	if !ok {
		return StageWeights{}, fmt.Errorf("no ensemble weights for stage %q", stage)
	}
	return w, nil
}

// MultiplierForWeek returns the interval multiplier applicable to a forecast
// week.
func (c *ModelConfig) MultiplierForWeek(week int) float64 {
	mults := make([]IntervalMultiplier, len(c.IntervalMultipliers))
	copy(mults, c.IntervalMultipliers)
	sort.Slice(mults, func(i, j int) bool { return mults[i].MaxWeek < mults[j].MaxWeek })
	for _, m := range mults {
		if week <= m.MaxWeek {
			return m.Multiplier
		}
	}
	if len(mults) == 0 {
		return 1
	}
	return mults[len(mults)-1].Multiplier
}

// CeilingForWeek returns the accuracy-gate RMSE ceiling for a forecast week.
func (v *ValidationConfig) CeilingForWeek(week int) (float64, bool) {
	gates := make([]AccuracyGate, len(v.Gates))
	copy(gates, v.Gates)
	sort.Slice(gates, func(i, j int) bool { return gates[i].MaxWeek < gates[j].MaxWeek })
	for _, g := range gates {
		if week <= g.MaxWeek {
			return g.RMSECeiling, true
		}
	}
	return 0, false
}
