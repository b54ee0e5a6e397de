package domain

import "time"

// RunKind distinguishes the three orchestrator entry points.
type RunKind string

const (
	RunKindWeekly   RunKind = "weekly"
	RunKindTrain    RunKind = "train"
	RunKindBacktest RunKind = "backtest"
)

// RunStatus is the terminal state of a model run.
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusPartial   RunStatus = "partial" // finished with isolated unit failures
	RunStatusFailed    RunStatus = "failed"
)

// ModelRun is the audit record of one training, prediction, or backtest
// execution.
type ModelRun struct {
	ID           string        `json:"id"`
	Kind         RunKind       `json:"kind"`
	Crops        []Crop        `json:"crops"`
	Year         int           `json:"year"`
	Week         int           `json:"week"`
	Status       RunStatus     `json:"status"`
	StartedAt    time.Time     `json:"started_at"`
	FinishedAt   time.Time     `json:"finished_at"`
	Duration     time.Duration `json:"duration"`
	FeatureRows  int           `json:"feature_rows"`
	Forecasts    int           `json:"forecasts"`
	FailedUnits  []string      `json:"failed_units,omitempty"` // "state/crop" pairs
	ErrorSummary string        `json:"error_summary,omitempty"`
}

// IsValid checks the audit record key fields.
func (r ModelRun) IsValid() bool {
	return r.ID != "" && (r.Kind == RunKindWeekly || r.Kind == RunKindTrain || r.Kind == RunKindBacktest)
}
