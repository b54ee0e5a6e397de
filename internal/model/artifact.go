package model

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"cropcast/internal/domain"
	apperrors "cropcast/internal/errors"
)

// CVMetrics summarizes leave-one-year-out cross-validation for one crop.
type CVMetrics struct {
	Folds    int                          `json:"folds"`
	RMSE     float64                      `json:"rmse"`
	MAE      float64                      `json:"mae"`
	R2       float64                      `json:"r2"`
	PerModel map[domain.ModelType]float64 `json:"per_model_rmse"`
}

// Artifact is one immutable trained model bundle for a crop. Everything a
// prediction needs lives here so a forecast can always be traced back to the
// exact parameters that produced it.
type Artifact struct {
	Version   string      `json:"version"`
	Crop      domain.Crop `json:"crop"`
	TrainedAt time.Time   `json:"trained_at"`

	Trends map[string]domain.TrendCoefficients `json:"trends"` // by state

	Scaler *Scaler             `json:"scaler"`
	Linear *TrendAdjustedModel `json:"linear"`
	GBT    *GradientBoostModel `json:"gbt"`
	Analog *AnalogModel        `json:"analog"`

	CV CVMetrics `json:"cv"`

	TrainYears []int `json:"train_years"`
}

// TrendFor returns the trend for a state, falling back through the artifact's
// national entry when the state has none.
func (a *Artifact) TrendFor(state string) (domain.TrendCoefficients, bool) {
	if t, ok := a.Trends[state]; ok {
		return t, true
	}
	t, ok := a.Trends[nationalTrendKey]
	return t, ok
}

const nationalTrendKey = "_national"

// Registry holds the latest published artifact per crop. Publication is an
// atomic pointer swap; readers in flight keep whatever version they resolved
// and are never exposed to a half-written artifact. TrainLock serializes
// training per crop so two trainers cannot interleave publishes.
type Registry struct {
	mu        sync.Mutex
	artifacts map[domain.Crop]*atomic.Pointer[Artifact]
	training  map[domain.Crop]*sync.Mutex
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		artifacts: make(map[domain.Crop]*atomic.Pointer[Artifact]),
		training:  make(map[domain.Crop]*sync.Mutex),
	}
}

// Latest resolves the current artifact for a crop. Prediction without a
// published artifact is a hard error, never a silent fallback.
func (r *Registry) Latest(crop domain.Crop) (*Artifact, error) {
	r.mu.Lock()
	ptr := r.artifacts[crop]
	r.mu.Unlock()

	if ptr == nil {
		return nil, &apperrors.ModelNotTrainedError{Crop: crop.String()}
	}
	a := ptr.Load()
	if a == nil {
		return nil, &apperrors.ModelNotTrainedError{Crop: crop.String()}
	}
	return a, nil
}

// Publish stamps the artifact with a fresh version and swaps it in as the
// crop's latest.
func (r *Registry) Publish(a *Artifact, now time.Time) string {
	a.Version = uuid.NewString()
	a.TrainedAt = now

	r.mu.Lock()
	ptr := r.artifacts[a.Crop]
	if ptr == nil {
		ptr = &atomic.Pointer[Artifact]{}
		r.artifacts[a.Crop] = ptr
	}
	r.mu.Unlock()

	ptr.Store(a)
	return a.Version
}

// TrainLock returns the per-crop training mutex. Callers hold it for the full
// train-validate-publish sequence.
func (r *Registry) TrainLock(crop domain.Crop) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	m := r.training[crop]
	if m == nil {
		m = &sync.Mutex{}
		r.training[crop] = m
	}
	return m
}
