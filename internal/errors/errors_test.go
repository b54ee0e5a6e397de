package errors

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMissingDataError(t *testing.T) {
	err := &MissingDataError{Source: "weather", State: "IA", Crop: "corn", Year: 2024, Week: 22}

	assert.Contains(t, err.Error(), "weather")
	assert.Contains(t, err.Error(), "IA")
	assert.Contains(t, err.Error(), "week=22")

	wrapped := fmt.Errorf("build features: %w", err)
	assert.True(t, IsMissingData(wrapped))
	assert.False(t, IsInsufficientHistory(wrapped))
}

func TestInsufficientHistoryError(t *testing.T) {
	err := &InsufficientHistoryError{Commodity: "soybeans", State: "ND", Years: 3, MinYears: 10}

	assert.Contains(t, err.Error(), "soybeans/ND")
	assert.True(t, IsInsufficientHistory(err))
	assert.True(t, IsInsufficientHistory(fmt.Errorf("fit trend: %w", err)))
}

func TestModelNotTrainedError(t *testing.T) {
	err := &ModelNotTrainedError{Crop: "winter_wheat"}

	assert.Contains(t, err.Error(), "winter_wheat")
	assert.True(t, IsModelNotTrained(err))
	assert.False(t, IsModelNotTrained(fmt.Errorf("other failure")))
}

func TestInconsistentFeatureError(t *testing.T) {
	err := &InconsistentFeatureError{
		Field: "condition_pct", State: "IL", Crop: "corn",
		Year: 2023, Week: 30, Older: 61, Newer: 58, KeptFrom: "survey",
	}

	assert.Contains(t, err.Error(), "condition_pct")
	assert.Contains(t, err.Error(), "kept survey")
	assert.True(t, IsInconsistentFeature(fmt.Errorf("merge: %w", err)))
}
