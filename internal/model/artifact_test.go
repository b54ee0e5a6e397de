package model

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cropcast/internal/domain"
	apperrors "cropcast/internal/errors"
)

func TestRegistryLatestBeforeTraining(t *testing.T) {
	reg := NewRegistry()

	_, err := reg.Latest(domain.CropCorn)
	require.Error(t, err)
	assert.True(t, apperrors.IsModelNotTrained(err))
}

func TestRegistryPublishAndResolve(t *testing.T) {
	reg := NewRegistry()
	now := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)

	v1 := reg.Publish(&Artifact{Crop: domain.CropCorn, Trends: map[string]domain.TrendCoefficients{}}, now)
	require.NotEmpty(t, v1)

	a, err := reg.Latest(domain.CropCorn)
	require.NoError(t, err)
	assert.Equal(t, v1, a.Version)
	assert.Equal(t, now, a.TrainedAt)

	// Each crop has its own slot.
	_, err = reg.Latest(domain.CropSoybeans)
	assert.True(t, apperrors.IsModelNotTrained(err))

	v2 := reg.Publish(&Artifact{Crop: domain.CropCorn, Trends: map[string]domain.TrendCoefficients{}}, now.Add(time.Hour))
	assert.NotEqual(t, v1, v2)

	a, err = reg.Latest(domain.CropCorn)
	require.NoError(t, err)
	assert.Equal(t, v2, a.Version)
}

func TestRegistryConcurrentPublishAndRead(t *testing.T) {
	reg := NewRegistry()
	now := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	reg.Publish(&Artifact{Crop: domain.CropCorn, Trends: map[string]domain.TrendCoefficients{}}, now)

	var wg sync.WaitGroup
	stop := make(chan struct{})

	// Writers republish while readers resolve; every resolved artifact must
	// be fully formed (version and trained-at always set together).
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				reg.Publish(&Artifact{
					Crop:   domain.CropCorn,
					Trends: map[string]domain.TrendCoefficients{},
				}, now.Add(time.Duration(i)*time.Second))
			}
		}(w)
	}

	for r := 0; r < 8; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				a, err := reg.Latest(domain.CropCorn)
				if assert.NoError(t, err) {
					assert.NotEmpty(t, a.Version)
					assert.False(t, a.TrainedAt.IsZero())
				}
			}
		}()
	}

	// Wait for writers, then release the readers.
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	close(stop)
	<-done
}

func TestArtifactTrendFallsBackToNational(t *testing.T) {
	a := &Artifact{
		Crop: domain.CropCorn,
		Trends: map[string]domain.TrendCoefficients{
			"IA":             {State: "IA", Intercept: 150},
			nationalTrendKey: {State: nationalTrendKey, Intercept: 120},
		},
	}

	tr, ok := a.TrendFor("IA")
	require.True(t, ok)
	assert.InDelta(t, 150.0, tr.Intercept, 1e-9)

	tr, ok = a.TrendFor("MT")
	require.True(t, ok)
	assert.InDelta(t, 120.0, tr.Intercept, 1e-9)

	delete(a.Trends, nationalTrendKey)
	_, ok = a.TrendFor("MT")
	assert.False(t, ok)
}

func TestTrainLockIsPerCrop(t *testing.T) {
	reg := NewRegistry()

	corn := reg.TrainLock(domain.CropCorn)
	soy := reg.TrainLock(domain.CropSoybeans)
	assert.NotSame(t, corn, soy)
	assert.Same(t, corn, reg.TrainLock(domain.CropCorn))
}
