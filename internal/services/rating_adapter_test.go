package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/temcen/tripwise/internal/ml"
)

func ratingRequest(predictor ml.RatingPredictor, candidates ...string) *SignalRequest {
	return &SignalRequest{
		UserID:     "u1",
		Candidates: candidates,
		Data:       &ReferenceData{Models: &ml.ModelSet{Predictor: predictor}},
	}
}

func TestRatingAdapter_Score(t *testing.T) {
	predictor := new(MockRatingPredictor)
	predictor.On("Predict", mock.Anything, "u1", "a").Return(4.5, nil)
	predictor.On("Predict", mock.Anything, "u1", "b").Return(2.0, nil)
	predictor.On("Predict", mock.Anything, "u1", "c").Return(0.0, fmt.Errorf("item c: %w", ml.ErrUnknownItem))

	metrics := NewMetricsCollector(prometheus.NewRegistry())
	adapter := NewRatingAdapter(2, metrics, newTestLogger())

	scores, err := adapter.Score(context.Background(), ratingRequest(predictor, "a", "b", "c"))
	require.NoError(t, err)

	assert.Equal(t, 4.5, scores["a"])
	assert.Equal(t, 2.0, scores["b"])
	assert.True(t, math.IsNaN(scores["c"]))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.predictionFailures.WithLabelValues("unknown_item")))
	predictor.AssertExpectations(t)
}

func TestRatingAdapter_AllUnknownUser(t *testing.T) {
	predictor := new(MockRatingPredictor)
	predictor.On("Predict", mock.Anything, "u1", mock.Anything).Return(0.0, fmt.Errorf("user u1: %w", ml.ErrUnknownUser))

	adapter := NewRatingAdapter(4, nil, newTestLogger())
	_, err := adapter.Score(context.Background(), ratingRequest(predictor, "a", "b"))

	var unknown *UnknownEntityError
	require.True(t, errors.As(err, &unknown))
	assert.Equal(t, "user", unknown.Kind)
}

func TestRatingAdapter_AllFailed(t *testing.T) {
	predictor := new(MockRatingPredictor)
	predictor.On("Predict", mock.Anything, "u1", mock.Anything).Return(0.0, errors.New("model crashed"))

	adapter := NewRatingAdapter(4, nil, newTestLogger())
	_, err := adapter.Score(context.Background(), ratingRequest(predictor, "a", "b"))

	var unavailable *DataUnavailableError
	require.True(t, errors.As(err, &unavailable))
	assert.Equal(t, SignalCF, unavailable.Signal)
}

func TestRatingAdapter_NoPredictor(t *testing.T) {
	adapter := NewRatingAdapter(4, nil, newTestLogger())
	req := &SignalRequest{
		UserID:     "u1",
		Candidates: CandidateSet{"a"},
		Data:       &ReferenceData{Models: &ml.ModelSet{PredictorErr: errors.New("missing file")}},
	}

	_, err := adapter.Score(context.Background(), req)
	var unavailable *DataUnavailableError
	require.True(t, errors.As(err, &unavailable))
	assert.Contains(t, err.Error(), "missing file")
}

func TestRatingAdapter_BoundedConcurrency(t *testing.T) {
	predictor := &MockRatingPredictor{delay: 5 * time.Millisecond}
	predictor.On("Predict", mock.Anything, "u1", mock.Anything).Return(3.0, nil)

	candidates := make([]string, 20)
	for i := range candidates {
		candidates[i] = fmt.Sprintf("item-%02d", i)
	}

	adapter := NewRatingAdapter(3, nil, newTestLogger())
	scores, err := adapter.Score(context.Background(), ratingRequest(predictor, candidates...))
	require.NoError(t, err)

	assert.Len(t, scores, 20)
	assert.LessOrEqual(t, int(predictor.maxInFlight), 3)
	predictor.AssertNumberOfCalls(t, "Predict", 20)
}

func TestRatingAdapter_CanceledContext(t *testing.T) {
	predictor := new(MockRatingPredictor)
	predictor.On("Predict", mock.Anything, "u1", mock.Anything).Return(3.0, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	adapter := NewRatingAdapter(2, nil, newTestLogger())
	_, err := adapter.Score(ctx, ratingRequest(predictor, "a"))
	assert.ErrorIs(t, err, context.Canceled)
}
