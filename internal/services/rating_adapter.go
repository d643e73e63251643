package services

import (
	"context"
	"errors"
	"math"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/temcen/tripwise/internal/ml"
)

// RatingAdapter scores candidates with the collaborative rating predictor.
type RatingAdapter struct {
	concurrency int
	metrics     *MetricsCollector
	logger      *logrus.Logger
}

func NewRatingAdapter(concurrency int, metrics *MetricsCollector, logger *logrus.Logger) *RatingAdapter {
	if concurrency < 1 {
		concurrency = 1
	}
	return &RatingAdapter{
		concurrency: concurrency,
		metrics:     metrics,
		logger:      logger,
	}
}

func (a *RatingAdapter) Name() string { return SignalCF }

// Score predicts every candidate on a bounded worker group. A failed item
// scores NaN and never cancels its siblings; the adapter only fails when
// no item could be predicted.
func (a *RatingAdapter) Score(ctx context.Context, req *SignalRequest) (ScoreVector, error) {
	predictor := req.Data.Models.Predictor
	if predictor == nil {
		return nil, &DataUnavailableError{Signal: SignalCF, Resource: "rating predictor", Err: req.Data.Models.PredictorErr}
	}

	scores := make([]float64, len(req.Candidates))
	errs := make([]error, len(req.Candidates))

	var g errgroup.Group
	g.SetLimit(a.concurrency)
	for i, itemID := range req.Candidates {
		g.Go(func() error {
			r, err := predictor.Predict(ctx, req.UserID, itemID)
			if err != nil {
				scores[i] = math.NaN()
				errs[i] = err
				return nil
			}
			scores[i] = r
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	vector := make(ScoreVector, len(req.Candidates))
	failed, unknownUser := 0, 0
	for i, itemID := range req.Candidates {
		vector[itemID] = scores[i]
		if errs[i] == nil {
			continue
		}
		failed++
		reason := "error"
		switch {
		case errors.Is(errs[i], ml.ErrUnknownUser):
			unknownUser++
			reason = "unknown_user"
		case errors.Is(errs[i], ml.ErrUnknownItem):
			reason = "unknown_item"
		}
		a.metrics.RecordPredictionFailure(reason)
	}

	if failed > 0 {
		a.logger.WithFields(logrus.Fields{
			"user_id":    req.UserID,
			"candidates": len(req.Candidates),
			"failed":     failed,
		}).Debug("Rating predictions missing for some candidates")
	}

	if len(req.Candidates) > 0 && failed == len(req.Candidates) {
		if unknownUser == failed {
			return nil, &UnknownEntityError{Kind: "user", ID: req.UserID}
		}
		return nil, &DataUnavailableError{Signal: SignalCF, Resource: "rating predictions", Err: errs[0]}
	}

	return vector, nil
}
