package services

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/sirupsen/logrus"

	"github.com/temcen/tripwise/internal/ml"
)

// SimilarityAdapter scores candidates by content similarity in item,
// query or profile mode.
type SimilarityAdapter struct {
	logger *logrus.Logger
}

func NewSimilarityAdapter(logger *logrus.Logger) *SimilarityAdapter {
	return &SimilarityAdapter{logger: logger}
}

func (a *SimilarityAdapter) Name() string { return SignalContent }

func (a *SimilarityAdapter) Score(ctx context.Context, req *SignalRequest) (ScoreVector, error) {
	index := req.Data.Models.Similarity
	if index == nil {
		return nil, &DataUnavailableError{Signal: SignalContent, Resource: "content index", Err: req.Data.Models.SimilarityErr}
	}

	var (
		scores map[string]float64
		err    error
	)

	switch req.ContentMode {
	case ContentModeItem:
		scores, err = index.ItemScores(ctx, req.ReferenceItemID, req.Candidates)
		if errors.Is(err, ml.ErrUnknownItem) {
			if !index.HasQueryTerms(req.QueryText) {
				return nil, &UnknownEntityError{Kind: "item", ID: req.ReferenceItemID}
			}
			a.logger.WithFields(logrus.Fields{
				"user_id":           req.UserID,
				"reference_item_id": req.ReferenceItemID,
			}).Debug("Unknown reference item, falling back to query similarity")
			scores, err = index.QueryScores(ctx, req.QueryText, req.Candidates)
		}

	case ContentModeQuery:
		if !index.HasQueryTerms(req.QueryText) {
			return nil, &DataUnavailableError{Signal: SignalContent, Resource: "query terms"}
		}
		scores, err = index.QueryScores(ctx, req.QueryText, req.Candidates)

	case ContentModeProfile:
		weights := make(map[string]float64, len(req.History))
		for _, in := range req.History {
			w := in.Strength
			if w <= 0 || math.IsNaN(w) {
				w = 1
			}
			weights[in.ItemID] += w
		}
		scores, err = index.ProfileScores(ctx, weights, req.Candidates)
		if errors.Is(err, ml.ErrUnknownItem) {
			return nil, &DataUnavailableError{Signal: SignalContent, Resource: "profile items", Err: err}
		}

	default:
		return nil, fmt.Errorf("unsupported content mode %q", req.ContentMode)
	}
	if err != nil {
		return nil, err
	}

	vector := make(ScoreVector, len(req.Candidates))
	for _, id := range req.Candidates {
		if s, ok := scores[id]; ok {
			vector[id] = s
		} else {
			vector[id] = math.NaN()
		}
	}
	return vector, nil
}
