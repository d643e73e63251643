package ml

import (
	"context"
	"fmt"

	"gonum.org/v1/gonum/floats"
)

// RatingPredictor estimates the rating a user would give an item.
// Unknown users or items return an error wrapping ErrUnknownUser/ErrUnknownItem.
type RatingPredictor interface {
	Predict(ctx context.Context, userID, itemID string) (float64, error)
}

// FactorEntry is a bias plus latent vector for one user or item.
type FactorEntry struct {
	Bias   float64   `json:"bias"`
	Vector []float64 `json:"vector"`
}

// PredictorArtifact is the on-disk form of a trained biased matrix factorization.
type PredictorArtifact struct {
	Version    string                 `json:"version"`
	GlobalMean float64                `json:"global_mean"`
	Factors    int                    `json:"factors"`
	Users      map[string]FactorEntry `json:"users"`
	Items      map[string]FactorEntry `json:"items"`
}

// MatrixFactorization predicts r(u,i) = mu + b_u + b_i + p_u . q_i.
type MatrixFactorization struct {
	version    string
	globalMean float64
	users      map[string]FactorEntry
	items      map[string]FactorEntry
	minRating  float64
	maxRating  float64
}

// NewMatrixFactorization checks factor dimensions and wraps the artifact.
// Predictions are clipped to [1, 5].
func NewMatrixFactorization(a *PredictorArtifact) (*MatrixFactorization, error) {
	for id, u := range a.Users {
		if len(u.Vector) != a.Factors {
			return nil, fmt.Errorf("user %q has %d factors, want %d", id, len(u.Vector), a.Factors)
		}
	}
	for id, it := range a.Items {
		if len(it.Vector) != a.Factors {
			return nil, fmt.Errorf("item %q has %d factors, want %d", id, len(it.Vector), a.Factors)
		}
	}

	return &MatrixFactorization{
		version:    a.Version,
		globalMean: a.GlobalMean,
		users:      a.Users,
		items:      a.Items,
		minRating:  1,
		maxRating:  5,
	}, nil
}

func (mf *MatrixFactorization) Predict(ctx context.Context, userID, itemID string) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	u, ok := mf.users[userID]
	if !ok {
		return 0, fmt.Errorf("predict %s/%s: %w", userID, itemID, ErrUnknownUser)
	}
	i, ok := mf.items[itemID]
	if !ok {
		return 0, fmt.Errorf("predict %s/%s: %w", userID, itemID, ErrUnknownItem)
	}

	r := mf.globalMean + u.Bias + i.Bias + floats.Dot(u.Vector, i.Vector)
	if r < mf.minRating {
		r = mf.minRating
	}
	if r > mf.maxRating {
		r = mf.maxRating
	}
	return r, nil
}

func (mf *MatrixFactorization) Version() string {
	return mf.version
}
