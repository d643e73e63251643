package ml

import (
	"context"
	"errors"
	"fmt"

	"gonum.org/v1/gonum/floats"

	"github.com/temcen/tripwise/pkg/models"
)

var (
	ErrUnknownUser = errors.New("unknown user")
	ErrUnknownItem = errors.New("unknown item")
)

// SimilarityIndex scores candidate items by content similarity to a
// reference item, a free-text query or a weighted set of items.
type SimilarityIndex interface {
	ItemScores(ctx context.Context, referenceID string, candidates []string) (map[string]float64, error)
	QueryScores(ctx context.Context, query string, candidates []string) (map[string]float64, error)
	ProfileScores(ctx context.Context, weights map[string]float64, candidates []string) (map[string]float64, error)
	HasQueryTerms(query string) bool
}

// ContentIndex is a SimilarityIndex over TF-IDF item vectors.
type ContentIndex struct {
	vectorizer *TFIDFVectorizer
	vectors    map[string][]float64
}

// NewContentIndex vectorizes every catalog item with the given vectorizer.
func NewContentIndex(vectorizer *TFIDFVectorizer, catalog []models.Item) *ContentIndex {
	vectors := make(map[string][]float64, len(catalog))
	for _, item := range catalog {
		vectors[item.ID] = vectorizer.Transform(ItemText(item))
	}
	return &ContentIndex{vectorizer: vectorizer, vectors: vectors}
}

func (ci *ContentIndex) HasQueryTerms(query string) bool {
	return ci.vectorizer.HasTerms(query)
}

// ItemScores returns cosine similarity between the reference item and each
// candidate. An unknown reference yields ErrUnknownItem.
func (ci *ContentIndex) ItemScores(ctx context.Context, referenceID string, candidates []string) (map[string]float64, error) {
	ref, ok := ci.vectors[referenceID]
	if !ok {
		return nil, fmt.Errorf("reference item %q: %w", referenceID, ErrUnknownItem)
	}
	return ci.scoreAgainst(ctx, ref, candidates)
}

// QueryScores vectorizes the query and scores candidates against it.
func (ci *ContentIndex) QueryScores(ctx context.Context, query string, candidates []string) (map[string]float64, error) {
	if !ci.vectorizer.HasTerms(query) {
		return nil, fmt.Errorf("query has no known terms")
	}
	return ci.scoreAgainst(ctx, ci.vectorizer.Transform(query), candidates)
}

// ProfileScores builds a weighted centroid of the given items' vectors and
// scores candidates against it. Unknown items are ignored.
func (ci *ContentIndex) ProfileScores(ctx context.Context, weights map[string]float64, candidates []string) (map[string]float64, error) {
	centroid := make([]float64, ci.vectorizer.Dimensions())
	total := 0.0
	for itemID, w := range weights {
		vec, ok := ci.vectors[itemID]
		if !ok || w <= 0 {
			continue
		}
		floats.AddScaled(centroid, w, vec)
		total += w
	}
	if total == 0 {
		return nil, fmt.Errorf("no profile items in index: %w", ErrUnknownItem)
	}
	floats.Scale(1/total, centroid)

	return ci.scoreAgainst(ctx, centroid, candidates)
}

func (ci *ContentIndex) scoreAgainst(ctx context.Context, ref []float64, candidates []string) (map[string]float64, error) {
	scores := make(map[string]float64, len(candidates))
	for _, id := range candidates {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		vec, ok := ci.vectors[id]
		if !ok {
			continue
		}
		scores[id] = Cosine(ref, vec)
	}
	return scores, nil
}

// Cosine returns the cosine similarity of a and b, 0 when either is zero.
func Cosine(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	na, nb := floats.Norm(a, 2), floats.Norm(b, 2)
	if na == 0 || nb == 0 {
		return 0
	}
	return floats.Dot(a, b) / (na * nb)
}
