package services

import (
	"math"
	"sort"

	"github.com/temcen/tripwise/internal/config"
	"github.com/temcen/tripwise/pkg/models"
)

// FusionEngine normalizes, weights and ranks signal scores.
type FusionEngine struct{}

func NewFusionEngine() *FusionEngine {
	return &FusionEngine{}
}

// Fuse combines the score vectors into a ranked list of at most topN items.
//
// Each signal is min-max normalized on its own after missing scores are
// replaced by the lowest observed score of that signal. A signal without
// spread normalizes to 0.5 for every candidate. Items are ordered by fused
// score descending with ties broken by ascending item id. Ids compare as
// strings, so "10" sorts before "9". A non-positive topN returns every
// candidate.
func (f *FusionEngine) Fuse(candidates CandidateSet, vectors map[string]ScoreVector, weights Weights, topN int, explain bool) ([]models.Recommendation, error) {
	if err := config.ValidateWeights(weights); err != nil {
		return nil, &ConfigurationError{Field: "weights", Err: err}
	}

	signals := make([]string, 0, len(weights))
	for s := range weights {
		signals = append(signals, s)
	}
	sort.Strings(signals)

	normalized := make(map[string][]float64, len(signals))
	for _, s := range signals {
		raw := make([]float64, len(candidates))
		vec := vectors[s]
		for i, id := range candidates {
			v, ok := vec[id]
			if !ok {
				v = math.NaN()
			}
			raw[i] = v
		}
		normalized[s] = minMaxNormalize(raw)
	}

	recs := make([]models.Recommendation, len(candidates))
	for i, id := range candidates {
		score := 0.0
		var breakdown map[string]models.SignalScore
		if explain {
			breakdown = make(map[string]models.SignalScore, len(signals))
		}
		for _, s := range signals {
			score += weights[s] * normalized[s][i]
			if explain {
				entry := models.SignalScore{Normalized: normalized[s][i], Weight: weights[s]}
				if v, ok := vectors[s][id]; ok && !isMissing(v) {
					raw := v
					entry.Raw = &raw
				}
				breakdown[s] = entry
			}
		}
		recs[i] = models.Recommendation{ItemID: id, Score: score, Signals: breakdown}
	}

	sort.SliceStable(recs, func(i, j int) bool {
		if recs[i].Score != recs[j].Score {
			return recs[i].Score > recs[j].Score
		}
		return recs[i].ItemID < recs[j].ItemID
	})

	if topN > 0 && len(recs) > topN {
		recs = recs[:topN]
	}
	for i := range recs {
		recs[i].Rank = i + 1
	}

	return recs, nil
}

// minMaxNormalize scales values to [0,1]. Missing values take the minimum
// observed value; no observed values or zero spread yields 0.5 everywhere.
func minMaxNormalize(values []float64) []float64 {
	out := make([]float64, len(values))

	lo, hi := math.Inf(1), math.Inf(-1)
	for _, v := range values {
		if isMissing(v) {
			continue
		}
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}

	if math.IsInf(lo, 1) || hi-lo <= 1e-12 {
		for i := range out {
			out[i] = 0.5
		}
		return out
	}

	span := hi - lo
	for i, v := range values {
		if isMissing(v) {
			v = lo
		}
		out[i] = (v - lo) / span
	}
	return out
}

func isMissing(v float64) bool {
	return math.IsNaN(v) || math.IsInf(v, 0)
}
