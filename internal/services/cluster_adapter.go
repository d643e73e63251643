package services

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
)

// ClusterAdapter scores candidates by their popularity within the
// requester's demographic cluster.
type ClusterAdapter struct {
	lookup PopularityLookup
	cache  *ClusterCache
	logger *logrus.Logger
}

// NewClusterAdapter uses lookup for popularity counts. A nil lookup reads
// the counts precomputed on the snapshot.
func NewClusterAdapter(lookup PopularityLookup, cache *ClusterCache, logger *logrus.Logger) *ClusterAdapter {
	return &ClusterAdapter{
		lookup: lookup,
		cache:  cache,
		logger: logger,
	}
}

func (a *ClusterAdapter) Name() string { return SignalCluster }

func (a *ClusterAdapter) Score(ctx context.Context, req *SignalRequest) (ScoreVector, error) {
	if req.Profile == nil {
		return nil, &UnknownEntityError{Kind: "user", ID: req.UserID}
	}

	label, err := a.resolveCluster(ctx, req)
	if err != nil {
		return nil, err
	}

	var lookup PopularityLookup
	switch {
	case a.lookup != nil:
		lookup = a.lookup
	case req.Data.Popularity != nil:
		lookup = req.Data.Popularity
	default:
		return nil, &DataUnavailableError{Signal: SignalCluster, Resource: "popularity table"}
	}

	counts, err := lookup.ClusterPopularity(ctx, label, req.UserID, req.Candidates)
	if err != nil {
		return nil, fmt.Errorf("cluster %d popularity: %w", label, err)
	}

	vector := make(ScoreVector, len(req.Candidates))
	for _, id := range req.Candidates {
		vector[id] = counts[id]
	}
	return vector, nil
}

// resolveCluster prefers the stored label, then a cached assignment, then
// assigns with the segmentation model and caches the result.
func (a *ClusterAdapter) resolveCluster(ctx context.Context, req *SignalRequest) (int, error) {
	if req.Profile.Cluster != nil {
		return *req.Profile.Cluster, nil
	}

	if label, ok := a.cache.Get(ctx, req.Data.Version, req.UserID); ok {
		return label, nil
	}

	segmenter := req.Data.Models.Segmenter
	if segmenter == nil {
		return 0, &DataUnavailableError{Signal: SignalCluster, Resource: "segmentation model", Err: req.Data.Models.SegmenterErr}
	}

	label, err := segmenter.AssignCluster(*req.Profile)
	if err != nil {
		return 0, fmt.Errorf("cluster assignment failed: %w", err)
	}
	a.cache.Set(ctx, req.Data.Version, req.UserID, label)

	a.logger.WithFields(logrus.Fields{
		"user_id": req.UserID,
		"cluster": label,
	}).Debug("Cluster assigned on the fly")

	return label, nil
}
