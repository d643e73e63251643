package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/temcen/tripwise/pkg/models"
)

func clusterData() *ReferenceData {
	catalog := travelCatalog()
	interactions := []models.Interaction{
		{UserID: "young", ItemID: "Nice_Hotel", Strength: 1},
		{UserID: "peer", ItemID: "Bali_Villa", Strength: 1},
		{UserID: "peer", ItemID: "Nice_Hotel", Strength: 1},
		{UserID: "senior", ItemID: "Oslo_Cabin", Strength: 1},
	}
	profiles := []models.UserProfile{
		{UserID: "young", Age: floatPtr(25), Gender: "female", Nationality: "french"},
		{UserID: "peer", Age: floatPtr(60), Cluster: intPtr(0)},
		{UserID: "senior", Age: floatPtr(62), Gender: "male", Nationality: "german"},
	}
	return NewReferenceData(1, catalog, interactions, profiles, testModelSet(catalog))
}

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return mr, client
}

func clusterRequest(data *ReferenceData, userID string) *SignalRequest {
	req := &SignalRequest{
		UserID:     userID,
		Candidates: CandidateSet{"Bali_Villa", "Nice_Hotel", "Oslo_Cabin", "Paris_Hotel"},
		Data:       data,
	}
	if p, ok := data.Profile(userID); ok {
		req.Profile = &p
	}
	return req
}

func TestClusterAdapter_AssignsAndCachesCluster(t *testing.T) {
	mr, client := newTestRedis(t)
	metrics := NewMetricsCollector(prometheus.NewRegistry())
	cache := NewClusterCache(client, time.Hour, metrics, newTestLogger())
	adapter := NewClusterAdapter(nil, cache, newTestLogger())
	data := clusterData()

	scores, err := adapter.Score(context.Background(), clusterRequest(data, "young"))
	require.NoError(t, err)

	assert.Equal(t, 1.0, scores["Bali_Villa"])
	// Own interaction is not counted
	assert.Equal(t, 1.0, scores["Nice_Hotel"])
	assert.Equal(t, 0.0, scores["Oslo_Cabin"])
	assert.Equal(t, 0.0, scores["Paris_Hotel"])

	cached, err := mr.Get("cluster:v1:young")
	require.NoError(t, err)
	assert.Equal(t, "0", cached)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.cacheRequests.WithLabelValues("cluster", "miss")))
}

func TestClusterAdapter_UsesCachedLabel(t *testing.T) {
	mr, client := newTestRedis(t)
	require.NoError(t, mr.Set("cluster:v1:young", "1"))

	adapter := NewClusterAdapter(nil, NewClusterCache(client, time.Hour, nil, newTestLogger()), newTestLogger())
	scores, err := adapter.Score(context.Background(), clusterRequest(clusterData(), "young"))
	require.NoError(t, err)

	assert.Equal(t, 1.0, scores["Oslo_Cabin"])
	assert.Equal(t, 0.0, scores["Bali_Villa"])
}

func TestClusterAdapter_StoredLabelWins(t *testing.T) {
	mr, client := newTestRedis(t)
	require.NoError(t, mr.Set("cluster:v1:peer", "1"))

	adapter := NewClusterAdapter(nil, NewClusterCache(client, time.Hour, nil, newTestLogger()), newTestLogger())
	scores, err := adapter.Score(context.Background(), clusterRequest(clusterData(), "peer"))
	require.NoError(t, err)

	// young is the only other member of cluster 0
	assert.Equal(t, 1.0, scores["Nice_Hotel"])
	assert.Equal(t, 0.0, scores["Bali_Villa"])
	assert.Equal(t, 0.0, scores["Oslo_Cabin"])
}

func TestClusterAdapter_NoProfile(t *testing.T) {
	adapter := NewClusterAdapter(nil, nil, newTestLogger())
	_, err := adapter.Score(context.Background(), clusterRequest(clusterData(), "stranger"))

	var unknown *UnknownEntityError
	require.True(t, errors.As(err, &unknown))
	assert.Equal(t, "user", unknown.Kind)
	assert.Equal(t, "user not found: stranger", err.Error())
}

func TestClusterAdapter_WithoutSegmenter(t *testing.T) {
	data := clusterData()
	data.Models.Segmenter = nil
	data.Models.SegmenterErr = errors.New("segmentation.json missing")

	adapter := NewClusterAdapter(nil, nil, newTestLogger())
	_, err := adapter.Score(context.Background(), clusterRequest(data, "young"))

	var unavailable *DataUnavailableError
	require.True(t, errors.As(err, &unavailable))
	assert.Equal(t, SignalCluster, unavailable.Signal)
}

type stubPopularity struct {
	cluster int
	exclude string
	counts  map[string]float64
}

func (s *stubPopularity) ClusterPopularity(_ context.Context, cluster int, excludeUserID string, _ []string) (map[string]float64, error) {
	s.cluster = cluster
	s.exclude = excludeUserID
	return s.counts, nil
}

func TestClusterAdapter_ConfiguredLookup(t *testing.T) {
	lookup := &stubPopularity{counts: map[string]float64{"Paris_Hotel": 7}}
	adapter := NewClusterAdapter(lookup, nil, newTestLogger())

	scores, err := adapter.Score(context.Background(), clusterRequest(clusterData(), "peer"))
	require.NoError(t, err)

	assert.Equal(t, 0, lookup.cluster)
	assert.Equal(t, "peer", lookup.exclude)
	assert.Equal(t, 7.0, scores["Paris_Hotel"])
	assert.Equal(t, 0.0, scores["Bali_Villa"])
}

func TestClusterCache_NilClient(t *testing.T) {
	cache := NewClusterCache(nil, time.Hour, nil, newTestLogger())
	cache.Set(context.Background(), 1, "u1", 3)
	_, ok := cache.Get(context.Background(), 1, "u1")
	assert.False(t, ok)

	var nilCache *ClusterCache
	_, ok = nilCache.Get(context.Background(), 1, "u1")
	assert.False(t, ok)
}
