package services

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// ClusterCache keeps on-the-fly cluster assignments in the hot Redis.
// Keys carry the snapshot version so a reload starts from a clean slate.
// A nil client disables the cache.
type ClusterCache struct {
	redis   *redis.Client
	ttl     time.Duration
	metrics *MetricsCollector
	logger  *logrus.Logger
}

func NewClusterCache(redis *redis.Client, ttl time.Duration, metrics *MetricsCollector, logger *logrus.Logger) *ClusterCache {
	return &ClusterCache{
		redis:   redis,
		ttl:     ttl,
		metrics: metrics,
		logger:  logger,
	}
}

func (c *ClusterCache) key(version int64, userID string) string {
	return fmt.Sprintf("cluster:v%d:%s", version, userID)
}

func (c *ClusterCache) Get(ctx context.Context, version int64, userID string) (int, bool) {
	if c == nil || c.redis == nil {
		return 0, false
	}
	val, err := c.redis.Get(ctx, c.key(version, userID)).Result()
	if err != nil {
		if err != redis.Nil {
			c.logger.WithError(err).Warn("Failed to read cluster label cache")
		}
		c.metrics.RecordCacheResult("cluster", false)
		return 0, false
	}
	label, err := strconv.Atoi(val)
	if err != nil {
		c.metrics.RecordCacheResult("cluster", false)
		return 0, false
	}
	c.metrics.RecordCacheResult("cluster", true)
	return label, true
}

func (c *ClusterCache) Set(ctx context.Context, version int64, userID string, label int) {
	if c == nil || c.redis == nil {
		return
	}
	if err := c.redis.Set(ctx, c.key(version, userID), strconv.Itoa(label), c.ttl).Err(); err != nil {
		c.logger.WithError(err).Warn("Failed to cache cluster label")
	}
}
