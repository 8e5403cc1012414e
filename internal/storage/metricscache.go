package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/cardionics/heartml/internal/models"
)

// NewRedisClient connects to Redis and verifies the connection.
func NewRedisClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return client, nil
}

// MetricsCache serves model metrics through a Redis read-through cache. A
// cache outage degrades to direct database reads.
type MetricsCache struct {
	logger *zap.SugaredLogger
	repo   *Repository
	client *redis.Client
	ttl    time.Duration
}

// NewMetricsCache wraps the repository. client may be nil to disable caching.
func NewMetricsCache(logger *zap.SugaredLogger, repo *Repository, client *redis.Client, ttl time.Duration) *MetricsCache {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &MetricsCache{logger: logger, repo: repo, client: client, ttl: ttl}
}

func metricsKey(name string) string {
	return "heartml:metrics:" + name
}

// ModelMetrics returns the latest metrics for a model, from cache when fresh.
func (c *MetricsCache) ModelMetrics(ctx context.Context, name string) (*models.ModelMetrics, error) {
	if c.client != nil {
		raw, err := c.client.Get(ctx, metricsKey(name)).Bytes()
		switch {
		case err == nil:
			var m models.ModelMetrics
			if err := json.Unmarshal(raw, &m); err == nil {
				return &m, nil
			}
			c.logger.Warnw("discarding corrupt metrics cache entry", "model", name)
		case !errors.Is(err, redis.Nil):
			c.logger.Warnw("metrics cache read failed", "model", name, "error", err)
		}
	}

	m, err := c.repo.LatestMetricsByModel(ctx, name)
	if err != nil {
		return nil, err
	}
	if c.client != nil {
		if raw, err := json.Marshal(m); err == nil {
			if err := c.client.Set(ctx, metricsKey(name), raw, c.ttl).Err(); err != nil {
				c.logger.Warnw("metrics cache write failed", "model", name, "error", err)
			}
		}
	}
	return m, nil
}

// Invalidate removes a model's cached metrics, e.g. after a training run.
func (c *MetricsCache) Invalidate(ctx context.Context, name string) {
	if c.client == nil {
		return
	}
	if err := c.client.Del(ctx, metricsKey(name)).Err(); err != nil {
		c.logger.Warnw("metrics cache invalidation failed", "model", name, "error", err)
	}
}
