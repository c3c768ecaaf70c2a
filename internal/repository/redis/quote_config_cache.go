package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"sourcing-service/internal/client"
	"sourcing-service/internal/models"
	"sourcing-service/internal/util"
)

const (
	quoteConfigPrefix = "quote_config:"
	quoteConfigTTL    = 10 * time.Minute
)

// QuoteConfigCache is a read-through cache over the pricing catalog. The
// catalog changes rarely, so a short TTL is enough to keep it fresh.
type QuoteConfigCache struct {
	client *client.RedisClient
}

func NewQuoteConfigCache(client *client.RedisClient) *QuoteConfigCache {
	return &QuoteConfigCache{client: client}
}

func (c *QuoteConfigCache) Get(ctx context.Context, category string) (*models.QuoteConfig, bool) {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	key := quoteConfigPrefix + category

	payload, err := c.client.Get(ctx, key)
	if err != nil {
		// Cache miss or unreachable cache both fall back to Postgres.
		return nil, false
	}

	var cfg models.QuoteConfig
	if err := json.Unmarshal([]byte(payload), &cfg); err != nil {
		util.Warn("Corrupt quote config cache entry",
			zap.String("category", category),
			zap.Error(err))
		_ = c.client.Del(ctx, key)
		return nil, false
	}

	return &cfg, true
}

func (c *QuoteConfigCache) Set(ctx context.Context, category string, cfg *models.QuoteConfig) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	payload, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal quote config: %w", err)
	}

	key := quoteConfigPrefix + category
	if err := c.client.Set(ctx, key, payload, quoteConfigTTL); err != nil {
		util.Warn("Failed to cache quote config",
			zap.String("category", category),
			zap.Error(err))
		return fmt.Errorf("failed to cache quote config: %w", err)
	}

	util.Debug("Quote config cached",
		zap.String("category", category),
		zap.Duration("ttl", quoteConfigTTL))

	return nil
}

func (c *QuoteConfigCache) Invalidate(ctx context.Context, category string) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := c.client.Del(ctx, quoteConfigPrefix+category); err != nil {
		return fmt.Errorf("failed to invalidate quote config: %w", err)
	}

	return nil
}
