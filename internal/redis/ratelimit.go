package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type RateLimitConfig struct {
	Limit  int
	Window time.Duration
}

type RateLimitResult struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// RateLimiter is a sliding-window limiter over a sorted set per key.
type RateLimiter struct {
	client *Client
	logger *zap.Logger
	config RateLimitConfig
}

func NewRateLimiter(client *Client, logger *zap.Logger, config RateLimitConfig) *RateLimiter {
	return &RateLimiter{
		client: client,
		logger: logger,
		config: config,
	}
}

// Allow records one request for key and reports whether it fits in the
// window. The request is recorded and counted in one transaction; a
// rejected request is removed again so it does not extend the block.
func (r *RateLimiter) Allow(ctx context.Context, key string) (*RateLimitResult, error) {
	now := time.Now()
	redisKey := "ratelimit:" + key
	member := uuid.NewString()

	var countCmd *redis.IntCmd
	_, err := r.client.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZRemRangeByScore(ctx, redisKey, "0", fmt.Sprintf("%d", now.Add(-r.config.Window).UnixNano()))
		pipe.ZAdd(ctx, redisKey, redis.Z{Score: float64(now.UnixNano()), Member: member})
		countCmd = pipe.ZCard(ctx, redisKey)
		pipe.Expire(ctx, redisKey, r.config.Window+time.Second)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("redis rate limit transaction: %w", err)
	}

	count := int(countCmd.Val())
	result := &RateLimitResult{
		Allowed:   count <= r.config.Limit,
		Limit:     r.config.Limit,
		Remaining: max(0, r.config.Limit-count),
		ResetAt:   now.Add(r.config.Window),
	}

	if !result.Allowed {
		if err := r.client.rdb.ZRem(ctx, redisKey, member).Err(); err != nil {
			r.logger.Warn("failed to drop rejected rate limit entry", zap.Error(err))
		}
		r.logger.Debug("rate limit exceeded",
			zap.String("key", key),
			zap.Int("limit", r.config.Limit),
		)
	}

	return result, nil
}
