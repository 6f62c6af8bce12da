package redis

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// LikeDedupeWindow is how long repeated likes by the same user on the same
// resource stay silent.
const LikeDedupeWindow = 10 * time.Minute

// LikeDeduper stops like/unlike/like from paging the owner every time.
type LikeDeduper struct {
	client *Client
	logger *zap.Logger
	window time.Duration
}

func NewLikeDeduper(client *Client, logger *zap.Logger) *LikeDeduper {
	return &LikeDeduper{
		client: client,
		logger: logger,
		window: LikeDedupeWindow,
	}
}

// ShouldNotify reports whether this is the first like from actorID on the
// resource within the window.
func (d *LikeDeduper) ShouldNotify(ctx context.Context, resourceType, resourceID, actorID string) (bool, error) {
	key := fmt.Sprintf("notify:like:%s:%s:%s", resourceType, resourceID, actorID)

	first, err := d.client.rdb.SetNX(ctx, key, 1, d.window).Result()
	if err != nil {
		return false, fmt.Errorf("redis setnx failed: %w", err)
	}

	return first, nil
}
