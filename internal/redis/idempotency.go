package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	// IdempotencyTTL is how long a replayable response is kept.
	IdempotencyTTL = 24 * time.Hour

	// processingTTL bounds the lock held while the first request runs.
	processingTTL = 2 * time.Minute

	processingMarker = "processing"
)

// ErrDuplicateRequest means another request with the same key is still in
// flight.
var ErrDuplicateRequest = errors.New("duplicate request: idempotency key in use")

// IdempotencyResult is the response replayed for a repeated key.
type IdempotencyResult struct {
	StatusCode int             `json:"status_code"`
	Body       json.RawMessage `json:"body"`
	CreatedAt  int64           `json:"created_at"`
}

// IdempotencyService scopes Idempotency-Key headers per user.
type IdempotencyService struct {
	client *Client
	logger *zap.Logger
}

func NewIdempotencyService(client *Client, logger *zap.Logger) *IdempotencyService {
	return &IdempotencyService{
		client: client,
		logger: logger,
	}
}

func (s *IdempotencyService) buildKey(userID, idempotencyKey string) string {
	return fmt.Sprintf("idempotency:%s:%s", userID, idempotencyKey)
}

// Check returns (nil, nil) for an unknown key, the stored result for a
// finished one, and ErrDuplicateRequest while the key is being processed.
func (s *IdempotencyService) Check(ctx context.Context, userID, idempotencyKey string) (*IdempotencyResult, error) {
	val, err := s.client.rdb.Get(ctx, s.buildKey(userID, idempotencyKey)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get failed: %w", err)
	}

	if val == processingMarker {
		return nil, ErrDuplicateRequest
	}

	var result IdempotencyResult
	if err := json.Unmarshal([]byte(val), &result); err != nil {
		s.logger.Error("failed to unmarshal idempotency result", zap.Error(err))
		return nil, fmt.Errorf("invalid cached result: %w", err)
	}

	return &result, nil
}

// Store saves the finished response, replacing the processing marker.
func (s *IdempotencyService) Store(ctx context.Context, userID, idempotencyKey string, result *IdempotencyResult) error {
	if result.CreatedAt == 0 {
		result.CreatedAt = time.Now().Unix()
	}

	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to marshal result: %w", err)
	}

	if err := s.client.rdb.Set(ctx, s.buildKey(userID, idempotencyKey), data, IdempotencyTTL).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}

	return nil
}

// Release drops a reservation so the client may retry after a failure.
func (s *IdempotencyService) Release(ctx context.Context, userID, idempotencyKey string) error {
	if err := s.client.rdb.Del(ctx, s.buildKey(userID, idempotencyKey)).Err(); err != nil {
		return fmt.Errorf("redis del failed: %w", err)
	}
	return nil
}

// CheckOrReserve returns a stored result, or reserves the key with SET NX
// and returns (nil, nil).
func (s *IdempotencyService) CheckOrReserve(ctx context.Context, userID, idempotencyKey string) (*IdempotencyResult, error) {
	result, err := s.Check(ctx, userID, idempotencyKey)
	if err != nil || result != nil {
		return result, err
	}

	reserved, err := s.client.rdb.SetNX(ctx, s.buildKey(userID, idempotencyKey), processingMarker, processingTTL).Result()
	if err != nil {
		return nil, fmt.Errorf("redis setnx failed: %w", err)
	}

	if !reserved {
		return nil, ErrDuplicateRequest
	}

	return nil, nil
}
