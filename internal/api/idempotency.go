package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/lalithlochan/fellowship/internal/metrics"
	"github.com/lalithlochan/fellowship/internal/redis"
)

// idempotencyScope tracks an Idempotency-Key reservation for one request.
// A reservation that is not stored is released so the client can retry.
type idempotencyScope struct {
	h      *Handler
	userID string
	key    string
	active bool
	stored bool
}

// reserve handles the Idempotency-Key header. It returns ok=false when the
// response was already written (a replay or an in-flight duplicate).
func (h *Handler) reserve(w http.ResponseWriter, r *http.Request, userID string) (*idempotencyScope, bool) {
	scope := &idempotencyScope{h: h, userID: userID, key: r.Header.Get("Idempotency-Key")}
	if scope.key == "" || h.deps.Idempotency == nil {
		return scope, true
	}

	cached, err := h.deps.Idempotency.CheckOrReserve(r.Context(), userID, scope.key)
	if err != nil {
		if errors.Is(err, redis.ErrDuplicateRequest) {
			h.writeError(w, http.StatusConflict, "duplicate_request",
				"Request is already being processed",
				"Another request with this idempotency key is in progress")
			return nil, false
		}
		h.logger.Warn("idempotency check failed, proceeding",
			zap.Error(err),
			zap.String("idempotency_key", scope.key),
		)
		return scope, true
	}

	if cached != nil {
		metrics.RecordIdempotencyHit()
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("X-Idempotency-Replayed", "true")
		w.WriteHeader(cached.StatusCode)
		_, _ = w.Write(cached.Body)
		return nil, false
	}

	scope.active = true
	return scope, true
}

// store saves the successful response for replay.
func (s *idempotencyScope) store(ctx context.Context, status int, body any) {
	if !s.active {
		return
	}

	data, err := json.Marshal(body)
	if err == nil {
		err = s.h.deps.Idempotency.Store(ctx, s.userID, s.key, &redis.IdempotencyResult{
			StatusCode: status,
			Body:       data,
		})
	}
	if err != nil {
		s.h.logger.Warn("failed to store idempotency result",
			zap.Error(err),
			zap.String("idempotency_key", s.key),
		)
		return
	}
	s.stored = true
}

func (s *idempotencyScope) release(ctx context.Context) {
	if !s.active || s.stored {
		return
	}
	if err := s.h.deps.Idempotency.Release(ctx, s.userID, s.key); err != nil {
		s.h.logger.Warn("failed to release idempotency key",
			zap.Error(err),
			zap.String("idempotency_key", s.key),
		)
	}
}
