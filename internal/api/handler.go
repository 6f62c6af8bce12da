// Package api serves the HTTP surface: push token registration, notification
// preferences, follows, and the event and prayer request endpoints that feed
// the notification pipeline.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lalithlochan/fellowship/internal/circuitbreaker"
	"github.com/lalithlochan/fellowship/internal/db"
	"github.com/lalithlochan/fellowship/internal/notify"
	"github.com/lalithlochan/fellowship/internal/redis"
)

// Repository defines the database operations the handlers need.
type Repository interface {
	GetUser(ctx context.Context, id uuid.UUID) (*db.User, error)
	UpsertPushToken(ctx context.Context, tok *db.PushToken) error

	GetPreferences(ctx context.Context, userID uuid.UUID) (*db.NotificationPreferences, error)
	CreateDefaultPreferences(ctx context.Context, userID uuid.UUID) (*db.NotificationPreferences, error)
	UpdatePreferences(ctx context.Context, userID uuid.UUID, update db.PreferencesUpdate) (*db.NotificationPreferences, bool, error)
	ResetPreferences(ctx context.Context, userID uuid.UUID) (*db.NotificationPreferences, error)

	Follow(ctx context.Context, followerID, followingID uuid.UUID) error
	Unfollow(ctx context.Context, followerID, followingID uuid.UUID) error
	ListFollowers(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*db.User, error)
	ListFollowing(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*db.User, error)
	IsFollowing(ctx context.Context, followerID, followingID uuid.UUID) (bool, error)
	FollowStats(ctx context.Context, userID uuid.UUID) (*db.FollowStats, error)

	CreateEvent(ctx context.Context, e *db.Event) error
	GetEvent(ctx context.Context, id uuid.UUID) (*db.Event, error)
	CreatePrayerRequest(ctx context.Context, p *db.PrayerRequest) error
	GetPrayerRequest(ctx context.Context, id uuid.UUID) (*db.PrayerRequest, error)

	GetResource(ctx context.Context, t db.ResourceType, id uuid.UUID) (*db.Resource, error)
	LikeResource(ctx context.Context, t db.ResourceType, resourceID, userID uuid.UUID) (*db.Like, error)
	UnlikeResource(ctx context.Context, t db.ResourceType, resourceID, userID uuid.UUID) error
	AddComment(ctx context.Context, t db.ResourceType, resourceID, userID uuid.UUID, text string) (*db.Comment, error)
}

// Notifier starts background notification dispatches. *notify.Notifier
// implements it.
type Notifier interface {
	NotifyEventCreated(ctx context.Context, event *db.Event, creator *db.User) <-chan notify.DispatchResult
	NotifyResourceLiked(ctx context.Context, resource *db.Resource, like *db.Like, actor *db.User) <-chan notify.DispatchResult
	NotifyResourceCommented(ctx context.Context, resource *db.Resource, comment *db.Comment, actor *db.User) <-chan notify.DispatchResult
}

// TitleGenerator summarizes prayer request text.
type TitleGenerator interface {
	Title(ctx context.Context, text string) (string, error)
}

// LikeDeduper suppresses repeated like notifications.
type LikeDeduper interface {
	ShouldNotify(ctx context.Context, resourceType, resourceID, actorID string) (bool, error)
}

// Idempotency stores replayable responses per user and key.
type Idempotency interface {
	CheckOrReserve(ctx context.Context, userID, idempotencyKey string) (*redis.IdempotencyResult, error)
	Store(ctx context.Context, userID, idempotencyKey string, result *redis.IdempotencyResult) error
	Release(ctx context.Context, userID, idempotencyKey string) error
}

// Deps are the handler dependencies. Repo and Notifier are required; the
// rest are optional and the matching feature is skipped when nil.
type Deps struct {
	Repo        Repository
	Notifier    Notifier
	Titles      TitleGenerator
	Likes       LikeDeduper
	Idempotency Idempotency
	Breaker     *circuitbreaker.CircuitBreaker

	DBHealth    func(ctx context.Context) error
	RedisHealth func(ctx context.Context) error
}

// ErrorResponse represents an error in problem+json format
type ErrorResponse struct {
	Type   string `json:"type"`
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail,omitempty"`
}

// Handler holds dependencies for API handlers
type Handler struct {
	logger   *zap.Logger
	deps     Deps
	validate *validator.Validate
}

func NewHandler(logger *zap.Logger, deps Deps) *Handler {
	return &Handler{
		logger:   logger,
		deps:     deps,
		validate: newValidator(),
	}
}

// Health handles GET /health
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	status := http.StatusOK
	checks := map[string]string{"database": "ok"}

	if h.deps.DBHealth != nil {
		if err := h.deps.DBHealth(ctx); err != nil {
			h.logger.Error("database health check failed", zap.Error(err))
			checks["database"] = "unavailable"
			status = http.StatusServiceUnavailable
		}
	}

	if h.deps.RedisHealth != nil {
		checks["redis"] = "ok"
		if err := h.deps.RedisHealth(ctx); err != nil {
			h.logger.Warn("redis health check failed", zap.Error(err))
			checks["redis"] = "unavailable"
		}
	}

	resp := map[string]any{
		"status": "ok",
		"checks": checks,
	}
	if status != http.StatusOK {
		resp["status"] = "degraded"
	}
	if h.deps.Breaker != nil {
		resp["push_gateway"] = h.deps.Breaker.Stats()
	}

	h.writeJSON(w, status, resp)
}

// decode reads a JSON body into dst and runs struct validation.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Malformed JSON body", err.Error())
		return false
	}

	if err := h.validate.Struct(dst); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Validation failed", validationDetail(err))
		return false
	}

	return true
}

func (h *Handler) pathID(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Invalid ID", name+" must be a valid UUID")
		return uuid.Nil, false
	}
	return id, true
}

// pagination parses ?limit=20&offset=0, ignoring out of range values.
func pagination(r *http.Request) (limit, offset int) {
	limit = 20

	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 && l <= 100 {
			limit = l
		}
	}

	if offsetStr := r.URL.Query().Get("offset"); offsetStr != "" {
		if o, err := strconv.Atoi(offsetStr); err == nil && o >= 0 {
			offset = o
		}
	}

	return limit, offset
}

// storeError maps repository errors that are not specific to one endpoint.
func (h *Handler) storeError(w http.ResponseWriter, err error, what string) {
	if errors.Is(err, db.ErrNotFound) {
		h.writeError(w, http.StatusNotFound, "not_found", what+" not found", "")
		return
	}
	h.logger.Error("database operation failed", zap.String("resource", what), zap.Error(err))
	h.writeError(w, http.StatusInternalServerError, "database_error", "Internal server error", "")
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (h *Handler) writeError(w http.ResponseWriter, status int, errType, title, detail string) {
	writeProblem(w, status, errType, title, detail)
}

func writeProblem(w http.ResponseWriter, status int, errType, title, detail string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)

	_ = json.NewEncoder(w).Encode(ErrorResponse{
		Type:   errType,
		Title:  title,
		Status: status,
		Detail: detail,
	})
}
