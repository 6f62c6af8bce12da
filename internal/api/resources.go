package api

import (
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/lalithlochan/fellowship/internal/db"
	"github.com/lalithlochan/fellowship/internal/metrics"
)

// CommentRequest is the body of POST .../comments.
type CommentRequest struct {
	Text string `json:"text" validate:"notblank,max=2000"`
}

func resourceLabel(t db.ResourceType) string {
	if t == db.ResourceEvent {
		return "Event"
	}
	return "Prayer request"
}

// LikeResource returns the handler for POST /v1/{events|prayer-requests}/{id}/like
func (h *Handler) LikeResource(t db.ResourceType) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		user, _ := UserFromContext(ctx)

		id, ok := h.pathID(w, r, "id")
		if !ok {
			return
		}

		resource, err := h.deps.Repo.GetResource(ctx, t, id)
		if err != nil {
			h.storeError(w, err, resourceLabel(t))
			return
		}

		like, err := h.deps.Repo.LikeResource(ctx, t, id, user.ID)
		if err != nil {
			if errors.Is(err, db.ErrAlreadyExists) {
				h.writeError(w, http.StatusBadRequest, "already_liked", "Already liked", "")
				return
			}
			h.storeError(w, err, resourceLabel(t))
			return
		}

		if h.shouldNotifyLike(r, t, resource, user) {
			h.deps.Notifier.NotifyResourceLiked(ctx, resource, like, user)
		}

		h.writeJSON(w, http.StatusCreated, map[string]any{"like": like})
	}
}

// shouldNotifyLike applies the like dedupe window. Redis errors let the
// notification through.
func (h *Handler) shouldNotifyLike(r *http.Request, t db.ResourceType, resource *db.Resource, user *db.User) bool {
	if h.deps.Likes == nil {
		return true
	}

	first, err := h.deps.Likes.ShouldNotify(r.Context(), string(t), resource.ID.String(), user.ID.String())
	if err != nil {
		h.logger.Warn("like dedupe check failed", zap.Error(err))
		return true
	}
	if !first {
		metrics.RecordLikeDeduped()
	}
	return first
}

// UnlikeResource returns the handler for DELETE /v1/{events|prayer-requests}/{id}/like
func (h *Handler) UnlikeResource(t db.ResourceType) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		user, _ := UserFromContext(ctx)

		id, ok := h.pathID(w, r, "id")
		if !ok {
			return
		}

		if err := h.deps.Repo.UnlikeResource(ctx, t, id, user.ID); err != nil {
			if errors.Is(err, db.ErrNotFound) {
				h.writeError(w, http.StatusNotFound, "not_found", "Like not found", "")
				return
			}
			h.storeError(w, err, resourceLabel(t))
			return
		}

		h.writeJSON(w, http.StatusOK, map[string]string{"message": "Like removed"})
	}
}

// CommentOnResource returns the handler for POST /v1/{events|prayer-requests}/{id}/comments
func (h *Handler) CommentOnResource(t db.ResourceType) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		user, _ := UserFromContext(ctx)

		id, ok := h.pathID(w, r, "id")
		if !ok {
			return
		}

		var req CommentRequest
		if !h.decode(w, r, &req) {
			return
		}

		resource, err := h.deps.Repo.GetResource(ctx, t, id)
		if err != nil {
			h.storeError(w, err, resourceLabel(t))
			return
		}

		comment, err := h.deps.Repo.AddComment(ctx, t, id, user.ID, strings.TrimSpace(req.Text))
		if err != nil {
			h.storeError(w, err, resourceLabel(t))
			return
		}

		h.deps.Notifier.NotifyResourceCommented(ctx, resource, comment, user)

		h.writeJSON(w, http.StatusCreated, map[string]any{"comment": comment})
	}
}
