package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lalithlochan/fellowship/internal/db"
)

// Follow handles POST /v1/users/{id}/follow
func (h *Handler) Follow(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	user, _ := UserFromContext(ctx)

	targetID, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}

	if targetID == user.ID {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Cannot follow yourself", "")
		return
	}

	err := h.deps.Repo.Follow(ctx, user.ID, targetID)
	switch {
	case errors.Is(err, db.ErrAlreadyExists):
		h.writeError(w, http.StatusBadRequest, "already_following", "Already following this user", "")
		return
	case err != nil:
		h.storeError(w, err, "User")
		return
	}

	h.logger.Info("user followed",
		zap.String("follower_id", user.ID.String()),
		zap.String("following_id", targetID.String()),
	)

	h.writeJSON(w, http.StatusCreated, map[string]string{"message": "Successfully followed user"})
}

// Unfollow handles DELETE /v1/users/{id}/follow
func (h *Handler) Unfollow(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	user, _ := UserFromContext(ctx)

	targetID, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}

	if err := h.deps.Repo.Unfollow(ctx, user.ID, targetID); err != nil {
		if errors.Is(err, db.ErrNotFound) {
			h.writeError(w, http.StatusNotFound, "not_found", "Not following this user", "")
			return
		}
		h.storeError(w, err, "Follow")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]string{"message": "Successfully unfollowed user"})
}

// ListFollowers handles GET /v1/users/{id}/followers?limit=20&offset=0
func (h *Handler) ListFollowers(w http.ResponseWriter, r *http.Request) {
	h.listFollows(w, r, h.deps.Repo.ListFollowers, "followers")
}

// ListFollowing handles GET /v1/users/{id}/following?limit=20&offset=0
func (h *Handler) ListFollowing(w http.ResponseWriter, r *http.Request) {
	h.listFollows(w, r, h.deps.Repo.ListFollowing, "following")
}

func (h *Handler) listFollows(w http.ResponseWriter, r *http.Request, list func(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*db.User, error), key string) {
	userID, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}

	limit, offset := pagination(r)

	users, err := list(r.Context(), userID, limit, offset)
	if err != nil {
		h.storeError(w, err, "Follows")
		return
	}
	if users == nil {
		users = []*db.User{}
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		key:      users,
		"limit":  limit,
		"offset": offset,
		"count":  len(users),
	})
}

// FollowStatus handles GET /v1/users/{id}/follow-status
func (h *Handler) FollowStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	user, _ := UserFromContext(ctx)

	targetID, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}

	following, err := h.deps.Repo.IsFollowing(ctx, user.ID, targetID)
	if err != nil {
		h.storeError(w, err, "Follow")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]bool{"isFollowing": following})
}

// FollowStats handles GET /v1/users/{id}/follow-stats
func (h *Handler) FollowStats(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}

	stats, err := h.deps.Repo.FollowStats(r.Context(), userID)
	if err != nil {
		h.storeError(w, err, "User")
		return
	}

	h.writeJSON(w, http.StatusOK, stats)
}
