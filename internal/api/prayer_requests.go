package api

import (
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/lalithlochan/fellowship/internal/db"
)

// CreatePrayerRequestRequest is the body of POST /v1/prayer-requests.
type CreatePrayerRequestRequest struct {
	Title     string `json:"title,omitempty" validate:"max=200"`
	Text      string `json:"text" validate:"notblank,max=5000"`
	Anonymous bool   `json:"anonymous"`
}

// CreatePrayerRequest handles POST /v1/prayer-requests
// Supports idempotency via the Idempotency-Key header.
func (h *Handler) CreatePrayerRequest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	user, _ := UserFromContext(ctx)

	var req CreatePrayerRequestRequest
	if !h.decode(w, r, &req) {
		return
	}

	scope, ok := h.reserve(w, r, user.ID.String())
	if !ok {
		return
	}
	defer scope.release(ctx)

	text := strings.TrimSpace(req.Text)
	prayer := &db.PrayerRequest{
		OwnerID:   user.ID,
		Title:     h.prayerTitle(r, req.Title, text, user),
		Text:      text,
		Anonymous: req.Anonymous,
	}

	if err := h.deps.Repo.CreatePrayerRequest(ctx, prayer); err != nil {
		h.storeError(w, err, "Prayer request")
		return
	}

	h.logger.Info("prayer request created",
		zap.String("id", prayer.ID.String()),
		zap.Bool("anonymous", prayer.Anonymous),
	)

	resp := map[string]any{"prayer_request": prayer}
	scope.store(ctx, http.StatusCreated, resp)
	h.writeJSON(w, http.StatusCreated, resp)
}

// prayerTitle uses the given title, else a generated one, else
// "Pray for <name>".
func (h *Handler) prayerTitle(r *http.Request, given, text string, user *db.User) string {
	if title := strings.TrimSpace(given); title != "" {
		return title
	}

	if h.deps.Titles != nil {
		title, err := h.deps.Titles.Title(r.Context(), text)
		if err == nil {
			return title
		}
		h.logger.Warn("title generation failed, using fallback", zap.Error(err))
	}

	name := strings.TrimSpace(user.FullName)
	if name == "" && user.Username != nil {
		name = *user.Username
	}
	return strings.TrimSpace("Pray for " + name)
}

// GetPrayerRequest handles GET /v1/prayer-requests/{id}
func (h *Handler) GetPrayerRequest(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}

	prayer, err := h.deps.Repo.GetPrayerRequest(r.Context(), id)
	if err != nil {
		h.storeError(w, err, "Prayer request")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{"prayer_request": prayer})
}
