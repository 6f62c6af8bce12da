package api

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/lalithlochan/fellowship/internal/db"
)

// CreateEventRequest is the body of POST /v1/events. Date accepts RFC 3339
// or a plain YYYY-MM-DD day.
type CreateEventRequest struct {
	Title       string   `json:"title" validate:"notblank,max=200"`
	Description string   `json:"description" validate:"notblank"`
	Location    string   `json:"location" validate:"notblank,max=200"`
	Date        string   `json:"date" validate:"required"`
	Tags        []string `json:"tags,omitempty" validate:"max=20,dive,max=50"`
}

func parseEventDate(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Parse(time.DateOnly, s)
}

// CreateEvent handles POST /v1/events
// Supports idempotency via the Idempotency-Key header.
func (h *Handler) CreateEvent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	user, _ := UserFromContext(ctx)

	var req CreateEventRequest
	if !h.decode(w, r, &req) {
		return
	}

	date, err := parseEventDate(req.Date)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Validation failed", "date must be an RFC 3339 timestamp or YYYY-MM-DD")
		return
	}

	scope, ok := h.reserve(w, r, user.ID.String())
	if !ok {
		return
	}
	defer scope.release(ctx)

	event := &db.Event{
		OwnerID:     user.ID,
		Title:       strings.TrimSpace(req.Title),
		Description: strings.TrimSpace(req.Description),
		Location:    strings.TrimSpace(req.Location),
		Date:        date,
		Tags:        req.Tags,
	}

	if err := h.deps.Repo.CreateEvent(ctx, event); err != nil {
		if errors.Is(err, db.ErrEventConflict) {
			h.writeError(w, http.StatusConflict, "event_conflict",
				"Event already exists", "an event is already scheduled at this location on this day")
			return
		}
		h.storeError(w, err, "Event")
		return
	}

	h.logger.Info("event created",
		zap.String("id", event.ID.String()),
		zap.String("owner_id", user.ID.String()),
	)

	h.deps.Notifier.NotifyEventCreated(ctx, event, user)

	resp := map[string]any{"event": event}
	scope.store(ctx, http.StatusCreated, resp)
	h.writeJSON(w, http.StatusCreated, resp)
}

// GetEvent handles GET /v1/events/{id}
func (h *Handler) GetEvent(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}

	event, err := h.deps.Repo.GetEvent(r.Context(), id)
	if err != nil {
		h.storeError(w, err, "Event")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{"event": event})
}
