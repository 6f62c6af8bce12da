package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/lalithlochan/fellowship/internal/db"
)

// RegisterPushTokenRequest is the body of POST /v1/users/push-token.
type RegisterPushTokenRequest struct {
	ExpoPushToken string  `json:"expoPushToken" validate:"required,expo_token"`
	Platform      *string `json:"platform,omitempty" validate:"omitempty,oneof=ios android web"`
	DeviceID      *string `json:"deviceId,omitempty" validate:"omitempty,max=255"`
}

// RegisterPushToken handles POST /v1/users/push-token
func (h *Handler) RegisterPushToken(w http.ResponseWriter, r *http.Request) {
	user, _ := UserFromContext(r.Context())

	var req RegisterPushTokenRequest
	if !h.decode(w, r, &req) {
		return
	}

	tok := &db.PushToken{
		UserID:   user.ID,
		Token:    req.ExpoPushToken,
		Platform: req.Platform,
		DeviceID: req.DeviceID,
	}

	if err := h.deps.Repo.UpsertPushToken(r.Context(), tok); err != nil {
		h.storeError(w, err, "Push token")
		return
	}

	h.logger.Info("push token registered",
		zap.String("user_id", user.ID.String()),
		zap.String("token_id", tok.ID.String()),
	)

	h.writeJSON(w, http.StatusOK, map[string]any{"push_token": tok})
}

// GetPreferences handles GET /v1/users/notification-preferences. A user
// without a row gets the defaults created on the spot.
func (h *Handler) GetPreferences(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	user, _ := UserFromContext(ctx)

	prefs, err := h.deps.Repo.GetPreferences(ctx, user.ID)
	if errors.Is(err, db.ErrNotFound) {
		prefs, err = h.deps.Repo.CreateDefaultPreferences(ctx, user.ID)
	}
	if err != nil {
		h.storeError(w, err, "Preferences")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{"preferences": prefs})
}

var preferenceFields = []string{
	"notifications_enabled",
	"event_notifications",
	"prayer_notifications",
	"social_notifications",
}

// UpdatePreferences handles PUT /v1/users/notification-preferences
func (h *Handler) UpdatePreferences(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	user, _ := UserFromContext(ctx)

	var body map[string]json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Malformed JSON body", err.Error())
		return
	}

	var update db.PreferencesUpdate
	targets := map[string]**bool{
		"notifications_enabled": &update.NotificationsEnabled,
		"event_notifications":   &update.EventNotifications,
		"prayer_notifications":  &update.PrayerNotifications,
		"social_notifications":  &update.SocialNotifications,
	}

	for _, field := range preferenceFields {
		raw, ok := body[field]
		if !ok {
			continue
		}
		var v bool
		if err := json.Unmarshal(raw, &v); err != nil || string(raw) == "null" {
			h.writeError(w, http.StatusBadRequest, "invalid_request", "Validation failed", field+" must be a boolean value")
			return
		}
		*targets[field] = &v
	}

	if update.Empty() {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Validation failed", "no preference fields provided")
		return
	}

	prefs, created, err := h.deps.Repo.UpdatePreferences(ctx, user.ID, update)
	if err != nil {
		h.storeError(w, err, "Preferences")
		return
	}

	h.logger.Info("notification preferences updated",
		zap.String("user_id", user.ID.String()),
		zap.Bool("created", created),
	)

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	h.writeJSON(w, status, map[string]any{"preferences": prefs})
}

// ResetPreferences handles POST /v1/users/notification-preferences/reset
func (h *Handler) ResetPreferences(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	user, _ := UserFromContext(ctx)

	prefs, err := h.deps.Repo.ResetPreferences(ctx, user.ID)
	if err != nil {
		h.storeError(w, err, "Preferences")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{"preferences": prefs})
}
