package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

const preferenceColumns = `user_id, notifications_enabled, event_notifications,
	prayer_notifications, social_notifications, updated_at`

func scanPreferences(row pgx.Row) (*NotificationPreferences, error) {
	var p NotificationPreferences
	err := row.Scan(
		&p.UserID,
		&p.NotificationsEnabled,
		&p.EventNotifications,
		&p.PrayerNotifications,
		&p.SocialNotifications,
		&p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// GetPreferences returns the stored row or ErrNotFound.
func (r *Repository) GetPreferences(ctx context.Context, userID uuid.UUID) (*NotificationPreferences, error) {
	query := `SELECT ` + preferenceColumns + ` FROM user_notification_preferences WHERE user_id = $1`

	prefs, err := scanPreferences(r.db.Pool().QueryRow(ctx, query, userID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("preferences for %s: %w", userID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query preferences: %w", err)
	}

	return prefs, nil
}

// CreateDefaultPreferences inserts the all-enabled row if the user has none
// and returns whatever row exists afterwards.
func (r *Repository) CreateDefaultPreferences(ctx context.Context, userID uuid.UUID) (*NotificationPreferences, error) {
	insert := `
		INSERT INTO user_notification_preferences (user_id)
		VALUES ($1)
		ON CONFLICT (user_id) DO NOTHING
	`

	if _, err := r.db.Pool().Exec(ctx, insert, userID); err != nil {
		r.logger.Error("failed to create default preferences",
			zap.Error(err),
			zap.String("user_id", userID.String()),
		)
		return nil, fmt.Errorf("insert default preferences: %w", err)
	}

	return r.GetPreferences(ctx, userID)
}

// UpdatePreferences applies a partial update, creating the row when missing.
// created reports whether this call inserted the row.
func (r *Repository) UpdatePreferences(ctx context.Context, userID uuid.UUID, update PreferencesUpdate) (prefs *NotificationPreferences, created bool, err error) {
	tx, err := r.db.Pool().Begin(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	current, err := scanPreferences(tx.QueryRow(ctx,
		`SELECT `+preferenceColumns+` FROM user_notification_preferences WHERE user_id = $1 FOR UPDATE`,
		userID,
	))
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		defaults := DefaultPreferences(userID)
		current = &defaults
		created = true
	case err != nil:
		return nil, false, fmt.Errorf("query preferences: %w", err)
	}

	next := update.Apply(*current)

	upsert := `
		INSERT INTO user_notification_preferences (
			user_id, notifications_enabled, event_notifications,
			prayer_notifications, social_notifications
		) VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id) DO UPDATE SET
			notifications_enabled = EXCLUDED.notifications_enabled,
			event_notifications   = EXCLUDED.event_notifications,
			prayer_notifications  = EXCLUDED.prayer_notifications,
			social_notifications  = EXCLUDED.social_notifications,
			updated_at            = NOW()
		RETURNING ` + preferenceColumns

	prefs, err = scanPreferences(tx.QueryRow(ctx, upsert,
		userID,
		next.NotificationsEnabled,
		next.EventNotifications,
		next.PrayerNotifications,
		next.SocialNotifications,
	))
	if err != nil {
		return nil, false, fmt.Errorf("upsert preferences: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, false, fmt.Errorf("commit transaction: %w", err)
	}

	return prefs, created, nil
}

// ResetPreferences restores the all-enabled defaults.
func (r *Repository) ResetPreferences(ctx context.Context, userID uuid.UUID) (*NotificationPreferences, error) {
	query := `
		INSERT INTO user_notification_preferences (user_id)
		VALUES ($1)
		ON CONFLICT (user_id) DO UPDATE SET
			notifications_enabled = TRUE,
			event_notifications   = TRUE,
			prayer_notifications  = TRUE,
			social_notifications  = TRUE,
			updated_at            = NOW()
		RETURNING ` + preferenceColumns

	prefs, err := scanPreferences(r.db.Pool().QueryRow(ctx, query, userID))
	if err != nil {
		return nil, fmt.Errorf("reset preferences: %w", err)
	}

	return prefs, nil
}

// PreferencesForUsers loads stored rows for the given users. Users without a
// row are absent from the map.
func (r *Repository) PreferencesForUsers(ctx context.Context, userIDs []uuid.UUID) (map[uuid.UUID]NotificationPreferences, error) {
	out := make(map[uuid.UUID]NotificationPreferences, len(userIDs))
	if len(userIDs) == 0 {
		return out, nil
	}

	query := `SELECT ` + preferenceColumns + ` FROM user_notification_preferences WHERE user_id = ANY($1)`

	rows, err := r.db.Pool().Query(ctx, query, userIDs)
	if err != nil {
		return nil, fmt.Errorf("query preferences: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		p, err := scanPreferences(rows)
		if err != nil {
			return nil, fmt.Errorf("scan preferences: %w", err)
		}
		out[p.UserID] = *p
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}

	return out, nil
}
