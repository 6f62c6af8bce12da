package db

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// UpsertPushToken registers a device token for a user. The token is the
// conflict key, so re-registering reactivates a disabled row and moves it to
// the current user.
func (r *Repository) UpsertPushToken(ctx context.Context, tok *PushToken) error {
	query := `
		INSERT INTO push_tokens (user_id, expo_push_token, platform, device_id, last_seen_at, disabled_at)
		VALUES ($1, $2, $3, $4, NOW(), NULL)
		ON CONFLICT (expo_push_token) DO UPDATE SET
			user_id      = EXCLUDED.user_id,
			platform     = EXCLUDED.platform,
			device_id    = EXCLUDED.device_id,
			last_seen_at = NOW(),
			disabled_at  = NULL,
			updated_at   = NOW()
		RETURNING id, last_seen_at, created_at, updated_at
	`

	err := r.db.Pool().QueryRow(ctx, query,
		tok.UserID,
		tok.Token,
		tok.Platform,
		tok.DeviceID,
	).Scan(&tok.ID, &tok.LastSeenAt, &tok.CreatedAt, &tok.UpdatedAt)
	if err != nil {
		r.logger.Error("failed to upsert push token",
			zap.Error(err),
			zap.String("user_id", tok.UserID.String()),
		)
		return fmt.Errorf("upsert push token: %w", err)
	}

	tok.DisabledAt = nil
	return nil
}

// ActiveTokensForUsers returns every non-disabled token owned by the users in
// one round trip.
func (r *Repository) ActiveTokensForUsers(ctx context.Context, userIDs []uuid.UUID) ([]PushToken, error) {
	if len(userIDs) == 0 {
		return nil, nil
	}

	query := `
		SELECT id, user_id, expo_push_token, platform, device_id,
			last_seen_at, disabled_at, created_at, updated_at
		FROM push_tokens
		WHERE user_id = ANY($1) AND disabled_at IS NULL
	`

	rows, err := r.db.Pool().Query(ctx, query, userIDs)
	if err != nil {
		return nil, fmt.Errorf("query push tokens: %w", err)
	}
	defer rows.Close()

	var tokens []PushToken
	for rows.Next() {
		var t PushToken
		if err := rows.Scan(
			&t.ID,
			&t.UserID,
			&t.Token,
			&t.Platform,
			&t.DeviceID,
			&t.LastSeenAt,
			&t.DisabledAt,
			&t.CreatedAt,
			&t.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan push token: %w", err)
		}
		tokens = append(tokens, t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}

	return tokens, nil
}

// DisablePushToken soft-disables a token. Disabling an already disabled token
// keeps its first disabled_at and is not an error.
func (r *Repository) DisablePushToken(ctx context.Context, token string) error {
	query := `
		UPDATE push_tokens
		SET disabled_at = COALESCE(disabled_at, NOW()), updated_at = NOW()
		WHERE expo_push_token = $1
	`

	if _, err := r.db.Pool().Exec(ctx, query, token); err != nil {
		r.logger.Error("failed to disable push token", zap.Error(err))
		return fmt.Errorf("disable push token: %w", err)
	}

	return nil
}

// DisableStaleTokens disables active tokens not seen since the cutoff and
// returns how many rows changed.
func (r *Repository) DisableStaleTokens(ctx context.Context, seenBefore time.Time) (int64, error) {
	query := `
		UPDATE push_tokens
		SET disabled_at = NOW(), updated_at = NOW()
		WHERE disabled_at IS NULL AND last_seen_at < $1
	`

	result, err := r.db.Pool().Exec(ctx, query, seenBefore)
	if err != nil {
		return 0, fmt.Errorf("disable stale tokens: %w", err)
	}

	return result.RowsAffected(), nil
}
