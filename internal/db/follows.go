package db

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Follow records followerID following followingID. Returns ErrAlreadyExists
// for a duplicate edge and ErrNotFound when either user is missing.
func (r *Repository) Follow(ctx context.Context, followerID, followingID uuid.UUID) error {
	query := `
		INSERT INTO user_followers (follower_id, following_id)
		VALUES ($1, $2)
	`

	_, err := r.db.Pool().Exec(ctx, query, followerID, followingID)
	switch {
	case err == nil:
		return nil
	case isUniqueViolation(err):
		return fmt.Errorf("follow: %w", ErrAlreadyExists)
	case isForeignKeyViolation(err):
		return fmt.Errorf("follow: %w", ErrNotFound)
	default:
		r.logger.Error("failed to follow user",
			zap.Error(err),
			zap.String("follower_id", followerID.String()),
			zap.String("following_id", followingID.String()),
		)
		return fmt.Errorf("insert follow: %w", err)
	}
}

// Unfollow removes the edge, ErrNotFound when there was none.
func (r *Repository) Unfollow(ctx context.Context, followerID, followingID uuid.UUID) error {
	query := `DELETE FROM user_followers WHERE follower_id = $1 AND following_id = $2`

	result, err := r.db.Pool().Exec(ctx, query, followerID, followingID)
	if err != nil {
		return fmt.Errorf("delete follow: %w", err)
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("unfollow: %w", ErrNotFound)
	}

	return nil
}

// FollowerIDs lists everyone following userID.
func (r *Repository) FollowerIDs(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error) {
	query := `SELECT follower_id FROM user_followers WHERE following_id = $1`

	rows, err := r.db.Pool().Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("query followers: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan follower: %w", err)
		}
		ids = append(ids, id)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}

	return ids, nil
}

// ListFollowers returns a page of follower profiles, newest first.
func (r *Repository) ListFollowers(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*User, error) {
	query := `
		SELECT u.id, u.full_name, u.username, u.profile_picture, u.created_at
		FROM user_followers f
		JOIN users u ON u.id = f.follower_id
		WHERE f.following_id = $1
		ORDER BY f.created_at DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := r.db.Pool().Query(ctx, query, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("query followers: %w", err)
	}

	return scanUsers(rows)
}

// ListFollowing returns a page of the profiles userID follows.
func (r *Repository) ListFollowing(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*User, error) {
	query := `
		SELECT u.id, u.full_name, u.username, u.profile_picture, u.created_at
		FROM user_followers f
		JOIN users u ON u.id = f.following_id
		WHERE f.follower_id = $1
		ORDER BY f.created_at DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := r.db.Pool().Query(ctx, query, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("query following: %w", err)
	}

	return scanUsers(rows)
}

func (r *Repository) IsFollowing(ctx context.Context, followerID, followingID uuid.UUID) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM user_followers WHERE follower_id = $1 AND following_id = $2
		)
	`

	var exists bool
	if err := r.db.Pool().QueryRow(ctx, query, followerID, followingID).Scan(&exists); err != nil {
		return false, fmt.Errorf("query follow status: %w", err)
	}

	return exists, nil
}

func (r *Repository) FollowStats(ctx context.Context, userID uuid.UUID) (*FollowStats, error) {
	query := `
		SELECT
			(SELECT COUNT(*) FROM user_followers WHERE following_id = $1),
			(SELECT COUNT(*) FROM user_followers WHERE follower_id = $1)
	`

	var stats FollowStats
	if err := r.db.Pool().QueryRow(ctx, query, userID).Scan(&stats.Followers, &stats.Following); err != nil {
		return nil, fmt.Errorf("query follow stats: %w", err)
	}

	return &stats, nil
}
