package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

// resourceTables maps a resource type to its fixed table names. Only these
// strings are ever interpolated into SQL.
type resourceTables struct {
	main     string
	likes    string
	comments string
	fk       string
	title    string
	anon     string
}

var tablesByType = map[ResourceType]resourceTables{
	ResourceEvent: {
		main:     "events",
		likes:    "event_likes",
		comments: "event_comments",
		fk:       "event_id",
		title:    "title",
		anon:     "FALSE",
	},
	ResourcePrayerRequest: {
		main:     "prayer_requests",
		likes:    "prayer_request_likes",
		comments: "prayer_request_comments",
		fk:       "prayer_request_id",
		title:    "title",
		anon:     "anonymous",
	},
}

func tablesFor(t ResourceType) (resourceTables, error) {
	tables, ok := tablesByType[t]
	if !ok {
		return resourceTables{}, fmt.Errorf("unknown resource type %q", t)
	}
	return tables, nil
}

// GetResource loads the owner and title of an event or prayer request.
func (r *Repository) GetResource(ctx context.Context, t ResourceType, id uuid.UUID) (*Resource, error) {
	tables, err := tablesFor(t)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`SELECT id, owner_id, %s, %s FROM %s WHERE id = $1`,
		tables.title, tables.anon, tables.main)

	res := Resource{Type: t}
	err = r.db.Pool().QueryRow(ctx, query, id).Scan(&res.ID, &res.OwnerID, &res.Title, &res.Anonymous)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%s %s: %w", t, id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", t, err)
	}

	return &res, nil
}

// LikeResource records a like. ErrAlreadyExists when the user already liked
// it, ErrNotFound when the resource is gone.
func (r *Repository) LikeResource(ctx context.Context, t ResourceType, resourceID, userID uuid.UUID) (*Like, error) {
	tables, err := tablesFor(t)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (%s, user_id)
		VALUES ($1, $2)
		RETURNING id, created_at
	`, tables.likes, tables.fk)

	like := Like{ResourceID: resourceID, UserID: userID}
	err = r.db.Pool().QueryRow(ctx, query, resourceID, userID).Scan(&like.ID, &like.CreatedAt)
	switch {
	case err == nil:
		return &like, nil
	case isUniqueViolation(err):
		return nil, fmt.Errorf("like %s: %w", t, ErrAlreadyExists)
	case isForeignKeyViolation(err):
		return nil, fmt.Errorf("like %s: %w", t, ErrNotFound)
	default:
		r.logger.Error("failed to insert like",
			zap.Error(err),
			zap.String("resource_type", string(t)),
			zap.String("resource_id", resourceID.String()),
		)
		return nil, fmt.Errorf("insert like: %w", err)
	}
}

// UnlikeResource removes a like, ErrNotFound when there was none.
func (r *Repository) UnlikeResource(ctx context.Context, t ResourceType, resourceID, userID uuid.UUID) error {
	tables, err := tablesFor(t)
	if err != nil {
		return err
	}

	query := fmt.Sprintf(`DELETE FROM %s WHERE %s = $1 AND user_id = $2`, tables.likes, tables.fk)

	result, err := r.db.Pool().Exec(ctx, query, resourceID, userID)
	if err != nil {
		return fmt.Errorf("delete like: %w", err)
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("unlike %s: %w", t, ErrNotFound)
	}

	return nil
}

// AddComment stores a comment on an event or prayer request.
func (r *Repository) AddComment(ctx context.Context, t ResourceType, resourceID, userID uuid.UUID, text string) (*Comment, error) {
	tables, err := tablesFor(t)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (%s, user_id, text)
		VALUES ($1, $2, $3)
		RETURNING id, created_at
	`, tables.comments, tables.fk)

	c := Comment{ResourceID: resourceID, UserID: userID, Text: text}
	err = r.db.Pool().QueryRow(ctx, query, resourceID, userID, text).Scan(&c.ID, &c.CreatedAt)
	if isForeignKeyViolation(err) {
		return nil, fmt.Errorf("comment on %s: %w", t, ErrNotFound)
	}
	if err != nil {
		r.logger.Error("failed to insert comment",
			zap.Error(err),
			zap.String("resource_type", string(t)),
			zap.String("resource_id", resourceID.String()),
		)
		return nil, fmt.Errorf("insert comment: %w", err)
	}

	return &c, nil
}
