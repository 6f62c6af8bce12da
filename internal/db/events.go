package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

// ErrEventConflict is returned when another event already occupies the same
// location on the same calendar day.
var ErrEventConflict = errors.New("event conflicts with an existing event")

// CreateEvent inserts an event after checking for a same-day conflict at the
// same location. The check and insert share a transaction.
func (r *Repository) CreateEvent(ctx context.Context, e *Event) error {
	tx, err := r.db.Pool().Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	conflictQuery := `
		SELECT EXISTS (
			SELECT 1 FROM events
			WHERE lower(location) = lower($1)
			  AND date::date = $2::timestamptz::date
		)
	`

	var conflict bool
	if err := tx.QueryRow(ctx, conflictQuery, e.Location, e.Date).Scan(&conflict); err != nil {
		return fmt.Errorf("check event conflict: %w", err)
	}

	if conflict {
		return ErrEventConflict
	}

	if e.Tags == nil {
		e.Tags = []string{}
	}

	insertQuery := `
		INSERT INTO events (owner_id, title, description, location, date, tags)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at
	`

	err = tx.QueryRow(ctx, insertQuery,
		e.OwnerID,
		e.Title,
		e.Description,
		e.Location,
		e.Date,
		e.Tags,
	).Scan(&e.ID, &e.CreatedAt)
	if err != nil {
		r.logger.Error("failed to insert event",
			zap.Error(err),
			zap.String("owner_id", e.OwnerID.String()),
		)
		return fmt.Errorf("insert event: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}

	return nil
}

func (r *Repository) GetEvent(ctx context.Context, id uuid.UUID) (*Event, error) {
	query := `
		SELECT id, owner_id, title, description, location, date, tags, created_at
		FROM events
		WHERE id = $1
	`

	var e Event
	err := r.db.Pool().QueryRow(ctx, query, id).Scan(
		&e.ID,
		&e.OwnerID,
		&e.Title,
		&e.Description,
		&e.Location,
		&e.Date,
		&e.Tags,
		&e.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("event %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query event: %w", err)
	}

	return &e, nil
}
