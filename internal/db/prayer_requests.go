package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

func (r *Repository) CreatePrayerRequest(ctx context.Context, p *PrayerRequest) error {
	query := `
		INSERT INTO prayer_requests (owner_id, title, text, anonymous)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at
	`

	err := r.db.Pool().QueryRow(ctx, query,
		p.OwnerID,
		p.Title,
		p.Text,
		p.Anonymous,
	).Scan(&p.ID, &p.CreatedAt)
	if err != nil {
		r.logger.Error("failed to insert prayer request",
			zap.Error(err),
			zap.String("owner_id", p.OwnerID.String()),
		)
		return fmt.Errorf("insert prayer request: %w", err)
	}

	return nil
}

func (r *Repository) GetPrayerRequest(ctx context.Context, id uuid.UUID) (*PrayerRequest, error) {
	query := `
		SELECT id, owner_id, title, text, anonymous, created_at
		FROM prayer_requests
		WHERE id = $1
	`

	var p PrayerRequest
	err := r.db.Pool().QueryRow(ctx, query, id).Scan(
		&p.ID,
		&p.OwnerID,
		&p.Title,
		&p.Text,
		&p.Anonymous,
		&p.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("prayer request %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query prayer request: %w", err)
	}

	return &p, nil
}
