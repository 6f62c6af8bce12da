package events

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"

	"github.com/lalithlochan/fellowship/internal/db"
	"github.com/lalithlochan/fellowship/internal/metrics"
	"github.com/lalithlochan/fellowship/internal/notify"
)

// Store loads the rows an envelope refers to.
type Store interface {
	GetUser(ctx context.Context, id uuid.UUID) (*db.User, error)
	GetEvent(ctx context.Context, id uuid.UUID) (*db.Event, error)
	GetResource(ctx context.Context, t db.ResourceType, id uuid.UUID) (*db.Resource, error)
}

// Notifier runs a dispatch to completion. *notify.Notifier implements it.
type Notifier interface {
	Dispatch(ctx context.Context, n notify.Notification) notify.DispatchResult
}

// Handler processes envelopes.
type Handler struct {
	store    Store
	notifier Notifier
	logger   *zap.Logger
}

func NewHandler(store Store, notifier Notifier, logger *zap.Logger) *Handler {
	return &Handler{store: store, notifier: notifier, logger: logger}
}

// HandleBatch processes bodies in order and returns one error slot per body.
// A nil slot means the message can be acknowledged: malformed envelopes and
// envelopes pointing at rows that no longer exist are logged and reported as
// nil. Lookups are cached for the duration of the batch only.
func (h *Handler) HandleBatch(ctx context.Context, source string, bodies [][]byte) []error {
	lookups := cache.New(cache.NoExpiration, 0)

	errs := make([]error, len(bodies))
	for i, body := range bodies {
		errs[i] = h.handle(ctx, lookups, source, body)
	}
	return errs
}

func (h *Handler) handle(ctx context.Context, lookups *cache.Cache, source string, body []byte) error {
	env, err := Parse(body)
	if err != nil {
		h.logger.Warn("dropping malformed envelope",
			zap.String("source", source),
			zap.Error(err),
		)
		metrics.RecordEventConsumed(source, "unknown", "malformed")
		return nil
	}

	n, err := h.notification(ctx, lookups, env)
	if errors.Is(err, db.ErrNotFound) {
		h.logger.Info("dropping envelope for missing row",
			zap.String("source", source),
			zap.String("type", env.Type),
			zap.String("resource_id", env.ResourceID.String()),
			zap.Error(err),
		)
		metrics.RecordEventConsumed(source, env.Type, "missing")
		return nil
	}
	if err != nil {
		metrics.RecordEventConsumed(source, env.Type, "error")
		return err
	}

	h.notifier.Dispatch(ctx, n)
	metrics.RecordEventConsumed(source, env.Type, "dispatched")
	return nil
}

func (h *Handler) notification(ctx context.Context, lookups *cache.Cache, env *Envelope) (notify.Notification, error) {
	user, err := h.user(ctx, lookups, env.ActorID)
	if err != nil {
		return nil, err
	}
	actor := notify.ActorFromUser(user)

	var action notify.Action
	if env.ActionID != nil {
		action.ID = *env.ActionID
	}

	if env.Type == TypeEventCreated {
		event, err := h.event(ctx, lookups, env.ResourceID)
		if err != nil {
			return nil, err
		}
		return notify.EventCreated{Actor: actor, Event: notify.ResourceFromEvent(event)}, nil
	}

	resource, err := h.resource(ctx, lookups, env.ResourceType, env.ResourceID)
	if err != nil {
		return nil, err
	}

	if env.Type == TypeResourceLiked {
		return notify.ResourceLiked{Actor: actor, Resource: notify.ResourceFromDB(resource), Like: action}, nil
	}

	action.Text = env.Text
	return notify.ResourceCommented{Actor: actor, Resource: notify.ResourceFromDB(resource), Comment: action}, nil
}

func (h *Handler) user(ctx context.Context, lookups *cache.Cache, id uuid.UUID) (*db.User, error) {
	key := "user:" + id.String()
	if v, ok := lookups.Get(key); ok {
		return v.(*db.User), nil
	}
	user, err := h.store.GetUser(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load actor %s: %w", id, err)
	}
	lookups.SetDefault(key, user)
	return user, nil
}

func (h *Handler) event(ctx context.Context, lookups *cache.Cache, id uuid.UUID) (*db.Event, error) {
	key := "event:" + id.String()
	if v, ok := lookups.Get(key); ok {
		return v.(*db.Event), nil
	}
	event, err := h.store.GetEvent(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load event %s: %w", id, err)
	}
	lookups.SetDefault(key, event)
	return event, nil
}

func (h *Handler) resource(ctx context.Context, lookups *cache.Cache, t db.ResourceType, id uuid.UUID) (*db.Resource, error) {
	key := "resource:" + string(t) + ":" + id.String()
	if v, ok := lookups.Get(key); ok {
		return v.(*db.Resource), nil
	}
	resource, err := h.store.GetResource(ctx, t, id)
	if err != nil {
		return nil, fmt.Errorf("load %s %s: %w", t, id, err)
	}
	lookups.SetDefault(key, resource)
	return resource, nil
}
