package notify

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lalithlochan/fellowship/internal/db"
)

// ResolveRecipients returns who should conceptually hear about n, without
// the actor and without duplicates. Store errors yield an empty set.
func (s *Notifier) ResolveRecipients(ctx context.Context, n Notification) []uuid.UUID {
	var candidates []uuid.UUID

	switch n := n.(type) {
	case EventCreated:
		followers, err := s.store.FollowerIDs(ctx, n.Actor.ID)
		if err != nil {
			s.logger.Error("failed to load followers",
				zap.Error(err),
				zap.String("kind", n.Kind()),
				zap.String("actor_id", n.Actor.ID.String()),
			)
			return nil
		}
		candidates = followers

	case ResourceLiked:
		candidates = ownerOf(n.Resource, n.Actor)

	case ResourceCommented:
		candidates = ownerOf(n.Resource, n.Actor)
	}

	return uniqueExcluding(candidates, n.ActorID())
}

func ownerOf(r Resource, actor Actor) []uuid.UUID {
	if r.OwnerID == uuid.Nil || r.OwnerID == actor.ID {
		return nil
	}
	return []uuid.UUID{r.OwnerID}
}

func uniqueExcluding(ids []uuid.UUID, exclude uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if id == exclude {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// FilterByPreference keeps users whose master switch and category flag for n
// are on. Users without a stored row get the defaults (everything on). If the
// preference store fails, every candidate passes.
func (s *Notifier) FilterByPreference(ctx context.Context, userIDs []uuid.UUID, n Notification) []uuid.UUID {
	if len(userIDs) == 0 {
		return nil
	}

	prefs, err := s.store.PreferencesForUsers(ctx, userIDs)
	if err != nil {
		s.logger.Warn("preference lookup failed, notifying all candidates",
			zap.Error(err),
			zap.String("kind", n.Kind()),
			zap.Int("candidates", len(userIDs)),
		)
		return userIDs
	}

	out := make([]uuid.UUID, 0, len(userIDs))
	for _, id := range userIDs {
		p, ok := prefs[id]
		if !ok {
			p = db.DefaultPreferences(id)
		}
		if Allows(p, n) {
			out = append(out, id)
		}
	}
	return out
}

// Allows applies the master switch and the category flag for n.
func Allows(p db.NotificationPreferences, n Notification) bool {
	if !p.NotificationsEnabled {
		return false
	}

	switch n := n.(type) {
	case EventCreated:
		return p.EventNotifications
	case ResourceLiked:
		return categoryFor(p, n.Resource.Type)
	case ResourceCommented:
		return categoryFor(p, n.Resource.Type)
	default:
		return false
	}
}

func categoryFor(p db.NotificationPreferences, t db.ResourceType) bool {
	if t == db.ResourcePrayerRequest {
		return p.PrayerNotifications
	}
	return p.SocialNotifications
}

// ResolveTokens loads active tokens for the users in one query and drops
// repeated literal tokens.
func (s *Notifier) ResolveTokens(ctx context.Context, userIDs []uuid.UUID) []db.PushToken {
	if len(userIDs) == 0 {
		return nil
	}

	tokens, err := s.store.ActiveTokensForUsers(ctx, userIDs)
	if err != nil {
		s.logger.Error("failed to load push tokens",
			zap.Error(err),
			zap.Int("users", len(userIDs)),
		)
		return nil
	}

	seen := make(map[string]struct{}, len(tokens))
	out := make([]db.PushToken, 0, len(tokens))
	for _, t := range tokens {
		if _, dup := seen[t.Token]; dup {
			continue
		}
		seen[t.Token] = struct{}{}
		out = append(out, t)
	}
	return out
}
