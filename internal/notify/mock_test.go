package notify

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lalithlochan/fellowship/internal/db"
	"github.com/lalithlochan/fellowship/internal/push"
)

// mockStore keeps followers, preferences and tokens in maps.
type mockStore struct {
	mu          sync.Mutex
	followers   map[uuid.UUID][]uuid.UUID
	preferences map[uuid.UUID]db.NotificationPreferences
	tokens      []db.PushToken

	followersFail bool
	prefsFail     bool
	tokensFail    bool
	panicOnLookup bool

	prefsCalled  bool
	tokensCalled bool
}

func newMockStore() *mockStore {
	return &mockStore{
		followers:   make(map[uuid.UUID][]uuid.UUID),
		preferences: make(map[uuid.UUID]db.NotificationPreferences),
	}
}

func (m *mockStore) FollowerIDs(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error) {
	if m.panicOnLookup {
		panic("boom")
	}
	if m.followersFail {
		return nil, errors.New("connection refused")
	}
	return m.followers[userID], nil
}

func (m *mockStore) PreferencesForUsers(ctx context.Context, userIDs []uuid.UUID) (map[uuid.UUID]db.NotificationPreferences, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.prefsCalled = true
	if m.prefsFail {
		return nil, errors.New("connection refused")
	}
	out := make(map[uuid.UUID]db.NotificationPreferences)
	for _, id := range userIDs {
		if p, ok := m.preferences[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}

func (m *mockStore) ActiveTokensForUsers(ctx context.Context, userIDs []uuid.UUID) ([]db.PushToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.tokensCalled = true
	if m.tokensFail {
		return nil, errors.New("connection refused")
	}

	wanted := make(map[uuid.UUID]bool, len(userIDs))
	for _, id := range userIDs {
		wanted[id] = true
	}

	var out []db.PushToken
	for _, t := range m.tokens {
		if wanted[t.UserID] && t.DisabledAt == nil {
			out = append(out, t)
		}
	}
	return out, nil
}

func (m *mockStore) DisablePushToken(ctx context.Context, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	for i := range m.tokens {
		if m.tokens[i].Token == token && m.tokens[i].DisabledAt == nil {
			m.tokens[i].DisabledAt = &now
		}
	}
	return nil
}

func (m *mockStore) addToken(userID uuid.UUID, token string) {
	m.tokens = append(m.tokens, db.PushToken{ID: uuid.New(), UserID: userID, Token: token})
}

// recordingDispatcher reports every message as sent.
type recordingDispatcher struct {
	mu       sync.Mutex
	messages []push.Message
}

func (r *recordingDispatcher) Dispatch(ctx context.Context, messages []push.Message) push.Result {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, messages...)
	return push.Result{Sent: len(messages)}
}
