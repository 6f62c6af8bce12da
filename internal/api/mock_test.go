package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lalithlochan/fellowship/internal/db"
	"github.com/lalithlochan/fellowship/internal/notify"
)

var (
	errDatabase   = errors.New("database error")
	testJWTSecret = []byte("test-secret")
)

type followKey struct{ follower, following uuid.UUID }
type likeKey struct {
	resource uuid.UUID
	user     uuid.UUID
}

// mockRepo is an in-memory Repository.
type mockRepo struct {
	mu sync.Mutex

	users    map[uuid.UUID]*db.User
	tokens   map[string]*db.PushToken
	prefs    map[uuid.UUID]*db.NotificationPreferences
	follows  map[followKey]bool
	events   map[uuid.UUID]*db.Event
	prayers  map[uuid.UUID]*db.PrayerRequest
	likes    map[likeKey]bool
	comments []*db.Comment

	conflictEvents bool
	shouldFail     bool
}

func newMockRepo() *mockRepo {
	return &mockRepo{
		users:   make(map[uuid.UUID]*db.User),
		tokens:  make(map[string]*db.PushToken),
		prefs:   make(map[uuid.UUID]*db.NotificationPreferences),
		follows: make(map[followKey]bool),
		events:  make(map[uuid.UUID]*db.Event),
		prayers: make(map[uuid.UUID]*db.PrayerRequest),
		likes:   make(map[likeKey]bool),
	}
}

func (m *mockRepo) addUser(name string) *db.User {
	m.mu.Lock()
	defer m.mu.Unlock()
	u := &db.User{ID: uuid.New(), FullName: name, CreatedAt: time.Now()}
	m.users[u.ID] = u
	return u
}

func (m *mockRepo) GetUser(ctx context.Context, id uuid.UUID) (*db.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, db.ErrNotFound
	}
	return u, nil
}

func (m *mockRepo) UpsertPushToken(ctx context.Context, tok *db.PushToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.shouldFail {
		return errDatabase
	}
	if existing, ok := m.tokens[tok.Token]; ok {
		tok.ID = existing.ID
	} else {
		tok.ID = uuid.New()
	}
	tok.LastSeenAt = time.Now()
	tok.DisabledAt = nil
	m.tokens[tok.Token] = tok
	return nil
}

func (m *mockRepo) GetPreferences(ctx context.Context, userID uuid.UUID) (*db.NotificationPreferences, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.shouldFail {
		return nil, errDatabase
	}
	p, ok := m.prefs[userID]
	if !ok {
		return nil, db.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *mockRepo) CreateDefaultPreferences(ctx context.Context, userID uuid.UUID) (*db.NotificationPreferences, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.prefs[userID]; !ok {
		p := db.DefaultPreferences(userID)
		m.prefs[userID] = &p
	}
	cp := *m.prefs[userID]
	return &cp, nil
}

func (m *mockRepo) UpdatePreferences(ctx context.Context, userID uuid.UUID, update db.PreferencesUpdate) (*db.NotificationPreferences, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.shouldFail {
		return nil, false, errDatabase
	}
	current, ok := m.prefs[userID]
	base := db.DefaultPreferences(userID)
	if ok {
		base = *current
	}
	next := update.Apply(base)
	m.prefs[userID] = &next
	cp := next
	return &cp, !ok, nil
}

func (m *mockRepo) ResetPreferences(ctx context.Context, userID uuid.UUID) (*db.NotificationPreferences, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := db.DefaultPreferences(userID)
	m.prefs[userID] = &p
	cp := p
	return &cp, nil
}

func (m *mockRepo) Follow(ctx context.Context, followerID, followingID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[followingID]; !ok {
		return db.ErrNotFound
	}
	k := followKey{followerID, followingID}
	if m.follows[k] {
		return db.ErrAlreadyExists
	}
	m.follows[k] = true
	return nil
}

func (m *mockRepo) Unfollow(ctx context.Context, followerID, followingID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := followKey{followerID, followingID}
	if !m.follows[k] {
		return db.ErrNotFound
	}
	delete(m.follows, k)
	return nil
}

func (m *mockRepo) listFollows(userID uuid.UUID, followers bool, limit, offset int) []*db.User {
	var out []*db.User
	for k := range m.follows {
		switch {
		case followers && k.following == userID:
			out = append(out, m.users[k.follower])
		case !followers && k.follower == userID:
			out = append(out, m.users[k.following])
		}
	}
	if offset >= len(out) {
		return nil
	}
	out = out[offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (m *mockRepo) ListFollowers(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*db.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.shouldFail {
		return nil, errDatabase
	}
	return m.listFollows(userID, true, limit, offset), nil
}

func (m *mockRepo) ListFollowing(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*db.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.listFollows(userID, false, limit, offset), nil
}

func (m *mockRepo) IsFollowing(ctx context.Context, followerID, followingID uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.follows[followKey{followerID, followingID}], nil
}

func (m *mockRepo) FollowStats(ctx context.Context, userID uuid.UUID) (*db.FollowStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stats := &db.FollowStats{}
	for k := range m.follows {
		if k.following == userID {
			stats.Followers++
		}
		if k.follower == userID {
			stats.Following++
		}
	}
	return stats, nil
}

func (m *mockRepo) CreateEvent(ctx context.Context, e *db.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.shouldFail {
		return errDatabase
	}
	if m.conflictEvents {
		return db.ErrEventConflict
	}
	e.ID = uuid.New()
	e.CreatedAt = time.Now()
	m.events[e.ID] = e
	return nil
}

func (m *mockRepo) GetEvent(ctx context.Context, id uuid.UUID) (*db.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.events[id]
	if !ok {
		return nil, db.ErrNotFound
	}
	return e, nil
}

func (m *mockRepo) CreatePrayerRequest(ctx context.Context, p *db.PrayerRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.shouldFail {
		return errDatabase
	}
	p.ID = uuid.New()
	p.CreatedAt = time.Now()
	m.prayers[p.ID] = p
	return nil
}

func (m *mockRepo) GetPrayerRequest(ctx context.Context, id uuid.UUID) (*db.PrayerRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.prayers[id]
	if !ok {
		return nil, db.ErrNotFound
	}
	return p, nil
}

func (m *mockRepo) GetResource(ctx context.Context, t db.ResourceType, id uuid.UUID) (*db.Resource, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch t {
	case db.ResourceEvent:
		if e, ok := m.events[id]; ok {
			return &db.Resource{ID: e.ID, Type: t, OwnerID: e.OwnerID, Title: e.Title}, nil
		}
	case db.ResourcePrayerRequest:
		if p, ok := m.prayers[id]; ok {
			return &db.Resource{ID: p.ID, Type: t, OwnerID: p.OwnerID, Title: p.Title, Anonymous: p.Anonymous}, nil
		}
	}
	return nil, db.ErrNotFound
}

func (m *mockRepo) LikeResource(ctx context.Context, t db.ResourceType, resourceID, userID uuid.UUID) (*db.Like, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := likeKey{resourceID, userID}
	if m.likes[k] {
		return nil, db.ErrAlreadyExists
	}
	m.likes[k] = true
	return &db.Like{ID: uuid.New(), ResourceID: resourceID, UserID: userID, CreatedAt: time.Now()}, nil
}

func (m *mockRepo) UnlikeResource(ctx context.Context, t db.ResourceType, resourceID, userID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := likeKey{resourceID, userID}
	if !m.likes[k] {
		return db.ErrNotFound
	}
	delete(m.likes, k)
	return nil
}

func (m *mockRepo) AddComment(ctx context.Context, t db.ResourceType, resourceID, userID uuid.UUID, text string) (*db.Comment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := &db.Comment{ID: uuid.New(), ResourceID: resourceID, UserID: userID, Text: text, CreatedAt: time.Now()}
	m.comments = append(m.comments, c)
	return c, nil
}

// recordingNotifier remembers what the handlers asked to send.
type recordingNotifier struct {
	mu       sync.Mutex
	created  []*db.Event
	liked    []*db.Resource
	comments []*db.Comment
}

func closedResult() <-chan notify.DispatchResult {
	ch := make(chan notify.DispatchResult)
	close(ch)
	return ch
}

func (n *recordingNotifier) NotifyEventCreated(ctx context.Context, event *db.Event, creator *db.User) <-chan notify.DispatchResult {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.created = append(n.created, event)
	return closedResult()
}

func (n *recordingNotifier) NotifyResourceLiked(ctx context.Context, resource *db.Resource, like *db.Like, actor *db.User) <-chan notify.DispatchResult {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.liked = append(n.liked, resource)
	return closedResult()
}

func (n *recordingNotifier) NotifyResourceCommented(ctx context.Context, resource *db.Resource, comment *db.Comment, actor *db.User) <-chan notify.DispatchResult {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.comments = append(n.comments, comment)
	return closedResult()
}

type stubTitles struct {
	title string
	err   error
}

func (s stubTitles) Title(ctx context.Context, text string) (string, error) {
	return s.title, s.err
}

type stubDeduper struct {
	first bool
	err   error
}

func (s stubDeduper) ShouldNotify(ctx context.Context, resourceType, resourceID, actorID string) (bool, error) {
	return s.first, s.err
}

type testEnv struct {
	repo     *mockRepo
	notifier *recordingNotifier
	router   http.Handler
	user     *db.User
}

// newTestEnv builds the full router over in-memory dependencies. deps
// fields left zero get the mocks.
func newTestEnv(t *testing.T, deps Deps) *testEnv {
	t.Helper()

	repo := newMockRepo()
	notifier := &recordingNotifier{}
	if deps.Repo == nil {
		deps.Repo = repo
	}
	if deps.Notifier == nil {
		deps.Notifier = notifier
	}

	h := NewHandler(zap.NewNop(), deps)
	router := NewRouter(h, RouterConfig{JWTSecret: testJWTSecret, AllowedOrigins: []string{"*"}}, zap.NewNop())

	return &testEnv{
		repo:     repo,
		notifier: notifier,
		router:   router,
		user:     repo.addUser("Ana Lima"),
	}
}

func signToken(t *testing.T, claims jwt.MapClaims, secret []byte) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return token
}

// do sends a request as user (no auth header when user is nil).
func (e *testEnv) do(t *testing.T, user *db.User, method, path, body string, headers ...string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if user != nil {
		req.Header.Set("Authorization", "Bearer "+signToken(t, jwt.MapClaims{"userID": user.ID.String()}, testJWTSecret))
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}
