package events

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lalithlochan/fellowship/internal/db"
	"github.com/lalithlochan/fellowship/internal/notify"
)

type fakeStore struct {
	mu        sync.Mutex
	users     map[uuid.UUID]*db.User
	events    map[uuid.UUID]*db.Event
	resources map[uuid.UUID]*db.Resource
	userCalls int
	failWith  error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		users:     make(map[uuid.UUID]*db.User),
		events:    make(map[uuid.UUID]*db.Event),
		resources: make(map[uuid.UUID]*db.Resource),
	}
}

func (s *fakeStore) GetUser(ctx context.Context, id uuid.UUID) (*db.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.userCalls++
	if s.failWith != nil {
		return nil, s.failWith
	}
	u, ok := s.users[id]
	if !ok {
		return nil, db.ErrNotFound
	}
	return u, nil
}

func (s *fakeStore) GetEvent(ctx context.Context, id uuid.UUID) (*db.Event, error) {
	e, ok := s.events[id]
	if !ok {
		return nil, db.ErrNotFound
	}
	return e, nil
}

func (s *fakeStore) GetResource(ctx context.Context, t db.ResourceType, id uuid.UUID) (*db.Resource, error) {
	r, ok := s.resources[id]
	if !ok || r.Type != t {
		return nil, db.ErrNotFound
	}
	return r, nil
}

type fakeNotifier struct {
	got []notify.Notification
}

func (n *fakeNotifier) Dispatch(ctx context.Context, note notify.Notification) notify.DispatchResult {
	n.got = append(n.got, note)
	return notify.DispatchResult{Kind: note.Kind()}
}

func TestParse(t *testing.T) {
	actor := uuid.New()
	resource := uuid.New()

	tests := []struct {
		name    string
		body    string
		wantErr bool
		want    db.ResourceType
	}{
		{
			name: "event created defaults resource type",
			body: fmt.Sprintf(`{"type":"event.created","actorId":%q,"resourceId":%q}`, actor, resource),
			want: db.ResourceEvent,
		},
		{
			name: "prayer like",
			body: fmt.Sprintf(`{"type":"resource.liked","actorId":%q,"resourceType":"prayer_request","resourceId":%q}`, actor, resource),
			want: db.ResourcePrayerRequest,
		},
		{
			name:    "not json",
			body:    `{"type":`,
			wantErr: true,
		},
		{
			name:    "unknown type",
			body:    fmt.Sprintf(`{"type":"user.deleted","actorId":%q,"resourceId":%q}`, actor, resource),
			wantErr: true,
		},
		{
			name:    "missing actor",
			body:    fmt.Sprintf(`{"type":"event.created","resourceId":%q}`, resource),
			wantErr: true,
		},
		{
			name:    "like without resource type",
			body:    fmt.Sprintf(`{"type":"resource.liked","actorId":%q,"resourceId":%q}`, actor, resource),
			wantErr: true,
		},
		{
			name:    "event created on a prayer request",
			body:    fmt.Sprintf(`{"type":"event.created","actorId":%q,"resourceType":"prayer_request","resourceId":%q}`, actor, resource),
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env, err := Parse([]byte(tt.body))
			if tt.wantErr {
				if !errors.Is(err, ErrMalformed) {
					t.Fatalf("expected ErrMalformed, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if env.ResourceType != tt.want {
				t.Errorf("expected resource type %s, got %s", tt.want, env.ResourceType)
			}
		})
	}
}

func TestHandleBatch(t *testing.T) {
	store := newFakeStore()
	notifier := &fakeNotifier{}
	h := NewHandler(store, notifier, zap.NewNop())

	actor := &db.User{ID: uuid.New(), FullName: "Ana"}
	store.users[actor.ID] = actor

	event := &db.Event{ID: uuid.New(), OwnerID: actor.ID, Title: "Picnic"}
	store.events[event.ID] = event

	prayer := &db.Resource{ID: uuid.New(), Type: db.ResourcePrayerRequest, OwnerID: uuid.New(), Title: "Healing"}
	store.resources[prayer.ID] = prayer

	commentID := uuid.New()
	bodies := [][]byte{
		[]byte(fmt.Sprintf(`{"type":"event.created","actorId":%q,"resourceId":%q}`, actor.ID, event.ID)),
		[]byte(fmt.Sprintf(`{"type":"resource.liked","actorId":%q,"resourceType":"prayer_request","resourceId":%q}`, actor.ID, prayer.ID)),
		[]byte(fmt.Sprintf(`{"type":"resource.commented","actorId":%q,"resourceType":"prayer_request","resourceId":%q,"actionId":%q,"text":"amen"}`, actor.ID, prayer.ID, commentID)),
		[]byte(`not json`),
		[]byte(fmt.Sprintf(`{"type":"resource.liked","actorId":%q,"resourceType":"event","resourceId":%q}`, actor.ID, uuid.New())),
	}

	errs := h.HandleBatch(context.Background(), "test", bodies)
	for i, err := range errs {
		if err != nil {
			t.Errorf("message %d: expected ack, got %v", i, err)
		}
	}

	if len(notifier.got) != 3 {
		t.Fatalf("expected 3 dispatches, got %d", len(notifier.got))
	}

	created, ok := notifier.got[0].(notify.EventCreated)
	if !ok || created.Event.ID != event.ID || created.Actor.DisplayName != "Ana" {
		t.Errorf("unexpected first notification %+v", notifier.got[0])
	}

	if _, ok := notifier.got[1].(notify.ResourceLiked); !ok {
		t.Errorf("expected ResourceLiked, got %T", notifier.got[1])
	}

	commented, ok := notifier.got[2].(notify.ResourceCommented)
	if !ok || commented.Comment.ID != commentID || commented.Comment.Text != "amen" {
		t.Errorf("unexpected comment notification %+v", notifier.got[2])
	}

	// The actor is looked up once per batch.
	if store.userCalls != 1 {
		t.Errorf("expected 1 user lookup, got %d", store.userCalls)
	}
}

func TestHandleBatch_CacheIsPerBatch(t *testing.T) {
	store := newFakeStore()
	h := NewHandler(store, &fakeNotifier{}, zap.NewNop())

	actor := &db.User{ID: uuid.New(), FullName: "Ana"}
	store.users[actor.ID] = actor
	event := &db.Event{ID: uuid.New(), OwnerID: actor.ID, Title: "Picnic"}
	store.events[event.ID] = event

	body := []byte(fmt.Sprintf(`{"type":"event.created","actorId":%q,"resourceId":%q}`, actor.ID, event.ID))

	h.HandleBatch(context.Background(), "test", [][]byte{body, body})
	if store.userCalls != 1 {
		t.Fatalf("expected 1 lookup within a batch, got %d", store.userCalls)
	}

	h.HandleBatch(context.Background(), "test", [][]byte{body})
	if store.userCalls != 2 {
		t.Errorf("expected a fresh lookup in a new batch, got %d", store.userCalls)
	}
}

func TestHandleBatch_TransientErrorIsReturned(t *testing.T) {
	store := newFakeStore()
	store.failWith = errors.New("connection refused")
	notifier := &fakeNotifier{}
	h := NewHandler(store, notifier, zap.NewNop())

	body := []byte(fmt.Sprintf(`{"type":"event.created","actorId":%q,"resourceId":%q}`, uuid.New(), uuid.New()))

	errs := h.HandleBatch(context.Background(), "test", [][]byte{body})
	if errs[0] == nil {
		t.Fatal("expected the store error to be returned")
	}
	if len(notifier.got) != 0 {
		t.Errorf("expected no dispatch, got %d", len(notifier.got))
	}
}
