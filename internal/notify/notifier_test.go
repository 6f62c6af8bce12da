package notify

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lalithlochan/fellowship/internal/db"
	"github.com/lalithlochan/fellowship/internal/push"
)

// Actor U1 creates an event. U2 and U3 follow with event notifications on,
// U4 follows with the master switch off. U2 has two devices, U3 one.
func TestDispatch_EventCreatedFanOut(t *testing.T) {
	store := newMockStore()
	u1, u2, u3, u4 := uuid.New(), uuid.New(), uuid.New(), uuid.New()

	store.followers[u1] = []uuid.UUID{u2, u3, u4}
	store.preferences[u2] = db.DefaultPreferences(u2)
	store.preferences[u3] = db.DefaultPreferences(u3)
	off := db.DefaultPreferences(u4)
	off.NotificationsEnabled = false
	off.EventNotifications = true
	store.preferences[u4] = off

	store.addToken(u2, "ExpoPushToken[u2-phone]")
	store.addToken(u2, "ExpoPushToken[u2-tablet]")
	store.addToken(u3, "ExpoPushToken[u3-phone]")
	store.addToken(u4, "ExpoPushToken[u4-phone]")

	n, d := newTestNotifier(store)
	result := n.Dispatch(context.Background(), EventCreated{
		Actor: Actor{ID: u1, DisplayName: "U1"},
		Event: Resource{ID: resourceID, OwnerID: u1, Title: "Picnic", Type: db.ResourceEvent},
	})

	if result.Candidates != 3 || result.Recipients != 2 || result.Tokens != 3 {
		t.Errorf("expected candidates=3 recipients=2 tokens=3, got %+v", result)
	}
	if len(d.messages) != 3 || result.Sent != 3 {
		t.Fatalf("expected exactly 3 messages sent, got %d (%+v)", len(d.messages), result)
	}
	for _, m := range d.messages {
		if m.To == "ExpoPushToken[u4-phone]" {
			t.Error("user with master switch off must not be notified")
		}
	}
}

func TestDispatch_SelfLikeSendsNothing(t *testing.T) {
	store := newMockStore()
	store.addToken(actorID, "ExpoPushToken[self]")

	n, d := newTestNotifier(store)
	result := n.Dispatch(context.Background(), ResourceLiked{
		Actor:    testActor(),
		Resource: Resource{ID: resourceID, OwnerID: actorID, Title: "R1", Type: db.ResourcePrayerRequest},
		Like:     Action{ID: actionID},
	})

	if result.Candidates != 0 || result.Tokens != 0 || result.Sent != 0 {
		t.Errorf("expected an empty dispatch, got %+v", result)
	}
	if len(d.messages) != 0 {
		t.Errorf("expected no messages, got %d", len(d.messages))
	}
	if store.prefsCalled || store.tokensCalled {
		t.Error("later stages must not run without recipients")
	}
}

func TestDispatch_ActorNeverNotified(t *testing.T) {
	store := newMockStore()
	store.followers[actorID] = []uuid.UUID{actorID, ownerID}
	store.addToken(actorID, "ExpoPushToken[actor]")
	store.addToken(ownerID, "ExpoPushToken[owner]")

	n, d := newTestNotifier(store)
	n.Dispatch(context.Background(), EventCreated{
		Actor: testActor(),
		Event: Resource{ID: resourceID, OwnerID: actorID, Type: db.ResourceEvent},
	})

	for _, m := range d.messages {
		if m.To == "ExpoPushToken[actor]" {
			t.Fatal("actor received their own notification")
		}
	}
	if len(d.messages) != 1 {
		t.Errorf("expected 1 message, got %d", len(d.messages))
	}
}

// scriptedGateway returns DeviceNotRegistered for every message.
type scriptedGateway struct{}

func (scriptedGateway) Send(ctx context.Context, batch []push.Message) ([]push.Ticket, error) {
	tickets := make([]push.Ticket, len(batch))
	for i := range tickets {
		tickets[i] = push.Ticket{
			Status:  push.StatusError,
			Details: &push.TicketDetails{Error: push.ErrCodeDeviceNotRegistered},
		}
	}
	return tickets, nil
}

func TestDispatch_UnregisteredDeviceDisablesToken(t *testing.T) {
	store := newMockStore()
	store.addToken(ownerID, "ExpoPushToken[stale]")

	dispatcher := push.NewDispatcher(scriptedGateway{}, store, nil, push.Config{}, zap.NewNop())
	n := NewNotifier(store, dispatcher, time.Second, zap.NewNop())

	result := n.Dispatch(context.Background(), ResourceCommented{
		Actor:    testActor(),
		Resource: Resource{ID: resourceID, OwnerID: ownerID, Type: db.ResourceEvent},
		Comment:  Action{ID: actionID, Text: "hi"},
	})

	if result.Sent != 0 || result.Failed != 1 {
		t.Errorf("expected sent=0 failed=1, got %+v", result)
	}
	if store.tokens[0].DisabledAt == nil {
		t.Error("expected token to be disabled")
	}

	// a second dispatch finds no active token
	again := n.Dispatch(context.Background(), ResourceCommented{
		Actor:    testActor(),
		Resource: Resource{ID: resourceID, OwnerID: ownerID, Type: db.ResourceEvent},
		Comment:  Action{ID: actionID, Text: "hi"},
	})
	if again.Tokens != 0 {
		t.Errorf("expected disabled token to be skipped, got %+v", again)
	}
}

func TestNotifyEntryPoints(t *testing.T) {
	store := newMockStore()
	owner := &db.User{ID: ownerID, FullName: "Owner"}
	actor := &db.User{ID: actorID, FullName: "Actor"}
	store.followers[ownerID] = []uuid.UUID{actorID}
	store.addToken(ownerID, "ExpoPushToken[owner]")
	store.addToken(actorID, "ExpoPushToken[actor]")

	n, _ := newTestNotifier(store)

	resource := &db.Resource{ID: resourceID, OwnerID: ownerID, Title: "R", Type: db.ResourcePrayerRequest}

	tests := []struct {
		name     string
		ch       <-chan DispatchResult
		wantKind string
	}{
		{"event created", n.NotifyEventCreated(context.Background(), &db.Event{ID: resourceID, OwnerID: ownerID, Title: "E"}, owner), "event_created"},
		{"liked", n.NotifyResourceLiked(context.Background(), resource, &db.Like{ID: actionID}, actor), "prayer_request_like"},
		{"commented", n.NotifyResourceCommented(context.Background(), resource, &db.Comment{ID: actionID, Text: "amen"}, actor), "prayer_request_comment"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			select {
			case res, ok := <-tt.ch:
				if !ok {
					t.Fatal("channel closed without a result")
				}
				if res.Kind != tt.wantKind || res.Sent != 1 {
					t.Errorf("unexpected result %+v", res)
				}
			case <-time.After(2 * time.Second):
				t.Fatal("timed out waiting for dispatch")
			}
		})
	}
}

func TestNotify_DetachedFromCallerContext(t *testing.T) {
	store := newMockStore()
	store.addToken(ownerID, "ExpoPushToken[owner]")
	n, d := newTestNotifier(store)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := <-n.NotifyResourceLiked(ctx,
		&db.Resource{ID: resourceID, OwnerID: ownerID, Type: db.ResourceEvent},
		&db.Like{ID: actionID},
		&db.User{ID: actorID, FullName: "A"},
	)

	if res.Sent != 1 || len(d.messages) != 1 {
		t.Errorf("dispatch should survive the request context, got %+v", res)
	}
}

func TestNotify_RecoversPanics(t *testing.T) {
	store := newMockStore()
	store.panicOnLookup = true
	n, _ := newTestNotifier(store)

	ch := n.NotifyEventCreated(context.Background(), &db.Event{ID: resourceID}, &db.User{ID: actorID})

	select {
	case _, ok := <-ch:
		if ok {
			t.Error("expected no result from a panicking dispatch")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for the channel to close")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := n.Wait(ctx); err != nil {
		t.Errorf("expected wait to finish, got %v", err)
	}
}

// blockingDispatcher holds dispatches until release is closed.
type blockingDispatcher struct {
	release chan struct{}
}

func (b *blockingDispatcher) Dispatch(ctx context.Context, messages []push.Message) push.Result {
	<-b.release
	return push.Result{Sent: len(messages)}
}

func TestWait(t *testing.T) {
	store := newMockStore()
	store.addToken(ownerID, "ExpoPushToken[owner]")
	bd := &blockingDispatcher{release: make(chan struct{})}
	n := NewNotifier(store, bd, time.Minute, zap.NewNop())

	for i := 0; i < 3; i++ {
		n.NotifyResourceCommented(context.Background(),
			&db.Resource{ID: resourceID, OwnerID: ownerID, Type: db.ResourceEvent},
			&db.Comment{ID: uuid.New(), Text: fmt.Sprintf("c%d", i)},
			&db.User{ID: actorID},
		)
	}

	short, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := n.Wait(short); err == nil {
		t.Fatal("expected wait to time out while dispatches are blocked")
	}

	close(bd.release)

	ctx, cancel2 := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel2()
	if err := n.Wait(ctx); err != nil {
		t.Errorf("expected wait to finish after release, got %v", err)
	}
}
