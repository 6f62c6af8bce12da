// Package notify turns activity (new events, likes, comments) into push
// notifications: build the message, resolve recipients, apply preferences,
// look up tokens, and hand off to the push dispatcher.
package notify

import (
	"github.com/google/uuid"

	"github.com/lalithlochan/fellowship/internal/db"
)

// Actor is the user whose action triggered the notification.
type Actor struct {
	ID          uuid.UUID
	DisplayName string
}

// Resource is the event or prayer request the notification is about.
type Resource struct {
	ID        uuid.UUID
	OwnerID   uuid.UUID
	Title     string
	Anonymous bool
	Type      db.ResourceType
}

// Action is the like or comment record, when there is one.
type Action struct {
	ID   uuid.UUID
	Text string
}

// Notification is one of EventCreated, ResourceLiked or ResourceCommented.
// The set is closed: the unexported method keeps other packages from adding
// variants.
type Notification interface {
	// Kind names the variant for logs and metrics, e.g. "event_like".
	Kind() string
	ActorID() uuid.UUID
	sealed()
}

// EventCreated goes to the followers of the event's creator.
type EventCreated struct {
	Actor Actor
	Event Resource
}

// ResourceLiked goes to the resource owner.
type ResourceLiked struct {
	Actor    Actor
	Resource Resource
	Like     Action
}

// ResourceCommented goes to the resource owner.
type ResourceCommented struct {
	Actor    Actor
	Resource Resource
	Comment  Action
}

func (EventCreated) Kind() string        { return "event_created" }
func (n ResourceLiked) Kind() string     { return string(n.Resource.Type) + "_like" }
func (n ResourceCommented) Kind() string { return string(n.Resource.Type) + "_comment" }

func (n EventCreated) ActorID() uuid.UUID      { return n.Actor.ID }
func (n ResourceLiked) ActorID() uuid.UUID     { return n.Actor.ID }
func (n ResourceCommented) ActorID() uuid.UUID { return n.Actor.ID }

func (EventCreated) sealed()      {}
func (ResourceLiked) sealed()     {}
func (ResourceCommented) sealed() {}

// ActorFromUser picks the name shown in notification titles.
func ActorFromUser(u *db.User) Actor {
	name := u.FullName
	if name == "" && u.Username != nil {
		name = *u.Username
	}
	if name == "" {
		name = "Someone"
	}
	return Actor{ID: u.ID, DisplayName: name}
}

// ResourceFromEvent adapts a stored event.
func ResourceFromEvent(e *db.Event) Resource {
	return Resource{
		ID:      e.ID,
		OwnerID: e.OwnerID,
		Title:   e.Title,
		Type:    db.ResourceEvent,
	}
}

// ResourceFromDB adapts the generic resource projection.
func ResourceFromDB(r *db.Resource) Resource {
	return Resource{
		ID:        r.ID,
		OwnerID:   r.OwnerID,
		Title:     r.Title,
		Anonymous: r.Anonymous,
		Type:      r.Type,
	}
}
