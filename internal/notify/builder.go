package notify

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/lalithlochan/fellowship/internal/db"
	"github.com/lalithlochan/fellowship/internal/push"
)

const commentPreviewRunes = 50

// Data is the payload the mobile app uses to navigate on tap.
type Data struct {
	Route    string `json:"route"`
	Type     string `json:"type"`
	ID       string `json:"id"`
	ActorID  string `json:"actorId"`
	ActionID string `json:"actionId,omitempty"`
}

// Content is the rendered notification, shared by every recipient token.
type Content struct {
	Title string
	Body  string
	Data  Data
}

// BuildMessage renders a notification. It does no I/O and the same input
// always yields the same Content.
func BuildMessage(n Notification) Content {
	switch n := n.(type) {
	case EventCreated:
		return Content{
			Title: fmt.Sprintf("%s created a new event", n.Actor.DisplayName),
			Body:  n.Event.Title,
			Data:  dataFor(n.Event, n.Actor, uuid.Nil),
		}

	case ResourceLiked:
		body := n.Resource.Title
		if n.Resource.Anonymous {
			body = "Someone liked your " + noun(n.Resource.Type)
		}
		return Content{
			Title: fmt.Sprintf("%s liked your %s", n.Actor.DisplayName, noun(n.Resource.Type)),
			Body:  body,
			Data:  dataFor(n.Resource, n.Actor, n.Like.ID),
		}

	case ResourceCommented:
		return Content{
			Title: fmt.Sprintf("%s commented on your %s", n.Actor.DisplayName, noun(n.Resource.Type)),
			Body:  truncate(n.Comment.Text, commentPreviewRunes),
			Data:  dataFor(n.Resource, n.Actor, n.Comment.ID),
		}

	default:
		panic(fmt.Sprintf("notify: unhandled notification %T", n))
	}
}

// Messages addresses the content to each token.
func (c Content) Messages(tokens []db.PushToken) []push.Message {
	messages := make([]push.Message, 0, len(tokens))
	for _, t := range tokens {
		messages = append(messages, push.Message{
			To:    t.Token,
			Title: c.Title,
			Body:  c.Body,
			Data:  c.Data,
			Sound: "default",
			Badge: 1,
		})
	}
	return messages
}

func dataFor(r Resource, actor Actor, actionID uuid.UUID) Data {
	d := Data{
		Route:   route(r),
		Type:    string(r.Type),
		ID:      r.ID.String(),
		ActorID: actor.ID.String(),
	}
	if actionID != uuid.Nil {
		d.ActionID = actionID.String()
	}
	return d
}

func route(r Resource) string {
	switch r.Type {
	case db.ResourcePrayerRequest:
		return "/prayer-request/" + r.ID.String()
	default:
		return "/event/" + r.ID.String()
	}
}

func noun(t db.ResourceType) string {
	if t == db.ResourcePrayerRequest {
		return "prayer request"
	}
	return "event"
}

func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "..."
}
