// Package events turns activity envelopes read from a queue into
// notification dispatches.
package events

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/lalithlochan/fellowship/internal/db"
)

// Envelope types.
const (
	TypeEventCreated      = "event.created"
	TypeResourceLiked     = "resource.liked"
	TypeResourceCommented = "resource.commented"
)

// ErrMalformed marks envelopes that can never be processed. Consumers
// acknowledge them instead of redelivering.
var ErrMalformed = errors.New("malformed envelope")

// Envelope is the wire shape shared by the kafka and sqs consumers.
type Envelope struct {
	Type         string          `json:"type"`
	ActorID      uuid.UUID       `json:"actorId"`
	ResourceType db.ResourceType `json:"resourceType"`
	ResourceID   uuid.UUID       `json:"resourceId"`
	ActionID     *uuid.UUID      `json:"actionId,omitempty"`
	Text         string          `json:"text,omitempty"`
}

// Parse decodes and validates one envelope.
func Parse(body []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
	}

	if env.ActorID == uuid.Nil {
		return nil, fmt.Errorf("%w: actorId is required", ErrMalformed)
	}
	if env.ResourceID == uuid.Nil {
		return nil, fmt.Errorf("%w: resourceId is required", ErrMalformed)
	}

	switch env.Type {
	case TypeEventCreated:
		if env.ResourceType == "" {
			env.ResourceType = db.ResourceEvent
		}
		if env.ResourceType != db.ResourceEvent {
			return nil, fmt.Errorf("%w: %s must reference an event", ErrMalformed, env.Type)
		}
	case TypeResourceLiked, TypeResourceCommented:
		if env.ResourceType != db.ResourceEvent && env.ResourceType != db.ResourcePrayerRequest {
			return nil, fmt.Errorf("%w: unknown resourceType %q", ErrMalformed, env.ResourceType)
		}
	default:
		return nil, fmt.Errorf("%w: unknown type %q", ErrMalformed, env.Type)
	}

	return &env, nil
}
