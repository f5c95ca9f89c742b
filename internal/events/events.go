// Package events describes the change notifications emitted after a write
// commits, and the fan-out used to deliver them to every configured sink.
package events

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/google/uuid"
)

// Type names a kind of committed change.
type Type string

const (
	UserCreated Type = "user.created"
	UserDeleted Type = "user.deleted"
	TaskCreated Type = "task.created"
	TaskUpdated Type = "task.updated"
	TaskDeleted Type = "task.deleted"
)

// Event is one committed change.
type Event struct {
	ID       string    `json:"id"        bson:"event_id"`
	Type     Type      `json:"type"      bson:"type"`
	EntityID int64     `json:"entity_id" bson:"entity_id"`
	UserID   int64     `json:"user_id"   bson:"user_id"`
	At       time.Time `json:"at"        bson:"at"`
	Payload  any       `json:"payload"   bson:"payload"`
}

// New stamps an event with a fresh id and the current time.
func New(t Type, entityID, userID int64, payload any) Event {
	return Event{
		ID:       uuid.NewString(),
		Type:     t,
		EntityID: entityID,
		UserID:   userID,
		At:       time.Now().UTC(),
		Payload:  payload,
	}
}

// Publisher delivers events to a sink.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// Nop discards every event.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }

// Multi publishes to each sink in order and joins their errors.
type Multi []Publisher

func (m Multi) Publish(ctx context.Context, e Event) error {
	var errs []error
	for _, p := range m {
		if err := p.Publish(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Emit publishes e and logs a failure instead of returning it. Callers use it
// after the change has committed, when the outcome can no longer change.
func Emit(ctx context.Context, p Publisher, e Event) {
	if p == nil {
		return
	}
	if err := p.Publish(ctx, e); err != nil {
		log.Printf("publish %s %d: %v", e.Type, e.EntityID, err)
	}
}
