package domain

import (
	"context"
	"time"
)

// EventType identifies the kind of event being published on the in-process bus.
type EventType string

const (
	EventStreamStarted   EventType = "stream.started"
	EventStreamDelta     EventType = "stream.delta"
	EventStreamCompleted EventType = "stream.completed"
	EventStreamError     EventType = "stream.error"

	EventToolCallStarted   EventType = "tool.call.started"
	EventToolCallCompleted EventType = "tool.call.completed"

	EventSceneChanged  EventType = "scene.changed"
	EventImageInserted EventType = "scene.image.inserted"

	EventProjectCreated EventType = "project.created"
	EventProjectSaved   EventType = "project.saved"
	EventProjectDeleted EventType = "project.deleted"

	EventMessagesSaved EventType = "messages.saved"
)

// Event is published on the event bus.
type Event struct {
	Type      EventType
	Timestamp time.Time
	Payload   any
}

// EventHandler handles a published event.
type EventHandler func(ctx context.Context, event Event)

// EventBus fans events out to subscribers.
type EventBus interface {
	Publish(ctx context.Context, event Event)
	Subscribe(eventType EventType, handler EventHandler) func()
	SubscribeAll(handler EventHandler) func()
}

// NewEvent builds an event stamped with the current time.
func NewEvent(t EventType, payload any) Event {
	return Event{Type: t, Timestamp: time.Now(), Payload: payload}
}
