package queue

import (
	"context"
	"time"
)

var DocumentUpdateTopic = "manuscript.document.updates"

// EventKind classifies document change events.
type EventKind string

const (
	EventUpdate  EventKind = "update"
	EventRestore EventKind = "restore"
	EventDelete  EventKind = "delete"
)

// Event is published after every authoritative document write so
// downstream consumers (search indexing, analytics) can react without
// polling the store.
type Event struct {
	DocumentID string    `json:"document_id"`
	Kind       EventKind `json:"kind"`
	WordCount  int       `json:"word_count"`
	UpdatedAt  time.Time `json:"updated_at"`
}

type DocumentQueue interface {
	// PublishChange appends a document change event to the queue.
	PublishChange(ctx context.Context, event *Event) error
	// Subscribe returns a channel of document change events. The channel is
	// closed when the context is cancelled.
	Subscribe(ctx context.Context) (<-chan *Event, error)
	Close() error
}
