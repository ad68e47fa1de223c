// Package notes implements the sticky-note board: note types, the persistence
// contract, and the service the HTTP handlers call.
package notes

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound signals that no note exists with the requested id.
var ErrNotFound = errors.New("note not found")

// Note is one sticky note on the board. CreatedAt is unix seconds.
type Note struct {
	ID        int64  `json:"id"`
	Content   string `json:"content"`
	CreatedAt int64  `json:"created_at"`
	X         int64  `json:"x"`
	Y         int64  `json:"y"`
}

// Params carries the editable fields of a note.
type Params struct {
	Content string
	X       int64 `validate:"gte=0,lte=4294967295"`
	Y       int64 `validate:"gte=0,lte=4294967295"`
}

// NewNote is what a Store persists on create.
type NewNote struct {
	Content   string
	CreatedAt int64
	X         int64
	Y         int64
}

// Store persists notes. Deleted notes stay in the table with a flag set.
type Store interface {
	// List returns notes whose deleted flag equals deleted, ordered by id.
	List(ctx context.Context, deleted bool) ([]Note, error)
	// Get returns a note regardless of its deleted flag, or ErrNotFound.
	Get(ctx context.Context, id int64) (Note, error)
	// Create inserts a note and returns it with its assigned id.
	Create(ctx context.Context, note NewNote) (Note, error)
	// Update replaces content and position, or returns ErrNotFound.
	Update(ctx context.Context, id int64, params Params) error
	// SoftDelete flags the note as deleted, or returns ErrNotFound.
	SoftDelete(ctx context.Context, id int64) error
	// Ping reports whether the store is reachable.
	Ping(ctx context.Context) error
}

// EventType names a note mutation.
type EventType string

// Note mutation kinds published to the event topic.
const (
	EventCreated EventType = "created"
	EventUpdated EventType = "updated"
	EventDeleted EventType = "deleted"
)

// Event is the payload published after every successful mutation.
type Event struct {
	ID     string    `json:"id"`
	Type   EventType `json:"type"`
	NoteID int64     `json:"note_id"`
	At     time.Time `json:"at"`
}

// Publisher fans note events out to subscribers.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// IDGenerator mints event ids.
type IDGenerator interface {
	NewID() (string, error)
}
