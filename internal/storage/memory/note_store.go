package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/JakeFAU/personal-site-api/internal/notes"
)

type storedNote struct {
	note    notes.Note
	deleted bool
}

// NoteStore keeps sticky notes in a map. It backs local development when no DSN is set.
type NoteStore struct {
	mu     sync.RWMutex
	nextID int64
	notes  map[int64]storedNote
}

var _ notes.Store = (*NoteStore)(nil)

// NewNoteStore creates an empty in-memory note store.
func NewNoteStore() *NoteStore {
	return &NoteStore{notes: make(map[int64]storedNote)}
}

// List returns notes matching the deleted flag ordered by id.
func (s *NoteStore) List(_ context.Context, deleted bool) ([]notes.Note, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]notes.Note, 0, len(s.notes))
	for _, n := range s.notes {
		if n.deleted == deleted {
			out = append(out, n.note)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Get returns a note by id, deleted or not.
func (s *NoteStore) Get(_ context.Context, id int64) (notes.Note, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.notes[id]
	if !ok {
		return notes.Note{}, notes.ErrNotFound
	}
	return n.note, nil
}

// Create assigns the next id and stores the note.
func (s *NoteStore) Create(_ context.Context, in notes.NewNote) (notes.Note, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	note := notes.Note{
		ID:        s.nextID,
		Content:   in.Content,
		CreatedAt: in.CreatedAt,
		X:         in.X,
		Y:         in.Y,
	}
	s.notes[note.ID] = storedNote{note: note}
	return note, nil
}

// Update rewrites content and position.
func (s *NoteStore) Update(_ context.Context, id int64, params notes.Params) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.notes[id]
	if !ok {
		return notes.ErrNotFound
	}
	n.note.Content = params.Content
	n.note.X = params.X
	n.note.Y = params.Y
	s.notes[id] = n
	return nil
}

// SoftDelete flags a note as deleted.
func (s *NoteStore) SoftDelete(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.notes[id]
	if !ok {
		return notes.ErrNotFound
	}
	n.deleted = true
	s.notes[id] = n
	return nil
}

// Ping always succeeds.
func (s *NoteStore) Ping(context.Context) error { return nil }
