package api

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/personal-site-api/internal/notes"
)

func (s *Server) listActiveNotes(w http.ResponseWriter, r *http.Request) {
	list, err := s.deps.Notes.Active(r.Context())
	s.writeNoteList(w, list, err)
}

func (s *Server) listDeletedNotes(w http.ResponseWriter, r *http.Request) {
	list, err := s.deps.Notes.Deleted(r.Context())
	s.writeNoteList(w, list, err)
}

// writeNoteList answers with an empty list when the store fails; the board just renders empty.
func (s *Server) writeNoteList(w http.ResponseWriter, list []notes.Note, err error) {
	if err != nil {
		s.logger.Error("list notes failed", zap.Error(err))
		list = nil
	}
	if list == nil {
		list = []notes.Note{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) getNote(w http.ResponseWriter, r *http.Request) {
	id, ok := noteID(w, r)
	if !ok {
		return
	}
	note, err := s.deps.Notes.Get(r.Context(), id)
	if err != nil {
		s.writeNoteError(w, err, "failed to load sticky note")
		return
	}
	writeJSON(w, http.StatusOK, note)
}

func (s *Server) createNote(w http.ResponseWriter, r *http.Request) {
	params, err := noteParams(r.URL.Query())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	note, err := s.deps.Notes.Create(r.Context(), params)
	if err != nil {
		s.writeNoteError(w, err, "error saving sticky note")
		return
	}
	writeJSON(w, http.StatusOK, note)
}

func (s *Server) updateNote(w http.ResponseWriter, r *http.Request) {
	id, ok := noteID(w, r)
	if !ok {
		return
	}
	params, err := noteParams(r.URL.Query())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.deps.Notes.Update(r.Context(), id, params); err != nil {
		s.writeNoteError(w, err, "error updating sticky note")
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) deleteNote(w http.ResponseWriter, r *http.Request) {
	id, ok := noteID(w, r)
	if !ok {
		return
	}
	if err := s.deps.Notes.Delete(r.Context(), id); err != nil {
		s.writeNoteError(w, err, "error deleting sticky note")
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) writeNoteError(w http.ResponseWriter, err error, msg string) {
	switch {
	case errors.Is(err, notes.ErrNotFound):
		writeError(w, http.StatusNotFound, "sticky note not found")
	case errors.Is(err, notes.ErrInvalidParams):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		s.logger.Error(msg, zap.Error(err))
		writeError(w, http.StatusInternalServerError, msg)
	}
}

func noteID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id < 0 {
		writeError(w, http.StatusBadRequest, "invalid note id")
		return 0, false
	}
	return id, true
}

// noteParams reads content, x and y from the query string. All three are required.
func noteParams(q url.Values) (notes.Params, error) {
	if !q.Has("content") {
		return notes.Params{}, errors.New("content is required")
	}
	x, err := coordinate(q, "x")
	if err != nil {
		return notes.Params{}, err
	}
	y, err := coordinate(q, "y")
	if err != nil {
		return notes.Params{}, err
	}
	return notes.Params{Content: q.Get("content"), X: x, Y: y}, nil
}

func coordinate(q url.Values, name string) (int64, error) {
	if !q.Has(name) {
		return 0, fmt.Errorf("%s is required", name)
	}
	v, err := strconv.ParseInt(q.Get(name), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer", name)
	}
	return v, nil
}
