package api

import (
	"errors"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/personal-site-api/internal/lastfm"
)

func (s *Server) redirectDefaultLastFMUser(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, "/lastfm/"+url.PathEscape(s.deps.LastFM.DefaultUser()), http.StatusSeeOther)
}

func (s *Server) getRecentTracks(w http.ResponseWriter, r *http.Request) {
	user := chi.URLParam(r, "username")
	body, err := s.deps.LastFM.RecentTracks(r.Context(), user)
	if errors.Is(err, lastfm.ErrInvalidUser) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		s.logger.Warn("lastfm fetch failed", zap.String("user", user), zap.Error(err))
		writeError(w, http.StatusBadGateway, "lastfm unavailable")
		return
	}
	writeRawJSON(w, http.StatusOK, body)
}

func (s *Server) getFilms(w http.ResponseWriter, r *http.Request) {
	films, err := s.deps.Letterboxd.Films(r.Context())
	if err != nil {
		s.logger.Warn("letterboxd scrape failed", zap.Error(err))
		writeError(w, http.StatusBadGateway, "letterboxd unavailable")
		return
	}
	writeJSON(w, http.StatusOK, films)
}
