package api

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/JakeFAU/personal-site-api/internal/config"
	"github.com/JakeFAU/personal-site-api/internal/hash/sha256"
	"github.com/JakeFAU/personal-site-api/internal/letterboxd"
	"github.com/JakeFAU/personal-site-api/internal/logging"
	"github.com/JakeFAU/personal-site-api/internal/metrics"
	"github.com/JakeFAU/personal-site-api/internal/notes"
)

// NoteService is the sticky-note behavior the handlers need.
type NoteService interface {
	Active(ctx context.Context) ([]notes.Note, error)
	Deleted(ctx context.Context) ([]notes.Note, error)
	Get(ctx context.Context, id int64) (notes.Note, error)
	Create(ctx context.Context, params notes.Params) (notes.Note, error)
	Update(ctx context.Context, id int64, params notes.Params) error
	Delete(ctx context.Context, id int64) error
	Ping(ctx context.Context) error
}

// PaintService loads and replaces the canvas image.
type PaintService interface {
	Get(ctx context.Context) ([]byte, error)
	Save(ctx context.Context, r io.Reader) (string, error)
}

// RecentTracksService proxies last.fm.
type RecentTracksService interface {
	DefaultUser() string
	RecentTracks(ctx context.Context, user string) (json.RawMessage, error)
}

// FilmDiaryService serves the letterboxd diary.
type FilmDiaryService interface {
	Films(ctx context.Context) ([]letterboxd.FilmData, error)
}

// IDGenerator mints request ids.
type IDGenerator interface {
	NewRequestID() string
}

// Deps bundles the services behind the routes.
type Deps struct {
	Notes      NoteService
	Paint      PaintService
	LastFM     RecentTracksService
	Letterboxd FilmDiaryService
	IDs        IDGenerator
}

// Server wires HTTP handlers to the site services.
type Server struct {
	router chi.Router
	deps   Deps
	cfg    config.Config
	hasher *sha256.Hasher
	logger *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(deps Deps, cfg config.Config, logger *zap.Logger) *Server {
	s := &Server{
		deps:   deps,
		cfg:    cfg,
		hasher: sha256.New(),
		logger: logging.OrNop(logger).Named("api"),
	}
	r := chi.NewRouter()
	r.Use(requestIDMiddleware(deps.IDs))
	r.Use(loggingMiddleware(s.logger))
	r.Use(recoverMiddleware(s.logger))
	r.Use(metrics.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORS.AllowedOrigins,
		AllowedMethods:   []string{"POST", "GET", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		ExposedHeaders:   []string{"X-Request-ID", "ETag"},
		AllowCredentials: cfg.CORS.AllowCredentials,
		MaxAge:           cfg.CORS.MaxAgeSeconds,
	}))
	r.Use(optionsMiddleware)
	if d := cfg.RequestTimeout(); d > 0 {
		r.Use(timeoutMiddleware(d))
	}

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/notes", func(r chi.Router) {
		r.Get("/", s.listActiveNotes)
		r.Get("/deleted", s.listDeletedNotes)
		r.Get("/{id}", s.getNote)
		r.Group(func(r chi.Router) {
			s.useWriteGuards(r)
			r.Post("/", s.createNote)
			r.Patch("/{id}", s.updateNote)
			r.Delete("/{id}", s.deleteNote)
		})
	})

	r.Route("/paint", func(r chi.Router) {
		r.Get("/", s.getPaint)
		r.Group(func(r chi.Router) {
			s.useWriteGuards(r)
			r.Patch("/", s.setPaint)
		})
	})

	r.Route("/lastfm", func(r chi.Router) {
		r.Get("/", s.redirectDefaultLastFMUser)
		r.Get("/{username}", s.getRecentTracks)
	})

	r.Route("/letterboxd", func(r chi.Router) {
		r.Get("/", s.getFilms)
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) useWriteGuards(r chi.Router) {
	if s.cfg.RateLimit.Enabled && s.cfg.RateLimit.WriteRequests > 0 {
		r.Use(httprate.Limit(
			s.cfg.RateLimit.WriteRequests,
			time.Duration(s.cfg.RateLimit.WindowSeconds)*time.Second,
			httprate.WithKeyFuncs(httprate.KeyByIP),
			httprate.WithLimitHandler(func(w http.ResponseWriter, _ *http.Request) {
				writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			}),
		))
	}
	if s.cfg.Auth.Enabled {
		r.Use(apiKeyMiddleware(s.cfg.Auth.APIKey))
	}
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Notes.Ping(r.Context()); err != nil {
		s.logger.Warn("readiness check failed", zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, "note store unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
