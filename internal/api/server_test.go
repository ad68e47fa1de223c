package api

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/personal-site-api/internal/config"
	"github.com/JakeFAU/personal-site-api/internal/lastfm"
	"github.com/JakeFAU/personal-site-api/internal/letterboxd"
	"github.com/JakeFAU/personal-site-api/internal/notes"
	"github.com/JakeFAU/personal-site-api/internal/paint"
	"github.com/JakeFAU/personal-site-api/internal/publisher/memory"
	"github.com/JakeFAU/personal-site-api/internal/upstream"
	memstore "github.com/JakeFAU/personal-site-api/internal/storage/memory"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

type fakeIDs struct{}

func (fakeIDs) NewRequestID() string { return "req-1" }

type fakeLastFM struct {
	body json.RawMessage
	err  error
}

func (f *fakeLastFM) DefaultUser() string { return "I4ROVI" }

func (f *fakeLastFM) RecentTracks(_ context.Context, user string) (json.RawMessage, error) {
	if user == "" {
		return nil, lastfm.ErrInvalidUser
	}
	return f.body, f.err
}

type fakeDiary struct {
	films []letterboxd.FilmData
	err   error
}

func (f *fakeDiary) Films(context.Context) ([]letterboxd.FilmData, error) {
	return f.films, f.err
}

type brokenNotes struct {
	NoteService
}

func (brokenNotes) Active(context.Context) ([]notes.Note, error) { return nil, errors.New("db down") }
func (brokenNotes) Ping(context.Context) error                 { return errors.New("db down") }
func (brokenNotes) Create(context.Context, notes.Params) (notes.Note, error) {
	return notes.Note{}, errors.New("db down")
}

func testConfig() config.Config {
	return config.Config{
		Server:    config.ServerConfig{RequestTimeoutSeconds: 5},
		CORS:      config.CORSConfig{AllowedOrigins: []string{"*"}, AllowCredentials: true, MaxAgeSeconds: 300},
		RateLimit: config.RateLimitConfig{Enabled: false},
		Paint:     config.PaintConfig{ObjectName: "paint.png", Width: 4, Height: 2, MaxUploadBytes: 1 << 12},
	}
}

type testEnv struct {
	server *Server
	pub    *memory.Publisher
	lastfm *fakeLastFM
	diary  *fakeDiary
}

func newTestEnv(t *testing.T, cfg config.Config) *testEnv {
	t.Helper()
	pub := memory.New()
	noteSvc := notes.NewService(memstore.NewNoteStore(), &fakeClock{now: time.Unix(1700000000, 0)}, pub, nil,
		notes.Config{MaxContentLength: 20, EventsTopic: "notes"}, zap.NewNop())
	paintSvc := paint.NewService(paint.Config{
		ObjectName:     cfg.Paint.ObjectName,
		Width:          cfg.Paint.Width,
		Height:         cfg.Paint.Height,
		MaxUploadBytes: cfg.Paint.MaxUploadBytes,
	}, memstore.NewBlobStore(), zap.NewNop())
	env := &testEnv{
		pub:    pub,
		lastfm: &fakeLastFM{body: json.RawMessage(`{"recenttracks":{}}`)},
		diary:  &fakeDiary{films: []letterboxd.FilmData{{Name: "Heat", PosterURL: "https://img/heat.jpg", Rating: 8, WatchedAt: "2025-10-01"}}},
	}
	env.server = NewServer(Deps{
		Notes:      noteSvc,
		Paint:      paintSvc,
		LastFM:     env.lastfm,
		Letterboxd: env.diary,
		IDs:        fakeIDs{},
	}, cfg, zap.NewNop())
	return env
}

func (e *testEnv) do(method, target string, body []byte, headers ...string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(rec, req)
	return rec
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, w, h))))
	return buf.Bytes()
}

func TestHealthAndReady(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, testConfig())
	rec := env.do(http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "req-1", rec.Header().Get("X-Request-ID"))

	rec = env.do(http.MethodGet, "/readyz", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	env.server = NewServer(Deps{Notes: brokenNotes{}}, testConfig(), zap.NewNop())
	rec = env.do(http.MethodGet, "/readyz", nil)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestRequestIDIsPropagated(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, testConfig())
	rec := env.do(http.MethodGet, "/healthz", nil, "X-Request-ID", "upstream-id")
	require.Equal(t, "upstream-id", rec.Header().Get("X-Request-ID"))
}

func TestMetricsEndpoint(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, testConfig())
	env.do(http.MethodGet, "/healthz", nil)
	rec := env.do(http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "http_requests_total")
}

func TestNotesLifecycle(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, testConfig())

	rec := env.do(http.MethodPost, "/notes/?content=hello%20world&x=10&y=20", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"id":1,"content":"hello world","created_at":1700000000,"x":10,"y":20}`, rec.Body.String())

	rec = env.do(http.MethodGet, "/notes", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `[{"id":1,"content":"hello world","created_at":1700000000,"x":10,"y":20}]`, rec.Body.String())

	rec = env.do(http.MethodPatch, "/notes/1?content=moved&x=1&y=2", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(http.MethodGet, "/notes/1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"id":1,"content":"moved","created_at":1700000000,"x":1,"y":2}`, rec.Body.String())

	rec = env.do(http.MethodDelete, "/notes/1", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(http.MethodGet, "/notes/", nil)
	require.JSONEq(t, `[]`, rec.Body.String())
	rec = env.do(http.MethodGet, "/notes/deleted", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"moved"`)

	require.Len(t, env.pub.Messages("notes"), 3)
}

func TestNotesErrors(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, testConfig())
	cases := []struct {
		name   string
		method string
		target string
		want   int
	}{
		{"missing note", http.MethodGet, "/notes/42", http.StatusNotFound},
		{"non-numeric id", http.MethodGet, "/notes/abc", http.StatusBadRequest},
		{"missing content", http.MethodPost, "/notes/?x=1&y=1", http.StatusBadRequest},
		{"missing y", http.MethodPost, "/notes/?content=a&x=1", http.StatusBadRequest},
		{"non-numeric x", http.MethodPost, "/notes/?content=a&x=left&y=1", http.StatusBadRequest},
		{"negative x", http.MethodPost, "/notes/?content=a&x=-1&y=1", http.StatusBadRequest},
		{"content too long", http.MethodPost, "/notes/?content=aaaaaaaaaaaaaaaaaaaaa&x=1&y=1", http.StatusBadRequest},
		{"patch missing note", http.MethodPatch, "/notes/42?content=a&x=1&y=1", http.StatusNotFound},
		{"delete missing note", http.MethodDelete, "/notes/42", http.StatusNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := env.do(tc.method, tc.target, nil)
			require.Equal(t, tc.want, rec.Code, rec.Body.String())
		})
	}
}

func TestNotesStoreFailures(t *testing.T) {
	t.Parallel()

	server := NewServer(Deps{Notes: brokenNotes{}}, testConfig(), zap.NewNop())
	env := &testEnv{server: server}

	rec := env.do(http.MethodGet, "/notes/", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `[]`, rec.Body.String())

	rec = env.do(http.MethodPost, "/notes/?content=a&x=1&y=1", nil)
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.JSONEq(t, `{"error":"error saving sticky note"}`, rec.Body.String())
}

func TestPaintRawUpload(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, testConfig())

	rec := env.do(http.MethodGet, "/paint/", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(http.MethodPatch, "/paint/", pngBytes(t, 4, 2), "Content-Type", "image/png")
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = env.do(http.MethodGet, "/paint", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "image/png", rec.Header().Get("Content-Type"))
	cfg, err := png.DecodeConfig(bytes.NewReader(rec.Body.Bytes()))
	require.NoError(t, err)
	require.Equal(t, 4, cfg.Width)

	etag := rec.Header().Get("ETag")
	require.NotEmpty(t, etag)
	rec = env.do(http.MethodGet, "/paint/", nil, "If-None-Match", etag)
	require.Equal(t, http.StatusNotModified, rec.Code)
	require.Empty(t, rec.Body.Bytes())

	rec = env.do(http.MethodGet, "/paint/", nil, "If-None-Match", `"stale"`)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestPaintMultipartUpload(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, testConfig())

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	require.NoError(t, mw.WriteField("note", "ignored"))
	fw, err := mw.CreateFormFile("image", "paint.png")
	require.NoError(t, err)
	_, err = fw.Write(pngBytes(t, 4, 2))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	rec := env.do(http.MethodPatch, "/paint/", body.Bytes(), "Content-Type", mw.FormDataContentType())
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
}

func TestPaintRejections(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, testConfig())

	rec := env.do(http.MethodPatch, "/paint/", []byte("not an image"))
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(http.MethodPatch, "/paint/", pngBytes(t, 2, 4))
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(http.MethodPatch, "/paint/", make([]byte, 1<<12+1))
	require.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestLastFMRoutes(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, testConfig())

	rec := env.do(http.MethodGet, "/lastfm/", nil)
	require.Equal(t, http.StatusSeeOther, rec.Code)
	require.Equal(t, "/lastfm/I4ROVI", rec.Header().Get("Location"))

	rec = env.do(http.MethodGet, "/lastfm/someone", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, `{"recenttracks":{}}`, rec.Body.String())
	require.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	env.lastfm.err = upstream.ErrUnavailable
	rec = env.do(http.MethodGet, "/lastfm/someone", nil)
	require.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestLetterboxdRoute(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, testConfig())

	rec := env.do(http.MethodGet, "/letterboxd/", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t,
		`[{"name":"Heat","poster_url":"https://img/heat.jpg","rating":8,"watched_at":"2025-10-01"}]`,
		rec.Body.String())

	env.diary.err = errors.New("blocked")
	rec = env.do(http.MethodGet, "/letterboxd", nil)
	require.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestCORSAndOptions(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, testConfig())

	rec := env.do(http.MethodOptions, "/notes/1", nil,
		"Origin", "https://site.example",
		"Access-Control-Request-Method", http.MethodPatch,
	)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotEmpty(t, rec.Header().Get("Access-Control-Allow-Origin"))
	require.Contains(t, rec.Header().Get("Access-Control-Allow-Methods"), http.MethodPatch)

	rec = env.do(http.MethodOptions, "/anything/at/all", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(http.MethodGet, "/healthz", nil, "Origin", "https://site.example")
	require.NotEmpty(t, rec.Header().Get("Access-Control-Allow-Origin"))

	rec = env.do(http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"), "CORS headers need an Origin")
}

func TestAPIKeyGuardsWrites(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.Auth = config.AuthConfig{Enabled: true, APIKey: "secret"}
	env := newTestEnv(t, cfg)

	rec := env.do(http.MethodPost, "/notes/?content=a&x=1&y=1", nil)
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec = env.do(http.MethodPost, "/notes/?content=a&x=1&y=1", nil, "X-API-Key", "secret")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(http.MethodPatch, "/paint/", pngBytes(t, 4, 2))
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec = env.do(http.MethodGet, "/notes/", nil)
	require.Equal(t, http.StatusOK, rec.Code, "reads stay open")
}

func TestRateLimitOnWrites(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.RateLimit = config.RateLimitConfig{Enabled: true, WriteRequests: 1, WindowSeconds: 60}
	env := newTestEnv(t, cfg)

	rec := env.do(http.MethodPost, "/notes/?content=a&x=1&y=1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = env.do(http.MethodPost, "/notes/?content=b&x=1&y=1", nil)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)

	rec = env.do(http.MethodGet, "/notes/", nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestRecoverMiddleware(t *testing.T) {
	t.Parallel()

	handler := recoverMiddleware(zap.NewNop())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusInternalServerError, rec.Code)
}
