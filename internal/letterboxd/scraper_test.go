package letterboxd

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/personal-site-api/internal/fetcher"
	collyfetcher "github.com/JakeFAU/personal-site-api/internal/fetcher/colly"
	"github.com/JakeFAU/personal-site-api/internal/fetcher/headless"
	"github.com/JakeFAU/personal-site-api/internal/upstream"
)

type fakeSite struct {
	diaryStatus atomic.Int32
	diaryHits   atomic.Int32
	srv         *httptest.Server
}

func newFakeSite(t *testing.T) *fakeSite {
	t.Helper()
	diary, err := os.ReadFile("testdata/diary.html")
	require.NoError(t, err)

	site := &fakeSite{}
	site.diaryStatus.Store(http.StatusOK)
	mux := http.NewServeMux()
	mux.HandleFunc("/14rovi/films/by/date/size/large/", func(w http.ResponseWriter, _ *http.Request) {
		site.diaryHits.Add(1)
		w.WriteHeader(int(site.diaryStatus.Load()))
		_, _ = w.Write(diary)
	})
	mux.HandleFunc("/film/paris-texas/poster/std/150", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"url":"https://a.ltrbxd.com/paris-texas-150.jpg"}`))
	})
	mux.HandleFunc("/film/heat-1995/poster/std/150", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	site.srv = httptest.NewServer(mux)
	t.Cleanup(site.srv.Close)
	return site
}

type stubFetcher struct {
	calls atomic.Int32
	resp  fetcher.Response
	err   error
}

func (s *stubFetcher) Fetch(context.Context, fetcher.Request) (fetcher.Response, error) {
	s.calls.Add(1)
	return s.resp, s.err
}

func newTestScraper(site *fakeSite, renderer fetcher.Fetcher) *Scraper {
	pages := upstream.New(upstream.Config{Name: "letterboxd-test", BreakerFailures: 10}, nil, zap.NewNop())
	posters := upstream.New(upstream.Config{Name: "letterboxd-posters-test", BreakerFailures: 10}, nil, zap.NewNop())
	page := collyfetcher.New(collyfetcher.Config{Timeout: 5 * time.Second})
	return NewScraper(ScraperConfig{
		User:              "14rovi",
		BaseURL:           site.srv.URL + "/",
		PosterConcurrency: 2,
	}, pages, posters, page, renderer, zap.NewNop())
}

func TestScrapeResolvesPosters(t *testing.T) {
	t.Parallel()

	site := newFakeSite(t)
	films, err := newTestScraper(site, nil).Scrape(context.Background())
	require.NoError(t, err)
	require.Len(t, films, 2)
	require.Equal(t, "https://a.ltrbxd.com/paris-texas-150.jpg", films[0].PosterURL)
	require.Equal(t, "/film/heat-1995/", films[1].PosterURL, "failed lookups keep the film link")
}

func TestScrapeFailsOnBadStatus(t *testing.T) {
	t.Parallel()

	site := newFakeSite(t)
	site.diaryStatus.Store(http.StatusInternalServerError)
	_, err := newTestScraper(site, nil).Scrape(context.Background())
	require.ErrorIs(t, err, upstream.ErrUnavailable)
}

func TestScrapeFallsBackToHeadlessWhenBlocked(t *testing.T) {
	t.Parallel()

	site := newFakeSite(t)
	site.diaryStatus.Store(http.StatusForbidden)
	diary, err := os.ReadFile("testdata/diary.html")
	require.NoError(t, err)
	renderer := &stubFetcher{resp: fetcher.Response{StatusCode: http.StatusOK, Body: diary, UsedHeadless: true}}

	films, err := newTestScraper(site, renderer).Scrape(context.Background())
	require.NoError(t, err)
	require.Len(t, films, 2)
	require.Equal(t, int32(1), renderer.calls.Load())
}

func TestScrapeFallsBackToHeadlessOnChallengePage(t *testing.T) {
	t.Parallel()

	challenge := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`<html><head><title>Just a moment...</title></head><body></body></html>`))
	}))
	t.Cleanup(challenge.Close)
	site := newFakeSite(t)
	diary, err := os.ReadFile("testdata/diary.html")
	require.NoError(t, err)
	renderer := &stubFetcher{resp: fetcher.Response{StatusCode: http.StatusOK, Body: diary, UsedHeadless: true}}

	s := newTestScraper(site, renderer)
	s.cfg.BaseURL = challenge.URL
	body, err := s.fetchDiary(context.Background())
	require.NoError(t, err)
	require.Equal(t, diary, body)
	require.Equal(t, int32(1), renderer.calls.Load())
}

func TestScrapeBlockedWithoutHeadlessReportsStatus(t *testing.T) {
	t.Parallel()

	site := newFakeSite(t)
	site.diaryStatus.Store(http.StatusForbidden)

	_, err := newTestScraper(site, headless.NewNoop()).Scrape(context.Background())
	require.ErrorIs(t, err, upstream.ErrUnavailable)
	var statusErr *upstream.StatusError
	require.ErrorAs(t, err, &statusErr)
	require.Equal(t, http.StatusForbidden, statusErr.StatusCode)
	require.NotErrorIs(t, err, headless.ErrDisabled)
}

func TestScrapeDoesNotUseHeadlessForOtherErrors(t *testing.T) {
	t.Parallel()

	site := newFakeSite(t)
	site.diaryStatus.Store(http.StatusNotFound)
	renderer := &stubFetcher{}

	_, err := newTestScraper(site, renderer).Scrape(context.Background())
	require.Error(t, err)
	require.Zero(t, renderer.calls.Load())
}

func TestResolvePostersHonorsConcurrencyLimit(t *testing.T) {
	t.Parallel()

	const limit = 3
	var inFlight, peak atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := inFlight.Add(1)
		defer inFlight.Add(-1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		_, _ = fmt.Fprintf(w, `{"url":"https://img.example%s"}`, r.URL.Path)
	}))
	t.Cleanup(srv.Close)

	posters := upstream.New(upstream.Config{Name: "letterboxd-posters-test", BreakerFailures: 10}, nil, zap.NewNop())
	s := NewScraper(ScraperConfig{
		User:              "14rovi",
		BaseURL:           srv.URL,
		PosterConcurrency: limit,
	}, nil, posters, nil, nil, zap.NewNop())

	films := make([]FilmData, 12)
	for i := range films {
		films[i] = FilmData{Name: fmt.Sprintf("film %d", i), PosterURL: fmt.Sprintf("/film/f%d/", i)}
	}
	s.resolvePosters(context.Background(), films)

	require.LessOrEqual(t, peak.Load(), int32(limit))
	require.GreaterOrEqual(t, peak.Load(), int32(2), "lookups should overlap")
	for i, film := range films {
		require.Equal(t, fmt.Sprintf("https://img.example/film/f%d/poster/std/150", i), film.PosterURL)
	}
}

func TestDiaryURL(t *testing.T) {
	t.Parallel()

	s := NewScraper(ScraperConfig{User: "14rovi", BaseURL: "https://letterboxd.com/"}, nil, nil, nil, nil, nil)
	require.Equal(t, "https://letterboxd.com/14rovi/films/by/date/size/large/", s.DiaryURL())
}
