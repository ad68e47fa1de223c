package letterboxd

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/goccy/go-json"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/personal-site-api/internal/fetcher"
	"github.com/JakeFAU/personal-site-api/internal/fetcher/headless"
	"github.com/JakeFAU/personal-site-api/internal/headless/detector"
	"github.com/JakeFAU/personal-site-api/internal/logging"
	"github.com/JakeFAU/personal-site-api/internal/metrics"
	"github.com/JakeFAU/personal-site-api/internal/upstream"
)

// ScraperConfig locates the diary and bounds poster lookups.
type ScraperConfig struct {
	User              string
	BaseURL           string
	PosterConcurrency int
}

// Scraper downloads the diary page and resolves poster images.
type Scraper struct {
	cfg      ScraperConfig
	pages    *upstream.Client
	posters  *upstream.Client
	page     fetcher.Fetcher
	headless fetcher.Fetcher
	detector *detector.Heuristic
	logger   *zap.Logger
}

// NewScraper wires a Scraper. A nil headless fetcher is replaced by headless.Noop.
func NewScraper(
	cfg ScraperConfig,
	pages, posters *upstream.Client,
	page, headlessFetcher fetcher.Fetcher,
	logger *zap.Logger,
) *Scraper {
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if headlessFetcher == nil {
		headlessFetcher = headless.NewNoop()
	}
	if cfg.PosterConcurrency <= 0 {
		cfg.PosterConcurrency = 1
	}
	return &Scraper{
		cfg:      cfg,
		pages:    pages,
		posters:  posters,
		page:     page,
		headless: headlessFetcher,
		detector: detector.NewHeuristic(0),
		logger:   logging.OrNop(logger),
	}
}

// DiaryURL is the films page sorted by watch date.
func (s *Scraper) DiaryURL() string {
	return fmt.Sprintf("%s/%s/films/by/date/size/large/", s.cfg.BaseURL, url.PathEscape(s.cfg.User))
}

// Scrape fetches and parses the diary, then swaps each film link for its poster URL.
func (s *Scraper) Scrape(ctx context.Context) ([]FilmData, error) {
	body, err := s.pages.Do(ctx, s.fetchDiary)
	if err != nil {
		return nil, fmt.Errorf("fetch diary: %w", err)
	}
	films, err := ParseFilms(body)
	if err != nil {
		return nil, err
	}
	s.resolvePosters(ctx, films)
	metrics.AddFilmsScraped(len(films))
	s.logger.Info("scraped diary", zap.Int("films", len(films)))
	return films, nil
}

func (s *Scraper) fetchDiary(ctx context.Context) ([]byte, error) {
	req := fetcher.Request{URL: s.DiaryURL()}
	resp, err := s.page.Fetch(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", req.URL, err)
	}
	if s.detector.ShouldPromote(resp) {
		rendered, err := s.headless.Fetch(ctx, req)
		switch {
		case errors.Is(err, headless.ErrDisabled):
			s.logger.Warn("diary fetch blocked, headless fallback disabled", zap.Int("status", resp.StatusCode))
		case err != nil:
			return nil, fmt.Errorf("headless fetch %s: %w", req.URL, err)
		default:
			s.logger.Warn("diary fetch blocked, used headless render", zap.Int("status", resp.StatusCode))
			resp = rendered
		}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &upstream.StatusError{Upstream: s.pages.Name(), StatusCode: resp.StatusCode}
	}
	return resp.Body, nil
}

// resolvePosters rewrites PosterURL in place. A failed lookup keeps the film link.
func (s *Scraper) resolvePosters(ctx context.Context, films []FilmData) {
	var g errgroup.Group
	g.SetLimit(s.cfg.PosterConcurrency)
	for i := range films {
		g.Go(func() error {
			poster, err := s.posterURL(ctx, films[i].PosterURL)
			if err != nil {
				s.logger.Debug("poster lookup failed",
					zap.String("film", films[i].Name),
					zap.Error(err),
				)
				return nil
			}
			films[i].PosterURL = poster
			return nil
		})
	}
	_ = g.Wait()
}

type posterResponse struct {
	URL string `json:"url"`
}

func (s *Scraper) posterURL(ctx context.Context, link string) (string, error) {
	body, err := s.posters.Get(ctx, s.cfg.BaseURL+link+"poster/std/150")
	if err != nil {
		return "", err
	}
	var poster posterResponse
	if err := json.Unmarshal(body, &poster); err != nil {
		return "", fmt.Errorf("decode poster: %w", err)
	}
	if poster.URL == "" {
		return "", fmt.Errorf("poster response for %s has no url", link)
	}
	return poster.URL, nil
}
