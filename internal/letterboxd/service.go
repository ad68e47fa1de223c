// Package letterboxd scrapes the film diary from letterboxd and serves it from
// a process-wide cache.
package letterboxd

import (
	"context"
	"time"

	"github.com/JakeFAU/personal-site-api/internal/cache"
	"github.com/JakeFAU/personal-site-api/internal/clock"
)

type diaryScraper interface {
	Scrape(ctx context.Context) ([]FilmData, error)
}

// Service caches the most recent successful scrape.
type Service struct {
	scraper diaryScraper
	cache   *cache.TTL[string, []FilmData]
	key     string
}

// NewService wraps scraper in a cache keyed by the diary owner.
func NewService(scraper diaryScraper, user string, ttl time.Duration, clk clock.Clock) *Service {
	return &Service{
		scraper: scraper,
		cache:   cache.NewTTL[string, []FilmData]("letterboxd", ttl, clk),
		key:     user,
	}
}

// Films returns the diary, scraping only when the cached copy has expired.
func (s *Service) Films(ctx context.Context) ([]FilmData, error) {
	return s.cache.GetOrLoad(ctx, s.key, func(ctx context.Context) ([]FilmData, error) {
		return s.scraper.Scrape(ctx)
	})
}
